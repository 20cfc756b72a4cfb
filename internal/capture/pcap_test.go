// Copyright 2025 Edgeo SCADA
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package capture

import (
	"bytes"
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/maxatome/go-testdeep/td"
)

var (
	clientIP = net.IP{10, 0, 0, 1}
	serverIP = net.IP{10, 0, 0, 2}
)

type segment struct {
	src, dst         net.IP
	srcPort, dstPort uint16
	payload          []byte
}

// buildPcap writes segments as Ethernet/IPv4/TCP packets into a pcap file,
// one millisecond apart.
func buildPcap(t *testing.T, segments ...segment) *bytes.Buffer {
	t.Helper()
	var out bytes.Buffer
	w := pcapgo.NewWriter(&out)
	if err := w.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		t.Fatalf("WriteFileHeader: %v", err)
	}
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i, s := range segments {
		eth := &layers.Ethernet{
			SrcMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 0x01},
			DstMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 0x02},
			EthernetType: layers.EthernetTypeIPv4,
		}
		ip := &layers.IPv4{
			Version:  4,
			IHL:      5,
			TTL:      64,
			Protocol: layers.IPProtocolTCP,
			SrcIP:    s.src,
			DstIP:    s.dst,
		}
		tcp := &layers.TCP{
			SrcPort: layers.TCPPort(s.srcPort),
			DstPort: layers.TCPPort(s.dstPort),
			Seq:     uint32(1000 + i),
			ACK:     true,
			PSH:     true,
			Window:  65535,
		}
		if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
			t.Fatalf("SetNetworkLayerForChecksum: %v", err)
		}
		buf := gopacket.NewSerializeBuffer()
		opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
		if err := gopacket.SerializeLayers(buf, opts, eth, ip, tcp, gopacket.Payload(s.payload)); err != nil {
			t.Fatalf("SerializeLayers: %v", err)
		}
		data := buf.Bytes()
		ci := gopacket.CaptureInfo{
			Timestamp:     start.Add(time.Duration(i) * time.Millisecond),
			CaptureLength: len(data),
			Length:        len(data),
		}
		if err := w.WritePacket(ci, data); err != nil {
			t.Fatalf("WritePacket: %v", err)
		}
	}
	return &out
}

func toServer(payload []byte) segment {
	return segment{src: clientIP, dst: serverIP, srcPort: 50000, dstPort: DefaultPort, payload: payload}
}

func toClient(payload []byte) segment {
	return segment{src: serverIP, dst: clientIP, srcPort: DefaultPort, dstPort: 50000, payload: payload}
}

func readAll(t *testing.T, r *Reader, src *bytes.Buffer) []Record {
	t.Helper()
	var records []Record
	err := r.Read(context.Background(), src, func(rec Record) error {
		records = append(records, rec)
		return nil
	})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	return records
}

func TestReaderReassemblesFrames(t *testing.T) {
	hel := helloFrame(t)
	ack := buildFrame(t, MessageTypeAcknowledge, ChunkTypeFinal, (&Acknowledge{MaxChunkCount: 1}).Encode)
	opn := openFrame(t, 0, SecurityPolicyNone, 1)

	src := buildPcap(t,
		toServer(hel[:6]),
		toServer(hel[6:]),
		toClient(ack),
		// Two frames in one segment.
		toServer(append(append([]byte(nil), opn...), opn...)),
		// Traffic on another port is ignored.
		segment{src: clientIP, dst: serverIP, srcPort: 50001, dstPort: 80, payload: []byte("GET / HTTP/1.1\r\n")},
	)

	records := readAll(t, NewReader(NewInspector(nil), DefaultPort), src)
	if !td.CmpLen(t, records, 4) {
		return
	}

	td.Cmp(t, records[0].Flow, "10.0.0.1:50000->10.0.0.2:4840")
	td.CmpTrue(t, records[0].Timestamp.Equal(time.Date(2025, 6, 1, 12, 0, 0, 1e6, time.UTC)),
		"frame completed by the second segment")
	td.CmpNoError(t, records[0].Err)
	td.Cmp(t, records[0].Message.Hello.EndpointURL, "opc.tcp://pump:4840")

	td.Cmp(t, records[1].Flow, "10.0.0.2:4840->10.0.0.1:50000")
	td.Cmp(t, records[1].Message.MessageType, MessageTypeAcknowledge)

	for _, rec := range records[2:] {
		td.CmpNoError(t, rec.Err)
		td.Cmp(t, rec.Message.Service(), "OpenSecureChannelRequest")
	}
}

func TestReaderResynchronizes(t *testing.T) {
	hel := helloFrame(t)
	src := buildPcap(t,
		toServer([]byte("not an OPC UA frame")),
		toServer(hel),
	)

	records := readAll(t, NewReader(NewInspector(nil)), src)
	if !td.CmpLen(t, records, 2) {
		return
	}
	td.CmpErrorIs(t, records[0].Err, ErrInvalidFrame)
	td.CmpNil(t, records[0].Message)
	td.CmpNoError(t, records[1].Err)
	td.Cmp(t, records[1].Message.MessageType, MessageTypeHello)
}

func TestReaderStops(t *testing.T) {
	hel := helloFrame(t)
	errStop := errors.New("stop")

	n := 0
	err := NewReader(NewInspector(nil)).Read(context.Background(), buildPcap(t, toServer(hel), toServer(hel)),
		func(Record) error {
			n++
			return errStop
		})
	td.CmpErrorIs(t, err, errStop)
	td.Cmp(t, n, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = NewReader(NewInspector(nil)).Read(ctx, buildPcap(t, toServer(hel)), func(Record) error {
		t.Error("record delivered after cancel")
		return nil
	})
	td.CmpErrorIs(t, err, context.Canceled)

	err = NewReader(NewInspector(nil)).Read(context.Background(), bytes.NewBufferString("not a pcap"), nil)
	td.CmpError(t, err)
}
