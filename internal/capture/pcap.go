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
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/creachadair/mds/mapset"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// DefaultPort is the registered OPC UA TCP port.
const DefaultPort = 4840

// Record is one frame found in a capture.
type Record struct {
	Timestamp time.Time
	// Flow names the TCP direction the frame travelled, "src:port->dst:port".
	Flow    string
	Message *Message
	// Err is set when the frame, or the bytes where a frame should have
	// started, could not be decoded. Message is nil in the latter case.
	Err error
}

// Reader extracts OPC UA frames from pcap captures.
type Reader struct {
	inspector *Inspector
	ports     mapset.Set[uint16]
	logger    *slog.Logger

	// streams buffers the undelivered bytes of each TCP direction.
	streams map[string][]byte
}

// NewReader returns a Reader that feeds frames to in. Only TCP segments to
// or from one of ports are considered; with no ports every TCP segment is.
func NewReader(in *Inspector, ports ...uint16) *Reader {
	return &Reader{
		inspector: in,
		ports:     mapset.New(ports...),
		logger:    in.logger,
		streams:   make(map[string][]byte),
	}
}

// Read reads the pcap stream r to its end and calls fn for every frame, in
// capture order. It stops early when ctx is done or fn returns an error.
func (r *Reader) Read(ctx context.Context, src io.Reader, fn func(Record) error) error {
	pr, err := pcapgo.NewReader(src)
	if err != nil {
		return fmt.Errorf("capture: reading pcap header: %w", err)
	}
	linkType := pr.LinkType()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, ci, err := pr.ReadPacketData()
		if errors.Is(err, io.EOF) {
			return nil
		} else if err != nil {
			return fmt.Errorf("capture: reading packet: %w", err)
		}
		packet := gopacket.NewPacket(data, linkType, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
		if err := r.packet(packet, ci.Timestamp, fn); err != nil {
			return err
		}
	}
}

func (r *Reader) packet(p gopacket.Packet, ts time.Time, fn func(Record) error) error {
	tcp, ok := p.Layer(layers.LayerTypeTCP).(*layers.TCP)
	if !ok || len(tcp.Payload) == 0 {
		return nil
	}
	if r.ports.Len() > 0 && !r.ports.Has(uint16(tcp.SrcPort)) && !r.ports.Has(uint16(tcp.DstPort)) {
		return nil
	}
	net := p.NetworkLayer()
	if net == nil {
		return nil
	}
	flow := fmt.Sprintf("%s:%d->%s:%d",
		net.NetworkFlow().Src(), uint16(tcp.SrcPort),
		net.NetworkFlow().Dst(), uint16(tcp.DstPort))
	return r.feed(flow, ts, tcp.Payload, fn)
}

// feed appends payload to the flow's buffer and delivers every complete
// frame. Bytes that cannot start a frame reset the flow; the next segment
// is expected to start a new frame.
func (r *Reader) feed(flow string, ts time.Time, payload []byte, fn func(Record) error) error {
	buf := append(r.streams[flow], payload...)
	frames, rest, splitErr := SplitFrames(buf)
	for _, f := range frames {
		m, decodeErr := r.inspector.Decode(f)
		if err := fn(Record{Timestamp: ts, Flow: flow, Message: m, Err: decodeErr}); err != nil {
			return err
		}
	}
	if splitErr != nil {
		r.logger.Debug("resynchronizing flow",
			slog.String("flow", flow),
			slog.Int("dropped", len(rest)),
			slog.String("reason", splitErr.Error()))
		delete(r.streams, flow)
		return fn(Record{Timestamp: ts, Flow: flow, Err: splitErr})
	}
	if len(rest) == 0 {
		delete(r.streams, flow)
		return nil
	}
	// Frames handed to fn alias buf; keep the tail in its own array.
	r.streams[flow] = append([]byte(nil), rest...)
	return nil
}
