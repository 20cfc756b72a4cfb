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
	"testing"

	"github.com/edgeo-scada/uacodec"
	"github.com/maxatome/go-testdeep/td"
)

const policyBasic256Sha256 = "http://opcfoundation.org/UA/SecurityPolicy#Basic256Sha256"

// Service encoding ids used below.
const (
	openSecureChannelRequest = 446
	readRequest              = 631
)

func openFrame(t *testing.T, channel uint32, policy string, seq uint32) []byte {
	return buildFrame(t, MessageTypeOpenChannel, ChunkTypeFinal, func(e uacodec.Encoder) error {
		e.WriteUInt32("SecureChannelId", channel)
		e.WriteString("SecurityPolicyUri", policy)
		e.WriteByteString("SenderCertificate", nil)
		e.WriteByteString("ReceiverCertificateThumbprint", nil)
		e.WriteUInt32("SequenceNumber", seq)
		e.WriteUInt32("RequestId", seq)
		e.WriteExpandedNodeID("TypeId", uacodec.NewExpandedNodeID(uacodec.NewNumericNodeID(0, openSecureChannelRequest)))
		return e.Err()
	})
}

func symmetricFrame(t *testing.T, msgType string, chunk byte, channel, seq, service uint32) []byte {
	return buildFrame(t, msgType, chunk, func(e uacodec.Encoder) error {
		e.WriteUInt32("SecureChannelId", channel)
		e.WriteUInt32("TokenId", 1)
		e.WriteUInt32("SequenceNumber", seq)
		e.WriteUInt32("RequestId", seq)
		e.WriteExpandedNodeID("TypeId", uacodec.NewExpandedNodeID(uacodec.NewNumericNodeID(0, service)))
		return e.Err()
	})
}

func decodeOne(t *testing.T, in *Inspector, data []byte) *Message {
	t.Helper()
	frames, rest, err := SplitFrames(data)
	if err != nil || len(frames) != 1 || len(rest) != 0 {
		t.Fatalf("SplitFrames: %d frames, %d left, %v", len(frames), len(rest), err)
	}
	m, err := in.Decode(frames[0])
	if err != nil {
		t.Fatalf("Decode(%s): %v", frames[0].MessageType, err)
	}
	return m
}

func TestInspectorHandshake(t *testing.T) {
	in := NewInspector(nil)

	m := decodeOne(t, in, helloFrame(t))
	td.Cmp(t, m.Hello, &Hello{
		ReceiveBufferSize: 65535,
		SendBufferSize:    65535,
		MaxMessageSize:    1 << 24,
		MaxChunkCount:     5000,
		EndpointURL:       "opc.tcp://pump:4840",
	})
	td.CmpNil(t, m.Acknowledge)

	ack := &Acknowledge{ReceiveBufferSize: 8192, SendBufferSize: 8192, MaxChunkCount: 1}
	m = decodeOne(t, in, buildFrame(t, MessageTypeAcknowledge, ChunkTypeFinal, ack.Encode))
	td.Cmp(t, m.Acknowledge, ack)

	errMsg := &ErrorMessage{Error: uacodec.StatusBadTcpMessageTooLarge, Reason: "too large"}
	m = decodeOne(t, in, buildFrame(t, MessageTypeError, ChunkTypeFinal, errMsg.Encode))
	td.Cmp(t, m.Error, errMsg)

	rhe := &ReverseHello{ServerURI: "urn:pump", EndpointURL: "opc.tcp://pump:4840"}
	m = decodeOne(t, in, buildFrame(t, MessageTypeReverseHello, ChunkTypeFinal, rhe.Encode))
	td.Cmp(t, m.ReverseHello, rhe)
}

func TestInspectorTruncatedHello(t *testing.T) {
	in := NewInspector(nil)
	hel := helloFrame(t)
	short := append(Header{MessageType: MessageTypeHello, ChunkType: ChunkTypeFinal, MessageSize: 20}.Encode(), hel[HeaderSize:20]...)
	frames, _, err := SplitFrames(short)
	td.CmpNoError(t, err)

	m, err := in.Decode(frames[0])
	td.CmpErrorIs(t, err, uacodec.ErrTruncated)
	td.CmpNotNil(t, m)
}

func TestInspectorUnsecuredChannel(t *testing.T) {
	in := NewInspector(nil)

	m := decodeOne(t, in, openFrame(t, 7, SecurityPolicyNone, 1))
	td.Cmp(t, m.SecureChannelID, uint32(7))
	td.Cmp(t, m.Security.SecurityPolicyURI, SecurityPolicyNone)
	td.Cmp(t, m.Sequence, &SequenceHeader{SequenceNumber: 1, RequestID: 1})
	td.Cmp(t, m.Service(), "OpenSecureChannelRequest")

	m = decodeOne(t, in, symmetricFrame(t, MessageTypeMessage, ChunkTypeFinal, 7, 2, readRequest))
	td.Cmp(t, m.TokenID, uint32(1))
	td.Cmp(t, m.Service(), "ReadRequest")

	// Only the first chunk of a multi-chunk message starts with a type id,
	// and the inspector does not reassemble.
	m = decodeOne(t, in, symmetricFrame(t, MessageTypeMessage, ChunkTypeIntermediate, 7, 3, readRequest))
	td.CmpNotNil(t, m.Sequence)
	td.CmpNil(t, m.ServiceTypeID)
	m = decodeOne(t, in, symmetricFrame(t, MessageTypeMessage, ChunkTypeFinal, 7, 4, readRequest))
	td.CmpNil(t, m.ServiceTypeID)

	// An aborted message also ends the multi-chunk run.
	decodeOne(t, in, symmetricFrame(t, MessageTypeMessage, ChunkTypeIntermediate, 7, 5, readRequest))
	decodeOne(t, in, symmetricFrame(t, MessageTypeMessage, ChunkTypeAbort, 7, 6, readRequest))
	m = decodeOne(t, in, symmetricFrame(t, MessageTypeMessage, ChunkTypeFinal, 7, 7, readRequest))
	td.Cmp(t, m.Service(), "ReadRequest")

	// Closing forgets the channel.
	m = decodeOne(t, in, symmetricFrame(t, MessageTypeCloseChannel, ChunkTypeFinal, 7, 8, 452))
	td.Cmp(t, m.Service(), "CloseSecureChannelRequest")
	m = decodeOne(t, in, symmetricFrame(t, MessageTypeMessage, ChunkTypeFinal, 7, 9, readRequest))
	td.CmpNil(t, m.Sequence)
	td.Cmp(t, m.Service(), "")
}

func TestInspectorSecuredChannel(t *testing.T) {
	in := NewInspector(nil)

	m := decodeOne(t, in, openFrame(t, 8, policyBasic256Sha256, 1))
	td.Cmp(t, m.Security.SecurityPolicyURI, policyBasic256Sha256)
	td.CmpNil(t, m.Sequence)
	td.CmpNil(t, m.ServiceTypeID)

	m = decodeOne(t, in, symmetricFrame(t, MessageTypeMessage, ChunkTypeFinal, 8, 2, readRequest))
	td.Cmp(t, m.SecureChannelID, uint32(8))
	td.CmpNil(t, m.Sequence)

	// Chunks of channels opened before the capture started are skipped too.
	m = decodeOne(t, in, symmetricFrame(t, MessageTypeMessage, ChunkTypeFinal, 99, 2, readRequest))
	td.Cmp(t, m.SecureChannelID, uint32(99))
	td.CmpNil(t, m.Sequence)
}
