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

// Package capture splits captured OPC UA TCP traffic into Connection
// Protocol frames and decodes the parts of each frame that can be read
// without a security context.
package capture

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/edgeo-scada/uacodec"
)

// Message types of the OPC UA Connection Protocol.
const (
	MessageTypeHello        = "HEL"
	MessageTypeAcknowledge  = "ACK"
	MessageTypeError        = "ERR"
	MessageTypeReverseHello = "RHE"
	MessageTypeOpenChannel  = "OPN"
	MessageTypeCloseChannel = "CLO"
	MessageTypeMessage      = "MSG"
)

// Chunk types.
const (
	ChunkTypeFinal        byte = 'F'
	ChunkTypeIntermediate byte = 'C'
	ChunkTypeAbort        byte = 'A'
)

// HeaderSize is the size of the message header preceding every frame.
const HeaderSize = 8

// SecurityPolicyNone is the policy URI of unsecured channels.
const SecurityPolicyNone = "http://opcfoundation.org/UA/SecurityPolicy#None"

var (
	// ErrInvalidFrame is returned for bytes that do not start a frame.
	ErrInvalidFrame = errors.New("capture: invalid frame")

	// ErrShortFrame is returned when a frame body is too short for its type.
	ErrShortFrame = errors.New("capture: frame body too short")
)

// Header is the message header of a frame.
type Header struct {
	MessageType string
	ChunkType   byte
	MessageSize uint32
}

// DecodeHeader reads a header from the first HeaderSize bytes of data.
func DecodeHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, fmt.Errorf("%w: header needs %d bytes, have %d", ErrShortFrame, HeaderSize, len(data))
	}
	h := Header{
		MessageType: string(data[0:3]),
		ChunkType:   data[3],
		MessageSize: binary.LittleEndian.Uint32(data[4:8]),
	}
	if !validMessageType(h.MessageType) {
		return h, fmt.Errorf("%w: message type %q", ErrInvalidFrame, h.MessageType)
	}
	switch h.ChunkType {
	case ChunkTypeFinal, ChunkTypeIntermediate, ChunkTypeAbort:
	default:
		return h, fmt.Errorf("%w: chunk type %q", ErrInvalidFrame, h.ChunkType)
	}
	if h.MessageSize < HeaderSize {
		return h, fmt.Errorf("%w: message size %d", ErrInvalidFrame, h.MessageSize)
	}
	return h, nil
}

// Encode returns the wire form of h.
func (h Header) Encode() []byte {
	buf := make([]byte, HeaderSize)
	copy(buf[0:3], h.MessageType)
	buf[3] = h.ChunkType
	binary.LittleEndian.PutUint32(buf[4:8], h.MessageSize)
	return buf
}

func validMessageType(t string) bool {
	switch t {
	case MessageTypeHello, MessageTypeAcknowledge, MessageTypeError, MessageTypeReverseHello,
		MessageTypeOpenChannel, MessageTypeCloseChannel, MessageTypeMessage:
		return true
	}
	return false
}

// Frame is one message chunk: its header and the bytes after it.
type Frame struct {
	Header
	Body []byte
}

// SplitFrames cuts complete frames off the front of data. It returns the
// frames and the unconsumed tail, which holds at most one partial frame.
// Bytes that cannot start a frame are an error.
func SplitFrames(data []byte) ([]Frame, []byte, error) {
	var frames []Frame
	for len(data) >= HeaderSize {
		h, err := DecodeHeader(data)
		if err != nil {
			return frames, data, err
		}
		if uint32(len(data)) < h.MessageSize {
			break
		}
		frames = append(frames, Frame{Header: h, Body: data[HeaderSize:h.MessageSize]})
		data = data[h.MessageSize:]
	}
	return frames, data, nil
}

// Hello is the first message a client sends on a connection.
type Hello struct {
	ProtocolVersion   uint32
	ReceiveBufferSize uint32
	SendBufferSize    uint32
	MaxMessageSize    uint32
	MaxChunkCount     uint32
	EndpointURL       string
}

// Encode writes m to e.
func (m *Hello) Encode(e uacodec.Encoder) error {
	e.WriteUInt32("ProtocolVersion", m.ProtocolVersion)
	e.WriteUInt32("ReceiveBufferSize", m.ReceiveBufferSize)
	e.WriteUInt32("SendBufferSize", m.SendBufferSize)
	e.WriteUInt32("MaxMessageSize", m.MaxMessageSize)
	e.WriteUInt32("MaxChunkCount", m.MaxChunkCount)
	e.WriteString("EndpointUrl", m.EndpointURL)
	return e.Err()
}

// Decode reads m from d.
func (m *Hello) Decode(d uacodec.Decoder) error {
	m.ProtocolVersion, _ = d.ReadUInt32("ProtocolVersion")
	m.ReceiveBufferSize, _ = d.ReadUInt32("ReceiveBufferSize")
	m.SendBufferSize, _ = d.ReadUInt32("SendBufferSize")
	m.MaxMessageSize, _ = d.ReadUInt32("MaxMessageSize")
	m.MaxChunkCount, _ = d.ReadUInt32("MaxChunkCount")
	m.EndpointURL, _ = d.ReadString("EndpointUrl")
	return d.Err()
}

// Acknowledge is the server's reply to Hello.
type Acknowledge struct {
	ProtocolVersion   uint32
	ReceiveBufferSize uint32
	SendBufferSize    uint32
	MaxMessageSize    uint32
	MaxChunkCount     uint32
}

// Encode writes m to e.
func (m *Acknowledge) Encode(e uacodec.Encoder) error {
	e.WriteUInt32("ProtocolVersion", m.ProtocolVersion)
	e.WriteUInt32("ReceiveBufferSize", m.ReceiveBufferSize)
	e.WriteUInt32("SendBufferSize", m.SendBufferSize)
	e.WriteUInt32("MaxMessageSize", m.MaxMessageSize)
	e.WriteUInt32("MaxChunkCount", m.MaxChunkCount)
	return e.Err()
}

// Decode reads m from d.
func (m *Acknowledge) Decode(d uacodec.Decoder) error {
	m.ProtocolVersion, _ = d.ReadUInt32("ProtocolVersion")
	m.ReceiveBufferSize, _ = d.ReadUInt32("ReceiveBufferSize")
	m.SendBufferSize, _ = d.ReadUInt32("SendBufferSize")
	m.MaxMessageSize, _ = d.ReadUInt32("MaxMessageSize")
	m.MaxChunkCount, _ = d.ReadUInt32("MaxChunkCount")
	return d.Err()
}

// ErrorMessage reports a fatal connection error before the connection is
// closed.
type ErrorMessage struct {
	Error  uacodec.StatusCode
	Reason string
}

// Encode writes m to e.
func (m *ErrorMessage) Encode(e uacodec.Encoder) error {
	e.WriteStatusCode("Error", m.Error)
	e.WriteString("Reason", m.Reason)
	return e.Err()
}

// Decode reads m from d.
func (m *ErrorMessage) Decode(d uacodec.Decoder) error {
	m.Error, _ = d.ReadStatusCode("Error")
	m.Reason, _ = d.ReadString("Reason")
	return d.Err()
}

// ReverseHello is sent by a server that opens the connection to a client.
type ReverseHello struct {
	ServerURI   string
	EndpointURL string
}

// Encode writes m to e.
func (m *ReverseHello) Encode(e uacodec.Encoder) error {
	e.WriteString("ServerUri", m.ServerURI)
	e.WriteString("EndpointUrl", m.EndpointURL)
	return e.Err()
}

// Decode reads m from d.
func (m *ReverseHello) Decode(d uacodec.Decoder) error {
	m.ServerURI, _ = d.ReadString("ServerUri")
	m.EndpointURL, _ = d.ReadString("EndpointUrl")
	return d.Err()
}

// AsymmetricSecurityHeader precedes the body of OPN chunks.
type AsymmetricSecurityHeader struct {
	SecurityPolicyURI             string
	SenderCertificate             []byte
	ReceiverCertificateThumbprint []byte
}

// Decode reads h from d.
func (h *AsymmetricSecurityHeader) Decode(d uacodec.Decoder) error {
	h.SecurityPolicyURI, _ = d.ReadString("SecurityPolicyUri")
	h.SenderCertificate, _ = d.ReadByteString("SenderCertificate")
	h.ReceiverCertificateThumbprint, _ = d.ReadByteString("ReceiverCertificateThumbprint")
	return d.Err()
}

// SequenceHeader follows the security header of OPN, MSG and CLO chunks.
type SequenceHeader struct {
	SequenceNumber uint32
	RequestID      uint32
}

// Decode reads h from d.
func (h *SequenceHeader) Decode(d uacodec.Decoder) error {
	h.SequenceNumber, _ = d.ReadUInt32("SequenceNumber")
	h.RequestID, _ = d.ReadUInt32("RequestId")
	return d.Err()
}

// Message is the decoded view of one frame. Fields that do not apply to
// the frame's message type are left zero.
type Message struct {
	Frame

	Hello        *Hello
	Acknowledge  *Acknowledge
	Error        *ErrorMessage
	ReverseHello *ReverseHello

	SecureChannelID uint32
	Security        *AsymmetricSecurityHeader
	TokenID         uint32
	Sequence        *SequenceHeader

	// ServiceTypeID is the encoding id of the service request or response
	// carried by the chunk, set when the chunk is a single unencrypted chunk.
	ServiceTypeID *uacodec.ExpandedNodeID
}

// Service returns the name of the service type the frame carries, or ""
// when it was not decoded.
func (m *Message) Service() string {
	if m.ServiceTypeID == nil {
		return ""
	}
	return ServiceName(m.ServiceTypeID.NodeID)
}

// decodeHandshake decodes the bodies of the frames that never carry a
// secure channel: HEL, ACK, ERR and RHE.
func decodeHandshake(m *Message, opts []uacodec.Option) error {
	d := uacodec.NewBinaryDecoder(m.Body, opts...)
	switch m.MessageType {
	case MessageTypeHello:
		m.Hello = new(Hello)
		return m.Hello.Decode(d)
	case MessageTypeAcknowledge:
		m.Acknowledge = new(Acknowledge)
		return m.Acknowledge.Decode(d)
	case MessageTypeError:
		m.Error = new(ErrorMessage)
		return m.Error.Decode(d)
	case MessageTypeReverseHello:
		m.ReverseHello = new(ReverseHello)
		return m.ReverseHello.Decode(d)
	}
	return nil
}

var serviceNames = map[uint32]string{
	397: "ServiceFault",
	422: "FindServersRequest",
	425: "FindServersResponse",
	428: "GetEndpointsRequest",
	431: "GetEndpointsResponse",
	446: "OpenSecureChannelRequest",
	449: "OpenSecureChannelResponse",
	452: "CloseSecureChannelRequest",
	455: "CloseSecureChannelResponse",
	461: "CreateSessionRequest",
	464: "CreateSessionResponse",
	467: "ActivateSessionRequest",
	470: "ActivateSessionResponse",
	473: "CloseSessionRequest",
	476: "CloseSessionResponse",
	479: "CancelRequest",
	482: "CancelResponse",
	527: "BrowseRequest",
	530: "BrowseResponse",
	533: "BrowseNextRequest",
	536: "BrowseNextResponse",
	554: "TranslateBrowsePathsToNodeIdsRequest",
	557: "TranslateBrowsePathsToNodeIdsResponse",
	560: "RegisterNodesRequest",
	563: "RegisterNodesResponse",
	566: "UnregisterNodesRequest",
	569: "UnregisterNodesResponse",
	631: "ReadRequest",
	634: "ReadResponse",
	664: "HistoryReadRequest",
	667: "HistoryReadResponse",
	673: "WriteRequest",
	676: "WriteResponse",
	712: "CallRequest",
	715: "CallResponse",
	751: "CreateMonitoredItemsRequest",
	754: "CreateMonitoredItemsResponse",
	781: "DeleteMonitoredItemsRequest",
	784: "DeleteMonitoredItemsResponse",
	787: "CreateSubscriptionRequest",
	790: "CreateSubscriptionResponse",
	793: "ModifySubscriptionRequest",
	796: "ModifySubscriptionResponse",
	799: "SetPublishingModeRequest",
	802: "SetPublishingModeResponse",
	826: "PublishRequest",
	829: "PublishResponse",
	832: "RepublishRequest",
	835: "RepublishResponse",
	847: "DeleteSubscriptionsRequest",
	850: "DeleteSubscriptionsResponse",
}

// ServiceName returns the name of the namespace 0 service message whose
// binary encoding id is id, or the id in text form.
func ServiceName(id uacodec.NodeID) string {
	if id.Namespace == 0 && id.Type == uacodec.NodeIDTypeNumeric {
		if s, ok := serviceNames[id.Numeric]; ok {
			return s
		}
	}
	return id.String()
}
