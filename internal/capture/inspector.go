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
	"fmt"
	"log/slog"

	"github.com/creachadair/mds/mapset"
	"github.com/edgeo-scada/uacodec"
)

// Inspector decodes frames. It remembers the security policy each secure
// channel was opened with and which channels have a multi-chunk message in
// flight, so that only plaintext single-chunk messages are decoded past the
// security header.
//
// An Inspector is not safe for concurrent use.
type Inspector struct {
	opts     []uacodec.Option
	logger   *slog.Logger
	policies map[uint32]string
	partial  mapset.Set[uint32]
}

// NewInspector returns an Inspector that decodes with the given codec
// options. A nil logger uses slog.Default.
func NewInspector(logger *slog.Logger, opts ...uacodec.Option) *Inspector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Inspector{
		opts:     opts,
		logger:   logger,
		policies: make(map[uint32]string),
		partial:  mapset.New[uint32](),
	}
}

// Decode decodes f. The returned Message is non-nil even when err is not,
// holding whatever was decoded before the failure.
func (in *Inspector) Decode(f Frame) (*Message, error) {
	m := &Message{Frame: f}
	switch f.MessageType {
	case MessageTypeOpenChannel:
		return m, in.decodeOpen(m)
	case MessageTypeMessage, MessageTypeCloseChannel:
		return m, in.decodeSymmetric(m)
	}
	if err := decodeHandshake(m, in.opts); err != nil {
		return m, fmt.Errorf("%s: %w", f.MessageType, err)
	}
	return m, nil
}

func (in *Inspector) decodeOpen(m *Message) error {
	d := uacodec.NewBinaryDecoder(m.Body, in.opts...)
	m.SecureChannelID, _ = d.ReadUInt32("SecureChannelId")
	m.Security = new(AsymmetricSecurityHeader)
	if err := m.Security.Decode(d); err != nil {
		return fmt.Errorf("%s: %w", m.MessageType, err)
	}
	if m.SecureChannelID != 0 {
		in.policies[m.SecureChannelID] = m.Security.SecurityPolicyURI
	}
	if m.Security.SecurityPolicyURI != SecurityPolicyNone {
		return nil
	}
	return in.decodeSequenced(m, d)
}

func (in *Inspector) decodeSymmetric(m *Message) error {
	d := uacodec.NewBinaryDecoder(m.Body, in.opts...)
	m.SecureChannelID, _ = d.ReadUInt32("SecureChannelId")
	m.TokenID, _ = d.ReadUInt32("TokenId")
	if err := d.Err(); err != nil {
		return fmt.Errorf("%s: %w", m.MessageType, err)
	}
	policy, ok := in.policies[m.SecureChannelID]
	if !ok || policy != SecurityPolicyNone {
		in.logger.Debug("skipping secured chunk",
			slog.String("type", m.MessageType),
			slog.Int("channel", int(m.SecureChannelID)),
			slog.Bool("known_channel", ok))
		return nil
	}
	if m.MessageType == MessageTypeCloseChannel {
		defer delete(in.policies, m.SecureChannelID)
	}
	return in.decodeSequenced(m, d)
}

// decodeSequenced reads the sequence header and, for the only chunk of a
// message, the service type id.
func (in *Inspector) decodeSequenced(m *Message, d *uacodec.BinaryDecoder) error {
	m.Sequence = new(SequenceHeader)
	if err := m.Sequence.Decode(d); err != nil {
		return fmt.Errorf("%s: %w", m.MessageType, err)
	}

	ch := m.SecureChannelID
	switch m.ChunkType {
	case ChunkTypeIntermediate:
		in.partial.Add(ch)
		return nil
	case ChunkTypeAbort:
		in.partial.Remove(ch)
		return nil
	}
	if in.partial.Has(ch) {
		in.partial.Remove(ch)
		return nil
	}

	id, err := d.ReadExpandedNodeID("TypeId")
	if err != nil {
		return fmt.Errorf("%s: %w", m.MessageType, err)
	}
	m.ServiceTypeID = &id
	return nil
}
