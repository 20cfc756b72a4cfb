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

package uacodec

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"sync"
	"sync/atomic"
)

// Codec encodes and decodes one structure type. Encode and Decode are
// written against the Encoder and Decoder interfaces and serve both the
// binary and XML forms; EncodeXML and DecodeXML override them for XML when
// the two forms differ.
type Codec struct {
	// Name is the structure name, used as the XML element name.
	Name string

	DataTypeID       NodeID
	BinaryEncodingID NodeID
	XMLEncodingID    NodeID

	// Type is the Go type of decoded values.
	Type reflect.Type

	Encode    func(e Encoder, v any) error
	Decode    func(d Decoder) (any, error)
	EncodeXML func(e Encoder, v any) error
	DecodeXML func(d Decoder) (any, error)

	// identities of the user functions, for equivalence checks
	encodeID, decodeID uintptr
}

func funcID(f any) uintptr {
	v := reflect.ValueOf(f)
	if !v.IsValid() || v.IsNil() {
		return 0
	}
	return v.Pointer()
}

func (c *Codec) ids() []NodeID {
	ids := []NodeID{c.DataTypeID}
	for _, id := range []NodeID{c.BinaryEncodingID, c.XMLEncodingID} {
		if !id.IsNull() {
			ids = append(ids, id)
		}
	}
	return ids
}

// equivalent reports whether registering o after c changes nothing.
func (c *Codec) equivalent(o *Codec) bool {
	return c.Name == o.Name &&
		c.DataTypeID.Equal(o.DataTypeID) &&
		c.BinaryEncodingID.Equal(o.BinaryEncodingID) &&
		c.XMLEncodingID.Equal(o.XMLEncodingID) &&
		c.Type == o.Type &&
		c.encodeID == o.encodeID &&
		c.decodeID == o.decodeID &&
		funcID(c.EncodeXML) == funcID(o.EncodeXML) &&
		funcID(c.DecodeXML) == funcID(o.DecodeXML)
}

// accepts reports whether values of type rt can be encoded by c.
func (c *Codec) accepts(rt reflect.Type) bool {
	if c.Type == nil || rt == c.Type {
		return true
	}
	return c.Type.Kind() == reflect.Pointer && rt == c.Type.Elem()
}

func (c *Codec) encodeFunc(xml bool) func(Encoder, any) error {
	if xml && c.EncodeXML != nil {
		return c.EncodeXML
	}
	return c.Encode
}

func (c *Codec) decodeFunc(xml bool) func(Decoder) (any, error) {
	if xml && c.DecodeXML != nil {
		return c.DecodeXML
	}
	return c.Decode
}

func (c *Codec) validate() error {
	switch {
	case c.Name == "":
		return errors.New("uacodec: codec name is empty")
	case c.DataTypeID.IsNull():
		return fmt.Errorf("uacodec: codec %s has no data type id", c.Name)
	case c.Encode == nil || c.Decode == nil:
		return fmt.Errorf("uacodec: codec %s needs both Encode and Decode", c.Name)
	}
	return nil
}

// Registry maps structure type identifiers to codecs. Lookups read an
// immutable snapshot and never wait on Register; writers copy the snapshot
// and swap it in under a mutex. Entries are never removed.
type Registry struct {
	mu      sync.Mutex
	state   atomic.Pointer[registryState]
	metrics *RegistryMetrics
	logger  *slog.Logger
}

type registryState struct {
	byID   map[nodeKey]*Codec
	byType map[reflect.Type]*Codec
	codecs []*Codec
}

// DefaultRegistry is the process-wide registry used by encoders and
// decoders unless WithRegistry says otherwise.
var DefaultRegistry = NewRegistry()

// NewRegistry returns a registry holding the builtin structures. Only the
// logger option is used.
func NewRegistry(opts ...Option) *Registry {
	r := newEmptyRegistry(opts...)
	if err := registerBuiltins(r); err != nil {
		panic(err)
	}
	return r
}

func newEmptyRegistry(opts ...Option) *Registry {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	r := &Registry{
		metrics: &RegistryMetrics{},
		logger:  o.logger,
	}
	r.state.Store(&registryState{
		byID:   make(map[nodeKey]*Codec),
		byType: make(map[reflect.Type]*Codec),
	})
	return r
}

// Register adds a codec under its data type and encoding ids and its Go
// type. Registering an equivalent codec again is a no-op; a different codec
// under an id or type already taken fails with ErrCodecConflict.
func (r *Registry) Register(c Codec) error {
	if err := c.validate(); err != nil {
		return err
	}
	if c.encodeID == 0 {
		c.encodeID = funcID(c.Encode)
	}
	if c.decodeID == 0 {
		c.decodeID = funcID(c.Decode)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.state.Load()
	if ex, ok := old.byID[c.DataTypeID.key()]; ok && ex.equivalent(&c) {
		r.metrics.Duplicates.Add(1)
		r.logger.Debug("structure already registered",
			slog.String("name", c.Name),
			slog.String("data_type", c.DataTypeID.String()))
		return nil
	}
	for _, id := range c.ids() {
		if ex, ok := old.byID[id.key()]; ok {
			r.metrics.Conflicts.Add(1)
			return fmt.Errorf("%w: %s is taken by %s", ErrCodecConflict, id, ex.Name)
		}
	}
	if c.Type != nil {
		if ex, ok := old.byType[c.Type]; ok {
			r.metrics.Conflicts.Add(1)
			return fmt.Errorf("%w: %v is taken by %s", ErrCodecConflict, c.Type, ex.Name)
		}
	}

	next := &registryState{
		byID:   make(map[nodeKey]*Codec, len(old.byID)+3),
		byType: make(map[reflect.Type]*Codec, len(old.byType)+1),
		codecs: append(slices.Clip(old.codecs), &c),
	}
	for k, v := range old.byID {
		next.byID[k] = v
	}
	for k, v := range old.byType {
		next.byType[k] = v
	}
	for _, id := range c.ids() {
		next.byID[id.key()] = &c
	}
	if c.Type != nil {
		next.byType[c.Type] = &c
	}
	r.state.Store(next)
	r.metrics.Registrations.Add(1)

	r.logger.Debug("registered structure",
		slog.String("name", c.Name),
		slog.String("data_type", c.DataTypeID.String()),
		slog.String("binary_encoding", c.BinaryEncodingID.String()))
	return nil
}

// Lookup returns the codec registered under id, which may be a data type
// id or one of its encoding ids.
func (r *Registry) Lookup(id NodeID) (*Codec, bool) {
	r.metrics.Lookups.Add(1)
	c, ok := r.state.Load().byID[id.key()]
	if !ok {
		r.metrics.Misses.Add(1)
	}
	return c, ok
}

// LookupType returns the codec for Go values of type t. A codec registered
// for *T also serves T.
func (r *Registry) LookupType(t reflect.Type) (*Codec, bool) {
	r.metrics.Lookups.Add(1)
	st := r.state.Load()
	c, ok := st.byType[t]
	if !ok && t != nil && t.Kind() != reflect.Pointer {
		c, ok = st.byType[reflect.PointerTo(t)]
	}
	if !ok {
		r.metrics.Misses.Add(1)
	}
	return c, ok
}

// LookupName returns the codec registered under the structure name.
func (r *Registry) LookupName(name string) (*Codec, bool) {
	r.metrics.Lookups.Add(1)
	for _, c := range r.state.Load().codecs {
		if c.Name == name {
			return c, true
		}
	}
	r.metrics.Misses.Add(1)
	return nil, false
}

// Codecs returns the registered codecs ordered by data type id.
func (r *Registry) Codecs() []*Codec {
	out := slices.Clone(r.state.Load().codecs)
	slices.SortFunc(out, func(a, b *Codec) int {
		return a.DataTypeID.Compare(b.DataTypeID)
	})
	return out
}

// Len returns the number of registered codecs.
func (r *Registry) Len() int {
	return len(r.state.Load().codecs)
}

// Metrics returns the registry metrics.
func (r *Registry) Metrics() *RegistryMetrics {
	return r.metrics
}

// RegisterStructure registers a codec for the structure type T. Decoded
// values are *T; encoding accepts T or *T.
func RegisterStructure[T any](r *Registry, name string, dataType, binaryID, xmlID NodeID,
	encode func(Encoder, *T) error, decode func(Decoder, *T) error) error {
	if encode == nil || decode == nil {
		return fmt.Errorf("uacodec: codec %s needs both encode and decode", name)
	}
	return r.Register(Codec{
		Name:             name,
		DataTypeID:       dataType,
		BinaryEncodingID: binaryID,
		XMLEncodingID:    xmlID,
		Type:             reflect.TypeFor[*T](),
		Encode: func(e Encoder, v any) error {
			switch x := v.(type) {
			case *T:
				if x == nil {
					return fmt.Errorf("%w: nil %s", ErrInvalidValue, name)
				}
				return encode(e, x)
			case T:
				return encode(e, &x)
			}
			return fmt.Errorf("%w: %T is not %s", ErrTypeMismatch, v, name)
		},
		Decode: func(d Decoder) (any, error) {
			x := new(T)
			if err := decode(d, x); err != nil {
				return nil, err
			}
			return x, nil
		},
		encodeID: funcID(encode),
		decodeID: funcID(decode),
	})
}
