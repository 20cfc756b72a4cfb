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
	"fmt"
	"reflect"
)

// ExtensionObjectEncoding identifies the form of an ExtensionObject body.
type ExtensionObjectEncoding byte

// ExtensionObject body encodings.
const (
	ExtensionObjectNone   ExtensionObjectEncoding = 0x00
	ExtensionObjectBinary ExtensionObjectEncoding = 0x01
	ExtensionObjectXML    ExtensionObjectEncoding = 0x02
)

// String returns the encoding name.
func (e ExtensionObjectEncoding) String() string {
	switch e {
	case ExtensionObjectNone:
		return "None"
	case ExtensionObjectBinary:
		return "Binary"
	case ExtensionObjectXML:
		return "XML"
	default:
		return fmt.Sprintf("ExtensionObjectEncoding(%d)", byte(e))
	}
}

// ExtensionObject carries a structure identified by TypeID.
//
// TypeID is the encoding id the object was read with (the binary or XML
// encoding id of its data type), never the data type id itself. Encoding a
// decoded Value writes the encoding id of the target mode, resolved from the
// registry.
//
// When the structure's codec is registered, decoding sets Value and leaves
// Body nil. Otherwise Body keeps the encoded bytes and Encoding their form,
// and encoding writes them back unchanged.
type ExtensionObject struct {
	TypeID   NodeID
	Encoding ExtensionObjectEncoding
	Body     []byte
	Value    any

	// rawTypeID is the TypeID exactly as it was read, so that an unknown
	// object is re-encoded byte for byte even if the sender did not use the
	// most compact NodeId form.
	rawTypeID []byte
}

// NewExtensionObject wraps a decoded structure. The type identifier is
// resolved from the registry when the object is encoded.
func NewExtensionObject(v any) *ExtensionObject {
	return &ExtensionObject{Value: v}
}

// IsDecoded reports whether o holds a structured value rather than raw bytes.
func (o *ExtensionObject) IsDecoded() bool {
	return o != nil && o.Value != nil
}

// resolve finds the codec that encodes o.Value. It returns nil for an
// object holding only raw bytes.
func (o *ExtensionObject) resolve(r *Registry) (*Codec, error) {
	if o.Value == nil {
		return nil, nil
	}
	rt := reflect.TypeOf(o.Value)
	if !o.TypeID.IsNull() {
		if c, ok := r.Lookup(o.TypeID); ok && c.accepts(rt) {
			return c, nil
		}
	}
	if c, ok := r.LookupType(rt); ok {
		return c, nil
	}
	return nil, fmt.Errorf("%w: %T (type id %s)", ErrUnregisteredType, o.Value, o.TypeID)
}

// checkRaw validates an object that carries raw bytes.
func (o *ExtensionObject) checkRaw() error {
	switch o.Encoding {
	case ExtensionObjectNone:
		if len(o.Body) != 0 {
			return fmt.Errorf("%w: body without encoding", ErrInvalidValue)
		}
	case ExtensionObjectBinary, ExtensionObjectXML:
	default:
		return fmt.Errorf("%w: extension object encoding %d", ErrInvalidValue, byte(o.Encoding))
	}
	return nil
}
