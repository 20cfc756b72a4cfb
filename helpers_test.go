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
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// cmpValues compares decoded values. ExtensionObject keeps the raw type id
// bytes privately, which callers never see.
var cmpValues = cmp.Options{
	cmpopts.IgnoreUnexported(ExtensionObject{}),
	cmpopts.EquateNaNs(),
}

func ptr[T any](v T) *T {
	return &v
}

func mustNodeID(t *testing.T, s string) NodeID {
	t.Helper()
	n, err := ParseNodeID(s)
	if err != nil {
		t.Fatalf("ParseNodeID(%q): %v", s, err)
	}
	return n
}

func encodeVariant(t *testing.T, v Variant, opts ...Option) []byte {
	t.Helper()
	e := NewBinaryEncoder(opts...)
	if err := e.WriteVariant("Value", v); err != nil {
		t.Fatalf("WriteVariant(%#v): %v", v, err)
	}
	return e.Bytes()
}

func decodeVariant(data []byte, opts ...Option) (Variant, int, error) {
	d := NewBinaryDecoder(data, opts...)
	v, err := d.ReadVariant("Value")
	return v, d.Remaining(), err
}

func encodeXMLVariant(t *testing.T, v Variant, opts ...Option) []byte {
	t.Helper()
	doc, err := EncodeXML("Values", func(e Encoder) error {
		return e.WriteVariant("Value", v)
	}, opts...)
	if err != nil {
		t.Fatalf("EncodeXML(%#v): %v", v, err)
	}
	return doc
}

func decodeXMLVariant(doc []byte, opts ...Option) (v Variant, err error) {
	err = DecodeXML(doc, func(d Decoder) error {
		v, err = d.ReadVariant("Value")
		return err
	}, opts...)
	return v, err
}

// testRange is a small structure registered only in test registries.
type testRange struct {
	Lo, Hi int32
}

func encodeTestRange(e Encoder, v *testRange) error {
	e.WriteInt32("Lo", v.Lo)
	e.WriteInt32("Hi", v.Hi)
	return e.Err()
}

func decodeTestRange(d Decoder, v *testRange) error {
	v.Lo, _ = d.ReadInt32("Lo")
	v.Hi, _ = d.ReadInt32("Hi")
	return d.Err()
}

// testRegistry returns an empty registry holding only testRange under
// ns=2;i=100, with encodings 101 (binary) and 102 (XML).
func testRegistry(t *testing.T) *Registry {
	t.Helper()
	r := newEmptyRegistry()
	err := RegisterStructure(r, "TestRange",
		NewNumericNodeID(2, 100), NewNumericNodeID(2, 101), NewNumericNodeID(2, 102),
		encodeTestRange, decodeTestRange)
	if err != nil {
		t.Fatalf("RegisterStructure: %v", err)
	}
	return r
}
