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
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestParseValue(t *testing.T) {
	tests := []struct {
		typ  TypeID
		in   string
		want any
	}{
		{TypeNull, "", nil},
		{TypeBoolean, "true", true},
		{TypeSByte, "-128", int8(-128)},
		{TypeByte, "0xFF", uint8(255)},
		{TypeInt16, "-2", int16(-2)},
		{TypeUInt16, "65535", uint16(65535)},
		{TypeInt32, "42", int32(42)},
		{TypeUInt32, "4294967295", uint32(math.MaxUint32)},
		{TypeInt64, "-9223372036854775808", int64(math.MinInt64)},
		{TypeUInt64, "18446744073709551615", uint64(math.MaxUint64)},
		{TypeFloat, "1.5", float32(1.5)},
		{TypeFloat, "-INF", float32(math.Inf(-1))},
		{TypeDouble, "INF", math.Inf(1)},
		{TypeDouble, "NaN", math.NaN()},
		{TypeString, "a|b:c", "a|b:c"},
		{TypeDateTime, "2024-02-29T23:59:59.5Z", time.Date(2024, 2, 29, 23, 59, 59, 5e8, time.UTC)},
		{TypeGUID, testGUID.String(), testGUID},
		{TypeByteString, "AQID", []byte{1, 2, 3}},
		{TypeXMLElement, "<a/>", XMLElement("<a/>")},
		{TypeNodeID, "ns=2;s=Pump", NewStringNodeID(2, "Pump")},
		{TypeExpandedNodeID, "nsu=urn:a;i=5", ExpandedNodeID{NodeID: NewNumericNodeID(0, 5), NamespaceURI: "urn:a"}},
		{TypeStatusCode, "BadDecodingError", StatusBadDecodingError},
		{TypeStatusCode, "0x80340000", StatusBadNodeIdUnknown},
		{TypeQualifiedName, "2:Speed", QualifiedName{NamespaceIndex: 2, Name: "Speed"}},
		{TypeQualifiedName, "Speed", QualifiedName{Name: "Speed"}},
		{TypeQualifiedName, "a:b", QualifiedName{Name: "a:b"}},
		{TypeLocalizedText, "de|Pumpe", LocalizedText{Locale: "de", Text: "Pumpe"}},
		{TypeLocalizedText, "Pump", NewLocalizedText("Pump")},
	}
	for _, tt := range tests {
		got, err := ParseValue(tt.typ, tt.in)
		if err != nil {
			t.Errorf("ParseValue(%s, %q): %v", tt.typ, tt.in, err)
			continue
		}
		if diff := cmp.Diff(tt.want, got, cmpValues); diff != "" {
			t.Errorf("ParseValue(%s, %q) mismatch (-want +got):\n%s", tt.typ, tt.in, diff)
		}
	}
}

func TestParseValueErrors(t *testing.T) {
	tests := []struct {
		typ TypeID
		in  string
	}{
		{TypeNull, "x"},
		{TypeBoolean, "maybe"},
		{TypeSByte, "128"},
		{TypeByte, "-1"},
		{TypeUInt32, "4294967296"},
		{TypeDouble, "one"},
		{TypeDateTime, "yesterday"},
		{TypeGUID, "not-a-guid"},
		{TypeByteString, "!!"},
		{TypeNodeID, "ns=x;i=1"},
		{TypeStatusCode, "NoSuchStatus"},
		{TypeExtensionObject, ""},
		{TypeDataValue, ""},
		{TypeVariant, ""},
		{TypeDiagnosticInfo, ""},
	}
	for _, tt := range tests {
		if _, err := ParseValue(tt.typ, tt.in); !errors.Is(err, ErrInvalidValue) {
			t.Errorf("ParseValue(%s, %q) error = %v, want ErrInvalidValue", tt.typ, tt.in, err)
		}
	}
}

func TestBuiltinValueRoundTrip(t *testing.T) {
	values := []struct {
		typ TypeID
		v   any
	}{
		{TypeUInt16, uint16(7)},
		{TypeString, "pump"},
		{TypeNodeID, NewNumericNodeID(1, 2)},
		{TypeLocalizedText, LocalizedText{Locale: "en", Text: "x"}},
	}
	for _, tt := range values {
		raw, err := EncodeBinary(func(e Encoder) error {
			return WriteBuiltin(e, "V", tt.typ, tt.v)
		})
		if err != nil {
			t.Fatalf("WriteBuiltin(%s): %v", tt.typ, err)
		}
		var got any
		err = DecodeBinary(raw, func(d Decoder) (err error) {
			got, err = ReadBuiltin(d, "V", tt.typ)
			return err
		})
		if err != nil {
			t.Fatalf("ReadBuiltin(%s): %v", tt.typ, err)
		}
		if diff := cmp.Diff(tt.v, got, cmpValues); diff != "" {
			t.Errorf("%s mismatch (-want +got):\n%s", tt.typ, diff)
		}
	}

	// The null string reads as nil.
	var got any = "unset"
	err := DecodeBinary([]byte{0xFF, 0xFF, 0xFF, 0xFF}, func(d Decoder) (err error) {
		got, err = ReadBuiltin(d, "V", TypeString)
		return err
	})
	if err != nil || got != nil {
		t.Errorf("null string = %#v, %v; want nil", got, err)
	}

	_, err = EncodeBinary(func(e Encoder) error {
		return WriteBuiltin(e, "V", TypeInt32, "not an int")
	})
	if !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("mismatched value error = %v, want ErrTypeMismatch", err)
	}
}
