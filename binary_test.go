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
	"bytes"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

var testGUID = GUID{
	0x72, 0x96, 0x2B, 0x91, 0xFA, 0x75, 0x4A, 0xE6,
	0x8D, 0x28, 0xB4, 0x04, 0xDC, 0x7D, 0xAF, 0x63,
}

func TestBinaryVariant(t *testing.T) {
	tests := []struct {
		name string
		v    Variant
		raw  []byte
	}{
		{"null", Variant{}, []byte{0x00}},
		{"boolean", MustVariant(true), []byte{0x01, 0x01}},
		{"sbyte", MustVariant(int8(-1)), []byte{0x02, 0xFF}},
		{"byte", MustVariant(uint8(0x42)), []byte{0x03, 0x42}},
		{"int16", MustVariant(int16(-2)), []byte{0x04, 0xFE, 0xFF}},
		{"uint16", MustVariant(uint16(0x1234)), []byte{0x05, 0x34, 0x12}},
		{"int32", MustVariant(int32(-2)), []byte{0x06, 0xFE, 0xFF, 0xFF, 0xFF}},
		{"uint32", MustVariant(uint32(0x01020304)), []byte{0x07, 0x04, 0x03, 0x02, 0x01}},
		{"int64", MustVariant(int64(1)), []byte{0x08, 0x01, 0, 0, 0, 0, 0, 0, 0}},
		{"uint64", MustVariant(uint64(math.MaxUint64)), []byte{0x09, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}},
		{"float", MustVariant(float32(1)), []byte{0x0A, 0x00, 0x00, 0x80, 0x3F}},
		{"double", MustVariant(1.0), []byte{0x0B, 0, 0, 0, 0, 0, 0, 0xF0, 0x3F}},
		{"double nan", MustVariant(math.NaN()), []byte{0x0B, 0x01, 0, 0, 0, 0, 0, 0xF8, 0x7F}},
		{"string", MustVariant("abc"), []byte{0x0C, 0x03, 0, 0, 0, 'a', 'b', 'c'}},
		{"empty string", Variant{Type: TypeString, Value: ""}, []byte{0x0C, 0, 0, 0, 0}},
		{"null string", Variant{Type: TypeString}, []byte{0x0C, 0xFF, 0xFF, 0xFF, 0xFF}},
		{
			"datetime unix epoch",
			MustVariant(time.Unix(0, 0).UTC()),
			[]byte{0x0D, 0x00, 0x80, 0x3E, 0xD5, 0xDE, 0xB1, 0x9D, 0x01},
		},
		{"datetime zero", MustVariant(time.Time{}), []byte{0x0D, 0, 0, 0, 0, 0, 0, 0, 0}},
		{
			"guid",
			MustVariant(testGUID),
			[]byte{
				0x0E,
				0x91, 0x2B, 0x96, 0x72, 0x75, 0xFA, 0xE6, 0x4A,
				0x8D, 0x28, 0xB4, 0x04, 0xDC, 0x7D, 0xAF, 0x63,
			},
		},
		{"bytestring", MustVariant([]byte{0xCA, 0xFE}), []byte{0x0F, 0x02, 0, 0, 0, 0xCA, 0xFE}},
		{"null bytestring", Variant{Type: TypeByteString, Value: []byte(nil)}, []byte{0x0F, 0xFF, 0xFF, 0xFF, 0xFF}},
		{"xml element", MustVariant(XMLElement("<a/>")), []byte{0x10, 0x04, 0, 0, 0, '<', 'a', '/', '>'}},
		{"node id", MustVariant(NewNumericNodeID(0, 85)), []byte{0x11, 0x00, 0x55}},
		{
			"expanded node id",
			MustVariant(ExpandedNodeID{NodeID: NewNumericNodeID(0, 13), NamespaceURI: "urn:x", ServerIndex: 2}),
			[]byte{0x12, 0xC0, 0x0D, 0x05, 0, 0, 0, 'u', 'r', 'n', ':', 'x', 0x02, 0, 0, 0},
		},
		{"status code", MustVariant(StatusBadDecodingError), []byte{0x13, 0x00, 0x00, 0x07, 0x80}},
		{"qualified name", MustVariant(QualifiedName{NamespaceIndex: 1, Name: "x"}), []byte{0x14, 0x01, 0x00, 0x01, 0, 0, 0, 'x'}},
		{
			"localized text",
			MustVariant(LocalizedText{Locale: "en", Text: "hi"}),
			[]byte{0x15, 0x03, 0x02, 0, 0, 0, 'e', 'n', 0x02, 0, 0, 0, 'h', 'i'},
		},
		{"empty localized text", MustVariant(LocalizedText{}), []byte{0x15, 0x00}},
		{
			"data value",
			MustVariant(NewDataValue(MustVariant(int32(7))).WithStatus(StatusGood)),
			[]byte{0x17, 0x03, 0x06, 0x07, 0, 0, 0, 0, 0, 0, 0},
		},
		{"empty diagnostic info", MustVariant(&DiagnosticInfo{}), []byte{0x19, 0x00}},
		{
			"int32 array",
			MustVariant([]int32{1, 2}),
			[]byte{0x86, 0x02, 0, 0, 0, 0x01, 0, 0, 0, 0x02, 0, 0, 0},
		},
		{"empty array", MustVariant([]int32{}), []byte{0x86, 0, 0, 0, 0}},
		{"null array", Variant{Type: TypeInt32, Value: []int32(nil), IsArray: true}, []byte{0x86, 0xFF, 0xFF, 0xFF, 0xFF}},
		{
			"string array",
			MustVariant([]string{"a", ""}),
			[]byte{0x8C, 0x02, 0, 0, 0, 0x01, 0, 0, 0, 'a', 0, 0, 0, 0},
		},
		{
			"variant array",
			MustVariant([]Variant{MustVariant(true), {}}),
			[]byte{0x98, 0x02, 0, 0, 0, 0x01, 0x01, 0x00},
		},
		{
			"matrix",
			func() Variant {
				v, err := NewMatrixVariant([]uint8{1, 2, 3, 4, 5, 6}, 2, 3)
				if err != nil {
					t.Fatal(err)
				}
				return v
			}(),
			[]byte{
				0xC3,
				0x06, 0, 0, 0, 1, 2, 3, 4, 5, 6,
				0x02, 0, 0, 0, 0x02, 0, 0, 0, 0x03, 0, 0, 0,
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := encodeVariant(t, tc.v)
			if !bytes.Equal(got, tc.raw) {
				t.Fatalf("encode mismatch:\n got % X\nwant % X", got, tc.raw)
			}
			back, rest, err := decodeVariant(tc.raw)
			if err != nil {
				t.Fatalf("decode % X: %v", tc.raw, err)
			}
			if rest != 0 {
				t.Errorf("decode left %d bytes", rest)
			}
			if diff := cmp.Diff(tc.v, back, cmpValues); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBinaryNodeID(t *testing.T) {
	tests := []struct {
		in  string
		raw []byte
	}{
		{"i=13", []byte{0x00, 0x0D}},
		{"i=255", []byte{0x00, 0xFF}},
		{"i=256", []byte{0x01, 0x00, 0x00, 0x01}},
		{"ns=1;i=1025", []byte{0x01, 0x01, 0x01, 0x04}},
		{"ns=255;i=65535", []byte{0x01, 0xFF, 0xFF, 0xFF}},
		{"ns=2;i=70000", []byte{0x02, 0x02, 0x00, 0x70, 0x11, 0x01, 0x00}},
		{"ns=300;i=5", []byte{0x02, 0x2C, 0x01, 0x05, 0x00, 0x00, 0x00}},
		{"ns=1;s=Hot", []byte{0x03, 0x01, 0x00, 0x03, 0x00, 0x00, 0x00, 'H', 'o', 't'}},
		{
			"g=72962B91-FA75-4AE6-8D28-B404DC7DAF63",
			[]byte{
				0x04, 0x00, 0x00,
				0x91, 0x2B, 0x96, 0x72, 0x75, 0xFA, 0xE6, 0x4A,
				0x8D, 0x28, 0xB4, 0x04, 0xDC, 0x7D, 0xAF, 0x63,
			},
		},
		{"ns=1;b=qg==", []byte{0x05, 0x01, 0x00, 0x01, 0x00, 0x00, 0x00, 0xAA}},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			id := mustNodeID(t, tc.in)
			e := NewBinaryEncoder()
			if err := e.WriteNodeID("NodeId", id); err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(e.Bytes(), tc.raw) {
				t.Fatalf("encode mismatch:\n got % X\nwant % X", e.Bytes(), tc.raw)
			}
			d := NewBinaryDecoder(tc.raw)
			got, err := d.ReadNodeID("NodeId")
			if err != nil {
				t.Fatal(err)
			}
			if !got.Equal(id) {
				t.Errorf("got %s, want %s", got, id)
			}
		})
	}
}

func TestBinaryNodeIDRejectsFlags(t *testing.T) {
	for _, raw := range [][]byte{
		{0x80, 0x0D},       // expanded flags on a plain NodeId
		{0x40, 0x0D},       // server index flag
		{0x06, 0x00, 0x00}, // unknown format
	} {
		d := NewBinaryDecoder(raw)
		if _, err := d.ReadNodeID("NodeId"); !errors.Is(err, ErrInvalidEncoding) {
			t.Errorf("ReadNodeID(% X): got %v, want ErrInvalidEncoding", raw, err)
		}
	}
}

func TestBinaryPrimitiveBoundaries(t *testing.T) {
	e := NewBinaryEncoder()
	e.WriteInt8("", math.MinInt8)
	e.WriteInt16("", math.MinInt16)
	e.WriteInt32("", math.MinInt32)
	e.WriteInt64("", math.MinInt64)
	e.WriteUInt16("", math.MaxUint16)
	e.WriteUInt32("", math.MaxUint32)
	e.WriteFloat("", float32(math.Inf(-1)))
	e.WriteDouble("", math.Inf(1))
	e.WriteDateTime("", MaxDateTime.Add(time.Hour))
	e.WriteDateTime("", time.Date(1500, 1, 1, 0, 0, 0, 0, time.UTC))
	if err := e.Err(); err != nil {
		t.Fatal(err)
	}

	d := NewBinaryDecoder(e.Bytes())
	type row struct {
		I8  int8
		I16 int16
		I32 int32
		I64 int64
		U16 uint16
		U32 uint32
		F   float32
		D   float64
		Max time.Time
		Min time.Time
	}
	var got row
	got.I8, _ = d.ReadInt8("")
	got.I16, _ = d.ReadInt16("")
	got.I32, _ = d.ReadInt32("")
	got.I64, _ = d.ReadInt64("")
	got.U16, _ = d.ReadUInt16("")
	got.U32, _ = d.ReadUInt32("")
	got.F, _ = d.ReadFloat("")
	got.D, _ = d.ReadDouble("")
	got.Max, _ = d.ReadDateTime("")
	got.Min, _ = d.ReadDateTime("")
	if err := d.Err(); err != nil {
		t.Fatal(err)
	}
	want := row{
		I8:  math.MinInt8,
		I16: math.MinInt16,
		I32: math.MinInt32,
		I64: math.MinInt64,
		U16: math.MaxUint16,
		U32: math.MaxUint32,
		F:   float32(math.Inf(-1)),
		D:   math.Inf(1),
		Max: MaxDateTime,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	if d.Remaining() != 0 {
		t.Errorf("%d bytes left", d.Remaining())
	}
}

func TestBinaryBooleanNonZero(t *testing.T) {
	d := NewBinaryDecoder([]byte{0x02})
	b, err := d.ReadBoolean("")
	if err != nil || !b {
		t.Errorf("ReadBoolean(0x02) = %v, %v; want true", b, err)
	}
	e := NewBinaryEncoder()
	e.WriteBoolean("", b)
	if !bytes.Equal(e.Bytes(), []byte{0x01}) {
		t.Errorf("true encodes as % X", e.Bytes())
	}
}

func TestBinaryStringLengths(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
		want error
	}{
		{"negative length", []byte{0xFE, 0xFF, 0xFF, 0xFF}, ErrInvalidLength},
		{"longer than input", []byte{0x05, 0, 0, 0, 'a'}, ErrTruncated},
		{"over limit", []byte{0x00, 0x00, 0x00, 0x02}, ErrLimitExceeded},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := NewBinaryDecoder(tc.raw)
			_, err := d.ReadString("Name")
			if !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
			var ce *CodecError
			if !errors.As(err, &ce) || ce.Op != OpDecode || ce.Field != "Name" {
				t.Errorf("error %#v does not carry the decode context", err)
			}
		})
	}

	d := NewBinaryDecoder([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF})
	if s, err := d.ReadNullableString(""); err != nil || s != nil {
		t.Errorf("ReadNullableString(null) = %v, %v", s, err)
	}
	if b, err := d.ReadByteString(""); err != nil || b != nil {
		t.Errorf("ReadByteString(null) = %v, %v", b, err)
	}
}

func TestBinaryVariantInvalid(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
		want error
	}{
		{"type out of range", []byte{0x1A}, ErrInvalidEncoding},
		{"dimensions without array", []byte{0x46}, ErrInvalidEncoding},
		{"null with flags", []byte{0x80}, ErrInvalidEncoding},
		{"scalar variant", []byte{0x18, 0x00}, ErrInvalidEncoding},
		{"negative array length", []byte{0x86, 0xFE, 0xFF, 0xFF, 0xFF}, ErrInvalidLength},
		{"array longer than input", []byte{0x86, 0x10, 0, 0, 0, 0x01, 0, 0, 0}, ErrTruncated},
		{"huge array", []byte{0x81, 0xFF, 0xFF, 0xFF, 0x7F}, ErrLimitExceeded},
		{
			"dimensions disagree",
			[]byte{0xC3, 0x02, 0, 0, 0, 1, 2, 0x01, 0, 0, 0, 0x03, 0, 0, 0},
			ErrDimensionMismatch,
		},
		{
			"null dimensions",
			[]byte{0xC3, 0x01, 0, 0, 0, 1, 0xFF, 0xFF, 0xFF, 0xFF},
			ErrDimensionMismatch,
		},
		{"bad extension object encoding", []byte{0x16, 0x00, 0x00, 0x03}, ErrInvalidEncoding},
		{"data value mask", []byte{0x17, 0x40}, ErrInvalidEncoding},
		{"diagnostic info mask", []byte{0x19, 0x80}, ErrInvalidEncoding},
		{"localized text mask", []byte{0x15, 0x04}, ErrInvalidEncoding},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := decodeVariant(tc.raw)
			if !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
			if !IsDecodingError(err) {
				t.Errorf("%v is not a decoding error", err)
			}
		})
	}
}

func TestBinaryVariantEncodeErrors(t *testing.T) {
	tests := []struct {
		name string
		v    Variant
		want error
	}{
		{"type mismatch", Variant{Type: TypeInt32, Value: "x"}, ErrTypeMismatch},
		{"array type mismatch", Variant{Type: TypeInt32, Value: []int64{1}, IsArray: true}, ErrTypeMismatch},
		{"dimension mismatch", Variant{Type: TypeByte, Value: []uint8{1, 2, 3}, IsArray: true, Dimensions: []int32{2, 2}}, ErrDimensionMismatch},
		{"scalar dimensions", Variant{Type: TypeByte, Value: uint8(1), Dimensions: []int32{1}}, ErrDimensionMismatch},
		{"nil int32", Variant{Type: TypeInt32}, ErrInvalidValue},
		{"scalar variant", Variant{Type: TypeVariant, Value: Variant{}}, ErrInvalidValue},
		{"unknown type", Variant{Type: 30, Value: 1}, ErrInvalidValue},
		{"null with value", Variant{Value: int32(1)}, ErrInvalidValue},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := NewBinaryEncoder()
			e.WriteUInt8("", 0xAB)
			err := e.WriteVariant("Value", tc.v)
			if !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
			if !IsEncodingError(err) {
				t.Errorf("%v is not an encoding error", err)
			}
			if !bytes.Equal(e.Bytes(), []byte{0xAB}) {
				t.Errorf("failed write left % X in the buffer", e.Bytes())
			}
			if err := e.WriteBoolean("", true); err == nil {
				t.Error("encoder accepted a write after a failure")
			}
		})
	}
}

func TestBinaryEncoderRollback(t *testing.T) {
	// The DataValue fails on its nested Variant after the mask was written.
	dv := &DataValue{Value: &Variant{Type: TypeInt32, Value: int16(1)}}
	e := NewBinaryEncoder()
	e.WriteUInt8("", 0x01)
	err := e.WriteDataValue("Value", dv)
	if !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("got %v, want ErrTypeMismatch", err)
	}
	if !bytes.Equal(e.Bytes(), []byte{0x01}) {
		t.Errorf("buffer holds % X after rollback", e.Bytes())
	}
}

func TestBinaryDataValue(t *testing.T) {
	src := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	srv := src.Add(time.Second)
	dv := &DataValue{
		Value:             ptr(MustVariant(uint8(9))),
		StatusCode:        ptr(StatusBadDecodingError),
		SourceTimestamp:   &src,
		SourcePicoseconds: ptr(uint16(10)),
		ServerTimestamp:   &srv,
		ServerPicoseconds: ptr(uint16(20)),
	}
	if got := dv.EncodingMask(); got != 0x3F {
		t.Fatalf("EncodingMask = 0x%02X, want 0x3F", got)
	}

	e := NewBinaryEncoder()
	if err := e.WriteDataValue("Value", dv); err != nil {
		t.Fatal(err)
	}
	srcTicks := e.Bytes()[7:15]
	srvTicks := e.Bytes()[17:25]
	want := []byte{0x3F, 0x03, 0x09, 0x00, 0x00, 0x07, 0x80}
	want = append(want, srcTicks...)
	want = append(want, 0x0A, 0x00)
	want = append(want, srvTicks...)
	want = append(want, 0x14, 0x00)
	if !bytes.Equal(e.Bytes(), want) {
		t.Fatalf("field order mismatch:\n got % X\nwant % X", e.Bytes(), want)
	}

	d := NewBinaryDecoder(e.Bytes())
	got, err := d.ReadDataValue("Value")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(dv, got, cmpValues); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	// A nil DataValue is an empty one.
	e = NewBinaryEncoder()
	if err := e.WriteDataValue("Value", nil); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(e.Bytes(), []byte{0x00}) {
		t.Errorf("nil DataValue encodes as % X", e.Bytes())
	}
	empty, err := NewBinaryDecoder([]byte{0x00}).ReadDataValue("Value")
	if err != nil || empty == nil || empty.Status() != StatusGood {
		t.Errorf("empty DataValue = %#v, %v", empty, err)
	}
}

func TestBinaryDiagnosticInfo(t *testing.T) {
	di := &DiagnosticInfo{
		SymbolicID:      ptr(int32(1)),
		NamespaceURI:    ptr(int32(2)),
		LocalizedText:   ptr(int32(3)),
		Locale:          ptr(int32(4)),
		AdditionalInfo:  ptr("info"),
		InnerStatusCode: ptr(StatusBadEncodingError),
		InnerDiagnosticInfo: &DiagnosticInfo{
			AdditionalInfo: ptr(""),
		},
	}
	e := NewBinaryEncoder()
	if err := e.WriteDiagnosticInfo("Info", di); err != nil {
		t.Fatal(err)
	}
	want := []byte{
		0x7F,
		0x01, 0, 0, 0, // symbolic id
		0x02, 0, 0, 0, // namespace uri
		0x04, 0, 0, 0, // locale
		0x03, 0, 0, 0, // localized text
		0x04, 0, 0, 0, 'i', 'n', 'f', 'o',
		0x00, 0x00, 0x06, 0x80,
		0x10, 0x00, 0x00, 0x00, 0x00,
	}
	if !bytes.Equal(e.Bytes(), want) {
		t.Fatalf("encode mismatch:\n got % X\nwant % X", e.Bytes(), want)
	}
	got, err := NewBinaryDecoder(want).ReadDiagnosticInfo("Info")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(di, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestBinaryDiagnosticInfoDepth(t *testing.T) {
	chain := func(n int) []byte {
		raw := bytes.Repeat([]byte{DiagnosticInfoInnerDiagnosticInfo}, n-1)
		return append(raw, 0x00)
	}

	di, err := NewBinaryDecoder(chain(DefaultMaxRecursionDepth)).ReadDiagnosticInfo("Info")
	if err != nil {
		t.Fatalf("chain at the limit: %v", err)
	}
	if di.Depth() != DefaultMaxRecursionDepth {
		t.Errorf("Depth = %d, want %d", di.Depth(), DefaultMaxRecursionDepth)
	}

	_, err = NewBinaryDecoder(chain(DefaultMaxRecursionDepth + 1)).ReadDiagnosticInfo("Info")
	if !errors.Is(err, ErrDepthExceeded) {
		t.Fatalf("chain over the limit: got %v, want ErrDepthExceeded", err)
	}
	if !IsStatusCode(err, StatusBadEncodingLimitsExceeded) {
		t.Errorf("status of %v is not BadEncodingLimitsExceeded", err)
	}

	_, err = NewBinaryDecoder(chain(5), WithMaxRecursionDepth(4)).ReadDiagnosticInfo("Info")
	if !IsLimitError(err) {
		t.Errorf("custom limit: got %v", err)
	}
}

func TestBinaryNestedVariantDepth(t *testing.T) {
	// Each level is a one-element array of Variant.
	var raw []byte
	for range DefaultMaxRecursionDepth {
		raw = append(raw, 0x98, 0x01, 0, 0, 0)
	}
	raw = append(raw, 0x00)
	if _, _, err := decodeVariant(raw); !errors.Is(err, ErrDepthExceeded) {
		t.Fatalf("got %v, want ErrDepthExceeded", err)
	}

	v := Variant{}
	for range DefaultMaxRecursionDepth - 1 {
		v = Variant{Type: TypeVariant, Value: []Variant{v}, IsArray: true}
	}
	encoded := encodeVariant(t, v)
	back, _, err := decodeVariant(encoded)
	if err != nil {
		t.Fatal(err)
	}
	// A deep diff of the nested arrays is exponential; compare the wire form.
	if got := encodeVariant(t, back); !bytes.Equal(got, encoded) {
		t.Errorf("re-encoded % X, want % X", got, encoded)
	}
	if back.Type != TypeVariant || !back.IsArray {
		t.Errorf("outer Variant = %v array=%v", back.Type, back.IsArray)
	}
}

func TestBinaryArrayLimits(t *testing.T) {
	v := MustVariant([]bool{true, false, true})

	e := NewBinaryEncoder(WithMaxArrayLength(2))
	if err := e.WriteVariant("Value", v); !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("encode: got %v, want ErrLimitExceeded", err)
	}
	raw := encodeVariant(t, v)
	if _, _, err := decodeVariant(raw, WithMaxArrayLength(2)); !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("decode: got %v, want ErrLimitExceeded", err)
	}

	e = NewBinaryEncoder(WithMaxStringLength(2))
	if err := e.WriteString("", "abc"); !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("string: got %v, want ErrLimitExceeded", err)
	}
}

func TestBinaryTruncation(t *testing.T) {
	lt := LocalizedText{Locale: "de", Text: "Pumpe"}
	dv := NewDataValue(MustVariant([]float64{1.5, -2})).
		WithStatus(StatusGood).
		WithSourceTimestamp(time.Date(2023, 1, 2, 3, 4, 5, 600, time.UTC))
	values := []Variant{
		MustVariant(lt),
		MustVariant(dv),
		MustVariant([]string{"a", "bc"}),
		MustVariant(NewStringNodeID(3, "Motor.Speed")),
		MustVariant(ExpandedNodeID{NodeID: NewNumericNodeID(1, 7), NamespaceURI: "urn:a", ServerIndex: 1}),
		MustVariant(&ExtensionObject{TypeID: NewNumericNodeID(5, 9000), Encoding: ExtensionObjectBinary, Body: []byte{1, 2, 3}}),
		MustVariant(&Range{Low: -1, High: 1}),
		MustVariant(&DiagnosticInfo{AdditionalInfo: ptr("x"), InnerDiagnosticInfo: &DiagnosticInfo{SymbolicID: ptr(int32(3))}}),
	}
	for _, v := range values {
		raw := encodeVariant(t, v)
		for i := range len(raw) {
			_, _, err := decodeVariant(raw[:i])
			if !errors.Is(err, ErrTruncated) {
				t.Errorf("%v cut at %d of %d: got %v, want ErrTruncated", v.Type, i, len(raw), err)
			}
		}
	}
}

func TestBinaryExtensionObjectUnknown(t *testing.T) {
	raw := []byte{
		0x16,
		// TypeId ns=5;i=9000 in the full four-byte numeric form a compact
		// encoder would not choose.
		0x02, 0x05, 0x00, 0x28, 0x23, 0x00, 0x00,
		0x01,
		0x03, 0x00, 0x00, 0x00, 0xDE, 0xAD, 0x00,
	}
	v, rest, err := decodeVariant(raw)
	if err != nil {
		t.Fatal(err)
	}
	if rest != 0 {
		t.Errorf("%d bytes left", rest)
	}
	o := v.Value.(*ExtensionObject)
	want := &ExtensionObject{
		TypeID:   NewNumericNodeID(5, 9000),
		Encoding: ExtensionObjectBinary,
		Body:     []byte{0xDE, 0xAD, 0x00},
	}
	if diff := cmp.Diff(want, o, cmpValues); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
	if o.IsDecoded() {
		t.Error("unknown body reported as decoded")
	}
	if got := encodeVariant(t, v); !bytes.Equal(got, raw) {
		t.Errorf("re-encode mismatch:\n got % X\nwant % X", got, raw)
	}

	// Changing the type id drops the original bytes.
	o.TypeID = NewNumericNodeID(5, 9001)
	got := encodeVariant(t, v)
	if !bytes.Equal(got[1:5], []byte{0x01, 0x05, 0x29, 0x23}) {
		t.Errorf("edited type id encodes as % X", got[1:5])
	}
}

func TestBinaryExtensionObjectEmpty(t *testing.T) {
	raw := []byte{0x16, 0x00, 0x00, 0x00}
	if got := encodeVariant(t, Variant{Type: TypeExtensionObject}); !bytes.Equal(got, raw) {
		t.Fatalf("nil object encodes as % X", got)
	}
	v, _, err := decodeVariant(raw)
	if err != nil {
		t.Fatal(err)
	}
	o := v.Value.(*ExtensionObject)
	if !o.TypeID.IsNull() || o.Encoding != ExtensionObjectNone || o.Body != nil {
		t.Errorf("decoded %#v", o)
	}
}

func TestBinaryExtensionObjectKnown(t *testing.T) {
	r := testRegistry(t)
	v := MustVariant(&testRange{Lo: -5, Hi: 300})
	raw := encodeVariant(t, v, WithRegistry(r))
	want := []byte{
		0x16,
		0x01, 0x02, 0x65, 0x00, // ns=2;i=101
		0x01,
		0x08, 0x00, 0x00, 0x00,
		0xFB, 0xFF, 0xFF, 0xFF,
		0x2C, 0x01, 0x00, 0x00,
	}
	if !bytes.Equal(raw, want) {
		t.Fatalf("encode mismatch:\n got % X\nwant % X", raw, want)
	}

	back, _, err := decodeVariant(raw, WithRegistry(r))
	if err != nil {
		t.Fatal(err)
	}
	o := back.Value.(*ExtensionObject)
	if diff := cmp.Diff(&testRange{Lo: -5, Hi: 300}, o.Value); diff != "" {
		t.Errorf("value mismatch (-want +got):\n%s", diff)
	}
	if o.Body != nil || !o.TypeID.Equal(NewNumericNodeID(2, 101)) {
		t.Errorf("decoded object %#v", o)
	}

	// The same bytes stay opaque to a registry that does not know the type.
	back, _, err = decodeVariant(raw, WithRegistry(newEmptyRegistry()))
	if err != nil {
		t.Fatal(err)
	}
	if o := back.Value.(*ExtensionObject); o.IsDecoded() || len(o.Body) != 8 {
		t.Errorf("unknown registry decoded %#v", o)
	}

	// A body too short for its codec fails the whole decode.
	short := append([]byte(nil), want...)
	short[6] = 0x04
	short = short[:14]
	if _, _, err := decodeVariant(short, WithRegistry(r)); !errors.Is(err, ErrTruncated) {
		t.Errorf("short body: got %v, want ErrTruncated", err)
	}

	// Encoding a structure nobody registered fails.
	e := NewBinaryEncoder(WithRegistry(newEmptyRegistry()))
	err = e.WriteVariant("Value", v)
	if !errors.Is(err, ErrUnregisteredType) || !IsStatusCode(err, StatusBadDataTypeIdUnknown) {
		t.Errorf("unregistered: got %v", err)
	}
}

func TestBinaryExtensionObjectTrailingBytes(t *testing.T) {
	r := testRegistry(t)
	raw := []byte{
		0x16,
		0x01, 0x02, 0x65, 0x00,
		0x01,
		0x09, 0x00, 0x00, 0x00,
		0x01, 0x00, 0x00, 0x00,
		0x02, 0x00, 0x00, 0x00,
		0xFF,
	}
	v, rest, err := decodeVariant(raw, WithRegistry(r))
	if err != nil {
		t.Fatal(err)
	}
	if rest != 0 {
		t.Errorf("%d bytes left", rest)
	}
	if diff := cmp.Diff(&testRange{Lo: 1, Hi: 2}, v.Value.(*ExtensionObject).Value); diff != "" {
		t.Errorf("value mismatch (-want +got):\n%s", diff)
	}
}

func TestBinaryStruct(t *testing.T) {
	r := testRegistry(t)
	e := NewBinaryEncoder(WithRegistry(r))
	if err := e.WriteStruct("Range", testRange{Lo: 1, Hi: 2}); err != nil {
		t.Fatal(err)
	}
	want := []byte{0x01, 0, 0, 0, 0x02, 0, 0, 0}
	if !bytes.Equal(e.Bytes(), want) {
		t.Fatalf("got % X, want % X", e.Bytes(), want)
	}
	d := NewBinaryDecoder(want, WithRegistry(r))
	got, err := d.ReadStruct("Range", NewNumericNodeID(2, 100))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(&testRange{Lo: 1, Hi: 2}, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	if _, err := NewBinaryDecoder(want, WithRegistry(r)).ReadStruct("Range", NewNumericNodeID(2, 999)); !errors.Is(err, ErrUnregisteredType) {
		t.Errorf("unknown struct: got %v", err)
	}
}

func TestBinaryArrayHelpers(t *testing.T) {
	e := NewBinaryEncoder()
	WriteArray(e, "Values", "UInt16", []uint16{1, 2}, Encoder.WriteUInt16)
	WriteArray(e, "Empty", "UInt16", []uint16(nil), Encoder.WriteUInt16)
	if err := e.Err(); err != nil {
		t.Fatal(err)
	}
	want := []byte{0x02, 0, 0, 0, 0x01, 0x00, 0x02, 0x00, 0xFF, 0xFF, 0xFF, 0xFF}
	if !bytes.Equal(e.Bytes(), want) {
		t.Fatalf("got % X, want % X", e.Bytes(), want)
	}

	d := NewBinaryDecoder(want)
	got, err := ReadArray(d, "Values", "UInt16", 2, Decoder.ReadUInt16)
	if err != nil {
		t.Fatal(err)
	}
	null, err := ReadArray(d, "Empty", "UInt16", 2, Decoder.ReadUInt16)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]uint16{1, 2}, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	if null != nil {
		t.Errorf("null array read as %v", null)
	}
}

func FuzzDecodeVariant(f *testing.F) {
	seeds := []Variant{
		{},
		MustVariant(int32(42)),
		MustVariant("hello"),
		MustVariant([]float32{1, 2, 3}),
		MustVariant(LocalizedText{Locale: "en", Text: "x"}),
		MustVariant(NewDataValue(MustVariant(true)).WithStatus(StatusBadDecodingError)),
		MustVariant(&Range{Low: 0, High: 100}),
		MustVariant(ExpandedNodeID{NodeID: NewStringNodeID(1, "a"), ServerIndex: 3}),
	}
	for _, v := range seeds {
		e := NewBinaryEncoder()
		if err := e.WriteVariant("Value", v); err != nil {
			f.Fatal(err)
		}
		f.Add(e.Bytes())
	}
	f.Fuzz(func(t *testing.T, data []byte) {
		v, _, err := decodeVariant(data)
		if err != nil {
			if !IsDecodingError(err) {
				t.Fatalf("decode error %v is not a CodecError", err)
			}
			return
		}
		// The first re-encode normalizes; after that the bytes are stable.
		raw := encodeVariant(t, v)
		again, _, err := decodeVariant(raw)
		if err != nil {
			t.Fatalf("re-decode % X: %v", raw, err)
		}
		if got := encodeVariant(t, again); !bytes.Equal(got, raw) {
			t.Fatalf("unstable encoding:\nfirst  % X\nsecond % X", raw, got)
		}
	})
}

func TestBinaryDataValueSourceTimestampOnly(t *testing.T) {
	epoch := time.Unix(0, 0).UTC()
	dv := NewDataValue(MustVariant(int32(42))).WithSourceTimestamp(epoch)

	e := NewBinaryEncoder()
	if err := e.WriteDataValue("Value", dv); err != nil {
		t.Fatal(err)
	}
	want := []byte{
		0x05,                         // Value | SourceTimestamp
		0x06, 0x2A, 0x00, 0x00, 0x00, // Int32 42
		0x00, 0x80, 0x3E, 0xD5, 0xDE, 0xB1, 0x9D, 0x01, // 1970-01-01
	}
	if !bytes.Equal(e.Bytes(), want) {
		t.Fatalf("encoded % X, want % X", e.Bytes(), want)
	}

	got, err := NewBinaryDecoder(want).ReadDataValue("Value")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(MustVariant(int32(42)), *got.Value); diff != "" {
		t.Errorf("Value mismatch (-want +got):\n%s", diff)
	}
	if got.SourceTimestamp == nil || !got.SourceTimestamp.Equal(epoch) {
		t.Errorf("SourceTimestamp = %v, want %v", got.SourceTimestamp, epoch)
	}
	if got.StatusCode != nil || got.ServerTimestamp != nil ||
		got.SourcePicoseconds != nil || got.ServerPicoseconds != nil {
		t.Errorf("absent fields decoded as present: %+v", got)
	}
}

func TestBinaryWriteArrayRollsBack(t *testing.T) {
	e := NewBinaryEncoder(WithMaxStringLength(3))
	if err := e.WriteUInt8("Lead", 0xAB); err != nil {
		t.Fatal(err)
	}
	err := WriteArray(e, "Names", "String", []string{"ab", "abcd"}, Encoder.WriteString)
	if !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("got %v, want ErrLimitExceeded", err)
	}
	if !bytes.Equal(e.Bytes(), []byte{0xAB}) {
		t.Errorf("buffer after failed array = % X, want AB", e.Bytes())
	}
}
