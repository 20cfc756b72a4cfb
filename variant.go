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
	"math"
	"reflect"
	"time"
)

// Variant encoding byte layout.
const (
	variantTypeMask        byte = 0x3F
	variantArrayDimensions byte = 0x40
	variantArrayValues     byte = 0x80
)

// Variant represents an OPC UA Variant: null, one scalar, a one-dimensional
// array or a multi-dimensional array of a builtin type.
//
// Scalars hold the Go type listed for each builtin type (bool, int8, ...,
// string, time.Time, GUID, []byte, XMLElement, NodeID, ExpandedNodeID,
// StatusCode, QualifiedName, LocalizedText, *ExtensionObject, *DataValue,
// *DiagnosticInfo). Arrays hold a slice of that type and set IsArray; a nil
// slice is the null array. Matrices are arrays with Dimensions set, stored
// flattened with the last index varying fastest.
type Variant struct {
	Type       TypeID
	Value      any
	IsArray    bool
	Dimensions []int32
}

// NewVariant builds a Variant from a Go value, inferring its builtin type.
// Slices become arrays, except []byte which is a ByteString. A pointer to
// any other struct is wrapped in an ExtensionObject.
func NewVariant(v any) (Variant, error) {
	if v == nil {
		return Variant{}, nil
	}
	rt := reflect.TypeOf(v)
	if t, ok := typeOfElem[rt]; ok {
		if t == TypeVariant {
			return Variant{}, fmt.Errorf("%w: a Variant cannot hold a scalar Variant", ErrInvalidValue)
		}
		return Variant{Type: t, Value: v}, nil
	}
	if rt.Kind() == reflect.Slice {
		return NewArrayVariant(v)
	}
	if rt.Kind() == reflect.Pointer && rt.Elem().Kind() == reflect.Struct {
		return Variant{Type: TypeExtensionObject, Value: NewExtensionObject(v)}, nil
	}
	return Variant{}, fmt.Errorf("%w: no builtin type for %T", ErrTypeMismatch, v)
}

// MustVariant is like NewVariant but panics on error.
func MustVariant(v any) Variant {
	vv, err := NewVariant(v)
	if err != nil {
		panic(err)
	}
	return vv
}

// NewArrayVariant builds an array Variant from a slice of a builtin Go type.
// A []byte builds an array of Byte here.
func NewArrayVariant(values any) (Variant, error) {
	rt := reflect.TypeOf(values)
	if rt == nil || rt.Kind() != reflect.Slice {
		return Variant{}, fmt.Errorf("%w: %T is not a slice", ErrTypeMismatch, values)
	}
	t, ok := typeOfElem[rt.Elem()]
	if !ok {
		return Variant{}, fmt.Errorf("%w: no builtin type for %v", ErrTypeMismatch, rt.Elem())
	}
	return Variant{Type: t, Value: values, IsArray: true}, nil
}

// NewMatrixVariant builds a multi-dimensional array Variant from its
// flattened elements and dimensions.
func NewMatrixVariant(values any, dims ...int32) (Variant, error) {
	v, err := NewArrayVariant(values)
	if err != nil {
		return v, err
	}
	v.Dimensions = dims
	if err := v.validate(); err != nil {
		return Variant{}, err
	}
	return v, nil
}

// IsNull reports whether v holds no value.
func (v Variant) IsNull() bool {
	return v.Type == TypeNull
}

// Len returns the number of array elements, -1 for the null array and 0 for
// a scalar.
func (v Variant) Len() int {
	if !v.IsArray {
		return 0
	}
	rv := reflect.ValueOf(v.Value)
	if !rv.IsValid() || rv.IsNil() {
		return -1
	}
	return rv.Len()
}

func (v Variant) encodingByte() byte {
	b := byte(v.Type)
	if v.IsArray {
		b |= variantArrayValues
		if v.Dimensions != nil {
			b |= variantArrayDimensions
		}
	}
	return b
}

// validate checks the caller contract before anything is written.
func (v Variant) validate() error {
	if !v.Type.IsValid() {
		return fmt.Errorf("%w: builtin type %d", ErrInvalidValue, v.Type)
	}
	if v.Type == TypeNull {
		if v.Value != nil || v.IsArray || v.Dimensions != nil {
			return fmt.Errorf("%w: null Variant with a value", ErrInvalidValue)
		}
		return nil
	}
	et := elemTypes[v.Type]
	if !v.IsArray {
		switch {
		case v.Dimensions != nil:
			return fmt.Errorf("%w: dimensions on a scalar", ErrDimensionMismatch)
		case v.Type == TypeVariant:
			return fmt.Errorf("%w: a Variant cannot hold a scalar Variant", ErrInvalidValue)
		case v.Value == nil:
			if nullableTypes.Has(v.Type) {
				return nil
			}
			return fmt.Errorf("%w: nil %v", ErrInvalidValue, v.Type)
		case reflect.TypeOf(v.Value) != et:
			return fmt.Errorf("%w: %T is not %v", ErrTypeMismatch, v.Value, v.Type)
		}
		return nil
	}
	n := -1
	if v.Value != nil {
		rv := reflect.ValueOf(v.Value)
		if rv.Type() != reflect.SliceOf(et) {
			return fmt.Errorf("%w: %T is not an array of %v", ErrTypeMismatch, v.Value, v.Type)
		}
		if !rv.IsNil() {
			n = rv.Len()
		}
	}
	if v.Dimensions != nil {
		return checkDimensions(v.Dimensions, n)
	}
	return nil
}

// checkDimensions verifies that dims multiply out to n elements.
func checkDimensions(dims []int32, n int) error {
	if len(dims) == 0 {
		return fmt.Errorf("%w: empty dimensions", ErrDimensionMismatch)
	}
	p := int64(1)
	for _, d := range dims {
		if d < 0 {
			return fmt.Errorf("%w: negative dimension %d", ErrDimensionMismatch, d)
		}
		p *= int64(d)
		if p > math.MaxInt32 {
			p = math.MaxInt32 + 1
		}
	}
	if p != int64(n) {
		return fmt.Errorf("%w: dimensions %v hold %d elements, have %d", ErrDimensionMismatch, dims, p, n)
	}
	return nil
}

func box[T any](v T, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	return v, nil
}

func as[T any](v any) (T, error) {
	x, ok := v.(T)
	if !ok && v != nil {
		return x, fmt.Errorf("%w: %T is not %v", ErrTypeMismatch, v, reflect.TypeFor[T]())
	}
	return x, nil
}

// writeValue writes one scalar of builtin type t. It serves both modes: the
// binary encoder ignores field, the XML encoder names the element with it.
func writeValue(e Encoder, field string, t TypeID, v any) error {
	var err error
	switch t {
	case TypeBoolean:
		var x bool
		if x, err = as[bool](v); err == nil {
			return e.WriteBoolean(field, x)
		}
	case TypeSByte:
		var x int8
		if x, err = as[int8](v); err == nil {
			return e.WriteInt8(field, x)
		}
	case TypeByte:
		var x uint8
		if x, err = as[uint8](v); err == nil {
			return e.WriteUInt8(field, x)
		}
	case TypeInt16:
		var x int16
		if x, err = as[int16](v); err == nil {
			return e.WriteInt16(field, x)
		}
	case TypeUInt16:
		var x uint16
		if x, err = as[uint16](v); err == nil {
			return e.WriteUInt16(field, x)
		}
	case TypeInt32:
		var x int32
		if x, err = as[int32](v); err == nil {
			return e.WriteInt32(field, x)
		}
	case TypeUInt32:
		var x uint32
		if x, err = as[uint32](v); err == nil {
			return e.WriteUInt32(field, x)
		}
	case TypeInt64:
		var x int64
		if x, err = as[int64](v); err == nil {
			return e.WriteInt64(field, x)
		}
	case TypeUInt64:
		var x uint64
		if x, err = as[uint64](v); err == nil {
			return e.WriteUInt64(field, x)
		}
	case TypeFloat:
		var x float32
		if x, err = as[float32](v); err == nil {
			return e.WriteFloat(field, x)
		}
	case TypeDouble:
		var x float64
		if x, err = as[float64](v); err == nil {
			return e.WriteDouble(field, x)
		}
	case TypeString:
		if v == nil {
			return e.WriteNullableString(field, nil)
		}
		var x string
		if x, err = as[string](v); err == nil {
			return e.WriteString(field, x)
		}
	case TypeDateTime:
		var x time.Time
		if x, err = as[time.Time](v); err == nil {
			return e.WriteDateTime(field, x)
		}
	case TypeGUID:
		var x GUID
		if x, err = as[GUID](v); err == nil {
			return e.WriteGUID(field, x)
		}
	case TypeByteString:
		var x []byte
		if x, err = as[[]byte](v); err == nil {
			return e.WriteByteString(field, x)
		}
	case TypeXMLElement:
		var x XMLElement
		if x, err = as[XMLElement](v); err == nil {
			return e.WriteXMLElement(field, x)
		}
	case TypeNodeID:
		var x NodeID
		if x, err = as[NodeID](v); err == nil {
			return e.WriteNodeID(field, x)
		}
	case TypeExpandedNodeID:
		var x ExpandedNodeID
		if x, err = as[ExpandedNodeID](v); err == nil {
			return e.WriteExpandedNodeID(field, x)
		}
	case TypeStatusCode:
		var x StatusCode
		if x, err = as[StatusCode](v); err == nil {
			return e.WriteStatusCode(field, x)
		}
	case TypeQualifiedName:
		var x QualifiedName
		if x, err = as[QualifiedName](v); err == nil {
			return e.WriteQualifiedName(field, x)
		}
	case TypeLocalizedText:
		var x LocalizedText
		if x, err = as[LocalizedText](v); err == nil {
			return e.WriteLocalizedText(field, x)
		}
	case TypeExtensionObject:
		var x *ExtensionObject
		if x, err = as[*ExtensionObject](v); err == nil {
			return e.WriteExtensionObject(field, x)
		}
	case TypeDataValue:
		var x *DataValue
		if x, err = as[*DataValue](v); err == nil {
			return e.WriteDataValue(field, x)
		}
	case TypeVariant:
		var x Variant
		if x, err = as[Variant](v); err == nil {
			return e.WriteVariant(field, x)
		}
	case TypeDiagnosticInfo:
		var x *DiagnosticInfo
		if x, err = as[*DiagnosticInfo](v); err == nil {
			return e.WriteDiagnosticInfo(field, x)
		}
	default:
		err = fmt.Errorf("%w: builtin type %d", ErrInvalidValue, t)
	}
	return err
}

// readValue reads one scalar of builtin type t. A null string reads as nil
// when nullable is set and as "" otherwise.
func readValue(d Decoder, field string, t TypeID, nullable bool) (any, error) {
	switch t {
	case TypeBoolean:
		return box(d.ReadBoolean(field))
	case TypeSByte:
		return box(d.ReadInt8(field))
	case TypeByte:
		return box(d.ReadUInt8(field))
	case TypeInt16:
		return box(d.ReadInt16(field))
	case TypeUInt16:
		return box(d.ReadUInt16(field))
	case TypeInt32:
		return box(d.ReadInt32(field))
	case TypeUInt32:
		return box(d.ReadUInt32(field))
	case TypeInt64:
		return box(d.ReadInt64(field))
	case TypeUInt64:
		return box(d.ReadUInt64(field))
	case TypeFloat:
		return box(d.ReadFloat(field))
	case TypeDouble:
		return box(d.ReadDouble(field))
	case TypeString:
		if !nullable {
			return box(d.ReadString(field))
		}
		s, err := d.ReadNullableString(field)
		if err != nil || s == nil {
			return nil, err
		}
		return *s, nil
	case TypeDateTime:
		return box(d.ReadDateTime(field))
	case TypeGUID:
		return box(d.ReadGUID(field))
	case TypeByteString:
		return box(d.ReadByteString(field))
	case TypeXMLElement:
		return box(d.ReadXMLElement(field))
	case TypeNodeID:
		return box(d.ReadNodeID(field))
	case TypeExpandedNodeID:
		return box(d.ReadExpandedNodeID(field))
	case TypeStatusCode:
		return box(d.ReadStatusCode(field))
	case TypeQualifiedName:
		return box(d.ReadQualifiedName(field))
	case TypeLocalizedText:
		return box(d.ReadLocalizedText(field))
	case TypeExtensionObject:
		return box(d.ReadExtensionObject(field))
	case TypeDataValue:
		return box(d.ReadDataValue(field))
	case TypeVariant:
		return box(d.ReadVariant(field))
	case TypeDiagnosticInfo:
		return box(d.ReadDiagnosticInfo(field))
	default:
		return nil, fmt.Errorf("%w: builtin type %d", ErrInvalidEncoding, t)
	}
}

// writeArrayValues writes the slice held by value as an array named field
// whose elements are named after t.
func writeArrayValues(e Encoder, field string, t TypeID, value any) error {
	rv := reflect.ValueOf(value)
	n := -1
	if rv.IsValid() && !rv.IsNil() {
		n = rv.Len()
	}
	if err := e.BeginArray(field, n); err != nil {
		return err
	}
	name := t.String()
	for i := 0; i < n; i++ {
		if err := writeValue(e, name, t, rv.Index(i).Interface()); err != nil {
			return err
		}
	}
	return e.EndArray()
}

// readArrayValues reads an array of t into a slice of its Go type. The null
// array reads as a typed nil slice.
func readArrayValues(d Decoder, field string, t TypeID) (any, error) {
	n, err := d.BeginArray(field, minBinarySize[t])
	if err != nil {
		return nil, err
	}
	st := reflect.SliceOf(elemTypes[t])
	if n < 0 {
		return reflect.Zero(st).Interface(), d.EndArray()
	}
	s := reflect.MakeSlice(st, n, n)
	name := t.String()
	for i := 0; i < n; i++ {
		v, err := readValue(d, name, t, false)
		if err != nil {
			return nil, err
		}
		if v != nil {
			s.Index(i).Set(reflect.ValueOf(v))
		}
	}
	return s.Interface(), d.EndArray()
}

// readDimensions reads and checks the dimensions that follow a matrix.
func readDimensions(d Decoder, field string, n int) ([]int32, error) {
	dims, err := ReadArray(d, field, "Int32", minBinarySize[TypeInt32], Decoder.ReadInt32)
	if err != nil {
		return nil, err
	}
	if dims == nil {
		return nil, fmt.Errorf("%w: null dimensions", ErrDimensionMismatch)
	}
	if err := checkDimensions(dims, n); err != nil {
		return nil, err
	}
	return dims, nil
}
