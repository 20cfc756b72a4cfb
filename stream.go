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

import "time"

// Encoder writes OPC UA values field by field. The binary implementation
// appends to a byte buffer; the XML implementation appends child elements
// to the current element. Field names are ignored in binary mode.
//
// Every method returns the first error the encoder has seen; once a call
// fails, all later calls fail with the same error and write nothing.
type Encoder interface {
	WriteBoolean(field string, v bool) error
	WriteInt8(field string, v int8) error
	WriteUInt8(field string, v uint8) error
	WriteInt16(field string, v int16) error
	WriteUInt16(field string, v uint16) error
	WriteInt32(field string, v int32) error
	WriteUInt32(field string, v uint32) error
	WriteInt64(field string, v int64) error
	WriteUInt64(field string, v uint64) error
	WriteFloat(field string, v float32) error
	WriteDouble(field string, v float64) error

	// WriteString writes a non-null string; "" is written as an empty string.
	WriteString(field string, v string) error
	// WriteNullableString writes a nil pointer as the null string.
	WriteNullableString(field string, v *string) error
	WriteDateTime(field string, v time.Time) error
	WriteGUID(field string, v GUID) error
	// WriteByteString writes a nil slice as the null byte string.
	WriteByteString(field string, v []byte) error
	WriteXMLElement(field string, v XMLElement) error

	WriteNodeID(field string, v NodeID) error
	WriteExpandedNodeID(field string, v ExpandedNodeID) error
	WriteStatusCode(field string, v StatusCode) error
	WriteQualifiedName(field string, v QualifiedName) error
	WriteLocalizedText(field string, v LocalizedText) error
	WriteExtensionObject(field string, v *ExtensionObject) error
	WriteDataValue(field string, v *DataValue) error
	WriteVariant(field string, v Variant) error
	WriteDiagnosticInfo(field string, v *DiagnosticInfo) error

	// WriteStruct writes v with the codec registered for its Go type.
	WriteStruct(field string, v any) error

	// WriteEncodingMask writes the presence mask of a record whose optional
	// fields are named by fields, bit i naming fields[i].
	WriteEncodingMask(mask byte, fields []string) error

	// BeginStruct opens a nested structure named field. It must be paired
	// with EndStruct.
	BeginStruct(field string) error
	EndStruct() error

	// BeginArray opens an array of n elements, or a null array when n < 0.
	// It must be paired with EndArray.
	BeginArray(field string, n int) error
	EndArray() error

	// Err returns the first error seen, if any.
	Err() error
}

// Decoder reads OPC UA values field by field, mirroring Encoder.
type Decoder interface {
	ReadBoolean(field string) (bool, error)
	ReadInt8(field string) (int8, error)
	ReadUInt8(field string) (uint8, error)
	ReadInt16(field string) (int16, error)
	ReadUInt16(field string) (uint16, error)
	ReadInt32(field string) (int32, error)
	ReadUInt32(field string) (uint32, error)
	ReadInt64(field string) (int64, error)
	ReadUInt64(field string) (uint64, error)
	ReadFloat(field string) (float32, error)
	ReadDouble(field string) (float64, error)

	// ReadString reads a string; the null string reads as "".
	ReadString(field string) (string, error)
	// ReadNullableString reads a string; the null string reads as nil.
	ReadNullableString(field string) (*string, error)
	ReadDateTime(field string) (time.Time, error)
	ReadGUID(field string) (GUID, error)
	// ReadByteString reads a byte string; the null byte string reads as nil.
	ReadByteString(field string) ([]byte, error)
	ReadXMLElement(field string) (XMLElement, error)

	ReadNodeID(field string) (NodeID, error)
	ReadExpandedNodeID(field string) (ExpandedNodeID, error)
	ReadStatusCode(field string) (StatusCode, error)
	ReadQualifiedName(field string) (QualifiedName, error)
	ReadLocalizedText(field string) (LocalizedText, error)
	ReadExtensionObject(field string) (*ExtensionObject, error)
	ReadDataValue(field string) (*DataValue, error)
	ReadVariant(field string) (Variant, error)
	ReadDiagnosticInfo(field string) (*DiagnosticInfo, error)

	// ReadStruct reads a structure with the codec registered under typeID.
	ReadStruct(field string, typeID NodeID) (any, error)

	// ReadEncodingMask reads the presence mask of a record whose optional
	// fields are named by fields. Bits beyond len(fields) are an error.
	ReadEncodingMask(fields []string) (byte, error)

	BeginStruct(field string) error
	EndStruct() error

	// BeginArray opens an array and returns its length, or -1 for a null
	// array. minElemSize is the smallest binary size of one element and is
	// used to reject lengths the input cannot hold before allocating.
	BeginArray(field string, minElemSize int) (int, error)
	EndArray() error

	Err() error
}

// WriteArray writes values as an array named field, each element written
// by write under the name elemField. A nil slice is the null array.
func WriteArray[T any](e Encoder, field, elemField string, values []T, write func(Encoder, string, T) error) error {
	n := len(values)
	if values == nil {
		n = -1
	}
	body := func() error {
		if err := e.BeginArray(field, n); err != nil {
			return err
		}
		for _, v := range values {
			if err := write(e, elemField, v); err != nil {
				return err
			}
		}
		return e.EndArray()
	}
	// A failed element must not leave the length and earlier elements behind.
	if c, ok := e.(compositeWriter); ok {
		return c.composite(field, body)
	}
	return body()
}

// compositeWriter is implemented by encoders that can discard the partial
// output of a failed write.
type compositeWriter interface {
	composite(field string, fn func() error) error
}

// ReadArray reads an array named field, each element read by read under the
// name elemField. The null array reads as a nil slice.
func ReadArray[T any](d Decoder, field, elemField string, minElemSize int, read func(Decoder, string) (T, error)) ([]T, error) {
	n, err := d.BeginArray(field, minElemSize)
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, d.EndArray()
	}
	out := make([]T, n)
	for i := range out {
		if out[i], err = read(d, elemField); err != nil {
			return nil, err
		}
	}
	return out, d.EndArray()
}

// EncodeBinary runs fn against a binary encoder and returns the bytes it
// produced. Without options the encoder comes from a shared pool.
func EncodeBinary(fn func(Encoder) error, opts ...Option) ([]byte, error) {
	if len(opts) == 0 {
		return defaultPool.Encode(fn)
	}
	e := NewBinaryEncoder(opts...)
	if err := fn(e); err != nil {
		return nil, err
	}
	if err := e.Err(); err != nil {
		return nil, err
	}
	return e.Bytes(), nil
}

// DecodeBinary runs fn against a binary decoder over data.
func DecodeBinary(data []byte, fn func(Decoder) error, opts ...Option) error {
	d := NewBinaryDecoder(data, opts...)
	if err := fn(d); err != nil {
		return err
	}
	return d.Err()
}

// EncodeXML runs fn against an XML encoder whose root element is named
// root and returns the serialized document.
func EncodeXML(root string, fn func(Encoder) error, opts ...Option) ([]byte, error) {
	e := NewXMLEncoder(root, opts...)
	if err := fn(e); err != nil {
		return nil, err
	}
	return e.Bytes()
}

// DecodeXML parses data and runs fn against a decoder rooted at the
// document element.
func DecodeXML(data []byte, fn func(Decoder) error, opts ...Option) error {
	d, err := NewXMLDecoder(data, opts...)
	if err != nil {
		return err
	}
	if err := fn(d); err != nil {
		return err
	}
	return d.Err()
}

// depthGuard counts nesting and enforces the recursion limit before each
// descent.
type depthGuard struct {
	depth int
	max   int
}

func (g *depthGuard) enter() error {
	if g.depth >= g.max {
		return ErrDepthExceeded
	}
	g.depth++
	return nil
}

func (g *depthGuard) leave() {
	g.depth--
}
