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
	"encoding/binary"
	"fmt"
	"math"
	"reflect"
	"time"
)

// Binary NodeId encoding bytes.
const (
	nodeIDTwoByte  byte = 0x00
	nodeIDFourByte byte = 0x01
	nodeIDNumeric  byte = 0x02
	nodeIDString   byte = 0x03
	nodeIDGUID     byte = 0x04
	nodeIDOpaque   byte = 0x05

	nodeIDFormatMask     byte = 0x3F
	expandedNodeIDURI    byte = 0x80
	expandedNodeIDServer byte = 0x40
)

// BinaryEncoder writes the OPC UA binary encoding into a growing buffer.
type BinaryEncoder struct {
	buf   []byte
	opts  *codecOptions
	depth depthGuard
	err   error
}

var _ Encoder = (*BinaryEncoder)(nil)

// NewBinaryEncoder creates a new binary encoder.
func NewBinaryEncoder(opts ...Option) *BinaryEncoder {
	o := buildOptions(opts)
	return &BinaryEncoder{
		buf:   make([]byte, 0, 256),
		opts:  o,
		depth: depthGuard{max: o.limits.MaxRecursionDepth},
	}
}

// Bytes returns the encoded bytes. The slice is valid until the next write
// or Reset.
func (e *BinaryEncoder) Bytes() []byte {
	return e.buf
}

// Len returns the number of bytes written.
func (e *BinaryEncoder) Len() int {
	return len(e.buf)
}

// Reset clears the buffer and any error, keeping the options.
func (e *BinaryEncoder) Reset() {
	e.buf = e.buf[:0]
	e.depth.depth = 0
	e.err = nil
}

// Err returns the first error seen.
func (e *BinaryEncoder) Err() error {
	return e.err
}

func (e *BinaryEncoder) fail(field string, err error) error {
	if e.err == nil {
		e.err = newCodecError(OpEncode, field, len(e.buf), err)
	}
	return e.err
}

// rollback discards everything written after mark and records err.
func (e *BinaryEncoder) rollback(mark int, field string, err error) error {
	err = e.fail(field, err)
	e.buf = e.buf[:mark]
	return err
}

// WriteBoolean writes a boolean value.
func (e *BinaryEncoder) WriteBoolean(_ string, v bool) error {
	if e.err != nil {
		return e.err
	}
	if v {
		e.buf = append(e.buf, 1)
	} else {
		e.buf = append(e.buf, 0)
	}
	return nil
}

// WriteInt8 writes a signed byte value.
func (e *BinaryEncoder) WriteInt8(_ string, v int8) error {
	if e.err != nil {
		return e.err
	}
	e.buf = append(e.buf, byte(v))
	return nil
}

// WriteUInt8 writes a byte value.
func (e *BinaryEncoder) WriteUInt8(_ string, v uint8) error {
	if e.err != nil {
		return e.err
	}
	e.buf = append(e.buf, v)
	return nil
}

// WriteInt16 writes an int16 value.
func (e *BinaryEncoder) WriteInt16(field string, v int16) error {
	return e.WriteUInt16(field, uint16(v))
}

// WriteUInt16 writes a uint16 value.
func (e *BinaryEncoder) WriteUInt16(_ string, v uint16) error {
	if e.err != nil {
		return e.err
	}
	e.buf = binary.LittleEndian.AppendUint16(e.buf, v)
	return nil
}

// WriteInt32 writes an int32 value.
func (e *BinaryEncoder) WriteInt32(field string, v int32) error {
	return e.WriteUInt32(field, uint32(v))
}

// WriteUInt32 writes a uint32 value.
func (e *BinaryEncoder) WriteUInt32(_ string, v uint32) error {
	if e.err != nil {
		return e.err
	}
	e.buf = binary.LittleEndian.AppendUint32(e.buf, v)
	return nil
}

// WriteInt64 writes an int64 value.
func (e *BinaryEncoder) WriteInt64(field string, v int64) error {
	return e.WriteUInt64(field, uint64(v))
}

// WriteUInt64 writes a uint64 value.
func (e *BinaryEncoder) WriteUInt64(_ string, v uint64) error {
	if e.err != nil {
		return e.err
	}
	e.buf = binary.LittleEndian.AppendUint64(e.buf, v)
	return nil
}

// WriteFloat writes a float32 value. NaN payloads are preserved.
func (e *BinaryEncoder) WriteFloat(field string, v float32) error {
	return e.WriteUInt32(field, math.Float32bits(v))
}

// WriteDouble writes a float64 value. NaN payloads are preserved.
func (e *BinaryEncoder) WriteDouble(field string, v float64) error {
	return e.WriteUInt64(field, math.Float64bits(v))
}

func (e *BinaryEncoder) writeLength(field string, n int) error {
	if n > e.opts.limits.MaxStringLength || n > math.MaxInt32 {
		return e.fail(field, fmt.Errorf("%w: length %d", ErrLimitExceeded, n))
	}
	e.buf = binary.LittleEndian.AppendUint32(e.buf, uint32(n))
	return nil
}

// WriteString writes a string value. The empty string is not null.
func (e *BinaryEncoder) WriteString(field string, v string) error {
	if e.err != nil {
		return e.err
	}
	if err := e.writeLength(field, len(v)); err != nil {
		return err
	}
	e.buf = append(e.buf, v...)
	return nil
}

// WriteNullableString writes a string value or, for nil, the null string.
func (e *BinaryEncoder) WriteNullableString(field string, v *string) error {
	if v == nil {
		return e.WriteInt32(field, -1)
	}
	return e.WriteString(field, *v)
}

// WriteDateTime writes a DateTime value, clamped to the representable range.
func (e *BinaryEncoder) WriteDateTime(field string, t time.Time) error {
	return e.WriteInt64(field, dateTimeToTicks(t))
}

// WriteGUID writes a GUID value.
func (e *BinaryEncoder) WriteGUID(_ string, v GUID) error {
	if e.err != nil {
		return e.err
	}
	e.buf = v.appendWire(e.buf)
	return nil
}

// WriteByteString writes a byte string value. A nil slice is the null byte
// string; an empty non-nil slice is the empty byte string.
func (e *BinaryEncoder) WriteByteString(field string, v []byte) error {
	if e.err != nil {
		return e.err
	}
	if v == nil {
		return e.WriteInt32(field, -1)
	}
	if err := e.writeLength(field, len(v)); err != nil {
		return err
	}
	e.buf = append(e.buf, v...)
	return nil
}

// WriteXMLElement writes an XmlElement as a UTF-8 string.
func (e *BinaryEncoder) WriteXMLElement(field string, v XMLElement) error {
	return e.WriteString(field, string(v))
}

// WriteNodeID writes a NodeID in its most compact form.
func (e *BinaryEncoder) WriteNodeID(field string, v NodeID) error {
	if e.err != nil {
		return e.err
	}
	mark := len(e.buf)
	if err := e.writeNodeID(field, v, 0); err != nil {
		return e.rollback(mark, field, err)
	}
	return nil
}

// writeNodeID writes the encoding byte, or'ed with flags, and the body.
func (e *BinaryEncoder) writeNodeID(field string, n NodeID, flags byte) error {
	switch n.Type {
	case NodeIDTypeNumeric:
		switch {
		case n.Namespace == 0 && n.Numeric <= math.MaxUint8:
			e.buf = append(e.buf, nodeIDTwoByte|flags, byte(n.Numeric))
		case n.Namespace <= math.MaxUint8 && n.Numeric <= math.MaxUint16:
			e.buf = append(e.buf, nodeIDFourByte|flags, byte(n.Namespace))
			e.buf = binary.LittleEndian.AppendUint16(e.buf, uint16(n.Numeric))
		default:
			e.buf = append(e.buf, nodeIDNumeric|flags)
			e.buf = binary.LittleEndian.AppendUint16(e.buf, n.Namespace)
			e.buf = binary.LittleEndian.AppendUint32(e.buf, n.Numeric)
		}
		return nil
	case NodeIDTypeString:
		e.buf = append(e.buf, nodeIDString|flags)
		e.buf = binary.LittleEndian.AppendUint16(e.buf, n.Namespace)
		return e.WriteString(field, n.StringID)
	case NodeIDTypeGUID:
		e.buf = append(e.buf, nodeIDGUID|flags)
		e.buf = binary.LittleEndian.AppendUint16(e.buf, n.Namespace)
		e.buf = n.GUID.appendWire(e.buf)
		return nil
	case NodeIDTypeOpaque:
		e.buf = append(e.buf, nodeIDOpaque|flags)
		e.buf = binary.LittleEndian.AppendUint16(e.buf, n.Namespace)
		return e.WriteByteString(field, n.Opaque)
	default:
		return fmt.Errorf("%w: node id type %d", ErrInvalidValue, n.Type)
	}
}

// WriteExpandedNodeID writes an ExpandedNodeID. The namespace URI and
// server index are present on the wire only when non-empty and non-zero.
func (e *BinaryEncoder) WriteExpandedNodeID(field string, v ExpandedNodeID) error {
	if e.err != nil {
		return e.err
	}
	var flags byte
	if v.NamespaceURI != "" {
		flags |= expandedNodeIDURI
	}
	if v.ServerIndex != 0 {
		flags |= expandedNodeIDServer
	}
	mark := len(e.buf)
	if err := e.writeNodeID(field, v.NodeID, flags); err != nil {
		return e.rollback(mark, field, err)
	}
	if v.NamespaceURI != "" {
		if err := e.WriteString(field, v.NamespaceURI); err != nil {
			return e.rollback(mark, field, err)
		}
	}
	if v.ServerIndex != 0 {
		e.buf = binary.LittleEndian.AppendUint32(e.buf, v.ServerIndex)
	}
	return nil
}

// WriteStatusCode writes a StatusCode value.
func (e *BinaryEncoder) WriteStatusCode(field string, v StatusCode) error {
	return e.WriteUInt32(field, uint32(v))
}

// WriteQualifiedName writes a QualifiedName value.
func (e *BinaryEncoder) WriteQualifiedName(field string, v QualifiedName) error {
	return e.composite(field, func() error { return writeQualifiedName(e, field, v) })
}

// WriteLocalizedText writes a LocalizedText value.
func (e *BinaryEncoder) WriteLocalizedText(field string, v LocalizedText) error {
	return e.composite(field, func() error { return writeLocalizedText(e, field, v) })
}

// WriteDataValue writes a DataValue. A nil value is written with no fields.
func (e *BinaryEncoder) WriteDataValue(field string, v *DataValue) error {
	return e.composite(field, func() error { return writeDataValue(e, field, v) })
}

// WriteDiagnosticInfo writes a DiagnosticInfo. A nil value is written with
// no fields.
func (e *BinaryEncoder) WriteDiagnosticInfo(field string, v *DiagnosticInfo) error {
	return e.composite(field, func() error { return writeDiagnosticInfo(e, field, v) })
}

// composite runs fn and discards its partial output if it fails.
func (e *BinaryEncoder) composite(field string, fn func() error) error {
	if e.err != nil {
		return e.err
	}
	mark := len(e.buf)
	if err := fn(); err != nil {
		return e.rollback(mark, field, err)
	}
	return nil
}

// WriteVariant writes a Variant. The value is checked against its declared
// type and dimensions before anything is written.
func (e *BinaryEncoder) WriteVariant(field string, v Variant) error {
	if e.err != nil {
		return e.err
	}
	if err := v.validate(); err != nil {
		return e.fail(field, err)
	}
	if err := e.depth.enter(); err != nil {
		return e.fail(field, err)
	}
	defer e.depth.leave()

	mark := len(e.buf)
	e.buf = append(e.buf, v.encodingByte())
	var err error
	switch {
	case v.Type == TypeNull:
	case !v.IsArray:
		err = writeValue(e, field, v.Type, v.Value)
	default:
		err = writeArrayValues(e, field, v.Type, v.Value)
		if err == nil && v.Dimensions != nil {
			err = WriteArray(e, "Dimensions", "Int32", v.Dimensions, Encoder.WriteInt32)
		}
	}
	if err != nil {
		return e.rollback(mark, field, err)
	}
	return nil
}

// WriteExtensionObject writes an ExtensionObject. A decoded value is
// encoded with its registered codec under the binary encoding id; raw bytes
// are written back as they were read.
func (e *BinaryEncoder) WriteExtensionObject(field string, v *ExtensionObject) error {
	if e.err != nil {
		return e.err
	}
	if v == nil {
		v = &ExtensionObject{}
	}
	if err := e.depth.enter(); err != nil {
		return e.fail(field, err)
	}
	defer e.depth.leave()

	mark := len(e.buf)
	if err := e.writeExtensionObject(field, v); err != nil {
		return e.rollback(mark, field, err)
	}
	return nil
}

func (e *BinaryEncoder) writeExtensionObject(field string, v *ExtensionObject) error {
	c, err := v.resolve(e.opts.registry)
	if err != nil {
		return err
	}
	if c == nil {
		if err := v.checkRaw(); err != nil {
			return err
		}
		if v.rawTypeID != nil && sameNodeID(v.rawTypeID, v.TypeID) {
			e.buf = append(e.buf, v.rawTypeID...)
		} else if err := e.writeNodeID(field, v.TypeID, 0); err != nil {
			return err
		}
		e.buf = append(e.buf, byte(v.Encoding))
		if v.Encoding == ExtensionObjectNone {
			return nil
		}
		return e.WriteByteString(field, v.Body)
	}

	if c.BinaryEncodingID.IsNull() {
		return fmt.Errorf("%w: %s has no binary encoding", ErrUnregisteredType, c.Name)
	}
	if err := e.writeNodeID(field, c.BinaryEncodingID, 0); err != nil {
		return err
	}
	e.buf = append(e.buf, byte(ExtensionObjectBinary))

	// Reserve the length and patch it once the body is known.
	lenAt := len(e.buf)
	e.buf = append(e.buf, 0, 0, 0, 0)
	if err := c.encodeFunc(false)(e, v.Value); err != nil {
		return err
	}
	if e.err != nil {
		return e.err
	}
	n := len(e.buf) - lenAt - 4
	if n > e.opts.limits.MaxStringLength {
		return fmt.Errorf("%w: %s body is %d bytes", ErrLimitExceeded, c.Name, n)
	}
	binary.LittleEndian.PutUint32(e.buf[lenAt:], uint32(n))
	return nil
}

// sameNodeID reports whether raw is a binary encoding of n.
func sameNodeID(raw []byte, n NodeID) bool {
	d := NewBinaryDecoder(raw)
	got, err := d.ReadNodeID("")
	return err == nil && d.Remaining() == 0 && got.Equal(n)
}

// WriteStruct writes v with the codec registered for its Go type. The
// value is written inline, without an ExtensionObject header.
func (e *BinaryEncoder) WriteStruct(field string, v any) error {
	if e.err != nil {
		return e.err
	}
	c, ok := e.opts.registry.LookupType(reflect.TypeOf(v))
	if !ok {
		return e.fail(field, fmt.Errorf("%w: %T", ErrUnregisteredType, v))
	}
	return e.composite(field, func() error {
		if err := e.BeginStruct(field); err != nil {
			return err
		}
		if err := c.encodeFunc(false)(e, v); err != nil {
			return err
		}
		return e.EndStruct()
	})
}

// WriteEncodingMask writes a presence mask byte.
func (e *BinaryEncoder) WriteEncodingMask(mask byte, fields []string) error {
	if e.err != nil {
		return e.err
	}
	if len(fields) < 8 && mask>>len(fields) != 0 {
		return e.fail("EncodingMask", fmt.Errorf("%w: mask 0x%02X", ErrInvalidValue, mask))
	}
	e.buf = append(e.buf, mask)
	return nil
}

// BeginStruct enters a nested structure. Nothing is written.
func (e *BinaryEncoder) BeginStruct(field string) error {
	if e.err != nil {
		return e.err
	}
	if err := e.depth.enter(); err != nil {
		return e.fail(field, err)
	}
	return nil
}

// EndStruct leaves a nested structure.
func (e *BinaryEncoder) EndStruct() error {
	e.depth.leave()
	return e.err
}

// BeginArray writes the array length, -1 for the null array.
func (e *BinaryEncoder) BeginArray(field string, n int) error {
	if e.err != nil {
		return e.err
	}
	if n < 0 {
		return e.WriteInt32(field, -1)
	}
	if n > e.opts.limits.MaxArrayLength || n > math.MaxInt32 {
		return e.fail(field, fmt.Errorf("%w: array of %d elements", ErrLimitExceeded, n))
	}
	return e.WriteInt32(field, int32(n))
}

// EndArray closes an array. Nothing is written.
func (e *BinaryEncoder) EndArray() error {
	return e.err
}
