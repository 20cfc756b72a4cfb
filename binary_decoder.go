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
	"log/slog"
	"math"
	"time"
)

// BinaryDecoder reads the OPC UA binary encoding from a byte slice. It
// never reads past the end of its input and never allocates for a length
// the remaining input cannot hold.
type BinaryDecoder struct {
	data  []byte
	pos   int
	// base is the stream offset of data[0] when d decodes a nested body.
	base  int
	opts  *codecOptions
	depth depthGuard
	err   error
}

var _ Decoder = (*BinaryDecoder)(nil)

// NewBinaryDecoder creates a new decoder over data.
func NewBinaryDecoder(data []byte, opts ...Option) *BinaryDecoder {
	o := buildOptions(opts)
	return &BinaryDecoder{
		data:  data,
		opts:  o,
		depth: depthGuard{max: o.limits.MaxRecursionDepth},
	}
}

// child returns a decoder over the body just read, sharing d's options and
// depth. Its errors report offsets in d's stream.
func (d *BinaryDecoder) child(body []byte) *BinaryDecoder {
	return &BinaryDecoder{
		data:  body,
		base:  d.base + d.pos - len(body),
		opts:  d.opts,
		depth: d.depth,
	}
}

// Remaining returns the number of unread bytes.
func (d *BinaryDecoder) Remaining() int {
	return len(d.data) - d.pos
}

// Offset returns the number of bytes read.
func (d *BinaryDecoder) Offset() int {
	return d.pos
}

// Err returns the first error seen.
func (d *BinaryDecoder) Err() error {
	return d.err
}

func (d *BinaryDecoder) fail(field string, err error) error {
	if d.err == nil {
		d.err = newCodecError(OpDecode, field, d.base+d.pos, err)
	}
	return d.err
}

// next consumes n bytes.
func (d *BinaryDecoder) next(field string, n int) ([]byte, error) {
	if d.err != nil {
		return nil, d.err
	}
	if n > d.Remaining() {
		return nil, d.fail(field, fmt.Errorf("%w: need %d bytes, have %d", ErrTruncated, n, d.Remaining()))
	}
	b := d.data[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

// ReadBoolean reads a boolean value. Any non-zero byte is true.
func (d *BinaryDecoder) ReadBoolean(field string) (bool, error) {
	b, err := d.next(field, 1)
	if err != nil {
		return false, err
	}
	return b[0] != 0, nil
}

// ReadInt8 reads a signed byte value.
func (d *BinaryDecoder) ReadInt8(field string) (int8, error) {
	v, err := d.ReadUInt8(field)
	return int8(v), err
}

// ReadUInt8 reads a byte value.
func (d *BinaryDecoder) ReadUInt8(field string) (uint8, error) {
	b, err := d.next(field, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadInt16 reads an int16 value.
func (d *BinaryDecoder) ReadInt16(field string) (int16, error) {
	v, err := d.ReadUInt16(field)
	return int16(v), err
}

// ReadUInt16 reads a uint16 value.
func (d *BinaryDecoder) ReadUInt16(field string) (uint16, error) {
	b, err := d.next(field, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// ReadInt32 reads an int32 value.
func (d *BinaryDecoder) ReadInt32(field string) (int32, error) {
	v, err := d.ReadUInt32(field)
	return int32(v), err
}

// ReadUInt32 reads a uint32 value.
func (d *BinaryDecoder) ReadUInt32(field string) (uint32, error) {
	b, err := d.next(field, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ReadInt64 reads an int64 value.
func (d *BinaryDecoder) ReadInt64(field string) (int64, error) {
	v, err := d.ReadUInt64(field)
	return int64(v), err
}

// ReadUInt64 reads a uint64 value.
func (d *BinaryDecoder) ReadUInt64(field string) (uint64, error) {
	b, err := d.next(field, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// ReadFloat reads a float32 value.
func (d *BinaryDecoder) ReadFloat(field string) (float32, error) {
	v, err := d.ReadUInt32(field)
	return math.Float32frombits(v), err
}

// ReadDouble reads a float64 value.
func (d *BinaryDecoder) ReadDouble(field string) (float64, error) {
	v, err := d.ReadUInt64(field)
	return math.Float64frombits(v), err
}

// readLength reads a length prefix. It returns -1 for null.
func (d *BinaryDecoder) readLength(field string) (int, error) {
	n, err := d.ReadInt32(field)
	if err != nil {
		return 0, err
	}
	switch {
	case n == -1:
		return -1, nil
	case n < -1:
		return 0, d.fail(field, fmt.Errorf("%w: %d", ErrInvalidLength, n))
	case int(n) > d.opts.limits.MaxStringLength:
		return 0, d.fail(field, fmt.Errorf("%w: length %d", ErrLimitExceeded, n))
	}
	return int(n), nil
}

// ReadString reads a string value. The null string reads as "".
func (d *BinaryDecoder) ReadString(field string) (string, error) {
	s, err := d.ReadNullableString(field)
	if err != nil || s == nil {
		return "", err
	}
	return *s, nil
}

// ReadNullableString reads a string value. The null string reads as nil.
func (d *BinaryDecoder) ReadNullableString(field string) (*string, error) {
	n, err := d.readLength(field)
	if err != nil || n < 0 {
		return nil, err
	}
	b, err := d.next(field, n)
	if err != nil {
		return nil, err
	}
	s := string(b)
	return &s, nil
}

// ReadDateTime reads a DateTime value.
func (d *BinaryDecoder) ReadDateTime(field string) (time.Time, error) {
	ticks, err := d.ReadInt64(field)
	if err != nil {
		return time.Time{}, err
	}
	return ticksToDateTime(ticks), nil
}

// ReadGUID reads a GUID value.
func (d *BinaryDecoder) ReadGUID(field string) (GUID, error) {
	b, err := d.next(field, 16)
	if err != nil {
		return GUID{}, err
	}
	return guidFromWire(b), nil
}

// ReadByteString reads a byte string value. The result does not alias the
// input.
func (d *BinaryDecoder) ReadByteString(field string) ([]byte, error) {
	n, err := d.readLength(field)
	if err != nil || n < 0 {
		return nil, err
	}
	b, err := d.next(field, n)
	if err != nil {
		return nil, err
	}
	return append(make([]byte, 0, n), b...), nil
}

// ReadXMLElement reads an XmlElement.
func (d *BinaryDecoder) ReadXMLElement(field string) (XMLElement, error) {
	s, err := d.ReadString(field)
	return XMLElement(s), err
}

// ReadNodeID reads a NodeID. Expanded flags are an error here.
func (d *BinaryDecoder) ReadNodeID(field string) (NodeID, error) {
	b, err := d.ReadUInt8(field)
	if err != nil {
		return NodeID{}, err
	}
	if b&^nodeIDFormatMask != 0 {
		return NodeID{}, d.fail(field, fmt.Errorf("%w: node id encoding 0x%02X", ErrInvalidEncoding, b))
	}
	return d.readNodeID(field, b)
}

func (d *BinaryDecoder) readNodeID(field string, format byte) (NodeID, error) {
	switch format {
	case nodeIDTwoByte:
		id, err := d.ReadUInt8(field)
		return NewNumericNodeID(0, uint32(id)), err

	case nodeIDFourByte:
		b, err := d.next(field, 3)
		if err != nil {
			return NodeID{}, err
		}
		return NewNumericNodeID(uint16(b[0]), uint32(binary.LittleEndian.Uint16(b[1:]))), nil

	case nodeIDNumeric:
		b, err := d.next(field, 6)
		if err != nil {
			return NodeID{}, err
		}
		return NewNumericNodeID(binary.LittleEndian.Uint16(b), binary.LittleEndian.Uint32(b[2:])), nil

	case nodeIDString:
		ns, err := d.ReadUInt16(field)
		if err != nil {
			return NodeID{}, err
		}
		s, err := d.ReadString(field)
		return NewStringNodeID(ns, s), err

	case nodeIDGUID:
		ns, err := d.ReadUInt16(field)
		if err != nil {
			return NodeID{}, err
		}
		g, err := d.ReadGUID(field)
		return NewGUIDNodeID(ns, g), err

	case nodeIDOpaque:
		ns, err := d.ReadUInt16(field)
		if err != nil {
			return NodeID{}, err
		}
		b, err := d.ReadByteString(field)
		return NewOpaqueNodeID(ns, b), err

	default:
		return NodeID{}, d.fail(field, fmt.Errorf("%w: node id format %d", ErrInvalidEncoding, format))
	}
}

// ReadExpandedNodeID reads an ExpandedNodeID.
func (d *BinaryDecoder) ReadExpandedNodeID(field string) (ExpandedNodeID, error) {
	var v ExpandedNodeID
	b, err := d.ReadUInt8(field)
	if err != nil {
		return v, err
	}
	if v.NodeID, err = d.readNodeID(field, b&nodeIDFormatMask); err != nil {
		return v, err
	}
	if b&expandedNodeIDURI != 0 {
		if v.NamespaceURI, err = d.ReadString(field); err != nil {
			return v, err
		}
	}
	if b&expandedNodeIDServer != 0 {
		if v.ServerIndex, err = d.ReadUInt32(field); err != nil {
			return v, err
		}
	}
	return v, nil
}

// ReadStatusCode reads a StatusCode value.
func (d *BinaryDecoder) ReadStatusCode(field string) (StatusCode, error) {
	v, err := d.ReadUInt32(field)
	return StatusCode(v), err
}

// ReadQualifiedName reads a QualifiedName value.
func (d *BinaryDecoder) ReadQualifiedName(field string) (QualifiedName, error) {
	return readQualifiedName(d, field)
}

// ReadLocalizedText reads a LocalizedText value.
func (d *BinaryDecoder) ReadLocalizedText(field string) (LocalizedText, error) {
	return readLocalizedText(d, field)
}

// ReadDataValue reads a DataValue. The result is never nil on success.
func (d *BinaryDecoder) ReadDataValue(field string) (*DataValue, error) {
	return readDataValue(d, field)
}

// ReadDiagnosticInfo reads a DiagnosticInfo. The result is never nil on
// success.
func (d *BinaryDecoder) ReadDiagnosticInfo(field string) (*DiagnosticInfo, error) {
	return readDiagnosticInfo(d, field)
}

// ReadVariant reads a Variant.
func (d *BinaryDecoder) ReadVariant(field string) (Variant, error) {
	b, err := d.ReadUInt8(field)
	if err != nil {
		return Variant{}, err
	}
	if err := d.depth.enter(); err != nil {
		return Variant{}, d.fail(field, err)
	}
	defer d.depth.leave()

	t := TypeID(b & variantTypeMask)
	hasValues := b&variantArrayValues != 0
	hasDims := b&variantArrayDimensions != 0
	switch {
	case !t.IsValid():
		return Variant{}, d.fail(field, fmt.Errorf("%w: variant type %d", ErrInvalidEncoding, t))
	case hasDims && !hasValues:
		return Variant{}, d.fail(field, fmt.Errorf("%w: variant dimensions without array", ErrInvalidEncoding))
	case t == TypeNull:
		if b != 0 {
			return Variant{}, d.fail(field, fmt.Errorf("%w: null variant with flags 0x%02X", ErrInvalidEncoding, b))
		}
		return Variant{}, nil
	case !hasValues && t == TypeVariant:
		return Variant{}, d.fail(field, fmt.Errorf("%w: variant holding a scalar variant", ErrInvalidEncoding))
	}

	if !hasValues {
		val, err := readValue(d, field, t, true)
		if err != nil {
			return Variant{}, d.fail(field, err)
		}
		return Variant{Type: t, Value: val}, nil
	}

	vals, err := readArrayValues(d, field, t)
	if err != nil {
		return Variant{}, d.fail(field, err)
	}
	v := Variant{Type: t, Value: vals, IsArray: true}
	if hasDims {
		if v.Dimensions, err = readDimensions(d, "Dimensions", v.Len()); err != nil {
			return Variant{}, d.fail(field, err)
		}
	}
	return v, nil
}

// ReadExtensionObject reads an ExtensionObject. A body whose type is
// registered is decoded into Value; any other body is kept as raw bytes.
func (d *BinaryDecoder) ReadExtensionObject(field string) (*ExtensionObject, error) {
	if d.err != nil {
		return nil, d.err
	}
	if err := d.depth.enter(); err != nil {
		return nil, d.fail(field, err)
	}
	defer d.depth.leave()

	start := d.pos
	typeID, err := d.ReadNodeID(field)
	if err != nil {
		return nil, err
	}
	raw := append([]byte(nil), d.data[start:d.pos]...)
	enc, err := d.ReadUInt8(field)
	if err != nil {
		return nil, err
	}
	o := &ExtensionObject{TypeID: typeID, Encoding: ExtensionObjectEncoding(enc), rawTypeID: raw}
	switch o.Encoding {
	case ExtensionObjectNone:
		return o, nil
	case ExtensionObjectBinary, ExtensionObjectXML:
	default:
		return nil, d.fail(field, fmt.Errorf("%w: extension object encoding %d", ErrInvalidEncoding, enc))
	}
	if o.Body, err = d.ReadByteString(field); err != nil {
		return nil, err
	}

	c, ok := d.opts.registry.Lookup(typeID)
	if !ok {
		d.opts.logger.Debug("keeping extension object body",
			slog.String("type_id", typeID.String()),
			slog.String("encoding", o.Encoding.String()),
			slog.Int("length", len(o.Body)))
		return o, nil
	}

	var v any
	if o.Encoding == ExtensionObjectBinary {
		sub := d.child(o.Body)
		v, err = c.decodeFunc(false)(sub)
		if err == nil {
			err = sub.err
		}
		if err == nil && sub.Remaining() != 0 {
			d.opts.logger.Debug("extension object body has trailing bytes",
				slog.String("type", c.Name),
				slog.Int("trailing", sub.Remaining()))
		}
	} else {
		v, err = decodeXMLBody(c, o.Body, d.opts, d.depth)
	}
	if err != nil {
		return nil, d.fail(field, fmt.Errorf("%s body: %w", c.Name, err))
	}
	o.Value = v
	o.Body = nil
	o.rawTypeID = nil
	return o, nil
}

// ReadStruct reads a structure inline with the codec registered under
// typeID.
func (d *BinaryDecoder) ReadStruct(field string, typeID NodeID) (any, error) {
	if d.err != nil {
		return nil, d.err
	}
	c, ok := d.opts.registry.Lookup(typeID)
	if !ok {
		return nil, d.fail(field, fmt.Errorf("%w: %s", ErrUnregisteredType, typeID))
	}
	if err := d.BeginStruct(field); err != nil {
		return nil, err
	}
	v, err := c.decodeFunc(false)(d)
	if err != nil {
		return nil, d.fail(field, err)
	}
	return v, d.EndStruct()
}

// ReadEncodingMask reads a presence mask byte and rejects undefined bits.
func (d *BinaryDecoder) ReadEncodingMask(fields []string) (byte, error) {
	mask, err := d.ReadUInt8("EncodingMask")
	if err != nil {
		return 0, err
	}
	if len(fields) < 8 && mask>>len(fields) != 0 {
		return 0, d.fail("EncodingMask", fmt.Errorf("%w: mask 0x%02X", ErrInvalidEncoding, mask))
	}
	return mask, nil
}

// BeginStruct enters a nested structure. Nothing is read.
func (d *BinaryDecoder) BeginStruct(field string) error {
	if d.err != nil {
		return d.err
	}
	if err := d.depth.enter(); err != nil {
		return d.fail(field, err)
	}
	return nil
}

// EndStruct leaves a nested structure.
func (d *BinaryDecoder) EndStruct() error {
	d.depth.leave()
	return d.err
}

// BeginArray reads an array length. It returns -1 for the null array and
// rejects lengths beyond the limit or the remaining input.
func (d *BinaryDecoder) BeginArray(field string, minElemSize int) (int, error) {
	n, err := d.ReadInt32(field)
	if err != nil {
		return 0, err
	}
	switch {
	case n == -1:
		return -1, nil
	case n < -1:
		return 0, d.fail(field, fmt.Errorf("%w: array length %d", ErrInvalidLength, n))
	case int(n) > d.opts.limits.MaxArrayLength:
		return 0, d.fail(field, fmt.Errorf("%w: array of %d elements", ErrLimitExceeded, n))
	case int64(n)*int64(max(minElemSize, 1)) > int64(d.Remaining()):
		return 0, d.fail(field, fmt.Errorf("%w: array of %d elements in %d bytes", ErrTruncated, n, d.Remaining()))
	}
	return int(n), nil
}

// EndArray closes an array.
func (d *BinaryDecoder) EndArray() error {
	return d.err
}
