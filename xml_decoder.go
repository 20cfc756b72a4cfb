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
	"encoding/base64"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/creachadair/mds/stack"
)

// xmlFrame is an open element and a cursor over its child elements.
type xmlFrame struct {
	el       *etree.Element
	children []*etree.Element
	next     int
}

func newXMLFrame(el *etree.Element) *xmlFrame {
	f := &xmlFrame{el: el}
	if el != nil {
		f.children = el.ChildElements()
	}
	return f
}

// find returns the next child named tag at or after the cursor and moves
// the cursor past it. It returns nil if there is none.
func (f *xmlFrame) find(tag string) *etree.Element {
	for i := f.next; i < len(f.children); i++ {
		if f.children[i].Tag == tag {
			f.next = i + 1
			return f.children[i]
		}
	}
	return nil
}

// peek is find without moving the cursor.
func (f *xmlFrame) peek(tag string) *etree.Element {
	for i := f.next; i < len(f.children); i++ {
		if f.children[i].Tag == tag {
			return f.children[i]
		}
	}
	return nil
}

// has reports whether a child named tag exists anywhere in the frame.
func (f *xmlFrame) has(tag string) bool {
	for _, c := range f.children {
		if c.Tag == tag {
			return true
		}
	}
	return false
}

func isNil(el *etree.Element) bool {
	return el != nil && el.SelectAttrValue(xsiNil, "") == "true"
}

// XMLDecoder reads the OPC UA XML encoding. Fields are matched to child
// elements by name, in order; an absent element reads as the zero value.
type XMLDecoder struct {
	doc   *etree.Document
	open  *stack.Stack[*xmlFrame]
	opts  *codecOptions
	depth depthGuard
	err   error
}

var _ Decoder = (*XMLDecoder)(nil)

// NewXMLDecoder parses data and returns a decoder positioned inside its
// document element.
func NewXMLDecoder(data []byte, opts ...Option) (*XMLDecoder, error) {
	o := buildOptions(opts)
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, newCodecError(OpDecode, "", -1, fmt.Errorf("%w: %v", ErrInvalidEncoding, err))
	}
	root := doc.Root()
	if root == nil {
		return nil, newCodecError(OpDecode, "", -1, fmt.Errorf("%w: no document element", ErrInvalidEncoding))
	}
	return newXMLDecoderAt(doc, root, o, depthGuard{max: o.limits.MaxRecursionDepth}), nil
}

func newXMLDecoderAt(doc *etree.Document, el *etree.Element, o *codecOptions, depth depthGuard) *XMLDecoder {
	d := &XMLDecoder{
		doc:   doc,
		open:  stack.New[*xmlFrame](),
		opts:  o,
		depth: depth,
	}
	d.open.Push(newXMLFrame(el))
	return d
}

// Root returns the document element.
func (d *XMLDecoder) Root() *etree.Element {
	return d.doc.Root()
}

// Err returns the first error seen.
func (d *XMLDecoder) Err() error {
	return d.err
}

func (d *XMLDecoder) fail(field string, err error) error {
	if d.err == nil {
		d.err = newCodecError(OpDecode, field, -1, err)
	}
	return d.err
}

func (d *XMLDecoder) top() *xmlFrame {
	f, _ := d.open.Peek(0)
	return f
}

// child finds the element for field.
func (d *XMLDecoder) child(field string) (*etree.Element, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.top().find(field), nil
}

// text returns the trimmed text of field, or "" if it is absent.
func (d *XMLDecoder) text(field string) (string, error) {
	el, err := d.child(field)
	if err != nil || el == nil {
		return "", err
	}
	return strings.TrimSpace(el.Text()), nil
}

func parseXMLInt[T int8 | int16 | int32 | int64](d *XMLDecoder, field string, bits int) (T, error) {
	s, err := d.text(field)
	if err != nil || s == "" {
		return 0, err
	}
	v, err := strconv.ParseInt(s, 10, bits)
	if err != nil {
		return 0, d.fail(field, fmt.Errorf("%w: %v", ErrInvalidEncoding, err))
	}
	return T(v), nil
}

func parseXMLUint[T uint8 | uint16 | uint32 | uint64](d *XMLDecoder, field string, bits int) (T, error) {
	s, err := d.text(field)
	if err != nil || s == "" {
		return 0, err
	}
	v, err := strconv.ParseUint(s, 10, bits)
	if err != nil {
		return 0, d.fail(field, fmt.Errorf("%w: %v", ErrInvalidEncoding, err))
	}
	return T(v), nil
}

// ReadBoolean reads a boolean value.
func (d *XMLDecoder) ReadBoolean(field string) (bool, error) {
	s, err := d.text(field)
	if err != nil || s == "" {
		return false, err
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, d.fail(field, fmt.Errorf("%w: %v", ErrInvalidEncoding, err))
	}
	return v, nil
}

// ReadInt8 reads a signed byte value.
func (d *XMLDecoder) ReadInt8(field string) (int8, error) {
	return parseXMLInt[int8](d, field, 8)
}

// ReadUInt8 reads a byte value.
func (d *XMLDecoder) ReadUInt8(field string) (uint8, error) {
	return parseXMLUint[uint8](d, field, 8)
}

// ReadInt16 reads an int16 value.
func (d *XMLDecoder) ReadInt16(field string) (int16, error) {
	return parseXMLInt[int16](d, field, 16)
}

// ReadUInt16 reads a uint16 value.
func (d *XMLDecoder) ReadUInt16(field string) (uint16, error) {
	return parseXMLUint[uint16](d, field, 16)
}

// ReadInt32 reads an int32 value.
func (d *XMLDecoder) ReadInt32(field string) (int32, error) {
	return parseXMLInt[int32](d, field, 32)
}

// ReadUInt32 reads a uint32 value.
func (d *XMLDecoder) ReadUInt32(field string) (uint32, error) {
	return parseXMLUint[uint32](d, field, 32)
}

// ReadInt64 reads an int64 value.
func (d *XMLDecoder) ReadInt64(field string) (int64, error) {
	return parseXMLInt[int64](d, field, 64)
}

// ReadUInt64 reads a uint64 value.
func (d *XMLDecoder) ReadUInt64(field string) (uint64, error) {
	return parseXMLUint[uint64](d, field, 64)
}

func (d *XMLDecoder) readFloat(field string, bits int) (float64, error) {
	s, err := d.text(field)
	if err != nil || s == "" {
		return 0, err
	}
	switch s {
	case "NaN":
		return math.NaN(), nil
	case "INF":
		return math.Inf(1), nil
	case "-INF":
		return math.Inf(-1), nil
	}
	v, err := strconv.ParseFloat(s, bits)
	if err != nil {
		return 0, d.fail(field, fmt.Errorf("%w: %v", ErrInvalidEncoding, err))
	}
	return v, nil
}

// ReadFloat reads a float32 value.
func (d *XMLDecoder) ReadFloat(field string) (float32, error) {
	v, err := d.readFloat(field, 32)
	return float32(v), err
}

// ReadDouble reads a float64 value.
func (d *XMLDecoder) ReadDouble(field string) (float64, error) {
	return d.readFloat(field, 64)
}

// ReadString reads a string value. Nil and absent elements read as "".
func (d *XMLDecoder) ReadString(field string) (string, error) {
	s, err := d.ReadNullableString(field)
	if err != nil || s == nil {
		return "", err
	}
	return *s, nil
}

// ReadNullableString reads a string value. A nil or absent element reads
// as nil.
func (d *XMLDecoder) ReadNullableString(field string) (*string, error) {
	el, err := d.child(field)
	if err != nil || el == nil || isNil(el) {
		return nil, err
	}
	s := el.Text()
	if len(s) > d.opts.limits.MaxStringLength {
		return nil, d.fail(field, fmt.Errorf("%w: length %d", ErrLimitExceeded, len(s)))
	}
	return &s, nil
}

// ReadDateTime reads a DateTime, clamped to the representable range.
func (d *XMLDecoder) ReadDateTime(field string) (time.Time, error) {
	s, err := d.text(field)
	if err != nil || s == "" {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, d.fail(field, fmt.Errorf("%w: %v", ErrInvalidEncoding, err))
	}
	return ticksToDateTime(dateTimeToTicks(t)), nil
}

// ReadGUID reads <field><String>guid</String></field>.
func (d *XMLDecoder) ReadGUID(field string) (GUID, error) {
	el, err := d.child(field)
	if err != nil || el == nil {
		return GUID{}, err
	}
	s := el.SelectElement("String")
	if s == nil {
		return GUID{}, nil
	}
	g, err := ParseGUID(strings.TrimSpace(s.Text()))
	if err != nil {
		return GUID{}, d.fail(field, err)
	}
	return g, nil
}

// ReadByteString reads a base64 byte string. A nil or absent element reads
// as nil; an empty element as an empty slice.
func (d *XMLDecoder) ReadByteString(field string) ([]byte, error) {
	el, err := d.child(field)
	if err != nil || el == nil || isNil(el) {
		return nil, err
	}
	s := strings.Join(strings.Fields(el.Text()), "")
	if base64.StdEncoding.DecodedLen(len(s)) > d.opts.limits.MaxStringLength {
		return nil, d.fail(field, fmt.Errorf("%w: length %d", ErrLimitExceeded, len(s)))
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, d.fail(field, fmt.Errorf("%w: %v", ErrInvalidEncoding, err))
	}
	if b == nil {
		b = []byte{}
	}
	return b, nil
}

// ReadXMLElement reads the first child element of field as a fragment.
func (d *XMLDecoder) ReadXMLElement(field string) (XMLElement, error) {
	el, err := d.child(field)
	if err != nil || el == nil {
		return "", err
	}
	kids := el.ChildElements()
	if len(kids) == 0 {
		return "", nil
	}
	s, err := etree.NewDocumentWithRoot(kids[0].Copy()).WriteToString()
	if err != nil {
		return "", d.fail(field, err)
	}
	return XMLElement(s), nil
}

func (d *XMLDecoder) identifier(field string) (string, error) {
	el, err := d.child(field)
	if err != nil || el == nil {
		return "", err
	}
	id := el.SelectElement("Identifier")
	if id == nil {
		return "", nil
	}
	return strings.TrimSpace(id.Text()), nil
}

// ReadNodeID reads <field><Identifier>text form</Identifier></field>.
func (d *XMLDecoder) ReadNodeID(field string) (NodeID, error) {
	s, err := d.identifier(field)
	if err != nil || s == "" {
		return NodeID{}, err
	}
	n, err := ParseNodeID(s)
	if err != nil {
		return NodeID{}, d.fail(field, err)
	}
	return n, nil
}

// ReadExpandedNodeID reads an ExpandedNodeID from its text form.
func (d *XMLDecoder) ReadExpandedNodeID(field string) (ExpandedNodeID, error) {
	s, err := d.identifier(field)
	if err != nil || s == "" {
		return ExpandedNodeID{}, err
	}
	n, err := ParseExpandedNodeID(s)
	if err != nil {
		return ExpandedNodeID{}, d.fail(field, err)
	}
	return n, nil
}

// ReadStatusCode reads <field><Code>n</Code></field>.
func (d *XMLDecoder) ReadStatusCode(field string) (StatusCode, error) {
	return readStatusCode(d, field)
}

// ReadQualifiedName reads a QualifiedName.
func (d *XMLDecoder) ReadQualifiedName(field string) (QualifiedName, error) {
	return readQualifiedName(d, field)
}

// ReadLocalizedText reads a LocalizedText.
func (d *XMLDecoder) ReadLocalizedText(field string) (LocalizedText, error) {
	return readLocalizedText(d, field)
}

// ReadDataValue reads a DataValue.
func (d *XMLDecoder) ReadDataValue(field string) (*DataValue, error) {
	return readDataValue(d, field)
}

// ReadDiagnosticInfo reads a DiagnosticInfo.
func (d *XMLDecoder) ReadDiagnosticInfo(field string) (*DiagnosticInfo, error) {
	return readDiagnosticInfo(d, field)
}

// ReadVariant reads a Variant. The builtin type comes from the element
// name inside Value.
func (d *XMLDecoder) ReadVariant(field string) (Variant, error) {
	if err := d.BeginStruct(field); err != nil {
		return Variant{}, err
	}
	v, err := d.readVariantValue()
	if err != nil {
		return Variant{}, d.fail(field, err)
	}
	return v, d.EndStruct()
}

func (d *XMLDecoder) readVariantValue() (Variant, error) {
	if !d.top().has("Value") {
		return Variant{}, nil
	}
	if err := d.BeginStruct("Value"); err != nil {
		return Variant{}, err
	}
	kids := d.top().children
	if len(kids) == 0 {
		return Variant{}, d.EndStruct()
	}
	tag := kids[0].Tag

	var v Variant
	switch {
	case tag == "Matrix":
		if err := d.BeginStruct("Matrix"); err != nil {
			return v, err
		}
		dims, err := ReadArray(d, "Dimensions", "Int32", minBinarySize[TypeInt32], Decoder.ReadInt32)
		if err != nil {
			return v, err
		}
		// An empty matrix carries no element name; it reads as Variant.
		t := TypeVariant
		if el := d.top().peek("Elements"); el != nil {
			if ek := el.ChildElements(); len(ek) > 0 {
				var ok bool
				if t, ok = TypeIDByName(ek[0].Tag); !ok || t == TypeNull {
					return v, fmt.Errorf("%w: matrix of %q", ErrInvalidEncoding, ek[0].Tag)
				}
			}
		}
		vals, err := readArrayValues(d, "Elements", t)
		if err != nil {
			return v, err
		}
		v = Variant{Type: t, Value: vals, IsArray: true, Dimensions: dims}
		if dims == nil {
			return v, fmt.Errorf("%w: null dimensions", ErrDimensionMismatch)
		}
		if err := checkDimensions(dims, v.Len()); err != nil {
			return v, err
		}
		if err := d.EndStruct(); err != nil {
			return v, err
		}
	case strings.HasPrefix(tag, "ListOf"):
		t, ok := TypeIDByName(strings.TrimPrefix(tag, "ListOf"))
		if !ok || t == TypeNull {
			return v, fmt.Errorf("%w: variant array %q", ErrInvalidEncoding, tag)
		}
		vals, err := readArrayValues(d, tag, t)
		if err != nil {
			return v, err
		}
		v = Variant{Type: t, Value: vals, IsArray: true}
	default:
		t, ok := TypeIDByName(tag)
		if !ok || t == TypeNull {
			return v, fmt.Errorf("%w: variant of %q", ErrInvalidEncoding, tag)
		}
		if t == TypeVariant {
			return v, fmt.Errorf("%w: variant holding a scalar variant", ErrInvalidEncoding)
		}
		val, err := readValue(d, tag, t, true)
		if err != nil {
			return v, err
		}
		v = Variant{Type: t, Value: val}
	}
	return v, d.EndStruct()
}

// ReadExtensionObject reads <field><TypeId/><Body/></field>. A body whose
// type is registered is decoded; any other body is kept as raw bytes.
func (d *XMLDecoder) ReadExtensionObject(field string) (*ExtensionObject, error) {
	if err := d.BeginStruct(field); err != nil {
		return nil, err
	}
	o, err := d.readExtensionObject()
	if err != nil {
		return nil, d.fail(field, err)
	}
	return o, d.EndStruct()
}

func (d *XMLDecoder) readExtensionObject() (*ExtensionObject, error) {
	typeID, err := d.ReadNodeID("TypeId")
	if err != nil {
		return nil, err
	}
	o := &ExtensionObject{TypeID: typeID}
	body := d.top().find("Body")
	if body == nil {
		return o, nil
	}
	kids := body.ChildElements()
	if len(kids) == 0 {
		o.Encoding = ExtensionObjectXML
		o.Body = []byte{}
		return o, nil
	}
	c, known := d.opts.registry.Lookup(typeID)

	if kids[0].Tag == "ByteString" {
		d.open.Push(newXMLFrame(body))
		raw, err := d.ReadByteString("ByteString")
		d.open.Pop()
		if err != nil {
			return nil, err
		}
		o.Encoding = ExtensionObjectBinary
		o.Body = raw
		if !known {
			return o, nil
		}
		sub := NewBinaryDecoder(raw)
		sub.opts = d.opts
		sub.depth = d.depth
		v, err := c.decodeFunc(false)(sub)
		if err == nil {
			err = sub.err
		}
		if err != nil {
			return nil, fmt.Errorf("%s body: %w", c.Name, err)
		}
		o.Value, o.Body = v, nil
		return o, nil
	}

	o.Encoding = ExtensionObjectXML
	if !known {
		s, err := etree.NewDocumentWithRoot(kids[0].Copy()).WriteToBytes()
		if err != nil {
			return nil, err
		}
		o.Body = s
		d.opts.logger.Debug("keeping extension object body",
			slog.String("type_id", typeID.String()),
			slog.String("encoding", o.Encoding.String()),
			slog.Int("length", len(o.Body)))
		return o, nil
	}
	if err := d.depth.enter(); err != nil {
		return nil, err
	}
	d.open.Push(newXMLFrame(kids[0]))
	v, err := c.decodeFunc(true)(d)
	d.open.Pop()
	d.depth.leave()
	if err != nil {
		return nil, fmt.Errorf("%s body: %w", c.Name, err)
	}
	o.Value = v
	return o, nil
}

// decodeXMLBody decodes an XML-encoded ExtensionObject body found in a
// binary stream. The body's document element holds the structure fields.
func decodeXMLBody(c *Codec, body []byte, o *codecOptions, depth depthGuard) (any, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("%w: empty xml body", ErrInvalidEncoding)
	}
	d := newXMLDecoderAt(doc, root, o, depth)
	v, err := c.decodeFunc(true)(d)
	if err != nil {
		return nil, err
	}
	return v, d.err
}

// ReadStruct reads the element field with the codec registered under
// typeID.
func (d *XMLDecoder) ReadStruct(field string, typeID NodeID) (any, error) {
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
	v, err := c.decodeFunc(true)(d)
	if err != nil {
		return nil, d.fail(field, err)
	}
	return v, d.EndStruct()
}

// ReadEncodingMask derives the presence mask from the child elements of
// the open element.
func (d *XMLDecoder) ReadEncodingMask(fields []string) (byte, error) {
	if d.err != nil {
		return 0, d.err
	}
	f := d.top()
	var mask byte
	for i, name := range fields {
		if i < 8 && f.has(name) {
			mask |= 1 << i
		}
	}
	return mask, nil
}

// BeginStruct opens the element field. An absent element opens an empty
// frame whose fields all read as zero values.
func (d *XMLDecoder) BeginStruct(field string) error {
	if d.err != nil {
		return d.err
	}
	if err := d.depth.enter(); err != nil {
		return d.fail(field, err)
	}
	d.open.Push(newXMLFrame(d.top().find(field)))
	return nil
}

// EndStruct closes the innermost element.
func (d *XMLDecoder) EndStruct() error {
	if d.err != nil {
		return d.err
	}
	d.depth.leave()
	if d.open.Len() > 1 {
		d.open.Pop()
	}
	return nil
}

// BeginArray opens the element field and returns its number of child
// elements. Nil and absent elements are the null array.
func (d *XMLDecoder) BeginArray(field string, _ int) (int, error) {
	if d.err != nil {
		return 0, d.err
	}
	el := d.top().find(field)
	f := newXMLFrame(el)
	d.open.Push(f)
	if el == nil || isNil(el) {
		return -1, nil
	}
	if n := len(f.children); n > d.opts.limits.MaxArrayLength {
		return 0, d.fail(field, fmt.Errorf("%w: array of %d elements", ErrLimitExceeded, n))
	}
	return len(f.children), nil
}

// EndArray closes the innermost element.
func (d *XMLDecoder) EndArray() error {
	if d.err != nil {
		return d.err
	}
	if d.open.Len() > 1 {
		d.open.Pop()
	}
	return nil
}
