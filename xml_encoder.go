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
	"math"
	"reflect"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/beevik/etree"
	"github.com/creachadair/mds/stack"
)

// XML namespaces.
const (
	TypesNamespace = "http://opcfoundation.org/UA/2008/02/Types.xsd"
	xsiNamespace   = "http://www.w3.org/2001/XMLSchema-instance"
	xsiNil         = "xsi:nil"
)

// XMLEncoder writes the OPC UA XML encoding. Each field becomes a child
// element of the innermost open structure or array.
type XMLEncoder struct {
	doc   *etree.Document
	open  *stack.Stack[*etree.Element]
	opts  *codecOptions
	depth depthGuard
	err   error
}

var _ Encoder = (*XMLEncoder)(nil)

// NewXMLEncoder creates an encoder whose document element is named root.
func NewXMLEncoder(root string, opts ...Option) *XMLEncoder {
	o := buildOptions(opts)
	doc := etree.NewDocument()
	// Canonical text escapes carriage returns, which parsers otherwise
	// normalize to line feeds.
	doc.WriteSettings.CanonicalText = true
	doc.CreateProcInst("xml", `version="1.0" encoding="utf-8"`)
	r := doc.CreateElement(root)
	r.CreateAttr("xmlns", TypesNamespace)
	r.CreateAttr("xmlns:xsi", xsiNamespace)
	e := &XMLEncoder{
		doc:   doc,
		open:  stack.New[*etree.Element](),
		opts:  o,
		depth: depthGuard{max: o.limits.MaxRecursionDepth},
	}
	e.open.Push(r)
	return e
}

// Document returns the document being built.
func (e *XMLEncoder) Document() *etree.Document {
	return e.doc
}

// Bytes returns the indented document.
func (e *XMLEncoder) Bytes() ([]byte, error) {
	if e.err != nil {
		return nil, e.err
	}
	e.doc.Indent(2)
	return e.doc.WriteToBytes()
}

// Err returns the first error seen.
func (e *XMLEncoder) Err() error {
	return e.err
}

func (e *XMLEncoder) fail(field string, err error) error {
	if e.err == nil {
		e.err = newCodecError(OpEncode, field, -1, err)
	}
	return e.err
}

func (e *XMLEncoder) top() *etree.Element {
	el, _ := e.open.Peek(0)
	return el
}

// leaf appends <field>text</field> to the open element.
func (e *XMLEncoder) leaf(field, text string) error {
	if e.err != nil {
		return e.err
	}
	if err := checkXMLText(text); err != nil {
		return e.fail(field, err)
	}
	e.top().CreateElement(field).SetText(text)
	return nil
}

// checkXMLText rejects text that an XML 1.0 document cannot carry. The
// writer would otherwise replace such characters with U+FFFD.
func checkXMLText(s string) error {
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		switch {
		case r == utf8.RuneError && size == 1:
			return fmt.Errorf("%w: invalid UTF-8 at byte %d", ErrInvalidValue, i)
		case r == '\t' || r == '\n' || r == '\r',
			r >= 0x20 && r <= 0xD7FF,
			r >= 0xE000 && r <= 0xFFFD,
			r >= 0x10000 && r <= utf8.MaxRune:
		default:
			return fmt.Errorf("%w: character %U at byte %d is not allowed in XML", ErrInvalidValue, r, i)
		}
		i += size
	}
	return nil
}

func (e *XMLEncoder) null(field string) error {
	if e.err != nil {
		return e.err
	}
	e.top().CreateElement(field).CreateAttr(xsiNil, "true")
	return nil
}

// WriteBoolean writes a boolean value.
func (e *XMLEncoder) WriteBoolean(field string, v bool) error {
	return e.leaf(field, strconv.FormatBool(v))
}

// WriteInt8 writes a signed byte value.
func (e *XMLEncoder) WriteInt8(field string, v int8) error {
	return e.leaf(field, strconv.FormatInt(int64(v), 10))
}

// WriteUInt8 writes a byte value.
func (e *XMLEncoder) WriteUInt8(field string, v uint8) error {
	return e.leaf(field, strconv.FormatUint(uint64(v), 10))
}

// WriteInt16 writes an int16 value.
func (e *XMLEncoder) WriteInt16(field string, v int16) error {
	return e.leaf(field, strconv.FormatInt(int64(v), 10))
}

// WriteUInt16 writes a uint16 value.
func (e *XMLEncoder) WriteUInt16(field string, v uint16) error {
	return e.leaf(field, strconv.FormatUint(uint64(v), 10))
}

// WriteInt32 writes an int32 value.
func (e *XMLEncoder) WriteInt32(field string, v int32) error {
	return e.leaf(field, strconv.FormatInt(int64(v), 10))
}

// WriteUInt32 writes a uint32 value.
func (e *XMLEncoder) WriteUInt32(field string, v uint32) error {
	return e.leaf(field, strconv.FormatUint(uint64(v), 10))
}

// WriteInt64 writes an int64 value.
func (e *XMLEncoder) WriteInt64(field string, v int64) error {
	return e.leaf(field, strconv.FormatInt(v, 10))
}

// WriteUInt64 writes a uint64 value.
func (e *XMLEncoder) WriteUInt64(field string, v uint64) error {
	return e.leaf(field, strconv.FormatUint(v, 10))
}

// WriteFloat writes a float32 value.
func (e *XMLEncoder) WriteFloat(field string, v float32) error {
	return e.leaf(field, formatXMLFloat(float64(v), 32))
}

// WriteDouble writes a float64 value.
func (e *XMLEncoder) WriteDouble(field string, v float64) error {
	return e.leaf(field, formatXMLFloat(v, 64))
}

// formatXMLFloat uses the xs:float spellings of the special values.
func formatXMLFloat(v float64, bits int) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "INF"
	case math.IsInf(v, -1):
		return "-INF"
	}
	return strconv.FormatFloat(v, 'G', -1, bits)
}

// WriteString writes a string value.
func (e *XMLEncoder) WriteString(field string, v string) error {
	if len(v) > e.opts.limits.MaxStringLength {
		return e.fail(field, fmt.Errorf("%w: length %d", ErrLimitExceeded, len(v)))
	}
	return e.leaf(field, v)
}

// WriteNullableString writes a string value or, for nil, a nil element.
func (e *XMLEncoder) WriteNullableString(field string, v *string) error {
	if v == nil {
		return e.null(field)
	}
	return e.WriteString(field, *v)
}

// WriteDateTime writes a DateTime in UTC, clamped to the representable
// range.
func (e *XMLEncoder) WriteDateTime(field string, v time.Time) error {
	return e.leaf(field, ticksToXMLTime(dateTimeToTicks(v)).Format(time.RFC3339Nano))
}

// ticksToXMLTime is ticksToDateTime except that 0 maps to MinDateTime,
// which has a text form.
func ticksToXMLTime(ticks int64) time.Time {
	if ticks == 0 {
		return MinDateTime
	}
	return ticksToDateTime(ticks)
}

// WriteGUID writes <field><String>guid</String></field>.
func (e *XMLEncoder) WriteGUID(field string, v GUID) error {
	if e.err != nil {
		return e.err
	}
	e.top().CreateElement(field).CreateElement("String").SetText(v.String())
	return nil
}

// WriteByteString writes a byte string in base64.
func (e *XMLEncoder) WriteByteString(field string, v []byte) error {
	if v == nil {
		return e.null(field)
	}
	if len(v) > e.opts.limits.MaxStringLength {
		return e.fail(field, fmt.Errorf("%w: length %d", ErrLimitExceeded, len(v)))
	}
	return e.leaf(field, base64.StdEncoding.EncodeToString(v))
}

// WriteXMLElement embeds an XML fragment as the content of field.
func (e *XMLEncoder) WriteXMLElement(field string, v XMLElement) error {
	if e.err != nil {
		return e.err
	}
	el := e.top().CreateElement(field)
	if v == "" {
		return nil
	}
	frag, err := parseFragment([]byte(v))
	if err != nil {
		return e.fail(field, err)
	}
	el.AddChild(frag)
	return nil
}

// parseFragment parses a single XML element.
func parseFragment(b []byte) (*etree.Element, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(b); err != nil {
		return nil, fmt.Errorf("%w: xml fragment: %v", ErrInvalidValue, err)
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("%w: xml fragment has no element", ErrInvalidValue)
	}
	return root.Copy(), nil
}

// WriteNodeID writes <field><Identifier>text form</Identifier></field>.
func (e *XMLEncoder) WriteNodeID(field string, v NodeID) error {
	if e.err != nil {
		return e.err
	}
	text := v.String()
	if err := checkXMLText(text); err != nil {
		return e.fail(field, err)
	}
	e.top().CreateElement(field).CreateElement("Identifier").SetText(text)
	return nil
}

// WriteExpandedNodeID writes the expanded text form under Identifier.
func (e *XMLEncoder) WriteExpandedNodeID(field string, v ExpandedNodeID) error {
	if e.err != nil {
		return e.err
	}
	text := v.String()
	if err := checkXMLText(text); err != nil {
		return e.fail(field, err)
	}
	e.top().CreateElement(field).CreateElement("Identifier").SetText(text)
	return nil
}

// WriteStatusCode writes <field><Code>n</Code></field>.
func (e *XMLEncoder) WriteStatusCode(field string, v StatusCode) error {
	return writeStatusCode(e, field, v)
}

// WriteQualifiedName writes a QualifiedName.
func (e *XMLEncoder) WriteQualifiedName(field string, v QualifiedName) error {
	return writeQualifiedName(e, field, v)
}

// WriteLocalizedText writes a LocalizedText, omitting empty parts.
func (e *XMLEncoder) WriteLocalizedText(field string, v LocalizedText) error {
	return writeLocalizedText(e, field, v)
}

// WriteDataValue writes a DataValue, omitting absent fields.
func (e *XMLEncoder) WriteDataValue(field string, v *DataValue) error {
	return writeDataValue(e, field, v)
}

// WriteDiagnosticInfo writes a DiagnosticInfo, omitting absent fields.
func (e *XMLEncoder) WriteDiagnosticInfo(field string, v *DiagnosticInfo) error {
	return writeDiagnosticInfo(e, field, v)
}

// WriteVariant writes a Variant as <field><Value>...</Value></field>. The
// content is <Type> for a scalar, <ListOfType> for an array and <Matrix>
// for a multi-dimensional array. A null Variant has no Value.
func (e *XMLEncoder) WriteVariant(field string, v Variant) error {
	if e.err != nil {
		return e.err
	}
	if err := v.validate(); err != nil {
		return e.fail(field, err)
	}
	if err := e.BeginStruct(field); err != nil {
		return err
	}
	if v.Type != TypeNull {
		if err := e.writeVariantValue(v); err != nil {
			return e.fail(field, err)
		}
	}
	return e.EndStruct()
}

func (e *XMLEncoder) writeVariantValue(v Variant) error {
	if err := e.BeginStruct("Value"); err != nil {
		return err
	}
	name := v.Type.String()
	switch {
	case !v.IsArray:
		if err := writeValue(e, name, v.Type, v.Value); err != nil {
			return err
		}
	case v.Dimensions == nil:
		if err := writeArrayValues(e, "ListOf"+name, v.Type, v.Value); err != nil {
			return err
		}
	default:
		if err := e.BeginStruct("Matrix"); err != nil {
			return err
		}
		if err := WriteArray(e, "Dimensions", "Int32", v.Dimensions, Encoder.WriteInt32); err != nil {
			return err
		}
		if err := writeArrayValues(e, "Elements", v.Type, v.Value); err != nil {
			return err
		}
		if err := e.EndStruct(); err != nil {
			return err
		}
	}
	return e.EndStruct()
}

// WriteExtensionObject writes <field><TypeId/><Body/></field>. A decoded
// value is written as <Body><Name>...</Name></Body> under the XML encoding
// id; a raw binary body as <Body><ByteString/></Body>.
func (e *XMLEncoder) WriteExtensionObject(field string, v *ExtensionObject) error {
	if e.err != nil {
		return e.err
	}
	if v == nil {
		v = &ExtensionObject{}
	}
	c, err := v.resolve(e.opts.registry)
	if err != nil {
		return e.fail(field, err)
	}
	if c == nil {
		if err := v.checkRaw(); err != nil {
			return e.fail(field, err)
		}
	}

	if err := e.BeginStruct(field); err != nil {
		return err
	}
	if c != nil {
		typeID := c.XMLEncodingID
		if typeID.IsNull() {
			return e.fail(field, fmt.Errorf("%w: %s has no xml encoding", ErrUnregisteredType, c.Name))
		}
		if err := e.WriteNodeID("TypeId", typeID); err != nil {
			return err
		}
		if err := e.BeginStruct("Body"); err != nil {
			return err
		}
		if err := e.BeginStruct(c.Name); err != nil {
			return err
		}
		if err := c.encodeFunc(true)(e, v.Value); err != nil {
			return e.fail(field, err)
		}
		if err := e.EndStruct(); err != nil {
			return err
		}
		if err := e.EndStruct(); err != nil {
			return err
		}
		return e.EndStruct()
	}

	if err := e.WriteNodeID("TypeId", v.TypeID); err != nil {
		return err
	}
	switch v.Encoding {
	case ExtensionObjectBinary:
		if err := e.BeginStruct("Body"); err != nil {
			return err
		}
		if err := e.WriteByteString("ByteString", v.Body); err != nil {
			return err
		}
		if err := e.EndStruct(); err != nil {
			return err
		}
	case ExtensionObjectXML:
		if err := e.BeginStruct("Body"); err != nil {
			return err
		}
		if len(v.Body) > 0 {
			frag, err := parseFragment(v.Body)
			if err != nil {
				return e.fail(field, err)
			}
			e.top().AddChild(frag)
		}
		if err := e.EndStruct(); err != nil {
			return err
		}
	}
	return e.EndStruct()
}

// WriteStruct writes v as the element field with the codec registered for
// its Go type.
func (e *XMLEncoder) WriteStruct(field string, v any) error {
	if e.err != nil {
		return e.err
	}
	c, ok := e.opts.registry.LookupType(reflect.TypeOf(v))
	if !ok {
		return e.fail(field, fmt.Errorf("%w: %T", ErrUnregisteredType, v))
	}
	if err := e.BeginStruct(field); err != nil {
		return err
	}
	if err := c.encodeFunc(true)(e, v); err != nil {
		return e.fail(field, err)
	}
	return e.EndStruct()
}

// WriteEncodingMask writes nothing; presence is implied by the elements.
func (e *XMLEncoder) WriteEncodingMask(mask byte, fields []string) error {
	if e.err != nil {
		return e.err
	}
	if len(fields) < 8 && mask>>len(fields) != 0 {
		return e.fail("EncodingMask", fmt.Errorf("%w: mask 0x%02X", ErrInvalidValue, mask))
	}
	return nil
}

// BeginStruct opens the element field.
func (e *XMLEncoder) BeginStruct(field string) error {
	if e.err != nil {
		return e.err
	}
	if err := e.depth.enter(); err != nil {
		return e.fail(field, err)
	}
	e.open.Push(e.top().CreateElement(field))
	return nil
}

// EndStruct closes the innermost element.
func (e *XMLEncoder) EndStruct() error {
	if e.err != nil {
		return e.err
	}
	e.depth.leave()
	if e.open.Len() > 1 {
		e.open.Pop()
	}
	return nil
}

// BeginArray opens the element field. A null array is a nil element.
func (e *XMLEncoder) BeginArray(field string, n int) error {
	if e.err != nil {
		return e.err
	}
	if n > e.opts.limits.MaxArrayLength {
		return e.fail(field, fmt.Errorf("%w: array of %d elements", ErrLimitExceeded, n))
	}
	el := e.top().CreateElement(field)
	if n < 0 {
		el.CreateAttr(xsiNil, "true")
	}
	e.open.Push(el)
	return nil
}

// EndArray closes the innermost element.
func (e *XMLEncoder) EndArray() error {
	if e.err != nil {
		return e.err
	}
	if e.open.Len() > 1 {
		e.open.Pop()
	}
	return nil
}
