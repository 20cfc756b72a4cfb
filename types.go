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

// Package uacodec encodes and decodes OPC UA builtin and structured values
// in the binary and XML forms of the standard.
package uacodec

import (
	"reflect"
	"strconv"
	"time"

	"github.com/creachadair/mds/mapset"
)

// TypeID represents an OPC UA built-in type.
type TypeID uint8

// OPC UA Built-in Types.
const (
	TypeNull            TypeID = 0
	TypeBoolean         TypeID = 1
	TypeSByte           TypeID = 2
	TypeByte            TypeID = 3
	TypeInt16           TypeID = 4
	TypeUInt16          TypeID = 5
	TypeInt32           TypeID = 6
	TypeUInt32          TypeID = 7
	TypeInt64           TypeID = 8
	TypeUInt64          TypeID = 9
	TypeFloat           TypeID = 10
	TypeDouble          TypeID = 11
	TypeString          TypeID = 12
	TypeDateTime        TypeID = 13
	TypeGUID            TypeID = 14
	TypeByteString      TypeID = 15
	TypeXMLElement      TypeID = 16
	TypeNodeID          TypeID = 17
	TypeExpandedNodeID  TypeID = 18
	TypeStatusCode      TypeID = 19
	TypeQualifiedName   TypeID = 20
	TypeLocalizedText   TypeID = 21
	TypeExtensionObject TypeID = 22
	TypeDataValue       TypeID = 23
	TypeVariant         TypeID = 24
	TypeDiagnosticInfo  TypeID = 25

	maxBuiltinType = TypeDiagnosticInfo
)

var typeNames = [...]string{
	TypeNull:            "Null",
	TypeBoolean:         "Boolean",
	TypeSByte:           "SByte",
	TypeByte:            "Byte",
	TypeInt16:           "Int16",
	TypeUInt16:          "UInt16",
	TypeInt32:           "Int32",
	TypeUInt32:          "UInt32",
	TypeInt64:           "Int64",
	TypeUInt64:          "UInt64",
	TypeFloat:           "Float",
	TypeDouble:          "Double",
	TypeString:          "String",
	TypeDateTime:        "DateTime",
	TypeGUID:            "Guid",
	TypeByteString:      "ByteString",
	TypeXMLElement:      "XmlElement",
	TypeNodeID:          "NodeId",
	TypeExpandedNodeID:  "ExpandedNodeId",
	TypeStatusCode:      "StatusCode",
	TypeQualifiedName:   "QualifiedName",
	TypeLocalizedText:   "LocalizedText",
	TypeExtensionObject: "ExtensionObject",
	TypeDataValue:       "DataValue",
	TypeVariant:         "Variant",
	TypeDiagnosticInfo:  "DiagnosticInfo",
}

// String returns the standard name of the type, as used for XML element names.
func (t TypeID) String() string {
	if t <= maxBuiltinType {
		return typeNames[t]
	}
	return "Unknown"
}

// IsValid reports whether t is one of the builtin types.
func (t TypeID) IsValid() bool {
	return t <= maxBuiltinType
}

// TypeIDByName returns the builtin type with the given standard name.
func TypeIDByName(name string) (TypeID, bool) {
	for i, n := range typeNames {
		if n == name {
			return TypeID(i), true
		}
	}
	return 0, false
}

// elemTypes maps each builtin type to the Go type of one scalar value.
var elemTypes = [...]reflect.Type{
	TypeBoolean:         reflect.TypeFor[bool](),
	TypeSByte:           reflect.TypeFor[int8](),
	TypeByte:            reflect.TypeFor[uint8](),
	TypeInt16:           reflect.TypeFor[int16](),
	TypeUInt16:          reflect.TypeFor[uint16](),
	TypeInt32:           reflect.TypeFor[int32](),
	TypeUInt32:          reflect.TypeFor[uint32](),
	TypeInt64:           reflect.TypeFor[int64](),
	TypeUInt64:          reflect.TypeFor[uint64](),
	TypeFloat:           reflect.TypeFor[float32](),
	TypeDouble:          reflect.TypeFor[float64](),
	TypeString:          reflect.TypeFor[string](),
	TypeDateTime:        reflect.TypeFor[time.Time](),
	TypeGUID:            reflect.TypeFor[GUID](),
	TypeByteString:      reflect.TypeFor[[]byte](),
	TypeXMLElement:      reflect.TypeFor[XMLElement](),
	TypeNodeID:          reflect.TypeFor[NodeID](),
	TypeExpandedNodeID:  reflect.TypeFor[ExpandedNodeID](),
	TypeStatusCode:      reflect.TypeFor[StatusCode](),
	TypeQualifiedName:   reflect.TypeFor[QualifiedName](),
	TypeLocalizedText:   reflect.TypeFor[LocalizedText](),
	TypeExtensionObject: reflect.TypeFor[*ExtensionObject](),
	TypeDataValue:       reflect.TypeFor[*DataValue](),
	TypeVariant:         reflect.TypeFor[Variant](),
	TypeDiagnosticInfo:  reflect.TypeFor[*DiagnosticInfo](),
}

// typeOfElem maps a Go scalar type back to its builtin type. A []byte is a
// ByteString scalar, never an array of Byte.
var typeOfElem = func() map[reflect.Type]TypeID {
	m := make(map[reflect.Type]TypeID, len(elemTypes))
	for i, t := range elemTypes {
		if t != nil {
			m[t] = TypeID(i)
		}
	}
	return m
}()

// nullableTypes may carry a nil scalar value.
var nullableTypes = mapset.New(
	TypeString, TypeByteString, TypeExtensionObject, TypeDataValue, TypeDiagnosticInfo,
)

// minBinarySize is the smallest binary encoding of one value of each type.
// Decoders use it to reject array lengths the remaining input cannot hold.
var minBinarySize = [...]int{
	TypeNull:            0,
	TypeBoolean:         1,
	TypeSByte:           1,
	TypeByte:            1,
	TypeInt16:           2,
	TypeUInt16:          2,
	TypeInt32:           4,
	TypeUInt32:          4,
	TypeInt64:           8,
	TypeUInt64:          8,
	TypeFloat:           4,
	TypeDouble:          8,
	TypeString:          4,
	TypeDateTime:        8,
	TypeGUID:            16,
	TypeByteString:      4,
	TypeXMLElement:      4,
	TypeNodeID:          2,
	TypeExpandedNodeID:  2,
	TypeStatusCode:      4,
	TypeQualifiedName:   6,
	TypeLocalizedText:   1,
	TypeExtensionObject: 3,
	TypeDataValue:       1,
	TypeVariant:         1,
	TypeDiagnosticInfo:  1,
}

// XMLElement is an XML fragment carried as a builtin value.
type XMLElement string

// QualifiedName represents an OPC UA QualifiedName.
type QualifiedName struct {
	NamespaceIndex uint16
	Name           string
}

// String returns the name in "ns:name" form.
func (q QualifiedName) String() string {
	if q.NamespaceIndex == 0 {
		return q.Name
	}
	return strconv.FormatUint(uint64(q.NamespaceIndex), 10) + ":" + q.Name
}

// LocalizedText represents an OPC UA LocalizedText.
type LocalizedText struct {
	Locale string
	Text   string
}

// NewLocalizedText returns a LocalizedText without a locale.
func NewLocalizedText(text string) LocalizedText {
	return LocalizedText{Text: text}
}

// Encoding mask bits for LocalizedText.
const (
	localizedTextLocale byte = 0x01
	localizedTextText   byte = 0x02
)

var localizedTextFields = []string{"Locale", "Text"}

func (l LocalizedText) encodingMask() byte {
	var mask byte
	if l.Locale != "" {
		mask |= localizedTextLocale
	}
	if l.Text != "" {
		mask |= localizedTextText
	}
	return mask
}

func writeQualifiedName(e Encoder, field string, q QualifiedName) error {
	if err := e.BeginStruct(field); err != nil {
		return err
	}
	if err := e.WriteUInt16("NamespaceIndex", q.NamespaceIndex); err != nil {
		return err
	}
	if err := e.WriteString("Name", q.Name); err != nil {
		return err
	}
	return e.EndStruct()
}

func readQualifiedName(d Decoder, field string) (QualifiedName, error) {
	var q QualifiedName
	if err := d.BeginStruct(field); err != nil {
		return q, err
	}
	var err error
	if q.NamespaceIndex, err = d.ReadUInt16("NamespaceIndex"); err != nil {
		return q, err
	}
	if q.Name, err = d.ReadString("Name"); err != nil {
		return q, err
	}
	return q, d.EndStruct()
}

func writeLocalizedText(e Encoder, field string, l LocalizedText) error {
	if err := e.BeginStruct(field); err != nil {
		return err
	}
	mask := l.encodingMask()
	if err := e.WriteEncodingMask(mask, localizedTextFields); err != nil {
		return err
	}
	if mask&localizedTextLocale != 0 {
		if err := e.WriteString("Locale", l.Locale); err != nil {
			return err
		}
	}
	if mask&localizedTextText != 0 {
		if err := e.WriteString("Text", l.Text); err != nil {
			return err
		}
	}
	return e.EndStruct()
}

func readLocalizedText(d Decoder, field string) (LocalizedText, error) {
	var l LocalizedText
	if err := d.BeginStruct(field); err != nil {
		return l, err
	}
	mask, err := d.ReadEncodingMask(localizedTextFields)
	if err != nil {
		return l, err
	}
	if mask&localizedTextLocale != 0 {
		if l.Locale, err = d.ReadString("Locale"); err != nil {
			return l, err
		}
	}
	if mask&localizedTextText != 0 {
		if l.Text, err = d.ReadString("Text"); err != nil {
			return l, err
		}
	}
	return l, d.EndStruct()
}

func writeStatusCode(e Encoder, field string, s StatusCode) error {
	if err := e.BeginStruct(field); err != nil {
		return err
	}
	if err := e.WriteUInt32("Code", uint32(s)); err != nil {
		return err
	}
	return e.EndStruct()
}

func readStatusCode(d Decoder, field string) (StatusCode, error) {
	if err := d.BeginStruct(field); err != nil {
		return 0, err
	}
	v, err := d.ReadUInt32("Code")
	if err != nil {
		return 0, err
	}
	return StatusCode(v), d.EndStruct()
}
