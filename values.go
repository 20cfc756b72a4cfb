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
	"strconv"
	"strings"
	"time"
)

// ParseValue converts the text form of a scalar of builtin type t into the
// Go value a Variant of that type carries. Numbers use Go syntax, floats
// also accept INF, -INF and NaN, DateTime is RFC 3339, ByteString is base64,
// StatusCode is a number or a status name, QualifiedName is "ns:name" and
// LocalizedText is "locale|text" or plain text.
//
// Container types (ExtensionObject, DataValue, Variant, DiagnosticInfo) have
// no text form.
func ParseValue(t TypeID, s string) (any, error) {
	v, err := parseValue(t, s)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %q: %v", ErrInvalidValue, t, s, err)
	}
	return v, nil
}

func parseValue(t TypeID, s string) (any, error) {
	switch t {
	case TypeNull:
		if s != "" {
			return nil, fmt.Errorf("null takes no value")
		}
		return nil, nil
	case TypeBoolean:
		return strconv.ParseBool(s)
	case TypeSByte:
		return parseInt[int8](s, 8)
	case TypeByte:
		return parseUint[uint8](s, 8)
	case TypeInt16:
		return parseInt[int16](s, 16)
	case TypeUInt16:
		return parseUint[uint16](s, 16)
	case TypeInt32:
		return parseInt[int32](s, 32)
	case TypeUInt32:
		return parseUint[uint32](s, 32)
	case TypeInt64:
		return parseInt[int64](s, 64)
	case TypeUInt64:
		return parseUint[uint64](s, 64)
	case TypeFloat:
		f, err := parseFloatText(s, 32)
		return float32(f), err
	case TypeDouble:
		return parseFloatText(s, 64)
	case TypeString:
		return s, nil
	case TypeDateTime:
		return time.Parse(time.RFC3339Nano, s)
	case TypeGUID:
		return ParseGUID(s)
	case TypeByteString:
		return base64.StdEncoding.DecodeString(s)
	case TypeXMLElement:
		return XMLElement(s), nil
	case TypeNodeID:
		return ParseNodeID(s)
	case TypeExpandedNodeID:
		return ParseExpandedNodeID(s)
	case TypeStatusCode:
		return parseStatusCode(s)
	case TypeQualifiedName:
		return parseQualifiedName(s)
	case TypeLocalizedText:
		if locale, text, ok := strings.Cut(s, "|"); ok {
			return LocalizedText{Locale: locale, Text: text}, nil
		}
		return NewLocalizedText(s), nil
	}
	return nil, fmt.Errorf("type has no text form")
}

func parseInt[T int8 | int16 | int32 | int64](s string, bits int) (T, error) {
	n, err := strconv.ParseInt(s, 0, bits)
	return T(n), err
}

func parseUint[T uint8 | uint16 | uint32 | uint64](s string, bits int) (T, error) {
	n, err := strconv.ParseUint(s, 0, bits)
	return T(n), err
}

func parseFloatText(s string, bits int) (float64, error) {
	switch s {
	case "INF":
		s = "+Inf"
	case "-INF":
		s = "-Inf"
	}
	return strconv.ParseFloat(s, bits)
}

func parseStatusCode(s string) (StatusCode, error) {
	if n, err := strconv.ParseUint(s, 0, 32); err == nil {
		return StatusCode(n), nil
	}
	for code, info := range statusCodeMap {
		if info.name == s {
			return code, nil
		}
	}
	return 0, fmt.Errorf("unknown status code")
}

func parseQualifiedName(s string) (QualifiedName, error) {
	ns, name, ok := strings.Cut(s, ":")
	if !ok {
		return QualifiedName{Name: s}, nil
	}
	idx, err := strconv.ParseUint(ns, 10, 16)
	if err != nil {
		// A colon inside a namespace 0 name.
		return QualifiedName{Name: s}, nil
	}
	return QualifiedName{NamespaceIndex: uint16(idx), Name: name}, nil
}

// WriteBuiltin writes v as one value of builtin type t under the name
// field. v must hold the Go type a Variant of type t carries.
func WriteBuiltin(e Encoder, field string, t TypeID, v any) error {
	return writeValue(e, field, t, v)
}

// ReadBuiltin reads one value of builtin type t. The null string reads as
// nil.
func ReadBuiltin(d Decoder, field string, t TypeID) (any, error) {
	return readValue(d, field, t, true)
}
