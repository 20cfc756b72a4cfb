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

// DataValue represents an OPC UA DataValue. Nil fields are absent on the
// wire.
type DataValue struct {
	Value             *Variant
	StatusCode        *StatusCode
	SourceTimestamp   *time.Time
	SourcePicoseconds *uint16
	ServerTimestamp   *time.Time
	ServerPicoseconds *uint16
}

// DataValue encoding mask bits.
const (
	DataValueValue             byte = 0x01
	DataValueStatusCode        byte = 0x02
	DataValueSourceTimestamp   byte = 0x04
	DataValueServerTimestamp   byte = 0x08
	DataValueSourcePicoseconds byte = 0x10
	DataValueServerPicoseconds byte = 0x20
)

var dataValueFields = []string{
	"Value", "StatusCode", "SourceTimestamp", "ServerTimestamp", "SourcePicoseconds", "ServerPicoseconds",
}

// NewDataValue returns a DataValue holding only v.
func NewDataValue(v Variant) *DataValue {
	return &DataValue{Value: &v}
}

// WithStatus sets the status code and returns dv.
func (dv *DataValue) WithStatus(s StatusCode) *DataValue {
	dv.StatusCode = &s
	return dv
}

// WithSourceTimestamp sets the source timestamp and returns dv.
func (dv *DataValue) WithSourceTimestamp(t time.Time) *DataValue {
	dv.SourceTimestamp = &t
	return dv
}

// WithServerTimestamp sets the server timestamp and returns dv.
func (dv *DataValue) WithServerTimestamp(t time.Time) *DataValue {
	dv.ServerTimestamp = &t
	return dv
}

// Status returns the status code, which is Good when absent.
func (dv *DataValue) Status() StatusCode {
	if dv == nil || dv.StatusCode == nil {
		return StatusGood
	}
	return *dv.StatusCode
}

// EncodingMask returns the presence mask for the fields that are set.
func (dv *DataValue) EncodingMask() byte {
	var mask byte
	if dv.Value != nil {
		mask |= DataValueValue
	}
	if dv.StatusCode != nil {
		mask |= DataValueStatusCode
	}
	if dv.SourceTimestamp != nil {
		mask |= DataValueSourceTimestamp
	}
	if dv.ServerTimestamp != nil {
		mask |= DataValueServerTimestamp
	}
	if dv.SourcePicoseconds != nil {
		mask |= DataValueSourcePicoseconds
	}
	if dv.ServerPicoseconds != nil {
		mask |= DataValueServerPicoseconds
	}
	return mask
}

// writeDataValue writes dv in both modes. A nil dv is written as a
// DataValue with no fields.
func writeDataValue(e Encoder, field string, dv *DataValue) error {
	if dv == nil {
		dv = &DataValue{}
	}
	if err := e.BeginStruct(field); err != nil {
		return err
	}
	mask := dv.EncodingMask()
	if err := e.WriteEncodingMask(mask, dataValueFields); err != nil {
		return err
	}
	if dv.Value != nil {
		if err := e.WriteVariant("Value", *dv.Value); err != nil {
			return err
		}
	}
	if dv.StatusCode != nil {
		if err := e.WriteStatusCode("StatusCode", *dv.StatusCode); err != nil {
			return err
		}
	}
	if dv.SourceTimestamp != nil {
		if err := e.WriteDateTime("SourceTimestamp", *dv.SourceTimestamp); err != nil {
			return err
		}
	}
	if dv.SourcePicoseconds != nil {
		if err := e.WriteUInt16("SourcePicoseconds", *dv.SourcePicoseconds); err != nil {
			return err
		}
	}
	if dv.ServerTimestamp != nil {
		if err := e.WriteDateTime("ServerTimestamp", *dv.ServerTimestamp); err != nil {
			return err
		}
	}
	if dv.ServerPicoseconds != nil {
		if err := e.WriteUInt16("ServerPicoseconds", *dv.ServerPicoseconds); err != nil {
			return err
		}
	}
	return e.EndStruct()
}

func readDataValue(d Decoder, field string) (*DataValue, error) {
	if err := d.BeginStruct(field); err != nil {
		return nil, err
	}
	mask, err := d.ReadEncodingMask(dataValueFields)
	if err != nil {
		return nil, err
	}
	dv := &DataValue{}
	if mask&DataValueValue != 0 {
		v, err := d.ReadVariant("Value")
		if err != nil {
			return nil, err
		}
		dv.Value = &v
	}
	if mask&DataValueStatusCode != 0 {
		s, err := d.ReadStatusCode("StatusCode")
		if err != nil {
			return nil, err
		}
		dv.StatusCode = &s
	}
	if mask&DataValueSourceTimestamp != 0 {
		t, err := d.ReadDateTime("SourceTimestamp")
		if err != nil {
			return nil, err
		}
		dv.SourceTimestamp = &t
	}
	if mask&DataValueSourcePicoseconds != 0 {
		p, err := d.ReadUInt16("SourcePicoseconds")
		if err != nil {
			return nil, err
		}
		dv.SourcePicoseconds = &p
	}
	if mask&DataValueServerTimestamp != 0 {
		t, err := d.ReadDateTime("ServerTimestamp")
		if err != nil {
			return nil, err
		}
		dv.ServerTimestamp = &t
	}
	if mask&DataValueServerPicoseconds != 0 {
		p, err := d.ReadUInt16("ServerPicoseconds")
		if err != nil {
			return nil, err
		}
		dv.ServerPicoseconds = &p
	}
	return dv, d.EndStruct()
}

// DiagnosticInfo contains diagnostic information. The int32 fields are
// indexes into the string table of the enclosing response. Nil fields are
// absent on the wire.
type DiagnosticInfo struct {
	SymbolicID          *int32
	NamespaceURI        *int32
	LocalizedText       *int32
	Locale              *int32
	AdditionalInfo      *string
	InnerStatusCode     *StatusCode
	InnerDiagnosticInfo *DiagnosticInfo
}

// DiagnosticInfo encoding mask bits.
const (
	DiagnosticInfoSymbolicID          byte = 0x01
	DiagnosticInfoNamespaceURI        byte = 0x02
	DiagnosticInfoLocalizedText       byte = 0x04
	DiagnosticInfoLocale              byte = 0x08
	DiagnosticInfoAdditionalInfo      byte = 0x10
	DiagnosticInfoInnerStatusCode     byte = 0x20
	DiagnosticInfoInnerDiagnosticInfo byte = 0x40
)

var diagnosticInfoFields = []string{
	"SymbolicId", "NamespaceUri", "LocalizedText", "Locale", "AdditionalInfo", "InnerStatusCode", "InnerDiagnosticInfo",
}

// EncodingMask returns the presence mask for the fields that are set.
func (di *DiagnosticInfo) EncodingMask() byte {
	var mask byte
	if di.SymbolicID != nil {
		mask |= DiagnosticInfoSymbolicID
	}
	if di.NamespaceURI != nil {
		mask |= DiagnosticInfoNamespaceURI
	}
	if di.LocalizedText != nil {
		mask |= DiagnosticInfoLocalizedText
	}
	if di.Locale != nil {
		mask |= DiagnosticInfoLocale
	}
	if di.AdditionalInfo != nil {
		mask |= DiagnosticInfoAdditionalInfo
	}
	if di.InnerStatusCode != nil {
		mask |= DiagnosticInfoInnerStatusCode
	}
	if di.InnerDiagnosticInfo != nil {
		mask |= DiagnosticInfoInnerDiagnosticInfo
	}
	return mask
}

// Depth returns the number of records in the inner chain, di included.
func (di *DiagnosticInfo) Depth() int {
	n := 0
	for ; di != nil; di = di.InnerDiagnosticInfo {
		n++
	}
	return n
}

// writeDiagnosticInfo writes di in both modes. Each inner record is a nested
// struct, so the stream's depth limit bounds the chain.
func writeDiagnosticInfo(e Encoder, field string, di *DiagnosticInfo) error {
	if di == nil {
		di = &DiagnosticInfo{}
	}
	if err := e.BeginStruct(field); err != nil {
		return err
	}
	mask := di.EncodingMask()
	if err := e.WriteEncodingMask(mask, diagnosticInfoFields); err != nil {
		return err
	}
	for _, f := range []struct {
		bit  byte
		name string
		v    *int32
	}{
		{DiagnosticInfoSymbolicID, "SymbolicId", di.SymbolicID},
		{DiagnosticInfoNamespaceURI, "NamespaceUri", di.NamespaceURI},
		{DiagnosticInfoLocale, "Locale", di.Locale},
		{DiagnosticInfoLocalizedText, "LocalizedText", di.LocalizedText},
	} {
		if mask&f.bit != 0 {
			if err := e.WriteInt32(f.name, *f.v); err != nil {
				return err
			}
		}
	}
	if di.AdditionalInfo != nil {
		if err := e.WriteNullableString("AdditionalInfo", di.AdditionalInfo); err != nil {
			return err
		}
	}
	if di.InnerStatusCode != nil {
		if err := e.WriteStatusCode("InnerStatusCode", *di.InnerStatusCode); err != nil {
			return err
		}
	}
	if di.InnerDiagnosticInfo != nil {
		if err := writeDiagnosticInfo(e, "InnerDiagnosticInfo", di.InnerDiagnosticInfo); err != nil {
			return err
		}
	}
	return e.EndStruct()
}

func readDiagnosticInfo(d Decoder, field string) (*DiagnosticInfo, error) {
	if err := d.BeginStruct(field); err != nil {
		return nil, err
	}
	mask, err := d.ReadEncodingMask(diagnosticInfoFields)
	if err != nil {
		return nil, err
	}
	di := &DiagnosticInfo{}
	for _, f := range []struct {
		bit  byte
		name string
		dst  **int32
	}{
		{DiagnosticInfoSymbolicID, "SymbolicId", &di.SymbolicID},
		{DiagnosticInfoNamespaceURI, "NamespaceUri", &di.NamespaceURI},
		{DiagnosticInfoLocale, "Locale", &di.Locale},
		{DiagnosticInfoLocalizedText, "LocalizedText", &di.LocalizedText},
	} {
		if mask&f.bit != 0 {
			v, err := d.ReadInt32(f.name)
			if err != nil {
				return nil, err
			}
			*f.dst = &v
		}
	}
	if mask&DiagnosticInfoAdditionalInfo != 0 {
		s, err := d.ReadNullableString("AdditionalInfo")
		if err != nil {
			return nil, err
		}
		if s == nil {
			s = new(string)
		}
		di.AdditionalInfo = s
	}
	if mask&DiagnosticInfoInnerStatusCode != 0 {
		s, err := d.ReadStatusCode("InnerStatusCode")
		if err != nil {
			return nil, err
		}
		di.InnerStatusCode = &s
	}
	if mask&DiagnosticInfoInnerDiagnosticInfo != 0 {
		inner, err := readDiagnosticInfo(d, "InnerDiagnosticInfo")
		if err != nil {
			return nil, err
		}
		di.InnerDiagnosticInfo = inner
	}
	return di, d.EndStruct()
}
