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
	"encoding/hex"
	"fmt"
	"strings"
)

// GUID is a 16-byte identifier held in its canonical (big-endian, as
// printed) byte order. The wire form swaps Data1, Data2 and Data3 to
// little-endian.
type GUID [16]byte

// ParseGUID parses the canonical "xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx" form.
// Braces are accepted and ignored.
func ParseGUID(s string) (GUID, error) {
	var g GUID
	s = strings.TrimSuffix(strings.TrimPrefix(s, "{"), "}")
	if len(s) != 36 || s[8] != '-' || s[13] != '-' || s[18] != '-' || s[23] != '-' {
		return g, fmt.Errorf("%w: guid %q", ErrInvalidValue, s)
	}
	raw := s[0:8] + s[9:13] + s[14:18] + s[19:23] + s[24:36]
	if _, err := hex.Decode(g[:], []byte(raw)); err != nil {
		return g, fmt.Errorf("%w: guid %q: %v", ErrInvalidValue, s, err)
	}
	return g, nil
}

// String returns the canonical upper-case form.
func (g GUID) String() string {
	return strings.ToUpper(fmt.Sprintf("%x-%x-%x-%x-%x", g[0:4], g[4:6], g[6:8], g[8:10], g[10:16]))
}

// MarshalText implements encoding.TextMarshaler.
func (g GUID) MarshalText() ([]byte, error) {
	return []byte(g.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (g *GUID) UnmarshalText(text []byte) error {
	v, err := ParseGUID(string(text))
	if err != nil {
		return err
	}
	*g = v
	return nil
}

// appendWire appends the 16-byte wire form of g to buf.
func (g GUID) appendWire(buf []byte) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, binary.BigEndian.Uint32(g[0:4]))
	buf = binary.LittleEndian.AppendUint16(buf, binary.BigEndian.Uint16(g[4:6]))
	buf = binary.LittleEndian.AppendUint16(buf, binary.BigEndian.Uint16(g[6:8]))
	return append(buf, g[8:16]...)
}

// guidFromWire converts the 16-byte wire form back to a GUID.
func guidFromWire(b []byte) GUID {
	var g GUID
	binary.BigEndian.PutUint32(g[0:4], binary.LittleEndian.Uint32(b[0:4]))
	binary.BigEndian.PutUint16(g[4:6], binary.LittleEndian.Uint16(b[4:6]))
	binary.BigEndian.PutUint16(g[6:8], binary.LittleEndian.Uint16(b[6:8]))
	copy(g[8:16], b[8:16])
	return g
}
