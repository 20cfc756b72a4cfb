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
	"bytes"
	"cmp"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

// NodeIDType represents the type of a NodeID.
type NodeIDType uint8

// NodeID types.
const (
	NodeIDTypeNumeric NodeIDType = 0
	NodeIDTypeString  NodeIDType = 1
	NodeIDTypeGUID    NodeIDType = 2
	NodeIDTypeOpaque  NodeIDType = 3
)

// String returns the identifier prefix used in the text form.
func (t NodeIDType) String() string {
	switch t {
	case NodeIDTypeNumeric:
		return "i"
	case NodeIDTypeString:
		return "s"
	case NodeIDTypeGUID:
		return "g"
	case NodeIDTypeOpaque:
		return "b"
	default:
		return "?"
	}
}

// NodeID represents an OPC UA NodeID. Only the field selected by Type is
// meaningful. The zero value is the null NodeID, i=0.
type NodeID struct {
	Type      NodeIDType
	Namespace uint16
	Numeric   uint32
	StringID  string
	GUID      GUID
	Opaque    []byte
}

// NewNumericNodeID creates a new numeric NodeID.
func NewNumericNodeID(namespace uint16, id uint32) NodeID {
	return NodeID{Type: NodeIDTypeNumeric, Namespace: namespace, Numeric: id}
}

// NewStringNodeID creates a new string NodeID.
func NewStringNodeID(namespace uint16, id string) NodeID {
	return NodeID{Type: NodeIDTypeString, Namespace: namespace, StringID: id}
}

// NewGUIDNodeID creates a new GUID NodeID.
func NewGUIDNodeID(namespace uint16, id GUID) NodeID {
	return NodeID{Type: NodeIDTypeGUID, Namespace: namespace, GUID: id}
}

// NewOpaqueNodeID creates a new opaque NodeID. The NodeID owns id.
func NewOpaqueNodeID(namespace uint16, id []byte) NodeID {
	return NodeID{Type: NodeIDTypeOpaque, Namespace: namespace, Opaque: id}
}

// IsNull reports whether n is the null NodeID.
func (n NodeID) IsNull() bool {
	return n.Namespace == 0 && n.Type == NodeIDTypeNumeric && n.Numeric == 0
}

// Equal reports whether n and o identify the same node.
func (n NodeID) Equal(o NodeID) bool {
	return n.Compare(o) == 0
}

// Compare orders NodeIDs by namespace, then identifier type, then value.
func (n NodeID) Compare(o NodeID) int {
	if c := cmp.Compare(n.Namespace, o.Namespace); c != 0 {
		return c
	}
	if c := cmp.Compare(n.Type, o.Type); c != 0 {
		return c
	}
	switch n.Type {
	case NodeIDTypeNumeric:
		return cmp.Compare(n.Numeric, o.Numeric)
	case NodeIDTypeString:
		return strings.Compare(n.StringID, o.StringID)
	case NodeIDTypeGUID:
		return bytes.Compare(n.GUID[:], o.GUID[:])
	default:
		return bytes.Compare(n.Opaque, o.Opaque)
	}
}

// nodeKey is a comparable form of NodeID for use as a map key.
type nodeKey struct {
	ns  uint16
	typ NodeIDType
	num uint32
	str string
}

func (n NodeID) key() nodeKey {
	k := nodeKey{ns: n.Namespace, typ: n.Type}
	switch n.Type {
	case NodeIDTypeNumeric:
		k.num = n.Numeric
	case NodeIDTypeString:
		k.str = n.StringID
	case NodeIDTypeGUID:
		k.str = string(n.GUID[:])
	default:
		k.str = string(n.Opaque)
	}
	return k
}

// String returns the standard text form, e.g. "ns=2;s=Temperature".
func (n NodeID) String() string {
	var sb strings.Builder
	if n.Namespace != 0 {
		fmt.Fprintf(&sb, "ns=%d;", n.Namespace)
	}
	n.writeIdentifier(&sb)
	return sb.String()
}

func (n NodeID) writeIdentifier(sb *strings.Builder) {
	sb.WriteString(n.Type.String())
	sb.WriteByte('=')
	switch n.Type {
	case NodeIDTypeNumeric:
		sb.WriteString(strconv.FormatUint(uint64(n.Numeric), 10))
	case NodeIDTypeString:
		sb.WriteString(n.StringID)
	case NodeIDTypeGUID:
		sb.WriteString(n.GUID.String())
	case NodeIDTypeOpaque:
		sb.WriteString(base64.StdEncoding.EncodeToString(n.Opaque))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (n NodeID) MarshalText() ([]byte, error) {
	return []byte(n.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (n *NodeID) UnmarshalText(text []byte) error {
	v, err := ParseNodeID(string(text))
	if err != nil {
		return err
	}
	*n = v
	return nil
}

// ParseNodeID parses the standard text form of a NodeID. A bare number is
// accepted as a numeric identifier in namespace 0.
func ParseNodeID(s string) (NodeID, error) {
	ns := uint16(0)
	identifier := s
	if rest, ok := strings.CutPrefix(s, "ns="); ok {
		nsStr, id, found := strings.Cut(rest, ";")
		if !found {
			return NodeID{}, fmt.Errorf("%w: node id %q", ErrInvalidValue, s)
		}
		v, err := strconv.ParseUint(nsStr, 10, 16)
		if err != nil {
			return NodeID{}, fmt.Errorf("%w: namespace %q", ErrInvalidValue, nsStr)
		}
		ns = uint16(v)
		identifier = id
	}
	return parseIdentifier(s, ns, identifier)
}

func parseIdentifier(s string, ns uint16, identifier string) (NodeID, error) {
	kind, value, found := strings.Cut(identifier, "=")
	if !found {
		id, err := strconv.ParseUint(identifier, 10, 32)
		if err != nil {
			return NodeID{}, fmt.Errorf("%w: node id %q", ErrInvalidValue, s)
		}
		return NewNumericNodeID(ns, uint32(id)), nil
	}
	switch kind {
	case "i":
		id, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return NodeID{}, fmt.Errorf("%w: numeric id %q", ErrInvalidValue, value)
		}
		return NewNumericNodeID(ns, uint32(id)), nil
	case "s":
		return NewStringNodeID(ns, value), nil
	case "g":
		g, err := ParseGUID(value)
		if err != nil {
			return NodeID{}, err
		}
		return NewGUIDNodeID(ns, g), nil
	case "b":
		b, err := base64.StdEncoding.DecodeString(value)
		if err != nil {
			return NodeID{}, fmt.Errorf("%w: opaque id %q: %v", ErrInvalidValue, value, err)
		}
		return NewOpaqueNodeID(ns, b), nil
	default:
		return NodeID{}, fmt.Errorf("%w: node id %q", ErrInvalidValue, s)
	}
}

// ExpandedNodeID is a NodeID that may name its namespace by URI and may
// live on another server.
type ExpandedNodeID struct {
	NodeID       NodeID
	NamespaceURI string
	ServerIndex  uint32
}

// NewExpandedNodeID wraps a local NodeID.
func NewExpandedNodeID(n NodeID) ExpandedNodeID {
	return ExpandedNodeID{NodeID: n}
}

// NamespaceFromURI reports whether the namespace is supplied by URI. This is
// the case when a URI is present and the namespace index is 0; the index is
// then meaningless.
func (e ExpandedNodeID) NamespaceFromURI() bool {
	return e.NamespaceURI != "" && e.NodeID.Namespace == 0
}

// IsLocal reports whether e refers to the local server.
func (e ExpandedNodeID) IsLocal() bool {
	return e.ServerIndex == 0
}

// Equal reports whether e and o are identical.
func (e ExpandedNodeID) Equal(o ExpandedNodeID) bool {
	return e.ServerIndex == o.ServerIndex && e.NamespaceURI == o.NamespaceURI && e.NodeID.Equal(o.NodeID)
}

// String returns the standard text form, e.g.
// "svr=1;nsu=http://opcfoundation.org/UA/;i=68".
func (e ExpandedNodeID) String() string {
	var sb strings.Builder
	if e.ServerIndex != 0 {
		fmt.Fprintf(&sb, "svr=%d;", e.ServerIndex)
	}
	switch {
	case e.NamespaceURI != "":
		fmt.Fprintf(&sb, "nsu=%s;", strings.ReplaceAll(e.NamespaceURI, ";", "%3B"))
		if e.NodeID.Namespace != 0 {
			fmt.Fprintf(&sb, "ns=%d;", e.NodeID.Namespace)
		}
	case e.NodeID.Namespace != 0:
		fmt.Fprintf(&sb, "ns=%d;", e.NodeID.Namespace)
	}
	e.NodeID.writeIdentifier(&sb)
	return sb.String()
}

// MarshalText implements encoding.TextMarshaler.
func (e ExpandedNodeID) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (e *ExpandedNodeID) UnmarshalText(text []byte) error {
	v, err := ParseExpandedNodeID(string(text))
	if err != nil {
		return err
	}
	*e = v
	return nil
}

// ParseExpandedNodeID parses the text form of an ExpandedNodeID. Any plain
// NodeID text is also accepted.
func ParseExpandedNodeID(s string) (ExpandedNodeID, error) {
	var e ExpandedNodeID
	rest := s
	if r, ok := strings.CutPrefix(rest, "svr="); ok {
		idx, tail, found := strings.Cut(r, ";")
		if !found {
			return e, fmt.Errorf("%w: expanded node id %q", ErrInvalidValue, s)
		}
		v, err := strconv.ParseUint(idx, 10, 32)
		if err != nil {
			return e, fmt.Errorf("%w: server index %q", ErrInvalidValue, idx)
		}
		e.ServerIndex = uint32(v)
		rest = tail
	}
	if r, ok := strings.CutPrefix(rest, "nsu="); ok {
		uri, tail, found := strings.Cut(r, ";")
		if !found {
			return e, fmt.Errorf("%w: expanded node id %q", ErrInvalidValue, s)
		}
		e.NamespaceURI = strings.ReplaceAll(uri, "%3B", ";")
		rest = tail
	}
	n, err := ParseNodeID(rest)
	if err != nil {
		return e, err
	}
	e.NodeID = n
	return e, nil
}
