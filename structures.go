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

import "fmt"

// The structure codecs below lean on the sticky stream error: each field
// is written or read in turn and the first failure is returned by Err.

// AttributeID represents an OPC UA attribute identifier.
type AttributeID uint32

// OPC UA Attribute IDs.
const (
	AttributeNodeID                  AttributeID = 1
	AttributeNodeClass               AttributeID = 2
	AttributeBrowseName              AttributeID = 3
	AttributeDisplayName             AttributeID = 4
	AttributeDescription             AttributeID = 5
	AttributeWriteMask               AttributeID = 6
	AttributeUserWriteMask           AttributeID = 7
	AttributeIsAbstract              AttributeID = 8
	AttributeSymmetric               AttributeID = 9
	AttributeInverseName             AttributeID = 10
	AttributeContainsNoLoops         AttributeID = 11
	AttributeEventNotifier           AttributeID = 12
	AttributeValue                   AttributeID = 13
	AttributeDataType                AttributeID = 14
	AttributeValueRank               AttributeID = 15
	AttributeArrayDimensions         AttributeID = 16
	AttributeAccessLevel             AttributeID = 17
	AttributeUserAccessLevel         AttributeID = 18
	AttributeMinimumSamplingInterval AttributeID = 19
	AttributeHistorizing             AttributeID = 20
	AttributeExecutable              AttributeID = 21
	AttributeUserExecutable          AttributeID = 22
)

var attributeNames = [...]string{
	AttributeNodeID:                  "NodeId",
	AttributeNodeClass:               "NodeClass",
	AttributeBrowseName:              "BrowseName",
	AttributeDisplayName:             "DisplayName",
	AttributeDescription:             "Description",
	AttributeWriteMask:               "WriteMask",
	AttributeUserWriteMask:           "UserWriteMask",
	AttributeIsAbstract:              "IsAbstract",
	AttributeSymmetric:               "Symmetric",
	AttributeInverseName:             "InverseName",
	AttributeContainsNoLoops:         "ContainsNoLoops",
	AttributeEventNotifier:           "EventNotifier",
	AttributeValue:                   "Value",
	AttributeDataType:                "DataType",
	AttributeValueRank:               "ValueRank",
	AttributeArrayDimensions:         "ArrayDimensions",
	AttributeAccessLevel:             "AccessLevel",
	AttributeUserAccessLevel:         "UserAccessLevel",
	AttributeMinimumSamplingInterval: "MinimumSamplingInterval",
	AttributeHistorizing:             "Historizing",
	AttributeExecutable:              "Executable",
	AttributeUserExecutable:          "UserExecutable",
}

// String returns the attribute name.
func (a AttributeID) String() string {
	if a > 0 && int(a) < len(attributeNames) {
		return attributeNames[a]
	}
	return fmt.Sprintf("AttributeID(%d)", uint32(a))
}

// NodeClass represents the class of an OPC UA node.
type NodeClass int32

// OPC UA Node Classes.
const (
	NodeClassUnspecified   NodeClass = 0
	NodeClassObject        NodeClass = 1
	NodeClassVariable      NodeClass = 2
	NodeClassMethod        NodeClass = 4
	NodeClassObjectType    NodeClass = 8
	NodeClassVariableType  NodeClass = 16
	NodeClassReferenceType NodeClass = 32
	NodeClassDataType      NodeClass = 64
	NodeClassView          NodeClass = 128
)

var nodeClassNames = map[NodeClass]string{
	NodeClassUnspecified:   "Unspecified",
	NodeClassObject:        "Object",
	NodeClassVariable:      "Variable",
	NodeClassMethod:        "Method",
	NodeClassObjectType:    "ObjectType",
	NodeClassVariableType:  "VariableType",
	NodeClassReferenceType: "ReferenceType",
	NodeClassDataType:      "DataType",
	NodeClassView:          "View",
}

// String returns the node class name.
func (n NodeClass) String() string {
	if s, ok := nodeClassNames[n]; ok {
		return s
	}
	return fmt.Sprintf("NodeClass(%d)", int32(n))
}

// BrowseDirection represents the direction to browse in the address space.
type BrowseDirection int32

// Browse directions.
const (
	BrowseDirectionForward BrowseDirection = 0
	BrowseDirectionInverse BrowseDirection = 1
	BrowseDirectionBoth    BrowseDirection = 2
)

// String returns the direction name.
func (b BrowseDirection) String() string {
	switch b {
	case BrowseDirectionForward:
		return "Forward"
	case BrowseDirectionInverse:
		return "Inverse"
	case BrowseDirectionBoth:
		return "Both"
	default:
		return fmt.Sprintf("BrowseDirection(%d)", int32(b))
	}
}

// ApplicationType represents the type of an OPC UA application.
type ApplicationType int32

// Application types.
const (
	ApplicationTypeServer          ApplicationType = 0
	ApplicationTypeClient          ApplicationType = 1
	ApplicationTypeClientAndServer ApplicationType = 2
	ApplicationTypeDiscoveryServer ApplicationType = 3
)

// String returns the application type name.
func (a ApplicationType) String() string {
	switch a {
	case ApplicationTypeServer:
		return "Server"
	case ApplicationTypeClient:
		return "Client"
	case ApplicationTypeClientAndServer:
		return "ClientAndServer"
	case ApplicationTypeDiscoveryServer:
		return "DiscoveryServer"
	default:
		return fmt.Sprintf("ApplicationType(%d)", int32(a))
	}
}

// Range is the standard Range structure.
type Range struct {
	Low  float64
	High float64
}

func encodeRange(e Encoder, v *Range) error {
	e.WriteDouble("Low", v.Low)
	e.WriteDouble("High", v.High)
	return e.Err()
}

func decodeRange(d Decoder, v *Range) error {
	v.Low, _ = d.ReadDouble("Low")
	v.High, _ = d.ReadDouble("High")
	return d.Err()
}

// EUInformation describes an engineering unit.
type EUInformation struct {
	NamespaceURI string
	UnitID       int32
	DisplayName  LocalizedText
	Description  LocalizedText
}

func encodeEUInformation(e Encoder, v *EUInformation) error {
	e.WriteString("NamespaceUri", v.NamespaceURI)
	e.WriteInt32("UnitId", v.UnitID)
	e.WriteLocalizedText("DisplayName", v.DisplayName)
	e.WriteLocalizedText("Description", v.Description)
	return e.Err()
}

func decodeEUInformation(d Decoder, v *EUInformation) error {
	v.NamespaceURI, _ = d.ReadString("NamespaceUri")
	v.UnitID, _ = d.ReadInt32("UnitId")
	v.DisplayName, _ = d.ReadLocalizedText("DisplayName")
	v.Description, _ = d.ReadLocalizedText("Description")
	return d.Err()
}

// EnumValueType describes one value of an enumeration.
type EnumValueType struct {
	Value       int64
	DisplayName LocalizedText
	Description LocalizedText
}

func encodeEnumValueType(e Encoder, v *EnumValueType) error {
	e.WriteInt64("Value", v.Value)
	e.WriteLocalizedText("DisplayName", v.DisplayName)
	e.WriteLocalizedText("Description", v.Description)
	return e.Err()
}

func decodeEnumValueType(d Decoder, v *EnumValueType) error {
	v.Value, _ = d.ReadInt64("Value")
	v.DisplayName, _ = d.ReadLocalizedText("DisplayName")
	v.Description, _ = d.ReadLocalizedText("Description")
	return d.Err()
}

// Argument describes a method argument.
type Argument struct {
	Name            string
	DataType        NodeID
	ValueRank       int32
	ArrayDimensions []uint32
	Description     LocalizedText
}

func encodeArgument(e Encoder, v *Argument) error {
	e.WriteString("Name", v.Name)
	e.WriteNodeID("DataType", v.DataType)
	e.WriteInt32("ValueRank", v.ValueRank)
	WriteArray(e, "ArrayDimensions", "UInt32", v.ArrayDimensions, Encoder.WriteUInt32)
	e.WriteLocalizedText("Description", v.Description)
	return e.Err()
}

func decodeArgument(d Decoder, v *Argument) error {
	v.Name, _ = d.ReadString("Name")
	v.DataType, _ = d.ReadNodeID("DataType")
	v.ValueRank, _ = d.ReadInt32("ValueRank")
	v.ArrayDimensions, _ = ReadArray(d, "ArrayDimensions", "UInt32", 4, Decoder.ReadUInt32)
	v.Description, _ = d.ReadLocalizedText("Description")
	return d.Err()
}

// ReadValueID identifies a node attribute to read.
type ReadValueID struct {
	NodeID       NodeID
	AttributeID  AttributeID
	IndexRange   string
	DataEncoding QualifiedName
}

func encodeReadValueID(e Encoder, v *ReadValueID) error {
	e.WriteNodeID("NodeId", v.NodeID)
	e.WriteUInt32("AttributeId", uint32(v.AttributeID))
	e.WriteString("IndexRange", v.IndexRange)
	e.WriteQualifiedName("DataEncoding", v.DataEncoding)
	return e.Err()
}

func decodeReadValueID(d Decoder, v *ReadValueID) error {
	v.NodeID, _ = d.ReadNodeID("NodeId")
	attr, _ := d.ReadUInt32("AttributeId")
	v.AttributeID = AttributeID(attr)
	v.IndexRange, _ = d.ReadString("IndexRange")
	v.DataEncoding, _ = d.ReadQualifiedName("DataEncoding")
	return d.Err()
}

// WriteValue is a value to write to a node attribute.
type WriteValue struct {
	NodeID      NodeID
	AttributeID AttributeID
	IndexRange  string
	Value       DataValue
}

func encodeWriteValue(e Encoder, v *WriteValue) error {
	e.WriteNodeID("NodeId", v.NodeID)
	e.WriteUInt32("AttributeId", uint32(v.AttributeID))
	e.WriteString("IndexRange", v.IndexRange)
	e.WriteDataValue("Value", &v.Value)
	return e.Err()
}

func decodeWriteValue(d Decoder, v *WriteValue) error {
	v.NodeID, _ = d.ReadNodeID("NodeId")
	attr, _ := d.ReadUInt32("AttributeId")
	v.AttributeID = AttributeID(attr)
	v.IndexRange, _ = d.ReadString("IndexRange")
	if dv, _ := d.ReadDataValue("Value"); dv != nil {
		v.Value = *dv
	}
	return d.Err()
}

// BrowseDescription describes what to browse from a node.
type BrowseDescription struct {
	NodeID          NodeID
	BrowseDirection BrowseDirection
	ReferenceTypeID NodeID
	IncludeSubtypes bool
	NodeClassMask   uint32
	ResultMask      uint32
}

func encodeBrowseDescription(e Encoder, v *BrowseDescription) error {
	e.WriteNodeID("NodeId", v.NodeID)
	e.WriteInt32("BrowseDirection", int32(v.BrowseDirection))
	e.WriteNodeID("ReferenceTypeId", v.ReferenceTypeID)
	e.WriteBoolean("IncludeSubtypes", v.IncludeSubtypes)
	e.WriteUInt32("NodeClassMask", v.NodeClassMask)
	e.WriteUInt32("ResultMask", v.ResultMask)
	return e.Err()
}

func decodeBrowseDescription(d Decoder, v *BrowseDescription) error {
	v.NodeID, _ = d.ReadNodeID("NodeId")
	dir, _ := d.ReadInt32("BrowseDirection")
	v.BrowseDirection = BrowseDirection(dir)
	v.ReferenceTypeID, _ = d.ReadNodeID("ReferenceTypeId")
	v.IncludeSubtypes, _ = d.ReadBoolean("IncludeSubtypes")
	v.NodeClassMask, _ = d.ReadUInt32("NodeClassMask")
	v.ResultMask, _ = d.ReadUInt32("ResultMask")
	return d.Err()
}

// ReferenceDescription describes a reference returned from a browse.
type ReferenceDescription struct {
	ReferenceTypeID NodeID
	IsForward       bool
	NodeID          ExpandedNodeID
	BrowseName      QualifiedName
	DisplayName     LocalizedText
	NodeClass       NodeClass
	TypeDefinition  ExpandedNodeID
}

func encodeReferenceDescription(e Encoder, v *ReferenceDescription) error {
	e.WriteNodeID("ReferenceTypeId", v.ReferenceTypeID)
	e.WriteBoolean("IsForward", v.IsForward)
	e.WriteExpandedNodeID("NodeId", v.NodeID)
	e.WriteQualifiedName("BrowseName", v.BrowseName)
	e.WriteLocalizedText("DisplayName", v.DisplayName)
	e.WriteInt32("NodeClass", int32(v.NodeClass))
	e.WriteExpandedNodeID("TypeDefinition", v.TypeDefinition)
	return e.Err()
}

func decodeReferenceDescription(d Decoder, v *ReferenceDescription) error {
	v.ReferenceTypeID, _ = d.ReadNodeID("ReferenceTypeId")
	v.IsForward, _ = d.ReadBoolean("IsForward")
	v.NodeID, _ = d.ReadExpandedNodeID("NodeId")
	v.BrowseName, _ = d.ReadQualifiedName("BrowseName")
	v.DisplayName, _ = d.ReadLocalizedText("DisplayName")
	nc, _ := d.ReadInt32("NodeClass")
	v.NodeClass = NodeClass(nc)
	v.TypeDefinition, _ = d.ReadExpandedNodeID("TypeDefinition")
	return d.Err()
}

// ApplicationDescription describes an OPC UA application.
type ApplicationDescription struct {
	ApplicationURI      string
	ProductURI          string
	ApplicationName     LocalizedText
	ApplicationType     ApplicationType
	GatewayServerURI    string
	DiscoveryProfileURI string
	DiscoveryURLs       []string
}

func encodeApplicationDescription(e Encoder, v *ApplicationDescription) error {
	e.WriteString("ApplicationUri", v.ApplicationURI)
	e.WriteString("ProductUri", v.ProductURI)
	e.WriteLocalizedText("ApplicationName", v.ApplicationName)
	e.WriteInt32("ApplicationType", int32(v.ApplicationType))
	e.WriteString("GatewayServerUri", v.GatewayServerURI)
	e.WriteString("DiscoveryProfileUri", v.DiscoveryProfileURI)
	WriteArray(e, "DiscoveryUrls", "String", v.DiscoveryURLs, Encoder.WriteString)
	return e.Err()
}

func decodeApplicationDescription(d Decoder, v *ApplicationDescription) error {
	v.ApplicationURI, _ = d.ReadString("ApplicationUri")
	v.ProductURI, _ = d.ReadString("ProductUri")
	v.ApplicationName, _ = d.ReadLocalizedText("ApplicationName")
	at, _ := d.ReadInt32("ApplicationType")
	v.ApplicationType = ApplicationType(at)
	v.GatewayServerURI, _ = d.ReadString("GatewayServerUri")
	v.DiscoveryProfileURI, _ = d.ReadString("DiscoveryProfileUri")
	v.DiscoveryURLs, _ = ReadArray(d, "DiscoveryUrls", "String", 4, Decoder.ReadString)
	return d.Err()
}

// ServiceCounterDataType counts service calls and their failures.
type ServiceCounterDataType struct {
	TotalCount uint32
	ErrorCount uint32
}

func encodeServiceCounter(e Encoder, v *ServiceCounterDataType) error {
	e.WriteUInt32("TotalCount", v.TotalCount)
	e.WriteUInt32("ErrorCount", v.ErrorCount)
	return e.Err()
}

func decodeServiceCounter(d Decoder, v *ServiceCounterDataType) error {
	v.TotalCount, _ = d.ReadUInt32("TotalCount")
	v.ErrorCount, _ = d.ReadUInt32("ErrorCount")
	return d.Err()
}

// builtinIDs returns the data type, XML encoding and binary encoding ids of a
// namespace 0 structure, in the order the standard lists them.
func builtinIDs(dataType, xml, bin uint32) (NodeID, NodeID, NodeID) {
	return NewNumericNodeID(0, dataType), NewNumericNodeID(0, bin), NewNumericNodeID(0, xml)
}

// registerBuiltins adds the compiled-in standard structures to r.
func registerBuiltins(r *Registry) error {
	for _, reg := range []func() error{
		func() error {
			dt, bin, xml := builtinIDs(884, 885, 886)
			return RegisterStructure(r, "Range", dt, bin, xml, encodeRange, decodeRange)
		},
		func() error {
			dt, bin, xml := builtinIDs(887, 888, 889)
			return RegisterStructure(r, "EUInformation", dt, bin, xml, encodeEUInformation, decodeEUInformation)
		},
		func() error {
			dt, bin, xml := builtinIDs(7594, 7616, 8251)
			return RegisterStructure(r, "EnumValueType", dt, bin, xml, encodeEnumValueType, decodeEnumValueType)
		},
		func() error {
			dt, bin, xml := builtinIDs(296, 297, 298)
			return RegisterStructure(r, "Argument", dt, bin, xml, encodeArgument, decodeArgument)
		},
		func() error {
			dt, bin, xml := builtinIDs(626, 627, 628)
			return RegisterStructure(r, "ReadValueId", dt, bin, xml, encodeReadValueID, decodeReadValueID)
		},
		func() error {
			dt, bin, xml := builtinIDs(668, 669, 670)
			return RegisterStructure(r, "WriteValue", dt, bin, xml, encodeWriteValue, decodeWriteValue)
		},
		func() error {
			dt, bin, xml := builtinIDs(514, 515, 516)
			return RegisterStructure(r, "BrowseDescription", dt, bin, xml, encodeBrowseDescription, decodeBrowseDescription)
		},
		func() error {
			dt, bin, xml := builtinIDs(518, 519, 520)
			return RegisterStructure(r, "ReferenceDescription", dt, bin, xml, encodeReferenceDescription, decodeReferenceDescription)
		},
		func() error {
			dt, bin, xml := builtinIDs(308, 309, 310)
			return RegisterStructure(r, "ApplicationDescription", dt, bin, xml, encodeApplicationDescription, decodeApplicationDescription)
		},
		func() error {
			dt, bin, xml := builtinIDs(871, 872, 873)
			return RegisterStructure(r, "ServiceCounterDataType", dt, bin, xml, encodeServiceCounter, decodeServiceCounter)
		},
	} {
		if err := reg(); err != nil {
			return err
		}
	}
	return nil
}
