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

// Package opcua provides the OPC UA builtin types and the binary decoding
// engine used by the PubSub UADP decoder.
package opcua

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NodeIDType represents the type of a NodeID.
type NodeIDType uint8

// NodeID types.
const (
	NodeIDTypeNumeric NodeIDType = iota
	NodeIDTypeString
	NodeIDTypeGUID
	NodeIDTypeOpaque
)

// NodeID represents an OPC UA NodeID.
type NodeID struct {
	Type      NodeIDType
	Namespace uint16
	Numeric   uint32
	String    string
	GUID      uuid.UUID
	Opaque    []byte
}

// NewNumericNodeID creates a new numeric NodeID.
func NewNumericNodeID(namespace uint16, id uint32) NodeID {
	return NodeID{
		Type:      NodeIDTypeNumeric,
		Namespace: namespace,
		Numeric:   id,
	}
}

// NewStringNodeID creates a new string NodeID.
func NewStringNodeID(namespace uint16, id string) NodeID {
	return NodeID{
		Type:      NodeIDTypeString,
		Namespace: namespace,
		String:    id,
	}
}

// Key returns the canonical text form of the NodeID ("ns=2;i=7").
func (n NodeID) Key() string {
	var id string
	switch n.Type {
	case NodeIDTypeNumeric:
		id = fmt.Sprintf("i=%d", n.Numeric)
	case NodeIDTypeString:
		id = "s=" + n.String
	case NodeIDTypeGUID:
		id = "g=" + n.GUID.String()
	case NodeIDTypeOpaque:
		id = fmt.Sprintf("b=%x", n.Opaque)
	default:
		return fmt.Sprintf("<unknown type %d>", n.Type)
	}
	if n.Namespace == 0 {
		return id
	}
	return fmt.Sprintf("ns=%d;%s", n.Namespace, id)
}

// Equal reports whether two NodeIDs identify the same node.
func (n NodeID) Equal(o NodeID) bool {
	return n.Key() == o.Key()
}

// ExpandedNodeID is a NodeID that may name its namespace by URI and live on
// another server.
type ExpandedNodeID struct {
	NodeID       NodeID
	NamespaceURI string
	ServerIndex  uint32
}

// QualifiedName represents an OPC UA QualifiedName.
type QualifiedName struct {
	NamespaceIndex uint16
	Name           string
}

// LocalizedText represents an OPC UA LocalizedText.
type LocalizedText struct {
	Locale string
	Text   string
}

// StatusCode represents an OPC UA StatusCode.
type StatusCode uint32

// ExtensionObject carries a structured value. Body holds the raw encoded
// bytes; Value holds the decoded structure when the encoding id is known to
// the TypeRegistry in use.
type ExtensionObject struct {
	TypeID   NodeID
	Encoding byte
	Body     []byte
	Value    interface{}
}

// DataValue represents an OPC UA DataValue.
type DataValue struct {
	Value             *Variant
	StatusCode        StatusCode
	SourceTimestamp   time.Time
	ServerTimestamp   time.Time
	SourcePicoseconds uint16
	ServerPicoseconds uint16
}

// Variant represents an OPC UA Variant. Array values are held as
// []interface{}; ArrayDimensions is set only for multi-dimensional arrays.
type Variant struct {
	Type            TypeID
	Value           interface{}
	ArrayDimensions []int32
}

// IsArray reports whether the variant holds an array.
func (v Variant) IsArray() bool {
	_, ok := v.Value.([]interface{})
	return ok
}

// IsEmpty reports whether the variant carries no value.
func (v Variant) IsEmpty() bool {
	return v.Type == TypeNull && v.Value == nil
}

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

// String returns the OPC UA name of the builtin type.
func (t TypeID) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("Unknown(%d)", t)
}

// ParseTypeID resolves a builtin type name (case-insensitive).
func ParseTypeID(name string) (TypeID, error) {
	for i, n := range typeNames {
		if strings.EqualFold(n, name) {
			return TypeID(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown builtin type %q", StatusBadInvalidArgument, name)
}

// FixedSize returns the wire size of a fixed-width primitive type, or 0 for
// types whose encoding is variable or structured.
func (t TypeID) FixedSize() int {
	switch t {
	case TypeBoolean, TypeSByte, TypeByte:
		return 1
	case TypeInt16, TypeUInt16:
		return 2
	case TypeInt32, TypeUInt32, TypeFloat, TypeStatusCode:
		return 4
	case TypeInt64, TypeUInt64, TypeDouble, TypeDateTime:
		return 8
	case TypeGUID:
		return 16
	default:
		return 0
	}
}

// IsNumeric reports whether the type is one of the integer or floating
// point builtins.
func (t TypeID) IsNumeric() bool {
	return t >= TypeSByte && t <= TypeDouble
}

// Protocol constants.
const (
	// DefaultPort is the default OPC UA UDP/TCP port.
	DefaultPort = 4840

	// DefaultMaxMessageSize bounds a reassembled PubSub message.
	DefaultMaxMessageSize uint32 = 65535

	// MaxNestingDepth bounds Variant/DataValue/DiagnosticInfo recursion.
	MaxNestingDepth = 100
)

// DiagnosticInfo contains diagnostic information. Absent integer fields are -1.
type DiagnosticInfo struct {
	SymbolicID          int32
	NamespaceURI        int32
	Locale              int32
	LocalizedText       int32
	AdditionalInfo      string
	InnerStatusCode     StatusCode
	InnerDiagnosticInfo *DiagnosticInfo
}
