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

// Package pubsub decodes OPC UA PubSub NetworkMessages in the UADP binary
// mapping.
//
// Two entry points are provided. Decoder.Decode parses a datagram into a new
// NetworkMessage. Decoder.DecodeAndVerify parses a datagram against a message
// pre-populated from subscriber configuration: structural values are compared
// and the per-datagram values are filled in. Chunked messages are reassembled
// into a caller-owned ChunkData.
package pubsub

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	opcua "github.com/edgeo-scada/uadp"
)

// UADPFlags holds the upper nibble of the first NetworkMessage byte. The
// lower nibble is the UADP version.
type UADPFlags uint8

// NetworkMessage header flags.
const (
	FlagPublisherID    UADPFlags = 1 << 4
	FlagGroupHeader    UADPFlags = 1 << 5
	FlagPayloadHeader  UADPFlags = 1 << 6
	FlagExtendedFlags1 UADPFlags = 1 << 7

	versionMask = 0x0F
)

// ExtendedFlags1 is the optional second header byte.
type ExtendedFlags1 uint8

// ExtendedFlags1 bits.
const (
	ExtFlags1PublisherIDTypeMask ExtendedFlags1 = 0x07
	ExtFlags1DataSetClassID      ExtendedFlags1 = 1 << 3
	ExtFlags1Security            ExtendedFlags1 = 1 << 4
	ExtFlags1Timestamp           ExtendedFlags1 = 1 << 5
	ExtFlags1PicoSeconds         ExtendedFlags1 = 1 << 6
	ExtFlags1ExtendedFlags2      ExtendedFlags1 = 1 << 7
)

// ExtendedFlags2 is the optional third header byte.
type ExtendedFlags2 uint8

// ExtendedFlags2 bits.
const (
	ExtFlags2Chunk                  ExtendedFlags2 = 1 << 0
	ExtFlags2PromotedFields         ExtendedFlags2 = 1 << 1
	ExtFlags2NetworkMessageTypeMask ExtendedFlags2 = 0x1C
)

// NetworkMessageType returns the message type carried in bits 2-4.
// 0 is a DataSetMessage payload; the discovery types are not decoded.
func (f ExtendedFlags2) NetworkMessageType() uint8 {
	return uint8(f&ExtFlags2NetworkMessageTypeMask) >> 2
}

// PublisherIDType is the type tag of a PublisherID.
type PublisherIDType uint8

// PublisherID types. PublisherIDNone means the header carries no id.
const (
	PublisherIDNone PublisherIDType = iota
	PublisherIDByte
	PublisherIDUInt16
	PublisherIDUInt32
	PublisherIDUInt64
	PublisherIDString
)

var publisherIDTypeNames = [...]string{"None", "Byte", "UInt16", "UInt32", "UInt64", "String"}

func (t PublisherIDType) String() string {
	if int(t) < len(publisherIDTypeNames) {
		return publisherIDTypeNames[t]
	}
	return fmt.Sprintf("PublisherIDType(%d)", t)
}

// wireCode returns the ExtendedFlags1 encoding of a present id type.
func (t PublisherIDType) wireCode() ExtendedFlags1 {
	if t == PublisherIDNone {
		return 0
	}
	return ExtendedFlags1(t - 1)
}

// PublisherID identifies the publishing node.
type PublisherID struct {
	Type    PublisherIDType
	Numeric uint64
	Text    string
}

// NumericPublisherID returns a numeric id of type t. The value is truncated
// to the width of t.
func NumericPublisherID(t PublisherIDType, v uint64) PublisherID {
	switch t {
	case PublisherIDByte:
		v = uint64(uint8(v))
	case PublisherIDUInt16:
		v = uint64(uint16(v))
	case PublisherIDUInt32:
		v = uint64(uint32(v))
	}
	return PublisherID{Type: t, Numeric: v}
}

// StringPublisherID returns a string id.
func StringPublisherID(s string) PublisherID {
	return PublisherID{Type: PublisherIDString, Text: s}
}

// Equal compares type and the value belonging to that type.
func (p PublisherID) Equal(o PublisherID) bool {
	if p.Type != o.Type {
		return false
	}
	switch p.Type {
	case PublisherIDNone:
		return true
	case PublisherIDString:
		return p.Text == o.Text
	default:
		return p.Numeric == o.Numeric
	}
}

func (p PublisherID) String() string {
	switch p.Type {
	case PublisherIDNone:
		return "none"
	case PublisherIDString:
		return fmt.Sprintf("%q", p.Text)
	default:
		return fmt.Sprintf("%s(%d)", p.Type, p.Numeric)
	}
}

// GroupFlags selects the GroupHeader fields present on the wire.
type GroupFlags uint8

// GroupHeader flags.
const (
	GroupFlagWriterGroupID        GroupFlags = 1 << 0
	GroupFlagGroupVersion         GroupFlags = 1 << 1
	GroupFlagNetworkMessageNumber GroupFlags = 1 << 2
	GroupFlagSequenceNumber       GroupFlags = 1 << 3
)

// GroupHeader identifies the writer group of a NetworkMessage.
type GroupHeader struct {
	Flags                GroupFlags
	WriterGroupID        *uint16
	GroupVersion         *uint32
	NetworkMessageNumber *uint16
	SequenceNumber       *uint16
}

// PayloadHeader lists the DataSetWriterIds of the DataSetMessages in the
// payload. A chunk message carries exactly one id on the wire.
type PayloadHeader struct {
	DataSetWriterIDs []uint16
}

// SecurityFlags describe how the message is secured.
type SecurityFlags uint8

// SecurityHeader flags.
const (
	SecurityFlagSigned        SecurityFlags = 1 << 0
	SecurityFlagEncrypted     SecurityFlags = 1 << 1
	SecurityFlagFooter        SecurityFlags = 1 << 2
	SecurityFlagForceKeyReset SecurityFlags = 1 << 3
)

// SecurityHeader is present when ExtFlags1Security is set.
type SecurityHeader struct {
	Flags              SecurityFlags
	SecurityTokenID    uint32
	MessageNonce       []byte
	SecurityFooterSize *uint16
}

// ChunkMessage describes the chunk carried by the last decoded datagram.
type ChunkMessage struct {
	DataSetWriterID       uint16
	MessageSequenceNumber uint16
	ChunkOffset           uint32
	TotalSize             uint32

	// Data is a copy of the fragment bytes. It is only set by Decode;
	// DecodeAndVerify copies fragments into a ChunkData instead.
	Data []byte

	// Duplicate is set when the fragment offset had already been received.
	Duplicate bool

	// Complete is set when the fragment completed its message and the
	// DataSetMessage was decoded from the reassembly buffer.
	Complete bool
}

// NetworkMessage is one decoded UADP datagram.
type NetworkMessage struct {
	Version        uint8
	Flags          UADPFlags
	ExtendedFlags1 ExtendedFlags1
	ExtendedFlags2 ExtendedFlags2

	PublisherID    PublisherID
	DataSetClassID *uuid.UUID

	GroupHeader   *GroupHeader
	PayloadHeader *PayloadHeader

	Timestamp      *time.Time
	PicoSeconds    *uint16
	PromotedFields []opcua.Variant

	SecurityHeader *SecurityHeader
	SecurityFooter []byte

	Chunk           *ChunkMessage
	DataSetMessages []DataSetMessage
}

// Pending reports whether the last datagram was a chunk that did not yet
// complete its message.
func (nm *NetworkMessage) Pending() bool {
	return nm.Chunk != nil && !nm.Chunk.Complete
}

// WriterGroupID returns the writer group id from the GroupHeader, if any.
func (nm *NetworkMessage) WriterGroupID() (uint16, bool) {
	if nm.GroupHeader == nil || nm.GroupHeader.WriterGroupID == nil {
		return 0, false
	}
	return *nm.GroupHeader.WriterGroupID, true
}

// DataSetFlags1 is the first DataSetMessage header byte.
type DataSetFlags1 uint8

// DataSetFlags1 bits.
const (
	DataSetFlags1Valid             DataSetFlags1 = 1 << 0
	DataSetFlags1FieldEncodingMask DataSetFlags1 = 0x06
	DataSetFlags1SequenceNumber    DataSetFlags1 = 1 << 3
	DataSetFlags1Status            DataSetFlags1 = 1 << 4
	DataSetFlags1MajorVersion      DataSetFlags1 = 1 << 5
	DataSetFlags1MinorVersion      DataSetFlags1 = 1 << 6
	DataSetFlags1Flags2            DataSetFlags1 = 1 << 7
)

// DataSetFlags2 is the optional second DataSetMessage header byte.
type DataSetFlags2 uint8

// DataSetFlags2 bits.
const (
	DataSetFlags2MessageTypeMask DataSetFlags2 = 0x0F
	DataSetFlags2Timestamp       DataSetFlags2 = 1 << 4
	DataSetFlags2PicoSeconds     DataSetFlags2 = 1 << 5
)

// FieldEncoding is the wire encoding of the fields of a DataSetMessage.
type FieldEncoding uint8

// Field encodings.
const (
	FieldEncodingVariant FieldEncoding = iota
	FieldEncodingRawData
	FieldEncodingDataValue
	fieldEncodingReserved
)

func (e FieldEncoding) String() string {
	switch e {
	case FieldEncodingVariant:
		return "Variant"
	case FieldEncodingRawData:
		return "RawData"
	case FieldEncodingDataValue:
		return "DataValue"
	default:
		return fmt.Sprintf("FieldEncoding(%d)", e)
	}
}

// Flags returns the DataSetFlags1 bits selecting e.
func (e FieldEncoding) Flags() DataSetFlags1 {
	return DataSetFlags1(e<<1) & DataSetFlags1FieldEncodingMask
}

// MessageType is the DataSetMessage type carried in DataSetFlags2.
type MessageType uint8

// DataSetMessage types.
const (
	MessageTypeKeyFrame MessageType = iota
	MessageTypeDeltaFrame
	MessageTypeEvent
	MessageTypeKeepAlive
)

func (t MessageType) String() string {
	switch t {
	case MessageTypeKeyFrame:
		return "KeyFrame"
	case MessageTypeDeltaFrame:
		return "DeltaFrame"
	case MessageTypeEvent:
		return "Event"
	case MessageTypeKeepAlive:
		return "KeepAlive"
	default:
		return fmt.Sprintf("MessageType(%d)", t)
	}
}

// DataSetMessageHeader is the header of one DataSetMessage.
type DataSetMessageHeader struct {
	Flags1 DataSetFlags1
	Flags2 DataSetFlags2

	SequenceNumber *uint16
	Timestamp      *time.Time
	PicoSeconds    *uint16
	Status         *uint16
	MajorVersion   *uint32
	MinorVersion   *uint32
}

// FieldEncoding returns the encoding selected by Flags1.
func (h *DataSetMessageHeader) FieldEncoding() FieldEncoding {
	return FieldEncoding((h.Flags1 & DataSetFlags1FieldEncodingMask) >> 1)
}

// MessageType returns the type selected by Flags2. Without Flags2 the
// message is a key frame.
func (h *DataSetMessageHeader) MessageType() MessageType {
	if h.Flags1&DataSetFlags1Flags2 == 0 {
		return MessageTypeKeyFrame
	}
	return MessageType(h.Flags2 & DataSetFlags2MessageTypeMask)
}

// FieldMetaData describes the expected datatype of a field. RawData fields
// cannot be decoded without it.
type FieldMetaData struct {
	Name            string
	BuiltInType     opcua.TypeID
	ValueRank       int32
	ArrayDimensions []uint32
}

// Value ranks.
const (
	ValueRankScalarOrOneDimension int32 = -3
	ValueRankAny                  int32 = -2
	ValueRankScalar               int32 = -1
	ValueRankOneOrMoreDimensions  int32 = 0
	ValueRankOneDimension         int32 = 1
)

// DataSetField is one value of a DataSetMessage.
type DataSetField struct {
	Meta            FieldMetaData
	Value           opcua.Variant
	Status          opcua.StatusCode
	SourceTimestamp *time.Time
	ServerTimestamp *time.Time
}

// DeltaField is one entry of a delta frame.
type DeltaField struct {
	Index uint16
	Field DataSetField
}

// DataSetMessage is one dataset instance of a NetworkMessage. Key frames
// and events fill Fields; delta frames fill Deltas and, when verifying,
// update the matching entries of Fields. Keep-alive messages carry neither.
type DataSetMessage struct {
	Header DataSetMessageHeader
	Fields []DataSetField
	Deltas []DeltaField
}

func ptr[T any](v T) *T {
	return &v
}
