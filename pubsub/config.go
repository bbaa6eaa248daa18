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

package pubsub

import (
	"strconv"
	"strings"

	"github.com/google/uuid"

	opcua "github.com/edgeo-scada/uadp"
)

// ReaderConfig describes the messages a reader expects from one writer
// group. It is typically loaded from a configuration file.
type ReaderConfig struct {
	Name string `mapstructure:"name"`

	// PublisherIDType is one of "", "byte", "uint16", "uint32", "uint64" or
	// "string". Empty means the messages carry no PublisherId.
	PublisherIDType string `mapstructure:"publisher_id_type"`
	PublisherID     string `mapstructure:"publisher_id"`
	DataSetClassID  string `mapstructure:"dataset_class_id"`

	Group          *GroupConfig    `mapstructure:"group"`
	PayloadHeader  bool            `mapstructure:"payload_header"`
	Timestamp      bool            `mapstructure:"timestamp"`
	PicoSeconds    bool            `mapstructure:"picoseconds"`
	PromotedFields bool            `mapstructure:"promoted_fields"`
	Chunked        bool            `mapstructure:"chunked"`
	Security       *SecurityConfig `mapstructure:"security"`
	MaxMessageSize uint32          `mapstructure:"max_message_size"`

	DataSets []DataSetConfig `mapstructure:"datasets"`
}

// GroupConfig describes the GroupHeader.
type GroupConfig struct {
	WriterGroupID        *uint16 `mapstructure:"writer_group_id"`
	GroupVersion         *uint32 `mapstructure:"group_version"`
	NetworkMessageNumber bool    `mapstructure:"network_message_number"`
	SequenceNumber       bool    `mapstructure:"sequence_number"`
}

// SecurityConfig describes the SecurityHeader.
type SecurityConfig struct {
	Signed        bool `mapstructure:"signed"`
	Encrypted     bool `mapstructure:"encrypted"`
	Footer        bool `mapstructure:"footer"`
	ForceKeyReset bool `mapstructure:"force_key_reset"`
	NonceLength   int  `mapstructure:"nonce_length"`
}

// DataSetConfig describes the DataSetMessages of one DataSetWriter.
type DataSetConfig struct {
	WriterID uint16 `mapstructure:"writer_id"`

	// FieldEncoding is "variant" (default), "rawdata" or "datavalue".
	FieldEncoding string `mapstructure:"field_encoding"`
	// MessageType is "keyframe" (default), "deltaframe", "event" or "keepalive".
	MessageType string `mapstructure:"message_type"`

	SequenceNumber bool    `mapstructure:"sequence_number"`
	Status         bool    `mapstructure:"status"`
	Timestamp      bool    `mapstructure:"timestamp"`
	PicoSeconds    bool    `mapstructure:"picoseconds"`
	MajorVersion   *uint32 `mapstructure:"major_version"`
	MinorVersion   *uint32 `mapstructure:"minor_version"`

	Fields []FieldConfig `mapstructure:"fields"`
}

// FieldConfig describes one field of a dataset.
type FieldConfig struct {
	Name string `mapstructure:"name"`
	// Type is a builtin type name such as "Int32" or "Double".
	Type string `mapstructure:"type"`
	// ValueRank defaults to scalar.
	ValueRank       *int32   `mapstructure:"value_rank"`
	ArrayDimensions []uint32 `mapstructure:"array_dimensions"`
}

var publisherIDTypes = map[string]PublisherIDType{
	"":       PublisherIDNone,
	"none":   PublisherIDNone,
	"byte":   PublisherIDByte,
	"uint16": PublisherIDUInt16,
	"uint32": PublisherIDUInt32,
	"uint64": PublisherIDUInt64,
	"string": PublisherIDString,
}

var fieldEncodings = map[string]FieldEncoding{
	"":          FieldEncodingVariant,
	"variant":   FieldEncodingVariant,
	"rawdata":   FieldEncodingRawData,
	"raw":       FieldEncodingRawData,
	"datavalue": FieldEncodingDataValue,
}

var messageTypes = map[string]MessageType{
	"":           MessageTypeKeyFrame,
	"keyframe":   MessageTypeKeyFrame,
	"deltaframe": MessageTypeDeltaFrame,
	"event":      MessageTypeEvent,
	"keepalive":  MessageTypeKeepAlive,
}

func (c *ReaderConfig) publisherID() (PublisherID, error) {
	t, ok := publisherIDTypes[strings.ToLower(c.PublisherIDType)]
	if !ok {
		return PublisherID{}, invalidArgument("unknown publisher id type %q", c.PublisherIDType)
	}
	switch t {
	case PublisherIDNone:
		return PublisherID{}, nil
	case PublisherIDString:
		return StringPublisherID(c.PublisherID), nil
	}

	bits := map[PublisherIDType]int{
		PublisherIDByte:   8,
		PublisherIDUInt16: 16,
		PublisherIDUInt32: 32,
		PublisherIDUInt64: 64,
	}[t]
	v, err := strconv.ParseUint(c.PublisherID, 0, bits)
	if err != nil {
		return PublisherID{}, invalidArgument("publisher id %q is not a valid %s: %v", c.PublisherID, t, err)
	}
	return NumericPublisherID(t, v), nil
}

// Expected builds the expected message described by the configuration.
// Configuration errors wrap opcua.StatusBadInvalidArgument.
func (c *ReaderConfig) Expected() (*NetworkMessage, error) {
	if len(c.DataSets) == 0 {
		return nil, invalidArgument("reader %q has no datasets", c.Name)
	}
	if len(c.DataSets) > 1 && !c.PayloadHeader {
		return nil, invalidArgument("reader %q has %d datasets but no payload header", c.Name, len(c.DataSets))
	}
	if len(c.DataSets) > 255 {
		return nil, invalidArgument("reader %q has more than 255 datasets", c.Name)
	}

	nm := &NetworkMessage{Version: opcua.UADPVersion}

	id, err := c.publisherID()
	if err != nil {
		return nil, err
	}
	if id.Type != PublisherIDNone {
		nm.Flags |= FlagPublisherID
		nm.PublisherID = id
		nm.ExtendedFlags1 |= id.Type.wireCode()
	}

	if c.DataSetClassID != "" {
		classID, err := uuid.Parse(c.DataSetClassID)
		if err != nil {
			return nil, invalidArgument("dataset class id %q: %v", c.DataSetClassID, err)
		}
		nm.ExtendedFlags1 |= ExtFlags1DataSetClassID
		nm.DataSetClassID = &classID
	}

	if g := c.Group; g != nil {
		nm.Flags |= FlagGroupHeader
		nm.GroupHeader = &GroupHeader{}
		if g.WriterGroupID != nil {
			nm.GroupHeader.Flags |= GroupFlagWriterGroupID
			nm.GroupHeader.WriterGroupID = ptr(*g.WriterGroupID)
		}
		if g.GroupVersion != nil {
			nm.GroupHeader.Flags |= GroupFlagGroupVersion
			nm.GroupHeader.GroupVersion = ptr(*g.GroupVersion)
		}
		if g.NetworkMessageNumber {
			nm.GroupHeader.Flags |= GroupFlagNetworkMessageNumber
		}
		if g.SequenceNumber {
			nm.GroupHeader.Flags |= GroupFlagSequenceNumber
		}
	}

	if c.PayloadHeader {
		nm.Flags |= FlagPayloadHeader
		nm.PayloadHeader = &PayloadHeader{}
		for _, ds := range c.DataSets {
			nm.PayloadHeader.DataSetWriterIDs = append(nm.PayloadHeader.DataSetWriterIDs, ds.WriterID)
		}
	}

	if c.Timestamp {
		nm.ExtendedFlags1 |= ExtFlags1Timestamp
	}
	if c.PicoSeconds {
		nm.ExtendedFlags1 |= ExtFlags1PicoSeconds
	}
	if c.PromotedFields {
		nm.ExtendedFlags2 |= ExtFlags2PromotedFields
	}
	if c.Chunked {
		nm.ExtendedFlags2 |= ExtFlags2Chunk
	}
	if nm.ExtendedFlags2 != 0 {
		nm.ExtendedFlags1 |= ExtFlags1ExtendedFlags2
	}

	if sec := c.Security; sec != nil {
		if sec.Encrypted {
			return nil, invalidArgument("reader %q: encrypted messages are not supported", c.Name)
		}
		if sec.NonceLength < 0 || sec.NonceLength > 255 {
			return nil, invalidArgument("reader %q: nonce length %d out of range", c.Name, sec.NonceLength)
		}
		nm.ExtendedFlags1 |= ExtFlags1Security
		nm.SecurityHeader = &SecurityHeader{MessageNonce: make([]byte, sec.NonceLength)}
		if sec.Signed {
			nm.SecurityHeader.Flags |= SecurityFlagSigned
		}
		if sec.Footer {
			nm.SecurityHeader.Flags |= SecurityFlagFooter
		}
		if sec.ForceKeyReset {
			nm.SecurityHeader.Flags |= SecurityFlagForceKeyReset
		}
	}

	if nm.ExtendedFlags1 != 0 {
		nm.Flags |= FlagExtendedFlags1
	}

	for i := range c.DataSets {
		dsm, err := c.DataSets[i].message()
		if err != nil {
			return nil, invalidArgument("reader %q dataset %d: %v", c.Name, i, err)
		}
		nm.DataSetMessages = append(nm.DataSetMessages, dsm)
	}
	return nm, nil
}

func (d *DataSetConfig) message() (DataSetMessage, error) {
	enc, ok := fieldEncodings[strings.ToLower(d.FieldEncoding)]
	if !ok {
		return DataSetMessage{}, invalidArgument("unknown field encoding %q", d.FieldEncoding)
	}
	mt, ok := messageTypes[strings.ToLower(d.MessageType)]
	if !ok {
		return DataSetMessage{}, invalidArgument("unknown message type %q", d.MessageType)
	}

	h := DataSetMessageHeader{Flags1: DataSetFlags1Valid | enc.Flags()}
	h.Flags2 = DataSetFlags2(mt)
	if d.SequenceNumber {
		h.Flags1 |= DataSetFlags1SequenceNumber
	}
	if d.Status {
		h.Flags1 |= DataSetFlags1Status
	}
	if d.MajorVersion != nil {
		h.Flags1 |= DataSetFlags1MajorVersion
		h.MajorVersion = ptr(*d.MajorVersion)
	}
	if d.MinorVersion != nil {
		h.Flags1 |= DataSetFlags1MinorVersion
		h.MinorVersion = ptr(*d.MinorVersion)
	}
	if d.Timestamp {
		h.Flags2 |= DataSetFlags2Timestamp
	}
	if d.PicoSeconds {
		h.Flags2 |= DataSetFlags2PicoSeconds
	}
	if h.Flags2 != 0 {
		h.Flags1 |= DataSetFlags1Flags2
	}

	dsm := DataSetMessage{Header: h}
	for _, fc := range d.Fields {
		meta, err := fc.meta()
		if err != nil {
			return DataSetMessage{}, err
		}
		if enc == FieldEncodingRawData && meta.BuiltInType == opcua.TypeNull {
			return DataSetMessage{}, invalidArgument("RawData field %q needs a type", fc.Name)
		}
		dsm.Fields = append(dsm.Fields, DataSetField{Meta: meta})
	}
	return dsm, nil
}

func (f *FieldConfig) meta() (FieldMetaData, error) {
	m := FieldMetaData{Name: f.Name, ValueRank: ValueRankScalar, ArrayDimensions: f.ArrayDimensions}
	if f.ValueRank != nil {
		m.ValueRank = *f.ValueRank
	}
	if f.Type == "" {
		return m, nil
	}
	t, err := opcua.ParseTypeID(f.Type)
	if err != nil {
		return FieldMetaData{}, err
	}
	m.BuiltInType = t
	return m, nil
}

// NewReader builds the expected message and a reader for it. A configured
// MaxMessageSize overrides WithMaxMessageSize.
func (c *ReaderConfig) NewReader(opts ...Option) (*Reader, error) {
	nm, err := c.Expected()
	if err != nil {
		return nil, err
	}
	if c.MaxMessageSize > 0 {
		opts = append(opts, WithMaxMessageSize(c.MaxMessageSize))
	}
	return NewReader(nm, opts...)
}
