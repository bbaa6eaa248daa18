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

package pubsub_test

import (
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	opcua "github.com/edgeo-scada/uadp"
	"github.com/edgeo-scada/uadp/pubsub"
)

const readerYAML = `
readers:
  - name: line-3
    publisher_id_type: uint16
    publisher_id: "42"
    group:
      writer_group_id: 100
      group_version: 7
      sequence_number: true
    payload_header: true
    timestamp: true
    datasets:
      - writer_id: 1
        sequence_number: true
        major_version: 3
        fields:
          - {name: level, type: Int32}
          - {name: unit, type: String}
          - {name: flow, type: Double}
`

func loadReaders(t *testing.T, doc string) []pubsub.ReaderConfig {
	t.Helper()
	v := viper.New()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(doc)))

	var cfg struct {
		Readers []pubsub.ReaderConfig `mapstructure:"readers"`
	}
	require.NoError(t, v.Unmarshal(&cfg))
	return cfg.Readers
}

func TestReaderConfigExpected(t *testing.T) {
	readers := loadReaders(t, readerYAML)
	require.Len(t, readers, 1)

	expected, err := readers[0].Expected()
	require.NoError(t, err)
	assert.Equal(t, sampleMessage(), expected)
}

func TestReaderConfigDecodes(t *testing.T) {
	readers := loadReaders(t, readerYAML)
	r, err := readers[0].NewReader()
	require.NoError(t, err)

	nm, err := r.Read(encode(t, withValues(sampleMessage())))
	require.NoError(t, err)
	assert.Equal(t, "m3/h", nm.DataSetMessages[0].Fields[1].Value.Value)
}

func TestReaderConfigFlags(t *testing.T) {
	cfg := pubsub.ReaderConfig{
		PublisherIDType: "string",
		PublisherID:     "plant-a",
		DataSetClassID:  "72962b91-fa75-4ae6-8d28-b404dc7daf63",
		PayloadHeader:   true,
		PicoSeconds:     true,
		PromotedFields:  true,
		Chunked:         true,
		Security:        &pubsub.SecurityConfig{Signed: true, Footer: true, NonceLength: 8},
		DataSets: []pubsub.DataSetConfig{
			{
				WriterID:      5,
				FieldEncoding: "datavalue",
				MessageType:   "deltaframe",
				Timestamp:     true,
				Status:        true,
				MinorVersion:  u32(2),
				Fields:        []pubsub.FieldConfig{{Name: "a", Type: "float"}},
			},
			{
				WriterID:      6,
				FieldEncoding: "rawdata",
				Fields: []pubsub.FieldConfig{
					{Name: "b", Type: "UInt16"},
					{Name: "c", Type: "Byte", ValueRank: func() *int32 { v := int32(2); return &v }(), ArrayDimensions: []uint32{3, 3}},
				},
			},
		},
	}

	nm, err := cfg.Expected()
	require.NoError(t, err)

	assert.Equal(t, pubsub.FlagPublisherID|pubsub.FlagPayloadHeader|pubsub.FlagExtendedFlags1, nm.Flags)
	assert.Equal(t, pubsub.ExtendedFlags1(4)|pubsub.ExtFlags1DataSetClassID|pubsub.ExtFlags1PicoSeconds|
		pubsub.ExtFlags1Security|pubsub.ExtFlags1ExtendedFlags2, nm.ExtendedFlags1)
	assert.Equal(t, pubsub.ExtFlags2PromotedFields|pubsub.ExtFlags2Chunk, nm.ExtendedFlags2)
	assert.Equal(t, "plant-a", nm.PublisherID.Text)
	assert.Nil(t, nm.GroupHeader)
	assert.Equal(t, []uint16{5, 6}, nm.PayloadHeader.DataSetWriterIDs)
	assert.Equal(t, pubsub.SecurityFlagSigned|pubsub.SecurityFlagFooter, nm.SecurityHeader.Flags)
	assert.Len(t, nm.SecurityHeader.MessageNonce, 8)

	require.Len(t, nm.DataSetMessages, 2)
	h := nm.DataSetMessages[0].Header
	assert.Equal(t, pubsub.FieldEncodingDataValue, h.FieldEncoding())
	assert.Equal(t, pubsub.MessageTypeDeltaFrame, h.MessageType())
	assert.NotZero(t, h.Flags1&pubsub.DataSetFlags1Status)
	assert.NotZero(t, h.Flags2&pubsub.DataSetFlags2Timestamp)
	assert.Equal(t, uint32(2), *h.MinorVersion)
	assert.Nil(t, h.MajorVersion)
	assert.Equal(t, opcua.TypeFloat, nm.DataSetMessages[0].Fields[0].Meta.BuiltInType)

	raw := nm.DataSetMessages[1]
	assert.Equal(t, pubsub.FieldEncodingRawData, raw.Header.FieldEncoding())
	assert.Zero(t, raw.Header.Flags1&pubsub.DataSetFlags1Flags2)
	assert.Equal(t, pubsub.ValueRankScalar, raw.Fields[0].Meta.ValueRank)
	assert.Equal(t, int32(2), raw.Fields[1].Meta.ValueRank)
	assert.Equal(t, []uint32{3, 3}, raw.Fields[1].Meta.ArrayDimensions)
}

func TestReaderConfigInvalid(t *testing.T) {
	valid := func() pubsub.ReaderConfig {
		return pubsub.ReaderConfig{
			Name:            "r",
			PublisherIDType: "byte",
			PublisherID:     "7",
			DataSets:        []pubsub.DataSetConfig{{Fields: []pubsub.FieldConfig{{Type: "Int32"}}}},
		}
	}
	_, err := func() (*pubsub.NetworkMessage, error) { c := valid(); return c.Expected() }()
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(c *pubsub.ReaderConfig)
	}{
		{"no datasets", func(c *pubsub.ReaderConfig) { c.DataSets = nil }},
		{"datasets without payload header", func(c *pubsub.ReaderConfig) {
			c.DataSets = append(c.DataSets, c.DataSets[0])
		}},
		{"publisher id out of range", func(c *pubsub.ReaderConfig) { c.PublisherID = "300" }},
		{"publisher id type", func(c *pubsub.ReaderConfig) { c.PublisherIDType = "int8" }},
		{"class id", func(c *pubsub.ReaderConfig) { c.DataSetClassID = "not-a-guid" }},
		{"encrypted", func(c *pubsub.ReaderConfig) { c.Security = &pubsub.SecurityConfig{Encrypted: true} }},
		{"nonce length", func(c *pubsub.ReaderConfig) { c.Security = &pubsub.SecurityConfig{NonceLength: 256} }},
		{"field encoding", func(c *pubsub.ReaderConfig) { c.DataSets[0].FieldEncoding = "json" }},
		{"message type", func(c *pubsub.ReaderConfig) { c.DataSets[0].MessageType = "discovery" }},
		{"field type", func(c *pubsub.ReaderConfig) { c.DataSets[0].Fields[0].Type = "Decimal128" }},
		{"untyped raw field", func(c *pubsub.ReaderConfig) {
			c.DataSets[0].FieldEncoding = "rawdata"
			c.DataSets[0].Fields[0].Type = ""
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			_, err := c.Expected()
			assert.ErrorIs(t, err, opcua.StatusBadInvalidArgument)
		})
	}
}
