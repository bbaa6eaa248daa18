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
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	opcua "github.com/edgeo-scada/uadp"
	"github.com/edgeo-scada/uadp/internal/uatest"
	"github.com/edgeo-scada/uadp/pubsub"
)

var testTime = time.Date(2025, 3, 14, 15, 9, 26, 535897900, time.UTC)

func u16(v uint16) *uint16 { return &v }
func u32(v uint32) *uint32 { return &v }

func scalar(t opcua.TypeID) pubsub.FieldMetaData {
	return pubsub.FieldMetaData{BuiltInType: t, ValueRank: pubsub.ValueRankScalar}
}

// sampleMessage returns the configuration side of a writer group: publisher
// 42 (UInt16), writer group 100 version 7, one writer with three fields.
// Per-datagram values are left empty.
func sampleMessage() *pubsub.NetworkMessage {
	return &pubsub.NetworkMessage{
		Version:        1,
		Flags:          pubsub.FlagPublisherID | pubsub.FlagGroupHeader | pubsub.FlagPayloadHeader | pubsub.FlagExtendedFlags1,
		ExtendedFlags1: pubsub.ExtendedFlags1(1) | pubsub.ExtFlags1Timestamp,
		PublisherID:    pubsub.NumericPublisherID(pubsub.PublisherIDUInt16, 42),
		GroupHeader: &pubsub.GroupHeader{
			Flags:         pubsub.GroupFlagWriterGroupID | pubsub.GroupFlagGroupVersion | pubsub.GroupFlagSequenceNumber,
			WriterGroupID: u16(100),
			GroupVersion:  u32(7),
		},
		PayloadHeader: &pubsub.PayloadHeader{DataSetWriterIDs: []uint16{1}},
		DataSetMessages: []pubsub.DataSetMessage{{
			Header: pubsub.DataSetMessageHeader{
				Flags1:       pubsub.DataSetFlags1Valid | pubsub.DataSetFlags1SequenceNumber | pubsub.DataSetFlags1MajorVersion,
				MajorVersion: u32(3),
			},
			Fields: []pubsub.DataSetField{
				{Meta: pubsub.FieldMetaData{Name: "level", BuiltInType: opcua.TypeInt32, ValueRank: pubsub.ValueRankScalar}},
				{Meta: pubsub.FieldMetaData{Name: "unit", BuiltInType: opcua.TypeString, ValueRank: pubsub.ValueRankScalar}},
				{Meta: pubsub.FieldMetaData{Name: "flow", BuiltInType: opcua.TypeDouble, ValueRank: pubsub.ValueRankScalar}},
			},
		}},
	}
}

// withValues fills the per-datagram values of a sampleMessage.
func withValues(nm *pubsub.NetworkMessage) *pubsub.NetworkMessage {
	nm.GroupHeader.SequenceNumber = u16(1)
	ts := testTime
	nm.Timestamp = &ts
	dsm := &nm.DataSetMessages[0]
	dsm.Header.SequenceNumber = u16(10)
	dsm.Fields[0].Value = opcua.Variant{Type: opcua.TypeInt32, Value: int32(-5)}
	dsm.Fields[1].Value = opcua.Variant{Type: opcua.TypeString, Value: "m3/h"}
	dsm.Fields[2].Value = opcua.Variant{Type: opcua.TypeDouble, Value: 1.5}
	return nm
}

func encode(t *testing.T, nm *pubsub.NetworkMessage) []byte {
	t.Helper()
	b, err := uatest.EncodeNetworkMessage(nm)
	require.NoError(t, err)
	return b
}

// chunked marks a sampleMessage as sent in chunks.
func chunked(nm *pubsub.NetworkMessage) *pubsub.NetworkMessage {
	nm.ExtendedFlags1 |= pubsub.ExtFlags1ExtendedFlags2
	nm.ExtendedFlags2 |= pubsub.ExtFlags2Chunk
	return nm
}

// chunkDatagrams encodes the DataSetMessage of a filled sampleMessage and
// splits it into chunk datagrams.
func chunkDatagrams(t *testing.T, seq uint16, size int) ([][]byte, []byte) {
	t.Helper()
	full := withValues(sampleMessage())
	message, err := uatest.EncodeDataSetMessage(&full.DataSetMessages[0])
	require.NoError(t, err)
	datagrams, err := uatest.ChunkDatagrams(full, 1, seq, message, size)
	require.NoError(t, err)
	return datagrams, message
}
