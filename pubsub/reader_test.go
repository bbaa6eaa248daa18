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
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	opcua "github.com/edgeo-scada/uadp"
	"github.com/edgeo-scada/uadp/pubsub"
)

func TestNewReader(t *testing.T) {
	_, err := pubsub.NewReader(nil)
	assert.ErrorIs(t, err, opcua.StatusBadInvalidArgument)

	r, err := pubsub.NewReader(sampleMessage(), pubsub.WithMaxMessageSize(1024))
	require.NoError(t, err)
	assert.Equal(t, uint32(1024), r.Chunks().Capacity())
	assert.Equal(t, uint16(100), r.Route().WriterGroupID)
	assert.NotNil(t, r.Metrics())

	_, err = pubsub.NewReader(sampleMessage(), pubsub.WithMaxMessageSize(0))
	assert.ErrorIs(t, err, opcua.StatusBadInvalidArgument)
}

func TestReaderRead(t *testing.T) {
	metrics := opcua.NewMetrics()
	r, err := pubsub.NewReader(sampleMessage(), pubsub.WithMetrics(metrics))
	require.NoError(t, err)

	wire := encode(t, withValues(sampleMessage()))
	nm, err := r.Read(wire)
	require.NoError(t, err)
	assert.Same(t, r.Expected(), nm)
	assert.False(t, nm.Pending())
	assert.Equal(t, 1.5, nm.DataSetMessages[0].Fields[2].Value.Value)

	assert.Equal(t, int64(1), metrics.DatagramsReceived.Value())
	assert.Equal(t, int64(1), metrics.MessagesDecoded.Value())
	assert.Equal(t, int64(1), metrics.DataSetMessages.Value())
	assert.Equal(t, int64(len(wire)), metrics.BytesDecoded.Value())
	assert.Equal(t, int64(1), metrics.Latency.Stats().Count)
}

func TestReaderMismatch(t *testing.T) {
	expected := sampleMessage()
	expected.GroupHeader.GroupVersion = u32(8)
	metrics := opcua.NewMetrics()
	r, err := pubsub.NewReader(expected, pubsub.WithMetrics(metrics))
	require.NoError(t, err)

	_, err = r.Read(encode(t, withValues(sampleMessage())))
	assert.ErrorIs(t, err, pubsub.ErrMismatch)

	assert.Equal(t, int64(1), metrics.DecodeErrors.Value())
	assert.Equal(t, int64(1), metrics.VerifyMismatches.Value())
	assert.Equal(t, int64(1), metrics.ForStatus(opcua.StatusBadDecodingError).Value())
	assert.Zero(t, metrics.MessagesDecoded.Value())
}

func TestReaderChunks(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	metrics := opcua.NewMetrics()

	r, err := pubsub.NewReader(chunked(sampleMessage()), pubsub.WithMetrics(metrics), pubsub.WithLogger(logger))
	require.NoError(t, err)

	datagrams, _ := chunkDatagrams(t, 3, 8)
	require.Greater(t, len(datagrams), 2)
	feed := append([][]byte{datagrams[0]}, datagrams...)

	for i, d := range feed {
		nm, err := r.Read(d)
		require.NoError(t, err)
		assert.Equal(t, i < len(feed)-1, nm.Pending(), "datagram %d", i)
	}

	nm := r.Expected()
	assert.Equal(t, int32(-5), nm.DataSetMessages[0].Fields[0].Value.Value)
	assert.True(t, r.Chunks().Empty())

	assert.Equal(t, int64(len(feed)), metrics.ChunksReceived.Value())
	assert.Equal(t, int64(1), metrics.DuplicateChunks.Value())
	assert.Equal(t, int64(1), metrics.MessagesReassembled.Value())
	assert.Equal(t, int64(1), metrics.MessagesDecoded.Value())
	assert.Equal(t, int64(1), metrics.DataSetMessages.Value())

	assert.Contains(t, logs.String(), "duplicate chunk absorbed")
	assert.Contains(t, logs.String(), "chunked message reassembled")
}

func TestReaderChunkSequenceRestart(t *testing.T) {
	r, err := pubsub.NewReader(chunked(sampleMessage()))
	require.NoError(t, err)

	first, _ := chunkDatagrams(t, 1, 8)
	second, _ := chunkDatagrams(t, 2, 8)

	// an abandoned message is dropped when the next one starts
	_, err = r.Read(first[0])
	require.NoError(t, err)
	for _, d := range second {
		_, err = r.Read(d)
		require.NoError(t, err)
	}
	assert.False(t, r.Expected().Pending())
	assert.Equal(t, uint16(2), r.Expected().Chunk.MessageSequenceNumber)
	assert.Equal(t, "m3/h", r.Expected().DataSetMessages[0].Fields[1].Value.Value)
}
