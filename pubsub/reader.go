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
	"errors"
	"log/slog"
	"time"

	opcua "github.com/edgeo-scada/uadp"
)

// Reader decodes the datagrams of one (PublisherId, WriterGroupId) context
// into its expected message. A Reader is not safe for concurrent use.
type Reader struct {
	decoder  *Decoder
	expected *NetworkMessage
	chunks   *ChunkData
	route    Route
	logger   *slog.Logger
	metrics  *opcua.Metrics
}

// NewReader creates a reader for expected. The reassembly buffer is sized
// by WithMaxMessageSize.
func NewReader(expected *NetworkMessage, opts ...Option) (*Reader, error) {
	if expected == nil {
		return nil, invalidArgument("nil expected message")
	}
	o := buildOptions(opts)

	chunks, err := NewChunkData(o.maxMessageSize)
	if err != nil {
		return nil, err
	}

	route := RouteOf(expected)
	return &Reader{
		decoder:  &Decoder{engine: o.engine, maxMessageSize: o.maxMessageSize},
		expected: expected,
		chunks:   chunks,
		route:    route,
		logger:   o.logger.With(slog.String("route", route.String())),
		metrics:  o.metrics,
	}, nil
}

// Read decodes one datagram and returns the updated expected message. When
// the datagram is a chunk that does not complete its message, the returned
// message reports Pending and its DataSetMessages are unchanged.
func (r *Reader) Read(datagram []byte) (*NetworkMessage, error) {
	start := time.Now()
	r.metrics.DatagramsReceived.Add(1)

	if err := r.decoder.DecodeAndVerify(r.expected, r.chunks, datagram); err != nil {
		r.metrics.RecordError(err)
		if errors.Is(err, ErrMismatch) {
			r.metrics.VerifyMismatches.Add(1)
		}
		r.logger.Warn("failed to decode datagram",
			slog.Int("size", len(datagram)),
			slog.String("error", err.Error()))
		return nil, err
	}
	r.metrics.BytesDecoded.Add(int64(len(datagram)))

	if ch := r.expected.Chunk; ch != nil {
		r.metrics.ChunksReceived.Add(1)
		if ch.Duplicate {
			r.metrics.DuplicateChunks.Add(1)
			r.logger.Debug("duplicate chunk absorbed",
				slog.Int("sequence", int(ch.MessageSequenceNumber)),
				slog.Uint64("offset", uint64(ch.ChunkOffset)))
		}
		if !ch.Complete {
			r.metrics.Latency.Observe(time.Since(start))
			return r.expected, nil
		}
		r.metrics.MessagesReassembled.Add(1)
		r.logger.Debug("chunked message reassembled",
			slog.Int("sequence", int(ch.MessageSequenceNumber)),
			slog.Uint64("size", uint64(ch.TotalSize)))
		r.metrics.DataSetMessages.Add(1)
	} else {
		r.metrics.DataSetMessages.Add(int64(len(r.expected.DataSetMessages)))
	}

	r.metrics.MessagesDecoded.Add(1)
	r.metrics.Latency.Observe(time.Since(start))
	return r.expected, nil
}

// Route returns the context the reader serves.
func (r *Reader) Route() Route {
	return r.route
}

// Expected returns the message the reader verifies against and fills.
func (r *Reader) Expected() *NetworkMessage {
	return r.expected
}

// Chunks returns the reassembly state.
func (r *Reader) Chunks() *ChunkData {
	return r.chunks
}

// Metrics returns the reader metrics.
func (r *Reader) Metrics() *opcua.Metrics {
	return r.metrics
}
