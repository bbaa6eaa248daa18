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
	"bytes"
	"slices"
)

// ChunkData reassembles a chunked DataSetMessage. It lives as long as the
// reader context that owns it and must not be used by two decodes at once.
//
// Buffer and ShadowBits are allocated once; a declared TotalSize larger
// than the buffer is rejected rather than grown into. ShadowBits holds one
// bit per byte offset and records the offsets already received.
type ChunkData struct {
	MessageSequenceNumber uint16
	TotalSize             uint32
	Received              uint32
	ShadowBits            []byte
	Buffer                []byte
}

// NewChunkData allocates reassembly state for messages of up to
// maxMessageSize bytes.
func NewChunkData(maxMessageSize uint32) (*ChunkData, error) {
	if maxMessageSize == 0 {
		return nil, invalidArgument("max message size must be positive")
	}
	return &ChunkData{
		ShadowBits: make([]byte, (uint64(maxMessageSize)+7)/8),
		Buffer:     make([]byte, maxMessageSize),
	}, nil
}

// Capacity returns the largest TotalSize that can be reassembled.
func (cd *ChunkData) Capacity() uint32 {
	return uint32(len(cd.Buffer))
}

// Reset returns the state to empty. The shadow bits are cleared when the
// next message starts.
func (cd *ChunkData) Reset() {
	cd.MessageSequenceNumber = 0
	cd.TotalSize = 0
	cd.Received = 0
}

// Empty reports whether no message is being accumulated.
func (cd *ChunkData) Empty() bool {
	return cd.TotalSize == 0
}

func (cd *ChunkData) seen(offset uint32) bool {
	return cd.ShadowBits[offset/8]&(1<<(offset%8)) != 0
}

func (cd *ChunkData) mark(offset uint32) {
	cd.ShadowBits[offset/8] |= 1 << (offset % 8)
}

func validateChunk(offset, total, size, capacity uint32) error {
	switch {
	case total == 0:
		return decodingError("chunk declares a total size of zero")
	case offset >= total:
		return decodingError("chunk offset %d outside message of %d bytes", offset, total)
	case total > capacity:
		return decodingError("message of %d bytes exceeds reassembly capacity %d", total, capacity)
	case size == 0:
		return decodingError("empty chunk at offset %d", offset)
	case size > total-offset:
		return decodingError("chunk of %d bytes at offset %d overruns message of %d bytes", size, offset, total)
	}
	return nil
}

// add stores one fragment. It returns the reassembled message when the
// fragment completes it, and reports whether the fragment offset had
// already been received. A duplicate is neither copied nor compared with
// the first copy.
func (cd *ChunkData) add(seq uint16, offset, total uint32, chunk []byte) ([]byte, bool, error) {
	size := uint32(len(chunk))
	if err := validateChunk(offset, total, size, cd.Capacity()); err != nil {
		return nil, false, err
	}

	if seq != cd.MessageSequenceNumber || total != cd.TotalSize {
		clear(cd.ShadowBits[:(uint64(total)+7)/8])
		cd.MessageSequenceNumber = seq
		cd.TotalSize = total
		cd.Received = 0
	}

	if cd.seen(offset) {
		return nil, true, nil
	}
	if uint64(cd.Received)+uint64(size) > uint64(total) {
		return nil, false, decodingError("chunk of %d bytes overflows message: %d of %d bytes received", size, cd.Received, total)
	}

	copy(cd.Buffer[offset:], chunk)
	cd.mark(offset)
	cd.Received += size

	if cd.Received == total {
		return cd.Buffer[:total], false, nil
	}
	return nil, false, nil
}

// decodeChunkPayload reads one chunk fragment. Decode returns the fragment
// as is; DecodeAndVerify feeds it to the reassembly state and decodes the
// DataSetMessage once the message is complete.
func (s *decodeState) decodeChunkPayload(c *cursor, nm *NetworkMessage) error {
	seq, err := c.readUint16()
	if err != nil {
		return err
	}
	offset, err := c.readUint32()
	if err != nil {
		return err
	}
	total, err := c.readUint32()
	if err != nil {
		return err
	}
	size, err := c.readInt32()
	if err != nil {
		return err
	}
	if size < 0 {
		return decodingError("negative chunk size %d", size)
	}
	data, err := c.advance(int(size))
	if err != nil {
		return err
	}

	ch := nm.Chunk
	if ch == nil {
		ch = &ChunkMessage{}
		nm.Chunk = ch
	}
	ch.MessageSequenceNumber = seq
	ch.ChunkOffset = offset
	ch.TotalSize = total

	if !s.verify {
		if err := validateChunk(offset, total, uint32(size), s.maxMessageSize); err != nil {
			return err
		}
		ch.Data = bytes.Clone(data)
		return nil
	}

	if s.chunks == nil {
		return invalidArgument("chunked message without reassembly state")
	}
	msg, dup, err := s.chunks.add(seq, offset, total, data)
	if err != nil {
		return err
	}
	ch.Duplicate = dup
	if msg == nil {
		return nil
	}

	ch.Complete = true
	defer s.chunks.Reset()

	index := 0
	if nm.Flags&FlagPayloadHeader != 0 {
		index = slices.Index(nm.PayloadHeader.DataSetWriterIDs, ch.DataSetWriterID)
	}
	if index < 0 || index >= len(nm.DataSetMessages) {
		return invalidArgument("expected message has no DataSetMessage for writer %d", ch.DataSetWriterID)
	}
	return s.decodeDataSetMessage(newCursor(msg), &nm.DataSetMessages[index])
}
