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
	"fmt"

	opcua "github.com/edgeo-scada/uadp"
)

// Decoder decodes UADP NetworkMessages. It holds no per-message state and
// is safe for concurrent use; reassembly state is passed in by the caller.
type Decoder struct {
	engine         Engine
	maxMessageSize uint32
}

// NewDecoder creates a new decoder.
func NewDecoder(opts ...Option) *Decoder {
	o := buildOptions(opts)
	return &Decoder{
		engine:         o.engine,
		maxMessageSize: o.maxMessageSize,
	}
}

// decodeState carries one decode call.
type decodeState struct {
	engine         Engine
	verify         bool
	chunks         *ChunkData
	maxMessageSize uint32
}

// Decode parses a datagram into a new NetworkMessage. Chunk fragments are
// returned in NetworkMessage.Chunk without reassembly. RawData fields cannot
// be decoded without metadata and are rejected.
//
// Errors wrap opcua.StatusBadDecodingError for malformed input and
// opcua.StatusBadInternalError for engine failures.
func (d *Decoder) Decode(data []byte) (*NetworkMessage, error) {
	if data == nil {
		return nil, invalidArgument("nil datagram")
	}
	s := &decodeState{engine: d.engine, maxMessageSize: d.maxMessageSize}
	nm := &NetworkMessage{}
	c := newCursor(data)
	if err := s.decodeNetworkMessage(c, nm); err != nil {
		return nil, &opcua.DecodeError{Offset: c.offset(), Err: err}
	}
	return nm, nil
}

// DecodeAndVerify parses a datagram against expected, a message built from
// the subscriber configuration. Flags, version, PublisherId, DataSetClassId,
// WriterGroupId, GroupVersion, DataSetWriterIds, DataSetMessage flags,
// SecurityFlags, nonce length, configuration versions and key frame field
// counts must match; a mismatch wraps ErrMismatch. Sequence numbers,
// timestamps, promoted fields, security token and nonce, status and field
// values are written into expected.
//
// Chunk fragments are accumulated in chunks, which must be non-nil if the
// writer group sends chunked messages. Concurrent calls sharing expected or
// chunks must be serialized by the caller.
//
// On error, expected may have been partially updated.
func (d *Decoder) DecodeAndVerify(expected *NetworkMessage, chunks *ChunkData, data []byte) error {
	if expected == nil {
		return invalidArgument("nil expected message")
	}
	if data == nil {
		return invalidArgument("nil datagram")
	}
	s := &decodeState{
		engine:         d.engine,
		verify:         true,
		chunks:         chunks,
		maxMessageSize: d.maxMessageSize,
	}
	c := newCursor(data)
	if err := s.decodeNetworkMessage(c, expected); err != nil {
		return &opcua.DecodeError{Offset: c.offset(), Err: err}
	}
	return nil
}

// PeekRoute decodes the headers that identify the reader context of a
// datagram: PublisherId and WriterGroupId.
func (d *Decoder) PeekRoute(data []byte) (Route, error) {
	if data == nil {
		return Route{}, invalidArgument("nil datagram")
	}
	s := &decodeState{engine: d.engine, maxMessageSize: d.maxMessageSize}
	nm := &NetworkMessage{}
	c := newCursor(data)
	if err := s.decodeRoutingHeaders(c, nm); err != nil {
		return Route{}, &opcua.DecodeError{Offset: c.offset(), Err: err}
	}
	return RouteOf(nm), nil
}

func (s *decodeState) decodeRoutingHeaders(c *cursor, nm *NetworkMessage) error {
	if err := s.decodeNetworkMessageHeader(c, nm); err != nil {
		return err
	}
	if nm.Flags&FlagGroupHeader != 0 {
		return s.decodeGroupHeader(c, nm)
	}
	return nil
}

func (s *decodeState) decodeNetworkMessage(c *cursor, nm *NetworkMessage) error {
	nm.Chunk = nil

	if err := s.decodeRoutingHeaders(c, nm); err != nil {
		return err
	}
	if nm.Flags&FlagPayloadHeader != 0 {
		if err := s.decodePayloadHeader(c, nm); err != nil {
			return err
		}
	}
	if err := s.decodeExtendedHeader(c, nm); err != nil {
		return err
	}
	if nm.ExtendedFlags1&ExtFlags1Security != 0 {
		if err := s.decodeSecurityHeader(c, nm); err != nil {
			return err
		}
	}
	return s.decodePayload(c, nm)
}

func (s *decodeState) decodePayload(c *cursor, nm *NetworkMessage) error {
	if nm.ExtendedFlags1&ExtFlags1Security != 0 {
		sh := nm.SecurityHeader
		if sh.Flags&SecurityFlagEncrypted != 0 {
			return decodingError("encrypted payloads are not supported")
		}
		if sh.SecurityFooterSize != nil && *sh.SecurityFooterSize > 0 {
			n := int(*sh.SecurityFooterSize)
			if n > c.remaining() {
				return decodingError("security footer of %d bytes exceeds %d remaining", n, c.remaining())
			}
			body, err := c.window(c.remaining() - n)
			if err != nil {
				return err
			}
			footer, err := c.advance(n)
			if err != nil {
				return err
			}
			nm.SecurityFooter = append(nm.SecurityFooter[:0], footer...)
			c = body
		}
	}

	if nm.ExtendedFlags2&ExtFlags2Chunk != 0 {
		return s.decodeChunkPayload(c, nm)
	}
	return s.decodeDataSetPayload(c, nm)
}

// decodeDataSetPayload decodes the DataSetMessages of a non-chunked
// message. With more than one message a size table precedes them and each
// message is decoded from its own window.
func (s *decodeState) decodeDataSetPayload(c *cursor, nm *NetworkMessage) error {
	hasPayloadHeader := nm.Flags&FlagPayloadHeader != 0
	count := 1
	if hasPayloadHeader {
		count = len(nm.PayloadHeader.DataSetWriterIDs)
	}
	if s.verify {
		if len(nm.DataSetMessages) != count {
			return invalidArgument("expected message has %d DataSetMessages, payload carries %d", len(nm.DataSetMessages), count)
		}
	} else {
		nm.DataSetMessages = make([]DataSetMessage, count)
	}

	if hasPayloadHeader && count > 1 {
		sizes := make([]uint16, count)
		for i := range sizes {
			v, err := c.readUint16()
			if err != nil {
				return err
			}
			sizes[i] = v
		}
		for i, size := range sizes {
			w, err := c.window(int(size))
			if err != nil {
				return fmt.Errorf("DataSetMessage %d: %w", i, err)
			}
			if err := s.decodeDataSetMessage(w, &nm.DataSetMessages[i]); err != nil {
				return fmt.Errorf("DataSetMessage %d: %w", i, err)
			}
		}
		return nil
	}

	for i := range nm.DataSetMessages {
		if err := s.decodeDataSetMessage(c, &nm.DataSetMessages[i]); err != nil {
			return fmt.Errorf("DataSetMessage %d: %w", i, err)
		}
	}
	return nil
}

// Route identifies the reader context of a datagram. WriterGroupID is zero
// when the datagram has no GroupHeader or the header omits the id.
type Route struct {
	PublisherID   PublisherID
	WriterGroupID uint16
}

// RouteOf returns the route of a decoded or expected message.
func RouteOf(nm *NetworkMessage) Route {
	r := Route{PublisherID: nm.PublisherID}
	if nm.Flags&FlagPublisherID == 0 {
		r.PublisherID = PublisherID{}
	}
	if id, ok := nm.WriterGroupID(); ok && nm.Flags&FlagGroupHeader != 0 {
		r.WriterGroupID = id
	}
	return r
}

func (r Route) String() string {
	return fmt.Sprintf("publisher=%s writerGroup=%d", r.PublisherID, r.WriterGroupID)
}
