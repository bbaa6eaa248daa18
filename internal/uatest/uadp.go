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

package uatest

import (
	"errors"
	"fmt"

	opcua "github.com/edgeo-scada/uadp"
	"github.com/edgeo-scada/uadp/pubsub"
)

func deref[T any](p *T) T {
	if p == nil {
		var zero T
		return zero
	}
	return *p
}

// EncodeNetworkMessage writes nm as a UADP datagram. The flag fields of nm
// select what is written; the optional values are taken as they are, nil
// pointers as zero. A chunk message writes nm.Chunk instead of
// nm.DataSetMessages.
func EncodeNetworkMessage(nm *pubsub.NetworkMessage) ([]byte, error) {
	e := NewEncoder()
	e.WriteByte(nm.Version&0x0F | byte(nm.Flags))
	if nm.Flags&pubsub.FlagExtendedFlags1 != 0 {
		e.WriteByte(byte(nm.ExtendedFlags1))
	}
	if nm.ExtendedFlags1&pubsub.ExtFlags1ExtendedFlags2 != 0 {
		e.WriteByte(byte(nm.ExtendedFlags2))
	}

	if nm.Flags&pubsub.FlagPublisherID != 0 {
		switch nm.ExtendedFlags1 & pubsub.ExtFlags1PublisherIDTypeMask {
		case 0:
			e.WriteByte(byte(nm.PublisherID.Numeric))
		case 1:
			e.WriteUInt16(uint16(nm.PublisherID.Numeric))
		case 2:
			e.WriteUInt32(uint32(nm.PublisherID.Numeric))
		case 3:
			e.WriteUInt64(nm.PublisherID.Numeric)
		case 4:
			e.WriteString(nm.PublisherID.Text)
		default:
			return nil, errors.New("uatest: reserved publisher id type")
		}
	}
	if nm.ExtendedFlags1&pubsub.ExtFlags1DataSetClassID != 0 {
		e.WriteGUID(deref(nm.DataSetClassID))
	}

	if nm.Flags&pubsub.FlagGroupHeader != 0 {
		g := deref(nm.GroupHeader)
		e.WriteByte(byte(g.Flags))
		if g.Flags&pubsub.GroupFlagWriterGroupID != 0 {
			e.WriteUInt16(deref(g.WriterGroupID))
		}
		if g.Flags&pubsub.GroupFlagGroupVersion != 0 {
			e.WriteUInt32(deref(g.GroupVersion))
		}
		if g.Flags&pubsub.GroupFlagNetworkMessageNumber != 0 {
			e.WriteUInt16(deref(g.NetworkMessageNumber))
		}
		if g.Flags&pubsub.GroupFlagSequenceNumber != 0 {
			e.WriteUInt16(deref(g.SequenceNumber))
		}
	}

	chunked := nm.ExtendedFlags2&pubsub.ExtFlags2Chunk != 0
	if chunked && nm.Chunk == nil {
		return nil, errors.New("uatest: chunk flag without chunk")
	}
	if nm.Flags&pubsub.FlagPayloadHeader != 0 {
		if chunked {
			e.WriteUInt16(nm.Chunk.DataSetWriterID)
		} else {
			ids := deref(nm.PayloadHeader).DataSetWriterIDs
			e.WriteByte(byte(len(ids)))
			for _, id := range ids {
				e.WriteUInt16(id)
			}
		}
	}

	if nm.ExtendedFlags1&pubsub.ExtFlags1Timestamp != 0 {
		e.WriteDateTime(deref(nm.Timestamp))
	}
	if nm.ExtendedFlags1&pubsub.ExtFlags1PicoSeconds != 0 {
		e.WriteUInt16(deref(nm.PicoSeconds))
	}
	if nm.ExtendedFlags2&pubsub.ExtFlags2PromotedFields != 0 {
		pf := NewEncoder()
		for _, v := range nm.PromotedFields {
			if err := pf.WriteVariant(v); err != nil {
				return nil, err
			}
		}
		e.WriteUInt16(uint16(pf.Len()))
		e.Write(pf.Bytes())
	}

	if nm.ExtendedFlags1&pubsub.ExtFlags1Security != 0 {
		sh := deref(nm.SecurityHeader)
		e.WriteByte(byte(sh.Flags))
		e.WriteUInt32(sh.SecurityTokenID)
		e.WriteByte(byte(len(sh.MessageNonce)))
		e.Write(sh.MessageNonce)
		if sh.Flags&pubsub.SecurityFlagFooter != 0 {
			e.WriteUInt16(deref(sh.SecurityFooterSize))
		}
	}

	if chunked {
		e.WriteUInt16(nm.Chunk.MessageSequenceNumber)
		e.WriteUInt32(nm.Chunk.ChunkOffset)
		e.WriteUInt32(nm.Chunk.TotalSize)
		e.WriteByteString(nm.Chunk.Data)
	} else {
		payload := make([][]byte, len(nm.DataSetMessages))
		for i := range nm.DataSetMessages {
			b, err := EncodeDataSetMessage(&nm.DataSetMessages[i])
			if err != nil {
				return nil, fmt.Errorf("DataSetMessage %d: %w", i, err)
			}
			payload[i] = b
		}
		if nm.Flags&pubsub.FlagPayloadHeader != 0 && len(payload) > 1 {
			for _, b := range payload {
				e.WriteUInt16(uint16(len(b)))
			}
		}
		for _, b := range payload {
			e.Write(b)
		}
	}

	e.Write(nm.SecurityFooter)
	return e.Bytes(), nil
}

// EncodeDataSetMessage writes one DataSetMessage.
func EncodeDataSetMessage(dsm *pubsub.DataSetMessage) ([]byte, error) {
	e := NewEncoder()
	h := &dsm.Header
	e.WriteByte(byte(h.Flags1))
	if h.Flags1&pubsub.DataSetFlags1Flags2 != 0 {
		e.WriteByte(byte(h.Flags2))
	}
	if h.Flags1&pubsub.DataSetFlags1SequenceNumber != 0 {
		e.WriteUInt16(deref(h.SequenceNumber))
	}
	if h.Flags2&pubsub.DataSetFlags2Timestamp != 0 {
		e.WriteDateTime(deref(h.Timestamp))
	}
	if h.Flags2&pubsub.DataSetFlags2PicoSeconds != 0 {
		e.WriteUInt16(deref(h.PicoSeconds))
	}
	if h.Flags1&pubsub.DataSetFlags1Status != 0 {
		e.WriteUInt16(deref(h.Status))
	}
	if h.Flags1&pubsub.DataSetFlags1MajorVersion != 0 {
		e.WriteUInt32(deref(h.MajorVersion))
	}
	if h.Flags1&pubsub.DataSetFlags1MinorVersion != 0 {
		e.WriteUInt32(deref(h.MinorVersion))
	}

	enc := h.FieldEncoding()
	switch h.MessageType() {
	case pubsub.MessageTypeKeyFrame, pubsub.MessageTypeEvent:
		if enc != pubsub.FieldEncodingRawData {
			e.WriteUInt16(uint16(len(dsm.Fields)))
		}
		for i := range dsm.Fields {
			if err := e.writeField(enc, &dsm.Fields[i]); err != nil {
				return nil, fmt.Errorf("field %d: %w", i, err)
			}
		}
	case pubsub.MessageTypeDeltaFrame:
		e.WriteUInt16(uint16(len(dsm.Deltas)))
		for i := range dsm.Deltas {
			e.WriteUInt16(dsm.Deltas[i].Index)
			if err := e.writeField(enc, &dsm.Deltas[i].Field); err != nil {
				return nil, fmt.Errorf("delta %d: %w", i, err)
			}
		}
	}
	return e.Bytes(), nil
}

func (e *Encoder) writeField(enc pubsub.FieldEncoding, f *pubsub.DataSetField) error {
	switch enc {
	case pubsub.FieldEncodingVariant:
		if f.Status.IsBad() && f.Value.IsEmpty() {
			e.WriteByte(byte(opcua.TypeStatusCode))
			e.WriteStatusCode(f.Status)
			return nil
		}
		return e.WriteVariant(f.Value)
	case pubsub.FieldEncodingRawData:
		return e.WriteVariantBody(f.Value)
	case pubsub.FieldEncodingDataValue:
		dv := opcua.DataValue{
			StatusCode:      f.Status,
			SourceTimestamp: deref(f.SourceTimestamp),
			ServerTimestamp: deref(f.ServerTimestamp),
		}
		if !f.Value.IsEmpty() {
			v := f.Value
			dv.Value = &v
		}
		return e.WriteDataValue(dv)
	default:
		return fmt.Errorf("uatest: cannot encode field encoding %s", enc)
	}
}

// ChunkDatagrams splits an encoded DataSetMessage into chunk datagrams of at
// most size payload bytes, using nm for the headers.
func ChunkDatagrams(nm *pubsub.NetworkMessage, writerID, seq uint16, message []byte, size int) ([][]byte, error) {
	if size <= 0 {
		return nil, errors.New("uatest: chunk size must be positive")
	}
	hdr := *nm
	hdr.ExtendedFlags2 |= pubsub.ExtFlags2Chunk
	hdr.ExtendedFlags1 |= pubsub.ExtFlags1ExtendedFlags2
	hdr.Flags |= pubsub.FlagExtendedFlags1

	var out [][]byte
	for off := 0; off < len(message); off += size {
		end := min(off+size, len(message))
		hdr.Chunk = &pubsub.ChunkMessage{
			DataSetWriterID:       writerID,
			MessageSequenceNumber: seq,
			ChunkOffset:           uint32(off),
			TotalSize:             uint32(len(message)),
			Data:                  message[off:end],
		}
		b, err := EncodeNetworkMessage(&hdr)
		if err != nil {
			return nil, err
		}
		out = append(out, append([]byte(nil), b...))
	}
	return out, nil
}
