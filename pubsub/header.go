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
	"slices"

	opcua "github.com/edgeo-scada/uadp"
)

func hex8[T ~uint8](v T) string {
	return fmt.Sprintf("0x%02X", uint8(v))
}

// decodeNetworkMessageHeader reads the flag bytes, PublisherId and
// DataSetClassId.
func (s *decodeState) decodeNetworkMessageHeader(c *cursor, nm *NetworkMessage) error {
	b, err := c.readByte()
	if err != nil {
		return err
	}
	version := b & versionMask
	flags := UADPFlags(b &^ versionMask)

	var ext1 ExtendedFlags1
	if flags&FlagExtendedFlags1 != 0 {
		v, err := c.readByte()
		if err != nil {
			return err
		}
		ext1 = ExtendedFlags1(v)
	}
	var ext2 ExtendedFlags2
	if ext1&ExtFlags1ExtendedFlags2 != 0 {
		v, err := c.readByte()
		if err != nil {
			return err
		}
		ext2 = ExtendedFlags2(v)
	}

	if s.verify {
		if version != nm.Version {
			return mismatch("UADP version", version, nm.Version)
		}
		if flags != nm.Flags {
			return mismatch("UADP flags", hex8(flags), hex8(nm.Flags))
		}
		if ext1 != nm.ExtendedFlags1 {
			return mismatch("ExtendedFlags1", hex8(ext1), hex8(nm.ExtendedFlags1))
		}
		// The chunk bit changes per datagram; everything else is fixed by
		// the writer group configuration.
		if ext2&^ExtFlags2Chunk != nm.ExtendedFlags2&^ExtFlags2Chunk {
			return mismatch("ExtendedFlags2", hex8(ext2), hex8(nm.ExtendedFlags2))
		}
	} else {
		if version != opcua.UADPVersion {
			return decodingError("unsupported UADP version %d", version)
		}
		nm.Version = version
		nm.Flags = flags
		nm.ExtendedFlags1 = ext1
	}
	nm.ExtendedFlags2 = ext2

	if t := ext2.NetworkMessageType(); t != 0 {
		return decodingError("NetworkMessage type %d is not supported", t)
	}

	if flags&FlagPublisherID != 0 {
		id, err := s.readPublisherID(c, ext1&ExtFlags1PublisherIDTypeMask)
		if err != nil {
			return err
		}
		if s.verify {
			if !id.Equal(nm.PublisherID) {
				return mismatch("PublisherId", id, nm.PublisherID)
			}
		} else {
			nm.PublisherID = id
		}
	}

	if ext1&ExtFlags1DataSetClassID != 0 {
		id, err := c.readGUID(s.engine)
		if err != nil {
			return err
		}
		if s.verify {
			if err := verifyField("DataSetClassId", nm.DataSetClassID, id); err != nil {
				return err
			}
		} else {
			nm.DataSetClassID = &id
		}
	}
	return nil
}

func (s *decodeState) readPublisherID(c *cursor, code ExtendedFlags1) (PublisherID, error) {
	switch code {
	case 0:
		v, err := c.readByte()
		return NumericPublisherID(PublisherIDByte, uint64(v)), err
	case 1:
		v, err := c.readUint16()
		return NumericPublisherID(PublisherIDUInt16, uint64(v)), err
	case 2:
		v, err := c.readUint32()
		return NumericPublisherID(PublisherIDUInt32, uint64(v)), err
	case 3:
		v, err := c.readUint64()
		return NumericPublisherID(PublisherIDUInt64, v), err
	case 4:
		v, err := c.readString(s.engine)
		return StringPublisherID(v), err
	default:
		return PublisherID{}, decodingError("reserved PublisherId type %d", code)
	}
}

func (s *decodeState) decodeGroupHeader(c *cursor, nm *NetworkMessage) error {
	b, err := c.readByte()
	if err != nil {
		return err
	}
	flags := GroupFlags(b)

	g := nm.GroupHeader
	if s.verify {
		if g == nil {
			return invalidArgument("expected message has no GroupHeader")
		}
		if flags != g.Flags {
			return mismatch("GroupFlags", hex8(flags), hex8(g.Flags))
		}
	} else {
		g = &GroupHeader{Flags: flags}
		nm.GroupHeader = g
	}

	if flags&GroupFlagWriterGroupID != 0 {
		v, err := c.readUint16()
		if err != nil {
			return err
		}
		if s.verify {
			if err := verifyField("WriterGroupId", g.WriterGroupID, v); err != nil {
				return err
			}
		} else {
			g.WriterGroupID = &v
		}
	}
	if flags&GroupFlagGroupVersion != 0 {
		v, err := c.readUint32()
		if err != nil {
			return err
		}
		if s.verify {
			if err := verifyField("GroupVersion", g.GroupVersion, v); err != nil {
				return err
			}
		} else {
			g.GroupVersion = &v
		}
	}
	if flags&GroupFlagNetworkMessageNumber != 0 {
		v, err := c.readUint16()
		if err != nil {
			return err
		}
		g.NetworkMessageNumber = &v
	}
	if flags&GroupFlagSequenceNumber != 0 {
		v, err := c.readUint16()
		if err != nil {
			return err
		}
		g.SequenceNumber = &v
	}
	return nil
}

func (s *decodeState) decodePayloadHeader(c *cursor, nm *NetworkMessage) error {
	if s.verify && nm.PayloadHeader == nil {
		return invalidArgument("expected message has no PayloadHeader")
	}

	if nm.ExtendedFlags2&ExtFlags2Chunk != 0 {
		id, err := c.readUint16()
		if err != nil {
			return err
		}
		if s.verify {
			if !slices.Contains(nm.PayloadHeader.DataSetWriterIDs, id) {
				return mismatch("chunk DataSetWriterId", id, nm.PayloadHeader.DataSetWriterIDs)
			}
		} else {
			nm.PayloadHeader = &PayloadHeader{DataSetWriterIDs: []uint16{id}}
		}
		nm.Chunk = &ChunkMessage{DataSetWriterID: id}
		return nil
	}

	count, err := c.readByte()
	if err != nil {
		return err
	}
	if s.verify && int(count) != len(nm.PayloadHeader.DataSetWriterIDs) {
		return mismatch("DataSetMessage count", count, len(nm.PayloadHeader.DataSetWriterIDs))
	}

	ids := make([]uint16, count)
	for i := range ids {
		if ids[i], err = c.readUint16(); err != nil {
			return err
		}
	}
	if s.verify {
		for i, id := range ids {
			if want := nm.PayloadHeader.DataSetWriterIDs[i]; id != want {
				return mismatch(fmt.Sprintf("DataSetWriterId[%d]", i), id, want)
			}
		}
	} else {
		nm.PayloadHeader = &PayloadHeader{DataSetWriterIDs: ids}
	}
	return nil
}

// decodeExtendedHeader reads Timestamp, PicoSeconds and PromotedFields.
// They are populated in both modes.
func (s *decodeState) decodeExtendedHeader(c *cursor, nm *NetworkMessage) error {
	if nm.ExtendedFlags1&ExtFlags1Timestamp != 0 {
		t, err := c.readDateTime(s.engine)
		if err != nil {
			return err
		}
		nm.Timestamp = &t
	}
	if nm.ExtendedFlags1&ExtFlags1PicoSeconds != 0 {
		v, err := c.readUint16()
		if err != nil {
			return err
		}
		nm.PicoSeconds = &v
	}
	if nm.ExtendedFlags2&ExtFlags2PromotedFields != 0 {
		size, err := c.readUint16()
		if err != nil {
			return err
		}
		w, err := c.window(int(size))
		if err != nil {
			return err
		}
		fields := nm.PromotedFields[:0]
		for w.remaining() > 0 {
			v, err := w.readVariant(s.engine)
			if err != nil {
				return fmt.Errorf("promoted field %d: %w", len(fields), err)
			}
			fields = append(fields, v)
		}
		nm.PromotedFields = fields
	}
	return nil
}

func (s *decodeState) decodeSecurityHeader(c *cursor, nm *NetworkMessage) error {
	b, err := c.readByte()
	if err != nil {
		return err
	}
	flags := SecurityFlags(b)

	sh := nm.SecurityHeader
	if s.verify {
		if sh == nil {
			return invalidArgument("expected message has no SecurityHeader")
		}
		if flags != sh.Flags {
			return mismatch("SecurityFlags", hex8(flags), hex8(sh.Flags))
		}
	} else {
		sh = &SecurityHeader{Flags: flags}
		nm.SecurityHeader = sh
	}

	if sh.SecurityTokenID, err = c.readUint32(); err != nil {
		return err
	}

	nonceLen, err := c.readByte()
	if err != nil {
		return err
	}
	if s.verify && int(nonceLen) != len(sh.MessageNonce) {
		return mismatch("MessageNonce length", nonceLen, len(sh.MessageNonce))
	}
	nonce, err := c.advance(int(nonceLen))
	if err != nil {
		return err
	}
	sh.MessageNonce = append(sh.MessageNonce[:0], nonce...)

	sh.SecurityFooterSize = nil
	if flags&SecurityFlagFooter != 0 {
		v, err := c.readUint16()
		if err != nil {
			return err
		}
		sh.SecurityFooterSize = &v
	}
	return nil
}
