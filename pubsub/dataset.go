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
)

func (s *decodeState) decodeDataSetMessage(c *cursor, dsm *DataSetMessage) error {
	if err := s.decodeDataSetMessageHeader(c, &dsm.Header); err != nil {
		return err
	}

	switch dsm.Header.MessageType() {
	case MessageTypeKeyFrame, MessageTypeEvent:
		return s.decodeKeyFrame(c, dsm)
	case MessageTypeDeltaFrame:
		return s.decodeDeltaFrame(c, dsm)
	default: // keep-alive
		dsm.Deltas = nil
		return nil
	}
}

func (s *decodeState) decodeDataSetMessageHeader(c *cursor, h *DataSetMessageHeader) error {
	b, err := c.readByte()
	if err != nil {
		return err
	}
	flags1 := DataSetFlags1(b)

	var flags2 DataSetFlags2
	if flags1&DataSetFlags1Flags2 != 0 {
		v, err := c.readByte()
		if err != nil {
			return err
		}
		flags2 = DataSetFlags2(v)
	}

	got := DataSetMessageHeader{Flags1: flags1, Flags2: flags2}
	if enc := got.FieldEncoding(); enc == fieldEncodingReserved {
		return decodingError("reserved field encoding in DataSetFlags1 %s", hex8(flags1))
	}
	if t := got.MessageType(); t > MessageTypeKeepAlive {
		return decodingError("unknown DataSetMessage type %d", t)
	}

	if s.verify {
		if flags1 != h.Flags1 {
			return mismatch("DataSetFlags1", hex8(flags1), hex8(h.Flags1))
		}
		if flags2 != h.Flags2 {
			return mismatch("DataSetFlags2", hex8(flags2), hex8(h.Flags2))
		}
	} else {
		h.Flags1 = flags1
		h.Flags2 = flags2
	}

	if flags1&DataSetFlags1SequenceNumber != 0 {
		v, err := c.readUint16()
		if err != nil {
			return err
		}
		h.SequenceNumber = &v
	}
	if flags2&DataSetFlags2Timestamp != 0 {
		t, err := c.readDateTime(s.engine)
		if err != nil {
			return err
		}
		h.Timestamp = &t
	}
	if flags2&DataSetFlags2PicoSeconds != 0 {
		v, err := c.readUint16()
		if err != nil {
			return err
		}
		h.PicoSeconds = &v
	}
	if flags1&DataSetFlags1Status != 0 {
		v, err := c.readUint16()
		if err != nil {
			return err
		}
		h.Status = &v
	}
	if flags1&DataSetFlags1MajorVersion != 0 {
		v, err := c.readUint32()
		if err != nil {
			return err
		}
		if s.verify {
			if err := verifyField("ConfigurationVersion.MajorVersion", h.MajorVersion, v); err != nil {
				return err
			}
		} else {
			h.MajorVersion = &v
		}
	}
	if flags1&DataSetFlags1MinorVersion != 0 {
		v, err := c.readUint32()
		if err != nil {
			return err
		}
		if s.verify {
			if err := verifyField("ConfigurationVersion.MinorVersion", h.MinorVersion, v); err != nil {
				return err
			}
		} else {
			h.MinorVersion = &v
		}
	}
	return nil
}

// decodeKeyFrame decodes the full field list of a key frame or event.
func (s *decodeState) decodeKeyFrame(c *cursor, dsm *DataSetMessage) error {
	enc := dsm.Header.FieldEncoding()
	dsm.Deltas = nil

	// RawData carries no field count; the metadata fixes it.
	if enc == FieldEncodingRawData {
		if !s.verify {
			return decodingError("RawData fields cannot be decoded without field metadata")
		}
		return s.decodeFields(c, enc, dsm.Fields)
	}

	count, err := c.readUint16()
	if err != nil {
		return err
	}
	if s.verify {
		if int(count) != len(dsm.Fields) {
			return mismatch("field count", count, len(dsm.Fields))
		}
	} else {
		// every field occupies at least one byte
		if int(count) > c.remaining() {
			return decodingError("field count %d exceeds %d remaining bytes", count, c.remaining())
		}
		dsm.Fields = make([]DataSetField, count)
	}
	return s.decodeFields(c, enc, dsm.Fields)
}

func (s *decodeState) decodeFields(c *cursor, enc FieldEncoding, fields []DataSetField) error {
	for i := range fields {
		if err := s.decodeField(c, enc, &fields[i]); err != nil {
			return fmt.Errorf("field %d: %w", i, err)
		}
	}
	return nil
}

// decodeDeltaFrame decodes the indexed fields of a delta frame. When
// verifying, the decoded fields replace the matching entries of the field
// list once the whole frame has been read; other entries are untouched.
func (s *decodeState) decodeDeltaFrame(c *cursor, dsm *DataSetMessage) error {
	enc := dsm.Header.FieldEncoding()
	if enc == FieldEncodingRawData && !s.verify {
		return decodingError("RawData fields cannot be decoded without field metadata")
	}

	count, err := c.readUint16()
	if err != nil {
		return err
	}
	// an index and at least one value byte per entry
	if int(count) > c.remaining()/3 {
		return decodingError("delta field count %d exceeds %d remaining bytes", count, c.remaining())
	}

	deltas := make([]DeltaField, 0, count)
	for i := 0; i < int(count); i++ {
		index, err := c.readUint16()
		if err != nil {
			return err
		}
		var f DataSetField
		if s.verify {
			if int(index) >= len(dsm.Fields) {
				return decodingError("delta field index %d out of range, message has %d fields", index, len(dsm.Fields))
			}
			f.Meta = dsm.Fields[index].Meta
		}
		if err := s.decodeField(c, enc, &f); err != nil {
			return fmt.Errorf("delta field %d: %w", index, err)
		}
		deltas = append(deltas, DeltaField{Index: index, Field: f})
	}

	if s.verify {
		for _, d := range deltas {
			dsm.Fields[d.Index] = d.Field
		}
	}
	dsm.Deltas = deltas
	return nil
}
