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
	opcua "github.com/edgeo-scada/uadp"
)

// decodeField decodes one field value. f.Meta is read, never written.
func (s *decodeState) decodeField(c *cursor, enc FieldEncoding, f *DataSetField) error {
	f.Status = opcua.StatusGood
	f.SourceTimestamp = nil
	f.ServerTimestamp = nil

	switch enc {
	case FieldEncodingVariant:
		return s.decodeVariantField(c, f)
	case FieldEncodingRawData:
		return s.decodeRawField(c, f)
	case FieldEncodingDataValue:
		return s.decodeDataValueField(c, f)
	default:
		return decodingError("unsupported field encoding %s", enc)
	}
}

// decodeVariantField decodes a variant. A publisher replaces a bad-quality
// value by a scalar StatusCode variant with a Bad severity; that status is
// reported in f.Status with an empty value.
func (s *decodeState) decodeVariantField(c *cursor, f *DataSetField) error {
	if b, err := c.peek(5); err == nil && b[0] == byte(opcua.TypeStatusCode) && b[4]&0x80 != 0 {
		if _, err := c.advance(1); err != nil {
			return err
		}
		sc, err := c.readUint32()
		if err != nil {
			return err
		}
		f.Value = opcua.Variant{}
		f.Status = opcua.StatusCode(sc)
		return nil
	}

	v, err := c.readVariant(s.engine)
	if err != nil {
		return err
	}
	f.Value = v
	return nil
}

// decodeRawField decodes a field whose type is given by its metadata only.
// Primitive scalars are read directly; other shapes are decoded as a
// variant body under a mask derived from the metadata.
func (s *decodeState) decodeRawField(c *cursor, f *DataSetField) error {
	t := f.Meta.BuiltInType
	if t == opcua.TypeNull || t > opcua.TypeDiagnosticInfo {
		return decodingError("RawData field has no usable datatype (%s)", t)
	}

	if f.Meta.ValueRank < ValueRankOneOrMoreDimensions && isPrimitive(t) {
		v, err := c.readScalar(t)
		if err != nil {
			return err
		}
		f.Value = opcua.Variant{Type: t, Value: v}
		return nil
	}

	v, err := c.readVariantBody(s.engine, rawDataMask(f.Meta))
	if err != nil {
		return err
	}
	f.Value = v
	return nil
}

// rawDataMask returns the variant encoding mask a RawData field would carry
// if it were variant encoded.
func rawDataMask(m FieldMetaData) byte {
	mask := byte(m.BuiltInType) & opcua.VariantTypeMask
	if m.ValueRank >= ValueRankOneOrMoreDimensions {
		mask |= opcua.VariantArrayValueFlag
		if m.ValueRank > ValueRankOneDimension || len(m.ArrayDimensions) > 1 {
			mask |= opcua.VariantArrayDimsFlag
		}
	}
	return mask
}

func (s *decodeState) decodeDataValueField(c *cursor, f *DataSetField) error {
	dv, err := c.readDataValue(s.engine)
	if err != nil {
		return err
	}
	f.Value = opcua.Variant{}
	if dv.Value != nil {
		f.Value = *dv.Value
	}
	f.Status = dv.StatusCode
	if !dv.SourceTimestamp.IsZero() {
		f.SourceTimestamp = ptr(dv.SourceTimestamp)
	}
	if !dv.ServerTimestamp.IsZero() {
		f.ServerTimestamp = ptr(dv.ServerTimestamp)
	}
	return nil
}
