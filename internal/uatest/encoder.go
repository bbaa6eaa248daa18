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

// Package uatest builds OPC UA binary and UADP wire bytes for tests.
package uatest

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	opcua "github.com/edgeo-scada/uadp"
)

// Encoder writes OPC UA binary-encoded values.
type Encoder struct {
	buf *bytes.Buffer
}

// NewEncoder creates a new encoder.
func NewEncoder() *Encoder {
	return &Encoder{buf: new(bytes.Buffer)}
}

// Bytes returns the encoded bytes.
func (e *Encoder) Bytes() []byte {
	return e.buf.Bytes()
}

// Len returns the number of encoded bytes.
func (e *Encoder) Len() int {
	return e.buf.Len()
}

// Write appends raw bytes.
func (e *Encoder) Write(b []byte) {
	e.buf.Write(b)
}

// WriteBoolean writes a boolean value.
func (e *Encoder) WriteBoolean(v bool) {
	if v {
		e.buf.WriteByte(1)
	} else {
		e.buf.WriteByte(0)
	}
}

// WriteByte writes a byte value.
func (e *Encoder) WriteByte(v byte) {
	e.buf.WriteByte(v)
}

// WriteSByte writes a signed byte value.
func (e *Encoder) WriteSByte(v int8) {
	e.buf.WriteByte(byte(v))
}

// WriteUInt16 writes a uint16 value.
func (e *Encoder) WriteUInt16(v uint16) {
	e.buf.Write(binary.LittleEndian.AppendUint16(nil, v))
}

// WriteInt16 writes an int16 value.
func (e *Encoder) WriteInt16(v int16) {
	e.WriteUInt16(uint16(v))
}

// WriteUInt32 writes a uint32 value.
func (e *Encoder) WriteUInt32(v uint32) {
	e.buf.Write(binary.LittleEndian.AppendUint32(nil, v))
}

// WriteInt32 writes an int32 value.
func (e *Encoder) WriteInt32(v int32) {
	e.WriteUInt32(uint32(v))
}

// WriteUInt64 writes a uint64 value.
func (e *Encoder) WriteUInt64(v uint64) {
	e.buf.Write(binary.LittleEndian.AppendUint64(nil, v))
}

// WriteInt64 writes an int64 value.
func (e *Encoder) WriteInt64(v int64) {
	e.WriteUInt64(uint64(v))
}

// WriteFloat writes a float32 value.
func (e *Encoder) WriteFloat(v float32) {
	e.WriteUInt32(math.Float32bits(v))
}

// WriteDouble writes a float64 value.
func (e *Encoder) WriteDouble(v float64) {
	e.WriteUInt64(math.Float64bits(v))
}

// WriteString writes a string value. The empty string is written as null.
func (e *Encoder) WriteString(v string) {
	if v == "" {
		e.WriteInt32(-1)
		return
	}
	e.WriteInt32(int32(len(v)))
	e.buf.WriteString(v)
}

// WriteByteString writes a byte string value. nil is written as null.
func (e *Encoder) WriteByteString(v []byte) {
	if v == nil {
		e.WriteInt32(-1)
		return
	}
	e.WriteInt32(int32(len(v)))
	e.buf.Write(v)
}

// WriteDateTime writes a DateTime value.
func (e *Encoder) WriteDateTime(t time.Time) {
	if t.IsZero() {
		e.WriteInt64(0)
		return
	}
	const epochDiff = 116444736000000000 // 100-ns intervals from 1601 to 1970
	e.WriteInt64(t.UnixNano()/100 + epochDiff)
}

// WriteGUID writes a GUID value.
func (e *Encoder) WriteGUID(v uuid.UUID) {
	// Data1-Data3 little-endian, Data4 as is
	e.WriteUInt32(binary.BigEndian.Uint32(v[0:4]))
	e.WriteUInt16(binary.BigEndian.Uint16(v[4:6]))
	e.WriteUInt16(binary.BigEndian.Uint16(v[6:8]))
	e.buf.Write(v[8:16])
}

// WriteNodeID writes a NodeID value using the most compact encoding.
func (e *Encoder) WriteNodeID(n opcua.NodeID) {
	switch n.Type {
	case opcua.NodeIDTypeNumeric:
		if n.Namespace == 0 && n.Numeric <= 255 {
			e.WriteByte(0x00)
			e.WriteByte(byte(n.Numeric))
		} else if n.Namespace <= 255 && n.Numeric <= 65535 {
			e.WriteByte(0x01)
			e.WriteByte(byte(n.Namespace))
			e.WriteUInt16(uint16(n.Numeric))
		} else {
			e.WriteByte(0x02)
			e.WriteUInt16(n.Namespace)
			e.WriteUInt32(n.Numeric)
		}
	case opcua.NodeIDTypeString:
		e.WriteByte(0x03)
		e.WriteUInt16(n.Namespace)
		e.WriteString(n.String)
	case opcua.NodeIDTypeGUID:
		e.WriteByte(0x04)
		e.WriteUInt16(n.Namespace)
		e.WriteGUID(n.GUID)
	case opcua.NodeIDTypeOpaque:
		e.WriteByte(0x05)
		e.WriteUInt16(n.Namespace)
		e.WriteByteString(n.Opaque)
	}
}

// WriteQualifiedName writes a QualifiedName value.
func (e *Encoder) WriteQualifiedName(q opcua.QualifiedName) {
	e.WriteUInt16(q.NamespaceIndex)
	e.WriteString(q.Name)
}

// WriteLocalizedText writes a LocalizedText value.
func (e *Encoder) WriteLocalizedText(l opcua.LocalizedText) {
	var mask byte
	if l.Locale != "" {
		mask |= 0x01
	}
	if l.Text != "" {
		mask |= 0x02
	}
	e.WriteByte(mask)
	if l.Locale != "" {
		e.WriteString(l.Locale)
	}
	if l.Text != "" {
		e.WriteString(l.Text)
	}
}

// WriteStatusCode writes a StatusCode value.
func (e *Encoder) WriteStatusCode(s opcua.StatusCode) {
	e.WriteUInt32(uint32(s))
}

// WriteExtensionObject writes an ExtensionObject with a binary body.
func (e *Encoder) WriteExtensionObject(eo opcua.ExtensionObject) {
	e.WriteNodeID(eo.TypeID)
	if eo.Body == nil {
		e.WriteByte(0x00)
		return
	}
	e.WriteByte(0x01)
	e.WriteByteString(eo.Body)
}

// VariantMask returns the encoding mask of v.
func VariantMask(v opcua.Variant) byte {
	mask := byte(v.Type) & opcua.VariantTypeMask
	if _, ok := v.Value.([]interface{}); ok {
		mask |= opcua.VariantArrayValueFlag
		if len(v.ArrayDimensions) > 0 {
			mask |= opcua.VariantArrayDimsFlag
		}
	}
	return mask
}

// WriteVariant writes a Variant with its encoding mask.
func (e *Encoder) WriteVariant(v opcua.Variant) error {
	e.WriteByte(VariantMask(v))
	return e.WriteVariantBody(v)
}

// WriteVariantBody writes a Variant without its encoding mask, as RawData
// fields carry it.
func (e *Encoder) WriteVariantBody(v opcua.Variant) error {
	arr, ok := v.Value.([]interface{})
	if !ok {
		return e.WriteValue(v.Type, v.Value)
	}
	e.WriteInt32(int32(len(arr)))
	for i, elem := range arr {
		if err := e.WriteValue(v.Type, elem); err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
	}
	if len(v.ArrayDimensions) > 0 {
		e.WriteInt32(int32(len(v.ArrayDimensions)))
		for _, d := range v.ArrayDimensions {
			e.WriteInt32(d)
		}
	}
	return nil
}

// WriteValue writes a scalar of builtin type t. The Go type of value must
// be the one the decoder produces for t.
func (e *Encoder) WriteValue(t opcua.TypeID, value interface{}) error {
	switch t {
	case opcua.TypeNull:
		return nil
	case opcua.TypeBoolean:
		v, ok := value.(bool)
		if !ok {
			break
		}
		e.WriteBoolean(v)
		return nil
	case opcua.TypeSByte:
		v, ok := value.(int8)
		if !ok {
			break
		}
		e.WriteSByte(v)
		return nil
	case opcua.TypeByte:
		v, ok := value.(byte)
		if !ok {
			break
		}
		e.WriteByte(v)
		return nil
	case opcua.TypeInt16:
		v, ok := value.(int16)
		if !ok {
			break
		}
		e.WriteInt16(v)
		return nil
	case opcua.TypeUInt16:
		v, ok := value.(uint16)
		if !ok {
			break
		}
		e.WriteUInt16(v)
		return nil
	case opcua.TypeInt32:
		v, ok := value.(int32)
		if !ok {
			break
		}
		e.WriteInt32(v)
		return nil
	case opcua.TypeUInt32:
		v, ok := value.(uint32)
		if !ok {
			break
		}
		e.WriteUInt32(v)
		return nil
	case opcua.TypeInt64:
		v, ok := value.(int64)
		if !ok {
			break
		}
		e.WriteInt64(v)
		return nil
	case opcua.TypeUInt64:
		v, ok := value.(uint64)
		if !ok {
			break
		}
		e.WriteUInt64(v)
		return nil
	case opcua.TypeFloat:
		v, ok := value.(float32)
		if !ok {
			break
		}
		e.WriteFloat(v)
		return nil
	case opcua.TypeDouble:
		v, ok := value.(float64)
		if !ok {
			break
		}
		e.WriteDouble(v)
		return nil
	case opcua.TypeString, opcua.TypeXMLElement:
		v, ok := value.(string)
		if !ok {
			break
		}
		e.WriteString(v)
		return nil
	case opcua.TypeDateTime:
		v, ok := value.(time.Time)
		if !ok {
			break
		}
		e.WriteDateTime(v)
		return nil
	case opcua.TypeGUID:
		v, ok := value.(uuid.UUID)
		if !ok {
			break
		}
		e.WriteGUID(v)
		return nil
	case opcua.TypeByteString:
		v, ok := value.([]byte)
		if !ok {
			break
		}
		e.WriteByteString(v)
		return nil
	case opcua.TypeNodeID:
		v, ok := value.(opcua.NodeID)
		if !ok {
			break
		}
		e.WriteNodeID(v)
		return nil
	case opcua.TypeStatusCode:
		v, ok := value.(opcua.StatusCode)
		if !ok {
			break
		}
		e.WriteStatusCode(v)
		return nil
	case opcua.TypeQualifiedName:
		v, ok := value.(opcua.QualifiedName)
		if !ok {
			break
		}
		e.WriteQualifiedName(v)
		return nil
	case opcua.TypeLocalizedText:
		v, ok := value.(opcua.LocalizedText)
		if !ok {
			break
		}
		e.WriteLocalizedText(v)
		return nil
	case opcua.TypeExtensionObject:
		v, ok := value.(opcua.ExtensionObject)
		if !ok {
			break
		}
		e.WriteExtensionObject(v)
		return nil
	case opcua.TypeDataValue:
		v, ok := value.(opcua.DataValue)
		if !ok {
			break
		}
		return e.WriteDataValue(v)
	case opcua.TypeVariant:
		v, ok := value.(opcua.Variant)
		if !ok {
			break
		}
		return e.WriteVariant(v)
	default:
		return fmt.Errorf("uatest: cannot encode %s", t)
	}
	return fmt.Errorf("uatest: %T is not a %s value", value, t)
}

// WriteDataValue writes a DataValue. Zero timestamps are omitted.
func (e *Encoder) WriteDataValue(dv opcua.DataValue) error {
	var mask byte
	if dv.Value != nil {
		mask |= 0x01
	}
	if dv.StatusCode != opcua.StatusGood {
		mask |= 0x02
	}
	if !dv.SourceTimestamp.IsZero() {
		mask |= 0x04
	}
	if !dv.ServerTimestamp.IsZero() {
		mask |= 0x08
	}
	if dv.SourcePicoseconds != 0 {
		mask |= 0x10
	}
	if dv.ServerPicoseconds != 0 {
		mask |= 0x20
	}
	e.WriteByte(mask)
	if dv.Value != nil {
		if err := e.WriteVariant(*dv.Value); err != nil {
			return err
		}
	}
	if mask&0x02 != 0 {
		e.WriteStatusCode(dv.StatusCode)
	}
	if mask&0x04 != 0 {
		e.WriteDateTime(dv.SourceTimestamp)
	}
	if mask&0x10 != 0 {
		e.WriteUInt16(dv.SourcePicoseconds)
	}
	if mask&0x08 != 0 {
		e.WriteDateTime(dv.ServerTimestamp)
	}
	if mask&0x20 != 0 {
		e.WriteUInt16(dv.ServerPicoseconds)
	}
	return nil
}
