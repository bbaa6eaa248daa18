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

package opcua

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// Variant encoding mask bits.
const (
	VariantTypeMask       byte = 0x3F
	VariantArrayDimsFlag  byte = 0x40
	VariantArrayValueFlag byte = 0x80
)

// DateTime conversion: 100-ns intervals from 1601-01-01 to 1970-01-01.
const epochDiff = 116444736000000000

// Decoder reads OPC UA binary-encoded builtin types from a byte slice. It
// never reads past the end of the slice; every failure wraps
// StatusBadDecodingError unless noted otherwise.
type Decoder struct {
	data     []byte
	pos      int
	depth    int
	registry *TypeRegistry
}

// NewDecoder creates a new decoder over data. The slice is borrowed, not copied.
func NewDecoder(data []byte) *Decoder {
	return &Decoder{data: data, pos: 0}
}

// WithRegistry attaches the registry used to resolve extension objects and
// namespace URIs, and returns d.
func (d *Decoder) WithRegistry(r *TypeRegistry) *Decoder {
	d.registry = r
	return d
}

// Registry returns the attached registry, possibly nil.
func (d *Decoder) Registry() *TypeRegistry {
	return d.registry
}

// Offset returns the number of bytes consumed so far.
func (d *Decoder) Offset() int {
	return d.pos
}

// Remaining returns the number of remaining bytes.
func (d *Decoder) Remaining() int {
	return len(d.data) - d.pos
}

// Next consumes and returns the next n bytes. The returned slice aliases
// the decoder's buffer.
func (d *Decoder) Next(n int) ([]byte, error) {
	if n < 0 || n > d.Remaining() {
		return nil, fmt.Errorf("%w: need %d bytes, have %d", StatusBadDecodingError, n, d.Remaining())
	}
	b := d.data[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

// Skip skips n bytes in the decoder.
func (d *Decoder) Skip(n int) error {
	_, err := d.Next(n)
	return err
}

func errEOF() error {
	return fmt.Errorf("%w: unexpected end of data", StatusBadDecodingError)
}

// ReadBoolean reads a boolean value.
func (d *Decoder) ReadBoolean() (bool, error) {
	b, err := d.ReadByte()
	return b != 0, err
}

// ReadByte reads a byte value.
func (d *Decoder) ReadByte() (byte, error) {
	if d.pos >= len(d.data) {
		return 0, errEOF()
	}
	v := d.data[d.pos]
	d.pos++
	return v, nil
}

// ReadSByte reads a signed byte value.
func (d *Decoder) ReadSByte() (int8, error) {
	b, err := d.ReadByte()
	return int8(b), err
}

// ReadUInt16 reads a uint16 value.
func (d *Decoder) ReadUInt16() (uint16, error) {
	if d.Remaining() < 2 {
		return 0, errEOF()
	}
	v := binary.LittleEndian.Uint16(d.data[d.pos:])
	d.pos += 2
	return v, nil
}

// ReadInt16 reads an int16 value.
func (d *Decoder) ReadInt16() (int16, error) {
	v, err := d.ReadUInt16()
	return int16(v), err
}

// ReadUInt32 reads a uint32 value.
func (d *Decoder) ReadUInt32() (uint32, error) {
	if d.Remaining() < 4 {
		return 0, errEOF()
	}
	v := binary.LittleEndian.Uint32(d.data[d.pos:])
	d.pos += 4
	return v, nil
}

// ReadInt32 reads an int32 value.
func (d *Decoder) ReadInt32() (int32, error) {
	v, err := d.ReadUInt32()
	return int32(v), err
}

// ReadUInt64 reads a uint64 value.
func (d *Decoder) ReadUInt64() (uint64, error) {
	if d.Remaining() < 8 {
		return 0, errEOF()
	}
	v := binary.LittleEndian.Uint64(d.data[d.pos:])
	d.pos += 8
	return v, nil
}

// ReadInt64 reads an int64 value.
func (d *Decoder) ReadInt64() (int64, error) {
	v, err := d.ReadUInt64()
	return int64(v), err
}

// ReadFloat reads a float32 value.
func (d *Decoder) ReadFloat() (float32, error) {
	v, err := d.ReadUInt32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

// ReadDouble reads a float64 value.
func (d *Decoder) ReadDouble() (float64, error) {
	v, err := d.ReadUInt64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

// readLength reads an Int32 length prefix. A negative length encodes null.
func (d *Decoder) readLength(what string) (int, bool, error) {
	length, err := d.ReadInt32()
	if err != nil {
		return 0, false, err
	}
	if length < 0 {
		return 0, true, nil
	}
	if int(length) > d.Remaining() {
		return 0, false, fmt.Errorf("%w: %s truncated (%d > %d)", StatusBadDecodingError, what, length, d.Remaining())
	}
	return int(length), false, nil
}

// ReadString reads a string value. A null string decodes as "".
func (d *Decoder) ReadString() (string, error) {
	n, null, err := d.readLength("string")
	if err != nil || null {
		return "", err
	}
	v := string(d.data[d.pos : d.pos+n])
	d.pos += n
	return v, nil
}

// ReadByteString reads a byte string value. A null byte string decodes as nil.
func (d *Decoder) ReadByteString() ([]byte, error) {
	n, null, err := d.readLength("byte string")
	if err != nil || null {
		return nil, err
	}
	v := make([]byte, n)
	copy(v, d.data[d.pos:d.pos+n])
	d.pos += n
	return v, nil
}

// ReadDateTime reads a DateTime value. Zero and negative tick counts decode
// as the zero time.
func (d *Decoder) ReadDateTime() (time.Time, error) {
	ticks, err := d.ReadInt64()
	if err != nil {
		return time.Time{}, err
	}
	if ticks <= 0 {
		return time.Time{}, nil
	}
	unixTicks := ticks - epochDiff
	return time.Unix(unixTicks/10000000, (unixTicks%10000000)*100).UTC(), nil
}

// ReadGUID reads a GUID value. Data1-Data3 are little-endian on the wire.
func (d *Decoder) ReadGUID() (uuid.UUID, error) {
	var guid uuid.UUID
	b, err := d.Next(16)
	if err != nil {
		return guid, fmt.Errorf("%w: GUID truncated", StatusBadDecodingError)
	}
	binary.BigEndian.PutUint32(guid[0:4], binary.LittleEndian.Uint32(b[0:4]))
	binary.BigEndian.PutUint16(guid[4:6], binary.LittleEndian.Uint16(b[4:6]))
	binary.BigEndian.PutUint16(guid[6:8], binary.LittleEndian.Uint16(b[6:8]))
	copy(guid[8:16], b[8:16])
	return guid, nil
}

// readNodeIDBody decodes the NodeID that follows an already-read encoding byte.
func (d *Decoder) readNodeIDBody(encodingByte byte) (NodeID, error) {
	switch encodingByte & 0x0F {
	case 0x00: // Two-byte numeric
		id, err := d.ReadByte()
		if err != nil {
			return NodeID{}, err
		}
		return NewNumericNodeID(0, uint32(id)), nil

	case 0x01: // Four-byte numeric
		ns, err := d.ReadByte()
		if err != nil {
			return NodeID{}, err
		}
		id, err := d.ReadUInt16()
		if err != nil {
			return NodeID{}, err
		}
		return NewNumericNodeID(uint16(ns), uint32(id)), nil

	case 0x02:
		ns, err := d.ReadUInt16()
		if err != nil {
			return NodeID{}, err
		}
		id, err := d.ReadUInt32()
		if err != nil {
			return NodeID{}, err
		}
		return NewNumericNodeID(ns, id), nil

	case 0x03:
		ns, err := d.ReadUInt16()
		if err != nil {
			return NodeID{}, err
		}
		str, err := d.ReadString()
		if err != nil {
			return NodeID{}, err
		}
		return NewStringNodeID(ns, str), nil

	case 0x04:
		ns, err := d.ReadUInt16()
		if err != nil {
			return NodeID{}, err
		}
		guid, err := d.ReadGUID()
		if err != nil {
			return NodeID{}, err
		}
		return NodeID{Type: NodeIDTypeGUID, Namespace: ns, GUID: guid}, nil

	case 0x05:
		ns, err := d.ReadUInt16()
		if err != nil {
			return NodeID{}, err
		}
		opaque, err := d.ReadByteString()
		if err != nil {
			return NodeID{}, err
		}
		return NodeID{Type: NodeIDTypeOpaque, Namespace: ns, Opaque: opaque}, nil

	default:
		return NodeID{}, fmt.Errorf("%w: unknown NodeID encoding 0x%02X", StatusBadDecodingError, encodingByte)
	}
}

// ReadNodeID reads a NodeID value.
func (d *Decoder) ReadNodeID() (NodeID, error) {
	encodingByte, err := d.ReadByte()
	if err != nil {
		return NodeID{}, err
	}
	if encodingByte&0xC0 != 0 {
		return NodeID{}, fmt.Errorf("%w: expanded flags on plain NodeID", StatusBadDecodingError)
	}
	return d.readNodeIDBody(encodingByte)
}

// ReadExpandedNodeID reads an ExpandedNodeID value. A namespace URI known to
// the registry is resolved into the NodeID's namespace index.
func (d *Decoder) ReadExpandedNodeID() (ExpandedNodeID, error) {
	encodingByte, err := d.ReadByte()
	if err != nil {
		return ExpandedNodeID{}, err
	}
	nodeID, err := d.readNodeIDBody(encodingByte)
	if err != nil {
		return ExpandedNodeID{}, err
	}

	out := ExpandedNodeID{NodeID: nodeID}
	if encodingByte&0x80 != 0 {
		if out.NamespaceURI, err = d.ReadString(); err != nil {
			return ExpandedNodeID{}, err
		}
		if d.registry != nil {
			if idx, ok := d.registry.NamespaceIndex(out.NamespaceURI); ok {
				out.NodeID.Namespace = idx
			}
		}
	}
	if encodingByte&0x40 != 0 {
		if out.ServerIndex, err = d.ReadUInt32(); err != nil {
			return ExpandedNodeID{}, err
		}
	}
	return out, nil
}

// ReadQualifiedName reads a QualifiedName value.
func (d *Decoder) ReadQualifiedName() (QualifiedName, error) {
	ns, err := d.ReadUInt16()
	if err != nil {
		return QualifiedName{}, err
	}
	name, err := d.ReadString()
	if err != nil {
		return QualifiedName{}, err
	}
	return QualifiedName{NamespaceIndex: ns, Name: name}, nil
}

// ReadLocalizedText reads a LocalizedText value.
func (d *Decoder) ReadLocalizedText() (LocalizedText, error) {
	encodingMask, err := d.ReadByte()
	if err != nil {
		return LocalizedText{}, err
	}

	var lt LocalizedText
	if encodingMask&0x01 != 0 {
		if lt.Locale, err = d.ReadString(); err != nil {
			return LocalizedText{}, err
		}
	}
	if encodingMask&0x02 != 0 {
		if lt.Text, err = d.ReadString(); err != nil {
			return LocalizedText{}, err
		}
	}
	return lt, nil
}

// ReadStatusCode reads a StatusCode value.
func (d *Decoder) ReadStatusCode() (StatusCode, error) {
	v, err := d.ReadUInt32()
	return StatusCode(v), err
}

func (d *Decoder) enter() error {
	if d.depth >= MaxNestingDepth {
		return fmt.Errorf("%w: nesting deeper than %d", StatusBadDecodingError, MaxNestingDepth)
	}
	d.depth++
	return nil
}

func (d *Decoder) leave() {
	d.depth--
}

// ReadDiagnosticInfo reads a DiagnosticInfo value.
func (d *Decoder) ReadDiagnosticInfo() (DiagnosticInfo, error) {
	if err := d.enter(); err != nil {
		return DiagnosticInfo{}, err
	}
	defer d.leave()

	mask, err := d.ReadByte()
	if err != nil {
		return DiagnosticInfo{}, err
	}

	var di DiagnosticInfo
	for _, f := range []struct {
		bit byte
		dst *int32
	}{
		{0x01, &di.SymbolicID},
		{0x02, &di.NamespaceURI},
		{0x08, &di.Locale},
		{0x04, &di.LocalizedText},
	} {
		if mask&f.bit == 0 {
			*f.dst = -1
			continue
		}
		if *f.dst, err = d.ReadInt32(); err != nil {
			return DiagnosticInfo{}, err
		}
	}
	if mask&0x10 != 0 {
		if di.AdditionalInfo, err = d.ReadString(); err != nil {
			return DiagnosticInfo{}, err
		}
	}
	if mask&0x20 != 0 {
		if di.InnerStatusCode, err = d.ReadStatusCode(); err != nil {
			return DiagnosticInfo{}, err
		}
	}
	if mask&0x40 != 0 {
		inner, err := d.ReadDiagnosticInfo()
		if err != nil {
			return DiagnosticInfo{}, err
		}
		di.InnerDiagnosticInfo = &inner
	}
	return di, nil
}

// ReadExtensionObject reads an ExtensionObject. Binary bodies whose encoding
// id is registered are decoded into Value; others keep only the raw Body.
func (d *Decoder) ReadExtensionObject() (ExtensionObject, error) {
	typeID, err := d.ReadNodeID()
	if err != nil {
		return ExtensionObject{}, err
	}
	encoding, err := d.ReadByte()
	if err != nil {
		return ExtensionObject{}, err
	}

	eo := ExtensionObject{TypeID: typeID, Encoding: encoding}
	switch encoding {
	case 0x00:
		return eo, nil
	case 0x01:
		if eo.Body, err = d.ReadByteString(); err != nil {
			return ExtensionObject{}, err
		}
		if d.registry == nil {
			return eo, nil
		}
		fn, ok := d.registry.Lookup(typeID)
		if !ok {
			return eo, nil
		}
		sub := NewDecoder(eo.Body).WithRegistry(d.registry)
		sub.depth = d.depth
		v, err := fn(sub)
		if err != nil {
			var sc StatusCode
			if !errors.As(err, &sc) {
				return ExtensionObject{}, fmt.Errorf("%w: decoding %s: %v", StatusBadInternalError, d.registry.TypeName(typeID), err)
			}
			return ExtensionObject{}, err
		}
		eo.Value = v
		return eo, nil
	case 0x02:
		xml, err := d.ReadString()
		if err != nil {
			return ExtensionObject{}, err
		}
		eo.Body = []byte(xml)
		return eo, nil
	default:
		return ExtensionObject{}, fmt.Errorf("%w: invalid extension object encoding 0x%02X", StatusBadDecodingError, encoding)
	}
}

// ReadDataValue reads a DataValue value.
func (d *Decoder) ReadDataValue() (DataValue, error) {
	if err := d.enter(); err != nil {
		return DataValue{}, err
	}
	defer d.leave()

	encodingMask, err := d.ReadByte()
	if err != nil {
		return DataValue{}, err
	}

	var dv DataValue
	if encodingMask&0x01 != 0 {
		v, err := d.ReadVariant()
		if err != nil {
			return DataValue{}, err
		}
		dv.Value = &v
	}
	if encodingMask&0x02 != 0 {
		if dv.StatusCode, err = d.ReadStatusCode(); err != nil {
			return DataValue{}, err
		}
	}
	if encodingMask&0x04 != 0 {
		if dv.SourceTimestamp, err = d.ReadDateTime(); err != nil {
			return DataValue{}, err
		}
	}
	if encodingMask&0x10 != 0 {
		if dv.SourcePicoseconds, err = d.ReadUInt16(); err != nil {
			return DataValue{}, err
		}
	}
	if encodingMask&0x08 != 0 {
		if dv.ServerTimestamp, err = d.ReadDateTime(); err != nil {
			return DataValue{}, err
		}
	}
	if encodingMask&0x20 != 0 {
		if dv.ServerPicoseconds, err = d.ReadUInt16(); err != nil {
			return DataValue{}, err
		}
	}
	return dv, nil
}

// ReadVariant reads a Variant value.
func (d *Decoder) ReadVariant() (Variant, error) {
	encodingMask, err := d.ReadByte()
	if err != nil {
		return Variant{}, err
	}
	return d.ReadVariantBody(encodingMask)
}

// ReadVariantBody decodes a Variant whose encoding mask is supplied by the
// caller instead of read from the buffer. This lets fields that omit the
// mask on the wire reuse the variant decoder.
func (d *Decoder) ReadVariantBody(encodingMask byte) (Variant, error) {
	if err := d.enter(); err != nil {
		return Variant{}, err
	}
	defer d.leave()

	typeID := TypeID(encodingMask & VariantTypeMask)
	if typeID > TypeDiagnosticInfo {
		return Variant{}, fmt.Errorf("%w: invalid variant type %d", StatusBadDecodingError, typeID)
	}
	if encodingMask&VariantArrayValueFlag != 0 {
		return d.readVariantArray(typeID, encodingMask&VariantArrayDimsFlag != 0)
	}
	if encodingMask&VariantArrayDimsFlag != 0 {
		return Variant{}, fmt.Errorf("%w: array dimensions on scalar variant", StatusBadDecodingError)
	}
	if typeID == TypeVariant {
		return Variant{}, fmt.Errorf("%w: scalar variant cannot nest a variant", StatusBadDecodingError)
	}
	value, err := d.readValue(typeID)
	if err != nil {
		return Variant{}, err
	}
	return Variant{Type: typeID, Value: value}, nil
}

func (d *Decoder) readValue(typeID TypeID) (interface{}, error) {
	switch typeID {
	case TypeNull:
		return nil, nil
	case TypeBoolean:
		return d.ReadBoolean()
	case TypeSByte:
		return d.ReadSByte()
	case TypeByte:
		return d.ReadByte()
	case TypeInt16:
		return d.ReadInt16()
	case TypeUInt16:
		return d.ReadUInt16()
	case TypeInt32:
		return d.ReadInt32()
	case TypeUInt32:
		return d.ReadUInt32()
	case TypeInt64:
		return d.ReadInt64()
	case TypeUInt64:
		return d.ReadUInt64()
	case TypeFloat:
		return d.ReadFloat()
	case TypeDouble:
		return d.ReadDouble()
	case TypeString, TypeXMLElement:
		return d.ReadString()
	case TypeDateTime:
		return d.ReadDateTime()
	case TypeGUID:
		return d.ReadGUID()
	case TypeByteString:
		return d.ReadByteString()
	case TypeNodeID:
		return d.ReadNodeID()
	case TypeExpandedNodeID:
		return d.ReadExpandedNodeID()
	case TypeStatusCode:
		return d.ReadStatusCode()
	case TypeQualifiedName:
		return d.ReadQualifiedName()
	case TypeLocalizedText:
		return d.ReadLocalizedText()
	case TypeExtensionObject:
		return d.ReadExtensionObject()
	case TypeDataValue:
		return d.ReadDataValue()
	case TypeVariant:
		return d.ReadVariant()
	case TypeDiagnosticInfo:
		return d.ReadDiagnosticInfo()
	default:
		return nil, fmt.Errorf("%w: %w %d", StatusBadDecodingError, ErrUnsupportedType, typeID)
	}
}

func (d *Decoder) readVariantArray(typeID TypeID, hasDimensions bool) (Variant, error) {
	length, err := d.ReadInt32()
	if err != nil {
		return Variant{}, err
	}
	if length < 0 {
		return Variant{Type: typeID, Value: nil}, nil
	}
	// every non-null element occupies at least one byte
	if int(length) > d.Remaining() {
		return Variant{}, fmt.Errorf("%w: array length %d exceeds %d remaining bytes", StatusBadDecodingError, length, d.Remaining())
	}

	values := make([]interface{}, length)
	for i := range values {
		if values[i], err = d.readValue(typeID); err != nil {
			return Variant{}, err
		}
	}

	v := Variant{Type: typeID, Value: values}
	if !hasDimensions {
		return v, nil
	}

	dimCount, err := d.ReadInt32()
	if err != nil {
		return Variant{}, err
	}
	if dimCount < 0 || int(dimCount) > d.Remaining()/4 {
		return Variant{}, fmt.Errorf("%w: invalid dimension count %d", StatusBadDecodingError, dimCount)
	}
	dims := make([]int32, dimCount)
	total := int64(1)
	for i := range dims {
		if dims[i], err = d.ReadInt32(); err != nil {
			return Variant{}, err
		}
		if dims[i] < 0 {
			return Variant{}, fmt.Errorf("%w: negative array dimension", StatusBadDecodingError)
		}
		if total <= int64(length) {
			total *= int64(dims[i])
		}
	}
	if dimCount > 0 && total != int64(length) {
		return Variant{}, fmt.Errorf("%w: dimensions do not match array length %d", StatusBadDecodingError, length)
	}
	v.ArrayDimensions = dims
	return v, nil
}
