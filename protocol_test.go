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

package opcua_test

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	opcua "github.com/edgeo-scada/uadp"
	"github.com/edgeo-scada/uadp/internal/uatest"
)

func TestReadString(t *testing.T) {
	d := opcua.NewDecoder([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0x02, 0x00, 0x00, 0x00, 'o', 'k'})

	s, err := d.ReadString()
	require.NoError(t, err)
	assert.Equal(t, "", s, "null string")

	s, err = d.ReadString()
	require.NoError(t, err)
	assert.Equal(t, "ok", s)

	d = opcua.NewDecoder([]byte{0x10, 0x00, 0x00, 0x00, 'x'})
	_, err = d.ReadString()
	assert.ErrorIs(t, err, opcua.StatusBadDecodingError)
}

func TestReadByteStringCopies(t *testing.T) {
	data := []byte{0x02, 0x00, 0x00, 0x00, 0xAA, 0xBB}
	b, err := opcua.NewDecoder(data).ReadByteString()
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAA, 0xBB}, b)

	b[0] = 0
	assert.Equal(t, byte(0xAA), data[4])

	b, err = opcua.NewDecoder([]byte{0xFF, 0xFF, 0xFF, 0xFF}).ReadByteString()
	require.NoError(t, err)
	assert.Nil(t, b)
}

func TestReadDateTime(t *testing.T) {
	e := uatest.NewEncoder()
	want := time.Date(2024, 6, 1, 12, 30, 0, 123456700, time.UTC)
	e.WriteDateTime(want)
	e.WriteInt64(0)

	d := opcua.NewDecoder(e.Bytes())
	got, err := d.ReadDateTime()
	require.NoError(t, err)
	assert.True(t, want.Equal(got), "got %s", got)

	got, err = d.ReadDateTime()
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}

func TestReadGUID(t *testing.T) {
	wire := []byte{
		0x91, 0x2B, 0x96, 0x72, 0x75, 0xFA, 0xE6, 0x4A,
		0x8D, 0x28, 0xB4, 0x04, 0xDC, 0x7D, 0xAF, 0x63,
	}
	g, err := opcua.NewDecoder(wire).ReadGUID()
	require.NoError(t, err)
	assert.Equal(t, uuid.MustParse("72962B91-FA75-4AE6-8D28-B404DC7DAF63"), g)

	_, err = opcua.NewDecoder(wire[:15]).ReadGUID()
	assert.ErrorIs(t, err, opcua.StatusBadDecodingError)
}

func TestReadNodeID(t *testing.T) {
	tests := []struct {
		name string
		wire []byte
		want opcua.NodeID
	}{
		{"two byte", []byte{0x00, 0x55}, opcua.NewNumericNodeID(0, 85)},
		{"four byte", []byte{0x01, 0x05, 0x01, 0x04}, opcua.NewNumericNodeID(5, 1025)},
		{"numeric", []byte{0x02, 0x02, 0x00, 0x01, 0x00, 0x01, 0x00}, opcua.NewNumericNodeID(2, 65537)},
		{"string", []byte{0x03, 0x01, 0x00, 0x03, 0x00, 0x00, 0x00, 'a', 'b', 'c'}, opcua.NewStringNodeID(1, "abc")},
		{"opaque", []byte{0x05, 0x04, 0x00, 0x01, 0x00, 0x00, 0x00, 0x7F}, opcua.NodeID{Type: opcua.NodeIDTypeOpaque, Namespace: 4, Opaque: []byte{0x7F}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := opcua.NewDecoder(tt.wire)
			got, err := d.ReadNodeID()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Zero(t, d.Remaining())
		})
	}

	_, err := opcua.NewDecoder([]byte{0x07, 0x00}).ReadNodeID()
	assert.ErrorIs(t, err, opcua.StatusBadDecodingError)

	_, err = opcua.NewDecoder([]byte{0x80, 0x00}).ReadNodeID()
	assert.ErrorIs(t, err, opcua.StatusBadDecodingError, "expanded flags on a plain NodeID")
}

func TestReadExpandedNodeID(t *testing.T) {
	reg := opcua.NewTypeRegistry()
	idx := reg.AddNamespace("urn:edgeo:line")

	e := uatest.NewEncoder()
	e.WriteByte(0xC0) // two byte NodeID with URI and server index
	e.WriteByte(9)
	e.WriteString("urn:edgeo:line")
	e.WriteUInt32(3)

	got, err := opcua.NewDecoder(e.Bytes()).WithRegistry(reg).ReadExpandedNodeID()
	require.NoError(t, err)
	assert.Equal(t, idx, got.NodeID.Namespace)
	assert.Equal(t, uint32(9), got.NodeID.Numeric)
	assert.Equal(t, "urn:edgeo:line", got.NamespaceURI)
	assert.Equal(t, uint32(3), got.ServerIndex)

	// without a registry the URI is kept but not resolved
	got, err = opcua.NewDecoder(e.Bytes()).ReadExpandedNodeID()
	require.NoError(t, err)
	assert.Zero(t, got.NodeID.Namespace)
}

func TestReadLocalizedText(t *testing.T) {
	e := uatest.NewEncoder()
	e.WriteLocalizedText(opcua.LocalizedText{Locale: "de", Text: "Druck"})
	e.WriteLocalizedText(opcua.LocalizedText{Text: "only text"})

	d := opcua.NewDecoder(e.Bytes())
	lt, err := d.ReadLocalizedText()
	require.NoError(t, err)
	assert.Equal(t, opcua.LocalizedText{Locale: "de", Text: "Druck"}, lt)

	lt, err = d.ReadLocalizedText()
	require.NoError(t, err)
	assert.Equal(t, opcua.LocalizedText{Text: "only text"}, lt)
}

func TestReadVariantArray(t *testing.T) {
	e := uatest.NewEncoder()
	v := opcua.Variant{
		Type:            opcua.TypeInt32,
		Value:           []interface{}{int32(1), int32(2), int32(3), int32(4)},
		ArrayDimensions: []int32{2, 2},
	}
	require.NoError(t, e.WriteVariant(v))

	got, err := opcua.NewDecoder(e.Bytes()).ReadVariant()
	require.NoError(t, err)
	assert.Equal(t, v, got)
	assert.True(t, got.IsArray())

	// dimensions that do not multiply to the length
	bad := bytes.Clone(e.Bytes())
	bad[len(bad)-4] = 3
	_, err = opcua.NewDecoder(bad).ReadVariant()
	assert.ErrorIs(t, err, opcua.StatusBadDecodingError)

	// a length beyond the buffer
	_, err = opcua.NewDecoder([]byte{0x86, 0xFF, 0xFF, 0x00, 0x00}).ReadVariant()
	assert.ErrorIs(t, err, opcua.StatusBadDecodingError)
}

func TestReadVariantRejects(t *testing.T) {
	tests := map[string][]byte{
		"dimensions on scalar": {0x46, 0x01, 0x00, 0x00, 0x00},
		"type out of range":    {0x1F},
		"nested scalar":        {0x18, 0x06, 0x01, 0x00, 0x00, 0x00},
		"truncated":            {0x0B, 0x00, 0x00},
	}
	for name, wire := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := opcua.NewDecoder(wire).ReadVariant()
			assert.ErrorIs(t, err, opcua.StatusBadDecodingError)
		})
	}
}

func TestReadVariantBody(t *testing.T) {
	e := uatest.NewEncoder()
	e.WriteString("raw")

	v, err := opcua.NewDecoder(e.Bytes()).ReadVariantBody(byte(opcua.TypeString))
	require.NoError(t, err)
	assert.Equal(t, opcua.Variant{Type: opcua.TypeString, Value: "raw"}, v)
}

func TestNestingDepth(t *testing.T) {
	var wire []byte
	for range opcua.MaxNestingDepth + 1 {
		// an array holding one variant
		wire = append(wire, 0x98, 0x01, 0x00, 0x00, 0x00)
	}
	wire = append(wire, 0x00)

	_, err := opcua.NewDecoder(wire).ReadVariant()
	assert.ErrorIs(t, err, opcua.StatusBadDecodingError)
}

func TestReadDataValue(t *testing.T) {
	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	val := opcua.Variant{Type: opcua.TypeFloat, Value: float32(0.5)}
	e := uatest.NewEncoder()
	require.NoError(t, e.WriteDataValue(opcua.DataValue{
		Value:             &val,
		StatusCode:        opcua.StatusUncertainSensorNotAccurate,
		SourceTimestamp:   ts,
		SourcePicoseconds: 12,
		ServerTimestamp:   ts.Add(time.Second),
	}))

	dv, err := opcua.NewDecoder(e.Bytes()).ReadDataValue()
	require.NoError(t, err)
	require.NotNil(t, dv.Value)
	assert.Equal(t, val, *dv.Value)
	assert.Equal(t, opcua.StatusUncertainSensorNotAccurate, dv.StatusCode)
	assert.True(t, ts.Equal(dv.SourceTimestamp))
	assert.Equal(t, uint16(12), dv.SourcePicoseconds)
	assert.True(t, ts.Add(time.Second).Equal(dv.ServerTimestamp))
}

func TestReadDiagnosticInfo(t *testing.T) {
	wire := []byte{
		0x61,                   // SymbolicId, InnerStatusCode, InnerDiagnosticInfo
		0x07, 0x00, 0x00, 0x00, // SymbolicId
		0x00, 0x00, 0x07, 0x80, // InnerStatusCode
		0x10, 0x02, 0x00, 0x00, 0x00, 'h', 'i', // inner: AdditionalInfo
	}
	di, err := opcua.NewDecoder(wire).ReadDiagnosticInfo()
	require.NoError(t, err)
	assert.Equal(t, int32(7), di.SymbolicID)
	assert.Equal(t, int32(-1), di.LocalizedText)
	assert.Equal(t, opcua.StatusBadDecodingError, di.InnerStatusCode)
	require.NotNil(t, di.InnerDiagnosticInfo)
	assert.Equal(t, "hi", di.InnerDiagnosticInfo.AdditionalInfo)
}

type point struct{ X, Y float64 }

func decodePoint(d *opcua.Decoder) (interface{}, error) {
	x, err := d.ReadDouble()
	if err != nil {
		return nil, err
	}
	y, err := d.ReadDouble()
	if err != nil {
		return nil, err
	}
	return point{x, y}, nil
}

func TestReadExtensionObject(t *testing.T) {
	pointID := opcua.NewNumericNodeID(2, 5001)
	reg := opcua.NewTypeRegistry()
	require.NoError(t, reg.Register(pointID, "Point", decodePoint))

	body := uatest.NewEncoder()
	body.WriteDouble(1.5)
	body.WriteDouble(-2)
	e := uatest.NewEncoder()
	e.WriteExtensionObject(opcua.ExtensionObject{TypeID: pointID, Body: body.Bytes()})

	eo, err := opcua.NewDecoder(e.Bytes()).WithRegistry(reg).ReadExtensionObject()
	require.NoError(t, err)
	assert.Equal(t, point{1.5, -2}, eo.Value)
	assert.Equal(t, body.Bytes(), eo.Body)

	// unknown types keep their body
	eo, err = opcua.NewDecoder(e.Bytes()).WithRegistry(opcua.NewTypeRegistry()).ReadExtensionObject()
	require.NoError(t, err)
	assert.Nil(t, eo.Value)
	assert.Equal(t, body.Bytes(), eo.Body)

	// a truncated body fails as malformed input
	short := uatest.NewEncoder()
	short.WriteExtensionObject(opcua.ExtensionObject{TypeID: pointID, Body: body.Bytes()[:9]})
	_, err = opcua.NewDecoder(short.Bytes()).WithRegistry(reg).ReadExtensionObject()
	assert.ErrorIs(t, err, opcua.StatusBadDecodingError)
}

func TestReadExtensionObjectDecoderFailure(t *testing.T) {
	id := opcua.NewNumericNodeID(2, 6000)
	reg := opcua.NewTypeRegistry()
	require.NoError(t, reg.Register(id, "Broken", func(*opcua.Decoder) (interface{}, error) {
		return nil, errors.New("not implemented")
	}))

	e := uatest.NewEncoder()
	e.WriteExtensionObject(opcua.ExtensionObject{TypeID: id, Body: []byte{1}})

	_, err := opcua.NewDecoder(e.Bytes()).WithRegistry(reg).ReadExtensionObject()
	assert.True(t, opcua.IsInternalError(err))
	assert.Contains(t, err.Error(), "Broken")
}

func TestDecoderShortReadsDoNotConsume(t *testing.T) {
	d := opcua.NewDecoder([]byte{0x01, 0x02, 0x03})
	_, err := d.ReadUInt32()
	assert.ErrorIs(t, err, opcua.StatusBadDecodingError)
	assert.Equal(t, 0, d.Offset())

	_, err = d.ReadDouble()
	assert.ErrorIs(t, err, opcua.StatusBadDecodingError)
	assert.Equal(t, 3, d.Remaining())

	assert.Error(t, d.Skip(4))
	require.NoError(t, d.Skip(3))
	_, err = d.ReadByte()
	assert.ErrorIs(t, err, opcua.StatusBadDecodingError)
}
