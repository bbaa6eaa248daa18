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
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	opcua "github.com/edgeo-scada/uadp"
)

func TestCursorAdvance(t *testing.T) {
	c := newCursor([]byte{1, 2, 3, 4})

	b, err := c.advance(3)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, b)
	assert.Equal(t, 1, c.remaining())

	_, err = c.advance(2)
	assert.ErrorIs(t, err, opcua.StatusBadDecodingError)
	assert.Equal(t, 1, c.remaining(), "failed advance must not consume")

	_, err = c.advance(-1)
	assert.ErrorIs(t, err, opcua.StatusBadDecodingError)
}

func TestCursorScalars(t *testing.T) {
	data := []byte{
		0x01,       // bool
		0xFE,       // sbyte -2
		0x34, 0x12, // uint16
		0xFF, 0xFF, 0xFF, 0x7F, // int32 max
		0x00, 0x00, 0x80, 0x3F, // float 1.0
		0, 0, 0, 0, 0, 0, 0xF0, 0x3F, // double 1.0
		0xEF, 0xCD, 0xAB, 0x89, 0x67, 0x45, 0x23, 0x01, // uint64
	}
	c := newCursor(data)

	b, err := c.readBoolean()
	require.NoError(t, err)
	assert.True(t, b)

	sb, err := c.readSByte()
	require.NoError(t, err)
	assert.Equal(t, int8(-2), sb)

	u16, err := c.readUint16()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234), u16)

	i32, err := c.readInt32()
	require.NoError(t, err)
	assert.Equal(t, int32(math.MaxInt32), i32)

	f, err := c.readFloat()
	require.NoError(t, err)
	assert.Equal(t, float32(1), f)

	d, err := c.readDouble()
	require.NoError(t, err)
	assert.Equal(t, float64(1), d)

	u64, err := c.readUint64()
	require.NoError(t, err)
	assert.Equal(t, uint64(0x0123456789ABCDEF), u64)

	assert.Equal(t, 0, c.remaining())
}

func TestCursorShortReads(t *testing.T) {
	reads := map[string]func(c *cursor) error{
		"uint16": func(c *cursor) error { _, err := c.readUint16(); return err },
		"uint32": func(c *cursor) error { _, err := c.readUint32(); return err },
		"uint64": func(c *cursor) error { _, err := c.readUint64(); return err },
		"double": func(c *cursor) error { _, err := c.readDouble(); return err },
	}
	for name, read := range reads {
		t.Run(name, func(t *testing.T) {
			c := newCursor([]byte{0xAA})
			err := read(c)
			assert.ErrorIs(t, err, opcua.StatusBadDecodingError)
			assert.Equal(t, 0, c.offset())
		})
	}
}

func TestCursorWindow(t *testing.T) {
	c := newCursor([]byte{0, 1, 2, 3, 4, 5})
	_, err := c.advance(1)
	require.NoError(t, err)

	w, err := c.window(3)
	require.NoError(t, err)
	assert.Equal(t, 3, w.remaining())
	assert.Equal(t, 1, w.offset())
	assert.Equal(t, 4, c.offset())

	_, err = w.advance(4)
	assert.ErrorIs(t, err, opcua.StatusBadDecodingError, "window must not read past its end")

	_, err = c.window(3)
	assert.ErrorIs(t, err, opcua.StatusBadDecodingError)
	assert.Equal(t, 4, c.offset())
}

func TestCursorPeek(t *testing.T) {
	c := newCursor([]byte{9, 8})
	b, err := c.peek(2)
	require.NoError(t, err)
	assert.Equal(t, []byte{9, 8}, b)
	assert.Equal(t, 0, c.offset())

	_, err = c.peek(3)
	assert.Error(t, err)
}

func TestReadScalar(t *testing.T) {
	c := newCursor([]byte{0x2A, 0x00, 0x00, 0x00, 0x05, 0x00, 0x0D, 0x80})

	v, err := c.readScalar(opcua.TypeInt32)
	require.NoError(t, err)
	assert.Equal(t, int32(42), v)

	v, err = c.readScalar(opcua.TypeStatusCode)
	require.NoError(t, err)
	assert.Equal(t, opcua.StatusCode(0x800D0005), v)

	_, err = c.readScalar(opcua.TypeString)
	assert.ErrorIs(t, err, opcua.StatusBadDecodingError)
}

func TestRawDataMask(t *testing.T) {
	tests := []struct {
		name string
		meta FieldMetaData
		want byte
	}{
		{"scalar string", FieldMetaData{BuiltInType: opcua.TypeString, ValueRank: ValueRankScalar}, 0x0C},
		{"one dimension", FieldMetaData{BuiltInType: opcua.TypeInt32, ValueRank: ValueRankOneDimension}, 0x86},
		{"matrix", FieldMetaData{BuiltInType: opcua.TypeDouble, ValueRank: 2}, 0xCB},
		{"dimensions listed", FieldMetaData{BuiltInType: opcua.TypeByte, ValueRank: ValueRankOneOrMoreDimensions, ArrayDimensions: []uint32{2, 2}}, 0xC3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, rawDataMask(tt.meta))
		})
	}
}
