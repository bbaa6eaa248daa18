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
	"encoding/binary"
	"fmt"
	"math"

	opcua "github.com/edgeo-scada/uadp"
)

// cursor is a forward-only read window over a borrowed buffer. A failed
// read consumes nothing.
type cursor struct {
	data []byte
	pos  int
	base int // offset of data[0] in the datagram
}

func newCursor(data []byte) *cursor {
	return &cursor{data: data}
}

func (c *cursor) remaining() int {
	return len(c.data) - c.pos
}

// offset returns the position in the enclosing datagram.
func (c *cursor) offset() int {
	return c.base + c.pos
}

// rest returns the unread bytes without consuming them.
func (c *cursor) rest() []byte {
	return c.data[c.pos:]
}

func (c *cursor) shortErr(n int) error {
	return fmt.Errorf("%w: need %d bytes at offset %d, have %d",
		opcua.StatusBadDecodingError, n, c.offset(), c.remaining())
}

// advance consumes and returns the next n bytes. The slice aliases the buffer.
func (c *cursor) advance(n int) ([]byte, error) {
	if n < 0 || n > c.remaining() {
		return nil, c.shortErr(n)
	}
	b := c.data[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

// peek returns the next n bytes without consuming them.
func (c *cursor) peek(n int) ([]byte, error) {
	if n < 0 || n > c.remaining() {
		return nil, c.shortErr(n)
	}
	return c.data[c.pos : c.pos+n], nil
}

// window carves the next n bytes into a sub-cursor and advances past them.
func (c *cursor) window(n int) (*cursor, error) {
	start := c.offset()
	b, err := c.advance(n)
	if err != nil {
		return nil, err
	}
	return &cursor{data: b, base: start}, nil
}

func (c *cursor) readByte() (byte, error) {
	b, err := c.advance(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (c *cursor) readSByte() (int8, error) {
	b, err := c.readByte()
	return int8(b), err
}

func (c *cursor) readBoolean() (bool, error) {
	b, err := c.readByte()
	return b != 0, err
}

func (c *cursor) readUint16() (uint16, error) {
	b, err := c.advance(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (c *cursor) readInt16() (int16, error) {
	v, err := c.readUint16()
	return int16(v), err
}

func (c *cursor) readUint32() (uint32, error) {
	b, err := c.advance(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (c *cursor) readInt32() (int32, error) {
	v, err := c.readUint32()
	return int32(v), err
}

func (c *cursor) readUint64() (uint64, error) {
	b, err := c.advance(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (c *cursor) readInt64() (int64, error) {
	v, err := c.readUint64()
	return int64(v), err
}

func (c *cursor) readFloat() (float32, error) {
	v, err := c.readUint32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

func (c *cursor) readDouble() (float64, error) {
	v, err := c.readUint64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

// isPrimitive reports whether t is decoded by readScalar.
func isPrimitive(t opcua.TypeID) bool {
	return t == opcua.TypeBoolean || t == opcua.TypeStatusCode || t.IsNumeric()
}

// readScalar decodes a fixed-width primitive of type t. The Go types match
// the ones the variant decoder produces.
func (c *cursor) readScalar(t opcua.TypeID) (interface{}, error) {
	switch t {
	case opcua.TypeBoolean:
		return c.readBoolean()
	case opcua.TypeSByte:
		return c.readSByte()
	case opcua.TypeByte:
		return c.readByte()
	case opcua.TypeInt16:
		return c.readInt16()
	case opcua.TypeUInt16:
		return c.readUint16()
	case opcua.TypeInt32:
		return c.readInt32()
	case opcua.TypeUInt32:
		return c.readUint32()
	case opcua.TypeInt64:
		return c.readInt64()
	case opcua.TypeUInt64:
		return c.readUint64()
	case opcua.TypeFloat:
		return c.readFloat()
	case opcua.TypeDouble:
		return c.readDouble()
	case opcua.TypeStatusCode:
		v, err := c.readUint32()
		return opcua.StatusCode(v), err
	default:
		return nil, fmt.Errorf("%w: %s is not a primitive type", opcua.StatusBadDecodingError, t)
	}
}
