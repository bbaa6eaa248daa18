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
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	opcua "github.com/edgeo-scada/uadp"
)

// ValueDecoder reads the builtin types that UADP delegates to the generic
// binary engine. *opcua.Decoder implements it.
type ValueDecoder interface {
	ReadString() (string, error)
	ReadDateTime() (time.Time, error)
	ReadGUID() (uuid.UUID, error)
	ReadVariant() (opcua.Variant, error)
	ReadVariantBody(encodingMask byte) (opcua.Variant, error)
	ReadDataValue() (opcua.DataValue, error)
	Offset() int
}

// Engine creates value decoders over a byte slice.
type Engine interface {
	NewValueDecoder(data []byte) ValueDecoder
}

// NewEngine returns the default engine backed by opcua.Decoder. The
// registry resolves extension objects and namespace URIs; it may be nil.
func NewEngine(registry *opcua.TypeRegistry) Engine {
	return binaryEngine{registry: registry}
}

type binaryEngine struct {
	registry *opcua.TypeRegistry
}

func (e binaryEngine) NewValueDecoder(data []byte) ValueDecoder {
	return opcua.NewDecoder(data).WithRegistry(e.registry)
}

// decodeWith runs fn on a value decoder positioned at the cursor and
// advances the cursor by what fn consumed. Engine failures that carry no
// status code are reported as internal errors.
func (c *cursor) decodeWith(e Engine, fn func(ValueDecoder) error) error {
	vd := e.NewValueDecoder(c.rest())
	if err := fn(vd); err != nil {
		var sc opcua.StatusCode
		if errors.As(err, &sc) {
			return fmt.Errorf("at offset %d: %w", c.offset(), err)
		}
		return fmt.Errorf("%w: engine failed at offset %d: %v", opcua.StatusBadInternalError, c.offset(), err)
	}
	n := vd.Offset()
	if n < 0 || n > c.remaining() {
		return fmt.Errorf("%w: engine consumed %d of %d bytes", opcua.StatusBadInternalError, n, c.remaining())
	}
	c.pos += n
	return nil
}

func (c *cursor) readString(e Engine) (s string, err error) {
	err = c.decodeWith(e, func(vd ValueDecoder) error {
		s, err = vd.ReadString()
		return err
	})
	return s, err
}

func (c *cursor) readDateTime(e Engine) (t time.Time, err error) {
	err = c.decodeWith(e, func(vd ValueDecoder) error {
		t, err = vd.ReadDateTime()
		return err
	})
	return t, err
}

func (c *cursor) readGUID(e Engine) (g uuid.UUID, err error) {
	err = c.decodeWith(e, func(vd ValueDecoder) error {
		g, err = vd.ReadGUID()
		return err
	})
	return g, err
}

func (c *cursor) readVariant(e Engine) (v opcua.Variant, err error) {
	err = c.decodeWith(e, func(vd ValueDecoder) error {
		v, err = vd.ReadVariant()
		return err
	})
	return v, err
}

// readVariantBody decodes a variant whose encoding mask is not on the wire.
func (c *cursor) readVariantBody(e Engine, mask byte) (v opcua.Variant, err error) {
	err = c.decodeWith(e, func(vd ValueDecoder) error {
		v, err = vd.ReadVariantBody(mask)
		return err
	})
	return v, err
}

func (c *cursor) readDataValue(e Engine) (dv opcua.DataValue, err error) {
	err = c.decodeWith(e, func(vd ValueDecoder) error {
		dv, err = vd.ReadDataValue()
		return err
	})
	return dv, err
}
