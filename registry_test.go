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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	opcua "github.com/edgeo-scada/uadp"
)

func TestTypeRegistryNamespaces(t *testing.T) {
	reg := opcua.NewTypeRegistry()

	uri, ok := reg.NamespaceURI(0)
	require.True(t, ok)
	assert.Equal(t, opcua.NamespaceZero, uri)

	idx := reg.AddNamespace("urn:edgeo:plant")
	assert.Equal(t, uint16(1), idx)
	assert.Equal(t, idx, reg.AddNamespace("urn:edgeo:plant"), "adding twice keeps the index")

	got, ok := reg.NamespaceIndex("urn:edgeo:plant")
	require.True(t, ok)
	assert.Equal(t, idx, got)

	_, ok = reg.NamespaceIndex("urn:unknown")
	assert.False(t, ok)
	_, ok = reg.NamespaceURI(7)
	assert.False(t, ok)
}

func TestTypeRegistryRegister(t *testing.T) {
	reg := opcua.NewTypeRegistry()
	id := opcua.NewStringNodeID(3, "Reading")

	err := reg.Register(id, "Reading", nil)
	assert.ErrorIs(t, err, opcua.StatusBadInvalidArgument)

	require.NoError(t, reg.Register(id, "Reading", decodePoint))
	err = reg.Register(id, "Other", decodePoint)
	assert.ErrorIs(t, err, opcua.StatusBadInvalidArgument)

	_, ok := reg.Lookup(id)
	assert.True(t, ok)
	assert.Equal(t, "Reading", reg.TypeName(id))

	_, ok = reg.Lookup(opcua.NewStringNodeID(4, "Reading"))
	assert.False(t, ok, "namespace is part of the key")
	assert.Empty(t, reg.TypeName(opcua.NewNumericNodeID(0, 1)))
}
