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
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	opcua "github.com/edgeo-scada/uadp"
)

func TestStatusCodeSeverity(t *testing.T) {
	assert.True(t, opcua.StatusGood.IsGood())
	assert.True(t, opcua.StatusUncertainInitialValue.IsUncertain())
	assert.True(t, opcua.StatusBadDecodingError.IsBad())
	assert.False(t, opcua.StatusBadDecodingError.IsGood())

	assert.Equal(t, "BadDecodingError", opcua.StatusBadDecodingError.String())
	assert.Equal(t, "StatusCode(0x80FF0000)", opcua.StatusCode(0x80FF0000).String())
	assert.Equal(t, "The operation failed", opcua.StatusCode(0x80FF0000).Description())
	assert.Contains(t, opcua.StatusBadDecodingError.Error(), "0x80070000")
}

func TestStatusCodeOf(t *testing.T) {
	assert.Equal(t, opcua.StatusGood, opcua.StatusCodeOf(nil))
	assert.Equal(t, opcua.StatusBadInternalError, opcua.StatusCodeOf(errors.New("plain")))

	err := fmt.Errorf("%w: field 3", opcua.StatusBadDecodingError)
	assert.Equal(t, opcua.StatusBadDecodingError, opcua.StatusCodeOf(err))
	assert.True(t, opcua.IsDecodingError(err))
	assert.False(t, opcua.IsInvalidArgument(err))
	assert.True(t, opcua.IsBadStatusCode(err))
	assert.False(t, opcua.IsBadStatusCode(nil))
}

func TestDecodeError(t *testing.T) {
	err := error(&opcua.DecodeError{Offset: 17, Err: fmt.Errorf("%w: short read", opcua.StatusBadDecodingError)})

	assert.ErrorIs(t, err, opcua.StatusBadDecodingError)
	assert.Contains(t, err.Error(), "offset 17")

	var de *opcua.DecodeError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, 17, de.Offset)
}
