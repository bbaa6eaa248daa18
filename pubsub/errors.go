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

	opcua "github.com/edgeo-scada/uadp"
)

// Common errors. Each is returned wrapped together with a status code, so
// both errors.Is(err, ErrMismatch) and errors.Is(err,
// opcua.StatusBadDecodingError) hold.
var (
	// ErrMismatch indicates a wire value that differs from the expected message.
	ErrMismatch = errors.New("pubsub: value does not match expected message")

	// ErrNoReader indicates a datagram no registered reader is routed to.
	ErrNoReader = errors.New("pubsub: no reader for datagram")

	// ErrSubscriberClosed indicates the subscriber has been closed.
	ErrSubscriberClosed = errors.New("pubsub: subscriber closed")
)

func mismatch(what string, got, want interface{}) error {
	return fmt.Errorf("%w: %w: %s is %v, expected %v", opcua.StatusBadDecodingError, ErrMismatch, what, got, want)
}

func decodingError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{opcua.StatusBadDecodingError}, args...)...)
}

func invalidArgument(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{opcua.StatusBadInvalidArgument}, args...)...)
}

// verifyField compares a decoded value against an expected optional value.
// An expected value that is absent is a configuration error.
func verifyField[T comparable](what string, want *T, got T) error {
	if want == nil {
		return invalidArgument("expected message has no %s", what)
	}
	if *want != got {
		return mismatch(what, got, *want)
	}
	return nil
}
