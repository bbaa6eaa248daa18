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
	"log/slog"

	opcua "github.com/edgeo-scada/uadp"
)

// Option is a functional option for decoders, readers and subscribers.
type Option func(*options)

type options struct {
	// Decoding
	registry *opcua.TypeRegistry
	engine   Engine

	// Reassembly
	maxMessageSize uint32

	// Observability
	logger  *slog.Logger
	metrics *opcua.Metrics
}

func defaultOptions() *options {
	return &options{
		maxMessageSize: opcua.DefaultMaxMessageSize,
		logger:         slog.Default(),
	}
}

func buildOptions(opts []Option) *options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.engine == nil {
		o.engine = NewEngine(o.registry)
	}
	if o.metrics == nil {
		o.metrics = opcua.NewMetrics()
	}
	return o
}

// WithTypeRegistry sets the registry used by the default engine to resolve
// extension objects and namespace URIs.
func WithTypeRegistry(r *opcua.TypeRegistry) Option {
	return func(o *options) {
		o.registry = r
	}
}

// WithEngine replaces the builtin-type engine. It takes precedence over
// WithTypeRegistry.
func WithEngine(e Engine) Option {
	return func(o *options) {
		o.engine = e
	}
}

// WithMaxMessageSize bounds the size of a reassembled chunked message.
func WithMaxMessageSize(n uint32) Option {
	return func(o *options) {
		o.maxMessageSize = n
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics shares a metrics instance between readers.
func WithMetrics(m *opcua.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}
