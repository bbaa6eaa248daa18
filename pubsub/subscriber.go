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
	"fmt"
	"log/slog"
	"sync"

	opcua "github.com/edgeo-scada/uadp"
)

// HandlerFunc receives a completely decoded message. It runs while the
// reader of the message is locked; the message must not be retained.
type HandlerFunc func(route Route, nm *NetworkMessage) error

// Subscriber routes datagrams to readers by PublisherId and WriterGroupId.
// Datagrams for the same reader are serialized; datagrams for different
// readers may be handled concurrently.
type Subscriber struct {
	decoder *Decoder
	mu      sync.RWMutex
	readers map[Route]*readerSlot
	closed  bool
	metrics *opcua.Metrics
	logger  *slog.Logger
	opts    []Option
}

type readerSlot struct {
	mu     sync.Mutex
	reader *Reader
}

// NewSubscriber creates a subscriber. The options are also applied to the
// readers created by AddExpected.
func NewSubscriber(opts ...Option) *Subscriber {
	o := buildOptions(opts)
	// readers created here share the subscriber metrics
	shared := append(append([]Option(nil), opts...), WithMetrics(o.metrics))
	return &Subscriber{
		decoder: &Decoder{engine: o.engine, maxMessageSize: o.maxMessageSize},
		readers: make(map[Route]*readerSlot),
		metrics: o.metrics,
		logger:  o.logger,
		opts:    shared,
	}
}

// AddReader registers r under its route.
func (s *Subscriber) AddReader(r *Reader) error {
	if r == nil {
		return invalidArgument("nil reader")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSubscriberClosed
	}
	route := r.Route()
	if _, exists := s.readers[route]; exists {
		return invalidArgument("a reader is already registered for %s", route)
	}
	s.readers[route] = &readerSlot{reader: r}
	s.logger.Debug("reader added", slog.String("route", route.String()))
	return nil
}

// AddExpected creates a reader for expected with the subscriber options and
// registers it.
func (s *Subscriber) AddExpected(expected *NetworkMessage) (*Reader, error) {
	r, err := NewReader(expected, s.opts...)
	if err != nil {
		return nil, err
	}
	if err := s.AddReader(r); err != nil {
		return nil, err
	}
	return r, nil
}

// RemoveReader unregisters the reader serving route.
func (s *Subscriber) RemoveReader(route Route) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.readers[route]; !ok {
		return false
	}
	delete(s.readers, route)
	return true
}

// Handle decodes a datagram with the reader of its route and passes the
// result to fn once a message is complete. Pending chunks do not call fn.
// A datagram no reader is registered for fails with ErrNoReader.
func (s *Subscriber) Handle(datagram []byte, fn HandlerFunc) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrSubscriberClosed
	}
	s.mu.RUnlock()

	route, err := s.decoder.PeekRoute(datagram)
	if err != nil {
		s.metrics.DatagramsReceived.Add(1)
		s.metrics.RecordError(err)
		return err
	}

	s.mu.RLock()
	slot, ok := s.readers[route]
	s.mu.RUnlock()
	if !ok {
		s.metrics.UnroutedDatagrams.Add(1)
		return fmt.Errorf("%w: %w: %s", opcua.StatusBadDecodingError, ErrNoReader, route)
	}

	slot.mu.Lock()
	defer slot.mu.Unlock()

	nm, err := slot.reader.Read(datagram)
	if err != nil {
		return err
	}
	if nm.Pending() || fn == nil {
		return nil
	}
	return fn(route, nm)
}

// Routes returns the routes of the registered readers.
func (s *Subscriber) Routes() []Route {
	s.mu.RLock()
	defer s.mu.RUnlock()

	routes := make([]Route, 0, len(s.readers))
	for route := range s.readers {
		routes = append(routes, route)
	}
	return routes
}

// Len returns the number of registered readers.
func (s *Subscriber) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.readers)
}

// Metrics returns the subscriber metrics.
func (s *Subscriber) Metrics() *opcua.Metrics {
	return s.metrics
}

// Close stops accepting datagrams and drops the readers.
func (s *Subscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.readers = make(map[Route]*readerSlot)
	return nil
}
