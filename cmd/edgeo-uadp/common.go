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

package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	opcua "github.com/edgeo-scada/uadp"
	"github.com/edgeo-scada/uadp/internal/transport"
	"github.com/edgeo-scada/uadp/pubsub"
)

// buildSubscriber creates a subscriber with one reader per configured
// writer group.
func buildSubscriber(cfg *Config, logger *slog.Logger, metrics *opcua.Metrics) (*pubsub.Subscriber, error) {
	if len(cfg.Readers) == 0 {
		return nil, errors.New("no readers configured (use --config)")
	}

	opts := []pubsub.Option{pubsub.WithLogger(logger), pubsub.WithMetrics(metrics)}
	sub := pubsub.NewSubscriber(opts...)
	for i := range cfg.Readers {
		rc := &cfg.Readers[i]
		r, err := rc.NewReader(opts...)
		if err != nil {
			return nil, fmt.Errorf("reader %q: %w", rc.Name, err)
		}
		if err := sub.AddReader(r); err != nil {
			return nil, fmt.Errorf("reader %q: %w", rc.Name, err)
		}
		logger.Info("reader configured", slog.String("name", rc.Name), slog.String("route", r.Route().String()))
	}
	return sub, nil
}

// printer serializes output from concurrent handlers.
type printer struct {
	mu sync.Mutex
	w  io.Writer
}

// datagramHandler returns the function passing each received datagram
// through sub. Bad datagrams are logged and skipped.
func datagramHandler(sub *pubsub.Subscriber, out *printer, logger *slog.Logger) func(transport.Datagram) error {
	return func(d transport.Datagram) error {
		var source string
		if d.Source != nil {
			source = d.Source.String()
		}
		err := sub.Handle(d.Data, func(_ pubsub.Route, nm *pubsub.NetworkMessage) error {
			out.mu.Lock()
			defer out.mu.Unlock()
			return printMessage(out.w, source, nm)
		})
		// readers log their own failures
		if err != nil {
			logger.Debug("datagram dropped",
				slog.String("source", source),
				slog.Int("size", len(d.Data)),
				slog.String("error", err.Error()))
		}
		return nil
	}
}
