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

package opcua

import (
	"sync"
	"sync/atomic"
	"time"
)

// Counter is a simple atomic counter.
type Counter struct {
	value int64
}

// Add adds delta to the counter.
func (c *Counter) Add(delta int64) {
	atomic.AddInt64(&c.value, delta)
}

// Value returns the current counter value.
func (c *Counter) Value() int64 {
	return atomic.LoadInt64(&c.value)
}

// Reset resets the counter to zero.
func (c *Counter) Reset() {
	atomic.StoreInt64(&c.value, 0)
}

// LatencyHistogram tracks latency distribution in microsecond buckets.
// Decoding a datagram is a sub-millisecond operation, so the bounds are much
// finer than a request/response histogram would use.
type LatencyHistogram struct {
	mu      sync.Mutex
	buckets []int64
	bounds  []float64 // upper bounds in µs
	sum     float64
	count   int64
	min     float64
	max     float64
}

var latencyLabels = []string{"10us", "50us", "100us", "250us", "500us", "1ms", "5ms", "10ms", "50ms", "50ms+"}

// NewLatencyHistogram creates a new latency histogram with default buckets.
func NewLatencyHistogram() *LatencyHistogram {
	return &LatencyHistogram{
		buckets: make([]int64, len(latencyLabels)),
		bounds:  []float64{10, 50, 100, 250, 500, 1000, 5000, 10000, 50000},
		min:     -1,
		max:     -1,
	}
}

// Observe records a latency observation.
func (h *LatencyHistogram) Observe(d time.Duration) {
	us := float64(d.Nanoseconds()) / 1000.0

	h.mu.Lock()
	defer h.mu.Unlock()

	h.sum += us
	h.count++

	if h.min < 0 || us < h.min {
		h.min = us
	}
	if us > h.max {
		h.max = us
	}

	for i, bound := range h.bounds {
		if us <= bound {
			h.buckets[i]++
			return
		}
	}
	h.buckets[len(h.buckets)-1]++
}

// Stats returns histogram statistics.
func (h *LatencyHistogram) Stats() LatencyStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	stats := LatencyStats{
		Count:   h.count,
		Sum:     h.sum,
		Buckets: make(map[string]int64, len(h.buckets)),
	}
	if h.count > 0 {
		stats.Avg = h.sum / float64(h.count)
		stats.Min = h.min
		stats.Max = h.max
	}
	for i, count := range h.buckets {
		stats.Buckets[latencyLabels[i]] = count
	}
	return stats
}

// Reset resets the histogram.
func (h *LatencyHistogram) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i := range h.buckets {
		h.buckets[i] = 0
	}
	h.sum = 0
	h.count = 0
	h.min = -1
	h.max = -1
}

// LatencyStats holds latency statistics in microseconds.
type LatencyStats struct {
	Count   int64
	Sum     float64
	Avg     float64
	Min     float64
	Max     float64
	Buckets map[string]int64
}

// Metrics holds PubSub receive-path metrics. A single Metrics value may be
// shared by many readers.
type Metrics struct {
	DatagramsReceived   Counter
	MessagesDecoded     Counter
	DataSetMessages     Counter
	DecodeErrors        Counter
	VerifyMismatches    Counter
	ChunksReceived      Counter
	DuplicateChunks     Counter
	MessagesReassembled Counter
	BytesDecoded        Counter
	UnroutedDatagrams   Counter
	Latency             *LatencyHistogram

	// Per-status error counts
	statusErrors sync.Map // StatusCode -> *Counter
}

// NewMetrics creates a new Metrics instance.
func NewMetrics() *Metrics {
	return &Metrics{
		Latency: NewLatencyHistogram(),
	}
}

// ForStatus returns the error counter for a status code.
func (m *Metrics) ForStatus(sc StatusCode) *Counter {
	if val, ok := m.statusErrors.Load(sc); ok {
		return val.(*Counter)
	}
	actual, _ := m.statusErrors.LoadOrStore(sc, &Counter{})
	return actual.(*Counter)
}

// RecordError counts a failed decode under its status code.
func (m *Metrics) RecordError(err error) {
	m.DecodeErrors.Add(1)
	m.ForStatus(StatusCodeOf(err)).Add(1)
}

// Collect returns all metrics as a map (compatible with expvar/prometheus).
func (m *Metrics) Collect() map[string]interface{} {
	result := map[string]interface{}{
		"datagrams_received":   m.DatagramsReceived.Value(),
		"messages_decoded":     m.MessagesDecoded.Value(),
		"dataset_messages":     m.DataSetMessages.Value(),
		"decode_errors":        m.DecodeErrors.Value(),
		"verify_mismatches":    m.VerifyMismatches.Value(),
		"chunks_received":      m.ChunksReceived.Value(),
		"duplicate_chunks":     m.DuplicateChunks.Value(),
		"messages_reassembled": m.MessagesReassembled.Value(),
		"bytes_decoded":        m.BytesDecoded.Value(),
		"unrouted_datagrams":   m.UnroutedDatagrams.Value(),
		"latency":              m.Latency.Stats(),
	}

	statusStats := make(map[string]int64)
	m.statusErrors.Range(func(key, value interface{}) bool {
		statusStats[key.(StatusCode).String()] = value.(*Counter).Value()
		return true
	})
	if len(statusStats) > 0 {
		result["errors_by_status"] = statusStats
	}
	return result
}

// Reset resets all metrics.
func (m *Metrics) Reset() {
	m.DatagramsReceived.Reset()
	m.MessagesDecoded.Reset()
	m.DataSetMessages.Reset()
	m.DecodeErrors.Reset()
	m.VerifyMismatches.Reset()
	m.ChunksReceived.Reset()
	m.DuplicateChunks.Reset()
	m.MessagesReassembled.Reset()
	m.BytesDecoded.Reset()
	m.UnroutedDatagrams.Reset()
	m.Latency.Reset()

	m.statusErrors.Range(func(key, value interface{}) bool {
		value.(*Counter).Reset()
		return true
	})
}
