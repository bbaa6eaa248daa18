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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	opcua "github.com/edgeo-scada/uadp"
)

const metricsNamespace = "uadp"

// metricsCollector exports opcua.Metrics to Prometheus.
type metricsCollector struct {
	m        *opcua.Metrics
	counters []counterDesc
	byStatus *prometheus.Desc
	latency  *prometheus.Desc
}

type counterDesc struct {
	desc *prometheus.Desc
	c    *opcua.Counter
}

func newMetricsCollector(m *opcua.Metrics) *metricsCollector {
	counter := func(name, help string, c *opcua.Counter) counterDesc {
		return counterDesc{
			desc: prometheus.NewDesc(prometheus.BuildFQName(metricsNamespace, "", name+"_total"), help, nil, nil),
			c:    c,
		}
	}
	return &metricsCollector{
		m: m,
		counters: []counterDesc{
			counter("datagrams_received", "Datagrams passed to a reader.", &m.DatagramsReceived),
			counter("messages_decoded", "Network messages decoded and verified.", &m.MessagesDecoded),
			counter("dataset_messages", "DataSetMessages decoded.", &m.DataSetMessages),
			counter("decode_errors", "Datagrams rejected.", &m.DecodeErrors),
			counter("verify_mismatches", "Datagrams that did not match the expected structure.", &m.VerifyMismatches),
			counter("chunks_received", "Chunk datagrams received.", &m.ChunksReceived),
			counter("duplicate_chunks", "Chunk datagrams already received.", &m.DuplicateChunks),
			counter("messages_reassembled", "Chunked messages completed.", &m.MessagesReassembled),
			counter("bytes_decoded", "Datagram bytes decoded.", &m.BytesDecoded),
			counter("unrouted_datagrams", "Datagrams no reader was registered for.", &m.UnroutedDatagrams),
		},
		byStatus: prometheus.NewDesc(prometheus.BuildFQName(metricsNamespace, "", "errors_by_status_total"),
			"Rejected datagrams by status code.", []string{"status"}, nil),
		latency: prometheus.NewDesc(prometheus.BuildFQName(metricsNamespace, "", "decode_latency_seconds"),
			"Average decode latency.", nil, nil),
	}
}

func (c *metricsCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, cd := range c.counters {
		ch <- cd.desc
	}
	ch <- c.byStatus
	ch <- c.latency
}

func (c *metricsCollector) Collect(ch chan<- prometheus.Metric) {
	for _, cd := range c.counters {
		ch <- prometheus.MustNewConstMetric(cd.desc, prometheus.CounterValue, float64(cd.c.Value()))
	}
	if byStatus, ok := c.m.Collect()["errors_by_status"].(map[string]int64); ok {
		for status, n := range byStatus {
			ch <- prometheus.MustNewConstMetric(c.byStatus, prometheus.CounterValue, float64(n), status)
		}
	}
	ch <- prometheus.MustNewConstMetric(c.latency, prometheus.GaugeValue, c.m.Latency.Stats().Avg/1e6)
}

// newMetricsRegistry returns a registry exporting m and the Go runtime.
func newMetricsRegistry(m *opcua.Metrics) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(newMetricsCollector(m))
	reg.MustRegister(collectors.NewGoCollector())
	return reg
}
