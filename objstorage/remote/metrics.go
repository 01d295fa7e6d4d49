// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package remote

import (
	"github.com/cockroachdb/snapfile/internal/base"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts the requests made by an ExternalStorage. A nil *Metrics
// records nothing.
type Metrics struct {
	// Requests counts logical requests (after retries) by operation and
	// outcome: "ok", or the kind of the final error.
	Requests *prometheus.CounterVec
	// Retries counts retried attempts by operation.
	Retries *prometheus.CounterVec
	// BytesWritten and BytesRead count payload bytes transferred.
	BytesWritten prometheus.Counter
	BytesRead    prometheus.Counter
}

// NewMetrics returns unregistered metrics under the given namespace.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "remote",
			Name:      "requests_total",
			Help:      "Remote storage requests by operation and outcome.",
		}, []string{"op", "outcome"}),
		Retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "remote",
			Name:      "retries_total",
			Help:      "Retried remote storage attempts by operation.",
		}, []string{"op"}),
		BytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "remote",
			Name:      "written_bytes_total",
			Help:      "Bytes uploaded to remote storage.",
		}),
		BytesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "remote",
			Name:      "read_bytes_total",
			Help:      "Bytes downloaded from remote storage.",
		}),
	}
}

// Register registers all metrics with r.
func (m *Metrics) Register(r prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.Requests, m.Retries, m.BytesWritten, m.BytesRead} {
		if err := r.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) request(op string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = base.KindOf(err).String()
		if base.IsContextError(err) {
			outcome = "canceled"
		}
	}
	m.Requests.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) retried(op string) {
	if m == nil {
		return
	}
	m.Retries.WithLabelValues(op).Inc()
}

func (m *Metrics) wrote(n int64) {
	if m == nil {
		return
	}
	m.BytesWritten.Add(float64(n))
}

func (m *Metrics) read(n int64) {
	if m == nil {
		return
	}
	m.BytesRead.Add(float64(n))
}
