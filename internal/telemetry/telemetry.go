// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package telemetry registers the process-wide prometheus metrics this
// node exposes. cmd/downstairs serves them on an optional /metrics
// listener; the registry is wired into the session, work and worker
// packages, following the metric.Registerer plumbing the teacher's Network
// type accepts in network.go.
package telemetry

import "github.com/prometheus/client_golang/prometheus"

// Metrics is the set of counters and gauges this node updates as it
// processes sessions and jobs.
type Metrics struct {
	ActiveSessions prometheus.Gauge
	JobsInFlight   prometheus.Gauge
	Evictions      prometheus.Counter
	AcksSent       *prometheus.CounterVec
	RegionErrors   *prometheus.CounterVec
}

// New registers a fresh Metrics set against reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "downstairs",
			Name:      "active_sessions",
			Help:      "Number of upstairs connections currently promoted.",
		}),
		JobsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "downstairs",
			Name:      "jobs_in_flight",
			Help:      "Number of jobs resident across all session queues.",
		}),
		Evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "downstairs",
			Name:      "evictions_total",
			Help:      "Number of times an active session has been forcibly evicted.",
		}),
		AcksSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "downstairs",
			Name:      "acks_sent_total",
			Help:      "Number of IO acks sent, by op kind.",
		}, []string{"op"}),
		RegionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "downstairs",
			Name:      "region_errors_total",
			Help:      "Number of region operations that returned an error, by op kind.",
		}, []string{"op"}),
	}

	for _, c := range []prometheus.Collector{m.ActiveSessions, m.JobsInFlight, m.Evictions, m.AcksSent, m.RegionErrors} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}
