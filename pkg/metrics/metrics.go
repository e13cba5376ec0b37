// Copyright 2026 the analyzer authors
//
// SPDX-License-Identifier: Apache-2.0

// Package metrics exposes the analyzer's counters as Prometheus
// collectors (spec.md §4.11). Unlike a process-wide indexing daemon,
// each analysis run owns its own Registry rather than registering into
// prometheus's global default registry, so multiple runs (or tests) never
// collide over metric names.
package metrics

import (
	dto "github.com/prometheus/client_model/go"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry wraps a dedicated *prometheus.Registry with the counters and
// gauges the supervisor updates at the same points it already logs.
type Registry struct {
	reg *prometheus.Registry

	TrackedPIDs        prometheus.Gauge
	FilesDumped        prometheus.Counter
	UploadFailures     prometheus.Counter
	CommandsReceived   *prometheus.CounterVec
	InjectionAttempted prometheus.Counter
	InjectionSkipped   prometheus.Counter
	InjectionFailed    prometheus.Counter
}

// New builds a Registry with all collectors registered.
func New() *Registry {
	reg := prometheus.NewRegistry()

	m := &Registry{
		reg: reg,
		TrackedPIDs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "analyzer_tracked_pids",
			Help: "Number of processes currently tracked in the process registry.",
		}),
		FilesDumped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "analyzer_files_dumped_total",
			Help: "Number of distinct file contents uploaded to the host.",
		}),
		UploadFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "analyzer_upload_failures_total",
			Help: "Number of file upload attempts that failed.",
		}),
		CommandsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "analyzer_commands_received_total",
			Help: "Number of monitor notifications received, by verb.",
		}, []string{"verb"}),
		InjectionAttempted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "analyzer_injection_attempted_total",
			Help: "Number of times the injection policy attempted to inject the monitor.",
		}),
		InjectionSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "analyzer_injection_skipped_total",
			Help: "Number of injection requests skipped by policy (self, already tracked, protected name).",
		}),
		InjectionFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "analyzer_injection_failed_total",
			Help: "Number of injection attempts that failed.",
		}),
	}

	reg.MustRegister(
		m.TrackedPIDs,
		m.FilesDumped,
		m.UploadFailures,
		m.CommandsReceived,
		m.InjectionAttempted,
		m.InjectionSkipped,
		m.InjectionFailed,
	)
	return m
}

// Gatherer exposes the underlying registry for an HTTP /metrics handler.
func (m *Registry) Gatherer() prometheus.Gatherer {
	return m.reg
}

// Snapshot is the small, dependency-free counter struct folded into the
// final host report for diagnostics (spec.md §4.11) alongside the
// Prometheus exposition.
type Snapshot struct {
	TrackedPIDs        int
	FilesDumped        int
	UploadFailures     int
	InjectionAttempted int
	InjectionSkipped   int
	InjectionFailed    int
}

// Snapshot reads the current counter values. Gauges and counters are read
// through the Prometheus metric interface (via Write), not re-derived from
// application state, so the report always matches what /metrics would show.
func (m *Registry) Snapshot() Snapshot {
	return Snapshot{
		TrackedPIDs:        int(gaugeValue(m.TrackedPIDs)),
		FilesDumped:        int(counterValue(m.FilesDumped)),
		UploadFailures:     int(counterValue(m.UploadFailures)),
		InjectionAttempted: int(counterValue(m.InjectionAttempted)),
		InjectionSkipped:   int(counterValue(m.InjectionSkipped)),
		InjectionFailed:    int(counterValue(m.InjectionFailed)),
	}
}

func gaugeValue(g prometheus.Gauge) float64 {
	var pb dto.Metric
	_ = g.Write(&pb)
	return pb.GetGauge().GetValue()
}

func counterValue(c prometheus.Counter) float64 {
	var pb dto.Metric
	_ = c.Write(&pb)
	return pb.GetCounter().GetValue()
}
