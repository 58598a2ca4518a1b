// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package query

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "slicestream"
	metricsSubsystem = "query"

	modeCurrent      = "current"
	modeLive         = "live"
	modeBacktracking = "backtracking"
)

// Metrics records engine activity. All methods are nil-safe so the
// engine can be configured without metrics.
type Metrics struct {
	subQueries           *prometheus.CounterVec
	rowsEmitted          *prometheus.CounterVec
	idlePolls            prometheus.Counter
	backtrackingSwitches prometheus.Counter
}

// NewMetrics creates the engine metrics collector. Register it with a
// prometheus.Registerer to expose it.
func NewMetrics() *Metrics {
	return &Metrics{
		subQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "sub_queries_total",
			Help:      "Total number of sub-queries issued, by mode.",
		}, []string{"mode"}),
		rowsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "rows_emitted_total",
			Help:      "Total number of envelopes emitted, by mode.",
		}, []string{"mode"}),
		idlePolls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "idle_polls_total",
			Help:      "Total number of sub-queries that returned no rows.",
		}),
		backtrackingSwitches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "backtracking_switches_total",
			Help:      "Total number of switches into backtracking mode.",
		}),
	}
}

// Describe is part of the prometheus.Collector interface.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.subQueries.Describe(ch)
	m.rowsEmitted.Describe(ch)
	m.idlePolls.Describe(ch)
	m.backtrackingSwitches.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.subQueries.Collect(ch)
	m.rowsEmitted.Collect(ch)
	m.idlePolls.Collect(ch)
	m.backtrackingSwitches.Collect(ch)
}

func (m *Metrics) subQueryIssued(mode string) {
	if m == nil {
		return
	}
	m.subQueries.WithLabelValues(mode).Inc()
}

func (m *Metrics) rowEmitted(mode string) {
	if m == nil {
		return
	}
	m.rowsEmitted.WithLabelValues(mode).Inc()
}

func (m *Metrics) idlePoll() {
	if m == nil {
		return
	}
	m.idlePolls.Inc()
}

func (m *Metrics) backtrackingSwitch() {
	if m == nil {
		return
	}
	m.backtrackingSwitches.Inc()
}
