// Copyright (C) 2025 ClerkDesk Labs (eng@clerkdesk.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the concierge.
//
// # Description
//
// Metrics cover the decision pipeline rather than transport: which
// conversation modes get chosen, how often retrieval relaxes or dead-ends,
// how groundability is distributed, and how long a full turn takes.
//
// # Integration
//
// Metrics are exposed via the /metrics endpoint. Use with Prometheus +
// Grafana for dashboards and alerting.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

// Namespace for all metrics
const metricsNamespace = "clerkdesk"

// Subsystem for turn pipeline metrics
const turnSubsystem = "turns"

// TurnMetrics holds all Prometheus metrics for the turn pipeline.
//
// # Fields
//
//   - TurnsTotal: Counter of turns by chosen mode and topic
//   - CorrectionsTotal: Counter of coherence-gate rebuilds by declared mode
//   - RelaxationStepsTotal: Counter of relaxation steps taken
//   - DeadEndsTotal: Counter of turns that exhausted relaxation
//   - Groundability: Histogram of groundability scores on retrieval turns
//   - TurnDurationSeconds: Histogram of full turn latency by mode
//   - ActiveTurns: Gauge of turns currently in flight
//
// # Thread Safety
//
// All operations are thread-safe.
type TurnMetrics struct {
	// TurnsTotal counts completed turns.
	// Labels: mode (chat, clarify, recommend, compare, dead_end), topic
	TurnsTotal *prometheus.CounterVec

	// CorrectionsTotal counts turns the coherence gate rebuilt.
	// Labels: declared_mode
	CorrectionsTotal *prometheus.CounterVec

	// RelaxationStepsTotal counts individual filter drops during relaxation.
	RelaxationStepsTotal prometheus.Counter

	// DeadEndsTotal counts turns that stayed empty after relaxation.
	DeadEndsTotal prometheus.Counter

	// Groundability observes the groundability score of retrieval turns.
	Groundability prometheus.Histogram

	// TurnDurationSeconds measures full turn latency.
	// Labels: mode
	TurnDurationSeconds *prometheus.HistogramVec

	// ActiveTurns tracks turns currently being processed.
	ActiveTurns prometheus.Gauge
}

// DefaultMetrics is the singleton instance of TurnMetrics.
// Initialized by InitMetrics().
var DefaultMetrics *TurnMetrics

// InitMetrics creates and registers all Prometheus metrics. Call once at
// application startup; a second call panics on duplicate registration.
func InitMetrics() *TurnMetrics {
	DefaultMetrics = &TurnMetrics{
		TurnsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: turnSubsystem,
				Name:      "total",
				Help:      "Total completed turns by mode and topic",
			},
			[]string{"mode", "topic"},
		),

		CorrectionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: turnSubsystem,
				Name:      "corrections_total",
				Help:      "Turns rebuilt by the coherence gate, by declared mode",
			},
			[]string{"declared_mode"},
		),

		RelaxationStepsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: turnSubsystem,
				Name:      "relaxation_steps_total",
				Help:      "Filter drops performed while recovering from zero results",
			},
		),

		DeadEndsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: turnSubsystem,
				Name:      "dead_ends_total",
				Help:      "Turns that stayed empty after exhausting relaxation",
			},
		),

		Groundability: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: turnSubsystem,
				Name:      "groundability",
				Help:      "Groundability score distribution on retrieval turns",
				Buckets:   []float64{0.1, 0.2, 0.3, 0.45, 0.6, 0.75, 0.9, 1.0},
			},
		),

		TurnDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: turnSubsystem,
				Name:      "duration_seconds",
				Help:      "Full turn latency in seconds by mode",
				Buckets:   []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"mode"},
		),

		ActiveTurns: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: turnSubsystem,
				Name:      "active",
				Help:      "Turns currently in flight",
			},
		),
	}

	return DefaultMetrics
}

// =============================================================================
// Helper Methods
// =============================================================================

// RecordTurn records one completed turn.
func (m *TurnMetrics) RecordTurn(mode, topic string, seconds float64) {
	m.TurnsTotal.WithLabelValues(mode, topic).Inc()
	m.TurnDurationSeconds.WithLabelValues(mode).Observe(seconds)
}

// RecordCorrection records a coherence-gate rebuild.
func (m *TurnMetrics) RecordCorrection(declaredMode string) {
	m.CorrectionsTotal.WithLabelValues(declaredMode).Inc()
}

// RecordRelaxation records the relaxation steps taken on a turn, and whether
// the turn still dead-ended.
func (m *TurnMetrics) RecordRelaxation(steps int, deadEnd bool) {
	if steps > 0 {
		m.RelaxationStepsTotal.Add(float64(steps))
	}
	if deadEnd {
		m.DeadEndsTotal.Inc()
	}
}

// RecordGroundability observes one groundability score.
func (m *TurnMetrics) RecordGroundability(score float64) {
	m.Groundability.Observe(score)
}

// TurnStarted increments the in-flight gauge.
func (m *TurnMetrics) TurnStarted() {
	m.ActiveTurns.Inc()
}

// TurnEnded decrements the in-flight gauge.
func (m *TurnMetrics) TurnEnded() {
	m.ActiveTurns.Dec()
}
