// Package metrics defines the Prometheus collectors of the orchestrator.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the orchestrator collectors on a dedicated registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	turns              *prometheus.CounterVec
	routerDecisions    *prometheus.CounterVec
	generationFailures *prometheus.CounterVec
	turnDuration       *prometheus.HistogramVec
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		turns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mentor_turns_total",
				Help: "Total number of handled turns",
			},
			[]string{"mode", "route"},
		),
		routerDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mentor_router_decisions_total",
				Help: "Routing decisions by the source that produced them",
			},
			[]string{"source"},
		),
		generationFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mentor_generation_failures_total",
				Help: "Completion failures replaced by a synthesized reply",
			},
			[]string{"persona"},
		),
		turnDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mentor_turn_duration_seconds",
				Help:    "End-to-end duration of a turn",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"mode"},
		),
	}
	m.registry.MustRegister(m.turns, m.routerDecisions, m.generationFailures, m.turnDuration)
	return m
}

// ObserveTurn records one completed turn.
func (m *Metrics) ObserveTurn(mode, route string, d time.Duration) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(mode, route).Inc()
	m.turnDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// RouterDecision counts a routing decision.
func (m *Metrics) RouterDecision(source string) {
	if m == nil {
		return
	}
	m.routerDecisions.WithLabelValues(source).Inc()
}

// GenerationFailure counts a completion failure for persona.
func (m *Metrics) GenerationFailure(persona string) {
	if m == nil {
		return
	}
	m.generationFailures.WithLabelValues(persona).Inc()
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
