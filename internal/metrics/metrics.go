// Package metrics exports solver activity as Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/copyleftdev/simplex/internal/optimization"
	"github.com/copyleftdev/simplex/internal/optimization/neldermead"
)

const namespace = "simplex"

// Metrics holds the solver collectors.
type Metrics struct {
	Iterations    *prometheus.CounterVec
	Solves        *prometheus.CounterVec
	SolveDuration *prometheus.HistogramVec
	ActiveSolves  prometheus.Gauge
}

// New registers the collectors with reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		Iterations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "iterations_total",
			Help:      "Completed Nelder-Mead iterations by transformation.",
		}, []string{"action"}),
		Solves: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "solves_total",
			Help:      "Finished solves by direction and outcome.",
		}, []string{"direction", "reason"}),
		SolveDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "solve_duration_seconds",
			Help:      "Wall time of finished solves.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"direction"}),
		ActiveSolves: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_solves",
			Help:      "Solves currently running.",
		}),
	}
}

// Observer returns a solver observer that counts iterations by action.
func (m *Metrics) Observer() neldermead.Observer[float64] {
	return neldermead.ObserverFunc[float64](func(it neldermead.Iteration[float64]) {
		m.Iterations.WithLabelValues(it.Action.String()).Inc()
	})
}

// SolveStarted marks a solve as running. The returned function records the
// outcome; reason is "error" for solves that failed.
func (m *Metrics) SolveStarted(direction optimization.Direction) func(reason string) {
	m.ActiveSolves.Inc()
	start := time.Now()
	return func(reason string) {
		m.ActiveSolves.Dec()
		m.Solves.WithLabelValues(direction.String(), reason).Inc()
		m.SolveDuration.WithLabelValues(direction.String()).Observe(time.Since(start).Seconds())
	}
}
