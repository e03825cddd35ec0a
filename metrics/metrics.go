// Package metrics exposes featsmith run counters as Prometheus metrics.
//
// Metrics live in a per-run registry rather than the global default so
// tests and repeated runs in one process do not collide. A nil *Metrics is
// valid and records nothing.
//
// Metrics:
//   - featsmith_model_attempts_total{operation,outcome}
//   - featsmith_model_attempt_duration_seconds{operation}
//   - featsmith_generations_total{result} - "packaged" or "skipped"
//   - featsmith_check_outcomes_total{kind,category} - category "success" for passes
//   - featsmith_check_duration_seconds{kind}
//   - featsmith_repairs_total
//   - featsmith_success_ratio{kind} - last report's success rate
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/teranos/featsmith/errors"
	"github.com/teranos/featsmith/report"
)

const namespace = "featsmith"

// Metrics holds the collectors for one registry
type Metrics struct {
	registry *prometheus.Registry

	ModelAttempts *prometheus.CounterVec
	ModelDuration *prometheus.HistogramVec
	Generations   *prometheus.CounterVec
	CheckOutcomes *prometheus.CounterVec
	CheckDuration *prometheus.HistogramVec
	Repairs       prometheus.Counter
	SuccessRatio  *prometheus.GaugeVec
}

// New creates collectors registered on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		ModelAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "model_attempts_total",
				Help:      "Model requests by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),

		ModelDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "model_attempt_duration_seconds",
				Help:      "Duration of one model request",
				Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10), // 250ms to ~2min
			},
			[]string{"operation"},
		),

		Generations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "generations_total",
				Help:      "Feature instances by generation result",
			},
			[]string{"result"},
		),

		CheckOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "check_outcomes_total",
				Help:      "Compile and execution outcomes by failure category",
			},
			[]string{"kind", "category"},
		),

		CheckDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "check_duration_seconds",
				Help:      "Duration of one compile or execution invocation",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
			},
			[]string{"kind"},
		),

		Repairs: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "repairs_total",
				Help:      "Repair rewrites applied to units",
			},
		),

		SuccessRatio: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "success_ratio",
				Help:      "Success ratio of the last report per check kind",
			},
			[]string{"kind"},
		),
	}
}

// Registry returns the registry the collectors are registered on
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveModelAttempt records one model request
func (m *Metrics) ObserveModelAttempt(operation, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	if operation == "" {
		operation = "query"
	}
	m.ModelAttempts.WithLabelValues(operation, outcome).Inc()
	m.ModelDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordGeneration counts one feature instance as packaged or skipped
func (m *Metrics) RecordGeneration(packaged bool) {
	if m == nil {
		return
	}
	result := "skipped"
	if packaged {
		result = "packaged"
	}
	m.Generations.WithLabelValues(result).Inc()
}

// ObserveCheck records one compile or execution invocation. An empty
// category counts as a success.
func (m *Metrics) ObserveCheck(kind report.Kind, category string, duration time.Duration) {
	if m == nil {
		return
	}
	if category == "" {
		category = "success"
	}
	m.CheckOutcomes.WithLabelValues(string(kind), category).Inc()
	m.CheckDuration.WithLabelValues(string(kind)).Observe(duration.Seconds())
}

// RecordRepair counts one repair rewrite
func (m *Metrics) RecordRepair() {
	if m == nil {
		return
	}
	m.Repairs.Inc()
}

// RecordReport publishes a finished report's success ratio
func (m *Metrics) RecordReport(r *report.Report) {
	if m == nil || r == nil {
		return
	}
	m.SuccessRatio.WithLabelValues(string(r.Kind)).Set(r.SuccessRate() / 100)
}

// WriteTextfile writes every metric in the text exposition format, for the
// node_exporter textfile collector. The file is replaced atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return errors.MarkIO(errors.Wrapf(err, "write metrics textfile %s", path))
	}
	return nil
}
