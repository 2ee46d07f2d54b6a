// Package telemetry implements the metrics/tracing expansion (C14): a pure
// observer layer that never influences control flow. Prometheus counters
// and histograms track iteration counts, costs, and durations; an
// OpenTelemetry tracer emits a span per iteration. Grounded on the
// teacher's pack-wide convention of wiring prometheus/client_golang
// counters alongside domain logic without the metric ever gating behavior.
package telemetry

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry bundles the counters, histograms, and tracer used across a run.
type Telemetry struct {
	registry *prometheus.Registry

	iterationsTotal  *prometheus.CounterVec
	iterationSeconds prometheus.Histogram
	costTotal        prometheus.Counter
	failuresTotal    *prometheus.CounterVec

	tracer trace.Tracer
}

// New registers all metrics against a fresh registry and returns a
// Telemetry ready for use. tracerName identifies the OTel tracer (commonly
// the module path).
func New(tracerName string) *Telemetry {
	reg := prometheus.NewRegistry()

	t := &Telemetry{
		registry: reg,
		iterationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hatchet_iterations_total",
			Help: "Total iterations executed, labeled by exit reason.",
		}, []string{"reason"}),
		iterationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hatchet_iteration_duration_seconds",
			Help:    "Wall-clock duration of each iteration.",
			Buckets: prometheus.DefBuckets,
		}),
		costTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hatchet_cost_usd_total",
			Help: "Cumulative reported cost across all iterations.",
		}),
		failuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hatchet_failures_total",
			Help: "Iteration failures, labeled by error kind.",
		}, []string{"kind"}),
		tracer: otel.Tracer(tracerName),
	}

	reg.MustRegister(t.iterationsTotal, t.iterationSeconds, t.costTotal, t.failuresTotal)
	return t
}

// Registry exposes the Prometheus registry for an HTTP /metrics handler
// installed by an external collaborator (the CLI or a dashboard process).
func (t *Telemetry) Registry() *prometheus.Registry {
	return t.registry
}

// ObserveIteration records a completed iteration's duration and exit
// reason. Never returns an error or affects the caller: telemetry is
// strictly an observer (§2).
func (t *Telemetry) ObserveIteration(reason string, seconds float64) {
	t.iterationsTotal.WithLabelValues(reason).Inc()
	t.iterationSeconds.Observe(seconds)
}

// AddCost accumulates reported cost.
func (t *Telemetry) AddCost(usd float64) {
	if usd > 0 {
		t.costTotal.Add(usd)
	}
}

// RecordFailure increments the failure counter for the given error kind.
func (t *Telemetry) RecordFailure(kind string) {
	t.failuresTotal.WithLabelValues(kind).Inc()
}

// StartIterationSpan starts an OTel span covering one iteration.
func (t *Telemetry) StartIterationSpan(ctx context.Context, iteration int, hatID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "iteration",
		trace.WithAttributes(
			attribute.Int("iteration", iteration),
			attribute.String("hat_id", hatID),
		),
	)
}
