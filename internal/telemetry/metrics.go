// Package telemetry holds the Prometheus collectors and the tracer used by the
// churn coordinator.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const namespace = "churn"

// Skip reasons reported by producers.
const (
	SkipOracleUnavailable = "oracle_unavailable"
	SkipEmptyStore        = "empty_store"
	SkipQueueFull         = "queue_full"
)

// Flush cycle outcomes.
const (
	CycleCommitted = "committed"
	CycleFailed    = "failed"
	CycleEmpty     = "empty"
)

// Metrics groups the coordinator collectors.
type Metrics struct {
	Enqueued      *prometheus.CounterVec
	Skipped       *prometheus.CounterVec
	Applied       *prometheus.CounterVec
	Cycles        *prometheus.CounterVec
	Retries       prometheus.Counter
	CycleDuration prometheus.Histogram
	BatchSize     prometheus.Histogram
	QueueDepth    prometheus.Gauge
	StoreSize     prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered, which is what tests want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		Enqueued: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutations_enqueued_total",
			Help:      "Mutations appended to the queue, by producer and kind.",
		}, []string{"source", "kind"}),
		Skipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutations_skipped_total",
			Help:      "Producer ticks that enqueued nothing, by producer and reason.",
		}, []string{"source", "reason"}),
		Applied: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutations_applied_total",
			Help:      "Mutations executed inside committed flush cycles, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		Cycles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flush_cycles_total",
			Help:      "Flush cycles, by outcome.",
		}, []string{"outcome"}),
		Retries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flush_retries_total",
			Help:      "Transaction attempts repeated after a failure.",
		}),
		CycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "flush_duration_seconds",
			Help:      "Time spent holding the queue lock per flush cycle.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		BatchSize: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "flush_batch_size",
			Help:      "Mutations drained per flush cycle.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Mutations pending in the queue, sampled at each flush.",
		}),
		StoreSize: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "store_records",
			Help:      "Records in the store, sampled after each commit.",
		}),
	}
}

// Tracer returns the tracer used for flush cycles.
// A nil provider falls back to the global one.
func Tracer(tp trace.TracerProvider) trace.Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer("github.com/aretw0/churn/pkg/core")
}
