package churn

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"github.com/aretw0/churn/internal/platform"
	"github.com/aretw0/churn/pkg/core"
)

// --- Types ---

// Coordinator is a public alias for the churn coordinator.
type Coordinator = core.Coordinator

// Store is a public alias for the record store port.
type Store = core.Store

// Record is a public alias for a stored row.
type Record = core.Record

// Range is a public alias for an inclusive offset range.
type Range = core.Range

// --- Configuration ---

// Option defines a functional option for configuring churn.
type Option = platform.Option

// Adapter names accepted by WithAdapter.
const (
	AdapterMemory   = platform.AdapterMemory
	AdapterSQLite   = platform.AdapterSQLite
	AdapterPostgres = platform.AdapterPostgres
)

// WithLogger sets the logger for the coordinator and its store.
func WithLogger(logger *slog.Logger) Option {
	return platform.WithLogger(logger)
}

// WithStore allows injecting a custom storage adapter.
func WithStore(store core.Store) Option {
	return platform.WithStore(store)
}

// WithAdapter allows specifying the storage adapter to use by name.
func WithAdapter(name string) Option {
	return platform.WithAdapter(name)
}

// WithSeedCount sets how many records an empty store is seeded with.
func WithSeedCount(n int) Option {
	return platform.WithSeedCount(n)
}

// WithFlushPeriod sets the cadence of the flush loop.
func WithFlushPeriod(d time.Duration) Option {
	return platform.WithFlushPeriod(d)
}

// WithFlushRetries sets how many times a failed batch is retried.
func WithFlushRetries(n int) Option {
	return platform.WithFlushRetries(n)
}

// WithFlushConcurrency bounds the goroutines applying one batch.
func WithFlushConcurrency(n int) Option {
	return platform.WithFlushConcurrency(n)
}

// WithMaxQueueDepth enables load shedding beyond n pending mutations.
func WithMaxQueueDepth(n int) Option {
	return platform.WithMaxQueueDepth(n)
}

// WithProducers restricts the started producers by glob.
func WithProducers(patterns ...string) Option {
	return platform.WithProducers(patterns...)
}

// WithDefaultProducers controls whether the reference workload is registered.
func WithDefaultProducers(enabled bool) Option {
	return platform.WithDefaultProducers(enabled)
}

// WithRegisterer registers the coordinator metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return platform.WithRegisterer(reg)
}

// WithTracerProvider sets the provider for flush cycle spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return platform.WithTracerProvider(tp)
}

// WithForceTemp forces the use of a temporary database file (useful for testing).
func WithForceTemp(force bool) Option {
	return platform.WithForceTemp(force)
}

// WithDevSafety controls the dev sandbox for SQLite files.
func WithDevSafety(enabled bool) Option {
	return platform.WithDevSafety(enabled)
}

// --- Factory ---

// New creates a coordinator over the store at uri.
func New(ctx context.Context, uri string, opts ...Option) (*core.Coordinator, error) {
	return platform.New(ctx, uri, opts...)
}

// OpenStore opens and initializes the store at uri without a coordinator.
func OpenStore(ctx context.Context, uri string, opts ...Option) (core.Store, error) {
	return platform.OpenStore(ctx, uri, opts...)
}

// --- Safety & Utils ---

// ResolveDBPath determines the actual SQLite file based on safety rules.
func ResolveDBPath(path string, forceTemp bool) string {
	return platform.ResolveDBPath(path, forceTemp)
}

// IsDevRun checks if the current process is running via `go run` or `go test`.
func IsDevRun() bool {
	return platform.IsDevRun()
}

// FindConfig looks upwards from startDir for a churn.yaml file.
func FindConfig(startDir string) (string, error) {
	return platform.FindConfig(startDir)
}
