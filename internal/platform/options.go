package platform

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"github.com/aretw0/churn/pkg/core"
)

// Adapter names accepted by WithAdapter.
const (
	AdapterMemory   = "memory"
	AdapterSQLite   = "sqlite"
	AdapterPostgres = "postgres"
)

// DefaultDBFile is the SQLite file used when no path is given.
const DefaultDBFile = "churn.db"

// options holds the internal configuration for a churn coordinator.
type options struct {
	store          core.Store
	logger         *slog.Logger
	adapter        string
	registerer     prometheus.Registerer
	tracerProvider trace.TracerProvider
	coordinator    core.Config
	defaults       bool
	devSafety      bool
	forceTemp      bool
}

// Option defines a functional option for configuring churn.
type Option func(*options)

// defaultOptions returns the default configuration.
func defaultOptions() *options {
	return &options{
		adapter:   AdapterSQLite,
		defaults:  true,
		devSafety: true,
		coordinator: core.Config{
			SeedCount:    core.DefaultSeedCount,
			FlushPeriod:  core.DefaultFlushPeriod,
			FlushRetries: 2,
		},
	}
}

// WithLogger sets the logger for the coordinator and its store.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithStore injects a store, skipping the adapter selection entirely.
func WithStore(store core.Store) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithAdapter selects the storage adapter by name: "memory", "sqlite" or
// "postgres". Defaults to "sqlite".
func WithAdapter(name string) Option {
	return func(o *options) {
		o.adapter = name
	}
}

// WithSeedCount sets how many records an empty store is seeded with.
// Zero disables seeding.
func WithSeedCount(n int) Option {
	return func(o *options) {
		o.coordinator.SeedCount = n
	}
}

// WithFlushPeriod sets the cadence of the flush loop.
func WithFlushPeriod(d time.Duration) Option {
	return func(o *options) {
		o.coordinator.FlushPeriod = d
	}
}

// WithFlushRetries sets how many times a failed batch is retried.
func WithFlushRetries(n int) Option {
	return func(o *options) {
		o.coordinator.FlushRetries = n
	}
}

// WithFlushConcurrency bounds the goroutines applying one batch.
// Zero means unbounded.
func WithFlushConcurrency(n int) Option {
	return func(o *options) {
		o.coordinator.FlushConcurrency = n
	}
}

// WithMaxQueueDepth enables load shedding beyond n pending mutations.
// Zero keeps the queue unbounded.
func WithMaxQueueDepth(n int) Option {
	return func(o *options) {
		o.coordinator.MaxQueueDepth = n
	}
}

// WithProducers restricts the started producers to those matching any of
// the glob patterns, e.g. "random/*".
func WithProducers(patterns ...string) Option {
	return func(o *options) {
		o.coordinator.Producers = patterns
	}
}

// WithDefaultProducers controls whether the reference workload is
// registered. Defaults to true.
func WithDefaultProducers(enabled bool) Option {
	return func(o *options) {
		o.defaults = enabled
	}
}

// WithRegisterer registers the coordinator metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

// WithTracerProvider sets the provider for flush cycle spans.
// Defaults to the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		o.tracerProvider = tp
	}
}

// WithForceTemp forces the SQLite file into the temporary sandbox.
func WithForceTemp(force bool) Option {
	return func(o *options) {
		o.forceTemp = force
	}
}

// WithDevSafety controls the sandbox used when running via `go run` or
// `go test`. By default (true) the SQLite file is re-rooted under a
// temporary directory so a dev run never churns a real database.
//
// CAUTION: Only disable this if you are sure the target may be modified.
func WithDevSafety(enabled bool) Option {
	return func(o *options) {
		o.devSafety = enabled
	}
}
