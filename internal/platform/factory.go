package platform

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aretw0/churn/internal/telemetry"
	"github.com/aretw0/churn/pkg/adapters/memory"
	"github.com/aretw0/churn/pkg/adapters/sqlstore"
	"github.com/aretw0/churn/pkg/core"
)

// OpenStore opens and initializes the store selected by the options.
// The uri argument is adapter-specific: a file path for "sqlite", a
// connection string for "postgres", ignored for "memory".
func OpenStore(ctx context.Context, uri string, opts ...Option) (core.Store, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return openStore(ctx, uri, o)
}

// New creates a coordinator over the store selected by the options, with
// the default producers registered unless disabled. The caller owns the
// store and closes it after stopping the coordinator.
func New(ctx context.Context, uri string, opts ...Option) (*core.Coordinator, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	store, err := openStore(ctx, uri, o)
	if err != nil {
		return nil, err
	}

	config := o.coordinator
	config.Logger = o.logger
	config.Metrics = telemetry.NewMetrics(o.registerer)
	config.TracerProvider = o.tracerProvider

	c := core.NewCoordinator(store, config)
	if o.defaults {
		if err := c.AddDefaultProducers(); err != nil {
			_ = store.Close()
			return nil, err
		}
	}
	return c, nil
}

func openStore(ctx context.Context, uri string, o *options) (core.Store, error) {
	if o.store != nil {
		return o.store, nil
	}

	logger := o.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	var (
		store core.Store
		err   error
	)
	switch o.adapter {
	case AdapterMemory:
		store = memory.New()
	case AdapterSQLite:
		store, err = openSQLite(uri, o, logger)
	case AdapterPostgres:
		store, err = sqlstore.OpenPostgres(uri, sqlstore.WithLogger(logger))
	default:
		return nil, fmt.Errorf("unknown adapter: %s", o.adapter)
	}
	if err != nil {
		return nil, err
	}

	if err := store.Initialize(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

func openSQLite(path string, o *options, logger *slog.Logger) (core.Store, error) {
	useTemp := o.forceTemp || (IsDevRun() && o.devSafety)
	resolved := ResolveDBPath(path, useTemp)

	if IsDevRun() {
		if o.devSafety {
			logger.Debug("running in SAFE mode (dev sandbox enabled)", "path", resolved)
		} else {
			logger.Warn("running in UNSAFE mode (bypassing dev sandbox)", "path", resolved)
		}
	}
	if useTemp && resolved != path {
		logger.Warn("running in SAFE MODE (Dev/Test)", "original_path", path, "resolved_path", resolved)
	}

	return sqlstore.OpenSQLite(resolved, sqlstore.WithLogger(logger))
}
