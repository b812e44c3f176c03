package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aretw0/lifecycle/pkg/core/supervisor"
	"github.com/aretw0/lifecycle/pkg/core/worker"
	"github.com/bmatcuk/doublestar/v4"
	"go.opentelemetry.io/otel/trace"

	"github.com/aretw0/churn/internal/telemetry"
)

const (
	// DefaultFlushPeriod is the cadence of the flush loop.
	DefaultFlushPeriod = 100 * time.Millisecond
	// DefaultRetryBackoff is the pause before retrying a failed transaction.
	DefaultRetryBackoff = 10 * time.Millisecond
)

// Config holds the coordinator configuration.
type Config struct {
	Logger         *slog.Logger
	Metrics        *telemetry.Metrics
	TracerProvider trace.TracerProvider

	// FlushPeriod is the wait between flush cycles. Zero means DefaultFlushPeriod.
	FlushPeriod time.Duration
	// FlushRetries is how many times a failed batch is retried before it is dropped.
	FlushRetries int
	// RetryBackoff is the pause before each retry. Zero means DefaultRetryBackoff.
	RetryBackoff time.Duration
	// FlushConcurrency bounds the goroutines executing one batch. Zero means unbounded.
	FlushConcurrency int
	// MaxQueueDepth sheds enqueues beyond this depth. Zero means unbounded.
	MaxQueueDepth int
	// SeedCount is the number of records SeedIfEmpty inserts. Zero disables seeding.
	SeedCount int
	// Producers restricts which producers start, by glob over their names
	// (e.g. "random/*"). Empty starts all of them.
	Producers []string
}

// Coordinator keeps a record store under continuous background churn.
//
// Producers build mutations on their own timers and enqueue them; a single
// flush loop drains the queue on its own timer and applies every drained
// mutation inside one store transaction.
type Coordinator struct {
	store  Store
	queue  *Queue
	config Config

	logger  *slog.Logger
	metrics *telemetry.Metrics
	tracer  trace.Tracer

	oracle atomic.Pointer[RangeProvider]
	size   atomic.Int64

	seedOnce sync.Once
	seeded   chan struct{}

	mu        sync.RWMutex
	specs     []ProducerSpec
	producers []*producerWorker
	flusher   runnable
	starting  bool
	running   bool
	stopping  bool

	statMu    sync.Mutex
	lastFlush FlushResult
	lastAt    time.Time
	cycles    int64
}

// runnable is the part of a lifecycle supervisor the coordinator drives.
type runnable interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// NewCoordinator creates a coordinator over store.
func NewCoordinator(store Store, config Config) *Coordinator {
	if config.FlushPeriod <= 0 {
		config.FlushPeriod = DefaultFlushPeriod
	}
	if config.RetryBackoff <= 0 {
		config.RetryBackoff = DefaultRetryBackoff
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	metrics := config.Metrics
	if metrics == nil {
		metrics = telemetry.NewMetrics(nil)
	}

	return &Coordinator{
		store:   store,
		queue:   NewQueue(config.MaxQueueDepth),
		config:  config,
		logger:  logger,
		metrics: metrics,
		tracer:  telemetry.Tracer(config.TracerProvider),
		seeded:  make(chan struct{}),
	}
}

// Store returns the record store the coordinator writes to.
func (c *Coordinator) Store() Store {
	return c.store
}

// Queue returns the pending mutation queue.
func (c *Coordinator) Queue() *Queue {
	return c.queue
}

// Enqueue appends a mutation for the next flush cycle.
func (c *Coordinator) Enqueue(m Mutation) error {
	source := m.Source
	if source == "" {
		source = "direct"
	}
	if err := c.queue.Enqueue(m); err != nil {
		if errors.Is(err, ErrQueueFull) {
			c.metrics.Skipped.WithLabelValues(source, telemetry.SkipQueueFull).Inc()
		}
		return err
	}
	c.metrics.Enqueued.WithLabelValues(source, string(m.Kind)).Inc()
	return nil
}

// Size returns the store size observed after the last commit.
func (c *Coordinator) Size() int {
	return int(c.size.Load())
}

// RefreshSize re-reads the store size used for random targeting.
func (c *Coordinator) RefreshSize(ctx context.Context) error {
	n, err := c.store.Count(ctx)
	if err != nil {
		return fmt.Errorf("count records: %w", err)
	}
	c.size.Store(int64(n))
	c.metrics.StoreSize.Set(float64(n))
	return nil
}

// Seeded is closed once the store has been seeded, or found not to need it.
func (c *Coordinator) Seeded() <-chan struct{} {
	return c.seeded
}

// Start seeds the store if empty, then starts the producers and the flush loop.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running || c.starting {
		c.mu.Unlock()
		return fmt.Errorf("coordinator already started")
	}
	if c.stopping {
		c.mu.Unlock()
		return fmt.Errorf("coordinator is stopping")
	}
	c.starting = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.starting = false
		c.mu.Unlock()
	}()

	if _, err := c.SeedIfEmpty(ctx); err != nil {
		return err
	}
	if err := c.RefreshSize(ctx); err != nil {
		return err
	}

	c.mu.RLock()
	specs, err := c.selectProducers()
	c.mu.RUnlock()
	if err != nil {
		return err
	}

	var started []*producerWorker
	for _, spec := range specs {
		for i := range spec.Replicas {
			w := newProducerWorker(c, spec, i)
			if err := w.Start(ctx); err != nil {
				c.stopProducers(context.Background(), started)
				return fmt.Errorf("start producer %s: %w", w.name, err)
			}
			started = append(started, w)
		}
	}

	sup := supervisor.New("churn-flush", supervisor.StrategyOneForOne, supervisor.Spec{
		Name: "flush",
		Type: string(worker.TypeGoroutine),
		Factory: func() (worker.Worker, error) {
			return newFlushWorker(c), nil
		},
		Backoff: supervisor.Backoff{
			InitialInterval: c.config.FlushPeriod,
			MaxInterval:     10 * c.config.FlushPeriod,
			Multiplier:      2,
			ResetDuration:   time.Minute,
			MaxRestarts:     10,
			MaxDuration:     10 * time.Minute,
		},
		RestartPolicy: supervisor.RestartOnFailure,
	})
	if err := sup.Start(ctx); err != nil {
		c.stopProducers(context.Background(), started)
		return fmt.Errorf("start flush loop: %w", err)
	}

	c.mu.Lock()
	c.producers = started
	c.flusher = sup
	c.running = true
	c.mu.Unlock()

	c.logger.Info("coordinator started",
		"producers", len(started),
		"flush_period", c.config.FlushPeriod,
		"records", c.Size(),
	)
	return nil
}

// Stop stops scheduling new ticks, runs one final flush so nothing already
// enqueued is left behind, and stops the flush loop.
func (c *Coordinator) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	producers, flusher := c.producers, c.flusher
	c.producers, c.flusher = nil, nil
	c.running = false
	c.stopping = true
	c.mu.Unlock()

	// c.mu is released so State stays responsive during the final flush.
	defer func() {
		c.mu.Lock()
		c.stopping = false
		c.mu.Unlock()
	}()

	c.stopProducers(ctx, producers)

	var errs []error
	if _, err := c.FlushOnce(ctx); err != nil {
		errs = append(errs, fmt.Errorf("final flush: %w", err))
	}
	if err := flusher.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop flush loop: %w", err))
	}

	c.logger.Info("coordinator stopped", "pending", c.queue.Len())
	return errors.Join(errs...)
}

// Run starts the coordinator and blocks until ctx is cancelled, then stops it.
// Cancellation during seeding is an ordinary shutdown, not an error.
func (c *Coordinator) Run(ctx context.Context) error {
	if err := c.Start(ctx); err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			c.logger.Info("coordinator cancelled before start completed", "error", err)
			return nil
		}
		return err
	}
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return c.Stop(stopCtx)
}

func (c *Coordinator) stopProducers(ctx context.Context, ws []*producerWorker) {
	for _, w := range ws {
		if err := w.Stop(ctx); err != nil {
			c.logger.Warn("failed to stop producer", "producer", w.name, "error", err)
		}
	}
}

func (c *Coordinator) selectProducers() ([]ProducerSpec, error) {
	if len(c.config.Producers) == 0 {
		return c.specs, nil
	}

	var selected []ProducerSpec
	for _, spec := range c.specs {
		for _, pattern := range c.config.Producers {
			ok, err := doublestar.Match(pattern, spec.Name)
			if err != nil {
				return nil, fmt.Errorf("invalid producer pattern %q: %w", pattern, err)
			}
			if ok {
				selected = append(selected, spec)
				break
			}
		}
	}

	if len(selected) == 0 {
		c.logger.Warn("no producers matched", "patterns", c.config.Producers)
	}
	return selected, nil
}
