package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/lifecycle/pkg/core/worker"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/aretw0/churn/internal/telemetry"
)

// FlushResult summarizes one flush cycle.
type FlushResult struct {
	Cycle    string        `json:"cycle"`
	Drained  int           `json:"drained"`
	Applied  int           `json:"applied"`
	Missed   int           `json:"missed"`
	Attempts int           `json:"attempts"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// FlushOnce runs one flush cycle: it drains the queue and executes the whole
// batch inside a single transaction. The queue stays locked until the
// transaction has committed or been abandoned, so producers block for the
// duration and at most one flush transaction is ever open.
//
// A failed transaction is retried FlushRetries times. If it still fails the
// batch is dropped and the error is returned.
func (c *Coordinator) FlushOnce(ctx context.Context) (FlushResult, error) {
	result := FlushResult{Cycle: uuid.NewString()}

	ctx, span := c.tracer.Start(ctx, "churn.flush",
		trace.WithAttributes(attribute.String("churn.cycle", result.Cycle)))
	defer span.End()

	started := time.Now()
	err := c.queue.Flush(func(batch []Mutation) error {
		result.Drained = len(batch)
		if len(batch) == 0 {
			return nil
		}
		c.metrics.BatchSize.Observe(float64(len(batch)))

		var outcomes []Outcome
		var err error
		for attempt := 0; attempt <= c.config.FlushRetries; attempt++ {
			if attempt > 0 {
				c.metrics.Retries.Inc()
				c.logger.Warn("retrying flush transaction",
					"cycle", result.Cycle, "attempt", attempt+1, "error", err)
				if werr := sleep(ctx, c.config.RetryBackoff); werr != nil {
					break
				}
			}
			result.Attempts++
			outcomes, err = c.applyBatch(ctx, batch)
			if err == nil {
				break
			}
		}
		if err != nil {
			return err
		}

		for i, o := range outcomes {
			c.metrics.Applied.WithLabelValues(string(batch[i].Kind), string(o)).Inc()
			if o == OutcomeMiss {
				result.Missed++
			} else {
				result.Applied++
			}
		}
		return nil
	})
	result.Duration = time.Since(started)
	c.metrics.CycleDuration.Observe(result.Duration.Seconds())
	c.metrics.QueueDepth.Set(float64(c.queue.Len()))

	span.SetAttributes(
		attribute.Int("churn.drained", result.Drained),
		attribute.Int("churn.applied", result.Applied),
		attribute.Int("churn.missed", result.Missed),
		attribute.Int("churn.attempts", result.Attempts),
	)

	switch {
	case err != nil:
		result.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, "flush failed")
		c.metrics.Cycles.WithLabelValues(telemetry.CycleFailed).Inc()
		c.logger.Error("flush cycle failed, batch dropped",
			"cycle", result.Cycle,
			"dropped", result.Drained,
			"attempts", result.Attempts,
			"error", err,
		)
		err = fmt.Errorf("flush cycle %s: %w", result.Cycle, err)
	case result.Drained == 0:
		c.metrics.Cycles.WithLabelValues(telemetry.CycleEmpty).Inc()
	default:
		c.metrics.Cycles.WithLabelValues(telemetry.CycleCommitted).Inc()
		if rerr := c.RefreshSize(ctx); rerr != nil {
			c.logger.Warn("failed to refresh store size", "error", rerr)
		}
		c.logger.Debug("flush cycle committed",
			"cycle", result.Cycle,
			"drained", result.Drained,
			"applied", result.Applied,
			"missed", result.Missed,
			"duration", result.Duration,
		)
	}

	c.statMu.Lock()
	c.lastFlush = result
	c.lastAt = started
	c.cycles++
	c.statMu.Unlock()

	return result, err
}

// applyBatch runs every mutation of batch concurrently inside one
// transaction and commits only after all of them have finished.
func (c *Coordinator) applyBatch(ctx context.Context, batch []Mutation) ([]Outcome, error) {
	outcomes := make([]Outcome, len(batch))

	err := c.store.WithTransaction(ctx, func(ctx context.Context, tx Tx) error {
		g, gctx := errgroup.WithContext(ctx)
		if c.config.FlushConcurrency > 0 {
			g.SetLimit(c.config.FlushConcurrency)
		}
		for i, m := range batch {
			g.Go(func() (err error) {
				// A panicking store fails the batch instead of the process.
				defer func() {
					if r := recover(); r != nil {
						err = fmt.Errorf("%w: %s mutation panicked: %v", ErrMutationPanic, m.Kind, r)
					}
				}()
				o, err := m.Apply(gctx, tx)
				if err != nil {
					return err
				}
				outcomes[i] = o
				return nil
			})
		}
		return g.Wait()
	})
	if err != nil {
		return nil, err
	}
	return outcomes, nil
}

// LastFlush returns the most recent flush result and when it started.
func (c *Coordinator) LastFlush() (FlushResult, time.Time, bool) {
	c.statMu.Lock()
	defer c.statMu.Unlock()
	return c.lastFlush, c.lastAt, c.cycles > 0
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// flushWorker drives FlushOnce on a fixed period.
type flushWorker struct {
	*worker.BaseWorker
	coordinator *Coordinator
	cancel      context.CancelFunc
}

func newFlushWorker(c *Coordinator) *flushWorker {
	return &flushWorker{
		BaseWorker:  worker.NewBaseWorker("churn-flush"),
		coordinator: c,
	}
}

func (w *flushWorker) Start(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	status := w.State().Status
	if status != worker.StatusCreated && status != worker.StatusPending {
		return fmt.Errorf("flush loop already started (status: %s)", status)
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.SetStatus(worker.StatusRunning)
	return w.StartFunc(runCtx, w.run)
}

func (w *flushWorker) Stop(ctx context.Context) error {
	if w.cancel != nil {
		w.StopRequested = true
		w.cancel()
	}
	return w.BaseWorker.Stop(ctx)
}

func (w *flushWorker) State() worker.State {
	return w.ExportState(func(s *worker.State) {
		s.Metadata = map[string]string{
			worker.MetadataType: string(worker.TypeGoroutine),
			"period":            w.coordinator.config.FlushPeriod.String(),
		}
	})
}

// run flushes every period until ctx is cancelled. A cycle that has started
// is not interrupted by cancellation; failures are logged by FlushOnce and
// the loop carries on.
func (w *flushWorker) run(ctx context.Context) (err error) {
	defer w.coordinator.recoverWorker(ctx, "flush", "churn-flush", &err)

	ticker := time.NewTicker(w.coordinator.config.FlushPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if _, ferr := w.coordinator.FlushOnce(context.WithoutCancel(ctx)); ferr != nil && errors.Is(ferr, ErrClosed) {
			return ferr
		}
	}
}
