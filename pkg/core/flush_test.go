package core_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/churn/internal/telemetry"
	"github.com/aretw0/churn/pkg/core"
)

// instrumentedStore wraps a store to observe its transactions.
type instrumentedStore struct {
	core.Store

	open    atomic.Int32
	maxOpen atomic.Int32
	total   atomic.Int32
	// failures is the number of upcoming transactions to fail.
	failures atomic.Int32
	hold     time.Duration
}

var errInjected = errors.New("injected transaction failure")

func (s *instrumentedStore) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx core.Tx) error) error {
	n := s.open.Add(1)
	defer s.open.Add(-1)
	for {
		peak := s.maxOpen.Load()
		if n <= peak || s.maxOpen.CompareAndSwap(peak, n) {
			break
		}
	}
	s.total.Add(1)

	if s.hold > 0 {
		time.Sleep(s.hold)
	}
	if s.failures.Load() > 0 {
		s.failures.Add(-1)
		return errInjected
	}
	return s.Store.WithTransaction(ctx, fn)
}

func TestFlushOnce_EmptyQueueSkipsTransaction(t *testing.T) {
	store := &instrumentedStore{Store: seedStore(t, 3)}
	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)
	c := core.NewCoordinator(store, core.Config{Metrics: metrics})

	result, err := c.FlushOnce(t.Context())
	require.NoError(t, err)
	assert.Zero(t, result.Drained)
	assert.NotEmpty(t, result.Cycle)
	assert.Zero(t, store.total.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Cycles.WithLabelValues(telemetry.CycleEmpty)))
}

func TestFlushOnce_AppliesWholeBatch(t *testing.T) {
	ctx := t.Context()
	s := seedStore(t, 100)
	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)
	c := core.NewCoordinator(s, core.Config{Metrics: metrics, FlushConcurrency: 4})
	require.NoError(t, c.RefreshSize(ctx))

	for i := range 10 {
		require.NoError(t, c.Enqueue(core.Recolor(core.AtOffset(i), 3)))
	}
	for range 5 {
		require.NoError(t, c.Enqueue(core.Insert(core.NewSampleRecord(time.Now()))))
	}
	require.NoError(t, c.Enqueue(core.Delete(core.AtOffset(1000))))

	result, err := c.FlushOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 16, result.Drained)
	assert.Equal(t, 15, result.Applied)
	assert.Equal(t, 1, result.Missed)
	assert.Equal(t, 1, result.Attempts)
	assert.Zero(t, c.Queue().Len())
	assert.Equal(t, 105, c.Size())

	page, err := s.Page(ctx, 0, 10)
	require.NoError(t, err)
	for _, r := range page {
		require.NotNil(t, r.Color)
		assert.Equal(t, 3, *r.Color)
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Cycles.WithLabelValues(telemetry.CycleCommitted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Applied.WithLabelValues("delete", "miss")))
	assert.Equal(t, 5.0, testutil.ToFloat64(metrics.Applied.WithLabelValues("insert", "applied")))
	assert.Equal(t, 105.0, testutil.ToFloat64(metrics.StoreSize))

	last, _, ok := c.LastFlush()
	require.True(t, ok)
	assert.Equal(t, result, last)
}

func TestFlushOnce_RetriesThenCommits(t *testing.T) {
	store := &instrumentedStore{Store: seedStore(t, 3)}
	store.failures.Store(2)
	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)
	c := core.NewCoordinator(store, core.Config{
		Metrics:      metrics,
		FlushRetries: 2,
		RetryBackoff: time.Millisecond,
	})

	require.NoError(t, c.Enqueue(core.Delete(core.AtOffset(0))))
	result, err := c.FlushOnce(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, 1, result.Applied)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.Retries))

	n, err := store.Count(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestFlushOnce_DropsBatchAfterRetries(t *testing.T) {
	store := &instrumentedStore{Store: seedStore(t, 3)}
	store.failures.Store(10)
	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)
	c := core.NewCoordinator(store, core.Config{
		Metrics:      metrics,
		FlushRetries: 1,
		RetryBackoff: time.Millisecond,
	})

	require.NoError(t, c.Enqueue(core.Delete(core.AtOffset(0))))
	result, err := c.FlushOnce(t.Context())
	require.ErrorIs(t, err, errInjected)
	assert.Equal(t, 2, result.Attempts)
	assert.NotEmpty(t, result.Error)
	assert.Zero(t, c.Queue().Len(), "failed batch is dropped, not requeued")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Cycles.WithLabelValues(telemetry.CycleFailed)))

	n, err := store.Count(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 3, n, "nothing from the failed batch is applied")
}

// panickingStore hands out transactions whose deletes panic.
type panickingStore struct {
	core.Store
}

type panickingTx struct {
	core.Tx
}

func (panickingTx) Delete(context.Context, core.ID) error {
	panic("driver exploded")
}

func (s *panickingStore) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx core.Tx) error) error {
	return s.Store.WithTransaction(ctx, func(ctx context.Context, tx core.Tx) error {
		return fn(ctx, panickingTx{Tx: tx})
	})
}

func TestFlushOnce_PanicFailsBatch(t *testing.T) {
	store := &panickingStore{Store: seedStore(t, 3)}
	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)
	c := core.NewCoordinator(store, core.Config{Metrics: metrics, RetryBackoff: time.Millisecond})

	require.NoError(t, c.Enqueue(core.Insert(core.Record{FirstName: "Ada"})))
	require.NoError(t, c.Enqueue(core.Delete(core.AtOffset(0))))

	var (
		result core.FlushResult
		err    error
	)
	require.NotPanics(t, func() {
		result, err = c.FlushOnce(t.Context())
	})
	require.ErrorIs(t, err, core.ErrMutationPanic)
	assert.NotEmpty(t, result.Error)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Cycles.WithLabelValues(telemetry.CycleFailed)))

	n, err := store.Count(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 3, n, "the insert is rolled back with the rest of the batch")
}

func TestFlushOnce_AtMostOneTransaction(t *testing.T) {
	store := &instrumentedStore{Store: seedStore(t, 1000), hold: 2 * time.Millisecond}
	c := core.NewCoordinator(store, core.Config{})
	require.NoError(t, c.RefreshSize(t.Context()))

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				target, err := c.RandomTarget()
				if err == nil {
					_ = c.Enqueue(core.Toggle(target))
				}
			}
		}()
	}
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 20 {
				_, _ = c.FlushOnce(t.Context())
			}
		}()
	}

	time.Sleep(100 * time.Millisecond)
	cancel()
	wg.Wait()

	assert.Equal(t, int32(1), store.maxOpen.Load())
}

func TestFlushOnce_NoLossWithinCycle(t *testing.T) {
	ctx := t.Context()
	s := seedStore(t, 0)
	c := core.NewCoordinator(s, core.Config{})

	const producers, each = 10, 200
	var wg sync.WaitGroup
	for range producers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range each {
				assert.NoError(t, c.Enqueue(core.Insert(core.Record{Text: "x"})))
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	applied := 0
	for flushing := true; flushing; {
		select {
		case <-done:
			flushing = false
		default:
		}
		result, err := c.FlushOnce(ctx)
		require.NoError(t, err)
		applied += result.Applied
	}

	assert.Equal(t, producers*each, applied)
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, producers*each, n)
}
