package core_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/churn/internal/telemetry"
	"github.com/aretw0/churn/pkg/adapters/memory"
	"github.com/aretw0/churn/pkg/core"
)

func TestCoordinator_StartStop(t *testing.T) {
	s := memory.New()
	defer s.Close()
	c := core.NewCoordinator(s, core.Config{
		SeedCount:   200,
		FlushPeriod: 5 * time.Millisecond,
	})
	require.NoError(t, c.AddProducer(core.ProducerSpec{
		Name:     "random/insert",
		Replicas: 3,
		Period:   time.Millisecond,
		Make:     c.MakeRandom(core.KindInsert),
	}))
	require.NoError(t, c.AddProducer(core.ProducerSpec{
		Name:     "random/toggle",
		Replicas: 2,
		Period:   time.Millisecond,
		Make:     c.MakeRandom(core.KindToggle),
	}))

	ctx := t.Context()
	require.NoError(t, c.Start(ctx))
	assert.Error(t, c.Start(ctx), "second start must fail")
	assert.True(t, c.IsSeeded())

	assert.Eventually(t, func() bool {
		n, err := s.Count(ctx)
		return err == nil && n > 220
	}, 2*time.Second, 5*time.Millisecond)

	state, ok := c.State().(core.CoordinatorState)
	require.True(t, ok)
	assert.True(t, state.Running)
	assert.Len(t, state.Producers, 5)
	assert.Equal(t, "memory", state.StoreType)
	assert.Equal(t, "coordinator", c.ComponentType())

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Stop(stopCtx))
	assert.Zero(t, c.Queue().Len(), "stop flushes what was already enqueued")
	require.NoError(t, c.Stop(stopCtx))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	after, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, n, after, "no writes after stop")
}

func TestCoordinator_ProducerFilter(t *testing.T) {
	s := memory.New()
	defer s.Close()
	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)
	c := core.NewCoordinator(s, core.Config{
		Metrics:     metrics,
		SeedCount:   10,
		FlushPeriod: 5 * time.Millisecond,
		Producers:   []string{"visible/*"},
	})
	require.NoError(t, c.AddDefaultProducers())

	ctx := t.Context()
	require.NoError(t, c.Start(ctx))
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = c.Stop(stopCtx)
	}()

	state := c.State().(core.CoordinatorState)
	assert.Len(t, state.Producers, 3)

	// Without an oracle every visible tick is skipped.
	skipped := metrics.Skipped.WithLabelValues("visible/recolor", telemetry.SkipOracleUnavailable)
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(skipped) > 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Zero(t, testutil.ToFloat64(metrics.Enqueued.WithLabelValues("visible/recolor", "recolor")))

	c.RegisterVisibleRangeProvider(core.StaticRange(core.Range{Lo: 2, Hi: 4}))
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.Enqueued.WithLabelValues("visible/recolor", "recolor")) > 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCoordinator_InvalidProducerPattern(t *testing.T) {
	s := memory.New()
	defer s.Close()
	c := core.NewCoordinator(s, core.Config{Producers: []string{"[invalid"}})
	require.NoError(t, c.AddDefaultProducers())
	assert.Error(t, c.Start(t.Context()))
}

func TestCoordinator_Run(t *testing.T) {
	s := memory.New()
	defer s.Close()
	c := core.NewCoordinator(s, core.Config{SeedCount: 5, FlushPeriod: 5 * time.Millisecond})
	require.NoError(t, c.AddProducer(core.ProducerSpec{
		Name:     "random/delete",
		Replicas: 1,
		Period:   time.Millisecond,
		Make:     c.MakeRandom(core.KindDelete),
	}))

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	assert.Eventually(t, func() bool {
		n, err := s.Count(context.Background())
		return err == nil && n == 0 && c.IsSeeded()
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

// gatedStore blocks every transaction until release is closed.
type gatedStore struct {
	core.Store

	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (s *gatedStore) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx core.Tx) error) error {
	s.once.Do(func() { close(s.entered) })
	<-s.release
	return s.Store.WithTransaction(ctx, fn)
}

func TestCoordinator_StateDuringFinalFlush(t *testing.T) {
	s := &gatedStore{
		Store:   memory.New(),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	defer s.Close()
	c := core.NewCoordinator(s, core.Config{FlushPeriod: time.Hour})

	require.NoError(t, c.Start(t.Context()))
	require.NoError(t, c.Enqueue(core.Insert(core.Record{FirstName: "Ada"})))

	stopped := make(chan error, 1)
	go func() { stopped <- c.Stop(context.Background()) }()

	select {
	case <-s.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("final flush never opened a transaction")
	}

	states := make(chan core.CoordinatorState, 1)
	go func() { states <- c.State().(core.CoordinatorState) }()
	select {
	case state := <-states:
		assert.False(t, state.Running)
	case <-time.After(time.Second):
		t.Fatal("State blocked while the final flush was in progress")
	}
	assert.Error(t, c.Start(t.Context()), "start is rejected while stopping")

	close(s.release)
	require.NoError(t, <-stopped)

	n, err := s.Count(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCoordinator_RunCancelledDuringSeed(t *testing.T) {
	s := memory.New()
	defer s.Close()
	c := core.NewCoordinator(s, core.Config{SeedCount: 10})

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	assert.NoError(t, c.Run(ctx), "cancellation before start completes is a clean exit")
	assert.False(t, c.IsSeeded())

	n, err := s.Count(t.Context())
	require.NoError(t, err)
	assert.Zero(t, n)
}
