package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"runtime/debug"
	"time"

	"github.com/aretw0/lifecycle/pkg/core/worker"

	"github.com/aretw0/churn/internal/telemetry"
)

// DefaultProducerPeriod is the tick of every default producer.
const DefaultProducerPeriod = 100 * time.Millisecond

// MakeFunc builds one mutation. It returns an error to skip the tick:
// ErrOracleUnavailable or ErrEmptyStore for the expected cases.
type MakeFunc func() (Mutation, error)

// ProducerSpec describes a family of identical periodic producers.
type ProducerSpec struct {
	// Name identifies the producer, e.g. "random/recolor". It is matched
	// against Config.Producers.
	Name string
	// Replicas is the number of independent producers to run.
	Replicas int
	// Period is the wait between two ticks of one replica.
	Period time.Duration
	// Make builds the mutation for a tick.
	Make MakeFunc
}

// AddProducer registers a producer family. Families added after Start only
// run on the next Start.
func (c *Coordinator) AddProducer(spec ProducerSpec) error {
	if spec.Name == "" {
		return fmt.Errorf("producer has no name")
	}
	if spec.Replicas <= 0 {
		return fmt.Errorf("producer %s: replicas must be positive", spec.Name)
	}
	if spec.Period <= 0 {
		return fmt.Errorf("producer %s: period must be positive", spec.Name)
	}
	if spec.Make == nil {
		return fmt.Errorf("producer %s: no make function", spec.Name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, existing := range c.specs {
		if existing.Name == spec.Name {
			return fmt.Errorf("producer %s already registered", spec.Name)
		}
	}
	c.specs = append(c.specs, spec)
	return nil
}

// DefaultProducers returns the reference workload: ten replicas of each
// unconstrained kind and one replica of each visible-range kind, all ticking
// every DefaultProducerPeriod.
func (c *Coordinator) DefaultProducers() []ProducerSpec {
	p := DefaultProducerPeriod
	return []ProducerSpec{
		{Name: "random/recolor", Replicas: 10, Period: p, Make: c.MakeRandom(KindRecolor)},
		{Name: "random/toggle", Replicas: 10, Period: p, Make: c.MakeRandom(KindToggle)},
		{Name: "random/delete", Replicas: 10, Period: p, Make: c.MakeRandom(KindDelete)},
		{Name: "random/insert", Replicas: 10, Period: p, Make: c.MakeRandom(KindInsert)},
		{Name: "visible/recolor", Replicas: 1, Period: p, Make: c.MakeVisible(KindRecolor)},
		{Name: "visible/toggle", Replicas: 1, Period: p, Make: c.MakeVisible(KindToggle)},
		{Name: "visible/delete", Replicas: 1, Period: p, Make: c.MakeVisible(KindDelete)},
	}
}

// AddDefaultProducers registers every producer from DefaultProducers.
func (c *Coordinator) AddDefaultProducers() error {
	for _, spec := range c.DefaultProducers() {
		if err := c.AddProducer(spec); err != nil {
			return err
		}
	}
	return nil
}

// RandomTarget picks an offset uniformly over the whole store, as last sized.
func (c *Coordinator) RandomTarget() (Target, error) {
	n := c.Size()
	if n <= 0 {
		return Target{}, ErrEmptyStore
	}
	return AtOffset(rand.IntN(n)), nil
}

// VisibleTarget picks an offset uniformly within the range reported by the
// visible-range oracle right now.
func (c *Coordinator) VisibleTarget() (Target, error) {
	r, ok := c.VisibleRange()
	if !ok {
		return Target{}, ErrOracleUnavailable
	}
	return AtOffset(r.Random()), nil
}

// MakeRandom returns a MakeFunc for the unconstrained family.
func (c *Coordinator) MakeRandom(kind Kind) MakeFunc {
	return makeWith(kind, c.RandomTarget)
}

// MakeVisible returns a MakeFunc for the visible-range family.
func (c *Coordinator) MakeVisible(kind Kind) MakeFunc {
	return makeWith(kind, c.VisibleTarget)
}

func makeWith(kind Kind, target func() (Target, error)) MakeFunc {
	return func() (Mutation, error) {
		if kind == KindInsert {
			return Insert(NewSampleRecord(time.Now())), nil
		}

		t, err := target()
		if err != nil {
			return Mutation{}, err
		}

		switch kind {
		case KindRecolor:
			return Recolor(t, RandomColor()), nil
		case KindToggle:
			return Toggle(t), nil
		case KindDelete:
			return Delete(t), nil
		default:
			return Mutation{}, fmt.Errorf("unknown mutation kind %q", kind)
		}
	}
}

// produce runs one tick of a producer.
func (c *Coordinator) produce(spec ProducerSpec) {
	m, err := spec.Make()
	switch {
	case errors.Is(err, ErrOracleUnavailable):
		c.metrics.Skipped.WithLabelValues(spec.Name, telemetry.SkipOracleUnavailable).Inc()
		return
	case errors.Is(err, ErrEmptyStore):
		c.metrics.Skipped.WithLabelValues(spec.Name, telemetry.SkipEmptyStore).Inc()
		return
	case err != nil:
		c.logger.Warn("producer failed to build mutation", "producer", spec.Name, "error", err)
		return
	}

	m.Source = spec.Name
	if err := c.Enqueue(m); err != nil && !errors.Is(err, ErrQueueFull) {
		c.logger.Warn("producer failed to enqueue", "producer", spec.Name, "error", err)
	}
}

// producerWorker is one replica of a producer family.
type producerWorker struct {
	*worker.BaseWorker
	coordinator *Coordinator
	spec        ProducerSpec
	name        string
	cancel      context.CancelFunc
}

func newProducerWorker(c *Coordinator, spec ProducerSpec, replica int) *producerWorker {
	name := fmt.Sprintf("%s#%d", spec.Name, replica)
	return &producerWorker{
		BaseWorker:  worker.NewBaseWorker(name),
		coordinator: c,
		spec:        spec,
		name:        name,
	}
}

func (w *producerWorker) Start(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	status := w.State().Status
	if status != worker.StatusCreated && status != worker.StatusPending {
		return fmt.Errorf("producer already started (status: %s)", status)
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.SetStatus(worker.StatusRunning)
	return w.StartFunc(runCtx, w.run)
}

func (w *producerWorker) Stop(ctx context.Context) error {
	if w.cancel != nil {
		w.StopRequested = true
		w.cancel()
	}
	return w.BaseWorker.Stop(ctx)
}

func (w *producerWorker) State() worker.State {
	return w.ExportState(func(s *worker.State) {
		s.Metadata = map[string]string{
			worker.MetadataType: string(worker.TypeGoroutine),
			"producer":          w.spec.Name,
			"period":            w.spec.Period.String(),
		}
	})
}

// run ticks until ctx is cancelled. A tick in progress always finishes.
func (w *producerWorker) run(ctx context.Context) (err error) {
	defer w.coordinator.recoverWorker(ctx, "producer", w.name, &err)

	ticker := time.NewTicker(w.spec.Period)
	defer ticker.Stop()

	for {
		w.coordinator.produce(w.spec)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// recoverWorker turns a worker panic into *errp, logging the stack only at
// debug level.
func (c *Coordinator) recoverWorker(ctx context.Context, kind, name string, errp *error) {
	recovered := recover()
	if recovered == nil {
		return
	}

	panicErr := fmt.Errorf("%s panic: %v", kind, recovered)
	*errp = panicErr
	if c.logger.Enabled(ctx, slog.LevelDebug) {
		c.logger.Error(kind+" panic", "worker", name, "error", panicErr, "stack", string(debug.Stack()))
		return
	}
	c.logger.Error(kind+" panic", "worker", name, "error", panicErr)
}
