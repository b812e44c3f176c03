package core

import (
	"github.com/aretw0/introspection"
)

// CoordinatorState exposes internal state for observability.
type CoordinatorState struct {
	Running    bool         `json:"running"`
	Seeded     bool         `json:"seeded"`
	QueueDepth int          `json:"queue_depth"`
	StoreSize  int          `json:"store_size"`
	StoreType  string       `json:"store_type"`
	Producers  []string     `json:"producers"`
	Cycles     int64        `json:"cycles"`
	LastFlush  *FlushResult `json:"last_flush,omitempty"`
}

// State implements introspection.Introspectable.
func (c *Coordinator) State() any {
	c.mu.RLock()
	state := CoordinatorState{
		Running: c.running,
	}
	for _, w := range c.producers {
		state.Producers = append(state.Producers, w.name)
	}
	c.mu.RUnlock()

	state.Seeded = c.IsSeeded()
	state.QueueDepth = c.queue.Len()
	state.StoreSize = c.Size()

	state.StoreType = "unknown"
	if c.store != nil {
		state.StoreType = "store"
		if comp, ok := c.store.(introspection.Component); ok {
			state.StoreType = comp.ComponentType()
		}
	}

	c.statMu.Lock()
	state.Cycles = c.cycles
	if c.cycles > 0 {
		last := c.lastFlush
		state.LastFlush = &last
	}
	c.statMu.Unlock()

	return state
}

// ComponentType implements introspection.Component.
func (c *Coordinator) ComponentType() string {
	return "coordinator"
}

var _ introspection.Introspectable = (*Coordinator)(nil)
var _ introspection.Component = (*Coordinator)(nil)
