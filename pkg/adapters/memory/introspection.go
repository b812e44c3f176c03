package memory

import (
	"github.com/aretw0/introspection"

	"github.com/aretw0/churn/pkg/core"
)

// StoreState exposes internal state for observability.
type StoreState struct {
	Records int     `json:"records"`
	NextID  core.ID `json:"next_id"`
	Commits int64   `json:"commits"`
	Closed  bool    `json:"closed"`
}

// State implements introspection.Introspectable.
func (s *Store) State() any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return StoreState{
		Records: len(s.records),
		NextID:  s.nextID,
		Commits: s.commits,
		Closed:  s.closed,
	}
}

// ComponentType implements introspection.Component.
func (s *Store) ComponentType() string {
	return "memory"
}

var _ introspection.Introspectable = (*Store)(nil)
var _ introspection.Component = (*Store)(nil)
