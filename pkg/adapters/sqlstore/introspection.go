package sqlstore

import (
	"github.com/aretw0/introspection"
)

// StoreState exposes internal state for observability.
type StoreState struct {
	Dialect         string `json:"dialect"`
	Source          string `json:"source,omitempty"`
	OpenConnections int    `json:"open_connections"`
	InUse           int    `json:"in_use"`
	WaitCount       int64  `json:"wait_count"`
	Closed          bool   `json:"closed"`
}

// State implements introspection.Introspectable.
func (s *Store) State() any {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()

	stats := s.db.Stats()
	state := StoreState{
		Dialect:         s.dialect.Name,
		OpenConnections: stats.OpenConnections,
		InUse:           stats.InUse,
		WaitCount:       stats.WaitCount,
		Closed:          closed,
	}
	// Postgres DSNs may carry credentials.
	if s.dialect.Name == SQLite.Name {
		state.Source = s.source
	}
	return state
}

// ComponentType implements introspection.Component.
func (s *Store) ComponentType() string {
	return s.dialect.Name
}

var _ introspection.Introspectable = (*Store)(nil)
var _ introspection.Component = (*Store)(nil)
