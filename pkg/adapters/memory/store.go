// Package memory implements core.Store in process memory.
//
// Records are kept in a slice ordered by identity, so offset reads are O(1)
// and identity reads are a binary search. Transactions stage their writes and
// apply them in one step on commit.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/aretw0/churn/pkg/core"
)

// Store is an in-memory core.Store.
type Store struct {
	mu      sync.RWMutex
	records []core.Record
	nextID  core.ID
	closed  bool

	// txMu serializes transactions. Direct writes go through a transaction
	// too, so the committed slice only changes while txMu is held.
	txMu    sync.Mutex
	commits int64
}

// New creates an empty store.
func New() *Store {
	return &Store{nextID: 1}
}

// Initialize implements core.Store. Memory stores need no preparation.
func (s *Store) Initialize(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return core.ErrClosed
	}
	return nil
}

// Close implements core.Store. Every later call fails with core.ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.records = nil
	return nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, core.ErrClosed
	}
	return len(s.records), nil
}

func (s *Store) GetByOffset(ctx context.Context, i int) (core.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return core.Record{}, core.ErrClosed
	}
	return s.atOffset(i)
}

func (s *Store) GetFirst(ctx context.Context) (core.Record, error) {
	return s.GetByOffset(ctx, 0)
}

func (s *Store) Get(ctx context.Context, id core.ID) (core.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return core.Record{}, core.ErrClosed
	}
	i, ok := s.index(id)
	if !ok {
		return core.Record{}, core.ErrNotFound
	}
	return s.records[i], nil
}

// Page implements core.Store. An offset past the end yields an empty page.
func (s *Store) Page(ctx context.Context, offset, limit int) ([]core.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, core.ErrClosed
	}
	if offset < 0 || limit <= 0 || offset >= len(s.records) {
		return []core.Record{}, nil
	}
	end := min(offset+limit, len(s.records))
	return slices.Clone(s.records[offset:end]), nil
}

func (s *Store) InsertMany(ctx context.Context, records ...core.Record) error {
	return s.WithTransaction(ctx, func(ctx context.Context, tx core.Tx) error {
		return tx.InsertMany(ctx, records...)
	})
}

func (s *Store) Update(ctx context.Context, r core.Record) error {
	return s.WithTransaction(ctx, func(ctx context.Context, tx core.Tx) error {
		return tx.Update(ctx, r)
	})
}

func (s *Store) Delete(ctx context.Context, id core.ID) error {
	return s.WithTransaction(ctx, func(ctx context.Context, tx core.Tx) error {
		return tx.Delete(ctx, id)
	})
}

// WithTransaction implements core.Store. Transactions run one at a time.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx core.Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return core.ErrClosed
	}

	tx := newTransaction(s)
	if err := fn(ctx, tx); err != nil {
		tx.rollback()
		return err
	}
	if err := ctx.Err(); err != nil {
		tx.rollback()
		return err
	}
	return tx.commit()
}

// atOffset requires s.mu.
func (s *Store) atOffset(i int) (core.Record, error) {
	if i < 0 || i >= len(s.records) {
		return core.Record{}, core.ErrNotFound
	}
	return s.records[i], nil
}

// index requires s.mu.
func (s *Store) index(id core.ID) (int, bool) {
	return slices.BinarySearchFunc(s.records, id, func(r core.Record, id core.ID) int {
		switch {
		case r.ID < id:
			return -1
		case r.ID > id:
			return 1
		default:
			return 0
		}
	})
}

// reserve hands out n fresh identities. It requires s.txMu.
func (s *Store) reserve(n int) core.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	first := s.nextID
	s.nextID += core.ID(n)
	return first
}

var _ core.Store = (*Store)(nil)
