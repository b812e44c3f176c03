package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/aretw0/churn/pkg/core"
)

// transaction stages writes against the committed records.
//
// Reads see the records as they were when the transaction opened, overlaid
// with the transaction's own writes. Offsets always address the committed
// ordering, so two mutations aimed at the same offset hit the same record and
// the second one misses once the first has deleted it.
type transaction struct {
	store *Store

	mu      sync.Mutex
	updated map[core.ID]core.Record
	deleted map[core.ID]bool
	// inserted is ordered by identity; identities are reserved at staging.
	inserted []core.Record
	closed   bool
}

func newTransaction(s *Store) *transaction {
	return &transaction{
		store:   s,
		updated: make(map[core.ID]core.Record),
		deleted: make(map[core.ID]bool),
	}
}

func (t *transaction) Count(ctx context.Context) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, core.ErrClosed
	}

	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	return len(t.store.records) - len(t.deleted) + len(t.inserted), nil
}

func (t *transaction) GetByOffset(ctx context.Context, i int) (core.Record, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return core.Record{}, core.ErrClosed
	}

	t.store.mu.RLock()
	r, err := t.store.atOffset(i)
	t.store.mu.RUnlock()
	if err != nil {
		return core.Record{}, err
	}
	return t.overlay(r)
}

func (t *transaction) GetFirst(ctx context.Context) (core.Record, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return core.Record{}, core.ErrClosed
	}

	t.store.mu.RLock()
	for _, r := range t.store.records {
		if t.deleted[r.ID] {
			continue
		}
		t.store.mu.RUnlock()
		return t.overlay(r)
	}
	t.store.mu.RUnlock()

	if len(t.inserted) > 0 {
		return t.inserted[0], nil
	}
	return core.Record{}, core.ErrNotFound
}

func (t *transaction) Get(ctx context.Context, id core.ID) (core.Record, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return core.Record{}, core.ErrClosed
	}

	if i, ok := t.insertedIndex(id); ok {
		return t.inserted[i], nil
	}

	t.store.mu.RLock()
	i, ok := t.store.index(id)
	var r core.Record
	if ok {
		r = t.store.records[i]
	}
	t.store.mu.RUnlock()
	if !ok {
		return core.Record{}, core.ErrNotFound
	}
	return t.overlay(r)
}

func (t *transaction) InsertMany(ctx context.Context, records ...core.Record) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return core.ErrClosed
	}
	if len(records) == 0 {
		return nil
	}

	id := t.store.reserve(len(records))
	for _, r := range records {
		r.ID = id
		t.inserted = append(t.inserted, r)
		id++
	}
	return nil
}

func (t *transaction) Update(ctx context.Context, r core.Record) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return core.ErrClosed
	}

	if i, ok := t.insertedIndex(r.ID); ok {
		t.inserted[i] = r
		return nil
	}
	if t.deleted[r.ID] || !t.committed(r.ID) {
		return core.ErrNotFound
	}
	t.updated[r.ID] = r
	return nil
}

func (t *transaction) Delete(ctx context.Context, id core.ID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return core.ErrClosed
	}

	if i, ok := t.insertedIndex(id); ok {
		t.inserted = slices.Delete(t.inserted, i, i+1)
		return nil
	}
	if t.deleted[id] || !t.committed(id) {
		return core.ErrNotFound
	}
	t.deleted[id] = true
	delete(t.updated, id)
	return nil
}

// commit applies every staged write to the store in one step.
func (t *transaction) commit() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return fmt.Errorf("transaction already closed")
	}
	t.closed = true

	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return core.ErrClosed
	}

	for id, r := range t.updated {
		if i, ok := s.index(id); ok {
			s.records[i] = r
		}
	}
	if len(t.deleted) > 0 {
		s.records = slices.DeleteFunc(s.records, func(r core.Record) bool {
			return t.deleted[r.ID]
		})
	}
	s.records = append(s.records, t.inserted...)
	s.commits++
	return nil
}

func (t *transaction) rollback() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.updated = nil
	t.deleted = nil
	t.inserted = nil
	t.closed = true
}

// overlay requires t.mu.
func (t *transaction) overlay(r core.Record) (core.Record, error) {
	if t.deleted[r.ID] {
		return core.Record{}, core.ErrNotFound
	}
	if staged, ok := t.updated[r.ID]; ok {
		return staged, nil
	}
	return r, nil
}

// committed requires t.mu.
func (t *transaction) committed(id core.ID) bool {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	_, ok := t.store.index(id)
	return ok
}

// insertedIndex requires t.mu.
func (t *transaction) insertedIndex(id core.ID) (int, bool) {
	if len(t.inserted) == 0 || id < t.inserted[0].ID {
		return 0, false
	}
	return slices.BinarySearchFunc(t.inserted, id, func(r core.Record, id core.ID) int {
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

var _ core.Tx = (*transaction)(nil)
