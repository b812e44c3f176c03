package sqlstore

import (
	"context"
	"database/sql"
	"sync"

	"github.com/aretw0/churn/pkg/core"
)

// transaction serializes access to one *sql.Tx, which runs on a single
// connection, so the goroutines of a flush cycle can share it.
type transaction struct {
	mu sync.Mutex
	tx *sql.Tx
	q  *queries
}

func (t *transaction) Count(ctx context.Context) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.q.Count(ctx, t.tx)
}

func (t *transaction) GetByOffset(ctx context.Context, i int) (core.Record, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.q.GetByOffset(ctx, t.tx, i)
}

func (t *transaction) GetFirst(ctx context.Context) (core.Record, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.q.GetFirst(ctx, t.tx)
}

func (t *transaction) Get(ctx context.Context, id core.ID) (core.Record, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.q.Get(ctx, t.tx, id)
}

func (t *transaction) InsertMany(ctx context.Context, records ...core.Record) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.q.InsertMany(ctx, t.tx, records)
}

func (t *transaction) Update(ctx context.Context, r core.Record) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.q.Update(ctx, t.tx, r)
}

func (t *transaction) Delete(ctx context.Context, id core.ID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.q.Delete(ctx, t.tx, id)
}

var _ core.Tx = (*transaction)(nil)
