// Package storetest holds the conformance tests every core.Store adapter
// must pass.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/churn/pkg/core"
)

// Factory returns a fresh, initialized, empty store. The suite closes it.
type Factory func(t *testing.T) core.Store

// Run executes the conformance suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("EmptyStore", func(t *testing.T) { testEmpty(t, newStore(t)) })
	t.Run("InsertAssignsIncreasingIDs", func(t *testing.T) { testInsertIDs(t, newStore(t)) })
	t.Run("IDsAreNeverReused", func(t *testing.T) { testNoReuse(t, newStore(t)) })
	t.Run("OffsetAndPage", func(t *testing.T) { testOffsetAndPage(t, newStore(t)) })
	t.Run("UpdateAndDelete", func(t *testing.T) { testUpdateDelete(t, newStore(t)) })
	t.Run("TransactionCommits", func(t *testing.T) { testTxCommit(t, newStore(t)) })
	t.Run("TransactionRollsBack", func(t *testing.T) { testTxRollback(t, newStore(t)) })
	t.Run("TransactionIsConcurrentSafe", func(t *testing.T) { testTxConcurrent(t, newStore(t)) })
	t.Run("RoundTripsFields", func(t *testing.T) { testFields(t, newStore(t)) })
	t.Run("ClosedStore", func(t *testing.T) { testClosed(t, newStore(t)) })
}

func sample(text string) core.Record {
	return core.Record{
		FirstName: "Firstname",
		LastName:  "Lastname",
		Date:      time.UnixMilli(1_700_000_000_000),
		Text:      text,
	}
}

func ids(records []core.Record) []core.ID {
	out := make([]core.ID, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func testEmpty(t *testing.T, s core.Store) {
	defer s.Close()
	ctx := context.Background()

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = s.GetFirst(ctx)
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = s.GetByOffset(ctx, 0)
	assert.ErrorIs(t, err, core.ErrNotFound)

	page, err := s.Page(ctx, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, page)
}

func testInsertIDs(t *testing.T, s core.Store) {
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.InsertMany(ctx, sample("a"), sample("b"), sample("c")))

	page, err := s.Page(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, page, 3)
	for i := 1; i < len(page); i++ {
		assert.Greater(t, page[i].ID, page[i-1].ID)
	}
	assert.Equal(t, []string{"a", "b", "c"}, []string{page[0].Text, page[1].Text, page[2].Text})
}

func testNoReuse(t *testing.T, s core.Store) {
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.InsertMany(ctx, sample("a"), sample("b")))
	last, err := s.GetByOffset(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, last.ID))

	require.NoError(t, s.InsertMany(ctx, sample("c")))
	fresh, err := s.GetByOffset(ctx, 1)
	require.NoError(t, err)
	assert.Greater(t, fresh.ID, last.ID)
}

func testOffsetAndPage(t *testing.T, s core.Store) {
	defer s.Close()
	ctx := context.Background()

	records := make([]core.Record, 25)
	for i := range records {
		records[i] = sample("r")
	}
	require.NoError(t, s.InsertMany(ctx, records...))

	all, err := s.Page(ctx, 0, 100)
	require.NoError(t, err)
	require.Len(t, all, 25)

	for i, want := range all {
		got, err := s.GetByOffset(ctx, i)
		require.NoError(t, err)
		assert.Equal(t, want.ID, got.ID)
	}

	_, err = s.GetByOffset(ctx, 25)
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = s.GetByOffset(ctx, -1)
	assert.ErrorIs(t, err, core.ErrNotFound)

	page, err := s.Page(ctx, 20, 10)
	require.NoError(t, err)
	assert.Equal(t, ids(all[20:]), ids(page))

	page, err = s.Page(ctx, 30, 10)
	require.NoError(t, err)
	assert.Empty(t, page)

	first, err := s.GetFirst(ctx)
	require.NoError(t, err)
	assert.Equal(t, all[0].ID, first.ID)
}

func testUpdateDelete(t *testing.T, s core.Store) {
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.InsertMany(ctx, sample("a")))
	r, err := s.GetFirst(ctx)
	require.NoError(t, err)

	require.NoError(t, s.Update(ctx, r.WithColor(2).Toggled()))
	got, err := s.Get(ctx, r.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Color)
	assert.Equal(t, 2, *got.Color)
	assert.Equal(t, !r.IsRead, got.IsRead)

	require.NoError(t, s.Delete(ctx, r.ID))
	_, err = s.Get(ctx, r.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)

	assert.ErrorIs(t, s.Delete(ctx, r.ID), core.ErrNotFound)
	assert.ErrorIs(t, s.Update(ctx, r), core.ErrNotFound)
}

func testTxCommit(t *testing.T, s core.Store) {
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.InsertMany(ctx, sample("a"), sample("b"), sample("c")))
	before, err := s.Page(ctx, 0, 10)
	require.NoError(t, err)

	err = s.WithTransaction(ctx, func(ctx context.Context, tx core.Tx) error {
		first, err := tx.GetByOffset(ctx, 0)
		if err != nil {
			return err
		}
		if err := tx.Update(ctx, first.WithColor(1)); err != nil {
			return err
		}
		second, err := tx.GetByOffset(ctx, 1)
		if err != nil {
			return err
		}
		if err := tx.Delete(ctx, second.ID); err != nil {
			return err
		}
		if _, err := tx.Get(ctx, second.ID); !errors.Is(err, core.ErrNotFound) {
			return errors.New("deleted record still visible inside transaction")
		}
		return tx.InsertMany(ctx, sample("d"))
	})
	require.NoError(t, err)

	after, err := s.Page(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, after, 3)
	assert.Equal(t, before[0].ID, after[0].ID)
	require.NotNil(t, after[0].Color)
	assert.Equal(t, 1, *after[0].Color)
	assert.Equal(t, before[2].ID, after[1].ID)
	assert.Equal(t, "d", after[2].Text)
	assert.Greater(t, after[2].ID, before[2].ID)
}

func testTxRollback(t *testing.T, s core.Store) {
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.InsertMany(ctx, sample("a"), sample("b")))
	before, err := s.Page(ctx, 0, 10)
	require.NoError(t, err)

	boom := errors.New("boom")
	err = s.WithTransaction(ctx, func(ctx context.Context, tx core.Tx) error {
		if err := tx.Delete(ctx, before[0].ID); err != nil {
			return err
		}
		if err := tx.Update(ctx, before[1].WithColor(3)); err != nil {
			return err
		}
		if err := tx.InsertMany(ctx, sample("c")); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	after, err := s.Page(ctx, 0, 10)
	require.NoError(t, err)
	if diff := cmp.Diff(before, after); diff != "" {
		t.Errorf("rolled back transaction changed the store (-before +after):\n%s", diff)
	}
}

func testTxConcurrent(t *testing.T, s core.Store) {
	defer s.Close()
	ctx := context.Background()

	const n = 50
	records := make([]core.Record, n)
	for i := range records {
		records[i] = sample("r")
	}
	require.NoError(t, s.InsertMany(ctx, records...))

	all, err := s.Page(ctx, 0, n)
	require.NoError(t, err)
	require.Len(t, all, n)

	err = s.WithTransaction(ctx, func(ctx context.Context, tx core.Tx) error {
		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i := range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				r, err := tx.Get(ctx, all[i].ID)
				if err != nil {
					errs <- err
					return
				}
				if i%2 == 0 {
					errs <- tx.Delete(ctx, r.ID)
					return
				}
				errs <- tx.Update(ctx, r.Toggled())
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			if err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, n/2, count)
}

func testFields(t *testing.T, s core.Store) {
	defer s.Close()
	ctx := context.Background()

	in := core.NewSampleRecord(time.Now()).WithColor(0)
	require.NoError(t, s.InsertMany(ctx, in))

	out, err := s.GetFirst(ctx)
	require.NoError(t, err)
	assert.NotZero(t, out.ID)

	in.ID = out.ID
	if diff := cmp.Diff(in, out, cmp.Comparer(func(a, b time.Time) bool { return a.Equal(b) })); diff != "" {
		t.Errorf("record did not round trip (-in +out):\n%s", diff)
	}
}

func testClosed(t *testing.T, s core.Store) {
	ctx := context.Background()
	require.NoError(t, s.Close())

	_, err := s.Count(ctx)
	assert.Error(t, err)

	err = s.WithTransaction(ctx, func(ctx context.Context, tx core.Tx) error { return nil })
	assert.Error(t, err)
}
