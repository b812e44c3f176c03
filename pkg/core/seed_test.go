package core_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/churn/pkg/adapters/memory"
	"github.com/aretw0/churn/pkg/core"
)

func TestSeedIfEmpty_Idempotent(t *testing.T) {
	ctx := t.Context()
	s := memory.New()
	defer s.Close()
	c := core.NewCoordinator(s, core.Config{SeedCount: 25_000})

	assert.False(t, c.IsSeeded())

	n, err := c.SeedIfEmpty(ctx)
	require.NoError(t, err)
	assert.Equal(t, 25_000, n)
	assert.True(t, c.IsSeeded())

	n, err = c.SeedIfEmpty(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 25_000, count)
}

func TestSeedIfEmpty_SampleRecords(t *testing.T) {
	ctx := t.Context()
	s := memory.New()
	defer s.Close()
	c := core.NewCoordinator(s, core.Config{SeedCount: 100})

	before := time.Now()
	_, err := c.SeedIfEmpty(ctx)
	require.NoError(t, err)

	page, err := s.Page(ctx, 0, 100)
	require.NoError(t, err)
	require.Len(t, page, 100)
	for _, r := range page {
		assert.Equal(t, "Firstname", r.FirstName)
		assert.Equal(t, "Lastname", r.LastName)
		assert.Equal(t, "Some sample text", r.Text)
		assert.Nil(t, r.Color)
		assert.False(t, r.Date.After(before))
		assert.True(t, r.Date.After(before.Add(-1_001*time.Second)))
	}
}

func TestSeedIfEmpty_NonEmptyStoreUntouched(t *testing.T) {
	s := seedStore(t, 1)
	c := core.NewCoordinator(s, core.Config{SeedCount: 1000})

	n, err := c.SeedIfEmpty(t.Context())
	require.NoError(t, err)
	assert.Zero(t, n)

	select {
	case <-c.Seeded():
	default:
		t.Fatal("Seeded not closed after finding a populated store")
	}
}

func TestSeedIfEmpty_Disabled(t *testing.T) {
	s := memory.New()
	defer s.Close()
	c := core.NewCoordinator(s, core.Config{})

	n, err := c.SeedIfEmpty(t.Context())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.True(t, c.IsSeeded())
}
