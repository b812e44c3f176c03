package core

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultSeedCount is the number of sample records a fresh store receives.
const DefaultSeedCount = 1_000_000

// seedChunk bounds the records handed to one InsertMany call while seeding.
const seedChunk = 10_000

// SeedIfEmpty fills an empty store with SeedCount sample records inside one
// transaction and returns how many were inserted. A store that already holds
// a record is left alone. Either way Seeded is closed on success.
func (c *Coordinator) SeedIfEmpty(ctx context.Context) (int, error) {
	if c.config.SeedCount <= 0 {
		c.markSeeded()
		return 0, nil
	}

	_, err := c.store.GetFirst(ctx)
	if err == nil {
		c.markSeeded()
		return 0, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return 0, fmt.Errorf("check store for records: %w", err)
	}

	c.logger.Info("seeding empty store", "records", c.config.SeedCount)
	started := time.Now()
	now := started

	err = c.store.WithTransaction(ctx, func(ctx context.Context, tx Tx) error {
		batch := make([]Record, 0, min(seedChunk, c.config.SeedCount))
		for inserted := 0; inserted < c.config.SeedCount; inserted += len(batch) {
			batch = batch[:0]
			for range min(seedChunk, c.config.SeedCount-inserted) {
				batch = append(batch, NewSampleRecord(now))
			}
			if err := tx.InsertMany(ctx, batch...); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("seed store: %w", err)
	}

	c.logger.Info("store seeded", "records", c.config.SeedCount, "duration", time.Since(started))
	c.markSeeded()
	return c.config.SeedCount, nil
}

func (c *Coordinator) markSeeded() {
	c.seedOnce.Do(func() { close(c.seeded) })
}

// IsSeeded reports whether Seeded has been closed.
func (c *Coordinator) IsSeeded() bool {
	select {
	case <-c.seeded:
		return true
	default:
		return false
	}
}
