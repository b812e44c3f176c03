// Package churn is the Composition Root for the churn engine.
//
// It connects the core coordinator (Domain Layer) with the storage adapters
// (Persistence Layer) using the Hexagonal Architecture pattern.
//
// Churn keeps a record set under continuous background modification.
// Producers build mutations on their own timers and enqueue them. A single
// flush loop drains the queue and applies every drained mutation inside one
// store transaction, so readers observe whole batches or nothing.
//
// Features:
//
//   - **Batched Writes**: at most one open transaction, however many producers.
//   - **Positional Targets**: mutations address records by offset, resolved at flush time.
//   - **Visible Range Oracle**: producers can focus on what a viewer is looking at.
//   - **Adapters**: in-memory, SQLite (modernc) and Postgres (pgx) via `core.Store`.
//
// Usage:
//
//	c, err := churn.New(ctx, "./churn.db",
//		churn.WithSeedCount(100_000),
//		churn.WithLogger(logger),
//	)
//
//	// Run until ctx is cancelled
//	err = c.Run(ctx)
package churn
