package core

import "context"

// Reader is the read side shared by stores and transactions.
type Reader interface {
	// Count returns the number of records currently stored.
	Count(ctx context.Context) (int, error)
	// GetByOffset returns the record at position i of the identity ordering.
	// It returns ErrNotFound when i is out of range.
	GetByOffset(ctx context.Context, i int) (Record, error)
	// GetFirst returns the record with the lowest identity, or ErrNotFound.
	GetFirst(ctx context.Context) (Record, error)
	// Get returns the record with the given identity, or ErrNotFound.
	Get(ctx context.Context, id ID) (Record, error)
}

// Writer is the write side shared by stores and transactions.
type Writer interface {
	// InsertMany stores new records. Identities are assigned by the store;
	// any ID set on the input is ignored.
	InsertMany(ctx context.Context, records ...Record) error
	// Update replaces the record with r.ID. It returns ErrNotFound if the
	// record no longer exists.
	Update(ctx context.Context, r Record) error
	// Delete removes the record with the given identity. It returns
	// ErrNotFound if the record no longer exists.
	Delete(ctx context.Context, id ID) error
}

// Tx is a unit of work opened by Store.WithTransaction.
// Implementations must be safe for concurrent use by the goroutines of the
// enclosing block.
type Tx interface {
	Reader
	Writer
}

// Store defines the contract for the record store.
// Adhering to this interface keeps the coordinator independent of the
// underlying storage engine (memory, SQLite, Postgres).
type Store interface {
	Reader
	Writer

	// Page returns up to limit records starting at offset, in identity order.
	Page(ctx context.Context, offset, limit int) ([]Record, error)

	// WithTransaction runs fn inside one transaction. If fn returns nil the
	// transaction commits all of its writes; otherwise none are applied.
	WithTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// Initialize ensures the underlying storage is ready (schema, directories).
	Initialize(ctx context.Context) error

	// Close releases the resources held by the store.
	Close() error
}
