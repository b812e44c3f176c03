package core

import "errors"

// Common errors.
var (
	// ErrNotFound is returned by stores when an offset or identity does not
	// resolve to a record. Mutations treat it as a silent miss.
	ErrNotFound = errors.New("record not found")

	// ErrQueueFull is returned by Queue.Enqueue when a depth limit is set and reached.
	ErrQueueFull = errors.New("mutation queue is full")

	// ErrClosed is returned by operations on a closed store or transaction.
	ErrClosed = errors.New("store is closed")

	// ErrInvalidRange is returned when a visible range selects no offsets.
	ErrInvalidRange = errors.New("invalid visible range")

	// ErrOracleUnavailable is returned by visible-range targeting when no
	// provider is registered or the provider has no valid range yet.
	ErrOracleUnavailable = errors.New("visible range unavailable")

	// ErrEmptyStore is returned by random targeting when the store holds no records.
	ErrEmptyStore = errors.New("store is empty")

	// ErrMutationPanic wraps a panic raised while a mutation executed.
	ErrMutationPanic = errors.New("mutation panicked")
)
