package core

import (
	"sync"
	"sync/atomic"
)

// Queue buffers pending mutations between producers and the flush loop.
//
// It is an append-only slice guarded by one mutex and swapped wholesale on
// drain. Order is irrelevant to consumers. Contents are not persisted.
type Queue struct {
	mu       sync.Mutex
	buf      []Mutation
	maxDepth int

	// depth mirrors len(buf) so Len never waits on an in-flight Flush.
	depth atomic.Int64
}

// NewQueue creates a queue. A maxDepth of zero means unbounded.
func NewQueue(maxDepth int) *Queue {
	return &Queue{maxDepth: maxDepth}
}

// Enqueue appends m. It blocks only while the lock is held, which includes
// the whole of an in-flight Flush. When a depth limit is set and reached the
// mutation is dropped and ErrQueueFull is returned.
func (q *Queue) Enqueue(m Mutation) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.maxDepth > 0 && len(q.buf) >= q.maxDepth {
		return ErrQueueFull
	}
	q.buf = append(q.buf, m)
	q.depth.Store(int64(len(q.buf)))
	return nil
}

// DrainAll atomically takes every pending mutation, leaving the queue empty.
func (q *Queue) DrainAll() []Mutation {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.swap()
}

// Flush drains the queue and calls fn with the drained batch while still
// holding the lock, so nothing can be enqueued until fn returns. Mutations
// offered during fn wait and land in the next batch.
func (q *Queue) Flush(fn func(batch []Mutation) error) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return fn(q.swap())
}

// Len returns the number of pending mutations. It does not take the lock.
func (q *Queue) Len() int {
	return int(q.depth.Load())
}

func (q *Queue) swap() []Mutation {
	batch := q.buf
	q.buf = make([]Mutation, 0, len(batch))
	q.depth.Store(0)
	return batch
}
