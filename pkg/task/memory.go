package task

import (
	"context"
	"errors"
	"sync"
)

// ErrQueueClosed is returned by Enqueue after Close.
var ErrQueueClosed = errors.New("task queue is closed")

// MemoryQueue is an in-process Queue for tests and single-binary operation.
// Delivery is exactly-once within the process; Ack is a no-op.
type MemoryQueue struct {
	mu     sync.Mutex
	ch     chan Task
	closed bool
}

// NewMemoryQueue creates a queue buffering up to size tasks.
func NewMemoryQueue(size int) *MemoryQueue {
	return &MemoryQueue{ch: make(chan Task, size)}
}

// Enqueue publishes a task, blocking when the buffer is full.
func (q *MemoryQueue) Enqueue(ctx context.Context, t Task) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.mu.Unlock()

	select {
	case q.ch <- t:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume returns the delivery channel. The channel closes when the queue is
// closed and drained.
func (q *MemoryQueue) Consume(ctx context.Context) (<-chan Task, error) {
	return q.ch, nil
}

// Close stops the queue. Pending tasks remain consumable until drained.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
	return nil
}

// Len reports the number of buffered tasks. Intended for tests.
func (q *MemoryQueue) Len() int {
	return len(q.ch)
}
