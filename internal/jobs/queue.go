package jobs

import (
	"context"
	"sync"
)

// Queue is an unbounded in-memory FIFO of WorkItems. Enqueue never blocks
// and never rejects; Dequeue blocks until an item is available or the
// context is cancelled. FIFO order is the only ordering guarantee.
type Queue struct {
	mu    sync.Mutex
	items []WorkItem
	ready chan struct{}
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{ready: make(chan struct{}, 1)}
}

// Enqueue appends an item to the tail. Safe for concurrent producers.
func (q *Queue) Enqueue(item WorkItem) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()
	q.signal()
}

// Dequeue removes and returns the head item, blocking until one is
// available. It returns ctx.Err() if the context is cancelled first.
func (q *Queue) Dequeue(ctx context.Context) (WorkItem, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			q.items = q.items[1:]
			remaining := len(q.items)
			q.mu.Unlock()
			if remaining > 0 {
				// The ready signal coalesces; re-arm it for the next consumer pass.
				q.signal()
			}
			return item, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return WorkItem{}, ctx.Err()
		case <-q.ready:
		}
	}
}

// Len reports the number of queued items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
