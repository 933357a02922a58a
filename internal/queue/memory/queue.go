// Package memory provides the in-process sweep queue.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gpuwatch/gpu-stock-tracker/internal/stock"
)

// Queue is a bounded in-memory queue with context-aware operations.
type Queue struct {
	ch      chan stock.QueueItem
	closeMu sync.Mutex
	closed  bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 16
	}
	return &Queue{
		ch: make(chan stock.QueueItem, capacity),
	}
}

// Enqueue pushes an item into the queue or returns if the context ends.
func (q *Queue) Enqueue(ctx context.Context, item stock.QueueItem) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- item:
		return nil
	}
}

// Dequeue pops the next item, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (stock.QueueItem, error) {
	select {
	case <-ctx.Done():
		return stock.QueueItem{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case item, ok := <-q.ch:
		if !ok {
			return stock.QueueItem{}, errors.New("queue closed")
		}
		return item, nil
	}
}

// Close closes the underlying channel for shutdown.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
