// Package memory provides the in-process crawl frontier.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JakeFAU/headless-page-crawler/internal/crawler"
)

var (
	// ErrClosed is returned by Dequeue once the queue is closed and drained,
	// and by Enqueue after Close.
	ErrClosed = errors.New("queue closed")
	// ErrFull is returned by TryEnqueue when no capacity is left.
	ErrFull = errors.New("queue full")
)

// Queue is a bounded in-memory frontier with context-aware operations.
type Queue struct {
	ch      chan crawler.Target
	closeMu sync.RWMutex
	closed  bool
}

var _ crawler.Queue = (*Queue)(nil)

// NewQueue constructs a queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue{
		ch: make(chan crawler.Target, capacity),
	}
}

// Enqueue pushes a target or returns if the context ends.
func (q *Queue) Enqueue(ctx context.Context, target crawler.Target) error {
	q.closeMu.RLock()
	defer q.closeMu.RUnlock()
	if q.closed {
		return ErrClosed
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- target:
		return nil
	}
}

// TryEnqueue pushes a target without blocking.
func (q *Queue) TryEnqueue(target crawler.Target) error {
	q.closeMu.RLock()
	defer q.closeMu.RUnlock()
	if q.closed {
		return ErrClosed
	}
	select {
	case q.ch <- target:
		return nil
	default:
		return ErrFull
	}
}

// Dequeue pops the next target, respecting context cancellation. Targets
// queued before Close are still delivered.
func (q *Queue) Dequeue(ctx context.Context) (crawler.Target, error) {
	select {
	case <-ctx.Done():
		return crawler.Target{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case target, ok := <-q.ch:
		if !ok {
			return crawler.Target{}, ErrClosed
		}
		return target, nil
	}
}

// Len reports how many targets are waiting.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close closes the underlying channel. It is safe to call more than once.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
