// Package events fans engine events out to observers through a bounded
// in-memory queue and a dispatcher loop.
//
// Broadcasts are best effort by contract: publishing never blocks the
// engine, and a full queue drops the event rather than stalling a contest.
package events

import (
	"context"
	"sync"

	"github.com/okian/rolloff/internal/rolloff"
	"github.com/okian/rolloff/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultQueueCapacity = 1024
)

// Queue provides non-blocking publish and channel-based consume semantics
// for observer events.
type Queue struct {
	events   chan rolloff.Event
	capacity int
	mu       sync.RWMutex
	closed   bool
}

// QueueOption applies a configuration option to the Queue.
type QueueOption func(*Queue)

// WithCapacity sets the maximum number of buffered events.
func WithCapacity(capacity int) QueueOption {
	return func(q *Queue) {
		if capacity > 0 {
			q.capacity = capacity
		}
	}
}

// NewQueue creates a bounded event queue with configuration options.
func NewQueue(opts ...QueueOption) *Queue {
	q := &Queue{
		capacity: defaultQueueCapacity,
	}
	for _, opt := range opts {
		opt(q)
	}
	q.events = make(chan rolloff.Event, q.capacity)
	metrics.UpdateEventQueueSize(0)
	return q
}

// Publish adds an event to the queue without blocking. Returns false when
// the queue is closed or full; the event is dropped in that case.
func (q *Queue) Publish(ctx context.Context, ev rolloff.Event) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordEventDropped()
		return false
	}

	select {
	case q.events <- ev:
		metrics.RecordEventPublished()
		metrics.UpdateEventQueueSize(len(q.events))
		return true
	case <-ctx.Done():
		metrics.RecordEventDropped()
		return false
	default:
		metrics.RecordEventDropped()
		return false
	}
}

// Events returns the consume side of the queue. The channel closes when
// the queue is closed and drained.
func (q *Queue) Events() <-chan rolloff.Event {
	return q.events
}

// Len returns the current number of queued events.
func (q *Queue) Len() int {
	return len(q.events)
}

// Close stops accepting events and closes the consume channel once
// drained.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	close(q.events)
	return nil
}

// IsClosed reports whether the queue has been closed.
func (q *Queue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
