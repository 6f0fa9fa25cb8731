package events

import (
	"context"

	"github.com/okian/rolloff/internal/rolloff"
	"github.com/okian/rolloff/pkg/logger"
	"github.com/okian/rolloff/pkg/metrics"
)

// Sink receives dispatched events. Implementations must not block; slow
// consumers handle their own buffering and shedding.
type Sink interface {
	Deliver(ctx context.Context, ev rolloff.Event)
}

// Dispatcher consumes the event queue and delivers each event to every
// sink in order.
type Dispatcher struct {
	queue  *Queue
	sinks  []Sink
	name   string
	logger logger.Logger

	shutdown chan struct{}
	done     chan struct{}
}

// DispatcherOption applies a configuration option to the Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithName sets the dispatcher name for identification and logging.
func WithName(name string) DispatcherOption {
	return func(d *Dispatcher) {
		if name != "" {
			d.name = name
		}
	}
}

// WithLogger sets a custom logger for the dispatcher.
func WithLogger(l logger.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// NewDispatcher creates a dispatcher delivering queue events to sinks.
func NewDispatcher(queue *Queue, sinks []Sink, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		queue:    queue,
		sinks:    sinks,
		name:     "dispatcher",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Named("dispatcher"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run starts the dispatch loop until ctx is canceled, Shutdown is called,
// or the queue closes.
func (d *Dispatcher) Run(ctx context.Context) {
	defer close(d.done)

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.shutdown:
			return
		case ev, ok := <-d.queue.Events():
			if !ok {
				return
			}
			for _, sink := range d.sinks {
				sink.Deliver(ctx, ev)
			}
			metrics.UpdateEventQueueSize(d.queue.Len())
		}
	}
}

// Shutdown gracefully stops the dispatcher and waits for the loop to exit.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	select {
	case <-d.shutdown:
		// Already shutting down.
	default:
		close(d.shutdown)
	}

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
