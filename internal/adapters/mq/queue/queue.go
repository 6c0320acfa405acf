// Package queue is the bounded in-process event bus carrying transaction
// results from the ledger to asynchronous handlers.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/tally/internal/domain/ledger"
	"github.com/okian/tally/pkg/logger"
	"github.com/okian/tally/pkg/metrics"
)

const defaultQueueCapacity = 4096

// Event is one published transaction result.
type Event struct {
	ID         string
	Result     ledger.Result
	EnqueuedAt time.Time
}

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds an event; it never blocks and reports why it refused.
	Enqueue(ctx context.Context, e Event) error

	// Dequeue returns the channel events are read from. It is closed by
	// Close once drained.
	Dequeue() <-chan Event

	Len() int
	Close() error
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	events   chan Event
	capacity int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a new in-memory queue.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.events = make(chan Event, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0, q.capacity)
	return q
}

// Enqueue adds an event to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, e Event) error { //nolint:gocritic // hugeParam: Event must be passed by value for channel semantics
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError("closed")
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordQueueEnqueueError("context_cancelled")
		return err
	}

	select {
	case q.events <- e:
		metrics.RecordQueueEnqueue()
		metrics.UpdateQueueSize(len(q.events), q.capacity)
		return nil
	default:
		metrics.RecordQueueEnqueueError("queue_full")
		return ErrFull
	}
}

// Dequeue returns the receive side of the queue.
func (q *InMemoryQueue) Dequeue() <-chan Event {
	return q.events
}

// Len returns the current number of queued events.
func (q *InMemoryQueue) Len() int {
	size := len(q.events)
	metrics.UpdateQueueSize(size, q.capacity)
	return size
}

// Close stops accepting events. Buffered events remain readable.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	close(q.events)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

// Publisher adapts a Queue to ledger.EventSink. A refused event is dropped
// and logged; publishing never blocks a mutation.
type Publisher struct {
	queue  Queue
	logger logger.Logger
}

// NewPublisher creates a Publisher over q.
func NewPublisher(q Queue, opts ...PublisherOption) *Publisher {
	p := &Publisher{queue: q}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logger.Get().Named("publisher")
	}
	return p
}

// Publish implements ledger.EventSink.
func (p *Publisher) Publish(ctx context.Context, r ledger.Result) {
	e := Event{ID: uuid.NewString(), Result: r, EnqueuedAt: time.Now()}
	if err := p.queue.Enqueue(context.WithoutCancel(ctx), e); err != nil {
		p.logger.Warn(ctx, "dropping transaction event",
			logger.String("account", r.Account),
			logger.String("kind", string(r.Kind)),
			logger.Error(err),
		)
	}
}
