// Package queue carries judge commands from producers to the worker pool.
//
// The in-memory implementation is a bounded buffered channel. Enqueue never
// blocks; Put waits for room.
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/scoreline/internal/domain/model"
	"github.com/okian/scoreline/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultQueueCapacity = 10_000
	defaultPollInterval  = time.Millisecond
)

// Command is the payload flowing through the queue.
type Command = model.Command

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a command to the queue.
	// Returns false if the queue is full or closed.
	Enqueue(ctx context.Context, c Command) bool

	// Put adds a command, waiting while the queue is full.
	Put(ctx context.Context, c Command) error

	// Dequeue returns a channel that receives commands as they become
	// available. The channel is closed once the queue is closed and drained.
	Dequeue(ctx context.Context) <-chan Command

	// Len returns the current number of queued commands.
	Len(ctx context.Context) int

	// Close stops accepting commands. Buffered commands are still delivered.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	commands     chan Command
	capacity     int
	pollInterval time.Duration

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity:     defaultQueueCapacity,
		pollInterval: defaultPollInterval,
	}
	for _, opt := range opts {
		opt(q)
	}
	q.commands = make(chan Command, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)

	return q
}

// Enqueue adds a command to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, c Command) bool { //nolint:gocritic // hugeParam: Command is passed by value for channel semantics
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "closed")
		return false
	}

	select {
	case q.commands <- c:
		metrics.RecordQueueEnqueue()
		metrics.UpdateQueueSize(len(q.commands))
		return true
	case <-ctx.Done():
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "context_cancelled")
		return false
	default:
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "queue_full")
		return false
	}
}

// Put adds a command, polling while the queue is full.
func (q *InMemoryQueue) Put(ctx context.Context, c Command) error { //nolint:gocritic // hugeParam: Command is passed by value for channel semantics
	t := time.NewTicker(q.pollInterval)
	defer t.Stop()
	for {
		if q.Enqueue(ctx, c) {
			return nil
		}
		if q.IsClosed() {
			return ErrClosed
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("queue put: %w", ctx.Err())
		case <-t.C:
		}
	}
}

// Dequeue returns a channel that will receive commands as they become available.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Command {
	out := make(chan Command)
	go func() {
		defer close(out)
		for c := range q.commands {
			select {
			case out <- c:
				metrics.RecordQueueDequeue()
				metrics.UpdateQueueSize(len(q.commands))
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Len returns the current number of queued commands.
func (q *InMemoryQueue) Len(_ context.Context) int {
	size := len(q.commands)
	metrics.UpdateQueueSize(size)
	return size
}

// Close stops accepting commands.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.commands)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
