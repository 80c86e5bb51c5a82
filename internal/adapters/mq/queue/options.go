package queue

import "time"

// Option applies a configuration option to the InMemoryQueue.
type Option func(*InMemoryQueue)

// WithCapacity sets the maximum number of buffered commands.
func WithCapacity(capacity int) Option {
	return func(q *InMemoryQueue) {
		if capacity > 0 {
			q.capacity = capacity
		}
	}
}

// WithPollInterval sets how often Put re-checks a full queue.
func WithPollInterval(d time.Duration) Option {
	return func(q *InMemoryQueue) {
		if d > 0 {
			q.pollInterval = d
		}
	}
}
