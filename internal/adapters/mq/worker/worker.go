// Package worker runs queued judge commands against a dispatcher.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/scoreline/internal/domain/model"
	"github.com/okian/scoreline/pkg/logger"
	"github.com/okian/scoreline/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerMultiplier = 2 // multiplier for runtime.NumCPU()
	poolShutdownTimeout     = 30 * time.Second
)

// Dispatcher executes a single command.
type Dispatcher interface {
	Dispatch(ctx context.Context, c model.Command) error
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, c model.Command) error

// Dispatch calls f.
func (f DispatcherFunc) Dispatch(ctx context.Context, c model.Command) error { //nolint:gocritic // hugeParam: Command is passed by value for channel semantics
	return f(ctx, c)
}

// Queue defines how workers receive commands.
type Queue interface {
	Dequeue(ctx context.Context) <-chan model.Command
}

// Worker processes commands until its queue is drained or it is stopped.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown gracefully stops the worker.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue      Queue
	dispatcher Dispatcher
	name       string

	processed atomic.Int64
	failed    atomic.Int64

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(queue Queue, dispatcher Dispatcher, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:      queue,
		dispatcher: dispatcher,
		name:       "worker",
		shutdown:   make(chan struct{}),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Get().Named("worker")
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop. It returns when the queue channel closes, ctx
// is canceled, or Shutdown is called.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	commands := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case c, ok := <-commands:
			if !ok {
				return
			}
			if err := w.process(ctx, c); err != nil {
				w.logger.Error(ctx, "error processing command", logger.Error(err))
			}
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Processed returns how many commands the worker handled, and how many of
// them failed.
func (w *InMemoryWorker) Processed() (total, failed int64) {
	return w.processed.Load(), w.failed.Load()
}

func (w *InMemoryWorker) process(ctx context.Context, c model.Command) error { //nolint:gocritic // hugeParam: Command is passed by value for channel semantics
	start := time.Now()
	defer func() {
		metrics.RecordWorkerLatency(float64(time.Since(start).Milliseconds()))
	}()

	w.processed.Add(1)
	if err := w.dispatcher.Dispatch(ctx, c); err != nil {
		w.failed.Add(1)
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "dispatch_error")
		return fmt.Errorf("command %s (%s): %w", c.ID, c.Kind, err)
	}
	return nil
}

// Pool manages multiple workers sharing one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	logger  logger.Logger
}

// NewPool creates a new worker pool.
func NewPool(workerCount int, queue Queue, dispatcher Dispatcher, opts ...PoolOption) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}

	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   queue,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logger.Get().Named("worker-pool")
	}

	for i := 0; i < workerCount; i++ {
		p.workers[i] = NewInMemoryWorker(queue, dispatcher,
			WithName("worker-"+strconv.Itoa(i)),
			WithLogger(p.logger),
		)
	}
	metrics.UpdateWorkerCount(workerCount)
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Wait blocks until every worker has returned, typically after the queue
// was closed and drained.
func (p *Pool) Wait() {
	for _, w := range p.workers {
		<-w.done
	}
}

// Processed sums the per-worker counters.
func (p *Pool) Processed() (total, failed int64) {
	for _, w := range p.workers {
		t, f := w.Processed()
		total += t
		failed += f
	}
	return total, failed
}

// Shutdown closes the queue and stops every worker.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, w := range p.workers {
		if err := w.Shutdown(shutdownCtx); err != nil {
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}
	metrics.UpdateWorkerCount(0)
	return nil
}
