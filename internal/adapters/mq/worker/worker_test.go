package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	queue "github.com/okian/scoreline/internal/adapters/mq/queue"
	worker "github.com/okian/scoreline/internal/adapters/mq/worker"
	model "github.com/okian/scoreline/internal/domain/model"
	logging "github.com/okian/scoreline/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

// recorder is a Dispatcher that remembers what it saw.
type recorder struct {
	mu   sync.Mutex
	seen []string
	fail map[string]error
}

func newRecorder() *recorder { return &recorder{fail: map[string]error{}} }

func (r *recorder) Dispatch(_ context.Context, c model.Command) error { //nolint:gocritic // hugeParam: Command is passed by value for channel semantics
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, c.ID)
	return r.fail[c.ID]
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}

func command(id string) model.Command {
	return model.Command{ID: id, Kind: model.CommandSubmit, ContestID: "c1", EntryID: "e1", JudgeID: "j-" + id}
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a worker on a queue", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(10))
		rec := newRecorder()
		w := worker.NewInMemoryWorker(q, rec, worker.WithName("w-test"), worker.WithLogger(logging.Nop()))

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		convey.Convey("When commands are queued and the queue is closed", func() {
			rec.fail["bad"] = errors.New("boom")
			for _, id := range []string{"a", "bad", "b"} {
				convey.So(q.Enqueue(ctx, command(id)), convey.ShouldBeTrue)
			}
			_ = q.Close()

			w.Run(ctx)

			convey.Convey("Then every command is dispatched once", func() {
				convey.So(rec.seen, convey.ShouldResemble, []string{"a", "bad", "b"})
			})

			convey.Convey("Then failures are counted", func() {
				total, failed := w.Processed()
				convey.So(total, convey.ShouldEqual, 3)
				convey.So(failed, convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When shutting down a running worker", func() {
			go w.Run(ctx)
			err := w.Shutdown(ctx)

			convey.Convey("Then it should stop gracefully", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(w.Shutdown(ctx), convey.ShouldBeNil)
			})
		})

		convey.Convey("When its context is cancelled", func() {
			runCtx, stop := context.WithCancel(ctx)
			done := make(chan struct{})
			go func() {
				w.Run(runCtx)
				close(done)
			}()
			stop()

			convey.Convey("Then the worker should stop", func() {
				select {
				case <-done:
				case <-time.After(time.Second):
					convey.So("worker did not stop", convey.ShouldBeEmpty)
				}
			})
		})
	})
}

func TestWorkerPool(t *testing.T) {
	convey.Convey("Given a pool of workers", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(1000))
		rec := newRecorder()
		pool := worker.NewPool(4, q, rec, worker.WithPoolLogger(logging.Nop()))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		convey.Convey("Then it has the requested size", func() {
			convey.So(pool.Size(), convey.ShouldEqual, 4)
		})

		convey.Convey("A non-positive count falls back to a CPU-based default", func() {
			convey.So(worker.NewPool(0, q, rec).Size(), convey.ShouldBeGreaterThan, 0)
		})

		convey.Convey("When many commands are processed concurrently", func() {
			pool.Start(ctx)
			const n = 500
			for i := 0; i < n; i++ {
				convey.So(q.Put(ctx, command(fmt.Sprintf("cmd-%d", i))), convey.ShouldBeNil)
			}
			_ = q.Close()
			pool.Wait()

			convey.Convey("Then all commands are dispatched exactly once", func() {
				convey.So(rec.count(), convey.ShouldEqual, n)
				unique := map[string]struct{}{}
				for _, id := range rec.seen {
					unique[id] = struct{}{}
				}
				convey.So(unique, convey.ShouldHaveLength, n)
				total, failed := pool.Processed()
				convey.So(total, convey.ShouldEqual, n)
				convey.So(failed, convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When shutting down", func() {
			pool.Start(ctx)
			err := pool.Shutdown(ctx)

			convey.Convey("Then it should shutdown gracefully and close the queue", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(q.IsClosed(), convey.ShouldBeTrue)
			})
		})
	})
}

func TestDispatcherFunc(t *testing.T) {
	convey.Convey("Given a function dispatcher", t, func() {
		called := ""
		d := worker.DispatcherFunc(func(_ context.Context, c model.Command) error {
			called = c.ID
			return nil
		})
		convey.So(d.Dispatch(context.Background(), command("x")), convey.ShouldBeNil)
		convey.So(called, convey.ShouldEqual, "x")
	})
}
