package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/scoreline/internal/domain/model"
)

func cmd(id string) model.Command {
	return model.Command{ID: id, Kind: model.CommandSubmit, ContestID: "c1", EntryID: "e1", JudgeID: "j1"}
}

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}

	if !q.Enqueue(ctx, cmd("c1")) {
		t.Error("expected enqueue to succeed")
	}
	if l := q.Len(ctx); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	got := <-q.Dequeue(ctx)
	if got.ID != "c1" {
		t.Errorf("expected c1, got %v", got.ID)
	}
}

func TestInMemoryQueue_Capacity(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if !q.Enqueue(ctx, cmd("a")) || !q.Enqueue(ctx, cmd("b")) {
		t.Fatal("expected first two enqueues to succeed")
	}
	if q.Enqueue(ctx, cmd("c")) {
		t.Error("expected enqueue to fail when full")
	}
	if l := q.Len(ctx); l != 2 {
		t.Errorf("expected length 2, got %d", l)
	}
}

func TestInMemoryQueue_PutWaitsForRoom(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(1), WithPollInterval(time.Millisecond))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := q.Put(ctx, cmd("first")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- q.Put(ctx, cmd("second")) }()

	out := q.Dequeue(ctx)
	if c := <-out; c.ID != "first" {
		t.Errorf("expected first, got %s", c.ID)
	}
	if err := <-done; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c := <-out; c.ID != "second" {
		t.Errorf("expected second, got %s", c.ID)
	}
}

func TestInMemoryQueue_PutHonoursContext(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(1))
	ctx, cancel := context.WithCancel(context.Background())
	_ = q.Put(ctx, cmd("fill"))
	cancel()

	if err := q.Put(ctx, cmd("blocked")); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestInMemoryQueue_ConcurrentAccess(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(100))
	ctx := context.Background()
	producers, perProducer := 10, 100

	var wg sync.WaitGroup
	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < perProducer; j++ {
				if err := q.Put(ctx, cmd(fmt.Sprintf("cmd%d_%d", id, j))); err != nil {
					t.Errorf("put failed: %v", err)
					return
				}
			}
		}(i)
	}

	var mu sync.Mutex
	seen := map[string]struct{}{}
	var consumers sync.WaitGroup
	for i := 0; i < 4; i++ {
		consumers.Add(1)
		go func() {
			defer consumers.Done()
			for c := range q.Dequeue(ctx) {
				mu.Lock()
				seen[c.ID] = struct{}{}
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	_ = q.Close()
	consumers.Wait()

	if len(seen) != producers*perProducer {
		t.Errorf("expected %d distinct commands, got %d", producers*perProducer, len(seen))
	}
}

func TestInMemoryQueue_GracefulShutdown(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(10))
	ctx := context.Background()

	if !q.Enqueue(ctx, cmd("a")) || !q.Enqueue(ctx, cmd("b")) {
		t.Fatal("expected enqueue to succeed")
	}
	if q.IsClosed() {
		t.Error("expected queue to be open initially")
	}

	if err := q.Close(); err != nil {
		t.Errorf("expected close to succeed, got error: %v", err)
	}
	if !q.IsClosed() {
		t.Error("expected queue to be closed after Close()")
	}
	if q.Enqueue(ctx, cmd("late")) {
		t.Error("expected enqueue to fail after closing")
	}
	if err := q.Put(ctx, cmd("late")); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}

	// Buffered commands are still delivered, then the channel closes.
	var drained []string
	timeout := time.After(time.Second)
	out := q.Dequeue(ctx)
	for {
		select {
		case c, ok := <-out:
			if !ok {
				if len(drained) != 2 {
					t.Errorf("expected 2 drained commands, got %v", drained)
				}
				if err := q.Close(); err != nil {
					t.Errorf("expected second close to succeed, got error: %v", err)
				}
				return
			}
			drained = append(drained, c.ID)
		case <-timeout:
			t.Fatal("expected dequeue channel to be closed within timeout")
		}
	}
}
