// Package dedupe tracks command ids so redelivered commands run at most once.
package dedupe

import (
	"context"
	"sync"
)

const defaultMaxSize = 50_000

// Deduper records seen command ids.
type Deduper interface {
	// SeenAndRecord reports whether id was already recorded, recording it
	// if not. The check and the write are atomic.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord forgets id so a command that failed can be delivered again.
	Unrecord(ctx context.Context, id string)

	Size() int
}

// Ring is a bounded Deduper. Once full, recording a new id evicts the oldest
// one. A max size of zero or less makes it unbounded.
type Ring struct {
	mu      sync.Mutex
	seen    map[string]int // id -> slot in order, -1 when unbounded
	order   []string       // ring of ids, oldest at next when full
	next    int
	maxSize int
}

// NewRing creates a Ring.
func NewRing(opts ...Option) *Ring {
	r := &Ring{maxSize: defaultMaxSize}
	for _, opt := range opts {
		opt(r)
	}
	r.seen = make(map[string]int)
	if r.maxSize > 0 {
		r.order = make([]string, 0, r.maxSize)
	}
	return r
}

// SeenAndRecord implements Deduper.
func (r *Ring) SeenAndRecord(_ context.Context, id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.seen[id]; ok {
		return true
	}
	if r.maxSize <= 0 {
		r.seen[id] = -1
		return false
	}

	if len(r.order) < r.maxSize {
		r.seen[id] = len(r.order)
		r.order = append(r.order, id)
		return false
	}

	// Full: overwrite the oldest slot. Unrecorded slots hold "".
	if old := r.order[r.next]; old != "" {
		delete(r.seen, old)
	}
	r.order[r.next] = id
	r.seen[id] = r.next
	r.next = (r.next + 1) % r.maxSize
	return false
}

// Unrecord implements Deduper.
func (r *Ring) Unrecord(_ context.Context, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	slot, ok := r.seen[id]
	if !ok {
		return
	}
	delete(r.seen, id)
	if slot >= 0 {
		r.order[slot] = ""
	}
}

// Size returns the number of recorded ids.
func (r *Ring) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}
