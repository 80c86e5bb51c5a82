// Package simulate drives the score service with many concurrent judges and
// checks the aggregate invariants afterwards.
package simulate

import (
	"errors"
	"time"
)

// ErrInvariantViolated is returned by Run when read-back verification finds
// an inconsistent entry.
var ErrInvariantViolated = errors.New("score invariant violated")

// Config sizes a simulation run.
type Config struct {
	Judges    int // judges scoring every entry
	Entries   int // entries in the simulated contest
	Rounds    int // rounds of revisions after the initial submissions
	Workers   int // concurrent workers draining the command queue
	QueueSize int // command queue capacity

	// DeleteEvery turns every n-th revision into a delete. Zero disables.
	DeleteEvery int
	// InvalidEvery makes every n-th command carry an out-of-range value.
	// Zero disables.
	InvalidEvery int
	// RedeliverEvery replays every n-th command, with its original id, after
	// all rounds. Replays must be dropped by the dispatcher. Zero disables.
	RedeliverEvery int

	Seed    uint64 // generator seed; zero picks one from the clock
	Verbose bool
}

// Stats holds run counters.
type Stats struct {
	Commands   int
	Submitted  int64
	Updated    int64
	Deleted    int64
	Rejected   int64 // validation failures
	Busy       int64 // lock retries exhausted
	NotFound   int64 // revisions of a score that was deleted first
	Duplicates int64 // redelivered commands that were dropped
	Failed     int64 // unexpected errors
	Violations []string
	StartTime  time.Time
	Duration   time.Duration
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.Workers <= 0 {
		out.Workers = 1
	}
	if out.QueueSize <= 0 {
		out.QueueSize = 1
	}
	if out.Seed == 0 {
		out.Seed = uint64(time.Now().UnixNano())
	}
	return out
}
