// Package lock implements the advisory entry lock that serializes score
// mutations on a single entry.
//
// The lock lives on the entry document itself. It is acquired inside the same
// atomic write that applies a score delta and released by a follow-up write.
// A lock whose expiry has passed is treated as abandoned, so a crashed or slow
// caller cannot block an entry for longer than the TTL.
package lock

import (
	"time"

	"github.com/google/uuid"
)

// State is the persisted lock stamp on an entry.
type State struct {
	Locked    bool      `json:"locked"`
	Token     string    `json:"token,omitempty"`
	ExpiresAt time.Time `json:"expiresAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewToken returns a fresh ownership token.
func NewToken() string { return uuid.NewString() }

// HeldAt reports whether the lock is held and unexpired at now.
func (s *State) HeldAt(now time.Time) bool {
	return s != nil && s.Locked && s.ExpiresAt.After(now)
}

// CheckAcquire decides whether token may take the lock at now. It succeeds
// when the lock is free, expired, or already owned by token.
func CheckAcquire(current *State, token string, now time.Time) error {
	if !current.HeldAt(now) || current.Token == token {
		return nil
	}
	return &ContentionError{Holder: current.Token, ExpiresAt: current.ExpiresAt}
}

// Acquired returns the stamp written when token takes the lock at now.
func Acquired(token string, now time.Time, ttl time.Duration) State {
	return State{
		Locked:    true,
		Token:     token,
		ExpiresAt: now.Add(ttl),
		UpdatedAt: now,
	}
}

// Released returns the stamp that frees a lock owned by token. The second
// result is false when the lock is no longer token's to release.
func Released(current *State, token string, now time.Time) (State, bool) {
	if current == nil || !current.Locked || current.Token != token {
		return State{}, false
	}
	return State{
		Locked:    false,
		ExpiresAt: current.ExpiresAt,
		UpdatedAt: now,
	}, true
}
