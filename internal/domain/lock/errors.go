package lock

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel kinds for lock errors.
var (
	ErrContention    = errors.New("entry lock contention")
	ErrInvalidPolicy = errors.New("invalid lock policy")
)

// ContentionError reports that another token holds an unexpired lock.
type ContentionError struct {
	Holder    string
	ExpiresAt time.Time
}

func (e *ContentionError) Error() string {
	return fmt.Sprintf("%s: held by %s until %s", ErrContention, e.Holder, e.ExpiresAt.Format(time.RFC3339Nano))
}

func (e *ContentionError) Unwrap() error { return ErrContention }
