package scoring

import (
	"errors"
	"fmt"

	"github.com/okian/scoreline/internal/domain/lock"
)

// ErrLockRetryExceeded means every attempt found the entry locked.
var ErrLockRetryExceeded = errors.New("entry lock retries exceeded")

// RetryExceededError carries the contention seen on the final attempt.
type RetryExceededError struct {
	EntryID  string
	Attempts int
	Last     *lock.ContentionError
}

func (e *RetryExceededError) Error() string {
	return fmt.Sprintf("entry %s: %s after %d attempts: %v", e.EntryID, ErrLockRetryExceeded, e.Attempts, e.Last)
}

// Unwrap exposes both the sentinel and the last contention.
func (e *RetryExceededError) Unwrap() []error {
	if e.Last == nil {
		return []error{ErrLockRetryExceeded}
	}
	return []error{ErrLockRetryExceeded, e.Last}
}

// StorageError wraps a failure of the backing store. It is never retried here.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return "storage " + e.Op + ": " + e.Err.Error() }

func (e *StorageError) Unwrap() error { return e.Err }
