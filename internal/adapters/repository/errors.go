package repository

import "errors"

// Sentinel kinds for storage errors.
var (
	ErrConflict                 = errors.New("write conflict")
	ErrConflictRetriesExhausted = errors.New("write conflict retries exhausted")
	ErrAlreadyExists            = errors.New("document already exists")
	ErrClosed                   = errors.New("store closed")
	ErrUnsupportedDriver        = errors.New("unsupported store driver")
)
