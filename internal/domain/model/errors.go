package model

import "errors"

// Sentinel kinds for referential failures. They are never retried.
var (
	ErrContestNotFound = errors.New("contest not found")
	ErrEntryNotFound   = errors.New("entry not found")
	ErrScoreNotFound   = errors.New("score not found")
)
