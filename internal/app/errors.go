package service

import "errors"

// ErrInvalidRequest reports a request missing an identifier.
var ErrInvalidRequest = errors.New("invalid score request")
