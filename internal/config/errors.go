package config

import "errors"

// Sentinel error kinds for this package.
var (
	// ErrInvalidConfig wraps settings that fail Validate.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrLoadConfig wraps file, env and decoding failures.
	ErrLoadConfig = errors.New("load config failed")
)
