package lock

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// Default lock policy values.
const (
	DefaultTTL        = 5 * time.Second
	DefaultMaxRetries = 5
	DefaultBaseDelay  = 50 * time.Millisecond
	DefaultMaxJitter  = 25 * time.Millisecond

	maxBackoffShift = 16
)

// Policy bounds how long a mutation may hold an entry and how contended
// callers retry.
type Policy struct {
	TTL        time.Duration
	MaxRetries int
	BaseDelay  time.Duration
	MaxJitter  time.Duration
}

// DefaultPolicy returns the stock lock policy.
func DefaultPolicy() Policy {
	return Policy{
		TTL:        DefaultTTL,
		MaxRetries: DefaultMaxRetries,
		BaseDelay:  DefaultBaseDelay,
		MaxJitter:  DefaultMaxJitter,
	}
}

// Check rejects policies that could never acquire or would never back off.
func (p Policy) Check() error {
	if p.TTL <= 0 {
		return fmt.Errorf("%w: ttl must be positive", ErrInvalidPolicy)
	}
	if p.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries must not be negative", ErrInvalidPolicy)
	}
	if p.BaseDelay < 0 || p.MaxJitter < 0 {
		return fmt.Errorf("%w: delays must not be negative", ErrInvalidPolicy)
	}
	return nil
}

// Backoff returns base * 2^attempt plus a random jitter in [0, MaxJitter].
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > maxBackoffShift {
		attempt = maxBackoffShift
	}
	d := p.BaseDelay << attempt
	if p.MaxJitter > 0 {
		d += time.Duration(rand.Int64N(int64(p.MaxJitter) + 1)) //nolint:gosec // jitter does not need a CSPRNG
	}
	return d
}
