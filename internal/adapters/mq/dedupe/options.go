package dedupe

// Option configures a Ring.
type Option func(*Ring)

// WithMaxSize bounds how many ids are kept. Zero or less disables eviction.
func WithMaxSize(maxSize int) Option {
	return func(r *Ring) {
		r.maxSize = maxSize
	}
}
