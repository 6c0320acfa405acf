package document

import (
	"time"

	"github.com/okian/tally/pkg/logger"
)

// Option applies a configuration option to the Store.
type Option func(*Store)

// WithDebounce sets how long the saver waits after a save request before
// writing, merging every request that arrives meanwhile.
func WithDebounce(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.debounce = d
		}
	}
}

// WithLogger sets a custom logger for the store.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}
