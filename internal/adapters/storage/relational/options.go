package relational

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/okian/tally/pkg/logger"
)

// Option applies a configuration option to the Store.
type Option func(*Store)

// WithCurrency registers a balance column and its default for new rows.
func WithCurrency(id string, starting decimal.Decimal) Option {
	return func(s *Store) {
		if id != "" {
			s.currencies[id] = starting
		}
	}
}

// WithJobs registers level and experience columns for each job.
func WithJobs(jobs ...string) Option {
	return func(s *Store) {
		s.jobs = append(s.jobs, jobs...)
	}
}

// WithPool sets connection pool limits. Zero values keep the defaults.
// SQLite always uses a single connection.
func WithPool(maxOpen, maxIdle int, lifetime time.Duration) Option {
	return func(s *Store) {
		if maxOpen > 0 {
			s.maxOpen = maxOpen
		}
		if maxIdle > 0 {
			s.maxIdle = maxIdle
		}
		if lifetime > 0 {
			s.lifetime = lifetime
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
