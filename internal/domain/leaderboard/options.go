package leaderboard

import (
	"time"

	"github.com/okian/tally/internal/adapters/storage"
	"github.com/okian/tally/pkg/logger"
)

// Option applies a configuration option to Cache.
type Option func(*Cache)

// WithRanker ranks with one backend query instead of a background scan.
func WithRanker(r storage.Ranker) Option {
	return func(c *Cache) {
		if r != nil {
			c.ranker = r
		}
	}
}

// WithRefresh sets how long a snapshot stays fresh.
func WithRefresh(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.refresh = d
		}
	}
}

// WithLimit sets the number of ranked entries.
func WithLimit(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.limit = n
		}
	}
}

// WithClock sets the time source of the staleness gate.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}
