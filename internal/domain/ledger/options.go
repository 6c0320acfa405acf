package ledger

import (
	"time"

	"github.com/okian/tally/internal/domain/keylock"
	"github.com/okian/tally/pkg/logger"
)

// Option applies a configuration option to Ledger.
type Option func(*Ledger)

// WithSink sets the receiver of every Result.
func WithSink(s EventSink) Option {
	return func(l *Ledger) {
		if s != nil {
			l.sink = s
		}
	}
}

// WithLocks shares a lock set with other components writing the same
// accounts.
func WithLocks(s *keylock.Striped) Option {
	return func(l *Ledger) {
		if s != nil {
			l.locks = s
		}
	}
}

// WithClock sets the time source used to stamp results.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(lg logger.Logger) Option {
	return func(l *Ledger) {
		if lg != nil {
			l.logger = lg
		}
	}
}
