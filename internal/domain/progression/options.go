package progression

import (
	"github.com/okian/tally/internal/domain/jobs"
	"github.com/okian/tally/internal/domain/keylock"
	"github.com/okian/tally/pkg/logger"
)

// Option applies a configuration option to Progression.
type Option func(*Progression)

// WithCurve sets the experience curve used by GrantExp.
func WithCurve(c jobs.Curve) Option {
	return func(p *Progression) {
		if c.Base > 0 {
			p.curve = c
		}
	}
}

// WithLocks shares a lock set with the ledger.
func WithLocks(s *keylock.Striped) Option {
	return func(p *Progression) {
		if s != nil {
			p.locks = s
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Progression) {
		if l != nil {
			p.logger = l
		}
	}
}
