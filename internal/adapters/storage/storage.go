// Package storage defines the persistence contract shared by the document
// and relational backends. Callers select one implementation at startup and
// never branch on its type afterwards.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/okian/tally/pkg/metrics"
)

// Backend kinds accepted by configuration.
const (
	KindDocument = "document"
	KindSQLite   = "sqlite"
	KindPostgres = "postgres"
)

// Defaults are the field values written when an account is created.
type Defaults struct {
	Balances      map[string]decimal.Decimal
	Job           string
	Notifications bool
}

// Accounts manages account record lifecycle.
type Accounts interface {
	Exists(ctx context.Context, id string) (bool, error)
	Create(ctx context.Context, id string, d Defaults) error
}

// Balances reads and writes per-currency balances. A false found flag means
// the field is absent; callers fall back to defaults.
type Balances interface {
	Balance(ctx context.Context, id, currency string) (decimal.Decimal, bool, error)
	SetBalance(ctx context.Context, id, currency string, amount decimal.Decimal) error
}

// Jobs reads and writes job assignment, progression and toggles.
type Jobs interface {
	Job(ctx context.Context, id string) (string, bool, error)
	SetJob(ctx context.Context, id, job string) error
	Level(ctx context.Context, id, job string) (int, bool, error)
	SetLevel(ctx context.Context, id, job string, level int) error
	Exp(ctx context.Context, id, job string) (int, bool, error)
	SetExp(ctx context.Context, id, job string, exp int) error
	Notifications(ctx context.Context, id string) (bool, bool, error)
	SetNotifications(ctx context.Context, id string, on bool) error
	Option(ctx context.Context, id, option string) (string, bool, error)
	SetOption(ctx context.Context, id, option, value string) error
}

// Backend is the full persistence contract.
type Backend interface {
	Accounts
	Balances
	Jobs

	// Kind names the implementation for logs and metrics.
	Kind() string
	// Flush persists buffered writes synchronously.
	Flush(ctx context.Context) error
	Close() error
}

// Row is one ranked balance.
type Row struct {
	ID      string
	Balance decimal.Decimal
}

// Ranker is implemented by backends that can rank balances in one query.
type Ranker interface {
	TopBalances(ctx context.Context, currency string, limit int) ([]Row, error)
}

// Scanner lists every top-level account key, including malformed ones.
type Scanner interface {
	Keys(ctx context.Context) ([]string, error)
}

// JobInitializer is implemented by backends that lazily create per-job
// progression fields on job selection.
type JobInitializer interface {
	EnsureJobStats(ctx context.Context, id, job string) error
}

// Observe records latency and failure metrics for one backend call.
// ErrNoRecord is an outcome, not a failure, and is not counted as an error.
func Observe(kind, op string, start time.Time, err error) {
	metrics.RecordBackendCall(kind, op, float64(time.Since(start).Microseconds())/1000)
	if err != nil && !errors.Is(err, ErrNoRecord) {
		metrics.RecordBackendError(kind, op)
	}
}
