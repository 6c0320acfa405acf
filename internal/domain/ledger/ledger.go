// Package ledger owns the balance invariants of every account: balances stay
// within [0, cap] at scale 2, and every mutation goes through one choke
// point that persists it and produces a Result.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/okian/tally/internal/adapters/storage"
	"github.com/okian/tally/internal/domain/keylock"
	"github.com/okian/tally/internal/domain/money"
	"github.com/okian/tally/pkg/logger"
	"github.com/okian/tally/pkg/metrics"
)

// Unemployed is the job of an account that never picked one.
const Unemployed = "unemployed"

// Store is the slice of the persistence contract the ledger needs.
type Store interface {
	storage.Accounts
	storage.Balances
}

// Ledger hands out account handles over one backend.
type Ledger struct {
	store    Store
	registry *money.Registry
	sink     EventSink
	locks    *keylock.Striped
	now      func() time.Time
	logger   logger.Logger
}

// New creates a Ledger.
func New(store Store, registry *money.Registry, opts ...Option) *Ledger {
	l := &Ledger{
		store:    store,
		registry: registry,
		sink:     discardSink{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.locks == nil {
		l.locks = keylock.New()
	}
	if l.logger == nil {
		l.logger = logger.Get().Named("ledger")
	}
	return l
}

// Registry returns the currency registry.
func (l *Ledger) Registry() *money.Registry { return l.registry }

// Open returns the account for id, creating its record with default values
// when absent. Balance fields for currencies added after creation are
// back-filled.
func (l *Ledger) Open(ctx context.Context, id string) (*Account, error) {
	exists, err := l.store.Exists(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", id, err)
	}

	d := storage.Defaults{
		Balances:      make(map[string]decimal.Decimal),
		Job:           Unemployed,
		Notifications: true,
	}
	for _, c := range l.registry.All() {
		if exists {
			_, found, err := l.store.Balance(ctx, id, c.ID)
			if err != nil {
				return nil, fmt.Errorf("open %s: %w", id, err)
			}
			if found {
				continue
			}
		}
		d.Balances[c.ID] = c.StartingBalance
	}
	if !exists || len(d.Balances) > 0 {
		if err := l.store.Create(ctx, id, d); err != nil {
			return nil, fmt.Errorf("open %s: %w", id, err)
		}
		if !exists {
			metrics.RecordAccountCreated()
			l.logger.Debug(ctx, "account created", logger.String("account", id))
		}
	}
	return &Account{l: l, id: id}, nil
}

// Balance reads a balance without creating the account. Absent values
// resolve to the starting balance.
func (l *Ledger) Balance(ctx context.Context, id, currency string) (decimal.Decimal, error) {
	c, err := l.registry.Resolve(currency)
	if err != nil {
		return decimal.Zero, err
	}
	d, found, err := l.store.Balance(ctx, id, c.ID)
	if err != nil {
		return decimal.Zero, err
	}
	if !found {
		return c.StartingBalance, nil
	}
	return l.inRange(d), nil
}

// inRange applies the stored-value invariant to a value read back from a
// backend that may have been edited by hand.
func (l *Ledger) inRange(d decimal.Decimal) decimal.Decimal {
	d = money.Normalize(d, l.registry.Cap())
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// next computes the balance to store from the current one. Returning an
// outcome other than Success aborts the write.
type next func(current decimal.Decimal) (decimal.Decimal, Outcome)

// apply is the single write path for balances. The caller holds the stripe
// lock of (id, currency). kind overrides the sign-based classification when
// non-empty.
func (l *Ledger) apply(ctx context.Context, id string, c money.Currency, kind Kind, fn next) Result {
	r := Result{Account: id, Currency: c.ID, Kind: kind, At: l.now()}
	if r.Kind == "" {
		r.Kind = Set
	}

	current, found, err := l.store.Balance(ctx, id, c.ID)
	if err != nil {
		l.warn(ctx, "balance read failed", id, c.ID, err)
		return r.fail(err)
	}
	if !found {
		return r.fail(ErrNoBalance)
	}
	current = l.inRange(current)
	r.Balance = current

	amount, outcome := fn(current)
	if outcome != Success {
		r.Outcome = outcome
		r.Amount = amount.Sub(current).Abs()
		return r
	}
	if amount.IsNegative() {
		return r.fail(ErrNegativeInput)
	}
	amount = money.Normalize(amount, l.registry.Cap())

	delta := amount.Sub(current)
	if kind == "" {
		r.Kind = Deposit
		if delta.IsNegative() {
			r.Kind = Withdraw
		}
	}
	r.Amount = delta.Abs()

	if err := l.store.SetBalance(ctx, id, c.ID, amount); err != nil {
		if !errors.Is(err, storage.ErrNoRecord) {
			l.warn(ctx, "balance write failed", id, c.ID, err)
		}
		return r.fail(err)
	}
	r.Balance = amount
	r.Outcome = Success
	return r
}

// Accounts lists every key known to a scannable backend, including keys that
// are not account ids.
func (l *Ledger) Accounts(ctx context.Context) ([]string, error) {
	sc, ok := l.store.(storage.Scanner)
	if !ok {
		return nil, ErrNotScannable
	}
	return sc.Keys(ctx)
}

func (r Result) fail(err error) Result {
	r.Outcome = Failed
	r.Err = err
	return r
}

// emit publishes r and records its metrics. Transfer legs are published but
// not counted.
func (l *Ledger) emit(ctx context.Context, r Result, start time.Time) Result {
	if !r.Leg {
		metrics.RecordTransaction(string(r.Kind), string(r.Outcome), float64(time.Since(start).Microseconds())/1000)
	}
	l.sink.Publish(ctx, r)
	return r
}

func (l *Ledger) warn(ctx context.Context, msg, id, currency string, err error) {
	l.logger.Warn(ctx, msg, logger.String("account", id), logger.String("currency", currency), logger.Error(err))
}
