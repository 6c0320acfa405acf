package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/okian/tally/internal/domain/money"
	"github.com/okian/tally/pkg/logger"
)

// Account is a handle on one account record. All methods take the currency
// id; an empty id selects the default currency.
type Account struct {
	l  *Ledger
	id string
}

// ID returns the account id.
func (a *Account) ID() string { return a.id }

// HasBalance reports whether a balance record exists for currency.
func (a *Account) HasBalance(ctx context.Context, currency string) (bool, error) {
	c, err := a.l.registry.Resolve(currency)
	if err != nil {
		return false, err
	}
	_, found, err := a.l.store.Balance(ctx, a.id, c.ID)
	return found, err
}

// Balance returns the balance in currency, or its starting balance when no
// record exists.
func (a *Account) Balance(ctx context.Context, currency string) (decimal.Decimal, error) {
	return a.l.Balance(ctx, a.id, currency)
}

// Balances returns the balance of every registered currency.
func (a *Account) Balances(ctx context.Context) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal)
	for _, c := range a.l.registry.All() {
		d, err := a.l.Balance(ctx, a.id, c.ID)
		if err != nil {
			return nil, err
		}
		out[c.ID] = d
	}
	return out, nil
}

// SetBalance stores amount, truncated to two places and clamped to the cap.
// The result kind follows the sign of the change.
func (a *Account) SetBalance(ctx context.Context, currency string, amount decimal.Decimal) Result {
	start := time.Now()
	c, failed := a.resolve(currency, Set, amount)
	if failed != nil {
		return a.l.emit(ctx, *failed, start)
	}
	release := a.l.locks.Lock(a.id, c.ID)
	r := a.l.apply(ctx, a.id, c, "", func(decimal.Decimal) (decimal.Decimal, Outcome) {
		return amount, Success
	})
	release()
	return a.l.emit(ctx, r, start)
}

// Deposit adds amount to the balance.
func (a *Account) Deposit(ctx context.Context, currency string, amount decimal.Decimal) Result {
	start := time.Now()
	c, failed := a.resolve(currency, Deposit, amount)
	if failed != nil {
		return a.l.emit(ctx, *failed, start)
	}
	amount = money.Truncate(amount)
	release := a.l.locks.Lock(a.id, c.ID)
	r := a.l.apply(ctx, a.id, c, Deposit, credit(amount))
	release()
	return a.l.emit(ctx, r, start)
}

// Withdraw subtracts amount from the balance, or reports
// InsufficientFunds without touching it.
func (a *Account) Withdraw(ctx context.Context, currency string, amount decimal.Decimal) Result {
	start := time.Now()
	c, failed := a.resolve(currency, Withdraw, amount)
	if failed != nil {
		return a.l.emit(ctx, *failed, start)
	}
	amount = money.Truncate(amount)
	release := a.l.locks.Lock(a.id, c.ID)
	r := a.l.apply(ctx, a.id, c, Withdraw, debit(amount))
	release()
	return a.l.emit(ctx, r, start)
}

// Transfer moves amount to the account to. Both accounts must hold a
// balance record. When the credit fails the debit is restored and the
// result carries ErrRolledBack, or ErrInconsistent if the restore failed too.
func (a *Account) Transfer(ctx context.Context, to, currency string, amount decimal.Decimal) Result {
	start := time.Now()
	c, failed := a.resolve(currency, Transfer, amount)
	if failed != nil {
		failed.Counterparty = to
		return a.l.emit(ctx, *failed, start)
	}
	amount = money.Truncate(amount)
	r := Result{Account: a.id, Counterparty: to, Currency: c.ID, Kind: Transfer, Amount: amount, At: a.l.now()}
	if to == a.id {
		return a.l.emit(ctx, r.fail(ErrSelfTransfer), start)
	}
	if _, found, err := a.l.store.Balance(ctx, to, c.ID); err != nil || !found {
		if err == nil {
			err = ErrNoBalance
		}
		return a.l.emit(ctx, r.fail(err), start)
	}

	release := a.l.locks.LockPair(a.id, c.ID, to, c.ID)
	out := a.l.apply(ctx, a.id, c, Withdraw, debit(amount))
	legs := []Result{out}
	r.Balance = out.Balance
	switch {
	case !out.OK():
		r.Outcome, r.Err = out.Outcome, out.Err
	default:
		in := a.l.apply(ctx, to, c, Deposit, credit(amount))
		legs = append(legs, in)
		if in.OK() {
			r.Outcome = Success
			break
		}
		before := out.Balance.Add(out.Amount)
		back := a.l.apply(ctx, a.id, c, Deposit, func(decimal.Decimal) (decimal.Decimal, Outcome) {
			return before, Success
		})
		legs = append(legs, back)
		r.Balance = back.Balance
		if back.OK() {
			r = r.fail(ErrRolledBack)
		} else {
			r = r.fail(ErrInconsistent)
			a.l.logger.Error(ctx, "transfer left source debited",
				logger.String("from", a.id), logger.String("to", to),
				logger.String("currency", c.ID), logger.String("amount", amount.StringFixed(money.Scale)),
				logger.Error(back.Err))
		}
	}
	release()

	for _, leg := range legs {
		leg.Counterparty = counterpart(leg.Account, a.id, to)
		leg.Leg = true
		a.l.emit(ctx, leg, start)
	}
	return a.l.emit(ctx, r, start)
}

// ResetBalance sets currency back to its starting balance.
func (a *Account) ResetBalance(ctx context.Context, currency string) Result {
	c, err := a.l.registry.Resolve(currency)
	if err != nil {
		return a.SetBalance(ctx, currency, decimal.Zero)
	}
	return a.SetBalance(ctx, c.ID, c.StartingBalance)
}

// ResetBalances resets every registered currency.
func (a *Account) ResetBalances(ctx context.Context) []Result {
	all := a.l.registry.All()
	out := make([]Result, 0, len(all))
	for _, c := range all {
		out = append(out, a.SetBalance(ctx, c.ID, c.StartingBalance))
	}
	return out
}

// resolve validates the currency and sign of amount. A non-nil Result means
// the operation failed before any read.
func (a *Account) resolve(currency string, kind Kind, amount decimal.Decimal) (money.Currency, *Result) {
	c, err := a.l.registry.Resolve(currency)
	if err == nil && amount.IsNegative() {
		err = ErrNegativeInput
	}
	if err != nil {
		r := Result{Account: a.id, Currency: currency, Kind: kind, Amount: amount, At: a.l.now()}.fail(err)
		return c, &r
	}
	return c, nil
}

func credit(amount decimal.Decimal) next {
	return func(current decimal.Decimal) (decimal.Decimal, Outcome) {
		return current.Add(amount), Success
	}
}

func debit(amount decimal.Decimal) next {
	return func(current decimal.Decimal) (decimal.Decimal, Outcome) {
		rest := current.Sub(amount)
		if rest.IsNegative() {
			return rest, InsufficientFunds
		}
		return rest, Success
	}
}

func counterpart(account, from, to string) string {
	if account == from {
		return to
	}
	return from
}
