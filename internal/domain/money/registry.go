package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Registry is the read-only set of configured currencies plus the money cap.
type Registry struct {
	byID  map[string]Currency
	order []string
	def   string
	cap   decimal.Decimal
}

// NewRegistry validates currencies and builds a Registry. Exactly one
// currency must be flagged Default. A non-positive limit selects DefaultCap.
func NewRegistry(limit decimal.Decimal, currencies ...Currency) (*Registry, error) {
	if !limit.IsPositive() {
		limit = DefaultCap
	}
	r := &Registry{
		byID: make(map[string]Currency, len(currencies)),
		cap:  limit,
	}
	for _, c := range currencies {
		if !ValidID(c.ID) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidCurrencyID, c.ID)
		}
		if _, dup := r.byID[c.ID]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateCurrency, c.ID)
		}
		if c.Default {
			if r.def != "" {
				return nil, fmt.Errorf("%w: %q and %q", ErrMultipleDefaults, r.def, c.ID)
			}
			r.def = c.ID
		}
		if c.Name == "" {
			c.Name = c.ID
		}
		c.StartingBalance = Normalize(c.StartingBalance, limit)
		if c.StartingBalance.IsNegative() {
			c.StartingBalance = decimal.Zero
		}
		r.byID[c.ID] = c
		r.order = append(r.order, c.ID)
	}
	if r.def == "" {
		return nil, ErrNoDefault
	}
	return r, nil
}

// Lookup returns the currency registered under id.
func (r *Registry) Lookup(id string) (Currency, bool) {
	c, ok := r.byID[id]
	return c, ok
}

// Resolve is Lookup with an error; an empty id selects the default currency.
func (r *Registry) Resolve(id string) (Currency, error) {
	if id == "" {
		return r.Default(), nil
	}
	c, ok := r.byID[id]
	if !ok {
		return Currency{}, fmt.Errorf("%w: %q", ErrUnknownCurrency, id)
	}
	return c, nil
}

// Default returns the distinguished default currency.
func (r *Registry) Default() Currency {
	return r.byID[r.def]
}

// All returns the currencies in registration order.
func (r *Registry) All() []Currency {
	out := make([]Currency, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// IDs returns the currency ids in registration order.
func (r *Registry) IDs() []string {
	return append([]string(nil), r.order...)
}

// StartingBalance returns the configured starting balance, or zero for an
// unknown currency.
func (r *Registry) StartingBalance(id string) decimal.Decimal {
	if c, ok := r.byID[id]; ok {
		return c.StartingBalance
	}
	return decimal.Zero
}

// Cap returns the global money cap.
func (r *Registry) Cap() decimal.Decimal {
	return r.cap
}
