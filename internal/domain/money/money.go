// Package money holds the currency reference data and the pure policy
// functions applied to every balance: the money cap, scale-2 truncation and
// starting-balance lookup.
package money

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits a stored balance keeps.
const Scale int32 = 2

// DefaultCap is the money cap used when none is configured.
var DefaultCap = decimal.NewFromInt(10_000_000) //nolint:gochecknoglobals // immutable default

var idPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// ValidID reports whether id can name a currency. Ids double as column
// names in the relational backend, hence the restricted alphabet.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

// Currency is immutable reference data.
type Currency struct {
	ID              string
	Name            string
	Plural          string
	Symbol          string
	DecimalPlaces   int32
	SymbolSuffix    bool
	StartingBalance decimal.Decimal
	Default         bool
}

// Format renders amount with the currency symbol, truncated to the
// currency's decimal places.
func (c Currency) Format(amount decimal.Decimal) string {
	places := c.DecimalPlaces
	if places < 0 {
		places = 0
	}
	s := amount.Truncate(places).StringFixed(places)
	if c.SymbolSuffix {
		return s + c.Symbol
	}
	return c.Symbol + s
}

// DisplayName picks the singular or plural name for amount.
func (c Currency) DisplayName(amount decimal.Decimal) string {
	if amount.Equal(decimal.NewFromInt(1)) || c.Plural == "" {
		return c.Name
	}
	return c.Plural
}

// Truncate drops digits beyond Scale, rounding toward zero.
func Truncate(amount decimal.Decimal) decimal.Decimal {
	return amount.Truncate(Scale)
}

// Clamp applies the upper money cap. There is no lower clamp.
func Clamp(amount, limit decimal.Decimal) decimal.Decimal {
	if amount.GreaterThan(limit) {
		return limit
	}
	return amount
}

// Normalize truncates then clamps, the order used on every write.
func Normalize(amount, limit decimal.Decimal) decimal.Decimal {
	return Clamp(Truncate(amount), limit)
}

// ParseAmount parses a non-negative decimal string and truncates it to Scale.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrNegativeAmount, d)
	}
	return Truncate(d), nil
}
