package seeding

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Entry is one leaderboard row as served by the API.
type Entry struct {
	Rank    int             `json:"rank"`
	Account string          `json:"account"`
	Name    string          `json:"name"`
	Balance decimal.Decimal `json:"balance"`
}

// VerifyLeaderboard checks entries against the expected balances of the
// seeded players. Accounts that were not seeded may appear and are only
// checked for ordering. Every seeded player richer than the poorest listed
// entry must be listed with its expected balance.
func VerifyLeaderboard(entries []Entry, expected map[string]decimal.Decimal, names map[string]string) error {
	if len(entries) == 0 {
		return fmt.Errorf("%w: empty leaderboard", ErrMismatch)
	}
	listed := make(map[string]bool, len(entries))
	for i, e := range entries {
		if e.Rank != i+1 {
			return fmt.Errorf("%w: entry %d has rank %d", ErrMismatch, i, e.Rank)
		}
		if i > 0 && e.Balance.GreaterThan(entries[i-1].Balance) {
			return fmt.Errorf("%w: rank %d (%s) above rank %d (%s)", ErrMismatch, e.Rank, e.Balance, entries[i-1].Rank, entries[i-1].Balance)
		}
		want, seeded := expected[e.Account]
		if !seeded {
			continue
		}
		listed[e.Account] = true
		if !e.Balance.Equal(want) {
			return fmt.Errorf("%w: %s listed with %s, expected %s", ErrMismatch, e.Account, e.Balance, want)
		}
		if n := names[e.Account]; n != "" && e.Name != n {
			return fmt.Errorf("%w: %s listed as %q, expected %q", ErrMismatch, e.Account, e.Name, n)
		}
	}

	floor := entries[len(entries)-1].Balance
	for id, bal := range expected {
		if bal.GreaterThan(floor) && !listed[id] {
			return fmt.Errorf("%w: %s with %s missing from leaderboard", ErrMismatch, id, bal)
		}
	}
	return nil
}

// VerifyBalance compares one served balance with the expected value.
func VerifyBalance(id string, got, want decimal.Decimal) error {
	if !got.Equal(want) {
		return fmt.Errorf("%w: %s has %s, expected %s", ErrMismatch, id, got, want)
	}
	return nil
}
