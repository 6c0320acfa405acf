package seeding

import (
	"fmt"
	"math/rand/v2"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Player is one seeded account.
type Player struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Deposits []decimal.Decimal `json:"deposits"`
}

// Transfer is one planned payment between seeded players.
type Transfer struct {
	From   string          `json:"from"`
	To     string          `json:"to"`
	Amount decimal.Decimal `json:"amount"`
}

// Plan is the full set of operations of a run.
type Plan struct {
	Currency  string     `json:"currency"`
	Players   []Player   `json:"players"`
	Transfers []Transfer `json:"transfers"`
}

// NewPlan draws players, deposits and transfers from rng. Amounts are whole
// cents between 0.01 and max.
func NewPlan(cfg *Config, currency string, rng *rand.Rand) *Plan {
	p := &Plan{Currency: currency, Players: make([]Player, cfg.Players)}
	for i := range p.Players {
		pl := Player{
			ID:       uuid.NewString(),
			Name:     fmt.Sprintf("seed-%04d", i),
			Deposits: make([]decimal.Decimal, cfg.Deposits),
		}
		for j := range pl.Deposits {
			pl.Deposits[j] = amount(rng, cfg.MaxAmount)
		}
		p.Players[i] = pl
	}
	if len(p.Players) > 1 {
		for range cfg.Transfers {
			from := rng.IntN(len(p.Players))
			to := rng.IntN(len(p.Players) - 1)
			if to >= from {
				to++
			}
			p.Transfers = append(p.Transfers, Transfer{
				From: p.Players[from].ID, To: p.Players[to].ID, Amount: amount(rng, cfg.MaxAmount),
			})
		}
	}
	return p
}

func amount(rng *rand.Rand, limit int) decimal.Decimal {
	cents := rng.Int64N(int64(limit)*100) + 1
	return decimal.New(cents, -2)
}

// Expected replays the plan on starting balances. Transfers the payer
// cannot cover are skipped, as the service rejects them.
func (p *Plan) Expected(starting decimal.Decimal) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(p.Players))
	for _, pl := range p.Players {
		bal := starting
		for _, d := range pl.Deposits {
			bal = bal.Add(d)
		}
		out[pl.ID] = bal
	}
	for _, t := range p.Transfers {
		if out[t.From].LessThan(t.Amount) {
			continue
		}
		out[t.From] = out[t.From].Sub(t.Amount)
		out[t.To] = out[t.To].Add(t.Amount)
	}
	return out
}

// Ranked returns ids ordered by balance, highest first. Ties keep id order.
func Ranked(balances map[string]decimal.Decimal) []string {
	ids := make([]string, 0, len(balances))
	for id := range balances {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if c := balances[ids[i]].Cmp(balances[ids[j]]); c != 0 {
			return c > 0
		}
		return ids[i] < ids[j]
	})
	return ids
}
