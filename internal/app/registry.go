package service

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/okian/tally/internal/config"
	"github.com/okian/tally/internal/domain/jobs"
	"github.com/okian/tally/internal/domain/money"
)

// Currencies builds the currency registry from configuration.
func Currencies(cfg *config.Config) (*money.Registry, error) {
	limit := money.DefaultCap
	if cfg.MoneyCap != "" {
		d, err := decimal.NewFromString(cfg.MoneyCap)
		if err != nil || !d.IsPositive() {
			return nil, fmt.Errorf("%w: money_cap %q", ErrWiring, cfg.MoneyCap)
		}
		limit = d
	}

	out := make([]money.Currency, 0, len(cfg.Currencies))
	for _, c := range cfg.Currencies {
		start := decimal.Zero
		if c.StartingBalance != "" {
			d, err := money.ParseAmount(c.StartingBalance)
			if err != nil {
				return nil, fmt.Errorf("%w: currency %s: %w", ErrWiring, c.ID, err)
			}
			start = d
		}
		out = append(out, money.Currency{
			ID:              c.ID,
			Name:            c.Name,
			Plural:          c.Plural,
			Symbol:          c.Symbol,
			DecimalPlaces:   int32(c.DecimalPlaces), //nolint:gosec // small configured value
			SymbolSuffix:    c.SymbolSuffix,
			StartingBalance: start,
			Default:         c.Default,
		})
	}
	reg, err := money.NewRegistry(limit, out...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWiring, err)
	}
	return reg, nil
}

// Jobs builds the job registry from configuration. Names are processed in
// sorted order so errors are reported deterministically.
func Jobs(cfg *config.Config) (*jobs.Registry, error) {
	names := make([]string, 0, len(cfg.Jobs))
	for name := range cfg.Jobs {
		names = append(names, name)
	}
	sort.Strings(names)

	defs := make([]jobs.Job, 0, len(names))
	for _, name := range names {
		j := cfg.Jobs[name]
		salary, err := amountOrZero(j.Salary)
		if err != nil {
			return nil, fmt.Errorf("%w: job %s salary: %w", ErrWiring, name, err)
		}
		def := jobs.Job{Name: name, Salary: salary}
		if r := j.Requirement; r != nil {
			def.Requirement = &jobs.Requirement{Permission: r.Permission, Job: r.Job, Level: r.Level}
		}
		for _, a := range j.Actions {
			reward, err := amountOrZero(a.Money)
			if err != nil {
				return nil, fmt.Errorf("%w: job %s action %s/%s: %w", ErrWiring, name, a.Action, a.Target, err)
			}
			def.Actions = append(def.Actions, jobs.Action{
				Action: a.Action, Target: a.Target, Exp: a.Exp, Money: reward, Currency: a.Currency,
			})
		}
		defs = append(defs, def)
	}
	reg, err := jobs.NewRegistry(defs...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWiring, err)
	}
	return reg, nil
}

func amountOrZero(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return money.ParseAmount(s)
}
