// Package seeding creates players through the HTTP API, applies deposits
// and transfers, and verifies balances and leaderboard ordering.
package seeding

import (
	"fmt"
	"time"

	env "github.com/caarlos0/env/v11"
)

// Config holds configuration for a seeding run. Every field can be set from
// the environment; cmd/seed flags override it.
type Config struct {
	BaseURL   string        `env:"SEED_URL" envDefault:"http://localhost:9080"`
	Players   int           `env:"SEED_PLAYERS" envDefault:"100"`
	Deposits  int           `env:"SEED_DEPOSITS" envDefault:"5"`
	Transfers int           `env:"SEED_TRANSFERS" envDefault:"20"`
	MaxAmount int           `env:"SEED_MAX_AMOUNT" envDefault:"500"`
	Currency  string        `env:"SEED_CURRENCY"`
	Workers   int           `env:"SEED_WORKERS" envDefault:"8"`
	Timeout   time.Duration `env:"SEED_TIMEOUT" envDefault:"10s"`
	Seed      int64         `env:"SEED_RANDOM_SEED"`
	Replay    bool          `env:"SEED_REPLAY" envDefault:"true"`
	Output    string        `env:"SEED_OUTPUT"`
	Verbose   bool          `env:"SEED_VERBOSE"`
}

// LoadConfig reads Config from the environment.
func LoadConfig() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("seeding.LoadConfig: %w", err)
	}
	return &cfg, nil
}

// Validate rejects configurations that cannot produce a run.
func (c *Config) Validate() error {
	switch {
	case c.BaseURL == "":
		return fmt.Errorf("%w: base url is empty", ErrConfig)
	case c.Players < 1:
		return fmt.Errorf("%w: players must be positive", ErrConfig)
	case c.Deposits < 0 || c.Transfers < 0:
		return fmt.Errorf("%w: deposits and transfers must not be negative", ErrConfig)
	case c.MaxAmount < 1:
		return fmt.Errorf("%w: max amount must be positive", ErrConfig)
	case c.Workers < 1:
		return fmt.Errorf("%w: workers must be positive", ErrConfig)
	}
	return nil
}

// Stats holds run statistics.
type Stats struct {
	PlayersRegistered int
	DepositsApplied   int
	TransfersApplied  int
	TransfersRejected int
	Replays           int
	Failures          int
	BalancesVerified  int
	LeaderboardSize   int
	StartTime         time.Time
	Duration          time.Duration
}
