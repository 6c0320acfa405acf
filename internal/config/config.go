// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Load layers defaults, an optional YAML file and TALLY_ env vars.
// - Validate reports every problem wrapped in ErrInvalidConfig.
package config

import (
	"fmt"
	"runtime"
	"strings"
)

// Currency is the configured reference data of one currency.
type Currency struct {
	ID              string `koanf:"id"`
	Name            string `koanf:"name"`
	Plural          string `koanf:"plural"`
	Symbol          string `koanf:"symbol"`
	DecimalPlaces   int    `koanf:"decimal_places"`
	SymbolSuffix    bool   `koanf:"symbol_suffix"`
	StartingBalance string `koanf:"starting_balance"`
	Default         bool   `koanf:"default"`
}

// Requirement gates joining a job.
type Requirement struct {
	Permission string `koanf:"permission"`
	Job        string `koanf:"job"`
	Level      int    `koanf:"level"`
}

// Action is a rewarded job action.
type Action struct {
	Action   string `koanf:"action"`
	Target   string `koanf:"target"`
	Exp      int    `koanf:"exp"`
	Money    string `koanf:"money"`
	Currency string `koanf:"currency"`
}

// Job is the configured definition of one job, keyed by name in Config.Jobs.
type Job struct {
	Salary      string       `koanf:"salary"`
	Requirement *Requirement `koanf:"requirement"`
	Actions     []Action     `koanf:"actions"`
}

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects text or json output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// Backend selects the persistence backend: document, sqlite or postgres.
	Backend string `koanf:"backend"`

	// DocumentPath is the YAML file of the document backend.
	DocumentPath string `koanf:"document_path"`

	// SaveDebounceMS is how long the document saver merges save requests.
	SaveDebounceMS int `koanf:"save_debounce_ms"`

	// DatabaseURL is the DSN of the relational backend. For sqlite it is a
	// file path or ":memory:".
	DatabaseURL string `koanf:"database_url"`

	DBMaxOpenConns     int `koanf:"db_max_open_conns"`
	DBMaxIdleConns     int `koanf:"db_max_idle_conns"`
	DBConnMaxLifetimeS int `koanf:"db_conn_max_lifetime_s"`

	// MoneyCap is the upper bound of every balance.
	MoneyCap string `koanf:"money_cap"`

	// LeaderboardRefreshS is how long a leaderboard snapshot stays fresh.
	LeaderboardRefreshS int `koanf:"leaderboard_refresh_s"`

	// EventQueueSize bounds the in-memory transaction event queue.
	EventQueueSize int `koanf:"event_queue_size"`

	// EventWorkers sets the number of event dispatch workers.
	EventWorkers int `koanf:"event_workers"`

	// DedupeSize sets how many idempotency keys are remembered.
	DedupeSize int `koanf:"dedupe_size"`

	// ExpBase scales the experience curve.
	ExpBase int `koanf:"exp_base"`

	// CORSOrigins lists the origins allowed to call the API.
	CORSOrigins []string `koanf:"cors_origins"`

	Currencies []Currency     `koanf:"currencies"`
	Jobs       map[string]Job `koanf:"jobs"`
}

// Backends accepted by Validate.
var backends = []string{"document", "sqlite", "postgres"} //nolint:gochecknoglobals // fixed list

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:            "info",
		LogFormat:           "text",
		Addr:                ":9080",
		Backend:             "document",
		DocumentPath:        "data/accounts.yaml",
		SaveDebounceMS:      500,
		DatabaseURL:         "data/tally.db",
		DBMaxOpenConns:      10,
		DBMaxIdleConns:      5,
		DBConnMaxLifetimeS:  300,
		MoneyCap:            "10000000",
		LeaderboardRefreshS: 60,
		EventQueueSize:      10_000,
		EventWorkers:        runtime.NumCPU(),
		DedupeSize:          50_000,
		ExpBase:             100,
		CORSOrigins:         []string{"http://localhost:9080"},
		Currencies: []Currency{
			{ID: "dollar", Name: "Dollar", Plural: "Dollars", Symbol: "$", DecimalPlaces: 2, StartingBalance: "0", Default: true},
		},
		Jobs: map[string]Job{
			"unemployed": {Salary: "20"},
			"miner": {
				Salary: "20",
				Actions: []Action{
					{Action: "break", Target: "coal_ore", Exp: 10, Money: "0.25"},
					{Action: "break", Target: "iron_ore", Exp: 20, Money: "0.50"},
				},
			},
			"blacksmith": {
				Salary:      "30",
				Requirement: &Requirement{Job: "miner", Level: 5},
			},
		},
	}
}

// Validate checks the values Load cannot type-check.
func (c *Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.Addr) == "" {
		problems = append(problems, "addr must not be empty")
	}
	switch strings.ToLower(c.Backend) {
	case backends[0]:
		if c.DocumentPath == "" {
			problems = append(problems, "document_path must not be empty")
		}
	case backends[1], backends[2]:
		if c.DatabaseURL == "" {
			problems = append(problems, "database_url must not be empty")
		}
	default:
		problems = append(problems, fmt.Sprintf("backend must be one of %s, got %q", strings.Join(backends, ", "), c.Backend))
	}
	if len(c.Currencies) == 0 {
		problems = append(problems, "at least one currency is required")
	}
	defaults := 0
	for _, cur := range c.Currencies {
		if cur.Default {
			defaults++
		}
	}
	if len(c.Currencies) > 0 && defaults != 1 {
		problems = append(problems, fmt.Sprintf("exactly one default currency is required, got %d", defaults))
	}
	if c.EventQueueSize < 1 {
		problems = append(problems, "event_queue_size must be positive")
	}
	if c.LeaderboardRefreshS < 0 {
		problems = append(problems, "leaderboard_refresh_s must not be negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}
