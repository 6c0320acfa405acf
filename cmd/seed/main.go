package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/tally/internal/seeding"
	"github.com/okian/tally/pkg/logger"
)

const runTimeout = 10 * time.Minute

func main() {
	cfg, err := seeding.LoadConfig()
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(2)
	}

	flag.StringVar(&cfg.BaseURL, "url", cfg.BaseURL, "Base URL of the tally service")
	flag.IntVar(&cfg.Players, "players", cfg.Players, "Number of players to register")
	flag.IntVar(&cfg.Deposits, "deposits", cfg.Deposits, "Deposits per player")
	flag.IntVar(&cfg.Transfers, "transfers", cfg.Transfers, "Transfers between players")
	flag.IntVar(&cfg.MaxAmount, "max-amount", cfg.MaxAmount, "Largest deposit or transfer amount")
	flag.StringVar(&cfg.Currency, "currency", cfg.Currency, "Currency to seed (default: the service default)")
	flag.IntVar(&cfg.Workers, "workers", cfg.Workers, "Number of concurrent workers")
	flag.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "HTTP request timeout")
	flag.Int64Var(&cfg.Seed, "seed", cfg.Seed, "Random seed (default: current time)")
	flag.BoolVar(&cfg.Replay, "replay", cfg.Replay, "Retry one deposit per player and require a replayed response")
	flag.StringVar(&cfg.Output, "output", cfg.Output, "File to write the generated plan to")
	flag.BoolVar(&cfg.Verbose, "verbose", cfg.Verbose, "Enable debug logging")
	flag.Parse()

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	if cfg.Verbose {
		_ = logger.SetLevelString("debug")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	if _, err := seeding.Run(ctx, cfg); err != nil {
		logger.Get().Error(ctx, "seeding failed", logger.Error(err))
		cancel()
		stop()
		os.Exit(1) //nolint:gocritic // deferred cancels already ran
	}
}
