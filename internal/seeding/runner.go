package seeding

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/okian/tally/pkg/logger"
)

const (
	directoryPermission = 0o750
	leaderboardPoll     = 500 * time.Millisecond
)

// Runner executes one seeding run.
type Runner struct {
	cfg    *Config
	client *Client
	logger logger.Logger

	// LeaderboardDeadline bounds how long Run waits for a leaderboard
	// computed after seeding finished.
	LeaderboardDeadline time.Duration
}

// NewRunner creates a Runner; a nil logger selects the global one.
func NewRunner(cfg *Config, lg logger.Logger) *Runner {
	if lg == nil {
		lg = logger.Get().Named("seed")
	}
	return &Runner{
		cfg:                 cfg,
		client:              NewClient(cfg.BaseURL, cfg.Timeout),
		logger:              lg,
		LeaderboardDeadline: 2 * time.Minute,
	}
}

// Run seeds the service and verifies the outcome.
func (r *Runner) Run(ctx context.Context) (*Stats, error) {
	if err := r.cfg.Validate(); err != nil {
		return nil, err
	}
	stats := &Stats{StartTime: time.Now()}
	r.logger.Info(ctx, "starting tally seeding",
		logger.String("baseURL", r.cfg.BaseURL),
		logger.Int("players", r.cfg.Players),
		logger.Int("deposits", r.cfg.Deposits),
		logger.Int("transfers", r.cfg.Transfers),
		logger.Int("workers", r.cfg.Workers),
	)

	if err := r.checkHealth(ctx); err != nil {
		return stats, err
	}
	currency, starting, err := r.currency(ctx)
	if err != nil {
		return stats, err
	}

	seed := r.cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	plan := NewPlan(r.cfg, currency, rand.New(rand.NewPCG(uint64(seed), uint64(seed)>>1))) //nolint:gosec // reproducible test data
	if err := r.register(ctx, plan, stats); err != nil {
		return stats, fmt.Errorf("register players: %w", err)
	}
	if err := r.deposit(ctx, plan, stats); err != nil {
		return stats, fmt.Errorf("apply deposits: %w", err)
	}
	if err := r.transfer(ctx, plan, stats); err != nil {
		return stats, fmt.Errorf("apply transfers: %w", err)
	}
	seeded := time.Now()

	expected := plan.Expected(starting)
	if err := r.verifyBalances(ctx, plan, expected, stats); err != nil {
		return stats, err
	}
	if err := r.verifyLeaderboard(ctx, plan, expected, seeded, stats); err != nil {
		return stats, err
	}
	if r.cfg.Output != "" {
		if err := savePlan(r.cfg.Output, plan); err != nil {
			r.logger.Warn(ctx, "failed to save plan", logger.Error(err))
		}
	}

	stats.Duration = time.Since(stats.StartTime)
	r.logger.Info(ctx, "seeding completed",
		logger.Int64("seed", seed),
		logger.Int("playersRegistered", stats.PlayersRegistered),
		logger.Int("depositsApplied", stats.DepositsApplied),
		logger.Int("transfersApplied", stats.TransfersApplied),
		logger.Int("transfersRejected", stats.TransfersRejected),
		logger.Int("replays", stats.Replays),
		logger.Int("balancesVerified", stats.BalancesVerified),
		logger.Int("leaderboardSize", stats.LeaderboardSize),
		logger.Duration("duration", stats.Duration),
	)
	return stats, nil
}

func (r *Runner) checkHealth(ctx context.Context) error {
	resp, err := r.client.Do(ctx, http.MethodGet, "/healthz", nil, "")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnhealthy, err)
	}
	if resp.Status != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnhealthy, resp.Status)
	}
	return nil
}

// currency resolves the configured currency, or the service default, and
// its starting balance.
func (r *Runner) currency(ctx context.Context) (string, decimal.Decimal, error) {
	resp, err := r.client.Do(ctx, http.MethodGet, "/api/v1/currencies", nil, "")
	if err != nil {
		return "", decimal.Zero, err
	}
	if err := expect(resp, "list currencies", http.StatusOK); err != nil {
		return "", decimal.Zero, err
	}
	var body struct {
		Currencies []struct {
			ID              string          `json:"id"`
			StartingBalance decimal.Decimal `json:"starting_balance"`
			Default         bool            `json:"default"`
		} `json:"currencies"`
	}
	if err := resp.Decode(&body); err != nil {
		return "", decimal.Zero, err
	}
	for _, c := range body.Currencies {
		if (r.cfg.Currency == "" && c.Default) || c.ID == r.cfg.Currency {
			return c.ID, c.StartingBalance, nil
		}
	}
	return "", decimal.Zero, fmt.Errorf("%w: %q", ErrUnknownCurr, r.cfg.Currency)
}

// parallel runs fn for every index in [0, n) on the configured workers and
// returns the first error.
func (r *Runner) parallel(parent context.Context, n int, fn func(ctx context.Context, i int) error) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	jobs := make(chan int, r.cfg.Workers*2)
	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	for range r.cfg.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if err := fn(ctx, i); err != nil {
					once.Do(func() {
						firstErr = err
						cancel()
					})
				}
			}
		}()
	}
	func() {
		defer close(jobs)
		for i := range n {
			select {
			case <-ctx.Done():
				return
			case jobs <- i:
			}
		}
	}()
	wg.Wait()
	if firstErr != nil {
		return firstErr
	}
	return parent.Err()
}

func (r *Runner) register(ctx context.Context, plan *Plan, stats *Stats) error {
	var done atomic.Int64
	err := r.parallel(ctx, len(plan.Players), func(ctx context.Context, i int) error {
		pl := plan.Players[i]
		resp, err := r.client.Do(ctx, http.MethodPut, "/api/v1/players/"+pl.ID, map[string]string{"name": pl.Name}, "register-"+pl.ID)
		if err != nil {
			return err
		}
		if err := expect(resp, "register "+pl.ID, http.StatusOK); err != nil {
			return err
		}
		done.Add(1)
		return nil
	})
	stats.PlayersRegistered = int(done.Load())
	return err
}

func (r *Runner) deposit(ctx context.Context, plan *Plan, stats *Stats) error {
	var applied, replays atomic.Int64
	err := r.parallel(ctx, len(plan.Players), func(ctx context.Context, i int) error {
		pl := plan.Players[i]
		path := "/api/v1/accounts/" + pl.ID + "/balances/" + plan.Currency + "/deposit"
		for j, amt := range pl.Deposits {
			key := fmt.Sprintf("deposit-%s-%d", pl.ID, j)
			body := map[string]string{"amount": amt.String()}
			resp, err := r.client.Do(ctx, http.MethodPost, path, body, key)
			if err != nil {
				return err
			}
			if err := expect(resp, "deposit "+pl.ID, http.StatusOK); err != nil {
				return err
			}
			applied.Add(1)

			if r.cfg.Replay && j == 0 {
				again, err := r.client.Do(ctx, http.MethodPost, path, body, key)
				if err != nil {
					return err
				}
				if !again.Replay || again.Status != resp.Status {
					return fmt.Errorf("%w: deposit %s", ErrNoReplay, key)
				}
				replays.Add(1)
			}
		}
		return nil
	})
	stats.DepositsApplied = int(applied.Load())
	stats.Replays = int(replays.Load())
	return err
}

// transfer applies transfers in plan order so that rejections match
// Plan.Expected.
func (r *Runner) transfer(ctx context.Context, plan *Plan, stats *Stats) error {
	for i, t := range plan.Transfers {
		body := map[string]string{"to": t.To, "amount": t.Amount.String(), "currency": plan.Currency}
		resp, err := r.client.Do(ctx, http.MethodPost, "/api/v1/accounts/"+t.From+"/transfers", body, fmt.Sprintf("transfer-%s-%d", t.From, i))
		if err != nil {
			return err
		}
		switch resp.Status {
		case http.StatusOK:
			stats.TransfersApplied++
		case http.StatusConflict:
			stats.TransfersRejected++
		default:
			stats.Failures++
			return expect(resp, "transfer", http.StatusOK, http.StatusConflict)
		}
	}
	return nil
}

func (r *Runner) verifyBalances(ctx context.Context, plan *Plan, expected map[string]decimal.Decimal, stats *Stats) error {
	var verified atomic.Int64
	err := r.parallel(ctx, len(plan.Players), func(ctx context.Context, i int) error {
		id := plan.Players[i].ID
		resp, err := r.client.Do(ctx, http.MethodGet, "/api/v1/accounts/"+id+"/balances/"+plan.Currency, nil, "")
		if err != nil {
			return err
		}
		if err := expect(resp, "balance "+id, http.StatusOK); err != nil {
			return err
		}
		var body struct {
			Balance decimal.Decimal `json:"balance"`
		}
		if err := resp.Decode(&body); err != nil {
			return err
		}
		if err := VerifyBalance(id, body.Balance, expected[id]); err != nil {
			return err
		}
		verified.Add(1)
		return nil
	})
	stats.BalancesVerified = int(verified.Load())
	return err
}

// verifyLeaderboard waits for a snapshot computed after seeded and checks
// it against the expected balances.
func (r *Runner) verifyLeaderboard(ctx context.Context, plan *Plan, expected map[string]decimal.Decimal, seeded time.Time, stats *Stats) error {
	names := make(map[string]string, len(plan.Players))
	for _, pl := range plan.Players {
		names[pl.ID] = pl.Name
	}
	path := "/api/v1/leaderboard?wait=true&currency=" + url.QueryEscape(plan.Currency)
	deadline := time.Now().Add(r.LeaderboardDeadline)

	for {
		resp, err := r.client.Do(ctx, http.MethodGet, path, nil, "")
		if err != nil {
			return err
		}
		if err := expect(resp, "leaderboard", http.StatusOK, http.StatusAccepted); err != nil {
			return err
		}
		var view struct {
			Snapshot *struct {
				Entries    []Entry   `json:"entries"`
				ComputedAt time.Time `json:"computed_at"`
			} `json:"snapshot"`
		}
		if err := resp.Decode(&view); err != nil {
			return err
		}
		if view.Snapshot != nil && !view.Snapshot.ComputedAt.Before(seeded) {
			stats.LeaderboardSize = len(view.Snapshot.Entries)
			return VerifyLeaderboard(view.Snapshot.Entries, expected, names)
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: no leaderboard computed after seeding within %s", ErrMismatch, r.LeaderboardDeadline)
		}
		r.logger.Debug(ctx, "leaderboard not refreshed yet")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(leaderboardPoll):
		}
	}
}

// savePlan writes plan as indented JSON.
func savePlan(filename string, plan *Plan) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}
	if err := os.WriteFile(filename, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", filename, err)
	}
	return nil
}

// Run seeds the service at cfg.BaseURL with the global logger.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	return NewRunner(cfg, nil).Run(ctx)
}
