// Package leaderboard serves a periodically rebuilt top-balance snapshot per
// currency. Readers never see a partially built snapshot and never wait on
// a scan; only one scan per currency runs at a time.
package leaderboard

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/okian/tally/internal/adapters/storage"
	"github.com/okian/tally/internal/domain/money"
	"github.com/okian/tally/pkg/logger"
	"github.com/okian/tally/pkg/metrics"
)

const (
	defaultRefresh = time.Minute
	defaultLimit   = 10

	// UnknownName is shown for accounts the resolver cannot name.
	UnknownName = "unknown"
)

// IdentityResolver maps an account id to a display name.
type IdentityResolver interface {
	DisplayName(ctx context.Context, id string) (string, bool)
}

// Source enumerates accounts and reads balances without creating records.
type Source interface {
	Accounts(ctx context.Context) ([]string, error)
	Balance(ctx context.Context, id, currency string) (decimal.Decimal, error)
}

// Entry is one ranked row.
type Entry struct {
	Rank      int             `json:"rank"`
	Account   string          `json:"account"`
	Name      string          `json:"name"`
	Balance   decimal.Decimal `json:"balance"`
	Formatted string          `json:"formatted"`
}

// Snapshot is an immutable ranking of one currency.
type Snapshot struct {
	Currency   string    `json:"currency"`
	Entries    []Entry   `json:"entries"`
	ComputedAt time.Time `json:"computed_at"`
}

// Leader returns the name of the top entry, if any.
func (s *Snapshot) Leader() (string, bool) {
	if s == nil || len(s.Entries) == 0 {
		return "", false
	}
	return s.Entries[0].Name, true
}

// View is what a reader gets: the latest snapshot and whether a rebuild is
// running. Snapshot is nil before the first rebuild finished.
type View struct {
	Snapshot    *Snapshot `json:"snapshot"`
	Calculating bool      `json:"calculating"`
}

type board struct {
	snap atomic.Pointer[Snapshot]

	mu   sync.Mutex
	done chan struct{} // non-nil while a rebuild runs
}

// Cache holds one board per currency.
type Cache struct {
	source   Source
	ranker   storage.Ranker
	registry *money.Registry
	names    IdentityResolver
	refresh  time.Duration
	limit    int
	now      func() time.Time
	logger   logger.Logger

	mu     sync.Mutex
	boards map[string]*board

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool
}

// New creates a Cache.
func New(source Source, registry *money.Registry, names IdentityResolver, opts ...Option) *Cache {
	c := &Cache{
		source:   source,
		registry: registry,
		names:    names,
		refresh:  defaultRefresh,
		limit:    defaultLimit,
		now:      time.Now,
		boards:   make(map[string]*board),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.Get().Named("leaderboard")
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	return c
}

// Get returns the leaderboard of currency; an empty id selects the default.
// A fresh snapshot is returned as is. A stale one is rebuilt synchronously
// with a ranker, otherwise in the background while the previous snapshot
// is served with Calculating set.
func (c *Cache) Get(ctx context.Context, currency string) (View, error) {
	if c.closed.Load() {
		return View{}, ErrClosed
	}
	cur, err := c.registry.Resolve(currency)
	if err != nil {
		return View{}, err
	}
	b := c.board(cur.ID)
	snap := b.snap.Load()
	if snap != nil && !c.stale(snap) {
		return View{Snapshot: snap}, nil
	}

	if c.ranker != nil {
		snap, err := c.rank(ctx, cur)
		if err != nil {
			return View{Snapshot: b.snap.Load()}, err
		}
		b.snap.Store(snap)
		return View{Snapshot: snap}, nil
	}

	c.startScan(b, cur)
	metrics.RecordLeaderboardStaleServed()
	return View{Snapshot: snap, Calculating: true}, nil
}

// Wait blocks until no rebuild of currency is running.
func (c *Cache) Wait(ctx context.Context, currency string) error {
	cur, err := c.registry.Resolve(currency)
	if err != nil {
		return err
	}
	b := c.board(cur.ID)
	b.mu.Lock()
	done := b.done
	b.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops running rebuilds and waits for them.
func (c *Cache) Close() {
	if c.closed.Swap(true) {
		return
	}
	c.cancel()
	c.wg.Wait()
}

func (c *Cache) stale(s *Snapshot) bool {
	return c.now().Sub(s.ComputedAt) > c.refresh
}

func (c *Cache) board(currency string) *board {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.boards[currency]
	if !ok {
		b = &board{}
		c.boards[currency] = b
	}
	return b
}

// startScan launches a rebuild unless one is already running.
func (c *Cache) startScan(b *board, cur money.Currency) {
	b.mu.Lock()
	if b.done != nil {
		b.mu.Unlock()
		return
	}
	done := make(chan struct{})
	b.done = done
	b.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			b.mu.Lock()
			b.done = nil
			b.mu.Unlock()
			close(done)
		}()

		snap, err := c.scan(c.ctx, cur)
		if err != nil {
			c.logger.Warn(c.ctx, "leaderboard scan failed", logger.String("currency", cur.ID), logger.Error(err))
			return
		}
		b.snap.Store(snap)
	}()
}

// scan ranks every account key that parses as a UUID.
func (c *Cache) scan(ctx context.Context, cur money.Currency) (*Snapshot, error) {
	start := time.Now()
	keys, err := c.source.Accounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}

	entries := make([]Entry, 0, len(keys))
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, err := uuid.Parse(key); err != nil {
			continue
		}
		bal, err := c.source.Balance(ctx, key, cur.ID)
		if err != nil {
			c.logger.Debug(ctx, "skipping unreadable account", logger.String("account", key), logger.Error(err))
			continue
		}
		entries = append(entries, Entry{Account: key, Name: c.name(ctx, key), Balance: bal})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if cmp := entries[i].Balance.Cmp(entries[j].Balance); cmp != 0 {
			return cmp > 0
		}
		if entries[i].Name != entries[j].Name {
			return entries[i].Name < entries[j].Name
		}
		return entries[i].Account < entries[j].Account
	})
	if len(entries) > c.limit {
		entries = entries[:c.limit]
	}
	return c.finish(cur, entries, "scan", start), nil
}

// rank builds a snapshot from one ranked backend query.
func (c *Cache) rank(ctx context.Context, cur money.Currency) (*Snapshot, error) {
	start := time.Now()
	rows, err := c.ranker.TopBalances(ctx, cur.ID, c.limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	entries := make([]Entry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, Entry{Account: r.ID, Name: c.name(ctx, r.ID), Balance: r.Balance})
	}
	return c.finish(cur, entries, "query", start), nil
}

func (c *Cache) finish(cur money.Currency, entries []Entry, mode string, start time.Time) *Snapshot {
	for i := range entries {
		entries[i].Rank = i + 1
		entries[i].Formatted = cur.Format(entries[i].Balance)
	}
	snap := &Snapshot{Currency: cur.ID, Entries: entries, ComputedAt: c.now()}
	metrics.RecordLeaderboardRecompute(cur.ID, mode, float64(time.Since(start).Microseconds())/1000, snap.ComputedAt.Unix())
	return snap
}

func (c *Cache) name(ctx context.Context, id string) string {
	if c.names != nil {
		if n, ok := c.names.DisplayName(ctx, id); ok && n != "" {
			return n
		}
	}
	return UnknownName
}
