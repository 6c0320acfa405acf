// Package service wires the ledger, job progression and leaderboard over
// the configured backend and owns their start/stop lifecycle.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okian/tally/internal/adapters/http/api"
	"github.com/okian/tally/internal/adapters/identity"
	eventqueue "github.com/okian/tally/internal/adapters/mq/queue"
	workerpool "github.com/okian/tally/internal/adapters/mq/worker"
	"github.com/okian/tally/internal/adapters/storage"
	"github.com/okian/tally/internal/config"
	"github.com/okian/tally/internal/domain/dedupe"
	"github.com/okian/tally/internal/domain/jobs"
	"github.com/okian/tally/internal/domain/keylock"
	"github.com/okian/tally/internal/domain/ledger"
	"github.com/okian/tally/internal/domain/leaderboard"
	"github.com/okian/tally/internal/domain/progression"
	"github.com/okian/tally/pkg/logger"
	"github.com/okian/tally/pkg/metrics"
)

// Service owns every long-lived component of the process.
type Service struct {
	mu sync.RWMutex

	cfg      *config.Config
	handlers []workerpool.Handler

	// Core components
	backend     storage.Backend
	ledger      *ledger.Ledger
	progression *progression.Progression
	leaderboard *leaderboard.Cache
	players     *identity.Directory
	deduper     dedupe.Deduper
	eventQueue  *eventqueue.InMemoryQueue
	workerPool  *workerpool.Pool

	// State
	started   bool
	startedAt time.Time

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithHandlers adds transaction event handlers next to the built-in
// journal and metrics handlers.
func WithHandlers(h ...workerpool.Handler) Option {
	return func(s *Service) {
		s.handlers = append(s.handlers, h...)
	}
}

// WithBackend uses b instead of opening the configured backend. The
// service closes it on Stop.
func WithBackend(b storage.Backend) Option {
	return func(s *Service) {
		s.backend = b
	}
}

// New constructs a Service; nothing is opened until Start.
func New(cfg *config.Config, opts ...Option) *Service {
	if cfg == nil {
		cfg = config.New()
	}
	s := &Service{cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	return s
}

// Start opens the backend and starts the event workers.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.logger.Info(ctx, "starting tally service...", logger.String("backend", s.cfg.Backend))

	currencies, err := Currencies(s.cfg)
	if err != nil {
		return err
	}
	registry, err := Jobs(s.cfg)
	if err != nil {
		return err
	}

	if s.backend == nil {
		b, err := OpenBackend(ctx, s.cfg, currencies, registry, s.logger)
		if err != nil {
			return fmt.Errorf("open backend: %w", err)
		}
		s.backend = b
	}

	s.eventQueue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.cfg.EventQueueSize))
	handlers := append([]workerpool.Handler{
		JournalHandler(s.logger.Named("journal")),
		MetricsHandler(),
	}, s.handlers...)
	s.workerPool = workerpool.NewPool(s.cfg.EventWorkers, s.eventQueue, handlers...)
	s.workerPool.Start(context.WithoutCancel(ctx))

	locks := keylock.New()
	s.ledger = ledger.New(s.backend, currencies,
		ledger.WithLocks(locks),
		ledger.WithSink(eventqueue.NewPublisher(s.eventQueue)),
		ledger.WithLogger(s.logger.Named("ledger")),
	)
	s.progression = progression.New(s.backend, registry,
		progression.WithCurve(jobs.NewCurve(s.cfg.ExpBase)),
		progression.WithLocks(locks),
		progression.WithLogger(s.logger.Named("progression")),
	)
	s.players = identity.NewDirectory()

	lbOpts := []leaderboard.Option{
		leaderboard.WithRefresh(time.Duration(s.cfg.LeaderboardRefreshS) * time.Second),
		leaderboard.WithLogger(s.logger.Named("leaderboard")),
	}
	if r, ok := s.backend.(storage.Ranker); ok {
		lbOpts = append(lbOpts, leaderboard.WithRanker(r))
	}
	s.leaderboard = leaderboard.New(s.ledger, currencies, s.players, lbOpts...)
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.cfg.DedupeSize))

	s.started = true
	s.startedAt = time.Now()
	s.logger.Info(ctx, "tally service started",
		logger.String("backend", s.backend.Kind()),
		logger.Int("currencies", len(currencies.All())),
		logger.Int("jobs", len(registry.Names())),
		logger.Int("workers", s.workerPool.Size()),
		logger.Int("queueSize", s.cfg.EventQueueSize),
	)
	return nil
}

// Stop drains the event queue, flushes and closes the backend.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping tally service...")

	var errs []error
	s.leaderboard.Close()
	if err := s.workerPool.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := s.backend.Flush(ctx); err != nil {
		errs = append(errs, fmt.Errorf("flush backend: %w", err))
	}
	if err := s.backend.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close backend: %w", err))
	}
	s.backend = nil

	s.started = false
	s.logger.Info(ctx, "tally service stopped")
	return errors.Join(errs...)
}

// Dependencies returns the components the HTTP API needs.
func (s *Service) Dependencies() (api.Dependencies, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return api.Dependencies{}, ErrNotStarted
	}
	return api.Dependencies{
		Ledger:      s.ledger,
		Progression: s.progression,
		Leaderboard: s.leaderboard,
		Players:     s.players,
		Deduper:     s.deduper,
		Stats:       s,
	}, nil
}

// Ledger returns the account ledger, nil before Start.
func (s *Service) Ledger() *ledger.Ledger {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ledger
}

// Progression returns the job progression store, nil before Start.
func (s *Service) Progression() *progression.Progression {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.progression
}

// Leaderboard returns the leaderboard cache, nil before Start.
func (s *Service) Leaderboard() *leaderboard.Cache {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.leaderboard
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":    s.started,
		"backend":    s.cfg.Backend,
		"queueSize":  s.cfg.EventQueueSize,
		"dedupeSize": s.cfg.DedupeSize,
	}
	if !s.started {
		return stats
	}

	queueLen := s.eventQueue.Len()
	stats["backend"] = s.backend.Kind()
	stats["uptimeSeconds"] = int64(time.Since(s.startedAt).Seconds())
	stats["workerCount"] = s.workerPool.Size()
	stats["eventsProcessed"] = s.workerPool.Processed()
	stats["queueLength"] = queueLen
	stats["idempotencyKeys"] = s.deduper.Size()
	stats["players"] = s.players.Len()
	stats["currencies"] = s.ledger.Registry().IDs()

	metrics.UpdateQueueSize(queueLen, s.cfg.EventQueueSize)
	return stats
}
