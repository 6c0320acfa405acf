// Package progression tracks the current job of an account and its level
// and experience in every job it held. Switching jobs never resets the
// record of another job.
package progression

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/okian/tally/internal/adapters/storage"
	"github.com/okian/tally/internal/domain/jobs"
	"github.com/okian/tally/internal/domain/keylock"
	"github.com/okian/tally/pkg/logger"
	"github.com/okian/tally/pkg/metrics"
)

// Option ids an account can toggle.
const (
	BlockBreakInfo = "block-break-info"
	BlockPlaceInfo = "block-place-info"
	EntityKillInfo = "entity-kill-info"
	EntityFishInfo = "entity-fish-info"
)

// Options lists the known option ids.
var Options = []string{BlockBreakInfo, BlockPlaceInfo, EntityKillInfo, EntityFishInfo} //nolint:gochecknoglobals // fixed catalogue

const (
	defaultLevel = 1
	optionOff    = "0"
	optionOn     = "1"
)

// Store is the slice of the persistence contract progression needs.
type Store interface {
	storage.Jobs
	Flush(ctx context.Context) error
}

// Progression hands out per-account progression handles.
type Progression struct {
	store  Store
	jobs   *jobs.Registry
	curve  jobs.Curve
	locks  *keylock.Striped
	logger logger.Logger
}

// New creates a Progression over store.
func New(store Store, registry *jobs.Registry, opts ...Option) *Progression {
	p := &Progression{
		store: store,
		jobs:  registry,
		curve: jobs.NewCurve(0),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.locks == nil {
		p.locks = keylock.New()
	}
	if p.logger == nil {
		p.logger = logger.Get().Named("progression")
	}
	return p
}

// Jobs returns the job registry.
func (p *Progression) Jobs() *jobs.Registry { return p.jobs }

// Curve returns the experience curve.
func (p *Progression) Curve() jobs.Curve { return p.curve }

// For returns the handle of account id. The account record must exist.
func (p *Progression) For(id string) *Player {
	return &Player{p: p, id: id}
}

// Player is the progression view of one account.
type Player struct {
	p  *Progression
	id string
}

// Info summarizes the current job.
type Info struct {
	Job        string `json:"job"`
	Level      int    `json:"level"`
	Exp        int    `json:"exp"`
	ExpToLevel int    `json:"exp_to_level"`
}

// Grant is the outcome of GrantExp.
type Grant struct {
	Job          string `json:"job"`
	Level        int    `json:"level"`
	Exp          int    `json:"exp"`
	LevelsGained int    `json:"levels_gained"`
}

// CurrentJobName returns the current job, or unemployed when unset.
func (pl *Player) CurrentJobName(ctx context.Context) (string, error) {
	job, found, err := pl.p.store.Job(ctx, pl.id)
	if err != nil {
		return "", err
	}
	if !found || job == "" {
		return jobs.Unemployed, nil
	}
	return job, nil
}

// JobLevel returns the level in job, defaulting to 1.
func (pl *Player) JobLevel(ctx context.Context, job string) (int, error) {
	lvl, found, err := pl.p.store.Level(ctx, pl.id, strings.ToLower(job))
	if err != nil {
		return 0, err
	}
	if !found || lvl < defaultLevel {
		return defaultLevel, nil
	}
	return lvl, nil
}

// JobExp returns the experience in job, defaulting to 0.
func (pl *Player) JobExp(ctx context.Context, job string) (int, error) {
	exp, found, err := pl.p.store.Exp(ctx, pl.id, strings.ToLower(job))
	if err != nil {
		return 0, err
	}
	if !found || exp < 0 {
		return 0, nil
	}
	return exp, nil
}

// CurrentJobLevel returns the level in the current job.
func (pl *Player) CurrentJobLevel(ctx context.Context) (int, error) {
	job, err := pl.CurrentJobName(ctx)
	if err != nil {
		return 0, err
	}
	return pl.JobLevel(ctx, job)
}

// CurrentJobExp returns the experience in the current job.
func (pl *Player) CurrentJobExp(ctx context.Context) (int, error) {
	job, err := pl.CurrentJobName(ctx)
	if err != nil {
		return 0, err
	}
	return pl.JobExp(ctx, job)
}

// ExpToLevel returns the experience at which the current level is left.
func (pl *Player) ExpToLevel(ctx context.Context) (int, error) {
	lvl, err := pl.CurrentJobLevel(ctx)
	if err != nil {
		return 0, err
	}
	return pl.p.curve.ExpToLevel(lvl), nil
}

// Info returns the current job summary.
func (pl *Player) Info(ctx context.Context) (Info, error) {
	job, err := pl.CurrentJobName(ctx)
	if err != nil {
		return Info{}, err
	}
	lvl, err := pl.JobLevel(ctx, job)
	if err != nil {
		return Info{}, err
	}
	exp, err := pl.JobExp(ctx, job)
	if err != nil {
		return Info{}, err
	}
	return Info{Job: job, Level: lvl, Exp: exp, ExpToLevel: pl.p.curve.ExpToLevel(lvl)}, nil
}

// SetCurrentJob assigns job and persists synchronously. It reports false
// when any write failed.
func (pl *Player) SetCurrentJob(ctx context.Context, job string) bool {
	job = strings.ToLower(job)
	if err := pl.p.store.SetJob(ctx, pl.id, job); err != nil {
		pl.warn(ctx, "set job failed", job, err)
		return false
	}
	if init, ok := pl.p.store.(storage.JobInitializer); ok {
		if err := init.EnsureJobStats(ctx, pl.id, job); err != nil {
			pl.warn(ctx, "init job stats failed", job, err)
			return false
		}
	}
	if err := pl.p.store.Flush(ctx); err != nil {
		pl.warn(ctx, "flush after job switch failed", job, err)
		return false
	}
	metrics.RecordJobSwitch(job)
	return true
}

// Join switches to job after checking its requirement against principal.
func (pl *Player) Join(ctx context.Context, job string, principal jobs.Principal) (Info, error) {
	def, err := pl.p.jobs.Resolve(job)
	if err != nil {
		return Info{}, err
	}
	if err := jobs.CheckRequirement(ctx, def, principal, pl); err != nil {
		return Info{}, err
	}
	if !pl.SetCurrentJob(ctx, def.Name) {
		return Info{}, ErrSwitchFailed
	}
	return pl.Info(ctx)
}

// SetCurrentJobLevel sets the level of the current job.
func (pl *Player) SetCurrentJobLevel(ctx context.Context, level int) error {
	if level < defaultLevel || level > jobs.MaxLevel {
		return fmt.Errorf("%w: %d", ErrInvalidLevel, level)
	}
	job, err := pl.CurrentJobName(ctx)
	if err != nil {
		return err
	}
	defer pl.lockJob(job)()
	if err := pl.p.store.SetLevel(ctx, pl.id, job, level); err != nil {
		pl.warn(ctx, "set level failed", job, err)
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	return nil
}

// AddExpToCurrentJob adds delta to the current job experience without
// applying level-ups. The result stays within [0, jobs.MaxExp].
func (pl *Player) AddExpToCurrentJob(ctx context.Context, delta int) (int, error) {
	job, err := pl.CurrentJobName(ctx)
	if err != nil {
		return 0, err
	}
	defer pl.lockJob(job)()
	exp, err := pl.JobExp(ctx, job)
	if err != nil {
		return 0, err
	}
	exp = jobs.AddExp(exp, delta)
	if err := pl.p.store.SetExp(ctx, pl.id, job, exp); err != nil {
		pl.warn(ctx, "add exp failed", job, err)
		return 0, fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	return exp, nil
}

// GrantExp adds delta to the current job experience and levels up along
// the curve.
func (pl *Player) GrantExp(ctx context.Context, delta int) (Grant, error) {
	job, err := pl.CurrentJobName(ctx)
	if err != nil {
		return Grant{}, err
	}
	defer pl.lockJob(job)()
	exp, err := pl.JobExp(ctx, job)
	if err != nil {
		return Grant{}, err
	}
	lvl, err := pl.JobLevel(ctx, job)
	if err != nil {
		return Grant{}, err
	}

	prev := exp
	exp = jobs.AddExp(exp, delta)
	next := pl.p.curve.Apply(lvl, exp)
	if err := pl.p.store.SetExp(ctx, pl.id, job, exp); err != nil {
		pl.warn(ctx, "grant exp failed", job, err)
		return Grant{}, fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	if next != lvl {
		if err := pl.p.store.SetLevel(ctx, pl.id, job, next); err != nil {
			pl.warn(ctx, "level up failed", job, err)
			// exp and level move together or not at all
			if rerr := pl.p.store.SetExp(ctx, pl.id, job, prev); rerr != nil {
				pl.warn(ctx, "restore exp failed", job, rerr)
				err = errors.Join(err, rerr)
			}
			return Grant{}, fmt.Errorf("%w: %w", ErrWriteFailed, err)
		}
		metrics.RecordLevelUp(job, next-lvl)
		pl.p.logger.Info(ctx, "level up", logger.String("account", pl.id), logger.String("job", job), logger.Int("level", next))
	}
	return Grant{Job: job, Level: next, Exp: exp, LevelsGained: next - lvl}, nil
}

// HasJobNotifications reports the notification flag, defaulting to on.
func (pl *Player) HasJobNotifications(ctx context.Context) (bool, error) {
	on, found, err := pl.p.store.Notifications(ctx, pl.id)
	if err != nil {
		return false, err
	}
	return on || !found, nil
}

// ToggleNotifications flips the notification flag and returns the new value.
func (pl *Player) ToggleNotifications(ctx context.Context) (bool, error) {
	defer pl.p.locks.Lock(pl.id, "notifications")()
	on, err := pl.HasJobNotifications(ctx)
	if err != nil {
		return false, err
	}
	if err := pl.p.store.SetNotifications(ctx, pl.id, !on); err != nil {
		pl.warn(ctx, "toggle notifications failed", "", err)
		return false, fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	return !on, nil
}

// Option returns the value of option, "0" when unset.
func (pl *Player) Option(ctx context.Context, option string) (string, error) {
	if !knownOption(option) {
		return "", fmt.Errorf("%w: %q", ErrUnknownOption, option)
	}
	v, found, err := pl.p.store.Option(ctx, pl.id, option)
	if err != nil {
		return "", err
	}
	if !found || v != optionOn {
		return optionOff, nil
	}
	return optionOn, nil
}

// ToggleOption flips option between "0" and "1" and returns the new value.
func (pl *Player) ToggleOption(ctx context.Context, option string) (string, error) {
	if !knownOption(option) {
		return "", fmt.Errorf("%w: %q", ErrUnknownOption, option)
	}
	defer pl.p.locks.Lock(pl.id, "option:"+option)()
	v, err := pl.Option(ctx, option)
	if err != nil {
		return "", err
	}
	next := optionOn
	if v == optionOn {
		next = optionOff
	}
	if err := pl.p.store.SetOption(ctx, pl.id, option, next); err != nil {
		pl.warn(ctx, "toggle option failed", "", err)
		return "", fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	return next, nil
}

func (pl *Player) lockJob(job string) func() {
	return pl.p.locks.Lock(pl.id, "job:"+job)
}

func (pl *Player) warn(ctx context.Context, msg, job string, err error) {
	pl.p.logger.Warn(ctx, msg, logger.String("account", pl.id), logger.String("job", job), logger.Error(err))
}

func knownOption(option string) bool {
	return slices.Contains(Options, option)
}
