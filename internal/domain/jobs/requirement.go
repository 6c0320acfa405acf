package jobs

import (
	"context"
	"fmt"
	"strings"
)

// Principal is the party asking to join a job.
type Principal interface {
	ID() string
	HasPermission(permission string) bool
}

// LevelSource reports the level an account holds in a job.
type LevelSource interface {
	JobLevel(ctx context.Context, job string) (int, error)
}

// NotPermittedError rejects a join for a missing permission.
type NotPermittedError struct {
	Job        string
	Permission string
}

func (e *NotPermittedError) Error() string {
	return fmt.Sprintf("not permitted to join job %q", e.Job)
}

// Unwrap returns ErrNotPermitted.
func (e *NotPermittedError) Unwrap() error { return ErrNotPermitted }

// LevelRequirementError rejects a join for a too low level in another job.
type LevelRequirementError struct {
	Job           string
	RequiredJob   string
	RequiredLevel int
	Level         int
}

func (e *LevelRequirementError) Error() string {
	return fmt.Sprintf("insufficient level: level %d as a %s required, have %d", e.RequiredLevel, e.RequiredJob, e.Level)
}

// Unwrap returns ErrLevelRequirement.
func (e *LevelRequirementError) Unwrap() error { return ErrLevelRequirement }

// CheckRequirement evaluates the join requirement of job for principal.
// The permission is checked before the level.
func CheckRequirement(ctx context.Context, job Job, p Principal, levels LevelSource) error {
	req := job.Requirement
	if req == nil {
		return nil
	}
	if req.Permission != "" && (p == nil || !p.HasPermission(req.Permission)) {
		return &NotPermittedError{Job: job.Name, Permission: req.Permission}
	}
	if req.Job == "" {
		return nil
	}
	lvl, err := levels.JobLevel(ctx, req.Job)
	if err != nil {
		return fmt.Errorf("check requirement of %s: %w", job.Name, err)
	}
	if req.Level > lvl {
		return &LevelRequirementError{Job: job.Name, RequiredJob: req.Job, RequiredLevel: req.Level, Level: lvl}
	}
	return nil
}

// Permissions is a Principal backed by a fixed permission set.
type Permissions struct {
	id  string
	set map[string]struct{}
}

// NewPermissions builds a Principal holding perms. An entry ending in ".*"
// grants every permission below its prefix.
func NewPermissions(id string, perms ...string) *Permissions {
	p := &Permissions{id: id, set: make(map[string]struct{}, len(perms))}
	for _, perm := range perms {
		if perm = strings.TrimSpace(perm); perm != "" {
			p.set[perm] = struct{}{}
		}
	}
	return p
}

// ID implements Principal.
func (p *Permissions) ID() string { return p.id }

// HasPermission implements Principal.
func (p *Permissions) HasPermission(perm string) bool {
	if _, ok := p.set[perm]; ok {
		return true
	}
	for i := len(perm) - 1; i > 0; i-- {
		if perm[i] != '.' {
			continue
		}
		if _, ok := p.set[perm[:i]+".*"]; ok {
			return true
		}
	}
	_, all := p.set["*"]
	return all
}
