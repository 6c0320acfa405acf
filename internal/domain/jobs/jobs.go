// Package jobs holds job definitions, join requirements and the experience
// curve that turns accumulated experience into levels.
package jobs

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/okian/tally/internal/domain/money"
)

// Unemployed is always registered.
const Unemployed = "unemployed"

var unemployedSalary = decimal.NewFromInt(20) //nolint:gochecknoglobals // default salary

// Requirement gates joining a job. Either part may be empty.
type Requirement struct {
	Permission string `json:"permission,omitempty"`
	Job        string `json:"job,omitempty"`
	Level      int    `json:"level,omitempty"`
}

// Action is the reward for performing action on target while holding a job.
type Action struct {
	Action   string          `json:"action"`
	Target   string          `json:"target"`
	Exp      int             `json:"exp"`
	Money    decimal.Decimal `json:"money"`
	Currency string          `json:"currency,omitempty"`
}

// Job is a read-only job definition.
type Job struct {
	Name        string          `json:"name"`
	Salary      decimal.Decimal `json:"salary"`
	Requirement *Requirement    `json:"requirement,omitempty"`
	Actions     []Action        `json:"actions,omitempty"`
}

// Reward finds the reward for action on target.
func (j Job) Reward(action, target string) (Action, bool) {
	for _, a := range j.Actions {
		if a.Action == action && a.Target == target {
			return a, true
		}
	}
	return Action{}, false
}

// Registry is the set of configured jobs keyed by lower-cased name.
type Registry struct {
	byName map[string]Job
}

// NewRegistry validates definitions. The unemployed job is added when
// missing.
func NewRegistry(defs ...Job) (*Registry, error) {
	r := &Registry{byName: make(map[string]Job, len(defs)+1)}
	for _, j := range defs {
		j.Name = strings.ToLower(strings.TrimSpace(j.Name))
		if !money.ValidID(j.Name) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidJob, j.Name)
		}
		if _, dup := r.byName[j.Name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateJob, j.Name)
		}
		for _, a := range j.Actions {
			if a.Action == "" || a.Target == "" || a.Exp < 0 || a.Money.IsNegative() {
				return nil, fmt.Errorf("%w: %s %s/%s", ErrInvalidAction, j.Name, a.Action, a.Target)
			}
		}
		if req := j.Requirement; req != nil {
			req.Job = strings.ToLower(req.Job)
			if req.Job != "" && req.Level < 1 {
				req.Level = 1
			}
		}
		r.byName[j.Name] = j
	}
	if _, ok := r.byName[Unemployed]; !ok {
		r.byName[Unemployed] = Job{Name: Unemployed, Salary: unemployedSalary}
	}
	return r, nil
}

// Lookup returns the job named name, case-insensitively.
func (r *Registry) Lookup(name string) (Job, bool) {
	j, ok := r.byName[strings.ToLower(name)]
	return j, ok
}

// Resolve is Lookup with an error.
func (r *Registry) Resolve(name string) (Job, error) {
	j, ok := r.Lookup(name)
	if !ok {
		return Job{}, fmt.Errorf("%w: %q", ErrUnknownJob, name)
	}
	return j, nil
}

// Names returns the sorted job names.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.byName))
	for n := range r.byName {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// All returns the jobs sorted by name.
func (r *Registry) All() []Job {
	names := r.Names()
	out := make([]Job, len(names))
	for i, n := range names {
		out[i] = r.byName[n]
	}
	return out
}
