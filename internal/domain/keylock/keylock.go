// Package keylock serializes read-modify-write sequences per (account, field)
// using a fixed set of striped mutexes.
package keylock

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

const defaultStripes = 256

// Striped maps keys onto a fixed pool of mutexes. Two distinct keys may share
// a stripe; that only costs contention, never correctness.
type Striped struct {
	stripes []sync.Mutex
}

// Option applies a configuration option to Striped.
type Option func(*Striped)

// WithStripes sets the number of mutexes. Values below one are ignored.
func WithStripes(n int) Option {
	return func(s *Striped) {
		if n > 0 {
			s.stripes = make([]sync.Mutex, n)
		}
	}
}

// New creates a Striped lock set.
func New(opts ...Option) *Striped {
	s := &Striped{stripes: make([]sync.Mutex, defaultStripes)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Striped) index(account, field string) int {
	d := xxhash.New()
	_, _ = d.WriteString(account)
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(field)
	return int(d.Sum64() % uint64(len(s.stripes)))
}

// Lock acquires the stripe of (account, field) and returns its release func.
func (s *Striped) Lock(account, field string) func() {
	m := &s.stripes[s.index(account, field)]
	m.Lock()
	return m.Unlock
}

// LockPair acquires the stripes of two keys in index order so that
// opposite transfers cannot deadlock.
func (s *Striped) LockPair(a1, f1, a2, f2 string) func() {
	i, j := s.index(a1, f1), s.index(a2, f2)
	if i == j {
		s.stripes[i].Lock()
		return s.stripes[i].Unlock
	}
	if i > j {
		i, j = j, i
	}
	s.stripes[i].Lock()
	s.stripes[j].Lock()
	return func() {
		s.stripes[j].Unlock()
		s.stripes[i].Unlock()
	}
}
