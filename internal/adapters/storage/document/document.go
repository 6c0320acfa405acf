// Package document implements the storage backend as one YAML document
// holding a subtree per account key. The tree lives in memory; writes are
// persisted by a debounced saver that coalesces save requests.
package document

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.yaml.in/yaml/v3"

	"github.com/okian/tally/internal/adapters/storage"
	"github.com/okian/tally/pkg/logger"
	"github.com/okian/tally/pkg/metrics"
)

const (
	defaultDebounce = 500 * time.Millisecond
	filePermission  = 0o600
	dirPermission   = 0o750
)

// Store is the document backend.
type Store struct {
	path     string
	debounce time.Duration
	logger   logger.Logger

	mu      sync.RWMutex
	records map[string]*record
	version uint64

	writeMu sync.Mutex
	flushed atomic.Uint64

	saveReq chan struct{}
	stop    chan struct{}
	done    chan struct{}
	closed  atomic.Bool
}

var (
	_ storage.Backend        = (*Store)(nil)
	_ storage.Scanner        = (*Store)(nil)
	_ storage.JobInitializer = (*Store)(nil)
)

// Open loads path (a missing file is an empty tree) and starts the saver.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	s := &Store{
		path:     path,
		debounce: defaultDebounce,
		records:  make(map[string]*record),
		saveReq:  make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("document-store")
	}

	if err := s.load(ctx); err != nil {
		return nil, err
	}
	go s.saver()
	return s, nil
}

func (s *Store) load(ctx context.Context) error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", s.path, err)
	}
	records, bad, err := decodeTree(data)
	if err != nil {
		return fmt.Errorf("decode %s: %w", s.path, err)
	}
	for key, derr := range bad {
		s.logger.Warn(ctx, "skipping unreadable account entry", logger.String("key", key), logger.Error(derr))
	}
	s.records = records
	metrics.UpdateDocumentAccounts(len(records))
	s.logger.Info(ctx, "document loaded", logger.String("path", s.path), logger.Int("accounts", len(records)))
	return nil
}

// Kind implements storage.Backend.
func (s *Store) Kind() string { return storage.KindDocument }

// RequestSave asks the saver to persist the tree. Requests arriving while
// one is pending are merged into it.
func (s *Store) RequestSave() {
	select {
	case s.saveReq <- struct{}{}:
	default:
	}
}

func (s *Store) saver() {
	defer close(s.done)
	for {
		select {
		case <-s.stop:
			return
		case <-s.saveReq:
		}

		timer := time.NewTimer(s.debounce)
		select {
		case <-s.stop:
			timer.Stop()
			return
		case <-timer.C:
		}
		// Drop a request that arrived during the wait; this flush covers it.
		select {
		case <-s.saveReq:
		default:
		}
		if err := s.Flush(context.Background()); err != nil {
			s.logger.Warn(context.Background(), "background save failed", logger.Error(err))
		}
	}
}

// Flush writes the tree to disk when it changed since the last flush. The
// file is replaced atomically via a temporary sibling.
func (s *Store) Flush(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { storage.Observe(s.Kind(), "flush", start, err) }()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	version := s.version
	if version == s.flushed.Load() {
		s.mu.RUnlock()
		return nil
	}
	data, err := yaml.Marshal(s.records)
	count := len(s.records)
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	err = writeAtomic(s.path, data)
	metrics.RecordDocumentSave(float64(time.Since(start).Milliseconds()), err)
	if err != nil {
		return err
	}
	s.flushed.Store(version)
	metrics.UpdateDocumentAccounts(count)
	s.logger.Debug(ctx, "document saved", logger.Int("accounts", count))
	return nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPermission); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), filePermission); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

// Close stops the saver and performs a final flush.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(s.stop)
	<-s.done
	return s.Flush(context.Background())
}

// read runs fn under the read lock against the record for id.
func (s *Store) read(id string, fn func(r *record)) error {
	if s.closed.Load() {
		return storage.ErrClosed
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.records[id]; ok {
		fn(r)
	}
	return nil
}

// write runs fn under the write lock and schedules a save. A missing record
// yields storage.ErrNoRecord.
func (s *Store) write(op, id string, fn func(r *record)) (err error) {
	start := time.Now()
	defer func() { storage.Observe(s.Kind(), op, start, err) }()

	if s.closed.Load() {
		return storage.ErrClosed
	}
	s.mu.Lock()
	r, ok := s.records[id]
	if !ok {
		s.mu.Unlock()
		return storage.ErrNoRecord
	}
	fn(r)
	s.version++
	s.mu.Unlock()
	s.RequestSave()
	return nil
}

// Exists implements storage.Accounts.
func (s *Store) Exists(_ context.Context, id string) (bool, error) {
	if s.closed.Load() {
		return false, storage.ErrClosed
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[id]
	return ok, nil
}

// Create implements storage.Accounts. An existing record only gains the
// balance fields it lacks.
func (s *Store) Create(_ context.Context, id string, d storage.Defaults) (err error) {
	start := time.Now()
	defer func() { storage.Observe(s.Kind(), "create", start, err) }()

	if s.closed.Load() {
		return storage.ErrClosed
	}
	s.mu.Lock()
	r, ok := s.records[id]
	changed := !ok
	if !ok {
		r = newRecord()
		job, on := d.Job, d.Notifications
		r.Job, r.Notifications = &job, &on
		s.records[id] = r
	}
	for cur, amount := range d.Balances {
		if _, has := r.Balances[cur]; !has {
			r.Balances[cur] = amount
			changed = true
		}
	}
	if changed {
		s.version++
	}
	s.mu.Unlock()
	if changed {
		s.RequestSave()
	}
	return nil
}

// Keys implements storage.Scanner.
func (s *Store) Keys(_ context.Context) ([]string, error) {
	if s.closed.Load() {
		return nil, storage.ErrClosed
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.records), nil
}

// Balance implements storage.Balances.
func (s *Store) Balance(_ context.Context, id, currency string) (d decimal.Decimal, found bool, err error) {
	err = s.read(id, func(r *record) {
		d, found = r.Balances[currency]
	})
	return d, found, err
}

// SetBalance implements storage.Balances.
func (s *Store) SetBalance(_ context.Context, id, currency string, amount decimal.Decimal) error {
	return s.write("set_balance", id, func(r *record) {
		r.Balances[currency] = amount
	})
}

// Job implements storage.Jobs.
func (s *Store) Job(_ context.Context, id string) (job string, found bool, err error) {
	err = s.read(id, func(r *record) {
		if r.Job != nil {
			job, found = *r.Job, true
		}
	})
	return job, found, err
}

// SetJob implements storage.Jobs.
func (s *Store) SetJob(_ context.Context, id, job string) error {
	return s.write("set_job", id, func(r *record) {
		r.Job = &job
	})
}

// EnsureJobStats implements storage.JobInitializer: level 1 and exp 0 are
// written for job unless present.
func (s *Store) EnsureJobStats(_ context.Context, id, job string) error {
	return s.write("ensure_job_stats", id, func(r *record) {
		st := r.stats(job)
		if st.Level == nil {
			lvl := 1
			st.Level = &lvl
		}
		if st.Exp == nil {
			exp := 0
			st.Exp = &exp
		}
	})
}

// Level implements storage.Jobs.
func (s *Store) Level(_ context.Context, id, job string) (lvl int, found bool, err error) {
	err = s.read(id, func(r *record) {
		if st, ok := r.Stats[job]; ok && st.Level != nil {
			lvl, found = *st.Level, true
		}
	})
	return lvl, found, err
}

// SetLevel implements storage.Jobs.
func (s *Store) SetLevel(_ context.Context, id, job string, level int) error {
	return s.write("set_level", id, func(r *record) {
		r.stats(job).Level = &level
	})
}

// Exp implements storage.Jobs.
func (s *Store) Exp(_ context.Context, id, job string) (exp int, found bool, err error) {
	err = s.read(id, func(r *record) {
		if st, ok := r.Stats[job]; ok && st.Exp != nil {
			exp, found = *st.Exp, true
		}
	})
	return exp, found, err
}

// SetExp implements storage.Jobs.
func (s *Store) SetExp(_ context.Context, id, job string, exp int) error {
	return s.write("set_exp", id, func(r *record) {
		r.stats(job).Exp = &exp
	})
}

// Notifications implements storage.Jobs.
func (s *Store) Notifications(_ context.Context, id string) (on, found bool, err error) {
	err = s.read(id, func(r *record) {
		if r.Notifications != nil {
			on, found = *r.Notifications, true
		}
	})
	return on, found, err
}

// SetNotifications implements storage.Jobs.
func (s *Store) SetNotifications(_ context.Context, id string, on bool) error {
	return s.write("set_notifications", id, func(r *record) {
		r.Notifications = &on
	})
}

// Option implements storage.Jobs.
func (s *Store) Option(_ context.Context, id, option string) (v string, found bool, err error) {
	err = s.read(id, func(r *record) {
		v, found = r.Options[option]
	})
	return v, found, err
}

// SetOption implements storage.Jobs.
func (s *Store) SetOption(_ context.Context, id, option, value string) error {
	return s.write("set_option", id, func(r *record) {
		r.Options[option] = value
	})
}
