// Package dedupe remembers idempotency keys of applied mutations together
// with the response they produced, so a retried request is answered from
// memory instead of being applied twice.
package dedupe

import (
	"container/list"
	"context"
	"sync"
)

const defaultMaxSize = 10000

// Response is the recorded outcome of a completed request.
type Response struct {
	Status      int
	ContentType string
	Body        []byte
}

// State of a key.
type State int

// Key states returned by Begin.
const (
	// New means the caller now owns the key and must Complete or Abort it.
	New State = iota
	// Pending means another request with the same key is still running.
	Pending
	// Done means the key completed; the recorded Response is returned.
	Done
)

// Deduper records idempotency keys to ensure at-most-once application.
type Deduper interface {
	// Begin atomically claims key. Only a New result hands ownership to
	// the caller.
	Begin(ctx context.Context, key string) (State, Response)
	// Complete records the response of an owned key.
	Complete(ctx context.Context, key string, resp Response)
	// Abort releases an owned key so that it can be retried.
	Abort(ctx context.Context, key string)
	Size() int64
}

type entry struct {
	key  string
	done bool
	resp Response
}

// inMemoryDeduper keeps at most maxSize keys and evicts the oldest completed
// ones first. Pending keys are never evicted.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]*list.Element
	order   *list.List // oldest at front
	maxSize int
}

// NewInMemoryDeduper creates a new in-memory deduper.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		maxSize: defaultMaxSize,
		seen:    make(map[string]*list.Element),
		order:   list.New(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *inMemoryDeduper) Begin(_ context.Context, key string) (State, Response) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.seen[key]; ok {
		e := el.Value.(*entry) //nolint:forcetypeassert // list holds *entry only
		if e.done {
			return Done, e.resp
		}
		return Pending, Response{}
	}
	if d.maxSize > 0 && len(d.seen) >= d.maxSize {
		d.evict()
	}
	d.seen[key] = d.order.PushBack(&entry{key: key})
	return New, Response{}
}

func (d *inMemoryDeduper) Complete(_ context.Context, key string, resp Response) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if el, ok := d.seen[key]; ok {
		e := el.Value.(*entry) //nolint:forcetypeassert // list holds *entry only
		e.done = true
		e.resp = resp
	}
}

func (d *inMemoryDeduper) Abort(_ context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if el, ok := d.seen[key]; ok {
		d.order.Remove(el)
		delete(d.seen, key)
	}
}

// Size returns the current number of keys.
func (d *inMemoryDeduper) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.seen))
}

// evict drops the oldest completed key. Must be called with d.mu held.
func (d *inMemoryDeduper) evict() {
	for el := d.order.Front(); el != nil; el = el.Next() {
		e := el.Value.(*entry) //nolint:forcetypeassert // list holds *entry only
		if e.done {
			d.order.Remove(el)
			delete(d.seen, e.key)
			return
		}
	}
}
