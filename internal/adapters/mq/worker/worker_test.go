package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/tally/internal/adapters/mq/queue"
	"github.com/okian/tally/internal/adapters/mq/worker"
	"github.com/okian/tally/internal/domain/ledger"
	logging "github.com/okian/tally/pkg/logger"
)

type mockQueue struct {
	events chan queue.Event
	once   sync.Once
}

func newMockQueue() *mockQueue {
	return &mockQueue{events: make(chan queue.Event, 10)}
}

func (mq *mockQueue) Dequeue() <-chan queue.Event { return mq.events }

func (mq *mockQueue) Close() error {
	mq.once.Do(func() { close(mq.events) })
	return nil
}

// recorder is a Handler remembering the accounts it saw.
type recorder struct {
	name string
	fail map[string]error

	mu   sync.Mutex
	seen []string
}

func newRecorder(name string) *recorder {
	return &recorder{name: name, fail: make(map[string]error)}
}

func (r *recorder) Name() string { return r.name }

func (r *recorder) Handle(_ context.Context, e queue.Event) error { //nolint:gocritic // hugeParam: mirrors Handler
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, e.Result.Account)
	return r.fail[e.Result.Account]
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}

func event(account string) queue.Event {
	return queue.Event{
		ID:         "evt-" + account,
		EnqueuedAt: time.Now(),
		Result: ledger.Result{
			Account: account, Currency: "dollar", Amount: decimal.NewFromInt(5),
			Outcome: ledger.Success, Kind: ledger.Deposit,
		},
	}
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a worker with two handlers", t, func() {
		_ = logging.Init()

		q := newMockQueue()
		first, second := newRecorder("first"), newRecorder("second")
		w := worker.NewInMemoryWorker(q, []worker.Handler{first, second}, worker.WithName("test-worker"))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		convey.Convey("When an event arrives", func() {
			q.events <- event("a")

			convey.Convey("Then every handler sees it", func() {
				convey.So(eventually(func() bool { return first.count() == 1 && second.count() == 1 }), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the first handler fails", func() {
			first.fail["b"] = errors.New("boom")
			q.events <- event("b")
			q.events <- event("c")

			convey.Convey("Then the other handler and later events still run", func() {
				convey.So(eventually(func() bool { return second.count() == 2 }), convey.ShouldBeTrue)
				convey.So(first.count(), convey.ShouldEqual, 2)
			})
		})

		convey.Convey("When the worker is shut down", func() {
			shutdownCtx, stop := context.WithTimeout(context.Background(), time.Second)
			defer stop()

			convey.Convey("Then it stops promptly", func() {
				convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
			})
		})
	})
}

func TestPool(t *testing.T) {
	convey.Convey("Given a pool over a real queue", t, func() {
		_ = logging.Init()

		q := queue.NewInMemoryQueue(queue.WithCapacity(64))
		h := newRecorder("recorder")
		var calls sync.WaitGroup
		calls.Add(20)
		counted := worker.HandlerFunc{ID: "counter", Fn: func(context.Context, queue.Event) error {
			calls.Done()
			return nil
		}}
		pool := worker.NewPool(4, q, h, counted)
		pool.Start(context.Background())

		convey.So(pool.Size(), convey.ShouldEqual, 4)

		convey.Convey("When events are enqueued and the pool shuts down", func() {
			for i := 0; i < 20; i++ {
				convey.So(q.Enqueue(context.Background(), event("acct")), convey.ShouldBeNil)
			}
			calls.Wait()
			err := pool.Shutdown(context.Background())

			convey.Convey("Then every event was dispatched once", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(h.count(), convey.ShouldEqual, 20)
				convey.So(pool.Processed(), convey.ShouldEqual, 20)
				convey.So(q.IsClosed(), convey.ShouldBeTrue)
			})
		})
	})
}
