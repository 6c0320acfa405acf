package service_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	. "github.com/smartystreets/goconvey/convey"

	service "github.com/okian/tally/internal/app"
	"github.com/okian/tally/internal/adapters/mq/queue"
	"github.com/okian/tally/internal/adapters/mq/worker"
	"github.com/okian/tally/internal/config"
	"github.com/okian/tally/internal/domain/ledger"
	"github.com/okian/tally/pkg/logger"
	"github.com/okian/tally/pkg/metrics"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

const acct = "6f1c2d3e-4b5a-4c6d-8e7f-9a0b1c2d3e4f"

func testConfig(t *testing.T) *config.Config {
	cfg := config.New()
	cfg.DocumentPath = filepath.Join(t.TempDir(), "accounts.yaml")
	cfg.EventWorkers = 2
	cfg.EventQueueSize = 100
	cfg.SaveDebounceMS = 10
	return cfg
}

func TestRegistries(t *testing.T) {
	Convey("Given the default configuration", t, func() {
		cfg := config.New()

		Convey("Then the registries build", func() {
			cur, err := service.Currencies(cfg)
			So(err, ShouldBeNil)
			So(cur.Default().ID, ShouldEqual, "dollar")
			So(cur.Cap().String(), ShouldEqual, "10000000")

			jobs, err := service.Jobs(cfg)
			So(err, ShouldBeNil)
			So(jobs.Names(), ShouldContain, "miner")
			So(jobs.Names(), ShouldContain, "unemployed")
			miner, ok := jobs.Lookup("miner")
			So(ok, ShouldBeTrue)
			So(miner.Actions, ShouldHaveLength, 2)
		})
	})

	Convey("Given malformed amounts", t, func() {
		cfg := config.New()

		Convey("Then a bad money cap is rejected", func() {
			cfg.MoneyCap = "lots"
			_, err := service.Currencies(cfg)
			So(errors.Is(err, service.ErrWiring), ShouldBeTrue)
		})

		Convey("Then a negative starting balance is rejected", func() {
			cfg.Currencies[0].StartingBalance = "-1"
			_, err := service.Currencies(cfg)
			So(errors.Is(err, service.ErrWiring), ShouldBeTrue)
		})

		Convey("Then a bad salary is rejected", func() {
			cfg.Jobs["miner"] = config.Job{Salary: "x"}
			_, err := service.Jobs(cfg)
			So(errors.Is(err, service.ErrWiring), ShouldBeTrue)
		})
	})
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a new service", t, func() {
		svc := service.New(testConfig(t))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		Reset(func() { _ = svc.Stop(context.Background()) })

		Convey("Then it is not started", func() {
			So(svc.GetStats()["started"], ShouldBeFalse)
			_, err := svc.Dependencies()
			So(err, ShouldEqual, service.ErrNotStarted)
		})

		Convey("When started", func() {
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Start(ctx), ShouldBeNil)

			Convey("Then dependencies are wired", func() {
				deps, err := svc.Dependencies()
				So(err, ShouldBeNil)
				So(deps.Ledger, ShouldNotBeNil)
				So(deps.Progression, ShouldNotBeNil)
				So(deps.Leaderboard, ShouldNotBeNil)
				So(deps.Players, ShouldNotBeNil)
				So(deps.Deduper, ShouldNotBeNil)

				stats := svc.GetStats()
				So(stats["started"], ShouldBeTrue)
				So(stats["backend"], ShouldEqual, "document")
				So(stats["workerCount"], ShouldEqual, 2)
			})

			Convey("Then stopping twice is safe", func() {
				So(svc.Stop(ctx), ShouldBeNil)
				So(svc.Stop(ctx), ShouldBeNil)
				So(svc.GetStats()["started"], ShouldBeFalse)
			})
		})
	})

	Convey("Given an unknown backend", t, func() {
		cfg := testConfig(t)
		cfg.Backend = "mongo"
		svc := service.New(cfg)

		Convey("Then Start fails", func() {
			So(svc.Start(context.Background()), ShouldNotBeNil)
		})
	})
}

func TestService_Events(t *testing.T) {
	Convey("Given a service with an extra event handler", t, func() {
		var mu sync.Mutex
		var seen []ledger.Result
		h := worker.HandlerFunc{ID: "capture", Fn: func(_ context.Context, e queue.Event) error {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, e.Result)
			return nil
		}}
		svc := service.New(testConfig(t), service.WithHandlers(h))
		ctx := context.Background()
		So(svc.Start(ctx), ShouldBeNil)

		Convey("When a deposit is made and the service stops", func() {
			a, err := svc.Ledger().Open(ctx, acct)
			So(err, ShouldBeNil)
			r := a.Deposit(ctx, "dollar", decimal.NewFromInt(7))
			So(r.OK(), ShouldBeTrue)
			So(svc.Stop(ctx), ShouldBeNil)

			Convey("Then the handler received the result before shutdown finished", func() {
				mu.Lock()
				defer mu.Unlock()
				So(seen, ShouldHaveLength, 1)
				So(seen[0].Kind, ShouldEqual, ledger.Deposit)
				So(seen[0].Balance.String(), ShouldEqual, "7")
			})
		})
	})
}

// moved sums money_moved_total for currency across kinds.
func moved(currency string) map[string]float64 {
	out := map[string]float64{}
	families, _ := metrics.GetRegistry().Gather()
	for _, f := range families {
		if f.GetName() != "tally_ledger_money_moved_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			labels := map[string]string{}
			for _, l := range m.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			if labels["currency"] == currency {
				out[labels["kind"]] += m.GetCounter().GetValue()
			}
		}
	}
	return out
}

func TestMetricsHandler(t *testing.T) {
	Convey("Given the events of one transfer", t, func() {
		ctx := context.Background()
		h := service.MetricsHandler()
		ten := decimal.NewFromInt(10)
		for _, r := range []ledger.Result{
			{Account: acct, Currency: "shell", Kind: ledger.Withdraw, Amount: ten, Outcome: ledger.Success, Leg: true},
			{Account: acct, Currency: "shell", Kind: ledger.Deposit, Amount: ten, Outcome: ledger.Success, Leg: true},
			{Account: acct, Currency: "shell", Kind: ledger.Transfer, Amount: ten, Outcome: ledger.Success},
		} {
			So(h.Handle(ctx, queue.Event{Result: r, EnqueuedAt: time.Now()}), ShouldBeNil)
		}

		Convey("Then the amount is counted once, as a transfer", func() {
			So(moved("shell"), ShouldResemble, map[string]float64{"TRANSFER": 10})
		})
	})
}
