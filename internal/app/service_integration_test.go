package service_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	. "github.com/smartystreets/goconvey/convey"

	service "github.com/okian/tally/internal/app"
	"github.com/okian/tally/internal/config"
	"github.com/okian/tally/internal/domain/ledger"
)

const other = "0a9b8c7d-6e5f-4a3b-9c2d-1e0f9a8b7c6d"

// exercise runs the same scenario against any backend and reopens the
// service to check durability.
func exercise(cfg *config.Config) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	svc := service.New(cfg)
	So(svc.Start(ctx), ShouldBeNil)

	l := svc.Ledger()
	a, err := l.Open(ctx, acct)
	So(err, ShouldBeNil)
	_, err = l.Open(ctx, other)
	So(err, ShouldBeNil)

	So(a.Deposit(ctx, "dollar", decimal.RequireFromString("150.759")).OK(), ShouldBeTrue)
	tr := a.Transfer(ctx, other, "dollar", decimal.NewFromInt(50))
	So(tr.Outcome, ShouldEqual, ledger.Success)
	So(a.Withdraw(ctx, "dollar", decimal.NewFromInt(1000)).Outcome, ShouldEqual, ledger.InsufficientFunds)

	pl := svc.Progression().For(acct)
	So(pl.SetCurrentJob(ctx, "miner"), ShouldBeTrue)
	g, err := pl.GrantExp(ctx, 120)
	So(err, ShouldBeNil)
	So(g.Level, ShouldEqual, 2)

	lb := svc.Leaderboard()
	view, err := lb.Get(ctx, "dollar")
	So(err, ShouldBeNil)
	if view.Calculating {
		So(lb.Wait(ctx, "dollar"), ShouldBeNil)
		view, err = lb.Get(ctx, "dollar")
		So(err, ShouldBeNil)
	}
	So(view.Snapshot, ShouldNotBeNil)
	So(view.Snapshot.Entries, ShouldHaveLength, 2)
	So(view.Snapshot.Entries[0].Account, ShouldEqual, acct)
	So(view.Snapshot.Entries[0].Balance.String(), ShouldEqual, "100.75")

	So(svc.Stop(ctx), ShouldBeNil)

	reopened := service.New(cfg)
	So(reopened.Start(ctx), ShouldBeNil)
	defer func() { So(reopened.Stop(ctx), ShouldBeNil) }()

	bal, err := reopened.Ledger().Balance(ctx, other, "dollar")
	So(err, ShouldBeNil)
	So(bal.String(), ShouldEqual, "50")
	job, err := reopened.Progression().For(acct).CurrentJobName(ctx)
	So(err, ShouldBeNil)
	So(job, ShouldEqual, "miner")
}

func TestServiceIntegration(t *testing.T) {
	Convey("Given the document backend", t, func() {
		cfg := testConfig(t)
		exercise(cfg)
	})

	Convey("Given the sqlite backend", t, func() {
		cfg := testConfig(t)
		cfg.Backend = "sqlite"
		cfg.DatabaseURL = filepath.Join(t.TempDir(), "db", "tally.db")
		exercise(cfg)
	})
}
