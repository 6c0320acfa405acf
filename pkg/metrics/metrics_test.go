package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given a fresh registry", t, func() {
		registry := prometheus.NewRegistry()

		Convey("When creating a manager with custom options", func() {
			m := NewManager(
				WithNamespace("test"),
				WithSubsystem("unit"),
				WithHistogramBuckets([]float64{1, 5, 10}),
				WithConstLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then its collectors are registered under the namespace", func() {
				So(m, ShouldNotBeNil)
				m.transactions.WithLabelValues("DEPOSIT", "SUCCESS").Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)

				names := make([]string, 0, len(families))
				for _, f := range families {
					names = append(names, f.GetName())
				}
				So(names, ShouldContain, "test_unit_transactions_total")
			})
		})

		Convey("When registering two managers on the same registry", func() {
			NewManager(WithPrometheusRegistry(registry))

			Convey("Then the second registration panics", func() {
				So(func() { NewManager(WithPrometheusRegistry(registry)) }, ShouldPanic)
			})
		})
	})
}

func TestGlobalRecorders(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When recording a transaction", func() {
			before := testutil.ToFloat64(globalManager.transactions.WithLabelValues("WITHDRAW", "INSUFFICIENT_FUNDS"))
			RecordTransaction("WITHDRAW", "INSUFFICIENT_FUNDS", 1.5)

			Convey("Then the labelled counter grows by one", func() {
				after := testutil.ToFloat64(globalManager.transactions.WithLabelValues("WITHDRAW", "INSUFFICIENT_FUNDS"))
				So(after-before, ShouldEqual, 1)
			})
		})

		Convey("When recording a failed document save", func() {
			before := testutil.ToFloat64(globalManager.documentSaveErrs)
			savesBefore := testutil.ToFloat64(globalManager.documentSaves)
			RecordDocumentSave(3, errors.New("disk full"))

			Convey("Then only the error counter moves", func() {
				So(testutil.ToFloat64(globalManager.documentSaveErrs)-before, ShouldEqual, 1)
				So(testutil.ToFloat64(globalManager.documentSaves), ShouldEqual, savesBefore)
			})
		})

		Convey("When updating the queue size", func() {
			UpdateQueueSize(25, 100)

			Convey("Then utilization is derived from capacity", func() {
				So(testutil.ToFloat64(globalManager.queueSize), ShouldEqual, 25)
				So(testutil.ToFloat64(globalManager.queueUtilization), ShouldEqual, 0.25)
			})
		})

		Convey("When recording a leaderboard recompute", func() {
			RecordLeaderboardRecompute("dollar", "scan", 12, 1700000000)

			Convey("Then the last computed gauge holds the timestamp", func() {
				So(testutil.ToFloat64(globalManager.leaderboardLastComputed.WithLabelValues("dollar")), ShouldEqual, 1700000000)
			})
		})

		Convey("Then the custom registry is exposed", func() {
			So(GetRegistry(), ShouldNotBeNil)
		})
	})
}
