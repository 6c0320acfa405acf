package config_test

import (
	"errors"
	"runtime"
	"testing"

	"github.com/okian/tally/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.Backend, convey.ShouldEqual, "document")
			convey.So(cfg.EventQueueSize, convey.ShouldEqual, 10_000)
			convey.So(cfg.EventWorkers, convey.ShouldEqual, runtime.NumCPU())
			convey.So(cfg.DedupeSize, convey.ShouldEqual, 50_000)
			convey.So(cfg.LeaderboardRefreshS, convey.ShouldEqual, 60)
			convey.So(cfg.MoneyCap, convey.ShouldEqual, "10000000")
			convey.So(cfg.Currencies, convey.ShouldHaveLength, 1)
			convey.So(cfg.Currencies[0].Default, convey.ShouldBeTrue)
			convey.So(cfg.Jobs, convey.ShouldContainKey, "miner")
		})

		convey.Convey("Then the defaults validate", func() {
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given an invalid config", t, func() {
		cfg := config.New()

		convey.Convey("When the backend is unknown", func() {
			cfg.Backend = "mongo"
			err := cfg.Validate()

			convey.Convey("Then it is rejected as invalid", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "backend")
			})
		})

		convey.Convey("When two currencies are flagged default", func() {
			cfg.Currencies = append(cfg.Currencies, config.Currency{ID: "gem", Default: true})
			err := cfg.Validate()

			convey.Convey("Then it is rejected", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "default currency")
			})
		})

		convey.Convey("When a relational backend has no database url", func() {
			cfg.Backend = "postgres"
			cfg.DatabaseURL = ""

			convey.Convey("Then it is rejected", func() {
				convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})
	})
}
