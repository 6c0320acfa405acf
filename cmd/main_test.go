package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	app "github.com/okian/tally/internal/app"
	"github.com/okian/tally/internal/config"
	"github.com/okian/tally/pkg/logger"
	"github.com/okian/tally/pkg/metrics"
)

func TestMainFunction(t *testing.T) {
	convey.Convey("Given the main application", t, func() {
		_ = logger.Init()

		convey.Convey("When configuration comes from the environment", func() {
			t.Setenv("TALLY_ADDR", ":8088")
			t.Setenv("TALLY_EVENT_QUEUE_SIZE", "1000")
			t.Setenv("TALLY_BACKEND", "sqlite")

			convey.Convey("Then it is loadable", func() {
				cfg, err := config.Load(context.Background())
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8088")
				convey.So(cfg.EventQueueSize, convey.ShouldEqual, 1000)
				convey.So(cfg.Backend, convey.ShouldEqual, "sqlite")
			})
		})

		convey.Convey("When the handler is built over a started service", func() {
			cfg := config.New()
			cfg.DocumentPath = filepath.Join(t.TempDir(), "accounts.yaml")
			cfg.EventWorkers = 1
			svc := app.New(cfg)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			convey.So(svc.Start(ctx), convey.ShouldBeNil)
			defer func() { _ = svc.Stop(ctx) }()

			h, err := newHandler(ctx, svc, cfg)
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then API, docs and health routes are served", func() {
				for _, path := range []string{"/healthz", "/stats", "/api/v1/currencies", "/openapi.yaml", "/api-docs"} {
					w := httptest.NewRecorder()
					h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, http.NoBody))
					convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				}
			})

			convey.Convey("Then a deposit round-trips", func() {
				path := "/api/v1/accounts/6f1c2d3e-4b5a-4c6d-8e7f-9a0b1c2d3e4f/balances/dollar/deposit"
				w := httptest.NewRecorder()
				h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"amount":"5"}`)))
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(w.Body.String(), convey.ShouldContainSubstring, `"SUCCESS"`)
			})
		})

		convey.Convey("When the handler is built before Start", func() {
			_, err := newHandler(context.Background(), app.New(config.New()), config.New())

			convey.Convey("Then it fails", func() {
				convey.So(err, convey.ShouldEqual, app.ErrNotStarted)
			})
		})
	})
}

func TestUpdateSystemMetrics(t *testing.T) {
	convey.Convey("Given the metrics registry", t, func() {
		convey.Convey("When system metrics are updated", func() {
			convey.So(updateSystemMetrics, convey.ShouldNotPanic)

			convey.Convey("Then they are gathered", func() {
				families, err := metrics.GetRegistry().Gather()
				convey.So(err, convey.ShouldBeNil)
				found := false
				for _, f := range families {
					if strings.HasSuffix(f.GetName(), "system_goroutine_count") {
						found = true
					}
				}
				convey.So(found, convey.ShouldBeTrue)
			})
		})
	})
}
