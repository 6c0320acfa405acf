package config_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/okian/tally/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()

		convey.Convey("When loading config with defaults only", func() {
			clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.Backend, convey.ShouldEqual, "document")
				convey.So(cfg.EventQueueSize, convey.ShouldEqual, 10_000)
				convey.So(cfg.Currencies[0].ID, convey.ShouldEqual, "dollar")
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("TALLY_ADDR", ":8080")
			_ = os.Setenv("TALLY_BACKEND", "sqlite")
			_ = os.Setenv("TALLY_DATABASE_URL", ":memory:")
			_ = os.Setenv("TALLY_EVENT_QUEUE_SIZE", "100")
			_ = os.Setenv("TALLY_MONEY_CAP", "5000")
			_ = os.Setenv("TALLY_CORS_ORIGINS", "http://a.example,http://b.example")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.Backend, convey.ShouldEqual, "sqlite")
				convey.So(cfg.DatabaseURL, convey.ShouldEqual, ":memory:")
				convey.So(cfg.EventQueueSize, convey.ShouldEqual, 100)
				convey.So(cfg.MoneyCap, convey.ShouldEqual, "5000")
				convey.So(cfg.CORSOrigins, convey.ShouldResemble, []string{"http://a.example", "http://b.example"})
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			yamlContent := `
addr: ":9090"
backend: document
document_path: /tmp/tally-accounts.yaml
leaderboard_refresh_s: 30
currencies:
  - id: gem
    name: Gem
    symbol: G
    symbol_suffix: true
    starting_balance: "5"
    default: true
jobs:
  fisher:
    salary: "10"
    actions:
      - action: fish
        target: cod
        exp: 5
        money: "1.5"
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("TALLY_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from YAML file", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.DocumentPath, convey.ShouldEqual, "/tmp/tally-accounts.yaml")
				convey.So(cfg.LeaderboardRefreshS, convey.ShouldEqual, 30)
			})

			convey.Convey("Then lists and maps replace the defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Currencies, convey.ShouldHaveLength, 1)
				convey.So(cfg.Currencies[0].ID, convey.ShouldEqual, "gem")
				convey.So(cfg.Currencies[0].SymbolSuffix, convey.ShouldBeTrue)
				convey.So(cfg.Jobs, convey.ShouldHaveLength, 1)
				convey.So(cfg.Jobs["fisher"].Actions[0].Money, convey.ShouldEqual, "1.5")
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			yamlContent := `
addr: ":9090"
event_queue_size: 300
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("TALLY_CONFIG", tmpFile)
			_ = os.Setenv("TALLY_ADDR", ":8080")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")        // Overridden by env
				convey.So(cfg.EventQueueSize, convey.ShouldEqual, 300) // From file
				convey.So(cfg.Currencies, convey.ShouldHaveLength, 1)  // Default kept
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("TALLY_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("TALLY_CONFIG", "/non/existent/tally.yaml")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			_ = os.Setenv("TALLY_EVENT_QUEUE_SIZE", "lots")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the loaded values fail validation", func() {
			_ = os.Setenv("TALLY_BACKEND", "cassandra")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

func clearConfigEnvVars() {
	for _, key := range []string{
		"TALLY_CONFIG",
		"TALLY_ADDR",
		"TALLY_BACKEND",
		"TALLY_DATABASE_URL",
		"TALLY_EVENT_QUEUE_SIZE",
		"TALLY_MONEY_CAP",
		"TALLY_CORS_ORIGINS",
	} {
		_ = os.Unsetenv(key)
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "tally_config_*.yaml")
	if err != nil {
		panic(err)
	}
	defer func() { _ = tmpFile.Close() }()

	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}
	return tmpFile.Name()
}
