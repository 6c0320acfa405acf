package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/okian/tally/internal/adapters/storage"
	"github.com/okian/tally/internal/adapters/storage/document"
	"github.com/okian/tally/internal/adapters/storage/relational"
	"github.com/okian/tally/internal/config"
	"github.com/okian/tally/internal/domain/jobs"
	"github.com/okian/tally/internal/domain/money"
	"github.com/okian/tally/pkg/logger"
)

// OpenBackend opens the persistence backend named by cfg.Backend.
func OpenBackend(ctx context.Context, cfg *config.Config, currencies *money.Registry, registry *jobs.Registry, lg logger.Logger) (storage.Backend, error) {
	switch kind := strings.ToLower(cfg.Backend); kind {
	case storage.KindDocument:
		return document.Open(ctx, cfg.DocumentPath,
			document.WithDebounce(time.Duration(cfg.SaveDebounceMS)*time.Millisecond),
			document.WithLogger(lg.Named("document-store")),
		)
	case storage.KindSQLite, storage.KindPostgres:
		if kind == storage.KindSQLite {
			if err := ensureDir(cfg.DatabaseURL); err != nil {
				return nil, err
			}
		}
		opts := []relational.Option{
			relational.WithJobs(registry.Names()...),
			relational.WithPool(cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, time.Duration(cfg.DBConnMaxLifetimeS)*time.Second),
			relational.WithLogger(lg.Named("relational-store")),
		}
		for _, c := range currencies.All() {
			opts = append(opts, relational.WithCurrency(c.ID, c.StartingBalance))
		}
		return relational.Open(ctx, relational.Dialect(kind), cfg.DatabaseURL, opts...)
	default:
		return nil, fmt.Errorf("%w: %q", storage.ErrUnknownKind, cfg.Backend)
	}
}

// ensureDir creates the parent directory of a file based SQLite DSN.
func ensureDir(dsn string) error {
	if dsn == "" || strings.HasPrefix(dsn, ":memory:") || strings.HasPrefix(dsn, "file:") {
		return nil
	}
	dir := filepath.Dir(dsn)
	if dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	return nil
}
