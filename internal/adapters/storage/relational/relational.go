// Package relational implements the storage backend on SQL tables:
//
//	accounts(uid, job, job_notifications, <currency>_balance...)
//	levels(uid, <job>...)
//	experience(uid, <job>...)
//	options(uid, name, value)
//
// One column exists per currency and per job; columns are added on startup
// for every configured id and lazily for ids first seen on a write. Every
// field access is one parameterized statement on a pooled connection.
package relational

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"           // postgres driver
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/shopspring/decimal"

	"github.com/okian/tally/internal/adapters/storage"
	"github.com/okian/tally/pkg/logger"
)

const (
	tableAccounts   = "accounts"
	tableLevels     = "levels"
	tableExperience = "experience"
	tableOptions    = "options"
	balanceSuffix   = "_balance"

	defaultMaxOpenConns    = 10
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 5 * time.Minute
)

var identPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Store is the relational backend.
type Store struct {
	db     *sql.DB
	dl     dialect
	logger logger.Logger

	currencies map[string]decimal.Decimal
	jobs       []string

	maxOpen  int
	maxIdle  int
	lifetime time.Duration

	colMu   sync.Mutex
	columns map[string]map[string]bool
}

var (
	_ storage.Backend = (*Store)(nil)
	_ storage.Ranker  = (*Store)(nil)
	_ storage.Scanner = (*Store)(nil)
)

// Open connects to dsn with the given dialect, verifies the connection and
// migrates the schema. For SQLite dsn is a file path or ":memory:".
func Open(ctx context.Context, d Dialect, dsn string, opts ...Option) (*Store, error) {
	dl, err := lookupDialect(d)
	if err != nil {
		return nil, err
	}
	s := &Store{
		dl:         dl,
		currencies: make(map[string]decimal.Decimal),
		maxOpen:    defaultMaxOpenConns,
		maxIdle:    defaultMaxIdleConns,
		lifetime:   defaultConnMaxLifetime,
		columns:    make(map[string]map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("relational-store")
	}

	if dl.name == SQLite && !strings.Contains(dsn, "?") {
		dsn += "?_busy_timeout=5000&_journal_mode=WAL"
	}
	db, err := sql.Open(dl.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dl.name, err)
	}
	if dl.name == SQLite {
		// A single connection keeps ":memory:" databases shared and avoids
		// writer lock contention.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(s.maxOpen)
		db.SetMaxIdleConns(s.maxIdle)
		db.SetConnMaxLifetime(s.lifetime)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", dl.name, err)
	}
	s.db = db

	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate %s: %w", dl.name, err)
	}
	s.logger.Info(ctx, "relational store ready",
		logger.String("dialect", string(dl.name)),
		logger.Int("currencies", len(s.currencies)),
		logger.Int("jobs", len(s.jobs)),
	)
	return s, nil
}

// Kind implements storage.Backend.
func (s *Store) Kind() string { return string(s.dl.name) }

// Flush implements storage.Backend. Writes are already durable.
func (s *Store) Flush(context.Context) error { return nil }

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			uid TEXT PRIMARY KEY,
			job TEXT NOT NULL DEFAULT 'unemployed',
			job_notifications %s NOT NULL DEFAULT TRUE
		)`, tableAccounts, s.dl.boolType),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (uid TEXT PRIMARY KEY)`, tableLevels),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (uid TEXT PRIMARY KEY)`, tableExperience),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			uid TEXT NOT NULL,
			name TEXT NOT NULL,
			value TEXT NOT NULL,
			PRIMARY KEY (uid, name)
		)`, tableOptions),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	for _, table := range []string{tableAccounts, tableLevels, tableExperience} {
		if err := s.loadColumns(ctx, table); err != nil {
			return err
		}
	}
	for cur := range s.currencies {
		if err := s.ensureBalanceColumn(ctx, cur); err != nil {
			return err
		}
	}
	for _, job := range s.jobs {
		if err := s.ensureJobColumns(ctx, job); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) loadColumns(ctx context.Context, table string) error {
	rows, err := s.db.QueryContext(ctx, s.dl.columnsQuery, table)
	if err != nil {
		return fmt.Errorf("list columns of %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	set := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		set[name] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}
	s.colMu.Lock()
	s.columns[table] = set
	s.colMu.Unlock()
	return nil
}

func (s *Store) hasColumn(table, col string) bool {
	s.colMu.Lock()
	defer s.colMu.Unlock()
	return s.columns[table][col]
}

// ensureColumn adds col to table unless it exists.
func (s *Store) ensureColumn(ctx context.Context, table, col, ddl string) error {
	if !identPattern.MatchString(col) {
		return fmt.Errorf("%w: %q", storage.ErrInvalidIdentifier, col)
	}
	s.colMu.Lock()
	defer s.colMu.Unlock()
	if s.columns[table][col] {
		return nil
	}
	stmt := fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s %s`, table, quote(col), ddl)
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("add column %s.%s: %w", table, col, err)
	}
	if s.columns[table] == nil {
		s.columns[table] = make(map[string]bool)
	}
	s.columns[table][col] = true
	s.logger.Info(ctx, "column added", logger.String("table", table), logger.String("column", col))
	return nil
}

func (s *Store) ensureBalanceColumn(ctx context.Context, currency string) error {
	start := s.currencies[currency].StringFixed(2)
	return s.ensureColumn(ctx, tableAccounts, currency+balanceSuffix,
		fmt.Sprintf(`%s DEFAULT '%s'`, s.dl.balanceType, start))
}

func (s *Store) ensureJobColumns(ctx context.Context, job string) error {
	if err := s.ensureColumn(ctx, tableLevels, job, `INTEGER NOT NULL DEFAULT 1`); err != nil {
		return err
	}
	return s.ensureColumn(ctx, tableExperience, job, `INTEGER NOT NULL DEFAULT 0`)
}

func quote(ident string) string {
	return `"` + ident + `"`
}

func (s *Store) exec(ctx context.Context, op, query string, args ...any) (err error) {
	start := time.Now()
	defer func() { storage.Observe(s.Kind(), op, start, err) }()

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if n == 0 {
		return storage.ErrNoRecord
	}
	return nil
}

// queryRow scans one row into dest. A missing row reports found=false.
func (s *Store) queryRow(ctx context.Context, op, query string, args []any, dest ...any) (found bool, err error) {
	start := time.Now()
	defer func() { storage.Observe(s.Kind(), op, start, err) }()

	err = s.db.QueryRowContext(ctx, query, args...).Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return true, nil
}

// Exists implements storage.Accounts.
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	var one int
	q := fmt.Sprintf(`SELECT 1 FROM %s WHERE uid = %s`, tableAccounts, s.dl.placeholder(1))
	return s.queryRow(ctx, "exists", q, []any{id}, &one)
}

// Create implements storage.Accounts. Rows that already exist are kept.
func (s *Store) Create(ctx context.Context, id string, d storage.Defaults) (err error) {
	start := time.Now()
	defer func() { storage.Observe(s.Kind(), "create", start, err) }()

	cols := []string{"uid", "job", "job_notifications"}
	args := []any{id, d.Job, d.Notifications}
	for cur, amount := range d.Balances {
		if err := s.ensureBalanceColumn(ctx, cur); err != nil {
			return err
		}
		cols = append(cols, quote(cur+balanceSuffix))
		args = append(args, amount.StringFixed(2))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("create: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmts := []struct {
		query string
		args  []any
	}{
		{fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (uid) DO NOTHING`,
			tableAccounts, strings.Join(cols, ", "), strings.Join(s.dl.args(1, len(cols)), ", ")), args},
		{fmt.Sprintf(`INSERT INTO %s (uid) VALUES (%s) ON CONFLICT (uid) DO NOTHING`, tableLevels, s.dl.placeholder(1)), []any{id}},
		{fmt.Sprintf(`INSERT INTO %s (uid) VALUES (%s) ON CONFLICT (uid) DO NOTHING`, tableExperience, s.dl.placeholder(1)), []any{id}},
	}
	for _, st := range stmts {
		if _, err = tx.ExecContext(ctx, st.query, st.args...); err != nil {
			return fmt.Errorf("create: %w", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("create: commit: %w", err)
	}
	return nil
}

// Keys implements storage.Scanner.
func (s *Store) Keys(ctx context.Context) (keys []string, err error) {
	start := time.Now()
	defer func() { storage.Observe(s.Kind(), "keys", start, err) }()

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT uid FROM %s ORDER BY uid`, tableAccounts))
	if err != nil {
		return nil, fmt.Errorf("keys: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// TopBalances implements storage.Ranker.
func (s *Store) TopBalances(ctx context.Context, currency string, limit int) (out []storage.Row, err error) {
	start := time.Now()
	defer func() { storage.Observe(s.Kind(), "top_balances", start, err) }()

	col := currency + balanceSuffix
	if !identPattern.MatchString(col) {
		return nil, fmt.Errorf("%w: %q", storage.ErrInvalidIdentifier, currency)
	}
	if !s.hasColumn(tableAccounts, col) {
		return nil, nil
	}
	q := fmt.Sprintf(`SELECT uid, %s FROM %s WHERE %s IS NOT NULL ORDER BY %s DESC, uid ASC LIMIT %s`,
		quote(col), tableAccounts, quote(col), s.dl.rankExpr(quote(col)), s.dl.placeholder(1))
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("top balances: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var (
			id  string
			raw string
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("top balances: %s: %w", id, err)
		}
		out = append(out, storage.Row{ID: id, Balance: d})
	}
	return out, rows.Err()
}

// Balance implements storage.Balances.
func (s *Store) Balance(ctx context.Context, id, currency string) (decimal.Decimal, bool, error) {
	col := currency + balanceSuffix
	if !identPattern.MatchString(col) || !s.hasColumn(tableAccounts, col) {
		return decimal.Zero, false, nil
	}
	var v sql.NullString
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE uid = %s`, quote(col), tableAccounts, s.dl.placeholder(1))
	found, err := s.queryRow(ctx, "balance", q, []any{id}, &v)
	if err != nil || !found || !v.Valid {
		return decimal.Zero, false, err
	}
	d, err := decimal.NewFromString(v.String)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("balance %s/%s: %w", id, currency, err)
	}
	return d, true, nil
}

// SetBalance implements storage.Balances.
func (s *Store) SetBalance(ctx context.Context, id, currency string, amount decimal.Decimal) error {
	if err := s.ensureBalanceColumn(ctx, currency); err != nil {
		return err
	}
	q := fmt.Sprintf(`UPDATE %s SET %s = %s WHERE uid = %s`,
		tableAccounts, quote(currency+balanceSuffix), s.dl.placeholder(1), s.dl.placeholder(2))
	return s.exec(ctx, "set_balance", q, amount.StringFixed(2), id)
}

// Job implements storage.Jobs.
func (s *Store) Job(ctx context.Context, id string) (string, bool, error) {
	var v sql.NullString
	q := fmt.Sprintf(`SELECT job FROM %s WHERE uid = %s`, tableAccounts, s.dl.placeholder(1))
	found, err := s.queryRow(ctx, "job", q, []any{id}, &v)
	return v.String, found && v.Valid, err
}

// SetJob implements storage.Jobs.
func (s *Store) SetJob(ctx context.Context, id, job string) error {
	q := fmt.Sprintf(`UPDATE %s SET job = %s WHERE uid = %s`, tableAccounts, s.dl.placeholder(1), s.dl.placeholder(2))
	return s.exec(ctx, "set_job", q, job, id)
}

func (s *Store) intField(ctx context.Context, op, table, id, job string) (int, bool, error) {
	if !identPattern.MatchString(job) || !s.hasColumn(table, job) {
		return 0, false, nil
	}
	var v sql.NullInt64
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE uid = %s`, quote(job), table, s.dl.placeholder(1))
	found, err := s.queryRow(ctx, op, q, []any{id}, &v)
	return int(v.Int64), found && v.Valid, err
}

func (s *Store) setIntField(ctx context.Context, op, table, id, job string, value int) error {
	if err := s.ensureJobColumns(ctx, job); err != nil {
		return err
	}
	q := fmt.Sprintf(`UPDATE %s SET %s = %s WHERE uid = %s`, table, quote(job), s.dl.placeholder(1), s.dl.placeholder(2))
	return s.exec(ctx, op, q, value, id)
}

// Level implements storage.Jobs.
func (s *Store) Level(ctx context.Context, id, job string) (int, bool, error) {
	return s.intField(ctx, "level", tableLevels, id, job)
}

// SetLevel implements storage.Jobs.
func (s *Store) SetLevel(ctx context.Context, id, job string, level int) error {
	return s.setIntField(ctx, "set_level", tableLevels, id, job, level)
}

// Exp implements storage.Jobs.
func (s *Store) Exp(ctx context.Context, id, job string) (int, bool, error) {
	return s.intField(ctx, "exp", tableExperience, id, job)
}

// SetExp implements storage.Jobs.
func (s *Store) SetExp(ctx context.Context, id, job string, exp int) error {
	return s.setIntField(ctx, "set_exp", tableExperience, id, job, exp)
}

// Notifications implements storage.Jobs.
func (s *Store) Notifications(ctx context.Context, id string) (bool, bool, error) {
	var v sql.NullBool
	q := fmt.Sprintf(`SELECT job_notifications FROM %s WHERE uid = %s`, tableAccounts, s.dl.placeholder(1))
	found, err := s.queryRow(ctx, "notifications", q, []any{id}, &v)
	return v.Bool, found && v.Valid, err
}

// SetNotifications implements storage.Jobs.
func (s *Store) SetNotifications(ctx context.Context, id string, on bool) error {
	q := fmt.Sprintf(`UPDATE %s SET job_notifications = %s WHERE uid = %s`, tableAccounts, s.dl.placeholder(1), s.dl.placeholder(2))
	return s.exec(ctx, "set_notifications", q, on, id)
}

// Option implements storage.Jobs.
func (s *Store) Option(ctx context.Context, id, option string) (string, bool, error) {
	var v string
	q := fmt.Sprintf(`SELECT value FROM %s WHERE uid = %s AND name = %s`, tableOptions, s.dl.placeholder(1), s.dl.placeholder(2))
	found, err := s.queryRow(ctx, "option", q, []any{id, option}, &v)
	return v, found, err
}

// SetOption implements storage.Jobs. The row is only written for an
// existing account.
func (s *Store) SetOption(ctx context.Context, id, option, value string) error {
	p := s.dl.args(1, 4)
	q := fmt.Sprintf(`INSERT INTO %s (uid, name, value)
		SELECT %s, %s, %s WHERE EXISTS (SELECT 1 FROM %s WHERE uid = %s)
		ON CONFLICT (uid, name) DO UPDATE SET value = excluded.value`,
		tableOptions, p[0], p[1], p[2], tableAccounts, p[3])
	return s.exec(ctx, "set_option", q, id, option, value, id)
}
