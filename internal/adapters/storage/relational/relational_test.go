package relational

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okian/tally/internal/adapters/storage"
	"github.com/okian/tally/pkg/logger"
)

func init() {
	_ = logger.Init()
}

const acct = "3f5e2b7a-90c1-4f7e-a1b2-0c9d8e7f6a5b"

func openMemory(t *testing.T, opts ...Option) *Store {
	t.Helper()
	opts = append([]Option{
		WithCurrency("dollar", decimal.NewFromInt(100)),
		WithJobs("miner", "blacksmith"),
	}, opts...)
	s, err := Open(context.Background(), SQLite, ":memory:", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func defaults() storage.Defaults {
	return storage.Defaults{
		Balances:      map[string]decimal.Decimal{"dollar": decimal.NewFromInt(100)},
		Job:           "unemployed",
		Notifications: true,
	}
}

func TestOpenUnknownDialect(t *testing.T) {
	_, err := Open(context.Background(), Dialect("oracle"), "x")
	assert.ErrorIs(t, err, storage.ErrUnknownKind)
}

func TestCreateAndDefaults(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)

	ok, err := s.Exists(ctx, acct)
	require.NoError(t, err)
	assert.False(t, ok)

	_, found, err := s.Balance(ctx, acct, "dollar")
	require.NoError(t, err)
	assert.False(t, found, "missing row is not a zero balance")

	require.NoError(t, s.Create(ctx, acct, defaults()))
	require.NoError(t, s.Create(ctx, acct, defaults()), "create is idempotent")

	bal, found, err := s.Balance(ctx, acct, "dollar")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "100.00", bal.StringFixed(2))

	job, found, err := s.Job(ctx, acct)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "unemployed", job)

	lvl, found, err := s.Level(ctx, acct, "miner")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 1, lvl)

	exp, found, err := s.Exp(ctx, acct, "blacksmith")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 0, exp)

	on, found, err := s.Notifications(ctx, acct)
	require.NoError(t, err)
	assert.True(t, found)
	assert.True(t, on)
}

func TestUpdatesAndNoRecord(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)

	assert.ErrorIs(t, s.SetBalance(ctx, acct, "dollar", decimal.NewFromInt(5)), storage.ErrNoRecord)
	assert.ErrorIs(t, s.SetJob(ctx, acct, "miner"), storage.ErrNoRecord)
	assert.ErrorIs(t, s.SetLevel(ctx, acct, "miner", 2), storage.ErrNoRecord)
	assert.ErrorIs(t, s.SetOption(ctx, acct, "block-break-info", "0"), storage.ErrNoRecord)

	require.NoError(t, s.Create(ctx, acct, defaults()))
	require.NoError(t, s.SetBalance(ctx, acct, "dollar", decimal.RequireFromString("1234.56")))
	require.NoError(t, s.SetJob(ctx, acct, "miner"))
	require.NoError(t, s.SetLevel(ctx, acct, "miner", 4))
	require.NoError(t, s.SetExp(ctx, acct, "miner", 75))
	require.NoError(t, s.SetNotifications(ctx, acct, false))
	require.NoError(t, s.SetOption(ctx, acct, "block-break-info", "0"))
	require.NoError(t, s.SetOption(ctx, acct, "block-break-info", "1"))

	bal, _, _ := s.Balance(ctx, acct, "dollar")
	assert.Equal(t, "1234.56", bal.StringFixed(2))
	job, _, _ := s.Job(ctx, acct)
	assert.Equal(t, "miner", job)
	lvl, _, _ := s.Level(ctx, acct, "miner")
	assert.Equal(t, 4, lvl)
	exp, _, _ := s.Exp(ctx, acct, "miner")
	assert.Equal(t, 75, exp)
	on, _, _ := s.Notifications(ctx, acct)
	assert.False(t, on)
	opt, found, _ := s.Option(ctx, acct, "block-break-info")
	assert.True(t, found)
	assert.Equal(t, "1", opt)
}

func TestLazyColumns(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)
	require.NoError(t, s.Create(ctx, acct, defaults()))

	_, found, err := s.Level(ctx, acct, "fisher")
	require.NoError(t, err)
	assert.False(t, found, "unknown job column reads as absent")

	require.NoError(t, s.SetLevel(ctx, acct, "fisher", 2))
	lvl, found, err := s.Level(ctx, acct, "fisher")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 2, lvl)

	exp, found, err := s.Exp(ctx, acct, "fisher")
	require.NoError(t, err)
	assert.True(t, found, "experience column is added alongside level")
	assert.Equal(t, 0, exp)

	assert.ErrorIs(t, s.SetLevel(ctx, acct, "Bad-Job", 1), storage.ErrInvalidIdentifier)
}

func TestTopBalances(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)

	amounts := []string{"5.00", "250.50", "99.99", "1000.00", "250.50", "0.01"}
	for i, a := range amounts {
		id := fmt.Sprintf("00000000-0000-0000-0000-%012d", i)
		require.NoError(t, s.Create(ctx, id, defaults()))
		require.NoError(t, s.SetBalance(ctx, id, "dollar", decimal.RequireFromString(a)))
	}

	rows, err := s.TopBalances(ctx, "dollar", 4)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "1000.00", rows[0].Balance.StringFixed(2))
	assert.Equal(t, "250.50", rows[1].Balance.StringFixed(2))
	assert.Equal(t, "00000000-0000-0000-0000-000000000001", rows[1].ID, "ties break by id")
	assert.Equal(t, "00000000-0000-0000-0000-000000000004", rows[2].ID)
	assert.Equal(t, "99.99", rows[3].Balance.StringFixed(2), "ordering is numeric, not lexical")

	none, err := s.TopBalances(ctx, "gem", 10)
	require.NoError(t, err)
	assert.Empty(t, none)

	keys, err := s.Keys(ctx)
	require.NoError(t, err)
	assert.Len(t, keys, len(amounts))
}

func TestSchemaSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")

	s, err := Open(ctx, SQLite, path, WithCurrency("dollar", decimal.NewFromInt(100)))
	require.NoError(t, err)
	require.NoError(t, s.Create(ctx, acct, defaults()))
	require.NoError(t, s.SetBalance(ctx, acct, "dollar", decimal.NewFromInt(42)))
	require.NoError(t, s.Close())

	again, err := Open(ctx, SQLite, path,
		WithCurrency("dollar", decimal.NewFromInt(100)),
		WithCurrency("gem", decimal.NewFromInt(3)),
	)
	require.NoError(t, err)
	defer func() { _ = again.Close() }()

	bal, _, _ := again.Balance(ctx, acct, "dollar")
	assert.Equal(t, "42.00", bal.StringFixed(2))
	gem, found, err := again.Balance(ctx, acct, "gem")
	require.NoError(t, err)
	assert.True(t, found, "new currency column backfills existing rows with its default")
	assert.Equal(t, "3.00", gem.StringFixed(2))
}
