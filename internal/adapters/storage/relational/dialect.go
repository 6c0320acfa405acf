package relational

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/okian/tally/internal/adapters/storage"
)

// Dialect selects SQL differences between the supported engines.
type Dialect string

// Supported dialects.
const (
	SQLite   Dialect = storage.KindSQLite
	Postgres Dialect = storage.KindPostgres
)

type dialect struct {
	name        Dialect
	driver      string
	balanceType string
	boolType    string
	// rankExpr wraps a balance column for numeric ordering.
	rankExpr     func(col string) string
	placeholder  func(n int) string
	columnsQuery string
}

var dialects = map[Dialect]dialect{ //nolint:gochecknoglobals // static lookup table
	// SQLite stores balances as TEXT so decimals round-trip exactly and casts
	// only for ordering.
	SQLite: {
		name:         SQLite,
		driver:       "sqlite3",
		balanceType:  "TEXT",
		boolType:     "BOOLEAN",
		rankExpr:     func(col string) string { return "CAST(" + col + " AS REAL)" },
		placeholder:  func(int) string { return "?" },
		columnsQuery: `SELECT name FROM pragma_table_info(?)`,
	},
	Postgres: {
		name:         Postgres,
		driver:       "postgres",
		balanceType:  "NUMERIC(20,2)",
		boolType:     "BOOLEAN",
		rankExpr:     func(col string) string { return col },
		placeholder:  func(n int) string { return "$" + strconv.Itoa(n) },
		columnsQuery: `SELECT column_name FROM information_schema.columns WHERE table_schema = current_schema() AND table_name = $1`,
	},
}

func lookupDialect(d Dialect) (dialect, error) {
	dl, ok := dialects[Dialect(strings.ToLower(string(d)))]
	if !ok {
		return dialect{}, fmt.Errorf("%w: %q", storage.ErrUnknownKind, d)
	}
	return dl, nil
}

// args renders n placeholders starting at index from.
func (d dialect) args(from, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = d.placeholder(from + i)
	}
	return out
}
