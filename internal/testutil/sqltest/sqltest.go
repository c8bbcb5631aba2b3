// Package sqltest provides database helpers for tests: throwaway
// in-memory SQLite databases, plus connections to a live engine named by
// the TEST_DATABASE environment variable.
package sqltest

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/microsoft/go-mssqldb"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/restq/restq/pkg/dialect"
	"github.com/restq/restq/pkg/schema"
)

// Open returns a fresh in-memory SQLite database. The pool is capped at
// one connection so every statement sees the same memory database.
func Open(t testing.TB) *sql.DB {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	t.Cleanup(func() {
		require.NoError(t, db.Close())
	})
	return db
}

// Exec runs DDL or seed statements, failing the test on error.
func Exec(t testing.TB, db *sql.DB, stmts ...string) {
	t.Helper()
	for _, stmt := range stmts {
		_, err := db.Exec(stmt)
		require.NoError(t, err, "statement: %s", stmt)
	}
}

// Reflect creates an in-memory SQLite database, applies the DDL, and
// returns the reflected schema together with the live handle.
func Reflect(t testing.TB, ddl ...string) (*schema.Db, *sql.DB) {
	t.Helper()
	db := Open(t)
	Exec(t, db, ddl...)

	s := schema.NewDb("test", dialect.MustGet("sqlite"), nil)
	require.NoError(t, s.Startup(context.Background(), db))
	return s, db
}

// Connect opens the database named by TEST_DATABASE, skipping the test
// when the variable is unset. TEST_DIALECT selects the engine, defaulting
// to postgres.
func Connect(ctx context.Context, t testing.TB) (*sql.DB, *dialect.Dialect) {
	dsn := os.Getenv("TEST_DATABASE")
	if dsn == "" {
		t.Skip("TEST_DATABASE not set")
	}
	name := os.Getenv("TEST_DIALECT")
	if name == "" {
		name = "postgres"
	}
	d, err := dialect.Get(name)
	require.NoError(t, err)

	db, err := sql.Open(d.DriverName(), dsn)
	require.NoError(t, err)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, db.PingContext(pingCtx))

	t.Cleanup(func() {
		require.NoError(t, db.Close())
	})
	return db, d
}
