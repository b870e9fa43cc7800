// Package testutil opens a migrated Postgres pool for contract tests.
// Tests are skipped when TEST_DATABASE_URL is not set, so the default test
// run needs no database.
package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/fernweh-app/journal-core/internal/adapters/postgres"
)

// OpenMigratedPool connects to TEST_DATABASE_URL, applies the schema and
// truncates all tables so every test starts clean. The pool closes with the
// test.
func OpenMigratedPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping postgres contract tests")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := postgres.NewPool(ctx, dsn)
	if err != nil {
		t.Fatalf("open postgres pool: %v", err)
	}
	t.Cleanup(pool.Close)

	if _, err := pool.Exec(ctx, postgres.Schema); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	if _, err := pool.Exec(ctx, `
		TRUNCATE memory_photos, memories, trip_participants, trips, users
	`); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
	return pool
}
