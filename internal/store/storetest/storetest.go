// Package storetest opens migrated in-memory databases for tests.
package storetest

import (
	"context"
	"testing"

	"github.com/fortuna/caddie/internal/store"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// Open returns a fresh in-memory SQLite database with every migration applied.
// The database is closed when the test ends.
func Open(t testing.TB) *store.Database {
	t.Helper()

	db, err := store.NewDatabase(store.DriverSQLite, ":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.RunMigrations(context.Background()))
	return db
}
