// Package dbtest opens migrated local stores for tests.
package dbtest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/emaamul/core/internal/db"
)

// Open returns a migrated store in a temporary directory, closed at the end
// of the test.
func Open(t testing.TB) db.Store {
	t.Helper()
	return OpenOwner(t, t.TempDir(), "")
}

// OpenOwner opens the partition of owner under dir.
func OpenOwner(t testing.TB, dir, owner string) db.Store {
	t.Helper()
	store := db.Open(db.Options{Dir: dir, Owner: owner})
	t.Cleanup(func() { _ = store.Close() })
	require.NotEqual(t, db.EngineUnavailable, store.Engine(), "no storage engine")
	_, err := db.EnsureSchema(context.Background(), store)
	require.NoError(t, err)
	return store
}

// Count returns the row count of table.
func Count(t testing.TB, q db.Querier, table string) int {
	t.Helper()
	var n int
	require.NoError(t, q.QueryRow(context.Background(), "SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}
