package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureSchema_idempotent(t *testing.T) {
	ctx := context.Background()
	store := Open(Options{Dir: t.TempDir()})
	t.Cleanup(func() { _ = store.Close() })

	first, err := EnsureSchema(ctx, store)
	require.NoError(t, err)
	// Fresh databases are created without the additive columns, so every
	// migration applies once.
	assert.Equal(t, len(Migrations), CountStatus(first, MigrationApplied))

	second, err := EnsureSchema(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, len(Migrations), CountStatus(second, MigrationSkipped))
	assert.Zero(t, CountStatus(second, MigrationFailed))

	for _, table := range []string{"products", "customers", "transactions", "debts", "invoices", "invoice_items", "sync_queue", "sync_dead_letter"} {
		var n int
		require.NoError(t, store.QueryRow(ctx, "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&n))
		assert.Equal(t, 1, n, table)
	}
}

func TestEnsureSchema_upgradesLegacyDatabase(t *testing.T) {
	ctx := context.Background()
	store := Open(Options{Dir: t.TempDir()})
	t.Cleanup(func() { _ = store.Close() })

	_, err := store.Exec(ctx, `CREATE TABLE debts (
		id TEXT PRIMARY KEY, customer_id TEXT, amount REAL, due_date INTEGER,
		status TEXT, notes TEXT, updated_at INTEGER)`)
	require.NoError(t, err)
	_, err = store.Exec(ctx, "INSERT INTO debts (id, amount, status, updated_at) VALUES ('d1', 50, 'pending', 1)")
	require.NoError(t, err)

	results, err := EnsureSchema(ctx, store)
	require.NoError(t, err)

	byName := map[string]MigrationStatus{}
	for _, r := range results {
		byName[r.Name] = r.Status
	}
	assert.Equal(t, MigrationApplied, byName["debts.type"])

	var debtType *string
	require.NoError(t, store.QueryRow(ctx, "SELECT type FROM debts WHERE id = 'd1'").Scan(&debtType))
	assert.Nil(t, debtType)
}

func TestApplyMigration_failureIsReported(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t, t.TempDir(), "")

	result := applyMigration(ctx, store, Migration{Table: "no_such_table", Column: "broken", Definition: "TEXT"})
	assert.Equal(t, MigrationFailed, result.Status)
	assert.Error(t, result.Err)
	assert.Equal(t, "no_such_table.broken", result.Name)
}
