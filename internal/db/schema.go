package db

import (
	"context"
	"fmt"

	apperrors "github.com/emaamul/core/internal/errors"
	"github.com/emaamul/core/internal/logging"
)

var createStatements = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		sku TEXT,
		price NUMERIC NOT NULL DEFAULT 0,
		stock INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_products_sku ON products(UPPER(TRIM(sku)))`,
	`CREATE TABLE IF NOT EXISTS customers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		phone TEXT,
		email TEXT,
		balance NUMERIC NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		customer_id TEXT,
		product_id TEXT,
		qty INTEGER NOT NULL DEFAULT 0,
		amount NUMERIC NOT NULL DEFAULT 0,
		currency TEXT,
		created_at INTEGER NOT NULL DEFAULT 0,
		synced INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_created_at ON transactions(created_at)`,
	`CREATE TABLE IF NOT EXISTS debts (
		id TEXT PRIMARY KEY,
		customer_id TEXT,
		amount NUMERIC NOT NULL DEFAULT 0,
		due_date INTEGER,
		status TEXT NOT NULL DEFAULT 'pending',
		notes TEXT,
		updated_at INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_debts_due_date ON debts(due_date)`,
	`CREATE TABLE IF NOT EXISTS invoices (
		id TEXT PRIMARY KEY,
		customer_id TEXT,
		total NUMERIC NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS invoice_items (
		id TEXT PRIMARY KEY,
		invoice_id TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		price NUMERIC NOT NULL DEFAULT 0,
		qty NUMERIC NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_invoice_items_invoice ON invoice_items(invoice_id)`,
	`CREATE TABLE IF NOT EXISTS sync_queue (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		col TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS sync_dead_letter (
		id INTEGER PRIMARY KEY,
		col TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		quarantined_at INTEGER NOT NULL
	)`,
}

// Migration is an additive column change. Columns introduced after the
// first release are added here rather than in the CREATE statements so that
// older databases converge on the same shape.
type Migration struct {
	Table      string
	Column     string
	Definition string
}

// Name identifies the migration in results and logs.
func (m Migration) Name() string {
	return m.Table + "." + m.Column
}

// Migrations lists every additive column change, oldest first.
var Migrations = []Migration{
	{Table: "invoices", Column: "due_date", Definition: "INTEGER"},
	{Table: "debts", Column: "type", Definition: "TEXT"},
	{Table: "transactions", Column: "label", Definition: "TEXT"},
	{Table: "sync_queue", Column: "attempts", Definition: "INTEGER NOT NULL DEFAULT 0"},
	{Table: "sync_queue", Column: "last_error", Definition: "TEXT"},
}

// MigrationStatus is the outcome of one best-effort migration.
type MigrationStatus string

const (
	MigrationApplied MigrationStatus = "applied"
	MigrationSkipped MigrationStatus = "skipped"
	MigrationFailed  MigrationStatus = "failed"
)

// MigrationResult reports one migration. Failures are logged and non-fatal.
type MigrationResult struct {
	Name   string
	Status MigrationStatus
	Err    error
}

// EnsureSchema creates missing tables and applies additive migrations. It is
// idempotent and must complete before any repository call. Table creation
// failures are returned; column migrations are best-effort.
func EnsureSchema(ctx context.Context, q Querier) ([]MigrationResult, error) {
	for _, stmt := range createStatements {
		if _, err := q.Exec(ctx, stmt); err != nil {
			if apperrors.IsStorageUnavailable(err) {
				return nil, err
			}
			return nil, apperrors.Wrap(apperrors.ErrMigration, "create schema", err)
		}
	}

	results := make([]MigrationResult, 0, len(Migrations))
	for _, m := range Migrations {
		result := applyMigration(ctx, q, m)
		switch result.Status {
		case MigrationApplied:
			logging.Info("Schema migration applied", map[string]any{"migration": result.Name})
		case MigrationFailed:
			logging.WarnWithCode("Schema migration failed", string(apperrors.ErrMigration), result.Err,
				map[string]any{"migration": result.Name})
		}
		results = append(results, result)
	}
	return results, nil
}

func applyMigration(ctx context.Context, q Querier, m Migration) MigrationResult {
	result := MigrationResult{Name: m.Name()}

	exists, err := columnExists(ctx, q, m.Table, m.Column)
	if err != nil {
		result.Status, result.Err = MigrationFailed, err
		return result
	}
	if exists {
		result.Status = MigrationSkipped
		return result
	}

	stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", m.Table, m.Column, m.Definition)
	if _, err := q.Exec(ctx, stmt); err != nil {
		result.Status, result.Err = MigrationFailed, err
		return result
	}
	result.Status = MigrationApplied
	return result
}

func columnExists(ctx context.Context, q Querier, table, column string) (bool, error) {
	var n int
	err := q.QueryRow(ctx, "SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?", table, column).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("inspect %s: %w", table, err)
	}
	return n > 0, nil
}

// CountStatus counts the results with the given status.
func CountStatus(results []MigrationResult, status MigrationStatus) int {
	n := 0
	for _, r := range results {
		if r.Status == status {
			n++
		}
	}
	return n
}
