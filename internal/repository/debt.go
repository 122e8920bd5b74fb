package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/emaamul/core/internal/db"
	apperrors "github.com/emaamul/core/internal/errors"
	"github.com/emaamul/core/internal/models"
)

// DebtRepository owns the debts table.
type DebtRepository struct {
	*base
}

// DebtInput is the caller-supplied state of a debt. Empty Status means
// pending and empty Type means borrowed.
type DebtInput struct {
	ID         string
	CustomerID string
	Amount     decimal.Decimal
	DueDate    time.Time
	Status     models.DebtStatus
	Notes      string
	Type       models.DebtType
}

// Rows written before the type column existed hold NULL, read as borrowed.
const debtColumns = `d.id, COALESCE(d.customer_id, ''), d.amount, COALESCE(d.due_date, 0),
	COALESCE(d.status, 'pending'), COALESCE(d.notes, ''), d.updated_at, COALESCE(d.type, 'borrowed')`

func scanDebt(row db.Row, extra ...any) (*models.Debt, error) {
	var d models.Debt
	dest := append([]any{&d.ID, &d.CustomerID, &d.Amount, &d.DueDate, &d.Status, &d.Notes, &d.UpdatedAt, &d.Type}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return &d, nil
}

func getDebt(ctx context.Context, q db.Querier, id string) (*models.Debt, error) {
	d, err := scanDebt(q.QueryRow(ctx, "SELECT "+debtColumns+" FROM debts d WHERE d.id = ?", id))
	if err != nil {
		return nil, notFound(err, "debt %s", id)
	}
	return d, nil
}

// List returns debts of debtType, or all debts when it is empty, with
// customer names joined, by due date. Listing borrowed debts includes
// legacy rows without a type.
func (r *DebtRepository) List(ctx context.Context, debtType models.DebtType) ([]models.Debt, error) {
	query := "SELECT " + debtColumns + ", COALESCE(c.name, '') FROM debts d LEFT JOIN customers c ON c.id = d.customer_id"
	var args []any
	switch debtType {
	case "":
	case models.DebtBorrowed:
		query += " WHERE (d.type = ? OR d.type IS NULL)"
		args = append(args, string(debtType))
	default:
		if !debtType.Valid() {
			return nil, invalid("unknown debt type %q", debtType)
		}
		query += " WHERE d.type = ?"
		args = append(args, string(debtType))
	}
	query += " ORDER BY COALESCE(d.due_date, 0) ASC, d.id"

	rows, err := r.store.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list debts: %w", err)
	}
	defer rows.Close()

	var debts []models.Debt
	for rows.Next() {
		var customerName string
		d, err := scanDebt(rows, &customerName)
		if err != nil {
			return nil, fmt.Errorf("failed to scan debt: %w", err)
		}
		d.CustomerName = customerName
		debts = append(debts, *d)
	}
	return debts, rows.Err()
}

// Get returns the debt with id.
func (r *DebtRepository) Get(ctx context.Context, id string) (*models.Debt, error) {
	return getDebt(ctx, r.store, id)
}

// Upsert writes in.
func (r *DebtRepository) Upsert(ctx context.Context, in DebtInput) (*models.Debt, error) {
	if in.Status == "" {
		in.Status = models.DebtPending
	}
	if in.Type == "" {
		in.Type = models.DebtBorrowed
	}
	if !in.Status.Valid() {
		return nil, invalid("unknown debt status %q", in.Status)
	}
	if !in.Type.Valid() {
		return nil, invalid("unknown debt type %q", in.Type)
	}

	d := &models.Debt{
		ID:         in.ID,
		CustomerID: in.CustomerID,
		Amount:     in.Amount,
		Status:     in.Status,
		Notes:      in.Notes,
		Type:       in.Type,
		UpdatedAt:  r.nowMillis(),
	}
	if !in.DueDate.IsZero() {
		d.DueDate = models.Millis(in.DueDate)
	}
	if d.ID == "" {
		d.ID = r.newID()
	}

	err := r.store.Transaction(ctx, func(ctx context.Context, tx db.Querier) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO debts (id, customer_id, amount, due_date, status, notes, updated_at, type)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				customer_id = excluded.customer_id, amount = excluded.amount, due_date = excluded.due_date,
				status = excluded.status, notes = excluded.notes, updated_at = excluded.updated_at,
				type = excluded.type`,
			d.ID, nullString(d.CustomerID), d.Amount, d.DueDate, string(d.Status), d.Notes, d.UpdatedAt, string(d.Type))
		if err != nil {
			return fmt.Errorf("failed to write debt: %w", err)
		}
		r.enqueue(ctx, tx, models.CollectionDebts, d.Document())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// SetStatus changes the status of id.
func (r *DebtRepository) SetStatus(ctx context.Context, id string, status models.DebtStatus) (*models.Debt, error) {
	if !status.Valid() {
		return nil, invalid("unknown debt status %q", status)
	}

	var out *models.Debt
	err := r.store.Transaction(ctx, func(ctx context.Context, tx db.Querier) error {
		res, err := tx.Exec(ctx, "UPDATE debts SET status = ?, updated_at = ? WHERE id = ?", string(status), r.nowMillis(), id)
		if err != nil {
			return fmt.Errorf("failed to set debt status: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperrors.Newf(apperrors.ErrNotFound, "debt %s", id)
		}
		d, err := getDebt(ctx, tx, id)
		if err != nil {
			return err
		}
		out = d
		r.enqueue(ctx, tx, models.CollectionDebts, d.Document())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes id locally and enqueues a tombstone for the remote copy.
func (r *DebtRepository) Delete(ctx context.Context, id string) error {
	return r.store.Transaction(ctx, func(ctx context.Context, tx db.Querier) error {
		res, err := tx.Exec(ctx, "DELETE FROM debts WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("failed to delete debt: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperrors.Newf(apperrors.ErrNotFound, "debt %s", id)
		}
		r.enqueue(ctx, tx, models.CollectionDebts, models.Tombstone(id))
		return nil
	})
}
