package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/emaamul/core/internal/db"
	apperrors "github.com/emaamul/core/internal/errors"
	"github.com/emaamul/core/internal/logging"
	"github.com/emaamul/core/internal/models"
)

// Pending returns queued entries in ascending id order. A limit <= 0
// returns all of them.
func (o *Outbox) Pending(ctx context.Context, limit int) ([]models.OutboxEntry, error) {
	query := "SELECT id, col, payload, created_at, attempts, COALESCE(last_error, '') FROM sync_queue ORDER BY id ASC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := o.store.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list outbox: %w", err)
	}
	defer rows.Close()

	var entries []models.OutboxEntry
	for rows.Next() {
		var e models.OutboxEntry
		var payload string
		if err := rows.Scan(&e.ID, &e.Collection, &payload, &e.CreatedAt, &e.Attempts, &e.LastError); err != nil {
			return nil, fmt.Errorf("failed to scan outbox entry: %w", err)
		}
		e.Payload = json.RawMessage(payload)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Depth returns the number of queued entries.
func (o *Outbox) Depth(ctx context.Context) (int, error) {
	var n int
	if err := o.store.QueryRow(ctx, "SELECT COUNT(*) FROM sync_queue").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count outbox: %w", err)
	}
	return n, nil
}

// Quarantined returns entries moved out of the live queue, oldest first.
func (o *Outbox) Quarantined(ctx context.Context) ([]models.QuarantinedEntry, error) {
	rows, err := o.store.Query(ctx, `
		SELECT id, col, payload, created_at, attempts, COALESCE(last_error, ''), quarantined_at
		FROM sync_dead_letter ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list quarantined entries: %w", err)
	}
	defer rows.Close()

	var entries []models.QuarantinedEntry
	for rows.Next() {
		var e models.QuarantinedEntry
		var payload string
		if err := rows.Scan(&e.ID, &e.Collection, &payload, &e.CreatedAt, &e.Attempts, &e.LastError, &e.QuarantinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan quarantined entry: %w", err)
		}
		e.Payload = json.RawMessage(payload)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Requeue moves a quarantined entry back to the tail of the live queue with
// its attempt count reset. It gets a new id, so it is sent after everything
// already queued.
func (o *Outbox) Requeue(ctx context.Context, id int64) (int64, error) {
	var newID int64
	err := o.store.Transaction(ctx, func(ctx context.Context, tx db.Querier) error {
		var col, payload string
		var createdAt int64
		err := tx.QueryRow(ctx, "SELECT col, payload, created_at FROM sync_dead_letter WHERE id = ?", id).
			Scan(&col, &payload, &createdAt)
		if err == sql.ErrNoRows {
			return apperrors.Newf(apperrors.ErrNotFound, "quarantined entry %d", id)
		}
		if err != nil {
			return err
		}

		res, err := tx.Exec(ctx, "INSERT INTO sync_queue (col, payload, created_at) VALUES (?, ?, ?)", col, payload, createdAt)
		if err != nil {
			return err
		}
		newID, _ = res.LastInsertId()

		_, err = tx.Exec(ctx, "DELETE FROM sync_dead_letter WHERE id = ?", id)
		return err
	})
	if err != nil {
		return 0, err
	}
	logging.Info("Quarantined entry requeued", map[string]any{"entry_id": id, "new_id": newID})
	return newID, nil
}

// RequeueAll requeues every quarantined entry in its original order.
func (o *Outbox) RequeueAll(ctx context.Context) (int, error) {
	entries, err := o.Quarantined(ctx)
	if err != nil {
		return 0, err
	}
	for i, e := range entries {
		if _, err := o.Requeue(ctx, e.ID); err != nil {
			return i, err
		}
	}
	return len(entries), nil
}

// Discard drops a quarantined entry for good.
func (o *Outbox) Discard(ctx context.Context, id int64) error {
	res, err := o.store.Exec(ctx, "DELETE FROM sync_dead_letter WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.Newf(apperrors.ErrNotFound, "quarantined entry %d", id)
	}
	return nil
}

// Stats summarizes the queue for diagnostics.
type Stats struct {
	Pending      int    `json:"pending" yaml:"pending"`
	Quarantined  int    `json:"quarantined" yaml:"quarantined"`
	OldestAt     int64  `json:"oldest_at,omitempty" yaml:"oldest_at,omitempty"`
	HeadID       int64  `json:"head_id,omitempty" yaml:"head_id,omitempty"`
	HeadAttempts int    `json:"head_attempts,omitempty" yaml:"head_attempts,omitempty"`
	LastError    string `json:"last_error,omitempty" yaml:"last_error,omitempty"`
}

// Stats reports queue depth and the state of the head entry.
func (o *Outbox) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	if err := o.store.QueryRow(ctx, "SELECT COUNT(*) FROM sync_queue").Scan(&s.Pending); err != nil {
		return s, fmt.Errorf("failed to count outbox: %w", err)
	}
	if err := o.store.QueryRow(ctx, "SELECT COUNT(*) FROM sync_dead_letter").Scan(&s.Quarantined); err != nil {
		return s, fmt.Errorf("failed to count quarantined entries: %w", err)
	}
	if s.Pending == 0 {
		return s, nil
	}
	err := o.store.QueryRow(ctx,
		"SELECT id, created_at, attempts, COALESCE(last_error, '') FROM sync_queue ORDER BY id ASC LIMIT 1").
		Scan(&s.HeadID, &s.OldestAt, &s.HeadAttempts, &s.LastError)
	if err != nil && err != sql.ErrNoRows {
		return s, fmt.Errorf("failed to read outbox head: %w", err)
	}
	return s, nil
}
