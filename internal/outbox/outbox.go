// Package outbox provides the durable queue of pending remote mutations.
//
// Repositories append to it inside their local transaction; only the sync
// engine drains it. Entries are sent strictly in ascending id order and a
// failed send halts the pass, leaving that entry and everything behind it
// queued for the next attempt.
package outbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/emaamul/core/internal/db"
	apperrors "github.com/emaamul/core/internal/errors"
	"github.com/emaamul/core/internal/logging"
	"github.com/emaamul/core/internal/models"
)

// DefaultMaxAttempts is the number of failed sends after which an entry is
// quarantined.
const DefaultMaxAttempts = 10

// Sender replicates documents to the remote store.
type Sender interface {
	// MergeUpsert shallow-merges doc into the document collection/id,
	// creating it when absent. It must be safe to replay.
	MergeUpsert(ctx context.Context, collection, id string, doc models.Document) error
	// Append creates a document with a generated id and returns that id.
	Append(ctx context.Context, collection string, doc models.Document) (string, error)
}

// Outbox is the sync_queue table of one store partition.
type Outbox struct {
	store       db.Store
	now         func() time.Time
	maxAttempts int

	drainMu sync.Mutex
}

// Option configures an Outbox.
type Option func(*Outbox)

// WithClock sets the time source for enqueue and quarantine stamps.
func WithClock(now func() time.Time) Option {
	return func(o *Outbox) { o.now = now }
}

// WithMaxAttempts sets the quarantine threshold. Zero disables quarantine,
// so a permanently failing entry blocks the queue until cleared by hand.
func WithMaxAttempts(n int) Option {
	return func(o *Outbox) {
		if n >= 0 {
			o.maxAttempts = n
		}
	}
}

// New creates an Outbox over store.
func New(store db.Store, opts ...Option) *Outbox {
	o := &Outbox{
		store:       store,
		now:         time.Now,
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Owner is the identity every enqueued document is tagged with.
func (o *Outbox) Owner() string {
	return o.store.Owner()
}

// EnqueueStatus is the outcome of an enqueue.
type EnqueueStatus string

const (
	EnqueueQueued EnqueueStatus = "queued"
	EnqueueFailed EnqueueStatus = "failed"
)

// EnqueueResult reports an enqueue. A failed enqueue has already been
// logged; callers carry on with their domain write.
type EnqueueResult struct {
	Status EnqueueStatus
	ID     int64
	Err    error
}

const enqueueSavepoint = "outbox_enqueue"

// Enqueue appends doc for collection using tx, the handle of the caller's
// open transaction. The insert runs under a savepoint: if it fails, only the
// outbox write is undone and the domain write in the same transaction
// proceeds.
func (o *Outbox) Enqueue(ctx context.Context, tx db.Querier, collection string, doc models.Document) EnqueueResult {
	payload, err := doc.WithOwner(o.Owner()).Marshal()
	if err != nil {
		return o.enqueueFailed(collection, err)
	}

	if _, err := tx.Exec(ctx, "SAVEPOINT "+enqueueSavepoint); err != nil {
		return o.enqueueFailed(collection, err)
	}

	res, err := tx.Exec(ctx,
		"INSERT INTO sync_queue (col, payload, created_at) VALUES (?, ?, ?)",
		collection, string(payload), models.Millis(o.now()))
	if err != nil {
		if _, rbErr := tx.Exec(ctx, "ROLLBACK TO "+enqueueSavepoint); rbErr != nil {
			logging.Error("Failed to roll back outbox savepoint", rbErr)
		}
		_, _ = tx.Exec(ctx, "RELEASE "+enqueueSavepoint)
		return o.enqueueFailed(collection, err)
	}
	if _, err := tx.Exec(ctx, "RELEASE "+enqueueSavepoint); err != nil {
		return o.enqueueFailed(collection, err)
	}

	id, _ := res.LastInsertId()
	logging.Debug("Outbox entry enqueued", map[string]any{"collection": collection, "entry_id": id})
	return EnqueueResult{Status: EnqueueQueued, ID: id}
}

func (o *Outbox) enqueueFailed(collection string, err error) EnqueueResult {
	logging.WarnWithCode("Outbox enqueue dropped", string(apperrors.ErrDatabase), err,
		map[string]any{"collection": collection, "owner": o.Owner()})
	return EnqueueResult{Status: EnqueueFailed, Err: err}
}

// DrainResult reports one drain pass.
type DrainResult struct {
	// Acked are the entries delivered and deleted, in send order.
	Acked []models.OutboxEntry
	// Failed is the entry whose send halted the pass, if any.
	Failed *models.OutboxEntry
	// Quarantined is set when Failed crossed the attempt threshold and was
	// moved out of the live queue.
	Quarantined bool
}

// Drain sends every pending entry in ascending id order: entries whose
// payload carries an id are merge-upserted, the rest appended. It stops at
// the first failed send; the successful prefix is deleted as one batch.
// The returned error is REMOTE_WRITE_FAILED when a send failed.
func (o *Outbox) Drain(ctx context.Context, sender Sender) (DrainResult, error) {
	o.drainMu.Lock()
	defer o.drainMu.Unlock()

	var result DrainResult

	entries, err := o.Pending(ctx, 0)
	if err != nil {
		return result, err
	}

	var sendErr error
	for i := range entries {
		entry := entries[i]
		if err := o.send(ctx, sender, &entry); err != nil {
			sendErr = err
			result.Failed = &entry
			break
		}
		result.Acked = append(result.Acked, entry)
	}

	if len(result.Acked) > 0 || result.Failed != nil {
		quarantined, err := o.settle(ctx, result.Acked, result.Failed, sendErr)
		if err != nil {
			return result, err
		}
		result.Quarantined = quarantined
	}

	if sendErr != nil {
		return result, apperrors.Wrap(apperrors.ErrRemoteWriteFailed,
			fmt.Sprintf("send outbox entry %d to %s", result.Failed.ID, result.Failed.Collection), sendErr)
	}
	return result, nil
}

func (o *Outbox) send(ctx context.Context, sender Sender, entry *models.OutboxEntry) error {
	doc, err := entry.Document()
	if err != nil {
		return err
	}
	if id := doc.ID(); id != "" {
		return sender.MergeUpsert(ctx, entry.Collection, id, doc)
	}
	_, err = sender.Append(ctx, entry.Collection, doc)
	return err
}

// settle deletes the acknowledged prefix and records the failure, if any.
func (o *Outbox) settle(ctx context.Context, acked []models.OutboxEntry, failed *models.OutboxEntry, sendErr error) (bool, error) {
	quarantined := false
	err := o.store.Transaction(ctx, func(ctx context.Context, tx db.Querier) error {
		if len(acked) > 0 {
			// Ids only grow, so the acknowledged prefix is everything up to
			// the last delivered id.
			last := acked[len(acked)-1].ID
			if _, err := tx.Exec(ctx, "DELETE FROM sync_queue WHERE id <= ?", last); err != nil {
				return fmt.Errorf("delete delivered entries: %w", err)
			}
		}
		if failed == nil {
			return nil
		}

		failed.Attempts++
		failed.LastError = sendErr.Error()
		if _, err := tx.Exec(ctx,
			"UPDATE sync_queue SET attempts = ?, last_error = ? WHERE id = ?",
			failed.Attempts, failed.LastError, failed.ID); err != nil {
			return fmt.Errorf("record failed attempt: %w", err)
		}

		if o.maxAttempts == 0 || failed.Attempts < o.maxAttempts {
			return nil
		}
		if err := quarantine(ctx, tx, failed.ID, models.Millis(o.now())); err != nil {
			return err
		}
		quarantined = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if failed != nil {
		logging.WarnWithCode("Outbox drain halted", string(apperrors.ErrRemoteWriteFailed), sendErr, map[string]any{
			"entry_id":    failed.ID,
			"collection":  failed.Collection,
			"attempts":    failed.Attempts,
			"quarantined": quarantined,
		})
	}
	return quarantined, nil
}

func quarantine(ctx context.Context, tx db.Querier, id int64, at int64) error {
	if _, err := tx.Exec(ctx, `
		INSERT INTO sync_dead_letter (id, col, payload, created_at, attempts, last_error, quarantined_at)
		SELECT id, col, payload, created_at, attempts, last_error, ? FROM sync_queue WHERE id = ?`,
		at, id); err != nil {
		return fmt.Errorf("quarantine entry %d: %w", id, err)
	}
	if _, err := tx.Exec(ctx, "DELETE FROM sync_queue WHERE id = ?", id); err != nil {
		return fmt.Errorf("quarantine entry %d: %w", id, err)
	}
	return nil
}
