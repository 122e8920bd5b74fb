package outbox

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emaamul/core/internal/db"
	"github.com/emaamul/core/internal/db/dbtest"
	apperrors "github.com/emaamul/core/internal/errors"
	"github.com/emaamul/core/internal/models"
	"github.com/emaamul/core/internal/remote/memory"
)

var fixedNow = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

func newOutbox(t *testing.T, opts ...Option) (*Outbox, db.Store) {
	t.Helper()
	store := dbtest.OpenOwner(t, t.TempDir(), "owner-1")
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return New(store, opts...), store
}

func enqueue(t *testing.T, o *Outbox, store db.Store, collection string, doc models.Document) int64 {
	t.Helper()
	var result EnqueueResult
	err := store.Transaction(context.Background(), func(ctx context.Context, tx db.Querier) error {
		result = o.Enqueue(ctx, tx, collection, doc)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, EnqueueQueued, result.Status, "enqueue: %v", result.Err)
	return result.ID
}

func TestEnqueue_tagsOwnerAndTimestamp(t *testing.T) {
	o, store := newOutbox(t)
	id := enqueue(t, o, store, models.CollectionProducts, models.Document{"id": "p1", "stock": 3})

	entries, err := o.Pending(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	assert.Equal(t, id, entries[0].ID)
	assert.Equal(t, models.CollectionProducts, entries[0].Collection)
	assert.Equal(t, models.Millis(fixedNow), entries[0].CreatedAt)

	doc, err := entries[0].Document()
	require.NoError(t, err)
	assert.Equal(t, "p1", doc.ID())
	assert.Equal(t, "owner-1", doc[models.FieldOwnerID])
	assert.EqualValues(t, 3, doc["stock"])
}

func TestEnqueue_failureKeepsDomainWrite(t *testing.T) {
	ctx := context.Background()
	o, store := newOutbox(t)

	_, err := store.Exec(ctx, "DROP TABLE sync_queue")
	require.NoError(t, err)

	var result EnqueueResult
	err = store.Transaction(ctx, func(ctx context.Context, tx db.Querier) error {
		if _, err := tx.Exec(ctx, "INSERT INTO customers (id, name) VALUES ('c1', 'Abebe')"); err != nil {
			return err
		}
		result = o.Enqueue(ctx, tx, models.CollectionCustomers, models.Document{"id": "c1"})
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, EnqueueFailed, result.Status)
	assert.Error(t, result.Err)
	assert.Equal(t, 1, dbtest.Count(t, store, "customers"))
}

func TestEnqueue_rolledBackWithDomainWrite(t *testing.T) {
	ctx := context.Background()
	o, store := newOutbox(t)

	boom := errors.New("domain write failed")
	err := store.Transaction(ctx, func(ctx context.Context, tx db.Querier) error {
		o.Enqueue(ctx, tx, models.CollectionProducts, models.Document{"id": "p1"})
		return boom
	})
	require.ErrorIs(t, err, boom)

	depth, err := o.Depth(ctx)
	require.NoError(t, err)
	assert.Zero(t, depth)
}

func TestDrain_replaysInEnqueueOrder(t *testing.T) {
	ctx := context.Background()
	o, store := newOutbox(t)
	remote := memory.New()

	enqueue(t, o, store, models.CollectionProducts, models.Document{"id": "p1", "stock": 3})
	enqueue(t, o, store, models.CollectionHeartbeats, models.Document{"at": 1})
	enqueue(t, o, store, models.CollectionCustomers, models.Document{"id": "c1", "balance": 20})
	enqueue(t, o, store, models.CollectionTransactions, models.Document{"id": "t1", "amount": 20})

	result, err := o.Drain(ctx, remote)
	require.NoError(t, err)
	assert.Len(t, result.Acked, 4)
	assert.Nil(t, result.Failed)

	writes := remote.Writes()
	require.Len(t, writes, 4)
	assert.Equal(t, memory.OpMerge, writes[0].Op)
	assert.Equal(t, "p1", writes[0].ID)
	assert.Equal(t, memory.OpAppend, writes[1].Op)
	assert.Equal(t, "c1", writes[2].ID)
	assert.Equal(t, "t1", writes[3].ID)

	depth, err := o.Depth(ctx)
	require.NoError(t, err)
	assert.Zero(t, depth)
}

func TestDrain_haltsOnFirstFailure(t *testing.T) {
	ctx := context.Background()
	o, store := newOutbox(t)
	remote := memory.New()

	var ids []int64
	for i := 1; i <= 5; i++ {
		ids = append(ids, enqueue(t, o, store, models.CollectionProducts, models.Document{"id": fmt.Sprintf("p%d", i)}))
	}
	remote.FailWhen(func(w memory.Write) error {
		if w.ID == "p3" {
			return errors.New("permission denied")
		}
		return nil
	})

	result, err := o.Drain(ctx, remote)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrRemoteWriteFailed))
	assert.Len(t, result.Acked, 2)
	require.NotNil(t, result.Failed)
	assert.Equal(t, ids[2], result.Failed.ID)
	assert.False(t, result.Quarantined)

	pending, err := o.Pending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	for i, e := range pending {
		assert.Equal(t, ids[i+2], e.ID)
	}
	assert.Equal(t, 1, pending[0].Attempts)
	assert.Equal(t, "permission denied", pending[0].LastError)
	assert.Len(t, remote.Writes(), 2)

	remote.FailWhen(nil)
	result, err = o.Drain(ctx, remote)
	require.NoError(t, err)
	assert.Len(t, result.Acked, 3)
	assert.Equal(t, "p3", remote.Writes()[2].ID)
}

func TestDrain_malformedPayloadHalts(t *testing.T) {
	ctx := context.Background()
	o, store := newOutbox(t)

	_, err := store.Exec(ctx, "INSERT INTO sync_queue (col, payload, created_at) VALUES ('products', 'not json', 1)")
	require.NoError(t, err)
	enqueue(t, o, store, models.CollectionProducts, models.Document{"id": "p1"})

	_, err = o.Drain(ctx, memory.New())
	require.Error(t, err)

	depth, err := o.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, depth)
}

func TestDrain_quarantinesAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	o, store := newOutbox(t, WithMaxAttempts(2))
	remote := memory.New()

	poison := enqueue(t, o, store, models.CollectionProducts, models.Document{"id": "bad"})
	enqueue(t, o, store, models.CollectionProducts, models.Document{"id": "good"})
	remote.FailWhen(func(w memory.Write) error {
		if w.ID == "bad" {
			return errors.New("malformed")
		}
		return nil
	})

	result, err := o.Drain(ctx, remote)
	require.Error(t, err)
	assert.False(t, result.Quarantined)

	result, err = o.Drain(ctx, remote)
	require.Error(t, err)
	assert.True(t, result.Quarantined)
	assert.Empty(t, remote.Writes(), "the pass halts even when quarantining")

	result, err = o.Drain(ctx, remote)
	require.NoError(t, err)
	require.Len(t, result.Acked, 1)
	assert.Equal(t, "good", remote.Writes()[0].ID)

	quarantined, err := o.Quarantined(ctx)
	require.NoError(t, err)
	require.Len(t, quarantined, 1)
	assert.Equal(t, poison, quarantined[0].ID)
	assert.Equal(t, 2, quarantined[0].Attempts)
	assert.Equal(t, models.Millis(fixedNow), quarantined[0].QuarantinedAt)

	stats, err := o.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Quarantined: 1}, stats)

	remote.FailWhen(nil)
	newID, err := o.Requeue(ctx, poison)
	require.NoError(t, err)
	assert.Greater(t, newID, poison)

	_, err = o.Drain(ctx, remote)
	require.NoError(t, err)
	assert.Equal(t, "bad", remote.Writes()[1].ID)

	_, err = o.Requeue(ctx, poison)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestDrain_zeroMaxAttemptsNeverQuarantines(t *testing.T) {
	ctx := context.Background()
	o, store := newOutbox(t, WithMaxAttempts(0))
	remote := memory.New()
	remote.FailWhen(func(memory.Write) error { return errors.New("down") })

	enqueue(t, o, store, models.CollectionProducts, models.Document{"id": "p1"})
	for i := 0; i < 12; i++ {
		result, err := o.Drain(ctx, remote)
		require.Error(t, err)
		require.False(t, result.Quarantined)
	}

	stats, err := o.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Pending)
	assert.Equal(t, 12, stats.HeadAttempts)
	assert.Equal(t, "down", stats.LastError)
	assert.Zero(t, stats.Quarantined)
}

func TestRequeueAllAndDiscard(t *testing.T) {
	ctx := context.Background()
	o, store := newOutbox(t, WithMaxAttempts(1))
	remote := memory.New()
	remote.FailWhen(func(memory.Write) error { return errors.New("down") })

	enqueue(t, o, store, models.CollectionDebts, models.Document{"id": "d1"})
	enqueue(t, o, store, models.CollectionDebts, models.Document{"id": "d2"})
	_, _ = o.Drain(ctx, remote)
	_, _ = o.Drain(ctx, remote)

	quarantined, err := o.Quarantined(ctx)
	require.NoError(t, err)
	require.Len(t, quarantined, 2)

	require.NoError(t, o.Discard(ctx, quarantined[0].ID))
	assert.True(t, apperrors.IsNotFound(o.Discard(ctx, quarantined[0].ID)))

	n, err := o.RequeueAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	pending, err := o.Pending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Zero(t, pending[0].Attempts)
}

func TestDrain_emptyQueue(t *testing.T) {
	o, _ := newOutbox(t)
	result, err := o.Drain(context.Background(), memory.New())
	require.NoError(t, err)
	assert.Empty(t, result.Acked)
}
