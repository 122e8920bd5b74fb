package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/emaamul/core/internal/db"
	"github.com/emaamul/core/internal/db/dbtest"
	"github.com/emaamul/core/internal/models"
	"github.com/emaamul/core/internal/outbox"
	"github.com/emaamul/core/internal/uuid"
)

var fixedNow = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

type fixture struct {
	store  db.Store
	outbox *outbox.Outbox
	repos  *Repositories
	clock  time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: dbtest.OpenOwner(t, t.TempDir(), "owner-1"),
		clock: fixedNow,
	}
	now := func() time.Time { return f.clock }
	f.outbox = outbox.New(f.store, outbox.WithClock(now))
	f.repos = New(f.store, f.outbox, WithClock(now), WithIDs(uuid.Sequence("id")))
	return f
}

func (f *fixture) tick(d time.Duration) {
	f.clock = f.clock.Add(d)
}

// entries returns pending outbox entries with decoded payloads.
func (f *fixture) entries(t *testing.T) []queued {
	t.Helper()
	pending, err := f.outbox.Pending(context.Background(), 0)
	require.NoError(t, err)
	out := make([]queued, 0, len(pending))
	for _, e := range pending {
		doc, err := e.Document()
		require.NoError(t, err)
		out = append(out, queued{ID: e.ID, Collection: e.Collection, Doc: doc})
	}
	return out
}

type queued struct {
	ID         int64
	Collection string
	Doc        models.Document
}

func collections(entries []queued) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Collection
	}
	return out
}

func TestWithIDs_nilUsesRandomIDs(t *testing.T) {
	store := dbtest.Open(t)
	repos := New(store, outbox.New(store), WithIDs(nil))

	a, err := repos.Customers.Upsert(context.Background(), CustomerInput{Name: "Abebe"})
	require.NoError(t, err)
	b, err := repos.Customers.Upsert(context.Background(), CustomerInput{Name: "Sara"})
	require.NoError(t, err)
	require.NotEmpty(t, a.ID)
	require.NotEqual(t, a.ID, b.ID)
}
