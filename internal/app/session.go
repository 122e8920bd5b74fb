// Package app wires one local partition per signed-in identity: the store,
// its schema, the outbox, the repositories, the reports and the sync engine.
// A session is never re-pointed; switching identity builds a new one and
// closes the old, so callers still holding the old session fail closed.
package app

import (
	"context"
	"time"

	"github.com/emaamul/core/internal/db"
	apperrors "github.com/emaamul/core/internal/errors"
	"github.com/emaamul/core/internal/logging"
	"github.com/emaamul/core/internal/models"
	"github.com/emaamul/core/internal/outbox"
	"github.com/emaamul/core/internal/report"
	"github.com/emaamul/core/internal/repository"
	syncpkg "github.com/emaamul/core/internal/sync"
	"github.com/emaamul/core/internal/sync/connectivity"
	"github.com/emaamul/core/internal/uuid"
)

// Deps are the process-wide collaborators every session shares.
type Deps struct {
	DataDir string
	Engines []db.Engine
	// Remote is nil when no remote store is configured; drains are then
	// skipped and the outbox keeps every entry.
	Remote      outbox.Sender
	Probe       connectivity.Probe
	MaxAttempts int
	Now         func() time.Time
	IDs         uuid.Generator
	Location    *time.Location
}

func (d Deps) withDefaults() Deps {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Location == nil {
		d.Location = time.Local
	}
	d.IDs = uuid.OrDefault(d.IDs)
	if d.Probe == nil {
		d.Probe = connectivity.NewSwitch(connectivity.State{IsConnected: true, IsInternetReachable: true})
	}
	return d
}

// Session is the wiring for one identity.
type Session struct {
	Owner      string
	Store      db.Store
	Migrations []db.MigrationResult
	Outbox     *outbox.Outbox
	Repos      *repository.Repositories
	Reports    *report.Reporter
	Engine     *syncpkg.Engine
}

// OpenSession opens the partition of owner and ensures its schema. A store
// with no usable engine still yields a session whose calls fail with
// STORAGE_UNAVAILABLE.
func OpenSession(ctx context.Context, owner string, deps Deps) *Session {
	deps = deps.withDefaults()
	now, loc := deps.Now, deps.Location

	store := db.Open(db.Options{Dir: deps.DataDir, Owner: owner, Engines: deps.Engines})
	migrations, err := db.EnsureSchema(ctx, store)
	if err != nil {
		logging.ErrorWithCode("Schema setup failed", string(apperrors.CodeOf(err)), err, map[string]any{"owner": owner})
	}

	box := outbox.New(store, outbox.WithClock(now), outbox.WithMaxAttempts(deps.MaxAttempts))
	repos := repository.New(store, box, repository.WithClock(now), repository.WithIDs(deps.IDs))

	s := &Session{
		Owner:      owner,
		Store:      store,
		Migrations: migrations,
		Outbox:     box,
		Repos:      repos,
		Reports:    report.New(store, repos.Debts, report.WithClock(now), report.WithLocation(loc)),
	}
	s.Engine = syncpkg.NewEngine(box, deps.Remote, deps.Probe,
		syncpkg.WithClock(now), syncpkg.WithAckHook(s.markTransactionsSynced))
	return s
}

// Available reports whether the session has a working storage engine.
func (s *Session) Available() bool {
	return s.Store.Engine() != db.EngineUnavailable
}

// markTransactionsSynced flips the local synced flag of delivered
// transactions. Tombstones have no row left to flag.
func (s *Session) markTransactionsSynced(ctx context.Context, acked []models.OutboxEntry) {
	var ids []string
	for i := range acked {
		if acked[i].Collection != models.CollectionTransactions {
			continue
		}
		doc, err := acked[i].Document()
		if err != nil || doc.ID() == "" || doc.IsTombstone() {
			continue
		}
		ids = append(ids, doc.ID())
	}
	if len(ids) == 0 {
		return
	}
	if _, err := s.Repos.Transactions.MarkSynced(ctx, ids); err != nil {
		logging.Warn("Failed to mark transactions synced", map[string]any{"count": len(ids), "error": err.Error()})
	}
}

// Close closes the store.
func (s *Session) Close() error {
	return s.Store.Close()
}
