package sync

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/emaamul/core/internal/errors"
	"github.com/emaamul/core/internal/logging"
	"github.com/emaamul/core/internal/models"
	"github.com/emaamul/core/internal/outbox"
	"github.com/emaamul/core/internal/sync/connectivity"
)

// Status is the engine state.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusSyncing Status = "syncing"
	StatusFailed  Status = "failed"
	StatusOffline Status = "offline"
	// StatusUnconfigured means no remote store is configured; the outbox
	// keeps every entry until one is.
	StatusUnconfigured Status = "unconfigured"
)

// AckHook is called with the entries a pass delivered.
type AckHook func(ctx context.Context, acked []models.OutboxEntry)

// Engine drains one outbox to one remote store. The remote applies each
// payload as a shallow merge, so concurrent edits to different fields of a
// document both survive and edits to the same field are last-write-wins.
type Engine struct {
	outbox *outbox.Outbox
	sender outbox.Sender
	probe  connectivity.Probe
	now    func() time.Time
	onAck  AckHook

	running atomic.Bool

	mu       sync.RWMutex
	status   Status
	lastSync *time.Time
	lastErr  error
	handler  EventHandler
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the time source for events and sync stamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithAckHook registers a hook for delivered entries.
func WithAckHook(hook AckHook) Option {
	return func(e *Engine) { e.onAck = hook }
}

// NewEngine creates an Engine. A nil sender leaves the outbox untouched:
// every pass is skipped.
func NewEngine(box *outbox.Outbox, sender outbox.Sender, probe connectivity.Probe, opts ...Option) *Engine {
	e := &Engine{
		outbox: box,
		sender: sender,
		probe:  probe,
		now:    time.Now,
		status: StatusIdle,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetEventHandler sets the handler for drain events.
func (e *Engine) SetEventHandler(handler EventHandler) {
	e.mu.Lock()
	e.handler = handler
	e.mu.Unlock()
}

// Status returns the current engine status.
func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status
}

// LastSync returns the end time of the last clean pass.
func (e *Engine) LastSync() *time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastSync
}

// LastError returns the error of the last pass.
func (e *Engine) LastError() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastErr
}

// Outbox returns the drained outbox.
func (e *Engine) Outbox() *outbox.Outbox {
	return e.outbox
}

// Online probes connectivity. A probe error counts as offline.
func (e *Engine) Online(ctx context.Context) bool {
	state, err := e.probe.Check(ctx)
	if err != nil {
		logging.Warn("Connectivity probe failed", map[string]any{"error": err.Error()})
		return false
	}
	return state.Online()
}

// DrainQueue runs one drain pass. It returns false without touching the
// outbox when offline, and SYNC_IN_PROGRESS when another pass is running.
// A remote write failure ends the pass and is returned with true.
func (e *Engine) DrainQueue(ctx context.Context) (bool, error) {
	if !e.running.CompareAndSwap(false, true) {
		return false, apperrors.New(apperrors.ErrSyncInProgress, "drain already running")
	}
	defer e.running.Store(false)

	if e.sender == nil {
		e.setStatus(StatusUnconfigured)
		e.emit(Event{Type: EventDrainSkipped})
		logging.Debug("Drain skipped without a remote store", map[string]any{"owner": e.outbox.Owner()})
		return false, nil
	}

	if !e.Online(ctx) {
		e.setStatus(StatusOffline)
		e.emit(Event{Type: EventDrainSkipped})
		logging.Debug("Drain skipped while offline", map[string]any{"owner": e.outbox.Owner()})
		return false, nil
	}

	e.setStatus(StatusSyncing)
	e.emit(Event{Type: EventDrainStarted})

	result, err := e.outbox.Drain(ctx, e.sender)
	// A send failure still deletes the delivered prefix; any other error
	// means the prefix is still queued.
	settled := err == nil || apperrors.Is(err, apperrors.ErrRemoteWriteFailed)
	if settled && len(result.Acked) > 0 && e.onAck != nil {
		e.onAck(ctx, result.Acked)
	}

	end := e.now()
	e.mu.Lock()
	e.lastErr = err
	if err != nil {
		e.status = StatusFailed
	} else {
		e.status = StatusIdle
		e.lastSync = &end
	}
	e.mu.Unlock()

	if err != nil {
		ev := Event{Type: EventDrainFailed, Sent: len(result.Acked), Quarantined: result.Quarantined, Error: err.Error()}
		if result.Failed != nil {
			ev.EntryID = result.Failed.ID
		}
		e.emit(ev)
		return true, err
	}

	e.emit(Event{Type: EventDrainCompleted, Sent: len(result.Acked)})
	if len(result.Acked) > 0 {
		logging.Info("Outbox drained", map[string]any{"sent": len(result.Acked), "owner": e.outbox.Owner()})
	}
	return true, nil
}

// SyncNow writes a heartbeat document carrying snapshot, ignoring its
// failure, then drains.
func (e *Engine) SyncNow(ctx context.Context, snapshot models.Document) (bool, error) {
	if e.sender != nil && e.Online(ctx) {
		doc := models.Document{}
		for k, v := range snapshot {
			doc[k] = v
		}
		doc["at"] = models.Millis(e.now())
		doc = doc.WithOwner(e.outbox.Owner())
		if _, err := e.sender.Append(ctx, models.CollectionHeartbeats, doc); err != nil {
			logging.Warn("Heartbeat write failed", map[string]any{"error": err.Error()})
		}
	}
	return e.DrainQueue(ctx)
}

func (e *Engine) setStatus(status Status) {
	e.mu.Lock()
	e.status = status
	e.mu.Unlock()
}

func (e *Engine) emit(ev Event) {
	e.mu.RLock()
	handler := e.handler
	e.mu.RUnlock()
	if handler == nil {
		return
	}
	ev.Time = e.now()
	ev.Owner = e.outbox.Owner()
	handler(ev)
}
