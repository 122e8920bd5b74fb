package app

import (
	"context"
	"errors"
	"sync"

	"github.com/emaamul/core/internal/identity"
	"github.com/emaamul/core/internal/logging"
	syncpkg "github.com/emaamul/core/internal/sync"
)

// DrainerSink receives the engine of each new session.
type DrainerSink interface {
	SetDrainer(drainer syncpkg.Drainer)
}

// App owns the active session and replaces it when the identity changes.
type App struct {
	deps     Deps
	identity *identity.Tracker

	mu      sync.RWMutex
	session *Session
	sinks   []DrainerSink
	handler syncpkg.EventHandler
}

// New opens the session of the tracker's current identity.
func New(ctx context.Context, deps Deps, tracker *identity.Tracker) *App {
	if tracker == nil {
		tracker = identity.NewTracker("")
	}
	a := &App{deps: deps.withDefaults(), identity: tracker}
	a.session = OpenSession(ctx, tracker.Current(), a.deps)
	return a
}

// Identity returns the tracker the app follows.
func (a *App) Identity() *identity.Tracker {
	return a.identity
}

// Session returns the active session.
func (a *App) Session() *Session {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.session
}

// AddSink registers s to receive the engine of the active session, now and
// after every switch.
func (a *App) AddSink(s DrainerSink) {
	a.mu.Lock()
	a.sinks = append(a.sinks, s)
	engine := a.session.Engine
	a.mu.Unlock()
	s.SetDrainer(engine)
}

// SetEventHandler installs handler on the engine of every session.
func (a *App) SetEventHandler(handler syncpkg.EventHandler) {
	a.mu.Lock()
	a.handler = handler
	engine := a.session.Engine
	a.mu.Unlock()
	engine.SetEventHandler(handler)
}

// SwitchOwner builds the session of owner, makes it active and closes the
// previous one. Switching to the active owner is a no-op.
func (a *App) SwitchOwner(ctx context.Context, owner string) *Session {
	a.mu.RLock()
	current := a.session
	a.mu.RUnlock()
	if current.Owner == owner {
		return current
	}

	next := OpenSession(ctx, owner, a.deps)

	a.mu.Lock()
	prev := a.session
	a.session = next
	sinks := append([]DrainerSink(nil), a.sinks...)
	handler := a.handler
	a.mu.Unlock()

	if handler != nil {
		next.Engine.SetEventHandler(handler)
	}
	for _, s := range sinks {
		s.SetDrainer(next.Engine)
	}
	if err := prev.Close(); err != nil {
		logging.Warn("Failed to close previous session", map[string]any{"owner": prev.Owner, "error": err.Error()})
	}
	logging.Info("Identity switched", map[string]any{"from": prev.Owner, "to": owner, "engine": string(next.Store.Engine())})
	return next
}

// Run follows identity changes until ctx ends.
func (a *App) Run(ctx context.Context) error {
	changes, cancel := a.identity.Subscribe()
	defer cancel()

	// Catch a change made between New and Subscribe.
	a.SwitchOwner(ctx, a.identity.Current())
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case c := <-changes:
			a.SwitchOwner(ctx, c.Current)
		}
	}
}

// Close closes the active session.
func (a *App) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session.Close()
}
