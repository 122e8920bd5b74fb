// Package sync replays the outbox to the remote store.
package sync

import (
	"context"
	"time"
)

// Drainer is the engine surface the scheduler and diagnostics depend on.
type Drainer interface {
	// DrainQueue runs one drain pass if connectivity allows. It reports
	// whether a pass ran.
	DrainQueue(ctx context.Context) (bool, error)

	// SetEventHandler sets the handler notified of drain progress.
	SetEventHandler(handler EventHandler)

	// Status returns the current engine status.
	Status() Status

	// LastSync returns the end time of the last clean pass.
	LastSync() *time.Time

	// LastError returns the error of the last pass, nil after a clean one.
	LastError() error
}

// EventType names a drain lifecycle event.
type EventType string

const (
	EventDrainStarted   EventType = "drain_started"
	EventDrainCompleted EventType = "drain_completed"
	EventDrainFailed    EventType = "drain_failed"
	EventDrainSkipped   EventType = "drain_skipped"
)

// Event describes drain progress.
type Event struct {
	Type        EventType `json:"type"`
	Time        time.Time `json:"time"`
	Owner       string    `json:"owner,omitempty"`
	Sent        int       `json:"sent,omitempty"`
	EntryID     int64     `json:"entry_id,omitempty"`
	Quarantined bool      `json:"quarantined,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// EventHandler receives events synchronously; it must not block.
type EventHandler func(Event)
