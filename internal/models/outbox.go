package models

import "encoding/json"

// OutboxEntry is one pending remote mutation. IDs increase monotonically and
// entries are consumed in ascending id order.
type OutboxEntry struct {
	ID         int64           `db:"id" json:"id"`
	Collection string          `db:"col" json:"col"`
	Payload    json.RawMessage `db:"payload" json:"payload"`
	CreatedAt  int64           `db:"created_at" json:"created_at"`
	Attempts   int             `db:"attempts" json:"attempts"`
	LastError  string          `db:"last_error" json:"last_error,omitempty"`
}

// TableName returns the table name for OutboxEntry.
func (OutboxEntry) TableName() string {
	return "sync_queue"
}

// Document decodes the payload.
func (e *OutboxEntry) Document() (Document, error) {
	return UnmarshalDocument(e.Payload)
}

// QuarantinedEntry is an outbox entry removed from the live queue after
// repeatedly failing to send.
type QuarantinedEntry struct {
	OutboxEntry
	QuarantinedAt int64 `db:"quarantined_at" json:"quarantined_at"`
}

// TableName returns the table name for QuarantinedEntry.
func (QuarantinedEntry) TableName() string {
	return "sync_dead_letter"
}
