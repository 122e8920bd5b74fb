package models

import (
	"encoding/json"
	"fmt"
)

// Reserved document fields.
const (
	FieldID      = "id"
	FieldOwnerID = "ownerId"
	FieldDelete  = "_delete"
)

// Document is a partial record as replicated to the remote store.
type Document map[string]any

// ID returns the document id, or "" when the payload carries none.
func (d Document) ID() string {
	id, _ := d[FieldID].(string)
	return id
}

// WithOwner returns a copy of d tagged with the acting user. An empty owner
// leaves the document untouched.
func (d Document) WithOwner(ownerID string) Document {
	if ownerID == "" {
		return d
	}
	out := make(Document, len(d)+1)
	for k, v := range d {
		out[k] = v
	}
	out[FieldOwnerID] = ownerID
	return out
}

// Tombstone builds the delete marker for id.
func Tombstone(id string) Document {
	return Document{FieldID: id, FieldDelete: true}
}

// IsTombstone reports whether d carries the delete marker.
func (d Document) IsTombstone() bool {
	v, _ := d[FieldDelete].(bool)
	return v
}

// Marshal encodes the document for the outbox.
func (d Document) Marshal() ([]byte, error) {
	return json.Marshal(d)
}

// UnmarshalDocument decodes an outbox payload. An empty payload decodes to an
// empty document.
func UnmarshalDocument(data []byte) (Document, error) {
	doc := Document{}
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document: %w", err)
	}
	return doc, nil
}
