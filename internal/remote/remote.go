// Package remote holds what the remote document store adapters share.
package remote

import "github.com/emaamul/core/internal/models"

// Server-side stamps added by every adapter.
const (
	FieldSyncedAt  = "syncedAt"
	FieldCreatedAt = "createdAt"
)

// Stamped returns a copy of doc with field set to ms.
func Stamped(doc models.Document, field string, ms int64) models.Document {
	out := make(models.Document, len(doc)+1)
	for k, v := range doc {
		out[k] = v
	}
	out[field] = ms
	return out
}
