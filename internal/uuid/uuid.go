// Package uuid mints the opaque identifiers used for local rows and remote
// documents. The same id addresses a record in both stores.
package uuid

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// Generator returns a fresh identifier on every call.
type Generator func() string

// New generates a new UUID v4 string.
func New() string {
	return uuid.New().String()
}

// Sequence returns a deterministic Generator yielding prefix-1, prefix-2, ...
// Intended for tests that assert on ids.
func Sequence(prefix string) Generator {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("%s-%d", prefix, n.Add(1))
	}
}

// OrDefault returns g, or New when g is nil.
func OrDefault(g Generator) Generator {
	if g == nil {
		return New
	}
	return g
}
