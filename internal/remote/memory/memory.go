// Package memory is an in-process remote document store. It records every
// write in order and can inject failures.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/emaamul/core/internal/models"
	"github.com/emaamul/core/internal/remote"
	"github.com/emaamul/core/internal/uuid"
)

// Op is the kind of remote write.
type Op string

const (
	OpMerge  Op = "merge"
	OpAppend Op = "append"
)

// Write is one accepted remote write.
type Write struct {
	Op         Op
	Collection string
	ID         string
	Doc        models.Document
}

// Store keeps documents per collection in memory.
type Store struct {
	mu     sync.Mutex
	docs   map[string]map[string]models.Document
	writes []Write
	fail   func(Write) error
	now    func() time.Time
	newID  uuid.Generator
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the time used for server stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDs sets the generator for appended document ids.
func WithIDs(gen uuid.Generator) Option {
	return func(s *Store) { s.newID = gen }
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		docs:  make(map[string]map[string]models.Document),
		now:   time.Now,
		newID: uuid.New,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FailWhen installs a hook consulted before every write; a non-nil error
// rejects the write. Pass nil to accept everything again.
func (s *Store) FailWhen(fn func(Write) error) {
	s.mu.Lock()
	s.fail = fn
	s.mu.Unlock()
}

// MergeUpsert shallow-merges doc into collection/id.
func (s *Store) MergeUpsert(ctx context.Context, collection, id string, doc models.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	w := Write{Op: OpMerge, Collection: collection, ID: id, Doc: doc}
	if s.fail != nil {
		if err := s.fail(w); err != nil {
			return err
		}
	}

	col := s.collection(collection)
	merged := models.Document{}
	for k, v := range col[id] {
		merged[k] = v
	}
	for k, v := range remote.Stamped(doc, remote.FieldSyncedAt, s.now().UnixMilli()) {
		merged[k] = v
	}
	col[id] = merged
	s.writes = append(s.writes, w)
	return nil
}

// Append stores doc under a generated id.
func (s *Store) Append(ctx context.Context, collection string, doc models.Document) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	w := Write{Op: OpAppend, Collection: collection, Doc: doc}
	if s.fail != nil {
		if err := s.fail(w); err != nil {
			return "", err
		}
	}

	id := s.newID()
	w.ID = id
	s.collection(collection)[id] = remote.Stamped(doc, remote.FieldCreatedAt, s.now().UnixMilli())
	s.writes = append(s.writes, w)
	return id, nil
}

func (s *Store) collection(name string) map[string]models.Document {
	col, ok := s.docs[name]
	if !ok {
		col = make(map[string]models.Document)
		s.docs[name] = col
	}
	return col
}

// Get returns a copy of collection/id.
func (s *Store) Get(collection, id string) (models.Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[collection][id]
	if !ok {
		return nil, false
	}
	out := make(models.Document, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out, true
}

// Count returns the number of documents in collection.
func (s *Store) Count(collection string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs[collection])
}

// Writes returns the accepted writes in the order they landed.
func (s *Store) Writes() []Write {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Write, len(s.writes))
	copy(out, s.writes)
	return out
}

// Close is a no-op.
func (s *Store) Close() error { return nil }
