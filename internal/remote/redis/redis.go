// Package redis stores remote documents as Redis hashes, one JSON-encoded
// value per field. HSET only touches the fields it is given, which makes a
// merge-upsert a single command.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/emaamul/core/internal/models"
	"github.com/emaamul/core/internal/remote"
	"github.com/emaamul/core/internal/uuid"
)

// DefaultPrefix namespaces every key.
const DefaultPrefix = "emaamul"

// Config holds connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Store is a document store over a Redis client.
type Store struct {
	client *goredis.Client
	prefix string
	now    func() time.Time
	newID  uuid.Generator
}

// Open connects and pings.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to reach redis: %w", err)
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, prefix: prefix, now: time.Now, newID: uuid.New}, nil
}

func (s *Store) docKey(collection, id string) string {
	return s.prefix + ":" + collection + ":" + id
}

func (s *Store) indexKey(collection string) string {
	return s.prefix + ":" + collection
}

func encodeFields(doc models.Document) (map[string]any, error) {
	fields := make(map[string]any, len(doc))
	for k, v := range doc {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode field %s: %w", k, err)
		}
		fields[k] = string(b)
	}
	return fields, nil
}

func (s *Store) write(ctx context.Context, collection, id string, doc models.Document) error {
	fields, err := encodeFields(doc)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, s.docKey(collection, id), fields)
		pipe.SAdd(ctx, s.indexKey(collection), id)
		return nil
	})
	return err
}

// MergeUpsert writes the fields of doc over collection/id and stamps syncedAt.
func (s *Store) MergeUpsert(ctx context.Context, collection, id string, doc models.Document) error {
	if err := s.write(ctx, collection, id, remote.Stamped(doc, remote.FieldSyncedAt, s.now().UnixMilli())); err != nil {
		return fmt.Errorf("failed to merge %s/%s: %w", collection, id, err)
	}
	return nil
}

// Append stores doc under a new id and stamps createdAt.
func (s *Store) Append(ctx context.Context, collection string, doc models.Document) (string, error) {
	id := s.newID()
	if err := s.write(ctx, collection, id, remote.Stamped(doc, remote.FieldCreatedAt, s.now().UnixMilli())); err != nil {
		return "", fmt.Errorf("failed to append to %s: %w", collection, err)
	}
	return id, nil
}

// Get returns collection/id, or false when absent.
func (s *Store) Get(ctx context.Context, collection, id string) (models.Document, bool, error) {
	raw, err := s.client.HGetAll(ctx, s.docKey(collection, id)).Result()
	if err != nil {
		return nil, false, err
	}
	if len(raw) == 0 {
		return nil, false, nil
	}
	doc := make(models.Document, len(raw))
	for k, v := range raw {
		var value any
		if err := json.Unmarshal([]byte(v), &value); err != nil {
			return nil, false, fmt.Errorf("failed to decode field %s: %w", k, err)
		}
		doc[k] = value
	}
	return doc, true, nil
}

// IDs returns the ids stored in collection.
func (s *Store) IDs(ctx context.Context, collection string) ([]string, error) {
	return s.client.SMembers(ctx, s.indexKey(collection)).Result()
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}
