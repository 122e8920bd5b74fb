// Package postgres stores remote documents as JSONB rows. A merge-upsert
// concatenates the incoming fields over the stored ones, so fields absent
// from the patch survive.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/emaamul/core/internal/models"
	"github.com/emaamul/core/internal/remote"
	"github.com/emaamul/core/internal/uuid"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	id TEXT NOT NULL,
	data JSONB NOT NULL DEFAULT '{}'::jsonb,
	PRIMARY KEY (collection, id)
)`

// Config holds pool settings.
type Config struct {
	DatabaseURL     string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	PingTimeout     time.Duration
}

// Store is a document store over a pgx pool.
type Store struct {
	pool  *pgxpool.Pool
	now   func() time.Time
	newID uuid.Generator
}

// Open connects, pings and creates the documents table.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	timeout := cfg.PingTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create documents table: %w", err)
	}

	return &Store{pool: pool, now: time.Now, newID: uuid.New}, nil
}

// MergeUpsert shallow-merges doc into collection/id and stamps syncedAt.
func (s *Store) MergeUpsert(ctx context.Context, collection, id string, doc models.Document) error {
	data, err := json.Marshal(remote.Stamped(doc, remote.FieldSyncedAt, s.now().UnixMilli()))
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (collection, id) DO UPDATE SET data = documents.data || EXCLUDED.data`,
		collection, id, string(data))
	if err != nil {
		return fmt.Errorf("failed to merge %s/%s: %w", collection, id, err)
	}
	return nil
}

// Append inserts doc under a new id and stamps createdAt.
func (s *Store) Append(ctx context.Context, collection string, doc models.Document) (string, error) {
	id := s.newID()
	data, err := json.Marshal(remote.Stamped(doc, remote.FieldCreatedAt, s.now().UnixMilli()))
	if err != nil {
		return "", fmt.Errorf("failed to encode document: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		"INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3::jsonb)",
		collection, id, string(data))
	if err != nil {
		return "", fmt.Errorf("failed to append to %s: %w", collection, err)
	}
	return id, nil
}

// Get returns collection/id, or false when absent.
func (s *Store) Get(ctx context.Context, collection, id string) (models.Document, bool, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		"SELECT data FROM documents WHERE collection = $1 AND id = $2", collection, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	doc, err := models.UnmarshalDocument(data)
	if err != nil {
		return nil, false, err
	}
	return doc, true, nil
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
