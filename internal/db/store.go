// Package db provides the local store adapter: one query and transaction
// interface over whichever embedded SQL engine is usable, partitioned per
// signed-in owner.
package db

import (
	"context"
	"database/sql"
	"encoding/base32"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	apperrors "github.com/emaamul/core/internal/errors"
	"github.com/emaamul/core/internal/logging"
)

// Row is a single-row query result.
type Row interface {
	Scan(dest ...any) error
}

// Querier executes statements. Both a Store and the handle passed to a
// Transaction callback implement it.
type Querier interface {
	Exec(ctx context.Context, query string, args ...any) (sql.Result, error)
	Query(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRow(ctx context.Context, query string, args ...any) Row
}

// TxFunc is work run inside a local transaction. Returning an error or
// panicking rolls the transaction back.
type TxFunc func(ctx context.Context, tx Querier) error

// Store is the local store adapter for one owner partition.
//
// Only one connection exists per store, so a TxFunc must issue every
// statement through its tx handle, never through the Store itself.
type Store interface {
	Querier
	Transaction(ctx context.Context, fn TxFunc) error
	Engine() Engine
	Owner() string
	Path() string
	Close() error
}

// Options configures Open.
type Options struct {
	// Dir holds one database file per owner.
	Dir string
	// Owner is the signed-in user id; empty selects the default partition.
	Owner string
	// Engines is the probing order. Empty means DefaultEngines.
	Engines []Engine
}

// partitionEncoding maps owner ids to file names one-to-one. Lower-case
// base32 is safe on case-insensitive file systems.
var partitionEncoding = base32.NewEncoding("abcdefghijklmnopqrstuvwxyz234567").WithPadding(base32.NoPadding)

// PartitionFile returns the database file name for owner. Distinct owners
// always get distinct files.
func PartitionFile(owner string) string {
	if owner == "" {
		return "emaamul.db"
	}
	return "emaamul_" + partitionEncoding.EncodeToString([]byte(owner)) + ".db"
}

// Open probes the configured engines in order and returns a store on the
// first that works. When none does, it returns an unavailable store whose
// every call fails with STORAGE_UNAVAILABLE; Open itself never fails.
func Open(opts Options) Store {
	engines := opts.Engines
	if len(engines) == 0 {
		engines = DefaultEngines
	}

	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		logging.WarnWithCode("Local storage directory unusable", string(apperrors.ErrStorageUnavailable), err,
			map[string]any{"dir": opts.Dir})
		return Unavailable(opts.Owner, fmt.Sprintf("data directory %s: %v", opts.Dir, err))
	}

	path := filepath.Join(opts.Dir, PartitionFile(opts.Owner))
	var reasons []string
	for _, engine := range engines {
		open, ok := openers[engine]
		if !ok {
			reasons = append(reasons, fmt.Sprintf("%s: unknown engine", engine))
			continue
		}
		conn, err := open(path)
		if err != nil {
			logging.Warn("Storage engine probe failed", map[string]any{"engine": string(engine), "error": err.Error()})
			reasons = append(reasons, fmt.Sprintf("%s: %v", engine, err))
			continue
		}
		logging.Debug("Local store opened", map[string]any{"engine": string(engine), "path": path})
		return &sqlStore{db: conn, engine: engine, owner: opts.Owner, path: path}
	}

	return Unavailable(opts.Owner, "no storage engine: "+strings.Join(reasons, "; "))
}

// sqlStore is a Store backed by database/sql.
type sqlStore struct {
	db     *sql.DB
	engine Engine
	owner  string
	path   string
	closed atomic.Bool
}

func (s *sqlStore) Engine() Engine { return s.engine }
func (s *sqlStore) Owner() string  { return s.owner }
func (s *sqlStore) Path() string   { return s.path }

// Close releases the handle. Calls made through a closed store fail with
// STORAGE_UNAVAILABLE rather than reaching another partition.
func (s *sqlStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}

func (s *sqlStore) check() error {
	if s.closed.Load() {
		return apperrors.Newf(apperrors.ErrStorageUnavailable, "store for owner %q is closed", s.owner)
	}
	return nil
}

func (s *sqlStore) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	return res, s.wrap(err)
}

func (s *sqlStore) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	return rows, s.wrap(err)
}

func (s *sqlStore) QueryRow(ctx context.Context, query string, args ...any) Row {
	if err := s.check(); err != nil {
		return errRow{err}
	}
	return s.db.QueryRowContext(ctx, query, args...)
}

// Transaction runs fn in a local transaction and guarantees commit or
// rollback on every exit path, panics included.
func (s *sqlStore) Transaction(ctx context.Context, fn TxFunc) (err error) {
	if err := s.check(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.wrap(err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(ctx, txQuerier{tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logging.Error("Rollback failed", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "commit", err)
	}
	return nil
}

// wrap maps a closed-handle race to STORAGE_UNAVAILABLE.
func (s *sqlStore) wrap(err error) error {
	if err == nil {
		return nil
	}
	if s.closed.Load() || strings.Contains(err.Error(), "database is closed") {
		return apperrors.Wrap(apperrors.ErrStorageUnavailable, "store closed", err)
	}
	return err
}

type txQuerier struct {
	tx *sql.Tx
}

func (q txQuerier) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return q.tx.ExecContext(ctx, query, args...)
}

func (q txQuerier) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return q.tx.QueryContext(ctx, query, args...)
}

func (q txQuerier) QueryRow(ctx context.Context, query string, args ...any) Row {
	return q.tx.QueryRowContext(ctx, query, args...)
}

type errRow struct {
	err error
}

func (r errRow) Scan(...any) error { return r.err }
