package db

import (
	"context"
	"database/sql"

	apperrors "github.com/emaamul/core/internal/errors"
)

// Unavailable returns a store whose every call fails with
// STORAGE_UNAVAILABLE, letting callers tell "no storage" from "no data".
func Unavailable(owner, reason string) Store {
	return &unavailableStore{owner: owner, reason: reason}
}

type unavailableStore struct {
	owner  string
	reason string
}

func (s *unavailableStore) err() error {
	return apperrors.New(apperrors.ErrStorageUnavailable, s.reason)
}

func (s *unavailableStore) Exec(context.Context, string, ...any) (sql.Result, error) {
	return nil, s.err()
}

func (s *unavailableStore) Query(context.Context, string, ...any) (*sql.Rows, error) {
	return nil, s.err()
}

func (s *unavailableStore) QueryRow(context.Context, string, ...any) Row {
	return errRow{s.err()}
}

func (s *unavailableStore) Transaction(context.Context, TxFunc) error {
	return s.err()
}

func (s *unavailableStore) Engine() Engine { return EngineUnavailable }
func (s *unavailableStore) Owner() string  { return s.owner }
func (s *unavailableStore) Path() string   { return "" }
func (s *unavailableStore) Close() error   { return nil }
