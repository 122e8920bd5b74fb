// Package repository provides the entity repositories. Each owns writes to
// one table, keeps derived fields consistent, and appends one outbox entry
// per written record in the same local transaction.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/emaamul/core/internal/db"
	apperrors "github.com/emaamul/core/internal/errors"
	"github.com/emaamul/core/internal/models"
	"github.com/emaamul/core/internal/outbox"
	"github.com/emaamul/core/internal/uuid"
)

// Option configures the repositories.
type Option func(*base)

// WithClock sets the time source for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(b *base) { b.now = now }
}

// WithIDs sets the id generator for new records.
func WithIDs(gen uuid.Generator) Option {
	return func(b *base) { b.newID = uuid.OrDefault(gen) }
}

// base is shared by every repository of one store partition.
type base struct {
	store  db.Store
	outbox *outbox.Outbox
	now    func() time.Time
	newID  uuid.Generator
}

func newBase(store db.Store, box *outbox.Outbox, opts []Option) *base {
	b := &base{
		store:  store,
		outbox: box,
		now:    time.Now,
		newID:  uuid.New,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *base) nowMillis() int64 {
	return models.Millis(b.now())
}

func (b *base) enqueue(ctx context.Context, tx db.Querier, collection string, doc models.Document) {
	b.outbox.Enqueue(ctx, tx, collection, doc)
}

// Repositories bundles the repositories of one store partition.
type Repositories struct {
	Products     *ProductRepository
	Customers    *CustomerRepository
	Transactions *TransactionRepository
	Debts        *DebtRepository
	Invoices     *InvoiceRepository
}

// New creates every repository over store and box. EnsureSchema must have
// completed on store.
func New(store db.Store, box *outbox.Outbox, opts ...Option) *Repositories {
	b := newBase(store, box, opts)
	return &Repositories{
		Products:     &ProductRepository{base: b},
		Customers:    &CustomerRepository{base: b},
		Transactions: &TransactionRepository{base: b},
		Debts:        &DebtRepository{base: b},
		Invoices:     &InvoiceRepository{base: b},
	}
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.Newf(apperrors.ErrNotFound, format, args...)
	}
	return err
}

func invalid(format string, args ...any) error {
	return apperrors.Newf(apperrors.ErrValidation, format, args...)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
