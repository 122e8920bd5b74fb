package repository

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/emaamul/core/internal/db"
	apperrors "github.com/emaamul/core/internal/errors"
	"github.com/emaamul/core/internal/models"
)

// CustomerRepository owns the customers table.
type CustomerRepository struct {
	*base
}

// CustomerInput is the caller-supplied state of a customer. The balance is
// never set through it.
type CustomerInput struct {
	ID    string
	Name  string
	Phone string
	Email string
}

const customerColumns = "id, name, COALESCE(phone, ''), COALESCE(email, ''), balance, updated_at"

func scanCustomer(row db.Row) (*models.Customer, error) {
	var c models.Customer
	if err := row.Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.Balance, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

// List returns customers whose name contains search, by name.
func (r *CustomerRepository) List(ctx context.Context, search string) ([]models.Customer, error) {
	rows, err := r.store.Query(ctx,
		"SELECT "+customerColumns+" FROM customers WHERE name LIKE ? ORDER BY name ASC, id",
		"%"+search+"%")
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	defer rows.Close()

	var customers []models.Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan customer: %w", err)
		}
		customers = append(customers, *c)
	}
	return customers, rows.Err()
}

// Get returns the customer with id.
func (r *CustomerRepository) Get(ctx context.Context, id string) (*models.Customer, error) {
	return getCustomer(ctx, r.store, id)
}

func getCustomer(ctx context.Context, q db.Querier, id string) (*models.Customer, error) {
	c, err := scanCustomer(q.QueryRow(ctx, "SELECT "+customerColumns+" FROM customers WHERE id = ?", id))
	if err != nil {
		return nil, notFound(err, "customer %s", id)
	}
	return c, nil
}

// Upsert writes in, keeping the stored balance of an existing customer.
func (r *CustomerRepository) Upsert(ctx context.Context, in CustomerInput) (*models.Customer, error) {
	var out *models.Customer
	err := r.store.Transaction(ctx, func(ctx context.Context, tx db.Querier) error {
		id := in.ID
		if id == "" {
			id = r.newID()
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO customers (id, name, phone, email, balance, updated_at) VALUES (?, ?, ?, ?, 0, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name, phone = excluded.phone, email = excluded.email,
				updated_at = excluded.updated_at`,
			id, in.Name, in.Phone, in.Email, r.nowMillis())
		if err != nil {
			return fmt.Errorf("failed to write customer: %w", err)
		}

		c, err := getCustomer(ctx, tx, id)
		if err != nil {
			return err
		}
		out = c
		r.enqueue(ctx, tx, models.CollectionCustomers, c.Document())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AdjustBalance adds delta to the balance of id and returns the new balance.
// Balances only ever move by delta, so concurrent adjustments add up.
func (r *CustomerRepository) AdjustBalance(ctx context.Context, id string, delta decimal.Decimal) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := r.store.Transaction(ctx, func(ctx context.Context, tx db.Querier) error {
		c, err := r.adjustBalanceTx(ctx, tx, id, delta)
		if err != nil {
			return err
		}
		balance = c.Balance
		r.enqueue(ctx, tx, models.CollectionCustomers, c.Document())
		return nil
	})
	return balance, err
}

// adjustBalanceTx reads and rewrites the balance inside tx. The store
// serializes transactions, so no other adjustment interleaves. The caller
// enqueues.
func (r *CustomerRepository) adjustBalanceTx(ctx context.Context, tx db.Querier, id string, delta decimal.Decimal) (*models.Customer, error) {
	c, err := getCustomer(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	c.Balance = c.Balance.Add(delta)
	c.UpdatedAt = r.nowMillis()

	res, err := tx.Exec(ctx, "UPDATE customers SET balance = ?, updated_at = ? WHERE id = ?", c.Balance, c.UpdatedAt, id)
	if err != nil {
		return nil, fmt.Errorf("failed to adjust balance: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, apperrors.Newf(apperrors.ErrNotFound, "customer %s", id)
	}
	return c, nil
}
