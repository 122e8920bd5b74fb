package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/emaamul/core/internal/db"
	apperrors "github.com/emaamul/core/internal/errors"
	"github.com/emaamul/core/internal/models"
)

// Defaults for expenses recorded without currency or label.
const (
	DefaultExpenseCurrency = "ETB"
	DefaultExpenseLabel    = "Expense"
)

// DefaultRecentLimit bounds ListRecent when no limit is given.
const DefaultRecentLimit = 50

// TransactionRepository owns the transactions table.
type TransactionRepository struct {
	*base
}

// SaleInput describes a sale. Amount is Price × Qty.
type SaleInput struct {
	ProductID  string
	CustomerID string
	Qty        int64
	Price      decimal.Decimal
	Currency   string
	// Paid sales leave the customer balance alone; unpaid ones extend
	// credit to CustomerID.
	Paid bool
}

// ExpenseInput describes an expense.
type ExpenseInput struct {
	Amount   decimal.Decimal
	Currency string
	Label    string
}

// TransactionUpdate replaces the editable fields of a transaction.
type TransactionUpdate struct {
	Qty      int64
	Amount   decimal.Decimal
	Currency string
}

const transactionColumns = `t.id, t.type, COALESCE(t.customer_id, ''), COALESCE(t.product_id, ''), t.qty,
	t.amount, COALESCE(t.currency, ''), COALESCE(t.label, ''), t.created_at, t.synced`

func scanTransaction(row db.Row, extra ...any) (*models.Transaction, error) {
	var t models.Transaction
	dest := append([]any{&t.ID, &t.Type, &t.CustomerID, &t.ProductID, &t.Qty,
		&t.Amount, &t.Currency, &t.Label, &t.CreatedAt, &t.Synced}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return &t, nil
}

func getTransaction(ctx context.Context, q db.Querier, id string) (*models.Transaction, error) {
	t, err := scanTransaction(q.QueryRow(ctx, "SELECT "+transactionColumns+" FROM transactions t WHERE t.id = ?", id))
	if err != nil {
		return nil, notFound(err, "transaction %s", id)
	}
	return t, nil
}

// AddSale records a sale, decrements the product stock by qty and, when
// unpaid with a customer attached, adds the amount to the customer balance.
// Outbox entries follow in that order: product, customer, transaction.
func (r *TransactionRepository) AddSale(ctx context.Context, in SaleInput) (*models.Transaction, error) {
	if in.Qty <= 0 {
		return nil, invalid("sale quantity must be positive, got %d", in.Qty)
	}

	t := &models.Transaction{
		ID:         r.newID(),
		Type:       models.TransactionSale,
		CustomerID: in.CustomerID,
		ProductID:  in.ProductID,
		Qty:        in.Qty,
		Amount:     in.Price.Mul(decimal.NewFromInt(in.Qty)),
		Currency:   in.Currency,
		CreatedAt:  r.nowMillis(),
	}

	err := r.store.Transaction(ctx, func(ctx context.Context, tx db.Querier) error {
		if err := insertTransaction(ctx, tx, t); err != nil {
			return err
		}
		if t.ProductID != "" {
			products := ProductRepository{base: r.base}
			p, err := products.adjustStockTx(ctx, tx, t.ProductID, -t.Qty)
			if err != nil {
				return err
			}
			r.enqueue(ctx, tx, models.CollectionProducts, p.Document())
		}
		if !in.Paid && t.CustomerID != "" {
			customers := CustomerRepository{base: r.base}
			c, err := customers.adjustBalanceTx(ctx, tx, t.CustomerID, t.Amount)
			if err != nil {
				return err
			}
			r.enqueue(ctx, tx, models.CollectionCustomers, c.Document())
		}
		r.enqueue(ctx, tx, models.CollectionTransactions, t.Document())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// QuickSale records a paid sale of qty units of product at its price.
func (r *TransactionRepository) QuickSale(ctx context.Context, product *models.Product, qty int64) (*models.Transaction, error) {
	return r.AddSale(ctx, SaleInput{ProductID: product.ID, Qty: qty, Price: product.Price, Paid: true})
}

// AddExpense records an expense.
func (r *TransactionRepository) AddExpense(ctx context.Context, in ExpenseInput) (*models.Transaction, error) {
	if in.Currency == "" {
		in.Currency = DefaultExpenseCurrency
	}
	if in.Label == "" {
		in.Label = DefaultExpenseLabel
	}
	t := &models.Transaction{
		ID:        r.newID(),
		Type:      models.TransactionExpense,
		Qty:       1,
		Amount:    in.Amount,
		Currency:  in.Currency,
		Label:     in.Label,
		CreatedAt: r.nowMillis(),
	}

	err := r.store.Transaction(ctx, func(ctx context.Context, tx db.Querier) error {
		if err := insertTransaction(ctx, tx, t); err != nil {
			return err
		}
		r.enqueue(ctx, tx, models.CollectionTransactions, t.Document())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

func insertTransaction(ctx context.Context, tx db.Querier, t *models.Transaction) error {
	if !t.Type.Valid() {
		return invalid("unknown transaction type %q", t.Type)
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO transactions (id, type, customer_id, product_id, qty, amount, currency, label, created_at, synced)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		t.ID, string(t.Type), nullString(t.CustomerID), nullString(t.ProductID), t.Qty,
		t.Amount, t.Currency, nullString(t.Label), t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

// Update replaces qty, amount and currency of id. For a sale of a product,
// the stock moves by the quantity difference only.
func (r *TransactionRepository) Update(ctx context.Context, id string, in TransactionUpdate) (*models.Transaction, error) {
	if in.Qty <= 0 {
		return nil, invalid("quantity must be positive, got %d", in.Qty)
	}

	var out *models.Transaction
	err := r.store.Transaction(ctx, func(ctx context.Context, tx db.Querier) error {
		t, err := getTransaction(ctx, tx, id)
		if err != nil {
			return err
		}
		delta := in.Qty - t.Qty

		t.Qty, t.Amount, t.Currency = in.Qty, in.Amount, in.Currency
		t.Synced = false
		if _, err := tx.Exec(ctx,
			"UPDATE transactions SET qty = ?, amount = ?, currency = ?, synced = 0 WHERE id = ?",
			t.Qty, t.Amount, t.Currency, id); err != nil {
			return fmt.Errorf("failed to update transaction: %w", err)
		}

		if t.Type == models.TransactionSale && t.ProductID != "" && delta != 0 {
			products := ProductRepository{base: r.base}
			p, err := products.adjustStockTx(ctx, tx, t.ProductID, -delta)
			if err != nil {
				return err
			}
			r.enqueue(ctx, tx, models.CollectionProducts, p.Document())
		}

		r.enqueue(ctx, tx, models.CollectionTransactions, t.Document())
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListRecent returns the latest transactions with product names joined.
func (r *TransactionRepository) ListRecent(ctx context.Context, limit int) ([]models.Transaction, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	return r.list(ctx, `
		SELECT `+transactionColumns+`, COALESCE(p.name, '')
		FROM transactions t LEFT JOIN products p ON p.id = t.product_id
		ORDER BY t.created_at DESC, t.id LIMIT ?`, limit)
}

// ListBetween returns transactions created in [from, to), oldest first.
func (r *TransactionRepository) ListBetween(ctx context.Context, from, to time.Time) ([]models.Transaction, error) {
	return r.list(ctx, `
		SELECT `+transactionColumns+`, COALESCE(p.name, '')
		FROM transactions t LEFT JOIN products p ON p.id = t.product_id
		WHERE t.created_at >= ? AND t.created_at < ?
		ORDER BY t.created_at ASC, t.id`, models.Millis(from), models.Millis(to))
}

func (r *TransactionRepository) list(ctx context.Context, query string, args ...any) ([]models.Transaction, error) {
	rows, err := r.store.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var out []models.Transaction
	for rows.Next() {
		var productName string
		t, err := scanTransaction(rows, &productName)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		t.ProductName = productName
		out = append(out, *t)
	}
	return out, rows.Err()
}

// Get returns the transaction with the product and customer it references,
// when they still exist.
func (r *TransactionRepository) Get(ctx context.Context, id string) (*models.TransactionDetail, error) {
	t, err := getTransaction(ctx, r.store, id)
	if err != nil {
		return nil, err
	}
	detail := &models.TransactionDetail{Transaction: *t}

	if t.ProductID != "" {
		p, err := getProduct(ctx, r.store, t.ProductID)
		if err != nil && !apperrors.IsNotFound(err) {
			return nil, err
		}
		detail.Product = p
		if p != nil {
			detail.ProductName = p.Name
		}
	}
	if t.CustomerID != "" {
		c, err := getCustomer(ctx, r.store, t.CustomerID)
		if err != nil && !apperrors.IsNotFound(err) {
			return nil, err
		}
		detail.Customer = c
	}
	return detail, nil
}

// MarkSynced sets the local synced flag on ids. It is bookkeeping only and
// enqueues nothing.
func (r *TransactionRepository) MarkSynced(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	res, err := r.store.Exec(ctx, "UPDATE transactions SET synced = 1 WHERE id IN ("+placeholders+")", args...)
	if err != nil {
		return 0, fmt.Errorf("failed to mark transactions synced: %w", err)
	}
	return res.RowsAffected()
}

// CountUnsynced returns the number of transactions not yet acknowledged.
func (r *TransactionRepository) CountUnsynced(ctx context.Context) (int, error) {
	var n int
	err := r.store.QueryRow(ctx, "SELECT COUNT(*) FROM transactions WHERE synced = 0").Scan(&n)
	if err != nil && err != sql.ErrNoRows {
		return 0, err
	}
	return n, nil
}
