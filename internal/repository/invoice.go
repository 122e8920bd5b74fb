package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/emaamul/core/internal/db"
	apperrors "github.com/emaamul/core/internal/errors"
	"github.com/emaamul/core/internal/models"
)

// DefaultSaleItemName names the line of an invoice raised from a sale of no
// named product.
const DefaultSaleItemName = "Sale"

// InvoiceRepository owns the invoices and invoice_items tables. Invoices are
// immutable once created apart from their status.
type InvoiceRepository struct {
	*base
}

// InvoiceItemInput is one line of a new invoice.
type InvoiceItemInput struct {
	Name  string
	Price decimal.Decimal
	Qty   decimal.Decimal
}

// InvoiceInput describes a new invoice. Empty Status means pending.
type InvoiceInput struct {
	CustomerID string
	Items      []InvoiceItemInput
	Status     models.InvoiceStatus
	DueDate    *time.Time
}

// Create writes an invoice and its items. The total is computed here, once,
// as Σ price × qty.
func (r *InvoiceRepository) Create(ctx context.Context, in InvoiceInput) (*models.Invoice, error) {
	if len(in.Items) == 0 {
		return nil, invalid("invoice has no items")
	}
	if in.Status == "" {
		in.Status = models.InvoicePending
	}
	if !in.Status.Valid() {
		return nil, invalid("unknown invoice status %q", in.Status)
	}

	inv := &models.Invoice{
		ID:         r.newID(),
		CustomerID: in.CustomerID,
		Status:     in.Status,
		CreatedAt:  r.nowMillis(),
		Total:      decimal.Zero,
	}
	if in.DueDate != nil && !in.DueDate.IsZero() {
		due := models.Millis(*in.DueDate)
		inv.DueDate = &due
	}
	for i, it := range in.Items {
		if it.Qty.IsNegative() {
			return nil, invalid("item %d has negative quantity", i)
		}
		item := models.InvoiceItem{ID: r.newID(), InvoiceID: inv.ID, Name: it.Name, Price: it.Price, Qty: it.Qty}
		inv.Items = append(inv.Items, item)
		inv.Total = inv.Total.Add(item.LineTotal())
	}

	err := r.store.Transaction(ctx, func(ctx context.Context, tx db.Querier) error {
		_, err := tx.Exec(ctx,
			"INSERT INTO invoices (id, customer_id, total, status, created_at, due_date) VALUES (?, ?, ?, ?, ?, ?)",
			inv.ID, nullString(inv.CustomerID), inv.Total, string(inv.Status), inv.CreatedAt, inv.DueDate)
		if err != nil {
			return fmt.Errorf("failed to insert invoice: %w", err)
		}
		for _, item := range inv.Items {
			_, err := tx.Exec(ctx,
				"INSERT INTO invoice_items (id, invoice_id, name, price, qty) VALUES (?, ?, ?, ?, ?)",
				item.ID, item.InvoiceID, item.Name, item.Price, item.Qty)
			if err != nil {
				return fmt.Errorf("failed to insert invoice item: %w", err)
			}
		}
		r.enqueue(ctx, tx, models.CollectionInvoices, inv.Document())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// CreateFromSale raises an unpaid one-line invoice for sale. customer may be
// nil.
func (r *InvoiceRepository) CreateFromSale(ctx context.Context, sale *models.Transaction, customer *models.Customer, dueDate *time.Time) (*models.Invoice, error) {
	name := sale.ProductName
	if name == "" {
		name = DefaultSaleItemName
	}
	qty := sale.Qty
	if qty <= 0 {
		qty = 1
	}
	in := InvoiceInput{
		Items: []InvoiceItemInput{{
			Name:  name,
			Price: sale.Amount.Div(decimal.NewFromInt(qty)),
			Qty:   decimal.NewFromInt(qty),
		}},
		Status:  models.InvoiceUnpaid,
		DueDate: dueDate,
	}
	if customer != nil {
		in.CustomerID = customer.ID
	}
	return r.Create(ctx, in)
}

const invoiceColumns = "id, COALESCE(customer_id, ''), total, status, created_at, due_date"

func scanInvoice(row db.Row) (*models.Invoice, error) {
	var inv models.Invoice
	var due sql.NullInt64
	if err := row.Scan(&inv.ID, &inv.CustomerID, &inv.Total, &inv.Status, &inv.CreatedAt, &due); err != nil {
		return nil, err
	}
	if due.Valid {
		inv.DueDate = &due.Int64
	}
	return &inv, nil
}

// List returns invoice headers, newest first.
func (r *InvoiceRepository) List(ctx context.Context) ([]models.Invoice, error) {
	rows, err := r.store.Query(ctx, "SELECT "+invoiceColumns+" FROM invoices ORDER BY created_at DESC, id")
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	defer rows.Close()

	var invoices []models.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		invoices = append(invoices, *inv)
	}
	return invoices, rows.Err()
}

// Get returns the invoice with its items.
func (r *InvoiceRepository) Get(ctx context.Context, id string) (*models.Invoice, error) {
	return getInvoice(ctx, r.store, id)
}

func getInvoice(ctx context.Context, q db.Querier, id string) (*models.Invoice, error) {
	inv, err := scanInvoice(q.QueryRow(ctx, "SELECT "+invoiceColumns+" FROM invoices WHERE id = ?", id))
	if err != nil {
		return nil, notFound(err, "invoice %s", id)
	}

	rows, err := q.Query(ctx, "SELECT id, invoice_id, name, price, qty FROM invoice_items WHERE invoice_id = ? ORDER BY rowid", id)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoice items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var it models.InvoiceItem
		if err := rows.Scan(&it.ID, &it.InvoiceID, &it.Name, &it.Price, &it.Qty); err != nil {
			return nil, fmt.Errorf("failed to scan invoice item: %w", err)
		}
		inv.Items = append(inv.Items, it)
	}
	return inv, rows.Err()
}

// SetStatus changes the status of id. The total is left untouched.
func (r *InvoiceRepository) SetStatus(ctx context.Context, id string, status models.InvoiceStatus) (*models.Invoice, error) {
	if !status.Valid() {
		return nil, invalid("unknown invoice status %q", status)
	}

	var out *models.Invoice
	err := r.store.Transaction(ctx, func(ctx context.Context, tx db.Querier) error {
		res, err := tx.Exec(ctx, "UPDATE invoices SET status = ? WHERE id = ?", string(status), id)
		if err != nil {
			return fmt.Errorf("failed to set invoice status: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperrors.Newf(apperrors.ErrNotFound, "invoice %s", id)
		}
		inv, err := getInvoice(ctx, tx, id)
		if err != nil {
			return err
		}
		out = inv
		r.enqueue(ctx, tx, models.CollectionInvoices, inv.Document())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
