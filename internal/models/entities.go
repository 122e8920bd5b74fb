// Package models provides the business entities kept in the local store and
// their projection into remote documents.
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Remote collection names. A local table maps to exactly one collection.
const (
	CollectionProducts     = "products"
	CollectionCustomers    = "customers"
	CollectionTransactions = "transactions"
	CollectionDebts        = "debts"
	CollectionInvoices     = "invoices"
	CollectionHeartbeats   = "sync_heartbeats"
)

// Millis converts t to the unix-millisecond timestamps stored locally.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}

// FromMillis converts a stored unix-millisecond timestamp to time.Time.
func FromMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}

// Product is a sellable item. Stock may go negative when oversold.
type Product struct {
	ID        string          `db:"id" json:"id"`
	Name      string          `db:"name" json:"name"`
	SKU       string          `db:"sku" json:"sku"`
	Price     decimal.Decimal `db:"price" json:"price"`
	Stock     int64           `db:"stock" json:"stock"`
	UpdatedAt int64           `db:"updated_at" json:"updated_at"`
}

// TableName returns the table name for Product.
func (Product) TableName() string {
	return "products"
}

// Document projects the product into its remote representation.
func (p *Product) Document() Document {
	return Document{
		"id":         p.ID,
		"name":       p.Name,
		"sku":        p.SKU,
		"price":      p.Price.InexactFloat64(),
		"stock":      p.Stock,
		"updated_at": p.UpdatedAt,
	}
}

// Customer carries a running balance of unpaid credit sales.
type Customer struct {
	ID        string          `db:"id" json:"id"`
	Name      string          `db:"name" json:"name"`
	Phone     string          `db:"phone" json:"phone"`
	Email     string          `db:"email" json:"email"`
	Balance   decimal.Decimal `db:"balance" json:"balance"`
	UpdatedAt int64           `db:"updated_at" json:"updated_at"`
}

// TableName returns the table name for Customer.
func (Customer) TableName() string {
	return "customers"
}

// Document projects the customer into its remote representation.
func (c *Customer) Document() Document {
	return Document{
		"id":         c.ID,
		"name":       c.Name,
		"phone":      c.Phone,
		"email":      c.Email,
		"balance":    c.Balance.InexactFloat64(),
		"updated_at": c.UpdatedAt,
	}
}

// TransactionType distinguishes sales from expenses.
type TransactionType string

const (
	TransactionSale    TransactionType = "sale"
	TransactionExpense TransactionType = "expense"
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	return t == TransactionSale || t == TransactionExpense
}

// Transaction is a sale or an expense. CustomerID and ProductID are empty when
// the row stores NULL.
type Transaction struct {
	ID         string          `db:"id" json:"id"`
	Type       TransactionType `db:"type" json:"type"`
	CustomerID string          `db:"customer_id" json:"customer_id,omitempty"`
	ProductID  string          `db:"product_id" json:"product_id,omitempty"`
	Qty        int64           `db:"qty" json:"qty"`
	Amount     decimal.Decimal `db:"amount" json:"amount"`
	Currency   string          `db:"currency" json:"currency"`
	Label      string          `db:"label" json:"label,omitempty"`
	CreatedAt  int64           `db:"created_at" json:"created_at"`
	Synced     bool            `db:"synced" json:"synced"`

	// ProductName is filled by listing queries that join products.
	ProductName string `db:"product_name" json:"product_name,omitempty"`
}

// TableName returns the table name for Transaction.
func (Transaction) TableName() string {
	return "transactions"
}

// DisplayName is the product name for sales and the label for expenses.
func (t *Transaction) DisplayName() string {
	if t.ProductName != "" {
		return t.ProductName
	}
	return t.Label
}

// Document projects the transaction into its remote representation. The local
// synced flag is bookkeeping only and never replicated.
func (t *Transaction) Document() Document {
	doc := Document{
		"id":          t.ID,
		"type":        string(t.Type),
		"customer_id": nullable(t.CustomerID),
		"product_id":  nullable(t.ProductID),
		"qty":         t.Qty,
		"amount":      t.Amount.InexactFloat64(),
		"currency":    t.Currency,
		"created_at":  t.CreatedAt,
	}
	if t.Label != "" {
		doc["label"] = t.Label
	}
	return doc
}

// TransactionDetail is a transaction with the records it references.
type TransactionDetail struct {
	Transaction
	Product  *Product  `json:"product,omitempty"`
	Customer *Customer `json:"customer,omitempty"`
}

// DebtType is the direction of a debt.
type DebtType string

const (
	// DebtBorrowed is money the business owes. Rows written before the type
	// column existed carry NULL and are read as borrowed.
	DebtBorrowed DebtType = "borrowed"
	// DebtOwed is money owed to the business.
	DebtOwed DebtType = "owed"
)

// Valid reports whether t is a known debt type.
func (t DebtType) Valid() bool {
	return t == DebtBorrowed || t == DebtOwed
}

// DebtStatus is the settlement state of a debt.
type DebtStatus string

const (
	DebtPending DebtStatus = "pending"
	DebtPaid    DebtStatus = "paid"
	// DebtOverdue is normally derived from the due date, but may be stored.
	DebtOverdue DebtStatus = "overdue"
)

// Valid reports whether s is a known debt status.
func (s DebtStatus) Valid() bool {
	return s == DebtPending || s == DebtPaid || s == DebtOverdue
}

// Debt is money borrowed or owed, optionally tied to a customer.
type Debt struct {
	ID         string          `db:"id" json:"id"`
	CustomerID string          `db:"customer_id" json:"customer_id,omitempty"`
	Amount     decimal.Decimal `db:"amount" json:"amount"`
	DueDate    int64           `db:"due_date" json:"due_date"`
	Status     DebtStatus      `db:"status" json:"status"`
	Notes      string          `db:"notes" json:"notes"`
	UpdatedAt  int64           `db:"updated_at" json:"updated_at"`
	Type       DebtType        `db:"type" json:"type"`

	// CustomerName is filled by listing queries that join customers.
	CustomerName string `db:"customer_name" json:"customer_name,omitempty"`
}

// TableName returns the table name for Debt.
func (Debt) TableName() string {
	return "debts"
}

// IsOverdue reports whether the debt is unpaid and past its due date at now.
func (d *Debt) IsOverdue(now time.Time) bool {
	if d.Status == DebtPaid {
		return false
	}
	return d.Status == DebtOverdue || (d.DueDate > 0 && d.DueDate < Millis(now))
}

// Document projects the debt into its remote representation.
func (d *Debt) Document() Document {
	return Document{
		"id":         d.ID,
		"customerId": nullable(d.CustomerID),
		"amount":     d.Amount.InexactFloat64(),
		"dueDate":    d.DueDate,
		"status":     string(d.Status),
		"notes":      d.Notes,
		"type":       string(d.Type),
		"updated_at": d.UpdatedAt,
	}
}

// InvoiceStatus is the payment state of an invoice.
type InvoiceStatus string

const (
	InvoicePending InvoiceStatus = "pending"
	InvoiceUnpaid  InvoiceStatus = "unpaid"
	InvoicePaid    InvoiceStatus = "paid"
)

// Valid reports whether s is a known invoice status.
func (s InvoiceStatus) Valid() bool {
	return s == InvoicePending || s == InvoiceUnpaid || s == InvoicePaid
}

// Invoice owns its items. Total is fixed when the invoice is created.
type Invoice struct {
	ID         string          `db:"id" json:"id"`
	CustomerID string          `db:"customer_id" json:"customer_id,omitempty"`
	Total      decimal.Decimal `db:"total" json:"total"`
	Status     InvoiceStatus   `db:"status" json:"status"`
	CreatedAt  int64           `db:"created_at" json:"created_at"`
	DueDate    *int64          `db:"due_date" json:"due_date,omitempty"`

	Items []InvoiceItem `json:"items,omitempty"`
}

// TableName returns the table name for Invoice.
func (Invoice) TableName() string {
	return "invoices"
}

// Document projects the invoice and its items into their remote
// representation.
func (inv *Invoice) Document() Document {
	doc := Document{
		"id":          inv.ID,
		"customer_id": nullable(inv.CustomerID),
		"total":       inv.Total.InexactFloat64(),
		"status":      string(inv.Status),
		"created_at":  inv.CreatedAt,
		"due_date":    nil,
	}
	if inv.DueDate != nil {
		doc["due_date"] = *inv.DueDate
	}
	if len(inv.Items) > 0 {
		items := make([]map[string]any, 0, len(inv.Items))
		for _, it := range inv.Items {
			items = append(items, map[string]any{
				"id":    it.ID,
				"name":  it.Name,
				"price": it.Price.InexactFloat64(),
				"qty":   it.Qty.InexactFloat64(),
			})
		}
		doc["items"] = items
	}
	return doc
}

// InvoiceItem is one line of an invoice.
type InvoiceItem struct {
	ID        string          `db:"id" json:"id"`
	InvoiceID string          `db:"invoice_id" json:"invoice_id"`
	Name      string          `db:"name" json:"name"`
	Price     decimal.Decimal `db:"price" json:"price"`
	Qty       decimal.Decimal `db:"qty" json:"qty"`
}

// TableName returns the table name for InvoiceItem.
func (InvoiceItem) TableName() string {
	return "invoice_items"
}

// LineTotal is price × qty.
func (it InvoiceItem) LineTotal() decimal.Decimal {
	return it.Price.Mul(it.Qty)
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
