package repository

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/emaamul/core/internal/db"
	apperrors "github.com/emaamul/core/internal/errors"
	"github.com/emaamul/core/internal/models"
)

// PlaceholderProductName names products created by a scan miss.
const PlaceholderProductName = "New item"

// ProductRepository owns the products table.
type ProductRepository struct {
	*base
}

// ProductInput is the caller-supplied state of a product. An empty ID
// resolves by SKU before a new id is minted.
type ProductInput struct {
	ID    string
	Name  string
	SKU   string
	Price decimal.Decimal
	Stock int64
}

const productColumns = "id, name, COALESCE(sku, ''), price, stock, updated_at"

func scanProduct(row db.Row) (*models.Product, error) {
	var p models.Product
	if err := row.Scan(&p.ID, &p.Name, &p.SKU, &p.Price, &p.Stock, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// List returns products whose name or SKU contains search, most recently
// updated first.
func (r *ProductRepository) List(ctx context.Context, search string) ([]models.Product, error) {
	pattern := "%" + search + "%"
	rows, err := r.store.Query(ctx,
		"SELECT "+productColumns+" FROM products WHERE name LIKE ? OR COALESCE(sku, '') LIKE ? ORDER BY updated_at DESC, id",
		pattern, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

// Get returns the product with id.
func (r *ProductRepository) Get(ctx context.Context, id string) (*models.Product, error) {
	return getProduct(ctx, r.store, id)
}

func getProduct(ctx context.Context, q db.Querier, id string) (*models.Product, error) {
	p, err := scanProduct(q.QueryRow(ctx, "SELECT "+productColumns+" FROM products WHERE id = ?", id))
	if err != nil {
		return nil, notFound(err, "product %s", id)
	}
	return p, nil
}

// FindBySKU returns the most recently updated product whose normalized SKU
// matches sku case-insensitively.
func (r *ProductRepository) FindBySKU(ctx context.Context, sku string) (*models.Product, error) {
	return findProductBySKU(ctx, r.store, NormalizeSKU(sku))
}

func findProductBySKU(ctx context.Context, q db.Querier, clean string) (*models.Product, error) {
	if clean == "" {
		return nil, apperrors.New(apperrors.ErrNotFound, "product with empty sku")
	}
	p, err := scanProduct(q.QueryRow(ctx,
		"SELECT "+productColumns+" FROM products WHERE UPPER(TRIM(sku)) = UPPER(?) ORDER BY updated_at DESC LIMIT 1",
		clean))
	if err != nil {
		return nil, notFound(err, "product with sku %q", clean)
	}
	return p, nil
}

// Upsert writes in. Without an id it reuses the row matching the normalized
// SKU, so repeated saves of one physical item keep one stable id. Any other
// row sharing the SKU is removed afterwards.
func (r *ProductRepository) Upsert(ctx context.Context, in ProductInput) (*models.Product, error) {
	var out *models.Product
	err := r.store.Transaction(ctx, func(ctx context.Context, tx db.Querier) error {
		p, err := r.upsertTx(ctx, tx, in)
		out = p
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *ProductRepository) upsertTx(ctx context.Context, tx db.Querier, in ProductInput) (*models.Product, error) {
	p := &models.Product{
		ID:        in.ID,
		Name:      in.Name,
		SKU:       NormalizeSKU(in.SKU),
		Price:     in.Price,
		Stock:     in.Stock,
		UpdatedAt: r.nowMillis(),
	}

	if p.ID == "" && p.SKU != "" {
		existing, err := findProductBySKU(ctx, tx, p.SKU)
		switch {
		case err == nil:
			p.ID = existing.ID
		case !apperrors.IsNotFound(err):
			return nil, err
		}
	}
	if p.ID == "" {
		p.ID = r.newID()
	}

	_, err := tx.Exec(ctx, `
		INSERT INTO products (id, name, sku, price, stock, updated_at) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, sku = excluded.sku, price = excluded.price,
			stock = excluded.stock, updated_at = excluded.updated_at`,
		p.ID, p.Name, nullString(p.SKU), p.Price, p.Stock, p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to write product: %w", err)
	}

	if p.SKU != "" {
		if _, err := tx.Exec(ctx, "DELETE FROM products WHERE UPPER(TRIM(sku)) = UPPER(?) AND id <> ?", p.SKU, p.ID); err != nil {
			return nil, fmt.Errorf("failed to purge duplicate sku: %w", err)
		}
	}

	r.enqueue(ctx, tx, models.CollectionProducts, p.Document())
	return p, nil
}

// AdjustStock adds delta to the stock of id and returns the new level.
func (r *ProductRepository) AdjustStock(ctx context.Context, id string, delta int64) (int64, error) {
	var stock int64
	err := r.store.Transaction(ctx, func(ctx context.Context, tx db.Querier) error {
		p, err := r.adjustStockTx(ctx, tx, id, delta)
		if err != nil {
			return err
		}
		stock = p.Stock
		r.enqueue(ctx, tx, models.CollectionProducts, p.Document())
		return nil
	})
	return stock, err
}

// adjustStockTx applies delta in SQL so concurrent adjustments add up, then
// reads the row back. The caller enqueues.
func (r *ProductRepository) adjustStockTx(ctx context.Context, tx db.Querier, id string, delta int64) (*models.Product, error) {
	res, err := tx.Exec(ctx, "UPDATE products SET stock = stock + ?, updated_at = ? WHERE id = ?", delta, r.nowMillis(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to adjust stock: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, apperrors.Newf(apperrors.ErrNotFound, "product %s", id)
	}
	return getProduct(ctx, tx, id)
}

// EnsureBySKU returns the product matching sku, creating a placeholder
// when the scan misses. created reports whether a row was created.
func (r *ProductRepository) EnsureBySKU(ctx context.Context, sku string) (product *models.Product, created bool, err error) {
	clean := NormalizeSKU(sku)
	if clean == "" {
		return nil, false, invalid("scanned code is empty")
	}

	err = r.store.Transaction(ctx, func(ctx context.Context, tx db.Querier) error {
		p, err := findProductBySKU(ctx, tx, clean)
		if err == nil {
			product = p
			return nil
		}
		if !apperrors.IsNotFound(err) {
			return err
		}
		product, err = r.upsertTx(ctx, tx, ProductInput{Name: PlaceholderProductName, SKU: clean})
		created = err == nil
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return product, created, nil
}
