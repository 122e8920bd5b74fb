package repository

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emaamul/core/internal/db"
	"github.com/emaamul/core/internal/db/dbtest"
	apperrors "github.com/emaamul/core/internal/errors"
	"github.com/emaamul/core/internal/models"
	"github.com/emaamul/core/internal/outbox"
)

func TestNormalizeSKU(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  ABC-1 ", "ABC-1"},
		{"A\u200BB\u200CC\u200D", "ABC"},
		{"\uFEFFabc", "abc"},
		{"cafe\u0301", "caf\u00e9"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeSKU(tt.in), "%q", tt.in)
	}
}

func TestProductUpsert_idempotentBySKU(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	products := f.repos.Products

	first, err := products.Upsert(ctx, ProductInput{Name: "Tea", SKU: "abc", Price: decimal.NewFromInt(10), Stock: 5})
	require.NoError(t, err)

	for _, sku := range []string{"ABC", "  abc  ", "A\u200BBC", "\uFEFFAbC\n"} {
		f.tick(time.Second)
		p, err := products.Upsert(ctx, ProductInput{Name: "Tea " + sku, SKU: sku, Price: decimal.NewFromInt(11), Stock: 5})
		require.NoError(t, err)
		assert.Equal(t, first.ID, p.ID, "sku %q", sku)
	}

	assert.Equal(t, 1, dbtest.Count(t, f.store, "products"))
	found, err := products.FindBySKU(ctx, "aBc")
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID)
	assert.True(t, found.Price.Equal(decimal.NewFromInt(11)))
}

func TestProductUpsert_purgesStaleDuplicates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for _, id := range []string{"old-1", "old-2"} {
		_, err := f.store.Exec(ctx, "INSERT INTO products (id, name, sku, price, stock, updated_at) VALUES (?, 'dup', ' xyz ', 1, 1, 1)", id)
		require.NoError(t, err)
	}

	p, err := f.repos.Products.Upsert(ctx, ProductInput{ID: "new", Name: "Kept", SKU: "XYZ"})
	require.NoError(t, err)
	assert.Equal(t, "new", p.ID)

	list, err := f.repos.Products.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "new", list[0].ID)
}

func TestProductUpsert_enqueuesFullState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	p, err := f.repos.Products.Upsert(ctx, ProductInput{Name: "Tea", SKU: "T1", Price: decimal.RequireFromString("2.5"), Stock: 4})
	require.NoError(t, err)

	entries := f.entries(t)
	require.Len(t, entries, 1)
	assert.Equal(t, models.CollectionProducts, entries[0].Collection)
	doc := entries[0].Doc
	assert.Equal(t, p.ID, doc.ID())
	assert.Equal(t, "Tea", doc["name"])
	assert.Equal(t, "T1", doc["sku"])
	assert.EqualValues(t, 2.5, doc["price"])
	assert.EqualValues(t, 4, doc["stock"])
	assert.EqualValues(t, models.Millis(fixedNow), doc["updated_at"])
	assert.Equal(t, "owner-1", doc[models.FieldOwnerID])
}

func TestProductGetAndList(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.repos.Products.Get(ctx, "missing")
	assert.True(t, apperrors.IsNotFound(err))
	_, err = f.repos.Products.FindBySKU(ctx, "missing")
	assert.True(t, apperrors.IsNotFound(err))
	_, err = f.repos.Products.FindBySKU(ctx, " \u200B ")
	assert.True(t, apperrors.IsNotFound(err))

	_, err = f.repos.Products.Upsert(ctx, ProductInput{Name: "Sugar", SKU: "S1"})
	require.NoError(t, err)
	f.tick(time.Second)
	_, err = f.repos.Products.Upsert(ctx, ProductInput{Name: "Salt", SKU: "S2"})
	require.NoError(t, err)

	all, err := f.repos.Products.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Salt", all[0].Name, "most recently updated first")

	bySKU, err := f.repos.Products.List(ctx, "S1")
	require.NoError(t, err)
	require.Len(t, bySKU, 1)
	assert.Equal(t, "Sugar", bySKU[0].Name)
}

func TestAdjustStock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	p, err := f.repos.Products.Upsert(ctx, ProductInput{Name: "Tea", SKU: "T", Stock: 1})
	require.NoError(t, err)

	stock, err := f.repos.Products.AdjustStock(ctx, p.ID, -3)
	require.NoError(t, err)
	assert.EqualValues(t, -2, stock, "oversold stock goes negative")

	_, err = f.repos.Products.AdjustStock(ctx, "missing", 1)
	assert.True(t, apperrors.IsNotFound(err))
	assert.Len(t, f.entries(t), 2)
}

func TestEnsureBySKU(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	p, created, err := f.repos.Products.EnsureBySKU(ctx, " 4006381333931 ")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, PlaceholderProductName, p.Name)
	assert.Equal(t, "4006381333931", p.SKU)
	assert.True(t, p.Price.IsZero())

	again, created, err := f.repos.Products.EnsureBySKU(ctx, "4006381333931")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, p.ID, again.ID)
	assert.Len(t, f.entries(t), 1)

	_, _, err = f.repos.Products.EnsureBySKU(ctx, "\u200B")
	assert.True(t, apperrors.Is(err, apperrors.ErrValidation))
}

func TestRepositories_storageUnavailable(t *testing.T) {
	ctx := context.Background()
	store := db.Unavailable("", "no engine")
	repos := New(store, outbox.New(store))

	_, err := repos.Products.List(ctx, "")
	assert.True(t, apperrors.IsStorageUnavailable(err))
	_, err = repos.Products.Get(ctx, "p1")
	assert.True(t, apperrors.IsStorageUnavailable(err))
	_, err = repos.Customers.Upsert(ctx, CustomerInput{Name: "x"})
	assert.True(t, apperrors.IsStorageUnavailable(err))
	_, err = repos.Transactions.ListRecent(ctx, 10)
	assert.True(t, apperrors.IsStorageUnavailable(err))
	_, err = repos.Debts.List(ctx, "")
	assert.True(t, apperrors.IsStorageUnavailable(err))
	_, err = repos.Invoices.Get(ctx, "i1")
	assert.True(t, apperrors.IsStorageUnavailable(err))
}
