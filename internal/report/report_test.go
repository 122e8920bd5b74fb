package report

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emaamul/core/internal/db"
	"github.com/emaamul/core/internal/db/dbtest"
	apperrors "github.com/emaamul/core/internal/errors"
	"github.com/emaamul/core/internal/models"
	"github.com/emaamul/core/internal/outbox"
	"github.com/emaamul/core/internal/repository"
	"github.com/emaamul/core/internal/uuid"
)

// Wednesday.
var fixedNow = time.Date(2024, 3, 6, 10, 0, 0, 0, time.UTC)

type books struct {
	store db.Store
	repos *repository.Repositories
	rep   *Reporter
	clock time.Time
}

func newBooks(t *testing.T) *books {
	t.Helper()
	b := &books{store: dbtest.Open(t), clock: fixedNow}
	now := func() time.Time { return b.clock }
	b.repos = repository.New(b.store, outbox.New(b.store), repository.WithClock(now), repository.WithIDs(uuid.Sequence("id")))
	b.rep = New(b.store, b.repos.Debts, WithClock(func() time.Time { return fixedNow }), WithLocation(time.UTC))
	return b
}

func TestBounds(t *testing.T) {
	day := func(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }
	tests := []struct {
		name       string
		rng        Range
		now        time.Time
		start, end time.Time
	}{
		{"day", RangeDay, fixedNow, day(2024, 3, 6), day(2024, 3, 7)},
		{"week from wednesday", RangeWeek, fixedNow, day(2024, 3, 4), day(2024, 3, 11)},
		{"week from sunday", RangeWeek, day(2024, 3, 10).Add(23 * time.Hour), day(2024, 3, 4), day(2024, 3, 11)},
		{"week from monday", RangeWeek, day(2024, 3, 4), day(2024, 3, 4), day(2024, 3, 11)},
		{"month", RangeMonth, fixedNow, day(2024, 3, 1), day(2024, 4, 1)},
		{"leap february", RangeMonth, day(2024, 2, 29), day(2024, 2, 1), day(2024, 3, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end, err := Bounds(tt.rng, tt.now)
			require.NoError(t, err)
			assert.Equal(t, tt.start, start)
			assert.Equal(t, tt.end, end)
		})
	}

	_, _, err := Bounds("year", fixedNow)
	assert.True(t, apperrors.Is(err, apperrors.ErrValidation))
}

func TestPnL(t *testing.T) {
	ctx := context.Background()
	b := newBooks(t)

	p, err := b.repos.Products.Upsert(ctx, repository.ProductInput{Name: "Tea", SKU: "T", Price: decimal.NewFromInt(10), Stock: 50})
	require.NoError(t, err)
	_, err = b.repos.Transactions.QuickSale(ctx, p, 2)
	require.NoError(t, err)
	_, err = b.repos.Transactions.AddExpense(ctx, repository.ExpenseInput{Amount: decimal.RequireFromString("4.5")})
	require.NoError(t, err)

	b.clock = fixedNow.AddDate(0, 0, -1)
	_, err = b.repos.Transactions.QuickSale(ctx, p, 1)
	require.NoError(t, err)
	b.clock = fixedNow.AddDate(0, 0, -5)
	_, err = b.repos.Transactions.QuickSale(ctx, p, 3)
	require.NoError(t, err)

	tests := []struct {
		rng             Range
		income, expense string
		net             string
	}{
		{RangeDay, "20", "4.5", "15.5"},
		{RangeWeek, "30", "4.5", "25.5"},
		{RangeMonth, "60", "4.5", "55.5"},
	}
	for _, tt := range tests {
		t.Run(string(tt.rng), func(t *testing.T) {
			pnl, err := b.rep.PnL(ctx, tt.rng)
			require.NoError(t, err)
			assert.Equal(t, tt.income, pnl.Income.String())
			assert.Equal(t, tt.expense, pnl.Expense.String())
			assert.Equal(t, tt.net, pnl.Net.String())
		})
	}
}

func seedDebts(t *testing.T, b *books) {
	t.Helper()
	ctx := context.Background()
	abebe, err := b.repos.Customers.Upsert(ctx, repository.CustomerInput{Name: "Abebe"})
	require.NoError(t, err)
	sara, err := b.repos.Customers.Upsert(ctx, repository.CustomerInput{Name: "Sara"})
	require.NoError(t, err)

	inputs := []repository.DebtInput{
		{CustomerID: abebe.ID, Amount: decimal.NewFromInt(100), DueDate: fixedNow.AddDate(0, 0, -2)},
		{CustomerID: abebe.ID, Amount: decimal.NewFromInt(50), DueDate: fixedNow.AddDate(0, 0, -9), Status: models.DebtPaid},
		{CustomerID: sara.ID, Amount: decimal.NewFromInt(250), DueDate: fixedNow.AddDate(0, 0, 3), Type: models.DebtOwed},
		{Amount: decimal.NewFromInt(30)},
	}
	for _, in := range inputs {
		_, err := b.repos.Debts.Upsert(ctx, in)
		require.NoError(t, err)
	}
}

func TestDebtTotals(t *testing.T) {
	ctx := context.Background()
	b := newBooks(t)
	seedDebts(t, b)

	all, err := b.rep.DebtTotals(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "380", all.Outstanding.String())
	assert.Equal(t, "100", all.Overdue.String())

	owed, err := b.rep.DebtTotals(ctx, models.DebtOwed)
	require.NoError(t, err)
	assert.Equal(t, "250", owed.Outstanding.String())
	assert.True(t, owed.Overdue.IsZero())

	_, err = b.rep.DebtTotals(ctx, "lent")
	assert.True(t, apperrors.Is(err, apperrors.ErrValidation))
}

func TestDebtGroups_golden(t *testing.T) {
	ctx := context.Background()
	b := newBooks(t)
	seedDebts(t, b)

	groups, err := b.rep.DebtGroups(ctx, "")
	require.NoError(t, err)
	require.Len(t, groups, 3)
	assert.Equal(t, UnknownCustomerID, groups[2].CustomerID)

	var buf bytes.Buffer
	require.NoError(t, WriteDebtGroups(&buf, groups))

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "debt_groups", buf.Bytes())
}

func TestDebtGroups_borrowedOnly(t *testing.T) {
	ctx := context.Background()
	b := newBooks(t)
	seedDebts(t, b)

	groups, err := b.rep.DebtGroups(ctx, models.DebtBorrowed)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, "Abebe", groups[0].CustomerName)
	assert.Equal(t, 2, groups[0].Count)
	assert.Equal(t, "100", groups[0].Total.String())
}

func TestDailySales(t *testing.T) {
	ctx := context.Background()
	b := newBooks(t)

	p, err := b.repos.Products.Upsert(ctx, repository.ProductInput{Name: "Tea", SKU: "T", Price: decimal.NewFromInt(10), Stock: 50})
	require.NoError(t, err)
	for _, back := range []int{0, 0, 2, 9} {
		b.clock = fixedNow.AddDate(0, 0, -back)
		_, err = b.repos.Transactions.QuickSale(ctx, p, 1)
		require.NoError(t, err)
	}
	_, err = b.repos.Transactions.AddExpense(ctx, repository.ExpenseInput{Amount: decimal.NewFromInt(99)})
	require.NoError(t, err)

	series, err := b.rep.DailySales(ctx, 7)
	require.NoError(t, err)
	require.Len(t, series, 7)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), series[0].Day)
	assert.Equal(t, "20", series[6].Sales.String())
	assert.Equal(t, 2, series[6].Count)
	assert.Equal(t, "10", series[4].Sales.String())
	assert.True(t, series[5].Sales.IsZero())

	var buf bytes.Buffer
	require.NoError(t, WriteDailySales(&buf, series))
	assert.Contains(t, buf.String(), "2024-03-06        20.00 ##############################")

	_, err = b.rep.DailySales(ctx, 0)
	assert.True(t, apperrors.Is(err, apperrors.ErrValidation))
}

func TestDebtTotals_untypedRowsCountAsBorrowed(t *testing.T) {
	ctx := context.Background()
	b := newBooks(t)
	seedDebts(t, b)
	_, err := b.store.Exec(ctx, "UPDATE debts SET type = NULL WHERE type = ?", string(models.DebtOwed))
	require.NoError(t, err)

	borrowed, err := b.rep.DebtTotals(ctx, models.DebtBorrowed)
	require.NoError(t, err)
	assert.Equal(t, "380", borrowed.Outstanding.String())

	owed, err := b.rep.DebtTotals(ctx, models.DebtOwed)
	require.NoError(t, err)
	assert.True(t, owed.Outstanding.IsZero())

	groups, err := b.rep.DebtGroups(ctx, models.DebtBorrowed)
	require.NoError(t, err)
	require.Len(t, groups, 3)
	assert.Equal(t, "Sara", groups[0].CustomerName)
}

type recordingLister struct {
	types []models.DebtType
	debts []models.Debt
}

func (l *recordingLister) List(_ context.Context, debtType models.DebtType) ([]models.Debt, error) {
	l.types = append(l.types, debtType)
	return l.debts, nil
}

func TestDebtReports_readThroughLister(t *testing.T) {
	ctx := context.Background()
	lister := &recordingLister{debts: []models.Debt{
		{ID: "d1", CustomerID: "c1", CustomerName: "Abebe", Amount: decimal.NewFromInt(40), Status: models.DebtPending},
	}}
	rep := New(dbtest.Open(t), lister, WithClock(func() time.Time { return fixedNow }))

	totals, err := rep.DebtTotals(ctx, models.DebtOwed)
	require.NoError(t, err)
	assert.Equal(t, "40", totals.Outstanding.String())

	groups, err := rep.DebtGroups(ctx, "")
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, []models.DebtType{models.DebtOwed, ""}, lister.types)
}
