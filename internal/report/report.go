// Package report aggregates the local books: profit and loss over a calendar
// range, debt totals, debts grouped by customer and a daily sales series.
// Sums are computed with decimal arithmetic in Go rather than in SQL.
package report

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/emaamul/core/internal/db"
	apperrors "github.com/emaamul/core/internal/errors"
	"github.com/emaamul/core/internal/models"
)

// Range names a calendar window ending with the current period.
type Range string

const (
	RangeDay   Range = "day"
	RangeWeek  Range = "week"
	RangeMonth Range = "month"
)

// UnknownCustomer groups debts with no customer attached.
const (
	UnknownCustomerID   = "unknown"
	UnknownCustomerName = "Unknown customer"
)

// DebtLister lists debts of a type, or all debts when the type is empty.
// Listing borrowed debts includes legacy rows without a type.
type DebtLister interface {
	List(ctx context.Context, debtType models.DebtType) ([]models.Debt, error)
}

// Reporter reads aggregates from a local store. Debts are read through
// the debt repository so type filtering has a single definition.
type Reporter struct {
	q        db.Querier
	debtList DebtLister
	now      func() time.Time
	loc      *time.Location
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithClock sets the time used to resolve ranges and overdue checks.
func WithClock(now func() time.Time) Option {
	return func(r *Reporter) { r.now = now }
}

// WithLocation sets the zone calendar boundaries are computed in.
func WithLocation(loc *time.Location) Option {
	return func(r *Reporter) { r.loc = loc }
}

// New creates a Reporter over q and debts.
func New(q db.Querier, debts DebtLister, opts ...Option) *Reporter {
	r := &Reporter{q: q, debtList: debts, now: time.Now, loc: time.Local}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Bounds returns the [start, end) window of rng containing now. Weeks start
// on Monday.
func Bounds(rng Range, now time.Time) (time.Time, time.Time, error) {
	day := startOfDay(now)
	switch rng {
	case RangeDay:
		return day, day.AddDate(0, 0, 1), nil
	case RangeWeek:
		offset := (int(day.Weekday()) + 6) % 7
		start := day.AddDate(0, 0, -offset)
		return start, start.AddDate(0, 0, 7), nil
	case RangeMonth:
		start := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, day.Location())
		return start, start.AddDate(0, 1, 0), nil
	default:
		return time.Time{}, time.Time{}, apperrors.Newf(apperrors.ErrValidation, "unknown range %q", rng)
	}
}

// PnL is income from sales against expenses over a window.
type PnL struct {
	Range   Range           `json:"range" yaml:"range"`
	Start   time.Time       `json:"start" yaml:"start"`
	End     time.Time       `json:"end" yaml:"end"`
	Income  decimal.Decimal `json:"income" yaml:"income"`
	Expense decimal.Decimal `json:"expense" yaml:"expense"`
	Net     decimal.Decimal `json:"net" yaml:"net"`
}

// PnL sums sales and expenses in the current rng window.
func (r *Reporter) PnL(ctx context.Context, rng Range) (*PnL, error) {
	start, end, err := Bounds(rng, r.now().In(r.loc))
	if err != nil {
		return nil, err
	}
	rows, err := r.q.Query(ctx,
		"SELECT type, amount FROM transactions WHERE created_at >= ? AND created_at < ?",
		models.Millis(start), models.Millis(end))
	if err != nil {
		return nil, fmt.Errorf("failed to read transactions: %w", err)
	}
	defer rows.Close()

	out := &PnL{Range: rng, Start: start, End: end, Income: decimal.Zero, Expense: decimal.Zero}
	for rows.Next() {
		var typ models.TransactionType
		var amount decimal.NullDecimal
		if err := rows.Scan(&typ, &amount); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		switch typ {
		case models.TransactionSale:
			out.Income = out.Income.Add(amount.Decimal)
		case models.TransactionExpense:
			out.Expense = out.Expense.Add(amount.Decimal)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out.Net = out.Income.Sub(out.Expense)
	return out, nil
}

// DebtTotals is what is still owed, and the overdue part of it.
type DebtTotals struct {
	Outstanding decimal.Decimal `json:"outstanding" yaml:"outstanding"`
	Overdue     decimal.Decimal `json:"overdue" yaml:"overdue"`
}

// DebtGroup gathers the debts of one customer. Total counts unpaid debts only.
type DebtGroup struct {
	CustomerID   string          `json:"customerId" yaml:"customerId"`
	CustomerName string          `json:"customerName" yaml:"customerName"`
	Debts        []models.Debt   `json:"-" yaml:"-"`
	Count        int             `json:"count" yaml:"count"`
	Total        decimal.Decimal `json:"total" yaml:"total"`
}

// DebtTotals sums unpaid debts of debtType, or of all types when empty.
func (r *Reporter) DebtTotals(ctx context.Context, debtType models.DebtType) (*DebtTotals, error) {
	debts, err := r.debtList.List(ctx, debtType)
	if err != nil {
		return nil, err
	}
	now := r.now()
	out := &DebtTotals{Outstanding: decimal.Zero, Overdue: decimal.Zero}
	for i := range debts {
		d := &debts[i]
		if d.Status == models.DebtPaid {
			continue
		}
		out.Outstanding = out.Outstanding.Add(d.Amount)
		if d.IsOverdue(now) {
			out.Overdue = out.Overdue.Add(d.Amount)
		}
	}
	return out, nil
}

// DebtGroups groups debts of debtType by customer, largest unpaid total
// first. Debts without a customer share the UnknownCustomerID group.
func (r *Reporter) DebtGroups(ctx context.Context, debtType models.DebtType) ([]DebtGroup, error) {
	debts, err := r.debtList.List(ctx, debtType)
	if err != nil {
		return nil, err
	}

	index := make(map[string]int)
	var groups []DebtGroup
	for _, d := range debts {
		key := d.CustomerID
		if key == "" {
			key = UnknownCustomerID
		}
		i, ok := index[key]
		if !ok {
			name := d.CustomerName
			if name == "" {
				name = UnknownCustomerName
			}
			i = len(groups)
			index[key] = i
			groups = append(groups, DebtGroup{CustomerID: key, CustomerName: name, Total: decimal.Zero})
		}
		g := &groups[i]
		g.Debts = append(g.Debts, d)
		g.Count++
		if d.Status != models.DebtPaid {
			g.Total = g.Total.Add(d.Amount)
		}
	}

	sort.SliceStable(groups, func(a, b int) bool {
		if c := groups[a].Total.Cmp(groups[b].Total); c != 0 {
			return c > 0
		}
		return groups[a].CustomerName < groups[b].CustomerName
	})
	return groups, nil
}

// DayTotal is the sales of one calendar day.
type DayTotal struct {
	Day   time.Time       `json:"day" yaml:"day"`
	Sales decimal.Decimal `json:"sales" yaml:"sales"`
	Count int             `json:"count" yaml:"count"`
}

// DailySales returns one entry per day for the last days days, today
// included, oldest first. Days without sales are zero.
func (r *Reporter) DailySales(ctx context.Context, days int) ([]DayTotal, error) {
	if days <= 0 {
		return nil, apperrors.Newf(apperrors.ErrValidation, "days must be positive, got %d", days)
	}
	today := startOfDay(r.now().In(r.loc))
	first := today.AddDate(0, 0, -(days - 1))

	series := make([]DayTotal, days)
	for i := range series {
		series[i] = DayTotal{Day: first.AddDate(0, 0, i), Sales: decimal.Zero}
	}

	rows, err := r.q.Query(ctx,
		"SELECT created_at, amount FROM transactions WHERE type = ? AND created_at >= ? AND created_at < ?",
		string(models.TransactionSale), models.Millis(first), models.Millis(today.AddDate(0, 0, 1)))
	if err != nil {
		return nil, fmt.Errorf("failed to read sales: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var createdAt int64
		var amount decimal.NullDecimal
		if err := rows.Scan(&createdAt, &amount); err != nil {
			return nil, fmt.Errorf("failed to scan sale: %w", err)
		}
		day := startOfDay(models.FromMillis(createdAt).In(r.loc))
		i := dayIndex(first, day)
		if i < 0 || i >= days {
			continue
		}
		series[i].Sales = series[i].Sales.Add(amount.Decimal)
		series[i].Count++
	}
	return series, rows.Err()
}

// dayIndex counts calendar days from first to day, stable across DST shifts.
func dayIndex(first, day time.Time) int {
	a := time.Date(first.Year(), first.Month(), first.Day(), 0, 0, 0, 0, time.UTC)
	b := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}
