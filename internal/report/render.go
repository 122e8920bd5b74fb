package report

import (
	"fmt"
	"io"
	"strings"
)

// WriteDebtGroups renders groups as a fixed-width table.
func WriteDebtGroups(w io.Writer, groups []DebtGroup) error {
	if _, err := fmt.Fprintf(w, "%-12s %-20s %5s %12s\n", "CUSTOMER", "NAME", "DEBTS", "UNPAID"); err != nil {
		return err
	}
	for _, g := range groups {
		if _, err := fmt.Fprintf(w, "%-12s %-20s %5d %12s\n",
			truncate(g.CustomerID, 12), truncate(g.CustomerName, 20), g.Count, g.Total.StringFixed(2)); err != nil {
			return err
		}
	}
	return nil
}

// WritePnL renders p as labelled lines.
func WritePnL(w io.Writer, p *PnL) error {
	_, err := fmt.Fprintf(w, "range    %s (%s .. %s)\nincome   %s\nexpense  %s\nnet      %s\n",
		p.Range, p.Start.Format("2006-01-02"), p.End.AddDate(0, 0, -1).Format("2006-01-02"),
		p.Income.StringFixed(2), p.Expense.StringFixed(2), p.Net.StringFixed(2))
	return err
}

// WriteDailySales renders a day per line with a proportional bar.
func WriteDailySales(w io.Writer, series []DayTotal) error {
	max := 0.0
	for _, d := range series {
		if f := d.Sales.InexactFloat64(); f > max {
			max = f
		}
	}
	for _, d := range series {
		bar := 0
		if max > 0 {
			bar = int(d.Sales.InexactFloat64() / max * 30)
		}
		if _, err := fmt.Fprintf(w, "%s %12s %s\n", d.Day.Format("2006-01-02"), d.Sales.StringFixed(2), strings.Repeat("#", bar)); err != nil {
			return err
		}
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "~"
}
