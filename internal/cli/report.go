package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/emaamul/core/internal/models"
	"github.com/emaamul/core/internal/report"
)

// NewReportCommand creates the report command and its subcommands.
func NewReportCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print aggregates over the local store",
	}
	cmd.AddCommand(newPnLCommand(rootOpts))
	cmd.AddCommand(newDebtsCommand(rootOpts))
	cmd.AddCommand(newDailyCommand(rootOpts))
	return cmd
}

func newPnLCommand(rootOpts *RootOptions) *cobra.Command {
	var rng string
	cmd := &cobra.Command{
		Use:   "pnl",
		Short: "Income, expense and net for the current day, week or month",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withReporter(cmd.Context(), rootOpts, func(r *report.Reporter) error {
				p, err := r.PnL(cmd.Context(), report.Range(rng))
				if err != nil {
					return err
				}
				return output(cmd.OutOrStdout(), rootOpts.Format, p, func(w io.Writer) error {
					return report.WritePnL(w, p)
				})
			})
		},
	}
	cmd.Flags().StringVar(&rng, "range", string(report.RangeDay), "day, week or month")
	return cmd
}

// DebtReport is the output of the debts report.
type DebtReport struct {
	Totals *report.DebtTotals  `json:"totals" yaml:"totals"`
	Groups []report.DebtGroup `json:"groups" yaml:"groups"`
}

func newDebtsCommand(rootOpts *RootOptions) *cobra.Command {
	var debtType string
	cmd := &cobra.Command{
		Use:   "debts",
		Short: "Unpaid debts grouped by customer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t := models.DebtType(debtType)
			if !t.Valid() {
				return fmt.Errorf("invalid --type %q: must be borrowed or owed", debtType)
			}
			return withReporter(cmd.Context(), rootOpts, func(r *report.Reporter) error {
				totals, err := r.DebtTotals(cmd.Context(), t)
				if err != nil {
					return err
				}
				groups, err := r.DebtGroups(cmd.Context(), t)
				if err != nil {
					return err
				}
				res := DebtReport{Totals: totals, Groups: groups}
				return output(cmd.OutOrStdout(), rootOpts.Format, res, func(w io.Writer) error {
					if err := report.WriteDebtGroups(w, groups); err != nil {
						return err
					}
					_, err := fmt.Fprintf(w, "\noutstanding %s, overdue %s\n",
						totals.Outstanding.StringFixed(2), totals.Overdue.StringFixed(2))
					return err
				})
			})
		},
	}
	cmd.Flags().StringVar(&debtType, "type", string(models.DebtBorrowed), "borrowed or owed")
	return cmd
}

func newDailyCommand(rootOpts *RootOptions) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "daily",
		Short: "Sales per day, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withReporter(cmd.Context(), rootOpts, func(r *report.Reporter) error {
				series, err := r.DailySales(cmd.Context(), days)
				if err != nil {
					return err
				}
				return output(cmd.OutOrStdout(), rootOpts.Format, series, func(w io.Writer) error {
					return report.WriteDailySales(w, series)
				})
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 7, "number of days, today included")
	return cmd
}

func withReporter(ctx context.Context, opts *RootOptions, fn func(*report.Reporter) error) error {
	rt, err := open(ctx, opts)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(rt.app.Session().Reports)
}
