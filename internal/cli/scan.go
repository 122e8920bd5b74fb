package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/emaamul/core/internal/models"
)

// ScanResult is the output of the scan command.
type ScanResult struct {
	Product *models.Product `json:"product" yaml:"product"`
	Created bool            `json:"created" yaml:"created"`
}

// NewScanCommand creates the scan command.
func NewScanCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "scan <code>",
		Short: "Resolve a scanned code to a product, creating a placeholder if unknown",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd.Context(), rootOpts, args[0], cmd.OutOrStdout())
		},
	}
}

func runScan(ctx context.Context, opts *RootOptions, code string, w io.Writer) error {
	rt, err := open(ctx, opts)
	if err != nil {
		return err
	}
	defer rt.Close()

	p, created, err := rt.app.Session().Repos.Products.EnsureBySKU(ctx, code)
	if err != nil {
		return err
	}
	return output(w, opts.Format, ScanResult{Product: p, Created: created}, func(w io.Writer) error {
		verb := "found"
		if created {
			verb = "created"
		}
		_, err := fmt.Fprintf(w, "%s %s %q sku=%s price=%s stock=%d\n",
			verb, p.ID, p.Name, p.SKU, p.Price.StringFixed(2), p.Stock)
		return err
	})
}
