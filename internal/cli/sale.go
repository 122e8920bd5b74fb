package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/emaamul/core/internal/repository"
)

type saleOptions struct {
	sku      string
	product  string
	customer string
	qty      int64
	price    string
	currency string
	unpaid   bool
}

// NewSaleCommand creates the sale command.
func NewSaleCommand(rootOpts *RootOptions) *cobra.Command {
	o := &saleOptions{}
	cmd := &cobra.Command{
		Use:   "sale",
		Short: "Record a sale",
		Long: `Record a sale of one product.

Stock is decremented and, for an unpaid sale, the customer's balance is
increased in the same local transaction. The records are queued for sync.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSale(cmd.Context(), rootOpts, o, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&o.sku, "sku", "", "product code")
	cmd.Flags().StringVar(&o.product, "product", "", "product id (instead of --sku)")
	cmd.Flags().StringVar(&o.customer, "customer", "", "customer id")
	cmd.Flags().Int64VarP(&o.qty, "qty", "q", 1, "quantity sold")
	cmd.Flags().StringVar(&o.price, "price", "", "unit price (default: the product price)")
	cmd.Flags().StringVar(&o.currency, "currency", "", "currency code")
	cmd.Flags().BoolVar(&o.unpaid, "unpaid", false, "sold on credit to --customer")
	cmd.MarkFlagsOneRequired("sku", "product")
	cmd.MarkFlagsMutuallyExclusive("sku", "product")
	return cmd
}

func runSale(ctx context.Context, opts *RootOptions, o *saleOptions, w io.Writer) error {
	if o.unpaid && o.customer == "" {
		return fmt.Errorf("--unpaid requires --customer")
	}
	rt, err := open(ctx, opts)
	if err != nil {
		return err
	}
	defer rt.Close()
	products := rt.app.Session().Repos.Products

	productID := o.product
	price := decimal.Zero
	if o.sku != "" {
		p, err := products.FindBySKU(ctx, o.sku)
		if err != nil {
			return err
		}
		productID, price = p.ID, p.Price
	} else {
		p, err := products.Get(ctx, productID)
		if err != nil {
			return err
		}
		price = p.Price
	}
	if o.price != "" {
		if price, err = decimal.NewFromString(o.price); err != nil {
			return fmt.Errorf("invalid --price %q: %w", o.price, err)
		}
	}

	t, err := rt.app.Session().Repos.Transactions.AddSale(ctx, repository.SaleInput{
		ProductID:  productID,
		CustomerID: o.customer,
		Qty:        o.qty,
		Price:      price,
		Currency:   o.currency,
		Paid:       !o.unpaid,
	})
	if err != nil {
		return err
	}
	return output(w, opts.Format, t, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "sale %s amount=%s\n", t.ID, t.Amount.StringFixed(2))
		return err
	})
}
