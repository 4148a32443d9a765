package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"
)

// Show prints recent listings or receipts.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	svc, done, err := a.dialService(ctx)
	if err != nil {
		return err
	}
	defer done()

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer writer.Flush()

	if opts.Receipts {
		receipts, err := svc.ListReceipts(ctx, opts.Limit)
		if err != nil {
			return err
		}
		if len(receipts) == 0 {
			fmt.Fprintln(os.Stdout, "no receipts found")
			return nil
		}

		fmt.Fprintln(writer, "Time (UTC)\tReceipt\tBuyer\tProduct\tPaid (native)")
		for _, r := range receipts {
			fmt.Fprintf(
				writer,
				"%s\t%s\t%s\t%s\t%d\n",
				r.Timestamp.UTC().Format(time.RFC3339),
				r.Address().Hex(),
				r.Owner.Hex(),
				r.Product.Hex(),
				r.PricePaidNative,
			)
		}
		return nil
	}

	listings, err := svc.ListListings(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(listings) == 0 {
		fmt.Fprintln(os.Stdout, "no listings found")
		return nil
	}

	fmt.Fprintln(writer, "Created (UTC)\tName\tAddress\tPrice (USD cents)\tActive")
	for _, l := range listings {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%d\t%t\n",
			l.CreatedAt.UTC().Format(time.RFC3339),
			l.Name,
			l.Address().Hex(),
			l.PriceUSD,
			l.IsActive,
		)
	}
	return nil
}
