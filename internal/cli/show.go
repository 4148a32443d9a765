package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"listing-ledger/internal/app"
)

var (
	showReceipts bool
	showLimit    int
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display recent listings or receipts",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.ShowOptions{
			Receipts: showReceipts,
			Limit:    showLimit,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().BoolVar(&showReceipts, "receipts", false, "Show purchase receipts instead of listings")
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of rows to display")
}
