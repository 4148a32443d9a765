package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"listing-ledger/internal/app"
)

var (
	buyBuyer       string
	buySeller      string
	buyName        string
	buySeed        string
	buyAttestation string
)

var buyCmd = &cobra.Command{
	Use:   "buy",
	Short: "Purchase a listing at the attested exchange rate",
	RunE: func(cmd *cobra.Command, args []string) error {
		if buyName == "" {
			return fmt.Errorf("--name must be provided")
		}
		if buyAttestation == "" {
			return fmt.Errorf("--attestation must be provided")
		}

		opts := app.BuyOptions{
			Buyer:           buyBuyer,
			Seller:          buySeller,
			Name:            buyName,
			Seed:            buySeed,
			AttestationPath: buyAttestation,
		}
		return getApp().Buy(cmd.Context(), opts)
	},
}

var (
	fundAccount string
	fundAmount  uint64
)

var fundCmd = &cobra.Command{
	Use:   "fund",
	Short: "Credit an account balance (development helper)",
	RunE: func(cmd *cobra.Command, args []string) error {
		if fundAmount == 0 {
			return fmt.Errorf("--amount must be greater than zero")
		}

		opts := app.FundOptions{Account: fundAccount, Amount: fundAmount}
		return getApp().Fund(cmd.Context(), opts)
	},
}

func init() {
	buyCmd.Flags().StringVar(&buyBuyer, "buyer", "", "Buyer address (hex)")
	buyCmd.Flags().StringVar(&buySeller, "seller", "", "Seller admin address (hex)")
	buyCmd.Flags().StringVar(&buyName, "name", "", "Listing name")
	buyCmd.Flags().StringVar(&buySeed, "seed", "", "Purchase seed (hex, random when omitted)")
	buyCmd.Flags().StringVar(&buyAttestation, "attestation", "", "Path to the oracle attestation JSON")

	fundCmd.Flags().StringVar(&fundAccount, "account", "", "Account address (hex)")
	fundCmd.Flags().Uint64Var(&fundAmount, "amount", 0, "Amount in native base units")
}
