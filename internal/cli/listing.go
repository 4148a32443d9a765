package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"listing-ledger/internal/app"
)

var (
	initAdmin    string
	initTreasury string
	initName     string
	initImageURL string
	initPriceUSD uint64
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a new listing",
	RunE: func(cmd *cobra.Command, args []string) error {
		if initName == "" {
			return fmt.Errorf("--name must be provided")
		}
		if initPriceUSD == 0 {
			return fmt.Errorf("--price-usd must be greater than zero")
		}

		opts := app.InitializeOptions{
			Admin:    initAdmin,
			Treasury: initTreasury,
			Name:     initName,
			ImageURL: initImageURL,
			PriceUSD: initPriceUSD,
		}
		return getApp().Initialize(cmd.Context(), opts)
	},
}

var (
	updateAdmin    string
	updateName     string
	updateImageURL string
	updatePriceUSD uint64
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Update price and/or image URL of a listing",
	RunE: func(cmd *cobra.Command, args []string) error {
		if updateName == "" {
			return fmt.Errorf("--name must be provided")
		}

		opts := app.UpdateOptions{
			Admin: updateAdmin,
			Name:  updateName,
		}
		if cmd.Flags().Changed("image-url") {
			opts.ImageURL = &updateImageURL
		}
		if cmd.Flags().Changed("price-usd") {
			opts.PriceUSD = &updatePriceUSD
		}
		if opts.ImageURL == nil && opts.PriceUSD == nil {
			return fmt.Errorf("provide at least one of --image-url or --price-usd")
		}
		return getApp().Update(cmd.Context(), opts)
	},
}

var (
	deactivateAdmin string
	deactivateName  string
)

var deactivateCmd = &cobra.Command{
	Use:   "deactivate",
	Short: "Permanently close a listing for purchases",
	RunE: func(cmd *cobra.Command, args []string) error {
		if deactivateName == "" {
			return fmt.Errorf("--name must be provided")
		}

		opts := app.DeactivateOptions{Admin: deactivateAdmin, Name: deactivateName}
		return getApp().Deactivate(cmd.Context(), opts)
	},
}

func init() {
	initCmd.Flags().StringVar(&initAdmin, "admin", "", "Admin address (hex)")
	initCmd.Flags().StringVar(&initTreasury, "treasury", "", "Treasury address receiving payments (defaults to admin)")
	initCmd.Flags().StringVar(&initName, "name", "", "Listing name (max 32 bytes)")
	initCmd.Flags().StringVar(&initImageURL, "image-url", "", "Product image URL (max 200 bytes)")
	initCmd.Flags().Uint64Var(&initPriceUSD, "price-usd", 0, "Price in USD cents")

	updateCmd.Flags().StringVar(&updateAdmin, "admin", "", "Admin address (hex)")
	updateCmd.Flags().StringVar(&updateName, "name", "", "Listing name")
	updateCmd.Flags().StringVar(&updateImageURL, "image-url", "", "New product image URL")
	updateCmd.Flags().Uint64Var(&updatePriceUSD, "price-usd", 0, "New price in USD cents")

	deactivateCmd.Flags().StringVar(&deactivateAdmin, "admin", "", "Admin address (hex)")
	deactivateCmd.Flags().StringVar(&deactivateName, "name", "", "Listing name")
}
