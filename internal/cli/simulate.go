package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"listing-ledger/internal/app"
)

var (
	simulatePriceUSD    uint64
	simulateOraclePrice float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-buy",
	Short: "模拟一次购买并打印换算结果 (不写数据库)",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulatePriceUSD == 0 || simulateOraclePrice <= 0 {
			return errors.New("--price-usd 与 --oracle-price 必须大于 0")
		}

		opts := app.SimulateBuyOptions{
			PriceUSD:    simulatePriceUSD,
			OraclePrice: simulateOraclePrice,
		}
		return getApp().SimulateBuy(cmd.Context(), opts)
	},
}

func init() {
	simulateCmd.Flags().Uint64Var(&simulatePriceUSD, "price-usd", 0, "标价 (美分)")
	simulateCmd.Flags().Float64Var(&simulateOraclePrice, "oracle-price", 0, "结算币种兑美元价格")
}
