package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"price-floor-alerts/internal/app"
)

var (
	simulateSource   string
	simulateLabel    string
	simulateCategory string
	simulatePrice    int64
	simulateFloor    int64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Send a synthetic below-floor alert through the configured channel",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulatePrice <= 0 {
			return errors.New("--price must be greater than 0")
		}

		return getApp().SimulateAlert(cmd.Context(), app.SimulateOptions{
			Source:   simulateSource,
			Label:    simulateLabel,
			Category: simulateCategory,
			Price:    simulatePrice,
			Floor:    simulateFloor,
		})
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateSource, "source", "テスト競合", "Competitor name")
	simulateCmd.Flags().StringVar(&simulateLabel, "label", "テストクーポン", "Coupon label")
	simulateCmd.Flags().StringVar(&simulateCategory, "category", "facial", "Category id or label")
	simulateCmd.Flags().Int64Var(&simulatePrice, "price", 0, "Competitor price in yen")
	simulateCmd.Flags().Int64Var(&simulateFloor, "floor", 0, "Floor in yen (defaults to the configured floor)")
}
