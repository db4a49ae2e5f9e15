package cli

import (
	"github.com/spf13/cobra"

	"price-floor-alerts/internal/app"
)

var (
	exportPNGPath string
	exportCSVPath string
	exportDays    int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export history as CSV and a per-category PNG chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Export(cmd.Context(), app.ExportOptions{
			CSVPath: exportCSVPath,
			PNGPath: exportPNGPath,
			Days:    exportDays,
		})
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
	exportCmd.Flags().IntVar(&exportDays, "days", 0, "Chart window in days (defaults to 30)")
}
