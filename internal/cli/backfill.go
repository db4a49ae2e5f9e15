package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"price-floor-alerts/internal/app"
)

var (
	backfillDir    string
	backfillFrom   string
	backfillTo     string
	backfillDryRun bool
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Replay dated CSV snapshots (<dir>/YYYY-MM-DD.csv) into history",
	RunE: func(cmd *cobra.Command, args []string) error {
		if backfillFrom == "" || backfillTo == "" {
			return fmt.Errorf("--from and --to must be provided")
		}

		return getApp().Backfill(cmd.Context(), app.BackfillOptions{
			Dir:    backfillDir,
			From:   backfillFrom,
			To:     backfillTo,
			DryRun: backfillDryRun,
		})
	},
}

func init() {
	backfillCmd.Flags().StringVar(&backfillDir, "dir", "snapshots", "Directory holding dated snapshots")
	backfillCmd.Flags().StringVar(&backfillFrom, "from", "", "First day (YYYY-MM-DD, inclusive)")
	backfillCmd.Flags().StringVar(&backfillTo, "to", "", "Last day (YYYY-MM-DD, inclusive)")
	backfillCmd.Flags().BoolVar(&backfillDryRun, "dry-run", false, "Run without writing to history")
}
