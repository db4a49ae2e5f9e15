package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"price-floor-alerts/internal/app"
	"price-floor-alerts/internal/history"
)

var (
	historyCategories []string
	historyStates     []string
	historySort       string

	stateDate   string
	stateSource string
	stateLabel  string

	suggestDate string
	suggestTopN int

	summaryDays int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded alerts of the last 90 days",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().History(cmd.Context(), app.HistoryOptions{
			Categories: historyCategories,
			States:     historyStates,
			Sort:       historySort,
		})
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Mark a day's alerts for one coupon as resolved",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().SetState(cmd.Context(), stateOptions(), history.Resolved)
	},
}

var snoozeCmd = &cobra.Command{
	Use:   "snooze",
	Short: "Hide a day's alerts for one coupon until the next scan",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().SetState(cmd.Context(), stateOptions(), history.Snoozed)
	},
}

var suggestCmd = &cobra.Command{
	Use:   "suggest",
	Short: "Show price suggestions for the day's unhandled alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		if suggestTopN < 0 {
			return fmt.Errorf("--top must not be negative")
		}
		return getApp().Suggest(cmd.Context(), app.SuggestOptions{Date: suggestDate, TopN: suggestTopN})
	},
}

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show alert KPIs over a rolling window",
	RunE: func(cmd *cobra.Command, args []string) error {
		if summaryDays < 0 {
			return fmt.Errorf("--days must not be negative")
		}
		return getApp().Summary(cmd.Context(), summaryDays)
	},
}

func stateOptions() app.StateOptions {
	return app.StateOptions{Date: stateDate, Source: stateSource, Label: stateLabel}
}

func init() {
	historyCmd.Flags().StringSliceVar(&historyCategories, "category", nil, "Only these categories (id or label, repeatable)")
	historyCmd.Flags().StringSliceVar(&historyStates, "state", nil, "Only these states: unhandled, resolved, snoozed")
	historyCmd.Flags().StringVar(&historySort, "sort", string(history.SortNewest), "Order: newest, oldest or deficit")

	for _, cmd := range []*cobra.Command{resolveCmd, snoozeCmd} {
		cmd.Flags().StringVar(&stateDate, "date", "", "Alert date (YYYY-MM-DD, defaults to today)")
		cmd.Flags().StringVar(&stateSource, "source", "", "Competitor name as shown in history")
		cmd.Flags().StringVar(&stateLabel, "label", "", "Coupon label as shown in history")
		_ = cmd.MarkFlagRequired("source")
		_ = cmd.MarkFlagRequired("label")
	}

	suggestCmd.Flags().StringVar(&suggestDate, "date", "", "Alert date (YYYY-MM-DD, defaults to today)")
	suggestCmd.Flags().IntVar(&suggestTopN, "top", 0, "Number of suggestions (defaults to alerting.top_n)")

	summaryCmd.Flags().IntVar(&summaryDays, "days", history.SummaryDays, "Window length in days")
}
