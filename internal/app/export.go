package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	chart "github.com/wcharczuk/go-chart/v2"

	"price-floor-alerts/internal/history"
)

// Export writes the ledger as CSV and the per-category summary as a PNG bar
// chart. With neither path set both files go to export.dir.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	defer a.Close()

	ledger, _, err := a.openLedger(ctx)
	if err != nil {
		return err
	}

	if opts.CSVPath == "" && opts.PNGPath == "" {
		if a.Config.Export.Dir == "" {
			return errors.New("at least one of --csv or --png must be provided")
		}
		today := ledger.Today()
		opts.CSVPath = filepath.Join(a.Config.Export.Dir, "history_"+today+".csv")
		opts.PNGPath = filepath.Join(a.Config.Export.Dir, "summary_"+today+".png")
	}

	if opts.CSVPath != "" {
		records, err := ledger.Query(ctx, history.Filter{Sort: history.SortOldest})
		if err != nil {
			return err
		}
		if err := writeRecordsCSV(opts.CSVPath, records); err != nil {
			return err
		}
		a.Logger.Info().Str("path", opts.CSVPath).Int("records", len(records)).Msg("history exported")
		fmt.Fprintf(a.Out, "CSV: %s (%d 件)\n", opts.CSVPath, len(records))
	}

	if opts.PNGPath != "" {
		summary, err := ledger.Summary(ctx, opts.Days)
		if err != nil {
			return err
		}
		if summary.Total == 0 {
			a.Logger.Info().Int("days", summary.Days).Msg("no records in summary window; chart skipped")
			fmt.Fprintf(a.Out, "過去%d日の履歴がないためグラフは出力しません。\n", summary.Days)
			return nil
		}
		if err := writeSummaryPNG(opts.PNGPath, summary, a.Config.Export.ChartWidth, a.Config.Export.ChartHeight); err != nil {
			return err
		}
		a.Logger.Info().Str("path", opts.PNGPath).Int("total", summary.Total).Msg("summary chart exported")
		fmt.Fprintf(a.Out, "PNG: %s\n", opts.PNGPath)
	}

	return nil
}

func writeRecordsCSV(path string, records []history.Record) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return history.WriteCSV(file, records)
}

// writeSummaryPNG renders one bar per category. Bars are labelled with
// category ids because the bundled chart font has no CJK glyphs.
func writeSummaryPNG(path string, summary history.Summary, width, height int) error {
	if len(summary.ByCategory) == 0 {
		return errors.New("summary has no categories to chart")
	}
	if err := ensureDir(path); err != nil {
		return err
	}
	if width <= 0 {
		width = 1024
	}
	if height <= 0 {
		height = 512
	}

	bars := make([]chart.Value, 0, len(summary.ByCategory))
	peak := 0
	for _, c := range summary.ByCategory {
		bars = append(bars, chart.Value{Label: string(c.Category), Value: float64(c.Count)})
		peak = max(peak, c.Count)
	}

	graph := chart.BarChart{
		Title:  fmt.Sprintf("Alerts by category since %s", summary.Since),
		Width:  width,
		Height: height,
		Background: chart.Style{
			Padding: chart.Box{Top: 40},
		},
		BarWidth: 60,
		YAxis: chart.YAxis{
			// Fixed from zero so a single bar still has a non-empty range.
			Range: &chart.ContinuousRange{Min: 0, Max: float64(peak + 1)},
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.0f")
			},
		},
		Bars: bars,
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
