package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"price-floor-alerts/internal/extract"
	"price-floor-alerts/internal/service"
)

// Scan fetches the configured pages once and records any alerts.
func (a *App) Scan(ctx context.Context) error {
	defer a.Close()

	svc, _, err := a.newService(ctx, nil, nil, a.newNotifier())
	if err != nil {
		return err
	}
	result, err := svc.Scan(ctx)
	if err != nil {
		return err
	}
	a.printSources(result.Sources)
	a.printResult(result)
	return nil
}

// Ingest runs the pipeline over a CSV table of offers instead of fetched pages.
func (a *App) Ingest(ctx context.Context, path string) error {
	defer a.Close()

	table, err := readTableFile(path)
	if err != nil {
		return err
	}

	svc, _, err := a.newService(ctx, nil, nil, a.newNotifier())
	if err != nil {
		return err
	}
	result, err := svc.ScanTable(ctx, table)
	if err != nil {
		return err
	}
	if result.Dropped > 0 {
		fmt.Fprintf(a.Out, "%d 行を不備のため除外しました。\n", result.Dropped)
	}
	a.printResult(result)
	return nil
}

func readTableFile(path string) (extract.TableResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return extract.TableResult{}, err
	}
	defer file.Close()

	table, err := extract.ReadTable(file)
	if err != nil {
		return extract.TableResult{}, fmt.Errorf("read %s: %w", path, err)
	}
	return table, nil
}

func (a *App) printSources(sources []service.SourceReport) {
	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Source\tSelf\tFetched\tOffers\tURL")
	for _, s := range sources {
		fmt.Fprintf(writer, "%s\t%t\t%t\t%d\t%s\n", sanitizeInline(s.Name), s.IsSelf, s.Fetched, s.Offers, s.Locator)
	}
	writer.Flush()
}

func (a *App) printResult(result service.Result) {
	switch result.Outcome {
	case service.OutcomeEmptyCatalog:
		fmt.Fprintln(a.Out, "有効なクーポン情報を読み取れませんでした。URLの公開状態や打ち間違いをご確認ください。")
		return
	case service.OutcomeNoAlerts:
		fmt.Fprintln(a.Out, "下限を下回る競合は見つかりませんでした。今日は安定しています。")
		a.printAppendFailure(result)
		return
	}

	fmt.Fprintln(a.Out, "競合の一部で下限未満が見つかりました。早めの調整をおすすめします。")
	topN := a.Config.ResolveTopN(0)
	for i, alert := range result.Alerts {
		if topN > 0 && i >= topN {
			break
		}
		fmt.Fprintf(a.Out, "【%s｜%s】 競合価格：%s / 下限：%s（差額 -%s）。本日中に %s→%s への調整をおすすめします。\n",
			alert.Category.Label(), alert.Source,
			a.yen(alert.Price), a.yen(*alert.Floor), a.yen(alert.Deficit),
			a.yen(*alert.Floor), a.yen(alert.SuggestedPrice))
	}
	if rest := len(result.Alerts) - topN; topN > 0 && rest > 0 {
		fmt.Fprintf(a.Out, "他に %d 件あります。suggest コマンドでご確認ください。\n", rest)
	}
	if a.printAppendFailure(result) {
		return
	}
	fmt.Fprintf(a.Out, "検出結果を履歴に保存しました（新規 %d 件、重複 %d 件）。\n", result.Appended.Added, result.Appended.Duplicates)
}

func (a *App) printAppendFailure(result service.Result) bool {
	if result.AppendErr == nil {
		return false
	}
	fmt.Fprintf(a.Out, "履歴の保存に失敗しました: %v\n", result.AppendErr)
	return true
}
