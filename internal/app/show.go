package app

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"price-floor-alerts/internal/alerting"
	"price-floor-alerts/internal/category"
	"price-floor-alerts/internal/history"
)

// History prints ledger records matching opts.
func (a *App) History(ctx context.Context, opts HistoryOptions) error {
	defer a.Close()

	filter, err := buildFilter(opts)
	if err != nil {
		return err
	}
	ledger, _, err := a.openLedger(ctx)
	if err != nil {
		return err
	}
	records, err := ledger.Query(ctx, filter)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(a.Out, "履歴はまだありません。スキャンを実行すると保存されます。")
		return nil
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Date\tSource\tCategory\tLabel\tPrice\tFloor\tDeficit\tSuggested\tState\tURL")
	for _, r := range records {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\t%s\n",
			r.Date,
			sanitizeInline(r.Source),
			r.Category.Label(),
			sanitizeInline(r.Label),
			r.Price, r.Floor, r.Deficit, r.SuggestedPrice,
			r.State.Label(),
			r.Locator,
		)
	}
	writer.Flush()
	return nil
}

func buildFilter(opts HistoryOptions) (history.Filter, error) {
	var filter history.Filter
	for _, name := range opts.Categories {
		c, ok := category.Lookup(name)
		if !ok {
			return filter, fmt.Errorf("unknown category %q", name)
		}
		filter.Categories = append(filter.Categories, c)
	}
	for _, name := range opts.States {
		st, err := history.ParseState(name)
		if err != nil {
			return filter, err
		}
		filter.States = append(filter.States, st)
	}
	sortKey, err := history.ParseSortKey(opts.Sort)
	if err != nil {
		return filter, err
	}
	filter.Sort = sortKey
	return filter, nil
}

// SetState marks the matching records of one day.
func (a *App) SetState(ctx context.Context, opts StateOptions, state history.State) error {
	defer a.Close()

	ledger, _, err := a.openLedger(ctx)
	if err != nil {
		return err
	}
	date := opts.Date
	if date == "" {
		date = ledger.Today()
	}
	changed, err := ledger.SetState(ctx, date, opts.Source, opts.Label, state)
	if err != nil {
		return err
	}
	if changed == 0 {
		fmt.Fprintf(a.Out, "%s の該当する履歴はありません。\n", date)
		return nil
	}
	fmt.Fprintf(a.Out, "%d 件を%sにしました。\n", changed, state.Label())
	return nil
}

// Suggest prints the day's highest-priority unhandled alerts with price advice.
func (a *App) Suggest(ctx context.Context, opts SuggestOptions) error {
	defer a.Close()

	ledger, _, err := a.openLedger(ctx)
	if err != nil {
		return err
	}
	date := opts.Date
	if date == "" {
		date = ledger.Today()
	}
	pending, err := ledger.Pending(ctx, date)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		fmt.Fprintln(a.Out, "現在、提案はありません。scan または ingest を実行してください。")
		return nil
	}

	topN := a.Config.ResolveTopN(opts.TopN)
	if topN > 0 && len(pending) > topN {
		pending = pending[:topN]
	}

	fmt.Fprintf(a.Out, "今日のサジェスト（%s、上位%d件）\n", date, len(pending))
	for _, r := range pending {
		fmt.Fprintf(a.Out, "\n【%s】 %s 「%s」 優先度:%s\n", r.Category.Label(), r.Source, r.Label, r.Score().StringFixed(0))
		fmt.Fprintf(a.Out, "  競合価格：%s ｜ 下限：%s ｜ 差額：-%s（%s%%）\n",
			a.yen(r.Price), a.yen(r.Floor), a.yen(r.Deficit), deficitPercent(r))
		fmt.Fprintf(a.Out, "  ご提案：本日中に、%s → %s への再設定をご検討ください。\n", a.yen(r.Floor), a.yen(r.SuggestedPrice))
		if strings.TrimSpace(r.Locator) != "" {
			fmt.Fprintf(a.Out, "  参考URL：%s\n", r.Locator)
		}
	}
	return nil
}

func deficitPercent(r history.Record) string {
	return alerting.DeficitRate(r.Deficit, r.Floor).Shift(2).StringFixed(1)
}

// Summary prints the rolling-window KPIs.
func (a *App) Summary(ctx context.Context, days int) error {
	defer a.Close()

	ledger, _, err := a.openLedger(ctx)
	if err != nil {
		return err
	}
	s, err := ledger.Summary(ctx, days)
	if err != nil {
		return err
	}
	if s.Total == 0 {
		fmt.Fprintf(a.Out, "過去%d日の履歴はありません。\n", s.Days)
		return nil
	}

	fmt.Fprintf(a.Out, "%d日サマリー（%s 以降）\n", s.Days, s.Since)
	fmt.Fprintf(a.Out, "総アラート：%d\n", s.Total)
	fmt.Fprintf(a.Out, "対応済み率：%s%%\n", s.ResolvedRate.StringFixed(0))
	fmt.Fprintf(a.Out, "平均差額：%s\n", a.yen(s.AverageDeficit))

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Category\tCount")
	for _, c := range s.ByCategory {
		fmt.Fprintf(writer, "%s\t%d\n", c.Category.Label(), c.Count)
	}
	writer.Flush()
	return nil
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	cleaned = strings.ReplaceAll(cleaned, "\t", " ")
	return cleaned
}
