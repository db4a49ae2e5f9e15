package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"price-floor-alerts/internal/history"
	"price-floor-alerts/internal/service"
)

// Backfill replays dated table snapshots (<dir>/<YYYY-MM-DD>.csv) into the
// ledger, one calendar day at a time. Days without a snapshot are skipped.
func (a *App) Backfill(ctx context.Context, opts BackfillOptions) error {
	defer a.Close()

	loc := a.Config.Location()
	from, err := time.ParseInLocation(history.DateLayout, opts.From, loc)
	if err != nil {
		return fmt.Errorf("invalid --from value: %w", err)
	}
	to, err := time.ParseInLocation(history.DateLayout, opts.To, loc)
	if err != nil {
		return fmt.Errorf("invalid --to value: %w", err)
	}
	if to.Before(from) {
		return errors.New("backfill range is empty; check --from/--to")
	}

	var svc *service.Service
	if opts.DryRun {
		a.Logger.Warn().Msg("backfill dry-run: the ledger will not be written")
		store := history.NewMemoryStore()
		ledger := history.NewLedger(store, a.Logger, history.WithLocation(loc))
		svc = service.New(a.Config, nil, nil, ledger, store, nil, a.Logger)
	} else {
		svc, _, err = a.newService(ctx, nil, nil, nil)
		if err != nil {
			return err
		}
	}

	var processed, skipped, failed, added int
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		date := day.Format(history.DateLayout)
		path := filepath.Join(opts.Dir, date+".csv")
		table, err := readTableFile(path)
		if errors.Is(err, os.ErrNotExist) {
			skipped++
			continue
		}
		if err != nil {
			failed++
			a.Logger.Error().Err(err).Str("date", date).Msg("backfill snapshot unreadable")
			continue
		}

		result, err := svc.ScanTableOn(ctx, table, date)
		if err != nil {
			failed++
			a.Logger.Error().Err(err).Str("date", date).Msg("backfill failed")
			continue
		}
		processed++
		added += result.Appended.Added
		a.Logger.Debug().Str("date", date).
			Int("alerts", len(result.Alerts)).
			Int("dropped", result.Dropped).
			Msg("snapshot replayed")
	}

	a.Logger.Info().Int("processed", processed).Int("skipped", skipped).Int("failed", failed).Msg("backfill complete")
	fmt.Fprintf(a.Out, "処理 %d 日、スキップ %d 日、失敗 %d 日、新規履歴 %d 件\n", processed, skipped, failed, added)
	if failed > 0 {
		return errors.New("some snapshots failed to backfill; check the logs")
	}
	return nil
}
