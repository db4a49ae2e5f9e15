package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"price-floor-alerts/internal/alerting"
	"price-floor-alerts/internal/catalog"
	"price-floor-alerts/internal/category"
	"price-floor-alerts/internal/extract"
)

// SimulateAlert pushes one synthetic competitor offer through detection and
// the configured notifier. The ledger is not touched.
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting is not enabled")
	}

	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("no alert channel configured")
	}

	cat, ok := category.Lookup(opts.Category)
	if !ok {
		return fmt.Errorf("unknown category %q", opts.Category)
	}
	floor := opts.Floor
	if floor <= 0 {
		configured, ok := a.Config.CategoryFloors().Floor(cat)
		if !ok {
			return fmt.Errorf("no floor configured for %s; pass --floor", cat)
		}
		floor = configured
	}

	offer := extract.Offer{
		Source:   opts.Source,
		Category: cat,
		Label:    opts.Label,
		Price:    opts.Price,
	}
	alerts := alerting.Detect([]catalog.Row{{Offer: offer, Floor: &floor}})
	if len(alerts) == 0 {
		return fmt.Errorf("price %d is not below floor %d; nothing to send", opts.Price, floor)
	}

	note := alerting.Notification{
		Date:          time.Now().In(a.Config.Location()),
		Alerts:        alerts,
		Total:         len(alerts),
		AdditionalMsg: "(simulated)",
	}
	if err := notifier.Notify(ctx, note); err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "テスト通知を送信しました（提案 %s）。\n", a.yen(alerts[0].SuggestedPrice))
	return nil
}
