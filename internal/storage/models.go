package storage

import (
	"fmt"
	"time"

	"price-floor-alerts/internal/category"
	"price-floor-alerts/internal/history"
)

// recordRow is the column-typed form of a history record.
type recordRow struct {
	Date           time.Time
	SourceName     string
	Category       string
	Label          string
	Price          int64
	Floor          int64
	Deficit        int64
	SuggestedPrice int64
	SourceLocator  string
	State          string
}

func rowFromRecord(r history.Record) (recordRow, error) {
	date, err := time.Parse(history.DateLayout, r.Date)
	if err != nil {
		return recordRow{}, fmt.Errorf("parse record date %q: %w", r.Date, err)
	}
	return recordRow{
		Date:           date,
		SourceName:     r.Source,
		Category:       string(r.Category),
		Label:          r.Label,
		Price:          r.Price,
		Floor:          r.Floor,
		Deficit:        r.Deficit,
		SuggestedPrice: r.SuggestedPrice,
		SourceLocator:  r.Locator,
		State:          string(r.State),
	}, nil
}

func (r recordRow) values() []any {
	return []any{
		r.Date, r.SourceName, r.Category, r.Label, r.Price, r.Floor,
		r.Deficit, r.SuggestedPrice, r.SourceLocator, r.State,
	}
}

func (r recordRow) record() (history.Record, error) {
	state, err := history.ParseState(r.State)
	if err != nil {
		return history.Record{}, err
	}
	return history.Record{
		Date:           r.Date.Format(history.DateLayout),
		Source:         r.SourceName,
		Category:       category.Normalize(r.Category),
		Label:          r.Label,
		Price:          r.Price,
		Floor:          r.Floor,
		Deficit:        r.Deficit,
		SuggestedPrice: r.SuggestedPrice,
		Locator:        r.SourceLocator,
		State:          state,
	}, nil
}
