package history

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"price-floor-alerts/internal/alerting"
	"price-floor-alerts/internal/category"
)

const (
	// RetentionDays is how long records are kept. A record exactly this many
	// days old survives; one day older is purged.
	RetentionDays = 90
	// SummaryDays is the default rolling window of Summary.
	SummaryDays = 30
)

// SortKey selects the Query ordering.
type SortKey string

const (
	SortNewest  SortKey = "newest"
	SortOldest  SortKey = "oldest"
	SortDeficit SortKey = "deficit"
)

// ParseSortKey accepts newest, oldest and deficit. Empty selects newest.
func ParseSortKey(s string) (SortKey, error) {
	switch SortKey(strings.ToLower(strings.TrimSpace(s))) {
	case "", SortNewest:
		return SortNewest, nil
	case SortOldest:
		return SortOldest, nil
	case SortDeficit:
		return SortDeficit, nil
	}
	return "", fmt.Errorf("unknown sort key %q", s)
}

// Filter narrows a Query. Empty slices match everything.
type Filter struct {
	Categories []category.Category
	States     []State
	Sort       SortKey
}

// AppendResult reports what an Append changed.
type AppendResult struct {
	Added      int
	Duplicates int
	Purged     int
}

// CategoryCount is one bar of the summary breakdown.
type CategoryCount struct {
	Category category.Category
	Count    int
}

// Summary aggregates the records of a rolling window.
type Summary struct {
	Days           int
	Since          string
	Total          int
	Resolved       int
	ResolvedRate   decimal.Decimal // percent, 0-100
	AverageDeficit int64
	ByCategory     []CategoryCount
}

// Ledger is the alert history. Every read-modify-write is serialized; when the
// store implements Locker the cross-process lock is held as well.
type Ledger struct {
	mu     sync.Mutex
	store  Store
	locker Locker
	loc    *time.Location
	now    func() time.Time
	logger zerolog.Logger
}

// Option customizes a Ledger.
type Option func(*Ledger)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithLocation sets the zone that defines calendar days.
func WithLocation(loc *time.Location) Option {
	return func(l *Ledger) {
		if loc != nil {
			l.loc = loc
		}
	}
}

// NewLedger wraps store.
func NewLedger(store Store, logger zerolog.Logger, opts ...Option) *Ledger {
	l := &Ledger{
		store:  store,
		loc:    time.UTC,
		now:    time.Now,
		logger: logger.With().Str("component", "history").Logger(),
	}
	if locker, ok := store.(Locker); ok {
		l.locker = locker
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Today returns the current calendar day in the ledger zone.
func (l *Ledger) Today() string {
	return l.now().In(l.loc).Format(DateLayout)
}

func (l *Ledger) daysAgo(n int) string {
	return l.now().In(l.loc).AddDate(0, 0, -n).Format(DateLayout)
}

// Append commits alerts as unhandled records dated date, skipping any whose
// (date, source, label, category, price) already exists, then applies retention.
func (l *Ledger) Append(ctx context.Context, alerts []alerting.Alert, date string) (AppendResult, error) {
	var result AppendResult
	err := l.update(ctx, func(records []Record) ([]Record, bool) {
		seen := make(map[Key]struct{}, len(records)+len(alerts))
		for _, r := range records {
			seen[r.Key()] = struct{}{}
		}
		for _, a := range alerts {
			rec := FromAlert(a, date)
			if _, dup := seen[rec.Key()]; dup {
				result.Duplicates++
				continue
			}
			seen[rec.Key()] = struct{}{}
			records = append(records, rec)
			result.Added++
		}

		kept, purged := l.retain(records)
		result.Purged = purged
		return kept, true
	})
	if err != nil {
		return result, err
	}

	l.logger.Info().Str("date", date).
		Int("added", result.Added).
		Int("duplicates", result.Duplicates).
		Int("purged", result.Purged).
		Msg("history appended")
	return result, nil
}

// SetState overwrites the state of every record matching (date, source, label)
// and returns how many matched. No match is not an error.
func (l *Ledger) SetState(ctx context.Context, date, source, label string, state State) (int, error) {
	if _, err := ParseState(string(state)); err != nil {
		return 0, err
	}

	matched := 0
	err := l.update(ctx, func(records []Record) ([]Record, bool) {
		for i := range records {
			r := &records[i]
			if r.Date == date && r.Source == source && r.Label == label {
				r.State = state
				matched++
			}
		}
		return records, matched > 0
	})
	if err != nil {
		return 0, err
	}

	l.logger.Info().Str("date", date).
		Str("source", source).
		Str("label", label).
		Str("state", string(state)).
		Int("matched", matched).
		Msg("history state updated")
	return matched, nil
}

// Query returns a filtered, sorted copy of the ledger.
func (l *Ledger) Query(ctx context.Context, filter Filter) ([]Record, error) {
	records := l.snapshot(ctx)

	cats := make(map[category.Category]bool, len(filter.Categories))
	for _, c := range filter.Categories {
		cats[c] = true
	}
	states := make(map[State]bool, len(filter.States))
	for _, s := range filter.States {
		states[s] = true
	}

	out := make([]Record, 0, len(records))
	for _, r := range records {
		if len(cats) > 0 && !cats[r.Category] {
			continue
		}
		if len(states) > 0 && !states[r.State] {
			continue
		}
		out = append(out, r)
	}

	switch filter.Sort {
	case SortOldest:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	case SortDeficit:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Deficit > out[j].Deficit })
	default:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	}
	return out, nil
}

// Summary aggregates the last days calendar days. Non-positive days selects SummaryDays.
func (l *Ledger) Summary(ctx context.Context, days int) (Summary, error) {
	if days <= 0 {
		days = SummaryDays
	}
	since := l.daysAgo(days)
	summary := Summary{Days: days, Since: since, ResolvedRate: decimal.Zero}

	counts := make(map[category.Category]int)
	var deficitSum int64
	for _, r := range l.snapshot(ctx) {
		if r.Date < since {
			continue
		}
		summary.Total++
		deficitSum += r.Deficit
		if r.State == Resolved {
			summary.Resolved++
		}
		counts[r.Category]++
	}

	if summary.Total > 0 {
		total := decimal.NewFromInt(int64(summary.Total))
		summary.ResolvedRate = decimal.NewFromInt(int64(summary.Resolved)).Mul(decimal.NewFromInt(100)).Div(total)
		summary.AverageDeficit = deficitSum / int64(summary.Total)
	}
	for _, c := range category.All {
		if n := counts[c]; n > 0 {
			summary.ByCategory = append(summary.ByCategory, CategoryCount{Category: c, Count: n})
		}
	}
	return summary, nil
}

// Pending returns the unhandled records of date ranked like alerts: score,
// then deficit, both descending.
func (l *Ledger) Pending(ctx context.Context, date string) ([]Record, error) {
	var out []Record
	for _, r := range l.snapshot(ctx) {
		if r.Date == date && r.State == Unhandled {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if c := out[i].Score().Cmp(out[j].Score()); c != 0 {
			return c > 0
		}
		return out[i].Deficit > out[j].Deficit
	})
	return out, nil
}

func (l *Ledger) retain(records []Record) ([]Record, int) {
	cutoff := l.daysAgo(RetentionDays)
	kept := records[:0]
	purged := 0
	for _, r := range records {
		if r.Date < cutoff {
			purged++
			continue
		}
		kept = append(kept, r)
	}
	return kept, purged
}

// update runs fn against the current record set and saves the result when fn
// reports a change.
func (l *Ledger) update(ctx context.Context, fn func([]Record) ([]Record, bool)) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.locker != nil {
		unlock, err := l.locker.Lock(ctx)
		if err != nil {
			return fmt.Errorf("lock history: %w", err)
		}
		defer unlock()
	}

	records, changed := fn(l.load(ctx))
	if !changed {
		return nil
	}
	if err := l.store.Save(ctx, records); err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	return nil
}

func (l *Ledger) snapshot(ctx context.Context) []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load(ctx)
}

// load degrades to an empty ledger when the store cannot be read.
func (l *Ledger) load(ctx context.Context) []Record {
	records, err := l.store.Load(ctx)
	if err != nil {
		l.logger.Error().Err(err).Msg("history unreadable, starting empty")
		return nil
	}
	return records
}
