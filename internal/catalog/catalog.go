package catalog

import (
	"strings"

	"price-floor-alerts/internal/category"
	"price-floor-alerts/internal/extract"
)

const (
	// MaxCompetitors is the number of competitor sources considered per scan.
	MaxCompetitors = 20

	// DefaultSelfName and DefaultCompetitorName are used when a source has no usable name.
	DefaultSelfName       = "自店"
	DefaultCompetitorName = "競合"
)

// Floors maps a category to its configured minimum price. Missing or
// non-positive entries mean no floor is configured.
type Floors map[category.Category]int64

// Floor returns the configured floor for c.
func (f Floors) Floor(c category.Category) (int64, bool) {
	v, ok := f[c]
	if !ok || v <= 0 {
		return 0, false
	}
	return v, true
}

// Source is one fetched origin together with the offers extracted from it.
type Source struct {
	Name    string
	Locator string
	Offers  []extract.Offer
}

// Row is the representative offer of one (source, category) pair.
type Row struct {
	extract.Offer
	Floor *int64
}

type entry struct {
	offer extract.Offer
	floor *int64
}

type groupKey struct {
	source   string
	category category.Category
}

// Build merges the self source and up to MaxCompetitors competitor sources into
// one row per (source, category), keeping the cheapest offer of each group, and
// then fills missing floors from the category defaults.
func Build(self Source, competitors []Source, floors Floors) []Row {
	var entries []entry

	selfName := strings.TrimSpace(self.Name)
	if selfName == "" {
		selfName = DefaultSelfName
	}
	for _, o := range self.Offers {
		o.Source = selfName
		o.Locator = self.Locator
		o.IsSelf = true
		entries = append(entries, entry{offer: o})
	}

	if len(competitors) > MaxCompetitors {
		competitors = competitors[:MaxCompetitors]
	}
	for _, comp := range competitors {
		name := strings.TrimSpace(comp.Name)
		if name == "" {
			name = DefaultCompetitorName
		}
		for _, o := range comp.Offers {
			o.Source = name
			o.Locator = comp.Locator
			o.IsSelf = false
			entries = append(entries, entry{offer: o})
		}
	}

	return overlay(dedupe(entries), floors)
}

// FromTable builds the catalog from tabular rows, honoring per-row floors and
// filling the rest from the category defaults.
func FromTable(rows []extract.TableRow, floors Floors) []Row {
	entries := make([]entry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, entry{offer: r.Offer, floor: r.Floor})
	}
	return overlay(dedupe(entries), floors)
}

// dedupe keeps the cheapest entry per (source, category). Ties keep the earliest
// entry; output follows the first appearance of each group.
func dedupe(entries []entry) []Row {
	rows := make([]Row, 0, len(entries))
	index := make(map[groupKey]int, len(entries))
	for _, e := range entries {
		key := groupKey{source: e.offer.Source, category: e.offer.Category}
		if i, ok := index[key]; ok {
			if e.offer.Price < rows[i].Price {
				rows[i] = Row{Offer: e.offer, Floor: e.floor}
			}
			continue
		}
		index[key] = len(rows)
		rows = append(rows, Row{Offer: e.offer, Floor: e.floor})
	}
	return rows
}

func overlay(rows []Row, floors Floors) []Row {
	for i := range rows {
		if rows[i].Floor != nil {
			continue
		}
		if v, ok := floors.Floor(rows[i].Category); ok {
			floor := v
			rows[i].Floor = &floor
		}
	}
	return rows
}
