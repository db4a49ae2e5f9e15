package extract

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"golang.org/x/text/width"

	"price-floor-alerts/internal/category"
)

// ErrMissingColumn is returned when a table lacks one of the required columns.
var ErrMissingColumn = errors.New("required column missing")

// TableRow is an offer ingested from tabular input, optionally carrying its own floor.
type TableRow struct {
	Offer
	Floor *int64
}

// TableResult holds the accepted rows and the number of rejected ones.
type TableResult struct {
	Rows    []TableRow
	Dropped int
}

type tableRecord struct {
	Source   string `validate:"required"`
	Category string `validate:"required"`
	Label    string `validate:"required"`
	Price    int64  `validate:"gt=0"`
}

var validate = validator.New()

var columnAliases = map[string]string{
	"source":         "source",
	"source_name":    "source",
	"salon_name":     "source",
	"salon":          "source",
	"サロン名":           "source",
	"店舗名":            "source",
	"category":       "category",
	"genre":          "category",
	"ジャンル":           "category",
	"label":          "label",
	"name":           "label",
	"coupon_name":    "label",
	"クーポン名":          "label",
	"メニュー名":          "label",
	"price":          "price",
	"価格":             "price",
	"floor":          "floor",
	"lower_limit":    "floor",
	"下限":             "floor",
	"url":            "url",
	"locator":        "url",
	"source_locator": "url",
	"is_self":        "is_self",
	"自店":             "is_self",
}

var requiredColumns = []string{"source", "category", "label", "price"}

// ReadTable ingests CSV rows with a header line. Rows with a missing source,
// category, label or price are dropped and counted rather than failing the batch.
func ReadTable(r io.Reader) (TableResult, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return TableResult{}, nil
		}
		return TableResult{}, fmt.Errorf("read header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if canonical, ok := columnAliases[key]; ok {
			if _, seen := index[canonical]; !seen {
				index[canonical] = i
			}
		}
	}
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			return TableResult{}, fmt.Errorf("%w: %s", ErrMissingColumn, col)
		}
	}

	var result TableResult
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				result.Dropped++
				continue
			}
			return result, fmt.Errorf("read row: %w", err)
		}

		row, ok := tableRowFrom(record, index)
		if !ok {
			result.Dropped++
			continue
		}
		result.Rows = append(result.Rows, row)
	}
	return result, nil
}

func tableRowFrom(record []string, index map[string]int) (TableRow, bool) {
	field := func(name string) string {
		i, ok := index[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	rec := tableRecord{
		Source:   field("source"),
		Category: field("category"),
		Label:    field("label"),
	}
	if price, ok := CoerceInt(field("price")); ok {
		rec.Price = price
	}
	if err := validate.Struct(rec); err != nil {
		return TableRow{}, false
	}

	row := TableRow{
		Offer: Offer{
			Source:   rec.Source,
			Category: category.Normalize(rec.Category),
			Label:    truncateRunes(rec.Label, MaxLabelRunes),
			Price:    rec.Price,
			Locator:  field("url"),
			IsSelf:   parseBool(field("is_self")),
		},
	}
	if floor, ok := CoerceInt(field("floor")); ok && floor > 0 {
		row.Floor = &floor
	}
	return row, true
}

// CoerceInt parses a loosely formatted number such as "￥8,000" or "４５００円".
// Everything except digits, the decimal point and the minus sign is discarded;
// fractional parts are truncated.
func CoerceInt(s string) (int64, bool) {
	narrow := width.Narrow.String(s)
	var b strings.Builder
	for _, r := range narrow {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return 0, false
	}
	d, err := decimal.NewFromString(b.String())
	if err != nil {
		return 0, false
	}
	return d.IntPart(), true
}

func parseBool(s string) bool {
	switch strings.ToLower(s) {
	case "1", "true", "yes", "y", "self", "自店":
		return true
	}
	return false
}
