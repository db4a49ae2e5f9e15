package history

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"price-floor-alerts/internal/category"
)

// Columns is the persisted column order.
var Columns = []string{
	"date", "source_name", "category", "label", "price", "floor",
	"deficit", "suggested_price", "source_locator", "state",
}

// legacy headers written by earlier versions of the ledger file
var columnAliases = map[string]string{
	"salon_name":  "source_name",
	"genre":       "category",
	"coupon_name": "label",
	"lower_limit": "floor",
	"diff":        "deficit",
	"url":         "source_locator",
}

// CSVStore keeps the ledger in a single CSV file.
type CSVStore struct {
	path string
}

// NewCSVStore returns a store backed by the file at path.
func NewCSVStore(path string) *CSVStore {
	return &CSVStore{path: path}
}

// Path returns the backing file path.
func (s *CSVStore) Path() string { return s.path }

// Load reads every well-formed row. A missing file is an empty ledger; rows
// with unparsable dates or numbers are skipped.
func (s *CSVStore) Load(_ context.Context) ([]Record, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open history file: %w", err)
	}
	defer f.Close()
	return ReadCSV(f)
}

// ReadCSV decodes ledger rows from r. Malformed rows are skipped; only header
// and I/O failures fail the whole file.
func ReadCSV(r io.Reader) ([]Record, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("read history header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if alias, ok := columnAliases[key]; ok {
			key = alias
		}
		index[key] = i
	}
	for _, col := range []string{"date", "source_name", "label", "price"} {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("history file missing column %q", col)
		}
	}

	var records []Record
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				continue
			}
			return nil, fmt.Errorf("read history row: %w", err)
		}
		if rec, ok := recordFrom(row, index); ok {
			records = append(records, rec)
		}
	}
	return records, nil
}

func recordFrom(row []string, index map[string]int) (Record, bool) {
	field := func(name string) string {
		i, ok := index[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}
	number := func(name string) (int64, bool) {
		v := field(name)
		if v == "" {
			return 0, true
		}
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}
		return int64(n), true
	}

	date := field("date")
	if _, err := time.Parse(DateLayout, date); err != nil {
		return Record{}, false
	}
	rec := Record{
		Date:     date,
		Source:   field("source_name"),
		Category: category.Normalize(field("category")),
		Label:    field("label"),
		Locator:  field("source_locator"),
		State:    Unhandled,
	}
	var ok bool
	if rec.Price, ok = number("price"); !ok {
		return Record{}, false
	}
	if rec.Floor, ok = number("floor"); !ok {
		return Record{}, false
	}
	if rec.Deficit, ok = number("deficit"); !ok {
		return Record{}, false
	}
	if rec.SuggestedPrice, ok = number("suggested_price"); !ok {
		return Record{}, false
	}
	if st := field("state"); st != "" {
		state, err := ParseState(st)
		if err != nil {
			return Record{}, false
		}
		rec.State = state
	}
	return rec, true
}

// Save rewrites the whole file through a temporary file and rename.
func (s *CSVStore) Save(_ context.Context, records []Record) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create history dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".history-*.csv")
	if err != nil {
		return fmt.Errorf("create temp history file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := WriteCSV(tmp, records); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp history file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace history file: %w", err)
	}
	return nil
}

// WriteCSV encodes records with the Columns header.
func WriteCSV(w io.Writer, records []Record) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(Columns); err != nil {
		return fmt.Errorf("write history header: %w", err)
	}
	for _, r := range records {
		row := []string{
			r.Date,
			r.Source,
			string(r.Category),
			r.Label,
			strconv.FormatInt(r.Price, 10),
			strconv.FormatInt(r.Floor, 10),
			strconv.FormatInt(r.Deficit, 10),
			strconv.FormatInt(r.SuggestedPrice, 10),
			r.Locator,
			string(r.State),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("write history row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush history rows: %w", err)
	}
	return nil
}

var _ Store = (*CSVStore)(nil)
