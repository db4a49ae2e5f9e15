package history

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"price-floor-alerts/internal/alerting"
	"price-floor-alerts/internal/category"
)

// DateLayout is the calendar-day format used for Record.Date.
const DateLayout = time.DateOnly

// ErrUnknownState is returned when a workflow state name is not recognised.
var ErrUnknownState = errors.New("unknown history state")

// State is the operator workflow state of a record.
type State string

const (
	Unhandled State = "unhandled"
	Resolved  State = "resolved"
	Snoozed   State = "snoozed"
)

// States lists every workflow state.
var States = []State{Unhandled, Resolved, Snoozed}

var stateLabels = map[State]string{
	Unhandled: "未対応",
	Resolved:  "対応済み",
	Snoozed:   "スヌーズ",
}

// Label returns the Japanese display name of s.
func (s State) Label() string {
	return stateLabels[s]
}

// ParseState accepts the canonical ids and their Japanese labels.
func ParseState(s string) (State, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for _, st := range States {
		if key == string(st) || key == stateLabels[st] {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownState, s)
}

// Record is one committed alert.
type Record struct {
	Date           string
	Source         string
	Category       category.Category
	Label          string
	Price          int64
	Floor          int64
	Deficit        int64
	SuggestedPrice int64
	Locator        string
	State          State
}

// Key identifies a record for deduplication.
type Key struct {
	Date     string
	Source   string
	Label    string
	Category category.Category
	Price    int64
}

// Key returns the deduplication key of r.
func (r Record) Key() Key {
	return Key{Date: r.Date, Source: r.Source, Label: r.Label, Category: r.Category, Price: r.Price}
}

// String renders the key as a stable, pipe-separated identifier.
func (k Key) String() string {
	return fmt.Sprintf("%s|%s|%s|%s|%d", k.Date, k.Source, k.Label, k.Category, k.Price)
}

// Score recomputes the alert score of r from its stored figures.
func (r Record) Score() decimal.Decimal {
	return alerting.Score(alerting.DeficitRate(r.Deficit, r.Floor), category.PriorityRank(r.Category))
}

// FromAlert builds an unhandled record for a on date.
func FromAlert(a alerting.Alert, date string) Record {
	var floor int64
	if a.Floor != nil {
		floor = *a.Floor
	}
	return Record{
		Date:           date,
		Source:         a.Source,
		Category:       a.Category,
		Label:          a.Label,
		Price:          a.Price,
		Floor:          floor,
		Deficit:        a.Deficit,
		SuggestedPrice: a.SuggestedPrice,
		Locator:        a.Locator,
		State:          Unhandled,
	}
}
