package alerting

import (
	"sort"

	"github.com/shopspring/decimal"

	"price-floor-alerts/internal/catalog"
	"price-floor-alerts/internal/category"
)

var (
	deficitWeight  = decimal.NewFromInt(60)
	priorityWeight = decimal.NewFromInt(40)
	lowestRank     = decimal.NewFromInt(category.LowestPriority)
	hundred        = decimal.NewFromInt(100)
	two            = decimal.NewFromInt(2)
)

// Alert is a competitor row priced below its category floor.
type Alert struct {
	catalog.Row
	Deficit        int64
	DeficitRate    decimal.Decimal
	PriorityRank   int
	Score          decimal.Decimal
	SuggestedPrice int64
}

// Detect returns one alert for every competitor row priced below its floor, ranked.
func Detect(rows []catalog.Row) []Alert {
	alerts := make([]Alert, 0)
	for _, row := range rows {
		if row.IsSelf || row.Floor == nil || row.Price >= *row.Floor {
			continue
		}
		alerts = append(alerts, newAlert(row))
	}
	Rank(alerts)
	return alerts
}

func newAlert(row catalog.Row) Alert {
	floor := *row.Floor
	deficit := floor - row.Price
	rate := DeficitRate(deficit, floor)
	rank := category.PriorityRank(row.Category)

	return Alert{
		Row:            row,
		Deficit:        deficit,
		DeficitRate:    rate,
		PriorityRank:   rank,
		Score:          Score(rate, rank),
		SuggestedPrice: SuggestedPrice(floor, row.Price),
	}
}

// DeficitRate is deficit as a fraction of floor. A non-positive floor yields zero.
func DeficitRate(deficit, floor int64) decimal.Decimal {
	if floor <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(deficit).Div(decimal.NewFromInt(floor))
}

// Score weighs the deficit rate against category priority on a 0-100 scale.
func Score(deficitRate decimal.Decimal, priorityRank int) decimal.Decimal {
	priority := lowestRank.Sub(decimal.NewFromInt(int64(priorityRank))).Div(lowestRank)
	return deficitRate.Mul(deficitWeight).Add(priority.Mul(priorityWeight))
}

// SuggestedPrice is the midpoint of floor and price rounded to the nearest
// hundred, with halves going to the even hundred.
func SuggestedPrice(floor, price int64) int64 {
	mid := decimal.NewFromInt(floor + price).Div(two)
	return mid.Div(hundred).RoundBank(0).Mul(hundred).IntPart()
}

// Rank orders alerts by score, then deficit, both descending. Ties keep their
// input order.
func Rank(alerts []Alert) {
	sort.SliceStable(alerts, func(i, j int) bool {
		if c := alerts[i].Score.Cmp(alerts[j].Score); c != 0 {
			return c > 0
		}
		return alerts[i].Deficit > alerts[j].Deficit
	})
}

// Top returns at most n leading alerts. Non-positive n returns all of them.
func Top(alerts []Alert, n int) []Alert {
	if n <= 0 || n >= len(alerts) {
		return alerts
	}
	return alerts[:n]
}
