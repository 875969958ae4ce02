package orderbook

import (
	"sort"

	"github.com/shopspring/decimal"
)

// DefaultDepth is the number of levels shown per side.
const DefaultDepth = 7

var hundred = decimal.NewFromInt(100)

// Row is one price level of the book.
type Row struct {
	Price  decimal.Decimal `json:"price"`
	Volume decimal.Decimal `json:"volume"`
}

// Snapshot is the book as received on one poll. It is replaced, never merged.
type Snapshot struct {
	Bids []Row `json:"bids"` // descending by price
	Asks []Row `json:"asks"` // ascending by price
}

// Level is a displayed row with its visual weight in [0,1].
type Level struct {
	Row
	Intensity decimal.Decimal `json:"intensity"`
}

// Display is the aggregated, truncated book with its spread.
type Display struct {
	Asks []Level `json:"asks"`
	Bids []Level `json:"bids"`

	SpreadAvailable bool            `json:"spread_available"`
	Spread          decimal.Decimal `json:"spread"`
	SpreadPct       decimal.Decimal `json:"spread_pct"`
}

// Empty reports whether neither side has any level.
func (d Display) Empty() bool {
	return len(d.Asks) == 0 && len(d.Bids) == 0
}

// Aggregate sorts asks ascending and bids descending, keeps depth levels per
// side, and computes the spread between the best levels. The input is not
// modified.
func Aggregate(s Snapshot, depth int) Display {
	if depth <= 0 {
		depth = DefaultDepth
	}

	asks := sortedCopy(s.Asks, func(a, b Row) bool { return a.Price.LessThan(b.Price) })
	bids := sortedCopy(s.Bids, func(a, b Row) bool { return a.Price.GreaterThan(b.Price) })

	out := Display{
		Asks: weigh(truncate(asks, depth)),
		Bids: weigh(truncate(bids, depth)),
	}

	if len(out.Asks) > 0 && len(out.Bids) > 0 {
		bestAsk := out.Asks[0].Price
		bestBid := out.Bids[0].Price
		if !bestAsk.IsZero() {
			out.SpreadAvailable = true
			out.Spread = bestAsk.Sub(bestBid)
			out.SpreadPct = out.Spread.Div(bestAsk).Mul(hundred)
		}
	}
	return out
}

func sortedCopy(rows []Row, less func(a, b Row) bool) []Row {
	cp := make([]Row, len(rows))
	copy(cp, rows)
	sort.SliceStable(cp, func(i, j int) bool { return less(cp[i], cp[j]) })
	return cp
}

func truncate(rows []Row, n int) []Row {
	if len(rows) > n {
		return rows[:n]
	}
	return rows
}

// weigh assigns volume / max volume of the side; negative volumes count as 0.
func weigh(rows []Row) []Level {
	maxVol := decimal.Zero
	for _, r := range rows {
		if r.Volume.GreaterThan(maxVol) {
			maxVol = r.Volume
		}
	}

	levels := make([]Level, len(rows))
	for i, r := range rows {
		intensity := decimal.Zero
		if maxVol.IsPositive() && r.Volume.IsPositive() {
			intensity = r.Volume.Div(maxVol)
		}
		levels[i] = Level{Row: r, Intensity: intensity}
	}
	return levels
}
