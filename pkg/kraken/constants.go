package kraken

import "fmt"

// Interval is the OHLC candle width in minutes, as the API expects it.
type Interval int

const (
	Interval1Min   Interval = 1
	Interval5Min   Interval = 5
	Interval15Min  Interval = 15
	Interval30Min  Interval = 30
	Interval60Min  Interval = 60
	Interval240Min Interval = 240
	IntervalDaily  Interval = 1440
	IntervalWeekly Interval = 10080
)

var validIntervals = map[Interval]string{
	Interval1Min:   "1m",
	Interval5Min:   "5m",
	Interval15Min:  "15m",
	Interval30Min:  "30m",
	Interval60Min:  "1h",
	Interval240Min: "4h",
	IntervalDaily:  "1d",
	IntervalWeekly: "1w",
}

// IsValid checks if the Interval is accepted by the OHLC endpoint.
func (i Interval) IsValid() bool {
	_, ok := validIntervals[i]
	return ok
}

// Label is the short form used for storage keys (e.g., "4h").
func (i Interval) Label() string {
	if l, ok := validIntervals[i]; ok {
		return l
	}
	return fmt.Sprintf("%dm", int(i))
}

// Timeframe is a chart range selectable in the market view.
type Timeframe string

const (
	Timeframe1D Timeframe = "1D"
	Timeframe1W Timeframe = "1W"
	Timeframe1M Timeframe = "1M"
	Timeframe3M Timeframe = "3M"
	Timeframe6M Timeframe = "6M"
	Timeframe1Y Timeframe = "1Y"
)

// TimeframeMeta maps a timeframe to the candle width and how many candles to keep.
type TimeframeMeta struct {
	Interval  Interval
	MaxPoints int
}

var timeframes = map[Timeframe]TimeframeMeta{
	Timeframe1D: {Interval: Interval5Min, MaxPoints: 288},
	Timeframe1W: {Interval: Interval30Min, MaxPoints: 336},
	Timeframe1M: {Interval: Interval240Min, MaxPoints: 180},
	Timeframe3M: {Interval: IntervalDaily, MaxPoints: 90},
	Timeframe6M: {Interval: IntervalDaily, MaxPoints: 180},
	Timeframe1Y: {Interval: IntervalDaily, MaxPoints: 365},
}

// Timeframes lists the selectable ranges in display order.
var Timeframes = []Timeframe{Timeframe1D, Timeframe1W, Timeframe1M, Timeframe3M, Timeframe6M, Timeframe1Y}

// ParseTimeframe parses a string into its TimeframeMeta.
func ParseTimeframe(s string) (TimeframeMeta, error) {
	meta, ok := timeframes[Timeframe(s)]
	if !ok {
		return TimeframeMeta{}, fmt.Errorf("invalid timeframe: %s", s)
	}
	return meta, nil
}
