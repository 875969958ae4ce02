package feed

import (
	"context"
	"fmt"
	"time"

	"quoter/internal/catalog"
	"quoter/pkg/kraken"

	"github.com/shopspring/decimal"
)

// Candle is one normalized OHLC bar.
type Candle struct {
	Time   time.Time       `json:"time"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume decimal.Decimal `json:"volume"`
}

type OHLCSource interface {
	OHLC(ctx context.Context, symbol string, interval kraken.Interval) ([]kraken.Candle, error)
}

type CandleFetcher struct {
	source OHLCSource
}

func NewCandleFetcher(source OHLCSource) *CandleFetcher {
	return &CandleFetcher{source: source}
}

// Fetch returns the most recent candles for the timeframe, oldest first,
// capped at the timeframe's point count.
func (f *CandleFetcher) Fetch(ctx context.Context, pair catalog.Pair, tf kraken.Timeframe) ([]Candle, error) {
	meta, err := kraken.ParseTimeframe(string(tf))
	if err != nil {
		return nil, err
	}

	raw, err := f.source.OHLC(ctx, pair.Symbol, meta.Interval)
	if err != nil {
		return nil, fmt.Errorf("ohlc %s: %w", pair.Symbol, err)
	}
	if len(raw) > meta.MaxPoints {
		raw = raw[len(raw)-meta.MaxPoints:]
	}

	out := make([]Candle, 0, len(raw))
	for _, c := range raw {
		candle, err := toCandle(c)
		if err != nil {
			return nil, fmt.Errorf("ohlc %s: %w", pair.Symbol, err)
		}
		out = append(out, candle)
	}
	return out, nil
}

func toCandle(c kraken.Candle) (Candle, error) {
	var vals [5]decimal.Decimal
	for i, s := range []string{c.Open, c.High, c.Low, c.Close, c.Volume} {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return Candle{}, fmt.Errorf("%w: candle at %d: %q", kraken.ErrMalformed, c.Time, s)
		}
		vals[i] = d
	}
	return Candle{
		Time:   time.Unix(c.Time, 0).UTC(),
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: vals[4],
	}, nil
}

// Downsample keeps every ceil(n/max)-th element and always the last one.
func Downsample[T any](data []T, max int) []T {
	if max <= 0 || len(data) <= max {
		return data
	}
	step := (len(data) + max - 1) / max

	out := make([]T, 0, max+1)
	last := -1
	for i := 0; i < len(data); i += step {
		out = append(out, data[i])
		last = i
	}
	if last != len(data)-1 {
		out = append(out, data[len(data)-1])
	}
	return out
}
