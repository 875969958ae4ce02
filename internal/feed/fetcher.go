// Package feed polls the public market-data API and normalizes ticker and
// depth payloads into a Tick and an order-book snapshot.
package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"quoter/internal/catalog"
	"quoter/internal/orderbook"
	"quoter/pkg/kraken"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// ErrNoPrice is returned when the last trade price is not a positive number.
var ErrNoPrice = errors.New("invalid last price")

// Tick is the most recent trade price of a pair.
type Tick struct {
	LastPrice decimal.Decimal `json:"last_price"`
}

// Result is one successful poll.
type Result struct {
	Pair catalog.Pair       `json:"pair"`
	Tick Tick               `json:"tick"`
	Book orderbook.Snapshot `json:"book"`
	At   time.Time          `json:"at"`
}

// MarketSource is the subset of the REST client the fetcher needs.
type MarketSource interface {
	Ticker(ctx context.Context, symbol string) (kraken.TickerInfo, error)
	Depth(ctx context.Context, symbol string, count int) (kraken.Depth, error)
}

type Fetcher struct {
	source     MarketSource
	depthCount int
	now        func() time.Time
}

func NewFetcher(source MarketSource, depthCount int) *Fetcher {
	return &Fetcher{source: source, depthCount: depthCount, now: time.Now}
}

// Fetch requests ticker and depth concurrently. If either request fails, or
// either payload is unusable, the whole tick fails.
func (f *Fetcher) Fetch(ctx context.Context, pair catalog.Pair) (Result, error) {
	var (
		ticker kraken.TickerInfo
		depth  kraken.Depth
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		ticker, err = f.source.Ticker(gctx, pair.Symbol)
		if err != nil {
			return fmt.Errorf("ticker %s: %w", pair.Symbol, err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		depth, err = f.source.Depth(gctx, pair.Symbol, f.depthCount)
		if err != nil {
			return fmt.Errorf("depth %s: %w", pair.Symbol, err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	last, err := decimal.NewFromString(ticker.LastPrice)
	if err != nil || !last.IsPositive() {
		return Result{}, fmt.Errorf("%w: %q", ErrNoPrice, ticker.LastPrice)
	}

	bids, err := toRows(depth.Bids)
	if err != nil {
		return Result{}, fmt.Errorf("depth %s bids: %w", pair.Symbol, err)
	}
	asks, err := toRows(depth.Asks)
	if err != nil {
		return Result{}, fmt.Errorf("depth %s asks: %w", pair.Symbol, err)
	}

	return Result{
		Pair: pair,
		Tick: Tick{LastPrice: last},
		Book: orderbook.Snapshot{Bids: bids, Asks: asks},
		At:   f.now(),
	}, nil
}

func toRows(levels []kraken.Level) ([]orderbook.Row, error) {
	rows := make([]orderbook.Row, 0, len(levels))
	for _, l := range levels {
		price, err := decimal.NewFromString(l.Price)
		if err != nil {
			return nil, fmt.Errorf("%w: price %q", kraken.ErrMalformed, l.Price)
		}
		volume, err := decimal.NewFromString(l.Volume)
		if err != nil {
			return nil, fmt.Errorf("%w: volume %q", kraken.ErrMalformed, l.Volume)
		}
		rows = append(rows, orderbook.Row{Price: price, Volume: volume})
	}
	return rows, nil
}
