// Package pricing derives a displayed buy/sell quote from the last trade price
// and converts a notional amount into a base quantity.
package pricing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

func ParseSide(s string) (Side, error) {
	switch Side(strings.ToLower(strings.TrimSpace(s))) {
	case SideBuy:
		return SideBuy, nil
	case SideSell:
		return SideSell, nil
	}
	return "", fmt.Errorf("invalid side: %q", s)
}

// SpreadModel is a fixed spread expressed in pips.
type SpreadModel struct {
	Pips    decimal.Decimal
	PipSize decimal.Decimal
}

// DefaultSpread is 40 pips of 0.0001.
var DefaultSpread = SpreadModel{
	Pips:    decimal.NewFromInt(40),
	PipSize: decimal.New(1, -4),
}

// NewSpreadModel builds a model from config floats.
func NewSpreadModel(pips, pipSize float64) SpreadModel {
	return SpreadModel{
		Pips:    decimal.NewFromFloat(pips),
		PipSize: decimal.NewFromFloat(pipSize),
	}
}

// Total is the full buy-sell distance.
func (m SpreadModel) Total() decimal.Decimal {
	return m.Pips.Mul(m.PipSize)
}

func (m SpreadModel) HalfSpread() decimal.Decimal {
	return m.Total().Div(decimal.NewFromInt(2))
}

// Quote is derived from the last price on every poll and never stored as authority.
type Quote struct {
	Mid  decimal.Decimal `json:"mid"`
	Buy  decimal.Decimal `json:"buy"`
	Sell decimal.Decimal `json:"sell"`
}

// ComputeQuote centers the spread on the last price. ok is false when no
// last price is known yet.
func ComputeQuote(lastPrice decimal.NullDecimal, m SpreadModel) (q Quote, ok bool) {
	if !lastPrice.Valid {
		return Quote{}, false
	}
	half := m.HalfSpread()
	mid := lastPrice.Decimal
	return Quote{
		Mid:  mid,
		Buy:  mid.Add(half),
		Sell: mid.Sub(half),
	}, true
}

// Price returns the side's quoted price.
func (q Quote) Price(side Side) decimal.Decimal {
	if side == SideSell {
		return q.Sell
	}
	return q.Buy
}
