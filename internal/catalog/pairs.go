// Package catalog holds the static list of tradable pairs and the mapping from
// a display selection to the upstream market-data symbol.
package catalog

import (
	"errors"
	"fmt"
	"strings"
)

// Mode groups pairs by what the user pays with.
type Mode string

const (
	ModeEURCrypto    Mode = "EUR_CRYPTO"
	ModeCryptoCrypto Mode = "CRYPTO_CRYPTO"
)

var ErrUnknownPair = errors.New("unknown pair")

// Pair is one entry of the catalog.
type Pair struct {
	ID     string `json:"id"`     // e.g., "BTC_EUR"
	Label  string `json:"label"`  // e.g., "EUR / BTC" (quote / base)
	Symbol string `json:"symbol"` // upstream symbol, e.g., "BTC/EUR"
	Mode   Mode   `json:"mode"`
}

// Selection is the instrument chosen in a view.
type Selection struct {
	Mode   Mode   `json:"mode"`
	PairID string `json:"pair"`
}

var eurCrypto = []Pair{
	{ID: "BTC_EUR", Label: "EUR / BTC", Symbol: "BTC/EUR"},
	{ID: "ETH_EUR", Label: "EUR / ETH", Symbol: "ETH/EUR"},
	{ID: "USDT_EUR", Label: "EUR / USDT", Symbol: "USDT/EUR"},
	{ID: "XRP_EUR", Label: "EUR / XRP", Symbol: "XRP/EUR"},
	{ID: "ADA_EUR", Label: "EUR / ADA", Symbol: "ADA/EUR"},
	{ID: "SOL_EUR", Label: "EUR / SOL", Symbol: "SOL/EUR"},
	{ID: "DOGE_EUR", Label: "EUR / DOGE", Symbol: "DOGE/EUR"},
	{ID: "LTC_EUR", Label: "EUR / LTC", Symbol: "LTC/EUR"},
	{ID: "DOT_EUR", Label: "EUR / DOT", Symbol: "DOT/EUR"},
	{ID: "LINK_EUR", Label: "EUR / LINK", Symbol: "LINK/EUR"},
}

var cryptoCrypto = []Pair{
	{ID: "BTC_USDT", Label: "BTC / USDT", Symbol: "BTC/USDT"},
	{ID: "ETH_USDT", Label: "ETH / USDT", Symbol: "ETH/USDT"},
	{ID: "SOL_USDT", Label: "SOL / USDT", Symbol: "SOL/USDT"},
	{ID: "XRP_USDT", Label: "XRP / USDT", Symbol: "XRP/USDT"},
	{ID: "ADA_USDT", Label: "ADA / USDT", Symbol: "ADA/USDT"},
	{ID: "DOGE_USDT", Label: "DOGE / USDT", Symbol: "DOGE/USDT"},
	{ID: "LTC_USDT", Label: "LTC / USDT", Symbol: "LTC/USDT"},
	{ID: "DOT_USDT", Label: "DOT / USDT", Symbol: "DOT/USDT"},
	{ID: "LINK_USDT", Label: "LINK / USDT", Symbol: "LINK/USDT"},
	{ID: "BTC_ETH", Label: "BTC / ETH", Symbol: "BTC/ETH"},
}

var byID = map[string]Pair{}

func init() {
	for i := range eurCrypto {
		eurCrypto[i].Mode = ModeEURCrypto
		byID[eurCrypto[i].ID] = eurCrypto[i]
	}
	for i := range cryptoCrypto {
		cryptoCrypto[i].Mode = ModeCryptoCrypto
		byID[cryptoCrypto[i].ID] = cryptoCrypto[i]
	}
}

// ParseMode parses "EUR_CRYPTO" or "CRYPTO_CRYPTO" (case-insensitive).
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToUpper(strings.TrimSpace(s))) {
	case ModeEURCrypto:
		return ModeEURCrypto, nil
	case ModeCryptoCrypto:
		return ModeCryptoCrypto, nil
	}
	return "", fmt.Errorf("invalid pair mode: %q", s)
}

// Options returns a copy of the pairs of the given mode, in catalog order.
func Options(mode Mode) []Pair {
	var src []Pair
	switch mode {
	case ModeEURCrypto:
		src = eurCrypto
	case ModeCryptoCrypto:
		src = cryptoCrypto
	}
	out := make([]Pair, len(src))
	copy(out, src)
	return out
}

// All returns every pair of both modes.
func All() []Pair {
	return append(Options(ModeEURCrypto), Options(ModeCryptoCrypto)...)
}

func Lookup(id string) (Pair, bool) {
	p, ok := byID[id]
	return p, ok
}

// Resolve returns the selected pair within its mode. An id that is unknown,
// or belongs to the other mode, falls back to the first pair of the mode.
func Resolve(sel Selection) (Pair, error) {
	opts := Options(sel.Mode)
	if len(opts) == 0 {
		return Pair{}, fmt.Errorf("resolve %q: %w", sel.PairID, ErrUnknownPair)
	}
	for _, p := range opts {
		if p.ID == sel.PairID {
			return p, nil
		}
	}
	return opts[0], nil
}

// QuoteSymbol is the currency the amount is entered in ("EUR" for "EUR / BTC").
func (p Pair) QuoteSymbol() string {
	q, _ := p.symbols()
	return q
}

// BaseSymbol is the currency the quantity is expressed in ("BTC" for "EUR / BTC").
func (p Pair) BaseSymbol() string {
	_, b := p.symbols()
	return b
}

func (p Pair) symbols() (string, string) {
	parts := strings.Split(p.Label, "/")
	if len(parts) != 2 {
		return "", ""
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
}
