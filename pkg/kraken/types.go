package kraken

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Response is the envelope of every Kraken public REST endpoint.
type Response struct {
	Error  []string        `json:"error"`  // non-empty means the request failed
	Result json.RawMessage `json:"result"` // payload keyed by exchange pair code
}

// tickerEntry is one pair of the Ticker result. Only the fields used are decoded.
type tickerEntry struct {
	Ask       []string `json:"a"` // [price, whole lot volume, lot volume]
	Bid       []string `json:"b"`
	LastTrade []string `json:"c"` // [price, lot volume]
	Volume    []string `json:"v"` // [today, last 24h]
}

// depthEntry holds [price, volume, timestamp] tuples with mixed JSON types.
type depthEntry struct {
	Asks [][]json.RawMessage `json:"asks"`
	Bids [][]json.RawMessage `json:"bids"`
}

// TickerInfo is the normalized ticker for one pair.
type TickerInfo struct {
	PairCode  string
	LastPrice string
	BestAsk   string
	BestBid   string
}

// Level is one raw book level as strings, exactly as sent upstream.
type Level struct {
	Price     string
	Volume    string
	Timestamp int64
}

type Depth struct {
	PairCode string
	Asks     []Level
	Bids     []Level
}

// Candle is one OHLC row.
type Candle struct {
	Time   int64  `json:"time"` // unix seconds
	Open   string `json:"open"`
	High   string `json:"high"`
	Low    string `json:"low"`
	Close  string `json:"close"`
	VWAP   string `json:"vwap"`
	Volume string `json:"volume"`
	Count  int64  `json:"count"`
}

// ErrMalformed is returned when the payload lacks an expected key or field.
var ErrMalformed = errors.New("kraken: malformed response")

// APIError carries the upstream error array.
type APIError struct {
	Endpoint string
	Messages []string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("kraken %s: %s", e.Endpoint, strings.Join(e.Messages, "; "))
}

// StatusError is a non-200 HTTP response.
type StatusError struct {
	Endpoint string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("kraken %s: status %d: %s", e.Endpoint, e.Code, e.Body)
}
