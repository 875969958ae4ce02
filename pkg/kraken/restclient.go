package kraken

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

type RESTClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
}

type Option func(*RESTClient)

// WithRateLimit caps outgoing requests per second.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *RESTClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
		}
	}
}

// WithBreaker trips after maxFailures consecutive failed requests and
// rejects calls for timeout before probing again.
func WithBreaker(maxFailures uint32, timeout time.Duration) Option {
	return func(c *RESTClient) {
		st := gobreaker.Settings{Name: "kraken"}
		st.ReadyToTrip = func(counts gobreaker.Counts) bool { return counts.ConsecutiveFailures >= maxFailures }
		st.Interval = 0
		st.Timeout = timeout
		c.breaker = gobreaker.NewCircuitBreaker(st)
	}
}

// WithHTTPClient replaces the default client, e.g. with an httptest one.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *RESTClient) { c.httpClient = hc }
}

func NewRESTClient(baseURL string, timeout time.Duration, opts ...Option) *RESTClient {
	c := &RESTClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ticker fetches the ticker for one pair symbol (e.g., "BTC/EUR").
func (c *RESTClient) Ticker(ctx context.Context, symbol string) (TickerInfo, error) {
	q := url.Values{"pair": {symbol}}
	result, err := c.get(ctx, "Ticker", q)
	if err != nil {
		return TickerInfo{}, err
	}

	code, raw, err := pickPair(result)
	if err != nil {
		return TickerInfo{}, err
	}

	var entry tickerEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return TickerInfo{}, fmt.Errorf("%w: ticker %s: %v", ErrMalformed, code, err)
	}
	if len(entry.LastTrade) == 0 || entry.LastTrade[0] == "" {
		return TickerInfo{}, fmt.Errorf("%w: ticker %s has no last trade", ErrMalformed, code)
	}

	info := TickerInfo{PairCode: code, LastPrice: entry.LastTrade[0]}
	if len(entry.Ask) > 0 {
		info.BestAsk = entry.Ask[0]
	}
	if len(entry.Bid) > 0 {
		info.BestBid = entry.Bid[0]
	}
	return info, nil
}

// Depth fetches up to count levels per side.
func (c *RESTClient) Depth(ctx context.Context, symbol string, count int) (Depth, error) {
	q := url.Values{"pair": {symbol}}
	if count > 0 {
		q.Set("count", strconv.Itoa(count))
	}
	result, err := c.get(ctx, "Depth", q)
	if err != nil {
		return Depth{}, err
	}

	code, raw, err := pickPair(result)
	if err != nil {
		return Depth{}, err
	}

	var entry depthEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return Depth{}, fmt.Errorf("%w: depth %s: %v", ErrMalformed, code, err)
	}

	asks, err := parseLevels(entry.Asks)
	if err != nil {
		return Depth{}, fmt.Errorf("depth %s asks: %w", code, err)
	}
	bids, err := parseLevels(entry.Bids)
	if err != nil {
		return Depth{}, fmt.Errorf("depth %s bids: %w", code, err)
	}

	return Depth{PairCode: code, Asks: asks, Bids: bids}, nil
}

// OHLC fetches candles of the given width, oldest first.
func (c *RESTClient) OHLC(ctx context.Context, symbol string, interval Interval) ([]Candle, error) {
	if !interval.IsValid() {
		return nil, fmt.Errorf("invalid interval: %d", int(interval))
	}
	q := url.Values{
		"pair":     {symbol},
		"interval": {strconv.Itoa(int(interval))},
	}
	result, err := c.get(ctx, "OHLC", q)
	if err != nil {
		return nil, err
	}

	code, raw, err := pickPair(result)
	if err != nil {
		return nil, err
	}

	var rows [][]json.RawMessage
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("%w: ohlc %s: %v", ErrMalformed, code, err)
	}
	return parseCandles(rows), nil
}

// get performs GET /0/public/{endpoint} and returns the result payload.
func (c *RESTClient) get(ctx context.Context, endpoint string, q url.Values) (json.RawMessage, error) {
	if c.breaker == nil {
		return c.doGet(ctx, endpoint, q)
	}
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.doGet(ctx, endpoint, q)
	})
	if err != nil {
		return nil, err
	}
	return out.(json.RawMessage), nil
}

func (c *RESTClient) doGet(ctx context.Context, endpoint string, q url.Values) (json.RawMessage, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	u := fmt.Sprintf("%s/0/public/%s?%s", c.baseURL, endpoint, q.Encode())

	// Construct the GET request with context for timeout/cancel support
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{Endpoint: endpoint, Code: resp.StatusCode, Body: string(body)}
	}

	var rawResp Response
	if err := json.NewDecoder(resp.Body).Decode(&rawResp); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrMalformed, endpoint, err)
	}
	if len(rawResp.Error) > 0 {
		return nil, &APIError{Endpoint: endpoint, Messages: rawResp.Error}
	}
	if len(rawResp.Result) == 0 {
		return nil, fmt.Errorf("%w: %s has no result", ErrMalformed, endpoint)
	}

	return rawResp.Result, nil
}
