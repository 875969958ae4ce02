package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"quoter/config"
	"quoter/internal/catalog"
	"quoter/internal/feed"
	"quoter/internal/memorystore"
	"quoter/internal/metrics"
	"quoter/internal/orderbook"
	"quoter/internal/pricing"
	"quoter/internal/view"
	"quoter/pkg/kraken"
	"quoter/pkg/storage/postgres"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fakeSource struct {
	calls atomic.Int32
	fail  atomic.Bool
	price atomic.Value // string
}

func (f *fakeSource) lastPrice() string {
	if p, ok := f.price.Load().(string); ok {
		return p
	}
	return "50000"
}

func (f *fakeSource) Fetch(ctx context.Context, pair catalog.Pair) (feed.Result, error) {
	f.calls.Add(1)
	if f.fail.Load() {
		return feed.Result{}, errors.New("upstream unavailable")
	}
	return feed.Result{
		Pair: pair,
		Tick: feed.Tick{LastPrice: dec(f.lastPrice())},
		Book: orderbook.Snapshot{
			Asks: []orderbook.Row{{Price: dec("50001"), Volume: dec("1")}, {Price: dec("50000.5"), Volume: dec("3")}},
			Bids: []orderbook.Row{{Price: dec("49999"), Volume: dec("2")}},
		},
		At: time.Now(),
	}, nil
}

type fakeOHLC struct {
	fail  atomic.Bool
	calls atomic.Int32
}

func (f *fakeOHLC) OHLC(ctx context.Context, symbol string, interval kraken.Interval) ([]kraken.Candle, error) {
	f.calls.Add(1)
	if f.fail.Load() {
		return nil, errors.New("ohlc unavailable")
	}
	out := make([]kraken.Candle, 300)
	for i := range out {
		out[i] = kraken.Candle{Time: int64(i * 300), Open: "1", High: "2", Low: "0.5", Close: "1.5", Volume: "10"}
	}
	return out, nil
}

type orderLog struct {
	mu     sync.Mutex
	orders []pricing.Order
}

func (o *orderLog) RecordOrder(ctx context.Context, order pricing.Order) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.orders = append(o.orders, order)
	return nil
}

type historyStore struct {
	orders  []postgres.OrderRecord
	candles []feed.Candle
	since   time.Time
}

func (h *historyStore) GetOrder(ctx context.Context, orderID string) (*postgres.OrderRecord, error) {
	for i := range h.orders {
		if h.orders[i].OrderID == orderID {
			return &h.orders[i], nil
		}
	}
	return nil, postgres.ErrNotFound
}

func (h *historyStore) ListOrders(ctx context.Context, pairID string, limit int) ([]postgres.OrderRecord, error) {
	var out []postgres.OrderRecord
	for _, o := range h.orders {
		if pairID == "" || o.Pair == pairID {
			out = append(out, o)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (h *historyStore) StoredCandles(ctx context.Context, pairID, interval string, since time.Time) ([]feed.Candle, error) {
	h.since = since
	return h.candles, nil
}

type fixture struct {
	srv    *Server
	source *fakeSource
	ohlc   *fakeOHLC
	orders *orderLog
}

func newFixture(t *testing.T, checks map[string]HealthCheck) *fixture {
	return newFixtureWith(t, checks, nil)
}

func newFixtureWith(t *testing.T, checks map[string]HealthCheck, history *historyStore) *fixture {
	t.Helper()
	logger := zap.NewNop()
	m := metrics.New()
	src := &fakeSource{}
	ohlc := &fakeOHLC{}
	orders := &orderLog{}

	desk := view.NewDesk(view.Pricing{
		Spread:       pricing.DefaultSpread,
		FeeRate:      pricing.DefaultFeeRate,
		DisplayDepth: orderbook.DefaultDepth,
	}, orders, m, logger)

	hub := feed.NewHub(feed.NewPoller(src, time.Second, logger, m), logger)
	t.Cleanup(hub.Close)
	trading := view.TradingDeps{
		Feeds:     hub,
		Desk:      desk,
		Snapshots: memorystore.NewSnapshotStore(),
		Metrics:   m,
		Logger:    logger,
	}
	view.PublishResults(trading)

	deps := Deps{
		Trading: trading,
		Chart: view.ChartDeps{
			Fetcher:  feed.NewCandleFetcher(ohlc),
			Interval: time.Minute,
			Points:   100,
			Store:    memorystore.NewCandleStore(),
			Metrics:  m,
			Logger:   logger,
		},
		Source: src,
		Checks: checks,
	}
	if history != nil {
		deps.Orders = history
		deps.Candles = history
	}
	srv := New(config.ServerConfig{Addr: ":0", ShutdownTimeout: time.Second}, deps)
	return &fixture{srv: srv, source: src, ohlc: ohlc, orders: orders}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

// go test -v --run TestHealth
func TestHealth(t *testing.T) {
	f := newFixture(t, map[string]HealthCheck{
		"redis": func(context.Context) error { return nil },
	})
	rec := f.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	f = newFixture(t, map[string]HealthCheck{
		"postgres": func(context.Context) error { return errors.New("down") },
	})
	rec = f.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "degraded")
}

// go test -v --run TestPairs
func TestPairs(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/api/pairs?mode=CRYPTO_CRYPTO", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var pairs []catalog.Pair
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pairs))
	assert.Len(t, pairs, 10)
	assert.Equal(t, "BTC_USDT", pairs[0].ID)

	rec = f.do(t, http.MethodGet, "/api/pairs", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pairs))
	assert.Len(t, pairs, 20)

	rec = f.do(t, http.MethodGet, "/api/pairs?mode=FIAT", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func getQuote(t *testing.T, f *fixture, pairID string) (quoteResponse, int) {
	t.Helper()
	rec := f.do(t, http.MethodGet, "/api/markets/"+pairID+"/quote", nil)
	var resp quoteResponse
	if rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return resp, rec.Code
}

// go test -v --run TestQuoteServesFreshSnapshot
func TestQuoteServesFreshSnapshot(t *testing.T) {
	f := newFixture(t, nil)

	for i := 0; i < 2; i++ {
		resp, code := getQuote(t, f, "BTC_EUR")
		require.Equal(t, http.StatusOK, code)
		assert.True(t, resp.Quote.Buy.Equal(dec("50000.002")))
		assert.True(t, resp.Quote.Sell.Equal(dec("49999.998")))
	}
	assert.Equal(t, int32(1), f.source.calls.Load(), "second request served from the snapshot")

	_, code := getQuote(t, f, "NOPE")
	assert.Equal(t, http.StatusNotFound, code)

	f.source.fail.Store(true)
	_, code = getQuote(t, f, "ETH_EUR")
	assert.Equal(t, http.StatusBadGateway, code)
}

// go test -v --run TestQuoteRefetchesStaleSnapshot
func TestQuoteRefetchesStaleSnapshot(t *testing.T) {
	f := newFixture(t, nil)

	resp, code := getQuote(t, f, "BTC_EUR")
	require.Equal(t, http.StatusOK, code)
	assert.True(t, resp.Quote.Mid.Equal(dec("50000")))

	// the market moves while nothing polls the pair
	f.source.price.Store("61000")
	f.srv.now = func() time.Time { return time.Now().Add(6 * time.Hour) }

	resp, code = getQuote(t, f, "BTC_EUR")
	require.Equal(t, http.StatusOK, code)
	assert.True(t, resp.Quote.Mid.Equal(dec("61000")), resp.Quote.Mid.String())
	assert.Equal(t, int32(2), f.source.calls.Load())

	rec := f.do(t, http.MethodPost, "/api/orders", orderRequest{Pair: "BTC_EUR", Side: "buy", Amount: "1000"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var order pricing.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &order))
	assert.True(t, order.Ticket.QuotedPrice.Decimal.Equal(dec("61000.002")), "orders priced from the refetched snapshot")

	// a stale snapshot is never served when the refetch fails
	f.source.fail.Store(true)
	f.srv.now = func() time.Time { return time.Now().Add(12 * time.Hour) }
	_, code = getQuote(t, f, "BTC_EUR")
	assert.Equal(t, http.StatusBadGateway, code)
}

// go test -v --run TestOrderBook
func TestOrderBook(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/api/markets/BTC_EUR/orderbook", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp orderBookResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Book.Asks, 2)
	assert.True(t, resp.Book.Asks[0].Price.Equal(dec("50000.5")), "asks sorted ascending")
	assert.True(t, resp.Book.SpreadAvailable)
	assert.True(t, resp.Book.Spread.Equal(dec("1.5")))
}

// go test -v --run TestCandles
func TestCandles(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/api/markets/BTC_EUR/candles?timeframe=1D", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp candlesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "5m", resp.Interval)
	assert.False(t, resp.Stale)
	assert.LessOrEqual(t, len(resp.Candles), 101)

	f.ohlc.fail.Store(true)
	rec = f.do(t, http.MethodGet, "/api/markets/BTC_EUR/candles?timeframe=1D", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Stale)
	assert.NotEmpty(t, resp.Candles)

	rec = f.do(t, http.MethodGet, "/api/markets/BTC_EUR/candles?timeframe=1W", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/markets/BTC_EUR/candles?timeframe=2D", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// go test -v --run TestOrders
func TestOrders(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/api/orders/preview", orderRequest{Pair: "BTC_EUR", Side: "buy", Amount: "1000"})
	require.Equal(t, http.StatusOK, rec.Code)
	var ticket pricing.Ticket
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ticket))
	assert.True(t, ticket.Valid)
	assert.True(t, ticket.EffectivePrice.Decimal.Equal(dec("49500.00198")))

	rec = f.do(t, http.MethodPost, "/api/orders", orderRequest{Pair: "BTC_EUR", Side: "sell", Amount: "1000,5"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var order pricing.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &order))
	assert.NotEmpty(t, order.ID)
	assert.True(t, order.Ticket.QuoteAmount.Decimal.Equal(dec("1000.5")))

	f.orders.mu.Lock()
	assert.Len(t, f.orders.orders, 1)
	f.orders.mu.Unlock()

	rec = f.do(t, http.MethodPost, "/api/orders", orderRequest{Pair: "BTC_EUR", Side: "sell", Amount: "abc"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/orders", orderRequest{Pair: "BTC_EUR", Side: "hold", Amount: "1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/orders/preview", orderRequest{Pair: "XXX", Side: "buy", Amount: "1"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// go test -v --run TestOrderHistory
func TestOrderHistory(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/api/orders/abc", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "history routes need a store")

	history := &historyStore{orders: []postgres.OrderRecord{
		{OrderID: "o-1", Pair: "BTC_EUR", Side: "buy", QuoteAmount: dec("1000")},
		{OrderID: "o-2", Pair: "ETH_EUR", Side: "sell", QuoteAmount: dec("50")},
	}}
	f = newFixtureWith(t, nil, history)

	rec = f.do(t, http.MethodGet, "/api/orders?pair=BTC_EUR", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "o-1", list[0]["id"])

	rec = f.do(t, http.MethodGet, "/api/orders?limit=0", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/orders/o-2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"side":"sell"`)

	rec = f.do(t, http.MethodGet, "/api/orders/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// go test -v --run TestCandlesFallBackToHistory
func TestCandlesFallBackToHistory(t *testing.T) {
	history := &historyStore{candles: []feed.Candle{
		{Time: time.Unix(0, 0).UTC(), Open: dec("1"), High: dec("2"), Low: dec("1"), Close: dec("2"), Volume: dec("5")},
	}}
	f := newFixtureWith(t, nil, history)
	f.ohlc.fail.Store(true)

	rec := f.do(t, http.MethodGet, "/api/markets/BTC_EUR/candles?timeframe=1W", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp candlesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Stale)
	assert.Len(t, resp.Candles, 1)
	assert.WithinDuration(t, time.Now().Add(-7*24*time.Hour), history.since, time.Minute, "336 bars of 30m")
}

// go test -v --run TestMetricsEndpoint
func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "quoter_active_views")
}

type wsMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func readUntil(t *testing.T, conn *websocket.Conn, kind string, accept func(json.RawMessage) bool) json.RawMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var msg wsMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == kind && (accept == nil || accept(msg.Payload)) {
			return msg.Payload
		}
	}
}

// go test -v --run TestWebSocketSession
func TestWebSocketSession(t *testing.T) {
	f := newFixture(t, nil)
	ts := httptest.NewServer(f.srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?pair=ETH_EUR"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	type state struct {
		Pair      catalog.Pair        `json:"pair"`
		LastPrice decimal.NullDecimal `json:"last_price"`
		Quote     *pricing.Quote      `json:"quote"`
		HasError  bool                `json:"has_error"`
	}
	var st state
	readUntil(t, conn, "state", func(raw json.RawMessage) bool {
		return json.Unmarshal(raw, &st) == nil && st.LastPrice.Valid
	})
	assert.Equal(t, "ETH_EUR", st.Pair.ID)
	require.NotNil(t, st.Quote)
	assert.True(t, st.Quote.Buy.Equal(dec("50000.002")))

	require.NoError(t, conn.WriteJSON(clientMessage{Op: "order", Side: "buy", Amount: "1000"}))
	raw := readUntil(t, conn, "order", nil)
	var order pricing.Order
	require.NoError(t, json.Unmarshal(raw, &order))
	assert.Equal(t, "ETH_EUR", order.PairID)

	require.NoError(t, conn.WriteJSON(clientMessage{Op: "select", Mode: "CRYPTO_CRYPTO", Pair: "SOL_USDT"}))
	readUntil(t, conn, "state", func(raw json.RawMessage) bool {
		return json.Unmarshal(raw, &st) == nil && st.Pair.ID == "SOL_USDT" && st.LastPrice.Valid
	})

	require.NoError(t, conn.WriteJSON(clientMessage{Op: "chart", Timeframe: "1D"}))
	readUntil(t, conn, "chart", nil)

	require.NoError(t, conn.WriteJSON(clientMessage{Op: "dance"}))
	readUntil(t, conn, "error", nil)
}

// go test -v --run TestWebSocketChartNeedsPair
func TestWebSocketChartNeedsPair(t *testing.T) {
	f := newFixture(t, nil)
	ts := httptest.NewServer(f.srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?mode=FIAT"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	readUntil(t, conn, "error", nil) // invalid mode, nothing selected

	require.NoError(t, conn.WriteJSON(clientMessage{Op: "chart", Timeframe: "1D"}))
	raw := readUntil(t, conn, "error", nil)
	assert.Contains(t, string(raw), "select a pair")
	assert.Never(t, func() bool { return f.ohlc.calls.Load() > 0 }, 100*time.Millisecond, 10*time.Millisecond)
}
