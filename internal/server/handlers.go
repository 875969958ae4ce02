package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"quoter/internal/catalog"
	"quoter/internal/feed"
	"quoter/internal/orderbook"
	"quoter/internal/pricing"
	"quoter/internal/view"
	"quoter/pkg/kraken"
	"quoter/pkg/storage/postgres"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type quoteResponse struct {
	Pair      catalog.Pair    `json:"pair"`
	LastPrice decimal.Decimal `json:"last_price"`
	Quote     pricing.Quote   `json:"quote"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type orderBookResponse struct {
	Pair      catalog.Pair      `json:"pair"`
	Book      orderbook.Display `json:"book"`
	UpdatedAt time.Time         `json:"updated_at"`
}

type candlesResponse struct {
	Pair      catalog.Pair     `json:"pair"`
	Timeframe kraken.Timeframe `json:"timeframe"`
	Interval  string           `json:"interval"`
	Stale     bool             `json:"stale"`
	Candles   []feed.Candle    `json:"candles"`
}

const (
	defaultOrderLimit = 50
	maxOrderLimit     = 500
)

type orderRequest struct {
	Pair   string `json:"pair"`
	Side   string `json:"side"`
	Amount string `json:"amount"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status, code := "ok", http.StatusOK
	checks := make(map[string]string, len(s.deps.Checks))
	for name, check := range s.deps.Checks {
		if err := check(ctx); err != nil {
			checks[name] = err.Error()
			status, code = "degraded", http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	writeJSON(w, code, map[string]any{"status": status, "checks": checks})
}

func (s *Server) handlePairs(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("mode")
	if raw == "" {
		writeJSON(w, http.StatusOK, catalog.All())
		return
	}
	mode, err := catalog.ParseMode(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, catalog.Options(mode))
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	pair, ok := s.pathPair(w, r)
	if !ok {
		return
	}
	res, err := s.latest(r.Context(), pair)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	q, _ := s.deps.Trading.Desk.Quote(decimal.NewNullDecimal(res.Tick.LastPrice))
	writeJSON(w, http.StatusOK, quoteResponse{
		Pair:      pair,
		LastPrice: res.Tick.LastPrice,
		Quote:     q,
		UpdatedAt: res.At,
	})
}

func (s *Server) handleOrderBook(w http.ResponseWriter, r *http.Request) {
	pair, ok := s.pathPair(w, r)
	if !ok {
		return
	}
	res, err := s.latest(r.Context(), pair)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, orderBookResponse{
		Pair:      pair,
		Book:      orderbook.Aggregate(res.Book, s.deps.Trading.Desk.Pricing().DisplayDepth),
		UpdatedAt: res.At,
	})
}

// handleCandles fetches once per request. When the upstream fails, the last
// stored series is served with stale set.
func (s *Server) handleCandles(w http.ResponseWriter, r *http.Request) {
	pair, ok := s.pathPair(w, r)
	if !ok {
		return
	}
	tf := kraken.Timeframe(r.URL.Query().Get("timeframe"))
	if tf == "" {
		tf = kraken.Timeframe1D
	}
	meta, err := kraken.ParseTimeframe(string(tf))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	chart := s.deps.Chart
	resp := candlesResponse{Pair: pair, Timeframe: tf, Interval: meta.Interval.Label()}

	candles, err := chart.Fetcher.Fetch(r.Context(), pair, tf)
	switch {
	case err == nil:
		if chart.Store != nil {
			chart.Store.Set(pair.ID, tf, candles)
		}
		if chart.Recorder != nil {
			if rerr := chart.Recorder.RecordCandles(r.Context(), pair.ID, resp.Interval, candles); rerr != nil {
				s.logger.Warn("failed to record candles", zap.String("pair", pair.ID), zap.Error(rerr))
			}
		}
	case chart.Store != nil && len(chart.Store.Get(pair.ID, tf)) > 0:
		s.logger.Warn("serving stored candles", zap.String("pair", pair.ID), zap.Error(err))
		candles = chart.Store.Get(pair.ID, tf)
		resp.Stale = true
	default:
		stored := s.storedCandles(r.Context(), pair, meta)
		if len(stored) == 0 {
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		s.logger.Warn("serving persisted candles", zap.String("pair", pair.ID), zap.Error(err))
		candles = stored
		resp.Stale = true
	}

	resp.Candles = feed.Downsample(candles, chart.Points)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	pair, side, req, ok := s.decodeOrder(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Trading.Desk.Preview(s.lastPrice(r.Context(), pair), side, req.Amount))
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	pair, side, req, ok := s.decodeOrder(w, r)
	if !ok {
		return
	}
	order, err := s.deps.Trading.Desk.Confirm(r.Context(), pair.ID, s.lastPrice(r.Context(), pair), side, req.Amount)
	if errors.Is(err, view.ErrInvalidOrder) {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

// GET /api/orders?pair=BTC_EUR&limit=50
func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	pairID := q.Get("pair")
	if pairID != "" {
		if _, ok := catalog.Lookup(pairID); !ok {
			writeError(w, http.StatusNotFound, catalog.ErrUnknownPair.Error())
			return
		}
	}

	limit := defaultOrderLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxOrderLimit {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and "+strconv.Itoa(maxOrderLimit))
			return
		}
		limit = n
	}

	orders, err := s.deps.Orders.ListOrders(r.Context(), pairID, limit)
	if err != nil {
		s.logger.Error("failed to list orders", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list orders")
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := s.deps.Orders.GetOrder(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, postgres.ErrNotFound) {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to get order", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to get order")
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (s *Server) decodeOrder(w http.ResponseWriter, r *http.Request) (catalog.Pair, pricing.Side, orderRequest, bool) {
	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return catalog.Pair{}, "", req, false
	}
	pair, found := catalog.Lookup(req.Pair)
	if !found {
		writeError(w, http.StatusNotFound, catalog.ErrUnknownPair.Error())
		return catalog.Pair{}, "", req, false
	}
	side, err := pricing.ParseSide(req.Side)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return catalog.Pair{}, "", req, false
	}
	return pair, side, req, true
}

func (s *Server) pathPair(w http.ResponseWriter, r *http.Request) (catalog.Pair, bool) {
	pair, ok := catalog.Lookup(mux.Vars(r)["pair"])
	if !ok {
		writeError(w, http.StatusNotFound, catalog.ErrUnknownPair.Error())
	}
	return pair, ok
}

// latest returns the stored snapshot while it is fresh. A missing snapshot,
// or one older than two poll intervals, is refetched and stored.
func (s *Server) latest(ctx context.Context, pair catalog.Pair) (feed.Result, error) {
	if store := s.deps.Trading.Snapshots; store != nil {
		if res, ok := store.Get(pair.ID); ok && s.now().Sub(res.At) <= s.maxSnapshotAge() {
			return res, nil
		}
	}

	res, err := s.deps.Source.Fetch(ctx, pair)
	if err != nil {
		return feed.Result{}, err
	}
	if store := s.deps.Trading.Snapshots; store != nil {
		store.Put(res)
	}
	return res, nil
}

// lastPrice is null when no price can be obtained, which makes the ticket invalid.
func (s *Server) lastPrice(ctx context.Context, pair catalog.Pair) decimal.NullDecimal {
	res, err := s.latest(ctx, pair)
	if err != nil {
		s.logger.Warn("no price for order ticket", zap.String("pair", pair.ID), zap.Error(err))
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(res.Tick.LastPrice)
}

func (s *Server) maxSnapshotAge() time.Duration {
	return 2 * s.deps.Trading.Feeds.Interval()
}

// storedCandles reads the timeframe's range from the candle history, if any.
func (s *Server) storedCandles(ctx context.Context, pair catalog.Pair, meta kraken.TimeframeMeta) []feed.Candle {
	if s.deps.Candles == nil {
		return nil
	}
	span := time.Duration(meta.MaxPoints) * time.Duration(meta.Interval) * time.Minute
	candles, err := s.deps.Candles.StoredCandles(ctx, pair.ID, meta.Interval.Label(), s.now().Add(-span))
	if err != nil {
		s.logger.Warn("failed to read persisted candles", zap.String("pair", pair.ID), zap.Error(err))
		return nil
	}
	return candles
}
