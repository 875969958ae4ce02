// Package server exposes the quote engine over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"quoter/config"
	"quoter/internal/catalog"
	"quoter/internal/feed"
	"quoter/internal/view"
	"quoter/pkg/storage/postgres"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// HealthCheck reports whether an optional backend is reachable.
type HealthCheck func(ctx context.Context) error

// OrderHistory reads back recorded simulated orders.
type OrderHistory interface {
	GetOrder(ctx context.Context, orderID string) (*postgres.OrderRecord, error)
	ListOrders(ctx context.Context, pairID string, limit int) ([]postgres.OrderRecord, error)
}

// CandleHistory reads candles persisted by earlier polls.
type CandleHistory interface {
	StoredCandles(ctx context.Context, pairID, interval string, since time.Time) ([]feed.Candle, error)
}

// Deps wires the server to the view layer. Source is used for one-shot
// fetches when no fresh snapshot is stored. Orders and Candles are optional.
type Deps struct {
	Trading view.TradingDeps
	Chart   view.ChartDeps
	Source  feed.Source
	Orders  OrderHistory
	Candles CandleHistory
	Checks  map[string]HealthCheck
	Watch   []string
}

type Server struct {
	cfg    config.ServerConfig
	deps   Deps
	router *mux.Router
	http   *http.Server
	logger *zap.Logger
	now    func() time.Time
}

func New(cfg config.ServerConfig, deps Deps) *Server {
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		router: mux.NewRouter(),
		logger: deps.Trading.Logger,
		now:    time.Now,
	}
	s.setupRoutes()

	s.http = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	api.HandleFunc("/pairs", s.handlePairs).Methods(http.MethodGet)
	api.HandleFunc("/markets/{pair}/quote", s.handleQuote).Methods(http.MethodGet)
	api.HandleFunc("/markets/{pair}/orderbook", s.handleOrderBook).Methods(http.MethodGet)
	api.HandleFunc("/markets/{pair}/candles", s.handleCandles).Methods(http.MethodGet)
	api.HandleFunc("/orders/preview", s.handlePreview).Methods(http.MethodPost)
	api.HandleFunc("/orders", s.handleConfirm).Methods(http.MethodPost)
	if s.deps.Orders != nil {
		api.HandleFunc("/orders", s.handleListOrders).Methods(http.MethodGet)
		api.HandleFunc("/orders/{id}", s.handleGetOrder).Methods(http.MethodGet)
	}

	s.router.HandleFunc("/ws", s.handleWS).Methods(http.MethodGet)
	if m := s.deps.Trading.Metrics; m != nil {
		s.router.Handle("/metrics", m.Handler()).Methods(http.MethodGet)
	}

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down within the configured
// timeout. Watched pairs are polled for the lifetime of the server.
func (s *Server) Run(ctx context.Context) error {
	s.http.BaseContext = func(net.Listener) context.Context { return ctx }

	watchers := s.startWatchers(ctx)
	defer func() {
		for _, w := range watchers {
			w.Close()
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("http server listening", zap.String("addr", s.cfg.Addr))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		s.logger.Info("http server shutting down")
		return s.http.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) startWatchers(ctx context.Context) []*view.Trading {
	var out []*view.Trading
	for _, id := range s.deps.Watch {
		pair, ok := catalog.Lookup(id)
		if !ok {
			s.logger.Warn("skipping unknown watched pair", zap.String("pair", id))
			continue
		}
		t := view.NewTrading(s.deps.Trading)
		if _, err := t.Select(ctx, catalog.Selection{Mode: pair.Mode, PairID: pair.ID}); err != nil {
			s.logger.Warn("failed to watch pair", zap.String("pair", id), zap.Error(err))
			continue
		}
		out = append(out, t)
	}
	return out
}

type ctxKey int

const requestIDKey ctxKey = iota

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := newRequestID()
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		id, _ := r.Context().Value(requestIDKey).(string)
		s.logger.Debug("http request",
			zap.String("request_id", id),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rw.statusCode),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
