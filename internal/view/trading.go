// Package view holds the state behind the trading and chart screens. A view
// is mounted by selecting a pair, refreshed by a poll task while mounted, and
// unmounted with Close.
package view

import (
	"context"
	"sync"
	"time"

	"quoter/internal/catalog"
	"quoter/internal/feed"
	"quoter/internal/memorystore"
	"quoter/internal/metrics"
	"quoter/internal/orderbook"
	"quoter/internal/pricing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// QuotePublisher receives every quote derived from a successful poll.
type QuotePublisher interface {
	SetQuote(ctx context.Context, pairID string, q pricing.Quote, at time.Time) error
}

// State is what the trading screen renders. LastPrice and Book hold the last
// successful poll; a failed poll only sets HasError.
type State struct {
	Selection   catalog.Selection   `json:"selection"`
	Pair        catalog.Pair        `json:"pair"`
	LastPrice   decimal.NullDecimal `json:"last_price"`
	Book        *orderbook.Snapshot `json:"-"`
	HasError    bool                `json:"has_error"`
	Loading     bool                `json:"loading"`
	LastUpdated time.Time           `json:"last_updated"`
}

// TradingDeps are shared by all trading views. Snapshots and Quotes are optional.
type TradingDeps struct {
	Feeds     *feed.Hub
	Desk      *Desk
	Snapshots *memorystore.SnapshotStore
	Quotes    QuotePublisher
	Metrics   *metrics.Collector
	Logger    *zap.Logger
}

type Trading struct {
	deps TradingDeps

	// lifecycle serializes Select and Close
	lifecycle sync.Mutex

	mu        sync.RWMutex
	state     State
	sub       *feed.Subscription
	listeners []func(State)
}

func NewTrading(deps TradingDeps) *Trading {
	return &Trading{deps: deps}
}

// OnUpdate registers fn to be called with a copy of the state after every
// applied poll. fn runs on the poll goroutine, or on the caller of Select when
// the pair's feed already has a result, and must not call Select or Close.
func (t *Trading) OnUpdate(fn func(State)) {
	t.mu.Lock()
	t.listeners = append(t.listeners, fn)
	t.mu.Unlock()
}

// Select switches the view to a pair. The previous subscription is closed
// before the new one is made, and the state is reset for the new pair.
// Views on the same pair share one poll loop.
func (t *Trading) Select(parent context.Context, sel catalog.Selection) (catalog.Pair, error) {
	pair, err := catalog.Resolve(sel)
	if err != nil {
		return catalog.Pair{}, err
	}

	t.lifecycle.Lock()
	defer t.lifecycle.Unlock()

	t.mu.Lock()
	prev := t.sub
	t.sub = nil
	t.mu.Unlock()

	if prev != nil {
		prev.Close()
	} else {
		t.deps.Metrics.ViewMounted()
	}

	t.mu.Lock()
	t.state = State{Selection: catalog.Selection{Mode: sel.Mode, PairID: pair.ID}, Pair: pair}
	t.mu.Unlock()

	sub := t.deps.Feeds.Subscribe(parent, pair, &tradingSink{view: t})

	t.mu.Lock()
	t.sub = sub
	t.mu.Unlock()

	t.deps.Logger.Info("trading view selected pair", zap.String("pair", pair.ID), zap.String("mode", string(sel.Mode)))
	return pair, nil
}

// Close stops receiving updates. The view keeps its last state and can be
// selected again.
func (t *Trading) Close() {
	t.lifecycle.Lock()
	defer t.lifecycle.Unlock()

	t.mu.Lock()
	sub := t.sub
	t.sub = nil
	t.mu.Unlock()

	if sub != nil {
		sub.Close()
		t.deps.Metrics.ViewUnmounted()
	}

	t.mu.Lock()
	t.state.Loading = false
	t.mu.Unlock()
}

// State returns a copy of the current state.
func (t *Trading) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s := t.state
	if s.Book != nil {
		b := *s.Book
		s.Book = &b
	}
	return s
}

func (t *Trading) Quote() (pricing.Quote, bool) {
	return t.deps.Desk.Quote(t.State().LastPrice)
}

// Book aggregates the last snapshot for display. It is empty before the first
// successful poll.
func (t *Trading) Book() orderbook.Display {
	s := t.State()
	if s.Book == nil {
		return orderbook.Display{}
	}
	return orderbook.Aggregate(*s.Book, t.deps.Desk.Pricing().DisplayDepth)
}

func (t *Trading) Preview(side pricing.Side, amount string) pricing.Ticket {
	return t.deps.Desk.Preview(t.State().LastPrice, side, amount)
}

func (t *Trading) Confirm(ctx context.Context, side pricing.Side, amount string) (pricing.Order, error) {
	s := t.State()
	return t.deps.Desk.Confirm(ctx, s.Pair.ID, s.LastPrice, side, amount)
}

type tradingSink struct {
	view *Trading
}

func (s *tradingSink) Begin() {
	s.view.mu.Lock()
	s.view.state.Loading = true
	s.view.mu.Unlock()
}

func (s *tradingSink) Deliver(res feed.Result, err error) {
	v := s.view

	v.mu.Lock()
	v.state.Loading = false
	if err != nil {
		v.state.HasError = true
	} else {
		book := res.Book
		v.state.LastPrice = decimal.NewNullDecimal(res.Tick.LastPrice)
		v.state.Book = &book
		v.state.LastUpdated = res.At
		v.state.HasError = false
	}
	listeners := append([]func(State){}, v.listeners...)
	v.mu.Unlock()

	state := v.State()
	for _, fn := range listeners {
		fn(state)
	}
}

// PublishResults registers the snapshot store and quote publisher of deps on
// the feed hub, so each successful poll is stored once however many views
// share it.
func PublishResults(deps TradingDeps) {
	deps.Feeds.OnResult(func(ctx context.Context, res feed.Result) {
		if deps.Snapshots != nil {
			deps.Snapshots.Put(res)
		}
		if deps.Quotes == nil {
			return
		}
		q, ok := deps.Desk.Quote(decimal.NewNullDecimal(res.Tick.LastPrice))
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := deps.Quotes.SetQuote(ctx, res.Pair.ID, q, res.At); err != nil {
			deps.Logger.Warn("failed to publish quote", zap.String("pair", res.Pair.ID), zap.Error(err))
		}
	})
}
