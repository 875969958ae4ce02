package feed

import (
	"context"
	"sync"
	"time"

	"quoter/internal/catalog"

	"go.uber.org/zap"
)

// Hub shares one poll loop per pair between all subscribers of that pair.
// The loop starts with the first subscription and stops when the last one
// is closed, so upstream load grows with the number of distinct pairs
// rather than the number of views.
type Hub struct {
	poller *Poller
	logger *zap.Logger

	mu       sync.Mutex
	feeds    map[string]*pairFeed
	onResult []func(ctx context.Context, res Result)
}

func NewHub(poller *Poller, logger *zap.Logger) *Hub {
	return &Hub{
		poller: poller,
		logger: logger,
		feeds:  make(map[string]*pairFeed),
	}
}

// Interval is the poll interval of every feed.
func (h *Hub) Interval() time.Duration {
	return h.poller.Interval()
}

// OnResult registers fn to run once per successful tick, before subscribers
// are notified. Register hooks before the first Subscribe.
func (h *Hub) OnResult(fn func(ctx context.Context, res Result)) {
	h.mu.Lock()
	h.onResult = append(h.onResult, fn)
	h.mu.Unlock()
}

// Subscribe attaches sink to the pair's feed. A subscriber joining a running
// feed is handed the last outcome right away. The subscription is closed
// when ctx is done or Close is called.
func (h *Hub) Subscribe(ctx context.Context, pair catalog.Pair, sink Sink) *Subscription {
	sub := &Subscription{hub: h, pair: pair, sink: sink}

	h.mu.Lock()
	f, ok := h.feeds[pair.ID]
	if !ok {
		f = &pairFeed{hub: h, subs: make(map[*Subscription]struct{})}
		h.feeds[pair.ID] = f
		f.task = Start(context.Background(), func(ctx context.Context) {
			h.poller.Run(ctx, pair, f)
		})
		h.logger.Debug("pair feed started", zap.String("pair", pair.ID))
	}
	f.mu.Lock()
	f.subs[sub] = struct{}{}
	last := f.last
	f.mu.Unlock()
	h.mu.Unlock()

	if last != nil {
		sub.deliver(*last)
	}
	stop := context.AfterFunc(ctx, sub.Close)
	sub.mu.Lock()
	sub.stop = stop
	sub.mu.Unlock()
	return sub
}

// Feeds returns the number of running pair feeds.
func (h *Hub) Feeds() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.feeds)
}

// Close stops every feed. Subscriptions receive nothing afterwards.
func (h *Hub) Close() {
	h.mu.Lock()
	feeds := h.feeds
	h.feeds = make(map[string]*pairFeed)
	h.mu.Unlock()

	for _, f := range feeds {
		f.task.Stop()
	}
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	f, ok := h.feeds[sub.pair.ID]
	if !ok {
		h.mu.Unlock()
		return
	}
	f.mu.Lock()
	delete(f.subs, sub)
	empty := len(f.subs) == 0
	f.mu.Unlock()
	if empty {
		delete(h.feeds, sub.pair.ID)
	}
	h.mu.Unlock()

	if empty {
		f.task.Stop()
		h.logger.Debug("pair feed stopped", zap.String("pair", sub.pair.ID))
	}
}

func (h *Hub) hooks() []func(ctx context.Context, res Result) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]func(context.Context, Result){}, h.onResult...)
}

type outcome struct {
	seq uint64
	res Result
	err error
}

// pairFeed is the Sink of one poll loop and fans out to its subscribers.
type pairFeed struct {
	hub  *Hub
	task *Task

	mu   sync.Mutex
	subs map[*Subscription]struct{}
	seq  uint64
	last *outcome
}

func (f *pairFeed) snapshot() []*Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Subscription, 0, len(f.subs))
	for s := range f.subs {
		out = append(out, s)
	}
	return out
}

func (f *pairFeed) Begin() {
	for _, s := range f.snapshot() {
		s.begin()
	}
}

func (f *pairFeed) Deliver(res Result, err error) {
	if err == nil {
		ctx := context.Background()
		for _, fn := range f.hub.hooks() {
			fn(ctx, res)
		}
	}

	f.mu.Lock()
	f.seq++
	o := outcome{seq: f.seq, res: res, err: err}
	if err == nil || f.last == nil {
		f.last = &o
	} else {
		// keep the last good result for late joiners, flagged as failing
		kept := *f.last
		kept.seq, kept.err = o.seq, err
		f.last = &kept
		o = kept
	}
	f.mu.Unlock()

	for _, s := range f.snapshot() {
		s.deliver(o)
	}
}

// Subscription is one sink attached to a pair feed.
type Subscription struct {
	hub  *Hub
	pair catalog.Pair
	sink Sink

	mu     sync.Mutex
	stop   func() bool
	closed bool
	seq    uint64
}

func (s *Subscription) Pair() catalog.Pair {
	return s.pair
}

// Close detaches the sink. No callback runs after Close returns, so it must
// not be called from the sink itself. Close is safe to call more than once.
func (s *Subscription) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	stop := s.stop
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
	s.hub.remove(s)
}

func (s *Subscription) begin() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.sink.Begin()
	}
}

// deliver drops outcomes older than one already delivered.
func (s *Subscription) deliver(o outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || o.seq <= s.seq {
		return
	}
	s.seq = o.seq
	s.sink.Deliver(o.res, o.err)
}
