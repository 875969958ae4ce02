package view

import (
	"context"
	"sync"
	"time"

	"quoter/internal/catalog"
	"quoter/internal/feed"
	"quoter/internal/memorystore"
	"quoter/internal/metrics"
	"quoter/pkg/kraken"

	"go.uber.org/zap"
)

// CandleRecorder persists fetched candles.
type CandleRecorder interface {
	RecordCandles(ctx context.Context, pairID, interval string, candles []feed.Candle) error
}

type ChartState struct {
	Pair        catalog.Pair     `json:"pair"`
	Timeframe   kraken.Timeframe `json:"timeframe"`
	Candles     []feed.Candle    `json:"candles"`
	HasError    bool             `json:"has_error"`
	Loading     bool             `json:"loading"`
	LastUpdated time.Time        `json:"last_updated"`
}

// ChartDeps are shared by all chart views. Store and Recorder are optional.
type ChartDeps struct {
	Fetcher  *feed.CandleFetcher
	Interval time.Duration
	Points   int
	Store    *memorystore.CandleStore
	Recorder CandleRecorder
	Metrics  *metrics.Collector
	Logger   *zap.Logger
}

// Chart polls candles for one pair and timeframe.
type Chart struct {
	deps ChartDeps

	mu        sync.RWMutex
	state     ChartState
	task      *feed.Task
	listeners []func(ChartState)
}

func NewChart(deps ChartDeps) *Chart {
	return &Chart{deps: deps}
}

// OnUpdate has the same contract as Trading.OnUpdate.
func (c *Chart) OnUpdate(fn func(ChartState)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

func (c *Chart) Select(parent context.Context, pair catalog.Pair, tf kraken.Timeframe) error {
	meta, err := kraken.ParseTimeframe(string(tf))
	if err != nil {
		return err
	}

	c.mu.Lock()
	prev := c.task
	c.task = nil
	c.mu.Unlock()
	prev.Stop()

	c.mu.Lock()
	c.state = ChartState{Pair: pair, Timeframe: tf}
	c.task = feed.Start(parent, func(ctx context.Context) {
		feed.Every(ctx, c.deps.Interval, func(ctx context.Context) {
			c.tick(ctx, pair, tf, meta.Interval)
		})
	})
	c.mu.Unlock()
	return nil
}

func (c *Chart) Close() {
	c.mu.Lock()
	task := c.task
	c.task = nil
	c.mu.Unlock()
	task.Stop()

	c.mu.Lock()
	c.state.Loading = false
	c.mu.Unlock()
}

// State returns a copy with candles downsampled for display.
func (c *Chart) State() ChartState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := c.state
	s.Candles = append([]feed.Candle(nil), feed.Downsample(c.state.Candles, c.deps.Points)...)
	return s
}

func (c *Chart) tick(ctx context.Context, pair catalog.Pair, tf kraken.Timeframe, interval kraken.Interval) {
	c.mu.Lock()
	c.state.Loading = true
	c.mu.Unlock()

	start := time.Now()
	candles, err := c.deps.Fetcher.Fetch(ctx, pair, tf)
	if ctx.Err() != nil {
		return
	}
	c.deps.Metrics.ObservePoll(pair.ID, "chart", time.Since(start), err)

	c.mu.Lock()
	c.state.Loading = false
	if err != nil {
		c.state.HasError = true
	} else {
		c.state.Candles = candles
		c.state.HasError = false
		c.state.LastUpdated = time.Now()
	}
	listeners := append([]func(ChartState){}, c.listeners...)
	c.mu.Unlock()

	if err != nil {
		c.deps.Logger.Warn("chart poll failed", zap.String("pair", pair.ID), zap.String("timeframe", string(tf)), zap.Error(err))
	} else {
		c.store(ctx, pair, tf, interval, candles)
	}

	state := c.State()
	for _, fn := range listeners {
		fn(state)
	}
}

func (c *Chart) store(ctx context.Context, pair catalog.Pair, tf kraken.Timeframe, interval kraken.Interval, candles []feed.Candle) {
	if c.deps.Store != nil {
		c.deps.Store.Set(pair.ID, tf, candles)
	}
	if c.deps.Recorder == nil {
		return
	}
	if err := c.deps.Recorder.RecordCandles(ctx, pair.ID, interval.Label(), candles); err != nil {
		c.deps.Logger.Warn("failed to record candles", zap.String("pair", pair.ID), zap.Error(err))
	}
}
