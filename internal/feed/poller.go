package feed

import (
	"context"
	"time"

	"quoter/internal/catalog"
	"quoter/internal/metrics"

	"go.uber.org/zap"
)

// Sink receives the progress of a poll loop. Begin is called before each
// tick's requests; Deliver after them, with err set when the tick failed.
type Sink interface {
	Begin()
	Deliver(res Result, err error)
}

// Source produces one poll result for a pair.
type Source interface {
	Fetch(ctx context.Context, pair catalog.Pair) (Result, error)
}

// Poller drives a Source on a fixed interval. A failed tick is logged and the
// next tick is the retry; there is no backoff and the loop never stops on error.
type Poller struct {
	source   Source
	interval time.Duration
	logger   *zap.Logger
	metrics  *metrics.Collector
}

func NewPoller(source Source, interval time.Duration, logger *zap.Logger, m *metrics.Collector) *Poller {
	return &Poller{source: source, interval: interval, logger: logger, metrics: m}
}

func (p *Poller) Interval() time.Duration {
	return p.interval
}

// Run polls until ctx is cancelled. A response that arrives after
// cancellation is dropped without reaching the sink.
func (p *Poller) Run(ctx context.Context, pair catalog.Pair, sink Sink) {
	p.logger.Debug("poll loop started", zap.String("pair", pair.ID), zap.Duration("interval", p.interval))
	defer p.logger.Debug("poll loop stopped", zap.String("pair", pair.ID))

	Every(ctx, p.interval, func(ctx context.Context) {
		sink.Begin()

		start := time.Now()
		res, err := p.source.Fetch(ctx, pair)
		if ctx.Err() != nil {
			return
		}
		p.metrics.ObservePoll(pair.ID, "market", time.Since(start), err)

		if err != nil {
			p.logger.Warn("market poll failed", zap.String("pair", pair.ID), zap.Error(err))
		}
		sink.Deliver(res, err)
	})
}
