// Package collector runs the batch jobs around candle storage: backfilling
// series for many pairs and pruning old rows.
package collector

import (
	"context"
	"sync"
	"time"

	"quoter/internal/catalog"
	"quoter/internal/feed"
	"quoter/internal/view"
	"quoter/pkg/kraken"

	"go.uber.org/zap"
)

// CandleSource fetches one candle series.
type CandleSource interface {
	Fetch(ctx context.Context, pair catalog.Pair, tf kraken.Timeframe) ([]feed.Candle, error)
}

type BackfillOptions struct {
	Pairs       []catalog.Pair
	Timeframe   kraken.Timeframe
	Concurrency int
	Timeout     time.Duration // per pair
}

// BackfillReport counts pairs by outcome.
type BackfillReport struct {
	Succeeded []string
	Failed    []string
	Candles   int
}

// Backfill fetches and records the timeframe's candles for every pair, at
// most Concurrency pairs at a time. A failing pair is logged and skipped.
func Backfill(ctx context.Context, opts BackfillOptions, source CandleSource, recorder view.CandleRecorder, logger *zap.Logger) (BackfillReport, error) {
	meta, err := kraken.ParseTimeframe(string(opts.Timeframe))
	if err != nil {
		return BackfillReport{}, err
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		report BackfillReport
	)
	sem := make(chan struct{}, opts.Concurrency)

	for _, pair := range opts.Pairs {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return report, ctx.Err()
		}

		pair := pair
		wg.Add(1)
		go func() {
			defer func() {
				<-sem
				wg.Done()
			}()

			n, err := backfillPair(ctx, pair, opts, meta.Interval, source, recorder)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logger.Warn("backfill failed for pair", zap.String("pair", pair.ID), zap.Error(err))
				report.Failed = append(report.Failed, pair.ID)
				return
			}
			logger.Info("backfill completed for pair", zap.String("pair", pair.ID), zap.Int("candles", n))
			report.Succeeded = append(report.Succeeded, pair.ID)
			report.Candles += n
		}()
	}

	wg.Wait()
	return report, nil
}

func backfillPair(ctx context.Context, pair catalog.Pair, opts BackfillOptions, interval kraken.Interval, source CandleSource, recorder view.CandleRecorder) (int, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	candles, err := source.Fetch(ctx, pair, opts.Timeframe)
	if err != nil {
		return 0, err
	}
	if err := recorder.RecordCandles(ctx, pair.ID, interval.Label(), candles); err != nil {
		return 0, err
	}
	return len(candles), nil
}
