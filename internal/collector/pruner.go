package collector

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// CandlePruner deletes candle rows older than a cutoff.
type CandlePruner interface {
	DeleteOldCandles(ctx context.Context, before time.Time) error
}

// MidnightPruner deletes candles older than Retention once at start, then at
// every UTC midnight.
type MidnightPruner struct {
	Store     CandlePruner
	Retention time.Duration
	Logger    *zap.Logger

	now func() time.Time
}

// Run blocks until ctx is cancelled.
func (m *MidnightPruner) Run(ctx context.Context) {
	if m.now == nil {
		m.now = time.Now
	}

	m.runOnce(ctx)

	timer := time.NewTimer(m.untilMidnight())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			m.runOnce(ctx)
			timer.Reset(m.untilMidnight())
		}
	}
}

func (m *MidnightPruner) runOnce(ctx context.Context) {
	cutoff := m.now().Add(-m.Retention)
	if err := m.Store.DeleteOldCandles(ctx, cutoff); err != nil {
		m.Logger.Warn("failed to prune candles", zap.Time("before", cutoff), zap.Error(err))
		return
	}
	m.Logger.Info("pruned candles", zap.Time("before", cutoff))
}

func (m *MidnightPruner) untilMidnight() time.Duration {
	now := m.now()
	return nextMidnight(now).Sub(now)
}

func nextMidnight(now time.Time) time.Time {
	return now.UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)
}
