package memorystore

import (
	"sync"

	"quoter/internal/feed"
	"quoter/pkg/kraken"
)

// CandleStore holds the latest candle series per pair and timeframe.
type CandleStore struct {
	globalMu sync.RWMutex
	data     map[candleKey]*candleSeries
}

type candleKey struct {
	pairID    string
	timeframe kraken.Timeframe
}

type candleSeries struct {
	mu      sync.Mutex
	candles []feed.Candle
}

func NewCandleStore() *CandleStore {
	return &CandleStore{
		data: make(map[candleKey]*candleSeries),
	}
}

// Set replaces the series for pair and timeframe.
func (s *CandleStore) Set(pairID string, tf kraken.Timeframe, candles []feed.Candle) {
	key := candleKey{pairID: pairID, timeframe: tf}

	// Fast path: lock per-series store only
	s.globalMu.RLock()
	series, ok := s.data[key]
	s.globalMu.RUnlock()

	if !ok {
		s.globalMu.Lock()
		if series, ok = s.data[key]; !ok {
			series = &candleSeries{}
			s.data[key] = series
		}
		s.globalMu.Unlock()
	}

	cp := make([]feed.Candle, len(candles))
	copy(cp, candles)

	series.mu.Lock()
	series.candles = cp
	series.mu.Unlock()
}

func (s *CandleStore) Get(pairID string, tf kraken.Timeframe) []feed.Candle {
	s.globalMu.RLock()
	series, ok := s.data[candleKey{pairID: pairID, timeframe: tf}]
	s.globalMu.RUnlock()
	if !ok {
		return nil
	}

	series.mu.Lock()
	defer series.mu.Unlock()

	cp := make([]feed.Candle, len(series.candles))
	copy(cp, series.candles)
	return cp
}

// CountAll returns the total number of candles stored across all series.
func (s *CandleStore) CountAll() int {
	s.globalMu.RLock()
	defer s.globalMu.RUnlock()

	total := 0
	for _, series := range s.data {
		series.mu.Lock()
		total += len(series.candles)
		series.mu.Unlock()
	}
	return total
}
