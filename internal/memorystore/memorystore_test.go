package memorystore

import (
	"sync"
	"testing"
	"time"

	"quoter/internal/catalog"
	"quoter/internal/feed"
	"quoter/internal/orderbook"
	"quoter/pkg/kraken"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func result(pairID string, last int64, at time.Time) feed.Result {
	p, _ := catalog.Lookup(pairID)
	return feed.Result{
		Pair: p,
		Tick: feed.Tick{LastPrice: decimal.NewFromInt(last)},
		Book: orderbook.Snapshot{
			Asks: []orderbook.Row{{Price: decimal.NewFromInt(last + 1), Volume: decimal.NewFromInt(1)}},
		},
		At: at,
	}
}

// go test -v --run TestSnapshotStore
func TestSnapshotStore(t *testing.T) {
	s := NewSnapshotStore()
	now := time.Now()

	_, ok := s.Get("BTC_EUR")
	assert.False(t, ok)

	s.Put(result("BTC_EUR", 100, now))
	s.Put(result("ETH_EUR", 10, now))
	s.Put(result("BTC_EUR", 90, now.Add(-time.Second))) // stale, ignored

	got, ok := s.Get("BTC_EUR")
	require.True(t, ok)
	assert.True(t, got.Tick.LastPrice.Equal(decimal.NewFromInt(100)))

	// returned books are copies
	got.Book.Asks[0].Price = decimal.Zero
	again, _ := s.Get("BTC_EUR")
	assert.True(t, again.Book.Asks[0].Price.Equal(decimal.NewFromInt(101)))

	assert.Equal(t, []string{"BTC_EUR", "ETH_EUR"}, s.Pairs())
}

// go test -v --run TestSnapshotStoreConcurrent
func TestSnapshotStoreConcurrent(t *testing.T) {
	s := NewSnapshotStore()
	base := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Put(result("BTC_EUR", int64(i+1), base.Add(time.Duration(i)*time.Millisecond)))
			s.Get("BTC_EUR")
		}(i)
	}
	wg.Wait()

	got, ok := s.Get("BTC_EUR")
	require.True(t, ok)
	assert.True(t, got.Tick.LastPrice.Equal(decimal.NewFromInt(50)))
}

// go test -v --run TestCandleStore
func TestCandleStore(t *testing.T) {
	s := NewCandleStore()
	candles := []feed.Candle{{Close: decimal.NewFromInt(1)}, {Close: decimal.NewFromInt(2)}}

	s.Set("BTC_EUR", kraken.Timeframe1D, candles)
	s.Set("BTC_EUR", kraken.Timeframe1W, candles[:1])

	assert.Len(t, s.Get("BTC_EUR", kraken.Timeframe1D), 2)
	assert.Len(t, s.Get("BTC_EUR", kraken.Timeframe1W), 1)
	assert.Nil(t, s.Get("ETH_EUR", kraken.Timeframe1D))
	assert.Equal(t, 3, s.CountAll())

	// caller's slice is not retained
	candles[0].Close = decimal.Zero
	assert.True(t, s.Get("BTC_EUR", kraken.Timeframe1D)[0].Close.Equal(decimal.NewFromInt(1)))
}
