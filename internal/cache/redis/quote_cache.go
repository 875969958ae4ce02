package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"quoter/internal/pricing"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when no quote has been published for a pair.
var ErrNotFound = errors.New("redis: quote not found")

// QuoteCache stores the latest quote per pair as a hash at "quote:{pair}"
// with fields "mid", "buy", "sell" and "ts" (Unix milliseconds).
type QuoteCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewQuoteCache creates a QuoteCache. A positive ttl expires quotes that stop
// being refreshed.
func NewQuoteCache(c *Client, ttl time.Duration) *QuoteCache {
	return &QuoteCache{rdb: c.rdb, ttl: ttl}
}

func quoteKey(pairID string) string {
	return "quote:" + pairID
}

func (qc *QuoteCache) SetQuote(ctx context.Context, pairID string, q pricing.Quote, at time.Time) error {
	key := quoteKey(pairID)
	fields := []interface{}{
		"mid", q.Mid.String(),
		"buy", q.Buy.String(),
		"sell", q.Sell.String(),
		"ts", strconv.FormatInt(at.UnixMilli(), 10),
	}

	pipe := qc.rdb.TxPipeline()
	pipe.HSet(ctx, key, fields...)
	if qc.ttl > 0 {
		pipe.Expire(ctx, key, qc.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set quote %s: %w", pairID, err)
	}
	return nil
}

// GetQuote returns ErrNotFound when the key does not exist.
func (qc *QuoteCache) GetQuote(ctx context.Context, pairID string) (pricing.Quote, time.Time, error) {
	vals, err := qc.rdb.HGetAll(ctx, quoteKey(pairID)).Result()
	if err != nil {
		return pricing.Quote{}, time.Time{}, fmt.Errorf("redis: get quote %s: %w", pairID, err)
	}
	if len(vals) == 0 {
		return pricing.Quote{}, time.Time{}, ErrNotFound
	}

	var q pricing.Quote
	for field, dst := range map[string]*decimal.Decimal{"mid": &q.Mid, "buy": &q.Buy, "sell": &q.Sell} {
		d, err := decimal.NewFromString(vals[field])
		if err != nil {
			return pricing.Quote{}, time.Time{}, fmt.Errorf("redis: parse %s %s: %w", field, pairID, err)
		}
		*dst = d
	}

	ms, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return pricing.Quote{}, time.Time{}, fmt.Errorf("redis: parse ts %s: %w", pairID, err)
	}
	return q, time.UnixMilli(ms), nil
}
