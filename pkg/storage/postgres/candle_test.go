package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"quoter/internal/feed"
	"quoter/internal/pricing"
	"quoter/pkg/storage/postgres"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testClient connects to QUOTER_TEST_DSN, e.g.
// "host=localhost port=5432 user=postgres password=yourpw dbname=quoter sslmode=disable".
func testClient(t *testing.T) *postgres.PostgresClient {
	t.Helper()
	dsn := os.Getenv("QUOTER_TEST_DSN")
	if dsn == "" {
		t.Skip("QUOTER_TEST_DSN not set")
	}
	client, err := postgres.NewClient(dsn)
	require.NoError(t, err)
	require.NoError(t, client.AutoMigrate())
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// go test -v --run TestToCandleRecord
func TestToCandleRecord(t *testing.T) {
	start := time.Unix(1700000000, 0).UTC()
	rec := postgres.ToCandleRecord("BTC_EUR", "5m", feed.Candle{
		Time:   start,
		Open:   decimal.RequireFromString("1.1"),
		High:   decimal.RequireFromString("1.3"),
		Low:    decimal.RequireFromString("1.0"),
		Close:  decimal.RequireFromString("1.2"),
		Volume: decimal.RequireFromString("42"),
	})

	assert.Equal(t, "BTC_EUR", rec.Pair)
	assert.Equal(t, "5m", rec.Interval)
	assert.Equal(t, start, rec.Start)
	assert.True(t, rec.Close.Equal(decimal.RequireFromString("1.2")))
	assert.Equal(t, "candle_record", rec.TableName())
}

// go test -v --run TestToOrderRecord
func TestToOrderRecord(t *testing.T) {
	q, _ := pricing.ComputeQuote(decimal.NewNullDecimal(decimal.NewFromInt(100)), pricing.DefaultSpread)
	order := pricing.Order{
		ID:          uuid.NewString(),
		PairID:      "BTC_EUR",
		Ticket:      pricing.NewTicket(q, true, pricing.SideBuy, "50", pricing.DefaultFeeRate),
		ConfirmedAt: time.Now(),
	}

	rec, err := postgres.ToOrderRecord(order)
	require.NoError(t, err)
	assert.Equal(t, "buy", rec.Side)
	assert.True(t, rec.QuoteAmount.Equal(decimal.NewFromInt(50)))
	assert.True(t, rec.QuotedPrice.Equal(decimal.RequireFromString("100.002")))

	order.Ticket = pricing.NewTicket(q, true, pricing.SideBuy, "", pricing.DefaultFeeRate)
	_, err = postgres.ToOrderRecord(order)
	assert.Error(t, err)
}

// go test -v --run TestCandleCRUD
func TestCandleCRUD(t *testing.T) {
	client := testClient(t)
	ctx := context.Background()

	start := time.Now().UTC().Truncate(time.Minute)
	candles := []feed.Candle{
		{Time: start, Open: decimal.NewFromInt(1), High: decimal.NewFromInt(2), Low: decimal.NewFromInt(1), Close: decimal.NewFromInt(2), Volume: decimal.NewFromInt(3)},
		{Time: start.Add(5 * time.Minute), Open: decimal.NewFromInt(2), High: decimal.NewFromInt(3), Low: decimal.NewFromInt(2), Close: decimal.NewFromInt(3), Volume: decimal.NewFromInt(4)},
	}
	require.NoError(t, client.RecordCandles(ctx, "TEST_PAIR", "5m", candles))

	// duplicates are skipped
	n, err := client.InsertCandles(ctx, []*postgres.CandleRecord{postgres.ToCandleRecord("TEST_PAIR", "5m", candles[0])})
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	got, err := client.ListCandles(ctx, "TEST_PAIR", "5m", start)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[1].Close.Equal(decimal.NewFromInt(3)))

	stored, err := client.StoredCandles(ctx, "TEST_PAIR", "5m", start.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.True(t, stored[0].Time.Equal(start.Add(5*time.Minute)))

	require.NoError(t, client.DeleteOldCandles(ctx, start.Add(time.Hour)))
	got, err = client.ListCandles(ctx, "TEST_PAIR", "5m", start)
	require.NoError(t, err)
	assert.Empty(t, got)
}

// go test -v --run TestOrderCRUD
func TestOrderCRUD(t *testing.T) {
	client := testClient(t)
	ctx := context.Background()

	q, _ := pricing.ComputeQuote(decimal.NewNullDecimal(decimal.NewFromInt(2000)), pricing.DefaultSpread)
	order := pricing.Order{
		ID:          uuid.NewString(),
		PairID:      "TEST_PAIR",
		Ticket:      pricing.NewTicket(q, true, pricing.SideSell, "100", pricing.DefaultFeeRate),
		ConfirmedAt: time.Now().UTC(),
	}
	require.NoError(t, client.RecordOrder(ctx, order))

	got, err := client.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, "sell", got.Side)

	_, err = client.GetOrder(ctx, uuid.NewString())
	assert.ErrorIs(t, err, postgres.ErrNotFound)

	list, err := client.ListOrders(ctx, "TEST_PAIR", 10)
	require.NoError(t, err)
	assert.NotEmpty(t, list)
}
