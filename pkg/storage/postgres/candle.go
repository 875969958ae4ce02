package postgres

import (
	"context"
	"fmt"
	"time"

	"quoter/internal/feed"

	"gorm.io/gorm/clause"
)

// InsertCandles stores the bars, skipping ones already present for the same
// pair, interval and start. It returns the number of new rows.
func (p *PostgresClient) InsertCandles(ctx context.Context, records []*CandleRecord) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx := p.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "pair"},
			{Name: "interval"},
			{Name: "start"},
		},
		DoNothing: true,
	}).Create(records)

	if tx.Error != nil {
		return 0, fmt.Errorf("insert candles: %w", tx.Error)
	}
	return tx.RowsAffected, nil
}

// RecordCandles converts and stores one fetched series.
func (p *PostgresClient) RecordCandles(ctx context.Context, pairID, interval string, candles []feed.Candle) error {
	records := make([]*CandleRecord, 0, len(candles))
	for _, c := range candles {
		records = append(records, ToCandleRecord(pairID, interval, c))
	}
	_, err := p.InsertCandles(ctx, records)
	return err
}

func (p *PostgresClient) ListCandles(ctx context.Context, pairID, interval string, since time.Time) ([]CandleRecord, error) {
	var out []CandleRecord
	err := p.DB.WithContext(ctx).
		Where(`pair = ? AND "interval" = ? AND start >= ?`, pairID, interval, since).
		Order("start ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list candles: %w", err)
	}
	return out, nil
}

// StoredCandles returns the persisted series as normalized candles, oldest first.
func (p *PostgresClient) StoredCandles(ctx context.Context, pairID, interval string, since time.Time) ([]feed.Candle, error) {
	records, err := p.ListCandles(ctx, pairID, interval, since)
	if err != nil {
		return nil, err
	}
	out := make([]feed.Candle, 0, len(records))
	for _, r := range records {
		out = append(out, feed.Candle{
			Time:   r.Start,
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Close:  r.Close,
			Volume: r.Volume,
		})
	}
	return out, nil
}

func (p *PostgresClient) DeleteOldCandles(ctx context.Context, before time.Time) error {
	return p.DB.WithContext(ctx).
		Where("start < ?", before).
		Delete(&CandleRecord{}).Error
}

// ToCandleRecord converts a normalized candle into a CandleRecord for DB insertion.
func ToCandleRecord(pairID, interval string, c feed.Candle) *CandleRecord {
	return &CandleRecord{
		Pair:     pairID,
		Interval: interval,
		Start:    c.Time,
		Open:     c.Open,
		High:     c.High,
		Low:      c.Low,
		Close:    c.Close,
		Volume:   c.Volume,
	}
}
