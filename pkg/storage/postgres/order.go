package postgres

import (
	"context"
	"errors"
	"fmt"

	"quoter/internal/pricing"

	"gorm.io/gorm"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("postgres: record not found")

// RecordOrder stores a confirmed simulated order. Invalid tickets are rejected.
func (p *PostgresClient) RecordOrder(ctx context.Context, o pricing.Order) error {
	record, err := ToOrderRecord(o)
	if err != nil {
		return err
	}
	if err := p.DB.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("insert order %s: %w", o.ID, err)
	}
	return nil
}

func (p *PostgresClient) GetOrder(ctx context.Context, orderID string) (*OrderRecord, error) {
	var rec OrderRecord
	err := p.DB.WithContext(ctx).
		Where("order_id = ?", orderID).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", orderID, err)
	}
	return &rec, nil
}

// ListOrders returns the most recent orders first.
func (p *PostgresClient) ListOrders(ctx context.Context, pairID string, limit int) ([]OrderRecord, error) {
	var out []OrderRecord
	q := p.DB.WithContext(ctx).Order("confirmed_at DESC")
	if pairID != "" {
		q = q.Where("pair = ?", pairID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return out, nil
}

// ToOrderRecord converts a confirmed order into an OrderRecord for DB insertion.
func ToOrderRecord(o pricing.Order) (*OrderRecord, error) {
	t := o.Ticket
	if !t.Valid {
		return nil, fmt.Errorf("order %s: ticket is not valid", o.ID)
	}
	return &OrderRecord{
		OrderID:        o.ID,
		Pair:           o.PairID,
		Side:           string(t.Side),
		QuoteAmount:    t.QuoteAmount.Decimal,
		QuotedPrice:    t.QuotedPrice.Decimal,
		EffectivePrice: t.EffectivePrice.Decimal,
		BaseQuantity:   t.BaseQuantity.Decimal,
		ConfirmedAt:    o.ConfirmedAt,
	}, nil
}
