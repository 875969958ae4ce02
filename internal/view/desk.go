package view

import (
	"context"
	"errors"
	"time"

	"quoter/internal/metrics"
	"quoter/internal/pricing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var ErrInvalidOrder = errors.New("order needs a positive amount and a known price")

// OrderRecorder keeps an audit trail of confirmed simulated orders.
type OrderRecorder interface {
	RecordOrder(ctx context.Context, o pricing.Order) error
}

// Pricing holds the quote parameters shared by every view.
type Pricing struct {
	Spread       pricing.SpreadModel
	FeeRate      decimal.Decimal
	DisplayDepth int
}

// Desk prices order forms and confirms them. No order leaves the process:
// a confirmation is logged and, when a recorder is set, stored.
type Desk struct {
	pricing  Pricing
	recorder OrderRecorder
	metrics  *metrics.Collector
	logger   *zap.Logger

	newID func() string
	now   func() time.Time
}

func NewDesk(p Pricing, recorder OrderRecorder, m *metrics.Collector, logger *zap.Logger) *Desk {
	return &Desk{
		pricing:  p,
		recorder: recorder,
		metrics:  m,
		logger:   logger,
		newID:    uuid.NewString,
		now:      time.Now,
	}
}

func (d *Desk) Pricing() Pricing {
	return d.pricing
}

// Quote derives the displayed quote from a last price.
func (d *Desk) Quote(lastPrice decimal.NullDecimal) (pricing.Quote, bool) {
	return pricing.ComputeQuote(lastPrice, d.pricing.Spread)
}

func (d *Desk) Preview(lastPrice decimal.NullDecimal, side pricing.Side, amount string) pricing.Ticket {
	q, ok := d.Quote(lastPrice)
	return pricing.NewTicket(q, ok, side, amount, d.pricing.FeeRate)
}

// Confirm validates the form like Preview and logs the simulated order.
// A recorder failure is logged but does not fail the confirmation.
func (d *Desk) Confirm(ctx context.Context, pairID string, lastPrice decimal.NullDecimal, side pricing.Side, amount string) (pricing.Order, error) {
	ticket := d.Preview(lastPrice, side, amount)
	if !ticket.Valid {
		return pricing.Order{}, ErrInvalidOrder
	}

	order := pricing.Order{
		ID:          d.newID(),
		PairID:      pairID,
		Ticket:      ticket,
		ConfirmedAt: d.now(),
	}

	d.logger.Info("simulated order confirmed",
		zap.String("order_id", order.ID),
		zap.String("pair", pairID),
		zap.String("side", string(side)),
		zap.Stringer("quote_amount", ticket.QuoteAmount.Decimal),
		zap.Stringer("price_used", ticket.EffectivePrice.Decimal),
		zap.Stringer("base_quantity", ticket.BaseQuantity.Decimal),
	)
	d.metrics.OrderConfirmed(string(side))

	if d.recorder != nil {
		if err := d.recorder.RecordOrder(ctx, order); err != nil {
			d.logger.Warn("failed to record simulated order", zap.String("order_id", order.ID), zap.Error(err))
		}
	}
	return order, nil
}
