package pricing

import (
	"time"

	"github.com/shopspring/decimal"
)

// Ticket is the order form state: what the user would pay and receive.
// Valid is false whenever any input is missing, in which case the price and
// quantity fields may be absent.
type Ticket struct {
	Side           Side                `json:"side"`
	QuoteAmount    decimal.NullDecimal `json:"quote_amount"`
	QuotedPrice    decimal.NullDecimal `json:"quoted_price"`
	EffectivePrice decimal.NullDecimal `json:"effective_price"`
	BaseQuantity   decimal.NullDecimal `json:"base_quantity"`
	Valid          bool                `json:"valid"`
}

// NewTicket prices an order form. q is ignored when hasQuote is false.
func NewTicket(q Quote, hasQuote bool, side Side, amount string, feeRate decimal.Decimal) Ticket {
	t := Ticket{Side: side}

	notional, amountOK := ParseAmount(amount)
	if amountOK {
		t.QuoteAmount = decimal.NewNullDecimal(notional)
	}

	if hasQuote {
		quoted := q.Price(side)
		t.QuotedPrice = decimal.NewNullDecimal(quoted)
		t.EffectivePrice = decimal.NewNullDecimal(EffectivePrice(quoted, feeRate))
	}

	if qty, ok := Quantity(notional, t.EffectivePrice); amountOK && ok {
		t.BaseQuantity = decimal.NewNullDecimal(qty)
		t.Valid = true
	}
	return t
}

// Order is a confirmed ticket. Nothing is executed upstream.
type Order struct {
	ID          string    `json:"id"`
	PairID      string    `json:"pair"`
	Ticket      Ticket    `json:"ticket"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}
