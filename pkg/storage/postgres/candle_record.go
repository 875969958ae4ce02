package postgres

import (
	"time"

	"github.com/shopspring/decimal"
)

// CandleRecord represents one OHLC bar stored in the database.
type CandleRecord struct {
	ID uint `gorm:"primaryKey"`

	// unique index
	Pair     string    `gorm:"type:varchar(20);not null;index:idx_candle_pair;index:idx_pair_interval_start,unique"`
	Interval string    `gorm:"type:varchar(10);not null;index:idx_pair_interval_start,unique"`
	Start    time.Time `gorm:"not null;index:idx_pair_interval_start,unique"`

	Open   decimal.Decimal `gorm:"type:numeric;not null"`
	High   decimal.Decimal `gorm:"type:numeric;not null"`
	Low    decimal.Decimal `gorm:"type:numeric;not null"`
	Close  decimal.Decimal `gorm:"type:numeric;not null"`
	Volume decimal.Decimal `gorm:"type:numeric;not null"`

	RecordedAt time.Time `gorm:"autoCreateTime"`
}

// TableName overrides the default table name for GORM.
func (CandleRecord) TableName() string {
	return "candle_record"
}

// OrderRecord is the audit row of a confirmed simulated order. No trade is
// executed; the row only keeps what the user confirmed.
type OrderRecord struct {
	ID uint `gorm:"primaryKey" json:"-"`

	OrderID string `gorm:"type:uuid;not null;uniqueIndex" json:"id"`
	Pair    string `gorm:"type:varchar(20);not null;index:idx_order_pair" json:"pair"`
	Side    string `gorm:"type:varchar(4);not null" json:"side"`

	QuoteAmount    decimal.Decimal `gorm:"type:numeric;not null" json:"quote_amount"`
	QuotedPrice    decimal.Decimal `gorm:"type:numeric;not null" json:"quoted_price"`
	EffectivePrice decimal.Decimal `gorm:"type:numeric;not null" json:"effective_price"`
	BaseQuantity   decimal.Decimal `gorm:"type:numeric;not null" json:"base_quantity"`

	ConfirmedAt time.Time `gorm:"not null;index:idx_order_confirmed_at" json:"confirmed_at"`
	RecordedAt  time.Time `gorm:"autoCreateTime" json:"recorded_at"`
}

func (OrderRecord) TableName() string {
	return "order_record"
}
