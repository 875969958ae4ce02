package pricing

import (
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultFeeRate is 1%.
var DefaultFeeRate = decimal.New(1, -2)

// EffectivePrice applies the fee to a quoted price: quoted * (1 - feeRate).
// The same adjustment is used for both sides.
func EffectivePrice(quoted, feeRate decimal.Decimal) decimal.Decimal {
	return quoted.Mul(decimal.NewFromInt(1).Sub(feeRate))
}

// Quantity converts a notional amount into a base-asset quantity. ok is false
// when the amount is not positive or the price is missing or zero.
func Quantity(notional decimal.Decimal, price decimal.NullDecimal) (decimal.Decimal, bool) {
	if !notional.IsPositive() || !price.Valid || price.Decimal.IsZero() {
		return decimal.Decimal{}, false
	}
	return notional.Div(price.Decimal), true
}

// ParseAmount reads a user-entered amount, accepting "," as decimal separator.
// ok is false for anything that is not a positive number.
func ParseAmount(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(strings.Replace(s, ",", ".", 1))
	if s == "" {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil || !d.IsPositive() {
		return decimal.Decimal{}, false
	}
	return d, true
}
