package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Quantities are stored as decimal(12,2).
const (
	QuantityPrecision = 12
	QuantityScale     = 2
)

// MaxQuantity is the largest value the quantity columns hold.
var MaxQuantity = decimal.New(1, QuantityPrecision-QuantityScale).Sub(decimal.New(1, -QuantityScale))

// CheckQuantity reports a quantity the columns would round or overflow.
// Trailing zeros past the scale are fine; "1.500" is stored as 1.50.
func CheckQuantity(q decimal.Decimal) error {
	if !q.Equal(q.Truncate(QuantityScale)) {
		return fmt.Errorf("quantity %s has more than %d decimal places", q, QuantityScale)
	}
	if q.Abs().GreaterThan(MaxQuantity) {
		return fmt.Errorf("quantity %s exceeds the maximum of %s", q, MaxQuantity.StringFixed(QuantityScale))
	}
	return nil
}
