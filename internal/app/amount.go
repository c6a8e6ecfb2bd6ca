package app

import (
	"github.com/shopspring/decimal"
)

var (
	hundred        = decimal.NewFromInt(100)
	maxMinorAmount = decimal.NewFromInt(1 << 53)
)

// ToMinorUnits converts a currency amount such as 12.50 into 1250.
// More than two decimal places is rejected rather than rounded.
func ToMinorUnits(amount decimal.Decimal) (int64, error) {
	if !amount.IsPositive() {
		return 0, ErrInvalidAmount
	}
	minor := amount.Mul(hundred)
	if !minor.Equal(minor.Truncate(0)) || minor.GreaterThan(maxMinorAmount) {
		return 0, ErrInvalidAmount
	}
	return minor.IntPart(), nil
}

// FormatMinorUnits renders minor units with two decimals.
func FormatMinorUnits(minor int64) string {
	return decimal.New(minor, -2).StringFixed(2)
}
