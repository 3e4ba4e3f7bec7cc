package utils

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// ParseBaseUnits converts a decimal amount string into integer base units
// at the given precision. Rejects negative values, values with more
// fractional digits than decimals, and values that overflow uint64.
func ParseBaseUnits(value string, decimals int32) (uint64, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return 0, NewAppError(ErrCodeValidation, "Invalid amount", value)
	}
	if d.IsNegative() {
		return 0, NewAppError(ErrCodeValidation, "Amount must not be negative", value)
	}

	scaled := d.Shift(decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, NewAppError(ErrCodeValidation,
			"Amount has more precision than the deal allows", value)
	}

	bi := scaled.BigInt()
	if !bi.IsUint64() {
		return 0, NewAppError(ErrCodeValidation, "Amount out of range", value)
	}

	return bi.Uint64(), nil
}

// FormatBaseUnits renders an integer base-unit amount as a decimal string
// at the given precision
func FormatBaseUnits(amount uint64, decimals int32) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(amount), -decimals).String()
}
