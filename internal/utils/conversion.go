/*
This file contains common utility functions for converting between decimal
USD amounts and the integer minimum-unit amounts settlement networks ledger
in. Conversions happen only at the settlement-client boundary, and outbound
conversions floor: overshooting a ledger balance must be impossible even
under floating-point amount inputs.
*/

package utils

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Error definitions for zero-tolerance error handling
var (
	ErrInvalidPrecision = errors.New("precision is invalid")
	ErrAmountNegative   = errors.New("amount is negative")
	ErrNotFinite        = errors.New("value is not finite")
	ErrConversionFailed = errors.New("conversion failed")
)

// USDToMinimalUnits converts a USD-equivalent amount to integer minimum
// units at the given decimal precision, rounding down. Never rounds up.
func USDToMinimalUnits(amount float64, precision int) (decimal.Decimal, error) {
	if precision < 0 || precision > 18 {
		return decimal.Zero, fmt.Errorf("%w: %d (must be between 0 and 18)", ErrInvalidPrecision, precision)
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return decimal.Zero, fmt.Errorf("%w: amount is %f", ErrNotFinite, amount)
	}
	if amount < 0 {
		return decimal.Zero, ErrAmountNegative
	}
	if amount == 0 {
		return decimal.Zero, nil
	}

	units := decimal.NewFromFloat(amount).Shift(int32(precision)).Floor()
	if units.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: flooring produced a negative amount", ErrConversionFailed)
	}
	return units, nil
}

// MinimalUnitsToUSD converts integer minimum units back to a USD-equivalent
// float amount at the given decimal precision.
func MinimalUnitsToUSD(units decimal.Decimal, precision int) (float64, error) {
	if precision < 0 || precision > 18 {
		return 0, fmt.Errorf("%w: %d (must be between 0 and 18)", ErrInvalidPrecision, precision)
	}
	if units.IsNegative() {
		return 0, ErrAmountNegative
	}

	result, _ := units.Shift(int32(-precision)).Float64()
	if math.IsNaN(result) || math.IsInf(result, 0) {
		return 0, fmt.Errorf("%w: result is %f", ErrNotFinite, result)
	}
	return result, nil
}
