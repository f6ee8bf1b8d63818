/*
This file contains common utility functions for converting source-reported
numeric encodings into the normalized forms the core consumes, particularly
fixed-point collateral factors and decimal-fraction yields.
*/

package utils

import (
	"errors"
	"fmt"
	"math"
	"strings"

	sdkmath "cosmossdk.io/math"
)

// Error definitions for zero-tolerance error handling
var (
	ErrEmptyValue       = errors.New("value is empty")
	ErrNegativeValue    = errors.New("value is negative")
	ErrNotFinite        = errors.New("value is not finite")
	ErrFactorOutOfRange = errors.New("collateral factor out of range")
	ErrConversionFailed = errors.New("conversion failed")
)

// fixedPointScale divides 1e18-scaled integer encodings down to fractions.
var fixedPointScale = sdkmath.LegacyNewDec(10).Power(18)

// ParseCollateralFactor parses an LLTV from either a decimal fraction
// ("0.86") or a 1e18-scaled fixed-point integer ("860000000000000000").
// Values greater than 1 imply the fixed-point encoding and are rescaled.
// The result is a fraction in [0, 1).
func ParseCollateralFactor(raw string) (float64, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, ErrEmptyValue
	}

	dec, err := sdkmath.LegacyNewDecFromStr(trimmed)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}
	if dec.IsNegative() {
		return 0, ErrNegativeValue
	}

	if dec.GT(sdkmath.LegacyOneDec()) {
		dec = dec.Quo(fixedPointScale)
	}

	factor, err := dec.Float64()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}
	if math.IsNaN(factor) || math.IsInf(factor, 0) {
		return 0, ErrNotFinite
	}
	// A factor of exactly 1 would imply unbounded leverage; anything still
	// above 1 after rescaling was not a valid encoding to begin with.
	if factor >= 1 {
		return 0, fmt.Errorf("%w: %f", ErrFactorOutOfRange, factor)
	}

	return factor, nil
}

// DecimalToPercent converts a decimal-fraction rate (0.05) into the
// percentage form (5.0) the core works with.
func DecimalToPercent(v float64) (float64, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, ErrNotFinite
	}
	return v * 100, nil
}
