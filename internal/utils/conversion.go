/*
This file contains common utility functions for converting between ledger
integer amounts and USD-facing floats, with live token decimals rather than a
fixed precision.
*/

package utils

import (
	"errors"
	"fmt"
	"math"

	sdkmath "cosmossdk.io/math"
)

// Error definitions for zero-tolerance error handling
var (
	ErrInvalidDecimals  = errors.New("token decimals are invalid")
	ErrAmountNil        = errors.New("amount is nil")
	ErrAmountNegative   = errors.New("amount is negative")
	ErrNotFinite        = errors.New("value is not finite")
	ErrConversionFailed = errors.New("conversion failed")
)

// IntToFloat64 converts a smallest-unit Int to a whole-token float64 using the
// token's decimals (e.g. 1_000_000 with 6 decimals -> 1.0).
func IntToFloat64(amount sdkmath.Int, decimals int) (float64, error) {
	if decimals < 0 || decimals > 18 {
		return 0, fmt.Errorf("%w: %d (must be between 0 and 18)", ErrInvalidDecimals, decimals)
	}
	if amount.IsNil() {
		return 0, ErrAmountNil
	}
	if amount.IsNegative() {
		return 0, ErrAmountNegative
	}

	decAmount := sdkmath.LegacyNewDecFromInt(amount)
	factor := sdkmath.LegacyNewDec(10).Power(uint64(decimals))

	result := decAmount.Quo(factor)
	resultFloat, err := result.Float64()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}

	if math.IsNaN(resultFloat) || math.IsInf(resultFloat, 0) {
		return 0, fmt.Errorf("%w: result is %f", ErrNotFinite, resultFloat)
	}

	return resultFloat, nil
}

// Float64ToInt converts a whole-token float64 to a smallest-unit Int using the
// token's decimals. String formatting avoids binary float drift on the way in.
func Float64ToInt(amount float64, decimals int) (sdkmath.Int, error) {
	if decimals < 0 || decimals > 18 {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %d (must be between 0 and 18)", ErrInvalidDecimals, decimals)
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: amount is %f", ErrNotFinite, amount)
	}
	if amount < 0 {
		return sdkmath.ZeroInt(), ErrAmountNegative
	}
	if amount == 0 {
		return sdkmath.ZeroInt(), nil
	}

	formatStr := fmt.Sprintf("%%.%df", decimals)
	amountStr := fmt.Sprintf(formatStr, amount)

	decAmount, err := sdkmath.LegacyNewDecFromStr(amountStr)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: failed to create decimal from string: %w", ErrConversionFailed, err)
	}

	factor := sdkmath.LegacyNewDec(10).Power(uint64(decimals))

	result := decAmount.Mul(factor).TruncateInt()
	if result.IsNegative() {
		return sdkmath.ZeroInt(), ErrAmountNegative
	}

	return result, nil
}

// IntToUSD values a smallest-unit amount at a USD price per whole token.
func IntToUSD(amount sdkmath.Int, decimals int, priceUSD float64) (float64, error) {
	tokens, err := IntToFloat64(amount, decimals)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(priceUSD) || math.IsInf(priceUSD, 0) || priceUSD < 0 {
		return 0, fmt.Errorf("%w: price is %f", ErrNotFinite, priceUSD)
	}
	return tokens * priceUSD, nil
}

// ApplySlippageFloor reduces amount by slippagePct percent, truncating toward
// zero. Used to derive minimum-output protection values.
func ApplySlippageFloor(amount sdkmath.Int, slippagePct float64) (sdkmath.Int, error) {
	if amount.IsNil() {
		return sdkmath.ZeroInt(), ErrAmountNil
	}
	if amount.IsNegative() {
		return sdkmath.ZeroInt(), ErrAmountNegative
	}
	if math.IsNaN(slippagePct) || math.IsInf(slippagePct, 0) || slippagePct < 0 || slippagePct > 100 {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: slippage %f%% out of range", ErrNotFinite, slippagePct)
	}

	// Work in basis points to stay in integer arithmetic.
	keepBps := sdkmath.NewInt(int64(math.Round((100 - slippagePct) * 100)))
	return amount.Mul(keepBps).Quo(sdkmath.NewInt(10000)), nil
}
