package utils

import (
	"math"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntToFloat64(t *testing.T) {
	t.Run("whole token with 6 decimals", func(t *testing.T) {
		result, err := IntToFloat64(sdkmath.NewInt(1_000_000), 6)
		require.NoError(t, err)
		assert.Equal(t, 1.0, result)
	})

	t.Run("fractional amount with 18 decimals", func(t *testing.T) {
		result, err := IntToFloat64(sdkmath.NewInt(1_500_000_000_000_000_000), 18)
		require.NoError(t, err)
		assert.Equal(t, 1.5, result)
	})

	t.Run("zero amount", func(t *testing.T) {
		result, err := IntToFloat64(sdkmath.ZeroInt(), 6)
		require.NoError(t, err)
		assert.Equal(t, 0.0, result)
	})

	t.Run("rejects negative amount", func(t *testing.T) {
		_, err := IntToFloat64(sdkmath.NewInt(-1), 6)
		assert.ErrorIs(t, err, ErrAmountNegative)
	})

	t.Run("rejects nil amount", func(t *testing.T) {
		_, err := IntToFloat64(sdkmath.Int{}, 6)
		assert.ErrorIs(t, err, ErrAmountNil)
	})

	t.Run("rejects out-of-range decimals", func(t *testing.T) {
		_, err := IntToFloat64(sdkmath.NewInt(1), 19)
		assert.ErrorIs(t, err, ErrInvalidDecimals)

		_, err = IntToFloat64(sdkmath.NewInt(1), -1)
		assert.ErrorIs(t, err, ErrInvalidDecimals)
	})
}

func TestFloat64ToInt(t *testing.T) {
	t.Run("whole token with 6 decimals", func(t *testing.T) {
		result, err := Float64ToInt(1.0, 6)
		require.NoError(t, err)
		assert.Equal(t, sdkmath.NewInt(1_000_000), result)
	})

	t.Run("fractional amount truncates", func(t *testing.T) {
		result, err := Float64ToInt(0.1234567, 6)
		require.NoError(t, err)
		assert.Equal(t, sdkmath.NewInt(123_457), result) // %.6f rounds the last digit
	})

	t.Run("zero amount", func(t *testing.T) {
		result, err := Float64ToInt(0, 6)
		require.NoError(t, err)
		assert.True(t, result.IsZero())
	})

	t.Run("rejects negative amount", func(t *testing.T) {
		_, err := Float64ToInt(-1.0, 6)
		assert.ErrorIs(t, err, ErrAmountNegative)
	})

	t.Run("rejects NaN and Inf", func(t *testing.T) {
		_, err := Float64ToInt(math.NaN(), 6)
		assert.ErrorIs(t, err, ErrNotFinite)

		_, err = Float64ToInt(math.Inf(1), 6)
		assert.ErrorIs(t, err, ErrNotFinite)
	})
}

func TestRoundTrip(t *testing.T) {
	original := sdkmath.NewInt(123_456_789)
	tokens, err := IntToFloat64(original, 6)
	require.NoError(t, err)

	back, err := Float64ToInt(tokens, 6)
	require.NoError(t, err)
	assert.Equal(t, original, back)
}

func TestIntToUSD(t *testing.T) {
	t.Run("values at price", func(t *testing.T) {
		usd, err := IntToUSD(sdkmath.NewInt(2_500_000), 6, 2.0)
		require.NoError(t, err)
		assert.Equal(t, 5.0, usd)
	})

	t.Run("rejects negative price", func(t *testing.T) {
		_, err := IntToUSD(sdkmath.NewInt(1_000_000), 6, -1.0)
		assert.ErrorIs(t, err, ErrNotFinite)
	})
}

func TestApplySlippageFloor(t *testing.T) {
	t.Run("five percent floor", func(t *testing.T) {
		result, err := ApplySlippageFloor(sdkmath.NewInt(10_000), 5.0)
		require.NoError(t, err)
		assert.Equal(t, sdkmath.NewInt(9_500), result)
	})

	t.Run("zero slippage keeps everything", func(t *testing.T) {
		result, err := ApplySlippageFloor(sdkmath.NewInt(10_000), 0)
		require.NoError(t, err)
		assert.Equal(t, sdkmath.NewInt(10_000), result)
	})

	t.Run("full slippage keeps nothing", func(t *testing.T) {
		result, err := ApplySlippageFloor(sdkmath.NewInt(10_000), 100)
		require.NoError(t, err)
		assert.True(t, result.IsZero())
	})

	t.Run("fractional percent uses basis points", func(t *testing.T) {
		result, err := ApplySlippageFloor(sdkmath.NewInt(10_000), 0.5)
		require.NoError(t, err)
		assert.Equal(t, sdkmath.NewInt(9_950), result)
	})

	t.Run("truncates toward zero", func(t *testing.T) {
		result, err := ApplySlippageFloor(sdkmath.NewInt(999), 5.0)
		require.NoError(t, err)
		assert.Equal(t, sdkmath.NewInt(949), result) // 999*9500/10000 = 949.05
	})

	t.Run("rejects out-of-range slippage", func(t *testing.T) {
		_, err := ApplySlippageFloor(sdkmath.NewInt(10_000), 101)
		assert.Error(t, err)

		_, err = ApplySlippageFloor(sdkmath.NewInt(10_000), -1)
		assert.Error(t, err)
	})
}
