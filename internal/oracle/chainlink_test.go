package oracle

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAdapter returns a canned quote or error.
type fakeAdapter struct {
	quote Quote
	err   error
}

func (f *fakeAdapter) GetPrice(_ context.Context, _ string, _ uint64) (Quote, error) {
	return f.quote, f.err
}

func TestResolvePrice(t *testing.T) {
	ctx := context.Background()

	t.Run("fresh quote is not degraded", func(t *testing.T) {
		adapter := &fakeAdapter{quote: Quote{Symbol: "WETH", Price: 3250.0, IsStale: false}}

		price, degraded, err := ResolvePrice(ctx, adapter, "WETH", 8453)
		require.NoError(t, err)
		assert.Equal(t, 3250.0, price)
		assert.False(t, degraded)
	})

	t.Run("stale quote is usable but degraded", func(t *testing.T) {
		adapter := &fakeAdapter{quote: Quote{Symbol: "WETH", Price: 3250.0, IsStale: true, StalenessSeconds: 7500}}

		price, degraded, err := ResolvePrice(ctx, adapter, "WETH", 8453)
		require.NoError(t, err)
		assert.Equal(t, 3250.0, price)
		assert.True(t, degraded)
	})

	t.Run("oracle failure falls back to static price", func(t *testing.T) {
		adapter := &fakeAdapter{err: errors.New("all RPC endpoints failed")}

		price, degraded, err := ResolvePrice(ctx, adapter, "USDC", 8453)
		require.NoError(t, err)
		assert.Equal(t, 1.00, price)
		assert.True(t, degraded)
	})

	t.Run("no fallback for unknown symbol is an error", func(t *testing.T) {
		adapter := &fakeAdapter{err: errors.New("all RPC endpoints failed")}

		_, _, err := ResolvePrice(ctx, adapter, "UNLISTED", 8453)
		assert.Error(t, err)
	})
}

func TestStalenessWindow(t *testing.T) {
	t.Run("window floors at one hour", func(t *testing.T) {
		// A 60s heartbeat would give a 120s window; the floor widens it to 1h.
		window := stalenessWindow(60)
		assert.Equal(t, minStalenessFloor, window)
	})

	t.Run("long heartbeats use twice the heartbeat", func(t *testing.T) {
		window := stalenessWindow(86400)
		assert.Equal(t, int64(172800), int64(window.Seconds()))
	})
}
