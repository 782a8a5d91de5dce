package vaultmgr

import (
	"context"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velikanghost/alioth-server-sub001/internal/ledger"
	"github.com/velikanghost/alioth-server-sub001/internal/types"
)

func TestSyncProjection(t *testing.T) {
	ctx := context.Background()

	t.Run("adopts ledger positions into the cache", func(t *testing.T) {
		fl := newFakeLedger()
		fl.sharesNow = sdkmath.NewInt(2_000_000)
		fl.valueNow = sdkmath.NewInt(2_100_000)
		fl.apy = 4.2
		store := newFakeStore()
		m := newTestManager(t, fl, store)

		require.NoError(t, m.SyncProjection(ctx, testUser, testChain))

		position, err := store.GetPosition(testUser, testChain, testToken)
		require.NoError(t, err)
		require.NotNil(t, position)
		assert.Equal(t, sdkmath.NewInt(2_000_000), position.Shares)
		assert.InDelta(t, 2.1, position.EstimatedValue, 1e-9)
		assert.Equal(t, 4.2, position.CurrentAPY)
		assert.InDelta(t, 2.1, store.totalsTVL, 1e-9)
		// A position the cache has never seen starts with an explicit zero
		// cost basis; a nil Int would not survive the store's serialization.
		require.False(t, position.DepositedAmount.IsNil())
		assert.True(t, position.DepositedAmount.IsZero())
		assert.Equal(t, 0.0, position.DepositedValueUSD)
	})

	t.Run("preserves cost basis across syncs", func(t *testing.T) {
		fl := newFakeLedger()
		fl.sharesNow = sdkmath.NewInt(2_000_000)
		fl.valueNow = sdkmath.NewInt(2_100_000)
		store := newFakeStore()
		store.positions[posKey(testUser, testChain, testToken)] = types.Position{
			UserAddress: testUser, ChainID: testChain, TokenAddress: testToken,
			Shares: sdkmath.NewInt(2_000_000), DepositedAmount: sdkmath.NewInt(2_000_000),
			DepositedValueUSD: 2.0,
		}
		m := newTestManager(t, fl, store)

		require.NoError(t, m.SyncProjection(ctx, testUser, testChain))

		position, err := store.GetPosition(testUser, testChain, testToken)
		require.NoError(t, err)
		require.NotNil(t, position)
		assert.Equal(t, sdkmath.NewInt(2_000_000), position.DepositedAmount)
		assert.Equal(t, 2.0, position.DepositedValueUSD)
		assert.InDelta(t, 0.1, position.YieldEarned, 1e-9)
	})

	t.Run("removes cached rows absent from the ledger", func(t *testing.T) {
		fl := newFakeLedger() // empty portfolio
		store := newFakeStore()
		store.positions[posKey(testUser, testChain, testToken)] = types.Position{
			UserAddress: testUser, ChainID: testChain, TokenAddress: testToken,
			Shares: sdkmath.NewInt(500_000),
		}
		m := newTestManager(t, fl, store)

		require.NoError(t, m.SyncProjection(ctx, testUser, testChain))
		assert.Empty(t, store.positions)
		assert.Equal(t, 0.0, store.totalsTVL)
	})

	t.Run("is idempotent", func(t *testing.T) {
		fl := newFakeLedger()
		fl.sharesNow = sdkmath.NewInt(2_000_000)
		fl.valueNow = sdkmath.NewInt(2_100_000)
		store := newFakeStore()
		m := newTestManager(t, fl, store)

		require.NoError(t, m.SyncProjection(ctx, testUser, testChain))
		first, err := store.GetPosition(testUser, testChain, testToken)
		require.NoError(t, err)

		require.NoError(t, m.SyncProjection(ctx, testUser, testChain))
		second, err := store.GetPosition(testUser, testChain, testToken)
		require.NoError(t, err)

		assert.Equal(t, first.Shares, second.Shares)
		assert.Equal(t, first.EstimatedValue, second.EstimatedValue)
		assert.Equal(t, first.DepositedAmount, second.DepositedAmount)
		assert.Len(t, store.positions, 1)
	})

	t.Run("rejects unknown chains", func(t *testing.T) {
		m := newTestManager(t, newFakeLedger(), newFakeStore())
		err := m.SyncProjection(ctx, testUser, 999)
		assert.True(t, types.IsValidation(err))
	})
}

func TestResolvePending(t *testing.T) {
	ctx := context.Background()

	seedPending := func(store *fakeStore) *types.Transaction {
		tx := &types.Transaction{
			ID: "pending-1", UserAddress: testUser, ChainID: testChain,
			Type: types.TxDeposit, TokenAddress: testToken, TokenSymbol: "USDC",
			Amount: sdkmath.NewInt(1_000_000), AmountUSD: 1.0,
			Status: types.TxPending, TxHash: "0xdeadbeef",
			SharesBefore: sdkmath.ZeroInt(), SharesAfter: sdkmath.ZeroInt(), SharesDelta: sdkmath.ZeroInt(),
		}
		store.transactions[tx.ID] = tx
		return tx
	}

	t.Run("confirms landed transactions", func(t *testing.T) {
		fl := newFakeLedger()
		fl.sharesNow = sdkmath.NewInt(1_000_000)
		fl.valueNow = sdkmath.NewInt(1_000_000)
		fl.checkReceipt = ledger.Receipt{Status: ledger.StatusConfirmed, GasUsed: 180000, GasFeeUSD: 0.1}
		store := newFakeStore()
		seedPending(store)
		m := newTestManager(t, fl, store)

		resolved, err := m.ResolvePending(ctx, 0)
		require.NoError(t, err)
		assert.Equal(t, 1, resolved)
		assert.Equal(t, types.TxConfirmed, store.transactions["pending-1"].Status)
		assert.Len(t, store.positions, 1)
	})

	t.Run("confirms withdrawals from the persisted baseline", func(t *testing.T) {
		fl := newFakeLedger()
		fl.sharesNow = sdkmath.NewInt(400_000)
		fl.valueNow = sdkmath.NewInt(400_000)
		fl.checkReceipt = ledger.Receipt{Status: ledger.StatusConfirmed, GasUsed: 150000, GasFeeUSD: 0.08}
		store := newFakeStore()
		store.transactions["pending-2"] = &types.Transaction{
			ID: "pending-2", UserAddress: testUser, ChainID: testChain,
			Type: types.TxWithdraw, TokenAddress: testToken, TokenSymbol: "USDC",
			Amount: sdkmath.NewInt(600_000), Status: types.TxPending, TxHash: "0xfeedface",
			SharesBefore: sdkmath.NewInt(1_000_000), SharesAfter: sdkmath.ZeroInt(), SharesDelta: sdkmath.ZeroInt(),
		}
		m := newTestManager(t, fl, store)

		resolved, err := m.ResolvePending(ctx, 0)
		require.NoError(t, err)
		assert.Equal(t, 1, resolved)

		final := store.transactions["pending-2"]
		assert.Equal(t, types.TxConfirmed, final.Status)
		assert.Equal(t, sdkmath.NewInt(1_000_000), final.SharesBefore)
		assert.Equal(t, sdkmath.NewInt(400_000), final.SharesAfter)
		assert.Equal(t, sdkmath.NewInt(600_000), final.SharesDelta)
		assert.Equal(t, final.SharesDelta, final.SharesBefore.Sub(final.SharesAfter))
	})

	t.Run("marks reverted transactions terminal", func(t *testing.T) {
		fl := newFakeLedger()
		fl.checkReceipt = ledger.Receipt{Status: ledger.StatusReverted}
		store := newFakeStore()
		seedPending(store)
		m := newTestManager(t, fl, store)

		resolved, err := m.ResolvePending(ctx, 0)
		require.NoError(t, err)
		assert.Equal(t, 1, resolved)
		assert.Equal(t, types.TxReverted, store.transactions["pending-1"].Status)
		assert.Empty(t, store.positions)
	})

	t.Run("leaves unmined transactions pending", func(t *testing.T) {
		fl := newFakeLedger()
		fl.checkReceipt = ledger.Receipt{Status: ledger.StatusPending}
		store := newFakeStore()
		seedPending(store)
		m := newTestManager(t, fl, store)

		resolved, err := m.ResolvePending(ctx, 0)
		require.NoError(t, err)
		assert.Equal(t, 0, resolved)
		assert.Equal(t, types.TxPending, store.transactions["pending-1"].Status)
	})
}
