package vaultmgr

import (
	"context"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/velikanghost/alioth-server-sub001/internal/oracle"
	"github.com/velikanghost/alioth-server-sub001/internal/types"
	"github.com/velikanghost/alioth-server-sub001/internal/utils"
)

// SyncProjection reconciles the cached position set for one user on one chain
// against the ledger. The ledger's portfolio read is authoritative: cached
// rows absent from it are deleted, and share counts and values are overwritten.
// Cost basis fields are preserved from the cache, since the ledger does not
// track them. The operation is idempotent.
func (m *Manager) SyncProjection(ctx context.Context, user string, chainID uint64) error {
	client, ok := m.ledgers[chainID]
	if !ok {
		return types.NewValidationError("chain %d is not supported", chainID)
	}

	unlock := m.lock(user, chainID)
	defer unlock()

	portfolio, err := client.GetUserPortfolio(ctx, user)
	if err != nil {
		return types.NewLedgerError(err, "could not read ledger portfolio")
	}

	cached, err := m.store.ListPositions(user, chainID)
	if err != nil {
		return fmt.Errorf("could not list cached positions: %w", err)
	}
	cachedByToken := make(map[string]types.Position, len(cached))
	for _, p := range cached {
		cachedByToken[p.TokenAddress] = p
	}

	onLedger := make(map[string]bool, len(portfolio))
	for _, entry := range portfolio {
		if entry.Shares.IsZero() {
			continue
		}
		onLedger[entry.Token] = true

		decimals, derr := client.TokenDecimals(ctx, entry.Token)
		if derr != nil {
			m.logger.Error().Err(derr).Str("token", entry.Token).Msg("Skipping position during sync: decimals unavailable")
			continue
		}
		price, _, perr := oracle.ResolvePrice(ctx, m.oracle, entry.Symbol, chainID)
		if perr != nil {
			m.logger.Error().Err(perr).Str("token", entry.Symbol).Msg("Skipping position during sync: no usable price")
			continue
		}
		estimatedValue, verr := utils.IntToUSD(entry.Value, decimals, price)
		if verr != nil {
			m.logger.Error().Err(verr).Str("token", entry.Symbol).Msg("Skipping position during sync: valuation failed")
			continue
		}

		position := types.Position{
			UserAddress:     user,
			ChainID:         chainID,
			TokenAddress:    entry.Token,
			TokenSymbol:     entry.Symbol,
			Shares:          entry.Shares,
			DepositedAmount: sdkmath.ZeroInt(),
			EstimatedValue:  estimatedValue,
			CurrentAPY:      entry.APY,
			LastUpdated:     time.Now().UTC(),
		}
		if prior, found := cachedByToken[entry.Token]; found {
			position.DepositedAmount = prior.DepositedAmount
			position.DepositedValueUSD = prior.DepositedValueUSD
		}
		position.YieldEarned = position.EstimatedValue - position.DepositedValueUSD
		if position.YieldEarned < 0 {
			position.YieldEarned = 0
		}

		if err := m.store.UpsertPosition(position); err != nil {
			return fmt.Errorf("could not upsert position for %s: %w", entry.Symbol, err)
		}
	}

	// Cached rows the ledger no longer reports are stale and removed.
	for _, p := range cached {
		if onLedger[p.TokenAddress] {
			continue
		}
		m.logger.Info().Str("user", user).Uint64("chainID", chainID).Str("token", p.TokenSymbol).Msg("Removing cached position absent from ledger")
		if err := m.store.DeletePosition(user, chainID, p.TokenAddress); err != nil {
			return fmt.Errorf("could not delete stale position for %s: %w", p.TokenSymbol, err)
		}
	}

	return m.recomputeTotals(user)
}

// SyncAllChains reconciles one user across every configured chain, continuing
// past per-chain failures.
func (m *Manager) SyncAllChains(ctx context.Context, user string) error {
	var lastErr error
	for chainID := range m.ledgers {
		if err := m.SyncProjection(ctx, user, chainID); err != nil {
			m.logger.Error().Err(err).Str("user", user).Uint64("chainID", chainID).Msg("Projection sync failed")
			lastErr = err
		}
	}
	return lastErr
}
