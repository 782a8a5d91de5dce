package vaultmgr

import (
	"context"

	sdkmath "cosmossdk.io/math"

	"github.com/velikanghost/alioth-server-sub001/internal/oracle"
	"github.com/velikanghost/alioth-server-sub001/internal/types"
	"github.com/velikanghost/alioth-server-sub001/internal/utils"
)

// previewSlippageSteps are the tolerance levels shown to users before they
// commit to a withdrawal.
var previewSlippageSteps = []float64{1.0, 2.0, 5.0, 10.0}

// SlippageOption is one row of the withdrawal preview table.
type SlippageOption struct {
	SlippagePct float64     `json:"slippagePct"`
	MinAmount   sdkmath.Int `json:"minAmount"`
	MinValueUSD float64     `json:"minValueUSD"`
}

// WithdrawalPreview is a read-only projection of what a withdrawal of the
// given shares would return, at several slippage tolerances.
type WithdrawalPreview struct {
	UserAddress     string           `json:"userAddress"`
	ChainID         uint64           `json:"chainId"`
	TokenAddress    string           `json:"tokenAddress"`
	TokenSymbol     string           `json:"tokenSymbol"`
	Shares          sdkmath.Int      `json:"shares"`
	ExpectedAmount  sdkmath.Int      `json:"expectedAmount"`
	ExpectedUSD     float64          `json:"expectedUsd"`
	PricingDegraded bool             `json:"pricingDegraded"`
	Options         []SlippageOption `json:"options"`
}

// GetWithdrawalPreview quotes a withdrawal without submitting anything to the
// ledger. The requested shares are capped at the user's ledger balance.
func (m *Manager) GetWithdrawalPreview(ctx context.Context, user string, chainID uint64, tokenAddress string, shares sdkmath.Int) (*WithdrawalPreview, error) {
	client, err := m.validateRequest(user, chainID, tokenAddress)
	if err != nil {
		return nil, err
	}
	if shares.IsNil() || !shares.IsPositive() {
		return nil, types.NewValidationError("preview shares must be positive")
	}

	position, err := client.GetUserPosition(ctx, user, tokenAddress)
	if err != nil {
		return nil, types.NewLedgerError(err, "could not read ledger position")
	}
	if shares.GT(position.Shares) {
		shares = position.Shares
	}
	if !shares.IsPositive() {
		return nil, types.NewValidationError("no shares to withdraw for %s", tokenAddress)
	}

	expected, err := client.PreviewWithdraw(ctx, tokenAddress, shares)
	if err != nil {
		return nil, types.NewLedgerError(err, "withdrawal preview failed")
	}

	decimals, err := client.TokenDecimals(ctx, tokenAddress)
	if err != nil {
		return nil, types.NewLedgerError(err, "could not read token decimals")
	}
	symbol, err := client.TokenSymbol(ctx, tokenAddress)
	if err != nil {
		return nil, types.NewLedgerError(err, "could not read token symbol")
	}

	price, degraded, err := oracle.ResolvePrice(ctx, m.oracle, symbol, chainID)
	if err != nil {
		return nil, &types.VaultError{Code: types.CodeOracleUnavailable, Reason: "no usable price for " + symbol, Err: err}
	}
	expectedUSD, err := utils.IntToUSD(expected, decimals, price)
	if err != nil {
		return nil, types.NewValidationError("could not value expected output: %v", err)
	}

	options := make([]SlippageOption, 0, len(previewSlippageSteps))
	for _, pct := range previewSlippageSteps {
		minAmount, ferr := utils.ApplySlippageFloor(expected, pct)
		if ferr != nil {
			return nil, types.NewValidationError("could not apply %.1f%% slippage: %v", pct, ferr)
		}
		minUSD, uerr := utils.IntToUSD(minAmount, decimals, price)
		if uerr != nil {
			return nil, types.NewValidationError("could not value slippage floor: %v", uerr)
		}
		options = append(options, SlippageOption{SlippagePct: pct, MinAmount: minAmount, MinValueUSD: minUSD})
	}

	return &WithdrawalPreview{
		UserAddress:     user,
		ChainID:         chainID,
		TokenAddress:    tokenAddress,
		TokenSymbol:     symbol,
		Shares:          shares,
		ExpectedAmount:  expected,
		ExpectedUSD:     expectedUSD,
		PricingDegraded: degraded,
		Options:         options,
	}, nil
}
