/*

The lifecycle manager owns the deposit/withdrawal state machine. Every
operation persists a pending Transaction record before submitting to the
ledger, blocks on confirmation with a bounded timeout, and only mutates the
local projection after the ledger has confirmed. Operations on the same
(user, chain) are serialized through keyed locks.

*/

package vaultmgr

import (
	"context"
	"fmt"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/rs/zerolog"

	"github.com/velikanghost/alioth-server-sub001/internal/config"
	"github.com/velikanghost/alioth-server-sub001/internal/ledger"
	"github.com/velikanghost/alioth-server-sub001/internal/logger"
	"github.com/velikanghost/alioth-server-sub001/internal/oracle"
	"github.com/velikanghost/alioth-server-sub001/internal/types"
	"github.com/velikanghost/alioth-server-sub001/internal/utils"
)

const (
	// defaultWithdrawSlippagePct is applied when the caller supplies no
	// minimum output for a withdrawal.
	defaultWithdrawSlippagePct = 5.0
	// conservativeSharesFloorPct is the fallback minimum output when the
	// ledger's value data is unavailable: 1% of the requested shares rather
	// than zero, since a zero floor would accept arbitrarily bad execution.
	conservativeSharesFloorPct = 1.0
)

// Manager orchestrates the transaction lifecycle across all configured chains.
type Manager struct {
	ledgers        map[uint64]ledger.Client
	oracle         oracle.Adapter
	store          Store
	confirmTimeout time.Duration
	locks          *xsync.Map[string, *sync.Mutex]
	logger         zerolog.Logger
}

// Config holds the dependencies for creating a Manager.
type Config struct {
	Ledgers             map[uint64]ledger.Client
	Oracle              oracle.Adapter
	Store               Store
	ConfirmationTimeout time.Duration
}

// NewManager creates a Manager with dependency injection.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Ledgers) == 0 {
		return nil, fmt.Errorf("at least one ledger client is required")
	}
	if cfg.Oracle == nil {
		return nil, fmt.Errorf("oracle adapter cannot be nil")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if cfg.ConfirmationTimeout <= 0 {
		cfg.ConfirmationTimeout = 60 * time.Second
	}

	return &Manager{
		ledgers:        cfg.Ledgers,
		oracle:         cfg.Oracle,
		store:          cfg.Store,
		confirmTimeout: cfg.ConfirmationTimeout,
		locks:          xsync.NewMap[string, *sync.Mutex](),
		logger:         logger.GetForComponent("tx_manager"),
	}, nil
}

// DepositRequest describes a user deposit into the vault.
type DepositRequest struct {
	UserAddress  string
	ChainID      uint64
	TokenAddress string
	Amount       sdkmath.Int
	// MinShares is optional slippage protection; when nil it is derived from
	// the ledger's deposit preview and the user's max slippage preference.
	MinShares *sdkmath.Int
}

// WithdrawRequest describes a user withdrawal from the vault.
type WithdrawRequest struct {
	UserAddress  string
	ChainID      uint64
	TokenAddress string
	Shares       sdkmath.Int
	// MinAmount is optional minimum-output protection; when nil it is derived
	// from the ledger-reported value per share with a 5% allowance.
	MinAmount *sdkmath.Int
	// Emergency bypasses the agent's gates but not validation; the resulting
	// record is typed emergency_withdraw.
	Emergency bool
}

// Deposit executes the full deposit lifecycle. On confirmation timeout the
// returned transaction is still pending and err is types.ErrConfirmationTimeout;
// the pending resolver finishes the job later.
func (m *Manager) Deposit(ctx context.Context, req DepositRequest) (*types.Transaction, error) {
	client, err := m.validateRequest(req.UserAddress, req.ChainID, req.TokenAddress)
	if err != nil {
		return nil, err
	}
	if req.Amount.IsNil() || !req.Amount.IsPositive() {
		return nil, types.NewValidationError("deposit amount must be positive")
	}

	supported, err := client.IsTokenSupported(ctx, req.TokenAddress)
	if err != nil {
		return nil, types.NewLedgerError(err, "could not verify token support")
	}
	if !supported {
		return nil, types.NewValidationError("token %s is not supported by the vault on chain %d", req.TokenAddress, req.ChainID)
	}

	unlock := m.lock(req.UserAddress, req.ChainID)
	defer unlock()

	decimals, err := client.TokenDecimals(ctx, req.TokenAddress)
	if err != nil {
		return nil, types.NewLedgerError(err, "could not read token decimals")
	}
	symbol, err := client.TokenSymbol(ctx, req.TokenAddress)
	if err != nil {
		return nil, types.NewLedgerError(err, "could not read token symbol")
	}

	price, degraded, err := oracle.ResolvePrice(ctx, m.oracle, symbol, req.ChainID)
	if err != nil {
		return nil, &types.VaultError{Code: types.CodeOracleUnavailable, Reason: "no usable price for " + symbol, Err: err}
	}
	amountUSD, err := utils.IntToUSD(req.Amount, decimals, price)
	if err != nil {
		return nil, types.NewValidationError("could not value deposit amount: %v", err)
	}

	// Pre-operation shares come from the ledger, never the local cache. They
	// are read before the record is persisted so the pending row carries the
	// true baseline for the resolver.
	before, err := client.GetUserPosition(ctx, req.UserAddress, req.TokenAddress)
	if err != nil {
		return nil, types.NewLedgerError(err, "could not read pre-operation shares")
	}

	// The pending record is persisted before any ledger submission so that
	// every subsequent failure stays auditable.
	tx := m.newTransaction(req.UserAddress, req.ChainID, types.TxDeposit, req.TokenAddress, symbol, req.Amount, amountUSD, degraded, types.InitiatorUser, nil)
	tx.SharesBefore = before.Shares
	if err := m.store.InsertTransaction(*tx); err != nil {
		return nil, fmt.Errorf("failed to persist pending transaction: %w", err)
	}

	opLogger := m.logger.With().Str("transaction", tx.ID).Str("user", req.UserAddress).Uint64("chainID", req.ChainID).Str("token", symbol).Logger()
	opLogger.Info().Str("amount", req.Amount.String()).Float64("amountUSD", amountUSD).Bool("degradedPricing", degraded).Msg("Deposit initiated")

	minShares := sdkmath.ZeroInt()
	if req.MinShares != nil {
		minShares = *req.MinShares
	} else if expected, err := client.PreviewDeposit(ctx, req.TokenAddress, req.Amount); err == nil {
		vault, verr := m.store.GetOrCreateUserVault(req.UserAddress)
		slippage := defaultWithdrawSlippagePct
		if verr == nil && vault.Preferences.MaxSlippagePct > 0 {
			slippage = vault.Preferences.MaxSlippagePct
		}
		if floored, ferr := utils.ApplySlippageFloor(expected, slippage); ferr == nil {
			minShares = floored
		}
	}

	txHash, err := client.Deposit(ctx, req.UserAddress, req.TokenAddress, req.Amount, minShares)
	if err != nil {
		return tx, m.fail(tx, types.TxFailed, "ledger submission failed", err)
	}
	tx.TxHash = txHash
	if err := m.store.SetTransactionHash(tx.ID, txHash); err != nil {
		opLogger.Error().Err(err).Msg("Failed to record transaction hash")
	}

	return m.awaitAndFinalize(ctx, client, tx, opLogger)
}

// Withdraw executes the full withdrawal lifecycle, mirroring Deposit with
// inverted direction.
func (m *Manager) Withdraw(ctx context.Context, req WithdrawRequest) (*types.Transaction, error) {
	client, err := m.validateRequest(req.UserAddress, req.ChainID, req.TokenAddress)
	if err != nil {
		return nil, err
	}
	if req.Shares.IsNil() || !req.Shares.IsPositive() {
		return nil, types.NewValidationError("withdrawal shares must be positive")
	}

	unlock := m.lock(req.UserAddress, req.ChainID)
	defer unlock()

	// The ledger balance is authoritative for this check; the local cache is
	// never trusted here.
	position, err := client.GetUserPosition(ctx, req.UserAddress, req.TokenAddress)
	if err != nil {
		return nil, types.NewLedgerError(err, "could not read ledger position")
	}
	if req.Shares.GT(position.Shares) {
		return nil, types.NewValidationError("requested %s shares but ledger reports only %s", req.Shares.String(), position.Shares.String())
	}

	decimals, err := client.TokenDecimals(ctx, req.TokenAddress)
	if err != nil {
		return nil, types.NewLedgerError(err, "could not read token decimals")
	}
	symbol, err := client.TokenSymbol(ctx, req.TokenAddress)
	if err != nil {
		return nil, types.NewLedgerError(err, "could not read token symbol")
	}

	minAmount := sdkmath.ZeroInt()
	if req.MinAmount != nil {
		minAmount = *req.MinAmount
	} else {
		minAmount = deriveMinAmount(req.Shares, position)
	}

	// Pricing failure never blocks a withdrawal: the minimum output is derived
	// from ledger share value, so only the recorded USD figure degrades.
	amountUSD := 0.0
	price, degraded, perr := oracle.ResolvePrice(ctx, m.oracle, symbol, req.ChainID)
	if perr != nil {
		degraded = true
		m.logger.Warn().Err(perr).Str("token", symbol).Uint64("chainID", req.ChainID).Msg("No usable price; proceeding with unvalued withdrawal")
	} else if expected, err := client.PreviewWithdraw(ctx, req.TokenAddress, req.Shares); err == nil {
		if usd, uerr := utils.IntToUSD(expected, decimals, price); uerr == nil {
			amountUSD = usd
		}
	}

	txType := types.TxWithdraw
	if req.Emergency {
		txType = types.TxEmergencyWithdraw
	}
	tx := m.newTransaction(req.UserAddress, req.ChainID, txType, req.TokenAddress, symbol, req.Shares, amountUSD, degraded, types.InitiatorUser, nil)
	tx.SharesBefore = position.Shares
	if err := m.store.InsertTransaction(*tx); err != nil {
		return nil, fmt.Errorf("failed to persist pending transaction: %w", err)
	}

	opLogger := m.logger.With().Str("transaction", tx.ID).Str("user", req.UserAddress).Uint64("chainID", req.ChainID).Str("token", symbol).Logger()
	opLogger.Info().Str("shares", req.Shares.String()).Str("minAmount", minAmount.String()).Float64("amountUSD", amountUSD).Msg("Withdrawal initiated")

	txHash, err := client.Withdraw(ctx, req.UserAddress, req.TokenAddress, req.Shares, minAmount)
	if err != nil {
		return tx, m.fail(tx, types.TxFailed, "ledger submission failed", err)
	}
	tx.TxHash = txHash
	if err := m.store.SetTransactionHash(tx.ID, txHash); err != nil {
		opLogger.Error().Err(err).Msg("Failed to record transaction hash")
	}

	return m.awaitAndFinalize(ctx, client, tx, opLogger)
}

// ExecuteRebalance carries out an approved allocation plan as an
// agent-initiated transaction. Shares are expected to be unchanged by a
// rebalance; the actual delta is recorded regardless.
func (m *Manager) ExecuteRebalance(ctx context.Context, plan types.AllocationPlan) (*types.Transaction, error) {
	client, err := m.validateRequest(plan.UserAddress, plan.ChainID, plan.TokenAddress)
	if err != nil {
		return nil, err
	}
	if len(plan.Actions) == 0 {
		return nil, types.NewValidationError("allocation plan has no actions")
	}
	action := plan.Actions[0]
	toAdapter := config.AdapterFor(plan.ChainID, action.ToProtocol)
	if toAdapter == "" {
		return nil, types.NewValidationError("no adapter known for protocol %s on chain %d", action.ToProtocol, plan.ChainID)
	}

	unlock := m.lock(plan.UserAddress, plan.ChainID)
	defer unlock()

	position, err := client.GetUserPosition(ctx, plan.UserAddress, plan.TokenAddress)
	if err != nil {
		return nil, types.NewLedgerError(err, "could not read ledger position")
	}
	if !position.Shares.IsPositive() {
		return nil, types.NewValidationError("no ledger position to rebalance for %s", plan.TokenAddress)
	}

	agentData := &types.AgentData{
		Reason:     fmt.Sprintf("move %s from %s to %s for +%.2f%% APY", plan.TokenSymbol, action.FromProtocol, action.ToProtocol, action.ExpectedAPYImprovement),
		Confidence: action.Confidence,
	}
	tx := m.newTransaction(plan.UserAddress, plan.ChainID, types.TxRebalance, plan.TokenAddress, plan.TokenSymbol, position.Value, action.AmountUSD, false, types.InitiatorAgent, agentData)
	tx.SharesBefore = position.Shares
	if err := m.store.InsertTransaction(*tx); err != nil {
		return nil, fmt.Errorf("failed to persist pending transaction: %w", err)
	}

	opLogger := m.logger.With().Str("transaction", tx.ID).Str("user", plan.UserAddress).Uint64("chainID", plan.ChainID).Str("token", plan.TokenSymbol).Logger()
	opLogger.Info().Str("fromProtocol", action.FromProtocol).Str("toProtocol", action.ToProtocol).Float64("confidence", action.Confidence).Msg("Agent rebalance initiated")

	txHash, err := client.Rebalance(ctx, plan.UserAddress, plan.TokenAddress, position.Value, toAdapter)
	if err != nil {
		return tx, m.fail(tx, types.TxFailed, "ledger submission failed", err)
	}
	tx.TxHash = txHash
	if err := m.store.SetTransactionHash(tx.ID, txHash); err != nil {
		opLogger.Error().Err(err).Msg("Failed to record transaction hash")
	}

	return m.awaitAndFinalize(ctx, client, tx, opLogger)
}

// awaitAndFinalize blocks on the bounded confirmation wait and resolves the
// transaction into confirmed/reverted, or leaves it pending on timeout.
func (m *Manager) awaitAndFinalize(ctx context.Context, client ledger.Client, tx *types.Transaction, opLogger zerolog.Logger) (*types.Transaction, error) {
	receipt, err := client.WaitForConfirmation(ctx, tx.TxHash, m.confirmTimeout)
	if err != nil {
		// Context cancellation while waiting: the submitted transaction is not
		// aborted, only this caller stops waiting.
		opLogger.Warn().Err(err).Msg("Confirmation wait interrupted; transaction remains pending")
		return tx, types.ErrConfirmationTimeout
	}

	switch receipt.Status {
	case ledger.StatusPending:
		opLogger.Warn().Msg("Confirmation timed out; pending resolver will finish the transaction")
		return tx, types.ErrConfirmationTimeout
	case ledger.StatusReverted:
		return tx, m.fail(tx, types.TxReverted, "transaction reverted on chain", nil)
	}

	return m.confirm(ctx, client, tx, receipt, opLogger)
}

// confirm re-reads post-operation shares from the ledger, finalizes the
// record, and updates the local projection.
func (m *Manager) confirm(ctx context.Context, client ledger.Client, tx *types.Transaction, receipt ledger.Receipt, opLogger zerolog.Logger) (*types.Transaction, error) {
	after, err := client.GetUserPosition(ctx, tx.UserAddress, tx.TokenAddress)
	if err != nil {
		// The chain confirmed but the post-read failed; leave the record
		// pending so the resolver retries with a fresh read.
		opLogger.Error().Err(err).Msg("Post-confirmation share read failed; leaving transaction pending")
		return tx, types.ErrConfirmationTimeout
	}

	tx.SharesAfter = after.Shares
	tx.SharesDelta = sharesDelta(tx.Type, tx.SharesBefore, tx.SharesAfter)
	tx.Status = types.TxConfirmed
	tx.GasUsed = receipt.GasUsed
	tx.GasFeeUSD = receipt.GasFeeUSD
	tx.UpdatedAt = time.Now().UTC()

	if err := m.store.MarkTransactionConfirmed(*tx); err != nil {
		return tx, fmt.Errorf("ledger confirmed but record update failed: %w", err)
	}

	if err := m.updateProjection(ctx, client, tx, after); err != nil {
		// Projection drift is healed by reconciliation; the confirmed record
		// is already durable.
		opLogger.Error().Err(err).Msg("Projection update failed after confirmation; reconciliation will heal")
	}
	if err := m.store.IncrementStatistics(tx.UserAddress, tx.Type); err != nil {
		opLogger.Error().Err(err).Msg("Failed to increment user statistics")
	}

	opLogger.Info().
		Str("txHash", tx.TxHash).
		Str("sharesDelta", tx.SharesDelta.String()).
		Uint64("gasUsed", tx.GasUsed).
		Float64("gasFeeUSD", tx.GasFeeUSD).
		Msg("Transaction confirmed")

	return tx, nil
}

// updateProjection refreshes the cached Position for the confirmed
// transaction's token and recomputes the user's aggregate totals.
func (m *Manager) updateProjection(ctx context.Context, client ledger.Client, tx *types.Transaction, after ledger.UserPosition) error {
	decimals, err := client.TokenDecimals(ctx, tx.TokenAddress)
	if err != nil {
		return fmt.Errorf("could not read token decimals: %w", err)
	}
	price, _, err := oracle.ResolvePrice(ctx, m.oracle, tx.TokenSymbol, tx.ChainID)
	if err != nil {
		return fmt.Errorf("could not price position: %w", err)
	}
	estimatedValue, err := utils.IntToUSD(after.Value, decimals, price)
	if err != nil {
		return fmt.Errorf("could not value position: %w", err)
	}

	position := types.Position{
		UserAddress:     tx.UserAddress,
		ChainID:         tx.ChainID,
		TokenAddress:    tx.TokenAddress,
		TokenSymbol:     tx.TokenSymbol,
		Shares:          after.Shares,
		EstimatedValue:  estimatedValue,
		DepositedAmount: sdkmath.ZeroInt(),
		CurrentAPY:      after.APY,
		LastUpdated:     time.Now().UTC(),
	}

	// Carry the cost basis forward from the cached position.
	existing, err := m.store.GetPosition(tx.UserAddress, tx.ChainID, tx.TokenAddress)
	if err != nil {
		return err
	}
	if existing != nil {
		position.DepositedAmount = existing.DepositedAmount
		position.DepositedValueUSD = existing.DepositedValueUSD
	}

	switch tx.Type {
	case types.TxDeposit:
		position.DepositedAmount = position.DepositedAmount.Add(tx.Amount)
		position.DepositedValueUSD += tx.AmountUSD
	case types.TxWithdraw, types.TxEmergencyWithdraw:
		// Reduce the cost basis proportionally to the shares redeemed.
		if existing != nil && tx.SharesBefore.IsPositive() {
			redeemedFrac := sdkmath.LegacyNewDecFromInt(tx.SharesDelta).QuoInt(tx.SharesBefore)
			keepFrac := sdkmath.LegacyOneDec().Sub(redeemedFrac)
			if keepFrac.IsNegative() {
				keepFrac = sdkmath.LegacyZeroDec()
			}
			position.DepositedAmount = keepFrac.MulInt(position.DepositedAmount).TruncateInt()
			keepFloat, _ := keepFrac.Float64()
			position.DepositedValueUSD *= keepFloat
		}
	}

	position.YieldEarned = position.EstimatedValue - position.DepositedValueUSD
	if position.YieldEarned < 0 {
		position.YieldEarned = 0
	}

	if after.Shares.IsZero() {
		if err := m.store.DeletePosition(tx.UserAddress, tx.ChainID, tx.TokenAddress); err != nil {
			return err
		}
	} else if err := m.store.UpsertPosition(position); err != nil {
		return err
	}

	return m.recomputeTotals(tx.UserAddress)
}

// recomputeTotals derives the user's aggregate TVL and yield from the cached
// position set.
func (m *Manager) recomputeTotals(user string) error {
	positions, err := m.store.ListAllPositions(user)
	if err != nil {
		return err
	}
	var tvl, yield float64
	for _, p := range positions {
		tvl += p.EstimatedValue
		yield += p.YieldEarned
	}
	return m.store.UpdateVaultTotals(user, tvl, yield)
}

// fail transitions the record into a terminal failure state, preserving the
// underlying reason. Positions are never touched on failure: the user's funds
// state reflects only what the ledger actually did.
func (m *Manager) fail(tx *types.Transaction, status types.TransactionStatus, reason string, cause error) error {
	detail := reason
	if cause != nil {
		detail = fmt.Sprintf("%s: %v", reason, cause)
	}
	tx.Status = status
	tx.FailureReason = detail
	tx.UpdatedAt = time.Now().UTC()

	if err := m.store.MarkTransactionFailed(tx.ID, status, detail); err != nil {
		m.logger.Error().Err(err).Str("transaction", tx.ID).Msg("Failed to persist transaction failure")
	}
	m.logger.Warn().Str("transaction", tx.ID).Str("status", string(status)).Str("reason", detail).Msg("Transaction failed")

	return types.NewLedgerError(cause, "%s", reason)
}

// validateRequest resolves the ledger client and applies the emergency-stop
// check shared by every operation.
func (m *Manager) validateRequest(user string, chainID uint64, tokenAddress string) (ledger.Client, error) {
	if user == "" {
		return nil, types.NewValidationError("user address is required")
	}
	if config.IsEmergencyStopped(chainID, tokenAddress) {
		return nil, types.NewValidationError("token %s on chain %d is in emergency stop", tokenAddress, chainID)
	}
	client, ok := m.ledgers[chainID]
	if !ok {
		return nil, types.NewValidationError("chain %d is not supported", chainID)
	}
	return client, nil
}

// lock serializes all position-mutating work for one (user, chain).
func (m *Manager) lock(user string, chainID uint64) func() {
	key := fmt.Sprintf("%s|%d", user, chainID)
	mu, _ := m.locks.LoadOrCompute(key, func() (*sync.Mutex, bool) {
		return &sync.Mutex{}, false
	})
	mu.Lock()
	return mu.Unlock
}

func (m *Manager) newTransaction(user string, chainID uint64, txType types.TransactionType, tokenAddress, symbol string, amount sdkmath.Int, amountUSD float64, degraded bool, initiator types.Initiator, agent *types.AgentData) *types.Transaction {
	now := time.Now().UTC()
	return &types.Transaction{
		ID:              uuid.New().String(),
		UserAddress:     user,
		ChainID:         chainID,
		Type:            txType,
		TokenAddress:    tokenAddress,
		TokenSymbol:     symbol,
		Amount:          amount,
		AmountUSD:       amountUSD,
		Status:          types.TxPending,
		SharesBefore:    sdkmath.ZeroInt(),
		SharesAfter:     sdkmath.ZeroInt(),
		SharesDelta:     sdkmath.ZeroInt(),
		InitiatedBy:     initiator,
		Agent:           agent,
		PricingDegraded: degraded,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// sharesDelta keeps the recorded delta non-negative per operation direction:
// deposits mint, withdrawals burn, rebalances are expected to be neutral.
func sharesDelta(txType types.TransactionType, before, after sdkmath.Int) sdkmath.Int {
	switch txType {
	case types.TxWithdraw, types.TxEmergencyWithdraw:
		delta := before.Sub(after)
		if delta.IsNegative() {
			return sdkmath.ZeroInt()
		}
		return delta
	default:
		delta := after.Sub(before)
		if delta.IsNegative() {
			return sdkmath.ZeroInt()
		}
		return delta
	}
}

// deriveMinAmount computes the default minimum-output protection for a
// withdrawal: 5% slippage off the ledger-reported value per share, or a
// conservative 1%-of-shares floor when value data is unavailable.
func deriveMinAmount(requestedShares sdkmath.Int, position ledger.UserPosition) sdkmath.Int {
	if position.Shares.IsPositive() && position.Value.IsPositive() {
		expected := position.Value.Mul(requestedShares).Quo(position.Shares)
		if floored, err := utils.ApplySlippageFloor(expected, defaultWithdrawSlippagePct); err == nil {
			return floored
		}
	}
	floor, err := utils.ApplySlippageFloor(requestedShares, 100-conservativeSharesFloorPct)
	if err != nil {
		return sdkmath.ZeroInt()
	}
	return floor
}
