package ledger

import (
	"context"
	"time"

	sdkmath "cosmossdk.io/math"
)

// UserPosition is the ledger-reported state of one user's holding in a token.
// Value is in the token's smallest unit, never floating point.
type UserPosition struct {
	Shares       sdkmath.Int
	Value        sdkmath.Int
	APY          float64 // Percent
	ReceiptToken string
}

// PortfolioEntry is one token row of a user's complete ledger-side portfolio.
type PortfolioEntry struct {
	Token        string
	ReceiptToken string
	Symbol       string
	Shares       sdkmath.Int
	Value        sdkmath.Int
	APY          float64 // Percent
}

// TokenStats is the vault-wide aggregate for a token.
type TokenStats struct {
	TotalShares  sdkmath.Int
	TotalValue   sdkmath.Int
	APY          float64
	ReceiptToken string
}

// ConfirmationStatus is the tri-state outcome of a bounded confirmation wait.
type ConfirmationStatus string

const (
	StatusConfirmed ConfirmationStatus = "confirmed"
	StatusReverted  ConfirmationStatus = "reverted"
	// StatusPending means the wait timed out with the transaction still
	// unmined. The chain may confirm it later; only the caller stops waiting.
	StatusPending ConfirmationStatus = "pending"
)

// Receipt is the resolved result of a submitted transaction.
type Receipt struct {
	TxHash      string
	Status      ConfirmationStatus
	GasUsed     uint64
	GasFeeUSD   float64
	BlockNumber uint64
}

// Client is the read/write adapter to the on-chain vault contract for one
// chain. All monetary and share quantities are arbitrary-precision integers in
// the token's smallest unit. It is the sole source of truth: the local
// projection is reconciled against it, never the other way around.
type Client interface {
	ChainID() uint64

	// PreviewDeposit returns the shares a deposit of amount would mint.
	PreviewDeposit(ctx context.Context, token string, amount sdkmath.Int) (sdkmath.Int, error)
	// Deposit submits a deposit on behalf of user and returns the tx hash.
	Deposit(ctx context.Context, user, token string, amount, minShares sdkmath.Int) (string, error)
	// PreviewWithdraw returns the token amount redeeming shares would yield.
	PreviewWithdraw(ctx context.Context, token string, shares sdkmath.Int) (sdkmath.Int, error)
	// Withdraw submits a withdrawal on behalf of user and returns the tx hash.
	Withdraw(ctx context.Context, user, token string, shares, minAmount sdkmath.Int) (string, error)
	// Rebalance moves a user's funds for token into the given protocol
	// adapter, share count unchanged, and returns the tx hash.
	Rebalance(ctx context.Context, user, token string, amount sdkmath.Int, toAdapter string) (string, error)

	GetUserPosition(ctx context.Context, user, token string) (UserPosition, error)
	GetUserPortfolio(ctx context.Context, user string) ([]PortfolioEntry, error)
	GetTokenStats(ctx context.Context, token string) (TokenStats, error)
	IsTokenSupported(ctx context.Context, token string) (bool, error)

	// TokenDecimals reads decimals() live from the token contract.
	TokenDecimals(ctx context.Context, token string) (int, error)
	// TokenSymbol reads symbol() from the token contract.
	TokenSymbol(ctx context.Context, token string) (string, error)

	// WaitForConfirmation blocks until the transaction is mined or the timeout
	// elapses. A StatusPending receipt with a nil error means timed out; the
	// underlying transaction is not aborted.
	WaitForConfirmation(ctx context.Context, txHash string, timeout time.Duration) (Receipt, error)

	// CheckReceipt is a single non-blocking receipt probe. StatusPending means
	// the transaction is still unmined.
	CheckReceipt(ctx context.Context, txHash string) (Receipt, error)
}
