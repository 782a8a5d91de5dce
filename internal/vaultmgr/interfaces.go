package vaultmgr

import (
	"time"

	"github.com/velikanghost/alioth-server-sub001/internal/types"
)

// Store is the persistence surface the lifecycle manager mutates. The
// production implementation is state.SQLStore; tests substitute in-memory
// fakes.
type Store interface {
	InsertTransaction(tx types.Transaction) error
	SetTransactionHash(id, txHash string) error
	MarkTransactionConfirmed(tx types.Transaction) error
	MarkTransactionFailed(id string, status types.TransactionStatus, reason string) error
	ListStalePendingTransactions(olderThan time.Duration) ([]types.Transaction, error)

	UpsertPosition(p types.Position) error
	DeletePosition(user string, chainID uint64, tokenAddress string) error
	GetPosition(user string, chainID uint64, tokenAddress string) (*types.Position, error)
	ListPositions(user string, chainID uint64) ([]types.Position, error)
	ListAllPositions(user string) ([]types.Position, error)

	GetOrCreateUserVault(user string) (*types.UserVault, error)
	UpdateVaultTotals(user string, totalValueLocked, totalYieldEarned float64) error
	IncrementStatistics(user string, txType types.TransactionType) error
}
