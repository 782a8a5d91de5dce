// ./internal/state/store.go
package state

import (
	"time"

	"github.com/velikanghost/alioth-server-sub001/internal/types"
)

// SQLStore adapts the package-level store functions to the store interfaces
// consumed by the lifecycle manager and the decision engine, so those
// components can be tested against in-memory fakes.
type SQLStore struct{}

func (SQLStore) InsertTransaction(tx types.Transaction) error { return InsertTransaction(tx) }
func (SQLStore) SetTransactionHash(id, txHash string) error   { return SetTransactionHash(id, txHash) }
func (SQLStore) MarkTransactionConfirmed(tx types.Transaction) error {
	return MarkTransactionConfirmed(tx)
}
func (SQLStore) MarkTransactionFailed(id string, status types.TransactionStatus, reason string) error {
	return MarkTransactionFailed(id, status, reason)
}
func (SQLStore) GetTransaction(id string) (*types.Transaction, error) { return GetTransaction(id) }
func (SQLStore) ListTransactionsByUser(user string, limit int) ([]types.Transaction, error) {
	return ListTransactionsByUser(user, limit)
}
func (SQLStore) ListStalePendingTransactions(olderThan time.Duration) ([]types.Transaction, error) {
	return ListStalePendingTransactions(olderThan)
}

func (SQLStore) UpsertPosition(p types.Position) error { return UpsertPosition(p) }
func (SQLStore) DeletePosition(user string, chainID uint64, tokenAddress string) error {
	return DeletePosition(user, chainID, tokenAddress)
}
func (SQLStore) GetPosition(user string, chainID uint64, tokenAddress string) (*types.Position, error) {
	return GetPosition(user, chainID, tokenAddress)
}
func (SQLStore) ListPositions(user string, chainID uint64) ([]types.Position, error) {
	return ListPositions(user, chainID)
}
func (SQLStore) ListAllPositions(user string) ([]types.Position, error) {
	return ListAllPositions(user)
}

func (SQLStore) GetOrCreateUserVault(user string) (*types.UserVault, error) {
	return GetOrCreateUserVault(user)
}
func (SQLStore) UpdateVaultTotals(user string, totalValueLocked, totalYieldEarned float64) error {
	return UpdateVaultTotals(user, totalValueLocked, totalYieldEarned)
}
func (SQLStore) IncrementStatistics(user string, txType types.TransactionType) error {
	return IncrementStatistics(user, txType)
}
func (SQLStore) ListUserVaults() ([]types.UserVault, error) { return ListUserVaults() }
func (SQLStore) UpdateVaultPreferences(user string, riskProfile types.RiskProfile, prefs types.VaultPreferences) error {
	return UpdateVaultPreferences(user, riskProfile, prefs)
}

func (SQLStore) InsertAPRSnapshot(snapshot types.APRSnapshot) (int64, error) {
	return InsertAPRSnapshot(snapshot)
}
func (SQLStore) LatestSnapshots(chainID uint64, tokenSymbol string, since time.Time) ([]types.APRSnapshot, error) {
	return LatestSnapshots(chainID, tokenSymbol, since)
}
func (SQLStore) QuerySnapshots(filter types.SnapshotFilter) ([]types.APRSnapshot, error) {
	return QuerySnapshots(filter)
}
