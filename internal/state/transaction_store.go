// ./internal/state/transaction_store.go
package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/velikanghost/alioth-server-sub001/internal/types"
)

// InsertTransaction persists a new transaction record. Records are created in
// the pending state before anything is submitted to the ledger so failures
// stay auditable.
func InsertTransaction(tx types.Transaction) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	var agentJSON any
	if tx.Agent != nil {
		data, err := json.Marshal(tx.Agent)
		if err != nil {
			return fmt.Errorf("failed to marshal agent_data: %w", err)
		}
		agentJSON = data
	}

	query := `
		INSERT INTO transactions (
			id, user_address, chain_id, tx_type, token_address, token_symbol,
			amount, amount_usd, status, tx_hash,
			shares_before, shares_after, shares_delta,
			gas_used, gas_fee_usd, initiated_by, agent_data,
			pricing_degraded, failure_reason, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), $11, $12, $13, $14, $15, $16, $17, $18, NULLIF($19, ''), $20, $21);
	`
	_, err := DB.Exec(query,
		tx.ID, tx.UserAddress, tx.ChainID, tx.Type, tx.TokenAddress, tx.TokenSymbol,
		tx.Amount.String(), tx.AmountUSD, tx.Status, tx.TxHash,
		tx.SharesBefore.String(), tx.SharesAfter.String(), tx.SharesDelta.String(),
		tx.GasUsed, tx.GasFeeUSD, tx.InitiatedBy, agentJSON,
		tx.PricingDegraded, tx.FailureReason, tx.CreatedAt, tx.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert transaction %s: %w", tx.ID, err)
	}
	return nil
}

// SetTransactionHash records the ledger-assigned hash for a pending
// transaction. The hash is the idempotency key against the ledger, enforced
// unique by the schema.
func SetTransactionHash(id, txHash string) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}
	result, err := DB.Exec(
		`UPDATE transactions SET tx_hash = $2, updated_at = $3 WHERE id = $1 AND status = 'pending';`,
		id, txHash, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to set tx hash for %s: %w", id, err)
	}
	return requireOneRow(result, "set hash", id)
}

// MarkTransactionConfirmed finalizes a transaction with its share movement and
// gas accounting. Only pending rows can transition; terminal rows are never
// reopened.
func MarkTransactionConfirmed(tx types.Transaction) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}
	result, err := DB.Exec(`
		UPDATE transactions
		SET status = 'confirmed', tx_hash = $2,
			shares_before = $3, shares_after = $4, shares_delta = $5,
			gas_used = $6, gas_fee_usd = $7, updated_at = $8
		WHERE id = $1 AND status = 'pending';`,
		tx.ID, tx.TxHash,
		tx.SharesBefore.String(), tx.SharesAfter.String(), tx.SharesDelta.String(),
		tx.GasUsed, tx.GasFeeUSD, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to confirm transaction %s: %w", tx.ID, err)
	}
	return requireOneRow(result, "confirm", tx.ID)
}

// MarkTransactionFailed moves a pending transaction into a terminal failure
// state with the underlying reason preserved. Reverted is used when the chain
// itself rejected the execution.
func MarkTransactionFailed(id string, status types.TransactionStatus, reason string) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}
	if status != types.TxFailed && status != types.TxReverted {
		return fmt.Errorf("status %q is not a failure state", status)
	}
	result, err := DB.Exec(`
		UPDATE transactions
		SET status = $2, failure_reason = $3, updated_at = $4
		WHERE id = $1 AND status = 'pending';`,
		id, status, reason, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to mark transaction %s %s: %w", id, status, err)
	}
	return requireOneRow(result, string(status), id)
}

// GetTransaction fetches one transaction by ID.
func GetTransaction(id string) (*types.Transaction, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	row := DB.QueryRow(selectTransactionSQL+` WHERE id = $1;`, id)
	tx, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("transaction %s not found", id)
	}
	return tx, err
}

// ListTransactionsByUser returns a user's transactions, newest first.
func ListTransactionsByUser(user string, limit int) ([]types.Transaction, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := DB.Query(selectTransactionSQL+` WHERE user_address = $1 ORDER BY created_at DESC LIMIT $2;`, user, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions for %s: %w", user, err)
	}
	defer rows.Close()
	return scanTransactions(rows)
}

// ListStalePendingTransactions returns pending transactions that have a hash
// assigned and were created before the cutoff; these are candidates for the
// pending-transaction resolver.
func ListStalePendingTransactions(olderThan time.Duration) ([]types.Transaction, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	cutoff := time.Now().UTC().Add(-olderThan)
	rows, err := DB.Query(selectTransactionSQL+`
		WHERE status = 'pending' AND tx_hash IS NOT NULL AND created_at < $1
		ORDER BY created_at ASC;`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale pending transactions: %w", err)
	}
	defer rows.Close()
	return scanTransactions(rows)
}

const selectTransactionSQL = `
	SELECT id, user_address, chain_id, tx_type, token_address, token_symbol,
		amount, amount_usd, status, COALESCE(tx_hash, ''),
		shares_before, shares_after, shares_delta,
		gas_used, gas_fee_usd, initiated_by, agent_data,
		pricing_degraded, COALESCE(failure_reason, ''), created_at, updated_at
	FROM transactions`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*types.Transaction, error) {
	var tx types.Transaction
	var amount, sharesBefore, sharesAfter, sharesDelta string
	var agentJSON []byte

	err := row.Scan(
		&tx.ID, &tx.UserAddress, &tx.ChainID, &tx.Type, &tx.TokenAddress, &tx.TokenSymbol,
		&amount, &tx.AmountUSD, &tx.Status, &tx.TxHash,
		&sharesBefore, &sharesAfter, &sharesDelta,
		&tx.GasUsed, &tx.GasFeeUSD, &tx.InitiatedBy, &agentJSON,
		&tx.PricingDegraded, &tx.FailureReason, &tx.CreatedAt, &tx.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if tx.Amount, err = intFromDB(amount); err != nil {
		return nil, err
	}
	if tx.SharesBefore, err = intFromDB(sharesBefore); err != nil {
		return nil, err
	}
	if tx.SharesAfter, err = intFromDB(sharesAfter); err != nil {
		return nil, err
	}
	if tx.SharesDelta, err = intFromDB(sharesDelta); err != nil {
		return nil, err
	}

	if len(agentJSON) > 0 {
		var agent types.AgentData
		if err := json.Unmarshal(agentJSON, &agent); err != nil {
			return nil, fmt.Errorf("failed to unmarshal agent_data for %s: %w", tx.ID, err)
		}
		tx.Agent = &agent
	}
	return &tx, nil
}

func scanTransactions(rows *sql.Rows) ([]types.Transaction, error) {
	var out []types.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction row: %w", err)
		}
		out = append(out, *tx)
	}
	return out, rows.Err()
}

func requireOneRow(result sql.Result, op, id string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected for %s %s: %w", op, id, err)
	}
	if affected == 0 {
		log.Warn().Str("transaction", id).Str("op", op).Msg("No pending row matched; transaction already terminal?")
		return fmt.Errorf("transaction %s is not pending; %s skipped", id, op)
	}
	return nil
}
