// ./internal/state/position_store.go
package state

import (
	"database/sql"
	"fmt"

	"github.com/velikanghost/alioth-server-sub001/internal/types"
)

// UpsertPosition writes the local projection of one ledger position.
func UpsertPosition(p types.Position) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}
	query := `
		INSERT INTO positions (
			user_address, chain_id, token_address, token_symbol,
			shares, estimated_value, deposited_amount, deposited_value_usd,
			yield_earned, current_apy, last_updated
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (user_address, chain_id, token_address) DO UPDATE SET
			token_symbol = EXCLUDED.token_symbol,
			shares = EXCLUDED.shares,
			estimated_value = EXCLUDED.estimated_value,
			deposited_amount = EXCLUDED.deposited_amount,
			deposited_value_usd = EXCLUDED.deposited_value_usd,
			yield_earned = EXCLUDED.yield_earned,
			current_apy = EXCLUDED.current_apy,
			last_updated = EXCLUDED.last_updated;
	`
	_, err := DB.Exec(query,
		p.UserAddress, p.ChainID, p.TokenAddress, p.TokenSymbol,
		p.Shares.String(), p.EstimatedValue, p.DepositedAmount.String(), p.DepositedValueUSD,
		p.YieldEarned, p.CurrentAPY, p.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert position %s: %w", p.PositionKey(), err)
	}
	return nil
}

// DeletePosition removes a cached position the ledger no longer reports.
func DeletePosition(user string, chainID uint64, tokenAddress string) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}
	_, err := DB.Exec(
		`DELETE FROM positions WHERE user_address = $1 AND chain_id = $2 AND token_address = $3;`,
		user, chainID, tokenAddress,
	)
	if err != nil {
		return fmt.Errorf("failed to delete position %s: %w", types.PositionRef(user, chainID, tokenAddress), err)
	}
	return nil
}

// GetPosition fetches one cached position; nil when absent.
func GetPosition(user string, chainID uint64, tokenAddress string) (*types.Position, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	row := DB.QueryRow(selectPositionSQL+` WHERE user_address = $1 AND chain_id = $2 AND token_address = $3;`,
		user, chainID, tokenAddress)
	p, err := scanPosition(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

// ListPositions returns the cached positions for a user on one chain.
func ListPositions(user string, chainID uint64) ([]types.Position, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	rows, err := DB.Query(selectPositionSQL+` WHERE user_address = $1 AND chain_id = $2 ORDER BY token_address;`,
		user, chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to list positions for %s on chain %d: %w", user, chainID, err)
	}
	defer rows.Close()
	return scanPositions(rows)
}

// ListAllPositions returns every cached position for a user across chains.
func ListAllPositions(user string) ([]types.Position, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	rows, err := DB.Query(selectPositionSQL+` WHERE user_address = $1 ORDER BY chain_id, token_address;`, user)
	if err != nil {
		return nil, fmt.Errorf("failed to list positions for %s: %w", user, err)
	}
	defer rows.Close()
	return scanPositions(rows)
}

const selectPositionSQL = `
	SELECT user_address, chain_id, token_address, token_symbol,
		shares, estimated_value, deposited_amount, deposited_value_usd,
		yield_earned, current_apy, last_updated
	FROM positions`

func scanPosition(row rowScanner) (*types.Position, error) {
	var p types.Position
	var shares, depositedAmount string
	err := row.Scan(
		&p.UserAddress, &p.ChainID, &p.TokenAddress, &p.TokenSymbol,
		&shares, &p.EstimatedValue, &depositedAmount, &p.DepositedValueUSD,
		&p.YieldEarned, &p.CurrentAPY, &p.LastUpdated,
	)
	if err != nil {
		return nil, err
	}
	if p.Shares, err = intFromDB(shares); err != nil {
		return nil, err
	}
	if p.DepositedAmount, err = intFromDB(depositedAmount); err != nil {
		return nil, err
	}
	return &p, nil
}

func scanPositions(rows *sql.Rows) ([]types.Position, error) {
	var out []types.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position row: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}
