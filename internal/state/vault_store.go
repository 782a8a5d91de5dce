// ./internal/state/vault_store.go
package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/velikanghost/alioth-server-sub001/internal/types"
)

// GetOrCreateUserVault loads the aggregate for a user, creating it lazily on
// first access with default preferences and a moderate risk profile.
func GetOrCreateUserVault(user string) (*types.UserVault, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	vault, err := getUserVault(user)
	if err != nil {
		return nil, err
	}
	if vault != nil {
		return vault, nil
	}

	now := time.Now().UTC()
	vault = &types.UserVault{
		UserAddress: user,
		RiskProfile: types.RiskModerate,
		Preferences: types.DefaultPreferences(),
		Statistics:  types.VaultStatistics{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	prefsJSON, err := json.Marshal(vault.Preferences)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal preferences: %w", err)
	}
	statsJSON, err := json.Marshal(vault.Statistics)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal statistics: %w", err)
	}

	// Two synchronized first accesses may race; the conflict clause keeps the
	// insert idempotent.
	_, err = DB.Exec(`
		INSERT INTO user_vaults (
			user_address, total_value_locked_usd, total_yield_earned_usd,
			risk_profile, preferences, statistics, created_at, updated_at
		) VALUES ($1, 0, 0, $2, $3, $4, $5, $5)
		ON CONFLICT (user_address) DO NOTHING;`,
		user, vault.RiskProfile, prefsJSON, statsJSON, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create user vault for %s: %w", user, err)
	}

	log.Info().Str("user", user).Msg("User vault created lazily on first access")
	return getUserVault(user)
}

// UpdateVaultTotals rewrites the aggregate USD totals after reconciliation.
func UpdateVaultTotals(user string, totalValueLocked, totalYieldEarned float64) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}
	_, err := DB.Exec(`
		UPDATE user_vaults
		SET total_value_locked_usd = $2, total_yield_earned_usd = $3, updated_at = $4
		WHERE user_address = $1;`,
		user, totalValueLocked, totalYieldEarned, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to update vault totals for %s: %w", user, err)
	}
	return nil
}

// UpdateVaultPreferences persists the user's preference and risk profile
// settings.
func UpdateVaultPreferences(user string, riskProfile types.RiskProfile, prefs types.VaultPreferences) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}
	prefsJSON, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("failed to marshal preferences: %w", err)
	}
	_, err = DB.Exec(`
		UPDATE user_vaults
		SET risk_profile = $2, preferences = $3, updated_at = $4
		WHERE user_address = $1;`,
		user, riskProfile, prefsJSON, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to update vault preferences for %s: %w", user, err)
	}
	return nil
}

// IncrementStatistics bumps the per-user activity counters for a confirmed
// transaction and stamps last activity.
func IncrementStatistics(user string, txType types.TransactionType) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	vault, err := getUserVault(user)
	if err != nil {
		return err
	}
	if vault == nil {
		return fmt.Errorf("user vault %s does not exist", user)
	}

	stats := vault.Statistics
	stats.TotalTransactions++
	switch txType {
	case types.TxDeposit:
		stats.TotalDeposits++
	case types.TxWithdraw, types.TxEmergencyWithdraw:
		stats.TotalWithdrawals++
	case types.TxRebalance:
		stats.TotalRebalances++
	}
	stats.LastActivityAt = time.Now().UTC()

	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to marshal statistics: %w", err)
	}
	_, err = DB.Exec(`
		UPDATE user_vaults SET statistics = $2, updated_at = $3 WHERE user_address = $1;`,
		user, statsJSON, stats.LastActivityAt,
	)
	if err != nil {
		return fmt.Errorf("failed to increment statistics for %s: %w", user, err)
	}
	return nil
}

// ListUserVaults returns every known user vault; the decision engine iterates
// this set on each evaluation pass.
func ListUserVaults() ([]types.UserVault, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	rows, err := DB.Query(selectVaultSQL + ` ORDER BY user_address;`)
	if err != nil {
		return nil, fmt.Errorf("failed to list user vaults: %w", err)
	}
	defer rows.Close()

	var out []types.UserVault
	for rows.Next() {
		vault, err := scanVault(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user vault row: %w", err)
		}
		out = append(out, *vault)
	}
	return out, rows.Err()
}

const selectVaultSQL = `
	SELECT user_address, total_value_locked_usd, total_yield_earned_usd,
		risk_profile, preferences, statistics, created_at, updated_at
	FROM user_vaults`

func getUserVault(user string) (*types.UserVault, error) {
	row := DB.QueryRow(selectVaultSQL+` WHERE user_address = $1;`, user)
	vault, err := scanVault(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return vault, err
}

func scanVault(row rowScanner) (*types.UserVault, error) {
	var vault types.UserVault
	var prefsJSON, statsJSON []byte
	err := row.Scan(
		&vault.UserAddress, &vault.TotalValueLocked, &vault.TotalYieldEarned,
		&vault.RiskProfile, &prefsJSON, &statsJSON, &vault.CreatedAt, &vault.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(prefsJSON, &vault.Preferences); err != nil {
		return nil, fmt.Errorf("failed to unmarshal preferences for %s: %w", vault.UserAddress, err)
	}
	if err := json.Unmarshal(statsJSON, &vault.Statistics); err != nil {
		return nil, fmt.Errorf("failed to unmarshal statistics for %s: %w", vault.UserAddress, err)
	}
	return &vault, nil
}
