/*

This file contains the user vault aggregate: per-user totals, risk profile,
agent preferences and activity statistics. A UserVault is created lazily on
first access and is mutated only by the transaction lifecycle manager and the
decision engine's execution path.

*/

package types

import "time"

// RiskProfile selects how the optimal allocation is partitioned across
// protocols for a user.
type RiskProfile string

const (
	RiskConservative RiskProfile = "conservative"
	RiskModerate     RiskProfile = "moderate"
	RiskAggressive   RiskProfile = "aggressive"
)

// VaultPreferences are the user-controlled knobs gating autonomous action.
type VaultPreferences struct {
	AutoRebalance         bool    `json:"auto_rebalance"`
	MaxSlippagePct        float64 `json:"max_slippage_pct"`        // e.g. 5.0 for 5%
	RebalanceThresholdPct float64 `json:"rebalance_threshold_pct"` // Minimum APY improvement the user cares about
	EmergencyPause        bool    `json:"emergency_pause"`
}

// VaultStatistics tracks per-user activity counters.
type VaultStatistics struct {
	TotalTransactions int       `json:"total_transactions"`
	TotalDeposits     int       `json:"total_deposits"`
	TotalWithdrawals  int       `json:"total_withdrawals"`
	TotalRebalances   int       `json:"total_rebalances"`
	LastActivityAt    time.Time `json:"last_activity_at"`
}

// UserVault is the aggregate root for a single user across all chains.
type UserVault struct {
	UserAddress      string           `json:"user_address"`
	TotalValueLocked float64          `json:"total_value_locked_usd"`
	TotalYieldEarned float64          `json:"total_yield_earned_usd"`
	RiskProfile      RiskProfile      `json:"risk_profile"`
	Preferences      VaultPreferences `json:"preferences"`
	Statistics       VaultStatistics  `json:"statistics"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// DefaultPreferences are applied when a vault is created lazily on first
// access. Autonomous rebalancing is opt-in.
func DefaultPreferences() VaultPreferences {
	return VaultPreferences{
		AutoRebalance:         false,
		MaxSlippagePct:        5.0,
		RebalanceThresholdPct: 2.0,
		EmergencyPause:        false,
	}
}
