/*

This file contains the yield snapshot types. An APRSnapshot is one immutable
point-in-time observation of a (protocol, chain, token) market; snapshots are
never edited after insert, only superseded by rows with later timestamps, which
preserves an auditable APY history.

*/

package types

import "time"

// RiskMetrics captures the risk dimensions recorded alongside each snapshot.
// ProtocolRiskScore is 0-10 (higher is safer); the other fields are 0-10
// (higher is riskier).
type RiskMetrics struct {
	ProtocolRiskScore float64 `json:"protocol_risk_score"`
	LiquidityRisk     float64 `json:"liquidity_risk"`
	SmartContractRisk float64 `json:"smart_contract_risk"`
	VolatilityScore   float64 `json:"volatility_score"`
}

// APRSnapshot is one observation of protocol yields for a token on a chain.
type APRSnapshot struct {
	ID               int64       `json:"id,omitempty"` // Auto-incremented by DB
	ChainID          uint64      `json:"chain_id"`
	Protocol         string      `json:"protocol"`
	TokenAddress     string      `json:"token_address"`
	TokenSymbol      string      `json:"token_symbol"`
	SupplyAPR        float64     `json:"supply_apr"`  // Percent, non-compounded
	RewardAPR        float64     `json:"reward_apr"`  // Percent, non-compounded
	TotalAPY         float64     `json:"total_apy"`   // Percent, with compounding adjustment
	TotalValueLocked float64     `json:"total_value_locked_usd"`
	UtilizationRate  float64     `json:"utilization_rate"` // 0-100
	Risk             RiskMetrics `json:"risk_metrics"`
	BlockNumber      uint64      `json:"block_number"`
	Timestamp        time.Time   `json:"timestamp"`
}

// SnapshotFilter selects snapshot history rows. Zero-valued fields match
// everything; From/To bound the time window inclusively.
type SnapshotFilter struct {
	ChainID      uint64
	Protocol     string
	TokenAddress string
	TokenSymbol  string
	From         time.Time
	To           time.Time
	Limit        int
}
