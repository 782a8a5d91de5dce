/*

This file contains the tunable thresholds gating the rebalance decision engine.

*/

package types

import "time"

// EngineParameters holds all tunable thresholds used by the decision engine
// for evaluation, scoring and the execution gate. One immutable set is
// injected at construction.
type EngineParameters struct {
	// RebalanceThresholdAPY is the minimum APY improvement, in percentage
	// points, required to propose a rebalance action.
	RebalanceThresholdAPY float64 `json:"rebalance_threshold_apy"`
	// MinPositionUSD keeps gas cost proportionate: positions below this floor
	// are never evaluated.
	MinPositionUSD float64 `json:"min_position_usd"`
	// MinReevalInterval bounds agent-driven transaction frequency per user.
	MinReevalInterval time.Duration `json:"min_reeval_interval"`
	// MinAvgConfidence is the execution gate on average action confidence.
	MinAvgConfidence float64 `json:"min_avg_confidence"`
	// GasCostMultiple requires the annualized improvement value to exceed this
	// multiple of the estimated gas cost before executing.
	GasCostMultiple float64 `json:"gas_cost_multiple"`
	// SnapshotFreshness is the maximum snapshot age considered when selecting
	// the best available APY.
	SnapshotFreshness time.Duration `json:"snapshot_freshness"`
}
