/*

This file contains the ephemeral allocation plan types produced by the
rebalance decision engine. Plans are never persisted; a NotifyOnly outcome
surfaces the plan to callers, an Executing outcome hands it to the transaction
lifecycle manager.

*/

package types

import "time"

// RebalanceAction is a single proposed move of value between protocols.
type RebalanceAction struct {
	FromProtocol           string  `json:"from_protocol"`
	ToProtocol             string  `json:"to_protocol"`
	AmountUSD              float64 `json:"amount_usd"`
	Confidence             float64 `json:"confidence"` // 0-100
	ExpectedAPYImprovement float64 `json:"expected_apy_improvement"`
}

// AllocationPlan describes the current and target allocation for one
// (user, token, chain) position. Percentages are fractions of the position
// being rebalanced and need not sum to 100 for partial plans.
type AllocationPlan struct {
	UserAddress         string             `json:"user_address"`
	ChainID             uint64             `json:"chain_id"`
	TokenAddress        string             `json:"token_address"`
	TokenSymbol         string             `json:"token_symbol"`
	CurrentAllocation   map[string]float64 `json:"current_allocation"` // protocol -> percent
	TargetAllocation    map[string]float64 `json:"target_allocation"`  // protocol -> percent
	Actions             []RebalanceAction  `json:"rebalance_actions"`
	TotalAPYImprovement float64            `json:"total_apy_improvement"`
	EstimatedGasUSD     float64            `json:"estimated_gas_cost_usd"`
	CreatedAt           time.Time          `json:"created_at"`
}

// AverageConfidence returns the mean confidence across all actions, or 0 for
// an empty plan.
func (p AllocationPlan) AverageConfidence() float64 {
	if len(p.Actions) == 0 {
		return 0
	}
	var sum float64
	for _, a := range p.Actions {
		sum += a.Confidence
	}
	return sum / float64(len(p.Actions))
}
