package engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/velikanghost/alioth-server-sub001/internal/config"
	"github.com/velikanghost/alioth-server-sub001/internal/types"
)

// EvaluatePosition decides what, if anything, to do about one position. A nil
// plan with OutcomeSuppressed means no worthwhile move exists; a non-nil plan
// carries the proposed actions and the outcome says how far the gates let it
// proceed.
func (e *Engine) EvaluatePosition(ctx context.Context, vault types.UserVault, position types.Position) (Outcome, *types.AllocationPlan, error) {
	if position.EstimatedValue < e.params.MinPositionUSD {
		return OutcomeSuppressed, nil, nil
	}

	fresh, err := e.rates.Fresh(position.ChainID, position.TokenSymbol)
	if err != nil {
		return OutcomeSuppressed, nil, fmt.Errorf("fetching rates: %w", err)
	}
	if len(fresh) == 0 {
		// Stale or missing rate data never triggers a move.
		return OutcomeSuppressed, nil, nil
	}

	best := fresh[0]
	improvement := best.TotalAPY - position.CurrentAPY

	threshold := vault.Preferences.RebalanceThresholdPct
	if threshold <= 0 {
		threshold = e.params.RebalanceThresholdAPY
	}
	// The improvement must strictly exceed the threshold; an exact match is
	// not worth moving for.
	if improvement <= threshold {
		return OutcomeSuppressed, nil, nil
	}

	plan, err := e.buildPlan(vault, position, fresh, improvement)
	if err != nil {
		return OutcomeSuppressed, nil, err
	}
	if len(plan.Actions) == 0 {
		return OutcomeSuppressed, nil, nil
	}

	// Economic gates: confidence and gas-adjusted annual gain.
	annualGainUSD := position.EstimatedValue * plan.TotalAPYImprovement / 100
	if plan.AverageConfidence() <= e.params.MinAvgConfidence {
		return OutcomeSuppressed, plan, nil
	}
	if annualGainUSD <= e.params.GasCostMultiple*plan.EstimatedGasUSD {
		return OutcomeSuppressed, plan, nil
	}

	// Authorization gates: both the user's opt-in and the global confirmation
	// switch must allow autonomy; otherwise the plan is only proposed.
	if !vault.Preferences.AutoRebalance || e.requireConfirmation {
		return OutcomeNotifyOnly, plan, nil
	}
	return OutcomeExecuted, plan, nil
}

// buildPlan derives the target allocation for the user's risk profile and the
// concrete actions to get there from the position's current protocol.
func (e *Engine) buildPlan(vault types.UserVault, position types.Position, fresh []types.APRSnapshot, improvement float64) (*types.AllocationPlan, error) {
	target, err := e.rates.GetOptimalAllocation(vault.RiskProfile, position.ChainID, position.TokenSymbol)
	if err != nil {
		return nil, fmt.Errorf("deriving allocation: %w", err)
	}

	currentProtocol := closestProtocol(fresh, position.CurrentAPY)
	gasPerAction := config.Chains[position.ChainID].GasEstimateUSD

	actions := make([]types.RebalanceAction, 0, len(target))
	for protocol, pct := range target {
		if protocol == currentProtocol || pct <= 0 {
			continue
		}
		snapshot, ok := snapshotFor(fresh, protocol)
		if !ok {
			continue
		}
		actionImprovement := snapshot.TotalAPY - position.CurrentAPY
		actions = append(actions, types.RebalanceAction{
			FromProtocol:           currentProtocol,
			ToProtocol:             protocol,
			AmountUSD:              position.EstimatedValue * pct / 100,
			Confidence:             ConfidenceScore(actionImprovement, snapshot.Risk.ProtocolRiskScore),
			ExpectedAPYImprovement: actionImprovement,
		})
	}

	return &types.AllocationPlan{
		UserAddress:         position.UserAddress,
		ChainID:             position.ChainID,
		TokenAddress:        position.TokenAddress,
		TokenSymbol:         position.TokenSymbol,
		CurrentAllocation:   map[string]float64{currentProtocol: 100},
		TargetAllocation:    target,
		Actions:             actions,
		TotalAPYImprovement: improvement,
		EstimatedGasUSD:     gasPerAction * float64(len(actions)),
		CreatedAt:           time.Now().UTC(),
	}, nil
}

// ConfidenceScore combines the size of the yield improvement with the
// destination protocol's safety rating into a [0, 100] score. Improvement
// contributes up to 60 points, protocol safety up to 30, and a 10-point base
// reflects that every proposal already cleared the threshold.
func ConfidenceScore(apyImprovement, protocolRiskScore float64) float64 {
	score := math.Min(60, apyImprovement*20) + math.Min(30, protocolRiskScore*5) + 10
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// closestProtocol infers which protocol currently holds the position by
// matching its reported APY against fresh observations. The ledger does not
// expose the adapter per position, so the nearest-rate protocol is the best
// available attribution.
func closestProtocol(fresh []types.APRSnapshot, currentAPY float64) string {
	bestProtocol := fresh[0].Protocol
	bestDistance := math.Abs(fresh[0].TotalAPY - currentAPY)
	for _, s := range fresh[1:] {
		if d := math.Abs(s.TotalAPY - currentAPY); d < bestDistance {
			bestDistance = d
			bestProtocol = s.Protocol
		}
	}
	return bestProtocol
}

func snapshotFor(fresh []types.APRSnapshot, protocol string) (types.APRSnapshot, bool) {
	for _, s := range fresh {
		if s.Protocol == protocol {
			return s, true
		}
	}
	return types.APRSnapshot{}, false
}
