package engine

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/velikanghost/alioth-server-sub001/internal/logger"
	"github.com/velikanghost/alioth-server-sub001/internal/types"
)

// Notifier delivers rebalance proposals and execution notices to users.
type Notifier interface {
	NotifyProposal(ctx context.Context, plan types.AllocationPlan, outcome Outcome) error
}

// LogNotifier records proposals in the structured log. It stands in until a
// push-delivery channel is wired up.
type LogNotifier struct {
	logger zerolog.Logger
}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{logger: logger.GetForComponent("notifier")}
}

func (n *LogNotifier) NotifyProposal(_ context.Context, plan types.AllocationPlan, outcome Outcome) error {
	event := n.logger.Info().
		Str("user", plan.UserAddress).
		Uint64("chainID", plan.ChainID).
		Str("token", plan.TokenSymbol).
		Str("outcome", string(outcome)).
		Float64("apyImprovement", plan.TotalAPYImprovement).
		Float64("avgConfidence", plan.AverageConfidence()).
		Float64("estimatedGasUSD", plan.EstimatedGasUSD)
	for _, action := range plan.Actions {
		event = event.Str("move", action.FromProtocol+" -> "+action.ToProtocol)
	}
	event.Msg("Rebalance proposal")
	return nil
}
