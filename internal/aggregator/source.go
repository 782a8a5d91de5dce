/*

Rate sources produce point-in-time yield observations for one protocol on one
chain. On-chain sources read pool contracts directly over JSON-RPC; off-chain
sources query public yield APIs. The aggregator fans out across all of them
and persists the results as immutable snapshots.

*/

package aggregator

import (
	"context"

	"github.com/velikanghost/alioth-server-sub001/internal/config"
)

// RateSample is one protocol/token yield observation before pricing.
type RateSample struct {
	// SupplyAPR and RewardAPR are simple annual percentage rates (5.0 = 5%).
	SupplyAPR float64
	RewardAPR float64
	// TVLTokens is the pool's total supply in whole-token units; the
	// aggregator converts it to USD with the oracle price. Sources that
	// already know the USD figure set TVLUSD instead and leave this zero.
	TVLTokens float64
	TVLUSD    float64
	// Utilization is borrowed/supplied in [0, 1].
	Utilization float64
	BlockNumber uint64
}

// RateSource fetches current rates for the tokens one protocol supports.
type RateSource interface {
	Protocol() string
	ChainID() uint64
	SupportedTokens() []config.TokenInfo
	FetchRates(ctx context.Context, token config.TokenInfo) (RateSample, error)
}
