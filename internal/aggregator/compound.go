package aggregator

import (
	"context"
	"fmt"
	"math/big"

	"github.com/velikanghost/alioth-server-sub001/internal/config"
	"github.com/velikanghost/alioth-server-sub001/internal/ledger"
)

var (
	selectorGetSupplyRate  = ledger.Selector("d955759d") // getSupplyRate(uint256)
	selectorGetUtilization = ledger.Selector("7eb71131") // getUtilization()
	selectorTotalsBasic    = ledger.Selector("b9f0baf7") // totalsBasic()
)

const (
	// Comet reports per-second rates and utilization scaled by 1e18.
	cometRateScale = 1e18
	secondsPerYear = 365 * 24 * 3600
	// totalsBasic tuple: baseSupplyIndex, baseBorrowIndex,
	// trackingSupplyIndex, trackingBorrowIndex, totalSupplyBase,
	// totalBorrowBase, lastAccrualTime, pauseFlags.
	totalsWordSupplyBase = 4
)

// CompoundSource reads supply rates from a Compound V3 Comet market. Each
// Comet instance serves a single base asset, so only the matching token in
// the deployment yields a sample.
type CompoundSource struct {
	rpc      *ledger.RPCClient
	deployed config.ProtocolConfig
}

// NewCompoundSource builds a source for one Comet deployment.
func NewCompoundSource(rpc *ledger.RPCClient, deployed config.ProtocolConfig) *CompoundSource {
	return &CompoundSource{rpc: rpc, deployed: deployed}
}

func (s *CompoundSource) Protocol() string { return s.deployed.Name }

func (s *CompoundSource) ChainID() uint64 { return s.deployed.ChainID }

func (s *CompoundSource) SupportedTokens() []config.TokenInfo { return s.deployed.Tokens }

// FetchRates asks the market for its current utilization, feeds it back into
// the rate model, and annualizes the per-second result.
func (s *CompoundSource) FetchRates(ctx context.Context, token config.TokenInfo) (RateSample, error) {
	utilResult, err := s.rpc.EthCall(ctx, s.deployed.PoolContract, ledger.EncodeCall(selectorGetUtilization))
	if err != nil {
		return RateSample{}, fmt.Errorf("getUtilization: %w", err)
	}
	utilWord, err := ledger.Word(utilResult, 0)
	if err != nil {
		return RateSample{}, fmt.Errorf("utilization result: %w", err)
	}
	utilization := wordToFloat(utilWord) / cometRateScale

	rateResult, err := s.rpc.EthCall(ctx, s.deployed.PoolContract, ledger.EncodeCall(selectorGetSupplyRate, utilWord))
	if err != nil {
		return RateSample{}, fmt.Errorf("getSupplyRate: %w", err)
	}
	rateWord, err := ledger.Word(rateResult, 0)
	if err != nil {
		return RateSample{}, fmt.Errorf("supply rate result: %w", err)
	}
	supplyAPR := wordToFloat(rateWord) / cometRateScale * secondsPerYear * 100

	totalsResult, err := s.rpc.EthCall(ctx, s.deployed.PoolContract, ledger.EncodeCall(selectorTotalsBasic))
	if err != nil {
		return RateSample{}, fmt.Errorf("totalsBasic: %w", err)
	}
	supplyWord, err := ledger.Word(totalsResult, totalsWordSupplyBase)
	if err != nil {
		return RateSample{}, fmt.Errorf("totals result: %w", err)
	}
	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(token.Decimals)), nil))
	tvlTokens, _ := new(big.Float).Quo(bigFloatFromWord(supplyWord), scale).Float64()

	block, err := s.rpc.BlockNumber(ctx)
	if err != nil {
		return RateSample{}, fmt.Errorf("block number: %w", err)
	}

	return RateSample{
		SupplyAPR:   supplyAPR,
		RewardAPR:   0,
		TVLTokens:   tvlTokens,
		Utilization: utilization,
		BlockNumber: block,
	}, nil
}

func bigFloatFromWord(w []byte) *big.Float {
	return new(big.Float).SetInt(new(big.Int).SetBytes(w))
}

func wordToFloat(w []byte) float64 {
	f, _ := bigFloatFromWord(w).Float64()
	return f
}
