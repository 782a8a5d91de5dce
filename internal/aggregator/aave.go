package aggregator

import (
	"context"
	"fmt"
	"math/big"

	"github.com/velikanghost/alioth-server-sub001/internal/config"
	"github.com/velikanghost/alioth-server-sub001/internal/ledger"
)

// Aave V3 scales interest rates in RAY (1e27).
var rayScale = new(big.Float).SetFloat64(1e27)

var (
	selectorGetReserveData = ledger.Selector("35ea6a75") // getReserveData(address)
	selectorTotalSupply    = ledger.Selector("18160ddd") // totalSupply()
)

// Reserve data word layout for Aave V3's pool contract.
const (
	reserveWordLiquidityRate    = 2
	reserveWordAToken           = 8
	reserveWordVariableDebt = 10
)

// AaveSource reads supply rates straight from an Aave V3 pool contract.
type AaveSource struct {
	rpc      *ledger.RPCClient
	deployed config.ProtocolConfig
}

// NewAaveSource builds a source for one Aave V3 deployment.
func NewAaveSource(rpc *ledger.RPCClient, deployed config.ProtocolConfig) *AaveSource {
	return &AaveSource{rpc: rpc, deployed: deployed}
}

func (s *AaveSource) Protocol() string { return s.deployed.Name }

func (s *AaveSource) ChainID() uint64 { return s.deployed.ChainID }

func (s *AaveSource) SupportedTokens() []config.TokenInfo { return s.deployed.Tokens }

// FetchRates reads the reserve's current liquidity rate, then sizes the pool
// via the interest-bearing token's total supply.
func (s *AaveSource) FetchRates(ctx context.Context, token config.TokenInfo) (RateSample, error) {
	calldata := ledger.EncodeCall(selectorGetReserveData, ledger.EncodeAddress(token.Address))
	result, err := s.rpc.EthCall(ctx, s.deployed.PoolContract, calldata)
	if err != nil {
		return RateSample{}, fmt.Errorf("getReserveData for %s: %w", token.Symbol, err)
	}

	rateWord, err := ledger.Word(result, reserveWordLiquidityRate)
	if err != nil {
		return RateSample{}, fmt.Errorf("reserve data for %s: %w", token.Symbol, err)
	}
	supplyAPR := rayToPercent(rateWord)

	aTokenWord, err := ledger.Word(result, reserveWordAToken)
	if err != nil {
		return RateSample{}, fmt.Errorf("reserve data for %s: %w", token.Symbol, err)
	}
	debtTokenWord, err := ledger.Word(result, reserveWordVariableDebt)
	if err != nil {
		return RateSample{}, fmt.Errorf("reserve data for %s: %w", token.Symbol, err)
	}

	supplied, err := s.totalSupplyTokens(ctx, addressFromWord(aTokenWord), token.Decimals)
	if err != nil {
		return RateSample{}, fmt.Errorf("aToken supply for %s: %w", token.Symbol, err)
	}
	borrowed, err := s.totalSupplyTokens(ctx, addressFromWord(debtTokenWord), token.Decimals)
	if err != nil {
		return RateSample{}, fmt.Errorf("debt token supply for %s: %w", token.Symbol, err)
	}

	utilization := 0.0
	if supplied > 0 {
		utilization = borrowed / supplied
	}

	block, err := s.rpc.BlockNumber(ctx)
	if err != nil {
		return RateSample{}, fmt.Errorf("block number: %w", err)
	}

	return RateSample{
		SupplyAPR:   supplyAPR,
		RewardAPR:   0, // incentive emissions are observed off-chain
		TVLTokens:   supplied,
		Utilization: utilization,
		BlockNumber: block,
	}, nil
}

func (s *AaveSource) totalSupplyTokens(ctx context.Context, contract string, decimals int) (float64, error) {
	result, err := s.rpc.EthCall(ctx, contract, ledger.EncodeCall(selectorTotalSupply))
	if err != nil {
		return 0, err
	}
	w, err := ledger.Word(result, 0)
	if err != nil {
		return 0, err
	}
	supply := new(big.Float).SetInt(new(big.Int).SetBytes(w))
	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	tokens, _ := new(big.Float).Quo(supply, scale).Float64()
	return tokens, nil
}

// rayToPercent converts a RAY-scaled per-year rate to a percentage APR.
func rayToPercent(w []byte) float64 {
	rate := new(big.Float).SetInt(new(big.Int).SetBytes(w))
	frac, _ := new(big.Float).Quo(rate, rayScale).Float64()
	return frac * 100
}

func addressFromWord(w []byte) string {
	return "0x" + fmt.Sprintf("%x", w[12:32])
}
