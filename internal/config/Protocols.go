package config

import "github.com/velikanghost/alioth-server-sub001/internal/types"

// TokenInfo describes a token a protocol supports on a given chain. Decimals
// here are informational only; valuation paths read decimals live from the
// token contract.
type TokenInfo struct {
	Address  string
	Symbol   string
	Decimals int
}

// ProtocolConfig describes one yield protocol deployment on one chain.
type ProtocolConfig struct {
	Name            string // e.g. "aave-v3"
	ChainID         uint64
	PoolContract    string // Lending pool / vault entry contract
	RewardsContract string // Optional rewards controller
	Tokens          []TokenInfo
}

// ProtocolDeployments is the immutable table of (protocol, chain) pairs the
// aggregator polls. Injected at construction, never mutated at runtime.
var ProtocolDeployments = []ProtocolConfig{
	{
		Name:         "aave-v3",
		ChainID:      42161,
		PoolContract: "0x794a61358D6845594F94dc1DB02A252b5b4814aD",
		Tokens: []TokenInfo{
			{Address: "0xaf88d065e77c8cC2239327C5EDb3A432268e5831", Symbol: "USDC", Decimals: 6},
			{Address: "0xFd086bC7CD5C481DCC9C85ebE478A1C0b69FCbb9", Symbol: "USDT", Decimals: 6},
			{Address: "0x82aF49447D8a07e3bd95BD0d56f35241523fBab1", Symbol: "WETH", Decimals: 18},
		},
	},
	{
		Name:         "aave-v3",
		ChainID:      8453,
		PoolContract: "0xA238Dd80C259a72e81d7e4664a9801593F98d1c5",
		Tokens: []TokenInfo{
			{Address: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", Symbol: "USDC", Decimals: 6},
			{Address: "0x4200000000000000000000000000000000000006", Symbol: "WETH", Decimals: 18},
		},
	},
	{
		Name:         "compound-v3",
		ChainID:      8453,
		PoolContract: "0xb125E6687d4313864e53df431d5425969c15Eb2F",
		Tokens: []TokenInfo{
			{Address: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", Symbol: "USDC", Decimals: 6},
		},
	},
}

// AdapterFor returns the vault's routing target for a protocol on a chain:
// the protocol's pool entry contract. Empty string when unknown.
func AdapterFor(chainID uint64, protocol string) string {
	for _, deployment := range ProtocolDeployments {
		if deployment.ChainID == chainID && deployment.Name == protocol {
			return deployment.PoolContract
		}
	}
	return ""
}

// ProtocolRisk is the baseline risk assessment per protocol. ProtocolRiskScore
// is 0-10 where higher is safer; the remaining dimensions are 0-10 where
// higher is riskier. Snapshot rows carry a copy so history stays auditable
// even if this table changes between releases.
var ProtocolRisk = map[string]types.RiskMetrics{
	"aave-v3":     {ProtocolRiskScore: 9.0, LiquidityRisk: 1.5, SmartContractRisk: 1.0, VolatilityScore: 2.0},
	"compound-v3": {ProtocolRiskScore: 8.5, LiquidityRisk: 2.0, SmartContractRisk: 1.5, VolatilityScore: 2.0},
	"morpho":      {ProtocolRiskScore: 7.0, LiquidityRisk: 3.0, SmartContractRisk: 3.0, VolatilityScore: 3.0},
}

// DefaultProtocolRisk is used for protocols absent from the table.
var DefaultProtocolRisk = types.RiskMetrics{ProtocolRiskScore: 5.0, LiquidityRisk: 5.0, SmartContractRisk: 5.0, VolatilityScore: 5.0}

// PriceFeeds maps chainID -> token symbol -> Chainlink aggregator config.
type PriceFeed struct {
	Aggregator       string
	HeartbeatSeconds int64
}

var PriceFeeds = map[uint64]map[string]PriceFeed{
	1: {
		"WETH": {Aggregator: "0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419", HeartbeatSeconds: 3600},
		"USDC": {Aggregator: "0x8fFfFfd4AfB6115b954Bd326cbe7B4BA576818f6", HeartbeatSeconds: 86400},
	},
	8453: {
		"WETH": {Aggregator: "0x71041dddad3595F9CEd3DcCFBe3D1F4b0a16Bb70", HeartbeatSeconds: 1200},
		"USDC": {Aggregator: "0x7e860098F58bBFC8648a4311b374B1D669a2bc6B", HeartbeatSeconds: 86400},
	},
	42161: {
		"WETH": {Aggregator: "0x639Fe6ab55C921f74e7fac1ee960C0B6293ba612", HeartbeatSeconds: 86400},
		"USDC": {Aggregator: "0x50834F3163758fcC1Df9973b6e91f0F0F0434aD3", HeartbeatSeconds: 86400},
		"USDT": {Aggregator: "0x3f3f5dF88dC9F13eac63DF89EC16ef6e7E25DdE7", HeartbeatSeconds: 86400},
	},
}

// FallbackPrices is the last-resort static price table used when the oracle is
// unavailable. Any valuation derived from it is flagged as degraded.
var FallbackPrices = map[string]float64{
	"USDC": 1.00,
	"USDT": 1.00,
	"DAI":  1.00,
	"WETH": 3000.00,
	"WBTC": 60000.00,
}
