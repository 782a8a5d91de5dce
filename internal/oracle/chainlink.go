/*

This package adapts Chainlink-style price feeds into the price surface the
rest of the system consumes. Staleness is a degraded-confidence signal, not an
error: a stale quote is still usable, callers flag the derived USD figures.

*/

package oracle

import (
	"context"
	"encoding/hex"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/velikanghost/alioth-server-sub001/internal/config"
	"github.com/velikanghost/alioth-server-sub001/internal/ledger"
	"github.com/velikanghost/alioth-server-sub001/internal/logger"
)

// minStalenessFloor is the lower bound of the staleness window regardless of
// how aggressive a feed's configured heartbeat is.
const minStalenessFloor = 3600 * time.Second

// Quote is one price observation with freshness metadata.
type Quote struct {
	Symbol           string  `json:"symbol"`
	ChainID          uint64  `json:"chain_id"`
	Price            float64 `json:"price"` // USD per whole token
	TimestampSeconds int64   `json:"timestamp_seconds"`
	RoundID          string  `json:"round_id"`
	Decimals         int     `json:"decimals"`
	IsStale          bool    `json:"is_stale"`
	StalenessSeconds int64   `json:"staleness_seconds"`
}

// Adapter fetches USD prices with freshness metadata.
type Adapter interface {
	GetPrice(ctx context.Context, symbol string, chainID uint64) (Quote, error)
}

// latestRoundData() selector on the aggregator contract.
var selectorLatestRoundData = mustDecodeHex("feaf968c")

func mustDecodeHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(fmt.Sprintf("invalid hex: %s", s))
	}
	return b
}

// ChainlinkAdapter reads aggregator contracts over JSON-RPC using the
// configured feed table.
type ChainlinkAdapter struct {
	rpcs  map[uint64]*ledger.RPCClient
	feeds map[uint64]map[string]config.PriceFeed
	// feedDecimals is a static view; Chainlink USD feeds use 8 decimals.
	feedDecimals int
	now          func() time.Time
	logger       zerolog.Logger
}

// NewChainlinkAdapter builds an adapter over the configured chains and feeds.
func NewChainlinkAdapter(chains map[uint64]config.ChainConfig, feeds map[uint64]map[string]config.PriceFeed) *ChainlinkAdapter {
	rpcs := make(map[uint64]*ledger.RPCClient, len(chains))
	for id, chain := range chains {
		rpcs[id] = ledger.NewRPCClient(chain.RPCURLs...)
	}
	return &ChainlinkAdapter{
		rpcs:         rpcs,
		feeds:        feeds,
		feedDecimals: 8,
		now:          time.Now,
		logger:       logger.GetForComponent("price_oracle"),
	}
}

// GetPrice fetches the latest round for (symbol, chainID) and evaluates
// staleness as now - updatedAt > max(2*heartbeat, 1h).
func (a *ChainlinkAdapter) GetPrice(ctx context.Context, symbol string, chainID uint64) (Quote, error) {
	rpc, ok := a.rpcs[chainID]
	if !ok {
		return Quote{}, fmt.Errorf("no RPC client configured for chain %d", chainID)
	}
	feed, ok := a.feeds[chainID][symbol]
	if !ok {
		return Quote{}, fmt.Errorf("no price feed configured for %s on chain %d", symbol, chainID)
	}

	result, err := rpc.EthCall(ctx, feed.Aggregator, selectorLatestRoundData)
	if err != nil {
		return Quote{}, fmt.Errorf("latestRoundData call failed for %s: %w", symbol, err)
	}
	// (uint80 roundId, int256 answer, uint256 startedAt, uint256 updatedAt,
	//  uint80 answeredInRound)
	if len(result) < 5*32 {
		return Quote{}, fmt.Errorf("unexpected latestRoundData result length: %d", len(result))
	}

	roundID := new(big.Int).SetBytes(result[0:32])
	answer := new(big.Int).SetBytes(result[32:64])
	updatedAt := new(big.Int).SetBytes(result[96:128]).Int64()

	price, _ := new(big.Float).Quo(
		new(big.Float).SetInt(answer),
		new(big.Float).SetFloat64(math.Pow10(a.feedDecimals)),
	).Float64()
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return Quote{}, fmt.Errorf("feed %s on chain %d returned non-positive price", symbol, chainID)
	}

	staleness := a.now().Unix() - updatedAt
	isStale := staleness > int64(stalenessWindow(feed.HeartbeatSeconds).Seconds())

	if isStale {
		a.logger.Warn().
			Str("symbol", symbol).
			Uint64("chainID", chainID).
			Int64("stalenessSeconds", staleness).
			Msg("Oracle round is stale; downstream USD figures will be flagged")
	}

	return Quote{
		Symbol:           symbol,
		ChainID:          chainID,
		Price:            price,
		TimestampSeconds: updatedAt,
		RoundID:          roundID.String(),
		Decimals:         a.feedDecimals,
		IsStale:          isStale,
		StalenessSeconds: staleness,
	}, nil
}

// stalenessWindow is twice the feed's heartbeat, floored at one hour.
func stalenessWindow(heartbeatSeconds int64) time.Duration {
	window := time.Duration(2*heartbeatSeconds) * time.Second
	if window < minStalenessFloor {
		window = minStalenessFloor
	}
	return window
}

// ResolvePrice returns a usable USD price for symbol along with a degraded
// flag. Order of preference: fresh oracle quote, stale oracle quote (degraded),
// static fallback table (degraded). Only a symbol absent from the fallback
// table is an error.
func ResolvePrice(ctx context.Context, adapter Adapter, symbol string, chainID uint64) (float64, bool, error) {
	quote, err := adapter.GetPrice(ctx, symbol, chainID)
	if err == nil {
		return quote.Price, quote.IsStale, nil
	}

	fallback, ok := config.FallbackPrices[symbol]
	if !ok {
		return 0, false, fmt.Errorf("oracle unavailable and no fallback price for %s (chain %s): %w",
			symbol, strconv.FormatUint(chainID, 10), err)
	}

	lg := logger.GetForComponent("price_oracle")
	lg.Warn().
		Err(err).
		Str("symbol", symbol).
		Uint64("chainID", chainID).
		Float64("fallbackPrice", fallback).
		Msg("Oracle unavailable; using static fallback price (degraded)")

	return fallback, true, nil
}
