package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/velikanghost/alioth-server-sub001/internal/config"
)

// YieldsAPISource observes rates from a public yields aggregation API
// (DefiLlama-compatible pool listings). It covers protocols without an
// on-chain reader and is the only source that reports reward APRs, since
// incentive emissions are not readable from pool contracts directly.
type YieldsAPISource struct {
	httpClient *http.Client
	baseURL    string
	protocol   string
	chainName  string
	chainID    uint64
	tokens     []config.TokenInfo
}

// NewYieldsAPISource builds a source querying baseURL for one protocol on one
// chain. chainName must match the API's chain naming ("Arbitrum", "Base").
func NewYieldsAPISource(baseURL, protocol, chainName string, chainID uint64, tokens []config.TokenInfo) *YieldsAPISource {
	return &YieldsAPISource{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		protocol:   protocol,
		chainName:  chainName,
		chainID:    chainID,
		tokens:     tokens,
	}
}

func (s *YieldsAPISource) Protocol() string { return s.protocol }

func (s *YieldsAPISource) ChainID() uint64 { return s.chainID }

func (s *YieldsAPISource) SupportedTokens() []config.TokenInfo { return s.tokens }

type yieldsPool struct {
	Chain     string  `json:"chain"`
	Project   string  `json:"project"`
	Symbol    string  `json:"symbol"`
	TVLUSD    float64 `json:"tvlUsd"`
	APYBase   float64 `json:"apyBase"`
	APYReward float64 `json:"apyReward"`
}

type yieldsResponse struct {
	Data []yieldsPool `json:"data"`
}

// FetchRates pulls the pool listing and picks the matching project/chain/symbol
// entry. The API reports APY figures; these are used as APR observations,
// which slightly understates compounding but keeps sources comparable.
func (s *YieldsAPISource) FetchRates(ctx context.Context, token config.TokenInfo) (RateSample, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/pools", nil)
	if err != nil {
		return RateSample{}, fmt.Errorf("build yields request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return RateSample{}, fmt.Errorf("yields request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return RateSample{}, fmt.Errorf("yields API returned status %d", resp.StatusCode)
	}

	var payload yieldsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return RateSample{}, fmt.Errorf("decode yields response: %w", err)
	}

	for _, pool := range payload.Data {
		if !strings.EqualFold(pool.Chain, s.chainName) {
			continue
		}
		if !strings.EqualFold(pool.Project, s.protocol) {
			continue
		}
		if !strings.EqualFold(pool.Symbol, token.Symbol) {
			continue
		}
		return RateSample{
			SupplyAPR: pool.APYBase,
			RewardAPR: pool.APYReward,
			TVLUSD:    pool.TVLUSD,
		}, nil
	}

	return RateSample{}, fmt.Errorf("no %s pool for %s on %s", s.protocol, token.Symbol, s.chainName)
}
