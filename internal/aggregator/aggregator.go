package aggregator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/rs/zerolog"

	"github.com/velikanghost/alioth-server-sub001/internal/config"
	"github.com/velikanghost/alioth-server-sub001/internal/logger"
	"github.com/velikanghost/alioth-server-sub001/internal/oracle"
	"github.com/velikanghost/alioth-server-sub001/internal/types"
)

const collectWorkers = 8

// SnapshotStore is the persistence surface the aggregator needs.
type SnapshotStore interface {
	InsertAPRSnapshot(snapshot types.APRSnapshot) (int64, error)
	LatestSnapshots(chainID uint64, tokenSymbol string, since time.Time) ([]types.APRSnapshot, error)
	QuerySnapshots(filter types.SnapshotFilter) ([]types.APRSnapshot, error)
}

// Aggregator polls every registered rate source and persists the observations
// as append-only APR snapshots.
type Aggregator struct {
	sources   []RateSource
	store     SnapshotStore
	oracle    oracle.Adapter
	freshness time.Duration
	pool      pond.Pool
	logger    zerolog.Logger
}

// NewAggregator creates an Aggregator over the given sources. freshness bounds
// how old a snapshot may be before best-rate queries ignore it.
func NewAggregator(sources []RateSource, store SnapshotStore, oracleAdapter oracle.Adapter, freshness time.Duration) (*Aggregator, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("at least one rate source is required")
	}
	if store == nil {
		return nil, fmt.Errorf("snapshot store cannot be nil")
	}
	if freshness <= 0 {
		freshness = 2 * time.Hour
	}

	return &Aggregator{
		sources:   sources,
		store:     store,
		oracle:    oracleAdapter,
		freshness: freshness,
		pool:      pond.NewPool(collectWorkers),
		logger:    logger.GetForComponent("apr_aggregator"),
	}, nil
}

// CompoundAPY combines a base supply APR and a reward APR, crediting the
// compounding of rewards back into the supply position.
func CompoundAPY(supplyAPR, rewardAPR float64) float64 {
	return supplyAPR + rewardAPR + supplyAPR*rewardAPR/100
}

// Collect fans out across all sources and tokens, persisting one snapshot per
// successful observation. Individual source failures are logged and skipped;
// the cycle never aborts for one bad pool.
func (a *Aggregator) Collect(ctx context.Context) int {
	group := a.pool.NewGroup()
	results := make(chan types.APRSnapshot, 64)

	for _, source := range a.sources {
		for _, token := range source.SupportedTokens() {
			src, tok := source, token
			group.Submit(func() {
				snapshot, err := a.observe(ctx, src, tok)
				if err != nil {
					a.logger.Warn().Err(err).
						Str("protocol", src.Protocol()).
						Uint64("chainID", src.ChainID()).
						Str("token", tok.Symbol).
						Msg("Rate observation failed")
					return
				}
				results <- snapshot
			})
		}
	}

	go func() {
		group.Wait()
		close(results)
	}()

	persisted := 0
	for snapshot := range results {
		if _, err := a.store.InsertAPRSnapshot(snapshot); err != nil {
			a.logger.Error().Err(err).
				Str("protocol", snapshot.Protocol).
				Str("token", snapshot.TokenSymbol).
				Msg("Failed to persist snapshot")
			continue
		}
		persisted++
	}

	a.logger.Info().Int("persisted", persisted).Msg("Rate collection cycle complete")
	return persisted
}

// observe fetches one sample and enriches it into a full snapshot.
func (a *Aggregator) observe(ctx context.Context, source RateSource, token config.TokenInfo) (types.APRSnapshot, error) {
	sample, err := source.FetchRates(ctx, token)
	if err != nil {
		return types.APRSnapshot{}, err
	}

	tvlUSD := sample.TVLUSD
	if tvlUSD == 0 && sample.TVLTokens > 0 {
		price, _, perr := oracle.ResolvePrice(ctx, a.oracle, token.Symbol, source.ChainID())
		if perr != nil {
			return types.APRSnapshot{}, fmt.Errorf("pricing TVL for %s: %w", token.Symbol, perr)
		}
		tvlUSD = sample.TVLTokens * price
	}

	risk, ok := config.ProtocolRisk[source.Protocol()]
	if !ok {
		risk = config.DefaultProtocolRisk
	}

	return types.APRSnapshot{
		ChainID:          source.ChainID(),
		Protocol:         source.Protocol(),
		TokenAddress:     token.Address,
		TokenSymbol:      token.Symbol,
		SupplyAPR:        sample.SupplyAPR,
		RewardAPR:        sample.RewardAPR,
		TotalAPY:         CompoundAPY(sample.SupplyAPR, sample.RewardAPR),
		TotalValueLocked: tvlUSD,
		UtilizationRate:  sample.Utilization,
		Risk:             risk,
		BlockNumber:      sample.BlockNumber,
		Timestamp:        time.Now().UTC(),
	}, nil
}

// RunLoop collects immediately, then on every tick until the context ends.
func (a *Aggregator) RunLoop(ctx context.Context, interval time.Duration) {
	a.logger.Info().Dur("interval", interval).Int("sources", len(a.sources)).Msg("APR aggregation loop started")

	a.Collect(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info().Msg("APR aggregation loop stopped")
			return
		case <-ticker.C:
			a.Collect(ctx)
		}
	}
}

// GetBestAPRForToken returns the freshest highest-yield snapshot for the token
// across protocols. Stale snapshots beyond the freshness window are excluded;
// when nothing fresh exists an error is returned rather than an old answer.
func (a *Aggregator) GetBestAPRForToken(chainID uint64, tokenSymbol string) (*types.APRSnapshot, error) {
	since := time.Now().UTC().Add(-a.freshness)
	snapshots, err := a.store.LatestSnapshots(chainID, tokenSymbol, since)
	if err != nil {
		return nil, fmt.Errorf("querying snapshots: %w", err)
	}
	if len(snapshots) == 0 {
		return nil, fmt.Errorf("no fresh rate data for %s on chain %d", tokenSymbol, chainID)
	}
	best := snapshots[0]
	return &best, nil
}

// Fresh returns the latest snapshot per protocol within the freshness window,
// ordered best yield first.
func (a *Aggregator) Fresh(chainID uint64, tokenSymbol string) ([]types.APRSnapshot, error) {
	since := time.Now().UTC().Add(-a.freshness)
	return a.store.LatestSnapshots(chainID, tokenSymbol, since)
}

// GetOptimalAllocation maps protocols to target percentages for the token,
// shaped by the risk profile: conservative concentrates in the safest
// protocol, moderate splits 60/40 across the top two yields, aggressive
// chases the single best yield.
func (a *Aggregator) GetOptimalAllocation(profile types.RiskProfile, chainID uint64, tokenSymbol string) (map[string]float64, error) {
	since := time.Now().UTC().Add(-a.freshness)
	snapshots, err := a.store.LatestSnapshots(chainID, tokenSymbol, since)
	if err != nil {
		return nil, fmt.Errorf("querying snapshots: %w", err)
	}
	if len(snapshots) == 0 {
		return nil, fmt.Errorf("no fresh rate data for %s on chain %d", tokenSymbol, chainID)
	}

	switch profile {
	case types.RiskConservative:
		safest := snapshots[0]
		for _, s := range snapshots[1:] {
			if s.Risk.ProtocolRiskScore > safest.Risk.ProtocolRiskScore ||
				(s.Risk.ProtocolRiskScore == safest.Risk.ProtocolRiskScore && s.TotalAPY > safest.TotalAPY) {
				safest = s
			}
		}
		return map[string]float64{safest.Protocol: 100}, nil

	case types.RiskModerate:
		if len(snapshots) == 1 {
			return map[string]float64{snapshots[0].Protocol: 100}, nil
		}
		ordered := make([]types.APRSnapshot, len(snapshots))
		copy(ordered, snapshots)
		sort.Slice(ordered, func(i, j int) bool { return ordered[i].TotalAPY > ordered[j].TotalAPY })
		return map[string]float64{
			ordered[0].Protocol: 60,
			ordered[1].Protocol: 40,
		}, nil

	default: // aggressive
		best := snapshots[0]
		for _, s := range snapshots[1:] {
			if s.TotalAPY > best.TotalAPY {
				best = s
			}
		}
		return map[string]float64{best.Protocol: 100}, nil
	}
}

// History exposes filtered snapshot queries for the read API.
func (a *Aggregator) History(filter types.SnapshotFilter) ([]types.APRSnapshot, error) {
	return a.store.QuerySnapshots(filter)
}
