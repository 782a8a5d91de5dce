package aggregator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velikanghost/alioth-server-sub001/internal/config"
	"github.com/velikanghost/alioth-server-sub001/internal/types"
)

// fakeSnapshotStore keeps snapshots in memory, returning latest-per-protocol
// ordered by total APY descending like the real store does.
type fakeSnapshotStore struct {
	snapshots []types.APRSnapshot
	nextID    int64
}

func (f *fakeSnapshotStore) InsertAPRSnapshot(snapshot types.APRSnapshot) (int64, error) {
	f.nextID++
	snapshot.ID = f.nextID
	f.snapshots = append(f.snapshots, snapshot)
	return f.nextID, nil
}

func (f *fakeSnapshotStore) LatestSnapshots(chainID uint64, tokenSymbol string, since time.Time) ([]types.APRSnapshot, error) {
	latest := make(map[string]types.APRSnapshot)
	for _, s := range f.snapshots {
		if s.ChainID != chainID || s.TokenSymbol != tokenSymbol || s.Timestamp.Before(since) {
			continue
		}
		if prior, ok := latest[s.Protocol]; !ok || s.Timestamp.After(prior.Timestamp) {
			latest[s.Protocol] = s
		}
	}
	out := make([]types.APRSnapshot, 0, len(latest))
	for _, s := range latest {
		out = append(out, s)
	}
	// order best yield first
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].TotalAPY > out[i].TotalAPY {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (f *fakeSnapshotStore) QuerySnapshots(_ types.SnapshotFilter) ([]types.APRSnapshot, error) {
	return f.snapshots, nil
}

// fakeSource yields a fixed sample.
type fakeSource struct {
	protocol string
	chainID  uint64
	tokens   []config.TokenInfo
	sample   RateSample
	err      error
}

func (f *fakeSource) Protocol() string                    { return f.protocol }
func (f *fakeSource) ChainID() uint64                     { return f.chainID }
func (f *fakeSource) SupportedTokens() []config.TokenInfo { return f.tokens }
func (f *fakeSource) FetchRates(context.Context, config.TokenInfo) (RateSample, error) {
	return f.sample, f.err
}

func usdc() config.TokenInfo {
	return config.TokenInfo{Address: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", Symbol: "USDC", Decimals: 6}
}

func TestCompoundAPY(t *testing.T) {
	t.Run("rewards compound into supply", func(t *testing.T) {
		// 4% supply + 2% reward: 4 + 2 + 4*2/100 = 6.08
		assert.InDelta(t, 6.08, CompoundAPY(4.0, 2.0), 1e-9)
	})

	t.Run("no rewards means plain supply rate", func(t *testing.T) {
		assert.Equal(t, 3.5, CompoundAPY(3.5, 0))
	})

	t.Run("zero rates", func(t *testing.T) {
		assert.Equal(t, 0.0, CompoundAPY(0, 0))
	})
}

func TestCollect(t *testing.T) {
	store := &fakeSnapshotStore{}
	sources := []RateSource{
		&fakeSource{
			protocol: "aave-v3", chainID: 8453, tokens: []config.TokenInfo{usdc()},
			sample: RateSample{SupplyAPR: 4.0, RewardAPR: 0, TVLUSD: 5_000_000, Utilization: 0.8, BlockNumber: 100},
		},
		&fakeSource{
			protocol: "compound-v3", chainID: 8453, tokens: []config.TokenInfo{usdc()},
			sample: RateSample{SupplyAPR: 6.0, RewardAPR: 1.0, TVLUSD: 3_000_000, Utilization: 0.6, BlockNumber: 100},
		},
	}

	agg, err := NewAggregator(sources, store, nil, 2*time.Hour)
	require.NoError(t, err)

	persisted := agg.Collect(context.Background())
	assert.Equal(t, 2, persisted)
	require.Len(t, store.snapshots, 2)

	for _, s := range store.snapshots {
		assert.Equal(t, CompoundAPY(s.SupplyAPR, s.RewardAPR), s.TotalAPY)
		assert.NotZero(t, s.Risk.ProtocolRiskScore, "known protocols carry configured risk metrics")
	}
}

func TestCollectSkipsFailedSources(t *testing.T) {
	store := &fakeSnapshotStore{}
	sources := []RateSource{
		&fakeSource{
			protocol: "aave-v3", chainID: 8453, tokens: []config.TokenInfo{usdc()},
			sample: RateSample{SupplyAPR: 4.0, TVLUSD: 1_000_000},
		},
		&fakeSource{
			protocol: "compound-v3", chainID: 8453, tokens: []config.TokenInfo{usdc()},
			err: assert.AnError,
		},
	}

	agg, err := NewAggregator(sources, store, nil, 2*time.Hour)
	require.NoError(t, err)

	persisted := agg.Collect(context.Background())
	assert.Equal(t, 1, persisted)
}

func TestGetBestAPRForToken(t *testing.T) {
	store := &fakeSnapshotStore{}
	agg, err := NewAggregator([]RateSource{&fakeSource{protocol: "aave-v3", chainID: 8453}}, store, nil, 2*time.Hour)
	require.NoError(t, err)

	now := time.Now().UTC()
	store.snapshots = []types.APRSnapshot{
		{ChainID: 8453, Protocol: "aave-v3", TokenSymbol: "USDC", TotalAPY: 4.0, Timestamp: now},
		{ChainID: 8453, Protocol: "compound-v3", TokenSymbol: "USDC", TotalAPY: 6.5, Timestamp: now},
	}

	t.Run("returns highest fresh yield", func(t *testing.T) {
		best, err := agg.GetBestAPRForToken(8453, "USDC")
		require.NoError(t, err)
		assert.Equal(t, "compound-v3", best.Protocol)
		assert.Equal(t, 6.5, best.TotalAPY)
	})

	t.Run("stale snapshots are not answers", func(t *testing.T) {
		store.snapshots = []types.APRSnapshot{
			{ChainID: 8453, Protocol: "aave-v3", TokenSymbol: "USDC", TotalAPY: 4.0, Timestamp: now.Add(-3 * time.Hour)},
		}
		_, err := agg.GetBestAPRForToken(8453, "USDC")
		assert.Error(t, err)
	})

	t.Run("unknown token is an error", func(t *testing.T) {
		_, err := agg.GetBestAPRForToken(8453, "UNLISTED")
		assert.Error(t, err)
	})
}

func TestGetOptimalAllocation(t *testing.T) {
	store := &fakeSnapshotStore{}
	agg, err := NewAggregator([]RateSource{&fakeSource{protocol: "aave-v3", chainID: 8453}}, store, nil, 2*time.Hour)
	require.NoError(t, err)

	now := time.Now().UTC()
	store.snapshots = []types.APRSnapshot{
		{ChainID: 8453, Protocol: "aave-v3", TokenSymbol: "USDC", TotalAPY: 4.0, Timestamp: now,
			Risk: types.RiskMetrics{ProtocolRiskScore: 9.0}},
		{ChainID: 8453, Protocol: "compound-v3", TokenSymbol: "USDC", TotalAPY: 6.5, Timestamp: now,
			Risk: types.RiskMetrics{ProtocolRiskScore: 8.5}},
	}

	t.Run("conservative concentrates in safest protocol", func(t *testing.T) {
		allocation, err := agg.GetOptimalAllocation(types.RiskConservative, 8453, "USDC")
		require.NoError(t, err)
		assert.Equal(t, map[string]float64{"aave-v3": 100}, allocation)
	})

	t.Run("moderate splits 60/40 across top yields", func(t *testing.T) {
		allocation, err := agg.GetOptimalAllocation(types.RiskModerate, 8453, "USDC")
		require.NoError(t, err)
		assert.Equal(t, map[string]float64{"compound-v3": 60, "aave-v3": 40}, allocation)
	})

	t.Run("aggressive chases best yield", func(t *testing.T) {
		allocation, err := agg.GetOptimalAllocation(types.RiskAggressive, 8453, "USDC")
		require.NoError(t, err)
		assert.Equal(t, map[string]float64{"compound-v3": 100}, allocation)
	})

	t.Run("single protocol allocates everything regardless of profile", func(t *testing.T) {
		store.snapshots = store.snapshots[:1]
		allocation, err := agg.GetOptimalAllocation(types.RiskModerate, 8453, "USDC")
		require.NoError(t, err)
		assert.Equal(t, map[string]float64{"aave-v3": 100}, allocation)
	})
}
