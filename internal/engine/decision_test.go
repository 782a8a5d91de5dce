package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velikanghost/alioth-server-sub001/internal/config"
	"github.com/velikanghost/alioth-server-sub001/internal/types"
)

type fakeRates struct {
	fresh      []types.APRSnapshot
	freshErr   error
	allocation map[string]float64
}

func (f *fakeRates) Fresh(uint64, string) ([]types.APRSnapshot, error) {
	return f.fresh, f.freshErr
}

func (f *fakeRates) GetOptimalAllocation(types.RiskProfile, uint64, string) (map[string]float64, error) {
	return f.allocation, nil
}

type fakeExecutor struct {
	executed []types.AllocationPlan
	err      error
}

func (f *fakeExecutor) ExecuteRebalance(_ context.Context, plan types.AllocationPlan) (*types.Transaction, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.executed = append(f.executed, plan)
	return &types.Transaction{ID: "tx-1", Status: types.TxConfirmed}, nil
}

type fakeEngineStore struct {
	vaults    []types.UserVault
	positions map[string][]types.Position
}

func (f *fakeEngineStore) ListUserVaults() ([]types.UserVault, error) {
	return f.vaults, nil
}

func (f *fakeEngineStore) ListAllPositions(user string) ([]types.Position, error) {
	return f.positions[user], nil
}

type fakeNotifier struct {
	proposals []types.AllocationPlan
	outcomes  []Outcome
}

func (f *fakeNotifier) NotifyProposal(_ context.Context, plan types.AllocationPlan, outcome Outcome) error {
	f.proposals = append(f.proposals, plan)
	f.outcomes = append(f.outcomes, outcome)
	return nil
}

func defaultParams() types.EngineParameters {
	return types.EngineParameters{
		RebalanceThresholdAPY: 2.0,
		MinPositionUSD:        100.0,
		MinReevalInterval:     24 * time.Hour,
		MinAvgConfidence:      70.0,
		GasCostMultiple:       4.0,
		SnapshotFreshness:     2 * time.Hour,
	}
}

func testSnapshots() []types.APRSnapshot {
	now := time.Now().UTC()
	return []types.APRSnapshot{
		{ChainID: 8453, Protocol: "compound-v3", TokenSymbol: "USDC", TotalAPY: 7.5, Timestamp: now,
			Risk: types.RiskMetrics{ProtocolRiskScore: 8.5}},
		{ChainID: 8453, Protocol: "aave-v3", TokenSymbol: "USDC", TotalAPY: 4.0, Timestamp: now,
			Risk: types.RiskMetrics{ProtocolRiskScore: 9.0}},
	}
}

func testVault(auto bool) types.UserVault {
	return types.UserVault{
		UserAddress: "0xabc",
		RiskProfile: types.RiskAggressive,
		Preferences: types.VaultPreferences{
			AutoRebalance:         auto,
			MaxSlippagePct:        5.0,
			RebalanceThresholdPct: 2.0,
		},
	}
}

func testPosition(valueUSD float64) types.Position {
	return types.Position{
		UserAddress:    "0xabc",
		ChainID:        8453,
		TokenAddress:   "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
		TokenSymbol:    "USDC",
		EstimatedValue: valueUSD,
		CurrentAPY:     4.0, // attributed to aave-v3 by nearest rate
	}
}

func newTestEngine(rates Rates, requireConfirmation bool) (*Engine, *fakeExecutor, *fakeNotifier) {
	executor := &fakeExecutor{}
	notifier := &fakeNotifier{}
	eng := NewEngine(Config{
		Rates:               rates,
		Executor:            executor,
		Store:               &fakeEngineStore{},
		Notifier:            notifier,
		Parameters:          defaultParams(),
		RequireConfirmation: requireConfirmation,
	})
	return eng, executor, notifier
}

func TestConfidenceScore(t *testing.T) {
	t.Run("components cap individually", func(t *testing.T) {
		// 3.5 pts improvement caps the first term at 60; risk 9.0 caps the
		// second at 30; plus the 10-point base.
		assert.Equal(t, 100.0, ConfidenceScore(3.5, 9.0))
	})

	t.Run("small improvement scores proportionally", func(t *testing.T) {
		// 1.0*20 + min(30, 8.5*5) + 10 = 20 + 30 + 10
		assert.Equal(t, 60.0, ConfidenceScore(1.0, 8.5))
	})

	t.Run("clamps to 100", func(t *testing.T) {
		assert.Equal(t, 100.0, ConfidenceScore(50, 10))
	})

	t.Run("negative improvement floors at zero contribution", func(t *testing.T) {
		score := ConfidenceScore(-10, 0)
		assert.GreaterOrEqual(t, score, 0.0)
	})
}

func TestEvaluatePosition(t *testing.T) {
	ctx := context.Background()
	config.Chains[8453] = config.ChainConfig{ChainID: 8453, Name: "base", GasEstimateUSD: 0.15}

	rates := &fakeRates{
		fresh:      testSnapshots(),
		allocation: map[string]float64{"compound-v3": 100},
	}

	t.Run("executes when all gates pass", func(t *testing.T) {
		eng, executor, _ := newTestEngine(rates, false)

		outcome, plan, err := eng.EvaluatePosition(ctx, testVault(true), testPosition(5000))
		require.NoError(t, err)
		require.NotNil(t, plan)
		assert.Equal(t, OutcomeExecuted, outcome)
		assert.InDelta(t, 3.5, plan.TotalAPYImprovement, 1e-9)
		require.Len(t, plan.Actions, 1)
		assert.Equal(t, "aave-v3", plan.Actions[0].FromProtocol)
		assert.Equal(t, "compound-v3", plan.Actions[0].ToProtocol)
		assert.Equal(t, 5000.0, plan.Actions[0].AmountUSD)
		assert.Empty(t, executor.executed, "EvaluatePosition decides; EvaluateAll executes")
	})

	t.Run("suppresses below improvement threshold", func(t *testing.T) {
		eng, _, _ := newTestEngine(rates, false)

		position := testPosition(5000)
		position.CurrentAPY = 6.5 // only 1.0 pt below best
		outcome, plan, err := eng.EvaluatePosition(ctx, testVault(true), position)
		require.NoError(t, err)
		assert.Equal(t, OutcomeSuppressed, outcome)
		assert.Nil(t, plan)
	})

	t.Run("suppresses an improvement exactly at the threshold", func(t *testing.T) {
		eng, _, _ := newTestEngine(rates, false)

		position := testPosition(5000)
		position.CurrentAPY = 5.5 // best is 7.5: exactly the 2.0 pt threshold
		outcome, plan, err := eng.EvaluatePosition(ctx, testVault(true), position)
		require.NoError(t, err)
		assert.Equal(t, OutcomeSuppressed, outcome)
		assert.Nil(t, plan)
	})

	t.Run("suppresses tiny positions", func(t *testing.T) {
		eng, _, _ := newTestEngine(rates, false)

		outcome, plan, err := eng.EvaluatePosition(ctx, testVault(true), testPosition(50))
		require.NoError(t, err)
		assert.Equal(t, OutcomeSuppressed, outcome)
		assert.Nil(t, plan)
	})

	t.Run("suppresses without fresh rate data", func(t *testing.T) {
		eng, _, _ := newTestEngine(&fakeRates{fresh: nil}, false)

		outcome, plan, err := eng.EvaluatePosition(ctx, testVault(true), testPosition(5000))
		require.NoError(t, err)
		assert.Equal(t, OutcomeSuppressed, outcome)
		assert.Nil(t, plan)
	})

	t.Run("notify-only when user has not opted in", func(t *testing.T) {
		eng, _, _ := newTestEngine(rates, false)

		outcome, plan, err := eng.EvaluatePosition(ctx, testVault(false), testPosition(5000))
		require.NoError(t, err)
		require.NotNil(t, plan)
		assert.Equal(t, OutcomeNotifyOnly, outcome)
	})

	t.Run("notify-only when confirmation is globally required", func(t *testing.T) {
		eng, _, _ := newTestEngine(rates, true)

		outcome, plan, err := eng.EvaluatePosition(ctx, testVault(true), testPosition(5000))
		require.NoError(t, err)
		require.NotNil(t, plan)
		assert.Equal(t, OutcomeNotifyOnly, outcome)
	})

	t.Run("gas gate suppresses uneconomic moves", func(t *testing.T) {
		config.Chains[1] = config.ChainConfig{ChainID: 1, Name: "ethereum", GasEstimateUSD: 12.0}
		defer delete(config.Chains, 1)

		mainnetRates := &fakeRates{
			fresh: func() []types.APRSnapshot {
				snaps := testSnapshots()
				for i := range snaps {
					snaps[i].ChainID = 1
				}
				return snaps
			}(),
			allocation: map[string]float64{"compound-v3": 100},
		}
		eng, _, _ := newTestEngine(mainnetRates, false)

		position := testPosition(120)
		position.ChainID = 1
		// 120 USD * 3.5% = 4.20 USD annual gain; 4x the 12 USD gas estimate
		// is 48 USD, so the move is uneconomic despite passing the threshold.
		outcome, plan, err := eng.EvaluatePosition(ctx, testVault(true), position)
		require.NoError(t, err)
		require.NotNil(t, plan)
		assert.Equal(t, OutcomeSuppressed, outcome)
	})
}

func TestEvaluateAll(t *testing.T) {
	ctx := context.Background()
	config.Chains[8453] = config.ChainConfig{ChainID: 8453, Name: "base", GasEstimateUSD: 0.15}

	rates := &fakeRates{
		fresh:      testSnapshots(),
		allocation: map[string]float64{"compound-v3": 100},
	}

	t.Run("executes eligible vaults and notifies", func(t *testing.T) {
		executor := &fakeExecutor{}
		notifier := &fakeNotifier{}
		store := &fakeEngineStore{
			vaults:    []types.UserVault{testVault(true)},
			positions: map[string][]types.Position{"0xabc": {testPosition(5000)}},
		}
		eng := NewEngine(Config{
			Rates: rates, Executor: executor, Store: store, Notifier: notifier,
			Parameters: defaultParams(), RequireConfirmation: false,
		})

		eng.EvaluateAll(ctx)

		require.Len(t, executor.executed, 1)
		require.Len(t, notifier.outcomes, 1)
		assert.Equal(t, OutcomeExecuted, notifier.outcomes[0])
	})

	t.Run("skips paused vaults", func(t *testing.T) {
		executor := &fakeExecutor{}
		vault := testVault(true)
		vault.Preferences.EmergencyPause = true
		store := &fakeEngineStore{
			vaults:    []types.UserVault{vault},
			positions: map[string][]types.Position{"0xabc": {testPosition(5000)}},
		}
		eng := NewEngine(Config{
			Rates: rates, Executor: executor, Store: store,
			Parameters: defaultParams(),
		})

		eng.EvaluateAll(ctx)
		assert.Empty(t, executor.executed)
	})

	t.Run("skips recently active vaults", func(t *testing.T) {
		executor := &fakeExecutor{}
		vault := testVault(true)
		vault.Statistics.LastActivityAt = time.Now().UTC().Add(-1 * time.Hour)
		store := &fakeEngineStore{
			vaults:    []types.UserVault{vault},
			positions: map[string][]types.Position{"0xabc": {testPosition(5000)}},
		}
		eng := NewEngine(Config{
			Rates: rates, Executor: executor, Store: store,
			Parameters: defaultParams(),
		})

		eng.EvaluateAll(ctx)
		assert.Empty(t, executor.executed)
	})

	t.Run("re-evaluates after the interval elapses", func(t *testing.T) {
		executor := &fakeExecutor{}
		vault := testVault(true)
		vault.Statistics.LastActivityAt = time.Now().UTC().Add(-25 * time.Hour)
		store := &fakeEngineStore{
			vaults:    []types.UserVault{vault},
			positions: map[string][]types.Position{"0xabc": {testPosition(5000)}},
		}
		eng := NewEngine(Config{
			Rates: rates, Executor: executor, Store: store,
			Parameters: defaultParams(),
		})

		eng.EvaluateAll(ctx)
		assert.Len(t, executor.executed, 1)
	})
}
