/*

The decision engine periodically evaluates every user vault for rebalancing
opportunities. Each evaluation either suppresses (no worthwhile move),
notifies (a worthwhile move the user must approve), or executes (a worthwhile
move the user has pre-authorized). Execution is delegated to the transaction
lifecycle manager as an agent-initiated rebalance.

*/

package engine

import (
	"context"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/rs/zerolog"

	"github.com/velikanghost/alioth-server-sub001/internal/logger"
	"github.com/velikanghost/alioth-server-sub001/internal/types"
)

const evaluateWorkers = 4

// Outcome classifies the result of evaluating one position.
type Outcome string

const (
	OutcomeSuppressed Outcome = "suppressed"
	OutcomeNotifyOnly Outcome = "notify_only"
	OutcomeExecuted   Outcome = "executed"
)

// Rates is the yield-data surface the engine consumes.
type Rates interface {
	Fresh(chainID uint64, tokenSymbol string) ([]types.APRSnapshot, error)
	GetOptimalAllocation(profile types.RiskProfile, chainID uint64, tokenSymbol string) (map[string]float64, error)
}

// Executor carries out an approved allocation plan.
type Executor interface {
	ExecuteRebalance(ctx context.Context, plan types.AllocationPlan) (*types.Transaction, error)
}

// Store is the persistence surface the engine reads.
type Store interface {
	ListUserVaults() ([]types.UserVault, error)
	ListAllPositions(user string) ([]types.Position, error)
}

// Engine evaluates vaults and drives rebalance decisions.
type Engine struct {
	rates    Rates
	executor Executor
	store    Store
	notifier Notifier
	params   types.EngineParameters
	// requireConfirmation blocks autonomous execution globally even for users
	// who opted into auto-rebalancing.
	requireConfirmation bool
	pool                pond.Pool
	logger              zerolog.Logger
}

// Config holds the dependencies for creating an Engine.
type Config struct {
	Rates               Rates
	Executor            Executor
	Store               Store
	Notifier            Notifier
	Parameters          types.EngineParameters
	RequireConfirmation bool
}

// NewEngine creates an Engine with dependency injection.
func NewEngine(cfg Config) *Engine {
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = NewLogNotifier()
	}
	return &Engine{
		rates:               cfg.Rates,
		executor:            cfg.Executor,
		store:               cfg.Store,
		notifier:            notifier,
		params:              cfg.Parameters,
		requireConfirmation: cfg.RequireConfirmation,
		pool:                pond.NewPool(evaluateWorkers),
		logger:              logger.GetForComponent("decision_engine"),
	}
}

// EvaluateAll runs one evaluation cycle over every user vault, in parallel
// across users. Per-user failures are logged and do not stop the cycle.
func (e *Engine) EvaluateAll(ctx context.Context) {
	vaults, err := e.store.ListUserVaults()
	if err != nil {
		e.logger.Error().Err(err).Msg("Could not list user vaults")
		return
	}

	group := e.pool.NewGroup()
	for i := range vaults {
		vault := vaults[i]
		group.Submit(func() {
			if err := e.evaluateVault(ctx, vault); err != nil {
				e.logger.Error().Err(err).Str("user", vault.UserAddress).Msg("Vault evaluation failed")
			}
		})
	}
	group.Wait()

	e.logger.Info().Int("vaults", len(vaults)).Msg("Evaluation cycle complete")
}

// evaluateVault applies the per-user skip rules, then evaluates each position.
func (e *Engine) evaluateVault(ctx context.Context, vault types.UserVault) error {
	if vault.Preferences.EmergencyPause {
		e.logger.Debug().Str("user", vault.UserAddress).Msg("Vault paused; skipping")
		return nil
	}
	if !vault.Statistics.LastActivityAt.IsZero() &&
		time.Since(vault.Statistics.LastActivityAt) < e.params.MinReevalInterval {
		e.logger.Debug().Str("user", vault.UserAddress).Msg("Vault active recently; skipping")
		return nil
	}

	positions, err := e.store.ListAllPositions(vault.UserAddress)
	if err != nil {
		return err
	}

	for _, position := range positions {
		outcome, plan, err := e.EvaluatePosition(ctx, vault, position)
		if err != nil {
			e.logger.Warn().Err(err).
				Str("user", vault.UserAddress).
				Str("token", position.TokenSymbol).
				Msg("Position evaluation failed")
			continue
		}
		if plan == nil {
			continue
		}

		e.logger.Info().
			Str("user", vault.UserAddress).
			Str("token", position.TokenSymbol).
			Str("outcome", string(outcome)).
			Float64("apyImprovement", plan.TotalAPYImprovement).
			Float64("avgConfidence", plan.AverageConfidence()).
			Msg("Rebalance evaluated")

		switch outcome {
		case OutcomeNotifyOnly:
			if nerr := e.notifier.NotifyProposal(ctx, *plan, outcome); nerr != nil {
				e.logger.Error().Err(nerr).Str("user", vault.UserAddress).Msg("Proposal notification failed")
			}
		case OutcomeExecuted:
			if _, xerr := e.executor.ExecuteRebalance(ctx, *plan); xerr != nil {
				e.logger.Error().Err(xerr).Str("user", vault.UserAddress).Msg("Rebalance execution failed")
				continue
			}
			if nerr := e.notifier.NotifyProposal(ctx, *plan, outcome); nerr != nil {
				e.logger.Error().Err(nerr).Str("user", vault.UserAddress).Msg("Execution notification failed")
			}
		}
	}
	return nil
}

// RunLoop evaluates immediately, then on every tick until the context ends.
func (e *Engine) RunLoop(ctx context.Context, interval time.Duration) {
	e.logger.Info().Dur("interval", interval).Msg("Decision engine loop started")

	e.EvaluateAll(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info().Msg("Decision engine loop stopped")
			return
		case <-ticker.C:
			e.EvaluateAll(ctx)
		}
	}
}
