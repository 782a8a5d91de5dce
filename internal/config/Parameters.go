package config

import (
	"time"

	"github.com/velikanghost/alioth-server-sub001/internal/types"
)

// DefaultEngineParameters is the baseline threshold set for the rebalance
// decision engine.
var DefaultEngineParameters = types.EngineParameters{
	RebalanceThresholdAPY: 2.0,
	MinPositionUSD:        100.0,
	MinReevalInterval:     24 * time.Hour,
	MinAvgConfidence:      70.0,
	GasCostMultiple:       4.0,
	SnapshotFreshness:     2 * time.Hour,
}
