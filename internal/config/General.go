package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// SignerURL is the endpoint of the custodial wallet/signing collaborator.
	SignerURL string
	// SignerWalletID is the custodial wallet identifier used for agent-signed calls.
	SignerWalletID string

	// ConfirmationTimeout bounds the blocking wait for on-chain confirmation.
	ConfirmationTimeout time.Duration
	// SnapshotInterval is the yield aggregator polling cadence.
	SnapshotInterval time.Duration
	// PendingResolveInterval is the cadence of the pending-transaction resolver.
	PendingResolveInterval time.Duration

	// AgentRequireConfirmation forces the decision engine into notify-only mode
	// even for users that opted into auto-rebalancing.
	AgentRequireConfirmation bool
)

// LoadConfig loads configuration from environment variables and sets the global
// config vars. Endpoint and signer variables are required; intervals fall back
// to defaults when unset.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	SignerURL, err = getEnv("SIGNER_URL")
	if err != nil {
		return err
	}

	SignerWalletID, err = getEnv("SIGNER_WALLET_ID")
	if err != nil {
		return err
	}

	ConfirmationTimeout = getEnvAsDuration("CONFIRMATION_TIMEOUT", 60*time.Second)
	SnapshotInterval = getEnvAsDuration("SNAPSHOT_INTERVAL", 15*time.Minute)
	PendingResolveInterval = getEnvAsDuration("PENDING_RESOLVE_INTERVAL", 5*time.Minute)

	AgentRequireConfirmation = getEnvAsBool("AGENT_REQUIRE_CONFIRMATION", true)

	if err := loadChainConfig(); err != nil {
		return err
	}

	log.Debug().
		Dur("ConfirmationTimeout", ConfirmationTimeout).
		Dur("SnapshotInterval", SnapshotInterval).
		Bool("AgentRequireConfirmation", AgentRequireConfirmation).
		Msg("Configuration loaded successfully.")

	return nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvAsDuration retrieves an environment variable as a duration, falling
// back to def when unset or invalid.
func getEnvAsDuration(key string, def time.Duration) time.Duration {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return def
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Warn().Str("key", key).Str("value", valueStr).Msg("Invalid duration in environment, using default")
		return def
	}
	return value
}

// getEnvAsBool retrieves an environment variable as a bool, falling back to
// def when unset or invalid.
func getEnvAsBool(key string, def bool) bool {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return def
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Warn().Str("key", key).Str("value", valueStr).Msg("Invalid bool in environment, using default")
		return def
	}
	return value
}
