// ./internal/state/db.go
package state

import (
	"database/sql"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// DB is a global database connection pool.
var DB *sql.DB

// DBConfig holds database connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
}

// InitDB initializes the database connection pool.
func InitDB(cfg DBConfig) error {
	psqlInfo := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	var err error
	DB, err = sql.Open("postgres", psqlInfo)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	DB.SetMaxOpenConns(25)
	DB.SetMaxIdleConns(25)
	DB.SetConnMaxLifetime(5 * time.Minute)

	err = DB.Ping()
	if err != nil {
		DB.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Msg("Successfully connected to the PostgreSQL database!")
	return nil
}

// TestDBConnection verifies the pool is still reachable.
func TestDBConnection() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}
	return DB.Ping()
}

// CloseDB closes the database connection pool.
func CloseDB() {
	if DB != nil {
		log.Info().Msg("Closing database connection...")
		if err := DB.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database connection")
		}
	}
}

// EnsureSchema applies the necessary DDL to create tables if they don't exist.
func EnsureSchema() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	schemaSQL := `
		CREATE TABLE IF NOT EXISTS transactions (
			id UUID PRIMARY KEY,
			user_address VARCHAR(64) NOT NULL,
			chain_id BIGINT NOT NULL,
			tx_type VARCHAR(32) NOT NULL,
			token_address VARCHAR(64) NOT NULL,
			token_symbol VARCHAR(32) NOT NULL,
			amount NUMERIC(78, 0) NOT NULL,
			amount_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
			status VARCHAR(16) NOT NULL,
			tx_hash VARCHAR(80),
			shares_before NUMERIC(78, 0) NOT NULL DEFAULT 0,
			shares_after NUMERIC(78, 0) NOT NULL DEFAULT 0,
			shares_delta NUMERIC(78, 0) NOT NULL DEFAULT 0,
			gas_used BIGINT NOT NULL DEFAULT 0,
			gas_fee_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
			initiated_by VARCHAR(16) NOT NULL,
			agent_data JSONB,
			pricing_degraded BOOLEAN NOT NULL DEFAULT FALSE,
			failure_reason TEXT,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_transactions_tx_hash
			ON transactions (tx_hash) WHERE tx_hash IS NOT NULL AND tx_hash <> '';
		CREATE INDEX IF NOT EXISTS idx_transactions_user ON transactions (user_address, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_transactions_status ON transactions (status, created_at);

		CREATE TABLE IF NOT EXISTS positions (
			user_address VARCHAR(64) NOT NULL,
			chain_id BIGINT NOT NULL,
			token_address VARCHAR(64) NOT NULL,
			token_symbol VARCHAR(32) NOT NULL,
			shares NUMERIC(78, 0) NOT NULL,
			estimated_value DOUBLE PRECISION NOT NULL DEFAULT 0,
			deposited_amount NUMERIC(78, 0) NOT NULL DEFAULT 0,
			deposited_value_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
			yield_earned DOUBLE PRECISION NOT NULL DEFAULT 0,
			current_apy DOUBLE PRECISION NOT NULL DEFAULT 0,
			last_updated TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (user_address, chain_id, token_address)
		);

		CREATE TABLE IF NOT EXISTS user_vaults (
			user_address VARCHAR(64) PRIMARY KEY,
			total_value_locked_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
			total_yield_earned_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
			risk_profile VARCHAR(16) NOT NULL DEFAULT 'moderate',
			preferences JSONB NOT NULL,
			statistics JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);

		CREATE TABLE IF NOT EXISTS apr_snapshots (
			snapshot_id BIGSERIAL PRIMARY KEY,
			chain_id BIGINT NOT NULL,
			protocol VARCHAR(64) NOT NULL,
			token_address VARCHAR(64) NOT NULL,
			token_symbol VARCHAR(32) NOT NULL,
			supply_apr DOUBLE PRECISION NOT NULL,
			reward_apr DOUBLE PRECISION NOT NULL,
			total_apy DOUBLE PRECISION NOT NULL,
			total_value_locked_usd DOUBLE PRECISION NOT NULL,
			utilization_rate DOUBLE PRECISION NOT NULL,
			risk_metrics JSONB NOT NULL,
			block_number BIGINT NOT NULL DEFAULT 0,
			snapshot_timestamp TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_apr_snapshots_lookup
			ON apr_snapshots (chain_id, token_symbol, snapshot_timestamp DESC);
		CREATE INDEX IF NOT EXISTS idx_apr_snapshots_protocol
			ON apr_snapshots (protocol, chain_id, snapshot_timestamp DESC);
	`
	if _, err := DB.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}

	log.Info().Msg("Database schema ensured.")
	return nil
}

// intFromDB parses a NUMERIC(78,0) column scanned as string into an Int.
func intFromDB(raw string) (sdkmath.Int, error) {
	if raw == "" {
		return sdkmath.ZeroInt(), nil
	}
	value, ok := sdkmath.NewIntFromString(raw)
	if !ok {
		return sdkmath.ZeroInt(), fmt.Errorf("invalid integer column value: %q", raw)
	}
	return value, nil
}
