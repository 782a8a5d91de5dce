package main

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/velikanghost/alioth-server-sub001/internal/aggregator"
	"github.com/velikanghost/alioth-server-sub001/internal/config"
	"github.com/velikanghost/alioth-server-sub001/internal/engine"
	"github.com/velikanghost/alioth-server-sub001/internal/ledger"
	"github.com/velikanghost/alioth-server-sub001/internal/logger"
	"github.com/velikanghost/alioth-server-sub001/internal/oracle"
	"github.com/velikanghost/alioth-server-sub001/internal/state"
	"github.com/velikanghost/alioth-server-sub001/internal/vaultmgr"
	"github.com/velikanghost/alioth-server-sub001/internal/wallet"
	"github.com/velikanghost/alioth-server-sub001/internal/web"
)

const (
	ENGINE_INTERVAL = 1 * time.Hour
	RESOLVE_MAX_AGE = 2 * time.Minute
)

// main is the entry point for the Alioth vault server.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(os.Getenv("LOG_LEVEL"))
	log.Info().Msg("Alioth Vault Server Starting...")

	dbCfg := state.DBConfig{
		Host: os.Getenv("DB_HOST"), Port: mustAtoi(os.Getenv("DB_PORT"), 5432),
		User: os.Getenv("DB_USER"), Password: os.Getenv("DB_PASSWORD"),
		DBName: os.Getenv("DB_NAME"), SSLMode: os.Getenv("DB_SSLMODE"),
	}
	if err := state.InitDB(dbCfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer state.CloseDB()
	if err := state.EnsureSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure database schema")
	}

	store := &state.SQLStore{}

	// --- 2. Oracle and Ledger Clients (with Safety Switch) ---
	priceOracle := oracle.NewChainlinkAdapter(config.Chains, config.PriceFeeds)

	serverMode := os.Getenv("SERVER_MODE")
	if serverMode != "live" {
		log.Fatal().Msg("SERVER_MODE is not set to 'live'. Halting to prevent accidental execution. Set SERVER_MODE=live to run.")
	}
	log.Warn().Msg("Initializing in LIVE mode. Real transactions will be submitted for signing.")

	signer := wallet.NewRemoteSigner(config.SignerURL)

	ledgers := make(map[uint64]ledger.Client, len(config.Chains))
	for chainID, chainCfg := range config.Chains {
		id := chainID
		nativePrice := func(ctx context.Context) float64 {
			price, _, err := oracle.ResolvePrice(ctx, priceOracle, "WETH", id)
			if err != nil {
				return config.FallbackPrices["WETH"]
			}
			return price
		}
		client, err := ledger.NewEVMClient(chainCfg, signer, config.SignerWalletID, nativePrice)
		if err != nil {
			log.Fatal().Err(err).Uint64("chainID", chainID).Msg("Failed to initialize ledger client")
		}
		ledgers[chainID] = client
		log.Info().Uint64("chainID", chainID).Str("name", chainCfg.Name).Msg("Ledger client ready")
	}

	// --- 3. Transaction Lifecycle Manager ---
	manager, err := vaultmgr.NewManager(vaultmgr.Config{
		Ledgers:             ledgers,
		Oracle:              priceOracle,
		Store:               store,
		ConfirmationTimeout: config.ConfirmationTimeout,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create transaction manager")
	}

	// --- 4. APR Aggregator ---
	var sources []aggregator.RateSource
	for _, deployment := range config.ProtocolDeployments {
		chainCfg, ok := config.Chains[deployment.ChainID]
		if !ok {
			log.Warn().Str("protocol", deployment.Name).Uint64("chainID", deployment.ChainID).Msg("Skipping deployment on unconfigured chain")
			continue
		}
		rpc := ledger.NewRPCClient(chainCfg.RPCURLs...)
		switch deployment.Name {
		case "aave-v3":
			sources = append(sources, aggregator.NewAaveSource(rpc, deployment))
		case "compound-v3":
			sources = append(sources, aggregator.NewCompoundSource(rpc, deployment))
		default:
			log.Warn().Str("protocol", deployment.Name).Msg("No on-chain rate source for protocol")
		}
	}
	if yieldsURL := os.Getenv("YIELDS_API_URL"); yieldsURL != "" {
		for _, deployment := range config.ProtocolDeployments {
			chainCfg, ok := config.Chains[deployment.ChainID]
			if !ok {
				continue
			}
			sources = append(sources, aggregator.NewYieldsAPISource(yieldsURL, deployment.Name, chainCfg.Name, deployment.ChainID, deployment.Tokens))
		}
	}

	aprAggregator, err := aggregator.NewAggregator(sources, store, priceOracle, config.DefaultEngineParameters.SnapshotFreshness)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create APR aggregator")
	}

	// --- 5. Decision Engine ---
	decisionEngine := engine.NewEngine(engine.Config{
		Rates:               aprAggregator,
		Executor:            manager,
		Store:               store,
		Parameters:          config.DefaultEngineParameters,
		RequireConfirmation: config.AgentRequireConfirmation,
	})

	// --- 6. Web Server ---
	webPort := os.Getenv("WEB_PORT")
	webServer := web.NewWebServer(webPort, store, aprAggregator, manager)
	go func() {
		if err := webServer.Start(); err != nil {
			log.Error().Err(err).Msg("Web server failed")
		}
	}()

	// --- 7. Background Loops ---
	ctx := context.Background()

	go manager.RunPendingResolver(ctx, config.PendingResolveInterval, config.ConfirmationTimeout+RESOLVE_MAX_AGE)
	go aprAggregator.RunLoop(ctx, config.SnapshotInterval)

	log.Info().Dur("interval", ENGINE_INTERVAL).Msg("Starting decision engine loop")
	decisionEngine.RunLoop(ctx, ENGINE_INTERVAL)
}

// Helper to convert string to int with a default value
func mustAtoi(s string, defaultValue int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return i
}
