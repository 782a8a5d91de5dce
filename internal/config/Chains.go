package config

import (
	"errors"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// ChainConfig describes one supported EVM chain and its vault deployment.
type ChainConfig struct {
	ChainID       uint64
	Name          string
	RPCURLs       []string // First URL is primary, the rest are fallbacks
	VaultContract string   // Alioth vault contract address
	// GasEstimateUSD is the per-transaction gas cost estimate used by the
	// decision engine when no receipt-based measurement is available yet.
	GasEstimateUSD float64
}

// Chains holds the configured chain table, keyed by chain ID. Populated once
// by loadChainConfig and treated as immutable afterwards.
var Chains = map[uint64]ChainConfig{}

// EmergencyStops marks (chain, token) pairs for which deposits and withdrawals
// are rejected outright. Keys are "<chainID>|<tokenAddress>"; a "<chainID>|*"
// entry stops the whole chain. Populated by loadChainConfig.
var EmergencyStops = map[string]bool{}

// chainDefaults carries the known deployments; RPC URLs and vault addresses
// may be overridden per chain through the environment.
var chainDefaults = map[uint64]ChainConfig{
	1: {
		ChainID:        1,
		Name:           "ethereum",
		RPCURLs:        []string{"https://eth.llamarpc.com", "https://rpc.ankr.com/eth"},
		GasEstimateUSD: 12.0,
	},
	8453: {
		ChainID:        8453,
		Name:           "base",
		RPCURLs:        []string{"https://mainnet.base.org"},
		GasEstimateUSD: 0.15,
	},
	42161: {
		ChainID:        42161,
		Name:           "arbitrum",
		RPCURLs:        []string{"https://arb1.arbitrum.io/rpc", "https://rpc.ankr.com/arbitrum"},
		GasEstimateUSD: 0.25,
	},
}

// loadChainConfig resolves the active chain set from CHAIN_IDS and applies
// per-chain overrides of the form CHAIN_<id>_RPC_URLS (comma separated) and
// CHAIN_<id>_VAULT_ADDRESS. Every active chain must end up with a vault
// contract address.
func loadChainConfig() error {
	idsRaw, err := getEnv("CHAIN_IDS")
	if err != nil {
		return err
	}

	for _, idStr := range strings.Split(idsRaw, ",") {
		idStr = strings.TrimSpace(idStr)
		if idStr == "" {
			continue
		}
		id, err := strconv.ParseUint(idStr, 10, 64)
		if err != nil {
			return errors.New("CHAIN_IDS contains an invalid chain id: " + idStr)
		}

		cfg, ok := chainDefaults[id]
		if !ok {
			cfg = ChainConfig{ChainID: id, Name: "chain-" + idStr, GasEstimateUSD: 1.0}
		}

		prefix := "CHAIN_" + idStr + "_"
		if urls, e := getEnv(prefix + "RPC_URLS"); e == nil {
			cfg.RPCURLs = splitAndTrim(urls)
		}
		vaultAddr, err := getEnv(prefix + "VAULT_ADDRESS")
		if err != nil {
			return err
		}
		cfg.VaultContract = vaultAddr

		if len(cfg.RPCURLs) == 0 {
			return errors.New("no RPC URLs configured for chain " + idStr)
		}

		Chains[id] = cfg
	}

	if len(Chains) == 0 {
		return errors.New("CHAIN_IDS resolved to an empty chain set")
	}

	// EMERGENCY_STOPS is a comma-separated list of chainID:tokenAddress pairs;
	// tokenAddress "*" stops the whole chain.
	if stops, e := getEnv("EMERGENCY_STOPS"); e == nil {
		for _, entry := range splitAndTrim(stops) {
			parts := strings.SplitN(entry, ":", 2)
			if len(parts) != 2 {
				log.Warn().Str("entry", entry).Msg("Ignoring malformed EMERGENCY_STOPS entry")
				continue
			}
			EmergencyStops[parts[0]+"|"+strings.ToLower(parts[1])] = true
		}
	}

	log.Info().Int("chains", len(Chains)).Int("emergencyStops", len(EmergencyStops)).Msg("Chain configuration resolved")
	return nil
}

// IsEmergencyStopped reports whether the (chain, token) pair is halted.
func IsEmergencyStopped(chainID uint64, tokenAddress string) bool {
	idStr := strconv.FormatUint(chainID, 10)
	if EmergencyStops[idStr+"|*"] {
		return true
	}
	return EmergencyStops[idStr+"|"+strings.ToLower(tokenAddress)]
}

func splitAndTrim(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
