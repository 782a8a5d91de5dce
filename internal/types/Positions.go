/*

This file contains the types for user positions: the local projection of the
per-user, per-token, per-chain state held by the on-chain vault contract.

*/

package types

import (
	"strconv"
	"time"

	sdkmath "cosmossdk.io/math"
)

// Position is the locally cached mirror of a user's holding in the vault for a
// single (chain, token) pair. Shares are the authoritative unit of ownership
// and are only adjusted by confirmed Transactions or by reconciliation against
// the ledger. EstimatedValue is advisory and re-derivable from the ledger's
// total-value/total-shares ratio at any time.
type Position struct {
	UserAddress       string      `json:"user_address"`
	ChainID           uint64      `json:"chain_id"`
	TokenAddress      string      `json:"token_address"`
	TokenSymbol       string      `json:"token_symbol"`
	Shares            sdkmath.Int `json:"shares"`              // Receipt shares held in the vault
	EstimatedValue    float64     `json:"estimated_value"`     // Advisory USD value
	DepositedAmount   sdkmath.Int `json:"deposited_amount"`    // Cost basis in token smallest units
	DepositedValueUSD float64     `json:"deposited_value_usd"` // Cost basis in USD at deposit time
	YieldEarned       float64     `json:"yield_earned"`        // EstimatedValue - DepositedValueUSD, floored at 0
	CurrentAPY        float64     `json:"current_apy"`         // Ledger-reported APY for the position
	LastUpdated       time.Time   `json:"last_updated"`
}

// PositionKey identifies one position by (user, token, chain). This is an
// identity for logging and lookups; lifecycle serialization locks at the
// coarser (user, chain) level so reconciliation and operations on the same
// vault mutually exclude.
func (p Position) PositionKey() string {
	return PositionRef(p.UserAddress, p.ChainID, p.TokenAddress)
}

// PositionRef builds the position identity key.
func PositionRef(user string, chainID uint64, token string) string {
	return user + "|" + token + "|" + strconv.FormatUint(chainID, 10)
}
