/*

This file contains the transaction record types. A Transaction is created in
the pending state before anything is submitted to the ledger, and transitions
to exactly one terminal state. The txHash is the idempotency key against the
ledger and is unique once assigned.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// TransactionType defines the kind of vault operation a transaction records.
type TransactionType string

const (
	TxDeposit           TransactionType = "deposit"
	TxWithdraw          TransactionType = "withdraw"
	TxRebalance         TransactionType = "rebalance"
	TxHarvest           TransactionType = "harvest"
	TxEmergencyWithdraw TransactionType = "emergency_withdraw"
)

// TransactionStatus defines the lifecycle state of a transaction.
// Confirmed, failed and reverted are terminal; a transaction is never reopened.
type TransactionStatus string

const (
	TxPending   TransactionStatus = "pending"
	TxConfirmed TransactionStatus = "confirmed"
	TxFailed    TransactionStatus = "failed"
	TxReverted  TransactionStatus = "reverted"
)

// IsTerminal reports whether the status is one of the terminal states.
func (s TransactionStatus) IsTerminal() bool {
	return s == TxConfirmed || s == TxFailed || s == TxReverted
}

// Initiator identifies who requested the operation.
type Initiator string

const (
	InitiatorUser  Initiator = "user"
	InitiatorAgent Initiator = "agent"
)

// AgentData carries the decision context for agent-initiated transactions.
type AgentData struct {
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence"` // 0-100
}

// Transaction is the auditable record of a single vault operation.
type Transaction struct {
	ID           string            `json:"id"` // UUID assigned at creation
	UserAddress  string            `json:"user_address"`
	ChainID      uint64            `json:"chain_id"`
	Type         TransactionType   `json:"type"`
	TokenAddress string            `json:"token_address"`
	TokenSymbol  string            `json:"token_symbol"`
	Amount       sdkmath.Int       `json:"amount"` // Token smallest units (shares for withdrawals)
	AmountUSD    float64           `json:"amount_usd"`
	Status       TransactionStatus `json:"status"`
	TxHash       string            `json:"tx_hash,omitempty"`
	SharesBefore sdkmath.Int       `json:"shares_before"`
	SharesAfter  sdkmath.Int       `json:"shares_after"`
	SharesDelta  sdkmath.Int       `json:"shares_delta"`
	GasUsed      uint64            `json:"gas_used,omitempty"`
	GasFeeUSD    float64           `json:"gas_fee_usd,omitempty"`
	InitiatedBy  Initiator         `json:"initiated_by"`
	Agent        *AgentData        `json:"agent_data,omitempty"`
	// PricingDegraded marks records whose USD valuation came from the static
	// fallback table or a stale oracle round rather than a fresh oracle read.
	PricingDegraded bool      `json:"pricing_degraded,omitempty"`
	FailureReason   string    `json:"failure_reason,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
