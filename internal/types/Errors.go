/*

This file contains the error taxonomy shared across packages. User-visible
failures always carry a human-readable reason string distinct from the
internal error code.

*/

package types

import (
	"errors"
	"fmt"
)

// ErrorCode is the internal classification of a failure.
type ErrorCode string

const (
	CodeValidation          ErrorCode = "VALIDATION"
	CodeLedgerExecution     ErrorCode = "LEDGER_EXECUTION"
	CodeConfirmationTimeout ErrorCode = "CONFIRMATION_TIMEOUT"
	CodeOracleUnavailable   ErrorCode = "ORACLE_UNAVAILABLE"
)

// ErrConfirmationTimeout signals that the bounded confirmation wait elapsed.
// It is not a terminal failure: the transaction stays pending and is resolved
// later by the pending-transaction resolver.
var ErrConfirmationTimeout = errors.New("confirmation wait timed out; transaction remains pending")

// VaultError is the typed error returned across component boundaries.
type VaultError struct {
	Code   ErrorCode
	Reason string // Human-readable, safe to surface to callers
	Err    error  // Underlying cause, preserved for logs
}

func (e *VaultError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

func (e *VaultError) Unwrap() error { return e.Err }

// NewValidationError builds a VaultError rejected before any ledger call.
func NewValidationError(format string, args ...any) *VaultError {
	return &VaultError{Code: CodeValidation, Reason: fmt.Sprintf(format, args...)}
}

// NewLedgerError wraps a failure that occurred at or after ledger submission.
func NewLedgerError(err error, format string, args ...any) *VaultError {
	return &VaultError{Code: CodeLedgerExecution, Reason: fmt.Sprintf(format, args...), Err: err}
}

// NewOracleError wraps a price-feed failure. Callers treat this as a degraded
// signal and fall back to static pricing rather than aborting.
func NewOracleError(err error, format string, args ...any) *VaultError {
	return &VaultError{Code: CodeOracleUnavailable, Reason: fmt.Sprintf(format, args...), Err: err}
}

// IsValidation reports whether err classifies as a validation rejection.
func IsValidation(err error) bool {
	var ve *VaultError
	return errors.As(err, &ve) && ve.Code == CodeValidation
}

// IsLedgerExecution reports whether err classifies as a ledger-side failure.
func IsLedgerExecution(err error) bool {
	var ve *VaultError
	return errors.As(err, &ve) && ve.Code == CodeLedgerExecution
}
