package chain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var (
	// ErrValidation marks bad input rejected before any network call.
	ErrValidation = errors.New("validation error")
	// ErrChainRead covers unreachable nodes, reverted eth_calls and undecodable results.
	ErrChainRead = errors.New("chain read failed")
	// ErrSubmission means the transaction never reached the mempool.
	ErrSubmission = errors.New("transaction submission failed")
	// ErrChainConfirmation is matched by every ConfirmationError.
	ErrChainConfirmation   = errors.New("transaction confirmation failed")
	ErrConfirmationTimeout = errors.New("transaction confirmation timed out")
	ErrTransactionReverted = errors.New("transaction reverted")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrEventNotFound       = errors.New("event not found")
)

// ValidationError describes one rejected input field.
type ValidationError struct {
	Field  string
	Reason string
}

func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

type ConfirmationReason string

const (
	// ReasonTimeout means the outcome is unknown: the transaction may still be mined.
	ReasonTimeout ConfirmationReason = "timeout"
	// ReasonReverted means the transaction was mined and definitively failed.
	ReasonReverted ConfirmationReason = "reverted"
)

// ConfirmationError is returned by WaitForConfirmation.
type ConfirmationError struct {
	TxHash  common.Hash
	Reason  ConfirmationReason
	Receipt *types.Receipt
	Err     error
}

func (e *ConfirmationError) Error() string {
	msg := fmt.Sprintf("transaction %s confirmation failed: %s", e.TxHash.Hex(), e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfirmationError) Unwrap() error {
	return e.Err
}

func (e *ConfirmationError) Is(target error) bool {
	switch target {
	case ErrChainConfirmation:
		return true
	case ErrConfirmationTimeout:
		return e.Reason == ReasonTimeout
	case ErrTransactionReverted:
		return e.Reason == ReasonReverted
	}
	return false
}

// OutcomeUnknown reports whether the transaction may still land.
func (e *ConfirmationError) OutcomeUnknown() bool {
	return e.Reason == ReasonTimeout
}

// RevertError carries the decoded revert reason of a failed eth_call or gas estimation.
type RevertError struct {
	Reason string
	Err    error
}

func (e *RevertError) Error() string {
	if e.Reason == "" {
		return "execution reverted"
	}
	return "execution reverted: " + e.Reason
}

func (e *RevertError) Unwrap() error {
	return e.Err
}

func (e *RevertError) Is(target error) bool {
	return target == ErrTransactionReverted
}

// IsTimeout reports whether err leaves a transaction in an unknown state.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrConfirmationTimeout)
}

// IsReverted reports whether err is a definitive on-chain (or simulated) revert.
func IsReverted(err error) bool {
	return errors.Is(err, ErrTransactionReverted)
}

// RevertReason returns the decoded revert reason carried by err, if any.
func RevertReason(err error) string {
	var revert *RevertError
	if errors.As(err, &revert) {
		return revert.Reason
	}
	return ""
}

// IsInsufficientBalance reports whether err stems from the sender lacking gas funds or token balance.
func IsInsufficientBalance(err error) bool {
	if errors.Is(err, ErrInsufficientFunds) {
		return true
	}
	reason := strings.ToLower(RevertReason(err))
	return strings.Contains(reason, "exceeds balance") || strings.Contains(reason, "insufficient balance")
}

// IsDeadlineExpired reports whether err is a revert caused by an elapsed swap deadline.
func IsDeadlineExpired(err error) bool {
	reason := strings.ToLower(RevertReason(err))
	return strings.Contains(reason, "too old") || strings.Contains(reason, "expired") || strings.Contains(reason, "deadline")
}
