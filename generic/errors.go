/*
errors.go - Centralized error types for the investment engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Engine packages return these values; callers branch with errors.Is.

ERROR CATEGORIES:
  1. Evaluation outcomes - Business rule failures reported as ErrorKind
  2. Contract violations - Malformed input records (ContractError)
  3. Lifecycle errors - Illegal request status transitions
  4. Store errors - Persistence and concurrency failures

USAGE:
  Engine results carry a *ErrorKind, and the structured error unwraps to
  the matching sentinel:

    if errors.Is(err, generic.ErrLockedPrincipal) {
        // show lock-in end date
    }

SEE ALSO:
  - withdrawal/evaluator.go: Produces evaluation outcomes
  - ledger/builder.go: Produces InsufficientFunds and ordering errors
  - store.go: Produces persistence errors
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// ERROR KIND - Machine-readable evaluation outcome
// =============================================================================

type ErrorKind string

const (
	KindInsufficientFunds   ErrorKind = "insufficient_funds"
	KindLockedPrincipal     ErrorKind = "locked_principal"
	KindPolicyNotActive     ErrorKind = "policy_not_active"
	KindInvalidAmount       ErrorKind = "invalid_amount"
	KindInvalidBracketInput ErrorKind = "invalid_bracket_input"
)

// Err returns the sentinel matching the kind.
func (k ErrorKind) Err() error {
	switch k {
	case KindInsufficientFunds:
		return ErrInsufficientFunds
	case KindLockedPrincipal:
		return ErrLockedPrincipal
	case KindPolicyNotActive:
		return ErrPolicyNotActive
	case KindInvalidAmount:
		return ErrInvalidAmount
	case KindInvalidBracketInput:
		return ErrInvalidBracketInput
	}
	return fmt.Errorf("unknown error kind %q", string(k))
}

// KindPtr is a helper for populating optional Reason fields.
func KindPtr(k ErrorKind) *ErrorKind { return &k }

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrLockedPrincipal     = errors.New("principal is still within its lock-in period")
	ErrPolicyNotActive     = errors.New("policy is not active")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInvalidBracketInput = errors.New("taxable income must not be negative")

	// ErrContractViolation is returned when an input record is malformed.
	ErrContractViolation = errors.New("contract violation")

	// ErrInvalidTransition is returned for an illegal request status change.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrOutOfOrderEntry is returned when an event predates the latest entry.
	ErrOutOfOrderEntry = errors.New("ledger entry predates latest entry")

	// ErrDuplicateIdempotencyKey is returned when an entry with the same
	// idempotency key already exists. This is expected behavior for retries.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrConcurrentModification is returned when optimistic locking detects a conflict.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	ErrPolicyNotFound  = errors.New("policy not found")
	ErrRequestNotFound = errors.New("withdrawal request not found")
	ErrPolicyExists    = errors.New("policy already exists")
	ErrRequestExists   = errors.New("withdrawal request already exists")

	// ErrInvalidPeriod is returned when a period is malformed (end before start).
	ErrInvalidPeriod = errors.New("invalid period: end before start")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// EvaluationError reports a business rule failure with the figures involved.
type EvaluationError struct {
	Kind      ErrorKind
	PolicyID  PolicyID
	Available Amount
	Requested Amount
	Detail    string
}

func (e *EvaluationError) Error() string {
	msg := string(e.Kind)
	if e.PolicyID != "" {
		msg += ": policy " + string(e.PolicyID)
	}
	if !e.Requested.IsZero() || !e.Available.IsZero() {
		msg += fmt.Sprintf(" (available %s, requested %s)", e.Available, e.Requested)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *EvaluationError) Unwrap() error {
	return e.Kind.Err()
}

// ContractError names the offending field of a malformed record.
type ContractError struct {
	Field   string
	Problem string
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("contract violation: %s %s", e.Field, e.Problem)
}

func (e *ContractError) Unwrap() error {
	return ErrContractViolation
}

// TransitionError describes a rejected request status change.
type TransitionError struct {
	RequestID RequestID
	From      RequestStatus
	To        RequestStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("request %s: cannot move from %s to %s", e.RequestID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrLockedPrincipal) ||
		errors.Is(err, ErrPolicyNotActive) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidBracketInput) ||
		errors.Is(err, ErrContractViolation) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrOutOfOrderEntry) ||
		errors.Is(err, ErrDuplicateIdempotencyKey) ||
		errors.Is(err, ErrPolicyExists) ||
		errors.Is(err, ErrRequestExists) ||
		errors.Is(err, ErrInvalidPeriod)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPolicyNotFound) ||
		errors.Is(err, ErrRequestNotFound)
}
