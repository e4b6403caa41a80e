package withdrawal

import (
	"github.com/warp/investment-engine/generic"
)

// =============================================================================
// REQUEST LIFECYCLE
// =============================================================================
//
//	Pending ──approve──▶ Approved ──process──▶ Processed
//	   │
//	   └────reject─────▶ Rejected
//
// Rejected and Processed are terminal.

var transitions = map[generic.RequestStatus][]generic.RequestStatus{
	generic.RequestPending:  {generic.RequestApproved, generic.RequestRejected},
	generic.RequestApproved: {generic.RequestProcessed},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to generic.RequestStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// NewRequest returns a Pending request after checking its shape.
func NewRequest(id generic.RequestID, policyID generic.PolicyID, t generic.WithdrawalType, amount generic.Amount, on generic.TimePoint, bank generic.BankDetails) (generic.WithdrawalRequest, error) {
	if id == "" {
		return generic.WithdrawalRequest{}, &generic.ContractError{Field: "id", Problem: "required"}
	}
	if !t.Valid() {
		return generic.WithdrawalRequest{}, &generic.ContractError{Field: "withdrawal_type", Problem: "unknown value " + string(t)}
	}
	if on.IsZero() {
		return generic.WithdrawalRequest{}, &generic.ContractError{Field: "request_date", Problem: "required"}
	}
	return generic.WithdrawalRequest{
		ID:              id,
		PolicyID:        policyID,
		Type:            t,
		AmountRequested: amount,
		RequestDate:     on,
		Status:          generic.RequestPending,
		Bank:            bank,
	}, nil
}

// Approve moves a Pending request to Approved.
func Approve(req generic.WithdrawalRequest, actor string, at generic.TimePoint) (generic.WithdrawalRequest, error) {
	if err := check(req, generic.RequestApproved); err != nil {
		return req, err
	}
	req.Status = generic.RequestApproved
	req.DecidedBy = actor
	req.DecidedAt = &at
	return req, nil
}

// Reject moves a Pending request to Rejected.
func Reject(req generic.WithdrawalRequest, actor, reason string, at generic.TimePoint) (generic.WithdrawalRequest, error) {
	if err := check(req, generic.RequestRejected); err != nil {
		return req, err
	}
	req.Status = generic.RequestRejected
	req.DecidedBy = actor
	req.DecidedAt = &at
	req.RejectionReason = reason
	return req, nil
}

// MarkProcessed moves an Approved request to Processed. Irreversible.
func MarkProcessed(req generic.WithdrawalRequest, at generic.TimePoint) (generic.WithdrawalRequest, error) {
	if err := check(req, generic.RequestProcessed); err != nil {
		return req, err
	}
	req.Status = generic.RequestProcessed
	req.ProcessedAt = &at
	return req, nil
}

func check(req generic.WithdrawalRequest, to generic.RequestStatus) error {
	if !CanTransition(req.Status, to) {
		return &generic.TransitionError{RequestID: req.ID, From: req.Status, To: to}
	}
	return nil
}
