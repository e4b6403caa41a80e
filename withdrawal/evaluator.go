/*
Package withdrawal decides whether a withdrawal may proceed and moves
requests through their lifecycle.

PURPOSE:
  Evaluate answers "is this withdrawal permitted right now, and how much
  is available?" for the three withdrawal types. Business failures are
  reported in the Evaluation result; the error return is reserved for
  malformed input.

WITHDRAWAL TYPES:
  roi_only:       available = roi_balance
  principal_only: available = current_balance, once the lock-in has elapsed
  composite:      available = roi_balance + current_balance (if unlocked);
                  ROI is drawn first, the remainder comes from principal

CHECK ORDER:
  1. amount <= 0            -> InvalidAmount
  2. policy not Active      -> PolicyNotActive
  3. principal still locked -> LockedPrincipal (principal_only)
  4. amount > available     -> InsufficientFunds

LOCK-IN:
  Counted in calendar months: start 2024-01-15 with a 4-month lock-in
  unlocks on 2024-05-15. Day-of-month clamps at month end.

ADVISORY:
  The result holds only at evaluation time. Callers must re-evaluate when
  processing an approved request to catch balance drift.

SEE ALSO:
  - lifecycle.go: Pending -> Approved/Rejected -> Processed
  - ledger/builder.go: Applies the approved split to balances
*/
package withdrawal

import (
	"github.com/warp/investment-engine/generic"
)

// =============================================================================
// EVALUATION
// =============================================================================

type Evaluation struct {
	Allowed         bool               `json:"allowed"`
	AvailableAmount generic.Amount     `json:"available_amount"`
	Reason          *generic.ErrorKind `json:"reason,omitempty"`

	// How an allowed request splits across the balances.
	ROIPortion       generic.Amount `json:"roi_portion"`
	PrincipalPortion generic.Amount `json:"principal_portion"`

	LockInEndsAt generic.TimePoint `json:"lock_in_ends_at"`
}

// Err converts a denied evaluation into an *generic.EvaluationError.
func (e Evaluation) Err(policyID generic.PolicyID, requested generic.Amount) error {
	if e.Allowed || e.Reason == nil {
		return nil
	}
	return &generic.EvaluationError{
		Kind:      *e.Reason,
		PolicyID:  policyID,
		Available: e.AvailableAmount,
		Requested: requested,
	}
}

// Evaluator is stateless; the zero value is ready to use.
type Evaluator struct{}

func NewEvaluator() *Evaluator { return &Evaluator{} }

// Evaluate checks request against the policy snapshot as of today.
func (ev *Evaluator) Evaluate(policy generic.Policy, req generic.WithdrawalRequest, today generic.TimePoint) (Evaluation, error) {
	if err := policy.Validate(); err != nil {
		return Evaluation{}, err
	}
	if !req.Type.Valid() {
		return Evaluation{}, &generic.ContractError{Field: "withdrawal_type", Problem: "unknown value " + string(req.Type)}
	}
	if today.IsZero() {
		return Evaluation{}, &generic.ContractError{Field: "today", Problem: "required"}
	}
	if req.PolicyID != "" && req.PolicyID != policy.ID {
		return Evaluation{}, &generic.ContractError{Field: "policy_id", Problem: "does not match policy " + string(policy.ID)}
	}

	amount := req.AmountRequested
	unlocked := policy.PrincipalUnlocked(today)
	result := Evaluation{
		AvailableAmount:  available(policy, req.Type, unlocked),
		ROIPortion:       generic.ZeroNaira(),
		PrincipalPortion: generic.ZeroNaira(),
		LockInEndsAt:     policy.LockInEnds(),
	}

	switch {
	case !amount.IsPositive():
		return result.deny(generic.KindInvalidAmount), nil
	case policy.Status != generic.PolicyActive:
		return result.deny(generic.KindPolicyNotActive), nil
	case req.Type == generic.WithdrawPrincipalOnly && !unlocked:
		return result.deny(generic.KindLockedPrincipal), nil
	case amount.GreaterThan(result.AvailableAmount):
		return result.deny(generic.KindInsufficientFunds), nil
	}

	result.ROIPortion, result.PrincipalPortion = Split(policy.ROIBalance, req.Type, amount)
	result.Allowed = true
	return result, nil
}

func (e Evaluation) deny(kind generic.ErrorKind) Evaluation {
	e.Allowed = false
	e.Reason = generic.KindPtr(kind)
	return e
}

// available is the ceiling for the withdrawal type. Locked principal
// contributes nothing to a composite ceiling.
func available(policy generic.Policy, t generic.WithdrawalType, unlocked bool) generic.Amount {
	switch t {
	case generic.WithdrawROIOnly:
		return policy.ROIBalance
	case generic.WithdrawPrincipalOnly:
		return policy.CurrentBalance
	default:
		if unlocked {
			return policy.ROIBalance.Add(policy.CurrentBalance)
		}
		return policy.ROIBalance
	}
}

// Split divides amount into its ROI and principal portions.
// Composite draws ROI first, the remainder from principal.
func Split(roiBalance generic.Amount, t generic.WithdrawalType, amount generic.Amount) (roi, principal generic.Amount) {
	switch t {
	case generic.WithdrawROIOnly:
		return amount, generic.ZeroNaira()
	case generic.WithdrawPrincipalOnly:
		return generic.ZeroNaira(), amount
	default:
		roi = amount.Min(roiBalance.Max(generic.ZeroNaira()))
		return roi, amount.Sub(roi)
	}
}
