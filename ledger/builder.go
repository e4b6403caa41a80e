/*
Package ledger turns policy events into running-balance ledger entries and
period statements.

PURPOSE:
  AppendEntry folds one event onto the latest post-state and returns the
  new immutable entry. It never rewrites history: each entry carries its
  own principal, ROI and total balances, so the ledger is reproducible
  without replay.

BALANCE EFFECTS:
  top_up                 principal += amount         (inflow)
  accrual                roi       += amount         (inflow)
  withdrawal roi_only    roi       -= amount         (outflow)
  withdrawal principal   principal -= amount         (outflow)
  withdrawal composite   roi first, then principal   (outflow)
  adjustment             signed deltas on either     (inflow/outflow)

INVARIANTS:
  - principal_balance and roi_balance never go negative
  - total_balance = principal_balance + roi_balance
  - entries are ordered by entry_date, then sequence

SEE ALSO:
  - statement.go: Period statements over a built ledger
  - generic/ledger.go: Persistence of the entries built here
*/
package ledger

import (
	"fmt"

	"github.com/warp/investment-engine/generic"
	"github.com/warp/investment-engine/withdrawal"
)

// =============================================================================
// EVENT - Input to AppendEntry
// =============================================================================

type Event struct {
	ID          generic.EntryID
	Type        generic.EntryType
	Date        generic.TimePoint
	Amount      generic.Amount
	Description string

	// WithdrawalType is required for withdrawal events.
	WithdrawalType generic.WithdrawalType

	// Signed deltas, used only by adjustment events.
	PrincipalDelta generic.Amount
	ROIDelta       generic.Amount

	ReferenceID    string
	IdempotencyKey string
	CreatedAt      generic.TimePoint
}

// FromAccrual converts a scheduled ROI posting into an accrual event.
func FromAccrual(policyID generic.PolicyID, a generic.AccrualEvent) Event {
	return Event{
		Type:           generic.EntryAccrual,
		Date:           a.At,
		Amount:         a.Amount,
		Description:    a.Reason,
		ReferenceID:    a.At.YearMonth(),
		IdempotencyKey: a.IdempotencyKey(policyID),
	}
}

// =============================================================================
// APPEND ENTRY
// =============================================================================

// AppendEntry applies ev on top of prior, which must be the policy's
// ordered entries. With no prior entries the policy's own balances open.
func AppendEntry(policy generic.Policy, prior []generic.LedgerEntry, ev Event) (generic.LedgerEntry, error) {
	if policy.ID == "" {
		return generic.LedgerEntry{}, &generic.ContractError{Field: "policy.id", Problem: "required"}
	}
	if !ev.Type.Valid() {
		return generic.LedgerEntry{}, &generic.ContractError{Field: "entry_type", Problem: "unknown value " + string(ev.Type)}
	}
	if ev.Date.IsZero() {
		return generic.LedgerEntry{}, &generic.ContractError{Field: "entry_date", Problem: "required"}
	}

	opening := generic.Balances{Principal: policy.CurrentBalance, ROI: policy.ROIBalance}
	seq := 1
	if last, ok := generic.Latest(prior); ok {
		if last.PolicyID != policy.ID {
			return generic.LedgerEntry{}, &generic.ContractError{Field: "prior", Problem: "belongs to policy " + string(last.PolicyID)}
		}
		if ev.Date.Before(last.EntryDate) {
			return generic.LedgerEntry{}, fmt.Errorf("%w: %s is before %s", generic.ErrOutOfOrderEntry, ev.Date, last.EntryDate)
		}
		opening = last.After()
		seq = last.Sequence + 1
	}

	dp, dr, err := deltas(policy, opening, ev)
	if err != nil {
		return generic.LedgerEntry{}, err
	}

	principal := opening.Principal.Add(dp)
	roi := opening.ROI.Add(dr)
	if principal.IsNegative() || roi.IsNegative() {
		return generic.LedgerEntry{}, &generic.EvaluationError{
			Kind:      generic.KindInsufficientFunds,
			PolicyID:  policy.ID,
			Available: opening.Total(),
			Requested: ev.Amount,
			Detail:    fmt.Sprintf("%s would leave principal %s, roi %s", ev.Type, principal, roi),
		}
	}

	inflow, outflow := flows(dp, dr)
	entry := generic.LedgerEntry{
		ID:               ev.ID,
		PolicyID:         policy.ID,
		Sequence:         seq,
		EntryDate:        ev.Date,
		Description:      describe(ev),
		Type:             ev.Type,
		Inflow:           inflow.Round(),
		Outflow:          outflow.Round(),
		PrincipalChange:  dp.Round(),
		ROIChange:        dr.Round(),
		PrincipalBalance: principal.Round(),
		ROIBalance:       roi.Round(),
		TotalBalance:     principal.Add(roi).Round(),
		ReferenceID:      ev.ReferenceID,
		IdempotencyKey:   ev.IdempotencyKey,
		CreatedAt:        ev.CreatedAt,
	}
	if ev.Type == generic.EntryWithdrawal {
		entry.WithdrawalType = ev.WithdrawalType
	}
	return entry, nil
}

// Build folds events in order, starting from prior. It is AppendEntry in a loop.
func Build(policy generic.Policy, prior []generic.LedgerEntry, events []Event) ([]generic.LedgerEntry, error) {
	all := append([]generic.LedgerEntry(nil), prior...)
	built := make([]generic.LedgerEntry, 0, len(events))
	for i, ev := range events {
		e, err := AppendEntry(policy, all, ev)
		if err != nil {
			return built, fmt.Errorf("event %d: %w", i, err)
		}
		all = append(all, e)
		built = append(built, e)
	}
	return built, nil
}

// deltas returns the signed principal and ROI changes for ev.
func deltas(policy generic.Policy, opening generic.Balances, ev Event) (principal, roi generic.Amount, err error) {
	zero := generic.ZeroNaira()
	if ev.Type != generic.EntryAdjustment && !ev.Amount.IsPositive() {
		return zero, zero, &generic.EvaluationError{Kind: generic.KindInvalidAmount, PolicyID: policy.ID, Requested: ev.Amount}
	}

	switch ev.Type {
	case generic.EntryTopUp:
		return ev.Amount, zero, nil
	case generic.EntryAccrual:
		return zero, ev.Amount, nil
	case generic.EntryWithdrawal:
		if !ev.WithdrawalType.Valid() {
			return zero, zero, &generic.ContractError{Field: "withdrawal_type", Problem: "unknown value " + string(ev.WithdrawalType)}
		}
		r, p := withdrawal.Split(opening.ROI, ev.WithdrawalType, ev.Amount)
		return p.Neg(), r.Neg(), nil
	default:
		if ev.PrincipalDelta.IsZero() && ev.ROIDelta.IsZero() {
			return zero, zero, &generic.EvaluationError{Kind: generic.KindInvalidAmount, PolicyID: policy.ID, Detail: "adjustment has no effect"}
		}
		return zero.Add(ev.PrincipalDelta), zero.Add(ev.ROIDelta), nil
	}
}

func flows(deltas ...generic.Amount) (inflow, outflow generic.Amount) {
	inflow, outflow = generic.ZeroNaira(), generic.ZeroNaira()
	for _, d := range deltas {
		if d.IsPositive() {
			inflow = inflow.Add(d)
		} else {
			outflow = outflow.Sub(d)
		}
	}
	return inflow, outflow
}

func describe(ev Event) string {
	if ev.Description != "" {
		return ev.Description
	}
	switch ev.Type {
	case generic.EntryTopUp:
		return "Top-up"
	case generic.EntryAccrual:
		return "ROI accrual"
	case generic.EntryWithdrawal:
		return fmt.Sprintf("Withdrawal (%s)", ev.WithdrawalType)
	default:
		return "Adjustment"
	}
}
