package ledger

import (
	"errors"
	"fmt"
	"sort"

	"github.com/warp/investment-engine/generic"
)

// =============================================================================
// STATEMENT - Entries and totals for an inclusive period
// =============================================================================

type Statement struct {
	PolicyID     generic.PolicyID `json:"policy_id"`
	PolicyNumber string           `json:"policy_number,omitempty"`
	InvestorName string           `json:"investor_name,omitempty"`

	Start generic.TimePoint `json:"period_start"`
	End   generic.TimePoint `json:"period_end"`

	Entries []generic.LedgerEntry `json:"entries"`
	Opening generic.Balances      `json:"opening_balance"`
	Closing generic.Balances      `json:"closing_balance"`
	Summary Summary               `json:"summary"`
}

type Summary struct {
	TotalInflow    generic.Amount `json:"total_inflow"`
	TotalOutflow   generic.Amount `json:"total_outflow"`
	NetFlow        generic.Amount `json:"net_flow"`
	ROIAccrued     generic.Amount `json:"roi_accrued"`
	TotalWithdrawn generic.Amount `json:"total_withdrawn"`
}

// BuildStatement selects entries dated in [start, end].
//
// Opening is the post-state of the last entry before start. When no entry
// precedes the period it is the pre-state of the first entry, and with no
// entries at all the policy's own balances. Closing is the post-state of the
// last entry on or before end, or Opening when the period is empty.
func BuildStatement(policy generic.Policy, entries []generic.LedgerEntry, start, end generic.TimePoint) (Statement, error) {
	if _, err := generic.NewPeriod(start, end); err != nil {
		return Statement{}, err
	}

	ordered := append([]generic.LedgerEntry(nil), entries...)
	sort.SliceStable(ordered, func(i, j int) bool { return generic.EntryLess(ordered[i], ordered[j]) })

	opening := generic.Balances{Principal: policy.CurrentBalance, ROI: policy.ROIBalance}
	if len(ordered) > 0 {
		opening = ordered[0].Before()
	}
	var inPeriod []generic.LedgerEntry
	for _, e := range ordered {
		if e.PolicyID != policy.ID {
			return Statement{}, &generic.ContractError{Field: "entries", Problem: "contains policy " + string(e.PolicyID)}
		}
		switch {
		case e.EntryDate.Before(start):
			opening = e.After()
		case e.EntryDate.After(end):
			// later entries do not affect this statement
		default:
			inPeriod = append(inPeriod, e)
		}
	}
	return StatementFrom(policy, opening, inPeriod, start, end)
}

// StatementFrom builds a statement from a known opening balance and the
// ordered entries dated inside [start, end]. Stores that can load a date
// range and a point-in-time balance use it to skip the full ledger.
func StatementFrom(policy generic.Policy, opening generic.Balances, inPeriod []generic.LedgerEntry, start, end generic.TimePoint) (Statement, error) {
	if _, err := generic.NewPeriod(start, end); err != nil {
		return Statement{}, err
	}

	st := Statement{
		PolicyID:     policy.ID,
		PolicyNumber: policy.PolicyNumber,
		InvestorName: policy.InvestorName,
		Start:        start,
		End:          end,
		Entries:      []generic.LedgerEntry{},
		Opening:      opening,
	}
	sum := Summary{
		TotalInflow:    generic.ZeroNaira(),
		TotalOutflow:   generic.ZeroNaira(),
		ROIAccrued:     generic.ZeroNaira(),
		TotalWithdrawn: generic.ZeroNaira(),
	}
	for _, e := range inPeriod {
		if e.PolicyID != policy.ID {
			return Statement{}, &generic.ContractError{Field: "entries", Problem: "contains policy " + string(e.PolicyID)}
		}
		if e.EntryDate.Before(start) || e.EntryDate.After(end) {
			return Statement{}, &generic.ContractError{Field: "entries", Problem: "entry " + string(e.ID) + " dated outside the period"}
		}
		st.Entries = append(st.Entries, e)
		sum.TotalInflow = sum.TotalInflow.Add(e.Inflow)
		sum.TotalOutflow = sum.TotalOutflow.Add(e.Outflow)
		switch e.Type {
		case generic.EntryAccrual:
			sum.ROIAccrued = sum.ROIAccrued.Add(e.Inflow)
		case generic.EntryWithdrawal:
			sum.TotalWithdrawn = sum.TotalWithdrawn.Add(e.Outflow)
		}
	}

	st.Closing = st.Opening
	if last, ok := generic.Latest(st.Entries); ok {
		st.Closing = last.After()
	}
	sum.NetFlow = sum.TotalInflow.Sub(sum.TotalOutflow)
	st.Summary = sum
	return st, nil
}

// =============================================================================
// VERIFY - Chain invariants over a stored ledger
// =============================================================================

var ErrBrokenChain = errors.New("ledger chain invariant violated")

type ChainError struct {
	Index   int
	EntryID generic.EntryID
	Problem string
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("entry %d (%s): %s", e.Index, e.EntryID, e.Problem)
}

func (e *ChainError) Unwrap() error { return ErrBrokenChain }

// Verify checks an ordered ledger: non-negative balances, totals that add
// up, non-decreasing dates, increasing sequences, and each entry opening
// where the previous one closed.
func Verify(entries []generic.LedgerEntry) error {
	for i, e := range entries {
		fail := func(format string, args ...any) error {
			return &ChainError{Index: i, EntryID: e.ID, Problem: fmt.Sprintf(format, args...)}
		}
		if e.PrincipalBalance.IsNegative() || e.ROIBalance.IsNegative() {
			return fail("negative balance principal=%s roi=%s", e.PrincipalBalance, e.ROIBalance)
		}
		if !e.TotalBalance.Equal(e.PrincipalBalance.Add(e.ROIBalance)) {
			return fail("total %s != principal %s + roi %s", e.TotalBalance, e.PrincipalBalance, e.ROIBalance)
		}
		if i == 0 {
			continue
		}
		prev := entries[i-1]
		if e.EntryDate.Before(prev.EntryDate) {
			return fail("dated %s before previous %s", e.EntryDate, prev.EntryDate)
		}
		if e.Sequence <= prev.Sequence {
			return fail("sequence %d not after %d", e.Sequence, prev.Sequence)
		}
		before, after := e.Before(), prev.After()
		if !before.Principal.Equal(after.Principal) || !before.ROI.Equal(after.ROI) {
			return fail("opens at %s/%s but previous closed at %s/%s",
				before.Principal, before.ROI, after.Principal, after.ROI)
		}
	}
	return nil
}
