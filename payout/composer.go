/*
Package payout combines a withdrawal with its tax deductions.

PURPOSE:
  Compose produces the disbursement figures for an approved withdrawal and
  the ledger entry that records it. Tax is a reporting side-channel: the
  ledger outflow is always the gross amount, and the WHT/PIT figures travel
  with the disbursement instruction.

TAX BASE:
  Only the ROI portion of a withdrawal is income. Principal returned to the
  investor is not taxed:

    roi_only        WHT on the full amount
    principal_only  no WHT, no PIT
    composite       WHT on the portion drawn from ROI

  When the investor's other annual income is supplied, PIT is computed over
  other income + ROI net of WHT.

SEE ALSO:
  - tax/investment.go: WHT then PIT composite
  - ledger/builder.go: Builds the withdrawal entry
*/
package payout

import (
	"github.com/warp/investment-engine/generic"
	"github.com/warp/investment-engine/ledger"
	"github.com/warp/investment-engine/tax"
	"github.com/warp/investment-engine/withdrawal"
)

// =============================================================================
// INPUT / OUTPUT
// =============================================================================

type Input struct {
	Policy generic.Policy
	Prior  []generic.LedgerEntry

	Type   generic.WithdrawalType
	Amount generic.Amount
	Date   generic.TimePoint

	// AnnualIncome is the investor's declared other income. Nil skips PIT.
	AnnualIncome *generic.Amount

	EntryID        generic.EntryID
	RequestID      generic.RequestID
	IdempotencyKey string
}

// ForRequest fills the withdrawal fields of an Input from a request.
func ForRequest(policy generic.Policy, prior []generic.LedgerEntry, req generic.WithdrawalRequest, on generic.TimePoint) Input {
	return Input{
		Policy:         policy,
		Prior:          prior,
		Type:           req.Type,
		Amount:         req.AmountRequested,
		Date:           on,
		RequestID:      req.ID,
		IdempotencyKey: "payout:" + string(req.ID),
	}
}

type Payout struct {
	PolicyID       generic.PolicyID       `json:"policy_id"`
	RequestID      generic.RequestID      `json:"request_id,omitempty"`
	WithdrawalType generic.WithdrawalType `json:"withdrawal_type"`

	GrossAmount      generic.Amount `json:"gross_amount"`
	ROIPortion       generic.Amount `json:"roi_portion"`
	PrincipalPortion generic.Amount `json:"principal_portion"`

	WHT              tax.Calculation  `json:"wht"`
	WHTAmount        generic.Amount   `json:"wht_amount"`
	NetAfterWHT      generic.Amount   `json:"net_after_wht"`
	PIT              *tax.Calculation `json:"pit,omitempty"`
	PITAmount        generic.Amount   `json:"pit_amount"`
	NetAfterAllTaxes generic.Amount   `json:"net_after_all_taxes"`

	LedgerEntries []generic.LedgerEntry `json:"ledger_entries"`
}

// TaxRecords returns the persisted form of each deduction applied.
func (p Payout) TaxRecords(investor generic.InvestorID, on generic.TimePoint) []generic.TaxRecord {
	var recs []generic.TaxRecord
	if p.ROIPortion.IsPositive() {
		recs = append(recs, generic.TaxRecord{
			PolicyID:    p.PolicyID,
			InvestorID:  investor,
			RequestID:   p.RequestID,
			PaymentDate: on,
			TaxType:     string(tax.WHT),
			Category:    string(p.WHT.Category),
			Rate:        p.WHT.Rate.String(),
			Gross:       p.WHT.Gross,
			Tax:         p.WHT.Tax,
			Net:         p.WHT.Net,
		})
	}
	if p.PIT != nil {
		recs = append(recs, generic.TaxRecord{
			PolicyID:    p.PolicyID,
			InvestorID:  investor,
			RequestID:   p.RequestID,
			PaymentDate: on,
			TaxType:     string(tax.PIT),
			Rate:        p.PIT.EffectiveRate.String(),
			Gross:       p.PIT.Gross,
			Tax:         p.PIT.Tax,
			Net:         p.PIT.Net,
		})
	}
	return recs
}

// =============================================================================
// COMPOSER
// =============================================================================

type Composer struct {
	Taxes *tax.Calculator
}

func NewComposer(taxes *tax.Calculator) *Composer {
	if taxes == nil {
		taxes = tax.Default()
	}
	return &Composer{Taxes: taxes}
}

// Compose computes taxes on the ROI portion and builds the withdrawal entry
// with the gross amount as outflow. It does not check eligibility; run the
// withdrawal evaluator first.
func (c *Composer) Compose(in Input) (Payout, error) {
	if !in.Amount.IsPositive() {
		return Payout{}, &generic.EvaluationError{Kind: generic.KindInvalidAmount, PolicyID: in.Policy.ID, Requested: in.Amount}
	}

	entry, err := ledger.AppendEntry(in.Policy, in.Prior, ledger.Event{
		ID:             in.EntryID,
		Type:           generic.EntryWithdrawal,
		Date:           in.Date,
		Amount:         in.Amount,
		WithdrawalType: in.Type,
		ReferenceID:    string(in.RequestID),
		IdempotencyKey: in.IdempotencyKey,
		CreatedAt:      in.Date,
	})
	if err != nil {
		return Payout{}, err
	}

	gross := in.Amount.Round()
	roi := entry.ROIChange.Neg()
	principal := entry.PrincipalChange.Neg()

	income := in.AnnualIncome
	if !roi.IsPositive() {
		income = nil
	}
	taxes, err := c.Taxes.Investment(roi, income)
	if err != nil {
		return Payout{}, err
	}

	out := Payout{
		PolicyID:         in.Policy.ID,
		RequestID:        in.RequestID,
		WithdrawalType:   in.Type,
		GrossAmount:      gross,
		ROIPortion:       roi,
		PrincipalPortion: principal,
		WHT:              taxes.WHT,
		WHTAmount:        taxes.WHT.Tax,
		NetAfterWHT:      gross.Sub(taxes.WHT.Tax),
		PIT:              taxes.PIT,
		PITAmount:        generic.ZeroNaira(),
		LedgerEntries:    []generic.LedgerEntry{entry},
	}
	if taxes.PIT != nil {
		out.PITAmount = taxes.PIT.Tax
	}
	out.NetAfterAllTaxes = out.NetAfterWHT.Sub(out.PITAmount)
	return out, nil
}

// Split is exposed for callers previewing a payout before composing it.
func Split(policy generic.Policy, prior []generic.LedgerEntry, t generic.WithdrawalType, amount generic.Amount) (roi, principal generic.Amount) {
	open := policy.ROIBalance
	if last, ok := generic.Latest(prior); ok {
		open = last.ROIBalance
	}
	return withdrawal.Split(open, t, amount)
}
