package accrual

import (
	"github.com/shopspring/decimal"

	"github.com/warp/investment-engine/generic"
)

// =============================================================================
// PROJECTION - Month-by-month compounding
// =============================================================================

// ProjectionInput describes a what-if run over a number of months.
// Withdrawals[i] is the amount taken out in month i+1; missing months are zero.
type ProjectionInput struct {
	Principal   generic.Amount
	RatePercent decimal.Decimal
	Months      int
	Withdrawals []generic.Amount
}

// ProjectionMonth is one row of the projection history.
// Balance is after compounding, or before the withdrawal in a withdrawal month.
type ProjectionMonth struct {
	Month     int            `json:"month"`
	Interest  generic.Amount `json:"interest"`
	Withdrawn generic.Amount `json:"withdrawn"`
	Balance   generic.Amount `json:"balance"`
}

type ProjectionResult struct {
	History       []ProjectionMonth `json:"history"`
	FinalBalance  generic.Amount    `json:"final_balance"`
	TotalInterest generic.Amount    `json:"total_interest"`
}

// Project compounds unwithdrawn interest into the balance each month.
// A month with a withdrawal does not compound; the withdrawal is deducted.
func Project(in ProjectionInput) (ProjectionResult, error) {
	if in.Months < 0 {
		return ProjectionResult{}, &generic.ContractError{Field: "months", Problem: "must not be negative"}
	}
	if in.Principal.IsNegative() {
		return ProjectionResult{}, &generic.ContractError{Field: "principal", Problem: "must not be negative"}
	}
	if !in.RatePercent.IsPositive() {
		return ProjectionResult{}, &generic.ContractError{Field: "rate", Problem: "must be positive"}
	}

	balance := in.Principal
	totalInterest := generic.ZeroNaira()
	history := make([]ProjectionMonth, 0, in.Months)

	for m := 1; m <= in.Months; m++ {
		interest := monthlyROIExact(balance, in.RatePercent)
		withdrawn := generic.ZeroNaira()
		if m-1 < len(in.Withdrawals) {
			withdrawn = in.Withdrawals[m-1]
		}

		row := ProjectionMonth{Month: m, Interest: interest.Round(), Withdrawn: withdrawn.Round()}
		if withdrawn.IsPositive() {
			row.Balance = balance.Round()
			balance = balance.Sub(withdrawn)
		} else {
			balance = balance.Add(interest)
			totalInterest = totalInterest.Add(interest)
			row.Balance = balance.Round()
		}
		history = append(history, row)
	}

	return ProjectionResult{
		History:       history,
		FinalBalance:  balance.Round(),
		TotalInterest: totalInterest.Round(),
	}, nil
}
