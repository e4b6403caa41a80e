/*
Package accrual computes the ROI owed to a policy and when it is next posted.

PURPOSE:
  Given a policy snapshot and an explicit "as of" date, answers:
  - How much ROI does one month earn on the current balance?
  - On which date is the next monthly posting due?
  - Which monthly postings are due between two dates?

NEXT ACCRUAL DATE:
  A policy starting on or before the cutoff day of its month (default 12)
  first accrues on the 1st of the following month. A later start defers the
  first accrual by one more month:

    start 2024-01-12  ->  first accrual 2024-02-01
    start 2024-01-13  ->  first accrual 2024-03-01

  After the first date has passed, the next date is the 1st of the month
  on or after asOf. Dates never move backwards.

ROUNDING:
  Monthly ROI = current_balance x rate / 12 / 100, computed in full
  precision and rounded to kobo once at the output.

SEE ALSO:
  - projection.go: Month-by-month compounding projection
  - generic/accrual.go: AccrualSchedule contract implemented by Engine
*/
package accrual

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/investment-engine/generic"
)

// DefaultCutoffDay is the last start day that still accrues next month.
const DefaultCutoffDay = 12

var monthsPerYearPercent = decimal.NewFromInt(12 * 100)

// Engine implements generic.AccrualSchedule.
type Engine struct {
	CutoffDay int
}

func NewEngine(cutoffDay int) *Engine {
	if cutoffDay <= 0 {
		cutoffDay = DefaultCutoffDay
	}
	return &Engine{CutoffDay: cutoffDay}
}

// ComputedAccrual is the result of Compute.
type ComputedAccrual struct {
	RoiDue generic.Amount `json:"roi_due"`

	// NextAccrualDate is nil when the policy is OnDemand, Closed or Matured.
	NextAccrualDate *generic.TimePoint `json:"next_accrual_date"`

	// OnDemand marks ROI computed live rather than on a schedule.
	OnDemand bool `json:"on_demand"`
}

// Compute returns the ROI due for one accrual and the next posting date.
func (e *Engine) Compute(policy generic.Policy, asOf generic.TimePoint) (ComputedAccrual, error) {
	if err := policy.Validate(); err != nil {
		return ComputedAccrual{}, err
	}
	if asOf.IsZero() {
		return ComputedAccrual{}, &generic.ContractError{Field: "as_of", Problem: "required"}
	}

	if !policy.Status.Accrues() {
		return ComputedAccrual{RoiDue: generic.ZeroNaira()}, nil
	}

	due := MonthlyROI(policy.CurrentBalance, policy.ROIRate)
	if policy.ROIFrequency == generic.FrequencyOnDemand {
		return ComputedAccrual{RoiDue: due, OnDemand: true}, nil
	}

	next := e.NextAccrualDate(policy.StartDate, asOf)
	return ComputedAccrual{RoiDue: due, NextAccrualDate: &next}, nil
}

// MonthlyROI is balance x rate / 1200, rounded to two places.
func MonthlyROI(balance generic.Amount, annualRatePercent decimal.Decimal) generic.Amount {
	return monthlyROIExact(balance, annualRatePercent).Round()
}

func monthlyROIExact(balance generic.Amount, annualRatePercent decimal.Decimal) generic.Amount {
	return balance.Mul(annualRatePercent).Div(monthsPerYearPercent)
}

// FirstAccrualDate applies the cutoff-day rule to a start date.
func (e *Engine) FirstAccrualDate(start generic.TimePoint) generic.TimePoint {
	first := start.FirstOfNextMonth()
	if start.Day() > e.cutoff() {
		first = first.FirstOfNextMonth()
	}
	return first
}

// NextAccrualDate is the first accrual date, or the 1st of the month on or
// after asOf once that has passed.
func (e *Engine) NextAccrualDate(start, asOf generic.TimePoint) generic.TimePoint {
	first := e.FirstAccrualDate(start)
	if asOf.BeforeOrEqual(first) {
		return first
	}
	return asOf.CeilToFirstOfMonth()
}

// DueAccruals returns one event per accrual date in (lastPosted, asOf].
func (e *Engine) DueAccruals(policy generic.Policy, lastPosted, asOf generic.TimePoint) ([]generic.AccrualEvent, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if !policy.Status.Accrues() || policy.ROIFrequency == generic.FrequencyOnDemand {
		return nil, nil
	}

	amount := MonthlyROI(policy.CurrentBalance, policy.ROIRate)
	if !amount.IsPositive() {
		return nil, nil
	}

	var events []generic.AccrualEvent
	for at := e.FirstAccrualDate(policy.StartDate); at.BeforeOrEqual(asOf); at = at.FirstOfNextMonth() {
		if !lastPosted.IsZero() && at.BeforeOrEqual(lastPosted) {
			continue
		}
		events = append(events, generic.AccrualEvent{
			At:     at,
			Amount: amount,
			Reason: fmt.Sprintf("ROI for %s at %s%% p.a.", at.YearMonth(), policy.ROIRate.String()),
		})
	}
	return events, nil
}

func (e *Engine) cutoff() int {
	if e == nil || e.CutoffDay <= 0 {
		return DefaultCutoffDay
	}
	return e.CutoffDay
}

var _ generic.AccrualSchedule = (*Engine)(nil)
