package generic

// =============================================================================
// ACCRUAL SCHEDULE - Interface for how ROI accumulates
// =============================================================================

// AccrualSchedule generates the ROI postings owed to a policy.
// accrual.Engine is the production implementation.
type AccrualSchedule interface {
	// DueAccruals returns one event per accrual date in (lastPosted, asOf].
	// A zero lastPosted means nothing has been posted yet.
	DueAccruals(policy Policy, lastPosted, asOf TimePoint) ([]AccrualEvent, error)
}

// AccrualEvent represents a single monthly ROI posting.
type AccrualEvent struct {
	At     TimePoint
	Amount Amount
	Reason string
}

// IdempotencyKey makes repeated postings of the same month collapse.
func (e AccrualEvent) IdempotencyKey(policyID PolicyID) string {
	return "accrual:" + string(policyID) + ":" + e.At.YearMonth()
}
