package generic

// =============================================================================
// PERIOD - Inclusive date range used by statements and tax summaries
// =============================================================================

// Period is the inclusive range [Start, End].
//
// Examples:
//   - Statement for Q1 2024: Jan 1 - Mar 31
//   - Tax year 2024: Jan 1 - Dec 31
type Period struct {
	Start TimePoint
	End   TimePoint
}

func NewPeriod(start, end TimePoint) (Period, error) {
	p := Period{Start: start, End: end}
	if err := p.Validate(); err != nil {
		return Period{}, err
	}
	return p, nil
}

// Validate rejects periods whose end precedes their start.
func (p Period) Validate() error {
	if p.End.Before(p.Start) {
		return ErrInvalidPeriod
	}
	return nil
}

// Contains returns true if the time point is within the period [Start, End]
func (p Period) Contains(t TimePoint) bool {
	return t.AfterOrEqual(p.Start) && t.BeforeOrEqual(p.End)
}

func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}

// TaxYear returns the calendar year as a Period.
func TaxYear(year int) Period {
	return Period{Start: StartOfYear(year), End: EndOfYear(year)}
}
