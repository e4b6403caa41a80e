package generic

import (
	"encoding/json"
	"time"
)

// =============================================================================
// TIME POINT - Calendar date, day granularity
// =============================================================================

// DateLayout is the wire and storage format of every TimePoint.
const DateLayout = "2006-01-02"

type TimePoint struct {
	Time time.Time
}

func NewTimePoint(year int, month time.Month, day int) TimePoint {
	return TimePoint{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// FromTime truncates t to its UTC calendar date.
func FromTime(t time.Time) TimePoint {
	if t.IsZero() {
		return TimePoint{}
	}
	u := t.UTC()
	return NewTimePoint(u.Year(), u.Month(), u.Day())
}

func ParseTimePoint(s string) (TimePoint, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return TimePoint{}, err
	}
	return FromTime(t), nil
}

func Today() TimePoint {
	return FromTime(time.Now())
}

// Comparison
func (tp TimePoint) Before(other TimePoint) bool        { return tp.Time.Before(other.Time) }
func (tp TimePoint) Equal(other TimePoint) bool         { return tp.Time.Equal(other.Time) }
func (tp TimePoint) After(other TimePoint) bool         { return tp.Time.After(other.Time) }
func (tp TimePoint) BeforeOrEqual(other TimePoint) bool { return !tp.After(other) }
func (tp TimePoint) AfterOrEqual(other TimePoint) bool  { return !tp.Before(other) }

// Arithmetic
func (tp TimePoint) AddDays(n int) TimePoint { return TimePoint{Time: tp.Time.AddDate(0, 0, n)} }

// AddMonthsClamped moves n calendar months, clamping the day to the end of
// the target month (Jan 31 + 1 month = Feb 28/29).
func (tp TimePoint) AddMonthsClamped(n int) TimePoint {
	first := NewTimePoint(tp.Year(), tp.Month(), 1)
	first = TimePoint{Time: first.Time.AddDate(0, n, 0)}
	return first.withDayClamped(tp.Day())
}

func (tp TimePoint) withDayClamped(day int) TimePoint {
	last := EndOfMonth(tp.Year(), tp.Month()).Day()
	if day > last {
		day = last
	}
	return NewTimePoint(tp.Year(), tp.Month(), day)
}

// FirstOfMonth returns the first day of tp's month.
func (tp TimePoint) FirstOfMonth() TimePoint { return StartOfMonth(tp.Year(), tp.Month()) }

// FirstOfNextMonth returns the first day of the month after tp.
func (tp TimePoint) FirstOfNextMonth() TimePoint {
	return TimePoint{Time: tp.FirstOfMonth().Time.AddDate(0, 1, 0)}
}

// CeilToFirstOfMonth returns tp if it is the 1st, else the 1st of the next month.
func (tp TimePoint) CeilToFirstOfMonth() TimePoint {
	if tp.Day() == 1 {
		return tp
	}
	return tp.FirstOfNextMonth()
}

// Properties
func (tp TimePoint) Year() int         { return tp.Time.Year() }
func (tp TimePoint) Month() time.Month { return tp.Time.Month() }
func (tp TimePoint) Day() int          { return tp.Time.Day() }
func (tp TimePoint) IsZero() bool      { return tp.Time.IsZero() }

// YearMonth returns "2006-01", used to key monthly postings.
func (tp TimePoint) YearMonth() string { return tp.Time.Format("2006-01") }

func (tp TimePoint) String() string {
	if tp.IsZero() {
		return ""
	}
	return tp.Time.Format(DateLayout)
}

func (tp TimePoint) MarshalJSON() ([]byte, error) {
	if tp.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(tp.String())
}

func (tp *TimePoint) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*tp = TimePoint{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseTimePoint(s)
	if err != nil {
		return err
	}
	*tp = parsed
	return nil
}

// =============================================================================
// TIME UTILITIES
// =============================================================================

// MonthsBetween counts whole calendar months from -> to. A month is complete
// once the day-of-month is reached, clamped to the end of shorter months.
func MonthsBetween(from, to TimePoint) int {
	if to.Before(from) {
		return -MonthsBetween(to, from)
	}
	months := (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
	if months > 0 && to.Before(from.AddMonthsClamped(months)) {
		months--
	}
	return months
}

func StartOfYear(year int) TimePoint                    { return NewTimePoint(year, time.January, 1) }
func EndOfYear(year int) TimePoint                      { return NewTimePoint(year, time.December, 31) }
func StartOfMonth(year int, month time.Month) TimePoint { return NewTimePoint(year, month, 1) }
func EndOfMonth(year int, month time.Month) TimePoint {
	return TimePoint{Time: time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)}
}
