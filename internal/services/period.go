package services

import (
	"fmt"
	"time"
)

// Period is an accrual window of whole calendar days, Start and End inclusive.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func MonthPeriod(year int, month time.Month) Period {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return Period{Start: start, End: start.AddDate(0, 1, -1)}
}

// PreviousMonth is the reference accrual window: the last full calendar
// month before now.
func PreviousMonth(now time.Time) Period {
	prev := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
	return MonthPeriod(prev.Year(), prev.Month())
}

// ParsePeriod reads a YYYY-MM month.
func ParsePeriod(s string) (Period, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Period{}, fmt.Errorf("invalid period %q, expected YYYY-MM", s)
	}
	return MonthPeriod(t.Year(), t.Month()), nil
}

func (p Period) Days() int {
	return int(p.End.Sub(p.Start).Hours()/24) + 1
}

// Until is the exclusive upper bound of the window.
func (p Period) Until() time.Time {
	return p.End.AddDate(0, 0, 1)
}

// LastInstant is the timestamp interest for the window is booked at.
func (p Period) LastInstant() time.Time {
	return p.Until().Add(-time.Second)
}

func (p Period) Key() string {
	return p.Start.Format("2006-01-02") + "_" + p.End.Format("2006-01-02")
}

func (p Period) String() string {
	return fmt.Sprintf("[%s, %s]", p.Start.Format("2006-01-02"), p.End.Format("2006-01-02"))
}

// EnsureClosed returns ErrWindowNotClosed unless the whole period lies before
// the day containing now.
func (p Period) EnsureClosed(now time.Time) error {
	if !p.End.Before(truncateDay(now)) {
		return fmt.Errorf("%w: %s ends %s", ErrWindowNotClosed, p, p.End.Format("2006-01-02"))
	}
	return nil
}

// truncateDay drops the clock part of t in UTC.
func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
