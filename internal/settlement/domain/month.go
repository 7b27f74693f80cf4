package settlement

import (
	"strings"
	"time"
)

const monthLayout = "2006-01"

// Month is a calendar month in YYYY-MM form.
type Month struct {
	year  int
	month time.Month
}

// ParseMonth validates and parses a YYYY-MM string.
func ParseMonth(value string) (Month, error) {
	value = strings.TrimSpace(value)
	if len(value) != len(monthLayout) {
		return Month{}, ErrInvalidMonth
	}
	t, err := time.Parse(monthLayout, value)
	if err != nil {
		return Month{}, ErrInvalidMonth
	}
	return Month{year: t.Year(), month: t.Month()}, nil
}

// MonthOf returns the month containing t.
func MonthOf(t time.Time) Month {
	return Month{year: t.Year(), month: t.Month()}
}

// String returns YYYY-MM.
func (m Month) String() string {
	if m.IsZero() {
		return ""
	}
	return time.Date(m.year, m.month, 1, 0, 0, 0, 0, time.UTC).Format(monthLayout)
}

// IsZero reports whether the month is unset.
func (m Month) IsZero() bool { return m.year == 0 }

// Window is an inclusive time range.
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window, both ends inclusive.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// Window returns [first day 00:00:00, last day 23:59:59] in loc.
func (m Month) Window(loc *time.Location) Window {
	if loc == nil {
		loc = time.Local
	}
	start := time.Date(m.year, m.month, 1, 0, 0, 0, 0, loc)
	end := time.Date(m.year, m.month+1, 0, 23, 59, 59, 0, loc)
	return Window{Start: start, End: end}
}
