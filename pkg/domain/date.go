package domain

import (
	"regexp"
	"time"

	dErrors "quizdeck/pkg/domain-errors"
)

// CalendarDate is a date without a time component, serialized as a fixed
// zero-padded "YYYY-MM-DD" string. The fixed width makes lexicographic
// comparison identical to chronological comparison, so CalendarDate values
// compare with plain string operators. Every constructor path validates the
// format, so code holding a CalendarDate may rely on that invariant.
type CalendarDate string

const calendarLayout = "2006-01-02"

var calendarPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// ParseCalendarDate validates s as a calendar date. It rejects strings that
// do not match the fixed format, and strings that match but do not name a
// real date (verified by round-tripping through the calendar).
func ParseCalendarDate(s string) (CalendarDate, error) {
	if !calendarPattern.MatchString(s) {
		return "", dErrors.New(dErrors.CodeValidation, "date must be formatted as YYYY-MM-DD")
	}
	t, err := time.Parse(calendarLayout, s)
	if err != nil || t.Format(calendarLayout) != s {
		return "", dErrors.New(dErrors.CodeValidation, "not a valid calendar date: "+s)
	}
	return CalendarDate(s), nil
}

// CalendarDateOf converts an instant to the calendar date it falls on in loc.
func CalendarDateOf(t time.Time, loc *time.Location) CalendarDate {
	return CalendarDate(t.In(loc).Format(calendarLayout))
}

func (d CalendarDate) String() string { return string(d) }

// Before, After and Equal compare chronologically. Lexicographic string
// comparison is correct here by the format invariant.
func (d CalendarDate) Before(other CalendarDate) bool { return d < other }
func (d CalendarDate) After(other CalendarDate) bool  { return d > other }
func (d CalendarDate) Equal(other CalendarDate) bool  { return d == other }

// AddDays returns the calendar date n days later (or earlier for negative n).
func (d CalendarDate) AddDays(n int) CalendarDate {
	t, _ := time.Parse(calendarLayout, string(d))
	return CalendarDate(t.AddDate(0, 0, n).Format(calendarLayout))
}

// DayBoundary converts a business calendar date into the half-open instant
// range [start, end) it covers in loc, expressed in UTC. This is the single
// place where calendar dates and storage instants meet; everything that
// needs the conversion (stores, the transition job) goes through here.
func DayBoundary(d CalendarDate, loc *time.Location) (start, end time.Time) {
	t, _ := time.ParseInLocation(calendarLayout, string(d), loc)
	return t.UTC(), t.AddDate(0, 0, 1).UTC()
}
