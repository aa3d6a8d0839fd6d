// Package clock provides the business calendar: the single place that
// decides what "today" means for lifecycle decisions.
package clock

import (
	"context"
	"time"

	"quizdeck/pkg/domain"
	"quizdeck/pkg/requestcontext"
)

// BusinessCalendar converts instants to business calendar dates in one fixed
// timezone. All lifecycle decisions (status derivation, edit eligibility,
// the transition job) must go through the same calendar so "today" cannot
// drift between components.
type BusinessCalendar struct {
	loc *time.Location
}

// NewBusinessCalendar loads the business timezone by name.
func NewBusinessCalendar(tz string) (*BusinessCalendar, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, err
	}
	return &BusinessCalendar{loc: loc}, nil
}

// Location exposes the business timezone for boundary conversions.
func (c *BusinessCalendar) Location() *time.Location { return c.loc }

// Today returns the current business calendar date. The instant comes from
// the request context when set (deterministic in tests, consistent within a
// job run) and falls back to the wall clock.
func (c *BusinessCalendar) Today(ctx context.Context) domain.CalendarDate {
	return domain.CalendarDateOf(requestcontext.Now(ctx), c.loc)
}

// DateOf converts an arbitrary instant to its business calendar date.
func (c *BusinessCalendar) DateOf(t time.Time) domain.CalendarDate {
	return domain.CalendarDateOf(t, c.loc)
}
