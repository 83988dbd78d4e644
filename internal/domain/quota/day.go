package quota

import (
	"time"
)

const dayLayout = "2006-01-02"

// Day is a calendar date (YYYY-MM-DD) in the session's location.
type Day string

// DayOf returns the calendar date of t in loc. A nil loc uses t's own location.
func DayOf(t time.Time, loc *time.Location) Day {
	if loc != nil {
		t = t.In(loc)
	}
	return Day(t.Format(dayLayout))
}

// Start returns midnight of d in loc.
func (d Day) Start(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(dayLayout, string(d), loc)
	if err != nil {
		return time.Time{}, err //nolint:wrapcheck // time.ParseError carries the input
	}
	return t, nil
}

// ResetScheduler decides calendar-day rollover on access, without timers.
type ResetScheduler struct {
	now func() time.Time
	loc *time.Location
}

// NewResetScheduler creates a scheduler. now defaults to time.Now, loc to time.Local.
func NewResetScheduler(now func() time.Time, loc *time.Location) *ResetScheduler {
	if now == nil {
		now = time.Now
	}
	if loc == nil {
		loc = time.Local
	}
	return &ResetScheduler{now: now, loc: loc}
}

// Today returns the current calendar date in the scheduler's location.
func (s *ResetScheduler) Today() Day { return DayOf(s.now(), s.loc) }

// Now returns the scheduler clock reading.
func (s *ResetScheduler) Now() time.Time { return s.now() }

// Location returns the location days are computed in.
func (s *ResetScheduler) Location() *time.Location { return s.loc }

// DayBounds returns [start, end) of today.
func (s *ResetScheduler) DayBounds() (time.Time, time.Time) {
	t := s.now().In(s.loc)
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, s.loc)
	return start, start.AddDate(0, 0, 1)
}

// MonthBounds returns [start, end) of the current month.
func (s *ResetScheduler) MonthBounds() (time.Time, time.Time) {
	t := s.now().In(s.loc)
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, s.loc)
	return start, start.AddDate(0, 1, 0)
}

// Rollover moves st forward to today. changed is false when st is already
// fresh, so repeated calls on the same day are no-ops. A clock that moved
// back to an earlier day keeps the later day's counter.
func Rollover(st SearchState, today Day) (next SearchState, changed bool) {
	// YYYY-MM-DD sorts chronologically; the empty day sorts first.
	if today <= st.Day {
		return st, false
	}
	return SearchState{Day: today, Used: 0}, true
}
