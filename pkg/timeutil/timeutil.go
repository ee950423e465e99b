// Package timeutil provides calendar helpers used when grading: day
// boundaries, week windows between control points and a replaceable clock.
// No external dependencies - uses only standard library.
package timeutil

import (
	"time"
)

// Clock returns the current time. Components take a Clock so tests can pin it.
type Clock func() time.Time

// SystemClock is the real wall clock in UTC.
func SystemClock() time.Time {
	return time.Now().UTC()
}

// Fixed returns a Clock that always reports t.
func Fixed(t time.Time) Clock {
	return func() time.Time { return t }
}

// StartOfDay returns 00:00:00 of t's day in t's location.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// EndOfDay returns the last nanosecond of t's day in t's location.
func EndOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 999999999, t.Location())
}

// IsSameDay checks whether two times fall on the same calendar day in t1's
// location.
func IsSameDay(t1, t2 time.Time) bool {
	t2 = t2.In(t1.Location())
	return t1.Year() == t2.Year() && t1.YearDay() == t2.YearDay()
}

// DaysBetween returns the number of calendar days from t1 to t2.
// Negative when t2 is earlier.
func DaysBetween(t1, t2 time.Time) int {
	a := StartOfDay(t1)
	b := StartOfDay(t2.In(t1.Location()))
	return int(b.Sub(a).Hours() / 24)
}

// ══════════════════════════════════════════════════════════════════════════════
// WEEK WINDOWS
// ══════════════════════════════════════════════════════════════════════════════

// DaysPerWeek is the length of a full activity window.
const DaysPerWeek = 7

// Window is an inclusive range of calendar days. From and To are midnights.
type Window struct {
	From time.Time
	To   time.Time
}

// Since returns the first instant of the window.
func (w Window) Since() time.Time { return StartOfDay(w.From) }

// Until returns the last instant of the window.
func (w Window) Until() time.Time { return EndOfDay(w.To) }

// Days returns how many days the window covers.
func (w Window) Days() int { return DaysBetween(w.From, w.To) + 1 }

// WeekWindows splits the days from start to end, both inclusive, into
// consecutive seven-day windows. The last window is shortened so it ends on
// end. Nothing is returned when end is before start.
func WeekWindows(start, end time.Time) []Window {
	from := StartOfDay(start)
	last := StartOfDay(end.In(start.Location()))
	if last.Before(from) {
		return nil
	}

	var windows []Window
	for !from.After(last) {
		to := from.AddDate(0, 0, DaysPerWeek-1)
		if to.After(last) {
			to = last
		}
		windows = append(windows, Window{From: from, To: to})
		from = to.AddDate(0, 0, 1)
	}
	return windows
}
