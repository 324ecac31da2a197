// Package market answers exchange trading-hours questions.
package market

import (
	"sync"
	"time"
)

// NYSE session bounds in New York local time. The close is the last moment
// option chains are polled, ahead of the 16:00 bell.
const (
	openMinute  = 9*60 + 30
	closeMinute = 15*60 + 45
)

var (
	nyOnce sync.Once
	nyLoc  *time.Location
)

// newYork returns America/New_York, falling back to a fixed EST zone when the
// tz database is unavailable.
func newYork() *time.Location {
	nyOnce.Do(func() {
		loc, err := time.LoadLocation("America/New_York")
		if err != nil {
			loc = time.FixedZone("EST", -5*60*60)
		}
		nyLoc = loc
	})
	return nyLoc
}

// IsNYSEOpen reports whether t falls inside the polling session: Monday to
// Friday, 09:30 to 15:45 New York time. Exchange holidays are not modelled.
func IsNYSEOpen(t time.Time) bool {
	local := t.In(newYork())
	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	minute := local.Hour()*60 + local.Minute()
	return minute >= openMinute && minute < closeMinute
}

// NextOpen returns t when the session is open, otherwise the next session
// open after t.
func NextOpen(t time.Time) time.Time {
	loc := newYork()
	local := t.In(loc)
	if IsNYSEOpen(local) {
		return local
	}
	for day := 0; day < 8; day++ {
		d := local.AddDate(0, 0, day)
		open := time.Date(d.Year(), d.Month(), d.Day(), openMinute/60, openMinute%60, 0, 0, loc)
		if open.Weekday() == time.Saturday || open.Weekday() == time.Sunday {
			continue
		}
		if !open.Before(local) {
			return open
		}
	}
	return local
}
