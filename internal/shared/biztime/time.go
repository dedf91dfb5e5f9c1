// Package biztime holds the business timezone. Everything is stored in UTC;
// the business timezone only decides where a day, month or year ends when a
// usage window is opened.
package biztime

import (
	"sync/atomic"
	"time"
)

var location atomic.Pointer[time.Location]

// Init sets the business timezone from an IANA name. Empty means UTC.
func Init(tz string) error {
	if tz == "" {
		location.Store(time.UTC)
		return nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return err
	}
	location.Store(loc)
	return nil
}

// Location returns the business timezone, UTC until Init succeeds.
func Location() *time.Location {
	if loc := location.Load(); loc != nil {
		return loc
	}
	return time.UTC
}

func NowUTC() time.Time {
	return time.Now().UTC()
}

// The End* helpers return the last whole second of t's period in the
// business timezone, as UTC. Whole seconds survive every driver's datetime
// precision.

func EndOfDayUTC(t time.Time) time.Time {
	local := t.In(Location())
	return time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, Location()).Add(-time.Second).UTC()
}

func EndOfMonthUTC(t time.Time) time.Time {
	local := t.In(Location())
	return time.Date(local.Year(), local.Month()+1, 1, 0, 0, 0, 0, Location()).Add(-time.Second).UTC()
}

func EndOfYearUTC(t time.Time) time.Time {
	local := t.In(Location())
	return time.Date(local.Year()+1, time.January, 1, 0, 0, 0, 0, Location()).Add(-time.Second).UTC()
}

// DaysBetween counts whole days from a to b. Negative when b is before a.
func DaysBetween(a, b time.Time) int64 {
	return int64(b.Sub(a) / (24 * time.Hour))
}
