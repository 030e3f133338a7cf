package units

import (
	"fmt"
	"time"
)

// DayFormat is the canonical on-disk form of an event day.
const DayFormat = "2006-01-02"

// LocalDayWindow converts a local calendar date in an IANA zone into the
// half-open UTC interval covering its 24 local hours. The end instant is
// local midnight of the next day translated to UTC, not a fixed +24h, so
// DST-shortened (23h) and DST-lengthened (25h) days come out correctly.
func LocalDayWindow(year int, month time.Month, day int, zone string) (time.Time, time.Time, error) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("load zone %q: %w", zone, err)
	}
	start := time.Date(year, month, day, 0, 0, 0, 0, loc)
	end := time.Date(year, month, day+1, 0, 0, 0, 0, loc)
	return start.UTC(), end.UTC(), nil
}

// LocalMidnight returns local midnight of the given day in the zone,
// keeping the zone offset attached. Forecast requests must carry this
// offset; a naive UTC timestamp shifts the whole requested day.
func LocalMidnight(day time.Time, zone string) (time.Time, error) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return time.Time{}, fmt.Errorf("load zone %q: %w", zone, err)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc), nil
}

// SameDay reports whether two instants fall on the same calendar date in
// the given zone.
func SameDay(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}
