package recurrence

import (
	"fmt"
	"time"
)

// wallTime returns the instant showing the given date and clock in loc. When
// that clock falls in a DST gap, time.Date may normalize it into the previous
// day; the result is then the first instant of the requested day instead, so
// the calendar date is always the one asked for.
func wallTime(y int, m time.Month, d, hh, mm, ss, ns int, loc *time.Location) time.Time {
	t := time.Date(y, m, d, hh, mm, ss, ns, loc)
	if sameDate(t, y, m, d) {
		return t
	}
	if _, end := t.ZoneBounds(); !end.IsZero() && sameDate(end, y, m, d) {
		return end
	}
	// Step forward across the gap; offsets change in whole minutes.
	for i := 0; i < 24*60 && dateKey(t) < civilKey(y, m, d); i++ {
		t = t.Add(time.Minute)
	}
	return t
}

// onDate keeps ref's clock and location but moves it to the given date.
func onDate(y int, m time.Month, d int, ref time.Time) time.Time {
	hh, mm, ss := ref.Clock()
	return wallTime(y, m, d, hh, mm, ss, ref.Nanosecond(), ref.Location())
}

// shiftDays moves t by n calendar days, keeping its clock where it exists.
func shiftDays(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	y, m, d = time.Date(y, m, d+n, 12, 0, 0, 0, time.UTC).Date()
	return onDate(y, m, d, t)
}

func sameDate(t time.Time, y int, m time.Month, d int) bool {
	ty, tm, td := t.Date()
	return ty == y && tm == m && td == d
}

func civilKey(y int, m time.Month, d int) int {
	return y*10000 + int(m)*100 + d
}

func dateKey(t time.Time) int {
	return civilKey(t.Date())
}

// ParseDate reads a YYYY-MM-DD date as the first instant of that day in loc.
func ParseDate(raw string, loc *time.Location) (time.Time, error) {
	d, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q must look like 2025-11-30", raw)
	}
	if loc == nil {
		loc = time.Local
	}
	return wallTime(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc), nil
}
