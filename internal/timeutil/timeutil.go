// Package timeutil provides duration arithmetic and week/day boundary
// calculations shared by the timer engine and reports.
package timeutil

import "time"

// DurationSecondsBetween returns the whole seconds between start and end,
// clamped to zero. The clamp is the last line of defense against clock skew
// or out-of-order stop calls; this never returns a negative value.
func DurationSecondsBetween(start, end time.Time) int64 {
	secs := int64(end.Sub(start) / time.Second)
	if secs < 0 {
		return 0
	}

	return secs
}

// WeekStartMonday normalizes t to midnight in its own location, then walks
// back to the preceding (or same) Monday. No timezone conversion is performed;
// "local" is whatever wall clock the caller supplies.
func WeekStartMonday(t time.Time) time.Time {
	d := RoundToStart(t)

	isoDay := int(d.Weekday())
	if isoDay == 0 {
		isoDay = 7 // Sunday
	}

	return d.AddDate(0, 0, -(isoDay - 1))
}

// RoundToStart resets the given time to the start of the day.
func RoundToStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// RoundToEnd resets the given time to the end of the day.
func RoundToEnd(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, t.Location())
}

// keyLayout is RFC 3339 with fixed-width nanoseconds. RFC3339Nano trims
// trailing zeros, which breaks lexicographic ordering.
const keyLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ToKey converts a time value to a database key for Bolt. Fixed-width UTC
// keys sort lexicographically in chronological order.
func ToKey(t time.Time) []byte {
	return []byte(t.UTC().Format(keyLayout))
}
