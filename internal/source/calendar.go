package source

import (
	"time"
)

// Venues without an authoritative date API fall back to deterministic
// calendar rules. Each rule is documented on the adapter that uses it.

// nthWeekdayOfMonth returns the nth (1-based) occurrence of weekday in the
// given month.
func nthWeekdayOfMonth(year int, month time.Month, weekday time.Weekday, n int) time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	offset := (int(weekday) - int(first.Weekday()) + 7) % 7
	return first.AddDate(0, 0, offset+(n-1)*7)
}

// lastWeekdayOfMonth returns the final occurrence of weekday in the month.
func lastWeekdayOfMonth(year int, month time.Month, weekday time.Weekday) time.Time {
	last := time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
	offset := (int(last.Weekday()) - int(weekday) + 7) % 7
	return last.AddDate(0, 0, -offset)
}

// sundayBeforeThanksgiving returns the Sunday preceding the US Thanksgiving
// (fourth Thursday of November).
func sundayBeforeThanksgiving(year int) time.Time {
	thanksgiving := nthWeekdayOfMonth(year, time.November, time.Thursday, 4)
	offset := (int(thanksgiving.Weekday()) - int(time.Sunday) + 7) % 7
	return thanksgiving.AddDate(0, 0, -offset)
}
