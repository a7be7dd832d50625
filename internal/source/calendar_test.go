package source

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNthWeekdayOfMonth(t *testing.T) {
	// First Sunday of November 2024 was the 3rd (NYC race day).
	assert.Equal(t,
		time.Date(2024, time.November, 3, 0, 0, 0, 0, time.UTC),
		nthWeekdayOfMonth(2024, time.November, time.Sunday, 1))

	// Second Sunday of October 2024 was the 13th (Chicago race day).
	assert.Equal(t,
		time.Date(2024, time.October, 13, 0, 0, 0, 0, time.UTC),
		nthWeekdayOfMonth(2024, time.October, time.Sunday, 2))

	// Third Monday of April 2024 was the 15th (Patriots' Day).
	assert.Equal(t,
		time.Date(2024, time.April, 15, 0, 0, 0, 0, time.UTC),
		nthWeekdayOfMonth(2024, time.April, time.Monday, 3))
}

func TestLastWeekdayOfMonth(t *testing.T) {
	// Last Sunday of October 2024 was the 27th.
	assert.Equal(t,
		time.Date(2024, time.October, 27, 0, 0, 0, 0, time.UTC),
		lastWeekdayOfMonth(2024, time.October, time.Sunday))

	// Month ending on the target weekday: June 2024 ended on a Sunday.
	assert.Equal(t,
		time.Date(2024, time.June, 30, 0, 0, 0, 0, time.UTC),
		lastWeekdayOfMonth(2024, time.June, time.Sunday))
}

func TestSundayBeforeThanksgiving(t *testing.T) {
	// Thanksgiving 2024: Thursday Nov 28. Preceding Sunday: Nov 24.
	assert.Equal(t,
		time.Date(2024, time.November, 24, 0, 0, 0, 0, time.UTC),
		sundayBeforeThanksgiving(2024))

	// 2019: Thanksgiving Nov 28, Sunday before Nov 24.
	assert.Equal(t,
		time.Date(2019, time.November, 24, 0, 0, 0, 0, time.UTC),
		sundayBeforeThanksgiving(2019))
}

func TestRaceDatesStableAcrossCalls(t *testing.T) {
	for range 3 {
		assert.Equal(t,
			nthWeekdayOfMonth(2023, time.October, time.Sunday, 2),
			nthWeekdayOfMonth(2023, time.October, time.Sunday, 2))
	}
}
