package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "quizdeck/pkg/domain-errors"
)

func TestParseCalendarDate(t *testing.T) {
	t.Run("accepts valid dates", func(t *testing.T) {
		for _, input := range []string{"2025-10-20", "2024-02-29", "1999-12-31", "2025-01-01"} {
			d, err := ParseCalendarDate(input)
			require.NoError(t, err, "input %q", input)
			assert.Equal(t, input, d.String())
		}
	})

	t.Run("rejects malformed strings", func(t *testing.T) {
		for _, input := range []string{"", "2025-1-2", "20251020", "2025/10/20", "2025-10-20 ", "2025-10-20T00:00:00Z", "abcd-ef-gh"} {
			_, err := ParseCalendarDate(input)
			require.Error(t, err, "input %q", input)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		}
	})

	t.Run("rejects well-formed non-dates", func(t *testing.T) {
		// Matches the pattern but does not survive the calendar round-trip.
		for _, input := range []string{"2025-02-30", "2025-13-01", "2025-00-10", "2025-04-31", "2023-02-29"} {
			_, err := ParseCalendarDate(input)
			require.Error(t, err, "input %q", input)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		}
	})
}

func TestCalendarDate_Comparison(t *testing.T) {
	earlier, err := ParseCalendarDate("2025-09-30")
	require.NoError(t, err)
	later, err := ParseCalendarDate("2025-10-01")
	require.NoError(t, err)

	assert.True(t, earlier.Before(later))
	assert.True(t, later.After(earlier))
	assert.False(t, earlier.Equal(later))
	assert.True(t, earlier.Equal(earlier))

	// Month and year rollovers order correctly under string comparison.
	assert.True(t, CalendarDate("2024-12-31").Before(CalendarDate("2025-01-01")))
	assert.True(t, CalendarDate("2025-09-09").Before(CalendarDate("2025-10-01")))
}

func TestCalendarDate_AddDays(t *testing.T) {
	d := CalendarDate("2025-10-20")
	assert.Equal(t, CalendarDate("2025-10-21"), d.AddDays(1))
	assert.Equal(t, CalendarDate("2025-10-19"), d.AddDays(-1))
	assert.Equal(t, CalendarDate("2025-11-01"), CalendarDate("2025-10-31").AddDays(1))
	assert.Equal(t, CalendarDate("2024-02-29"), CalendarDate("2024-02-28").AddDays(1))
	assert.Equal(t, CalendarDate("2026-01-01"), CalendarDate("2025-12-31").AddDays(1))
}

func TestDayBoundary(t *testing.T) {
	seoul, err := time.LoadLocation("Asia/Seoul")
	require.NoError(t, err)

	start, end := DayBoundary(CalendarDate("2025-10-20"), seoul)

	// Seoul midnight is 15:00 UTC the previous day (UTC+9, no DST).
	assert.Equal(t, time.Date(2025, 10, 19, 15, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2025, 10, 20, 15, 0, 0, 0, time.UTC), end)
	assert.Equal(t, 24*time.Hour, end.Sub(start))

	t.Run("round-trips through CalendarDateOf", func(t *testing.T) {
		assert.Equal(t, CalendarDate("2025-10-20"), CalendarDateOf(start, seoul))
		assert.Equal(t, CalendarDate("2025-10-20"), CalendarDateOf(end.Add(-time.Nanosecond), seoul))
		assert.Equal(t, CalendarDate("2025-10-21"), CalendarDateOf(end, seoul))
	})

	t.Run("UTC boundary is the date itself", func(t *testing.T) {
		start, end := DayBoundary(CalendarDate("2025-10-20"), time.UTC)
		assert.Equal(t, time.Date(2025, 10, 20, 0, 0, 0, 0, time.UTC), start)
		assert.Equal(t, time.Date(2025, 10, 21, 0, 0, 0, 0, time.UTC), end)
	})
}
