package daterange_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/evgeniums/hatn-sub006/pkg/daterange"
)

func TestNewMonthRangeFields(t *testing.T) {
	dt := time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC)
	r := daterange.New(dt, daterange.Month)
	require.Equal(t, daterange.Month, r.Type())
	require.EqualValues(t, 2026, r.Year())
	require.EqualValues(t, 3, r.Range())
}

func TestValueRoundTripsThroughFromValue(t *testing.T) {
	dt := time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC)
	r := daterange.New(dt, daterange.Month)
	reconstructed := daterange.FromValue(r.Value())
	require.Equal(t, r, reconstructed)
}

func TestValueEncodesTypeYearRange(t *testing.T) {
	dt := time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC)
	r := daterange.New(dt, daterange.Month)
	require.EqualValues(t, uint32(daterange.Month)*10_000_000+2026*1000+3, r.Value())
}

func TestContainsWithinRange(t *testing.T) {
	dt := time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC)
	r := daterange.New(dt, daterange.Month)
	require.True(t, r.Contains(dt))
	require.True(t, r.Contains(time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)))
	require.False(t, r.Contains(time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)))
}

func TestYearRangeBeginEnd(t *testing.T) {
	dt := time.Date(2026, time.June, 10, 0, 0, 0, 0, time.UTC)
	r := daterange.New(dt, daterange.Year)
	require.Equal(t, time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC), r.Begin())
	require.Equal(t, time.Date(2026, time.December, 31, 23, 59, 59, 0, time.UTC), r.End())
}

func TestHalfYearRangeSecondHalf(t *testing.T) {
	dt := time.Date(2026, time.September, 1, 0, 0, 0, 0, time.UTC)
	r := daterange.New(dt, daterange.HalfYear)
	require.EqualValues(t, 2, r.Range())
	require.Equal(t, time.Date(2026, time.July, 1, 0, 0, 0, 0, time.UTC), r.Begin())
}

func TestQuarterRange(t *testing.T) {
	dt := time.Date(2026, time.August, 1, 0, 0, 0, 0, time.UTC)
	r := daterange.New(dt, daterange.Quarter)
	require.EqualValues(t, 3, r.Range())
}

func TestWeekRangeBeginIsMonday(t *testing.T) {
	dt := time.Date(2026, time.March, 4, 0, 0, 0, 0, time.UTC)
	r := daterange.New(dt, daterange.Week)
	require.Equal(t, time.Monday, r.Begin().Weekday())
	require.True(t, r.Contains(dt))
}

// TestWeekRangeUsesISOYearAtBoundary guards against using the calendar
// year instead of the ISO week-year: 2023-01-01 falls in ISO week 52 of
// 2022, so the partition (and its recomputed Begin/End window) must be
// keyed on 2022, not 2023.
func TestWeekRangeUsesISOYearAtBoundary(t *testing.T) {
	dt := time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC)
	isoYear, isoWeek := dt.ISOWeek()
	require.Equal(t, 2022, isoYear)
	require.Equal(t, 52, isoWeek)

	r := daterange.New(dt, daterange.Week)
	require.EqualValues(t, 2022, r.Year())
	require.EqualValues(t, 52, r.Range())
	require.True(t, r.Contains(dt))
}

func TestDayRange(t *testing.T) {
	dt := time.Date(2026, time.January, 10, 0, 0, 0, 0, time.UTC)
	r := daterange.New(dt, daterange.Day)
	require.EqualValues(t, 10, r.Range())
	require.Equal(t, dt, r.Begin())
}

func TestZeroIsInvalid(t *testing.T) {
	require.False(t, daterange.Zero.IsValid())
	require.Equal(t, "none", daterange.Zero.String())
}

func TestStringFormat(t *testing.T) {
	dt := time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC)
	r := daterange.New(dt, daterange.Month)
	require.Equal(t, "month:2026-003", r.String())
}
