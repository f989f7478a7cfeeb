// Package daterange implements hatn's date-partition identity: a
// DateRange{Type,Year,Range} triple serialized as
// type*10_000_000 + year*1000 + range (spec.md §4.3.3), grounded on
// original_source/common/include/hatn/common/daterange.h.
package daterange

import (
	"fmt"
	"time"
)

// Type selects the granularity a partition spans.
type Type int

const (
	Year Type = iota
	HalfYear
	Quarter
	Month
	Week
	Day
)

func (t Type) String() string {
	switch t {
	case Year:
		return "year"
	case HalfYear:
		return "half_year"
	case Quarter:
		return "quarter"
	case Month:
		return "month"
	case Week:
		return "week"
	case Day:
		return "day"
	default:
		return "unknown"
	}
}

// DateRange identifies the partition a given date belongs to.
type DateRange struct {
	value uint32
}

// Zero is the invalid, unset DateRange.
var Zero = DateRange{}

// FromValue reconstructs a DateRange from its serialized form.
func FromValue(value uint32) DateRange {
	return DateRange{value: value}
}

// New computes the DateRange that dt belongs to under the given
// partition Type, using dt in UTC.
func New(dt time.Time, typ Type) DateRange {
	return DateRange{value: rangeNumber(dt.UTC(), typ)}
}

func rangeNumber(dt time.Time, typ Type) uint32 {
	year := uint32(dt.Year())
	var rng uint32
	switch typ {
	case Year:
		rng = 0
	case HalfYear:
		if dt.Month() <= 6 {
			rng = 1
		} else {
			rng = 2
		}
	case Quarter:
		rng = uint32((int(dt.Month())-1)/3) + 1
	case Month:
		rng = uint32(dt.Month())
	case Week:
		// ISOWeek's year can differ from dt.Year() near year boundaries
		// (e.g. 2023-01-01 falls in ISO week 52 of 2022); the partition
		// key must use the ISO year the week actually belongs to, or
		// Begin()/End() recompute the wrong window from (year, range).
		isoYear, wk := dt.ISOWeek()
		year = uint32(isoYear)
		rng = uint32(wk)
	case Day:
		rng = uint32(dt.YearDay())
	}
	return uint32(typ)*10_000_000 + year*1000 + rng
}

// IsValid reports whether the DateRange carries a non-zero value.
func (r DateRange) IsValid() bool {
	return r.value != 0
}

// Value returns the serialized type*10_000_000+year*1000+range number,
// used as the partition's on-disk directory/bucket name.
func (r DateRange) Value() uint32 {
	return r.value
}

// Type extracts the partition granularity.
func (r DateRange) Type() Type {
	return Type(r.value / 10_000_000)
}

// Year extracts the year: the calendar year, or the ISO week-year for
// Week ranges.
func (r DateRange) Year() uint32 {
	return (r.value / 1000) % 10000
}

// Range extracts the range ordinal (month number, week number, ...).
func (r DateRange) Range() uint32 {
	return r.value % 1000
}

// Begin returns the first instant (UTC, inclusive) covered by the range.
func (r DateRange) Begin() time.Time {
	year := int(r.Year())
	switch r.Type() {
	case Year:
		return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	case HalfYear:
		month := time.January
		if r.Range() == 2 {
			month = time.July
		}
		return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	case Quarter:
		month := time.Month((r.Range()-1)*3 + 1)
		return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	case Month:
		return time.Date(year, time.Month(r.Range()), 1, 0, 0, 0, 0, time.UTC)
	case Week:
		return isoWeekStart(year, int(r.Range()))
	case Day:
		return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, int(r.Range())-1)
	}
	return time.Time{}
}

// End returns the last instant (UTC, inclusive) covered by the range.
func (r DateRange) End() time.Time {
	switch r.Type() {
	case Year:
		return r.Begin().AddDate(1, 0, 0).Add(-time.Second)
	case HalfYear:
		return r.Begin().AddDate(0, 6, 0).Add(-time.Second)
	case Quarter:
		return r.Begin().AddDate(0, 3, 0).Add(-time.Second)
	case Month:
		return r.Begin().AddDate(0, 1, 0).Add(-time.Second)
	case Week:
		return r.Begin().AddDate(0, 0, 7).Add(-time.Second)
	case Day:
		return r.Begin().AddDate(0, 0, 1).Add(-time.Second)
	}
	return time.Time{}
}

func isoWeekStart(year, week int) time.Time {
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	isoYear, isoWeek := jan4.ISOWeek()
	for isoYear != year || isoWeek != 1 {
		jan4 = jan4.AddDate(0, 0, -1)
		isoYear, isoWeek = jan4.ISOWeek()
	}
	weekday := int(jan4.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	monday := jan4.AddDate(0, 0, -(weekday - 1))
	return monday.AddDate(0, 0, (week-1)*7)
}

// Contains reports whether dt falls within [Begin, End].
func (r DateRange) Contains(dt time.Time) bool {
	dt = dt.UTC()
	return !dt.Before(r.Begin()) && !dt.After(r.End())
}

// String renders the range as "<type>:<year>-<range>", used in log
// fields and partition directory names.
func (r DateRange) String() string {
	if !r.IsValid() {
		return "none"
	}
	return fmt.Sprintf("%s:%04d-%03d", r.Type(), r.Year(), r.Range())
}
