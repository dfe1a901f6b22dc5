package core

import (
	"fmt"
	"time"
)

const (
	Day Granularity = iota + 1
	Week
	Month
	Year
)

// Granularity is the width of an aggregation bucket.
type Granularity uint8

// Bucket selects the records of one day, ISO week, month or year. For Week,
// Year holds the ISO year.
type Bucket struct {
	Granularity Granularity
	Year        int
	Month       int
	Week        int
	Day         int
}

func DayBucket(year, month, day int) Bucket {
	return Bucket{Granularity: Day, Year: year, Month: month, Day: day}
}

func WeekBucket(isoYear, week int) Bucket {
	return Bucket{Granularity: Week, Year: isoYear, Week: week}
}

func MonthBucket(year, month int) Bucket {
	return Bucket{Granularity: Month, Year: year, Month: month}
}

func YearBucket(year int) Bucket {
	return Bucket{Granularity: Year, Year: year}
}

// BucketOf returns the bucket of the given granularity containing t.
func BucketOf(g Granularity, t time.Time) Bucket {
	switch g {
	case Day:
		return DayBucket(t.Year(), int(t.Month()), t.Day())
	case Week:
		y, w := t.ISOWeek()
		return WeekBucket(y, w)
	case Month:
		return MonthBucket(t.Year(), int(t.Month()))
	default:
		return YearBucket(t.Year())
	}
}

func ParseGranularity(s string) (Granularity, error) {
	switch s {
	case "day":
		return Day, nil
	case "week":
		return Week, nil
	case "month":
		return Month, nil
	case "year":
		return Year, nil
	}
	return 0, fmt.Errorf("%w: granularity %q", ErrInvalidBucket, s)
}

func (g Granularity) String() string {
	switch g {
	case Day:
		return "day"
	case Week:
		return "week"
	case Month:
		return "month"
	case Year:
		return "year"
	default:
		return fmt.Sprintf("granularity(%d)", uint8(g))
	}
}

func (b Bucket) Validate() error {
	switch b.Granularity {
	case Day:
		if _, err := NewTimestamp(b.Year, b.Month, b.Day, 0, 0, 0); err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidBucket, b)
		}
	case Week:
		if b.Week < 1 || b.Week > 53 {
			return fmt.Errorf("%w: %s", ErrInvalidBucket, b)
		}
		if y, w := ISOWeekStart(b.Year, b.Week).ISOWeek(); y != b.Year || w != b.Week {
			return fmt.Errorf("%w: %s", ErrInvalidBucket, b)
		}
	case Month:
		if b.Month < 1 || b.Month > 12 {
			return fmt.Errorf("%w: %s", ErrInvalidBucket, b)
		}
	case Year:
	default:
		return fmt.Errorf("%w: %s", ErrInvalidBucket, b)
	}
	if b.Year < 1 || b.Year > 9999 {
		return fmt.Errorf("%w: %s", ErrInvalidBucket, b)
	}
	return nil
}

// Range returns the half-open interval [from, to) covered by the bucket.
func (b Bucket) Range() (time.Time, time.Time) {
	switch b.Granularity {
	case Day:
		from := time.Date(b.Year, time.Month(b.Month), b.Day, 0, 0, 0, 0, time.UTC)
		return from, from.AddDate(0, 0, 1)
	case Week:
		from := ISOWeekStart(b.Year, b.Week)
		return from, from.AddDate(0, 0, 7)
	case Month:
		from := time.Date(b.Year, time.Month(b.Month), 1, 0, 0, 0, 0, time.UTC)
		return from, from.AddDate(0, 1, 0)
	default:
		from := time.Date(b.Year, time.January, 1, 0, 0, 0, 0, time.UTC)
		return from, from.AddDate(1, 0, 0)
	}
}

// Previous returns the bucket of the same granularity just before b. It
// reports false when that bucket would fall before year 1.
func (b Bucket) Previous() (Bucket, bool) {
	from, _ := b.Range()
	prev := BucketOf(b.Granularity, from.AddDate(0, 0, -1))
	if prev.Year < 1 {
		return Bucket{}, false
	}
	return prev, true
}

func (b Bucket) String() string {
	switch b.Granularity {
	case Day:
		return fmt.Sprintf("%04d-%02d-%02d", b.Year, b.Month, b.Day)
	case Week:
		return fmt.Sprintf("%04d-W%02d", b.Year, b.Week)
	case Month:
		return fmt.Sprintf("%04d-%02d", b.Year, b.Month)
	case Year:
		return fmt.Sprintf("%04d", b.Year)
	default:
		return fmt.Sprintf("bucket(%d)", uint8(b.Granularity))
	}
}
