package core

import (
	"fmt"
	"strings"
	"time"
)

// TimestampLayout is the canonical stored form of a record timestamp.
const TimestampLayout = "2006-01-02 15:04:05"

// DateLayout is the stored form of a day.
const DateLayout = "2006-01-02"

// importLayouts are tried in order; the first successful parse wins.
var importLayouts = []string{
	"2006-01-02 15:04:05",
	"2006/1/2 15:04:05",
	"2006/1/2 15:04",
}

// Period holds the calendar fields derived from a record timestamp.
// ISOYear differs from Year for days in the first or last ISO week of a year.
type Period struct {
	Year    int `json:"year"`
	Month   int `json:"month"`
	ISOWeek int `json:"week"`
	ISOYear int `json:"isoYear"`
}

// Decompose derives the denormalized calendar fields of a timestamp. Import
// and manual edits both go through here.
func Decompose(t time.Time) (Period, error) {
	if t.IsZero() {
		return Period{}, ErrInvalidTimestamp
	}
	isoYear, isoWeek := t.ISOWeek()
	return Period{
		Year:    t.Year(),
		Month:   int(t.Month()),
		ISOWeek: isoWeek,
		ISOYear: isoYear,
	}, nil
}

// NewTimestamp builds a wall-clock timestamp and rejects dates that do not
// exist, e.g. February 30th.
func NewTimestamp(year, month, day, hour, min, sec int) (time.Time, error) {
	t := time.Date(year, time.Month(month), day, hour, min, sec, 0, time.UTC)
	if t.Year() != year || int(t.Month()) != month || t.Day() != day ||
		t.Hour() != hour || t.Minute() != min || t.Second() != sec {
		return time.Time{}, fmt.Errorf("%w: %04d-%02d-%02d %02d:%02d:%02d",
			ErrInvalidTimestamp, year, month, day, hour, min, sec)
	}
	return t, nil
}

// ParseTimestamp normalizes whitespace and tries each accepted layout.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.Join(strings.Fields(s), " ")
	for _, layout := range importLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
}

func FormatTimestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// ISOWeekStart returns the Monday of the given ISO week.
func ISOWeekStart(isoYear, week int) time.Time {
	jan4 := time.Date(isoYear, time.January, 4, 0, 0, 0, 0, time.UTC)
	offset := (int(jan4.Weekday()) + 6) % 7
	monday := jan4.AddDate(0, 0, -offset)
	return monday.AddDate(0, 0, (week-1)*7)
}
