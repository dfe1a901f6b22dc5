package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// CategoryStat aggregates the records of one category within a bucket.
type CategoryStat struct {
	Name  string          `json:"category"`
	Count int             `json:"count"`
	Total decimal.Decimal `json:"totalAmount"`
}

// DailySum is the total of one kind on one day.
type DailySum struct {
	Date  time.Time
	Kind  Kind
	Total decimal.Decimal
}

// MonthlySum is the total of one kind in one month.
type MonthlySum struct {
	Month int
	Kind  Kind
	Total decimal.Decimal
}

// ImportRun records the outcome of one import call.
type ImportRun struct {
	ID         string     `json:"id"`
	Path       string     `json:"path"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	Accepted   int        `json:"accepted"`
	Skipped    int        `json:"skipped"`
	Failed     int        `json:"failed"`
	Error      string     `json:"error,omitempty"`
}

// YearMonth names a calendar month.
type YearMonth struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

func (ym YearMonth) Bucket() Bucket {
	return MonthBucket(ym.Year, ym.Month)
}

func (ym YearMonth) Before(other YearMonth) bool {
	if ym.Year != other.Year {
		return ym.Year < other.Year
	}
	return ym.Month < other.Month
}
