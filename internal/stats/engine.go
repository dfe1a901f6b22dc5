// Package stats computes bucket totals, category breakdowns and the
// narrative comment shown next to them.
package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"ledger/internal/core"
)

// Reader is the read side of the ledger store.
type Reader interface {
	SumAmount(ctx context.Context, b core.Bucket, kind core.Kind) (decimal.Decimal, error)
	ListBills(ctx context.Context, b core.Bucket, kind core.Kind) ([]core.BillRecord, error)
	CategorySums(ctx context.Context, b core.Bucket, kind core.Kind) ([]core.CategoryStat, error)
	CommentForCategory(ctx context.Context, name string, kind core.Kind) (string, error)
	DailySums(ctx context.Context, from, to time.Time) ([]core.DailySum, error)
	MonthlySums(ctx context.Context, year int) ([]core.MonthlySum, error)
}

type Engine struct {
	reader Reader
}

func NewEngine(reader Reader) *Engine {
	return &Engine{reader: reader}
}

func validate(b core.Bucket, kind core.Kind) error {
	if err := b.Validate(); err != nil {
		return err
	}
	if !kind.Valid() {
		return fmt.Errorf("%w: %d", core.ErrInvalidKind, kind)
	}
	return nil
}

// TotalByBucket sums the amounts of one kind in the bucket; 0 when empty.
func (e *Engine) TotalByBucket(ctx context.Context, b core.Bucket, kind core.Kind) (decimal.Decimal, error) {
	if err := validate(b, kind); err != nil {
		return decimal.Zero, err
	}
	return e.reader.SumAmount(ctx, b, kind)
}

// RecordsByBucket lists the records of one kind in the bucket, in id order.
func (e *Engine) RecordsByBucket(ctx context.Context, b core.Bucket, kind core.Kind) ([]core.BillRecord, error) {
	if err := validate(b, kind); err != nil {
		return nil, err
	}
	return e.reader.ListBills(ctx, b, kind)
}

// CategoryStatsByBucket groups the bucket by category name, unranked.
func (e *Engine) CategoryStatsByBucket(ctx context.Context, b core.Bucket, kind core.Kind) ([]core.CategoryStat, error) {
	if err := validate(b, kind); err != nil {
		return nil, err
	}
	return e.reader.CategorySums(ctx, b, kind)
}

// TopCategoryComment returns the comment of the category with the largest
// share of the bucket, or "" when the bucket is empty.
func (e *Engine) TopCategoryComment(ctx context.Context, b core.Bucket, kind core.Kind) (string, error) {
	if err := validate(b, kind); err != nil {
		return "", err
	}
	total, err := e.reader.SumAmount(ctx, b, kind)
	if err != nil {
		return "", err
	}
	stats, err := e.reader.CategorySums(ctx, b, kind)
	if err != nil {
		return "", err
	}
	return e.commentFor(ctx, stats, total, kind)
}

func (e *Engine) commentFor(ctx context.Context, stats []core.CategoryStat, total decimal.Decimal, kind core.Kind) (string, error) {
	top, ok := TopCategory(stats, total)
	if !ok {
		return "", nil
	}
	return e.reader.CommentForCategory(ctx, top.Name, kind)
}

// Share is a category's fraction of total; 0 when total is not positive.
func Share(amount, total decimal.Decimal) decimal.Decimal {
	if !total.IsPositive() {
		return decimal.Zero
	}
	return amount.Div(total)
}

// TopCategory picks the category with the strictly largest share. On a tie
// the one encountered first wins.
func TopCategory(stats []core.CategoryStat, total decimal.Decimal) (core.CategoryStat, bool) {
	if len(stats) == 0 {
		return core.CategoryStat{}, false
	}
	best := stats[0]
	bestShare := Share(best.Total, total)
	for _, s := range stats[1:] {
		if share := Share(s.Total, total); share.GreaterThan(bestShare) {
			best, bestShare = s, share
		}
	}
	return best, true
}
