package sheets

import (
	"context"

	"ledger/internal/core"
)

// MonthExport is everything written for one calendar month.
type MonthExport struct {
	Month   core.YearMonth
	Records []core.BillRecord
	Expense []core.CategoryStat
	Income  []core.CategoryStat
}

// Ports for outbound adapters.
type (
	// MonthExporter replaces the exported copy of a month.
	MonthExporter interface {
		ExportMonth(ctx context.Context, m MonthExport) error
	}

	// MonthSource reads what a month export needs from the ledger.
	MonthSource interface {
		RecordsByBucket(ctx context.Context, b core.Bucket, kind core.Kind) ([]core.BillRecord, error)
		CategoryStatsByBucket(ctx context.Context, b core.Bucket, kind core.Kind) ([]core.CategoryStat, error)
	}
)

// Collect reads the records and category breakdown of month m from src.
// Records of both kinds are returned in id order.
func Collect(ctx context.Context, src MonthSource, m core.YearMonth) (MonthExport, error) {
	b := m.Bucket()
	export := MonthExport{Month: m}

	income, err := src.RecordsByBucket(ctx, b, core.Income)
	if err != nil {
		return MonthExport{}, err
	}
	expense, err := src.RecordsByBucket(ctx, b, core.Expense)
	if err != nil {
		return MonthExport{}, err
	}
	export.Records = mergeByID(income, expense)

	if export.Income, err = src.CategoryStatsByBucket(ctx, b, core.Income); err != nil {
		return MonthExport{}, err
	}
	if export.Expense, err = src.CategoryStatsByBucket(ctx, b, core.Expense); err != nil {
		return MonthExport{}, err
	}
	return export, nil
}

func mergeByID(a, b []core.BillRecord) []core.BillRecord {
	out := make([]core.BillRecord, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if a[i].ID < b[j].ID {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	return append(out, b[j:]...)
}
