package google

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"ledger/internal/core"
	"ledger/internal/sheets"
)

func TestSheetTitle(t *testing.T) {
	if got := sheetTitle("Ledger", core.YearMonth{Year: 2024, Month: 3}); got != "2024-03 Ledger" {
		t.Errorf("sheetTitle() = %q", got)
	}
}

func TestMonthValues(t *testing.T) {
	m := sheets.MonthExport{
		Month: core.YearMonth{Year: 2024, Month: 3},
		Records: []core.BillRecord{
			{
				ID:          1,
				Timestamp:   time.Date(2024, 3, 15, 18, 30, 0, 0, time.UTC),
				Amount:      decimal.RequireFromString("45.5"),
				Kind:        core.Expense,
				Category:    "餐饮美食",
				Method:      "alipay",
				Description: "晚饭",
				ExternalID:  "2024031522001",
			},
			{
				ID:        2,
				Timestamp: time.Date(2024, 3, 20, 9, 0, 0, 0, time.UTC),
				Amount:    decimal.NewFromInt(5000),
				Kind:      core.Income,
				Category:  "收入",
			},
		},
		Expense: []core.CategoryStat{
			{Name: "餐饮美食", Count: 1, Total: decimal.RequireFromString("45.5")},
		},
	}

	values := monthValues(m)

	// header, 2 records, blank, expense title/row/total, blank, income title/total
	if len(values) != 10 {
		t.Fatalf("monthValues() has %d rows, want 10: %v", len(values), values)
	}
	first := values[1]
	if first[1] != "2024-03-15 18:30:00" || first[2] != "支出" || first[5] != "45.50" || first[9] != "2024031522001" {
		t.Errorf("record row = %v", first)
	}
	if values[2][2] != "收入" {
		t.Errorf("income row kind = %v", values[2][2])
	}
	if len(values[3]) != 0 {
		t.Errorf("expected separator row, got %v", values[3])
	}
	if total := values[6]; total[0] != "合计" || total[1] != 1 || total[2] != "45.50" {
		t.Errorf("expense total row = %v", total)
	}
	if total := values[9]; total[1] != 0 || total[2] != "0.00" {
		t.Errorf("empty income total row = %v", total)
	}
}
