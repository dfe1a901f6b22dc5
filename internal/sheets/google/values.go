package google

import (
	"fmt"

	"github.com/shopspring/decimal"

	"ledger/internal/core"
	"ledger/internal/sheets"
)

var recordHeader = []interface{}{"ID", "交易时间", "收/支", "交易分类", "收/付款方式", "金额", "交易对方", "商品说明", "备注", "交易订单号"}

func sheetTitle(base string, m core.YearMonth) string {
	return fmt.Sprintf("%04d-%02d %s", m.Year, m.Month, base)
}

// monthValues renders the records table followed by the expense and income
// category breakdowns, each block separated by an empty row.
func monthValues(m sheets.MonthExport) [][]interface{} {
	values := [][]interface{}{recordHeader}
	for _, r := range m.Records {
		values = append(values, []interface{}{
			r.ID,
			core.FormatTimestamp(r.Timestamp),
			kindLabel(r.Kind),
			r.Category,
			r.Method,
			r.Amount.StringFixed(2),
			r.Counterparty,
			r.Description,
			r.Remark,
			r.ExternalID,
		})
	}

	values = append(values, []interface{}{})
	values = append(values, categoryBlock("支出分类", m.Expense)...)
	values = append(values, []interface{}{})
	values = append(values, categoryBlock("收入分类", m.Income)...)
	return values
}

func categoryBlock(title string, stats []core.CategoryStat) [][]interface{} {
	rows := [][]interface{}{{title, "笔数", "金额"}}
	count, total := 0, decimal.Zero
	for _, s := range stats {
		rows = append(rows, []interface{}{s.Name, s.Count, s.Total.StringFixed(2)})
		count += s.Count
		total = total.Add(s.Total)
	}
	return append(rows, []interface{}{"合计", count, total.StringFixed(2)})
}

func kindLabel(k core.Kind) string {
	if k == core.Income {
		return "收入"
	}
	return "支出"
}
