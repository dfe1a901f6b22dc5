package stats

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"ledger/internal/core"
)

type PieSlice struct {
	Category    string          `json:"category"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	Ratio       decimal.Decimal `json:"ratio"`
	Count       int             `json:"count"`
}

// DailyBar is one day of a week chart or month calendar. DailyAmount is the
// amount of the requested kind.
type DailyBar struct {
	Date         string          `json:"date"`
	HasRecords   bool            `json:"hasRecords"`
	DailyAmount  decimal.Decimal `json:"dailyAmount"`
	DailyExpense decimal.Decimal `json:"dailyExpense"`
	DailyIncome  decimal.Decimal `json:"dailyIncome"`
}

type MonthlyBar struct {
	Month               int             `json:"month"`
	HasRecords          bool            `json:"hasRecords"`
	MonthlyAmountTotal  decimal.Decimal `json:"monthlyAmountTotal"`
	MonthlyExpenseTotal decimal.Decimal `json:"monthlyExpenseTotal"`
	MonthlyIncomeTotal  decimal.Decimal `json:"monthlyIncomeTotal"`
}

type DayReport struct {
	Date         string            `json:"date"`
	Records      []core.BillRecord `json:"records"`
	DailyIncome  decimal.Decimal   `json:"dailyIncome"`
	DailyExpense decimal.Decimal   `json:"dailyExpense"`
}

type WeekSummary struct {
	Year               int             `json:"year"`
	Week               int             `json:"week"`
	WeeklyIncomeTotal  decimal.Decimal `json:"weeklyIncomeTotal"`
	WeeklyExpenseTotal decimal.Decimal `json:"weeklyExpenseTotal"`
	DailyBars          []DailyBar      `json:"dailyBars"`
	Pie                []PieSlice      `json:"pie"`
	Comment            string          `json:"comment"`
}

type WeekReport struct {
	Type         core.Kind   `json:"type"`
	CurrentWeek  WeekSummary `json:"currentWeek"`
	PreviousWeek WeekSummary `json:"previousWeek"`
}

type MonthReport struct {
	Year                int             `json:"year"`
	Month               int             `json:"month"`
	Type                core.Kind       `json:"type"`
	MonthlyIncomeTotal  decimal.Decimal `json:"monthlyIncomeTotal"`
	MonthlyExpenseTotal decimal.Decimal `json:"monthlyExpenseTotal"`
	MonthCalendar       []DailyBar      `json:"monthCalendar"`
	Pie                 []PieSlice      `json:"pie"`
	Comment             string          `json:"comment"`
}

type YearReport struct {
	Year                 int             `json:"year"`
	Type                 core.Kind       `json:"type"`
	MonthlyBars          []MonthlyBar    `json:"monthlyBars"`
	AnnuallyIncomeTotal  decimal.Decimal `json:"annuallyIncomeTotal"`
	AnnuallyExpenseTotal decimal.Decimal `json:"annuallyExpenseTotal"`
	Pie                  []PieSlice      `json:"pie"`
	Comment              string          `json:"comment"`
}

// DayReport lists every record of the day, both kinds, in id order.
func (e *Engine) DayReport(ctx context.Context, b core.Bucket) (DayReport, error) {
	if err := expect(b, core.Day); err != nil {
		return DayReport{}, err
	}
	if err := validate(b, core.Expense); err != nil {
		return DayReport{}, err
	}
	report := DayReport{Date: b.String()}
	for _, kind := range []core.Kind{core.Income, core.Expense} {
		records, err := e.reader.ListBills(ctx, b, kind)
		if err != nil {
			return DayReport{}, err
		}
		total := decimal.Zero
		for _, r := range records {
			total = total.Add(r.Amount)
		}
		if kind == core.Income {
			report.DailyIncome = total
		} else {
			report.DailyExpense = total
		}
		report.Records = append(report.Records, records...)
	}
	sort.Slice(report.Records, func(i, j int) bool { return report.Records[i].ID < report.Records[j].ID })
	return report, nil
}

// WeekReport summarizes an ISO week and the week before it. For the first
// representable week the previous summary is empty.
func (e *Engine) WeekReport(ctx context.Context, b core.Bucket, kind core.Kind) (WeekReport, error) {
	if err := expect(b, core.Week); err != nil {
		return WeekReport{}, err
	}
	if err := validate(b, kind); err != nil {
		return WeekReport{}, err
	}
	current, err := e.weekSummary(ctx, b, kind)
	if err != nil {
		return WeekReport{}, err
	}
	// The week before 0001-W01 has no records; it stays empty.
	var previous WeekSummary
	if prev, ok := b.Previous(); ok {
		if previous, err = e.weekSummary(ctx, prev, kind); err != nil {
			return WeekReport{}, err
		}
	}
	return WeekReport{Type: kind, CurrentWeek: current, PreviousWeek: previous}, nil
}

func (e *Engine) weekSummary(ctx context.Context, b core.Bucket, kind core.Kind) (WeekSummary, error) {
	income, expense, err := e.totals(ctx, b)
	if err != nil {
		return WeekSummary{}, err
	}
	bars, err := e.dailyBars(ctx, b, kind)
	if err != nil {
		return WeekSummary{}, err
	}
	pie, comment, err := e.pie(ctx, b, kind, pick(kind, income, expense))
	if err != nil {
		return WeekSummary{}, err
	}
	return WeekSummary{
		Year:               b.Year,
		Week:               b.Week,
		WeeklyIncomeTotal:  income,
		WeeklyExpenseTotal: expense,
		DailyBars:          bars,
		Pie:                pie,
		Comment:            comment,
	}, nil
}

func (e *Engine) MonthReport(ctx context.Context, b core.Bucket, kind core.Kind) (MonthReport, error) {
	if err := expect(b, core.Month); err != nil {
		return MonthReport{}, err
	}
	if err := validate(b, kind); err != nil {
		return MonthReport{}, err
	}
	income, expense, err := e.totals(ctx, b)
	if err != nil {
		return MonthReport{}, err
	}
	calendar, err := e.dailyBars(ctx, b, kind)
	if err != nil {
		return MonthReport{}, err
	}
	pie, comment, err := e.pie(ctx, b, kind, pick(kind, income, expense))
	if err != nil {
		return MonthReport{}, err
	}
	return MonthReport{
		Year:                b.Year,
		Month:               b.Month,
		Type:                kind,
		MonthlyIncomeTotal:  income,
		MonthlyExpenseTotal: expense,
		MonthCalendar:       calendar,
		Pie:                 pie,
		Comment:             comment,
	}, nil
}

func (e *Engine) YearReport(ctx context.Context, b core.Bucket, kind core.Kind) (YearReport, error) {
	if err := expect(b, core.Year); err != nil {
		return YearReport{}, err
	}
	if err := validate(b, kind); err != nil {
		return YearReport{}, err
	}
	sums, err := e.reader.MonthlySums(ctx, b.Year)
	if err != nil {
		return YearReport{}, err
	}
	bars := make([]MonthlyBar, 12)
	for i := range bars {
		bars[i] = MonthlyBar{
			Month:               i + 1,
			MonthlyAmountTotal:  decimal.Zero,
			MonthlyExpenseTotal: decimal.Zero,
			MonthlyIncomeTotal:  decimal.Zero,
		}
	}
	income, expense := decimal.Zero, decimal.Zero
	for _, s := range sums {
		if s.Month < 1 || s.Month > 12 {
			continue
		}
		bar := &bars[s.Month-1]
		bar.HasRecords = true
		if s.Kind == core.Income {
			bar.MonthlyIncomeTotal = bar.MonthlyIncomeTotal.Add(s.Total)
			income = income.Add(s.Total)
		} else {
			bar.MonthlyExpenseTotal = bar.MonthlyExpenseTotal.Add(s.Total)
			expense = expense.Add(s.Total)
		}
	}
	for i := range bars {
		bars[i].MonthlyAmountTotal = pick(kind, bars[i].MonthlyIncomeTotal, bars[i].MonthlyExpenseTotal)
	}

	pie, comment, err := e.pie(ctx, b, kind, pick(kind, income, expense))
	if err != nil {
		return YearReport{}, err
	}
	return YearReport{
		Year:                 b.Year,
		Type:                 kind,
		MonthlyBars:          bars,
		AnnuallyIncomeTotal:  income,
		AnnuallyExpenseTotal: expense,
		Pie:                  pie,
		Comment:              comment,
	}, nil
}

func (e *Engine) totals(ctx context.Context, b core.Bucket) (income, expense decimal.Decimal, err error) {
	if income, err = e.reader.SumAmount(ctx, b, core.Income); err != nil {
		return
	}
	expense, err = e.reader.SumAmount(ctx, b, core.Expense)
	return
}

// pie ranks the bucket's categories by total, keeping store order on ties so
// the first slice is always the commented category.
func (e *Engine) pie(ctx context.Context, b core.Bucket, kind core.Kind, total decimal.Decimal) ([]PieSlice, string, error) {
	stats, err := e.reader.CategorySums(ctx, b, kind)
	if err != nil {
		return nil, "", err
	}
	comment, err := e.commentFor(ctx, stats, total, kind)
	if err != nil {
		return nil, "", err
	}

	slices := make([]PieSlice, len(stats))
	for i, s := range stats {
		slices[i] = PieSlice{
			Category:    s.Name,
			TotalAmount: s.Total,
			Ratio:       Share(s.Total, total).Round(4),
			Count:       s.Count,
		}
	}
	sort.SliceStable(slices, func(i, j int) bool {
		return slices[i].TotalAmount.GreaterThan(slices[j].TotalAmount)
	})
	return slices, comment, nil
}

// dailyBars returns one bar per day of the bucket's range.
func (e *Engine) dailyBars(ctx context.Context, b core.Bucket, kind core.Kind) ([]DailyBar, error) {
	from, to := b.Range()
	sums, err := e.reader.DailySums(ctx, from, to)
	if err != nil {
		return nil, err
	}
	byDay := make(map[string]*DailyBar)
	var bars []DailyBar
	for d := from; d.Before(to); d = d.AddDate(0, 0, 1) {
		bars = append(bars, DailyBar{
			Date:         d.Format(core.DateLayout),
			DailyAmount:  decimal.Zero,
			DailyExpense: decimal.Zero,
			DailyIncome:  decimal.Zero,
		})
	}
	for i := range bars {
		byDay[bars[i].Date] = &bars[i]
	}
	for _, s := range sums {
		bar, ok := byDay[s.Date.Format(core.DateLayout)]
		if !ok {
			continue
		}
		bar.HasRecords = true
		if s.Kind == core.Income {
			bar.DailyIncome = bar.DailyIncome.Add(s.Total)
		} else {
			bar.DailyExpense = bar.DailyExpense.Add(s.Total)
		}
	}
	for i := range bars {
		bars[i].DailyAmount = pick(kind, bars[i].DailyIncome, bars[i].DailyExpense)
	}
	return bars, nil
}

func pick(kind core.Kind, income, expense decimal.Decimal) decimal.Decimal {
	if kind == core.Income {
		return income
	}
	return expense
}

func expect(b core.Bucket, g core.Granularity) error {
	if b.Granularity != g {
		return fmt.Errorf("%w: %s report needs a %s bucket, got %s", core.ErrInvalidBucket, g, g, b)
	}
	return nil
}
