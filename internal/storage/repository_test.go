package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"ledger/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "ledger.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository() error = %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func bill(ts string, amount string, kind core.Kind, categoryID int64, ext string) core.BillRecord {
	t, err := core.ParseTimestamp(ts)
	if err != nil {
		panic(err)
	}
	return core.BillRecord{
		Timestamp:  t,
		Amount:     decimal.RequireFromString(amount),
		Kind:       kind,
		CategoryID: categoryID,
		MethodID:   core.MethodAlipay,
		ExternalID: ext,
	}
}

func TestNewSQLiteRepositorySeeds(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	for _, kind := range []core.Kind{core.Income, core.Expense} {
		cats, err := repo.Categories(ctx, kind)
		if err != nil {
			t.Fatalf("Categories(%s) error = %v", kind, err)
		}
		if len(cats) != len(core.CategoryNames) {
			t.Fatalf("Categories(%s) = %d rows, want %d", kind, len(cats), len(core.CategoryNames))
		}
		for _, c := range cats {
			want, _ := core.SeedCategoryID(c.Name, kind)
			if c.ID != want {
				t.Errorf("category %q (%s) id = %d, want %d", c.Name, kind, c.ID, want)
			}
			comment, err := repo.CommentForCategory(ctx, c.Name, kind)
			if err != nil || comment == "" {
				t.Errorf("category %q (%s) has no comment: %v", c.Name, kind, err)
			}
		}
	}

	methods, err := repo.Methods(ctx)
	if err != nil {
		t.Fatalf("Methods() error = %v", err)
	}
	want := []core.Method{{ID: 1, Name: "cash"}, {ID: 2, Name: "alipay"}, {ID: 3, Name: "wechat"}}
	if len(methods) != len(want) {
		t.Fatalf("Methods() = %v", methods)
	}
	for i := range want {
		if methods[i] != want[i] {
			t.Errorf("method %d = %+v, want %+v", i, methods[i], want[i])
		}
	}

	v, err := repo.SchemaVersion()
	if err != nil || v != 3 {
		t.Errorf("SchemaVersion() = %d, %v", v, err)
	}
}

func TestNewSQLiteRepositoryReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	for i := 0; i < 2; i++ {
		repo, err := NewSQLiteRepository(path)
		if err != nil {
			t.Fatalf("open #%d: %v", i+1, err)
		}
		cats, err := repo.Categories(context.Background(), core.Expense)
		if err != nil || len(cats) != len(core.CategoryNames) {
			t.Fatalf("open #%d: categories = %d, %v", i+1, len(cats), err)
		}
		repo.Close()
	}
}

func TestNewSQLiteRepositoryUnavailable(t *testing.T) {
	dir := t.TempDir()
	// A directory cannot be opened as a database file.
	_, err := NewSQLiteRepository(dir)
	if !errors.Is(err, core.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestInsertBill(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	id, created, err := repo.InsertBill(ctx, bill("2023-01-01 10:00:00", "12.34", core.Expense, 1, "2023010122001"))
	if err != nil || !created {
		t.Fatalf("InsertBill() = %d, %v, %v", id, created, err)
	}

	got, err := repo.GetBill(ctx, id)
	if err != nil {
		t.Fatalf("GetBill() error = %v", err)
	}
	wantPeriod := core.Period{Year: 2023, Month: 1, ISOWeek: 52, ISOYear: 2022}
	if got.Period != wantPeriod {
		t.Errorf("Period = %+v, want %+v", got.Period, wantPeriod)
	}
	if !got.Amount.Equal(decimal.RequireFromString("12.34")) {
		t.Errorf("Amount = %s", got.Amount)
	}
	if got.Category != core.CategoryNames[0] || got.Method != "alipay" {
		t.Errorf("joined names = %q, %q", got.Category, got.Method)
	}

	dupID, created, err := repo.InsertBill(ctx, bill("2024-05-05 10:00:00", "99", core.Income, 2, "2023010122001"))
	if err != nil {
		t.Fatalf("duplicate InsertBill() error = %v", err)
	}
	if created || dupID != id {
		t.Errorf("duplicate InsertBill() = %d, %v; want %d, false", dupID, created, id)
	}
}

func TestInsertBillConstraintViolation(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	rec := bill("2024-03-01 09:00:00", "1", core.Expense, 999, "")
	if _, _, err := repo.InsertBill(ctx, rec); !errors.Is(err, core.ErrConstraintViolation) {
		t.Errorf("unknown category: expected ErrConstraintViolation, got %v", err)
	}

	rec = bill("2024-03-01 09:00:00", "1", core.Expense, 1, "")
	rec.MethodID = 42
	if _, _, err := repo.InsertBill(ctx, rec); !errors.Is(err, core.ErrConstraintViolation) {
		t.Errorf("unknown method: expected ErrConstraintViolation, got %v", err)
	}
}

func TestUpdateBillRecomputesPeriod(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	id, _, err := repo.InsertBill(ctx, bill("2024-03-15 12:00:00", "5", core.Expense, 1, ""))
	if err != nil {
		t.Fatalf("InsertBill() error = %v", err)
	}

	rec := bill("2024-12-30 08:00:00", "6.5", core.Expense, 3, "")
	rec.Period = core.Period{Year: 1999, Month: 1, ISOWeek: 1, ISOYear: 1999}
	if err := repo.UpdateBill(ctx, id, rec); err != nil {
		t.Fatalf("UpdateBill() error = %v", err)
	}
	got, err := repo.GetBill(ctx, id)
	if err != nil {
		t.Fatalf("GetBill() error = %v", err)
	}
	want := core.Period{Year: 2024, Month: 12, ISOWeek: 1, ISOYear: 2025}
	if got.Period != want {
		t.Errorf("Period = %+v, want %+v", got.Period, want)
	}

	if err := repo.UpdateBill(ctx, id+100, rec); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("update missing: expected ErrNotFound, got %v", err)
	}
}

func TestDeleteBill(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	id, _, err := repo.InsertBill(ctx, bill("2024-03-15 12:00:00", "5", core.Expense, 1, ""))
	if err != nil {
		t.Fatalf("InsertBill() error = %v", err)
	}
	if err := repo.DeleteBill(ctx, id); err != nil {
		t.Fatalf("DeleteBill() error = %v", err)
	}
	if err := repo.DeleteBill(ctx, id); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("second delete: expected ErrNotFound, got %v", err)
	}
	if _, err := repo.GetBill(ctx, id); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("GetBill after delete: expected ErrNotFound, got %v", err)
	}
}

func TestFindBillIDByTimestampAndKind(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	first, _, _ := repo.InsertBill(ctx, bill("2024-03-15 12:00:00", "5", core.Expense, 1, ""))
	second, _, _ := repo.InsertBill(ctx, bill("2024-03-15 12:00:00", "7", core.Expense, 1, ""))
	if first == second {
		t.Fatal("expected distinct ids")
	}
	ts, _ := core.ParseTimestamp("2024-03-15 12:00:00")
	got, err := repo.FindBillIDByTimestampAndKind(ctx, ts, core.Expense)
	if err != nil || got != second {
		t.Errorf("FindBillIDByTimestampAndKind() = %d, %v; want %d", got, err, second)
	}
	if _, err := repo.FindBillIDByTimestampAndKind(ctx, ts, core.Income); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestBucketQueries(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	food, _ := core.SeedCategoryID("餐饮美食", core.Expense)
	shop, _ := core.SeedCategoryID("日用百货", core.Expense)
	salary, _ := core.SeedCategoryID("收入", core.Income)
	for _, rec := range []core.BillRecord{
		bill("2022-12-31 23:00:00", "1", core.Expense, food, ""),
		bill("2023-01-01 09:00:00", "2.5", core.Expense, food, ""),
		bill("2023-01-01 10:00:00", "3", core.Expense, shop, ""),
		bill("2023-01-02 10:00:00", "4", core.Expense, 0, ""),
		bill("2023-01-15 10:00:00", "100", core.Income, salary, ""),
	} {
		if _, _, err := repo.InsertBill(ctx, rec); err != nil {
			t.Fatalf("InsertBill() error = %v", err)
		}
	}

	tests := []struct {
		name  string
		b     core.Bucket
		kind  core.Kind
		total string
		count int
	}{
		{"day", core.DayBucket(2023, 1, 1), core.Expense, "5.5", 2},
		{"iso week spans years", core.WeekBucket(2022, 52), core.Expense, "6.5", 3},
		{"next iso week", core.WeekBucket(2023, 1), core.Expense, "4", 1},
		{"month", core.MonthBucket(2023, 1), core.Expense, "9.5", 3},
		{"year", core.YearBucket(2022), core.Expense, "1", 1},
		{"income", core.MonthBucket(2023, 1), core.Income, "100", 1},
		{"empty", core.MonthBucket(2023, 2), core.Expense, "0", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			total, err := repo.SumAmount(ctx, tt.b, tt.kind)
			if err != nil {
				t.Fatalf("SumAmount() error = %v", err)
			}
			if !total.Equal(decimal.RequireFromString(tt.total)) {
				t.Errorf("SumAmount() = %s, want %s", total, tt.total)
			}
			records, err := repo.ListBills(ctx, tt.b, tt.kind)
			if err != nil {
				t.Fatalf("ListBills() error = %v", err)
			}
			if len(records) != tt.count {
				t.Errorf("ListBills() = %d records, want %d", len(records), tt.count)
			}
			for i := 1; i < len(records); i++ {
				if records[i].ID <= records[i-1].ID {
					t.Errorf("ListBills() not in id order")
				}
			}

			stats, err := repo.CategorySums(ctx, tt.b, tt.kind)
			if err != nil {
				t.Fatalf("CategorySums() error = %v", err)
			}
			sum := decimal.Zero
			for _, s := range stats {
				sum = sum.Add(s.Total)
			}
			if !sum.Equal(total) {
				t.Errorf("category totals %s != bucket total %s", sum, total)
			}
		})
	}

	stats, err := repo.CategorySums(ctx, core.MonthBucket(2023, 1), core.Expense)
	if err != nil {
		t.Fatalf("CategorySums() error = %v", err)
	}
	byName := map[string]core.CategoryStat{}
	for _, s := range stats {
		byName[s.Name] = s
	}
	if byName[core.UnknownCategoryName].Count != 1 {
		t.Errorf("uncategorized row not grouped under %s: %+v", core.UnknownCategoryName, stats)
	}

	if _, err := repo.SumAmount(ctx, core.MonthBucket(2023, 13), core.Expense); !errors.Is(err, core.ErrInvalidBucket) {
		t.Errorf("expected ErrInvalidBucket, got %v", err)
	}
}

func TestDailyAndMonthlySums(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	for _, rec := range []core.BillRecord{
		bill("2024-03-01 09:00:00", "10", core.Expense, 1, ""),
		bill("2024-03-01 19:00:00", "5", core.Expense, 1, ""),
		bill("2024-03-02 09:00:00", "20", core.Income, 2, ""),
		bill("2024-04-02 09:00:00", "1", core.Expense, 1, ""),
	} {
		if _, _, err := repo.InsertBill(ctx, rec); err != nil {
			t.Fatalf("InsertBill() error = %v", err)
		}
	}

	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	daily, err := repo.DailySums(ctx, from, from.AddDate(0, 1, 0))
	if err != nil {
		t.Fatalf("DailySums() error = %v", err)
	}
	if len(daily) != 2 {
		t.Fatalf("DailySums() = %+v", daily)
	}
	if !daily[0].Date.Equal(from) || daily[0].Kind != core.Expense || !daily[0].Total.Equal(decimal.NewFromInt(15)) {
		t.Errorf("first daily sum = %+v", daily[0])
	}

	monthly, err := repo.MonthlySums(ctx, 2024)
	if err != nil {
		t.Fatalf("MonthlySums() error = %v", err)
	}
	if len(monthly) != 3 {
		t.Fatalf("MonthlySums() = %+v", monthly)
	}
	if monthly[2].Month != 4 || !monthly[2].Total.Equal(decimal.NewFromInt(1)) {
		t.Errorf("april sum = %+v", monthly[2])
	}
}

func TestImportRuns(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	started := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	if err := repo.StartImportRun(ctx, "run-1", "/tmp/export.csv", started); err != nil {
		t.Fatalf("StartImportRun() error = %v", err)
	}
	finished := started.Add(time.Minute)
	if err := repo.FinishImportRun(ctx, core.ImportRun{ID: "run-1", FinishedAt: &finished, Accepted: 3, Skipped: 2, Failed: 1}); err != nil {
		t.Fatalf("FinishImportRun() error = %v", err)
	}
	run, err := repo.GetImportRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetImportRun() error = %v", err)
	}
	if run.Accepted != 3 || run.Skipped != 2 || run.Failed != 1 || !run.StartedAt.Equal(started) {
		t.Errorf("GetImportRun() = %+v", run)
	}
	if run.FinishedAt == nil || !run.FinishedAt.Equal(finished) {
		t.Errorf("FinishedAt = %v", run.FinishedAt)
	}
	if err := repo.FinishImportRun(ctx, core.ImportRun{ID: "missing"}); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
