package ledger

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"ledger/internal/amqp"
	"ledger/internal/core"
	"ledger/internal/importer"
)

type recordingNotifier struct {
	events []*amqp.LedgerEvent
	err    error
}

func (n *recordingNotifier) PublishLedgerEvent(_ context.Context, e *amqp.LedgerEvent) error {
	n.events = append(n.events, e)
	return n.err
}

func openLedger(t *testing.T, n Notifier) *Ledger {
	t.Helper()
	l := New(Options{
		DBPath:   filepath.Join(t.TempDir(), "ledger.db"),
		Importer: importer.Options{Encoding: "utf-8"},
		Notifier: n,
	})
	if err := l.Open(context.Background()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func input(t *testing.T, ts, amount string, method int64, ext string) Input {
	t.Helper()
	parsed, err := core.ParseTimestamp(ts)
	if err != nil {
		t.Fatalf("ParseTimestamp(%q) error = %v", ts, err)
	}
	return Input{
		Timestamp:   parsed,
		Amount:      decimal.RequireFromString(amount),
		Kind:        core.Expense,
		CategoryID:  1,
		MethodID:    method,
		Description: "晚饭",
		ExternalID:  ext,
	}
}

func TestLedgerNotOpen(t *testing.T) {
	ctx := context.Background()
	l := New(Options{DBPath: filepath.Join(t.TempDir(), "ledger.db")})
	if l.IsReady() {
		t.Fatal("IsReady() = true before Open")
	}

	month := core.MonthBucket(2024, 3)
	checks := map[string]error{}
	_, checks["AddRecord"] = l.AddRecord(ctx, input(t, "2024-03-15 18:30:00", "1", core.MethodCash, ""))
	checks["DeleteRecord"] = l.DeleteRecord(ctx, 1)
	_, checks["ImportFile"] = l.ImportFile(ctx, "missing.csv")
	_, checks["TotalByBucket"] = l.TotalByBucket(ctx, month, core.Expense)
	_, checks["MonthReport"] = l.MonthReport(ctx, month, core.Expense)
	_, checks["Methods"] = l.Methods(ctx)

	for name, err := range checks {
		if !errors.Is(err, core.ErrStoreUnavailable) {
			t.Errorf("%s error = %v, want ErrStoreUnavailable", name, err)
		}
	}
}

func TestOpenRejectsDirtySchema(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")
	l := New(Options{DBPath: path})
	if err := l.Open(ctx); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	l.Close()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec("UPDATE schema_migrations SET dirty = 1"); err != nil {
		t.Fatalf("mark schema dirty: %v", err)
	}
	db.Close()

	if err := l.Open(ctx); !errors.Is(err, core.ErrStoreUnavailable) {
		t.Errorf("Open() on dirty schema error = %v, want ErrStoreUnavailable", err)
	}
	if l.IsReady() {
		t.Error("IsReady() = true after failed Open")
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	ctx := context.Background()
	l := New(Options{DBPath: filepath.Join(t.TempDir(), "ledger.db")})
	for i := 0; i < 2; i++ {
		if err := l.Open(ctx); err != nil {
			t.Fatalf("Open() #%d error = %v", i+1, err)
		}
	}
	if !l.IsReady() {
		t.Fatal("IsReady() = false after Open")
	}

	methods, err := l.Methods(ctx)
	if err != nil || len(methods) != 3 {
		t.Fatalf("Methods() = %v, %v", methods, err)
	}

	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := l.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if l.IsReady() {
		t.Error("IsReady() = true after Close")
	}
	if _, err := l.Categories(ctx, core.Expense); !errors.Is(err, core.ErrStoreUnavailable) {
		t.Errorf("Categories() after Close error = %v", err)
	}
}

func TestAddRecordCashDropsExternalID(t *testing.T) {
	ctx := context.Background()
	n := &recordingNotifier{}
	l := openLedger(t, n)

	id, err := l.AddRecord(ctx, input(t, "2024-03-15 18:30:00", "45.50", core.MethodCash, "2024031522001"))
	if err != nil {
		t.Fatalf("AddRecord() error = %v", err)
	}
	rec, err := l.GetRecord(ctx, id)
	if err != nil {
		t.Fatalf("GetRecord() error = %v", err)
	}
	if rec.ExternalID != "" {
		t.Errorf("ExternalID = %q, want empty for cash", rec.ExternalID)
	}
	if rec.Year != 2024 || rec.Month != 3 || rec.ISOWeek != 11 {
		t.Errorf("period = %+v, want 2024-03 week 11", rec.Period)
	}

	if len(n.events) != 1 {
		t.Fatalf("published %d events, want 1", len(n.events))
	}
	if e := n.events[0]; e.Type != amqp.RecordCreated || e.RecordID != id || e.Year != 2024 || e.Month != 3 {
		t.Errorf("event = %+v", e)
	}
}

func TestAddRecordRejectsInvalidInput(t *testing.T) {
	ctx := context.Background()
	l := openLedger(t, nil)

	negative := input(t, "2024-03-15 18:30:00", "-1", core.MethodCash, "")
	if _, err := l.AddRecord(ctx, negative); !errors.Is(err, core.ErrInvalidAmount) {
		t.Errorf("negative amount error = %v", err)
	}

	noKind := input(t, "2024-03-15 18:30:00", "1", core.MethodCash, "")
	noKind.Kind = 0
	if _, err := l.AddRecord(ctx, noKind); !errors.Is(err, core.ErrInvalidKind) {
		t.Errorf("missing kind error = %v", err)
	}

	if _, err := l.AddRecord(ctx, Input{Amount: decimal.NewFromInt(1), Kind: core.Income, MethodID: core.MethodCash}); !errors.Is(err, core.ErrInvalidTimestamp) {
		t.Errorf("zero timestamp error = %v", err)
	}

	dup := input(t, "2024-03-15 18:30:00", "1", core.MethodAlipay, "999")
	if _, err := l.AddRecord(ctx, dup); err != nil {
		t.Fatalf("AddRecord() error = %v", err)
	}
	if _, err := l.AddRecord(ctx, dup); !errors.Is(err, core.ErrConstraintViolation) {
		t.Errorf("duplicate external id error = %v, want ErrConstraintViolation", err)
	}

	missingCategory := input(t, "2024-03-15 18:30:00", "1", core.MethodCash, "")
	missingCategory.CategoryID = 9999
	if _, err := l.AddRecord(ctx, missingCategory); !errors.Is(err, core.ErrConstraintViolation) {
		t.Errorf("unknown category error = %v, want ErrConstraintViolation", err)
	}
}

func TestUpdateRecordRecomputesPeriod(t *testing.T) {
	ctx := context.Background()
	n := &recordingNotifier{}
	l := openLedger(t, n)

	id, err := l.AddRecord(ctx, input(t, "2024-12-30 09:00:00", "10", core.MethodCash, ""))
	if err != nil {
		t.Fatalf("AddRecord() error = %v", err)
	}
	before, _ := l.GetRecord(ctx, id)
	if before.ISOYear != 2025 || before.ISOWeek != 1 {
		t.Fatalf("2024-12-30 period = %+v, want ISO 2025-W01", before.Period)
	}

	if err := l.UpdateRecord(ctx, id, input(t, "2024-03-15 18:30:00", "12", core.MethodWeChat, "")); err != nil {
		t.Fatalf("UpdateRecord() error = %v", err)
	}
	after, err := l.GetRecord(ctx, id)
	if err != nil {
		t.Fatalf("GetRecord() error = %v", err)
	}
	want := core.Period{Year: 2024, Month: 3, ISOWeek: 11, ISOYear: 2024}
	if after.Period != want {
		t.Errorf("period = %+v, want %+v", after.Period, want)
	}
	if !after.Amount.Equal(decimal.NewFromInt(12)) || after.MethodID != core.MethodWeChat {
		t.Errorf("record = %+v", after)
	}

	// created, then one update event for the new month and one for the old.
	if len(n.events) != 3 {
		t.Fatalf("published %d events, want 3", len(n.events))
	}
	if n.events[1].Month != 3 || n.events[2].Month != 12 {
		t.Errorf("update events = %+v, %+v", n.events[1], n.events[2])
	}
}

func TestMissingRecord(t *testing.T) {
	ctx := context.Background()
	n := &recordingNotifier{}
	l := openLedger(t, n)

	if err := l.UpdateRecord(ctx, 999, input(t, "2024-03-15 18:30:00", "1", core.MethodCash, "")); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("UpdateRecord() error = %v, want ErrNotFound", err)
	}
	if err := l.DeleteRecord(ctx, 999); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("DeleteRecord() error = %v, want ErrNotFound", err)
	}
	if len(n.events) != 0 {
		t.Errorf("published %d events for failed writes", len(n.events))
	}

	id, err := l.AddRecord(ctx, input(t, "2024-03-15 18:30:00", "1", core.MethodCash, ""))
	if err != nil {
		t.Fatalf("AddRecord() error = %v", err)
	}
	if err := l.DeleteRecord(ctx, id); err != nil {
		t.Fatalf("DeleteRecord() error = %v", err)
	}
	if _, err := l.GetRecord(ctx, id); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("GetRecord() after delete error = %v", err)
	}
	if last := n.events[len(n.events)-1]; last.Type != amqp.RecordDeleted || last.Month != 3 {
		t.Errorf("last event = %+v", last)
	}
}

func TestNotifierFailureKeepsWrite(t *testing.T) {
	ctx := context.Background()
	l := openLedger(t, &recordingNotifier{err: errors.New("broker down")})

	id, err := l.AddRecord(ctx, input(t, "2024-03-15 18:30:00", "45.50", core.MethodCash, ""))
	if err != nil {
		t.Fatalf("AddRecord() error = %v", err)
	}
	total, err := l.TotalByBucket(ctx, core.MonthBucket(2024, 3), core.Expense)
	if err != nil {
		t.Fatalf("TotalByBucket() error = %v", err)
	}
	if !total.Equal(decimal.RequireFromString("45.50")) {
		t.Errorf("total = %s, want 45.50 (record %d)", total, id)
	}
}

func TestFindRecordIDPrefersLatest(t *testing.T) {
	ctx := context.Background()
	l := openLedger(t, nil)

	first, _ := l.AddRecord(ctx, input(t, "2024-03-15 18:30:00", "1", core.MethodCash, ""))
	second, _ := l.AddRecord(ctx, input(t, "2024-03-15 18:30:00", "2", core.MethodCash, ""))
	if first == second {
		t.Fatal("expected distinct ids")
	}

	ts, _ := core.ParseTimestamp("2024-03-15  18:30:00")
	id, err := l.FindRecordID(ctx, ts, core.Expense)
	if err != nil {
		t.Fatalf("FindRecordID() error = %v", err)
	}
	if id != second {
		t.Errorf("FindRecordID() = %d, want %d", id, second)
	}
	if _, err := l.FindRecordID(ctx, ts, core.Income); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("FindRecordID(income) error = %v, want ErrNotFound", err)
	}
}

func TestImportFilePublishesOnce(t *testing.T) {
	ctx := context.Background()
	n := &recordingNotifier{}
	l := openLedger(t, n)

	content := "交易时间,交易分类,交易对方,对方账号,商品说明,收/支,金额,收/付款方式,交易状态,交易订单号,商家订单号,备注,\n" +
		"2024-03-15 18:30:00,餐饮美食,饭店,,晚饭,支出,45.50,花呗,交易成功,2024031522001,,,\n"
	path := filepath.Join(t.TempDir(), "alipay.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	summary, err := l.ImportFile(ctx, path)
	if err != nil {
		t.Fatalf("ImportFile() error = %v", err)
	}
	if summary.Accepted != 1 {
		t.Fatalf("summary = %+v, want 1 accepted", summary)
	}
	if len(n.events) != 1 || n.events[0].Type != amqp.ImportFinished || n.events[0].RunID != summary.RunID {
		t.Fatalf("events = %+v", n.events)
	}
	if months := n.events[0].StaleMonths(); len(months) != 1 || months[0].Month != 3 {
		t.Errorf("stale months = %v", months)
	}

	run, err := l.ImportRun(ctx, summary.RunID)
	if err != nil {
		t.Fatalf("ImportRun() error = %v", err)
	}
	if run.Accepted != 1 || run.FinishedAt == nil {
		t.Errorf("run = %+v", run)
	}

	again, err := l.ImportFile(ctx, path)
	if err != nil {
		t.Fatalf("second ImportFile() error = %v", err)
	}
	if again.Accepted != 0 || again.Skipped != 1 {
		t.Errorf("second summary = %+v", again)
	}
	if len(n.events) != 1 {
		t.Errorf("re-import published %d events, want none", len(n.events)-1)
	}

	comment, err := l.TopCategoryComment(ctx, core.DayBucket(2024, 3, 15), core.Expense)
	if err != nil {
		t.Fatalf("TopCategoryComment() error = %v", err)
	}
	if comment == "" {
		t.Error("expected a seeded comment for 餐饮美食")
	}
}

func TestReportsThroughLedger(t *testing.T) {
	ctx := context.Background()
	l := openLedger(t, nil)

	ts := time.Date(2024, 3, 15, 18, 30, 0, 0, time.UTC)
	in := Input{Timestamp: ts, Amount: decimal.NewFromInt(20), Kind: core.Income, CategoryID: 52, MethodID: core.MethodWeChat}
	if _, err := l.AddRecord(ctx, in); err != nil {
		t.Fatalf("AddRecord() error = %v", err)
	}

	year, err := l.YearReport(ctx, core.YearBucket(2024), core.Income)
	if err != nil {
		t.Fatalf("YearReport() error = %v", err)
	}
	if !year.AnnuallyIncomeTotal.Equal(decimal.NewFromInt(20)) || !year.MonthlyBars[2].HasRecords {
		t.Errorf("year report = %+v", year)
	}

	day, err := l.DayReport(ctx, core.DayBucket(2024, 3, 15))
	if err != nil {
		t.Fatalf("DayReport() error = %v", err)
	}
	if len(day.Records) != 1 || day.Records[0].Category != "收入" {
		t.Errorf("day report records = %+v", day.Records)
	}

	if _, err := l.WeekReport(ctx, core.MonthBucket(2024, 3), core.Income); !errors.Is(err, core.ErrInvalidBucket) {
		t.Errorf("WeekReport(month bucket) error = %v", err)
	}
}
