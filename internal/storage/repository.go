package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"ledger/internal/core"
)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	dsn     string
}

// NewSQLiteRepository opens (creating if needed) the ledger database at
// dbPath and brings its schema and seed data up to date.
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("%w: create db directory: %v", core.ErrStoreUnavailable, err)
	}

	dsn := dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite database: %v", core.ErrStoreUnavailable, err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: ping database: %v", core.ErrStoreUnavailable, err)
	}

	if err := RunMigrations(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		dsn:     dsn,
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err)
	}
	return nil
}

// SchemaVersion reports the applied migration version of this database.
func (r *SQLiteRepository) SchemaVersion() (uint, error) {
	v, dirty, err := SchemaVersion(r.dsn)
	if err != nil {
		return 0, err
	}
	if dirty {
		return v, fmt.Errorf("%w: schema version %d is dirty", core.ErrStoreUnavailable, v)
	}
	return v, nil
}

// InsertBill stores a record. A record whose external id is already present
// is not inserted again: the existing id is returned with created=false.
func (r *SQLiteRepository) InsertBill(ctx context.Context, rec core.BillRecord) (int64, bool, error) {
	if rec.ExternalID != "" {
		id, err := r.FindBillIDByExternalID(ctx, rec.ExternalID)
		if err == nil {
			return id, false, nil
		}
		if !errors.Is(err, core.ErrNotFound) {
			return 0, false, err
		}
	}

	params, err := billParams(rec)
	if err != nil {
		return 0, false, err
	}
	id, err := r.queries.CreateBill(ctx, params)
	if err != nil {
		return 0, false, fmt.Errorf("create bill: %w", mapError(err))
	}

	slog.DebugContext(ctx, "Bill saved to SQLite",
		"id", id,
		"date", params.TransactionDate,
		"amount_cents", params.AmountCents,
		"type", params.TransactionType)

	return id, true, nil
}

// UpdateBill replaces every column of an existing record. Derived calendar
// fields are recomputed from the new timestamp.
func (r *SQLiteRepository) UpdateBill(ctx context.Context, id int64, rec core.BillRecord) error {
	params, err := billParams(rec)
	if err != nil {
		return err
	}
	n, err := r.queries.UpdateBill(ctx, id, params)
	if err != nil {
		return fmt.Errorf("update bill %d: %w", id, mapError(err))
	}
	if n == 0 {
		return fmt.Errorf("update bill %d: %w", id, core.ErrNotFound)
	}

	slog.InfoContext(ctx, "Bill updated", "id", id, "date", params.TransactionDate)
	return nil
}

func (r *SQLiteRepository) DeleteBill(ctx context.Context, id int64) error {
	n, err := r.queries.DeleteBill(ctx, id)
	if err != nil {
		return fmt.Errorf("delete bill %d: %w", id, mapError(err))
	}
	if n == 0 {
		return fmt.Errorf("delete bill %d: %w", id, core.ErrNotFound)
	}

	slog.InfoContext(ctx, "Bill deleted", "id", id)
	return nil
}

func (r *SQLiteRepository) GetBill(ctx context.Context, id int64) (core.BillRecord, error) {
	row, err := r.queries.GetBill(ctx, id)
	if err != nil {
		return core.BillRecord{}, fmt.Errorf("get bill %d: %w", id, mapError(err))
	}
	return toBillRecord(row)
}

func (r *SQLiteRepository) FindBillIDByExternalID(ctx context.Context, externalID string) (int64, error) {
	id, err := r.queries.GetBillIDBySource(ctx, externalID)
	if err != nil {
		return 0, fmt.Errorf("find bill by source id %q: %w", externalID, mapError(err))
	}
	return id, nil
}

// FindBillIDByTimestampAndKind returns the most recently inserted record at
// exactly ts with the given kind.
func (r *SQLiteRepository) FindBillIDByTimestampAndKind(ctx context.Context, ts time.Time, kind core.Kind) (int64, error) {
	id, err := r.queries.GetLatestBillIDByDate(ctx, core.FormatTimestamp(ts), kind.String())
	if err != nil {
		return 0, fmt.Errorf("find bill at %s: %w", core.FormatTimestamp(ts), mapError(err))
	}
	return id, nil
}

func (r *SQLiteRepository) CategoryID(ctx context.Context, name string, kind core.Kind) (int64, error) {
	id, err := r.queries.GetCategoryID(ctx, name, kind.String())
	if err != nil {
		return 0, fmt.Errorf("get category %q (%s): %w", name, kind, mapError(err))
	}
	return id, nil
}

func (r *SQLiteRepository) Categories(ctx context.Context, kind core.Kind) ([]core.Category, error) {
	rows, err := r.queries.GetCategoriesByType(ctx, kind.String())
	if err != nil {
		return nil, fmt.Errorf("get categories: %w", mapError(err))
	}
	categories := make([]core.Category, len(rows))
	for i, c := range rows {
		categories[i] = core.Category{ID: c.ID, Name: c.Name, Kind: kind}
	}
	return categories, nil
}

func (r *SQLiteRepository) Methods(ctx context.Context) ([]core.Method, error) {
	rows, err := r.queries.GetMethods(ctx)
	if err != nil {
		return nil, fmt.Errorf("get transaction methods: %w", mapError(err))
	}
	methods := make([]core.Method, len(rows))
	for i, m := range rows {
		methods[i] = core.Method{ID: m.ID, Name: m.Name}
	}
	return methods, nil
}

// CommentForCategory returns the first seeded comment of the category, or ""
// when the category has none.
func (r *SQLiteRepository) CommentForCategory(ctx context.Context, name string, kind core.Kind) (string, error) {
	text, err := r.queries.GetFirstComment(ctx, name, kind.String())
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get comment for %q: %w", name, mapError(err))
	}
	return text, nil
}

func (r *SQLiteRepository) SumAmount(ctx context.Context, b core.Bucket, kind core.Kind) (decimal.Decimal, error) {
	filter, args, err := bucketFilter(b, kind)
	if err != nil {
		return decimal.Zero, err
	}
	cents, err := r.queries.SumAmount(ctx, filter, args...)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum amount for %s: %w", b, mapError(err))
	}
	return core.FromCents(cents), nil
}

func (r *SQLiteRepository) ListBills(ctx context.Context, b core.Bucket, kind core.Kind) ([]core.BillRecord, error) {
	filter, args, err := bucketFilter(b, kind)
	if err != nil {
		return nil, err
	}
	rows, err := r.queries.ListBills(ctx, filter, args...)
	if err != nil {
		return nil, fmt.Errorf("list bills for %s: %w", b, mapError(err))
	}
	records := make([]core.BillRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := toBillRecord(row)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func (r *SQLiteRepository) CategorySums(ctx context.Context, b core.Bucket, kind core.Kind) ([]core.CategoryStat, error) {
	filter, args, err := bucketFilter(b, kind)
	if err != nil {
		return nil, err
	}
	rows, err := r.queries.CategorySums(ctx, core.UnknownCategoryName, filter, args...)
	if err != nil {
		return nil, fmt.Errorf("category sums for %s: %w", b, mapError(err))
	}
	stats := make([]core.CategoryStat, len(rows))
	for i, row := range rows {
		stats[i] = core.CategoryStat{
			Name:  row.Name,
			Count: int(row.Count),
			Total: core.FromCents(row.AmountCents),
		}
	}
	return stats, nil
}

// DailySums returns per-day totals for days in [from, to).
func (r *SQLiteRepository) DailySums(ctx context.Context, from, to time.Time) ([]core.DailySum, error) {
	rows, err := r.queries.GetDailySums(ctx, core.FormatTimestamp(from), core.FormatTimestamp(to))
	if err != nil {
		return nil, fmt.Errorf("daily sums: %w", mapError(err))
	}
	sums := make([]core.DailySum, 0, len(rows))
	for _, row := range rows {
		day, err := time.ParseInLocation(core.DateLayout, row.Day, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("parse day %q: %w", row.Day, err)
		}
		kind, err := core.ParseKind(row.TransactionType)
		if err != nil {
			return nil, err
		}
		sums = append(sums, core.DailySum{Date: day, Kind: kind, Total: core.FromCents(row.AmountCents)})
	}
	return sums, nil
}

func (r *SQLiteRepository) MonthlySums(ctx context.Context, year int) ([]core.MonthlySum, error) {
	rows, err := r.queries.GetMonthlySums(ctx, int64(year))
	if err != nil {
		return nil, fmt.Errorf("monthly sums for %d: %w", year, mapError(err))
	}
	sums := make([]core.MonthlySum, 0, len(rows))
	for _, row := range rows {
		kind, err := core.ParseKind(row.TransactionType)
		if err != nil {
			return nil, err
		}
		sums = append(sums, core.MonthlySum{Month: int(row.Month), Kind: kind, Total: core.FromCents(row.AmountCents)})
	}
	return sums, nil
}

func (r *SQLiteRepository) StartImportRun(ctx context.Context, id, path string, startedAt time.Time) error {
	if err := r.queries.CreateImportRun(ctx, id, path, core.FormatTimestamp(startedAt)); err != nil {
		return fmt.Errorf("create import run: %w", mapError(err))
	}
	slog.InfoContext(ctx, "Import run started", "run_id", id, "path", path)
	return nil
}

func (r *SQLiteRepository) FinishImportRun(ctx context.Context, run core.ImportRun) error {
	finished := time.Now().UTC()
	if run.FinishedAt != nil {
		finished = *run.FinishedAt
	}
	n, err := r.queries.FinishImportRun(ctx, FinishImportRunParams{
		ID:         run.ID,
		FinishedAt: core.FormatTimestamp(finished),
		Accepted:   int64(run.Accepted),
		Skipped:    int64(run.Skipped),
		Failed:     int64(run.Failed),
		Error:      run.Error,
	})
	if err != nil {
		return fmt.Errorf("finish import run: %w", mapError(err))
	}
	if n == 0 {
		return fmt.Errorf("finish import run %s: %w", run.ID, core.ErrNotFound)
	}

	slog.InfoContext(ctx, "Import run finished",
		"run_id", run.ID,
		"accepted", run.Accepted,
		"skipped", run.Skipped,
		"failed", run.Failed)
	return nil
}

func (r *SQLiteRepository) GetImportRun(ctx context.Context, id string) (core.ImportRun, error) {
	row, err := r.queries.GetImportRun(ctx, id)
	if err != nil {
		return core.ImportRun{}, fmt.Errorf("get import run %s: %w", id, mapError(err))
	}
	started, err := time.ParseInLocation(core.TimestampLayout, row.StartedAt, time.UTC)
	if err != nil {
		return core.ImportRun{}, fmt.Errorf("parse import run start: %w", err)
	}
	run := core.ImportRun{
		ID:        row.ID,
		Path:      row.Path,
		StartedAt: started,
		Accepted:  int(row.Accepted),
		Skipped:   int(row.Skipped),
		Failed:    int(row.Failed),
		Error:     row.Error,
	}
	if row.FinishedAt.Valid {
		finished, err := time.ParseInLocation(core.TimestampLayout, row.FinishedAt.String, time.UTC)
		if err != nil {
			return core.ImportRun{}, fmt.Errorf("parse import run finish: %w", err)
		}
		run.FinishedAt = &finished
	}
	return run, nil
}

func billParams(rec core.BillRecord) (BillParams, error) {
	if err := rec.Validate(); err != nil {
		return BillParams{}, err
	}
	p, err := core.Decompose(rec.Timestamp)
	if err != nil {
		return BillParams{}, err
	}
	params := BillParams{
		TransactionDate:     core.FormatTimestamp(rec.Timestamp),
		Year:                int64(p.Year),
		Month:               int64(p.Month),
		Week:                int64(p.ISOWeek),
		IsoYear:             int64(p.ISOYear),
		AmountCents:         core.ToCents(rec.Amount),
		TransactionType:     rec.Kind.String(),
		TransactionMethodID: rec.MethodID,
		Counterparty:        rec.Counterparty,
		Description:         rec.Description,
		Remark:              rec.Remark,
	}
	if rec.CategoryID > 0 {
		params.CategoryID = sql.NullInt64{Int64: rec.CategoryID, Valid: true}
	}
	if rec.ExternalID != "" {
		params.SourceID = sql.NullString{String: rec.ExternalID, Valid: true}
	}
	return params, nil
}

func toBillRecord(row BillRecord) (core.BillRecord, error) {
	ts, err := time.ParseInLocation(core.TimestampLayout, row.TransactionDate, time.UTC)
	if err != nil {
		return core.BillRecord{}, fmt.Errorf("parse transaction date %q: %w", row.TransactionDate, err)
	}
	kind, err := core.ParseKind(row.TransactionType)
	if err != nil {
		return core.BillRecord{}, err
	}
	return core.BillRecord{
		ID: row.ID,
		Period: core.Period{
			Year:    int(row.Year),
			Month:   int(row.Month),
			ISOWeek: int(row.Week),
			ISOYear: int(row.IsoYear),
		},
		Timestamp:    ts,
		Amount:       core.FromCents(row.AmountCents),
		Kind:         kind,
		CategoryID:   row.CategoryID.Int64,
		Category:     row.CategoryName,
		MethodID:     row.TransactionMethodID,
		Method:       row.MethodName,
		Counterparty: row.Counterparty,
		Description:  row.Description,
		Remark:       row.Remark,
		ExternalID:   row.SourceID.String,
	}, nil
}

// bucketFilter builds the WHERE fragment selecting one bucket and kind.
func bucketFilter(b core.Bucket, kind core.Kind) (string, []interface{}, error) {
	if err := b.Validate(); err != nil {
		return "", nil, err
	}
	if !kind.Valid() {
		return "", nil, core.ErrInvalidKind
	}
	var (
		filter string
		args   []interface{}
	)
	switch b.Granularity {
	case core.Day:
		from, to := b.Range()
		filter = "b.transaction_date >= ? AND b.transaction_date < ?"
		args = []interface{}{core.FormatTimestamp(from), core.FormatTimestamp(to)}
	case core.Week:
		filter = "b.iso_year = ? AND b.week = ?"
		args = []interface{}{b.Year, b.Week}
	case core.Month:
		filter = "b.year = ? AND b.month = ?"
		args = []interface{}{b.Year, b.Month}
	case core.Year:
		filter = "b.year = ?"
		args = []interface{}{b.Year}
	}
	return filter + " AND b.transaction_type = ?", append(args, kind.String()), nil
}

// mapError translates driver errors into the ledger's sentinel errors.
func mapError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return core.ErrNotFound
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_CONSTRAINT:
			return fmt.Errorf("%w: %v", core.ErrConstraintViolation, err)
		case sqlite3.SQLITE_CANTOPEN, sqlite3.SQLITE_NOTADB, sqlite3.SQLITE_READONLY:
			return fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err)
		}
	}
	if errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err)
	}
	return err
}
