// Package ledger is the single entry point to the bookkeeping core. A Ledger
// owns the one store handle of the process and composes the importer and the
// statistics engine on top of it.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"ledger/internal/amqp"
	"ledger/internal/core"
	"ledger/internal/importer"
	"ledger/internal/stats"
	"ledger/internal/storage"
)

// Notifier receives an event after every successful write.
type Notifier interface {
	PublishLedgerEvent(ctx context.Context, event *amqp.LedgerEvent) error
}

type Options struct {
	DBPath   string
	Importer importer.Options
	Notifier Notifier
}

// Input carries the caller-editable fields of a record. Calendar fields are
// always derived from Timestamp.
type Input struct {
	Timestamp    time.Time
	Amount       decimal.Decimal
	Kind         core.Kind
	CategoryID   int64
	MethodID     int64
	Counterparty string
	Description  string
	Remark       string
	ExternalID   string
}

type Ledger struct {
	opts     Options
	repo     *storage.SQLiteRepository
	importer *importer.Importer
	engine   *stats.Engine
}

func New(opts Options) *Ledger {
	return &Ledger{opts: opts}
}

// Open opens the store and prepares the importer and statistics engine.
// Calling Open on an open ledger does nothing.
func (l *Ledger) Open(ctx context.Context) error {
	if l.IsReady() {
		return nil
	}
	repo, err := storage.NewSQLiteRepository(l.opts.DBPath)
	if err != nil {
		return err
	}
	version, err := repo.SchemaVersion()
	if err != nil {
		repo.Close()
		return err
	}
	im, err := importer.New(repo, l.opts.Importer)
	if err != nil {
		repo.Close()
		return err
	}
	l.repo = repo
	l.importer = im
	l.engine = stats.NewEngine(repo)

	slog.InfoContext(ctx, "Ledger opened", "path", l.opts.DBPath, "schema_version", version)
	return nil
}

func (l *Ledger) Close() error {
	if l.repo == nil {
		return nil
	}
	err := l.repo.Close()
	l.repo, l.importer, l.engine = nil, nil, nil
	if err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	return nil
}

func (l *Ledger) IsReady() bool {
	return l.repo != nil
}

func (l *Ledger) ready() error {
	if !l.IsReady() {
		return fmt.Errorf("%w: ledger is not open", core.ErrStoreUnavailable)
	}
	return nil
}

// AddRecord stores a manually entered record and returns its id. An external
// id that is already recorded fails with core.ErrConstraintViolation.
func (l *Ledger) AddRecord(ctx context.Context, in Input) (int64, error) {
	if err := l.ready(); err != nil {
		return 0, err
	}
	rec, err := in.record()
	if err != nil {
		return 0, err
	}
	id, created, err := l.repo.InsertBill(ctx, rec)
	if err != nil {
		return 0, fmt.Errorf("add record: %w", err)
	}
	if !created {
		return 0, fmt.Errorf("add record: %w: external id %q is already recorded as %d",
			core.ErrConstraintViolation, rec.ExternalID, id)
	}

	l.publish(ctx, amqp.NewRecordEvent(amqp.RecordCreated, id, rec.Year, rec.Month))
	return id, nil
}

// UpdateRecord replaces record id with in and recomputes its calendar fields.
func (l *Ledger) UpdateRecord(ctx context.Context, id int64, in Input) error {
	if err := l.ready(); err != nil {
		return err
	}
	rec, err := in.record()
	if err != nil {
		return err
	}
	old, err := l.repo.GetBill(ctx, id)
	if err != nil {
		return fmt.Errorf("update record: %w", err)
	}
	if err := l.repo.UpdateBill(ctx, id, rec); err != nil {
		return fmt.Errorf("update record: %w", err)
	}

	l.publish(ctx, amqp.NewRecordEvent(amqp.RecordUpdated, id, rec.Year, rec.Month))
	if old.Year != rec.Year || old.Month != rec.Month {
		l.publish(ctx, amqp.NewRecordEvent(amqp.RecordUpdated, id, old.Year, old.Month))
	}
	return nil
}

func (l *Ledger) DeleteRecord(ctx context.Context, id int64) error {
	if err := l.ready(); err != nil {
		return err
	}
	old, err := l.repo.GetBill(ctx, id)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	if err := l.repo.DeleteBill(ctx, id); err != nil {
		return fmt.Errorf("delete record: %w", err)
	}

	l.publish(ctx, amqp.NewRecordEvent(amqp.RecordDeleted, id, old.Year, old.Month))
	return nil
}

// ImportFile imports an Alipay export. See importer.Importer.ImportFile.
func (l *Ledger) ImportFile(ctx context.Context, path string) (importer.Summary, error) {
	if err := l.ready(); err != nil {
		return importer.Summary{}, err
	}
	summary, err := l.importer.ImportFile(ctx, path)
	if err != nil {
		return summary, err
	}
	if summary.Accepted > 0 {
		l.publish(ctx, amqp.NewImportEvent(summary.RunID, summary.Months))
	}
	return summary, nil
}

func (l *Ledger) GetRecord(ctx context.Context, id int64) (core.BillRecord, error) {
	if err := l.ready(); err != nil {
		return core.BillRecord{}, err
	}
	return l.repo.GetBill(ctx, id)
}

// FindRecordID resolves a displayed timestamp to a record id. When several
// records share the timestamp and kind, the most recently inserted one wins.
func (l *Ledger) FindRecordID(ctx context.Context, ts time.Time, kind core.Kind) (int64, error) {
	if err := l.ready(); err != nil {
		return 0, err
	}
	if !kind.Valid() {
		return 0, fmt.Errorf("%w: %d", core.ErrInvalidKind, kind)
	}
	return l.repo.FindBillIDByTimestampAndKind(ctx, ts, kind)
}

func (l *Ledger) ImportRun(ctx context.Context, id string) (core.ImportRun, error) {
	if err := l.ready(); err != nil {
		return core.ImportRun{}, err
	}
	return l.repo.GetImportRun(ctx, id)
}

func (l *Ledger) TotalByBucket(ctx context.Context, b core.Bucket, kind core.Kind) (decimal.Decimal, error) {
	if err := l.ready(); err != nil {
		return decimal.Zero, err
	}
	return l.engine.TotalByBucket(ctx, b, kind)
}

func (l *Ledger) RecordsByBucket(ctx context.Context, b core.Bucket, kind core.Kind) ([]core.BillRecord, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	return l.engine.RecordsByBucket(ctx, b, kind)
}

func (l *Ledger) CategoryStatsByBucket(ctx context.Context, b core.Bucket, kind core.Kind) ([]core.CategoryStat, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	return l.engine.CategoryStatsByBucket(ctx, b, kind)
}

func (l *Ledger) TopCategoryComment(ctx context.Context, b core.Bucket, kind core.Kind) (string, error) {
	if err := l.ready(); err != nil {
		return "", err
	}
	return l.engine.TopCategoryComment(ctx, b, kind)
}

func (l *Ledger) DayReport(ctx context.Context, b core.Bucket) (stats.DayReport, error) {
	if err := l.ready(); err != nil {
		return stats.DayReport{}, err
	}
	return l.engine.DayReport(ctx, b)
}

func (l *Ledger) WeekReport(ctx context.Context, b core.Bucket, kind core.Kind) (stats.WeekReport, error) {
	if err := l.ready(); err != nil {
		return stats.WeekReport{}, err
	}
	return l.engine.WeekReport(ctx, b, kind)
}

func (l *Ledger) MonthReport(ctx context.Context, b core.Bucket, kind core.Kind) (stats.MonthReport, error) {
	if err := l.ready(); err != nil {
		return stats.MonthReport{}, err
	}
	return l.engine.MonthReport(ctx, b, kind)
}

func (l *Ledger) YearReport(ctx context.Context, b core.Bucket, kind core.Kind) (stats.YearReport, error) {
	if err := l.ready(); err != nil {
		return stats.YearReport{}, err
	}
	return l.engine.YearReport(ctx, b, kind)
}

func (l *Ledger) Categories(ctx context.Context, kind core.Kind) ([]core.Category, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	return l.repo.Categories(ctx, kind)
}

func (l *Ledger) Methods(ctx context.Context) ([]core.Method, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	return l.repo.Methods(ctx)
}

// publish never fails the write that triggered it.
func (l *Ledger) publish(ctx context.Context, event *amqp.LedgerEvent) {
	if l.opts.Notifier == nil {
		slog.DebugContext(ctx, "No notifier configured, skipping ledger event", "type", event.Type)
		return
	}
	if err := l.opts.Notifier.PublishLedgerEvent(ctx, event); err != nil {
		slog.ErrorContext(ctx, "Failed to publish ledger event",
			"type", event.Type,
			"record_id", event.RecordID,
			"error", err)
	}
}

// record builds the stored form of in. Cash records never carry an external
// id.
func (in Input) record() (core.BillRecord, error) {
	period, err := core.Decompose(in.Timestamp)
	if err != nil {
		return core.BillRecord{}, err
	}
	rec := core.BillRecord{
		Period:       period,
		Timestamp:    in.Timestamp,
		Amount:       in.Amount,
		Kind:         in.Kind,
		CategoryID:   in.CategoryID,
		MethodID:     in.MethodID,
		Counterparty: in.Counterparty,
		Description:  in.Description,
		Remark:       in.Remark,
		ExternalID:   in.ExternalID,
	}
	if rec.MethodID == core.MethodCash {
		rec.ExternalID = ""
	}
	if err := rec.Validate(); err != nil {
		return core.BillRecord{}, fmt.Errorf("invalid record: %w", err)
	}
	return rec, nil
}
