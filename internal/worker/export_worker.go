// Package worker keeps spreadsheet exports in step with the ledger.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"ledger/internal/amqp"
	"ledger/internal/core"
	"ledger/internal/sheets"
)

// ExportWorker re-exports months touched by ledger events. Months whose export
// fails stay pending until a later FlushPending succeeds.
type ExportWorker struct {
	source   sheets.MonthSource
	exporter sheets.MonthExporter
	now      func() time.Time

	mu      sync.Mutex
	pending map[core.YearMonth]struct{}
}

func NewExportWorker(source sheets.MonthSource, exporter sheets.MonthExporter) *ExportWorker {
	return &ExportWorker{
		source:   source,
		exporter: exporter,
		now:      time.Now,
		pending:  make(map[core.YearMonth]struct{}),
	}
}

// HandleEvent processes a single ledger event from AMQP. A returned error
// requeues the message.
func (w *ExportWorker) HandleEvent(ctx context.Context, e *amqp.LedgerEvent) error {
	months := e.StaleMonths()
	slog.InfoContext(ctx, "Processing ledger event",
		"type", e.Type,
		"record_id", e.RecordID,
		"run_id", e.RunID,
		"months", len(months))

	var errs []error
	for _, m := range months {
		if err := w.ExportMonth(ctx, m); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ExportMonth writes a fresh copy of month m.
func (w *ExportWorker) ExportMonth(ctx context.Context, m core.YearMonth) error {
	export, err := sheets.Collect(ctx, w.source, m)
	if err == nil {
		err = w.exporter.ExportMonth(ctx, export)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		w.pending[m] = struct{}{}
		slog.ErrorContext(ctx, "Failed to export month", "year", m.Year, "month", m.Month, "error", err)
		return fmt.Errorf("export %04d-%02d: %w", m.Year, m.Month, err)
	}
	delete(w.pending, m)
	slog.InfoContext(ctx, "Exported month", "year", m.Year, "month", m.Month, "records", len(export.Records))
	return nil
}

// Pending lists months waiting for a retry, oldest first.
func (w *ExportWorker) Pending() []core.YearMonth {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]core.YearMonth, 0, len(w.pending))
	for m := range w.pending {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// FlushPending retries every pending month. This is the backup path for
// events whose export failed.
func (w *ExportWorker) FlushPending(ctx context.Context) error {
	pending := w.Pending()
	if len(pending) == 0 {
		return nil
	}
	slog.InfoContext(ctx, "Retrying pending month exports", "count", len(pending))

	var errs []error
	for _, m := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.ExportMonth(ctx, m); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// StartupExport exports the current month so a worker that missed events
// while down starts from a fresh copy.
func (w *ExportWorker) StartupExport(ctx context.Context) error {
	now := w.now()
	return w.ExportMonth(ctx, core.YearMonth{Year: now.Year(), Month: int(now.Month())})
}

// Run retries pending exports every interval until ctx is done.
func (w *ExportWorker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.FlushPending(ctx); err != nil {
				slog.ErrorContext(ctx, "Periodic export retry failed", "error", err)
			}
		}
	}
}
