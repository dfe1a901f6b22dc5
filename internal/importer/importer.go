// Package importer loads Alipay transaction exports into the ledger.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/encoding"

	"ledger/internal/cache"
	"ledger/internal/core"
)

// SkipReason says why a data row was not imported.
type SkipReason string

const (
	SkipNoMethod  SkipReason = "no_method"
	SkipStatus    SkipReason = "status"
	SkipDirection SkipReason = "direction"
	SkipTimestamp SkipReason = "timestamp"
	SkipDuplicate SkipReason = "duplicate"
	SkipMalformed SkipReason = "malformed_row"
)

// Store is the part of the ledger store the importer writes to.
type Store interface {
	InsertBill(ctx context.Context, rec core.BillRecord) (int64, bool, error)
	CategoryID(ctx context.Context, name string, kind core.Kind) (int64, error)
	StartImportRun(ctx context.Context, id, path string, startedAt time.Time) error
	FinishImportRun(ctx context.Context, run core.ImportRun) error
}

// Summary counts the outcome of one import. Every data row after the header
// is counted exactly once in Accepted, Skipped or Failed.
type Summary struct {
	RunID    string             `json:"runId"`
	Accepted int                `json:"accepted"`
	Skipped  int                `json:"skipped"`
	Failed   int                `json:"failed"`
	Skips    map[SkipReason]int `json:"skips,omitempty"`
	// Months lists the months that received records, oldest first.
	Months []core.YearMonth `json:"months,omitempty"`
}

func (s *Summary) skip(reason SkipReason) {
	s.Skipped++
	if s.Skips == nil {
		s.Skips = make(map[SkipReason]int)
	}
	s.Skips[reason]++
}

func (s *Summary) touch(p core.Period) {
	ym := core.YearMonth{Year: p.Year, Month: p.Month}
	for _, m := range s.Months {
		if m == ym {
			return
		}
	}
	s.Months = append(s.Months, ym)
	sort.Slice(s.Months, func(i, j int) bool { return s.Months[i].Before(s.Months[j]) })
}

type Options struct {
	Encoding  string
	CacheSize int
	CacheTTL  time.Duration
}

type categoryKey struct {
	name string
	kind core.Kind
}

type Importer struct {
	store      Store
	enc        encoding.Encoding
	categories cache.Cache[categoryKey, int64]
	now        func() time.Time
	newID      func() string
}

func New(store Store, opts Options) (*Importer, error) {
	enc, err := Encoding(opts.Encoding)
	if err != nil {
		return nil, err
	}
	size := opts.CacheSize
	if size <= 0 {
		size = 2 * len(core.CategoryNames)
	}
	return &Importer{
		store:      store,
		enc:        enc,
		categories: cache.NewLRU[categoryKey, int64](size, opts.CacheTTL),
		now:        func() time.Time { return time.Now().UTC() },
		newID:      uuid.NewString,
	}, nil
}

// ImportFile imports every accepted row of the export at path. Only
// file-level problems are returned: core.ErrFileUnreadable and
// core.ErrEncoding. Row problems are counted in the summary. Importing the
// same file twice inserts nothing the second time.
func (im *Importer) ImportFile(ctx context.Context, path string) (Summary, error) {
	summary := Summary{RunID: im.newID()}
	started := im.now()
	if n := im.categories.CleanExpired(); n > 0 {
		slog.DebugContext(ctx, "Dropped expired category ids", "count", n)
	}
	if err := im.store.StartImportRun(ctx, summary.RunID, path, started); err != nil {
		slog.WarnContext(ctx, "Failed to record import run start", "run_id", summary.RunID, "error", err)
	}

	summary, err := im.importFile(ctx, path, summary)

	finished := im.now()
	run := core.ImportRun{
		ID:         summary.RunID,
		Path:       path,
		StartedAt:  started,
		FinishedAt: &finished,
		Accepted:   summary.Accepted,
		Skipped:    summary.Skipped,
		Failed:     summary.Failed,
	}
	if err != nil {
		run.Error = err.Error()
	}
	if ferr := im.store.FinishImportRun(ctx, run); ferr != nil {
		slog.WarnContext(ctx, "Failed to record import run result", "run_id", summary.RunID, "error", ferr)
	}

	if err != nil {
		slog.ErrorContext(ctx, "Import aborted", "run_id", summary.RunID, "path", path, "error", err)
		return summary, err
	}
	cached := im.categories.Stats()
	slog.InfoContext(ctx, "Import finished",
		"run_id", summary.RunID,
		"path", path,
		"accepted", summary.Accepted,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
		"category_cache_entries", im.categories.Len(),
		"category_cache_hit_ratio", cached.HitRatio(),
		"category_cache_evictions", cached.Evictions,
		"duration_ms", finished.Sub(started).Milliseconds())
	return summary, nil
}

func (im *Importer) importFile(ctx context.Context, path string, summary Summary) (Summary, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return summary, fmt.Errorf("%w: %v", core.ErrFileUnreadable, err)
	}
	lines, err := decodeLines(raw, im.enc)
	if err != nil {
		return summary, err
	}

	var h *header
	for _, l := range lines {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if h == nil {
			if isHeader(l.text) {
				parsed := parseHeader(l.text)
				h = &parsed
			}
			continue
		}
		if trimCell(l.text) == "" {
			continue
		}
		im.importLine(ctx, *h, l, &summary)
	}
	if h == nil {
		slog.WarnContext(ctx, "No header row found", "path", path)
	}
	return summary, nil
}

func (im *Importer) importLine(ctx context.Context, h header, l line, summary *Summary) {
	r, ok := h.splitRow(l.text)
	if !ok {
		slog.DebugContext(ctx, "Skipping malformed row", "line", l.number)
		summary.skip(SkipMalformed)
		return
	}
	if r.get(colMethod) == "" {
		summary.skip(SkipNoMethod)
		return
	}
	if !succeededStatuses[r.get(colStatus)] {
		summary.skip(SkipStatus)
		return
	}

	var kind core.Kind
	switch r.get(colDirection) {
	case "收入":
		kind = core.Income
	case "支出":
		kind = core.Expense
	default:
		summary.skip(SkipDirection)
		return
	}

	ts, err := core.ParseTimestamp(r.get(colTimestamp))
	if err != nil {
		slog.WarnContext(ctx, "Skipping row with unparseable timestamp", "line", l.number, "value", r.get(colTimestamp))
		summary.skip(SkipTimestamp)
		return
	}
	period, err := core.Decompose(ts)
	if err != nil {
		summary.skip(SkipTimestamp)
		return
	}

	amount, err := core.ParseAmount(r.get(colAmount))
	if err != nil {
		slog.WarnContext(ctx, "Row has invalid amount", "line", l.number, "value", r.get(colAmount))
		summary.Failed++
		return
	}

	categoryID, err := im.categoryID(ctx, r.get(colCategory), kind)
	if err != nil {
		slog.WarnContext(ctx, "Category lookup failed", "line", l.number, "error", err)
		summary.Failed++
		return
	}

	rec := core.BillRecord{
		Period:       period,
		Timestamp:    ts,
		Amount:       amount,
		Kind:         kind,
		CategoryID:   categoryID,
		MethodID:     core.MethodAlipay,
		Counterparty: r.get(colCounterparty),
		Description:  r.get(colDescription),
		Remark:       r.get(colRemark),
		ExternalID:   digitsOnly(r.get(colOrderNo)),
	}
	_, created, err := im.store.InsertBill(ctx, rec)
	if err != nil {
		slog.WarnContext(ctx, "Failed to store row", "line", l.number, "error", err)
		if errors.Is(err, core.ErrConstraintViolation) {
			// The memoized category id may no longer exist.
			im.categories.Delete(categoryKey{name: r.get(colCategory), kind: kind})
		}
		summary.Failed++
		return
	}
	if !created {
		summary.skip(SkipDuplicate)
		return
	}
	summary.Accepted++
	summary.touch(period)
}

// categoryID resolves (name, kind), falling back to the unknown category of
// the same kind when the export uses a name outside the catalog.
func (im *Importer) categoryID(ctx context.Context, name string, kind core.Kind) (int64, error) {
	key := categoryKey{name: name, kind: kind}
	if id, ok := im.categories.Get(key); ok {
		return id, nil
	}

	id, err := im.store.CategoryID(ctx, name, kind)
	if errors.Is(err, core.ErrNotFound) && name != core.UnknownCategoryName {
		slog.DebugContext(ctx, "Unknown category, using fallback", "category", name, "kind", kind.String())
		id, err = im.categoryID(ctx, core.UnknownCategoryName, kind)
	}
	if err != nil {
		return 0, err
	}
	im.categories.Set(key, id)
	return id, nil
}
