package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"ledger/internal/core"
	"ledger/internal/ledger"
	"ledger/internal/log"
	"ledger/internal/sheets"
	"ledger/internal/sheets/memory"
	"ledger/internal/worker"
)

type exporter = sheets.MonthExporter

type app struct {
	ledger      *ledger.Ledger
	out         io.Writer
	newExporter func(ctx context.Context) (exporter, error)
}

func (a *app) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("missing command")
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "import":
		return a.importFiles(ctx, rest)
	case "add":
		return a.add(ctx, rest)
	case "update":
		return a.update(ctx, rest)
	case "delete":
		return a.delete(ctx, rest)
	case "report":
		return a.report(ctx, rest)
	case "export":
		return a.export(ctx, rest)
	case "categories":
		return a.categories(ctx, rest)
	}
	return fmt.Errorf("unknown command %q", cmd)
}

func (a *app) importFiles(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("import: no files given")
	}

	logger := log.FromContext(ctx)
	var errs []error
	for _, path := range fs.Args() {
		summary, err := a.ledger.ImportFile(ctx, path)
		fields := log.NewFields().
			WithOperation(log.OpImport).
			WithImport(summary.RunID, summary.Accepted, summary.Skipped, summary.Failed).
			WithError(err)
		fields[log.FieldPath] = path
		if err != nil {
			logger.ErrorContext(ctx, "Import failed", fields.ToSlice()...)
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		logger.InfoContext(ctx, "Imported file", fields.ToSlice()...)
		if err := a.print(summary); err != nil {
			return err
		}
	}
	return errors.Join(errs...)
}

// recordFlags are the editable fields shared by add and update.
type recordFlags struct {
	at           string
	amount       string
	kind         string
	category     string
	method       string
	counterparty string
	description  string
	remark       string
	externalID   string
}

func (r *recordFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&r.at, "time", "", "transaction time, e.g. \"2024-03-15 18:30:00\"")
	fs.StringVar(&r.amount, "amount", "", "non-negative amount, e.g. 45.50")
	fs.StringVar(&r.kind, "kind", "expense", "income or expense")
	fs.StringVar(&r.category, "category", "", "category name or id")
	fs.StringVar(&r.method, "method", "cash", "transaction method name or id")
	fs.StringVar(&r.counterparty, "counterparty", "", "counterparty")
	fs.StringVar(&r.description, "desc", "", "product description")
	fs.StringVar(&r.remark, "remark", "", "free-text remark")
	fs.StringVar(&r.externalID, "external-id", "", "external order number (ignored for cash)")
}

func (a *app) input(ctx context.Context, r recordFlags) (ledger.Input, error) {
	ts, err := core.ParseTimestamp(r.at)
	if err != nil {
		return ledger.Input{}, err
	}
	amount, err := core.ParseAmount(r.amount)
	if err != nil {
		return ledger.Input{}, err
	}
	kind, err := core.ParseKind(r.kind)
	if err != nil {
		return ledger.Input{}, err
	}

	in := ledger.Input{
		Timestamp:    ts,
		Amount:       amount,
		Kind:         kind,
		Counterparty: r.counterparty,
		Description:  r.description,
		Remark:       r.remark,
		ExternalID:   r.externalID,
	}
	if r.category != "" {
		cats, err := a.ledger.Categories(ctx, kind)
		if err != nil {
			return ledger.Input{}, err
		}
		if in.CategoryID, err = resolveCategory(cats, r.category); err != nil {
			return ledger.Input{}, err
		}
	}
	methods, err := a.ledger.Methods(ctx)
	if err != nil {
		return ledger.Input{}, err
	}
	if in.MethodID, err = resolveMethod(methods, r.method); err != nil {
		return ledger.Input{}, err
	}
	return in, nil
}

func (a *app) add(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	var r recordFlags
	r.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	in, err := a.input(ctx, r)
	if err != nil {
		return err
	}
	id, err := a.ledger.AddRecord(ctx, in)
	if err != nil {
		return err
	}
	logRecord(ctx, "Added record", log.OpCreate, id, in)
	return a.print(map[string]int64{"id": id})
}

// target identifies an existing record by id or by its displayed timestamp.
type target struct {
	id     int64
	at     string
	atKind string
}

func (t *target) register(fs *flag.FlagSet) {
	fs.Int64Var(&t.id, "id", 0, "record id")
	fs.StringVar(&t.at, "at", "", "find the record by its timestamp instead of -id")
	fs.StringVar(&t.atKind, "at-kind", "expense", "kind of the record found with -at")
}

func (a *app) resolve(ctx context.Context, t target) (int64, error) {
	if t.id > 0 {
		return t.id, nil
	}
	if t.at == "" {
		return 0, errors.New("either -id or -at is required")
	}
	ts, err := core.ParseTimestamp(t.at)
	if err != nil {
		return 0, err
	}
	kind, err := core.ParseKind(t.atKind)
	if err != nil {
		return 0, err
	}
	return a.ledger.FindRecordID(ctx, ts, kind)
}

func (a *app) update(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("update", flag.ContinueOnError)
	var (
		t target
		r recordFlags
	)
	t.register(fs)
	r.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := a.resolve(ctx, t)
	if err != nil {
		return err
	}
	in, err := a.input(ctx, r)
	if err != nil {
		return err
	}
	if err := a.ledger.UpdateRecord(ctx, id, in); err != nil {
		return err
	}
	logRecord(ctx, "Updated record", log.OpUpdate, id, in)
	rec, err := a.ledger.GetRecord(ctx, id)
	if err != nil {
		return err
	}
	return a.print(rec)
}

func (a *app) delete(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	var t target
	t.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := a.resolve(ctx, t)
	if err != nil {
		return err
	}
	if err := a.ledger.DeleteRecord(ctx, id); err != nil {
		return err
	}
	return a.print(map[string]int64{"deleted": id})
}

// bucketSummary is the flat view of a bucket printed by report -summary.
type bucketSummary struct {
	Bucket     string              `json:"bucket"`
	Type       core.Kind           `json:"type"`
	Total      decimal.Decimal     `json:"total"`
	Records    []core.BillRecord   `json:"records"`
	Categories []core.CategoryStat `json:"categories"`
	Comment    string              `json:"comment"`
}

func (a *app) report(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	granularity := fs.String("granularity", "month", "day, week, month or year")
	date := fs.String("date", time.Now().Format(core.DateLayout), "any day inside the bucket, YYYY-MM-DD")
	kindName := fs.String("kind", "expense", "income or expense")
	summary := fs.Bool("summary", false, "print totals, records, categories and comment instead of the full report")
	if err := fs.Parse(args); err != nil {
		return err
	}

	b, kind, err := parseBucket(*granularity, *date, *kindName)
	if err != nil {
		return err
	}
	if *summary {
		return a.summary(ctx, b, kind)
	}

	var report any
	switch b.Granularity {
	case core.Day:
		report, err = a.ledger.DayReport(ctx, b)
	case core.Week:
		report, err = a.ledger.WeekReport(ctx, b, kind)
	case core.Month:
		report, err = a.ledger.MonthReport(ctx, b, kind)
	case core.Year:
		report, err = a.ledger.YearReport(ctx, b, kind)
	}
	if err != nil {
		return err
	}
	return a.print(report)
}

func (a *app) summary(ctx context.Context, b core.Bucket, kind core.Kind) error {
	s := bucketSummary{Bucket: b.String(), Type: kind}
	var err error
	if s.Total, err = a.ledger.TotalByBucket(ctx, b, kind); err != nil {
		return err
	}
	if s.Records, err = a.ledger.RecordsByBucket(ctx, b, kind); err != nil {
		return err
	}
	if s.Categories, err = a.ledger.CategoryStatsByBucket(ctx, b, kind); err != nil {
		return err
	}
	if s.Comment, err = a.ledger.TopCategoryComment(ctx, b, kind); err != nil {
		return err
	}
	return a.print(s)
}

func (a *app) export(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	month := fs.String("month", time.Now().Format("2006-01"), "month to export, YYYY-MM")
	if err := fs.Parse(args); err != nil {
		return err
	}
	ym, err := parseYearMonth(*month)
	if err != nil {
		return err
	}

	exp, err := a.newExporter(ctx)
	if err != nil {
		return err
	}
	if err := worker.NewExportWorker(a.ledger, exp).ExportMonth(ctx, ym); err != nil {
		return err
	}
	// Without a spreadsheet the export is printed instead.
	if store, ok := exp.(*memory.Store); ok {
		export, _ := store.Get(ym)
		return a.print(export)
	}
	return nil
}

func (a *app) categories(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("categories", flag.ContinueOnError)
	kindName := fs.String("kind", "expense", "income or expense")
	if err := fs.Parse(args); err != nil {
		return err
	}
	kind, err := core.ParseKind(*kindName)
	if err != nil {
		return err
	}
	cats, err := a.ledger.Categories(ctx, kind)
	if err != nil {
		return err
	}
	methods, err := a.ledger.Methods(ctx)
	if err != nil {
		return err
	}
	return a.print(map[string]any{"categories": cats, "methods": methods})
}

func logRecord(ctx context.Context, msg, op string, id int64, in ledger.Input) {
	fields := log.NewFields().
		WithOperation(op).
		WithRecord(id, in.Kind.String(), core.ToCents(in.Amount))
	log.FromContext(ctx).InfoContext(ctx, msg, fields.ToSlice()...)
}

func (a *app) print(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseBucket(granularity, date, kindName string) (core.Bucket, core.Kind, error) {
	g, err := core.ParseGranularity(granularity)
	if err != nil {
		return core.Bucket{}, 0, err
	}
	day, err := time.ParseInLocation(core.DateLayout, strings.TrimSpace(date), time.UTC)
	if err != nil {
		return core.Bucket{}, 0, fmt.Errorf("%w: date %q", core.ErrInvalidBucket, date)
	}
	kind, err := core.ParseKind(kindName)
	if err != nil {
		return core.Bucket{}, 0, err
	}
	return core.BucketOf(g, day), kind, nil
}

func parseYearMonth(s string) (core.YearMonth, error) {
	t, err := time.Parse("2006-01", strings.TrimSpace(s))
	if err != nil {
		return core.YearMonth{}, fmt.Errorf("%w: month %q", core.ErrInvalidBucket, s)
	}
	return core.YearMonth{Year: t.Year(), Month: int(t.Month())}, nil
}

// resolveCategory accepts a category id or name.
func resolveCategory(cats []core.Category, value string) (int64, error) {
	value = strings.TrimSpace(value)
	id, idErr := strconv.ParseInt(value, 10, 64)
	for _, c := range cats {
		if c.Name == value || (idErr == nil && c.ID == id) {
			return c.ID, nil
		}
	}
	return 0, fmt.Errorf("category %q: %w", value, core.ErrNotFound)
}

// resolveMethod accepts a method id or name, case-insensitively.
func resolveMethod(methods []core.Method, value string) (int64, error) {
	value = strings.TrimSpace(value)
	id, idErr := strconv.ParseInt(value, 10, 64)
	for _, m := range methods {
		if strings.EqualFold(m.Name, value) || (idErr == nil && m.ID == id) {
			return m.ID, nil
		}
	}
	return 0, fmt.Errorf("transaction method %q: %w", value, core.ErrNotFound)
}
