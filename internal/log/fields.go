package log

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldOperation   = "operation"
	FieldError       = "error"
	FieldRecordID    = "record_id"
	FieldRunID       = "run_id"
	FieldPath        = "path"
	FieldLine        = "line"
	FieldReason      = "reason"
	FieldYear        = "year"
	FieldMonth       = "month"
	FieldBucket      = "bucket"
	FieldKind        = "kind"
	FieldAmountCents = "amount_cents"
	FieldAccepted    = "accepted"
	FieldSkipped     = "skipped"
	FieldFailed      = "failed"
	FieldDuration    = "duration_ms"
	FieldSheetsRef   = "sheets_ref"
)

// Component names
const (
	ComponentApp      = "app"
	ComponentLedger   = "ledger"
	ComponentImporter = "importer"
	ComponentStorage  = "storage"
	ComponentStats    = "stats"
	ComponentAMQP     = "amqp"
	ComponentWorker   = "worker"
	ComponentSheets   = "sheets"
	ComponentCLI      = "cli"
)

// Operations
const (
	OpCreate   = "create"
	OpRead     = "read"
	OpUpdate   = "update"
	OpDelete   = "delete"
	OpImport   = "import"
	OpReport   = "report"
	OpExport   = "export"
	OpPublish  = "publish"
	OpShutdown = "shutdown"
	OpStartup  = "startup"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithRecord adds the identifying fields of a bill record.
func (f LogFields) WithRecord(id int64, kind string, amountCents int64) LogFields {
	f[FieldRecordID] = id
	f[FieldKind] = kind
	f[FieldAmountCents] = amountCents
	return f
}

// WithImport adds the counters of an import run.
func (f LogFields) WithImport(runID string, accepted, skipped, failed int) LogFields {
	f[FieldRunID] = runID
	f[FieldAccepted] = accepted
	f[FieldSkipped] = skipped
	f[FieldFailed] = failed
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
