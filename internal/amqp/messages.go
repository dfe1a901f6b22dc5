package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"ledger/internal/core"
)

// EventType names what changed in the ledger.
type EventType string

const (
	RecordCreated  EventType = "record.created"
	RecordUpdated  EventType = "record.updated"
	RecordDeleted  EventType = "record.deleted"
	ImportFinished EventType = "import.finished"
)

// LedgerEvent is published after a successful ledger write. Record events
// name the affected month in Year and Month; import events list every month
// that received records in Months.
type LedgerEvent struct {
	Type      EventType        `json:"type"`
	RecordID  int64            `json:"recordId,omitempty"`
	Year      int              `json:"year,omitempty"`
	Month     int              `json:"month,omitempty"`
	RunID     string           `json:"runId,omitempty"`
	Months    []core.YearMonth `json:"months,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// StaleMonths returns the months whose exports the event invalidates.
func (e *LedgerEvent) StaleMonths() []core.YearMonth {
	if e.Type == ImportFinished {
		return e.Months
	}
	if e.Year == 0 || e.Month == 0 {
		return nil
	}
	return []core.YearMonth{{Year: e.Year, Month: e.Month}}
}

func NewRecordEvent(t EventType, id int64, year, month int) *LedgerEvent {
	return &LedgerEvent{
		Type:      t,
		RecordID:  id,
		Year:      year,
		Month:     month,
		Timestamp: time.Now().UTC(),
	}
}

func NewImportEvent(runID string, months []core.YearMonth) *LedgerEvent {
	return &LedgerEvent{
		Type:      ImportFinished,
		RunID:     runID,
		Months:    months,
		Timestamp: time.Now().UTC(),
	}
}

func (e *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var e LedgerEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	switch e.Type {
	case RecordCreated, RecordUpdated, RecordDeleted, ImportFinished:
	default:
		return nil, fmt.Errorf("unknown event type %q", e.Type)
	}
	return &e, nil
}
