// Package memory keeps month exports in process. It stands in for the Google
// Sheets exporter when no spreadsheet is configured.
package memory

import (
	"context"
	"sort"
	"sync"

	"ledger/internal/core"
	"ledger/internal/sheets"
)

type Store struct {
	mu      sync.Mutex
	exports map[core.YearMonth]sheets.MonthExport
	writes  int
}

var _ sheets.MonthExporter = (*Store)(nil)

func New() *Store {
	return &Store{exports: make(map[core.YearMonth]sheets.MonthExport)}
}

// ExportMonth replaces the stored copy of the month.
func (s *Store) ExportMonth(_ context.Context, m sheets.MonthExport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.Records = append([]core.BillRecord(nil), m.Records...)
	s.exports[m.Month] = m
	s.writes++
	return nil
}

func (s *Store) Get(m core.YearMonth) (sheets.MonthExport, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.exports[m]
	return e, ok
}

// Months lists exported months, oldest first.
func (s *Store) Months() []core.YearMonth {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.YearMonth, 0, len(s.exports))
	for m := range s.exports {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// Writes counts ExportMonth calls.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}
