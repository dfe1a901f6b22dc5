package core

import (
	"errors"
	"testing"
	"time"
)

func TestDecompose(t *testing.T) {
	tests := []struct {
		name string
		ts   time.Time
		want Period
	}{
		{"new year monday", time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC), Period{Year: 2024, Month: 1, ISOWeek: 1, ISOYear: 2024}},
		{"sunday in previous iso year", time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), Period{Year: 2023, Month: 1, ISOWeek: 52, ISOYear: 2022}},
		{"december in next iso year", time.Date(2024, 12, 30, 23, 59, 59, 0, time.UTC), Period{Year: 2024, Month: 12, ISOWeek: 1, ISOYear: 2025}},
		{"week 53", time.Date(2020, 12, 31, 12, 0, 0, 0, time.UTC), Period{Year: 2020, Month: 12, ISOWeek: 53, ISOYear: 2020}},
		{"mid march", time.Date(2024, 3, 15, 8, 30, 0, 0, time.UTC), Period{Year: 2024, Month: 3, ISOWeek: 11, ISOYear: 2024}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decompose(tt.ts)
			if err != nil {
				t.Fatalf("Decompose() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Decompose() = %+v, want %+v", got, tt.want)
			}
			again, _ := Decompose(tt.ts)
			if again != got {
				t.Errorf("Decompose() not deterministic: %+v vs %+v", again, got)
			}
		})
	}
}

func TestDecomposeZero(t *testing.T) {
	if _, err := Decompose(time.Time{}); !errors.Is(err, ErrInvalidTimestamp) {
		t.Fatalf("expected ErrInvalidTimestamp, got %v", err)
	}
}

func TestNewTimestamp(t *testing.T) {
	if _, err := NewTimestamp(2024, 2, 30, 0, 0, 0); !errors.Is(err, ErrInvalidTimestamp) {
		t.Errorf("Feb 30: expected ErrInvalidTimestamp, got %v", err)
	}
	if _, err := NewTimestamp(2023, 2, 29, 0, 0, 0); !errors.Is(err, ErrInvalidTimestamp) {
		t.Errorf("Feb 29 2023: expected ErrInvalidTimestamp, got %v", err)
	}
	if _, err := NewTimestamp(2024, 1, 1, 24, 0, 0); !errors.Is(err, ErrInvalidTimestamp) {
		t.Errorf("hour 24: expected ErrInvalidTimestamp, got %v", err)
	}
	got, err := NewTimestamp(2024, 2, 29, 23, 59, 59)
	if err != nil {
		t.Fatalf("leap day: %v", err)
	}
	if FormatTimestamp(got) != "2024-02-29 23:59:59" {
		t.Errorf("FormatTimestamp() = %q", FormatTimestamp(got))
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"2024-03-15 12:00:00", "2024-03-15 12:00:00", false},
		{"2024/3/5 9:07:01", "2024-03-05 09:07:01", false},
		{"2024/3/5 9:07", "2024-03-05 09:07:00", false},
		{"  2024/03/05   09:07 ", "2024-03-05 09:07:00", false},
		{"2024-13-01 00:00:00", "", true},
		{"not-a-date", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTimestamp(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidTimestamp) {
					t.Fatalf("expected ErrInvalidTimestamp, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseTimestamp() error = %v", err)
			}
			if s := FormatTimestamp(got); s != tt.want {
				t.Errorf("ParseTimestamp() = %q, want %q", s, tt.want)
			}
		})
	}
}

func TestISOWeekStart(t *testing.T) {
	tests := []struct {
		year, week int
		want       string
	}{
		{2024, 1, "2024-01-01"},
		{2022, 52, "2022-12-26"},
		{2025, 1, "2024-12-30"},
		{2020, 53, "2020-12-28"},
	}
	for _, tt := range tests {
		got := ISOWeekStart(tt.year, tt.week)
		if got.Format(DateLayout) != tt.want {
			t.Errorf("ISOWeekStart(%d, %d) = %s, want %s", tt.year, tt.week, got.Format(DateLayout), tt.want)
		}
		if got.Weekday() != time.Monday {
			t.Errorf("ISOWeekStart(%d, %d) is a %s", tt.year, tt.week, got.Weekday())
		}
	}
}
