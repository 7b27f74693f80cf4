package settlement

import (
	"errors"
	"testing"
	"time"
)

func TestParseMonth(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "2025-07", want: "2025-07"},
		{in: " 2024-12 ", want: "2024-12"},
		{in: "", wantErr: true},
		{in: "2025-7", wantErr: true},
		{in: "2025-13", wantErr: true},
		{in: "July 2025", wantErr: true},
		{in: "2025-07-01", wantErr: true},
	}
	for _, tc := range cases {
		got, err := ParseMonth(tc.in)
		if tc.wantErr {
			if !errors.Is(err, ErrInvalidMonth) {
				t.Fatalf("ParseMonth(%q): expected ErrInvalidMonth, got %v", tc.in, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseMonth(%q): %v", tc.in, err)
		}
		if got.String() != tc.want {
			t.Fatalf("ParseMonth(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestMonthWindow_InclusiveBounds(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	m, err := ParseMonth("2024-02")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	w := m.Window(loc)
	if !w.Start.Equal(time.Date(2024, time.February, 1, 0, 0, 0, 0, loc)) {
		t.Fatalf("start mismatch: %s", w.Start)
	}
	if !w.End.Equal(time.Date(2024, time.February, 29, 23, 59, 59, 0, loc)) {
		t.Fatalf("end mismatch: %s", w.End)
	}
	if !w.Contains(w.Start) || !w.Contains(w.End) {
		t.Fatalf("window must include both bounds")
	}
	if w.Contains(w.End.Add(time.Second)) {
		t.Fatalf("window must exclude next month")
	}
	if w.Contains(w.Start.Add(-time.Nanosecond)) {
		t.Fatalf("window must exclude previous month")
	}
}

func TestMonthWindow_December(t *testing.T) {
	m, _ := ParseMonth("2025-12")
	w := m.Window(time.UTC)
	if w.End != time.Date(2025, time.December, 31, 23, 59, 59, 0, time.UTC) {
		t.Fatalf("end mismatch: %s", w.End)
	}
}
