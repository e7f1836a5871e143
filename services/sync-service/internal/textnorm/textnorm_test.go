package textnorm

import (
	"testing"
	"time"

	"github.com/md-rashed-zaman/calendarsync/services/sync-service/internal/model"
)

func TestParseDate(t *testing.T) {
	cases := []struct {
		in   string
		want DateParts
		ok   bool
	}{
		{"miércoles, 19 de noviembre/2025", DateParts{19, time.November, 2025}, true},
		{"Lunes, 1 de ENERO/2024", DateParts{1, time.January, 2024}, true},
		{"martes, 9 de septiembre/2025", DateParts{9, time.September, 2025}, true},
		{"martes, 9 de Setiembre/2025", DateParts{9, time.September, 2025}, true},
		{"31 de febrero/2025", DateParts{31, time.February, 2025}, true},
		{"19 de brumario/2025", DateParts{}, false},
		{"19 de noviembre 2025", DateParts{}, false},
		{"", DateParts{}, false},
	}
	for _, tc := range cases {
		got, ok := ParseDate(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("ParseDate(%q) = %+v, %v; want %+v, %v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestParseStatus(t *testing.T) {
	cases := map[string]model.Status{
		"Cita Pagada hoy":             model.StatusPaid,
		"RESERVA confirmada":          model.StatusNewBooking,
		"fue cancelada":               model.StatusCancelled,
		"reserva pagada":              model.StatusPaid,
		"reserva cancelada":           model.StatusCancelled,
		"cancelada pero luego pagada": model.StatusPaid,
		"":                            model.StatusNewBooking,
		"Sin novedad":                 model.StatusNewBooking,
	}
	for in, want := range cases {
		if got := ParseStatus(in); got != want {
			t.Fatalf("ParseStatus(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBuildTimestamp_TwelveHourBoundaries(t *testing.T) {
	parts := DateParts{Day: 19, Month: time.November, Year: 2025}
	cases := []struct {
		in           string
		hour, minute int
	}{
		{"12:00 am", 0, 0},
		{"12:00 pm", 12, 0},
		{"11:59 pm", 23, 59},
		{"8:45 am", 8, 45},
		{"1:05PM", 13, 5},
	}
	for _, tc := range cases {
		ts, ok := BuildTimestamp(parts, tc.in, time.UTC)
		if !ok {
			t.Fatalf("BuildTimestamp(%q) failed", tc.in)
		}
		if ts.Hour() != tc.hour || ts.Minute() != tc.minute {
			t.Fatalf("BuildTimestamp(%q) = %s, want %02d:%02d", tc.in, ts.Format(time.Kitchen), tc.hour, tc.minute)
		}
	}
}

func TestBuildTimestamp_Rejects(t *testing.T) {
	parts := DateParts{Day: 19, Month: time.November, Year: 2025}
	for _, in := range []string{"", "8.45 am", "8:45", "13:00 pm", "por la tarde"} {
		if _, ok := BuildTimestamp(parts, in, time.UTC); ok {
			t.Fatalf("BuildTimestamp(%q) should fail", in)
		}
	}
	if _, ok := BuildTimestamp(DateParts{}, "8:45 am", time.UTC); ok {
		t.Fatalf("missing date should fail")
	}
}

func TestFormatDateLabel_RoundTrip(t *testing.T) {
	parts, ok := ParseDate("miércoles, 19 de noviembre/2025")
	if !ok {
		t.Fatalf("parse failed")
	}
	ts, ok := BuildTimestamp(parts, "8:45 am", time.Local)
	if !ok {
		t.Fatalf("build failed")
	}
	if got := FormatDateLabel(ts); got != "Miércoles 19 de Noviembre del 2025" {
		t.Fatalf("unexpected label %q", got)
	}
}

func TestCollapseSpaceAndStartTime(t *testing.T) {
	if got := CollapseSpace("  Ana \n\t María  "); got != "Ana María" {
		t.Fatalf("CollapseSpace = %q", got)
	}
	if got := StartTime(" 8:45 am - 9:00 am"); got != "8:45 am" {
		t.Fatalf("StartTime = %q", got)
	}
	if got := StartTime("8:45 am"); got != "8:45 am" {
		t.Fatalf("StartTime without range = %q", got)
	}
}
