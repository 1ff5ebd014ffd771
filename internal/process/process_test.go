package process

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stlgis/stl311/internal/config"
	"github.com/stlgis/stl311/internal/open311"
)

func testProcessor() *Processor {
	return &Processor{bounds: config.BoundingBox{MinX: -90.4, MaxX: -90.1, MinY: 38.5, MaxY: 38.8}}
}

func TestProcessScenario(t *testing.T) {
	p := testProcessor()
	raw := open311.RawRecord{
		"SERVICE_REQUEST_ID": "123",
		"SRX":                "-90.2",
		"SRY":                "38.6",
		"REQUESTED_DATETIME": "2025-07-05T10:00:00Z",
		"SERVICE_NAME":       "Pothole",
	}

	out, stats := p.Process([]open311.RawRecord{raw})
	if len(out) != 1 {
		t.Fatalf("expected 1 record, got %d", len(out))
	}
	rec := out[0]

	if rec.RequestID != "123" {
		t.Errorf("expected request id 123, got %q", rec.RequestID)
	}
	if rec.SRX != -90.2 || rec.SRY != 38.6 {
		t.Errorf("unexpected coordinates: (%g, %g)", rec.SRX, rec.SRY)
	}
	want := time.Date(2025, 7, 5, 10, 0, 0, 0, time.UTC)
	if rec.DateTimeInit == nil || !rec.DateTimeInit.Equal(want) {
		t.Errorf("expected DATETIMEINIT %v, got %v", want, rec.DateTimeInit)
	}
	if rec.Description == nil || *rec.Description != "Pothole" {
		t.Errorf("expected description Pothole, got %v", rec.Description)
	}
	if rec.ProbCity == nil || *rec.ProbCity != "St. Louis" {
		t.Errorf("expected default city St. Louis, got %v", rec.ProbCity)
	}
	if stats.Processed != 1 || stats.ValidCoordinates != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestCoordinateGateRejectsZeroPair(t *testing.T) {
	p := testProcessor()
	raw := open311.RawRecord{
		"SERVICE_REQUEST_ID": "7",
		"SRX":                "0",
		"SRY":                "0",
	}

	out, stats := p.Process([]open311.RawRecord{raw})
	if len(out) != 0 {
		t.Fatalf("expected zero-coordinate record to be rejected, got %d records", len(out))
	}
	if stats.MissingCoordinates != 1 {
		t.Errorf("expected missing_coordinates=1, got %d", stats.MissingCoordinates)
	}
	if stats.Processed != 0 {
		t.Errorf("expected processed=0, got %d", stats.Processed)
	}
}

func TestCoordinateGateRejectsNonNumeric(t *testing.T) {
	p := testProcessor()
	raw := open311.RawRecord{"SRX": "not-a-number", "SRY": "38.6"}

	out, stats := p.Process([]open311.RawRecord{raw})
	if len(out) != 0 {
		t.Fatal("expected non-numeric coordinates to be rejected")
	}
	if stats.MissingCoordinates != 1 {
		t.Errorf("expected missing_coordinates=1, got %d", stats.MissingCoordinates)
	}
}

func TestCoordinateFallbackToLatLong(t *testing.T) {
	p := testProcessor()
	raw := open311.RawRecord{
		"SERVICE_REQUEST_ID": "9",
		"SRX":                "0",
		"SRY":                "0",
		"LAT":                "38.65",
		"LONG":               "-90.25",
	}

	out, _ := p.Process([]open311.RawRecord{raw})
	if len(out) != 1 {
		t.Fatal("expected record to pass via LAT/LONG fallback")
	}
	if out[0].SRX != -90.25 {
		t.Errorf("expected SRX from LONG, got %g", out[0].SRX)
	}
	if out[0].SRY != 38.65 {
		t.Errorf("expected SRY from LAT, got %g", out[0].SRY)
	}
}

func TestDateParsingISOMatchesNaive(t *testing.T) {
	iso, ok := parseDate("2025-07-05T23:48:01Z")
	if !ok {
		t.Fatal("ISO date failed to parse")
	}
	naive, ok := parseDate("2025-07-05 23:48:01")
	if !ok {
		t.Fatal("naive date failed to parse")
	}
	if !iso.Equal(naive) {
		t.Errorf("ISO %v and naive %v should be the same instant", iso, naive)
	}
}

func TestDateParsingFallbackFormats(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"07/05/2025", time.Date(2025, 7, 5, 0, 0, 0, 0, time.UTC)},
		{"2025-07-05", time.Date(2025, 7, 5, 0, 0, 0, 0, time.UTC)},
		{"2025-07-05 23:48:01", time.Date(2025, 7, 5, 23, 48, 1, 0, time.UTC)},
		{"2025-07-05T23:48:01+02:00", time.Date(2025, 7, 5, 23, 48, 1, 0, time.UTC)},
	}
	for _, tc := range tests {
		got, ok := parseDate(tc.in)
		if !ok {
			t.Errorf("parseDate(%q) failed", tc.in)
			continue
		}
		if !got.Equal(tc.want) {
			t.Errorf("parseDate(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestInvalidDateCountedNotRejected(t *testing.T) {
	p := testProcessor()
	raw := open311.RawRecord{
		"SERVICE_REQUEST_ID": "5",
		"SRX":                "-90.2",
		"SRY":                "38.6",
		"REQUESTED_DATETIME": "not a date",
	}

	out, stats := p.Process([]open311.RawRecord{raw})
	if len(out) != 1 {
		t.Fatal("invalid date must not reject the record")
	}
	if out[0].DateTimeInit != nil {
		t.Error("expected DATETIMEINIT to stay unset")
	}
	if stats.InvalidDates != 1 {
		t.Errorf("expected invalid_dates=1, got %d", stats.InvalidDates)
	}
}

func TestTextTruncation(t *testing.T) {
	p := testProcessor()
	long := strings.Repeat("x", 300)
	raw := open311.RawRecord{
		"SERVICE_REQUEST_ID": "5",
		"SRX":                "-90.2",
		"SRY":                "38.6",
		"SERVICE_NAME":       "  " + long + "  ",
	}

	out, _ := p.Process([]open311.RawRecord{raw})
	if len(out) != 1 {
		t.Fatal("expected 1 record")
	}
	if out[0].Description == nil || len(*out[0].Description) != 255 {
		t.Errorf("expected description truncated to 255 chars")
	}
}

func TestTextTruncationKeepsValidUTF8(t *testing.T) {
	p := testProcessor()
	// 254 ASCII bytes followed by 2-byte runes: a byte cut at 255 would
	// split the rune starting at byte 254.
	long := strings.Repeat("x", 254) + strings.Repeat("é", 10)
	raw := open311.RawRecord{
		"SERVICE_REQUEST_ID": "5",
		"SRX":                "-90.2",
		"SRY":                "38.6",
		"SERVICE_NAME":       long,
	}

	out, _ := p.Process([]open311.RawRecord{raw})
	if len(out) != 1 {
		t.Fatal("expected 1 record")
	}
	desc := out[0].Description
	if desc == nil {
		t.Fatal("expected description")
	}
	if len(*desc) > 255 {
		t.Errorf("expected at most 255 bytes, got %d", len(*desc))
	}
	if !utf8.ValidString(*desc) {
		t.Errorf("truncation produced invalid UTF-8: %q", *desc)
	}
}

func TestRequestIDFallbackToServiceCode(t *testing.T) {
	p := testProcessor()
	raw := open311.RawRecord{
		"SERVICE_CODE": "POTHOLE-01",
		"SRX":          "-90.2",
		"SRY":          "38.6",
	}

	out, _ := p.Process([]open311.RawRecord{raw})
	if len(out) != 1 {
		t.Fatal("expected 1 record")
	}
	if out[0].RequestID != "POTHOLE-01" {
		t.Errorf("expected service code fallback id, got %q", out[0].RequestID)
	}
}

func TestNumericJSONFieldsCoerced(t *testing.T) {
	p := testProcessor()
	// JSON numbers decode as float64; ids and zips must still coerce.
	raw := open311.RawRecord{
		"SERVICE_REQUEST_ID": float64(123456),
		"SRX":                float64(-90.2),
		"SRY":                float64(38.6),
		"ZIPCODE":            float64(63103),
	}

	out, _ := p.Process([]open311.RawRecord{raw})
	if len(out) != 1 {
		t.Fatal("expected 1 record")
	}
	if out[0].RequestID != "123456" {
		t.Errorf("expected id 123456, got %q", out[0].RequestID)
	}
	if out[0].ProbZip == nil || *out[0].ProbZip != 63103 {
		t.Errorf("expected zip 63103, got %v", out[0].ProbZip)
	}
}

func TestOutputOrderMatchesInput(t *testing.T) {
	p := testProcessor()
	raws := []open311.RawRecord{
		{"SERVICE_REQUEST_ID": "1", "SRX": "-90.2", "SRY": "38.6"},
		{"SERVICE_REQUEST_ID": "2", "SRX": "0", "SRY": "0"},
		{"SERVICE_REQUEST_ID": "3", "SRX": "-90.3", "SRY": "38.7"},
	}

	out, _ := p.Process(raws)
	if len(out) != 2 {
		t.Fatalf("expected 2 records, got %d", len(out))
	}
	if out[0].RequestID != "1" || out[1].RequestID != "3" {
		t.Errorf("output order broken: %q, %q", out[0].RequestID, out[1].RequestID)
	}
}
