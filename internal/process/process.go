// Package process normalizes raw Open311 records into the canonical
// SERVICE_REQUESTS schema. Records without usable coordinates are dropped;
// every other per-record problem is absorbed and counted.
package process

import (
	"log"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/stlgis/stl311/internal/config"
	"github.com/stlgis/stl311/internal/open311"
)

const maxTextLen = 255

// ServiceRequest is a normalized service request. Pointer fields are
// nullable; value fields are mandatory once a record passes validation.
type ServiceRequest struct {
	RequestID string

	// WGS84 coordinates: SRX is longitude, SRY is latitude.
	SRX float64
	SRY float64

	DateTimeInit    *time.Time
	DateTimeClosed  *time.Time
	PrjCompleteDate *time.Time
	DateInvtDone    *time.Time
	DateCancelled   *time.Time

	Description *string
	ProblemCode *string
	ProbAddress *string
	SubmitTo    *string
	Status      *string
	Explanation *string
	CallerType  *string
	Group       *string
	ProbAddType *string
	ProbCity    *string

	Neighborhood *int64
	Ward         *int64
	ProbZip      *int64

	// Not populated by the current API; always null.
	PlainEnglishName *string
}

// ValidationStats accumulates per-run validation counters.
type ValidationStats struct {
	Total              int
	ValidCoordinates   int
	MissingCoordinates int
	InvalidDates       int
	Processed          int
}

// dateFieldMapping maps API date fields to schema date fields.
var dateFieldMapping = []struct {
	apiField string
	assign   func(*ServiceRequest, *time.Time)
}{
	{"REQUESTED_DATETIME", func(r *ServiceRequest, t *time.Time) { r.DateTimeInit = t }},
	{"UPDATED_DATETIME", func(r *ServiceRequest, t *time.Time) { r.DateTimeClosed = t }},
	{"EXPECTED_DATETIME", func(r *ServiceRequest, t *time.Time) { r.PrjCompleteDate = t }},
}

// dateFormats are tried in order for values that are not ISO-with-zone.
var dateFormats = []string{
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
}

// Processor normalizes raw records against the canonical schema.
type Processor struct {
	bounds config.BoundingBox
}

// NewProcessor creates a processor with the configured coordinate bounds.
func NewProcessor(cfg *config.Config) *Processor {
	return &Processor{bounds: cfg.Coordinates}
}

// Process normalizes raw records. Output order matches input order.
// Duplicate request ids are not deduplicated here; the reconciler
// resolves them last-write-wins.
func (p *Processor) Process(raws []open311.RawRecord) ([]ServiceRequest, *ValidationStats) {
	stats := &ValidationStats{Total: len(raws)}
	var out []ServiceRequest

	for _, raw := range raws {
		rec, ok := p.processOne(raw, stats)
		if !ok {
			continue
		}
		out = append(out, rec)
		stats.Processed++
	}

	log.Printf("Data validation complete: total=%d valid_coords=%d missing_coords=%d invalid_dates=%d processed=%d",
		stats.Total, stats.ValidCoordinates, stats.MissingCoordinates, stats.InvalidDates, stats.Processed)
	return out, stats
}

func (p *Processor) processOne(raw open311.RawRecord, stats *ValidationStats) (ServiceRequest, bool) {
	var rec ServiceRequest

	x, y, ok := extractCoordinates(raw)
	if !ok {
		log.Printf("No valid coordinates found for request %s", raw.GetString("SERVICE_REQUEST_ID"))
		stats.MissingCoordinates++
		return rec, false
	}
	rec.SRX = x
	rec.SRY = y
	stats.ValidCoordinates++

	if !p.bounds.Contains(x, y) {
		log.Printf("Suspect coordinates (%.4f, %.4f) for request %s: outside configured bounds",
			x, y, raw.GetString("SERVICE_REQUEST_ID"))
	}

	processDates(raw, &rec, stats)
	copyAndCleanFields(raw, &rec)

	return rec, true
}

// extractCoordinates tries the SRX/SRY pair first, then LAT/LONG. A pair is
// usable only when both values are numeric and non-zero.
func extractCoordinates(raw open311.RawRecord) (x, y float64, ok bool) {
	if raw.Has("SRX") && raw.Has("SRY") {
		px, errX := parseFloat(raw.GetString("SRX"))
		py, errY := parseFloat(raw.GetString("SRY"))
		if errX == nil && errY == nil {
			x, y = px, py
		}
	}

	if (x == 0 || y == 0) && raw.Has("LAT") && raw.Has("LONG") {
		plat, errLat := parseFloat(raw.GetString("LAT"))
		plong, errLong := parseFloat(raw.GetString("LONG"))
		if errLat == nil && errLong == nil {
			x, y = plong, plat
		}
	}

	if x == 0 || y == 0 {
		return 0, 0, false
	}
	return x, y, true
}

func processDates(raw open311.RawRecord, rec *ServiceRequest, stats *ValidationStats) {
	for _, m := range dateFieldMapping {
		s := strings.TrimSpace(raw.GetString(m.apiField))
		if s == "" {
			continue
		}
		t, ok := parseDate(s)
		if !ok {
			log.Printf("Unparseable date %q in field %s", s, m.apiField)
			stats.InvalidDates++
			continue
		}
		m.assign(rec, &t)
	}
	// DATECANCELLED and DATEINVTDONE are not exposed by the API; left null.
}

// parseDate parses a date string. ISO values with a zone marker have the
// zone stripped and parse as a naive timestamp; everything else walks the
// fallback format list.
func parseDate(s string) (time.Time, bool) {
	if strings.Contains(s, "T") && (strings.Contains(s, "Z") || strings.Contains(s, "+")) {
		naive := strings.TrimSuffix(s, "Z")
		if i := strings.LastIndex(naive, "+"); i > 10 {
			naive = naive[:i]
		}
		if t, err := time.Parse("2006-01-02T15:04:05", naive); err == nil {
			return t, true
		}
		if t, err := time.Parse("2006-01-02T15:04:05.999999999", naive); err == nil {
			return t, true
		}
		return time.Time{}, false
	}

	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func copyAndCleanFields(raw open311.RawRecord, rec *ServiceRequest) {
	rec.Description = cleanText(raw.GetString("SERVICE_NAME"))
	rec.ProblemCode = cleanText(raw.GetString("SERVICE_CODE"))
	rec.ProbAddress = cleanText(raw.GetString("ADDRESS"))
	rec.SubmitTo = cleanText(raw.GetString("AGENCY_RESPONSIBLE"))
	rec.Status = cleanText(raw.GetString("STATUS"))
	rec.Explanation = cleanText(raw.GetString("STATUS_NOTES"))
	rec.CallerType = cleanText(raw.GetString("SERVICE_NOTICE"))
	rec.Group = cleanText(raw.GetString("MEDIA_URL"))
	rec.ProbZip = parseIntOrNil(raw.GetString("ZIPCODE"))

	// Identity: prefer SERVICE_REQUEST_ID as an integer id; fall back to
	// SERVICE_CODE verbatim when the primary field is absent.
	if id := strings.TrimSpace(raw.GetString("SERVICE_REQUEST_ID")); id != "" {
		if n := parseIntOrNil(id); n != nil {
			rec.RequestID = strconv.FormatInt(*n, 10)
		}
	} else if code := strings.TrimSpace(raw.GetString("SERVICE_CODE")); code != "" {
		rec.RequestID = code
	}

	address := raw.GetString("ADDRESS")
	if rec.Neighborhood == nil {
		rec.Neighborhood = neighborhoodFromAddress(address)
	}
	if rec.Ward == nil {
		rec.Ward = wardFromAddress(address)
	}
	if rec.ProbCity == nil {
		city := "St. Louis"
		rec.ProbCity = &city
	}
	if rec.ProbAddType == nil {
		rec.ProbAddType = classifyAddressType(address)
	}
}

// cleanText trims and truncates a string field, returning nil when empty.
// Truncation backs up to a rune boundary so the stored value stays valid UTF-8.
func cleanText(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if len(s) > maxTextLen {
		cut := maxTextLen
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut]
	}
	return &s
}

// parseIntOrNil coerces a value to an integer, returning nil on failure.
// JSON numbers arrive as floats, so integral floats are accepted.
func parseIntOrNil(s string) *int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return &n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f == float64(int64(f)) {
		n := int64(f)
		return &n
	}
	return nil
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}
