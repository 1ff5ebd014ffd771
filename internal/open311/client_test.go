package open311

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stlgis/stl311/internal/config"
)

func testConfig(baseURL string, pageSize, maxPages int) *config.Config {
	return &config.Config{
		API: config.API{
			BaseURL:          baseURL,
			PageSize:         pageSize,
			MaxPages:         maxPages,
			TimeoutSeconds:   5,
			RateLimitDelayMS: 0,
		},
	}
}

func makePage(n int) []map[string]any {
	page := make([]map[string]any, n)
	for i := range page {
		page[i] = map[string]any{"SERVICE_REQUEST_ID": fmt.Sprintf("%d", i)}
	}
	return page
}

func TestFetchPaginationTermination(t *testing.T) {
	// Pages of 1000, 1000, 400 for page_size 1000: 2400 records total and
	// no fourth request.
	sizes := []int{1000, 1000, 400}
	requests := 0

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		page := 0
		fmt.Sscanf(r.URL.Query().Get("page"), "%d", &page)
		if page < 1 || page > len(sizes) {
			t.Errorf("unexpected page request: %d", page)
			json.NewEncoder(w).Encode([]map[string]any{})
			return
		}
		json.NewEncoder(w).Encode(makePage(sizes[page-1]))
	}))
	defer ts.Close()

	c := NewClient(testConfig(ts.URL, 1000, 10))
	records := c.Fetch(time.Now().AddDate(0, 0, -1), time.Now(), "open")

	if len(records) != 2400 {
		t.Errorf("expected 2400 records, got %d", len(records))
	}
	if requests != 3 {
		t.Errorf("expected 3 requests, got %d", requests)
	}
}

func TestFetchStopsOnEmptyPage(t *testing.T) {
	requests := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		json.NewEncoder(w).Encode([]map[string]any{})
	}))
	defer ts.Close()

	c := NewClient(testConfig(ts.URL, 1000, 10))
	records := c.Fetch(time.Now(), time.Now(), "")

	if len(records) != 0 {
		t.Errorf("expected no records, got %d", len(records))
	}
	if requests != 1 {
		t.Errorf("expected 1 request, got %d", requests)
	}
}

func TestFetchMaxPagesCap(t *testing.T) {
	requests := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		json.NewEncoder(w).Encode(makePage(2))
	}))
	defer ts.Close()

	c := NewClient(testConfig(ts.URL, 2, 3))
	records := c.Fetch(time.Now(), time.Now(), "")

	if requests != 3 {
		t.Errorf("expected the cap to stop at 3 requests, got %d", requests)
	}
	if len(records) != 6 {
		t.Errorf("expected 6 records, got %d", len(records))
	}
}

func TestFetchNoDelayAfterFinalPage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(makePage(2))
	}))
	defer ts.Close()

	cfg := testConfig(ts.URL, 2, 1)
	cfg.API.RateLimitDelayMS = 2000
	c := NewClient(cfg)

	start := time.Now()
	records := c.Fetch(time.Now(), time.Now(), "")
	elapsed := time.Since(start)

	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	// A full page at the cap must return without sleeping out the rate delay.
	if elapsed > time.Second {
		t.Errorf("fetch slept after the final page: took %v", elapsed)
	}
}

func TestFetchWrappedResponseShape(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"service_requests": makePage(3),
		})
	}))
	defer ts.Close()

	c := NewClient(testConfig(ts.URL, 1000, 10))
	records := c.Fetch(time.Now(), time.Now(), "")

	if len(records) != 3 {
		t.Errorf("expected 3 records from wrapped response, got %d", len(records))
	}
}

func TestFetchKeepsPartialResultsOnTransportError(t *testing.T) {
	requests := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests == 1 {
			json.NewEncoder(w).Encode(makePage(2))
			return
		}
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer ts.Close()

	c := NewClient(testConfig(ts.URL, 2, 10))
	records := c.Fetch(time.Now(), time.Now(), "")

	if len(records) != 2 {
		t.Errorf("expected the first page to survive the failure, got %d records", len(records))
	}
}

func TestFetchKeepsPartialResultsOnMalformedResponse(t *testing.T) {
	requests := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests == 1 {
			json.NewEncoder(w).Encode(makePage(2))
			return
		}
		fmt.Fprint(w, "{not json")
	}))
	defer ts.Close()

	c := NewClient(testConfig(ts.URL, 2, 10))
	records := c.Fetch(time.Now(), time.Now(), "")

	if len(records) != 2 {
		t.Errorf("expected partial results on malformed page, got %d records", len(records))
	}
}

func TestRawRecordGetString(t *testing.T) {
	r := RawRecord{
		"s":    "text",
		"n":    float64(42),
		"f":    float64(38.6),
		"null": nil,
	}
	if got := r.GetString("s"); got != "text" {
		t.Errorf("GetString(s) = %q", got)
	}
	if got := r.GetString("n"); got != "42" {
		t.Errorf("GetString(n) = %q, want 42", got)
	}
	if got := r.GetString("f"); got != "38.6" {
		t.Errorf("GetString(f) = %q, want 38.6", got)
	}
	if got := r.GetString("null"); got != "" {
		t.Errorf("GetString(null) = %q, want empty", got)
	}
	if got := r.GetString("missing"); got != "" {
		t.Errorf("GetString(missing) = %q, want empty", got)
	}
	if r.Has("null") {
		t.Error("Has(null) should be false")
	}
	if !r.Has("s") {
		t.Error("Has(s) should be true")
	}
}
