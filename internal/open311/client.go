// Package open311 fetches raw service-request records from the St. Louis
// Open311 API. The upstream is not strictly typed, so records are kept as
// raw JSON maps until the processor normalizes them.
package open311

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/stlgis/stl311/internal/config"
)

// RawRecord is one untyped service request as returned by the API.
// Values are the JSON scalar variants: string, float64, bool or nil.
type RawRecord map[string]any

// GetString returns the string form of a field, or "" when the field is
// absent or null. Numbers are formatted without an exponent.
func (r RawRecord) GetString(key string) string {
	v, ok := r[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	case bool:
		if t {
			return "true"
		}
		return "false"
	}
	return fmt.Sprintf("%v", v)
}

// Has reports whether a field is present and non-null.
func (r RawRecord) Has(key string) bool {
	v, ok := r[key]
	return ok && v != nil
}

// Client pages through the Open311 requests endpoint.
type Client struct {
	baseURL   string
	apiKey    string
	pageSize  int
	maxPages  int
	rateDelay time.Duration
	client    *http.Client
}

// NewClient creates an Open311 client from config.
func NewClient(cfg *config.Config) *Client {
	return &Client{
		baseURL:   cfg.API.BaseURL,
		apiKey:    cfg.APIKey(),
		pageSize:  cfg.API.PageSize,
		maxPages:  cfg.API.MaxPages,
		rateDelay: cfg.RateLimitDelay(),
		client:    &http.Client{Timeout: cfg.RequestTimeout()},
	}
}

// IsConfigured returns whether the API key is available.
func (c *Client) IsConfigured() bool {
	return c.apiKey != ""
}

// envelope covers the two response shapes the API produces: a bare array
// of records, or an object wrapping them under "service_requests".
type envelope struct {
	ServiceRequests []RawRecord `json:"service_requests"`
}

// Fetch pages through service requests in the given date range.
//
// Pagination stops when a page is empty, when a page comes back short of the
// page size, or when the max-pages safety cap is reached. Transport failures
// and malformed responses abort pagination but the records collected so far
// are still returned; a partial fetch is a usable result.
func (c *Client) Fetch(startDate, endDate time.Time, status string) []RawRecord {
	var all []RawRecord

	for page := 1; page <= c.maxPages; page++ {
		params := url.Values{
			"api_key":    {c.apiKey},
			"start_date": {startDate.Format("2006-01-02")},
			"end_date":   {endDate.Format("2006-01-02")},
			"page_size":  {fmt.Sprintf("%d", c.pageSize)},
			"page":       {fmt.Sprintf("%d", page)},
		}
		if status != "" {
			params.Set("status", status)
		}

		batch, err := c.fetchPage(params)
		if err != nil {
			log.Printf("Open311 request failed on page %d: %v", page, err)
			break
		}

		if len(batch) == 0 {
			log.Printf("No more requests found on page %d", page)
			break
		}

		all = append(all, batch...)
		log.Printf("Fetched %d requests from page %d", len(batch), page)

		if len(batch) < c.pageSize {
			log.Printf("Reached end of data on page %d", page)
			break
		}

		// No delay after the last iteration; the cap ends pagination anyway.
		if page < c.maxPages {
			time.Sleep(c.rateDelay)
		}
	}

	log.Printf("Total requests fetched: %d", len(all))
	return all
}

func (c *Client) fetchPage(params url.Values) ([]RawRecord, error) {
	endpoint := c.baseURL + "/requests.json?" + params.Encode()

	req, err := http.NewRequest("GET", endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "stl311/1.0")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	// Try the bare-array shape first, then the wrapped object.
	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	var batch []RawRecord
	if err := json.Unmarshal(raw, &batch); err == nil {
		return batch, nil
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("unexpected response format: %w", err)
	}
	return env.ServiceRequests, nil
}
