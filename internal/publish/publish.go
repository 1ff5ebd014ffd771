// Package publish pushes the local store to a hosted feature service over
// its REST API. The portal is an external collaborator: every failure comes
// back as an error for the pipeline to report, never a panic.
package publish

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/stlgis/stl311/internal/config"
	"github.com/stlgis/stl311/internal/store"
)

// Update methods accepted by Client.Update.
const (
	MethodReplace = "replace" // truncate remote data, then re-add everything
	MethodAppend  = "append"  // add without truncation; can duplicate
)

// Client talks to the hosted feature-service portal.
type Client struct {
	portalURL string
	token     string
	folder    string
	client    *http.Client
}

// ServiceHandle identifies a published service.
type ServiceHandle struct {
	ItemID string `json:"id"`
	Title  string `json:"title"`
	URL    string `json:"url"`
}

// UpdateResult reports a replace/append update.
type UpdateResult struct {
	Status            string
	UpdateMethod      string
	FeaturesProcessed int
	ServiceURL        string
}

// IncrementalResult reports an incremental update.
type IncrementalResult struct {
	Status          string
	NewRecords      int
	ExistingRecords int
	TotalLocal      int
}

// ServiceInfo describes a published service for status reporting.
type ServiceInfo struct {
	ServiceName  string
	ItemID       string
	URL          string
	FeatureCount int
}

// NewClient creates a portal client from config.
func NewClient(cfg *config.Config) *Client {
	return &Client{
		portalURL: strings.TrimRight(cfg.Publish.PortalURL, "/"),
		token:     cfg.PortalToken(),
		folder:    cfg.Publish.Folder,
		client:    &http.Client{Timeout: cfg.RequestTimeout()},
	}
}

// IsConfigured returns whether the portal token is available.
func (c *Client) IsConfigured() bool {
	return c.token != ""
}

// ServiceExists reports whether a feature service with the given name exists.
func (c *Client) ServiceExists(name string) (bool, error) {
	h, err := c.findService(name)
	if err != nil {
		return false, err
	}
	return h != nil, nil
}

// findService searches the portal for a feature service by title.
func (c *Client) findService(name string) (*ServiceHandle, error) {
	params := url.Values{
		"q":     {fmt.Sprintf(`title:"%s" type:"Feature Service"`, name)},
		"f":     {"json"},
		"token": {c.token},
	}

	var result struct {
		Results []ServiceHandle `json:"results"`
	}
	if err := c.getJSON("/sharing/rest/search", params, &result); err != nil {
		return nil, fmt.Errorf("searching for service %q: %w", name, err)
	}
	if len(result.Results) == 0 {
		return nil, nil
	}
	return &result.Results[0], nil
}

// Publish creates a new hosted feature service, loads the given features
// into it and shares it publicly.
func (c *Client) Publish(name, folder string, feats []Feature) (*ServiceHandle, error) {
	form := url.Values{
		"name":         {name},
		"serviceType":  {"featureService"},
		"capabilities": {"Query,Create,Update,Delete"},
		"wkid":         {fmt.Sprintf("%d", store.SRID)},
		"f":            {"json"},
		"token":        {c.token},
	}
	if folder != "" {
		form.Set("folder", folder)
	}

	var created struct {
		ItemID  string `json:"itemId"`
		URL     string `json:"serviceurl"`
		Success bool   `json:"success"`
	}
	if err := c.postForm("/sharing/rest/content/createService", form, &created); err != nil {
		return nil, fmt.Errorf("creating service %q: %w", name, err)
	}
	if !created.Success {
		return nil, fmt.Errorf("portal refused to create service %q", name)
	}

	handle := &ServiceHandle{ItemID: created.ItemID, Title: name, URL: created.URL}

	if _, err := c.addFeatures(handle, feats); err != nil {
		return nil, err
	}

	// Public sharing is applied on first publish only.
	if err := c.shareEveryone(handle.ItemID); err != nil {
		return nil, err
	}

	return handle, nil
}

// Update refreshes an existing service. With MethodReplace all remote
// records are truncated first; with MethodAppend features are added as-is.
// A missing service falls back to a fresh publish.
func (c *Client) Update(name string, feats []Feature, method string) (*UpdateResult, error) {
	if method != MethodReplace && method != MethodAppend {
		return nil, fmt.Errorf("unknown update method %q", method)
	}

	handle, err := c.findService(name)
	if err != nil {
		return nil, err
	}
	if handle == nil {
		if _, err := c.Publish(name, c.folder, feats); err != nil {
			return nil, err
		}
		return &UpdateResult{Status: "published", UpdateMethod: method, FeaturesProcessed: len(feats)}, nil
	}

	if method == MethodReplace {
		if err := c.truncate(handle); err != nil {
			return nil, err
		}
	}

	added, err := c.addFeatures(handle, feats)
	if err != nil {
		return nil, err
	}

	return &UpdateResult{
		Status:            "updated",
		UpdateMethod:      method,
		FeaturesProcessed: added,
		ServiceURL:        handle.URL,
	}, nil
}

// IncrementalUpdate adds only the local features whose id is not yet online.
func (c *Client) IncrementalUpdate(name string, feats []Feature, idField string) (*IncrementalResult, error) {
	handle, err := c.findService(name)
	if err != nil {
		return nil, err
	}
	if handle == nil {
		if _, err := c.Publish(name, c.folder, feats); err != nil {
			return nil, err
		}
		return &IncrementalResult{Status: "published", NewRecords: len(feats), TotalLocal: len(feats)}, nil
	}

	existing, err := c.remoteIDs(handle, idField)
	if err != nil {
		return nil, err
	}

	var fresh []Feature
	for _, f := range feats {
		id := attrString(f.Attributes[idField])
		if _, ok := existing[id]; !ok {
			fresh = append(fresh, f)
		}
	}

	if len(fresh) > 0 {
		if _, err := c.addFeatures(handle, fresh); err != nil {
			return nil, err
		}
	}

	return &IncrementalResult{
		Status:          "updated",
		NewRecords:      len(fresh),
		ExistingRecords: len(existing),
		TotalLocal:      len(feats),
	}, nil
}

// Info returns service metadata with the remote feature count.
func (c *Client) Info(name string) (*ServiceInfo, error) {
	handle, err := c.findService(name)
	if err != nil {
		return nil, err
	}
	if handle == nil {
		return nil, nil
	}

	params := url.Values{
		"where":           {"1=1"},
		"returnCountOnly": {"true"},
		"f":               {"json"},
		"token":           {c.token},
	}
	var result struct {
		Count int `json:"count"`
	}
	if err := c.getJSON(layerPath(handle)+"/query", params, &result); err != nil {
		return nil, err
	}

	return &ServiceInfo{
		ServiceName:  handle.Title,
		ItemID:       handle.ItemID,
		URL:          handle.URL,
		FeatureCount: result.Count,
	}, nil
}

// remoteIDs queries the online layer for all values of the id field.
func (c *Client) remoteIDs(handle *ServiceHandle, idField string) (map[string]struct{}, error) {
	params := url.Values{
		"where":          {"1=1"},
		"outFields":      {idField},
		"returnGeometry": {"false"},
		"f":              {"json"},
		"token":          {c.token},
	}
	var result struct {
		Features []struct {
			Attributes map[string]any `json:"attributes"`
		} `json:"features"`
	}
	if err := c.getJSON(layerPath(handle)+"/query", params, &result); err != nil {
		return nil, fmt.Errorf("querying remote ids: %w", err)
	}

	ids := make(map[string]struct{}, len(result.Features))
	for _, f := range result.Features {
		if v, ok := f.Attributes[idField]; ok && v != nil {
			ids[attrString(v)] = struct{}{}
		}
	}
	return ids, nil
}

// addFeatures uploads features to the service layer, returning the number
// the portal accepted.
func (c *Client) addFeatures(handle *ServiceHandle, feats []Feature) (int, error) {
	if len(feats) == 0 {
		return 0, nil
	}

	payload, err := json.Marshal(feats)
	if err != nil {
		return 0, fmt.Errorf("encoding features: %w", err)
	}

	form := url.Values{
		"features": {string(payload)},
		"f":        {"json"},
		"token":    {c.token},
	}
	var result struct {
		AddResults []struct {
			Success bool `json:"success"`
		} `json:"addResults"`
	}
	if err := c.postForm(layerPath(handle)+"/addFeatures", form, &result); err != nil {
		return 0, fmt.Errorf("adding features: %w", err)
	}

	added := 0
	for _, r := range result.AddResults {
		if r.Success {
			added++
		}
	}
	return added, nil
}

// truncate deletes every remote record on the layer.
func (c *Client) truncate(handle *ServiceHandle) error {
	form := url.Values{
		"where": {"1=1"},
		"f":     {"json"},
		"token": {c.token},
	}
	var result struct {
		Success bool `json:"success"`
	}
	if err := c.postForm(layerPath(handle)+"/deleteFeatures", form, &result); err != nil {
		return fmt.Errorf("truncating remote features: %w", err)
	}
	return nil
}

func (c *Client) shareEveryone(itemID string) error {
	form := url.Values{
		"everyone": {"true"},
		"f":        {"json"},
		"token":    {c.token},
	}
	var result struct {
		NotSharedWith []string `json:"notSharedWith"`
	}
	if err := c.postForm("/sharing/rest/content/items/"+itemID+"/share", form, &result); err != nil {
		return fmt.Errorf("sharing service publicly: %w", err)
	}
	return nil
}

// layerPath resolves the request path for a service's single layer.
// Handles from the portal carry absolute URLs; strip the portal prefix so
// requests go through the one configured client.
func layerPath(handle *ServiceHandle) string {
	u := handle.URL
	if i := strings.Index(u, "/rest/services/"); i >= 0 {
		u = u[i:]
	}
	return strings.TrimRight(u, "/") + "/0"
}

func (c *Client) getJSON(path string, params url.Values, dest any) error {
	resp, err := c.client.Get(c.portalURL + path + "?" + params.Encode())
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodePortal(resp, dest)
}

func (c *Client) postForm(path string, form url.Values, dest any) error {
	resp, err := c.client.PostForm(c.portalURL+path, form)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodePortal(resp, dest)
}

// decodePortal decodes a portal response, surfacing the JSON error object
// the portal returns with HTTP 200 on failure.
func decodePortal(resp *http.Response, dest any) error {
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return fmt.Errorf("decoding portal response: %w", err)
	}

	var perr struct {
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &perr); err == nil && perr.Error != nil {
		return fmt.Errorf("portal error %d: %s", perr.Error.Code, perr.Error.Message)
	}

	return json.Unmarshal(raw, dest)
}

func attrString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	}
	return fmt.Sprintf("%v", v)
}
