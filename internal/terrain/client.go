// Package terrain provides a typed HTTP client for the Terrain API, covering
// the submission workflow: authenticate, discover an app and its parameters,
// construct a submission payload, submit, and list the resulting analyses.
package terrain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/cyverse-de/terrain-mcp/internal/metrics"
)

const (
	// defaultHTTPTimeout is the default timeout for HTTP requests
	defaultHTTPTimeout = 30 * time.Second
)

// Client is the HTTP client for the Terrain API. The token is written only
// by Authenticate or SetToken and read afterward, so a client may be shared
// by concurrent read-only calls once authenticated.
type Client struct {
	baseURL    string
	httpClient *http.Client
	creds      Credentials
	token      string
	metrics    *metrics.Metrics
}

// NewClient creates a new Terrain API client. A nil metrics value disables
// instrumentation.
func NewClient(baseURL string, creds Credentials, m *metrics.Metrics) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: defaultHTTPTimeout,
		},
		creds:   creds,
		metrics: m,
	}
}

// SetToken installs a pre-obtained bearer token, skipping the exchange.
func (c *Client) SetToken(token string) {
	c.token = token
}

// Token returns the bearer token currently held by the client.
func (c *Client) Token() string {
	return c.token
}

// Authenticate exchanges the client's credentials for a bearer token via
// GET /token/keycloak and stores it on the client. The token is not
// refreshed automatically; an expired token surfaces as an authentication
// error on the call that uses it and the caller decides whether to
// re-authenticate.
func (c *Client) Authenticate(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/token/keycloak", nil)
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.SetBasicAuth(c.creds.Username, c.creds.Password)

	startTime := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveRequest("token", "transport_error", time.Since(startTime))
		return "", &APIError{Kind: KindTransport, Method: "GET", Endpoint: "/token/keycloak", Err: err}
	}
	defer resp.Body.Close()

	duration := time.Since(startTime)
	slog.Info("api_call", "method", "GET", "endpoint", "/token/keycloak", "status", resp.StatusCode, "duration", duration)
	c.metrics.ObserveRequest("token", fmt.Sprintf("%d", resp.StatusCode), duration)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return "", &APIError{
			Kind:       KindAuthentication,
			Method:     "GET",
			Endpoint:   "/token/keycloak",
			StatusCode: resp.StatusCode,
			Body:       string(bodyBytes),
		}
	}

	var tokenResp TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}

	c.token = tokenResp.AccessToken
	slog.Info("token obtained", "expires_in", tokenResp.ExpiresIn)
	return c.token, nil
}

// doRequest performs an authenticated HTTP request and classifies failures.
// The endpoint argument is the logical endpoint name used for logging and
// metrics; path is the concrete request path including any query string.
func (c *Client) doRequest(ctx context.Context, method, path, endpoint string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	startTime := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveRequest(endpoint, "transport_error", time.Since(startTime))
		return nil, &APIError{Kind: KindTransport, Method: method, Endpoint: path, Err: err}
	}

	duration := time.Since(startTime)
	slog.Debug("api_call", "method", method, "path", path, "status", resp.StatusCode, "duration", duration)
	c.metrics.ObserveRequest(endpoint, fmt.Sprintf("%d", resp.StatusCode), duration)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, &APIError{
			Kind:       kindForStatus(resp.StatusCode),
			Method:     method,
			Endpoint:   path,
			StatusCode: resp.StatusCode,
			Body:       string(bodyBytes),
		}
	}

	return resp, nil
}

// doRequestAndDecode performs an HTTP request and decodes the JSON response.
func (c *Client) doRequestAndDecode(ctx context.Context, method, path, endpoint string, body io.Reader, result interface{}) error {
	resp, err := c.doRequest(ctx, method, path, endpoint, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// SearchApps searches the app catalog. Result ordering is whatever the
// service returns; exact-match disambiguation is the caller's job.
func (c *Client) SearchApps(ctx context.Context, term string) ([]App, error) {
	query := url.Values{}
	query.Set("search", term)

	path := "/apps?" + query.Encode()
	var appResp AppListResponse
	if err := c.doRequestAndDecode(ctx, "GET", path, "search_apps", nil, &appResp); err != nil {
		return nil, err
	}

	return appResp.Apps, nil
}

// GetApp fetches the full parameter metadata for an app. When the ref pins
// a version, the version-scoped endpoint is used.
func (c *Client) GetApp(ctx context.Context, ref AppRef) (*AppDetail, error) {
	path := fmt.Sprintf("/apps/%s/%s", url.PathEscape(ref.SystemID), url.PathEscape(ref.AppID))
	if ref.VersionID != "" {
		path += "/versions/" + url.PathEscape(ref.VersionID)
	}

	var detail AppDetail
	if err := c.doRequestAndDecode(ctx, "GET", path, "app_detail", nil, &detail); err != nil {
		return nil, err
	}

	return &detail, nil
}

// Submit sends a submission request via POST /analyses and returns the
// created analysis. Either the request is accepted and an analysis id comes
// back, or nothing is created; there is no partial success and no retry,
// since a resubmission would create a duplicate analysis.
func (c *Client) Submit(ctx context.Context, req *SubmissionRequest) (*Analysis, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal submission: %w", err)
	}

	var analysis Analysis
	if err := c.doRequestAndDecode(ctx, "POST", "/analyses", "submit", bytes.NewReader(body), &analysis); err != nil {
		c.metrics.IncSubmission("error")
		return nil, err
	}

	c.metrics.IncSubmission("ok")
	slog.Info("analysis submitted", "id", analysis.ID, "name", req.Name, "app_id", req.AppID)
	return &analysis, nil
}

// ListAnalyses lists analyses, optionally narrowed by exact-match filters
// and a result limit. Results come back in the service's default order,
// most-recent-first when unfiltered.
func (c *Client) ListAnalyses(ctx context.Context, filters []Filter, limit int) ([]Analysis, error) {
	query := url.Values{}
	if len(filters) > 0 {
		filterJSON, err := json.Marshal(filters)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal filter: %w", err)
		}
		query.Set("filter", string(filterJSON))
	}
	if limit > 0 {
		query.Set("limit", fmt.Sprintf("%d", limit))
	}

	path := "/analyses"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var listResp AnalysisListResponse
	if err := c.doRequestAndDecode(ctx, "GET", path, "list_analyses", nil, &listResp); err != nil {
		return nil, err
	}

	return listResp.Analyses, nil
}

// StopAnalysis requests termination of a running analysis. Stopping an
// already-stopped analysis is tolerated by the service, so the call is
// idempotent from the caller's perspective.
func (c *Client) StopAnalysis(ctx context.Context, analysisID string) (*Analysis, error) {
	path := fmt.Sprintf("/analyses/%s/stop", url.PathEscape(analysisID))

	var analysis Analysis
	if err := c.doRequestAndDecode(ctx, "POST", path, "stop", nil, &analysis); err != nil {
		return nil, err
	}

	slog.Info("analysis stopped", "id", analysisID, "status", analysis.Status)
	return &analysis, nil
}

// SaveFile writes content to a data store path via POST /fileio/saveas.
func (c *Client) SaveFile(ctx context.Context, content, dest string) (*SaveFileResponse, error) {
	body, err := json.Marshal(SaveFileRequest{Content: content, Dest: dest})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal save request: %w", err)
	}

	var saveResp SaveFileResponse
	if err := c.doRequestAndDecode(ctx, "POST", "/fileio/saveas", "saveas", bytes.NewReader(body), &saveResp); err != nil {
		return nil, err
	}

	return &saveResp, nil
}

// ListDirectory lists the files in a data store directory via the paged
// directory endpoint.
func (c *Client) ListDirectory(ctx context.Context, path string, limit int) (*DirectoryListing, error) {
	query := url.Values{}
	query.Set("path", path)
	if limit > 0 {
		query.Set("limit", fmt.Sprintf("%d", limit))
	}

	var listing DirectoryListing
	if err := c.doRequestAndDecode(ctx, "GET", "/filesystem/paged-directory?"+query.Encode(), "paged_directory", nil, &listing); err != nil {
		return nil, err
	}

	return &listing, nil
}
