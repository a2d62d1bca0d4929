package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/verte-zerg/typestream/internal/model"
)

const defaultHTTPTimeout = 10 * time.Second

// APIError is a failed API response.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("server returned %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

// API is an HTTP client for the session and results endpoints.
type API struct {
	base *url.URL
	http *http.Client
}

// NewAPI returns an API client for serverURL. A nil httpClient uses a
// client with a short timeout.
func NewAPI(serverURL string, httpClient *http.Client) (*API, error) {
	base, err := url.Parse(strings.TrimSuffix(serverURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("unsupported server url scheme %q", base.Scheme)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &API{base: base, http: httpClient}, nil
}

// CreateSession asks for a new session. A zero wordCount uses the server default.
func (a *API) CreateSession(ctx context.Context, wordCount int) (model.CreateSessionResponse, error) {
	var req model.CreateSessionRequest
	if wordCount > 0 {
		req.WordCount = &wordCount
	}
	var resp model.CreateSessionResponse
	err := a.do(ctx, http.MethodPost, "/api/session", nil, req, &resp)
	return resp, err
}

// SessionMetrics returns the current figures of a session.
func (a *API) SessionMetrics(ctx context.Context, sessionID string) (model.SessionMetricsResponse, error) {
	var resp model.SessionMetricsResponse
	err := a.do(ctx, http.MethodGet, "/api/session/"+url.PathEscape(sessionID)+"/metrics", nil, nil, &resp)
	return resp, err
}

// Results returns the last limit results and the all-time summary.
func (a *API) Results(ctx context.Context, limit int) (model.ResultsResponse, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var resp model.ResultsResponse
	err := a.do(ctx, http.MethodGet, "/api/results", query, nil, &resp)
	return resp, err
}

// Health reports whether the server answers its health check.
func (a *API) Health(ctx context.Context) error {
	var resp model.HealthResponse
	if err := a.do(ctx, http.MethodGet, "/health", nil, nil, &resp); err != nil {
		return err
	}
	if resp.Status != "healthy" {
		return fmt.Errorf("server reported status %q", resp.Status)
	}
	return nil
}

// URL returns the server base URL.
func (a *API) URL() string {
	return a.base.String()
}

func (a *API) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	target := *a.base
	target.Path = a.base.Path + path
	target.RawQuery = query.Encode()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	var req *http.Request
	var err error
	if reader != nil {
		req, err = http.NewRequestWithContext(ctx, method, target.String(), reader)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, target.String(), nil)
	}
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		var errResp model.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil || errResp.Message == "" {
			return &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return &APIError{StatusCode: resp.StatusCode, Code: errResp.ErrorCode, Message: errResp.Message}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
