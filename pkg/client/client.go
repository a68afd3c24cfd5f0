// Package client is a Go client for the scan orchestrator HTTP API.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cobytes/scanOrchestratorGo/internal/models"
)

// API paths
const (
	APIBasePath     = "/api/v1"
	APIPathHealth   = "/health"
	APIPathScans    = "/scans"
	APIPathKinds    = "/scans/kinds"
	APIPathPolicies = "/policies"
	APIPathRuntime  = "/admin/runtime"
)

// Common errors
var (
	ErrNotFound         = errors.New("resource not found")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrForbidden        = errors.New("forbidden")
	ErrBadRequest       = errors.New("bad request")
	ErrConflict         = errors.New("conflict")
	ErrRateLimited      = errors.New("rate limited")
	ErrUnavailable      = errors.New("service unavailable")
	ErrServerError      = errors.New("server error")
	ErrTimeout          = errors.New("request timeout")
	ErrConnectionFailed = errors.New("connection failed")
)

// --- Client Configuration ---

// ClientOption represents a functional option for configuring the client
type ClientOption func(*ClientConfig) error

// ClientConfig represents the configuration for the client
type ClientConfig struct {
	BaseURL               string
	Timeout               time.Duration
	MaxRetries            int
	RetryDelay            time.Duration
	UserAgent             string
	AccessToken           string
	HTTPClient            *http.Client
	Headers               map[string]string
	TLSInsecureSkipVerify bool
}

// DefaultClientConfig returns the default client configuration
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL:    "http://localhost:8080",
		Timeout:    30 * time.Second,
		MaxRetries: 3,
		RetryDelay: time.Second,
		UserAgent:  "scanctl/1.0",
		Headers:    make(map[string]string),
	}
}

// WithBaseURL sets the base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(config *ClientConfig) error {
		if baseURL == "" {
			return errors.New("base URL cannot be empty")
		}
		parsed, err := url.Parse(baseURL)
		if err != nil {
			return fmt.Errorf("invalid base URL: %w", err)
		}
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return fmt.Errorf("invalid base URL scheme %q", parsed.Scheme)
		}
		config.BaseURL = baseURL
		return nil
	}
}

// WithTimeout sets the timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(config *ClientConfig) error {
		if timeout <= 0 {
			return errors.New("timeout must be positive")
		}
		config.Timeout = timeout
		return nil
	}
}

// WithRetryOptions sets the retry options
func WithRetryOptions(maxRetries int, retryDelay time.Duration) ClientOption {
	return func(config *ClientConfig) error {
		if maxRetries < 0 {
			return errors.New("max retries must be non-negative")
		}
		if retryDelay < 0 {
			return errors.New("retry delay must be non-negative")
		}
		config.MaxRetries = maxRetries
		config.RetryDelay = retryDelay
		return nil
	}
}

// WithUserAgent sets the user agent
func WithUserAgent(userAgent string) ClientOption {
	return func(config *ClientConfig) error {
		if userAgent == "" {
			return errors.New("user agent cannot be empty")
		}
		config.UserAgent = userAgent
		return nil
	}
}

// WithAccessToken sets the bearer token
func WithAccessToken(token string) ClientOption {
	return func(config *ClientConfig) error {
		config.AccessToken = token
		return nil
	}
}

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) ClientOption {
	return func(config *ClientConfig) error {
		if client == nil {
			return errors.New("HTTP client cannot be nil")
		}
		config.HTTPClient = client
		return nil
	}
}

// WithHeader adds an HTTP header
func WithHeader(key, value string) ClientOption {
	return func(config *ClientConfig) error {
		if key == "" {
			return errors.New("header key cannot be empty")
		}
		if config.Headers == nil {
			config.Headers = make(map[string]string)
		}
		config.Headers[key] = value
		return nil
	}
}

// WithTLSInsecureSkipVerify disables server certificate verification
func WithTLSInsecureSkipVerify(skip bool) ClientOption {
	return func(config *ClientConfig) error {
		config.TLSInsecureSkipVerify = skip
		return nil
	}
}

// Page describes one page of a list response
type Page struct {
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
	TotalPages int   `json:"total_pages"`
	Total      int64 `json:"total"`
}

// ListOptions selects a page of a list endpoint
type ListOptions struct {
	Page     int
	PageSize int
}

func (o ListOptions) apply(q url.Values) {
	if o.Page > 0 {
		q.Set("page", fmt.Sprint(o.Page))
	}
	if o.PageSize > 0 {
		q.Set("page_size", fmt.Sprint(o.PageSize))
	}
}

// envelope is the response body every endpoint answers with
type envelope struct {
	Success bool              `json:"success"`
	Data    json.RawMessage   `json:"data"`
	Error   *models.ErrorInfo `json:"error"`
	Meta    *Page             `json:"meta"`
}

// APIClient talks to the scan orchestrator API
type APIClient struct {
	config      ClientConfig
	httpClient  *http.Client
	accessToken string
}

// NewClient creates a new API client
func NewClient(opts ...ClientOption) (*APIClient, error) {
	config := DefaultClientConfig()

	for _, opt := range opts {
		if err := opt(&config); err != nil {
			return nil, fmt.Errorf("option application failed: %w", err)
		}
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: config.Timeout,
			Transport: &http.Transport{
				Proxy:           http.ProxyFromEnvironment,
				TLSClientConfig: &tls.Config{InsecureSkipVerify: config.TLSInsecureSkipVerify}, // #nosec G402 -- opt-in
			},
		}
	}

	return &APIClient{
		config:      config,
		httpClient:  httpClient,
		accessToken: config.AccessToken,
	}, nil
}

// buildURL builds the full URL for a given path
func (c *APIClient) buildURL(path string) string {
	baseURL := strings.TrimSuffix(c.config.BaseURL, "/")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return baseURL + APIBasePath + path
}

// newRequest creates a new HTTP request
func (c *APIClient) newRequest(ctx context.Context, method, path string, body interface{}) (*http.Request, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.buildURL(path), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)
	for key, value := range c.config.Headers {
		req.Header.Set(key, value)
	}
	return req, nil
}

// statusError maps an HTTP status onto a client error
func statusError(status int) error {
	switch status {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusConflict:
		return ErrConflict
	case http.StatusTooManyRequests:
		return ErrRateLimited
	case http.StatusServiceUnavailable:
		return ErrUnavailable
	}
	return ErrServerError
}

// handleResponse decodes the envelope's data into out and turns error envelopes into errors
func (c *APIClient) handleResponse(resp *http.Response, out interface{}) (*Page, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response body: %w", statusError(resp.StatusCode), err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if resp.StatusCode == http.StatusNoContent || out == nil {
			return nil, nil
		}
		var env envelope
		if err := json.Unmarshal(body, &env); err != nil {
			return nil, fmt.Errorf("failed to decode response body: %w", err)
		}
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, out); err != nil {
				return nil, fmt.Errorf("failed to decode response data: %w", err)
			}
		}
		return env.Meta, nil
	}

	baseErr := statusError(resp.StatusCode)
	var env envelope
	if err := json.Unmarshal(body, &env); err == nil && env.Error != nil && env.Error.Message != "" {
		if env.Error.Code != "" {
			return nil, fmt.Errorf("%w: API error (%s): %s", baseErr, env.Error.Code, env.Error.Message)
		}
		return nil, fmt.Errorf("%w: %s", baseErr, env.Error.Message)
	}

	bodySnippet := string(body)
	if len(bodySnippet) > 100 {
		bodySnippet = bodySnippet[:100] + "..."
	}
	return nil, fmt.Errorf("%w: status %d (body: %s)", baseErr, resp.StatusCode, bodySnippet)
}

// Do sends an HTTP request, retrying timeouts and 5xx answers
func (c *APIClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if req.Header.Get("Authorization") == "" && c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}

	var reqBodyBytes []byte
	if req.Body != nil {
		var err error
		reqBodyBytes, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read request body for retry: %w", err)
		}
		_ = req.Body.Close()
	}

	var resp *http.Response
	for retry := 0; ; retry++ {
		if reqBodyBytes != nil {
			req.Body = io.NopCloser(bytes.NewReader(reqBodyBytes))
		}

		var err error
		resp, err = c.httpClient.Do(req)
		if err != nil {
			var urlErr *url.Error
			if errors.As(err, &urlErr) && urlErr.Timeout() {
				if retry < c.config.MaxRetries && c.wait(ctx) {
					continue
				}
				return nil, ErrTimeout
			}
			return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
		}

		if resp.StatusCode >= 500 && retry < c.config.MaxRetries {
			resp.Body.Close()
			if c.wait(ctx) {
				continue
			}
			return nil, ctx.Err()
		}
		return resp, nil
	}
}

func (c *APIClient) wait(ctx context.Context) bool {
	timer := time.NewTimer(c.config.RetryDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// doRequest sends a request and decodes the response into out
func (c *APIClient) doRequest(ctx context.Context, method, path string, body, out interface{}) (*Page, error) {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return nil, err
	}

	resp, err := c.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return c.handleResponse(resp, out)
}

// Health checks the API health. A degraded server answers with ErrUnavailable.
func (c *APIClient) Health(ctx context.Context) (*models.HealthResponse, error) {
	var result models.HealthResponse
	if _, err := c.doRequest(ctx, http.MethodGet, APIPathHealth, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Runtime returns the orchestrator's in-flight counters. It requires an admin token.
func (c *APIClient) Runtime(ctx context.Context) (*models.RuntimeResponse, error) {
	var result models.RuntimeResponse
	if _, err := c.doRequest(ctx, http.MethodGet, APIPathRuntime, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
