// Package provider talks to the external scanning provider (pentest-tools.com API v2).
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// API paths
const (
	PathTargets = "/targets"
	PathScans   = "/scans"
)

// Provider scan states
const (
	StateWaiting  = "waiting"
	StateQueued   = "queued"
	StateRunning  = "running"
	StateFinished = "finished"
)

// Common errors
var (
	ErrUnauthorized     = errors.New("provider rejected credentials")
	ErrNotFound         = errors.New("provider resource not found")
	ErrBadRequest       = errors.New("provider rejected request")
	ErrRateLimited      = errors.New("provider rate limit exceeded")
	ErrServerError      = errors.New("provider server error")
	ErrTimeout          = errors.New("provider request timeout")
	ErrConnectionFailed = errors.New("provider connection failed")
	ErrInvalidResponse  = errors.New("invalid provider response")
)

// Status is the provider's view of a running scan
type Status struct {
	State    string `json:"status"`
	Progress *int   `json:"progress,omitempty"`
}

// Pending reports whether the provider has not started the scan yet
func (s *Status) Pending() bool {
	return s.State == StateWaiting || s.State == StateQueued
}

// Output is the raw result document of a finished scan
type Output struct {
	Type string          `json:"output_type,omitempty"`
	Data json.RawMessage `json:"output_data"`
}

// Client is the contract of the scanning provider
type Client interface {
	CreateTarget(ctx context.Context, name string) (string, error)
	StartScan(ctx context.Context, tool ToolID, targetID string, params map[string]interface{}) (string, error)
	GetStatus(ctx context.Context, scanID string) (*Status, error)
	GetOutput(ctx context.Context, scanID string) (*Output, error)
	StopScan(ctx context.Context, scanID string) error
	DeleteScan(ctx context.Context, scanID string) error
}

// --- Client Configuration ---

// ClientOption represents a functional option for configuring the client
type ClientOption func(*ClientConfig) error

// ClientConfig represents the configuration for the client
type ClientConfig struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
	UserAgent  string
	RateLimit  rate.Limit
	Burst      int
	HTTPClient *http.Client
	Logger     *logrus.Logger
}

// DefaultClientConfig returns the default client configuration
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL:    "https://app.pentest-tools.com/api/v2",
		Timeout:    30 * time.Second,
		MaxRetries: 3,
		RetryDelay: time.Second,
		UserAgent:  "cobytes-scan-orchestrator/1.0",
		RateLimit:  rate.Limit(5),
		Burst:      5,
	}
}

// WithBaseURL sets the base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(config *ClientConfig) error {
		if baseURL == "" {
			return fmt.Errorf("base URL cannot be empty")
		}
		if _, err := url.Parse(baseURL); err != nil {
			return fmt.Errorf("invalid base URL: %w", err)
		}
		config.BaseURL = baseURL
		return nil
	}
}

// WithAPIKey sets the bearer API key
func WithAPIKey(key string) ClientOption {
	return func(config *ClientConfig) error {
		config.APIKey = key
		return nil
	}
}

// WithTimeout sets the per-request timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(config *ClientConfig) error {
		if timeout <= 0 {
			return fmt.Errorf("timeout must be positive")
		}
		config.Timeout = timeout
		return nil
	}
}

// WithRetryOptions sets the retry options
func WithRetryOptions(maxRetries int, retryDelay time.Duration) ClientOption {
	return func(config *ClientConfig) error {
		if maxRetries < 0 {
			return fmt.Errorf("max retries must be non-negative")
		}
		if retryDelay < 0 {
			return fmt.Errorf("retry delay must be non-negative")
		}
		config.MaxRetries = maxRetries
		config.RetryDelay = retryDelay
		return nil
	}
}

// WithRateLimit throttles outbound requests. A non-positive limit disables throttling.
func WithRateLimit(perSecond float64, burst int) ClientOption {
	return func(config *ClientConfig) error {
		if perSecond <= 0 {
			config.RateLimit = rate.Inf
			return nil
		}
		if burst < 1 {
			burst = 1
		}
		config.RateLimit = rate.Limit(perSecond)
		config.Burst = burst
		return nil
	}
}

// WithUserAgent sets the user agent
func WithUserAgent(userAgent string) ClientOption {
	return func(config *ClientConfig) error {
		if userAgent == "" {
			return fmt.Errorf("user agent cannot be empty")
		}
		config.UserAgent = userAgent
		return nil
	}
}

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) ClientOption {
	return func(config *ClientConfig) error {
		if client == nil {
			return fmt.Errorf("HTTP client cannot be nil")
		}
		config.HTTPClient = client
		return nil
	}
}

// WithLogger sets the logger
func WithLogger(log *logrus.Logger) ClientOption {
	return func(config *ClientConfig) error {
		config.Logger = log
		return nil
	}
}

// HTTPClient implements Client over the provider's REST API
type HTTPClient struct {
	config     ClientConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *logrus.Logger
}

// NewHTTPClient creates a new provider client
func NewHTTPClient(opts ...ClientOption) (*HTTPClient, error) {
	config := DefaultClientConfig()
	for _, opt := range opts {
		if err := opt(&config); err != nil {
			return nil, fmt.Errorf("option application failed: %w", err)
		}
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}
	log := config.Logger
	if log == nil {
		log = logrus.New()
	}

	return &HTTPClient{
		config:     config,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(config.RateLimit, config.Burst),
		log:        log,
	}, nil
}

// envelope is the provider's response wrapper
type envelope struct {
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// createdResponse carries the id of a created resource
type createdResponse struct {
	CreatedID flexID `json:"created_id"`
}

// flexID accepts either a JSON number or a JSON string
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

// CreateTarget registers a target and returns its provider id
func (c *HTTPClient) CreateTarget(ctx context.Context, name string) (string, error) {
	body := map[string]string{"name": name}

	var created createdResponse
	if err := c.doRequest(ctx, http.MethodPost, PathTargets, body, &created, false); err != nil {
		return "", errors.Wrapf(err, "create target %q", name)
	}
	if created.CreatedID == "" {
		return "", errors.Wrap(ErrInvalidResponse, "create target: missing created_id")
	}
	return string(created.CreatedID), nil
}

// StartScan submits a scan of targetID with the given tool and returns the provider scan id
func (c *HTTPClient) StartScan(ctx context.Context, tool ToolID, targetID string, params map[string]interface{}) (string, error) {
	body := map[string]interface{}{
		"tool_id":     int(tool),
		"tool_params": params,
	}
	if id, err := strconv.Atoi(targetID); err == nil {
		body["target_id"] = id
	} else {
		body["target_id"] = targetID
	}

	var created createdResponse
	if err := c.doRequest(ctx, http.MethodPost, PathScans, body, &created, false); err != nil {
		return "", errors.Wrapf(err, "start scan with tool %d", tool)
	}
	if created.CreatedID == "" {
		return "", errors.Wrap(ErrInvalidResponse, "start scan: missing created_id")
	}
	return string(created.CreatedID), nil
}

// scanInfo is the provider's scan resource
type scanInfo struct {
	StatusName string `json:"status_name"`
	Status     string `json:"status"`
	Progress   *int   `json:"progress"`
}

// GetStatus returns the provider status of a scan
func (c *HTTPClient) GetStatus(ctx context.Context, scanID string) (*Status, error) {
	var info scanInfo
	if err := c.doRequest(ctx, http.MethodGet, PathScans+"/"+url.PathEscape(scanID), nil, &info, true); err != nil {
		return nil, errors.Wrapf(err, "get status of scan %s", scanID)
	}

	state := info.StatusName
	if state == "" {
		state = info.Status
	}
	return &Status{State: strings.ToLower(state), Progress: info.Progress}, nil
}

// GetOutput returns the raw output of a finished scan
func (c *HTTPClient) GetOutput(ctx context.Context, scanID string) (*Output, error) {
	var out Output
	if err := c.doRequest(ctx, http.MethodGet, PathScans+"/"+url.PathEscape(scanID)+"/output", nil, &out, true); err != nil {
		return nil, errors.Wrapf(err, "get output of scan %s", scanID)
	}
	return &out, nil
}

// StopScan asks the provider to stop a running scan
func (c *HTTPClient) StopScan(ctx context.Context, scanID string) error {
	err := c.doRequest(ctx, http.MethodPost, PathScans+"/"+url.PathEscape(scanID)+"/stop", nil, nil, true)
	return errors.Wrapf(err, "stop scan %s", scanID)
}

// DeleteScan removes a scan at the provider
func (c *HTTPClient) DeleteScan(ctx context.Context, scanID string) error {
	err := c.doRequest(ctx, http.MethodDelete, PathScans+"/"+url.PathEscape(scanID), nil, nil, true)
	return errors.Wrapf(err, "delete scan %s", scanID)
}

// buildURL builds the full URL for a given path
func (c *HTTPClient) buildURL(path string) string {
	return strings.TrimSuffix(c.config.BaseURL, "/") + path
}

// doRequest sends a JSON request and decodes the data field of the response into out.
// Requests that create provider resources are not idempotent: a timeout or 5xx may
// mean the resource exists already, so they are only repeated after a 429.
func (c *HTTPClient) doRequest(ctx context.Context, method, path string, body, out interface{}, idempotent bool) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "marshal request body")
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			c.log.WithFields(logrus.Fields{
				"method":  method,
				"path":    path,
				"attempt": attempt,
			}).WithError(lastErr).Debug("Retrying provider request")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.config.RetryDelay):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return errors.Wrap(err, "rate limiter")
		}

		retry, err := c.attempt(ctx, method, path, payload, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry || (!idempotent && !errors.Is(err, ErrRateLimited)) {
			return err
		}
	}
	return lastErr
}

// attempt performs one HTTP round trip and reports whether a failure is worth retrying
func (c *HTTPClient) attempt(ctx context.Context, method, path string, payload []byte, out interface{}) (bool, error) {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.buildURL(path), bodyReader)
	if err != nil {
		return false, errors.Wrap(err, "create request")
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return true, errors.Wrap(ErrTimeout, err.Error())
		}
		return true, errors.Wrap(ErrConnectionFailed, err.Error())
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return true, errors.Wrap(ErrConnectionFailed, err.Error())
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return false, decodeData(data, out)
	}
	return resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests, statusError(resp.StatusCode, data)
}

// decodeData unwraps the provider envelope into out
func decodeData(body []byte, out interface{}) error {
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return errors.Wrap(ErrInvalidResponse, err.Error())
	}
	if len(env.Data) == 0 {
		return errors.Wrap(ErrInvalidResponse, "missing data field")
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return errors.Wrap(ErrInvalidResponse, err.Error())
	}
	return nil
}

// statusError maps a non-2xx response onto a sentinel error
func statusError(code int, body []byte) error {
	message := string(body)
	var env envelope
	if err := json.Unmarshal(body, &env); err == nil {
		if env.Message != "" {
			message = env.Message
		} else if env.Error != "" {
			message = env.Error
		}
	}
	message = truncate(message, 200)

	var base error
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		base = ErrUnauthorized
	case code == http.StatusNotFound:
		base = ErrNotFound
	case code == http.StatusTooManyRequests:
		base = ErrRateLimited
	case code >= 500:
		base = ErrServerError
	default:
		base = ErrBadRequest
	}
	return errors.Wrapf(base, "status %d: %s", code, message)
}

// truncate shortens s to at most limit bytes without splitting a rune
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
