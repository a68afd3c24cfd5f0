package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cobytes/scanOrchestratorGo/internal/auth"
	"github.com/cobytes/scanOrchestratorGo/internal/config"
	"github.com/cobytes/scanOrchestratorGo/internal/database/repositories"
	"github.com/cobytes/scanOrchestratorGo/internal/events"
	"github.com/cobytes/scanOrchestratorGo/internal/models"
	"github.com/cobytes/scanOrchestratorGo/internal/scan"
	"github.com/cobytes/scanOrchestratorGo/internal/utils"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	ownerToken = "owner-token"
	adminToken = "admin-token"
)

type testEnv struct {
	server   *Server
	scans    *MockScanService
	policies *MockPolicyService
	hub      *events.Hub
	db       *fakeDB
}

func testConfig() *config.Config {
	cfg := &config.Config{Version: "1.0.0-test"}
	cfg.Server.Mode = "test"
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Events.Heartbeat = 50 * time.Millisecond
	return cfg
}

func testAuthService() *auth.MockService {
	return &auth.MockService{
		VerifyFunc: func(ctx context.Context, token string) (*auth.TokenDetails, error) {
			switch token {
			case ownerToken:
				return &auth.TokenDetails{OwnerID: "owner-1", Roles: []string{}}, nil
			case adminToken:
				return &auth.TokenDetails{OwnerID: "root", Roles: []string{auth.RoleAdmin}}, nil
			}
			return nil, auth.ErrInvalidToken
		},
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	env := &testEnv{
		scans:    &MockScanService{},
		policies: &MockPolicyService{},
		hub:      events.NewHub(8, logger),
		db:       &fakeDB{},
	}
	server, err := NewServer(&ServerConfig{
		Config:           testConfig(),
		Logger:           logger,
		AuthService:      testAuthService(),
		Scans:            env.scans,
		Policies:         env.policies,
		Broker:           env.hub,
		DB:               env.db,
		SchedulerRunning: func() bool { return true },
		Runtime: func() models.RuntimeResponse {
			return models.RuntimeResponse{ActiveScans: 4, ScheduledPolicies: 2, DroppedEvents: 1}
		},
	})
	require.NoError(t, err)
	env.server = server
	t.Cleanup(func() { _ = env.hub.Close() })
	return env
}

func (e *testEnv) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.server.Router().ServeHTTP(w, req)
	return w
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *utils.APIError `json:"error"`
	Meta    *utils.Meta     `json:"meta"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

func runningScan(id, owner string) *models.Scan {
	started := time.Now().UTC()
	return &models.Scan{
		ID:             id,
		Target:         "example.com",
		Kind:           models.ScanKindPortScan,
		OwnerID:        owner,
		Status:         models.ScanStatusRunning,
		Progress:       40,
		ProviderScanID: "81233",
		CreatedAt:      started,
		UpdatedAt:      started,
		StartedAt:      &started,
	}
}

func TestNewServerRequiresDependencies(t *testing.T) {
	logger := logrus.New()
	full := func() *ServerConfig {
		return &ServerConfig{
			Config:      testConfig(),
			Logger:      logger,
			AuthService: testAuthService(),
			Scans:       &MockScanService{},
			Policies:    &MockPolicyService{},
			Broker:      events.NewHub(1, logger),
		}
	}

	tests := []struct {
		name   string
		mutate func(*ServerConfig)
		errMsg string
	}{
		{"valid", func(*ServerConfig) {}, ""},
		{"missing config", func(c *ServerConfig) { c.Config = nil }, "config is required"},
		{"missing logger", func(c *ServerConfig) { c.Logger = nil }, "logger is required"},
		{"missing auth", func(c *ServerConfig) { c.AuthService = nil }, "auth service is required"},
		{"missing scans", func(c *ServerConfig) { c.Scans = nil }, "scan service is required"},
		{"missing policies", func(c *ServerConfig) { c.Policies = nil }, "policy service is required"},
		{"missing broker", func(c *ServerConfig) { c.Broker = nil }, "event broker is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := full()
			tt.mutate(cfg)
			server, err := NewServer(cfg)
			if tt.errMsg != "" {
				assert.EqualError(t, err, tt.errMsg)
				assert.Nil(t, server)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, server.Router())
			assert.Equal(t, "127.0.0.1:0", server.Addr())
		})
	}
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/api/v1/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	var health models.HealthResponse
	require.NoError(t, json.Unmarshal(body.Data, &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "1.0.0-test", health.Version)
	assert.True(t, health.Scheduler)

	env.db.down = true
	w = env.do(http.MethodGet, "/api/v1/health", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	body = decode(t, w)
	assert.False(t, body.Success)
	require.NoError(t, json.Unmarshal(body.Data, &health))
	assert.Equal(t, "degraded", health.Status)
	assert.Equal(t, "unreachable", health.Database)
}

func TestRuntimeRequiresAdmin(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/api/v1/admin/runtime", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(http.MethodGet, "/api/v1/admin/runtime", ownerToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(http.MethodGet, "/api/v1/admin/runtime", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var runtime models.RuntimeResponse
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &runtime))
	assert.Equal(t, 4, runtime.ActiveScans)
	assert.Equal(t, 2, runtime.ScheduledPolicies)
	assert.Equal(t, uint64(1), runtime.DroppedEvents)
}

func TestUnknownRoute(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(http.MethodGet, "/api/v1/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestScanRoutesRequireAuthentication(t *testing.T) {
	env := newTestEnv(t)
	for _, path := range []string{"/api/v1/scans", "/api/v1/scans/kinds", "/api/v1/scans/s1", "/api/v1/policies"} {
		w := env.do(http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)

		w = env.do(http.MethodGet, path, "forged", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
	env.scans.AssertNotCalled(t, "GetScan", mock.Anything, mock.Anything)
}

func TestListScanKinds(t *testing.T) {
	env := newTestEnv(t)
	kinds := []models.ScanKindInfo{{Kind: models.ScanKindPortScan, ToolID: 170, ToolName: "Port Scanner"}}
	env.scans.On("Kinds").Return(kinds)

	w := env.do(http.MethodGet, "/api/v1/scans/kinds", ownerToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got []models.ScanKindInfo
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &got))
	assert.Equal(t, kinds, got)
}

func TestCreateScan(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		env := newTestEnv(t)
		created := &models.Scan{
			ID:        "scan-1",
			Target:    "example.com",
			Kind:      models.ScanKindPortScan,
			OwnerID:   "owner-1",
			Status:    models.ScanStatusPending,
			CreatedAt: time.Now().UTC(),
		}
		env.scans.On("CreateScan", mock.Anything, mock.MatchedBy(func(in scan.CreateScanInput) bool {
			return in.Target == "example.com" &&
				in.Kind == models.ScanKindPortScan &&
				in.OwnerID == "owner-1" &&
				in.Parameters["ports"] == "top_100"
		})).Return(created, nil)

		w := env.do(http.MethodPost, "/api/v1/scans", ownerToken, map[string]interface{}{
			"target":     "  example.com ",
			"kind":       "PORT_SCAN",
			"parameters": map[string]interface{}{"ports": "top_100"},
		})
		require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
		assert.Equal(t, "/api/v1/scans/scan-1", w.Header().Get("Location"))

		var resp models.ScanResponse
		require.NoError(t, json.Unmarshal(decode(t, w).Data, &resp))
		assert.Equal(t, "scan-1", resp.ID)
		assert.Equal(t, models.ScanStatusPending, resp.Status)
		env.scans.AssertExpectations(t)
	})

	t.Run("rejected before dispatch", func(t *testing.T) {
		env := newTestEnv(t)
		tests := []struct {
			name string
			body map[string]interface{}
		}{
			{"missing target", map[string]interface{}{"kind": "port_scan"}},
			{"malformed target", map[string]interface{}{"target": "exa mple..com", "kind": "port_scan"}},
			{"unsupported scheme", map[string]interface{}{"target": "ftp://example.com", "kind": "port_scan"}},
			{"unknown kind", map[string]interface{}{"target": "example.com", "kind": "teleport"}},
		}
		for _, tt := range tests {
			w := env.do(http.MethodPost, "/api/v1/scans", ownerToken, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, tt.name)
			assert.False(t, decode(t, w).Success, tt.name)
		}
		env.scans.AssertNotCalled(t, "CreateScan", mock.Anything, mock.Anything)
	})

	t.Run("error mapping", func(t *testing.T) {
		tests := []struct {
			err    error
			status int
			code   string
		}{
			{scan.ErrShuttingDown, http.StatusServiceUnavailable, CodeUnavailable},
			{fmt.Errorf("%w: 5 scans in 24h0m0s", scan.ErrQuotaExceeded), http.StatusForbidden, CodeQuotaExceeded},
			{fmt.Errorf("%w: target is required", scan.ErrValidation), http.StatusBadRequest, CodeValidation},
			{fmt.Errorf("disk full"), http.StatusInternalServerError, CodeInternal},
		}
		for _, tt := range tests {
			env := newTestEnv(t)
			env.scans.On("CreateScan", mock.Anything, mock.Anything).Return(nil, tt.err)
			w := env.do(http.MethodPost, "/api/v1/scans", ownerToken, map[string]string{
				"target": "10.0.0.0/24",
				"kind":   "network_scan",
			})
			assert.Equal(t, tt.status, w.Code, tt.err.Error())
			body := decode(t, w)
			require.NotNil(t, body.Error)
			assert.Equal(t, tt.code, body.Error.Code)
			if tt.status == http.StatusInternalServerError {
				assert.NotContains(t, body.Error.Message, "disk full")
			}
		}
	})
}

func TestListScansScoping(t *testing.T) {
	t.Run("owner sees own scans", func(t *testing.T) {
		env := newTestEnv(t)
		filter := repositories.ScanFilter{
			OwnerID: "owner-1",
			Status:  models.ScanStatusRunning,
			Kind:    models.ScanKindPortScan,
			Offset:  10,
			Limit:   10,
		}
		env.scans.On("ListScans", mock.Anything, filter).
			Return([]models.Scan{*runningScan("s1", "owner-1")}, int64(11), nil)

		w := env.do(http.MethodGet, "/api/v1/scans?status=running&kind=port_scan&page=2&page_size=10&owner_id=someone", ownerToken, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		body := decode(t, w)
		var items []models.ScanResponse
		require.NoError(t, json.Unmarshal(body.Data, &items))
		require.Len(t, items, 1)
		assert.Equal(t, "s1", items[0].ID)
		assert.Equal(t, int64(11), body.Meta.Total)
		assert.Equal(t, 2, body.Meta.TotalPages)
		env.scans.AssertExpectations(t)
	})

	t.Run("admin may filter by owner", func(t *testing.T) {
		env := newTestEnv(t)
		filter := repositories.ScanFilter{OwnerID: "owner-2", Limit: 20}
		env.scans.On("ListScans", mock.Anything, filter).Return([]models.Scan{}, int64(0), nil)

		w := env.do(http.MethodGet, "/api/v1/scans?owner_id=owner-2", adminToken, nil)
		require.Equal(t, http.StatusOK, w.Code)
		env.scans.AssertExpectations(t)
	})

	t.Run("invalid filters", func(t *testing.T) {
		env := newTestEnv(t)
		for _, q := range []string{"status=paused", "kind=teleport"} {
			w := env.do(http.MethodGet, "/api/v1/scans?"+q, ownerToken, nil)
			assert.Equal(t, http.StatusBadRequest, w.Code, q)
		}
		env.scans.AssertNotCalled(t, "ListScans", mock.Anything, mock.Anything)
	})
}

func TestGetScanVisibility(t *testing.T) {
	env := newTestEnv(t)
	env.scans.On("GetScan", mock.Anything, "mine").Return(runningScan("mine", "owner-1"), nil)
	env.scans.On("GetScan", mock.Anything, "theirs").Return(runningScan("theirs", "owner-2"), nil)
	env.scans.On("GetScan", mock.Anything, "missing").Return(nil, fmt.Errorf("%w: scan missing", scan.ErrNotFound))

	w := env.do(http.MethodGet, "/api/v1/scans/mine", ownerToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp models.ScanResponse
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &resp))
	assert.Equal(t, models.ScanStatusRunning, resp.Status)
	assert.Equal(t, 40, resp.Progress)

	w = env.do(http.MethodGet, "/api/v1/scans/theirs", ownerToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodGet, "/api/v1/scans/theirs", adminToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodGet, "/api/v1/scans/missing", ownerToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, CodeNotFound, decode(t, w).Error.Code)
}

func TestListFindings(t *testing.T) {
	env := newTestEnv(t)
	done := runningScan("s1", "owner-1")
	done.Status = models.ScanStatusCompleted
	done.Progress = 100
	env.scans.On("GetScan", mock.Anything, "s1").Return(done, nil)
	env.scans.On("ListFindings", mock.Anything, "s1").Return([]models.Finding{
		{ScanID: "s1", Title: "Exposed admin panel", Severity: models.SeverityHigh},
		{ScanID: "s1", Title: "Open port 443", Severity: models.SeverityInfo},
		{ScanID: "s1", Title: "Outdated TLS", Severity: models.SeverityMedium},
	}, nil)

	w := env.do(http.MethodGet, "/api/v1/scans/s1/findings", ownerToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var all models.FindingListResponse
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &all))
	assert.Len(t, all.Findings, 3)
	assert.Equal(t, 3, all.Summary.Total)
	assert.Equal(t, 1, all.Summary.High)

	w = env.do(http.MethodGet, "/api/v1/scans/s1/findings?min_severity=medium", ownerToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var filtered models.FindingListResponse
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &filtered))
	assert.Len(t, filtered.Findings, 2)
	assert.Equal(t, 0, filtered.Summary.Info)
}

func TestCancelScan(t *testing.T) {
	env := newTestEnv(t)
	env.scans.On("GetScan", mock.Anything, "active").Return(runningScan("active", "owner-1"), nil)
	cancelled := runningScan("active", "owner-1")
	cancelled.Status = models.ScanStatusCancelled
	env.scans.On("CancelScan", mock.Anything, "active").Return(cancelled, nil)

	done := runningScan("done", "owner-1")
	done.Status = models.ScanStatusCompleted
	env.scans.On("GetScan", mock.Anything, "done").Return(done, nil)
	env.scans.On("CancelScan", mock.Anything, "done").
		Return(nil, fmt.Errorf("%w: scan is COMPLETED", scan.ErrInvalidTransition))

	w := env.do(http.MethodPost, "/api/v1/scans/active/cancel", ownerToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp models.ScanResponse
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &resp))
	assert.Equal(t, models.ScanStatusCancelled, resp.Status)

	w = env.do(http.MethodPost, "/api/v1/scans/done/cancel", ownerToken, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, CodeInvalidTransition, decode(t, w).Error.Code)
}

func TestDeleteScan(t *testing.T) {
	env := newTestEnv(t)
	env.scans.On("GetScan", mock.Anything, "s1").Return(runningScan("s1", "owner-1"), nil)
	env.scans.On("DeleteScan", mock.Anything, "s1").Return(nil)
	env.scans.On("GetScan", mock.Anything, "s2").Return(runningScan("s2", "owner-2"), nil)

	w := env.do(http.MethodDelete, "/api/v1/scans/s1", ownerToken, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(http.MethodDelete, "/api/v1/scans/s2", ownerToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	env.scans.AssertNotCalled(t, "DeleteScan", mock.Anything, "s2")
}

func testPolicy(id, owner string) *models.RecurrencePolicy {
	next := time.Now().UTC().Add(time.Hour)
	return &models.RecurrencePolicy{
		ID:         id,
		Name:       "Nightly subdomains",
		Target:     "example.com",
		Kind:       models.ScanKindSubdomainFinder,
		Frequency:  models.FrequencyDaily,
		NextFireAt: &next,
		Active:     true,
		OwnerID:    owner,
	}
}

func TestPolicyRoutes(t *testing.T) {
	t.Run("create", func(t *testing.T) {
		env := newTestEnv(t)
		env.policies.On("CreatePolicy", mock.Anything, mock.MatchedBy(func(req models.CreatePolicyRequest) bool {
			return req.Name == "Nightly subdomains" && req.Frequency == models.FrequencyDaily
		}), "owner-1").Return(testPolicy("p1", "owner-1"), nil)

		w := env.do(http.MethodPost, "/api/v1/policies", ownerToken, map[string]interface{}{
			"name":      "Nightly subdomains",
			"target":    "example.com",
			"kind":      "subdomain_finder",
			"frequency": "DAILY",
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		assert.Equal(t, "/api/v1/policies/p1", w.Header().Get("Location"))
		env.policies.AssertExpectations(t)
	})

	t.Run("create rejects invalid input", func(t *testing.T) {
		env := newTestEnv(t)
		w := env.do(http.MethodPost, "/api/v1/policies", ownerToken, map[string]interface{}{
			"name":      "No target",
			"kind":      "subdomain_finder",
			"frequency": "DAILY",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)

		w = env.do(http.MethodPost, "/api/v1/policies", ownerToken, map[string]interface{}{
			"name":      "Zero runs",
			"target":    "example.com",
			"kind":      "subdomain_finder",
			"frequency": "DAILY",
			"max_runs":  0,
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		env.policies.AssertNotCalled(t, "CreatePolicy", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("list is scoped to the caller", func(t *testing.T) {
		env := newTestEnv(t)
		filter := repositories.PolicyFilter{OwnerID: "owner-1", ActiveOnly: true, Limit: 20}
		env.policies.On("ListPolicies", mock.Anything, filter).
			Return([]models.RecurrencePolicy{*testPolicy("p1", "owner-1")}, int64(1), nil)

		w := env.do(http.MethodGet, "/api/v1/policies?active_only=true", ownerToken, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var items []models.RecurrencePolicy
		require.NoError(t, json.Unmarshal(decode(t, w).Data, &items))
		assert.Len(t, items, 1)
		env.policies.AssertExpectations(t)
	})

	t.Run("get update delete", func(t *testing.T) {
		env := newTestEnv(t)
		env.policies.On("GetPolicy", mock.Anything, "p1").Return(testPolicy("p1", "owner-1"), nil)
		env.policies.On("GetPolicy", mock.Anything, "p2").Return(testPolicy("p2", "owner-2"), nil)

		paused := testPolicy("p1", "owner-1")
		paused.Active = false
		env.policies.On("UpdatePolicy", mock.Anything, "p1", mock.MatchedBy(func(req models.UpdatePolicyRequest) bool {
			return req.Active != nil && !*req.Active
		})).Return(paused, nil)
		env.policies.On("DeletePolicy", mock.Anything, "p1").Return(nil)

		w := env.do(http.MethodGet, "/api/v1/policies/p1", ownerToken, nil)
		assert.Equal(t, http.StatusOK, w.Code)

		w = env.do(http.MethodGet, "/api/v1/policies/p2", ownerToken, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)

		w = env.do(http.MethodPut, "/api/v1/policies/p1", ownerToken, map[string]interface{}{"active": false})
		require.Equal(t, http.StatusOK, w.Code)
		var updated models.RecurrencePolicy
		require.NoError(t, json.Unmarshal(decode(t, w).Data, &updated))
		assert.False(t, updated.Active)

		w = env.do(http.MethodPut, "/api/v1/policies/p1", ownerToken, map[string]interface{}{"target": "not a host"})
		assert.Equal(t, http.StatusBadRequest, w.Code)

		w = env.do(http.MethodDelete, "/api/v1/policies/p1", ownerToken, nil)
		assert.Equal(t, http.StatusNoContent, w.Code)
		env.policies.AssertExpectations(t)
	})
}

// readSSE collects events from an SSE body until it ends
func readSSE(t *testing.T, body io.Reader, onEvent func(eventType string, data string)) {
	t.Helper()
	scanner := bufio.NewScanner(body)
	var eventType string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			onEvent(eventType, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
}

func TestStreamScanEventsSSE(t *testing.T) {
	env := newTestEnv(t)
	env.scans.On("GetScan", mock.Anything, "s1").Return(runningScan("s1", "owner-1"), nil)

	srv := httptest.NewServer(env.server.Router())
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/scans/s1/events", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+ownerToken)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var seen []models.ScanEvent
	readSSE(t, resp.Body, func(eventType, data string) {
		var event models.ScanEvent
		require.NoError(t, json.Unmarshal([]byte(data), &event))
		assert.Equal(t, string(event.Type), eventType)
		seen = append(seen, event)

		// The snapshot arrives after the subscription is in place
		if len(seen) == 1 {
			completed := *runningScan("s1", "owner-1")
			completed.Status = models.ScanStatusCompleted
			completed.Progress = 100
			require.NoError(t, env.hub.Publish(context.Background(), "s1",
				models.NewScanEvent(&completed, models.ScanEventCompleted, "Scan completed")))
		}
	})

	require.Len(t, seen, 2)
	assert.Equal(t, models.ScanEventStatus, seen[0].Type)
	assert.Equal(t, 40, seen[0].Progress)
	assert.Equal(t, models.ScanEventCompleted, seen[1].Type)
	assert.Equal(t, 100, seen[1].Progress)

	assert.Eventually(t, func() bool { return env.hub.SubscriberCount("s1") == 0 }, time.Second, 10*time.Millisecond)
}

func TestStreamScanEventsTerminalSnapshot(t *testing.T) {
	env := newTestEnv(t)
	done := runningScan("s1", "owner-1")
	done.Status = models.ScanStatusCompleted
	done.Progress = 100
	env.scans.On("GetScan", mock.Anything, "s1").Return(done, nil)
	env.scans.On("ListFindings", mock.Anything, "s1").Return([]models.Finding{
		{ScanID: "s1", Title: "Open port 22", Severity: models.SeverityLow},
	}, nil)

	srv := httptest.NewServer(env.server.Router())
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/scans/s1/events?access_token="+ownerToken, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var seen []models.ScanEvent
	readSSE(t, resp.Body, func(_ string, data string) {
		var event models.ScanEvent
		require.NoError(t, json.Unmarshal([]byte(data), &event))
		seen = append(seen, event)
	})
	require.Len(t, seen, 1)
	assert.Equal(t, models.ScanEventCompleted, seen[0].Type)
	assert.Equal(t, 1, seen[0].FindingsCount)
	require.NotNil(t, seen[0].Summary)
	assert.Equal(t, 1, seen[0].Summary.Low)
}

func TestStreamScanEventsHidesOtherOwners(t *testing.T) {
	env := newTestEnv(t)
	env.scans.On("GetScan", mock.Anything, "s1").Return(runningScan("s1", "owner-2"), nil)

	w := env.do(http.MethodGet, "/api/v1/scans/s1/events", ownerToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 0, env.hub.SubscriberCount("s1"))
}

func TestStreamScanWebSocket(t *testing.T) {
	env := newTestEnv(t)
	env.scans.On("GetScan", mock.Anything, "s1").Return(runningScan("s1", "owner-1"), nil)

	srv := httptest.NewServer(env.server.Router())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/scans/s1/ws?access_token=" + ownerToken
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var snapshot models.ScanEvent
	require.NoError(t, conn.ReadJSON(&snapshot))
	assert.Equal(t, models.ScanEventStatus, snapshot.Type)
	assert.Equal(t, models.ScanStatusRunning, snapshot.Status)

	failed := runningScan("s1", "owner-1")
	failed.Status = models.ScanStatusFailed
	require.NoError(t, env.hub.Publish(context.Background(), "s1",
		models.NewScanEvent(failed, models.ScanEventFailed, "provider unreachable")))

	var final models.ScanEvent
	require.NoError(t, conn.ReadJSON(&final))
	assert.Equal(t, models.ScanEventFailed, final.Type)
	assert.Equal(t, "provider unreachable", final.Message)

	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)
}

func TestStreamScanWebSocketRejectsUnauthenticated(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.server.Router())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/scans/s1/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestShutdownEndsStreams(t *testing.T) {
	env := newTestEnv(t)
	env.scans.On("GetScan", mock.Anything, "s1").Return(runningScan("s1", "owner-1"), nil)

	srv := httptest.NewServer(env.server.Router())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/scans/s1/ws?access_token=" + ownerToken
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var snapshot models.ScanEvent
	require.NoError(t, conn.ReadJSON(&snapshot))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, env.server.Shutdown(ctx))

	// Pings may arrive before the close frame; ReadMessage handles them internally
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "unexpected error: %v", err)
}
