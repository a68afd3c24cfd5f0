package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cobytes/scanOrchestratorGo/internal/api"
	"github.com/cobytes/scanOrchestratorGo/internal/auth"
	"github.com/cobytes/scanOrchestratorGo/internal/config"
	"github.com/cobytes/scanOrchestratorGo/internal/database"
	"github.com/cobytes/scanOrchestratorGo/internal/database/repositories"
	"github.com/cobytes/scanOrchestratorGo/internal/events"
	"github.com/cobytes/scanOrchestratorGo/internal/models"
	"github.com/cobytes/scanOrchestratorGo/internal/normalizer"
	"github.com/cobytes/scanOrchestratorGo/internal/provider"
	"github.com/cobytes/scanOrchestratorGo/internal/scan"
	"github.com/cobytes/scanOrchestratorGo/internal/scheduler"
	"github.com/cobytes/scanOrchestratorGo/pkg/client"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

const testSecret = "integration-secret-that-is-long-enough"

// fakeProvider imitates the scanning provider's REST API
type fakeProvider struct {
	mu sync.Mutex
	// finalState is reported once a scan has been polled twice; empty keeps it running
	finalState string
	output     string
	nextID     int
	polls      map[string]int
	stopped    []string
	calls      []string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		finalState: provider.StateFinished,
		output:     `{"output_type":"finding_list","output_data":{"subdomains":[{"name":"a.example.com"},"b.example.com"]}}`,
		nextID:     200,
		polls:      map[string]int{},
	}
}

func (p *fakeProvider) set(finalState, output string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finalState = finalState
	if output != "" {
		p.output = output
	}
}

func (p *fakeProvider) stops() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.stopped...)
}

func (p *fakeProvider) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, r.Method+" "+r.URL.Path)

	w.Header().Set("Content-Type", "application/json")
	if r.Header.Get("Authorization") != "Bearer provider-key" {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":"bad key"}`)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/")
	parts := strings.Split(path, "/")
	switch {
	case r.Method == http.MethodPost && path == "targets":
		_, _ = io.WriteString(w, `{"data":{"created_id":100}}`)
	case r.Method == http.MethodPost && path == "scans":
		p.nextID++
		fmt.Fprintf(w, `{"data":{"created_id":"%d"}}`, p.nextID)
	case r.Method == http.MethodGet && len(parts) == 2 && parts[0] == "scans":
		id := parts[1]
		p.polls[id]++
		state, progress := provider.StateRunning, 30*p.polls[id]
		if p.polls[id] > 2 && p.finalState != "" {
			state, progress = p.finalState, 100
		}
		if progress > 95 {
			progress = 95
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{"id": id, "status_name": state, "progress": progress},
		})
	case r.Method == http.MethodGet && len(parts) == 3 && parts[2] == "output":
		fmt.Fprintf(w, `{"data":%s}`, p.output)
	case r.Method == http.MethodPost && len(parts) == 3 && parts[2] == "stop":
		p.stopped = append(p.stopped, parts[1])
		_, _ = io.WriteString(w, `{"data":{}}`)
	case r.Method == http.MethodDelete && len(parts) == 2:
		_, _ = io.WriteString(w, `{"data":{}}`)
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":"not found"}`)
	}
}

// stack is a fully wired orchestrator served over real HTTP
type stack struct {
	provider     *fakeProvider
	orchestrator *scan.Orchestrator
	trigger      *scheduler.Trigger
	jwt          *auth.JWTService
	baseURL      string
}

func newStack(t *testing.T) *stack {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cfg := &config.Config{Version: "integration"}
	cfg.Server.Mode = "test"
	cfg.Server.Host = "127.0.0.1"
	cfg.Database.Type = "sqlite"
	cfg.Database.SQLite.Path = filepath.Join(t.TempDir(), "scans.db")
	cfg.Events.Heartbeat = time.Second

	db, err := database.InitDatabase(cfg, logger)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db.DB(), logger))

	fake := newFakeProvider()
	providerSrv := httptest.NewServer(fake)
	providerClient, err := provider.NewHTTPClient(
		provider.WithBaseURL(providerSrv.URL),
		provider.WithAPIKey("provider-key"),
		provider.WithRateLimit(0, 0),
		provider.WithRetryOptions(1, time.Millisecond),
		provider.WithLogger(logger),
	)
	require.NoError(t, err)

	hub := events.NewHub(64, logger)
	gdb := db.DB()
	orchestrator := scan.New(scan.Dependencies{
		Scans:      repositories.NewScanRepository(gdb),
		Findings:   repositories.NewFindingRepository(gdb),
		Provider:   providerClient,
		Normalizer: normalizer.New(logger),
		Broker:     hub,
		Logger:     logger,
	}, scan.Options{PollInterval: 10 * time.Millisecond, ScanTimeout: 30 * time.Second})
	trigger := scheduler.NewTrigger(gdb, repositories.NewPolicyRepository(gdb), orchestrator, logger)

	jwtCfg := auth.DefaultJWTConfig()
	jwtCfg.Secret = testSecret
	jwtService := auth.NewJWTService(jwtCfg, logger)

	server, err := api.NewServer(&api.ServerConfig{
		Config:           cfg,
		Logger:           logger,
		AuthService:      auth.NewService(jwtService, logger),
		Scans:            orchestrator,
		Policies:         trigger,
		Broker:           hub,
		DB:               db,
		SchedulerRunning: trigger.Running,
		Runtime: func() models.RuntimeResponse {
			return models.RuntimeResponse{
				ActiveScans:       orchestrator.ActiveTasks(),
				ScheduledPolicies: trigger.JobCount(),
				DroppedEvents:     hub.Dropped(),
				Timestamp:         time.Now().UTC(),
			}
		},
	})
	require.NoError(t, err)
	require.NoError(t, trigger.Start(context.Background()))
	apiSrv := httptest.NewServer(server.Router())

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
		apiSrv.Close()
		trigger.Stop()
		_ = orchestrator.Shutdown(ctx)
		_ = hub.Close()
		providerSrv.Close()
		_ = db.Close()
	})

	return &stack{
		provider:     fake,
		orchestrator: orchestrator,
		trigger:      trigger,
		jwt:          jwtService,
		baseURL:      apiSrv.URL,
	}
}

// client returns an API client authenticated as owner
func (s *stack) client(t *testing.T, owner string, roles ...string) *client.APIClient {
	t.Helper()
	token, err := s.jwt.GenerateToken(owner, roles)
	require.NoError(t, err)
	c, err := client.NewClient(
		client.WithBaseURL(s.baseURL),
		client.WithAccessToken(token.AccessToken),
		client.WithTimeout(5*time.Second),
	)
	require.NoError(t, err)
	return c
}
