package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cobytes/scanOrchestratorGo/internal/auth"
	"github.com/cobytes/scanOrchestratorGo/internal/config"
	"github.com/cobytes/scanOrchestratorGo/internal/database/repositories"
	"github.com/cobytes/scanOrchestratorGo/internal/events"
	"github.com/cobytes/scanOrchestratorGo/internal/middleware"
	"github.com/cobytes/scanOrchestratorGo/internal/models"
	"github.com/cobytes/scanOrchestratorGo/internal/scan"
	"github.com/cobytes/scanOrchestratorGo/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// ScanService is the part of the scan orchestrator the HTTP API drives
type ScanService interface {
	Kinds() []models.ScanKindInfo
	CreateScan(ctx context.Context, in scan.CreateScanInput) (*models.Scan, error)
	GetScan(ctx context.Context, id string) (*models.Scan, error)
	ListScans(ctx context.Context, filter repositories.ScanFilter) ([]models.Scan, int64, error)
	ListFindings(ctx context.Context, id string) ([]models.Finding, error)
	CancelScan(ctx context.Context, id string) (*models.Scan, error)
	DeleteScan(ctx context.Context, id string) error
}

// PolicyService manages recurrence policies
type PolicyService interface {
	CreatePolicy(ctx context.Context, req models.CreatePolicyRequest, ownerID string) (*models.RecurrencePolicy, error)
	UpdatePolicy(ctx context.Context, id string, req models.UpdatePolicyRequest) (*models.RecurrencePolicy, error)
	DeletePolicy(ctx context.Context, id string) error
	GetPolicy(ctx context.Context, id string) (*models.RecurrencePolicy, error)
	ListPolicies(ctx context.Context, filter repositories.PolicyFilter) ([]models.RecurrencePolicy, int64, error)
}

// HealthChecker reports whether a dependency is reachable
type HealthChecker interface {
	Ping() error
}

// Server represents the API server
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	config     *config.Config
	logger     *logrus.Logger
	authMW     *middleware.AuthMiddleware
	scans      ScanService
	policies   PolicyService
	broker     events.Broker
	db         HealthChecker
	scheduler  func() bool
	runtime    func() models.RuntimeResponse
	upgrader   websocket.Upgrader
	heartbeat  time.Duration
	limiter    *utils.RateLimiter
	routesOnce sync.Once
	errCh      chan error
	closing    chan struct{}
	closeOnce  sync.Once
}

// ServerConfig contains the dependencies of the API server
type ServerConfig struct {
	Config      *config.Config
	Logger      *logrus.Logger
	AuthService auth.Service
	Scans       ScanService
	Policies    PolicyService
	Broker      events.Broker
	DB          HealthChecker

	// SchedulerRunning reports whether the recurring trigger is active
	SchedulerRunning func() bool

	// Runtime reports in-flight work for the admin endpoint
	Runtime func() models.RuntimeResponse
}

// NewServer creates a new API server with every route registered
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg.Config == nil {
		return nil, errors.New("config is required")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if cfg.AuthService == nil {
		return nil, errors.New("auth service is required")
	}
	if cfg.Scans == nil {
		return nil, errors.New("scan service is required")
	}
	if cfg.Policies == nil {
		return nil, errors.New("policy service is required")
	}
	if cfg.Broker == nil {
		return nil, errors.New("event broker is required")
	}

	heartbeat := cfg.Config.Events.Heartbeat
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	origins := cfg.Config.Security.AllowedOrigins

	server := &Server{
		config:    cfg.Config,
		logger:    cfg.Logger,
		authMW:    middleware.NewAuthMiddleware(cfg.AuthService),
		scans:     cfg.Scans,
		policies:  cfg.Policies,
		broker:    cfg.Broker,
		db:        cfg.DB,
		scheduler: cfg.SchedulerRunning,
		runtime:   cfg.Runtime,
		heartbeat: heartbeat,
		errCh:     make(chan error, 1),
		closing:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || middleware.OriginAllowed(origins, origin)
			},
		},
	}

	switch cfg.Config.Server.Mode {
	case "debug", "development":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	if len(cfg.Config.Server.TrustedProxies) > 0 {
		if err := router.SetTrustedProxies(cfg.Config.Server.TrustedProxies); err != nil {
			return nil, fmt.Errorf("invalid trusted proxies: %w", err)
		}
	}

	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.NewLoggingMiddleware(server.logger, middleware.WithSkipPaths("/api/v1/health")).Logger())
	router.Use(middleware.NewRecoveryMiddleware(server.logger).Recovery())
	router.Use(middleware.CORS(middleware.DefaultCORSConfig(origins)))

	if rl := cfg.Config.Security.RateLimiting; rl.Enabled {
		server.limiter = utils.NewWindowRateLimiter(rl.MaxPerIP, time.Duration(rl.WindowSecs)*time.Second)
		router.Use(middleware.RateLimit(server.limiter, server.logger))
	}

	server.router = router
	server.RegisterRoutes()

	server.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Config.Server.Host, cfg.Config.Server.Port),
		Handler:      server.router,
		ReadTimeout:  cfg.Config.Server.ReadTimeout,
		WriteTimeout: cfg.Config.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	return server, nil
}

// Start serves HTTP (or HTTPS when TLS is enabled) in the background.
// Listener failures are delivered on Errors.
func (s *Server) Start(ctx context.Context) error {
	tlsCfg := s.config.Server.TLS
	if tlsCfg.Enabled && (tlsCfg.CertFile == "" || tlsCfg.KeyFile == "") {
		return errors.New("TLS certificate and key files are required")
	}
	if s.limiter != nil {
		middleware.StartLimiterCleanup(ctx, s.limiter, time.Minute, 10*time.Minute)
	}

	go func() {
		var err error
		if tlsCfg.Enabled {
			s.logger.WithField("address", s.httpServer.Addr).Info("Starting API server (TLS)")
			err = s.httpServer.ListenAndServeTLS(tlsCfg.CertFile, tlsCfg.KeyFile)
		} else {
			s.logger.WithField("address", s.httpServer.Addr).Info("Starting API server")
			err = s.httpServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.WithError(err).Error("API server error")
			s.errCh <- err
		}
	}()
	return nil
}

// Errors delivers fatal listener errors
func (s *Server) Errors() <-chan error {
	return s.errCh
}

// Shutdown ends open event streams and gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server...")
	s.closeOnce.Do(func() { close(s.closing) })
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("error during server shutdown: %w", err)
	}
	s.logger.Info("API server shutdown complete")
	return nil
}

// Router returns the Gin router instance
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Addr returns the listen address
func (s *Server) Addr() string {
	return s.httpServer.Addr
}
