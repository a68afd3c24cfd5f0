// @title Cobytes Scan Orchestrator API
// @version 1.0
// @description Creates security scans against the Cobytes provider, tracks them to completion and streams their progress.

// @BasePath /api/v1
// @schemes http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the access token. Example: "Bearer {token}"

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
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
	"github.com/sirupsen/logrus"
)

// Version information (will be set during build)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	fmt.Printf("Cobytes Scan Orchestrator %s (%s) built on %s\n", Version, Commit, BuildDate)

	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if Version != "dev" {
		cfg.Version = Version
	}

	logger := initLogger(cfg.Logging)
	logger.WithFields(logrus.Fields{
		"version":    Version,
		"commit":     Commit,
		"build_date": BuildDate,
	}).Info("Starting Cobytes Scan Orchestrator")
	if logger.IsLevelEnabled(logrus.DebugLevel) {
		logger.Debugf("Effective configuration: %+v", cfg.MaskSensitiveFields())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Fatal("Scan orchestrator stopped with an error")
	}
	logger.Info("Server shutdown complete")
}

// initLogger initializes and configures the logger
func initLogger(cfg config.LoggingConfig) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	if strings.EqualFold(cfg.Format, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		logger.WithError(err).Warn("Invalid log level, defaulting to info")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

// app holds the running components in the order they are built
type app struct {
	cfg          *config.Config
	logger       *logrus.Logger
	db           database.Database
	broker       events.Broker
	orchestrator *scan.Orchestrator
	trigger      *scheduler.Trigger
	server       *api.Server
}

// run builds the application, serves until ctx ends or the listener fails, then shuts down
func run(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}

	var runErr error
	if err := a.start(ctx); err != nil {
		runErr = err
	} else {
		select {
		case <-ctx.Done():
			logger.Info("Shutdown signal received")
		case err := <-a.server.Errors():
			runErr = fmt.Errorf("API server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return errors.Join(runErr, a.shutdown(shutdownCtx))
}

// newApp wires every component. Anything built before a failure is released again.
func newApp(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (a *app, err error) {
	a = &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.release()
		}
	}()

	if a.db, err = initDatabase(cfg, logger); err != nil {
		return nil, err
	}
	if a.broker, err = initBroker(ctx, cfg, logger); err != nil {
		return nil, err
	}

	client, err := initProvider(cfg, logger)
	if err != nil {
		return nil, err
	}

	gdb := a.db.DB()
	scans := repositories.NewScanRepository(gdb)
	a.orchestrator = scan.New(scan.Dependencies{
		Scans:      scans,
		Findings:   repositories.NewFindingRepository(gdb),
		Provider:   client,
		Normalizer: normalizer.New(logger),
		Broker:     a.broker,
		Quota:      initQuota(cfg, scans),
		Logger:     logger,
	}, scan.Options{
		PollInterval:  cfg.Scans.PollInterval,
		ScanTimeout:   cfg.Scans.Timeout,
		MaxConcurrent: cfg.Scans.MaxConcurrent,
		EventQueue:    cfg.Scans.EventQueue,
	})
	a.trigger = scheduler.NewTrigger(gdb, repositories.NewPolicyRepository(gdb), a.orchestrator, logger)

	authService, err := initAuthService(cfg, logger)
	if err != nil {
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Initializing API server")
	a.server, err = api.NewServer(&api.ServerConfig{
		Config:           cfg,
		Logger:           logger,
		AuthService:      authService,
		Scans:            a.orchestrator,
		Policies:         a.trigger,
		Broker:           a.broker,
		DB:               a.db,
		SchedulerRunning: a.trigger.Running,
		Runtime:          a.runtime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create API server: %w", err)
	}
	return a, nil
}

// runtime samples the in-flight counters for the admin endpoint
func (a *app) runtime() models.RuntimeResponse {
	resp := models.RuntimeResponse{Timestamp: time.Now().UTC()}
	if a.orchestrator != nil {
		resp.ActiveScans = a.orchestrator.ActiveTasks()
	}
	if a.trigger != nil {
		resp.ScheduledPolicies = a.trigger.JobCount()
	}
	if d, ok := a.broker.(interface{ Dropped() uint64 }); ok {
		resp.DroppedEvents = d.Dropped()
	}
	return resp
}

// start arms the recurring trigger and starts serving
func (a *app) start(ctx context.Context) error {
	if a.cfg.Scheduler.Enabled {
		if err := a.trigger.Start(ctx); err != nil {
			return fmt.Errorf("failed to start recurring trigger: %w", err)
		}
	} else {
		a.logger.Info("Recurring trigger disabled")
	}
	return a.server.Start(ctx)
}

// shutdown stops intake first, then background work, then the stores it writes to
func (a *app) shutdown(ctx context.Context) error {
	var errs []error
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.trigger != nil {
		a.trigger.Stop()
	}
	if a.orchestrator != nil {
		if err := a.orchestrator.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.orchestrator = nil
	if err := a.release(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// release closes the broker and the database
func (a *app) release() error {
	var errs []error
	if a.orchestrator != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.orchestrator.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
		a.orchestrator = nil
	}
	if a.broker != nil {
		if err := a.broker.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close event broker: %w", err))
		}
		a.broker = nil
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		}
		a.db = nil
	}
	return errors.Join(errs...)
}

// initDatabase connects the configured database and brings the schema up to date
func initDatabase(cfg *config.Config, logger *logrus.Logger) (database.Database, error) {
	logger.WithFields(logrus.Fields{
		"type": cfg.Database.Type,
		"host": cfg.Database.Host,
		"port": cfg.Database.Port,
		"name": cfg.Database.Name,
	}).Info("Initializing database connection")

	db, err := database.InitDatabase(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	logger.Info("Running database migrations")
	if err := database.Migrate(db.DB(), logger); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run database migrations: %w", err)
	}
	return db, nil
}

// initBroker selects the in-process hub or the Postgres LISTEN/NOTIFY broker
func initBroker(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (events.Broker, error) {
	switch strings.ToLower(cfg.Events.Broker) {
	case "", "memory":
		logger.Info("Using in-process event broker")
		return events.NewHub(cfg.Events.SubscriberBuffer, logger), nil
	case "postgres":
		logger.WithField("channel", cfg.Events.Channel).Info("Using Postgres event broker")
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		broker, err := events.NewPostgresBroker(connectCtx, cfg.EventsDSN(), cfg.Events.Channel, cfg.Events.SubscriberBuffer, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to start event broker: %w", err)
		}
		return broker, nil
	default:
		return nil, fmt.Errorf("unsupported event broker: %s", cfg.Events.Broker)
	}
}

// initProvider creates the provider API client
func initProvider(cfg *config.Config, logger *logrus.Logger) (provider.Client, error) {
	pc := cfg.Provider
	opts := []provider.ClientOption{
		provider.WithLogger(logger),
		provider.WithAPIKey(pc.APIKey),
		provider.WithRateLimit(pc.RateLimit, pc.Burst),
	}
	if pc.BaseURL != "" {
		opts = append(opts, provider.WithBaseURL(pc.BaseURL))
	}
	if pc.Timeout > 0 {
		opts = append(opts, provider.WithTimeout(pc.Timeout))
	}
	if pc.MaxRetries > 0 || pc.RetryDelay > 0 {
		opts = append(opts, provider.WithRetryOptions(pc.MaxRetries, pc.RetryDelay))
	}
	if pc.UserAgent != "" {
		opts = append(opts, provider.WithUserAgent(pc.UserAgent))
	}
	if pc.APIKey == "" {
		logger.Warn("Provider API key is not set; scans will fail at dispatch")
	}

	client, err := provider.NewHTTPClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider client: %w", err)
	}
	return client, nil
}

// initQuota returns the configured entitlement check, or nil to allow every scan
func initQuota(cfg *config.Config, scans repositories.ScanRepository) scan.QuotaPolicy {
	q := cfg.Scans.Quota
	if !q.Enabled {
		return nil
	}
	exempt := make([]models.ScanKind, 0, len(q.ExemptKinds))
	for _, k := range q.ExemptKinds {
		exempt = append(exempt, models.ScanKind(strings.ToLower(strings.TrimSpace(k))))
	}
	return &scan.CountQuota{
		Scans:  scans,
		Limit:  q.Limit,
		Window: q.Window,
		Exempt: exempt,
	}
}

// initAuthService creates the bearer token verifier
func initAuthService(cfg *config.Config, logger *logrus.Logger) (auth.Service, error) {
	logger.Info("Initializing authentication service")

	jwtConfig := auth.DefaultJWTConfig()
	jwtConfig.Secret = cfg.Auth.Secret
	if cfg.Auth.AccessTokenTTL > 0 {
		jwtConfig.AccessTokenTTL = cfg.Auth.AccessTokenTTL
	}
	if cfg.Auth.TokenIssuer != "" {
		jwtConfig.Issuer = cfg.Auth.TokenIssuer
	}
	if cfg.Auth.TokenAudience != "" {
		jwtConfig.Audience = []string{cfg.Auth.TokenAudience}
	}
	if cfg.Auth.Algorithm != "" {
		jwtConfig.Algorithm = cfg.Auth.Algorithm
	}

	if jwtConfig.Secret == "" {
		return nil, fmt.Errorf("failed to create token service: %w", auth.ErrMissingKey)
	}
	return auth.NewService(auth.NewJWTService(jwtConfig, logger), logger), nil
}
