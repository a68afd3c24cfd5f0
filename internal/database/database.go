package database

import (
	"fmt"
	"strings"
	"time"

	"github.com/cobytes/scanOrchestratorGo/internal/config"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Database represents the interface for database operations
type Database interface {
	// DB returns the underlying database instance
	DB() *gorm.DB

	// Connect establishes a connection to the database
	Connect() error

	// Close closes the database connection
	Close() error

	// Ping checks if the database is reachable
	Ping() error

	// Transaction executes the given function within a transaction
	Transaction(fn func(tx *gorm.DB) error) error

	// Dialect names the SQL dialect ("sqlite" or "postgres")
	Dialect() string
}

// Factory creates database instances from configuration
type Factory interface {
	Create(cfg *config.Config, log *logrus.Logger) (Database, error)
}

// DefaultFactory implements the Factory interface
type DefaultFactory struct{}

// NewFactory creates a new database factory
func NewFactory() Factory {
	return &DefaultFactory{}
}

// Create returns an unconnected database for the configured type
func (f *DefaultFactory) Create(cfg *config.Config, log *logrus.Logger) (Database, error) {
	switch cfg.Database.Type {
	case "postgres":
		return NewPostgresDB(cfg, log), nil
	case "sqlite":
		return NewSQLiteDB(cfg, log), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Database.Type)
	}
}

// InitDatabase creates and connects the configured database
func InitDatabase(cfg *config.Config, log *logrus.Logger) (Database, error) {
	db, err := NewFactory().Create(cfg, log)
	if err != nil {
		return nil, err
	}

	log.WithField("type", cfg.Database.Type).Info("Connecting to database")
	if err := db.Connect(); err != nil {
		return nil, err
	}
	log.Info("Database connection established")
	return db, nil
}

// newGormLogger routes GORM output through logrus at the configured verbosity
func newGormLogger(log *logrus.Logger, level string) logger.Interface {
	var writer logger.Writer = discardWriter{}
	if log != nil {
		writer = NewLogrusAdapter(log)
	}
	return logger.New(writer, logger.Config{
		SlowThreshold:             time.Second,
		LogLevel:                  getLogLevel(level),
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}

// getLogLevel maps a logrus level name onto GORM's log levels
func getLogLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "debug", "trace":
		return logger.Info
	case "info", "warn", "warning":
		return logger.Warn
	case "error", "fatal", "panic":
		return logger.Error
	default:
		return logger.Silent
	}
}

// LogrusAdapter adapts a *logrus.Logger to GORM's logger.Writer interface
type LogrusAdapter struct {
	logger *logrus.Entry
}

// NewLogrusAdapter creates a new Logrus adapter for GORM
func NewLogrusAdapter(log *logrus.Logger) *LogrusAdapter {
	return &LogrusAdapter{logger: log.WithField("component", "gorm")}
}

// Printf implements the logger.Writer interface.
// GORM has already filtered by level, so everything is written at debug.
func (l *LogrusAdapter) Printf(format string, args ...interface{}) {
	l.logger.Debugf(format, args...)
}

type discardWriter struct{}

func (discardWriter) Printf(string, ...interface{}) {}
