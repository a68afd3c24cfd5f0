package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cobytes/scanOrchestratorGo/internal/config"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// PostgresDB implements the Database interface for PostgreSQL
type PostgresDB struct {
	config *config.Config
	db     *gorm.DB
	sqlDB  *sql.DB
	log    *logrus.Logger
}

// NewPostgresDB creates a new PostgreSQL database instance
func NewPostgresDB(cfg *config.Config, log *logrus.Logger) *PostgresDB {
	return &PostgresDB{config: cfg, log: log}
}

// Connect opens the connection pool
func (p *PostgresDB) Connect() error {
	dbCfg := p.config.Database
	dbCfg.SSLMode = getSslMode(dbCfg.SSLMode)

	db, err := gorm.Open(postgres.Open(dbCfg.DSN()), &gorm.Config{
		Logger: newGormLogger(p.log, p.config.Logging.Level),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	return p.attach(db)
}

// attach adopts an open gorm handle and applies pool settings
func (p *PostgresDB) attach(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying SQL DB: %w", err)
	}

	cfg := p.config.Database
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	p.db = db
	p.sqlDB = sqlDB
	return nil
}

// Close closes the database connection
func (p *PostgresDB) Close() error {
	if p.sqlDB != nil {
		return p.sqlDB.Close()
	}
	return nil
}

// DB returns the underlying GORM database instance
func (p *PostgresDB) DB() *gorm.DB {
	return p.db
}

// Dialect returns "postgres"
func (p *PostgresDB) Dialect() string {
	return "postgres"
}

// Ping checks if the database is reachable
func (p *PostgresDB) Ping() error {
	if p.sqlDB == nil {
		return errors.New("database connection not established")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return p.sqlDB.PingContext(ctx)
}

// Transaction executes the given function within a transaction
func (p *PostgresDB) Transaction(fn func(tx *gorm.DB) error) error {
	if p.db == nil {
		return errors.New("database connection not established for transaction")
	}
	return p.db.Transaction(fn)
}

func getSslMode(mode string) string {
	switch strings.ToLower(mode) {
	case "disable", "require", "verify-ca", "verify-full":
		return strings.ToLower(mode)
	default:
		return "disable"
	}
}
