package database

import (
	"bytes"
	"io"
	"path/filepath"
	"testing"

	"github.com/cobytes/scanOrchestratorGo/internal/config"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gormlogger "gorm.io/gorm/logger"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestDatabaseFactory(t *testing.T) {
	factory := NewFactory()

	tests := []struct {
		name        string
		dbType      string
		wantDialect string
		expectErr   bool
	}{
		{name: "postgres", dbType: "postgres", wantDialect: "postgres"},
		{name: "sqlite", dbType: "sqlite", wantDialect: "sqlite"},
		{name: "unsupported", dbType: "mysql", expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{}
			cfg.Database.Type = tt.dbType

			db, err := factory.Create(cfg, quietLogger())
			if tt.expectErr {
				assert.Error(t, err)
				assert.Nil(t, db)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantDialect, db.Dialect())
		})
	}
}

func TestInitDatabase_SQLite(t *testing.T) {
	cfg := &config.Config{}
	cfg.Database.Type = "sqlite"
	cfg.Database.SQLite.Path = filepath.Join(t.TempDir(), "nested", "scans.db")

	db, err := InitDatabase(cfg, quietLogger())
	require.NoError(t, err)
	defer db.Close()

	assert.NoError(t, db.Ping())
	assert.FileExists(t, cfg.Database.SQLite.Path)
}

func TestInitDatabase_Unsupported(t *testing.T) {
	cfg := &config.Config{}
	cfg.Database.Type = "oracle"

	db, err := InitDatabase(cfg, quietLogger())
	assert.Error(t, err)
	assert.Nil(t, db)
}

func TestSQLiteDB_NotConnected(t *testing.T) {
	db := NewSQLiteDB(&config.Config{}, quietLogger())
	assert.Error(t, db.Ping())
	assert.NoError(t, db.Close())
	assert.Error(t, db.Transaction(nil))
}

func TestGetLogLevel(t *testing.T) {
	assert.Equal(t, gormlogger.Info, getLogLevel("debug"))
	assert.Equal(t, gormlogger.Warn, getLogLevel("INFO"))
	assert.Equal(t, gormlogger.Error, getLogLevel("error"))
	assert.Equal(t, gormlogger.Silent, getLogLevel("nonsense"))
}

func TestGetSslMode(t *testing.T) {
	assert.Equal(t, "require", getSslMode("REQUIRE"))
	assert.Equal(t, "verify-full", getSslMode("verify-full"))
	assert.Equal(t, "disable", getSslMode("sometimes"))
}

func TestLogrusAdapter(t *testing.T) {
	var buf bytes.Buffer
	log := logrus.New()
	log.SetLevel(logrus.DebugLevel)
	log.SetOutput(&buf)

	NewLogrusAdapter(log).Printf("slow query %d", 42)
	assert.Contains(t, buf.String(), "slow query 42")
	assert.Contains(t, buf.String(), "component=gorm")
}
