package repositories

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cobytes/scanOrchestratorGo/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db, mock
}

func TestScanRepository_DatabaseErrorIsWrapped(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewScanRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "scans"`).WillReturnError(errors.New("connection reset"))

	_, err := repo.GetByID(context.Background(), "abc")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDatabaseOperation)
	assert.Contains(t, err.Error(), "connection reset")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScanRepository_TransitionNoRows(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewScanRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "scans" SET`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	applied, err := repo.Transition(context.Background(), "abc", models.ActiveScanStatuses, map[string]interface{}{
		"status": models.ScanStatusCancelled,
	})
	require.NoError(t, err)
	assert.False(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}
