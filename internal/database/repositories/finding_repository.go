package repositories

import (
	"context"

	"github.com/cobytes/scanOrchestratorGo/internal/models"
	"gorm.io/gorm"
)

// FindingRepository reads and writes findings. Findings are never updated.
// The scan repository writes and removes them together with their scan.
type FindingRepository interface {
	CreateBatch(ctx context.Context, findings []models.Finding) error
	ListByScan(ctx context.Context, scanID string) ([]models.Finding, error)
	DeleteByScan(ctx context.Context, scanID string) (int64, error)
}

type findingRepo struct {
	db *gorm.DB
}

// NewFindingRepository creates a new finding repository
func NewFindingRepository(db *gorm.DB) FindingRepository {
	return &findingRepo{db: db}
}

// CreateBatch inserts findings in one statement per 100 rows
func (r *findingRepo) CreateBatch(ctx context.Context, findings []models.Finding) error {
	if len(findings) == 0 {
		return nil
	}
	return wrapError(r.db.WithContext(ctx).CreateInBatches(findings, 100).Error)
}

// ListByScan returns a scan's findings, most severe first
func (r *findingRepo) ListByScan(ctx context.Context, scanID string) ([]models.Finding, error) {
	var findings []models.Finding
	err := r.db.WithContext(ctx).
		Where("scan_id = ?", scanID).
		Order("CASE severity WHEN 'CRITICAL' THEN 0 WHEN 'HIGH' THEN 1 WHEN 'MEDIUM' THEN 2 WHEN 'LOW' THEN 3 ELSE 4 END").
		Order("id").
		Find(&findings).Error
	if err != nil {
		return nil, wrapError(err)
	}
	return findings, nil
}

// DeleteByScan removes every finding of a scan
func (r *findingRepo) DeleteByScan(ctx context.Context, scanID string) (int64, error) {
	result := r.db.WithContext(ctx).Where("scan_id = ?", scanID).Delete(&models.Finding{})
	if result.Error != nil {
		return 0, wrapError(result.Error)
	}
	return result.RowsAffected, nil
}
