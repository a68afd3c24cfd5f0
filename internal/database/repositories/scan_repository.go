package repositories

import (
	"context"
	"time"

	"github.com/cobytes/scanOrchestratorGo/internal/models"
	"gorm.io/gorm"
)

// ScanFilter narrows a scan listing
type ScanFilter struct {
	OwnerID  string
	Status   models.ScanStatus
	Kind     models.ScanKind
	PolicyID string
	Offset   int
	Limit    int
}

// ScanRepository persists scans (request and state share one row).
//
// State writes are conditional on the current status so that a write from the
// lifecycle task can never resurrect a scan that was cancelled concurrently.
// The boolean results report whether the row was actually changed.
type ScanRepository interface {
	Create(ctx context.Context, scan *models.Scan) error
	GetByID(ctx context.Context, id string) (*models.Scan, error)
	List(ctx context.Context, filter ScanFilter) ([]models.Scan, int64, error)

	// Transition applies fields when the scan's status is one of from
	Transition(ctx context.Context, id string, from []models.ScanStatus, fields map[string]interface{}) (bool, error)

	// UpdateProgress raises progress (never lowers it) on an active scan
	UpdateProgress(ctx context.Context, id string, progress int, status *models.ScanStatus) (bool, error)

	// Complete stores findings and marks a running scan COMPLETED in one transaction
	Complete(ctx context.Context, id string, findings []models.Finding, completedAt time.Time) (bool, error)

	// Delete removes the scan and its findings
	Delete(ctx context.Context, id string) error

	// CountByOwnerSince counts scans created by owner since t, ignoring the given kinds
	CountByOwnerSince(ctx context.Context, ownerID string, since time.Time, excludeKinds []models.ScanKind) (int64, error)
}

type scanRepo struct {
	db *gorm.DB
}

// NewScanRepository creates a new scan repository
func NewScanRepository(db *gorm.DB) ScanRepository {
	return &scanRepo{db: db}
}

// Create inserts a new scan
func (r *scanRepo) Create(ctx context.Context, scan *models.Scan) error {
	return wrapError(r.db.WithContext(ctx).Create(scan).Error)
}

// GetByID finds a scan by ID
func (r *scanRepo) GetByID(ctx context.Context, id string) (*models.Scan, error) {
	var scan models.Scan
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&scan).Error; err != nil {
		return nil, wrapError(err)
	}
	return &scan, nil
}

// List returns a page of scans, newest first, and the total matching count
func (r *scanRepo) List(ctx context.Context, filter ScanFilter) ([]models.Scan, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Scan{})
	if filter.OwnerID != "" {
		query = query.Where("owner_id = ?", filter.OwnerID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Kind != "" {
		query = query.Where("kind = ?", filter.Kind)
	}
	if filter.PolicyID != "" {
		query = query.Where("policy_id = ?", filter.PolicyID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, wrapError(err)
	}

	offset, limit := normalizePage(filter.Offset, filter.Limit)
	var scans []models.Scan
	err := query.Order("created_at DESC").Order("id").Offset(offset).Limit(limit).Find(&scans).Error
	if err != nil {
		return nil, 0, wrapError(err)
	}
	return scans, total, nil
}

// Transition updates fields only while the scan is in one of the from statuses
func (r *scanRepo) Transition(ctx context.Context, id string, from []models.ScanStatus, fields map[string]interface{}) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Scan{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(fields)
	if result.Error != nil {
		return false, wrapError(result.Error)
	}
	return result.RowsAffected > 0, nil
}

// UpdateProgress raises progress on a PENDING or RUNNING scan.
// A non-nil status narrows the update to scans already in that status.
func (r *scanRepo) UpdateProgress(ctx context.Context, id string, progress int, status *models.ScanStatus) (bool, error) {
	from := models.ActiveScanStatuses
	if status != nil {
		from = []models.ScanStatus{*status}
	}
	result := r.db.WithContext(ctx).
		Model(&models.Scan{}).
		Where("id = ? AND status IN ? AND progress <= ?", id, from, progress).
		Update("progress", progress)
	if result.Error != nil {
		return false, wrapError(result.Error)
	}
	return result.RowsAffected > 0, nil
}

// Complete inserts findings and marks the scan COMPLETED with progress 100.
// Nothing is written when the scan is no longer RUNNING.
func (r *scanRepo) Complete(ctx context.Context, id string, findings []models.Finding, completedAt time.Time) (bool, error) {
	applied := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Scan{}).
			Where("id = ? AND status = ?", id, models.ScanStatusRunning).
			Updates(map[string]interface{}{
				"status":        models.ScanStatusCompleted,
				"progress":      100,
				"completed_at":  completedAt,
				"error_message": "",
				"error_code":    "",
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		applied = true

		for i := range findings {
			findings[i].ScanID = id
		}
		return (&findingRepo{db: tx}).CreateBatch(ctx, findings)
	})
	if err != nil {
		return false, wrapError(err)
	}
	return applied, nil
}

// Delete removes the scan's findings and then the scan itself
func (r *scanRepo) Delete(ctx context.Context, id string) error {
	return wrapError(r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := (&findingRepo{db: tx}).DeleteByScan(ctx, id); err != nil {
			return err
		}
		result := tx.Where("id = ?", id).Delete(&models.Scan{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	}))
}

// CountByOwnerSince counts an owner's scans created at or after since
func (r *scanRepo) CountByOwnerSince(ctx context.Context, ownerID string, since time.Time, excludeKinds []models.ScanKind) (int64, error) {
	query := r.db.WithContext(ctx).
		Model(&models.Scan{}).
		Where("owner_id = ? AND created_at >= ?", ownerID, since)
	if len(excludeKinds) > 0 {
		query = query.Where("kind NOT IN ?", excludeKinds)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, wrapError(err)
	}
	return count, nil
}
