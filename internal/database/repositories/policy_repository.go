package repositories

import (
	"context"
	"time"

	"github.com/cobytes/scanOrchestratorGo/internal/models"
	"gorm.io/gorm"
)

// PolicyFilter narrows a policy listing
type PolicyFilter struct {
	OwnerID    string
	ActiveOnly bool
	Offset     int
	Limit      int
}

// PolicyRepository persists recurrence policies
type PolicyRepository interface {
	Create(ctx context.Context, policy *models.RecurrencePolicy) error
	GetByID(ctx context.Context, id string) (*models.RecurrencePolicy, error)
	List(ctx context.Context, filter PolicyFilter) ([]models.RecurrencePolicy, int64, error)
	ListActive(ctx context.Context) ([]models.RecurrencePolicy, error)
	Save(ctx context.Context, policy *models.RecurrencePolicy) error
	Delete(ctx context.Context, id string) error

	// WithTx returns a repository bound to tx
	WithTx(tx *gorm.DB) PolicyRepository
}

type policyRepo struct {
	db *gorm.DB
}

// NewPolicyRepository creates a new recurrence policy repository
func NewPolicyRepository(db *gorm.DB) PolicyRepository {
	return &policyRepo{db: db}
}

func (r *policyRepo) WithTx(tx *gorm.DB) PolicyRepository {
	return &policyRepo{db: tx}
}

func (r *policyRepo) Create(ctx context.Context, policy *models.RecurrencePolicy) error {
	return wrapError(r.db.WithContext(ctx).Create(policy).Error)
}

func (r *policyRepo) GetByID(ctx context.Context, id string) (*models.RecurrencePolicy, error) {
	var policy models.RecurrencePolicy
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&policy).Error; err != nil {
		return nil, wrapError(err)
	}
	return &policy, nil
}

func (r *policyRepo) List(ctx context.Context, filter PolicyFilter) ([]models.RecurrencePolicy, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.RecurrencePolicy{})
	if filter.OwnerID != "" {
		query = query.Where("owner_id = ?", filter.OwnerID)
	}
	if filter.ActiveOnly {
		query = query.Where("active = ?", true)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, wrapError(err)
	}

	offset, limit := normalizePage(filter.Offset, filter.Limit)
	var policies []models.RecurrencePolicy
	if err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&policies).Error; err != nil {
		return nil, 0, wrapError(err)
	}
	return policies, total, nil
}

// ListActive returns every active policy, soonest fire first
func (r *policyRepo) ListActive(ctx context.Context) ([]models.RecurrencePolicy, error) {
	var policies []models.RecurrencePolicy
	err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Order("next_fire_at").
		Find(&policies).Error
	if err != nil {
		return nil, wrapError(err)
	}
	return policies, nil
}

// Save writes every column of the policy
func (r *policyRepo) Save(ctx context.Context, policy *models.RecurrencePolicy) error {
	policy.UpdatedAt = time.Now().UTC()
	result := r.db.WithContext(ctx).Model(policy).Select("*").Omit("created_at").Updates(policy)
	if result.Error != nil {
		return wrapError(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *policyRepo) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.RecurrencePolicy{})
	if result.Error != nil {
		return wrapError(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
