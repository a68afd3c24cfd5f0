package scan

import (
	"context"
	"fmt"
	"time"

	"github.com/cobytes/scanOrchestratorGo/internal/database/repositories"
	"github.com/cobytes/scanOrchestratorGo/internal/models"
)

// QuotaPolicy decides whether a scan may be dispatched.
// A denial is returned as an error wrapping ErrQuotaExceeded.
type QuotaPolicy interface {
	Authorize(ctx context.Context, scan *models.Scan) error
}

// QuotaFunc adapts a function to QuotaPolicy
type QuotaFunc func(ctx context.Context, scan *models.Scan) error

// Authorize calls f
func (f QuotaFunc) Authorize(ctx context.Context, scan *models.Scan) error {
	return f(ctx, scan)
}

// AllowAll never denies a scan
var AllowAll QuotaPolicy = QuotaFunc(func(context.Context, *models.Scan) error { return nil })

// CountQuota allows each owner at most Limit scans per Window.
// Exempt kinds are neither limited nor counted; scans without an owner are not limited.
type CountQuota struct {
	Scans  repositories.ScanRepository
	Limit  int
	Window time.Duration
	Exempt []models.ScanKind
	Now    func() time.Time
}

// Authorize counts the owner's scans in the window, including the one being authorized
func (q *CountQuota) Authorize(ctx context.Context, scan *models.Scan) error {
	if scan.OwnerID == "" || q.exempt(scan.Kind) {
		return nil
	}

	now := time.Now().UTC()
	if q.Now != nil {
		now = q.Now()
	}
	count, err := q.Scans.CountByOwnerSince(ctx, scan.OwnerID, now.Add(-q.Window), q.Exempt)
	if err != nil {
		return fmt.Errorf("failed to count scans for quota: %w", err)
	}
	if count > int64(q.Limit) {
		return fmt.Errorf("%w: %d scans in the last %s, limit is %d", ErrQuotaExceeded, count-1, q.Window, q.Limit)
	}
	return nil
}

func (q *CountQuota) exempt(kind models.ScanKind) bool {
	for _, k := range q.Exempt {
		if k == kind {
			return true
		}
	}
	return false
}
