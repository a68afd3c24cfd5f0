// Package scheduler re-creates scans on the frequency of their recurrence policy.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cobytes/scanOrchestratorGo/internal/database/repositories"
	"github.com/cobytes/scanOrchestratorGo/internal/models"
	"github.com/cobytes/scanOrchestratorGo/internal/scan"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ScanCreator is the part of the orchestrator the trigger fires into
type ScanCreator interface {
	CreateScan(ctx context.Context, in scan.CreateScanInput) (*models.Scan, error)
}

// Trigger keeps one timer per active policy.
// Policy writes and job changes go through the trigger so the two never diverge
// for longer than a process restart, which re-derives every job from the store.
type Trigger struct {
	db       *gorm.DB
	policies repositories.PolicyRepository
	creator  ScanCreator
	log      *logrus.Logger
	now      func() time.Time

	mu      sync.Mutex
	jobs    map[string]*job
	started bool
	stopped bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

type job struct {
	timer  *time.Timer
	fireAt time.Time
}

// Option configures a Trigger
type Option func(*Trigger)

// WithClock replaces the wall clock
func WithClock(now func() time.Time) Option {
	return func(t *Trigger) { t.now = now }
}

// NewTrigger creates a trigger. Jobs are only scheduled after Start.
func NewTrigger(db *gorm.DB, policies repositories.PolicyRepository, creator ScanCreator, log *logrus.Logger, opts ...Option) *Trigger {
	if log == nil {
		log = logrus.New()
	}
	ctx, cancel := context.WithCancel(context.Background())
	t := &Trigger{
		db:       db,
		policies: policies,
		creator:  creator,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
		jobs:     make(map[string]*job),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start schedules a job for every persisted active policy
func (t *Trigger) Start(ctx context.Context) error {
	policies, err := t.policies.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to load active policies: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return errors.New("trigger already stopped")
	}
	t.started = true
	for i := range policies {
		t.scheduleLocked(&policies[i])
	}

	t.log.WithField("jobs", len(t.jobs)).Info("Recurring trigger started")
	return nil
}

// Stop cancels every job and waits for running fires to finish
func (t *Trigger) Stop() {
	t.mu.Lock()
	t.stopped = true
	for id, j := range t.jobs {
		j.timer.Stop()
		delete(t.jobs, id)
	}
	t.mu.Unlock()

	t.cancel()
	t.wg.Wait()
	t.log.Info("Recurring trigger stopped")
}

// Running reports whether the trigger has started and not been stopped
func (t *Trigger) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.started && !t.stopped
}

// JobCount returns the number of scheduled jobs
func (t *Trigger) JobCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.jobs)
}

// NextFire returns when the job of a policy fires next
func (t *Trigger) NextFire(policyID string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	j, ok := t.jobs[policyID]
	if !ok {
		return time.Time{}, false
	}
	return j.fireAt, true
}

// CreatePolicy validates and stores a policy, then schedules it
func (t *Trigger) CreatePolicy(ctx context.Context, req models.CreatePolicyRequest, ownerID string) (*models.RecurrencePolicy, error) {
	frequency, ok := models.ParseFrequency(string(req.Frequency))
	if !ok {
		return nil, fmt.Errorf("%w: unknown frequency %q", scan.ErrValidation, req.Frequency)
	}
	kind := models.ScanKind(strings.ToLower(strings.TrimSpace(string(req.Kind))))
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown scan kind %q", scan.ErrValidation, req.Kind)
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Target = strings.TrimSpace(req.Target)
	if req.Name == "" || req.Target == "" {
		return nil, fmt.Errorf("%w: name and target are required", scan.ErrValidation)
	}
	if req.MaxRuns != nil && *req.MaxRuns < 1 {
		return nil, fmt.Errorf("%w: max_runs must be at least 1", scan.ErrValidation)
	}

	now := t.now()
	next := now
	if req.StartAt != nil {
		next = req.StartAt.UTC()
	}
	params := req.Parameters
	if params == nil {
		params = models.JSONMap{}
	}
	policy := &models.RecurrencePolicy{
		ID:         uuid.NewString(),
		Name:       req.Name,
		Target:     req.Target,
		Kind:       kind,
		Parameters: params,
		Frequency:  frequency,
		NextFireAt: &next,
		Active:     true,
		MaxRuns:    req.MaxRuns,
		OwnerID:    ownerID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	return t.commit(ctx, policy.ID, func(repo repositories.PolicyRepository) (*models.RecurrencePolicy, error) {
		if err := repo.Create(ctx, policy); err != nil {
			return nil, err
		}
		return policy, nil
	})
}

// UpdatePolicy applies a partial update and reschedules the policy
func (t *Trigger) UpdatePolicy(ctx context.Context, id string, req models.UpdatePolicyRequest) (*models.RecurrencePolicy, error) {
	return t.commit(ctx, id, func(repo repositories.PolicyRepository) (*models.RecurrencePolicy, error) {
		policy, err := repo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := t.apply(policy, req); err != nil {
			return nil, err
		}
		if err := repo.Save(ctx, policy); err != nil {
			return nil, err
		}
		return policy, nil
	})
}

func (t *Trigger) apply(policy *models.RecurrencePolicy, req models.UpdatePolicyRequest) error {
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return fmt.Errorf("%w: name cannot be empty", scan.ErrValidation)
		}
		policy.Name = name
	}
	if req.Target != nil {
		target := strings.TrimSpace(*req.Target)
		if target == "" {
			return fmt.Errorf("%w: target cannot be empty", scan.ErrValidation)
		}
		policy.Target = target
	}
	if req.Parameters != nil {
		policy.Parameters = req.Parameters
	}
	if req.Frequency != nil {
		frequency, ok := models.ParseFrequency(string(*req.Frequency))
		if !ok {
			return fmt.Errorf("%w: unknown frequency %q", scan.ErrValidation, *req.Frequency)
		}
		policy.Frequency = frequency
	}
	if req.MaxRuns != nil {
		if *req.MaxRuns < 1 {
			return fmt.Errorf("%w: max_runs must be at least 1", scan.ErrValidation)
		}
		maxRuns := *req.MaxRuns
		policy.MaxRuns = &maxRuns
	}
	if req.NextFireAt != nil {
		next := req.NextFireAt.UTC()
		policy.NextFireAt = &next
	}
	if req.Active != nil {
		policy.Active = *req.Active
	}

	if policy.Exhausted() {
		policy.Active = false
	}
	if policy.Active && policy.NextFireAt == nil {
		now := t.now()
		policy.NextFireAt = &now
	}
	if !policy.Active {
		policy.NextFireAt = nil
	}
	return nil
}

// DeletePolicy unschedules and removes a policy
func (t *Trigger) DeletePolicy(ctx context.Context, id string) error {
	t.unschedule(id)

	err := t.policies.Delete(ctx, id)
	if err != nil {
		t.restore(id)
		return mapRepoError(err, id)
	}
	t.log.WithField("policy_id", id).Info("Recurrence policy deleted")
	return nil
}

// GetPolicy returns a policy by id
func (t *Trigger) GetPolicy(ctx context.Context, id string) (*models.RecurrencePolicy, error) {
	policy, err := t.policies.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err, id)
	}
	return policy, nil
}

// ListPolicies returns a page of policies and the total count
func (t *Trigger) ListPolicies(ctx context.Context, filter repositories.PolicyFilter) ([]models.RecurrencePolicy, int64, error) {
	return t.policies.List(ctx, filter)
}

// commit unschedules the policy, runs write in a transaction and schedules
// the committed record again if it is active. A failed write restores the
// job from the stored record.
func (t *Trigger) commit(ctx context.Context, id string, write func(repositories.PolicyRepository) (*models.RecurrencePolicy, error)) (*models.RecurrencePolicy, error) {
	t.unschedule(id)

	var committed *models.RecurrencePolicy
	err := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		policy, err := write(t.policies.WithTx(tx))
		if err != nil {
			return err
		}
		committed = policy
		return nil
	})
	if err != nil {
		t.restore(id)
		return nil, mapRepoError(err, id)
	}

	t.mu.Lock()
	t.scheduleLocked(committed)
	t.mu.Unlock()
	return committed, nil
}

// restore schedules the policy as currently stored
func (t *Trigger) restore(id string) {
	policy, err := t.policies.GetByID(t.ctx, id)
	if err != nil {
		return
	}
	t.mu.Lock()
	t.scheduleLocked(policy)
	t.mu.Unlock()
}

func (t *Trigger) unschedule(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if j, ok := t.jobs[id]; ok {
		j.timer.Stop()
		delete(t.jobs, id)
	}
}

// scheduleLocked replaces the job of an active policy. t.mu must be held.
func (t *Trigger) scheduleLocked(policy *models.RecurrencePolicy) {
	if old, ok := t.jobs[policy.ID]; ok {
		old.timer.Stop()
		delete(t.jobs, policy.ID)
	}
	if !t.started || t.stopped || !policy.Active || policy.Exhausted() {
		return
	}

	fireAt := t.now()
	if policy.NextFireAt != nil {
		fireAt = *policy.NextFireAt
	}
	delay := fireAt.Sub(t.now())
	if delay < 0 {
		delay = 0
	}

	id := policy.ID
	j := &job{fireAt: fireAt}
	j.timer = time.AfterFunc(delay, func() { t.fire(id, j) })
	t.jobs[id] = j

	t.log.WithFields(logrus.Fields{
		"policy_id": id,
		"fire_at":   fireAt,
	}).Debug("Recurrence policy scheduled")
}

// fire runs one scheduled job
func (t *Trigger) fire(id string, j *job) {
	t.mu.Lock()
	if t.stopped || t.jobs[id] != j {
		t.mu.Unlock()
		return
	}
	delete(t.jobs, id)
	t.wg.Add(1)
	t.mu.Unlock()
	defer t.wg.Done()

	log := t.log.WithField("policy_id", id)
	ctx := t.ctx

	policy, err := t.policies.GetByID(ctx, id)
	if err != nil {
		log.WithError(err).Warn("Recurrence policy vanished before firing")
		return
	}
	if !policy.Active {
		return
	}

	var scanID string
	created, err := t.creator.CreateScan(ctx, scan.CreateScanInput{
		Target:     policy.Target,
		Kind:       policy.Kind,
		Parameters: policy.Parameters.Clone(),
		OwnerID:    policy.OwnerID,
		PolicyID:   policy.ID,
	})
	switch {
	case errors.Is(err, scan.ErrShuttingDown) || ctx.Err() != nil:
		return
	case err != nil:
		log.WithError(err).Error("Recurrence policy failed to create scan")
	default:
		scanID = created.ID
	}

	now := t.now()
	scheduled := policy.NextFireAt

	ctx = context.WithoutCancel(ctx)
	recorded, err := t.commit(ctx, id, func(repo repositories.PolicyRepository) (*models.RecurrencePolicy, error) {
		current, err := repo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		switch {
		case !current.Active:
			// deactivated while the scan was being created
			current.RecordRun(now, scanID)
		case !sameInstant(current.NextFireAt, scheduled):
			// rescheduled while the scan was being created
			current.RecordRun(now, scanID)
		default:
			// cadence follows the scheduled time so missed intervals keep their time of day
			base := now
			if scheduled != nil && scheduled.Before(now) {
				base = *scheduled
			}
			current.RecordFire(base, now, scanID)
			current.LastFireAt = &now
		}
		if err := repo.Save(ctx, current); err != nil {
			return nil, err
		}
		return current, nil
	})
	if err != nil {
		if errors.Is(err, scan.ErrNotFound) {
			log.Debug("Recurrence policy deleted while firing")
			return
		}
		log.WithError(err).Error("Failed to record recurrence policy fire")
		return
	}

	entry := log.WithFields(logrus.Fields{
		"scan_id":   scanID,
		"run_count": recorded.RunCount,
	})
	if recorded.Active {
		entry.WithField("next_fire_at", recorded.NextFireAt).Info("Recurrence policy fired")
	} else {
		entry.Info("Recurrence policy fired for the last time")
	}
}

func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func mapRepoError(err error, id string) error {
	if errors.Is(err, repositories.ErrNotFound) {
		return fmt.Errorf("%w: policy %s", scan.ErrNotFound, id)
	}
	return err
}
