// Package scan owns the scan lifecycle: creation, dispatch to the provider,
// polling, normalization of results and the terminal state transitions.
package scan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cobytes/scanOrchestratorGo/internal/database/repositories"
	"github.com/cobytes/scanOrchestratorGo/internal/events"
	"github.com/cobytes/scanOrchestratorGo/internal/models"
	"github.com/cobytes/scanOrchestratorGo/internal/provider"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// Normalizer maps raw provider output onto findings
type Normalizer interface {
	Normalize(kind models.ScanKind, data json.RawMessage) ([]models.Finding, error)
}

// Options tunes the lifecycle of scans
type Options struct {
	// PollInterval is the pause between two provider status checks
	PollInterval time.Duration
	// ScanTimeout bounds a scan from dispatch to completion; zero disables it
	ScanTimeout time.Duration
	// MaxConcurrent bounds the scans talking to the provider at the same time
	MaxConcurrent int
	// EventQueue is the capacity of the outbound event queue
	EventQueue int
}

// DefaultOptions returns the default lifecycle options
func DefaultOptions() Options {
	return Options{
		PollInterval:  5 * time.Second,
		ScanTimeout:   30 * time.Minute,
		MaxConcurrent: 10,
		EventQueue:    256,
	}
}

// Dependencies are the collaborators of the orchestrator
type Dependencies struct {
	Scans      repositories.ScanRepository
	Findings   repositories.FindingRepository
	Provider   provider.Client
	Registry   *provider.Registry
	Normalizer Normalizer
	Broker     events.Broker
	Quota      QuotaPolicy
	Logger     *logrus.Logger
}

// CreateScanInput is a scan submission
type CreateScanInput struct {
	Target     string
	Kind       models.ScanKind
	Parameters models.JSONMap
	OwnerID    string
	PolicyID   string
}

// Orchestrator runs every scan as an independent background task
type Orchestrator struct {
	scans      repositories.ScanRepository
	findings   repositories.FindingRepository
	provider   provider.Client
	registry   *provider.Registry
	normalizer Normalizer
	quota      QuotaPolicy
	log        *logrus.Logger
	opts       Options
	now        func() time.Time

	notifier *notifier
	slots    *semaphore.Weighted

	mu       sync.Mutex
	tasks    map[string]context.CancelFunc
	wg       sync.WaitGroup
	baseCtx  context.Context
	stopAll  context.CancelFunc
	stopping bool
}

// New creates an orchestrator. The caller must call Shutdown to stop its tasks.
func New(deps Dependencies, opts Options) *Orchestrator {
	defaults := DefaultOptions()
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaults.PollInterval
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = defaults.MaxConcurrent
	}
	if opts.EventQueue <= 0 {
		opts.EventQueue = defaults.EventQueue
	}

	log := deps.Logger
	if log == nil {
		log = logrus.New()
	}
	quota := deps.Quota
	if quota == nil {
		quota = AllowAll
	}
	registry := deps.Registry
	if registry == nil {
		registry = provider.DefaultRegistry()
	}

	baseCtx, stopAll := context.WithCancel(context.Background())
	return &Orchestrator{
		scans:      deps.Scans,
		findings:   deps.Findings,
		provider:   deps.Provider,
		registry:   registry,
		normalizer: deps.Normalizer,
		quota:      quota,
		log:        log,
		opts:       opts,
		now:        func() time.Time { return time.Now().UTC() },
		notifier:   newNotifier(deps.Broker, opts.EventQueue, log),
		slots:      semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		tasks:      make(map[string]context.CancelFunc),
		baseCtx:    baseCtx,
		stopAll:    stopAll,
	}
}

// Kinds lists the scan kinds the orchestrator can dispatch
func (o *Orchestrator) Kinds() []models.ScanKindInfo {
	return o.registry.Kinds()
}

// CreateScan persists a PENDING scan and starts its lifecycle in the background.
// It returns before any provider I/O happens.
func (o *Orchestrator) CreateScan(ctx context.Context, in CreateScanInput) (*models.Scan, error) {
	target := strings.TrimSpace(in.Target)
	if target == "" {
		return nil, fmt.Errorf("%w: target is required", ErrValidation)
	}
	if !in.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown scan kind %q", ErrValidation, in.Kind)
	}

	params := in.Parameters
	if params == nil {
		params = models.JSONMap{}
	}
	now := o.now()
	scan := &models.Scan{
		ID:         uuid.NewString(),
		Target:     target,
		Kind:       in.Kind,
		Parameters: params,
		OwnerID:    in.OwnerID,
		PolicyID:   in.PolicyID,
		Status:     models.ScanStatusPending,
		Progress:   0,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if o.isStopping() {
		return nil, ErrShuttingDown
	}
	if err := o.scans.Create(ctx, scan); err != nil {
		return nil, fmt.Errorf("failed to persist scan: %w", err)
	}

	o.mu.Lock()
	if o.stopping {
		o.mu.Unlock()
		o.abandon(scan.ID)
		return nil, ErrShuttingDown
	}
	taskCtx, cancel := context.WithCancel(o.baseCtx)
	o.tasks[scan.ID] = cancel
	o.wg.Add(1)
	o.mu.Unlock()

	o.log.WithFields(logrus.Fields{
		"scan_id":  scan.ID,
		"kind":     scan.Kind,
		"target":   scan.Target,
		"owner_id": scan.OwnerID,
	}).Info("Scan created")
	o.notifier.notify(models.NewScanEvent(scan, models.ScanEventStatus, "Scan queued"))

	created := *scan
	go o.run(taskCtx, *scan)
	return &created, nil
}

func (o *Orchestrator) isStopping() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stopping
}

// abandon removes a scan persisted while the orchestrator began shutting down
func (o *Orchestrator) abandon(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := o.scans.Delete(ctx, id); err != nil {
		o.log.WithError(err).WithField("scan_id", id).Warn("Failed to remove scan created during shutdown")
	}
}

// GetScan returns a scan by id
func (o *Orchestrator) GetScan(ctx context.Context, id string) (*models.Scan, error) {
	scan, err := o.scans.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err, "scan", id)
	}
	return scan, nil
}

// ListScans returns a page of scans and the total count
func (o *Orchestrator) ListScans(ctx context.Context, filter repositories.ScanFilter) ([]models.Scan, int64, error) {
	return o.scans.List(ctx, filter)
}

// ListFindings returns the findings of a scan
func (o *Orchestrator) ListFindings(ctx context.Context, id string) ([]models.Finding, error) {
	if _, err := o.GetScan(ctx, id); err != nil {
		return nil, err
	}
	return o.findings.ListByScan(ctx, id)
}

// UpdateProgress records progress for an active scan and publishes it.
// Progress stays below 100 until the scan completes and never moves backwards.
// The only status a progress update may carry is RUNNING, and only for a scan
// that is already RUNNING: dispatch alone moves a scan out of PENDING.
func (o *Orchestrator) UpdateProgress(ctx context.Context, id string, progress int, status *models.ScanStatus) error {
	if status != nil && *status != models.ScanStatusRunning {
		return fmt.Errorf("%w: progress updates cannot set %s", ErrInvalidTransition, *status)
	}
	if progress < 0 {
		progress = 0
	}
	if progress > 99 {
		progress = 99
	}

	applied, err := o.scans.UpdateProgress(ctx, id, progress, status)
	if err != nil {
		return fmt.Errorf("failed to update progress: %w", err)
	}
	if !applied {
		scan, err := o.GetScan(ctx, id)
		if err != nil {
			return err
		}
		if scan.IsTerminal() || (status != nil && scan.Status != *status) {
			return fmt.Errorf("%w: scan is %s", ErrInvalidTransition, scan.Status)
		}
		return nil
	}

	eventStatus := models.ScanStatusRunning
	if status != nil {
		eventStatus = *status
	}
	o.notifier.notify(models.ScanEvent{
		ScanID:    id,
		Type:      models.ScanEventProgress,
		Status:    eventStatus,
		Progress:  progress,
		Timestamp: o.now(),
	})
	return nil
}

// CancelScan stops an active scan. Cancelling a cancelled scan is a no-op.
func (o *Orchestrator) CancelScan(ctx context.Context, id string) (*models.Scan, error) {
	scan, err := o.GetScan(ctx, id)
	if err != nil {
		return nil, err
	}
	switch scan.Status {
	case models.ScanStatusCancelled:
		return scan, nil
	case models.ScanStatusCompleted, models.ScanStatusFailed:
		return nil, fmt.Errorf("%w: scan is %s", ErrInvalidTransition, scan.Status)
	}

	now := o.now()
	applied, err := o.scans.Transition(ctx, id, models.ActiveScanStatuses, map[string]interface{}{
		"status":       models.ScanStatusCancelled,
		"completed_at": now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to cancel scan: %w", err)
	}

	current, err := o.GetScan(ctx, id)
	if err != nil {
		return nil, err
	}
	if !applied {
		if current.Status == models.ScanStatusCancelled {
			return current, nil
		}
		return nil, fmt.Errorf("%w: scan is %s", ErrInvalidTransition, current.Status)
	}

	o.cancelTask(id)
	if current.ProviderScanID != "" {
		if err := o.provider.StopScan(ctx, current.ProviderScanID); err != nil {
			o.log.WithError(err).WithFields(logrus.Fields{
				"scan_id":          id,
				"provider_scan_id": current.ProviderScanID,
			}).Warn("Failed to stop scan at provider")
		}
	}

	o.log.WithField("scan_id", id).Info("Scan cancelled")
	o.notifier.notify(models.NewScanEvent(current, models.ScanEventCancelled, "Scan cancelled"))
	return current, nil
}

// DeleteScan stops a scan if needed and removes it together with its findings
func (o *Orchestrator) DeleteScan(ctx context.Context, id string) error {
	scan, err := o.GetScan(ctx, id)
	if err != nil {
		return err
	}

	o.cancelTask(id)
	if scan.ProviderScanID != "" {
		if err := o.provider.DeleteScan(ctx, scan.ProviderScanID); err != nil {
			o.log.WithError(err).WithFields(logrus.Fields{
				"scan_id":          id,
				"provider_scan_id": scan.ProviderScanID,
			}).Warn("Failed to delete scan at provider")
		}
	}

	if err := o.scans.Delete(ctx, id); err != nil {
		return mapRepoError(err, "scan", id)
	}
	o.log.WithField("scan_id", id).Info("Scan deleted")
	return nil
}

// ActiveTasks returns the number of scans whose lifecycle task is running
func (o *Orchestrator) ActiveTasks() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.tasks)
}

// Shutdown stops accepting scans, cancels every task and waits for them to exit.
// Scans interrupted this way keep their persisted state.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.stopping = true
	o.mu.Unlock()
	o.stopAll()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("scan tasks did not stop: %w", ctx.Err())
	}
	return o.notifier.close(ctx)
}

func (o *Orchestrator) cancelTask(id string) {
	o.mu.Lock()
	cancel, ok := o.tasks[id]
	o.mu.Unlock()
	if ok {
		cancel()
	}
}

func (o *Orchestrator) finishTask(id string) {
	o.mu.Lock()
	if cancel, ok := o.tasks[id]; ok {
		cancel()
		delete(o.tasks, id)
	}
	o.mu.Unlock()
	o.wg.Done()
}

// mapRepoError converts repository errors into the scan taxonomy
func mapRepoError(err error, entity, id string) error {
	if errors.Is(err, repositories.ErrNotFound) {
		return fmt.Errorf("%w: %s %s", ErrNotFound, entity, id)
	}
	return err
}
