package scan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cobytes/scanOrchestratorGo/internal/models"
	"github.com/cobytes/scanOrchestratorGo/internal/provider"
	"github.com/sirupsen/logrus"
)

// writeTimeout bounds state writes made after the task context has ended
const writeTimeout = 10 * time.Second

// errInactive means the scan left the active statuses while the task was running
var errInactive = errors.New("scan is no longer active")

// run is the background task of one scan
func (o *Orchestrator) run(taskCtx context.Context, scan models.Scan) {
	defer o.finishTask(scan.ID)

	log := o.log.WithFields(logrus.Fields{"scan_id": scan.ID, "kind": scan.Kind})

	if err := o.slots.Acquire(taskCtx, 1); err != nil {
		log.Debug("Scan task stopped while waiting for a worker slot")
		return
	}
	defer o.slots.Release(1)

	ctx := taskCtx
	if o.opts.ScanTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(taskCtx, o.opts.ScanTimeout)
		defer cancel()
	}

	err := o.execute(ctx, log, &scan)
	switch {
	case err == nil:
		return
	case taskCtx.Err() != nil:
		log.Debug("Scan task cancelled")
		return
	case errors.Is(err, errInactive):
		log.Debug("Scan left the active statuses, task exiting")
		return
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		err = fmt.Errorf("%w after %s", ErrTimeout, o.opts.ScanTimeout)
		if scan.ProviderScanID != "" {
			o.stopOrphan(scan.ProviderScanID, log)
		}
	}
	o.fail(&scan, err, log)
}

// execute drives the scan from PENDING to COMPLETED
func (o *Orchestrator) execute(ctx context.Context, log *logrus.Entry, scan *models.Scan) error {
	if err := o.quota.Authorize(ctx, scan); err != nil {
		if errors.Is(err, ErrQuotaExceeded) {
			return err
		}
		return fmt.Errorf("quota check failed: %w", err)
	}

	tool, params, err := o.registry.Resolve(scan.Kind, scan.Parameters)
	if err != nil {
		if errors.Is(err, provider.ErrUnsupportedKind) {
			return wrap(ErrUnsupportedScanKind, err)
		}
		return wrap(ErrValidation, err)
	}

	targetID, err := o.provider.CreateTarget(ctx, scan.Target)
	if err != nil {
		return wrap(ErrProviderDispatch, err)
	}
	providerScanID, err := o.provider.StartScan(ctx, tool.ID, targetID, params.ToolParameters())
	if err != nil {
		return wrap(ErrProviderDispatch, err)
	}

	// the provider scan exists now, so record it even if the task is being cancelled
	startedAt := o.now()
	applied, err := o.scans.Transition(context.WithoutCancel(ctx), scan.ID, []models.ScanStatus{models.ScanStatusPending}, map[string]interface{}{
		"status":             models.ScanStatusRunning,
		"started_at":         startedAt,
		"provider_scan_id":   providerScanID,
		"provider_target_id": targetID,
	})
	if err != nil {
		return fmt.Errorf("failed to mark scan running: %w", err)
	}
	if !applied {
		o.stopOrphan(providerScanID, log)
		return errInactive
	}
	scan.Status = models.ScanStatusRunning
	scan.StartedAt = &startedAt
	scan.ProviderScanID = providerScanID
	scan.ProviderTargetID = targetID

	log = log.WithField("provider_scan_id", providerScanID)
	log.WithField("tool_id", tool.ID).Info("Scan dispatched to provider")
	o.notifier.notify(models.NewScanEvent(scan, models.ScanEventStatus, "Scan running"))

	if err := o.poll(ctx, scan); err != nil {
		return err
	}

	output, err := o.provider.GetOutput(ctx, providerScanID)
	if err != nil {
		return wrap(ErrProviderPoll, err)
	}

	findings, err := o.normalizer.Normalize(scan.Kind, output.Data)
	if err != nil {
		return &failure{err: wrap(ErrNormalization, err), raw: output.Data}
	}

	completedAt := o.now()
	applied, err = o.scans.Complete(ctx, scan.ID, findings, completedAt)
	if err != nil {
		return fmt.Errorf("failed to store scan results: %w", err)
	}
	if !applied {
		return errInactive
	}
	scan.Status = models.ScanStatusCompleted
	scan.Progress = 100
	scan.CompletedAt = &completedAt

	summary := models.Summarize(findings)
	log.WithFields(logrus.Fields{
		"findings": summary.Total,
		"highest":  summary.Highest(),
	}).Info("Scan completed")

	event := models.NewScanEvent(scan, models.ScanEventCompleted, fmt.Sprintf("Scan completed with %d findings", summary.Total))
	event.FindingsCount = summary.Total
	event.Summary = &summary
	o.notifier.notify(event)
	return nil
}

// poll waits until the provider reports the scan finished
func (o *Orchestrator) poll(ctx context.Context, scan *models.Scan) error {
	ticker := time.NewTicker(o.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		status, err := o.provider.GetStatus(ctx, scan.ProviderScanID)
		if err != nil {
			return wrap(ErrProviderPoll, err)
		}

		switch {
		case status.Pending():
			continue
		case status.State == provider.StateRunning:
			if status.Progress != nil {
				o.advance(ctx, scan, *status.Progress)
			}
		case status.State == provider.StateFinished:
			return nil
		default:
			return fmt.Errorf("%w: provider reported status %q", ErrProviderPoll, status.State)
		}
	}
}

// advance records provider progress, clamped below 100 and never backwards
func (o *Orchestrator) advance(ctx context.Context, scan *models.Scan, progress int) {
	if progress > 99 {
		progress = 99
	}
	if progress <= scan.Progress {
		return
	}
	if err := o.UpdateProgress(ctx, scan.ID, progress, nil); err != nil {
		o.log.WithError(err).WithField("scan_id", scan.ID).Warn("Failed to record scan progress")
		return
	}
	scan.Progress = progress
}

// fail marks the scan FAILED unless it already reached a terminal status
func (o *Orchestrator) fail(scan *models.Scan, cause error, log *logrus.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	code := ErrorCode(cause)
	fields := map[string]interface{}{
		"status":        models.ScanStatusFailed,
		"error_message": cause.Error(),
		"error_code":    code,
		"completed_at":  o.now(),
	}
	var f *failure
	if errors.As(cause, &f) && len(f.raw) > 0 {
		fields["raw_output"] = models.RawJSON(f.raw)
	}

	applied, err := o.scans.Transition(ctx, scan.ID, models.ActiveScanStatuses, fields)
	if err != nil {
		log.WithError(err).Error("Failed to persist scan failure")
		return
	}
	if !applied {
		return
	}

	log.WithError(cause).WithField("error_code", code).Error("Scan failed")
	scan.Status = models.ScanStatusFailed
	scan.ErrorMessage = cause.Error()
	scan.ErrorCode = code
	o.notifier.notify(models.NewScanEvent(scan, models.ScanEventFailed, cause.Error()))
}

// stopOrphan stops a provider scan that no local task is tracking anymore
func (o *Orchestrator) stopOrphan(providerScanID string, log *logrus.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := o.provider.StopScan(ctx, providerScanID); err != nil {
		log.WithError(err).WithField("provider_scan_id", providerScanID).Warn("Failed to stop provider scan")
	}
}
