package scan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cobytes/scanOrchestratorGo/internal/database/repositories"
	"github.com/cobytes/scanOrchestratorGo/internal/models"
	"github.com/cobytes/scanOrchestratorGo/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateScan_ReturnsPendingWithoutWaitingForProvider(t *testing.T) {
	env := newTestEnv(t)
	gate := make(chan struct{})
	env.provider.onCreateTarget = func(ctx context.Context, _ string) error {
		select {
		case <-gate:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	defer close(gate)

	start := time.Now()
	scan, err := env.orch.CreateScan(context.Background(), CreateScanInput{
		Target: " example.com ",
		Kind:   models.ScanKindPortScan,
	})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)

	assert.Equal(t, models.ScanStatusPending, scan.Status)
	assert.Equal(t, 0, scan.Progress)
	assert.Equal(t, "example.com", scan.Target)
	assert.NotEmpty(t, scan.ID)

	stored, err := env.orch.GetScan(context.Background(), scan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ScanStatusPending, stored.Status)
	assert.Empty(t, stored.ProviderScanID)
}

func TestCreateScan_Validation(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.orch.CreateScan(context.Background(), CreateScanInput{Target: "  ", Kind: models.ScanKindPing})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = env.orch.CreateScan(context.Background(), CreateScanInput{Target: "example.com", Kind: "quantum_scan"})
	assert.ErrorIs(t, err, ErrValidation)

	_, total, err := env.orch.ListScans(context.Background(), repositories.ScanFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Zero(t, env.provider.targetCount())
}

func TestScanLifecycle_SubdomainEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	gate := make(chan struct{})
	env.provider.onCreateTarget = func(ctx context.Context, _ string) error {
		<-gate
		return nil
	}
	env.provider.onStatus = func(_ string, call int) (*provider.Status, error) {
		if call == 1 {
			return running(50), nil
		}
		return &provider.Status{State: provider.StateFinished}, nil
	}
	env.provider.onOutput = func(string) (*provider.Output, error) {
		return &provider.Output{Data: json.RawMessage(`{"subdomains":[{"name":"a.example.com"},{"name":"b.example.com"}]}`)}, nil
	}

	scan, err := env.orch.CreateScan(context.Background(), CreateScanInput{
		Target:  "example.com",
		Kind:    models.ScanKindSubdomainFinder,
		OwnerID: "alice",
	})
	require.NoError(t, err)
	sub := env.hub.Subscribe(scan.ID)
	close(gate)

	final := env.waitForStatus(t, scan.ID, models.ScanStatusCompleted)
	assert.Equal(t, 100, final.Progress)
	assert.NotNil(t, final.StartedAt)
	assert.NotNil(t, final.CompletedAt)
	assert.NotEmpty(t, final.ProviderScanID)
	assert.NotEmpty(t, final.ProviderTargetID)
	assert.Empty(t, final.ErrorMessage)

	findings, err := env.orch.ListFindings(context.Background(), scan.ID)
	require.NoError(t, err)
	require.Len(t, findings, 2)
	titles := []string{findings[0].Title, findings[1].Title}
	assert.ElementsMatch(t, []string{"a.example.com", "b.example.com"}, titles)
	for _, f := range findings {
		assert.Equal(t, models.SeverityInfo, f.Severity)
	}

	// the queued event may or may not reach a subscriber that joined after creation
	var types []models.ScanEventType
	var last models.ScanEvent
	for {
		last = nextEvent(t, sub)
		if last.Status != models.ScanStatusPending {
			types = append(types, last.Type)
		}
		if last.IsFinal() {
			break
		}
	}
	assert.Equal(t, []models.ScanEventType{models.ScanEventStatus, models.ScanEventProgress, models.ScanEventCompleted}, types)
	assert.Equal(t, 2, last.FindingsCount)
	assert.Equal(t, 100, last.Progress)
}

func TestScanLifecycle_ProgressNeverReaches100WhileRunning(t *testing.T) {
	env := newTestEnv(t)
	release := make(chan struct{})
	env.provider.onStatus = func(_ string, call int) (*provider.Status, error) {
		select {
		case <-release:
			return &provider.Status{State: provider.StateFinished}, nil
		default:
		}
		if call == 1 {
			return running(60), nil
		}
		if call == 2 {
			return running(30), nil
		}
		return running(100), nil
	}

	scan, err := env.orch.CreateScan(context.Background(), CreateScanInput{Target: "example.com", Kind: models.ScanKindPing})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		current, err := env.orch.GetScan(context.Background(), scan.ID)
		return err == nil && current.Progress == 99
	}, 3*time.Second, 5*time.Millisecond)

	current, err := env.orch.GetScan(context.Background(), scan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ScanStatusRunning, current.Status)

	close(release)
	final := env.waitForStatus(t, scan.ID, models.ScanStatusCompleted)
	assert.Equal(t, 100, final.Progress)

	findings, err := env.orch.ListFindings(context.Background(), scan.ID)
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestScanLifecycle_Failures(t *testing.T) {
	tests := []struct {
		name     string
		kind     models.ScanKind
		params   models.JSONMap
		setup    func(env *testEnv)
		code     string
		contains string
	}{
		{
			name: "unsupported kind",
			kind: models.ScanKindWhois,
			setup: func(env *testEnv) {
				env.orch.registry = provider.NewRegistry()
			},
			code: CodeUnsupportedScanKind,
		},
		{
			name:   "invalid parameters",
			kind:   models.ScanKindPortScan,
			params: models.JSONMap{"scan_type": "everything"},
			code:   CodeValidation,
		},
		{
			name: "dispatch rejected",
			kind: models.ScanKindPing,
			setup: func(env *testEnv) {
				env.provider.onStartScan = func(context.Context) error {
					return errors.New("tool not available")
				}
			},
			code:     CodeProviderDispatch,
			contains: "tool not available",
		},
		{
			name: "unknown provider status",
			kind: models.ScanKindPing,
			setup: func(env *testEnv) {
				env.provider.onStatus = func(string, int) (*provider.Status, error) {
					return &provider.Status{State: "aborted"}, nil
				}
			},
			code:     CodeProviderPoll,
			contains: "aborted",
		},
		{
			name: "poll transport error",
			kind: models.ScanKindPing,
			setup: func(env *testEnv) {
				env.provider.onStatus = func(string, int) (*provider.Status, error) {
					return nil, errors.New("connection reset")
				}
			},
			code:     CodeProviderPoll,
			contains: "connection reset",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			if tt.setup != nil {
				tt.setup(env)
			}

			scan, err := env.orch.CreateScan(context.Background(), CreateScanInput{
				Target:     "example.com",
				Kind:       tt.kind,
				Parameters: tt.params,
			})
			require.NoError(t, err)

			final := env.waitForStatus(t, scan.ID, models.ScanStatusFailed)
			assert.Equal(t, tt.code, final.ErrorCode)
			assert.NotEmpty(t, final.ErrorMessage)
			assert.NotNil(t, final.CompletedAt)
			assert.Less(t, final.Progress, 100)
			if tt.contains != "" {
				assert.Contains(t, final.ErrorMessage, tt.contains)
			}
			assert.Contains(t, env.logs.String(), scan.ID)
		})
	}
}

func TestScanLifecycle_UnsupportedKindNeverReachesProvider(t *testing.T) {
	env := newTestEnv(t)
	env.orch.registry = provider.NewRegistry()

	scan, err := env.orch.CreateScan(context.Background(), CreateScanInput{Target: "example.com", Kind: models.ScanKindTraceroute})
	require.NoError(t, err)

	final := env.waitForStatus(t, scan.ID, models.ScanStatusFailed)
	assert.Empty(t, final.ProviderScanID)
	assert.Nil(t, final.StartedAt)
	assert.Zero(t, env.provider.targetCount())
}

func TestScanLifecycle_NormalizationErrorKeepsRawOutput(t *testing.T) {
	env := newTestEnv(t)
	env.provider.onOutput = func(string) (*provider.Output, error) {
		return &provider.Output{Data: json.RawMessage(`{"ports":"all of them"}`)}, nil
	}

	scan, err := env.orch.CreateScan(context.Background(), CreateScanInput{Target: "example.com", Kind: models.ScanKindPortScan})
	require.NoError(t, err)

	final := env.waitForStatus(t, scan.ID, models.ScanStatusFailed)
	assert.Equal(t, CodeNormalization, final.ErrorCode)
	assert.JSONEq(t, `{"ports":"all of them"}`, string(final.RawOutput))

	findings, err := env.orch.ListFindings(context.Background(), scan.ID)
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestScanLifecycle_Timeout(t *testing.T) {
	env := newTestEnv(t, withOptions(func(o *Options) { o.ScanTimeout = 50 * time.Millisecond }))
	env.provider.onStatus = func(string, int) (*provider.Status, error) {
		return &provider.Status{State: provider.StateQueued}, nil
	}

	scan, err := env.orch.CreateScan(context.Background(), CreateScanInput{Target: "example.com", Kind: models.ScanKindPing})
	require.NoError(t, err)

	final := env.waitForStatus(t, scan.ID, models.ScanStatusFailed)
	assert.Equal(t, CodeTimeout, final.ErrorCode)
	assert.Contains(t, final.ErrorMessage, "timed out")
	assert.Equal(t, []string{final.ProviderScanID}, env.provider.stoppedIDs())
}

func TestCancelScan(t *testing.T) {
	env := newTestEnv(t)
	env.provider.onStatus = func(string, int) (*provider.Status, error) {
		return running(10), nil
	}

	scan, err := env.orch.CreateScan(context.Background(), CreateScanInput{Target: "example.com", Kind: models.ScanKindPing})
	require.NoError(t, err)
	runningScan := env.waitForStatus(t, scan.ID, models.ScanStatusRunning)
	sub := env.hub.Subscribe(scan.ID)

	cancelled, err := env.orch.CancelScan(context.Background(), scan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ScanStatusCancelled, cancelled.Status)
	assert.NotNil(t, cancelled.CompletedAt)
	assert.Empty(t, cancelled.ErrorMessage)
	assert.Equal(t, []string{runningScan.ProviderScanID}, env.provider.stoppedIDs())

	for {
		ev := nextEvent(t, sub)
		if ev.Type == models.ScanEventCancelled {
			assert.Equal(t, models.ScanStatusCancelled, ev.Status)
			break
		}
	}

	env.waitForIdle(t)

	again, err := env.orch.CancelScan(context.Background(), scan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ScanStatusCancelled, again.Status)
	assert.Len(t, env.provider.stoppedIDs(), 1)

	time.Sleep(30 * time.Millisecond)
	final, err := env.orch.GetScan(context.Background(), scan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ScanStatusCancelled, final.Status)
}

func TestCancelScan_Pending(t *testing.T) {
	env := newTestEnv(t)
	gate := make(chan struct{})
	env.provider.onCreateTarget = func(ctx context.Context, _ string) error {
		select {
		case <-gate:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	defer close(gate)

	scan, err := env.orch.CreateScan(context.Background(), CreateScanInput{Target: "example.com", Kind: models.ScanKindPing})
	require.NoError(t, err)

	cancelled, err := env.orch.CancelScan(context.Background(), scan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ScanStatusCancelled, cancelled.Status)
	assert.Empty(t, env.provider.stoppedIDs())

	env.waitForIdle(t)
	final, err := env.orch.GetScan(context.Background(), scan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ScanStatusCancelled, final.Status)
	assert.Empty(t, final.ErrorMessage)
}

func TestCancelScan_DuringStartStopsProviderScan(t *testing.T) {
	env := newTestEnv(t)
	entered := make(chan struct{})
	release := make(chan struct{})
	env.provider.onStartScan = func(context.Context) error {
		close(entered)
		<-release
		return nil
	}

	scan, err := env.orch.CreateScan(context.Background(), CreateScanInput{Target: "example.com", Kind: models.ScanKindPing})
	require.NoError(t, err)

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("scan was not dispatched")
	}

	cancelled, err := env.orch.CancelScan(context.Background(), scan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ScanStatusCancelled, cancelled.Status)
	close(release)

	env.waitForIdle(t)
	final, err := env.orch.GetScan(context.Background(), scan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ScanStatusCancelled, final.Status)
	assert.Empty(t, final.ProviderScanID)

	stopped := env.provider.stoppedIDs()
	require.Len(t, stopped, 1)
	assert.True(t, strings.HasPrefix(stopped[0], "pscan-"))
}

func TestCancelScan_Errors(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.orch.CancelScan(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	scan, err := env.orch.CreateScan(context.Background(), CreateScanInput{Target: "example.com", Kind: models.ScanKindPing})
	require.NoError(t, err)
	env.waitForStatus(t, scan.ID, models.ScanStatusCompleted)

	_, err = env.orch.CancelScan(context.Background(), scan.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestDeleteScan(t *testing.T) {
	env := newTestEnv(t)
	env.provider.onOutput = func(string) (*provider.Output, error) {
		return &provider.Output{Data: json.RawMessage(`{"subdomains":["a.example.com"]}`)}, nil
	}

	scan, err := env.orch.CreateScan(context.Background(), CreateScanInput{Target: "example.com", Kind: models.ScanKindSubdomainFinder})
	require.NoError(t, err)
	completed := env.waitForStatus(t, scan.ID, models.ScanStatusCompleted)

	require.NoError(t, env.orch.DeleteScan(context.Background(), scan.ID))
	assert.Equal(t, []string{completed.ProviderScanID}, env.provider.deletedIDs())

	_, err = env.orch.GetScan(context.Background(), scan.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	findings, err := env.findings.ListByScan(context.Background(), scan.ID)
	require.NoError(t, err)
	assert.Empty(t, findings)

	assert.ErrorIs(t, env.orch.DeleteScan(context.Background(), scan.ID), ErrNotFound)
}

func TestDeleteScan_StopsRunningTask(t *testing.T) {
	env := newTestEnv(t)
	env.provider.onStatus = func(string, int) (*provider.Status, error) {
		return running(20), nil
	}

	scan, err := env.orch.CreateScan(context.Background(), CreateScanInput{Target: "example.com", Kind: models.ScanKindPing})
	require.NoError(t, err)
	env.waitForStatus(t, scan.ID, models.ScanStatusRunning)

	require.NoError(t, env.orch.DeleteScan(context.Background(), scan.ID))
	env.waitForIdle(t)

	_, err = env.orch.GetScan(context.Background(), scan.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateProgress(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	scan := &models.Scan{ID: "manual", Target: "example.com", Kind: models.ScanKindPing, Status: models.ScanStatusRunning}
	require.NoError(t, env.scans.Create(ctx, scan))
	sub := env.hub.Subscribe(scan.ID)

	require.NoError(t, env.orch.UpdateProgress(ctx, scan.ID, 40, nil))
	ev := nextEvent(t, sub)
	assert.Equal(t, models.ScanEventProgress, ev.Type)
	assert.Equal(t, 40, ev.Progress)

	require.NoError(t, env.orch.UpdateProgress(ctx, scan.ID, 20, nil))
	require.NoError(t, env.orch.UpdateProgress(ctx, scan.ID, 150, nil))

	current, err := env.orch.GetScan(ctx, scan.ID)
	require.NoError(t, err)
	assert.Equal(t, 99, current.Progress)
	assert.Equal(t, models.ScanStatusRunning, current.Status)

	completed := models.ScanStatusCompleted
	assert.ErrorIs(t, env.orch.UpdateProgress(ctx, scan.ID, 100, &completed), ErrInvalidTransition)
	assert.ErrorIs(t, env.orch.UpdateProgress(ctx, "missing", 10, nil), ErrNotFound)
}

func TestUpdateProgressNeverLeavesRunning(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	running := &models.Scan{
		ID: "dispatched", Target: "example.com", Kind: models.ScanKindPing,
		Status: models.ScanStatusRunning, ProviderScanID: "p1",
	}
	require.NoError(t, env.scans.Create(ctx, running))

	pending := models.ScanStatusPending
	assert.ErrorIs(t, env.orch.UpdateProgress(ctx, running.ID, 50, &pending), ErrInvalidTransition)

	current, err := env.orch.GetScan(ctx, running.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ScanStatusRunning, current.Status)
	assert.Equal(t, 0, current.Progress)
	assert.Equal(t, "p1", current.ProviderScanID)

	runningStatus := models.ScanStatusRunning
	require.NoError(t, env.orch.UpdateProgress(ctx, running.ID, 50, &runningStatus))
	current, err = env.orch.GetScan(ctx, running.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, current.Progress)
	assert.Equal(t, models.ScanStatusRunning, current.Status)

	queued := &models.Scan{ID: "queued", Target: "example.com", Kind: models.ScanKindPing, Status: models.ScanStatusPending}
	require.NoError(t, env.scans.Create(ctx, queued))
	assert.ErrorIs(t, env.orch.UpdateProgress(ctx, queued.ID, 10, &runningStatus), ErrInvalidTransition)

	current, err = env.orch.GetScan(ctx, queued.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ScanStatusPending, current.Status)
	assert.Empty(t, current.ProviderScanID)
}

func TestQuota(t *testing.T) {
	env := newTestEnv(t, withDeps(func(d *Dependencies) {
		d.Quota = &CountQuota{
			Scans:  d.Scans,
			Limit:  1,
			Window: time.Hour,
			Exempt: []models.ScanKind{models.ScanKindPing},
		}
	}))
	ctx := context.Background()

	first, err := env.orch.CreateScan(ctx, CreateScanInput{Target: "example.com", Kind: models.ScanKindWhois, OwnerID: "alice"})
	require.NoError(t, err)
	env.waitForStatus(t, first.ID, models.ScanStatusCompleted)

	second, err := env.orch.CreateScan(ctx, CreateScanInput{Target: "example.com", Kind: models.ScanKindWhois, OwnerID: "alice"})
	require.NoError(t, err)
	denied := env.waitForStatus(t, second.ID, models.ScanStatusFailed)
	assert.Equal(t, CodeQuotaExceeded, denied.ErrorCode)

	exempt, err := env.orch.CreateScan(ctx, CreateScanInput{Target: "example.com", Kind: models.ScanKindPing, OwnerID: "alice"})
	require.NoError(t, err)
	env.waitForStatus(t, exempt.ID, models.ScanStatusCompleted)

	other, err := env.orch.CreateScan(ctx, CreateScanInput{Target: "example.com", Kind: models.ScanKindWhois, OwnerID: "bob"})
	require.NoError(t, err)
	env.waitForStatus(t, other.ID, models.ScanStatusCompleted)
}

func TestWorkerSlotsBoundProviderCalls(t *testing.T) {
	env := newTestEnv(t, withOptions(func(o *Options) { o.MaxConcurrent = 1 }))
	gate := make(chan struct{})
	var entered int32
	env.provider.onCreateTarget = func(ctx context.Context, _ string) error {
		atomic.AddInt32(&entered, 1)
		select {
		case <-gate:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	first, err := env.orch.CreateScan(context.Background(), CreateScanInput{Target: "one.example.com", Kind: models.ScanKindPing})
	require.NoError(t, err)
	second, err := env.orch.CreateScan(context.Background(), CreateScanInput{Target: "two.example.com", Kind: models.ScanKindPing})
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 2, env.orch.ActiveTasks())
	assert.Equal(t, int32(1), atomic.LoadInt32(&entered))
	close(gate)

	env.waitForStatus(t, first.ID, models.ScanStatusCompleted)
	env.waitForStatus(t, second.ID, models.ScanStatusCompleted)
	assert.Equal(t, 2, env.provider.targetCount())
}

func TestShutdown(t *testing.T) {
	env := newTestEnv(t)
	env.provider.onStatus = func(string, int) (*provider.Status, error) {
		return running(5), nil
	}

	scan, err := env.orch.CreateScan(context.Background(), CreateScanInput{Target: "example.com", Kind: models.ScanKindPing})
	require.NoError(t, err)
	env.waitForStatus(t, scan.ID, models.ScanStatusRunning)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, env.orch.Shutdown(ctx))
	assert.Zero(t, env.orch.ActiveTasks())

	current, err := env.scans.GetByID(context.Background(), scan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ScanStatusRunning, current.Status)

	_, err = env.orch.CreateScan(context.Background(), CreateScanInput{Target: "example.com", Kind: models.ScanKindPing})
	assert.ErrorIs(t, err, ErrShuttingDown)
}

func TestCreateScan_PersistsOutsideTaskLock(t *testing.T) {
	var held *heldScanRepository
	env := newTestEnv(t, withDeps(func(d *Dependencies) { held = holdCreates(d) }))

	created := make(chan error, 1)
	go func() {
		_, err := env.orch.CreateScan(context.Background(), CreateScanInput{Target: "example.com", Kind: models.ScanKindPing})
		created <- err
	}()
	<-held.entered

	counted := make(chan int, 1)
	go func() { counted <- env.orch.ActiveTasks() }()
	select {
	case n := <-counted:
		assert.Zero(t, n)
	case <-time.After(time.Second):
		t.Fatal("task bookkeeping waited on the database write")
	}

	close(held.release)
	require.NoError(t, <-created)
	env.waitForIdle(t)
}

func TestCreateScan_ShutdownDuringPersistRemovesScan(t *testing.T) {
	var held *heldScanRepository
	env := newTestEnv(t, withDeps(func(d *Dependencies) { held = holdCreates(d) }))

	created := make(chan error, 1)
	go func() {
		_, err := env.orch.CreateScan(context.Background(), CreateScanInput{Target: "example.com", Kind: models.ScanKindPing})
		created <- err
	}()
	<-held.entered

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, env.orch.Shutdown(ctx))

	close(held.release)
	assert.ErrorIs(t, <-created, ErrShuttingDown)

	scans, total, err := env.scans.List(context.Background(), repositories.ScanFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, scans)
	assert.Zero(t, env.orch.ActiveTasks())
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{fmt.Errorf("%w: x", ErrValidation), CodeValidation},
		{fmt.Errorf("%w: x", ErrUnsupportedScanKind), CodeUnsupportedScanKind},
		{fmt.Errorf("%w: x", ErrProviderDispatch), CodeProviderDispatch},
		{fmt.Errorf("%w: x", ErrProviderPoll), CodeProviderPoll},
		{&failure{err: wrap(ErrNormalization, errors.New("x"))}, CodeNormalization},
		{fmt.Errorf("%w: x", ErrTimeout), CodeTimeout},
		{fmt.Errorf("%w: x", ErrQuotaExceeded), CodeQuotaExceeded},
		{errors.New("disk full"), CodeInternal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.code, ErrorCode(tt.err), tt.err.Error())
	}
}
