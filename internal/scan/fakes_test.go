package scan

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cobytes/scanOrchestratorGo/internal/database/repositories"
	"github.com/cobytes/scanOrchestratorGo/internal/events"
	"github.com/cobytes/scanOrchestratorGo/internal/models"
	"github.com/cobytes/scanOrchestratorGo/internal/normalizer"
	"github.com/cobytes/scanOrchestratorGo/internal/provider"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// fakeProvider is a scriptable provider.Client
type fakeProvider struct {
	mu          sync.Mutex
	nextID      int
	statusCalls map[string]int
	targets     []string
	started     []provider.ToolID
	stopped     []string
	deleted     []string

	onCreateTarget func(ctx context.Context, name string) error
	onStartScan    func(ctx context.Context) error
	onStatus       func(id string, call int) (*provider.Status, error)
	onOutput       func(id string) (*provider.Output, error)
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{statusCalls: make(map[string]int)}
}

func (f *fakeProvider) CreateTarget(ctx context.Context, name string) (string, error) {
	if f.onCreateTarget != nil {
		if err := f.onCreateTarget(ctx, name); err != nil {
			return "", err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.targets = append(f.targets, name)
	return fmt.Sprintf("target-%d", f.nextID), nil
}

func (f *fakeProvider) StartScan(ctx context.Context, tool provider.ToolID, targetID string, params map[string]interface{}) (string, error) {
	if f.onStartScan != nil {
		if err := f.onStartScan(ctx); err != nil {
			return "", err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.started = append(f.started, tool)
	return fmt.Sprintf("pscan-%d", f.nextID), nil
}

func (f *fakeProvider) GetStatus(ctx context.Context, id string) (*provider.Status, error) {
	f.mu.Lock()
	f.statusCalls[id]++
	call := f.statusCalls[id]
	f.mu.Unlock()

	if f.onStatus != nil {
		return f.onStatus(id, call)
	}
	return &provider.Status{State: provider.StateFinished}, nil
}

func (f *fakeProvider) GetOutput(ctx context.Context, id string) (*provider.Output, error) {
	if f.onOutput != nil {
		return f.onOutput(id)
	}
	return &provider.Output{Data: json.RawMessage(`null`)}, nil
}

func (f *fakeProvider) StopScan(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, id)
	return nil
}

func (f *fakeProvider) DeleteScan(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeProvider) targetCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.targets)
}

func (f *fakeProvider) stoppedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.stopped...)
}

func (f *fakeProvider) deletedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

func running(progress int) *provider.Status {
	return &provider.Status{State: provider.StateRunning, Progress: &progress}
}

// syncBuffer is a log sink safe to read while tasks are logging
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// heldScanRepository parks Create until release is closed
type heldScanRepository struct {
	repositories.ScanRepository
	entered chan struct{}
	release chan struct{}
}

func holdCreates(d *Dependencies) *heldScanRepository {
	held := &heldScanRepository{
		ScanRepository: d.Scans,
		entered:        make(chan struct{}),
		release:        make(chan struct{}),
	}
	d.Scans = held
	return held
}

func (r *heldScanRepository) Create(ctx context.Context, scan *models.Scan) error {
	close(r.entered)
	<-r.release
	return r.ScanRepository.Create(ctx, scan)
}

type testEnv struct {
	orch     *Orchestrator
	provider *fakeProvider
	hub      *events.Hub
	scans    repositories.ScanRepository
	findings repositories.FindingRepository
	logs     *syncBuffer
}

type envOption func(*Dependencies, *Options)

func withOptions(fn func(*Options)) envOption {
	return func(_ *Dependencies, o *Options) { fn(o) }
}

func withDeps(fn func(*Dependencies)) envOption {
	return func(d *Dependencies, _ *Options) { fn(d) }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.Scan{}, &models.Finding{}))

	logs := new(syncBuffer)
	log := logrus.New()
	log.SetOutput(logs)
	log.SetLevel(logrus.DebugLevel)

	fake := newFakeProvider()
	hub := events.NewHub(64, log)
	deps := Dependencies{
		Scans:      repositories.NewScanRepository(db),
		Findings:   repositories.NewFindingRepository(db),
		Provider:   fake,
		Registry:   provider.DefaultRegistry(),
		Normalizer: normalizer.New(log),
		Broker:     hub,
		Logger:     log,
	}
	options := Options{
		PollInterval:  5 * time.Millisecond,
		ScanTimeout:   5 * time.Second,
		MaxConcurrent: 4,
		EventQueue:    64,
	}
	for _, opt := range opts {
		opt(&deps, &options)
	}

	env := &testEnv{
		orch:     New(deps, options),
		provider: fake,
		hub:      hub,
		scans:    deps.Scans,
		findings: deps.Findings,
		logs:     logs,
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = env.orch.Shutdown(ctx)
		hub.Close()
		sqlDB.Close()
	})
	return env
}

// waitForStatus polls the store until the scan reaches status
func (e *testEnv) waitForStatus(t *testing.T, id string, status models.ScanStatus) *models.Scan {
	t.Helper()
	var scan *models.Scan
	require.Eventually(t, func() bool {
		current, err := e.scans.GetByID(context.Background(), id)
		if err != nil {
			return false
		}
		scan = current
		return current.Status == status
	}, 3*time.Second, 5*time.Millisecond, "scan %s never reached %s", id, status)
	return scan
}

// waitForIdle waits until no lifecycle task is running
func (e *testEnv) waitForIdle(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool { return e.orch.ActiveTasks() == 0 }, 3*time.Second, 5*time.Millisecond)
}

// nextEvent returns the next event of sub, failing after a second
func nextEvent(t *testing.T, sub *events.Subscription) models.ScanEvent {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		require.True(t, ok, "subscription closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
	return models.ScanEvent{}
}

