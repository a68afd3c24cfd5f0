package api

import (
	"context"
	"errors"

	"github.com/cobytes/scanOrchestratorGo/internal/database/repositories"
	"github.com/cobytes/scanOrchestratorGo/internal/models"
	"github.com/cobytes/scanOrchestratorGo/internal/scan"
	"github.com/stretchr/testify/mock"
)

// MockScanService is a mock implementation of ScanService
type MockScanService struct {
	mock.Mock
}

func (m *MockScanService) Kinds() []models.ScanKindInfo {
	args := m.Called()
	return args.Get(0).([]models.ScanKindInfo)
}

func (m *MockScanService) CreateScan(ctx context.Context, in scan.CreateScanInput) (*models.Scan, error) {
	args := m.Called(ctx, in)
	if s := args.Get(0); s != nil {
		return s.(*models.Scan), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockScanService) GetScan(ctx context.Context, id string) (*models.Scan, error) {
	args := m.Called(ctx, id)
	if s := args.Get(0); s != nil {
		return s.(*models.Scan), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockScanService) ListScans(ctx context.Context, filter repositories.ScanFilter) ([]models.Scan, int64, error) {
	args := m.Called(ctx, filter)
	var items []models.Scan
	if s := args.Get(0); s != nil {
		items = s.([]models.Scan)
	}
	return items, args.Get(1).(int64), args.Error(2)
}

func (m *MockScanService) ListFindings(ctx context.Context, id string) ([]models.Finding, error) {
	args := m.Called(ctx, id)
	if f := args.Get(0); f != nil {
		return f.([]models.Finding), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockScanService) CancelScan(ctx context.Context, id string) (*models.Scan, error) {
	args := m.Called(ctx, id)
	if s := args.Get(0); s != nil {
		return s.(*models.Scan), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockScanService) DeleteScan(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockPolicyService is a mock implementation of PolicyService
type MockPolicyService struct {
	mock.Mock
}

func (m *MockPolicyService) CreatePolicy(ctx context.Context, req models.CreatePolicyRequest, ownerID string) (*models.RecurrencePolicy, error) {
	args := m.Called(ctx, req, ownerID)
	if p := args.Get(0); p != nil {
		return p.(*models.RecurrencePolicy), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockPolicyService) UpdatePolicy(ctx context.Context, id string, req models.UpdatePolicyRequest) (*models.RecurrencePolicy, error) {
	args := m.Called(ctx, id, req)
	if p := args.Get(0); p != nil {
		return p.(*models.RecurrencePolicy), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockPolicyService) DeletePolicy(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockPolicyService) GetPolicy(ctx context.Context, id string) (*models.RecurrencePolicy, error) {
	args := m.Called(ctx, id)
	if p := args.Get(0); p != nil {
		return p.(*models.RecurrencePolicy), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockPolicyService) ListPolicies(ctx context.Context, filter repositories.PolicyFilter) ([]models.RecurrencePolicy, int64, error) {
	args := m.Called(ctx, filter)
	var items []models.RecurrencePolicy
	if p := args.Get(0); p != nil {
		items = p.([]models.RecurrencePolicy)
	}
	return items, args.Get(1).(int64), args.Error(2)
}

// fakeDB is a HealthChecker with a switchable failure
type fakeDB struct {
	down bool
}

func (f *fakeDB) Ping() error {
	if f.down {
		return errors.New("connection refused")
	}
	return nil
}
