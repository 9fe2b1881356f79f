package mocks

import (
	"context"

	"docpipeline/internal/model"

	"github.com/stretchr/testify/mock"
)

// MockOpsService is a mock implementation of service.OpsService.
type MockOpsService struct {
	mock.Mock
}

func (m *MockOpsService) DeadLetters(ctx context.Context, tenantID string, limit int) ([]model.QueueItem, error) {
	args := m.Called(ctx, tenantID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.QueueItem), args.Error(1)
}

func (m *MockOpsService) Retry(ctx context.Context, id string) (*model.QueueItem, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.QueueItem), args.Error(1)
}

func (m *MockOpsService) ReloadTenants() ([]model.Tenant, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Tenant), args.Error(1)
}
