package mocks

import (
	"context"
	"time"

	"docpipeline/internal/model"

	"github.com/stretchr/testify/mock"
)

type MockQueueRepository struct {
	mock.Mock
}

func (m *MockQueueRepository) Create(ctx context.Context, item *model.QueueItem) (*model.QueueItem, error) {
	args := m.Called(ctx, item)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.QueueItem), args.Error(1)
}

func (m *MockQueueRepository) FindBySourceRef(ctx context.Context, tenantID, sourceRef string) (*model.QueueItem, error) {
	args := m.Called(ctx, tenantID, sourceRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.QueueItem), args.Error(1)
}

func (m *MockQueueRepository) FindByContentHash(ctx context.Context, tenantID, contentHash string) (*model.QueueItem, error) {
	args := m.Called(ctx, tenantID, contentHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.QueueItem), args.Error(1)
}

func (m *MockQueueRepository) PollDue(ctx context.Context, now, staleBefore time.Time, limit int) ([]model.QueueItem, error) {
	args := m.Called(ctx, now, staleBefore, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.QueueItem), args.Error(1)
}

func (m *MockQueueRepository) MarkProcessing(ctx context.Context, id string, claimedFrom model.QueueStatus) (bool, error) {
	args := m.Called(ctx, id, claimedFrom)
	return args.Bool(0), args.Error(1)
}

func (m *MockQueueRepository) MarkDone(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockQueueRepository) Reschedule(ctx context.Context, id string, attempts int, nextRetryAt time.Time, lastError string) error {
	args := m.Called(ctx, id, attempts, nextRetryAt, lastError)
	return args.Error(0)
}

func (m *MockQueueRepository) MarkError(ctx context.Context, id string, attempts int, lastError string) error {
	args := m.Called(ctx, id, attempts, lastError)
	return args.Error(0)
}

func (m *MockQueueRepository) ListByStatus(ctx context.Context, status model.QueueStatus, tenantID string, limit int) ([]model.QueueItem, error) {
	args := m.Called(ctx, status, tenantID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.QueueItem), args.Error(1)
}

func (m *MockQueueRepository) Requeue(ctx context.Context, id string) (*model.QueueItem, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.QueueItem), args.Error(1)
}
