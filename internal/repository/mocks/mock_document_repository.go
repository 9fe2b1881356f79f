package mocks

import (
	"context"

	"docpipeline/internal/model"

	"github.com/stretchr/testify/mock"
)

type MockDocumentRepository struct {
	mock.Mock
}

func (m *MockDocumentRepository) Create(ctx context.Context, doc *model.Document) (*model.Document, error) {
	args := m.Called(ctx, doc)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Document), args.Error(1)
}

func (m *MockDocumentRepository) FindByContentHash(ctx context.Context, tenantID, contentHash string) (*model.Document, error) {
	args := m.Called(ctx, tenantID, contentHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Document), args.Error(1)
}

func (m *MockDocumentRepository) SetFinalStorageKey(ctx context.Context, id, key string) error {
	args := m.Called(ctx, id, key)
	return args.Error(0)
}

type MockLogRepository struct {
	mock.Mock
}

func (m *MockLogRepository) InsertBatch(ctx context.Context, entries []model.ProcessingLogEntry) error {
	args := m.Called(ctx, entries)
	return args.Error(0)
}

type MockOCRAttemptRepository struct {
	mock.Mock
}

func (m *MockOCRAttemptRepository) Find(ctx context.Context, tenantID, objectKey string) (*model.OCRAttempt, error) {
	args := m.Called(ctx, tenantID, objectKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.OCRAttempt), args.Error(1)
}

func (m *MockOCRAttemptRepository) RecordFailure(ctx context.Context, a model.OCRAttempt) error {
	args := m.Called(ctx, a)
	return args.Error(0)
}

func (m *MockOCRAttemptRepository) Clear(ctx context.Context, tenantID, objectKey string) error {
	args := m.Called(ctx, tenantID, objectKey)
	return args.Error(0)
}
