package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"docpipeline/internal/ocr"
)

// MockExtractor is a mock implementation of ocr.Extractor.
type MockExtractor struct {
	mock.Mock
}

func (m *MockExtractor) Analyze(ctx context.Context, document []byte) (*ocr.Analysis, error) {
	args := m.Called(ctx, document)
	if a := args.Get(0); a != nil {
		return a.(*ocr.Analysis), args.Error(1)
	}
	return nil, args.Error(1)
}
