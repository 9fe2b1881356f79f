package repository

import (
	"context"

	"docpipeline/internal/model"
)

// DocumentRepository persists documents extracted by the OCR processor.
type DocumentRepository interface {
	// Create inserts a new document record and returns the stored row.
	Create(ctx context.Context, doc *model.Document) (*model.Document, error)

	// FindByContentHash returns the tenant's document with the given hash, or ErrNotFound.
	FindByContentHash(ctx context.Context, tenantID, contentHash string) (*model.Document, error)

	// SetFinalStorageKey records where the object was relocated.
	SetFinalStorageKey(ctx context.Context, id, key string) error
}

// LogRepository writes dashboard processing events.
type LogRepository interface {
	InsertBatch(ctx context.Context, entries []model.ProcessingLogEntry) error
}

// OCRAttemptRepository tracks failed OCR calls per inbox object.
type OCRAttemptRepository interface {
	// Find returns the attempt row for an object, or ErrNotFound.
	Find(ctx context.Context, tenantID, objectKey string) (*model.OCRAttempt, error)

	// RecordFailure upserts the attempt row.
	RecordFailure(ctx context.Context, a model.OCRAttempt) error

	// Clear removes the attempt row once the object left the inbox.
	Clear(ctx context.Context, tenantID, objectKey string) error
}
