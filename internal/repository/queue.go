package repository

import (
	"context"
	"time"

	"docpipeline/internal/model"
)

// QueueRepository is the durable ingest queue shared by the watcher and the uploader.
// No business logic here, strictly persistence operations.
type QueueRepository interface {
	// Create inserts a new PENDING item and returns the stored row.
	Create(ctx context.Context, item *model.QueueItem) (*model.QueueItem, error)

	// FindBySourceRef returns the item for a tenant's original filename, or ErrNotFound.
	FindBySourceRef(ctx context.Context, tenantID, sourceRef string) (*model.QueueItem, error)

	// FindByContentHash returns the oldest item for a tenant with the given hash, or ErrNotFound.
	FindByContentHash(ctx context.Context, tenantID, contentHash string) (*model.QueueItem, error)

	// PollDue returns PENDING items whose retry time has passed, oldest first.
	// PROCESSING items untouched since staleBefore are returned as well so a
	// crashed uploader does not strand them.
	PollDue(ctx context.Context, now, staleBefore time.Time, limit int) ([]model.QueueItem, error)

	// MarkProcessing claims an item. It reports false when the row is no
	// longer claimable (another uploader got it, or it reached a final state).
	MarkProcessing(ctx context.Context, id string, claimedFrom model.QueueStatus) (bool, error)

	// MarkDone finishes an item and clears its last error.
	MarkDone(ctx context.Context, id string) error

	// Reschedule puts an item back to PENDING with a new retry time.
	// attempts never decreases.
	Reschedule(ctx context.Context, id string, attempts int, nextRetryAt time.Time, lastError string) error

	// MarkError dead-letters an item.
	MarkError(ctx context.Context, id string, attempts int, lastError string) error

	// ListByStatus lists items in a status, newest first, optionally for one tenant.
	ListByStatus(ctx context.Context, status model.QueueStatus, tenantID string, limit int) ([]model.QueueItem, error)

	// Requeue moves a dead-lettered item back to PENDING without touching attempts.
	// It returns ErrNotFound when no ERROR item has the id.
	Requeue(ctx context.Context, id string) (*model.QueueItem, error)
}
