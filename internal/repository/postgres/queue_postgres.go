package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/sqlscan"
	"github.com/google/uuid"

	"docpipeline/internal/model"
	"docpipeline/internal/repository"
)

const queueTable = "ingest_queue"

var queueColumns = []string{
	"id",
	"tenant_id",
	"source",
	"source_ref",
	"content_hash",
	"status",
	"attempts",
	"next_retry_at",
	"last_error",
	"created_at",
	"updated_at",
}

// QueuePostgres is a PostgreSQL implementation of repository.QueueRepository.
type QueuePostgres struct {
	db  *sql.DB
	now func() time.Time
}

// NewQueuePostgres creates a new QueuePostgres repository.
func NewQueuePostgres(db *sql.DB) *QueuePostgres {
	return &QueuePostgres{db: db, now: time.Now}
}

var _ repository.QueueRepository = (*QueuePostgres)(nil)

func (r *QueuePostgres) Create(ctx context.Context, item *model.QueueItem) (*model.QueueItem, error) {
	id := item.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := r.now().UTC()
	createdAt := item.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	status := item.Status
	if status == "" {
		status = model.QueueStatusPending
	}
	source := item.Source
	if source == "" {
		source = model.SourceSFTP
	}

	query, args, err := psql().
		Insert(queueTable).
		Columns(queueColumns...).
		Values(id, item.TenantID, source, item.SourceRef, item.ContentHash, status,
			item.Attempts, item.NextRetryAt, item.LastError, createdAt, now).
		Suffix("RETURNING " + strings.Join(queueColumns, ", ")).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert queue item: %w", err)
	}

	var out model.QueueItem
	if err := sqlscan.Get(ctx, r.db, &out, query, args...); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *QueuePostgres) FindBySourceRef(ctx context.Context, tenantID, sourceRef string) (*model.QueueItem, error) {
	return r.findOne(ctx, sq.Eq{"tenant_id": tenantID, "source_ref": sourceRef})
}

func (r *QueuePostgres) FindByContentHash(ctx context.Context, tenantID, contentHash string) (*model.QueueItem, error) {
	return r.findOne(ctx, sq.Eq{"tenant_id": tenantID, "content_hash": contentHash})
}

func (r *QueuePostgres) findOne(ctx context.Context, where sq.Eq) (*model.QueueItem, error) {
	query, args, err := psql().
		Select(queueColumns...).
		From(queueTable).
		Where(where).
		OrderBy("created_at ASC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, err
	}

	var item model.QueueItem
	if err := sqlscan.Get(ctx, r.db, &item, query, args...); err != nil {
		return nil, notFound(err)
	}
	return &item, nil
}

func (r *QueuePostgres) PollDue(ctx context.Context, now, staleBefore time.Time, limit int) ([]model.QueueItem, error) {
	if limit <= 0 {
		limit = 1
	}
	query, args, err := psql().
		Select(queueColumns...).
		From(queueTable).
		Where(sq.Or{
			sq.And{
				sq.Eq{"status": model.QueueStatusPending},
				sq.Or{sq.Eq{"next_retry_at": nil}, sq.LtOrEq{"next_retry_at": now}},
			},
			sq.And{
				sq.Eq{"status": model.QueueStatusProcessing},
				sq.Lt{"updated_at": staleBefore},
			},
		}).
		OrderBy("created_at ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, err
	}

	items := make([]model.QueueItem, 0)
	if err := sqlscan.Select(ctx, r.db, &items, query, args...); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *QueuePostgres) MarkProcessing(ctx context.Context, id string, claimedFrom model.QueueStatus) (bool, error) {
	query, args, err := psql().
		Update(queueTable).
		Set("status", model.QueueStatusProcessing).
		Set("updated_at", r.now().UTC()).
		Where(sq.Eq{"id": id, "status": claimedFrom}).
		ToSql()
	if err != nil {
		return false, err
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	return affectedOne(res)
}

func (r *QueuePostgres) MarkDone(ctx context.Context, id string) error {
	query, args, err := psql().
		Update(queueTable).
		Set("status", model.QueueStatusDone).
		Set("last_error", nil).
		Set("next_retry_at", nil).
		Set("updated_at", r.now().UTC()).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, query, args...)
	return err
}

func (r *QueuePostgres) Reschedule(ctx context.Context, id string, attempts int, nextRetryAt time.Time, lastError string) error {
	query, args, err := psql().
		Update(queueTable).
		Set("status", model.QueueStatusPending).
		Set("attempts", sq.Expr("GREATEST(attempts, ?)", attempts)).
		Set("next_retry_at", nextRetryAt.UTC()).
		Set("last_error", lastError).
		Set("updated_at", r.now().UTC()).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, query, args...)
	return err
}

func (r *QueuePostgres) MarkError(ctx context.Context, id string, attempts int, lastError string) error {
	query, args, err := psql().
		Update(queueTable).
		Set("status", model.QueueStatusError).
		Set("attempts", sq.Expr("GREATEST(attempts, ?)", attempts)).
		Set("next_retry_at", nil).
		Set("last_error", lastError).
		Set("updated_at", r.now().UTC()).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, query, args...)
	return err
}

func (r *QueuePostgres) ListByStatus(ctx context.Context, status model.QueueStatus, tenantID string, limit int) ([]model.QueueItem, error) {
	where := sq.Eq{"status": status}
	if tenantID != "" {
		where["tenant_id"] = tenantID
	}
	if limit <= 0 {
		limit = 50
	}
	query, args, err := psql().
		Select(queueColumns...).
		From(queueTable).
		Where(where).
		OrderBy("updated_at DESC", "id DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, err
	}

	items := make([]model.QueueItem, 0)
	if err := sqlscan.Select(ctx, r.db, &items, query, args...); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *QueuePostgres) Requeue(ctx context.Context, id string) (*model.QueueItem, error) {
	query, args, err := psql().
		Update(queueTable).
		Set("status", model.QueueStatusPending).
		Set("next_retry_at", nil).
		Set("updated_at", r.now().UTC()).
		Where(sq.Eq{"id": id, "status": model.QueueStatusError}).
		Suffix("RETURNING " + strings.Join(queueColumns, ", ")).
		ToSql()
	if err != nil {
		return nil, err
	}

	var item model.QueueItem
	if err := sqlscan.Get(ctx, r.db, &item, query, args...); err != nil {
		return nil, notFound(err)
	}
	return &item, nil
}
