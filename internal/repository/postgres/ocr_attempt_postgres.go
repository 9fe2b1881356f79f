package postgres

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/sqlscan"

	"docpipeline/internal/model"
	"docpipeline/internal/repository"
)

const ocrAttemptTable = "ocr_attempts"

var ocrAttemptColumns = []string{"tenant_id", "object_key", "attempts", "next_retry_at", "last_error", "updated_at"}

// OCRAttemptPostgres stores OCR failure bookkeeping.
type OCRAttemptPostgres struct {
	db  *sql.DB
	now func() time.Time
}

func NewOCRAttemptPostgres(db *sql.DB) *OCRAttemptPostgres {
	return &OCRAttemptPostgres{db: db, now: time.Now}
}

var _ repository.OCRAttemptRepository = (*OCRAttemptPostgres)(nil)

func (r *OCRAttemptPostgres) Find(ctx context.Context, tenantID, objectKey string) (*model.OCRAttempt, error) {
	query, args, err := psql().
		Select(ocrAttemptColumns...).
		From(ocrAttemptTable).
		Where(sq.Eq{"tenant_id": tenantID, "object_key": objectKey}).
		ToSql()
	if err != nil {
		return nil, err
	}

	var a model.OCRAttempt
	if err := sqlscan.Get(ctx, r.db, &a, query, args...); err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

// RecordFailure inserts or updates the attempt row. The stored attempt count never decreases.
func (r *OCRAttemptPostgres) RecordFailure(ctx context.Context, a model.OCRAttempt) error {
	query, args, err := psql().
		Insert(ocrAttemptTable).
		Columns(ocrAttemptColumns...).
		Values(a.TenantID, a.ObjectKey, a.Attempts, a.NextRetryAt.UTC(), a.LastError, r.now().UTC()).
		Suffix(`ON CONFLICT (tenant_id, object_key) DO UPDATE SET
			attempts = GREATEST(ocr_attempts.attempts, EXCLUDED.attempts),
			next_retry_at = EXCLUDED.next_retry_at,
			last_error = EXCLUDED.last_error,
			updated_at = EXCLUDED.updated_at`).
		ToSql()
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, query, args...)
	return err
}

func (r *OCRAttemptPostgres) Clear(ctx context.Context, tenantID, objectKey string) error {
	query, args, err := psql().
		Delete(ocrAttemptTable).
		Where(sq.Eq{"tenant_id": tenantID, "object_key": objectKey}).
		ToSql()
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, query, args...)
	return err
}
