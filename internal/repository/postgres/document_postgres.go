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

const documentTable = "documentos"

var documentColumns = []string{
	"id",
	"tenant_id",
	"provider_id",
	"type",
	"letter",
	"series",
	"number",
	"issue_date",
	"due_date",
	"currency",
	"subtotal",
	"tax",
	"total",
	"confidence",
	"review_state",
	"missing_fields",
	"normalized_payload",
	"vendor_name",
	"vendor_tax_id",
	"page_count",
	"filename",
	"content_hash",
	"raw_storage_key",
	"final_storage_key",
	"raw_ocr_response_key",
	"created_at",
	"updated_at",
}

// DocumentPostgres is a PostgreSQL implementation of repository.DocumentRepository.
// It contains no business logic.
type DocumentPostgres struct {
	db  *sql.DB
	now func() time.Time
}

// NewDocumentPostgres creates a new DocumentPostgres repository.
func NewDocumentPostgres(db *sql.DB) *DocumentPostgres {
	return &DocumentPostgres{db: db, now: time.Now}
}

var _ repository.DocumentRepository = (*DocumentPostgres)(nil)

// Create inserts a new document row and returns the stored record.
func (r *DocumentPostgres) Create(ctx context.Context, doc *model.Document) (*model.Document, error) {
	id := doc.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := r.now().UTC()
	reviewState := doc.ReviewState
	if reviewState == "" {
		reviewState = model.ReviewPending
	}

	query, args, err := psql().
		Insert(documentTable).
		Columns(documentColumns...).
		Values(
			id,
			doc.TenantID,
			doc.ProviderID,
			doc.Type,
			doc.Letter,
			doc.Series,
			doc.Number,
			doc.IssueDate,
			doc.DueDate,
			doc.Currency,
			doc.Subtotal,
			doc.Tax,
			doc.Total,
			doc.Confidence,
			reviewState,
			doc.MissingFields,
			doc.NormalizedPayload,
			doc.VendorName,
			doc.VendorTaxID,
			doc.PageCount,
			doc.Filename,
			doc.ContentHash,
			doc.RawStorageKey,
			doc.FinalStorageKey,
			doc.RawOCRResponseKey,
			now,
			now,
		).
		Suffix("RETURNING " + strings.Join(documentColumns, ", ")).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert document: %w", err)
	}

	var out model.Document
	if err := sqlscan.Get(ctx, r.db, &out, query, args...); err != nil {
		return nil, duplicate(err)
	}
	return &out, nil
}

// FindByContentHash fetches a tenant's document by content hash.
func (r *DocumentPostgres) FindByContentHash(ctx context.Context, tenantID, contentHash string) (*model.Document, error) {
	query, args, err := psql().
		Select(documentColumns...).
		From(documentTable).
		Where(sq.Eq{"tenant_id": tenantID, "content_hash": contentHash}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, err
	}

	var d model.Document
	if err := sqlscan.Get(ctx, r.db, &d, query, args...); err != nil {
		return nil, notFound(err)
	}
	return &d, nil
}

// SetFinalStorageKey records the relocated object key.
func (r *DocumentPostgres) SetFinalStorageKey(ctx context.Context, id, key string) error {
	query, args, err := psql().
		Update(documentTable).
		Set("final_storage_key", key).
		Set("updated_at", r.now().UTC()).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	ok, err := affectedOne(res)
	if err != nil {
		return err
	}
	if !ok {
		return repository.ErrNotFound
	}
	return nil
}
