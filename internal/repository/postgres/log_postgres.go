package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"docpipeline/internal/model"
	"docpipeline/internal/repository"
)

const logTable = "processing_logs"

// LogPostgres writes processing_logs rows in batches.
type LogPostgres struct {
	db *sql.DB
}

func NewLogPostgres(db *sql.DB) *LogPostgres {
	return &LogPostgres{db: db}
}

var _ repository.LogRepository = (*LogPostgres)(nil)

// InsertBatch writes all entries with one multi-row INSERT.
func (r *LogPostgres) InsertBatch(ctx context.Context, entries []model.ProcessingLogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	b := psql().
		Insert(logTable).
		Columns("tenant_id", "level", "source", "message", "details", "document_id", "filename", "created_at", "read")
	for _, e := range entries {
		var details any
		if len(e.Details) > 0 {
			raw, err := json.Marshal(e.Details)
			if err != nil {
				return fmt.Errorf("marshal log details: %w", err)
			}
			details = raw
		}
		b = b.Values(e.TenantID, e.Level, e.Source, e.Message, details, e.DocumentID, e.Filename, e.CreatedAt.UTC(), e.Read)
	}

	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("build insert logs: %w", err)
	}
	_, err = r.db.ExecContext(ctx, query, args...)
	return err
}
