package migration

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

type migrationStep struct {
	Name string
	SQL  string
}

// sentinelTable is the newest table; when it exists every earlier step has run.
const sentinelTable = "public.ocr_attempts"

var steps = []migrationStep{
	{
		Name: "create_extension_pgcrypto",
		SQL:  `CREATE EXTENSION IF NOT EXISTS "pgcrypto";`,
	},
	{
		Name: "create_table_ingest_queue",
		SQL: `CREATE TABLE IF NOT EXISTS ingest_queue (
  id            UUID        PRIMARY KEY DEFAULT gen_random_uuid(),
  tenant_id     TEXT        NOT NULL,
  source        TEXT        NOT NULL DEFAULT 'SFTP' CHECK (source IN ('SFTP', 'EMAIL', 'WHATSAPP', 'DRIVE')),
  source_ref    TEXT        NOT NULL,
  content_hash  TEXT,
  status        TEXT        NOT NULL DEFAULT 'PENDING' CHECK (status IN ('PENDING', 'PROCESSING', 'DONE', 'ERROR')),
  attempts      INTEGER     NOT NULL DEFAULT 0 CHECK (attempts >= 0),
  next_retry_at TIMESTAMPTZ,
  last_error    TEXT,
  created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "create_index_ingest_queue_due",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_ingest_queue_due ON ingest_queue (status, next_retry_at, created_at);`,
	},
	{
		Name: "create_index_ingest_queue_source_ref",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_ingest_queue_source_ref ON ingest_queue (tenant_id, source_ref);`,
	},
	{
		Name: "create_index_ingest_queue_content_hash",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_ingest_queue_content_hash ON ingest_queue (tenant_id, content_hash);`,
	},
	{
		Name: "create_table_documentos",
		SQL: `CREATE TABLE IF NOT EXISTS documentos (
  id                   UUID          PRIMARY KEY DEFAULT gen_random_uuid(),
  tenant_id            TEXT          NOT NULL,
  provider_id          TEXT,
  type                 TEXT          NOT NULL DEFAULT 'FACTURA',
  letter               TEXT,
  series               TEXT,
  number               TEXT,
  issue_date           DATE,
  due_date             DATE,
  currency             TEXT          NOT NULL DEFAULT 'ARS',
  subtotal             NUMERIC(18,2),
  tax                  NUMERIC(18,2),
  total                NUMERIC(18,2),
  confidence           NUMERIC(5,2)  NOT NULL DEFAULT 0 CHECK (confidence BETWEEN 0 AND 100),
  review_state         TEXT          NOT NULL DEFAULT 'PENDING' CHECK (review_state IN ('PENDING', 'CONFIRMED', 'ERROR', 'DUPLICATE')),
  missing_fields       JSONB         NOT NULL DEFAULT '[]'::jsonb,
  normalized_payload   JSONB,
  vendor_name          TEXT,
  vendor_tax_id        TEXT,
  page_count           INTEGER,
  filename             TEXT          NOT NULL,
  content_hash         TEXT          NOT NULL,
  raw_storage_key      TEXT          NOT NULL,
  final_storage_key    TEXT,
  raw_ocr_response_key TEXT          NOT NULL,
  created_at           TIMESTAMPTZ   NOT NULL DEFAULT now(),
  updated_at           TIMESTAMPTZ   NOT NULL DEFAULT now(),
  UNIQUE (tenant_id, content_hash)
);`,
	},
	{
		Name: "create_index_documentos_tenant_created",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_documentos_tenant_created ON documentos (tenant_id, created_at);`,
	},
	{
		Name: "create_table_processing_logs",
		SQL: `CREATE TABLE IF NOT EXISTS processing_logs (
  id          BIGSERIAL   PRIMARY KEY,
  tenant_id   TEXT        NOT NULL,
  level       TEXT        NOT NULL CHECK (level IN ('INFO', 'WARNING', 'ERROR', 'SUCCESS')),
  source      TEXT        NOT NULL CHECK (source IN ('WATCHER', 'PROCESSOR', 'OCR', 'SYSTEM')),
  message     TEXT        NOT NULL,
  details     JSONB,
  document_id UUID,
  filename    TEXT,
  created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
  read        BOOLEAN     NOT NULL DEFAULT false
);`,
	},
	{
		Name: "create_index_processing_logs_tenant_created",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_processing_logs_tenant_created ON processing_logs (tenant_id, created_at DESC);`,
	},
	{
		Name: "create_table_ocr_attempts",
		SQL: `CREATE TABLE IF NOT EXISTS ocr_attempts (
  tenant_id     TEXT        NOT NULL,
  object_key    TEXT        NOT NULL,
  attempts      INTEGER     NOT NULL CHECK (attempts >= 0),
  next_retry_at TIMESTAMPTZ NOT NULL,
  last_error    TEXT        NOT NULL DEFAULT '',
  updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
  PRIMARY KEY (tenant_id, object_key)
);`,
	},
}

// EnsureMigrated checks the sentinel table and runs the idempotent schema steps when it is missing.
func EnsureMigrated(ctx context.Context, db *sql.DB, log logrus.FieldLogger, dbHost string) error {
	start := time.Now()
	log = log.WithFields(logrus.Fields{"component": "database", "db_host": dbHost})

	log.WithFields(logrus.Fields{"event": "db_migration_check", "status": "starting"}).Info("checking schema")

	var exists bool
	query := fmt.Sprintf("SELECT to_regclass('%s') IS NOT NULL", sentinelTable)
	if err := db.QueryRowContext(ctx, query).Scan(&exists); err != nil {
		log.WithFields(logrus.Fields{
			"event":       "db_migration_failed",
			"status":      "error",
			"duration_ms": time.Since(start).Milliseconds(),
		}).WithError(err).Error("failed to check sentinel table")
		return fmt.Errorf("failed to check sentinel table: %w", err)
	}

	if exists {
		log.WithFields(logrus.Fields{
			"event":       "db_migration_skip",
			"status":      "success",
			"duration_ms": time.Since(start).Milliseconds(),
		}).Info("schema already exists, skipping migration")
		return nil
	}

	log.WithFields(logrus.Fields{"event": "db_migration_start", "status": "in_progress"}).Info("migrating schema")

	for _, step := range steps {
		stepStart := time.Now()
		if _, err := db.ExecContext(ctx, step.SQL); err != nil {
			log.WithFields(logrus.Fields{
				"event":            "db_migration_failed",
				"status":           "error",
				"migration_step":   step.Name,
				"duration_ms":      time.Since(start).Milliseconds(),
				"step_duration_ms": time.Since(stepStart).Milliseconds(),
			}).WithError(err).Error("migration step failed")
			return fmt.Errorf("migration step %s failed: %w", step.Name, err)
		}

		log.WithFields(logrus.Fields{
			"event":            "db_migration_step",
			"status":           "success",
			"migration_step":   step.Name,
			"step_duration_ms": time.Since(stepStart).Milliseconds(),
		}).Debug("migration step applied")
	}

	log.WithFields(logrus.Fields{
		"event":       "db_migration_success",
		"status":      "success",
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("schema migrated")

	return nil
}
