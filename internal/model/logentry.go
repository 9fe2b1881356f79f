package model

import "time"

type LogLevel string

const (
	LogInfo    LogLevel = "INFO"
	LogWarning LogLevel = "WARNING"
	LogError   LogLevel = "ERROR"
	LogSuccess LogLevel = "SUCCESS"
)

type LogSource string

const (
	SourceWatcher   LogSource = "WATCHER"
	SourceProcessor LogSource = "PROCESSOR"
	SourceOCR       LogSource = "OCR"
	SourceSystem    LogSource = "SYSTEM"
)

// ProcessingLogEntry is a human-readable event shown on the tenant's dashboard.
type ProcessingLogEntry struct {
	TenantID   string         `db:"tenant_id" json:"tenant_id"`
	Level      LogLevel       `db:"level" json:"level"`
	Source     LogSource      `db:"source" json:"source"`
	Message    string         `db:"message" json:"message"`
	Details    map[string]any `db:"details" json:"details,omitempty"`
	DocumentID *string        `db:"document_id" json:"document_id,omitempty"`
	Filename   *string        `db:"filename" json:"filename,omitempty"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
	Read       bool           `db:"read" json:"read"`
}
