package model

import "time"

// QueueStatus is the lifecycle state of an ingest queue item.
type QueueStatus string

const (
	QueueStatusPending    QueueStatus = "PENDING"
	QueueStatusProcessing QueueStatus = "PROCESSING"
	QueueStatusDone       QueueStatus = "DONE"
	QueueStatusError      QueueStatus = "ERROR"
)

// Source identifies the channel a file arrived through. Only SFTP is
// produced by the watcher; the others are written by external intake.
type Source string

const (
	SourceSFTP     Source = "SFTP"
	SourceEmail    Source = "EMAIL"
	SourceWhatsApp Source = "WHATSAPP"
	SourceDrive    Source = "DRIVE"
)

// QueueItem is one file's journey from the local holding directory to object storage.
// Rows are never deleted; DONE and ERROR are terminal for the uploader.
type QueueItem struct {
	ID          string      `db:"id" json:"id"`
	TenantID    string      `db:"tenant_id" json:"tenant_id"`
	Source      Source      `db:"source" json:"source"`
	SourceRef   string      `db:"source_ref" json:"source_ref"`
	ContentHash *string     `db:"content_hash" json:"content_hash,omitempty"`
	Status      QueueStatus `db:"status" json:"status"`
	Attempts    int         `db:"attempts" json:"attempts"`
	NextRetryAt *time.Time  `db:"next_retry_at" json:"next_retry_at,omitempty"`
	LastError   *string     `db:"last_error" json:"last_error,omitempty"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at" json:"updated_at"`
}

// IsDue reports whether a PENDING item may be picked up at now.
func (q QueueItem) IsDue(now time.Time) bool {
	if q.Status != QueueStatusPending {
		return false
	}
	return q.NextRetryAt == nil || !q.NextRetryAt.After(now)
}
