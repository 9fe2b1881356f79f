// Package service holds the pipeline stages: the intake watcher, the
// uploader draining the ingest queue, the OCR processor and the operational
// use cases served over HTTP.
package service

import (
	"errors"
	"unicode/utf8"

	"docpipeline/internal/model"
)

var (
	ErrFileMissing    = errors.New("file missing from processed directory")
	ErrTenantNotFound = errors.New("tenant not found")
	ErrWatcherLocked  = errors.New("another watcher holds the lock")
	ErrItemNotFound   = errors.New("queue item not found")
)

const maxErrorLength = 500

// EventSink receives dashboard events. Implementations must not block.
type EventSink interface {
	Emit(e model.ProcessingLogEntry)
}

// TenantDirectory looks up routing settings.
type TenantDirectory interface {
	Resolve(prefix string) (model.Tenant, error)
	ByTenantID(id string) (model.Tenant, error)
	Tenants() ([]model.Tenant, error)
}

// TenantReloader is a TenantDirectory whose cache can be refreshed.
type TenantReloader interface {
	TenantDirectory
	InvalidateCache()
	Load() (map[string]model.Tenant, error)
}

// truncateError shortens an error message to at most maxErrorLength runes.
func truncateError(err error) string {
	msg := err.Error()
	if utf8.RuneCountInString(msg) <= maxErrorLength {
		return msg
	}
	return string([]rune(msg)[:maxErrorLength])
}
