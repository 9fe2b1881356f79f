package eventlog

import "docpipeline/internal/model"

// Option decorates an entry.
type Option func(*model.ProcessingLogEntry)

func WithFilename(name string) Option {
	return func(e *model.ProcessingLogEntry) {
		if name != "" {
			e.Filename = &name
		}
	}
}

func WithDocumentID(id string) Option {
	return func(e *model.ProcessingLogEntry) {
		if id != "" {
			e.DocumentID = &id
		}
	}
}

// WithDetail adds one key to the structured details.
func WithDetail(key string, value any) Option {
	return func(e *model.ProcessingLogEntry) {
		if e.Details == nil {
			e.Details = make(map[string]any)
		}
		e.Details[key] = value
	}
}

// Entry builds a processing log entry.
func Entry(level model.LogLevel, source model.LogSource, tenantID, message string, opts ...Option) model.ProcessingLogEntry {
	e := model.ProcessingLogEntry{
		TenantID: tenantID,
		Level:    level,
		Source:   source,
		Message:  message,
	}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}
