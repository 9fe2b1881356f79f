package mocks

import (
	"sync"

	"docpipeline/internal/model"
)

// RecordingSink is an EventSink that keeps every entry in memory.
type RecordingSink struct {
	mu      sync.Mutex
	entries []model.ProcessingLogEntry
}

func (s *RecordingSink) Emit(e model.ProcessingLogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
}

// Entries returns a copy of the recorded entries.
func (s *RecordingSink) Entries() []model.ProcessingLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.ProcessingLogEntry(nil), s.entries...)
}

// Levels returns the level of every recorded entry in order.
func (s *RecordingSink) Levels() []model.LogLevel {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.LogLevel, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Level
	}
	return out
}
