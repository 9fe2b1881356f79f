// Package eventlog buffers dashboard processing events and writes them to
// processing_logs in batches.
package eventlog

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"docpipeline/internal/model"
	"docpipeline/internal/repository"
)

const flushTimeout = 10 * time.Second

// Options tune batching.
type Options struct {
	BatchSize     int
	FlushInterval time.Duration
}

// Sink is a buffered, batched writer of processing log entries. Emit never
// blocks on the database: a failing flush drops its batch after logging it.
type Sink struct {
	repo     repository.LogRepository
	log      logrus.FieldLogger
	batch    int
	interval time.Duration
	capacity int
	now      func() time.Time

	mu      sync.Mutex
	buf     []model.ProcessingLogEntry
	dropped int

	flushMu sync.Mutex
	kick    chan struct{}
}

func NewSink(repo repository.LogRepository, log logrus.FieldLogger, opts Options) *Sink {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 5 * time.Second
	}
	return &Sink{
		repo:     repo,
		log:      log.WithField("component", "eventlog"),
		batch:    opts.BatchSize,
		interval: opts.FlushInterval,
		capacity: opts.BatchSize * 10,
		now:      time.Now,
		kick:     make(chan struct{}, 1),
	}
}

// Emit appends an entry to the buffer. When the buffer is full the oldest
// entry is discarded. Entries without a tenant cannot be shown on any
// dashboard and only go to the process log.
func (s *Sink) Emit(e model.ProcessingLogEntry) {
	if e.TenantID == "" {
		fields := logrus.Fields{"level_name": e.Level, "source": e.Source}
		if e.Filename != nil {
			fields["filename"] = *e.Filename
		}
		s.log.WithFields(fields).Warn(e.Message)
		return
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}

	s.mu.Lock()
	if len(s.buf) >= s.capacity {
		s.buf = s.buf[1:]
		s.dropped++
	}
	s.buf = append(s.buf, e)
	full := len(s.buf) >= s.batch
	s.mu.Unlock()

	if full {
		select {
		case s.kick <- struct{}{}:
		default:
		}
	}
}

// Buffered returns the number of entries waiting to be flushed.
func (s *Sink) Buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buf)
}

// Flush writes every buffered entry, one batch at a time.
func (s *Sink) Flush(ctx context.Context) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	for {
		s.mu.Lock()
		n := min(len(s.buf), s.batch)
		if n == 0 {
			dropped := s.dropped
			s.dropped = 0
			s.mu.Unlock()
			if dropped > 0 {
				s.log.WithField("dropped", dropped).Warn("processing log buffer overflowed")
			}
			return nil
		}
		chunk := make([]model.ProcessingLogEntry, n)
		copy(chunk, s.buf[:n])
		s.buf = s.buf[n:]
		s.mu.Unlock()

		if err := s.repo.InsertBatch(ctx, chunk); err != nil {
			s.log.WithError(err).WithField("entries", n).Error("failed to write processing logs")
			return err
		}
	}
}

// Run flushes on every interval and whenever a batch fills up, until ctx is
// cancelled. The remaining entries are flushed before Run returns.
func (s *Sink) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Close()
			return
		case <-ticker.C:
		case <-s.kick:
		}
		_ = s.Flush(ctx)
	}
}

// Close flushes what is left using a fresh bounded context.
func (s *Sink) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	_ = s.Flush(ctx)
}
