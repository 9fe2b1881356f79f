package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"docpipeline/internal/eventlog"
	"docpipeline/internal/metrics"
	"docpipeline/internal/model"
	tracing "docpipeline/internal/otel"
	"docpipeline/internal/repository"
	"docpipeline/internal/storage"
)

// UploaderConfig holds the queue draining settings.
type UploaderConfig struct {
	ProcessedDir         string
	InboxPrefix          string
	MaxConcurrentJobs    int
	ProcessingStaleAfter time.Duration
	Retry                RetryPolicy
}

// Uploader pushes queued files from the processed directory into the
// tenant's bucket inbox.
type Uploader struct {
	cfg     UploaderConfig
	queue   repository.QueueRepository
	store   storage.Storage
	tenants TenantDirectory
	events  EventSink
	metrics *metrics.Pipeline
	log     logrus.FieldLogger
	now     func() time.Time
}

func NewUploader(cfg UploaderConfig, queue repository.QueueRepository, store storage.Storage, tenants TenantDirectory, events EventSink, m *metrics.Pipeline, log logrus.FieldLogger) *Uploader {
	if cfg.MaxConcurrentJobs < 1 {
		cfg.MaxConcurrentJobs = 1
	}
	return &Uploader{
		cfg:     cfg,
		queue:   queue,
		store:   store,
		tenants: tenants,
		events:  events,
		metrics: m,
		log:     log.WithField("component", "uploader"),
		now:     time.Now,
	}
}

// RunOnce processes one batch of due items and waits for all of them.
func (u *Uploader) RunOnce(ctx context.Context) error {
	now := u.now().UTC()
	items, err := u.queue.PollDue(ctx, now, now.Add(-u.cfg.ProcessingStaleAfter), u.cfg.MaxConcurrentJobs)
	if err != nil {
		return fmt.Errorf("poll due items: %w", err)
	}

	var g errgroup.Group
	g.SetLimit(u.cfg.MaxConcurrentJobs)
	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			_ = u.Process(context.WithoutCancel(ctx), item)
			return nil
		})
	}
	return g.Wait()
}

// Process uploads one item and records the outcome on its queue row.
func (u *Uploader) Process(ctx context.Context, item model.QueueItem) (err error) {
	ctx, span := tracing.StartItem(ctx, "uploader.process", item.TenantID, item.SourceRef)
	defer func() { tracing.End(span, err) }()

	log := u.log.WithFields(logrus.Fields{
		"queue_item_id": item.ID,
		"tenant_id":     item.TenantID,
		"filename":      item.SourceRef,
		"attempts":      item.Attempts,
	})

	claimed, err := u.queue.MarkProcessing(ctx, item.ID, item.Status)
	if err != nil {
		log.WithError(err).Error("failed to claim queue item")
		return err
	}
	if !claimed {
		log.Debug("queue item claimed elsewhere, skipping")
		return nil
	}

	info, err := u.upload(ctx, item)
	if err != nil {
		return u.fail(ctx, log, item, err)
	}

	if err := u.queue.MarkDone(ctx, item.ID); err != nil {
		log.WithError(err).Error("uploaded but failed to mark done")
		return err
	}

	log.WithFields(logrus.Fields{"bucket": info.Bucket, "key": info.Key, "size": info.Size}).Info("file uploaded")
	u.metrics.Upload(item.TenantID, metrics.OutcomeSuccess, info.Size)
	u.events.Emit(eventlog.Entry(model.LogSuccess, model.SourceProcessor, item.TenantID,
		fmt.Sprintf("Archivo %s subido para procesamiento", item.SourceRef),
		eventlog.WithFilename(item.SourceRef),
		eventlog.WithDetail("key", info.Key),
	))
	return nil
}

func (u *Uploader) upload(ctx context.Context, item model.QueueItem) (storage.ObjectInfo, error) {
	t, err := u.tenants.ByTenantID(item.TenantID)
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("%w: %s: %v", ErrTenantNotFound, item.TenantID, err)
	}

	src := filepath.Join(u.cfg.ProcessedDir, item.SourceRef)
	f, err := os.Open(src)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return storage.ObjectInfo{}, fmt.Errorf("%w: %s", ErrFileMissing, item.SourceRef)
		}
		return storage.ObjectInfo{}, fmt.Errorf("open %s: %w", item.SourceRef, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("stat %s: %w", item.SourceRef, err)
	}

	meta := map[string]string{"source-ref": item.SourceRef}
	if item.ContentHash != nil {
		meta["content-hash"] = *item.ContentHash
	}
	info, err := u.store.Put(ctx, t.Bucket, u.ObjectKey(t, item), f, storage.PutObjectOptions{
		Size:        st.Size(),
		ContentType: storage.ContentTypeFor(item.SourceRef),
		Metadata:    meta,
	})
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("upload to storage: %w", err)
	}
	return info, nil
}

// ObjectKey is {inbox}{storageKeyPrefix}/{yyyy}/{mm}/{dd}/{sourceRef}, dated by the row's creation time.
func (u *Uploader) ObjectKey(t model.Tenant, item model.QueueItem) string {
	created := item.CreatedAt.UTC()
	return u.cfg.InboxPrefix + path.Join(t.StorageKeyPrefix, created.Format("2006"), created.Format("01"), created.Format("02"), item.SourceRef)
}

func (u *Uploader) fail(ctx context.Context, log logrus.FieldLogger, item model.QueueItem, cause error) error {
	attempts := item.Attempts + 1
	msg := truncateError(cause)
	log = log.WithError(cause).WithField("attempts", attempts)

	if u.cfg.Retry.Exhausted(attempts) {
		if err := u.queue.MarkError(ctx, item.ID, attempts, msg); err != nil {
			log.WithField("mark_error", err.Error()).Error("failed to dead-letter queue item")
			return cause
		}
		log.Error("upload failed, queue item dead-lettered")
		u.metrics.Upload(item.TenantID, metrics.OutcomeDeadLetter, 0)
		u.events.Emit(eventlog.Entry(model.LogError, model.SourceProcessor, item.TenantID,
			fmt.Sprintf("No se pudo subir %s tras %d intentos", item.SourceRef, attempts),
			eventlog.WithFilename(item.SourceRef),
			eventlog.WithDetail("attempts", attempts),
			eventlog.WithDetail("error", msg),
		))
		return cause
	}

	next := u.now().UTC().Add(u.cfg.Retry.Backoff(attempts))
	if err := u.queue.Reschedule(ctx, item.ID, attempts, next, msg); err != nil {
		log.WithField("reschedule_error", err.Error()).Error("failed to reschedule queue item")
		return cause
	}
	log.WithField("next_retry_at", next).Warn("upload failed, retry scheduled")
	u.metrics.Upload(item.TenantID, metrics.OutcomeRetry, 0)
	u.events.Emit(eventlog.Entry(model.LogWarning, model.SourceProcessor, item.TenantID,
		fmt.Sprintf("Error al subir %s, se reintentará", item.SourceRef),
		eventlog.WithFilename(item.SourceRef),
		eventlog.WithDetail("attempts", attempts),
		eventlog.WithDetail("nextRetryAt", next),
		eventlog.WithDetail("error", msg),
	))
	return cause
}
