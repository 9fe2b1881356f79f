package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"docpipeline/internal/eventlog"
	"docpipeline/internal/fileutil"
	"docpipeline/internal/metrics"
	"docpipeline/internal/model"
	"docpipeline/internal/repository"
	"docpipeline/internal/tenant"
)

const (
	lockFileName  = ".watcher.lock"
	duplicatesDir = "duplicates"
)

var acceptedExtensions = map[string]bool{
	".pdf":  true,
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".tif":  true,
	".tiff": true,
}

var partialSuffixes = []string{".part", ".tmp", ".filepart", "~"}

// StabilityFunc reports whether the file at path stopped growing.
type StabilityFunc func(ctx context.Context, path string, required int, interval time.Duration) (bool, error)

// WatcherConfig holds the intake settings.
type WatcherConfig struct {
	WebDAVDir           string
	ProcessedDir        string
	MaxConcurrentJobs   int
	StabilityChecks     int
	StabilityInterval   time.Duration
	MaxStabilityRetries int
}

// Watcher moves finished uploads from the intake directory into the ingest
// queue. Only one Watcher may run against a processed directory.
type Watcher struct {
	cfg     WatcherConfig
	queue   repository.QueueRepository
	tenants TenantDirectory
	events  EventSink
	metrics *metrics.Pipeline
	log     logrus.FieldLogger

	stable  StabilityFunc
	tracker *fileTracker
	lock    *flock.Flock
}

func NewWatcher(cfg WatcherConfig, queue repository.QueueRepository, tenants TenantDirectory, events EventSink, m *metrics.Pipeline, log logrus.FieldLogger) *Watcher {
	if cfg.MaxConcurrentJobs < 1 {
		cfg.MaxConcurrentJobs = 1
	}
	return &Watcher{
		cfg:     cfg,
		queue:   queue,
		tenants: tenants,
		events:  events,
		metrics: m,
		log:     log.WithField("component", "watcher"),
		stable:  fileutil.IsStable,
		tracker: newFileTracker(),
		lock:    flock.New(filepath.Join(cfg.ProcessedDir, lockFileName)),
	}
}

// Lock takes the single-instance lock. It fails with ErrWatcherLocked when
// another process holds it.
func (w *Watcher) Lock() error {
	if err := os.MkdirAll(w.cfg.ProcessedDir, 0o755); err != nil {
		return fmt.Errorf("create processed dir: %w", err)
	}
	ok, err := w.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrWatcherLocked, w.lock.Path())
	}
	return nil
}

func (w *Watcher) Unlock() error {
	return w.lock.Unlock()
}

// Scan runs one intake cycle and waits for every file it started.
func (w *Watcher) Scan(ctx context.Context) error {
	entries, err := os.ReadDir(w.cfg.WebDAVDir)
	if err != nil {
		return fmt.Errorf("read intake dir: %w", err)
	}

	present := make(map[string]struct{}, len(entries))
	var g errgroup.Group
	g.SetLimit(w.cfg.MaxConcurrentJobs)
	for _, entry := range entries {
		if !isCandidate(entry) {
			continue
		}
		name := entry.Name()
		present[name] = struct{}{}
		if ctx.Err() != nil {
			break
		}
		if !w.tracker.begin(name) {
			continue
		}
		g.Go(func() error {
			defer w.tracker.done(name)
			w.handle(ctx, name)
			return nil
		})
	}
	err = g.Wait()
	if ctx.Err() == nil {
		w.tracker.prune(present)
	}
	return err
}

func (w *Watcher) handle(ctx context.Context, name string) {
	path := filepath.Join(w.cfg.WebDAVDir, name)
	log := w.log.WithField("filename", name)

	stable, err := w.stable(ctx, path, w.cfg.StabilityChecks, w.cfg.StabilityInterval)
	if err != nil {
		if ctx.Err() == nil {
			log.WithError(err).Warn("stability check failed")
		}
		return
	}
	if !stable {
		w.unstable(log, path, name)
		return
	}
	w.tracker.forget(name)

	// The file is complete; finish its intake even if shutdown starts now.
	w.ingest(context.WithoutCancel(ctx), log, path, name)
}

func (w *Watcher) unstable(log logrus.FieldLogger, path, name string) {
	n := w.tracker.unstableAgain(name)
	if n < w.cfg.MaxStabilityRetries {
		log.WithField("stability_retries", n).Debug("file still changing")
		w.metrics.WatcherFile("", metrics.OutcomeUnstable)
		return
	}

	w.tracker.forget(name)
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.WithError(err).Error("failed to delete file that never stabilized")
	}
	tenantID := w.tenantIDFor(name)
	log.WithFields(logrus.Fields{"tenant_id": tenantID, "stability_retries": n}).Error("file never stabilized, deleted")
	w.metrics.WatcherFile(tenantID, metrics.OutcomeAbandoned)
	w.events.Emit(eventlog.Entry(model.LogError, model.SourceWatcher, tenantID,
		fmt.Sprintf("El archivo %s no terminó de subirse y fue descartado", name),
		eventlog.WithFilename(name),
		eventlog.WithDetail("stabilityRetries", n),
	))
}

func (w *Watcher) ingest(ctx context.Context, log logrus.FieldLogger, path, name string) {
	prefix, ok := tenant.PrefixOf(name)
	if !ok {
		w.reject(log, path, name, "filename has no tenant prefix")
		return
	}
	t, err := w.tenants.Resolve(prefix)
	if err != nil {
		if errors.Is(err, tenant.ErrUnknownTenant) {
			w.reject(log, path, name, fmt.Sprintf("unknown tenant prefix %q", prefix))
			return
		}
		log.WithError(err).Error("failed to resolve tenant")
		return
	}
	log = log.WithField("tenant_id", t.TenantID)

	hash, err := fileutil.HashFile(path)
	if err != nil {
		log.WithError(err).Error("failed to hash file")
		return
	}

	if _, err := w.queue.FindBySourceRef(ctx, t.TenantID, name); err == nil {
		if err := fileutil.MoveFile(path, filepath.Join(w.cfg.ProcessedDir, name)); err != nil {
			log.WithError(err).Error("failed to relocate already queued file")
			return
		}
		log.Info("file already queued, relocated")
		w.metrics.WatcherFile(t.TenantID, metrics.OutcomeAlreadySeen)
		return
	} else if !errors.Is(err, repository.ErrNotFound) {
		log.WithError(err).Error("failed to look up queue by source ref")
		return
	}

	if original, err := w.queue.FindByContentHash(ctx, t.TenantID, hash); err == nil {
		dst := filepath.Join(w.cfg.ProcessedDir, duplicatesDir, name)
		if err := fileutil.MoveFile(path, dst); err != nil {
			log.WithError(err).Error("failed to move duplicate file")
			return
		}
		log.WithField("original_source_ref", original.SourceRef).Info("duplicate content, not queued")
		w.metrics.WatcherFile(t.TenantID, metrics.OutcomeDuplicate)
		w.events.Emit(eventlog.Entry(model.LogInfo, model.SourceWatcher, t.TenantID,
			fmt.Sprintf("El archivo %s es un duplicado de %s", name, original.SourceRef),
			eventlog.WithFilename(name),
			eventlog.WithDetail("contentHash", hash),
			eventlog.WithDetail("originalSourceRef", original.SourceRef),
		))
		return
	} else if !errors.Is(err, repository.ErrNotFound) {
		log.WithError(err).Error("failed to look up queue by content hash")
		return
	}

	item, err := w.queue.Create(ctx, &model.QueueItem{
		TenantID:    t.TenantID,
		Source:      model.SourceSFTP,
		SourceRef:   name,
		ContentHash: &hash,
		Status:      model.QueueStatusPending,
	})
	if err != nil {
		log.WithError(err).Error("failed to enqueue file")
		w.metrics.WatcherFile(t.TenantID, metrics.OutcomeFailed)
		return
	}

	// A failed move leaves the file in place; the next scan relocates it by source ref.
	if err := fileutil.MoveFile(path, filepath.Join(w.cfg.ProcessedDir, name)); err != nil {
		log.WithError(err).Error("failed to move queued file")
		w.events.Emit(eventlog.Entry(model.LogError, model.SourceWatcher, t.TenantID,
			fmt.Sprintf("No se pudo mover %s al directorio de procesados", name),
			eventlog.WithFilename(name),
			eventlog.WithDetail("error", err.Error()),
		))
		return
	}

	log.WithField("queue_item_id", item.ID).Info("file queued")
	w.metrics.WatcherFile(t.TenantID, metrics.OutcomeEnqueued)
	w.events.Emit(eventlog.Entry(model.LogInfo, model.SourceWatcher, t.TenantID,
		fmt.Sprintf("Archivo %s recibido", name),
		eventlog.WithFilename(name),
		eventlog.WithDetail("queueItemId", item.ID),
		eventlog.WithDetail("contentHash", hash),
	))
}

// reject deletes a file that cannot be routed to any tenant.
func (w *Watcher) reject(log logrus.FieldLogger, path, name, reason string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.WithError(err).Error("failed to delete unroutable file")
	}
	log.WithField("reason", reason).Error("unroutable file deleted")
	w.metrics.WatcherFile("", metrics.OutcomeUnroutable)
	w.events.Emit(eventlog.Entry(model.LogError, model.SourceWatcher, "",
		fmt.Sprintf("Archivo %s descartado: %s", name, reason),
		eventlog.WithFilename(name),
	))
}

func (w *Watcher) tenantIDFor(name string) string {
	prefix, ok := tenant.PrefixOf(name)
	if !ok {
		return ""
	}
	t, err := w.tenants.Resolve(prefix)
	if err != nil {
		return ""
	}
	return t.TenantID
}

func isCandidate(entry fs.DirEntry) bool {
	if !entry.Type().IsRegular() {
		return false
	}
	name := entry.Name()
	if strings.HasPrefix(name, ".") {
		return false
	}
	lower := strings.ToLower(name)
	for _, s := range partialSuffixes {
		if strings.HasSuffix(lower, s) {
			return false
		}
	}
	return acceptedExtensions[filepath.Ext(lower)]
}
