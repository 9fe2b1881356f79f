package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"docpipeline/internal/config"
	"docpipeline/internal/database"
	"docpipeline/internal/database/migration"
	"docpipeline/internal/eventlog"
	handlers "docpipeline/internal/http/handler"
	"docpipeline/internal/http/middleware"
	"docpipeline/internal/metrics"
	"docpipeline/internal/ocr"
	tracing "docpipeline/internal/otel"
	"docpipeline/internal/repository/postgres"
	"docpipeline/internal/scheduler"
	"docpipeline/internal/service"
	"docpipeline/internal/storage"
	"docpipeline/internal/tenant"
)

const shutdownTimeout = 10 * time.Second

var runCommand = &cli.Command{
	Name:   "run",
	Usage:  "Run the pipeline in the mode selected by PIPELINE_MODE",
	Action: run,
}

func run(cCtx *cli.Context) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	log := logger.WithField("mode", cfg.Pipeline.Mode)

	shutdownTracing, err := tracing.Init(ctx, logger)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := migration.EnsureMigrated(ctx, db, logger, cfg.Database.Host); err != nil {
		return err
	}

	tenants := tenant.NewResolver(cfg.Pipeline.PrefixMapPath)
	loaded, err := tenants.Load()
	if err != nil {
		return fmt.Errorf("load tenants: %w", err)
	}
	log.WithField("tenants", len(loaded)).Info("tenant map loaded")

	sink := eventlog.NewSink(postgres.NewLogPostgres(db), logger, eventlog.Options{
		BatchSize:     cfg.LogSink.BatchSize,
		FlushInterval: cfg.LogSink.FlushInterval,
	})

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	pm, err := metrics.New(reg)
	if err != nil {
		return err
	}

	queue := postgres.NewQueuePostgres(db)

	sup := startSupervisor(sink)

	if cfg.OpsAddr != "" {
		ops := service.NewOpsService(queue, tenants, sink, logger)
		app, err := newOpsServer(db, ops, reg, logger)
		if err != nil {
			sup.wait()
			return err
		}
		sup.spawn(func() { serveOps(ctx, app, cfg.OpsAddr, log) })
	}

	switch cfg.Pipeline.Mode {
	case config.ModeWatcher:
		err = runWatcher(ctx, cfg.Pipeline, queue, tenants, sink, pm, logger, sup.spawn)
	case config.ModeProcessor:
		err = runProcessor(ctx, cfg, db, queue, tenants, sink, pm, logger, sup.spawn)
	}
	if err != nil {
		stop()
		sup.wait()
		return err
	}

	<-ctx.Done()
	log.Info("shutdown requested, waiting for in-flight work")
	sup.wait()
	log.Info("pipeline stopped")
	return nil
}

// supervisor tracks the pipeline loops apart from the event sink. The sink
// runs on its own context and is only stopped once every loop has returned,
// so events emitted by in-flight work during shutdown are still flushed.
type supervisor struct {
	loops    sync.WaitGroup
	stopSink context.CancelFunc
	sinkDone chan struct{}
}

func startSupervisor(sink *eventlog.Sink) *supervisor {
	ctx, cancel := context.WithCancel(context.Background())
	s := &supervisor{stopSink: cancel, sinkDone: make(chan struct{})}
	go func() {
		defer close(s.sinkDone)
		sink.Run(ctx)
	}()
	return s
}

func (s *supervisor) spawn(fn func()) {
	s.loops.Add(1)
	go func() {
		defer s.loops.Done()
		fn()
	}()
}

// wait joins the loops, then stops the sink and waits for its final flush.
func (s *supervisor) wait() {
	s.loops.Wait()
	s.stopSink()
	<-s.sinkDone
}

func runWatcher(
	ctx context.Context,
	pc config.PipelineConfig,
	queue *postgres.QueuePostgres,
	tenants *tenant.Resolver,
	sink *eventlog.Sink,
	pm *metrics.Pipeline,
	logger *logrus.Logger,
	spawn func(func()),
) error {
	w := service.NewWatcher(service.WatcherConfig{
		WebDAVDir:           pc.WebDAVDir,
		ProcessedDir:        pc.ProcessedDir,
		MaxConcurrentJobs:   pc.MaxConcurrentJobs,
		StabilityChecks:     pc.StabilityChecks,
		StabilityInterval:   pc.StabilityInterval,
		MaxStabilityRetries: pc.MaxStabilityRetries,
	}, queue, tenants, sink, pm, logger)

	if err := w.Lock(); err != nil {
		return err
	}

	spawn(func() {
		defer w.Unlock()
		scheduler.Poll(ctx, logger, "watcher", pc.WatchInterval, w.Scan)
	})
	return nil
}

func runProcessor(
	ctx context.Context,
	cfg *config.AppConfig,
	db *sql.DB,
	queue *postgres.QueuePostgres,
	tenants *tenant.Resolver,
	sink *eventlog.Sink,
	pm *metrics.Pipeline,
	logger *logrus.Logger,
	spawn func(func()),
) error {
	pc := cfg.Pipeline

	store, err := storage.NewMinIO(cfg.MinIO)
	if err != nil {
		return fmt.Errorf("failed to initialize object storage: %w", err)
	}
	ensureBuckets(ctx, store, tenants, logger)

	extractor, err := ocr.NewTextractFromEnv(ctx)
	if err != nil {
		return err
	}

	uploader := service.NewUploader(service.UploaderConfig{
		ProcessedDir:         pc.ProcessedDir,
		InboxPrefix:          pc.InboxPrefix,
		MaxConcurrentJobs:    pc.MaxConcurrentJobs,
		ProcessingStaleAfter: pc.ProcessingStaleAfter,
		Retry: service.RetryPolicy{
			MaxAttempts: pc.MaxRetryAttempts,
			BaseDelay:   pc.RetryBaseDelay,
			MaxDelay:    pc.RetryMaxDelay,
		},
	}, queue, store, tenants, sink, pm, logger)

	processor := service.NewProcessor(service.ProcessorConfig{
		InboxPrefix:       pc.InboxPrefix,
		FailedPrefix:      pc.FailedPrefix,
		MaxConcurrentJobs: pc.MaxConcurrentJobs,
		Retry: service.RetryPolicy{
			MaxAttempts: pc.OCRMaxAttempts,
			BaseDelay:   pc.RetryBaseDelay,
			MaxDelay:    pc.RetryMaxDelay,
		},
	}, store, postgres.NewDocumentPostgres(db), postgres.NewOCRAttemptPostgres(db), extractor, tenants, sink, pm, logger)

	spawn(func() { scheduler.Poll(ctx, logger, "uploader", pc.UploadInterval, uploader.RunOnce) })
	spawn(func() { scheduler.Poll(ctx, logger, "ocr_processor", pc.OCRInterval, processor.RunOnce) })
	return nil
}

func ensureBuckets(ctx context.Context, store storage.Storage, tenants *tenant.Resolver, logger logrus.FieldLogger) {
	all, err := tenants.Tenants()
	if err != nil {
		return
	}
	seen := make(map[string]bool, len(all))
	for _, t := range all {
		if seen[t.Bucket] {
			continue
		}
		seen[t.Bucket] = true
		if err := store.EnsureBucket(ctx, t.Bucket); err != nil {
			logger.WithError(err).WithField("bucket", t.Bucket).Warn("failed to ensure tenant bucket")
		}
	}
}

func newOpsServer(db *sql.DB, ops service.OpsService, reg *prometheus.Registry, logger logrus.FieldLogger) (*fiber.App, error) {
	prom, err := middleware.NewPrometheusMiddleware(reg)
	if err != nil {
		return nil, err
	}

	app := fiber.New(fiber.Config{
		ErrorHandler:          handlers.ErrorHandler(),
		DisableStartupMessage: true,
	})
	app.Use(otelfiber.Middleware())
	app.Use(middleware.RequestID())
	app.Use(middleware.Logger(logger.WithField("component", "ops_http")))
	app.Use(prom.Handler())

	handlers.RegisterRoutes(app, db, ops, reg)
	return app, nil
}

func serveOps(ctx context.Context, app *fiber.App, addr string, log logrus.FieldLogger) {
	go func() {
		<-ctx.Done()
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			log.WithError(err).Warn("ops server shutdown failed")
		}
	}()

	log.WithField("addr", addr).Info("ops server listening")
	if err := app.Listen(addr); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Error("ops server stopped")
	}
}
