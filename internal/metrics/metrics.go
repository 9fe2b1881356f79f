// Package metrics holds the prometheus collectors of the pipeline stages.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels shared by the stage counters.
const (
	OutcomeEnqueued    = "enqueued"
	OutcomeDuplicate   = "duplicate"
	OutcomeAlreadySeen = "already_seen"
	OutcomeUnroutable  = "unroutable"
	OutcomeUnstable    = "unstable"
	OutcomeAbandoned   = "abandoned"
	OutcomeFailed      = "failed"
	OutcomeSuccess     = "success"
	OutcomeRetry       = "retry"
	OutcomeDeadLetter  = "dead_letter"
	OutcomeSkipped     = "skipped"
)

// Pipeline groups the stage collectors. A nil *Pipeline is valid and records nothing.
type Pipeline struct {
	watcherFiles *prometheus.CounterVec
	uploads      *prometheus.CounterVec
	ocrDocuments *prometheus.CounterVec
	ocrDuration  prometheus.Histogram
	uploadBytes  prometheus.Counter
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) (*Pipeline, error) {
	p := &Pipeline{
		watcherFiles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_watcher_files_total",
			Help: "Files evaluated by the intake watcher, by tenant and outcome.",
		}, []string{"tenant", "outcome"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_uploads_total",
			Help: "Queue items handled by the uploader, by tenant and outcome.",
		}, []string{"tenant", "outcome"}),
		ocrDocuments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_ocr_objects_total",
			Help: "Inbox objects handled by the OCR processor, by tenant and outcome.",
		}, []string{"tenant", "outcome"}),
		ocrDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pipeline_ocr_call_duration_seconds",
			Help:    "Latency of expense analysis calls.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
		}),
		uploadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_upload_bytes_total",
			Help: "Bytes uploaded to object storage by the uploader.",
		}),
	}

	for _, c := range []prometheus.Collector{p.watcherFiles, p.uploads, p.ocrDocuments, p.ocrDuration, p.uploadBytes} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return nil, err
		}
	}
	return p, nil
}

func (p *Pipeline) WatcherFile(tenant, outcome string) {
	if p == nil {
		return
	}
	p.watcherFiles.WithLabelValues(tenant, outcome).Inc()
}

func (p *Pipeline) Upload(tenant, outcome string, bytes int64) {
	if p == nil {
		return
	}
	p.uploads.WithLabelValues(tenant, outcome).Inc()
	if outcome == OutcomeSuccess && bytes > 0 {
		p.uploadBytes.Add(float64(bytes))
	}
}

func (p *Pipeline) OCRObject(tenant, outcome string) {
	if p == nil {
		return
	}
	p.ocrDocuments.WithLabelValues(tenant, outcome).Inc()
}

func (p *Pipeline) ObserveOCRCall(d time.Duration) {
	if p == nil {
		return
	}
	p.ocrDuration.Observe(d.Seconds())
}
