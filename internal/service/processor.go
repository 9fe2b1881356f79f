package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"docpipeline/internal/eventlog"
	"docpipeline/internal/fileutil"
	"docpipeline/internal/metrics"
	"docpipeline/internal/model"
	tracing "docpipeline/internal/otel"
	"docpipeline/internal/ocr"
	"docpipeline/internal/repository"
	"docpipeline/internal/storage"
)

var filenameDate = regexp.MustCompile(`(?:^|_)(\d{8})(?:_|\.|$)`)

// ProcessorConfig holds the OCR stage settings.
type ProcessorConfig struct {
	InboxPrefix       string
	FailedPrefix      string
	MaxConcurrentJobs int
	// Retry bounds OCR attempts per inbox object.
	Retry RetryPolicy
}

// Candidate is one inbox object awaiting OCR.
type Candidate struct {
	Tenant model.Tenant
	Object storage.ObjectInfo
}

// Processor runs OCR over the tenants' bucket inboxes and records Documents.
type Processor struct {
	cfg       ProcessorConfig
	store     storage.Storage
	docs      repository.DocumentRepository
	attempts  repository.OCRAttemptRepository
	extractor ocr.Extractor
	tenants   TenantDirectory
	events    EventSink
	metrics   *metrics.Pipeline
	log       logrus.FieldLogger

	now       func() time.Time
	pageCount func(io.ReadSeeker) (int, error)
}

func NewProcessor(
	cfg ProcessorConfig,
	store storage.Storage,
	docs repository.DocumentRepository,
	attempts repository.OCRAttemptRepository,
	extractor ocr.Extractor,
	tenants TenantDirectory,
	events EventSink,
	m *metrics.Pipeline,
	log logrus.FieldLogger,
) *Processor {
	if cfg.MaxConcurrentJobs < 1 {
		cfg.MaxConcurrentJobs = 1
	}
	return &Processor{
		cfg:       cfg,
		store:     store,
		docs:      docs,
		attempts:  attempts,
		extractor: extractor,
		tenants:   tenants,
		events:    events,
		metrics:   m,
		log:       log.WithField("component", "ocr_processor"),
		now:       time.Now,
		pageCount: pdfPageCount,
	}
}

// ListInbox lists every tenant's inbox. A tenant whose bucket cannot be
// listed is logged and skipped.
func (p *Processor) ListInbox(ctx context.Context) ([]Candidate, error) {
	tenants, err := p.tenants.Tenants()
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}

	var out []Candidate
	for _, t := range tenants {
		prefix := p.cfg.InboxPrefix + t.StorageKeyPrefix + "/"
		objects, err := p.store.List(ctx, t.Bucket, prefix)
		if err != nil {
			p.log.WithError(err).WithFields(logrus.Fields{"tenant_id": t.TenantID, "bucket": t.Bucket}).Warn("failed to list inbox")
			continue
		}
		for _, obj := range objects {
			out = append(out, Candidate{Tenant: t, Object: obj})
		}
	}
	return out, nil
}

// RunOnce processes every inbox object once and waits for all of them.
func (p *Processor) RunOnce(ctx context.Context) error {
	candidates, err := p.ListInbox(ctx)
	if err != nil {
		return err
	}

	var g errgroup.Group
	g.SetLimit(p.cfg.MaxConcurrentJobs)
	for _, c := range candidates {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			_ = p.Process(context.WithoutCancel(ctx), c)
			return nil
		})
	}
	return g.Wait()
}

// Process extracts one inbox object into a Document and relocates it.
func (p *Processor) Process(ctx context.Context, c Candidate) (err error) {
	t, key := c.Tenant, c.Object.Key
	ctx, span := tracing.StartItem(ctx, "processor.process", t.TenantID, key)
	defer func() { tracing.End(span, err) }()

	filename := path.Base(key)
	log := p.log.WithFields(logrus.Fields{"tenant_id": t.TenantID, "bucket": t.Bucket, "key": key})

	attempt, err := p.attempts.Find(ctx, t.TenantID, key)
	switch {
	case err == nil:
		if attempt.NextRetryAt.After(p.now()) {
			p.metrics.OCRObject(t.TenantID, metrics.OutcomeSkipped)
			return nil
		}
	case errors.Is(err, repository.ErrNotFound):
		attempt = nil
	default:
		log.WithError(err).Error("failed to read ocr attempts")
		return err
	}

	body, err := p.download(ctx, t.Bucket, key)
	if err != nil {
		log.WithError(err).Error("failed to download inbox object")
		return err
	}
	hash := fileutil.HashBytes(body)
	log = log.WithField("content_hash", hash)

	existing, err := p.docs.FindByContentHash(ctx, t.TenantID, hash)
	if err == nil {
		return p.duplicate(ctx, log, c, existing)
	}
	if !errors.Is(err, repository.ErrNotFound) {
		log.WithError(err).Error("failed to look up document by hash")
		return err
	}

	started := time.Now()
	analysis, err := p.extractor.Analyze(ctx, body)
	p.metrics.ObserveOCRCall(time.Since(started))
	if err != nil {
		return p.recordFailure(ctx, log, c, attempt, fmt.Errorf("ocr: %w", err))
	}

	ext := ocr.Parse(analysis, t.TaxID)
	ext.Pages = p.pages(body, filename, analysis.Pages)
	finalKey := FinalKey(t, OrganizationDate(ext.IssueDate.Ptr(), filename, p.now()), filename)
	rawKey := strings.TrimSuffix(finalKey, path.Ext(finalKey)) + "_ocr.json"

	if _, err := p.store.Put(ctx, t.Bucket, rawKey, bytes.NewReader(analysis.Raw), storage.PutObjectOptions{
		Size:        int64(len(analysis.Raw)),
		ContentType: storage.ContentTypeFor(rawKey),
	}); err != nil {
		return p.recordFailure(ctx, log, c, attempt, fmt.Errorf("store ocr response: %w", err))
	}

	payload, err := json.Marshal(ext.Payload())
	if err != nil {
		return p.recordFailure(ctx, log, c, attempt, fmt.Errorf("encode payload: %w", err))
	}

	stored, err := p.docs.Create(ctx, &model.Document{
		TenantID:          t.TenantID,
		Type:              ext.Type,
		Letter:            ext.Letter.Ptr(),
		Series:            ext.Series.Ptr(),
		Number:            ext.Number.Ptr(),
		IssueDate:         ext.IssueDate.Ptr(),
		DueDate:           ext.DueDate.Ptr(),
		Currency:          ext.Currency,
		Subtotal:          nullDecimal(ext.Subtotal),
		Tax:               nullDecimal(ext.Tax),
		Total:             nullDecimal(ext.Total),
		Confidence:        ext.Confidence,
		ReviewState:       model.ReviewPending,
		MissingFields:     ext.MissingFields(),
		NormalizedPayload: payload,
		VendorName:        ext.VendorName.Ptr(),
		VendorTaxID:       ext.VendorTaxID.Ptr(),
		PageCount:         positive(ext.Pages),
		Filename:          filename,
		ContentHash:       hash,
		RawStorageKey:     key,
		RawOCRResponseKey: rawKey,
	})
	if errors.Is(err, repository.ErrDuplicate) {
		existing, findErr := p.docs.FindByContentHash(ctx, t.TenantID, hash)
		if findErr != nil {
			log.WithError(findErr).Error("failed to load concurrently created document")
			return findErr
		}
		return p.duplicate(ctx, log, c, existing)
	}
	if err != nil {
		return p.recordFailure(ctx, log, c, attempt, fmt.Errorf("create document: %w", err))
	}
	log = log.WithField("document_id", stored.ID)

	if err := p.relocate(ctx, stored.ID, t.Bucket, key, finalKey); err != nil {
		log.WithError(err).Error("document stored but relocation failed")
		p.events.Emit(eventlog.Entry(model.LogWarning, model.SourceOCR, t.TenantID,
			fmt.Sprintf("Comprobante %s procesado, pendiente de reubicar", filename),
			eventlog.WithFilename(filename),
			eventlog.WithDocumentID(stored.ID),
			eventlog.WithDetail("error", err.Error()),
		))
		return err
	}
	p.clearAttempts(ctx, log, attempt)

	log.WithFields(logrus.Fields{"final_key": finalKey, "confidence": ext.Confidence}).Info("document extracted")
	p.metrics.OCRObject(t.TenantID, metrics.OutcomeSuccess)
	p.events.Emit(eventlog.Entry(model.LogSuccess, model.SourceOCR, t.TenantID,
		fmt.Sprintf("Comprobante %s procesado", filename),
		eventlog.WithFilename(filename),
		eventlog.WithDocumentID(stored.ID),
		eventlog.WithDetail("confidence", ext.Confidence),
		eventlog.WithDetail("missingFields", []string(ext.MissingFields())),
	))
	return nil
}

// duplicate handles an inbox object whose content already has a Document.
// When the Document came from this very object and was never relocated,
// the relocation is resumed instead of deleting the object.
func (p *Processor) duplicate(ctx context.Context, log logrus.FieldLogger, c Candidate, existing *model.Document) error {
	t, key := c.Tenant, c.Object.Key
	filename := path.Base(key)
	log = log.WithField("document_id", existing.ID)

	if existing.RawStorageKey == key && existing.FinalStorageKey == nil {
		finalKey := FinalKey(t, OrganizationDate(existing.IssueDate, filename, existing.CreatedAt), filename)
		if err := p.relocate(ctx, existing.ID, t.Bucket, key, finalKey); err != nil {
			log.WithError(err).Error("failed to resume relocation")
			return err
		}
		log.WithField("final_key", finalKey).Info("relocation resumed")
		p.clearAttemptsFor(ctx, log, t.TenantID, key)
		return nil
	}

	if err := p.store.Delete(ctx, t.Bucket, key); err != nil {
		log.WithError(err).Error("failed to delete duplicate inbox object")
		return err
	}
	p.clearAttemptsFor(ctx, log, t.TenantID, key)

	log.Info("duplicate content, inbox object deleted")
	p.metrics.OCRObject(t.TenantID, metrics.OutcomeDuplicate)
	p.events.Emit(eventlog.Entry(model.LogInfo, model.SourceOCR, t.TenantID,
		fmt.Sprintf("El archivo %s ya fue procesado, se descarta el duplicado", filename),
		eventlog.WithFilename(filename),
		eventlog.WithDocumentID(existing.ID),
	))
	return nil
}

func (p *Processor) relocate(ctx context.Context, docID, bucket, src, dst string) error {
	if err := p.store.Move(ctx, bucket, src, dst); err != nil {
		return fmt.Errorf("move %s: %w", src, err)
	}
	if err := p.docs.SetFinalStorageKey(ctx, docID, dst); err != nil {
		return fmt.Errorf("set final storage key: %w", err)
	}
	return nil
}

// recordFailure counts an OCR failure and moves the object to the failed
// prefix once the attempts are exhausted.
func (p *Processor) recordFailure(ctx context.Context, log logrus.FieldLogger, c Candidate, prev *model.OCRAttempt, cause error) error {
	t, key := c.Tenant, c.Object.Key
	filename := path.Base(key)
	attempts := 1
	if prev != nil {
		attempts = prev.Attempts + 1
	}
	msg := truncateError(cause)
	log = log.WithError(cause).WithField("attempts", attempts)

	if p.cfg.Retry.Exhausted(attempts) {
		failedKey := p.cfg.FailedPrefix + key
		err := p.store.Move(ctx, t.Bucket, key, failedKey)
		if err == nil {
			p.clearAttemptsFor(ctx, log, t.TenantID, key)
			log.WithField("failed_key", failedKey).Error("ocr failed repeatedly, object moved aside")
			p.metrics.OCRObject(t.TenantID, metrics.OutcomeDeadLetter)
			p.events.Emit(eventlog.Entry(model.LogError, model.SourceOCR, t.TenantID,
				fmt.Sprintf("No se pudo procesar %s tras %d intentos", filename, attempts),
				eventlog.WithFilename(filename),
				eventlog.WithDetail("failedKey", failedKey),
				eventlog.WithDetail("error", msg),
			))
			return cause
		}
		log.WithField("move_error", err.Error()).Error("failed to move object to failed prefix")
	}

	next := p.now().UTC().Add(p.cfg.Retry.Backoff(attempts))
	if err := p.attempts.RecordFailure(ctx, model.OCRAttempt{
		TenantID:    t.TenantID,
		ObjectKey:   key,
		Attempts:    attempts,
		NextRetryAt: next,
		LastError:   msg,
	}); err != nil {
		log.WithField("record_error", err.Error()).Error("failed to record ocr attempt")
		return cause
	}

	log.WithField("next_retry_at", next).Warn("ocr failed, retry scheduled")
	p.metrics.OCRObject(t.TenantID, metrics.OutcomeRetry)
	p.events.Emit(eventlog.Entry(model.LogWarning, model.SourceOCR, t.TenantID,
		fmt.Sprintf("Error al procesar %s, se reintentará", filename),
		eventlog.WithFilename(filename),
		eventlog.WithDetail("attempts", attempts),
		eventlog.WithDetail("error", msg),
	))
	return cause
}

func (p *Processor) clearAttempts(ctx context.Context, log logrus.FieldLogger, a *model.OCRAttempt) {
	if a == nil {
		return
	}
	p.clearAttemptsFor(ctx, log, a.TenantID, a.ObjectKey)
}

func (p *Processor) clearAttemptsFor(ctx context.Context, log logrus.FieldLogger, tenantID, key string) {
	if err := p.attempts.Clear(ctx, tenantID, key); err != nil {
		log.WithError(err).Warn("failed to clear ocr attempts")
	}
}

func (p *Processor) download(ctx context.Context, bucket, key string) ([]byte, error) {
	rc, _, err := p.store.Get(ctx, bucket, key)
	if err != nil {
		return nil, fmt.Errorf("get object: %w", err)
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read object: %w", err)
	}
	return b, nil
}

// pages prefers the PDF's own page count and falls back to the service's.
func (p *Processor) pages(body []byte, filename string, reported int) int {
	if strings.EqualFold(path.Ext(filename), ".pdf") {
		if n, err := p.pageCount(bytes.NewReader(body)); err == nil && n > 0 {
			return n
		}
	}
	return reported
}

func pdfPageCount(rs io.ReadSeeker) (int, error) {
	conf := pdfmodel.NewDefaultConfiguration()
	conf.ValidationMode = pdfmodel.ValidationRelaxed
	return api.PageCount(rs, conf)
}

// OrganizationDate picks the date used for the storage layout: the issue
// date, else a YYYYMMDD token in the filename, else fallback.
func OrganizationDate(issueDate *time.Time, filename string, fallback time.Time) time.Time {
	if issueDate != nil && !issueDate.IsZero() {
		return *issueDate
	}
	if m := filenameDate.FindStringSubmatch(filename); m != nil {
		if d, err := time.Parse("20060102", m[1]); err == nil {
			return d
		}
	}
	return fallback
}

// FinalKey is {storageKeyPrefix}/{yyyy}/{mm}/{dd}/{filename}.
func FinalKey(t model.Tenant, date time.Time, filename string) string {
	return path.Join(t.StorageKeyPrefix, date.Format("2006"), date.Format("01"), date.Format("02"), filename)
}

func nullDecimal(f ocr.Field[decimal.Decimal]) decimal.NullDecimal {
	v, ok := f.Get()
	return decimal.NullDecimal{Decimal: v, Valid: ok}
}

func positive(n int) *int {
	if n <= 0 {
		return nil
	}
	return &n
}
