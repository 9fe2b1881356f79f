package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"docpipeline/internal/eventlog"
	"docpipeline/internal/model"
	"docpipeline/internal/repository"
)

const (
	defaultDeadLetterLimit = 50
	maxDeadLetterLimit     = 500
)

// OpsService defines the operator use cases exposed over HTTP.
type OpsService interface {
	// DeadLetters lists ERROR queue items, newest first. An empty tenantID lists all tenants.
	DeadLetters(ctx context.Context, tenantID string, limit int) ([]model.QueueItem, error)

	// Retry puts a dead-lettered item back to PENDING. Attempts are kept.
	Retry(ctx context.Context, id string) (*model.QueueItem, error)

	// ReloadTenants drops the cached prefix map and reads it again.
	ReloadTenants() ([]model.Tenant, error)
}

type opsService struct {
	queue   repository.QueueRepository
	tenants TenantReloader
	events  EventSink
	log     logrus.FieldLogger
}

func NewOpsService(queue repository.QueueRepository, tenants TenantReloader, events EventSink, log logrus.FieldLogger) OpsService {
	return &opsService{queue: queue, tenants: tenants, events: events, log: log.WithField("component", "ops")}
}

func (s *opsService) DeadLetters(ctx context.Context, tenantID string, limit int) ([]model.QueueItem, error) {
	if limit <= 0 {
		limit = defaultDeadLetterLimit
	}
	if limit > maxDeadLetterLimit {
		limit = maxDeadLetterLimit
	}
	return s.queue.ListByStatus(ctx, model.QueueStatusError, tenantID, limit)
}

func (s *opsService) Retry(ctx context.Context, id string) (*model.QueueItem, error) {
	if id == "" {
		return nil, ErrItemNotFound
	}
	item, err := s.queue.Requeue(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrItemNotFound
		}
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"queue_item_id": item.ID, "tenant_id": item.TenantID}).Info("dead-lettered item requeued")
	s.events.Emit(eventlog.Entry(model.LogInfo, model.SourceSystem, item.TenantID,
		fmt.Sprintf("Archivo %s reencolado manualmente", item.SourceRef),
		eventlog.WithFilename(item.SourceRef),
		eventlog.WithDetail("attempts", item.Attempts),
	))
	return item, nil
}

func (s *opsService) ReloadTenants() ([]model.Tenant, error) {
	s.tenants.InvalidateCache()
	if _, err := s.tenants.Load(); err != nil {
		return nil, fmt.Errorf("reload tenants: %w", err)
	}
	tenants, err := s.tenants.Tenants()
	if err != nil {
		return nil, err
	}
	s.log.WithField("tenants", len(tenants)).Info("tenant map reloaded")
	return tenants, nil
}
