package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stageops/promotion-api/internal/dto"
	"github.com/stageops/promotion-api/internal/models"
	appErrors "github.com/stageops/promotion-api/pkg/errors"
	"github.com/stageops/promotion-api/pkg/jobs"
)

type lineageStore interface {
	Append(ctx context.Context, event *models.DataLineageEvent) error
	ListByDocument(ctx context.Context, collection, documentID string) ([]models.DataLineageEvent, error)
	ListByOrganization(ctx context.Context, filter models.LineageFilter) ([]models.DataLineageEvent, error)
}

type lineageCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// LineageConfig tunes the lineage service.
type LineageConfig struct {
	OrgQueryLimit     int
	CacheTTL          time.Duration
	WriterConcurrency int
	WriterRetries     int
	WriterRetryDelay  time.Duration
}

// LineageService records and queries data lineage events. Writes are
// best-effort: they run on a background queue with bounded retries and
// never fail the operation that produced them. Reads never mutate state.
type LineageService struct {
	repo     lineageStore
	cache    lineageCache
	metrics  *MetricsService
	queue    *jobs.Queue
	logger   *zap.Logger
	orgLimit int
	cacheTTL time.Duration
}

// NewLineageService constructs the service and its writer queue. Call
// Start before recording and Stop on shutdown. metrics may be nil.
func NewLineageService(repo lineageStore, cache lineageCache, metrics *MetricsService, cfg LineageConfig, logger *zap.Logger) *LineageService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.OrgQueryLimit <= 0 {
		cfg.OrgQueryLimit = 1000
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}

	svc := &LineageService{
		repo:     repo,
		cache:    cache,
		metrics:  metrics,
		logger:   logger,
		orgLimit: cfg.OrgQueryLimit,
		cacheTTL: cfg.CacheTTL,
	}
	svc.queue = jobs.NewQueue("lineage", svc.writeEvent, jobs.QueueConfig{
		Workers:    cfg.WriterConcurrency,
		MaxRetries: cfg.WriterRetries,
		RetryDelay: cfg.WriterRetryDelay,
		Logger:     logger,
	})
	return svc
}

// Start launches the writer queue.
func (s *LineageService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the writer queue.
func (s *LineageService) Stop() {
	s.queue.Stop()
}

// Record enqueues a lineage event for persistence. It never returns an
// error: a full or stopped queue falls back to a synchronous write, and
// a failed synchronous write is logged and dropped. Audit must not fail
// the operation it describes.
func (s *LineageService) Record(ctx context.Context, event *models.DataLineageEvent) {
	if event == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	err := s.queue.Enqueue(jobs.Job{
		ID:      event.ID,
		Type:    string(event.Action),
		Payload: event,
	})
	if err == nil {
		return
	}

	if writeErr := s.writeEvent(ctx, jobs.Job{ID: event.ID, Payload: event}); writeErr != nil {
		s.logger.Warn("dropping lineage event",
			zap.String("event_id", event.ID),
			zap.String("action", string(event.Action)),
			zap.String("document_id", event.DocumentID),
			zap.Error(writeErr),
		)
	}
}

func (s *LineageService) writeEvent(ctx context.Context, job jobs.Job) error {
	event, ok := job.Payload.(*models.DataLineageEvent)
	if !ok {
		return fmt.Errorf("unexpected lineage payload type %T", job.Payload)
	}
	if err := s.repo.Append(ctx, event); err != nil {
		s.metrics.LineageWrite(false)
		return err
	}
	s.metrics.LineageWrite(true)
	if s.cache != nil {
		if err := s.cache.Delete(ctx, documentLineageKey(event.Collection, event.DocumentID)); err != nil {
			s.logger.Warn("failed to invalidate lineage cache", zap.Error(err))
		}
	}
	return nil
}

// DocumentLineage returns all events for one document, most recent
// first, scoped to the organization recorded on its events.
func (s *LineageService) DocumentLineage(ctx context.Context, collection, documentID string, actor *models.JWTClaims) ([]models.DataLineageEvent, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if _, ok := models.ApproverRoleFor(actor.Role); !ok {
		return nil, appErrors.ErrForbidden
	}

	key := documentLineageKey(collection, documentID)
	var events []models.DataLineageEvent
	cached := false
	if s.cache != nil {
		if err := s.cache.Get(ctx, key, &events); err == nil {
			cached = true
		}
	}
	if !cached {
		var err error
		events, err = s.repo.ListByDocument(ctx, collection, documentID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document lineage")
		}
		if s.cache != nil {
			if err := s.cache.Set(ctx, key, events, s.cacheTTL); err != nil {
				s.logger.Warn("failed to cache document lineage", zap.Error(err))
			}
		}
	}

	if len(events) > 0 && !actor.CanAccessOrganization(events[0].OrganizationID) {
		return nil, appErrors.ErrForbidden
	}
	return events, nil
}

// OrganizationLineage returns the organization's events, most recent
// first, capped to bound cost. Date bounds are applied after retrieval;
// the action filter is pushed into the query.
func (s *LineageService) OrganizationLineage(ctx context.Context, organizationID string, query dto.LineageQuery, actor *models.JWTClaims) ([]models.DataLineageEvent, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if _, ok := models.ApproverRoleFor(actor.Role); !ok {
		return nil, appErrors.ErrForbidden
	}
	if !actor.CanAccessOrganization(organizationID) {
		return nil, appErrors.ErrForbidden
	}

	events, err := s.repo.ListByOrganization(ctx, models.LineageFilter{
		OrganizationID: organizationID,
		Action:         query.Action,
		Limit:          s.orgLimit,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load organization lineage")
	}

	if query.StartDate == nil && query.EndDate == nil {
		return events, nil
	}
	filtered := make([]models.DataLineageEvent, 0, len(events))
	for _, event := range events {
		if query.StartDate != nil && event.Timestamp.Before(*query.StartDate) {
			continue
		}
		if query.EndDate != nil && event.Timestamp.After(*query.EndDate) {
			continue
		}
		filtered = append(filtered, event)
	}
	return filtered, nil
}

func documentLineageKey(collection, documentID string) string {
	return fmt.Sprintf("lineage:doc:%s:%s", collection, documentID)
}
