package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/stageops/promotion-api/internal/models"
	appErrors "github.com/stageops/promotion-api/pkg/errors"
)

type snapshotStore interface {
	Create(ctx context.Context, snapshot *models.PromotionSnapshot) error
	GetByID(ctx context.Context, id string) (*models.PromotionSnapshot, error)
}

type resourceStore interface {
	Get(ctx context.Context, collection string, env models.Environment, resourceID string) (*models.ResourceDocument, error)
	Put(ctx context.Context, doc *models.ResourceDocument) error
	Delete(ctx context.Context, collection string, env models.Environment, resourceID string) error
}

// SnapshotService captures production state before a promotion executes
// and restores it on rollback, within the retention window.
type SnapshotService struct {
	snapshots snapshotStore
	resources resourceStore
	retention time.Duration
	logger    *zap.Logger
}

// NewSnapshotService constructs the service. A non-positive retention
// falls back to 90 days.
func NewSnapshotService(snapshots snapshotStore, resources resourceStore, retention time.Duration, logger *zap.Logger) *SnapshotService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if retention <= 0 {
		retention = 90 * 24 * time.Hour
	}
	return &SnapshotService{
		snapshots: snapshots,
		resources: resources,
		retention: retention,
		logger:    logger,
	}
}

// CreateSnapshot records the current production state of the request's
// resource, verbatim. Must run after approval validation and before any
// mutation, so restoration is always well-defined. A missing production
// document is captured as nil data with version 0.
func (s *SnapshotService) CreateSnapshot(ctx context.Context, request *models.PromotionRequest) (*models.PromotionSnapshot, error) {
	collection, ok := models.CollectionFor(request.ResourceType)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported resource type %q", request.ResourceType))
	}

	before := models.BeforeState{
		ResourceID:   request.ResourceID,
		ResourceType: request.ResourceType,
	}
	doc, err := s.resources.Get(ctx, collection, models.EnvironmentProduction, request.ResourceID)
	switch {
	case err == nil:
		// Copy, never alias: the executor mutates the live document right
		// after this, and the captured state must stay verbatim.
		data, cloneErr := doc.Data.Clone()
		if cloneErr != nil {
			return nil, appErrors.Wrap(cloneErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to copy production state")
		}
		before.Data = data
		before.Version = doc.Version
	case errors.Is(err, sql.ErrNoRows):
		// resource does not exist in production yet
	default:
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read production state")
	}

	now := time.Now().UTC()
	snapshot := &models.PromotionSnapshot{
		PromotionRequestID: request.ID,
		OrganizationID:     request.OrganizationID,
		BeforeState:        before,
		CreatedAt:          now,
		ExpiresAt:          now.Add(s.retention),
	}
	if err := s.snapshots.Create(ctx, snapshot); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist snapshot")
	}
	s.logger.Info("snapshot created",
		zap.String("snapshot_id", snapshot.ID),
		zap.String("request_id", request.ID),
		zap.Int64("before_version", before.Version),
	)
	return snapshot, nil
}

// Rollback restores the production state captured in a snapshot. Expired
// snapshots are refused without mutation: past the retention boundary the
// audit guarantees backing the restore no longer hold. A nil captured
// state deletes the resource, which did not exist before the promotion.
func (s *SnapshotService) Rollback(ctx context.Context, snapshotID string) (*models.PromotionSnapshot, error) {
	snapshot, err := s.snapshots.GetByID(ctx, snapshotID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("snapshot %s not found", snapshotID))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load snapshot")
	}
	if snapshot.Expired(time.Now().UTC()) {
		return nil, appErrors.Clone(appErrors.ErrSnapshotExpired,
			fmt.Sprintf("snapshot %s expired at %s", snapshotID, snapshot.ExpiresAt.Format(time.RFC3339)))
	}

	collection, ok := models.CollectionFor(snapshot.BeforeState.ResourceType)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported resource type %q", snapshot.BeforeState.ResourceType))
	}

	if snapshot.BeforeState.Data == nil {
		if err := s.resources.Delete(ctx, collection, models.EnvironmentProduction, snapshot.BeforeState.ResourceID); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete promoted resource")
		}
		s.logger.Info("rollback deleted resource",
			zap.String("snapshot_id", snapshotID),
			zap.String("resource_id", snapshot.BeforeState.ResourceID),
		)
		return snapshot, nil
	}

	data := make(models.JSONMap, len(snapshot.BeforeState.Data)+1)
	for k, v := range snapshot.BeforeState.Data {
		data[k] = v
	}
	data[models.FieldLastModifiedIn] = string(models.EnvironmentProduction)

	doc := &models.ResourceDocument{
		Collection:  collection,
		Environment: models.EnvironmentProduction,
		ResourceID:  snapshot.BeforeState.ResourceID,
		Data:        data,
		Version:     snapshot.BeforeState.Version,
		UpdatedAt:   time.Now().UTC(),
	}
	if err := s.resources.Put(ctx, doc); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to restore resource")
	}
	s.logger.Info("rollback restored resource",
		zap.String("snapshot_id", snapshotID),
		zap.String("resource_id", snapshot.BeforeState.ResourceID),
		zap.Int64("version", snapshot.BeforeState.Version),
	)
	return snapshot, nil
}
