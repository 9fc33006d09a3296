package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/stageops/promotion-api/internal/models"
	"github.com/stageops/promotion-api/internal/repository"
	appErrors "github.com/stageops/promotion-api/pkg/errors"
)

type executorRequestStore interface {
	GetByID(ctx context.Context, id string) (*models.PromotionRequest, error)
	TransitionStatus(ctx context.Context, id string, from, to models.PromotionStatus, at time.Time) error
	RecordExecutionOutcome(ctx context.Context, params repository.ExecutionOutcomeParams) error
}

type resourceApplier interface {
	ApplyFields(ctx context.Context, collection string, env models.Environment, resourceID string, fields models.JSONMap, at time.Time) (int64, error)
}

type snapshotter interface {
	CreateSnapshot(ctx context.Context, request *models.PromotionRequest) (*models.PromotionSnapshot, error)
	Rollback(ctx context.Context, snapshotID string) (*models.PromotionSnapshot, error)
}

type lineageRecorder interface {
	Record(ctx context.Context, event *models.DataLineageEvent)
}

type executionMetrics interface {
	PromotionExecuted(success bool)
}

// PromotionExecutor applies a fully approved promotion to production:
// it guards entry with a status compare-and-set, snapshots the prior
// production state, applies the (resolution-aware) changes, records
// lineage, and stamps the terminal status onto the request.
type PromotionExecutor struct {
	requests  executorRequestStore
	resources resourceApplier
	snapshots snapshotter
	lineage   lineageRecorder
	metrics   executionMetrics
	logger    *zap.Logger
}

// NewPromotionExecutor constructs the executor. lineage and metrics may
// be nil.
func NewPromotionExecutor(requests executorRequestStore, resources resourceApplier, snapshots snapshotter, lineage lineageRecorder, metrics executionMetrics, logger *zap.Logger) *PromotionExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PromotionExecutor{
		requests:  requests,
		resources: resources,
		snapshots: snapshots,
		lineage:   lineage,
		metrics:   metrics,
		logger:    logger,
	}
}

// Execute runs the promotion. Preconditions are re-validated server-side
// and fail without side effects; execution failures mark the request
// failed and propagate, making the request the durable record of the
// failure. Lineage failures alone are swallowed.
func (e *PromotionExecutor) Execute(ctx context.Context, requestID string, actor *models.JWTClaims) (*models.PromotionRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleSuperAdmin {
		return nil, appErrors.ErrForbidden
	}

	request, err := e.requests.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("promotion request %s not found", requestID))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load promotion request")
	}

	if request.Status != models.PromotionStatusApprovedSuper {
		return nil, appErrors.Clone(appErrors.ErrInvalidState,
			fmt.Sprintf("promotion not fully approved, status is %q", request.Status))
	}
	if unresolved := request.UnresolvedConflicts(); len(unresolved) > 0 {
		fields := make([]string, len(unresolved))
		for i, c := range unresolved {
			fields[i] = c.Field
		}
		return nil, appErrors.Clone(appErrors.ErrUnresolvedConflicts,
			fmt.Sprintf("%d unresolved conflicts: %s", len(unresolved), strings.Join(fields, ", ")))
	}

	collection, ok := models.CollectionFor(request.ResourceType)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported resource type %q", request.ResourceType))
	}

	// Only one executor may pass this gate; a concurrent call loses the
	// compare-and-set and fails before touching anything.
	now := time.Now().UTC()
	if err := e.requests.TransitionStatus(ctx, request.ID, models.PromotionStatusApprovedSuper, models.PromotionStatusExecuting, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "request is no longer ready to execute")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enter execution")
	}
	request.Status = models.PromotionStatusExecuting

	snapshot, err := e.snapshots.CreateSnapshot(ctx, request)
	if err != nil {
		return nil, e.fail(ctx, request, actor.UserID, "", fmt.Errorf("snapshot capture: %w", err))
	}

	applied := appliedFields(request, now)
	if _, err := e.resources.ApplyFields(ctx, collection, models.EnvironmentProduction, request.ResourceID, applied, now); err != nil {
		return nil, e.fail(ctx, request, actor.UserID, snapshot.ID, fmt.Errorf("apply changes: %w", err))
	}

	e.recordLineage(ctx, request, collection, actor.UserID)

	executedAt := time.Now().UTC()
	outcome := repository.ExecutionOutcomeParams{
		ID:         request.ID,
		Status:     models.PromotionStatusCompleted,
		ExecutedAt: executedAt,
		ExecutedBy: actor.UserID,
		Result: models.ExecutionResult{
			Success:    true,
			Message:    "promotion completed successfully",
			SnapshotID: snapshot.ID,
		},
	}
	if err := e.requests.RecordExecutionOutcome(ctx, outcome); err != nil {
		return nil, e.fail(ctx, request, actor.UserID, snapshot.ID, fmt.Errorf("record outcome: %w", err))
	}

	if e.metrics != nil {
		e.metrics.PromotionExecuted(true)
	}
	e.logger.Info("promotion executed",
		zap.String("request_id", request.ID),
		zap.String("snapshot_id", snapshot.ID),
		zap.String("summary", request.Summary()),
	)

	request.Status = models.PromotionStatusCompleted
	request.ExecutedAt = &executedAt
	executedBy := actor.UserID
	request.ExecutedBy = &executedBy
	request.ExecutionResult = models.NullExecutionResult{Result: &outcome.Result}
	return request, nil
}

// Rollback restores the production document captured before a completed
// promotion and records a rolled-back lineage event. The request itself
// keeps its completed status; the lineage trail is the rollback record.
func (e *PromotionExecutor) Rollback(ctx context.Context, requestID string, actor *models.JWTClaims) (*models.PromotionSnapshot, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleSuperAdmin {
		return nil, appErrors.ErrForbidden
	}

	request, err := e.requests.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("promotion request %s not found", requestID))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load promotion request")
	}

	if request.Status != models.PromotionStatusCompleted {
		return nil, appErrors.Clone(appErrors.ErrInvalidState,
			fmt.Sprintf("only completed promotions can be rolled back, status is %q", request.Status))
	}
	result := request.ExecutionResult.Result
	if result == nil || result.SnapshotID == "" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "promotion has no rollback snapshot")
	}

	snapshot, err := e.snapshots.Rollback(ctx, result.SnapshotID)
	if err != nil {
		return nil, err
	}

	if e.lineage != nil {
		collection, _ := models.CollectionFor(snapshot.BeforeState.ResourceType)
		e.lineage.Record(ctx, &models.DataLineageEvent{
			DocumentID:         request.ResourceID,
			Collection:         collection,
			Action:             models.LineageActionRolledBack,
			Source:             models.EnvironmentProduction,
			OrganizationID:     request.OrganizationID,
			PerformedBy:        actor.UserID,
			PromotionRequestID: request.ID,
			PreviousSource:     models.EnvironmentProduction,
		})
	}

	e.logger.Info("promotion rolled back",
		zap.String("request_id", request.ID),
		zap.String("snapshot_id", snapshot.ID),
	)
	return snapshot, nil
}

// fail marks the request failed with the captured message and returns an
// execution error for the caller. The failed status write is itself
// best-effort: the original error is what propagates.
func (e *PromotionExecutor) fail(ctx context.Context, request *models.PromotionRequest, executedBy, snapshotID string, cause error) error {
	if e.metrics != nil {
		e.metrics.PromotionExecuted(false)
	}
	outcome := repository.ExecutionOutcomeParams{
		ID:         request.ID,
		Status:     models.PromotionStatusFailed,
		ExecutedAt: time.Now().UTC(),
		ExecutedBy: executedBy,
		Result: models.ExecutionResult{
			Success:    false,
			Message:    cause.Error(),
			SnapshotID: snapshotID,
		},
	}
	if err := e.requests.RecordExecutionOutcome(ctx, outcome); err != nil {
		e.logger.Error("failed to mark promotion failed",
			zap.String("request_id", request.ID),
			zap.Error(err),
		)
	}
	e.logger.Error("promotion execution failed",
		zap.String("request_id", request.ID),
		zap.Error(cause),
	)
	return appErrors.Wrap(cause, appErrors.ErrExecutionFailed.Code, appErrors.ErrExecutionFailed.Status, "promotion execution failed")
}

func (e *PromotionExecutor) recordLineage(ctx context.Context, request *models.PromotionRequest, collection, performedBy string) {
	if e.lineage == nil {
		return
	}
	e.lineage.Record(ctx, &models.DataLineageEvent{
		DocumentID:         request.ResourceID,
		Collection:         collection,
		Action:             models.LineageActionPromoted,
		Source:             models.EnvironmentProduction,
		OrganizationID:     request.OrganizationID,
		PerformedBy:        performedBy,
		Changes:            request.Changes,
		PromotionRequestID: request.ID,
		PreviousSource:     models.EnvironmentStaging,
	})
}

// appliedFields builds the document update for a promotion. Each change
// is filtered through its conflict resolution when the field was also
// flagged as conflicting: keep-production drops the write, manual
// substitutes the merged value, accept-staging keeps the staged value.
// Promotion bookkeeping fields are stamped alongside.
func appliedFields(request *models.PromotionRequest, now time.Time) models.JSONMap {
	resolutionByField := make(map[string]*models.ConflictResolution)
	for i := range request.Conflicts {
		c := &request.Conflicts[i]
		if c.Resolved && c.Resolution != nil {
			resolutionByField[c.Field] = c.Resolution
		}
	}

	fields := make(models.JSONMap, len(request.Changes)+4)
	for _, change := range request.Changes {
		if resolution, ok := resolutionByField[change.Field]; ok {
			switch resolution.Strategy {
			case models.ResolutionKeepProduction:
				continue
			case models.ResolutionManual:
				fields[change.Field] = resolution.MergedValue
				continue
			}
		}
		fields[change.Field] = change.NewValue
	}

	fields[models.FieldLastModifiedIn] = string(models.EnvironmentProduction)
	fields[models.FieldPromotedFrom] = true
	fields[models.FieldPromotedAt] = now.Format(time.RFC3339)
	fields[models.FieldStagingID] = request.ResourceID
	return fields
}
