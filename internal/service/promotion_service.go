package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/stageops/promotion-api/internal/dto"
	"github.com/stageops/promotion-api/internal/models"
	appErrors "github.com/stageops/promotion-api/pkg/errors"
)

type promotionStore interface {
	Create(ctx context.Context, request *models.PromotionRequest) error
	GetByID(ctx context.Context, id string) (*models.PromotionRequest, error)
	List(ctx context.Context, filter models.PromotionFilter) ([]models.PromotionRequest, error)
	UpdateLifecycle(ctx context.Context, request *models.PromotionRequest) error
}

type resourceReader interface {
	Get(ctx context.Context, collection string, env models.Environment, resourceID string) (*models.ResourceDocument, error)
}

// PromotionService owns the promotion request lifecycle up to execution:
// creation with conflict detection, the dual-approval state machine,
// rejection, and conflict resolution.
type PromotionService struct {
	repo      promotionStore
	resources resourceReader
	logger    *zap.Logger
	retries   int
}

// PromotionServiceOption configures the service.
type PromotionServiceOption func(*PromotionService)

// WithApprovalRetries sets how many times a lost lifecycle race is retried.
func WithApprovalRetries(retries int) PromotionServiceOption {
	return func(s *PromotionService) {
		if retries > 0 {
			s.retries = retries
		}
	}
}

// NewPromotionService constructs the service with defaults.
func NewPromotionService(repo promotionStore, resources resourceReader, logger *zap.Logger, opts ...PromotionServiceOption) *PromotionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &PromotionService{
		repo:      repo,
		resources: resources,
		logger:    logger,
		retries:   3,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Create opens a promotion request and records any conflicts between the
// staged document and the current production document.
func (s *PromotionService) Create(ctx context.Context, req dto.CreatePromotionRequest, actor *models.JWTClaims) (*models.PromotionRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := validateCreateRequest(req); err != nil {
		return nil, err
	}
	if err := requireOrgApprover(actor, req.OrganizationID); err != nil {
		return nil, err
	}

	request := &models.PromotionRequest{
		OrganizationID:         req.OrganizationID,
		ResourceType:           req.ResourceType,
		ResourceID:             req.ResourceID,
		ResourceName:           strings.TrimSpace(req.ResourceName),
		SourceEnvironment:      models.EnvironmentStaging,
		DestinationEnvironment: models.EnvironmentProduction,
		Changes:                append(models.ChangeList(nil), req.Changes...),
		Status:                 models.PromotionStatusPending,
		RequestedBy:            actor.UserID,
	}
	request.Conflicts = s.detectCurrentConflicts(ctx, request)

	if err := s.repo.Create(ctx, request); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create promotion request")
	}
	s.logger.Info("promotion request created",
		zap.String("request_id", request.ID),
		zap.String("summary", request.Summary()),
	)
	return request, nil
}

// detectCurrentConflicts compares the staged copy of the resource against
// production. A missing document on either side means there is nothing
// to diverge from.
func (s *PromotionService) detectCurrentConflicts(ctx context.Context, request *models.PromotionRequest) models.ConflictList {
	collection, ok := models.CollectionFor(request.ResourceType)
	if !ok {
		return nil
	}
	staging, err := s.resources.Get(ctx, collection, models.EnvironmentStaging, request.ResourceID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("failed to load staging document for conflict detection", zap.Error(err))
		}
		return nil
	}
	production, err := s.resources.Get(ctx, collection, models.EnvironmentProduction, request.ResourceID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("failed to load production document for conflict detection", zap.Error(err))
		}
		return nil
	}
	return DetectConflicts(documentFields(staging), documentFields(production), time.Now().UTC())
}

// documentFields flattens a stored document into the comparable shape:
// its data plus the version column.
func documentFields(doc *models.ResourceDocument) models.JSONMap {
	fields := make(models.JSONMap, len(doc.Data)+1)
	for k, v := range doc.Data {
		fields[k] = v
	}
	fields["version"] = doc.Version
	return fields
}

// List returns promotion requests the actor may see.
func (s *PromotionService) List(ctx context.Context, query dto.PromotionQuery, actor *models.JWTClaims) ([]models.PromotionRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	filter := models.PromotionFilter{
		OrganizationID: query.OrganizationID,
		Statuses:       query.Statuses,
		ResourceType:   query.ResourceType,
	}
	switch actor.Role {
	case models.RoleSuperAdmin:
		// may list any organization
	case models.RoleAdmin:
		filter.OrganizationID = actor.OrganizationID
	default:
		return nil, appErrors.ErrForbidden
	}
	requests, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list promotion requests")
	}
	return requests, nil
}

// Get returns a promotion request enforcing organization scope.
func (s *PromotionService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.PromotionRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	request, err := s.loadRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireOrgApprover(actor, request.OrganizationID); err != nil {
		return nil, err
	}
	return request, nil
}

// Approve records the actor's approval and recomputes the request status
// from the resulting approval set. Re-approval by a role already present
// is a no-op. Lost update races are retried against a fresh read.
func (s *PromotionService) Approve(ctx context.Context, id string, req dto.ApprovePromotionRequest, actor *models.JWTClaims) (*models.PromotionRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	role, ok := models.ApproverRoleFor(actor.Role)
	if !ok {
		return nil, appErrors.ErrForbidden
	}

	for attempt := 0; ; attempt++ {
		request, err := s.loadRequest(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := requireOrgApprover(actor, request.OrganizationID); err != nil {
			return nil, err
		}
		if request.Status.Terminal() || request.Status == models.PromotionStatusExecuting {
			return nil, appErrors.Clone(appErrors.ErrInvalidState,
				fmt.Sprintf("cannot approve request in status %q", request.Status))
		}
		if request.ApprovedBy(role) {
			s.logger.Debug("approval already present", zap.String("request_id", id), zap.String("role", string(role)))
			return request, nil
		}

		request.Approvals = append(request.Approvals, models.Approval{
			UserID:     actor.UserID,
			Role:       role,
			ApprovedAt: time.Now().UTC(),
			Notes:      strings.TrimSpace(req.Notes),
		})
		request.Status = models.StatusFromApprovals(request.Approvals)
		request.UpdatedAt = time.Now().UTC()

		err = s.repo.UpdateLifecycle(ctx, request)
		if err == nil {
			s.logger.Info("promotion approved",
				zap.String("request_id", id),
				zap.String("role", string(role)),
				zap.String("status", string(request.Status)),
			)
			return request, nil
		}
		if errors.Is(err, sql.ErrNoRows) && attempt < s.retries {
			continue
		}
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "request was updated concurrently, retry")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record approval")
	}
}

// Reject refuses the request. Rejection is only reachable before the
// superadmin approval lands; any single rejection is final.
func (s *PromotionService) Reject(ctx context.Context, id string, req dto.RejectPromotionRequest, actor *models.JWTClaims) (*models.PromotionRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	role, ok := models.ApproverRoleFor(actor.Role)
	if !ok {
		return nil, appErrors.ErrForbidden
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "reason is required")
	}

	for attempt := 0; ; attempt++ {
		request, err := s.loadRequest(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := requireOrgApprover(actor, request.OrganizationID); err != nil {
			return nil, err
		}
		if request.Status != models.PromotionStatusPending && request.Status != models.PromotionStatusApprovedOrg {
			return nil, appErrors.Clone(appErrors.ErrInvalidState,
				fmt.Sprintf("cannot reject request in status %q", request.Status))
		}

		request.Rejections = append(request.Rejections, models.Rejection{
			UserID:     actor.UserID,
			Role:       role,
			RejectedAt: time.Now().UTC(),
			Reason:     reason,
		})
		request.Status = models.PromotionStatusRejected
		request.UpdatedAt = time.Now().UTC()

		err = s.repo.UpdateLifecycle(ctx, request)
		if err == nil {
			s.logger.Info("promotion rejected", zap.String("request_id", id), zap.String("role", string(role)))
			return request, nil
		}
		if errors.Is(err, sql.ErrNoRows) && attempt < s.retries {
			continue
		}
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "request was updated concurrently, retry")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record rejection")
	}
}

// ResolveConflict marks one conflict resolved with the supplied outcome
// and appends a resolution record to the audit trail. Resolution does
// not touch production data; it only unblocks execution.
func (s *PromotionService) ResolveConflict(ctx context.Context, id, conflictID string, req dto.ResolveConflictRequest, actor *models.JWTClaims) (*models.PromotionRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if _, ok := models.ApproverRoleFor(actor.Role); !ok {
		return nil, appErrors.ErrForbidden
	}
	resolution, err := resolutionFromRequest(req)
	if err != nil {
		return nil, err
	}

	for attempt := 0; ; attempt++ {
		request, err := s.loadRequest(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := requireOrgApprover(actor, request.OrganizationID); err != nil {
			return nil, err
		}
		if request.Status.Terminal() || request.Status == models.PromotionStatusExecuting {
			return nil, appErrors.Clone(appErrors.ErrInvalidState,
				fmt.Sprintf("cannot resolve conflicts in status %q", request.Status))
		}

		found := false
		for i := range request.Conflicts {
			if request.Conflicts[i].ID != conflictID {
				continue
			}
			request.Conflicts[i].Resolved = true
			request.Conflicts[i].Resolution = &resolution
			found = true
			break
		}
		if !found {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("conflict %s not found", conflictID))
		}

		now := time.Now().UTC()
		request.ConflictResolutions = append(request.ConflictResolutions, models.ConflictResolutionRecord{
			ConflictID: conflictID,
			Resolution: resolution,
			ResolvedBy: actor.UserID,
			ResolvedAt: now,
		})
		request.UpdatedAt = now

		err = s.repo.UpdateLifecycle(ctx, request)
		if err == nil {
			s.logger.Info("conflict resolved",
				zap.String("request_id", id),
				zap.String("conflict_id", conflictID),
				zap.String("strategy", string(resolution.Strategy)),
			)
			return request, nil
		}
		if errors.Is(err, sql.ErrNoRows) && attempt < s.retries {
			continue
		}
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "request was updated concurrently, retry")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve conflict")
	}
}

func (s *PromotionService) loadRequest(ctx context.Context, id string) (*models.PromotionRequest, error) {
	request, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("promotion request %s not found", id))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load promotion request")
	}
	return request, nil
}

// requireOrgApprover allows superadmins everywhere and admins within
// their own organization.
func requireOrgApprover(actor *models.JWTClaims, organizationID string) error {
	if _, ok := models.ApproverRoleFor(actor.Role); !ok {
		return appErrors.ErrForbidden
	}
	if !actor.CanAccessOrganization(organizationID) {
		return appErrors.ErrForbidden
	}
	return nil
}

func validateCreateRequest(req dto.CreatePromotionRequest) error {
	if strings.TrimSpace(req.OrganizationID) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "organizationId is required")
	}
	if strings.TrimSpace(req.ResourceID) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "resourceId is required")
	}
	if strings.TrimSpace(req.ResourceName) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "resourceName is required")
	}
	if _, ok := models.CollectionFor(req.ResourceType); !ok {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported resource type %q", req.ResourceType))
	}
	if len(req.Changes) == 0 {
		return appErrors.Clone(appErrors.ErrValidation, "changes is required")
	}
	for _, change := range req.Changes {
		if strings.TrimSpace(change.Field) == "" {
			return appErrors.Clone(appErrors.ErrValidation, "every change requires a field name")
		}
	}
	return nil
}

func resolutionFromRequest(req dto.ResolveConflictRequest) (models.ConflictResolution, error) {
	switch req.Strategy {
	case models.ResolutionAcceptStaging, models.ResolutionKeepProduction:
		return models.ConflictResolution{Strategy: req.Strategy}, nil
	case models.ResolutionManual:
		if req.MergedValue == nil {
			return models.ConflictResolution{}, appErrors.Clone(appErrors.ErrValidation, "manual resolution requires mergedValue")
		}
		return models.ConflictResolution{Strategy: req.Strategy, MergedValue: req.MergedValue}, nil
	default:
		return models.ConflictResolution{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported resolution strategy %q", req.Strategy))
	}
}
