package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/stageops/promotion-api/internal/models"
)

const promotionColumns = `id, organization_id, resource_type, resource_id, resource_name,
       source_environment, destination_environment, changes, status,
       approvals, rejections, conflicts, conflict_resolutions,
       executed_at, executed_by, execution_result,
       requested_by, requested_at, created_at, updated_at, record_version`

// PromotionRepository persists promotion requests.
type PromotionRepository struct {
	db *sqlx.DB
}

// NewPromotionRepository constructs the repository.
func NewPromotionRepository(db *sqlx.DB) *PromotionRepository {
	return &PromotionRepository{db: db}
}

// Create inserts a new promotion request row.
func (r *PromotionRepository) Create(ctx context.Context, request *models.PromotionRequest) error {
	now := time.Now().UTC()
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	if request.Status == "" {
		request.Status = models.PromotionStatusPending
	}
	if request.SourceEnvironment == "" {
		request.SourceEnvironment = models.EnvironmentStaging
	}
	if request.DestinationEnvironment == "" {
		request.DestinationEnvironment = models.EnvironmentProduction
	}
	if request.RequestedAt.IsZero() {
		request.RequestedAt = now
	}
	if request.CreatedAt.IsZero() {
		request.CreatedAt = now
	}
	request.UpdatedAt = request.CreatedAt
	request.RecordVersion = 1

	const query = `INSERT INTO promotion_requests
	(id, organization_id, resource_type, resource_id, resource_name,
	 source_environment, destination_environment, changes, status,
	 approvals, rejections, conflicts, conflict_resolutions,
	 requested_by, requested_at, created_at, updated_at, record_version)
	VALUES (:id, :organization_id, :resource_type, :resource_id, :resource_name,
	 :source_environment, :destination_environment, :changes, :status,
	 :approvals, :rejections, :conflicts, :conflict_resolutions,
	 :requested_by, :requested_at, :created_at, :updated_at, :record_version)`
	if _, err := r.db.NamedExecContext(ctx, query, request); err != nil {
		return fmt.Errorf("create promotion request: %w", err)
	}
	return nil
}

// GetByID fetches a promotion request by identifier.
func (r *PromotionRepository) GetByID(ctx context.Context, id string) (*models.PromotionRequest, error) {
	query := `SELECT ` + promotionColumns + ` FROM promotion_requests WHERE id = $1`
	var request models.PromotionRequest
	if err := r.db.GetContext(ctx, &request, query, id); err != nil {
		return nil, err
	}
	return &request, nil
}

// List returns promotion requests matching the filter (newest first).
func (r *PromotionRepository) List(ctx context.Context, filter models.PromotionFilter) ([]models.PromotionRequest, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 6)
	builder.WriteString(`SELECT ` + promotionColumns + ` FROM promotion_requests`)

	conditions := make([]string, 0, 4)
	if filter.OrganizationID != "" {
		args = append(args, filter.OrganizationID)
		conditions = append(conditions, fmt.Sprintf("organization_id = $%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.ResourceType != "" {
		args = append(args, filter.ResourceType)
		conditions = append(conditions, fmt.Sprintf("resource_type = $%d", len(args)))
	}
	if filter.RequestedBy != "" {
		args = append(args, filter.RequestedBy)
		conditions = append(conditions, fmt.Sprintf("requested_by = $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY created_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var requests []models.PromotionRequest
	if err := r.db.SelectContext(ctx, &requests, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list promotion requests: %w", err)
	}
	return requests, nil
}

// UpdateLifecycle persists the approval/rejection/conflict state of a
// request guarded by its record version. Concurrent writers lose the
// race and observe sql.ErrNoRows; callers re-read and retry.
func (r *PromotionRepository) UpdateLifecycle(ctx context.Context, request *models.PromotionRequest) error {
	const query = `UPDATE promotion_requests
	SET status = :status,
	    approvals = :approvals,
	    rejections = :rejections,
	    conflicts = :conflicts,
	    conflict_resolutions = :conflict_resolutions,
	    updated_at = :updated_at,
	    record_version = record_version + 1
	WHERE id = :id AND record_version = :record_version`
	result, err := r.db.NamedExecContext(ctx, query, request)
	if err != nil {
		return fmt.Errorf("update promotion lifecycle: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check promotion lifecycle rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	request.RecordVersion++
	return nil
}

// TransitionStatus performs a compare-and-set status change. The update
// applies only when the stored status still equals from; otherwise
// sql.ErrNoRows is returned and no mutation occurs. This is the guard
// that keeps two concurrent execute calls from both entering execution.
func (r *PromotionRepository) TransitionStatus(ctx context.Context, id string, from, to models.PromotionStatus, at time.Time) error {
	const query = `UPDATE promotion_requests
	SET status = $3, updated_at = $4, record_version = record_version + 1
	WHERE id = $1 AND status = $2`
	result, err := r.db.ExecContext(ctx, query, id, from, to, at)
	if err != nil {
		return fmt.Errorf("transition promotion status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check promotion transition rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ExecutionOutcomeParams groups the terminal bookkeeping of an
// execution attempt.
type ExecutionOutcomeParams struct {
	ID         string
	Status     models.PromotionStatus
	ExecutedAt time.Time
	ExecutedBy string
	Result     models.ExecutionResult
}

// RecordExecutionOutcome stamps the terminal status and execution result
// onto a request after an execution attempt.
func (r *PromotionRepository) RecordExecutionOutcome(ctx context.Context, params ExecutionOutcomeParams) error {
	const query = `UPDATE promotion_requests
	SET status = :status,
	    executed_at = :executed_at,
	    executed_by = :executed_by,
	    execution_result = :execution_result,
	    updated_at = :executed_at,
	    record_version = record_version + 1
	WHERE id = :id`
	result, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"id":               params.ID,
		"status":           params.Status,
		"executed_at":      params.ExecutedAt,
		"executed_by":      params.ExecutedBy,
		"execution_result": models.NullExecutionResult{Result: &params.Result},
	})
	if err != nil {
		return fmt.Errorf("record execution outcome: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check execution outcome rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
