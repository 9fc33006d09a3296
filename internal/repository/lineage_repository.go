package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/stageops/promotion-api/internal/models"
)

const lineageColumns = `id, document_id, collection, action, source, organization_id,
       performed_by, changes, promotion_request_id, previous_source, timestamp`

// LineageRepository appends and queries data lineage events. The table
// is append-only; no update or delete statements exist here.
type LineageRepository struct {
	db *sqlx.DB
}

// NewLineageRepository constructs the repository.
func NewLineageRepository(db *sqlx.DB) *LineageRepository {
	return &LineageRepository{db: db}
}

// Append inserts one lineage event.
func (r *LineageRepository) Append(ctx context.Context, event *models.DataLineageEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	const query = `INSERT INTO data_lineage
	(id, document_id, collection, action, source, organization_id,
	 performed_by, changes, promotion_request_id, previous_source, timestamp)
	VALUES (:id, :document_id, :collection, :action, :source, :organization_id,
	 :performed_by, :changes, :promotion_request_id, :previous_source, :timestamp)`
	if _, err := r.db.NamedExecContext(ctx, query, event); err != nil {
		return fmt.Errorf("append lineage event: %w", err)
	}
	return nil
}

// ListByDocument returns all events for one document, most recent first.
func (r *LineageRepository) ListByDocument(ctx context.Context, collection, documentID string) ([]models.DataLineageEvent, error) {
	query := `SELECT ` + lineageColumns + ` FROM data_lineage
	WHERE collection = $1 AND document_id = $2 ORDER BY timestamp DESC`
	var events []models.DataLineageEvent
	if err := r.db.SelectContext(ctx, &events, query, collection, documentID); err != nil {
		return nil, fmt.Errorf("list document lineage: %w", err)
	}
	return events, nil
}

// ListByOrganization returns events for an organization, most recent
// first, capped at the supplied limit to bound query cost.
func (r *LineageRepository) ListByOrganization(ctx context.Context, filter models.LineageFilter) ([]models.DataLineageEvent, error) {
	builder := strings.Builder{}
	args := []interface{}{filter.OrganizationID}
	builder.WriteString(`SELECT ` + lineageColumns + ` FROM data_lineage WHERE organization_id = $1`)

	if filter.Action != "" {
		args = append(args, filter.Action)
		builder.WriteString(fmt.Sprintf(" AND action = $%d", len(args)))
	}
	builder.WriteString(" ORDER BY timestamp DESC")

	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d", limit))

	var events []models.DataLineageEvent
	if err := r.db.SelectContext(ctx, &events, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list organization lineage: %w", err)
	}
	return events, nil
}
