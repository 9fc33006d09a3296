package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/stageops/promotion-api/internal/models"
)

// ResourceRepository is the document store backing promoted resources.
// Each row is one environment's copy of a document, addressed by
// (collection, environment, resource id).
type ResourceRepository struct {
	db *sqlx.DB
}

// NewResourceRepository constructs the repository.
func NewResourceRepository(db *sqlx.DB) *ResourceRepository {
	return &ResourceRepository{db: db}
}

// Get fetches one document. Callers receive sql.ErrNoRows when the
// document does not exist in the requested environment.
func (r *ResourceRepository) Get(ctx context.Context, collection string, env models.Environment, resourceID string) (*models.ResourceDocument, error) {
	const query = `SELECT collection, environment, resource_id, data, version, created_at, updated_at
	FROM resources WHERE collection = $1 AND environment = $2 AND resource_id = $3`
	var doc models.ResourceDocument
	if err := r.db.GetContext(ctx, &doc, query, collection, env, resourceID); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Put writes a full document, replacing any existing copy. Used by
// snapshot rollback to restore the captured state verbatim.
func (r *ResourceRepository) Put(ctx context.Context, doc *models.ResourceDocument) error {
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = doc.CreatedAt
	}
	const query = `INSERT INTO resources (collection, environment, resource_id, data, version, created_at, updated_at)
	VALUES (:collection, :environment, :resource_id, :data, :version, :created_at, :updated_at)
	ON CONFLICT (collection, environment, resource_id)
	DO UPDATE SET data = EXCLUDED.data, version = EXCLUDED.version, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, doc); err != nil {
		return fmt.Errorf("put resource document: %w", err)
	}
	return nil
}

// ApplyFields merges the given fields into an existing document in one
// statement, bumping its version. The document must already exist;
// promoting onto a missing production document is an execution failure.
func (r *ResourceRepository) ApplyFields(ctx context.Context, collection string, env models.Environment, resourceID string, fields models.JSONMap, at time.Time) (int64, error) {
	payload, err := json.Marshal(fields)
	if err != nil {
		return 0, fmt.Errorf("marshal resource fields: %w", err)
	}
	const query = `UPDATE resources
	SET data = data || $4::jsonb, version = version + 1, updated_at = $5
	WHERE collection = $1 AND environment = $2 AND resource_id = $3
	RETURNING version`
	var version int64
	if err := r.db.GetContext(ctx, &version, query, collection, env, resourceID, payload, at); err != nil {
		return 0, err
	}
	return version, nil
}

// Delete removes a document. Rollback uses this when the captured
// before-state records that the resource did not exist.
func (r *ResourceRepository) Delete(ctx context.Context, collection string, env models.Environment, resourceID string) error {
	const query = `DELETE FROM resources WHERE collection = $1 AND environment = $2 AND resource_id = $3`
	if _, err := r.db.ExecContext(ctx, query, collection, env, resourceID); err != nil {
		return fmt.Errorf("delete resource document: %w", err)
	}
	return nil
}
