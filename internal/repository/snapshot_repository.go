package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/stageops/promotion-api/internal/models"
)

// SnapshotRepository persists pre-promotion snapshots. Rows are written
// once and never updated; expiry is enforced at read time.
type SnapshotRepository struct {
	db *sqlx.DB
}

// NewSnapshotRepository constructs the repository.
func NewSnapshotRepository(db *sqlx.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Create inserts a snapshot row.
func (r *SnapshotRepository) Create(ctx context.Context, snapshot *models.PromotionSnapshot) error {
	if snapshot.ID == "" {
		snapshot.ID = uuid.NewString()
	}
	if snapshot.CreatedAt.IsZero() {
		snapshot.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO promotion_snapshots
	(id, promotion_request_id, organization_id, before_state, created_at, expires_at)
	VALUES (:id, :promotion_request_id, :organization_id, :before_state, :created_at, :expires_at)`
	if _, err := r.db.NamedExecContext(ctx, query, snapshot); err != nil {
		return fmt.Errorf("create promotion snapshot: %w", err)
	}
	return nil
}

// GetByID fetches a snapshot by identifier.
func (r *SnapshotRepository) GetByID(ctx context.Context, id string) (*models.PromotionSnapshot, error) {
	const query = `SELECT id, promotion_request_id, organization_id, before_state, created_at, expires_at
	FROM promotion_snapshots WHERE id = $1`
	var snapshot models.PromotionSnapshot
	if err := r.db.GetContext(ctx, &snapshot, query, id); err != nil {
		return nil, err
	}
	return &snapshot, nil
}
