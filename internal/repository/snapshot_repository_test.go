package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/stageops/promotion-api/internal/models"
)

func newSnapshotRepoMock(t *testing.T) (*SnapshotRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "sqlmock")
	cleanup := func() { _ = sqlxDB.Close() }
	return NewSnapshotRepository(sqlxDB), mock, cleanup
}

func TestSnapshotRepositoryCreateAssignsIdentity(t *testing.T) {
	repo, mock, cleanup := newSnapshotRepoMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO promotion_snapshots")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	snapshot := &models.PromotionSnapshot{
		PromotionRequestID: "req-1",
		OrganizationID:     "org-1",
		BeforeState: models.BeforeState{
			ResourceID:   "agent-1",
			ResourceType: models.ResourceTypeAgent,
			Data:         models.JSONMap{"name": "Support Agent"},
			Version:      3,
		},
		ExpiresAt: time.Now().UTC().Add(90 * 24 * time.Hour),
	}
	err := repo.Create(context.Background(), snapshot)
	require.NoError(t, err)
	require.NotEmpty(t, snapshot.ID)
	require.False(t, snapshot.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshotRepositoryGetByID(t *testing.T) {
	repo, mock, cleanup := newSnapshotRepoMock(t)
	defer cleanup()

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "promotion_request_id", "organization_id", "before_state", "created_at", "expires_at",
	}).AddRow("snap-1", "req-1", "org-1",
		[]byte(`{"resourceId":"agent-1","resourceType":"agent","data":{"name":"Support Agent"},"version":3}`),
		now, now.Add(90*24*time.Hour))

	mock.ExpectQuery(regexp.QuoteMeta("FROM promotion_snapshots")).
		WithArgs("snap-1").
		WillReturnRows(rows)

	snapshot, err := repo.GetByID(context.Background(), "snap-1")
	require.NoError(t, err)
	require.Equal(t, "agent-1", snapshot.BeforeState.ResourceID)
	require.EqualValues(t, 3, snapshot.BeforeState.Version)
	require.False(t, snapshot.Expired(now))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshotRepositoryGetByIDNotFound(t *testing.T) {
	repo, mock, cleanup := newSnapshotRepoMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("FROM promotion_snapshots")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetByID(context.Background(), "missing")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}
