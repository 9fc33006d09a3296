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

func newResourceRepoMock(t *testing.T) (*ResourceRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "sqlmock")
	cleanup := func() { _ = sqlxDB.Close() }
	return NewResourceRepository(sqlxDB), mock, cleanup
}

func TestResourceRepositoryGet(t *testing.T) {
	repo, mock, cleanup := newResourceRepoMock(t)
	defer cleanup()

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"collection", "environment", "resource_id", "data", "version", "created_at", "updated_at",
	}).AddRow("conversations", "production", "agent-1",
		[]byte(`{"name":"Support Agent","version":3}`), int64(3), now, now)

	mock.ExpectQuery(regexp.QuoteMeta("FROM resources")).
		WithArgs("conversations", "production", "agent-1").
		WillReturnRows(rows)

	doc, err := repo.Get(context.Background(), "conversations", models.EnvironmentProduction, "agent-1")
	require.NoError(t, err)
	require.Equal(t, "Support Agent", doc.Data["name"])
	require.EqualValues(t, 3, doc.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResourceRepositoryGetMissing(t *testing.T) {
	repo, mock, cleanup := newResourceRepoMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("FROM resources")).
		WithArgs("conversations", "production", "ghost").
		WillReturnRows(sqlmock.NewRows([]string{"collection"}))

	_, err := repo.Get(context.Background(), "conversations", models.EnvironmentProduction, "ghost")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResourceRepositoryApplyFieldsReturnsNewVersion(t *testing.T) {
	repo, mock, cleanup := newResourceRepoMock(t)
	defer cleanup()

	rows := sqlmock.NewRows([]string{"version"}).AddRow(int64(4))
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE resources")).
		WillReturnRows(rows)

	version, err := repo.ApplyFields(context.Background(), "conversations",
		models.EnvironmentProduction, "agent-1",
		models.JSONMap{"name": "Renamed Agent"}, time.Now().UTC())
	require.NoError(t, err)
	require.EqualValues(t, 4, version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResourceRepositoryApplyFieldsMissingDocument(t *testing.T) {
	repo, mock, cleanup := newResourceRepoMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE resources")).
		WillReturnRows(sqlmock.NewRows([]string{"version"}))

	_, err := repo.ApplyFields(context.Background(), "conversations",
		models.EnvironmentProduction, "ghost",
		models.JSONMap{"name": "Renamed Agent"}, time.Now().UTC())
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResourceRepositoryPutFillsTimestamps(t *testing.T) {
	repo, mock, cleanup := newResourceRepoMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO resources")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	doc := &models.ResourceDocument{
		Collection:  "conversations",
		Environment: models.EnvironmentProduction,
		ResourceID:  "agent-1",
		Data:        models.JSONMap{"name": "Support Agent"},
		Version:     1,
	}
	err := repo.Put(context.Background(), doc)
	require.NoError(t, err)
	require.False(t, doc.CreatedAt.IsZero())
	require.Equal(t, doc.CreatedAt, doc.UpdatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResourceRepositoryDelete(t *testing.T) {
	repo, mock, cleanup := newResourceRepoMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM resources")).
		WithArgs("conversations", "production", "agent-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Delete(context.Background(), "conversations", models.EnvironmentProduction, "agent-1")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
