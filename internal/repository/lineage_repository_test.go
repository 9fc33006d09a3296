package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/stageops/promotion-api/internal/models"
)

func newLineageRepoMock(t *testing.T) (*LineageRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "sqlmock")
	cleanup := func() { _ = sqlxDB.Close() }
	return NewLineageRepository(sqlxDB), mock, cleanup
}

func lineageRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "document_id", "collection", "action", "source", "organization_id",
		"performed_by", "changes", "promotion_request_id", "previous_source", "timestamp",
	})
}

func TestLineageRepositoryAppendAssignsIdentity(t *testing.T) {
	repo, mock, cleanup := newLineageRepoMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO data_lineage")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	event := &models.DataLineageEvent{
		DocumentID:     "agent-1",
		Collection:     "conversations",
		Action:         models.LineageActionPromoted,
		Source:         models.EnvironmentProduction,
		OrganizationID: "org-1",
		PerformedBy:    "user-1",
	}
	err := repo.Append(context.Background(), event)
	require.NoError(t, err)
	require.NotEmpty(t, event.ID)
	require.False(t, event.Timestamp.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLineageRepositoryListByDocument(t *testing.T) {
	repo, mock, cleanup := newLineageRepoMock(t)
	defer cleanup()

	now := time.Now().UTC()
	rows := lineageRows().
		AddRow("evt-2", "agent-1", "conversations", "rolled-back", "production", "org-1",
			"user-1", []byte(`[]`), "req-1", "production", now).
		AddRow("evt-1", "agent-1", "conversations", "promoted", "production", "org-1",
			"user-1", []byte(`[{"field":"name","oldValue":"Old","newValue":"New"}]`), "req-1", "staging", now.Add(-time.Hour))

	mock.ExpectQuery(regexp.QuoteMeta("FROM data_lineage")).
		WithArgs("conversations", "agent-1").
		WillReturnRows(rows)

	events, err := repo.ListByDocument(context.Background(), "conversations", "agent-1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, models.LineageActionRolledBack, events[0].Action)
	require.Equal(t, "name", events[1].Changes[0].Field)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLineageRepositoryListByOrganizationWithAction(t *testing.T) {
	repo, mock, cleanup := newLineageRepoMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("organization_id = $1 AND action = $2")).
		WithArgs("org-1", "promoted").
		WillReturnRows(lineageRows())

	events, err := repo.ListByOrganization(context.Background(), models.LineageFilter{
		OrganizationID: "org-1",
		Action:         models.LineageActionPromoted,
		Limit:          100,
	})
	require.NoError(t, err)
	require.Empty(t, events)
	require.NoError(t, mock.ExpectationsWereMet())
}
