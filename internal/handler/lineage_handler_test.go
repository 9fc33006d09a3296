package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stageops/promotion-api/internal/dto"
	"github.com/stageops/promotion-api/internal/middleware"
	"github.com/stageops/promotion-api/internal/models"
)

type lineageServiceMock struct {
	docResp    []models.DataLineageEvent
	docErr     error
	orgResp    []models.DataLineageEvent
	orgErr     error
	lastColl   string
	lastDocID  string
	lastOrgID  string
	lastQuery  dto.LineageQuery
	docCalled  bool
	orgCalled  bool
}

func (m *lineageServiceMock) DocumentLineage(ctx context.Context, collection, documentID string, actor *models.JWTClaims) ([]models.DataLineageEvent, error) {
	m.docCalled = true
	m.lastColl = collection
	m.lastDocID = documentID
	return m.docResp, m.docErr
}

func (m *lineageServiceMock) OrganizationLineage(ctx context.Context, organizationID string, query dto.LineageQuery, actor *models.JWTClaims) ([]models.DataLineageEvent, error) {
	m.orgCalled = true
	m.lastOrgID = organizationID
	m.lastQuery = query
	return m.orgResp, m.orgErr
}

func newLineageTestContext(t *testing.T, target string) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, err := http.NewRequest(http.MethodGet, target, nil)
	require.NoError(t, err)
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{
		UserID:         "admin-1",
		Role:           models.RoleAdmin,
		OrganizationID: "org-1",
	})
	return c, w
}

func TestLineageHandlerDocument(t *testing.T) {
	mockSvc := &lineageServiceMock{
		docResp: []models.DataLineageEvent{{ID: "evt-1", Action: models.LineageActionPromoted}},
	}
	handler := NewLineageHandler(mockSvc)

	c, w := newLineageTestContext(t, "/lineage/conversations/agent-1")
	c.Params = gin.Params{
		{Key: "collection", Value: "conversations"},
		{Key: "id", Value: "agent-1"},
	}

	handler.Document(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, mockSvc.docCalled)
	assert.Equal(t, "conversations", mockSvc.lastColl)
	assert.Equal(t, "agent-1", mockSvc.lastDocID)
}

func TestLineageHandlerOrganizationParsesWindow(t *testing.T) {
	mockSvc := &lineageServiceMock{}
	handler := NewLineageHandler(mockSvc)

	c, w := newLineageTestContext(t,
		"/lineage/organizations/org-1?action=promoted&startDate=2026-08-01T00:00:00Z&endDate=2026-08-31T00:00:00Z")
	c.Params = gin.Params{{Key: "orgId", Value: "org-1"}}

	handler.Organization(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "org-1", mockSvc.lastOrgID)
	assert.Equal(t, models.LineageActionPromoted, mockSvc.lastQuery.Action)
	require.NotNil(t, mockSvc.lastQuery.StartDate)
	assert.Equal(t, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), mockSvc.lastQuery.StartDate.UTC())
}

func TestLineageHandlerOrganizationRejectsBadDate(t *testing.T) {
	mockSvc := &lineageServiceMock{}
	handler := NewLineageHandler(mockSvc)

	c, w := newLineageTestContext(t, "/lineage/organizations/org-1?startDate=yesterday")
	c.Params = gin.Params{{Key: "orgId", Value: "org-1"}}

	handler.Organization(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, mockSvc.orgCalled)
}
