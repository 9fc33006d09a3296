package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stageops/promotion-api/internal/models"
	appErrors "github.com/stageops/promotion-api/pkg/errors"
)

type snapshotStoreStub struct {
	snapshots map[string]*models.PromotionSnapshot
}

func newSnapshotStoreStub() *snapshotStoreStub {
	return &snapshotStoreStub{snapshots: make(map[string]*models.PromotionSnapshot)}
}

func (s *snapshotStoreStub) Create(ctx context.Context, snapshot *models.PromotionSnapshot) error {
	if snapshot.ID == "" {
		snapshot.ID = "snap-1"
	}
	copy := *snapshot
	s.snapshots[snapshot.ID] = &copy
	return nil
}

func (s *snapshotStoreStub) GetByID(ctx context.Context, id string) (*models.PromotionSnapshot, error) {
	snapshot, ok := s.snapshots[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *snapshot
	return &copy, nil
}

type resourceStoreStub struct {
	resourceReaderStub
	deleted []string
}

func (r *resourceStoreStub) Put(ctx context.Context, doc *models.ResourceDocument) error {
	r.put(doc)
	return nil
}

func (r *resourceStoreStub) Delete(ctx context.Context, collection string, env models.Environment, resourceID string) error {
	key := resourceKey(collection, env, resourceID)
	delete(r.docs, key)
	r.deleted = append(r.deleted, key)
	return nil
}

func newResourceStoreStub() *resourceStoreStub {
	return &resourceStoreStub{resourceReaderStub: *newResourceReaderStub()}
}

func snapshotTestRequest() *models.PromotionRequest {
	return &models.PromotionRequest{
		ID:             "req-1",
		OrganizationID: "org-1",
		ResourceType:   models.ResourceTypeAgent,
		ResourceID:     "agent-1",
		Status:         models.PromotionStatusApprovedSuper,
	}
}

func TestSnapshotServiceCapturesProductionState(t *testing.T) {
	snapshots := newSnapshotStoreStub()
	resources := newResourceStoreStub()
	resources.put(&models.ResourceDocument{
		Collection:  models.CollectionConversations,
		Environment: models.EnvironmentProduction,
		ResourceID:  "agent-1",
		Data:        models.JSONMap{"name": "Agent A"},
		Version:     4,
	})
	svc := NewSnapshotService(snapshots, resources, 90*24*time.Hour, nil)

	snapshot, err := svc.CreateSnapshot(context.Background(), snapshotTestRequest())
	require.NoError(t, err)
	require.Equal(t, "req-1", snapshot.PromotionRequestID)
	require.Equal(t, "Agent A", snapshot.BeforeState.Data["name"])
	require.Equal(t, int64(4), snapshot.BeforeState.Version)
	require.WithinDuration(t, snapshot.CreatedAt.Add(90*24*time.Hour), snapshot.ExpiresAt, time.Second)
}

func TestSnapshotServiceCaptureDoesNotAliasLiveDocument(t *testing.T) {
	snapshots := newSnapshotStoreStub()
	resources := newResourceStoreStub()
	doc := &models.ResourceDocument{
		Collection:  models.CollectionConversations,
		Environment: models.EnvironmentProduction,
		ResourceID:  "agent-1",
		Data: models.JSONMap{
			"name":     "Agent A",
			"settings": map[string]interface{}{"temperature": 0.7},
		},
		Version: 4,
	}
	resources.put(doc)
	svc := NewSnapshotService(snapshots, resources, time.Hour, nil)

	snapshot, err := svc.CreateSnapshot(context.Background(), snapshotTestRequest())
	require.NoError(t, err)

	// Mutate the live document in place, as the executor's field merge
	// does right after capture. The snapshot must keep the prior state.
	doc.Data["name"] = "Agent B"
	doc.Data["settings"].(map[string]interface{})["temperature"] = 0.2

	require.Equal(t, "Agent A", snapshot.BeforeState.Data["name"])
	nested, ok := snapshot.BeforeState.Data["settings"].(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, 0.7, nested["temperature"])

	stored, err := snapshots.GetByID(context.Background(), snapshot.ID)
	require.NoError(t, err)
	require.Equal(t, "Agent A", stored.BeforeState.Data["name"])
}

func TestSnapshotServiceCapturesMissingProductionDoc(t *testing.T) {
	snapshots := newSnapshotStoreStub()
	resources := newResourceStoreStub()
	svc := NewSnapshotService(snapshots, resources, 0, nil)

	snapshot, err := svc.CreateSnapshot(context.Background(), snapshotTestRequest())
	require.NoError(t, err)
	require.Nil(t, snapshot.BeforeState.Data)
	require.Equal(t, int64(0), snapshot.BeforeState.Version)
}

func TestSnapshotServiceRollbackRestoresState(t *testing.T) {
	snapshots := newSnapshotStoreStub()
	resources := newResourceStoreStub()
	resources.put(&models.ResourceDocument{
		Collection:  models.CollectionConversations,
		Environment: models.EnvironmentProduction,
		ResourceID:  "agent-1",
		Data:        models.JSONMap{"name": "Agent A"},
		Version:     4,
	})
	svc := NewSnapshotService(snapshots, resources, time.Hour, nil)

	snapshot, err := svc.CreateSnapshot(context.Background(), snapshotTestRequest())
	require.NoError(t, err)

	// Simulate the promotion overwriting production.
	resources.put(&models.ResourceDocument{
		Collection:  models.CollectionConversations,
		Environment: models.EnvironmentProduction,
		ResourceID:  "agent-1",
		Data:        models.JSONMap{"name": "Agent B"},
		Version:     5,
	})

	_, err = svc.Rollback(context.Background(), snapshot.ID)
	require.NoError(t, err)

	restored, err := resources.Get(context.Background(), models.CollectionConversations, models.EnvironmentProduction, "agent-1")
	require.NoError(t, err)
	require.Equal(t, "Agent A", restored.Data["name"])
	require.Equal(t, int64(4), restored.Version)
	require.Equal(t, string(models.EnvironmentProduction), restored.Data[models.FieldLastModifiedIn])
}

func TestSnapshotServiceRollbackDeletesWhenResourceWasAbsent(t *testing.T) {
	snapshots := newSnapshotStoreStub()
	resources := newResourceStoreStub()
	svc := NewSnapshotService(snapshots, resources, time.Hour, nil)

	snapshot, err := svc.CreateSnapshot(context.Background(), snapshotTestRequest())
	require.NoError(t, err)

	// The promotion created the resource in production.
	resources.put(&models.ResourceDocument{
		Collection:  models.CollectionConversations,
		Environment: models.EnvironmentProduction,
		ResourceID:  "agent-1",
		Data:        models.JSONMap{"name": "Agent B"},
		Version:     1,
	})

	_, err = svc.Rollback(context.Background(), snapshot.ID)
	require.NoError(t, err)

	_, err = resources.Get(context.Background(), models.CollectionConversations, models.EnvironmentProduction, "agent-1")
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestSnapshotServiceRollbackRefusesExpired(t *testing.T) {
	snapshots := newSnapshotStoreStub()
	resources := newResourceStoreStub()
	svc := NewSnapshotService(snapshots, resources, time.Hour, nil)

	snapshot := &models.PromotionSnapshot{
		ID:                 "snap-old",
		PromotionRequestID: "req-1",
		BeforeState: models.BeforeState{
			ResourceID:   "agent-1",
			ResourceType: models.ResourceTypeAgent,
			Data:         models.JSONMap{"name": "Agent A"},
			Version:      4,
		},
		CreatedAt: time.Now().UTC().Add(-91 * 24 * time.Hour),
		ExpiresAt: time.Now().UTC().Add(-24 * time.Hour),
	}
	require.NoError(t, snapshots.Create(context.Background(), snapshot))

	resources.put(&models.ResourceDocument{
		Collection:  models.CollectionConversations,
		Environment: models.EnvironmentProduction,
		ResourceID:  "agent-1",
		Data:        models.JSONMap{"name": "Agent B"},
		Version:     5,
	})

	_, err := svc.Rollback(context.Background(), "snap-old")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrSnapshotExpired.Code, appErrors.FromError(err).Code)

	// Refusal must leave production untouched.
	doc, err := resources.Get(context.Background(), models.CollectionConversations, models.EnvironmentProduction, "agent-1")
	require.NoError(t, err)
	require.Equal(t, "Agent B", doc.Data["name"])
}

func TestSnapshotServiceRollbackUnknownSnapshot(t *testing.T) {
	svc := NewSnapshotService(newSnapshotStoreStub(), newResourceStoreStub(), time.Hour, nil)

	_, err := svc.Rollback(context.Background(), "snap-missing")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
