package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stageops/promotion-api/internal/models"
)

func TestDetectConflictsVersionsMatch(t *testing.T) {
	now := time.Now().UTC()
	staging := models.JSONMap{
		"name":              "Support Agent",
		"productionVersion": int64(4),
		"version":           int64(7),
	}
	production := models.JSONMap{
		"name":    "Old Agent",
		"version": int64(4),
	}

	conflicts := DetectConflicts(staging, production, now)
	require.Empty(t, conflicts)
}

func TestDetectConflictsSingleDivergentField(t *testing.T) {
	now := time.Now().UTC()
	staging := models.JSONMap{
		"name":              "Support Agent",
		"temperature":       0.7,
		"productionVersion": int64(4),
		"version":           int64(7),
		"updatedAt":         "2026-01-02T00:00:00Z",
	}
	production := models.JSONMap{
		"name":        "Renamed In Production",
		"temperature": 0.7,
		"version":     int64(6),
		"updatedAt":   "2026-01-03T00:00:00Z",
	}

	conflicts := DetectConflicts(staging, production, now)
	require.Len(t, conflicts, 1)
	require.Equal(t, "name", conflicts[0].Field)
	require.Equal(t, "Support Agent", conflicts[0].StagingValue)
	require.Equal(t, "Renamed In Production", conflicts[0].ProductionValue)
	require.Equal(t, int64(6), conflicts[0].ProductionVersion)
	require.False(t, conflicts[0].Resolved)
	require.Contains(t, conflicts[0].ID, "conflict-name-")
}

func TestDetectConflictsSkipsMetadataFields(t *testing.T) {
	now := time.Now().UTC()
	staging := models.JSONMap{
		"id":                "agent-1",
		"createdAt":         "2025-01-01T00:00:00Z",
		"updatedAt":         "2026-01-02T00:00:00Z",
		"source":            "staging",
		"productionVersion": int64(1),
		"version":           int64(3),
	}
	production := models.JSONMap{
		"id":        "agent-1-prod",
		"createdAt": "2025-06-01T00:00:00Z",
		"updatedAt": "2026-02-02T00:00:00Z",
		"source":    "production",
		"version":   int64(2),
	}

	conflicts := DetectConflicts(staging, production, now)
	require.Empty(t, conflicts)
}

func TestDetectConflictsNestedValue(t *testing.T) {
	now := time.Now().UTC()
	staging := models.JSONMap{
		"settings":          map[string]interface{}{"model": "large", "depth": 2},
		"productionVersion": int64(1),
	}
	production := models.JSONMap{
		"settings": map[string]interface{}{"model": "large", "depth": 3},
		"version":  int64(5),
	}

	conflicts := DetectConflicts(staging, production, now)
	require.Len(t, conflicts, 1)
	require.Equal(t, "settings", conflicts[0].Field)
}

func TestDetectConflictsFieldMissingInProduction(t *testing.T) {
	now := time.Now().UTC()
	staging := models.JSONMap{
		"greeting":          "hello",
		"productionVersion": int64(1),
	}
	production := models.JSONMap{
		"version": int64(2),
	}

	conflicts := DetectConflicts(staging, production, now)
	require.Len(t, conflicts, 1)
	require.Equal(t, "greeting", conflicts[0].Field)
	require.Nil(t, conflicts[0].ProductionValue)
}

func TestDetectConflictsEquivalentNumericEncodings(t *testing.T) {
	now := time.Now().UTC()
	staging := models.JSONMap{
		"maxTokens":         float64(2048),
		"productionVersion": int64(3),
	}
	production := models.JSONMap{
		"maxTokens": 2048,
		"version":   int64(9),
	}

	conflicts := DetectConflicts(staging, production, now)
	require.Empty(t, conflicts)
}
