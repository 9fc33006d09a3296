package service

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/stageops/promotion-api/internal/models"
)

// Document metadata excluded from field comparison. productionVersion is
// the staging side's branch marker and compares against the version
// column, not against a production field.
var conflictMetadataFields = map[string]struct{}{
	"id":                {},
	"createdAt":         {},
	"updatedAt":         {},
	"version":           {},
	"source":            {},
	"productionVersion": {},
}

// DetectConflicts compares a staged document against the current
// production document. The staging document records the production
// version it was branched from; when that still matches production's
// actual version there is nothing to conflict with. When production has
// moved, every non-metadata staging field whose value structurally
// differs from production is reported.
//
// This is a shallow per-field diff: a difference anywhere inside a
// nested value flags the whole field.
func DetectConflicts(stagingDoc, productionDoc models.JSONMap, now time.Time) models.ConflictList {
	stagingProdVersion := numberField(stagingDoc, models.FieldProductionVersion)
	actualProdVersion := numberField(productionDoc, "version")

	if stagingProdVersion == actualProdVersion {
		return nil
	}

	var conflicts models.ConflictList
	for field, stagingValue := range stagingDoc {
		if _, skip := conflictMetadataFields[field]; skip {
			continue
		}
		productionValue := productionDoc[field]
		if structurallyEqual(stagingValue, productionValue) {
			continue
		}
		conflicts = append(conflicts, models.Conflict{
			ID:                fmt.Sprintf("conflict-%s-%d", field, now.UnixMilli()),
			Field:             field,
			StagingValue:      stagingValue,
			ProductionValue:   productionValue,
			StagingVersion:    numberField(stagingDoc, "version"),
			ProductionVersion: actualProdVersion,
			DetectedAt:        now,
			Resolved:          false,
		})
	}
	return conflicts
}

// structurallyEqual compares two document values through their canonical
// JSON encoding, so 2 and 2.0 agree the way the store stores them.
func structurallyEqual(a, b interface{}) bool {
	rawA, errA := json.Marshal(a)
	rawB, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(rawA) == string(rawB)
}

func numberField(doc models.JSONMap, key string) int64 {
	switch v := doc[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}
