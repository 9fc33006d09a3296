package models

import "time"

// ResourceType enumerates the kinds of resources a promotion may target.
type ResourceType string

const (
	ResourceTypeAgent         ResourceType = "agent"
	ResourceTypeConversation  ResourceType = "conversation"
	ResourceTypeContextSource ResourceType = "context_source"
	ResourceTypeUser          ResourceType = "user"
)

// Collection names backing each resource type. Agents live in the
// conversations collection alongside the conversations they drive.
const (
	CollectionConversations  = "conversations"
	CollectionContextSources = "context_sources"
	CollectionUsers          = "users"
)

var collectionByResourceType = map[ResourceType]string{
	ResourceTypeAgent:         CollectionConversations,
	ResourceTypeConversation:  CollectionConversations,
	ResourceTypeContextSource: CollectionContextSources,
	ResourceTypeUser:          CollectionUsers,
}

// CollectionFor maps a resource type to its backing collection.
func CollectionFor(t ResourceType) (string, bool) {
	collection, ok := collectionByResourceType[t]
	return collection, ok
}

// Document metadata keys excluded from conflict detection and keys the
// executor stamps onto promoted documents.
const (
	FieldProductionVersion = "productionVersion"
	FieldLastModifiedIn    = "lastModifiedIn"
	FieldPromotedFrom      = "promotedFromStaging"
	FieldPromotedAt        = "promotedAt"
	FieldStagingID         = "stagingId"
)

// ResourceDocument is one environment's copy of a stored resource.
type ResourceDocument struct {
	Collection  string      `db:"collection" json:"collection"`
	Environment Environment `db:"environment" json:"environment"`
	ResourceID  string      `db:"resource_id" json:"resourceId"`
	Data        JSONMap     `db:"data" json:"data"`
	Version     int64       `db:"version" json:"version"`
	CreatedAt   time.Time   `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time   `db:"updated_at" json:"updatedAt"`
}
