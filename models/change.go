package models

import "encoding/json"

// EntityType is the kind of record a field device mutates.
type EntityType string

const (
	EntityTypeAssessment EntityType = "assessment"
	EntityTypeResponse   EntityType = "response"
	EntityTypeEntity     EntityType = "entity"
)

// EntityTypes lists every accepted entity type in wire order.
var EntityTypes = []EntityType{EntityTypeAssessment, EntityTypeResponse, EntityTypeEntity}

// IsValid reports whether t is one of the known entity types.
func (t EntityType) IsValid() bool {
	switch t {
	case EntityTypeAssessment, EntityTypeResponse, EntityTypeEntity:
		return true
	}
	return false
}

// Action is the mutation kind carried by a [Change] or a [SyncItem].
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// IsValid reports whether a is one of the known actions.
func (a Action) IsValid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// Change is a single client-originated mutation submitted in a push batch.
//
// OfflineClientID is generated on the device and stays the same across
// retries, so the server uses it (together with DeclaredVersion) as the
// idempotency key of the change.
type Change struct {
	EntityType EntityType `json:"entityType"`
	Action     Action     `json:"action"`

	// Payload is the opaque document written by the device.
	Payload json.RawMessage `json:"payload"`

	OfflineClientID string `json:"offlineClientId"`

	// DeclaredVersion is the entity version the device based its change on.
	// Creates declare 1.
	DeclaredVersion int64 `json:"declaredVersion"`

	EntityUUID string `json:"entityUuid"`
}

// PushRequest is the body of POST /api/sync/push.
type PushRequest struct {
	Changes []Change `json:"changes"`
}
