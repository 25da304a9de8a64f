package models

import (
	"encoding/json"
	"time"
)

// OutboxStatus is the local state of a queued device change.
type OutboxStatus string

const (
	OutboxStatusPending  OutboxStatus = "pending"
	OutboxStatusSynced   OutboxStatus = "synced"
	OutboxStatusConflict OutboxStatus = "conflict"
)

// OutboxEntry is a change recorded on a field device and waiting to be pushed.
type OutboxEntry struct {
	OfflineClientID string          `json:"offlineClientId"`
	EntityType      EntityType      `json:"entityType"`
	Action          Action          `json:"action"`
	EntityUUID      string          `json:"entityUuid"`
	DeclaredVersion int64           `json:"declaredVersion"`
	Payload         json.RawMessage `json:"payload"`
	Status          OutboxStatus    `json:"status"`
	Attempts        int             `json:"attempts"`
	LastError       string          `json:"lastError,omitempty"`
	ServerID        string          `json:"serverId,omitempty"`
	ConflictID      string          `json:"conflictId,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// Change converts the entry into its wire form.
func (e OutboxEntry) Change() Change {
	return Change{
		EntityType:      e.EntityType,
		Action:          e.Action,
		Payload:         e.Payload,
		OfflineClientID: e.OfflineClientID,
		DeclaredVersion: e.DeclaredVersion,
		EntityUUID:      e.EntityUUID,
	}
}
