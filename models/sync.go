package models

import (
	"encoding/json"
	"time"
)

// SyncStatus is the per-item outcome of a push.
type SyncStatus string

const (
	SyncStatusSuccess  SyncStatus = "success"
	SyncStatusConflict SyncStatus = "conflict"
	SyncStatusFailed   SyncStatus = "failed"
)

// SyncResult is returned for every submitted [Change], in request order.
type SyncResult struct {
	OfflineClientID string        `json:"offlineClientId"`
	ServerID        string        `json:"serverId,omitempty"`
	Status          SyncStatus    `json:"status"`
	Message         string        `json:"message,omitempty"`
	ConflictData    *ConflictData `json:"conflictData,omitempty"`
}

// ConflictData describes the server side of a detected conflict so that the
// device can present it for resolution.
type ConflictData struct {
	ConflictID    string          `json:"conflictId"`
	LocalVersion  int64           `json:"localVersion"`
	ServerVersion int64           `json:"serverVersion"`
	ServerData    json.RawMessage `json:"serverData,omitempty"`
	Reason        string          `json:"reason"`
	AutoResolved  bool            `json:"autoResolved"`

	// ResolvedVersion is set when the conflict was resolved automatically.
	ResolvedVersion int64 `json:"resolvedVersion,omitempty"`
}

// SyncItem is a single entry of the change feed.
//
// ID identifies the applied change, not the entity: the same entity shows up
// once per mutation. Clients de-duplicate by ID.
type SyncItem struct {
	ID           string          `json:"id"`
	EntityType   EntityType      `json:"entityType"`
	EntityUUID   string          `json:"entityUuid"`
	Payload      json.RawMessage `json:"payload"`
	Version      int64           `json:"version"`
	LastModified time.Time       `json:"lastModified"`
	Action       Action          `json:"action"`
	CreatedBy    string          `json:"createdBy"`
	UpdatedBy    string          `json:"updatedBy"`
}

// PullRequest carries the parameters of GET /api/sync/pull.
type PullRequest struct {
	UserID            string
	LastSyncTimestamp *time.Time
	EntityIDs         []string
	EntityTypes       []EntityType
	Limit             int
}

// PullResponse is one page of the change feed.
type PullResponse struct {
	Items         []SyncItem `json:"items"`
	HasMore       bool       `json:"hasMore"`
	NextTimestamp time.Time  `json:"nextTimestamp"`
	TotalCount    int        `json:"totalCount"`
}

// FeedQuery is the storage-level filter of the change feed.
type FeedQuery struct {
	Since       time.Time
	EntityUUIDs []string
	EntityTypes []EntityType
	Limit       int
}
