package models

import (
	"encoding/json"
	"time"
)

// Resolution is a caller's request to resolve one ledger entry.
type Resolution struct {
	ConflictID         string             `json:"conflictId"`
	ResolutionStrategy ResolutionStrategy `json:"resolutionStrategy"`
	ResolvedData       json.RawMessage    `json:"resolvedData,omitempty"`
	EntityType         EntityType         `json:"entityType"`
	EntityUUID         string             `json:"entityUuid"`
	Metadata           json.RawMessage    `json:"metadata,omitempty"`
}

// ResolutionBatch is the plural form of the resolve request body.
type ResolutionBatch struct {
	Resolutions []Resolution `json:"resolutions"`
}

// ResolutionStatus is the outcome of a resolve call.
type ResolutionStatus string

const (
	ResolutionStatusResolved        ResolutionStatus = "resolved"
	ResolutionStatusAlreadyResolved ResolutionStatus = "already_resolved"
	ResolutionStatusFailed          ResolutionStatus = "failed"
)

// ResolutionResult is returned for every submitted [Resolution].
type ResolutionResult struct {
	ConflictID         string             `json:"conflictId"`
	Status             ResolutionStatus   `json:"status"`
	Message            string             `json:"message,omitempty"`
	ResolutionStrategy ResolutionStrategy `json:"resolutionStrategy,omitempty"`
	ResolvedData       json.RawMessage    `json:"resolvedData,omitempty"`
	ResolvedVersion    int64              `json:"resolvedVersion,omitempty"`
	ResolvedAt         *time.Time         `json:"resolvedAt,omitempty"`
	ResolvedBy         string             `json:"resolvedBy,omitempty"`
}
