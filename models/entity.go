package models

import (
	"encoding/json"
	"sort"
	"time"
)

// Entity is the authoritative server-side state of a synced record.
type Entity struct {
	ServerID   string          `json:"serverId"`
	EntityType EntityType      `json:"entityType"`
	EntityUUID string          `json:"entityUuid"`
	Payload    json.RawMessage `json:"payload"`
	Version    int64           `json:"version"`
	Deleted    bool            `json:"deleted"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
	CreatedBy  string          `json:"createdBy"`
	UpdatedBy  string          `json:"updatedBy"`
}

// EntityWrite is a single mutation handed to the change store.
//
// ExpectedVersion guards the write: the store only applies it while the
// stored version still equals ExpectedVersion (0 for creates). NextVersion is
// the version the entity carries afterwards.
type EntityWrite struct {
	ChangeID        string
	EntityType      EntityType
	EntityUUID      string
	Action          Action
	Payload         json.RawMessage
	ExpectedVersion int64
	NextVersion     int64
	UserID          string
	ModifiedAt      time.Time

	// OfflineClientID and DeclaredVersion are recorded as an idempotency
	// receipt. Server-originated writes leave OfflineClientID empty.
	OfflineClientID string
	DeclaredVersion int64
}

// AppliedChange is the undo record returned by the change store. Previous is
// nil when the write created the entity.
type AppliedChange struct {
	Write    EntityWrite
	Previous *Entity
}

// ChangeReceipt records that a device change was applied.
type ChangeReceipt struct {
	OfflineClientID string
	EntityUUID      string
	DeclaredVersion int64
	ChangeID        string
	ResultVersion   int64
	CreatedAt       time.Time
}

// EntitySet is a set of entity UUIDs.
type EntitySet map[string]struct{}

// NewEntitySet builds a set from ids.
func NewEntitySet(ids ...string) EntitySet {
	set := make(EntitySet, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// Contains reports whether id is in the set.
func (s EntitySet) Contains(id string) bool {
	_, ok := s[id]
	return ok
}

// IDs returns the members sorted ascending.
func (s EntitySet) IDs() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
