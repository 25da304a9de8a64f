package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrUnknownResolutionStrategy is returned when a strategy tag is not one of
// the supported strategies.
var ErrUnknownResolutionStrategy = errors.New("unknown resolution strategy")

// ResolutionStrategy selects how a conflict is resolved. The set is closed:
// decoding rejects unknown tags, and the resolver switches over the constants.
type ResolutionStrategy uint8

const (
	// StrategyUnspecified is the zero value; it is never valid on the wire.
	StrategyUnspecified ResolutionStrategy = iota
	StrategyLastWriteWins
	StrategyManual
	StrategyMerge
)

var strategyNames = map[ResolutionStrategy]string{
	StrategyLastWriteWins: "last_write_wins",
	StrategyManual:        "manual",
	StrategyMerge:         "merge",
}

// ParseResolutionStrategy converts a wire tag into a [ResolutionStrategy].
func ParseResolutionStrategy(s string) (ResolutionStrategy, error) {
	for strategy, name := range strategyNames {
		if name == s {
			return strategy, nil
		}
	}
	return StrategyUnspecified, fmt.Errorf("%w: %q", ErrUnknownResolutionStrategy, s)
}

// String returns the wire tag of the strategy.
func (s ResolutionStrategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return ""
}

// IsValid reports whether s is a concrete strategy.
func (s ResolutionStrategy) IsValid() bool {
	_, ok := strategyNames[s]
	return ok
}

// MarshalText implements encoding.TextMarshaler.
func (s ResolutionStrategy) MarshalText() ([]byte, error) {
	if s == StrategyUnspecified {
		return []byte{}, nil
	}
	if !s.IsValid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownResolutionStrategy, s)
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *ResolutionStrategy) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*s = StrategyUnspecified
		return nil
	}
	parsed, err := ParseResolutionStrategy(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ConflictMetadata is the audit metadata attached to a ledger entry.
type ConflictMetadata struct {
	ConflictReason string `json:"conflictReason"`
	AutoResolved   bool   `json:"autoResolved"`
}

// Conflict is a Conflict Ledger entry. It is created once when a conflict is
// detected and transitions to resolved exactly once.
type Conflict struct {
	ConflictID         string             `json:"conflictId"`
	OfflineClientID    string             `json:"offlineClientId,omitempty"`
	EntityType         EntityType         `json:"entityType"`
	EntityUUID         string             `json:"entityUuid"`
	LocalVersion       int64              `json:"localVersion"`
	ServerVersion      int64              `json:"serverVersion"`
	LocalData          json.RawMessage    `json:"localData,omitempty"`
	ServerData         json.RawMessage    `json:"serverData,omitempty"`
	ResolutionStrategy ResolutionStrategy `json:"resolutionStrategy"`
	IsResolved         bool               `json:"isResolved"`
	CreatedAt          time.Time          `json:"createdAt"`
	ResolvedAt         *time.Time         `json:"resolvedAt,omitempty"`
	ResolvedBy         string             `json:"resolvedBy,omitempty"`
	ResolvedData       json.RawMessage    `json:"resolvedData,omitempty"`
	ResolvedVersion    int64              `json:"resolvedVersion,omitempty"`
	ResolutionMetadata json.RawMessage    `json:"resolutionMetadata,omitempty"`
	Metadata           ConflictMetadata   `json:"metadata"`
}

// ConflictResolution is the terminal transition applied to a ledger entry.
type ConflictResolution struct {
	Strategy     ResolutionStrategy
	ResolvedAt   time.Time
	ResolvedBy   string
	ResolvedData json.RawMessage
	Version      int64
	AutoResolved bool
	Metadata     json.RawMessage
}

// ConflictFilter narrows ledger listings. A nil Resolved matches both states
// and an empty EntityUUIDs matches every entity.
type ConflictFilter struct {
	EntityUUID  string
	EntityUUIDs []string
	EntityType EntityType
	Resolved   *bool
	Limit      int
	Offset     int
}

// ConflictPage is one page of ledger entries.
type ConflictPage struct {
	Conflicts []Conflict `json:"conflicts"`
	Page      int        `json:"page"`
	Limit     int        `json:"limit"`
	Total     int        `json:"total"`
}

// ConflictStats aggregates the ledger.
type ConflictStats struct {
	Total            int                `json:"total"`
	Unresolved       int                `json:"unresolved"`
	AutoResolved     int                `json:"autoResolved"`
	ManuallyResolved int                `json:"manuallyResolved"`
	ByType           map[EntityType]int `json:"byType"`
	ResolutionRate   float64            `json:"resolutionRate"`
}
