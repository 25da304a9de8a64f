package validators

import (
	"context"
	"strings"

	"github.com/bilzee/dms-sync/models"
)

// Field names used for scoping and in reported issues.
const (
	FieldLimit             = "limit"
	FieldOffset            = "offset"
	FieldPage              = "page"
	FieldTypes             = "types"
	FieldEntityIDs         = "entityIds"
	FieldEntityType        = "entityType"
	FieldEntityUUID        = "entityUuid"
	FieldConflictID        = "conflictId"
	FieldStrategy          = "resolutionStrategy"
	FieldLastSyncTimestamp = "lastSyncTimestamp"
	FieldUserID            = "userId"
)

// SyncValidator checks the semantic bounds of pull requests, resolutions and
// ledger queries.
type SyncValidator struct {
	maxPullLimit int
}

// NewSyncValidator returns a validator that caps pull pages at maxPullLimit.
func NewSyncValidator(maxPullLimit int) Validator {
	return &SyncValidator{maxPullLimit: maxPullLimit}
}

func (v *SyncValidator) Validate(ctx context.Context, obj any, fields ...string) error {
	switch value := obj.(type) {
	case models.PullRequest:
		return v.validatePullRequest(ctx, value, fields...)
	case *models.PullRequest:
		return v.validatePullRequest(ctx, *value, fields...)

	case models.Resolution:
		return v.validateResolution(ctx, value, fields...)
	case *models.Resolution:
		return v.validateResolution(ctx, *value, fields...)

	case models.ConflictFilter:
		return v.validateConflictFilter(ctx, value, fields...)
	case *models.ConflictFilter:
		return v.validateConflictFilter(ctx, *value, fields...)

	default:
		return ErrUnsupportedType
	}
}

func (v *SyncValidator) validatePullRequest(_ context.Context, req models.PullRequest, fields ...string) error {
	if len(fields) == 0 {
		fields = []string{FieldUserID, FieldLimit, FieldTypes, FieldEntityIDs}
	}

	verr := &ValidationError{}
	for _, f := range fields {
		switch f {
		case FieldUserID:
			if req.UserID == "" {
				verr.Add(FieldUserID, "user is required")
			}
		case FieldLimit:
			if req.Limit < 1 || req.Limit > v.maxPullLimit {
				verr.Addf(FieldLimit, "must be between 1 and %d", v.maxPullLimit)
			}
		case FieldTypes:
			for _, t := range req.EntityTypes {
				if !t.IsValid() {
					verr.Addf(FieldTypes, "unknown entity type %q", t)
				}
			}
		case FieldEntityIDs:
			for _, id := range req.EntityIDs {
				if strings.TrimSpace(id) == "" {
					verr.Add(FieldEntityIDs, "must not contain empty identifiers")
					break
				}
			}
		default:
			return ErrUnknownField
		}
	}

	return verr.OrNil()
}

func (v *SyncValidator) validateResolution(_ context.Context, r models.Resolution, fields ...string) error {
	if len(fields) == 0 {
		fields = []string{FieldConflictID, FieldStrategy, FieldEntityType, FieldEntityUUID}
	}

	verr := &ValidationError{}
	for _, f := range fields {
		switch f {
		case FieldConflictID:
			if strings.TrimSpace(r.ConflictID) == "" {
				verr.Add(FieldConflictID, "is required")
			}
		case FieldStrategy:
			if !r.ResolutionStrategy.IsValid() {
				verr.Add(FieldStrategy, "must be one of last_write_wins, manual, merge")
			}
		case FieldEntityType:
			if !r.EntityType.IsValid() {
				verr.Addf(FieldEntityType, "unknown entity type %q", r.EntityType)
			}
		case FieldEntityUUID:
			if strings.TrimSpace(r.EntityUUID) == "" {
				verr.Add(FieldEntityUUID, "is required")
			}
		default:
			return ErrUnknownField
		}
	}

	return verr.OrNil()
}

func (v *SyncValidator) validateConflictFilter(_ context.Context, f models.ConflictFilter, fields ...string) error {
	if len(fields) == 0 {
		fields = []string{FieldLimit, FieldOffset, FieldEntityType}
	}

	verr := &ValidationError{}
	for _, field := range fields {
		switch field {
		case FieldLimit:
			if f.Limit < 1 || f.Limit > v.maxPullLimit {
				verr.Addf(FieldLimit, "must be between 1 and %d", v.maxPullLimit)
			}
		case FieldOffset:
			if f.Offset < 0 {
				verr.Add(FieldOffset, "must not be negative")
			}
		case FieldEntityType:
			if f.EntityType != "" && !f.EntityType.IsValid() {
				verr.Addf(FieldEntityType, "unknown entity type %q", f.EntityType)
			}
		default:
			return ErrUnknownField
		}
	}

	return verr.OrNil()
}
