package service

import (
	"errors"
	"strings"
)

var (
	ErrTokenIsExpiredOrInvalid = errors.New("token is expired or invalid")
	ErrTokenCreationFailed     = errors.New("token creation failed")
	ErrVersionIsNotSpecified   = errors.New("app version is not specified")

	ErrUnauthorizedEntities = errors.New("unauthorized entities")
	ErrEntityTypeMismatch   = errors.New("entity type does not match the stored entity")

	ErrConflictEntityMismatch = errors.New("resolution does not match the conflict entity")
	ErrStaleResolution        = errors.New("entity changed since the conflict was recorded")

	ErrNothingToSync = errors.New("nothing to sync")
)

// MessageAlreadyResolved is returned with every repeated resolution.
const MessageAlreadyResolved = "Conflict already resolved"

// MessageResolutionFailed replaces the message of a batch item that failed
// for a reason other than the resolution itself.
const MessageResolutionFailed = "internal error"

// EntityAccessError lists the entities of a request the user is not granted.
type EntityAccessError struct {
	EntityIDs []string
}

func (e *EntityAccessError) Error() string {
	return ErrUnauthorizedEntities.Error() + ": " + strings.Join(e.EntityIDs, ", ")
}

func (e *EntityAccessError) Is(target error) bool {
	return target == ErrUnauthorizedEntities
}
