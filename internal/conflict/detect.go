package conflict

import "github.com/bilzee/dms-sync/models"

// Conflict reasons recorded in the ledger.
const (
	ReasonVersionMismatch = "version mismatch"
	ReasonAlreadyExists   = "entity already exists"
	ReasonNotFound        = "entity not found"
	ReasonDeleted         = "entity was deleted"
)

// Detection is the verdict for a single change.
type Detection struct {
	Conflict bool
	Reason   string
	// ServerVersion is the stored version the change was compared against,
	// 0 when the entity does not exist.
	ServerVersion int64
}

// Detect compares change with the current stored entity (nil when absent).
//
// A create conflicts with any existing entity, tombstones included. An update
// or delete applies only when its declared version equals the stored version
// of a live entity.
func Detect(change models.Change, current *models.Entity) Detection {
	if change.Action == models.ActionCreate {
		if current != nil {
			return Detection{Conflict: true, Reason: ReasonAlreadyExists, ServerVersion: current.Version}
		}
		return Detection{}
	}

	switch {
	case current == nil:
		return Detection{Conflict: true, Reason: ReasonNotFound}
	case current.Deleted:
		return Detection{Conflict: true, Reason: ReasonDeleted, ServerVersion: current.Version}
	case change.DeclaredVersion != current.Version:
		return Detection{Conflict: true, Reason: ReasonVersionMismatch, ServerVersion: current.Version}
	}

	return Detection{ServerVersion: current.Version}
}

// NextVersion is the version an entity carries after a clean apply.
func NextVersion(current *models.Entity) int64 {
	if current == nil {
		return 1
	}
	return current.Version + 1
}
