package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/bilzee/dms-sync/internal/logger"
	"github.com/bilzee/dms-sync/internal/store"
	"github.com/bilzee/dms-sync/models"
)

type accessService struct {
	access store.AccessRepository

	logger *logger.Logger
}

// NewAccessService constructs an [AccessService] over the grant table.
func NewAccessService(access store.AccessRepository, logger *logger.Logger) AccessService {
	return &accessService{access: access, logger: logger}
}

func (a *accessService) AuthorizedEntityIDs(ctx context.Context, userID string) (models.EntitySet, error) {
	ids, err := a.access.AuthorizedEntityIDs(ctx, userID)
	if err != nil {
		logger.FromContext(ctx).Err(err).Str("user_id", userID).Msg("loading entity grants failed")
		return nil, fmt.Errorf("loading entity grants failed: %w", err)
	}
	return models.NewEntitySet(ids...), nil
}

func (a *accessService) Authorize(ctx context.Context, userID string, changes []models.Change) error {
	set, err := a.AuthorizedEntityIDs(ctx, userID)
	if err != nil {
		return err
	}

	if _, rejected := FilterChanges(changes, set); len(rejected) > 0 {
		logger.FromContext(ctx).Warn().
			Str("user_id", userID).
			Strs("entity_ids", rejected).
			Msg("push rejected: entities outside of grant")
		return &EntityAccessError{EntityIDs: rejected}
	}
	return nil
}

func (a *accessService) Grant(ctx context.Context, userID string, entityUUIDs ...string) error {
	if err := a.access.GrantEntities(ctx, userID, entityUUIDs...); err != nil {
		return fmt.Errorf("granting entities failed: %w", err)
	}
	return nil
}

// FilterChanges splits changes by the authorized set. rejected holds the
// offending entity ids sorted and without duplicates.
func FilterChanges(changes []models.Change, set models.EntitySet) (allowed []models.Change, rejected []string) {
	denied := models.EntitySet{}
	for _, ch := range changes {
		if set.Contains(ch.EntityUUID) {
			allowed = append(allowed, ch)
			continue
		}
		denied[ch.EntityUUID] = struct{}{}
	}
	if len(denied) > 0 {
		rejected = denied.IDs()
	}
	return allowed, rejected
}

// Intersect narrows a pull to the authorized set. An empty request means the
// whole set; the result is never wider than set.
func Intersect(requested []string, set models.EntitySet) []string {
	if len(requested) == 0 {
		return set.IDs()
	}

	seen := make(models.EntitySet, len(requested))
	out := make([]string, 0, len(requested))
	for _, id := range requested {
		if !set.Contains(id) {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
