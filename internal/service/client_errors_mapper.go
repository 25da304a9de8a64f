// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package service

import (
	"errors"
	"fmt"

	"github.com/bilzee/dms-sync/internal/adapter"
	"github.com/bilzee/dms-sync/internal/store"
)

// mapAdapterError translates the adapter's transport error into a service business error.
// The original error stays in the chain.
func mapAdapterError(err error) error {
	if err == nil {
		return nil
	}

	var respErr *adapter.ResponseError
	if !errors.As(err, &respErr) {
		return err
	}

	switch {
	case errors.Is(err, adapter.ErrUnauthorized):
		return fmt.Errorf("%w: %w", ErrTokenIsExpiredOrInvalid, err)

	case errors.Is(err, adapter.ErrForbidden):
		if len(respErr.UnauthorizedEntityIDs) > 0 {
			return fmt.Errorf("%w: %w", &EntityAccessError{EntityIDs: respErr.UnauthorizedEntityIDs}, err)
		}
		return fmt.Errorf("%w: %w", ErrUnauthorizedEntities, err)

	case errors.Is(err, adapter.ErrNotFound):
		return fmt.Errorf("%w: %w", store.ErrConflictNotFound, err)
	}

	return err
}
