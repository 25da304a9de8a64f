// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

// Package adapter is the field device's client of the sync server.
//
// [ServerAdapter] decouples the device-side services from the transport. The
// package ships an HTTP/REST implementation ([NewHTTPServerAdapter]) built on
// resty with retries for transport errors, 429 and 5xx answers.
//
// Non-2xx answers are returned as [*ResponseError] values that match the
// sentinels of errors.go with [errors.Is] (e.g. [ErrForbidden] for 403,
// [ErrTooManyRequests] for 429).
package adapter

import (
	"context"

	"github.com/bilzee/dms-sync/models"
)

//go:generate mockgen -source=interfaces.go -destination=../mock/server_adapter_mock.go -package=mock

// ServerAdapter defines transport-agnostic communication with the sync server.
type ServerAdapter interface {
	// SetToken stores the bearer token attached to every sync request.
	SetToken(token string)

	// Token returns the bearer token currently stored in the adapter.
	Token() string

	// Push submits a batch of queued changes. The results are in request
	// order, one per change. A body hash is attached when a hash key is
	// configured.
	Push(ctx context.Context, changes []models.Change) ([]models.SyncResult, error)

	// Pull fetches one page of the change feed. req.UserID is ignored; the
	// server takes the user from the token.
	Pull(ctx context.Context, req models.PullRequest) (models.PullResponse, error)

	// Resolve submits one or more conflict resolutions.
	Resolve(ctx context.Context, resolutions ...models.Resolution) ([]models.ResolutionResult, error)

	// Version returns the server application version.
	Version(ctx context.Context) (string, error)
}
