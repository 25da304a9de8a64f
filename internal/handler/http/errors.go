// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package http

import "errors"

// Sentinel errors used by the authentication middleware when parsing the
// "Authorization" HTTP header. Callers can match against them with [errors.Is].
var (
	// ErrEmptyAuthorizationHeader is returned by the auth middleware when the
	// incoming request does not include an "Authorization" header at all.
	ErrEmptyAuthorizationHeader = errors.New("empty `Authorization` header")

	// ErrInvalidAuthorizationHeader is returned when the "Authorization"
	// header is not of the form "Bearer <token>" or the token is empty.
	ErrInvalidAuthorizationHeader = errors.New("invalid `Authorization` header")
)

// Request level failures reported before a service is called.
var (
	// ErrNoUserID means a protected handler ran without the auth middleware.
	ErrNoUserID = errors.New("no user ID was given")

	// ErrRateLimited is the body of every 429 response.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrMissingPayloadHash is returned when hashing is configured and a push
	// arrives without the X-Payload-Hash header.
	ErrMissingPayloadHash = errors.New("missing payload hash")

	// ErrIntegrityCheckFailed is returned when the payload hash does not match.
	ErrIntegrityCheckFailed = errors.New("integrity check failed")

	// ErrRequestTooLarge is returned for bodies above the configured cap.
	ErrRequestTooLarge = errors.New("request body too large")

	errRouteNotFound = errors.New("route not found")
)
