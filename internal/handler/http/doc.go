// Package http serves the sync API over chi.
//
// Routes live under /api/sync and require a bearer token; only
// /api/version is public. Middleware handles trace ids, access logging,
// gzip, per-client rate limits and the optional payload hash check on
// push. Handlers decode requests with the codec package, call the service
// layer and map errors to status codes in errors_mapper.go.
package http
