// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// CheckHTTPMethod returns an [http.HandlerFunc] that is intended to be
// registered as the router's MethodNotAllowed handler via
// [chi.Mux.MethodNotAllowed].
//
// A request whose path exists but whose method is not registered is answered
// with 404 Not Found instead of chi's 405, so unsupported methods do not
// reveal the route. Paths are matched with the router itself, so patterns
// with URL parameters such as /api/sync/conflicts/{conflictID} are covered.
//
// Usage:
//
//	router := chi.NewRouter()
//	// ... register routes ...
//	router.MethodNotAllowed(CheckHTTPMethod(router))
func CheckHTTPMethod(router *chi.Mux) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		if !router.Match(chi.NewRouteContext(), r.Method, r.URL.Path) {
			writeError(w, r, errRouteNotFound, "route not found")
			return
		}

		// The method is registered; delegate to the router's normal pipeline.
		router.ServeHTTP(w, r)
	}
}
