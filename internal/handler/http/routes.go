package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/bilzee/dms-sync/internal/ratelimit"
)

// Init wires the sync API. Every /api/sync route is authenticated and
// throttled per client and endpoint group.
func (h *Handler) Init() *chi.Mux {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(h.withTraceID)
	router.Use(h.withLogging)
	router.Use(withGZip)
	if h.serverCfg.RequestTimeout > 0 {
		router.Use(middleware.Timeout(h.serverCfg.RequestTimeout))
	}

	// routes without authorization
	router.Get("/api/version", h.getServerVersion)

	router.Route("/api/sync", func(r chi.Router) {
		r.Use(h.auth)

		r.With(h.rateLimit(ratelimit.ScopePush, h.limitCfg.PushMax), h.verifyPayloadHash).
			Post("/push", h.push)
		r.With(h.rateLimit(ratelimit.ScopePull, h.limitCfg.PullMax)).
			Get("/pull", h.pull)

		r.Route("/conflicts", func(r chi.Router) {
			r.With(h.rateLimit(ratelimit.ScopeResolve, h.limitCfg.ResolveMax)).
				Post("/resolve", h.resolveConflicts)

			r.Group(func(r chi.Router) {
				r.Use(h.rateLimit(ratelimit.ScopeConflicts, h.limitCfg.QueryMax))
				r.Get("/", h.listConflicts)
				r.Get("/export", h.exportConflicts)
				r.Get("/summary", h.conflictSummary)
				r.Get("/{conflictID}", h.getConflict)
			})
		})
	})

	router.MethodNotAllowed(CheckHTTPMethod(router))

	return router
}
