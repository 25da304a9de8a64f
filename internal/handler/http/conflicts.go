package http

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bilzee/dms-sync/internal/logger"
	"github.com/bilzee/dms-sync/internal/utils"
)

// resolveConflicts handles POST /api/sync/conflicts/resolve. A single
// resolution object is answered with a single result, {"resolutions": [...]}
// with an array of results.
func (h *Handler) resolveConflicts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, found := utils.GetUserIDFromContext(ctx)
	if !found {
		writeError(w, r, ErrNoUserID, "resolve without user")
		return
	}

	body, err := h.readBody(w, r)
	if err != nil {
		writeError(w, r, err, "reading resolve body failed")
		return
	}

	resolutions, single, err := h.codec.DecodeResolutions(body)
	if err != nil {
		writeError(w, r, err, "invalid resolve request")
		return
	}

	if single {
		result, err := h.services.ConflictService.Resolve(ctx, userID, resolutions[0])
		if err != nil {
			writeError(w, r, err, "resolving conflict failed")
			return
		}
		utils.WriteJSON(w, result, http.StatusOK)
		return
	}

	results := h.services.ConflictService.ResolveBatch(ctx, userID, resolutions)
	utils.WriteJSON(w, results, http.StatusOK)
}

// listConflicts handles GET /api/sync/conflicts.
func (h *Handler) listConflicts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, found := utils.GetUserIDFromContext(ctx)
	if !found {
		writeError(w, r, ErrNoUserID, "list conflicts without user")
		return
	}

	filter, page, err := h.codec.DecodeConflictFilter(ctx, r.URL.Query(), h.syncCfg.DefaultPullLimit)
	if err != nil {
		writeError(w, r, err, "invalid conflict query")
		return
	}

	result, err := h.services.ConflictService.List(ctx, userID, filter, page)
	if err != nil {
		writeError(w, r, err, "listing conflicts failed")
		return
	}

	utils.WriteJSON(w, result, http.StatusOK)
}

// getConflict handles GET /api/sync/conflicts/{conflictID}.
func (h *Handler) getConflict(w http.ResponseWriter, r *http.Request) {
	userID, found := utils.GetUserIDFromContext(r.Context())
	if !found {
		writeError(w, r, ErrNoUserID, "get conflict without user")
		return
	}
	conflictID := chi.URLParam(r, "conflictID")

	entry, err := h.services.ConflictService.Get(r.Context(), userID, conflictID)
	if err != nil {
		writeError(w, r, err, "loading conflict failed")
		return
	}

	utils.WriteJSON(w, entry, http.StatusOK)
}

// conflictSummary handles GET /api/sync/conflicts/summary.
func (h *Handler) conflictSummary(w http.ResponseWriter, r *http.Request) {
	stats, err := h.services.ConflictService.Summary(r.Context())
	if err != nil {
		writeError(w, r, err, "loading conflict summary failed")
		return
	}

	utils.WriteJSON(w, stats, http.StatusOK)
}

// exportConflicts handles GET /api/sync/conflicts/export. The export is
// buffered so a failure half way still gets a JSON error instead of a
// truncated attachment.
func (h *Handler) exportConflicts(w http.ResponseWriter, r *http.Request) {
	userID, found := utils.GetUserIDFromContext(r.Context())
	if !found {
		writeError(w, r, ErrNoUserID, "export without user")
		return
	}

	var buf bytes.Buffer
	if err := h.services.ConflictService.Export(r.Context(), userID, &buf); err != nil {
		writeError(w, r, err, "exporting conflicts failed")
		return
	}

	filename := fmt.Sprintf("conflicts-%s.csv", h.now().UTC().Format(time.DateOnly))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		logger.FromRequest(r).Err(err).Str("func", "*Handler.exportConflicts").Msg("writing export failed")
	}
}

