package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/bilzee/dms-sync/internal/logger"
	"github.com/bilzee/dms-sync/internal/utils"
)

// push handles POST /api/sync/push. The response holds one SyncResult per
// change, in request order.
func (h *Handler) push(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromRequest(r)

	userID, found := utils.GetUserIDFromContext(ctx)
	if !found {
		writeError(w, r, ErrNoUserID, "push without user")
		return
	}

	body, err := h.readBody(w, r)
	if err != nil {
		writeError(w, r, err, "reading push body failed")
		return
	}

	req, err := h.codec.DecodePush(body)
	if err != nil {
		writeError(w, r, err, "invalid push request")
		return
	}

	results, err := h.services.SyncService.Push(ctx, userID, req.Changes)
	if err != nil {
		writeError(w, r, err, "push failed")
		return
	}

	log.Debug().Str("func", "*Handler.push").Int("changes", len(req.Changes)).Msg("push handled")
	utils.WriteJSON(w, results, http.StatusOK)
}

// pull handles GET /api/sync/pull.
func (h *Handler) pull(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, found := utils.GetUserIDFromContext(ctx)
	if !found {
		writeError(w, r, ErrNoUserID, "pull without user")
		return
	}

	req, err := h.codec.DecodePull(ctx, r.URL.Query(), userID, h.syncCfg.DefaultPullLimit)
	if err != nil {
		writeError(w, r, err, "invalid pull request")
		return
	}

	resp, err := h.services.SyncService.Pull(ctx, req)
	if err != nil {
		writeError(w, r, err, "pull failed")
		return
	}

	utils.WriteJSON(w, resp, http.StatusOK)
}

// readBody reads the whole request body, capped at the configured size.
func (h *Handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	if h.serverCfg.MaxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.serverCfg.MaxBodyBytes)
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, ErrRequestTooLarge
		}
		return nil, err
	}
	return body, nil
}
