package http

import (
	"bytes"
	"io"
	"net/http"

	"github.com/bilzee/dms-sync/internal/logger"
	"github.com/bilzee/dms-sync/internal/utils"
)

// verifyPayloadHash checks the X-Payload-Hash header of a push against the
// HMAC-SHA256 of the raw body. It is a no-op when no hash key is configured.
func (h *Handler) verifyPayloadHash(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.hashKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		log := logger.FromRequest(r)

		hashFromRequest := r.Header.Get(utils.PayloadHashHeader)
		if hashFromRequest == "" {
			writeError(w, r, ErrMissingPayloadHash, "push without payload hash")
			return
		}

		body, err := h.readBody(w, r)
		if err != nil {
			writeError(w, r, err, "failed to read request body")
			return
		}
		// restore request body
		r.Body = io.NopCloser(bytes.NewReader(body))

		if err := utils.VerifyHash(body, hashFromRequest); err != nil {
			log.Error().Str("func", "*Handler.verifyPayloadHash").
				Str("hash from request", hashFromRequest).
				Msg("hashes are not equal")
			writeError(w, r, ErrIntegrityCheckFailed, "integrity check failed")
			return
		}

		log.Debug().Str("func", "*Handler.verifyPayloadHash").Msg("hashes are equal")
		next.ServeHTTP(w, r)
	})
}
