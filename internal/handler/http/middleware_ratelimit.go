package http

import (
	"net/http"
	"strconv"

	"github.com/bilzee/dms-sync/internal/logger"
	"github.com/bilzee/dms-sync/internal/ratelimit"
	"github.com/bilzee/dms-sync/internal/utils"
	"github.com/bilzee/dms-sync/models"
)

// rateLimit throttles scope to max requests per client and window. Denied
// requests get 429 with Retry-After. A failing limiter store lets the
// request through.
func (h *Handler) rateLimit(scope string, max int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := logger.FromRequest(r)

			clientID, ok := utils.GetClientIDFromContext(ctx)
			if !ok {
				clientID = utils.ClientIDFromRequest(r)
			}

			decision, err := h.limiter.Allow(ctx, ratelimit.Key(scope, clientID), max, h.limitCfg.Window)
			if err != nil {
				log.Err(err).Str("scope", scope).Msg("rate limiter unavailable, request allowed")
			}

			now := h.now()
			remaining := max - decision.Count
			if remaining < 0 {
				remaining = 0
			}
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(max))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))

			if !decision.Allowed {
				retryAfter := decision.RetryAfter(now)
				log.Warn().
					Str("scope", scope).
					Int("count", decision.Count).
					Int("retry_after", retryAfter).
					Msg("rate limit exceeded")

				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				utils.WriteJSON(w, models.ErrorResponse{Error: ErrRateLimited.Error()}, http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
