package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/bilzee/dms-sync/internal/config"
	"github.com/bilzee/dms-sync/internal/logger"
	"github.com/bilzee/dms-sync/internal/ratelimit"
	"github.com/bilzee/dms-sync/internal/utils"
	"github.com/bilzee/dms-sync/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---- Helpers ----

// brokenLimiter fails every Allow call the way the Redis store does when the
// server is unreachable.
type brokenLimiter struct{}

func (brokenLimiter) Allow(_ context.Context, _ string, _ int, window time.Duration) (ratelimit.Decision, error) {
	return ratelimit.Decision{Allowed: true, ResetAt: time.Now().Add(window)}, errors.New("connection refused")
}

func newRateLimitedHandler(limiter ratelimit.Limiter) *Handler {
	return &Handler{
		limiter:  limiter,
		limitCfg: config.RateLimit{Window: time.Minute},
		now:      time.Now,
		logger:   logger.Nop(),
	}
}

func limitedRequest(h *Handler, scope string, max int, clientID string) *httptest.ResponseRecorder {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/sync/pull", nil)
	req.Header.Set(utils.ClientIDHeader, clientID)
	rec := httptest.NewRecorder()
	h.rateLimit(scope, max)(next).ServeHTTP(rec, req)
	return rec
}

// ---- Tests ----

func TestRateLimit_ThirdRequestInWindowDenied(t *testing.T) {
	h := newRateLimitedHandler(ratelimit.NewInMemory())

	first := limitedRequest(h, ratelimit.ScopePull, 2, "device-1")
	second := limitedRequest(h, ratelimit.ScopePull, 2, "device-1")
	third := limitedRequest(h, ratelimit.ScopePull, 2, "device-1")

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "0", second.Header().Get("X-RateLimit-Remaining"))

	require.Equal(t, http.StatusTooManyRequests, third.Code)
	retryAfter, err := strconv.Atoi(third.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, retryAfter, 1)
	assert.LessOrEqual(t, retryAfter, 60)
	assert.Equal(t, "2", third.Header().Get("X-RateLimit-Limit"))

	var body models.ErrorResponse
	require.NoError(t, json.Unmarshal(third.Body.Bytes(), &body))
	assert.Equal(t, ErrRateLimited.Error(), body.Error)
}

func TestRateLimit_ClientsAndScopesAreIndependent(t *testing.T) {
	h := newRateLimitedHandler(ratelimit.NewInMemory())

	require.Equal(t, http.StatusOK, limitedRequest(h, ratelimit.ScopePush, 1, "device-1").Code)
	require.Equal(t, http.StatusTooManyRequests, limitedRequest(h, ratelimit.ScopePush, 1, "device-1").Code)

	assert.Equal(t, http.StatusOK, limitedRequest(h, ratelimit.ScopePush, 1, "device-2").Code)
	assert.Equal(t, http.StatusOK, limitedRequest(h, ratelimit.ScopePull, 1, "device-1").Code)
}

func TestRateLimit_StoreFailureAllowsRequest(t *testing.T) {
	h := newRateLimitedHandler(brokenLimiter{})

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, limitedRequest(h, ratelimit.ScopeResolve, 1, "device-1").Code)
	}
}

func TestRateLimit_ConcurrentRequestsNeverExceedCeiling(t *testing.T) {
	h := newRateLimitedHandler(ratelimit.NewInMemory())

	const requests, max = 40, 10
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limitedRequest(h, ratelimit.ScopePush, max, "device-1").Code == http.StatusOK {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, max, allowed)
}

func TestRateLimit_ThroughRouter(t *testing.T) {
	f := newAPIFixture(t, func(cfg *config.StructuredConfig) {
		cfg.RateLimit.ResolveMax = 2
	})

	for i := 0; i < 2; i++ {
		rec := f.do(t, http.MethodPost, "/api/sync/conflicts/resolve", `{}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	}

	rec := f.do(t, http.MethodPost, "/api/sync/conflicts/resolve", `{}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}
