package utils

import (
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// HTTPClient is a wrapper around the resty.Client HTTP client.
// It embeds *resty.Client to expose all of its methods directly,
// while allowing extension with additional application-specific behavior.
//
// Example usage:
//
//	client := utils.NewHTTPClient()
//	resp, err := client.R().Get("https://example.com")
type HTTPClient struct {
	*resty.Client
}

// NewHTTPClient creates and returns a new HTTPClient instance
// with a default-configured underlying resty.Client.
//
// Each call returns an independent client instance with its own
// configuration, connection pool, and state.
func NewHTTPClient() *HTTPClient {
	return &HTTPClient{Client: resty.New()}
}

// Retry policy of the sync client. Pushes are idempotent on the server, so a
// repeated batch is safe.
const (
	syncRetryCount   = 3
	syncRetryWait    = 500 * time.Millisecond
	syncRetryMaxWait = 5 * time.Second
)

// NewSyncHTTPClient returns a client bound to the sync server at baseURL.
// Transport errors, 429 and 5xx responses are retried with backoff.
func NewSyncHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(syncRetryCount).
		SetRetryWaitTime(syncRetryWait).
		SetRetryMaxWaitTime(syncRetryMaxWait).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			code := resp.StatusCode()
			return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
		})

	return &HTTPClient{Client: client}
}
