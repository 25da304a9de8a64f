package adapter

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bilzee/dms-sync/internal/config"
	"github.com/bilzee/dms-sync/internal/logger"
	"github.com/bilzee/dms-sync/internal/utils"
	"github.com/bilzee/dms-sync/models"
	"github.com/go-resty/resty/v2"
)

var errEmptyResolutions = errors.New("no resolutions to submit")

type httpServerAdapter struct {
	client *utils.HTTPClient

	clientID string
	hashKey  string
	token    string

	logger *logger.Logger
}

// NewHTTPServerAdapter constructs an HTTP/REST implementation of [ServerAdapter].
// It normalises and validates the base URL from adapterCfg.HTTPAddress,
// configures the retrying sync client with the resolved base URL and request
// timeout, and initialises the shared HMAC hasher pool used for payload
// hashes when appCfg.HashKey is set.
//
// Returns an error if adapterCfg.HTTPAddress is empty or cannot be parsed as a
// valid URL.
func NewHTTPServerAdapter(adapterCfg config.ClientAdapter, appCfg config.ClientApp, logger *logger.Logger) (ServerAdapter, error) {
	baseURL, err := normalizeBaseURL(adapterCfg.HTTPAddress)
	if err != nil {
		return nil, fmt.Errorf("invalid adapter http address: %w", err)
	}

	client := utils.NewSyncHTTPClient(baseURL, adapterCfg.RequestTimeout)
	if appCfg.HashKey != "" {
		utils.InitHasherPool(appCfg.HashKey)
	}

	adapter := &httpServerAdapter{
		client:   client,
		clientID: strings.TrimSpace(adapterCfg.ClientID),
		hashKey:  appCfg.HashKey,
		logger:   logger,
	}
	adapter.SetToken(adapterCfg.Token)

	return adapter, nil
}

func normalizeBaseURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty address")
	}

	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("address must include host and scheme")
	}

	return strings.TrimRight(u.String(), "/"), nil
}

// SetToken implements [ServerAdapter]. It stores token (whitespace-trimmed) for
// use in the Authorization header of all subsequent requests.
func (h *httpServerAdapter) SetToken(token string) {
	h.token = strings.TrimSpace(token)
}

// Token implements [ServerAdapter].
func (h *httpServerAdapter) Token() string {
	return h.token
}

// Push implements [ServerAdapter]. It POSTs {changes} to /api/sync/push.
// The body is marshalled once so the X-Payload-Hash covers the exact bytes
// sent.
func (h *httpServerAdapter) Push(ctx context.Context, changes []models.Change) ([]models.SyncResult, error) {
	body, err := json.Marshal(models.PushRequest{Changes: changes})
	if err != nil {
		return nil, fmt.Errorf("encode push request: %w", err)
	}

	req := h.authedRequest(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body)
	if h.hashKey != "" {
		req.SetHeader(utils.PayloadHashHeader, hex.EncodeToString(utils.Hash(body)))
	}

	resp, err := req.Post("/api/sync/push")
	if err != nil {
		return nil, fmt.Errorf("push request: %w", err)
	}
	if err = mapHTTPError(resp); err != nil {
		return nil, err
	}

	var results []models.SyncResult
	if err = json.Unmarshal(resp.Body(), &results); err != nil {
		return nil, fmt.Errorf("decode push response: %w", err)
	}
	if len(results) != len(changes) {
		return nil, fmt.Errorf("push response has %d results for %d changes", len(results), len(changes))
	}

	return results, nil
}

// Pull implements [ServerAdapter]. It GETs /api/sync/pull with the cursor and
// filters of req encoded as query parameters.
func (h *httpServerAdapter) Pull(ctx context.Context, req models.PullRequest) (models.PullResponse, error) {
	resp, err := h.authedRequest(ctx).
		SetQueryParamsFromValues(pullQuery(req)).
		Get("/api/sync/pull")
	if err != nil {
		return models.PullResponse{}, fmt.Errorf("pull request: %w", err)
	}
	if err = mapHTTPError(resp); err != nil {
		return models.PullResponse{}, err
	}

	var page models.PullResponse
	if err = json.Unmarshal(resp.Body(), &page); err != nil {
		return models.PullResponse{}, fmt.Errorf("decode pull response: %w", err)
	}
	return page, nil
}

func pullQuery(req models.PullRequest) url.Values {
	q := url.Values{}
	if req.LastSyncTimestamp != nil {
		q.Set("lastSyncTimestamp", req.LastSyncTimestamp.UTC().Format(time.RFC3339Nano))
	}
	if len(req.EntityIDs) > 0 {
		q.Set("entityIds", strings.Join(req.EntityIDs, ","))
	}
	if len(req.EntityTypes) > 0 {
		types := make([]string, len(req.EntityTypes))
		for i, t := range req.EntityTypes {
			types[i] = string(t)
		}
		q.Set("types", strings.Join(types, ","))
	}
	if req.Limit > 0 {
		q.Set("limit", strconv.Itoa(req.Limit))
	}
	return q
}

// Resolve implements [ServerAdapter]. A single resolution is sent as a plain
// object, several as {resolutions} answered with an array.
func (h *httpServerAdapter) Resolve(ctx context.Context, resolutions ...models.Resolution) ([]models.ResolutionResult, error) {
	if len(resolutions) == 0 {
		return nil, errEmptyResolutions
	}

	var body any = models.ResolutionBatch{Resolutions: resolutions}
	if len(resolutions) == 1 {
		body = resolutions[0]
	}

	resp, err := h.authedRequest(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post("/api/sync/conflicts/resolve")
	if err != nil {
		return nil, fmt.Errorf("resolve request: %w", err)
	}
	if err = mapHTTPError(resp); err != nil {
		return nil, err
	}

	if len(resolutions) == 1 {
		var result models.ResolutionResult
		if err = json.Unmarshal(resp.Body(), &result); err != nil {
			return nil, fmt.Errorf("decode resolve response: %w", err)
		}
		return []models.ResolutionResult{result}, nil
	}

	var results []models.ResolutionResult
	if err = json.Unmarshal(resp.Body(), &results); err != nil {
		return nil, fmt.Errorf("decode resolve response: %w", err)
	}
	return results, nil
}

// Version implements [ServerAdapter]. GET /api/version answers plain text.
func (h *httpServerAdapter) Version(ctx context.Context) (string, error) {
	resp, err := h.client.R().SetContext(ctx).Get("/api/version")
	if err != nil {
		return "", fmt.Errorf("version request: %w", err)
	}
	if err = mapHTTPError(resp); err != nil {
		return "", err
	}
	return strings.TrimSpace(string(resp.Body())), nil
}

func (h *httpServerAdapter) authedRequest(ctx context.Context) *resty.Request {
	req := h.client.R().SetContext(ctx)
	if token := h.Token(); token != "" {
		req.SetHeader("Authorization", "Bearer "+token)
	}
	if h.clientID != "" {
		req.SetHeader(utils.ClientIDHeader, h.clientID)
	}
	return req
}
