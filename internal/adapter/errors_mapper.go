package adapter

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/bilzee/dms-sync/models"
	"github.com/go-resty/resty/v2"
)

var statusErrors = map[int]error{
	http.StatusBadRequest:          ErrBadRequest,
	http.StatusUnauthorized:        ErrUnauthorized,
	http.StatusForbidden:           ErrForbidden,
	http.StatusNotFound:            ErrNotFound,
	http.StatusConflict:            ErrConflict,
	http.StatusTooManyRequests:     ErrTooManyRequests,
	http.StatusBadGateway:          ErrBadGateway,
	http.StatusInternalServerError: ErrInternalServerError,
}

func mapHTTPError(resp *resty.Response) error {
	if resp.StatusCode() >= http.StatusOK && resp.StatusCode() < http.StatusMultipleChoices {
		return nil
	}

	respErr := NewResponseError(resp.StatusCode(), "")

	body := strings.TrimSpace(string(resp.Body()))
	var errResp models.ErrorResponse
	if err := json.Unmarshal(resp.Body(), &errResp); err == nil && errResp.Error != "" {
		respErr.Message = errResp.Error
		respErr.UnauthorizedEntityIDs = errResp.UnauthorizedEntityIDs
	} else {
		respErr.Message = body
	}

	if respErr.Message == "" {
		respErr.Message = http.StatusText(resp.StatusCode())
	}
	if respErr.sentinel == nil {
		respErr.Message = fmt.Sprintf("http %d: %s", resp.StatusCode(), respErr.Message)
	}
	if secs, err := strconv.Atoi(resp.Header().Get("Retry-After")); err == nil {
		respErr.RetryAfter = secs
	}

	return respErr
}
