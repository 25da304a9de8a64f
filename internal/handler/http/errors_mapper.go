package http

import (
	"errors"
	"net/http"

	"github.com/bilzee/dms-sync/internal/conflict"
	"github.com/bilzee/dms-sync/internal/logger"
	"github.com/bilzee/dms-sync/internal/service"
	"github.com/bilzee/dms-sync/internal/store"
	"github.com/bilzee/dms-sync/internal/utils"
	"github.com/bilzee/dms-sync/internal/validators"
	"github.com/bilzee/dms-sync/models"
)

// errorStatuses is matched in order, so an error chain that carries more
// than one of these gets the status of the first. Storage failures come
// first and keep their 500 even when they wrap a domain error.
var errorStatuses = []struct {
	err    error
	status int
}{
	{store.ErrBuildingSQLQuery, http.StatusInternalServerError},
	{store.ErrExecutingQuery, http.StatusInternalServerError},
	{store.ErrBeginningTransaction, http.StatusInternalServerError},
	{store.ErrCommitingTransaction, http.StatusInternalServerError},
	{store.ErrExecutingStatement, http.StatusInternalServerError},
	{store.ErrScanningRow, http.StatusInternalServerError},
	{store.ErrScanningRows, http.StatusInternalServerError},

	{service.ErrTokenIsExpiredOrInvalid, http.StatusUnauthorized},
	{ErrEmptyAuthorizationHeader, http.StatusUnauthorized},
	{ErrInvalidAuthorizationHeader, http.StatusUnauthorized},

	{service.ErrUnauthorizedEntities, http.StatusForbidden},

	{validators.ErrValidation, http.StatusBadRequest},
	{conflict.ErrManualResolutionRequiresData, http.StatusBadRequest},
	{conflict.ErrMergeRequiresObjects, http.StatusBadRequest},
	{conflict.ErrUnsupportedStrategy, http.StatusBadRequest},
	{service.ErrConflictEntityMismatch, http.StatusBadRequest},
	{service.ErrEntityTypeMismatch, http.StatusBadRequest},
	{ErrNoUserID, http.StatusBadRequest},
	{ErrMissingPayloadHash, http.StatusBadRequest},
	{ErrIntegrityCheckFailed, http.StatusBadRequest},
	{utils.ErrHashMismatch, http.StatusBadRequest},

	{store.ErrConflictNotFound, http.StatusNotFound},
	{store.ErrEntityNotFound, http.StatusNotFound},
	{errRouteNotFound, http.StatusNotFound},

	{service.ErrStaleResolution, http.StatusConflict},
	{store.ErrVersionConflict, http.StatusConflict},

	{ErrRequestTooLarge, http.StatusRequestEntityTooLarge},
	{ErrRateLimited, http.StatusTooManyRequests},
}

func statusFromError(err error) int {
	for _, e := range errorStatuses {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}

// errorResponse builds the JSON error body. Validation issues and rejected
// entity ids are copied out of the error chain; 5xx bodies never carry the
// internal error text.
func errorResponse(err error, status int) models.ErrorResponse {
	if status >= http.StatusInternalServerError {
		return models.ErrorResponse{Error: http.StatusText(status)}
	}

	resp := models.ErrorResponse{Error: err.Error()}

	var verr *validators.ValidationError
	if errors.As(err, &verr) {
		resp.Error = validators.ErrValidation.Error()
		resp.Issues = make([]models.ValidationIssue, 0, len(verr.Issues))
		for _, issue := range verr.Issues {
			resp.Issues = append(resp.Issues, models.ValidationIssue{Field: issue.Field, Message: issue.Message})
		}
	}

	var accessErr *service.EntityAccessError
	if errors.As(err, &accessErr) {
		resp.Error = service.ErrUnauthorizedEntities.Error()
		resp.UnauthorizedEntityIDs = accessErr.EntityIDs
	}

	return resp
}

// writeError logs err and answers with its mapped status.
func writeError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	status := statusFromError(err)

	log := logger.FromRequest(r)
	if status >= http.StatusInternalServerError {
		log.Err(err).Int("status", status).Msg(msg)
	} else {
		log.Warn().Err(err).Int("status", status).Msg(msg)
	}

	utils.WriteJSON(w, errorResponse(err, status), status)
}
