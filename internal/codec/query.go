package codec

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bilzee/dms-sync/internal/validators"
	"github.com/bilzee/dms-sync/models"
)

// DecodePull parses the pull query string. Parse errors and bound violations
// are reported together.
func (c *Codec) DecodePull(ctx context.Context, query url.Values, userID string, defaultLimit int) (models.PullRequest, error) {
	req := models.PullRequest{UserID: userID, Limit: defaultLimit}
	verr := &validators.ValidationError{}

	if raw := strings.TrimSpace(query.Get(validators.FieldLastSyncTimestamp)); raw != "" {
		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			verr.Add(validators.FieldLastSyncTimestamp, "must be an RFC 3339 timestamp")
		} else {
			ts = ts.UTC()
			req.LastSyncTimestamp = &ts
		}
	}

	req.EntityIDs = splitList(query.Get(validators.FieldEntityIDs))
	for _, t := range splitList(query.Get(validators.FieldTypes)) {
		req.EntityTypes = append(req.EntityTypes, models.EntityType(t))
	}

	limitOK := true
	if raw := strings.TrimSpace(query.Get(validators.FieldLimit)); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			verr.Add(validators.FieldLimit, "must be an integer")
			limitOK = false
		} else {
			req.Limit = limit
		}
	}

	fields := []string{validators.FieldUserID, validators.FieldTypes, validators.FieldEntityIDs}
	if limitOK {
		fields = append(fields, validators.FieldLimit)
	}
	if err := mergeIssues(verr, c.validator.Validate(ctx, req, fields...)); err != nil {
		return models.PullRequest{}, err
	}
	if err := verr.OrNil(); err != nil {
		return models.PullRequest{}, err
	}

	return req, nil
}

// DecodeConflictFilter parses ledger list parameters. page is 1-based.
func (c *Codec) DecodeConflictFilter(ctx context.Context, query url.Values, defaultLimit int) (filter models.ConflictFilter, page int, err error) {
	verr := &validators.ValidationError{}
	page, limit := 1, defaultLimit

	if raw := strings.TrimSpace(query.Get(validators.FieldPage)); raw != "" {
		p, convErr := strconv.Atoi(raw)
		if convErr != nil || p < 1 {
			verr.Add(validators.FieldPage, "must be a positive integer")
		} else {
			page = p
		}
	}
	if raw := strings.TrimSpace(query.Get(validators.FieldLimit)); raw != "" {
		l, convErr := strconv.Atoi(raw)
		if convErr != nil {
			verr.Add(validators.FieldLimit, "must be an integer")
		} else {
			limit = l
		}
	}

	filter = models.ConflictFilter{
		EntityUUID: strings.TrimSpace(query.Get(validators.FieldEntityUUID)),
		EntityType: models.EntityType(strings.TrimSpace(query.Get(validators.FieldEntityType))),
		Limit:      limit,
		Offset:     (page - 1) * limit,
	}

	if raw := strings.TrimSpace(query.Get("resolved")); raw != "" {
		resolved, convErr := strconv.ParseBool(raw)
		if convErr != nil {
			verr.Add("resolved", "must be true or false")
		} else {
			filter.Resolved = &resolved
		}
	}

	if err := mergeIssues(verr, c.validator.Validate(ctx, filter)); err != nil {
		return models.ConflictFilter{}, 0, err
	}
	if err := verr.OrNil(); err != nil {
		return models.ConflictFilter{}, 0, err
	}

	return filter, page, nil
}

// mergeIssues folds a validator result into verr. Errors that are not
// validation failures are returned as is.
func mergeIssues(verr *validators.ValidationError, err error) error {
	if err == nil {
		return nil
	}
	var other *validators.ValidationError
	if !errors.As(err, &other) {
		return err
	}
	verr.Issues = append(verr.Issues, other.Issues...)
	return nil
}

func splitList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
