package codec

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bilzee/dms-sync/models"
)

func TestDecodePull_Defaults(t *testing.T) {
	c := newTestCodec(t)

	req, err := c.DecodePull(context.Background(), url.Values{}, "u1", 100)

	require.NoError(t, err)
	assert.Equal(t, "u1", req.UserID)
	assert.Equal(t, 100, req.Limit)
	assert.Nil(t, req.LastSyncTimestamp)
	assert.Nil(t, req.EntityIDs)
	assert.Nil(t, req.EntityTypes)
}

func TestDecodePull_AllParameters(t *testing.T) {
	c := newTestCodec(t)
	q := url.Values{
		"lastSyncTimestamp": {"2026-04-02T10:00:00+02:00"},
		"entityIds":         {"e1, e2"},
		"types":             {"assessment,response"},
		"limit":             {"250"},
	}

	req, err := c.DecodePull(context.Background(), q, "u1", 100)

	require.NoError(t, err)
	require.NotNil(t, req.LastSyncTimestamp)
	assert.Equal(t, time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC), *req.LastSyncTimestamp)
	assert.Equal(t, []string{"e1", "e2"}, req.EntityIDs)
	assert.Equal(t, []models.EntityType{models.EntityTypeAssessment, models.EntityTypeResponse}, req.EntityTypes)
	assert.Equal(t, 250, req.Limit)
}

func TestDecodePull_ReportsEveryIssue(t *testing.T) {
	c := newTestCodec(t)
	q := url.Values{
		"lastSyncTimestamp": {"yesterday"},
		"types":             {"assessment,donor"},
		"limit":             {"ten"},
	}

	_, err := c.DecodePull(context.Background(), q, "u1", 100)

	issues := issuesOf(t, err)
	assert.Contains(t, issues, "lastSyncTimestamp")
	assert.Contains(t, issues, "types")
	assert.Equal(t, "must be an integer", issues["limit"])
}

func TestDecodePull_LimitBounds(t *testing.T) {
	c := newTestCodec(t)

	for _, limit := range []string{"0", "1001"} {
		_, err := c.DecodePull(context.Background(), url.Values{"limit": {limit}}, "u1", 100)
		assert.Contains(t, issuesOf(t, err), "limit", "limit %s", limit)
	}
}

func TestDecodeConflictFilter(t *testing.T) {
	c := newTestCodec(t)
	q := url.Values{
		"page":       {"3"},
		"limit":      {"20"},
		"entityType": {"response"},
		"resolved":   {"false"},
	}

	filter, page, err := c.DecodeConflictFilter(context.Background(), q, 50)

	require.NoError(t, err)
	assert.Equal(t, 3, page)
	assert.Equal(t, 20, filter.Limit)
	assert.Equal(t, 40, filter.Offset)
	assert.Equal(t, models.EntityTypeResponse, filter.EntityType)
	require.NotNil(t, filter.Resolved)
	assert.False(t, *filter.Resolved)
}

func TestDecodeConflictFilter_Invalid(t *testing.T) {
	c := newTestCodec(t)
	q := url.Values{"page": {"0"}, "resolved": {"maybe"}, "entityType": {"donor"}}

	_, _, err := c.DecodeConflictFilter(context.Background(), q, 50)

	issues := issuesOf(t, err)
	assert.Contains(t, issues, "page")
	assert.Contains(t, issues, "resolved")
	assert.Contains(t, issues, "entityType")
}
