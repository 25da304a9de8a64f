package conflict

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/bilzee/dms-sync/models"
)

// Merge markers added to merged documents.
const (
	MergedAtField    = "mergedAt"
	MergeSourceField = "mergeSource"
	MergeSource      = "local+server"

	lastModifiedField = "lastModified"
)

// Decision names which side a resolution kept.
type Decision string

const (
	KeepLocal  Decision = "keep_local"
	KeepServer Decision = "keep_server"
	Merged     Decision = "merge"
	Manual     Decision = "manual"
)

// Outcome is the resolved document and the version it is stored under.
type Outcome struct {
	Strategy models.ResolutionStrategy
	Decision Decision
	Data     json.RawMessage
	Version  int64
}

// Resolve applies strategy to c. resolvedData is only read by the manual
// strategy; now stamps merged documents.
func Resolve(c models.Conflict, strategy models.ResolutionStrategy, resolvedData json.RawMessage, now time.Time) (Outcome, error) {
	switch strategy {
	case models.StrategyLastWriteWins:
		return lastWriteWins(c), nil
	case models.StrategyManual:
		return manual(c, resolvedData)
	case models.StrategyMerge:
		return merge(c, now)
	default:
		return Outcome{}, fmt.Errorf("%w: %q", ErrUnsupportedStrategy, strategy.String())
	}
}

// lastWriteWins keeps the document with the later lastModified wholesale.
// The server wins ties, including when neither side carries a timestamp.
func lastWriteWins(c models.Conflict) Outcome {
	out := Outcome{
		Strategy: models.StrategyLastWriteWins,
		Decision: KeepServer,
		Data:     c.ServerData,
		Version:  c.ServerVersion + 1,
	}

	if LastModified(c.LocalData).After(LastModified(c.ServerData)) {
		out.Decision = KeepLocal
		out.Data = c.LocalData
	}
	return out
}

func manual(c models.Conflict, resolvedData json.RawMessage) (Outcome, error) {
	if isNull(resolvedData) {
		return Outcome{}, ErrManualResolutionRequiresData
	}
	return Outcome{
		Strategy: models.StrategyManual,
		Decision: Manual,
		Data:     resolvedData,
		Version:  c.ServerVersion + 1,
	}, nil
}

// merge is a shallow field union where server fields win on collision.
func merge(c models.Conflict, now time.Time) (Outcome, error) {
	local, err := asObject(c.LocalData)
	if err != nil {
		return Outcome{}, fmt.Errorf("local data: %w", err)
	}
	server, err := asObject(c.ServerData)
	if err != nil {
		return Outcome{}, fmt.Errorf("server data: %w", err)
	}

	merged := make(map[string]json.RawMessage, len(local)+len(server)+2)
	for k, v := range local {
		merged[k] = v
	}
	for k, v := range server {
		merged[k] = v
	}

	stamp, _ := json.Marshal(now.UTC().Format(time.RFC3339))
	source, _ := json.Marshal(MergeSource)
	merged[MergedAtField] = stamp
	merged[MergeSourceField] = source

	data, err := json.Marshal(merged)
	if err != nil {
		return Outcome{}, fmt.Errorf("encode merged document: %w", err)
	}

	return Outcome{
		Strategy: models.StrategyMerge,
		Decision: Merged,
		Data:     data,
		Version:  max(c.LocalVersion, c.ServerVersion) + 1,
	}, nil
}

// LastModified reads the top-level lastModified of a document. It accepts
// RFC 3339 strings and epoch milliseconds; anything else reads as the zero
// time.
func LastModified(doc json.RawMessage) time.Time {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(doc, &fields); err != nil {
		return time.Time{}
	}
	raw, ok := fields[lastModifiedField]
	if !ok {
		return time.Time{}
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}
		}
		return t
	}

	var ms float64
	if err := json.Unmarshal(raw, &ms); err == nil && !math.IsNaN(ms) {
		return time.UnixMilli(int64(ms))
	}
	return time.Time{}
}

func asObject(doc json.RawMessage) (map[string]json.RawMessage, error) {
	if isNull(doc) {
		return map[string]json.RawMessage{}, nil
	}
	trimmed := bytes.TrimSpace(doc)
	if trimmed[0] != '{' {
		return nil, ErrMergeRequiresObjects
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMergeRequiresObjects, err)
	}
	return obj, nil
}

func isNull(doc json.RawMessage) bool {
	trimmed := bytes.TrimSpace(doc)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
