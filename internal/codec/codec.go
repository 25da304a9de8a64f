// Package codec decodes and validates the wire form of sync requests.
//
// JSON bodies are checked against embedded JSON Schemas and every offending
// field is reported in a single validators.ValidationError. Decoded values
// are normalised before they reach the services.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/bilzee/dms-sync/internal/validators"
	"github.com/bilzee/dms-sync/models"
)

const (
	pushSchemaURL       = "https://dms-sync.local/schemas/push.json"
	resolutionSchemaURL = "https://dms-sync.local/schemas/resolution.json"
)

// Codec holds the compiled schemas and the limits of the sync protocol.
type Codec struct {
	push            *jsonschema.Schema
	resolution      *jsonschema.Schema
	resolutionBatch *jsonschema.Schema

	validator    validators.Validator
	printer      *message.Printer
	maxBatch     int
	maxPullLimit int
}

// New compiles the request schemas. maxBatch caps push and resolve batches;
// maxPullLimit caps pull and ledger pages.
func New(maxBatch, maxPullLimit int) (*Codec, error) {
	c := jsonschema.NewCompiler()
	if err := addResource(c, pushSchemaURL, changeSchema); err != nil {
		return nil, err
	}
	if err := addResource(c, resolutionSchemaURL, resolutionSchema); err != nil {
		return nil, err
	}

	push, err := c.Compile(pushSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile push schema: %w", err)
	}
	resolution, err := c.Compile(resolutionSchemaURL + "#/$defs/resolution")
	if err != nil {
		return nil, fmt.Errorf("compile resolution schema: %w", err)
	}
	batch, err := c.Compile(resolutionSchemaURL + "#/$defs/batch")
	if err != nil {
		return nil, fmt.Errorf("compile resolution batch schema: %w", err)
	}

	return &Codec{
		push:            push,
		resolution:      resolution,
		resolutionBatch: batch,
		validator:       validators.NewSyncValidator(maxPullLimit),
		printer:         message.NewPrinter(language.English),
		maxBatch:        maxBatch,
		maxPullLimit:    maxPullLimit,
	}, nil
}

func addResource(c *jsonschema.Compiler, url, schema string) error {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(schema))
	if err != nil {
		return fmt.Errorf("parse schema %s: %w", url, err)
	}
	if err := c.AddResource(url, doc); err != nil {
		return fmt.Errorf("add schema %s: %w", url, err)
	}
	return nil
}

// DecodePush decodes a push body. An oversized batch is rejected before any
// item is looked at; otherwise every invalid field of every change is
// reported.
func (c *Codec) DecodePush(body []byte) (models.PushRequest, error) {
	inst, err := parseObject(body)
	if err != nil {
		return models.PushRequest{}, err
	}

	if changes, ok := inst["changes"].([]any); ok && len(changes) > c.maxBatch {
		return models.PushRequest{}, validators.NewValidationError("changes",
			fmt.Sprintf("batch of %d changes exceeds the maximum of %d", len(changes), c.maxBatch))
	}

	if err := c.validateSchema(c.push, inst); err != nil {
		return models.PushRequest{}, err
	}

	var req models.PushRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return models.PushRequest{}, validators.NewValidationError("changes", err.Error())
	}
	if req.Changes == nil {
		req.Changes = []models.Change{}
	}
	for i := range req.Changes {
		normalizeChange(&req.Changes[i])
	}

	return req, nil
}

// DecodeResolutions accepts a single resolution object or {"resolutions": [...]}.
// single reports which form was sent so the response can mirror it.
func (c *Codec) DecodeResolutions(body []byte) (resolutions []models.Resolution, single bool, err error) {
	inst, err := parseObject(body)
	if err != nil {
		return nil, false, err
	}

	if _, isBatch := inst["resolutions"]; !isBatch {
		if err := c.validateSchema(c.resolution, inst); err != nil {
			return nil, true, err
		}
		var r models.Resolution
		if err := json.Unmarshal(body, &r); err != nil {
			return nil, true, validators.NewValidationError("", err.Error())
		}
		normalizeResolution(&r)
		return []models.Resolution{r}, true, nil
	}

	if items, ok := inst["resolutions"].([]any); ok && len(items) > c.maxBatch {
		return nil, false, validators.NewValidationError("resolutions",
			fmt.Sprintf("batch of %d resolutions exceeds the maximum of %d", len(items), c.maxBatch))
	}
	if err := c.validateSchema(c.resolutionBatch, inst); err != nil {
		return nil, false, err
	}

	var batch models.ResolutionBatch
	if err := json.Unmarshal(body, &batch); err != nil {
		return nil, false, validators.NewValidationError("resolutions", err.Error())
	}
	if batch.Resolutions == nil {
		batch.Resolutions = []models.Resolution{}
	}
	for i := range batch.Resolutions {
		normalizeResolution(&batch.Resolutions[i])
	}
	return batch.Resolutions, false, nil
}

func parseObject(body []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, validators.NewValidationError("", "request body is required")
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return nil, validators.NewValidationError("", "request body is not valid JSON")
	}
	obj, ok := inst.(map[string]any)
	if !ok {
		return nil, validators.NewValidationError("", "request body must be a JSON object")
	}
	return obj, nil
}

func (c *Codec) validateSchema(schema *jsonschema.Schema, inst any) error {
	err := schema.Validate(inst)
	if err == nil {
		return nil
	}

	var schemaErr *jsonschema.ValidationError
	if !errors.As(err, &schemaErr) {
		return fmt.Errorf("schema validation: %w", err)
	}

	verr := &validators.ValidationError{}
	c.collectIssues(schemaErr, verr)
	return verr.OrNil()
}

// collectIssues flattens the leaves of the schema error tree.
func (c *Codec) collectIssues(schemaErr *jsonschema.ValidationError, out *validators.ValidationError) {
	if len(schemaErr.Causes) > 0 {
		for _, cause := range schemaErr.Causes {
			c.collectIssues(cause, out)
		}
		return
	}

	field := fieldPath(schemaErr.InstanceLocation)
	if required, ok := schemaErr.ErrorKind.(*kind.Required); ok {
		for _, missing := range required.Missing {
			out.Add(joinField(field, missing), "is required")
		}
		return
	}
	out.Add(field, schemaErr.ErrorKind.LocalizedString(c.printer))
}

// fieldPath renders an instance location as changes[0].entityType.
func fieldPath(location []string) string {
	var b strings.Builder
	for _, segment := range location {
		if _, err := strconv.Atoi(segment); err == nil {
			b.WriteString("[" + segment + "]")
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(segment)
	}
	return b.String()
}

func joinField(parent, child string) string {
	if parent == "" {
		return child
	}
	return parent + "." + child
}

func normalizeChange(ch *models.Change) {
	ch.OfflineClientID = strings.TrimSpace(ch.OfflineClientID)
	ch.EntityUUID = strings.TrimSpace(ch.EntityUUID)
}

func normalizeResolution(r *models.Resolution) {
	r.ConflictID = strings.TrimSpace(r.ConflictID)
	r.EntityUUID = strings.TrimSpace(r.EntityUUID)
}
