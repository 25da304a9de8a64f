// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

// Package validators holds the semantic checks that run after a request has
// decoded and passed its JSON schema. Each check collects every issue of a
// value into a *ValidationError, which the HTTP layer renders as an itemized
// 400 response.
package validators

import "context"

// Validator checks a decoded value. fields optionally narrows the check to
// the named parts of the value.
type Validator interface {
	Validate(ctx context.Context, obj any, fields ...string) error
}
