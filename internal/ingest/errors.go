// Learnlens - LMS Engagement Analytics and Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/learnlens

package ingest

import "errors"

// SchemaError indicates the source itself is unusable: unreadable input, a
// required column missing from the header, or zero valid rows. It is the only
// parser failure that aborts a run; everything else becomes a diagnostic.
type SchemaError struct {
	Msg string
}

// Error implements the error interface.
func (e *SchemaError) Error() string {
	return "schema error: " + e.Msg
}

// IsSchemaError reports whether err is (or wraps) a SchemaError.
func IsSchemaError(err error) bool {
	var se *SchemaError
	return errors.As(err, &se)
}
