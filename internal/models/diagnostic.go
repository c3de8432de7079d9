// Learnlens - LMS Engagement Analytics and Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/learnlens

package models

import "fmt"

// DiagnosticKind classifies non-fatal conditions recorded during a run.
type DiagnosticKind int

const (
	// DiagRowParse is a malformed input row that was skipped or corrected.
	DiagRowParse DiagnosticKind = iota
	// DiagInsufficientData is a component-level degeneracy (e.g. too few
	// graded students for correlation) surfaced as an undefined result.
	DiagInsufficientData
	// DiagNumericDegeneracy is a NaN/Inf-producing computation recovered by
	// substituting a neutral value.
	DiagNumericDegeneracy
)

// String returns a human-readable kind name.
func (k DiagnosticKind) String() string {
	switch k {
	case DiagRowParse:
		return "row_parse"
	case DiagInsufficientData:
		return "insufficient_data"
	case DiagNumericDegeneracy:
		return "numeric_degeneracy"
	default:
		return "unknown"
	}
}

// Diagnostic is a non-fatal record of a skipped or corrected input row, or a
// recovered numeric degeneracy. Diagnostics accumulate on the run result;
// they never abort processing.
type Diagnostic struct {
	// Kind classifies the condition.
	Kind DiagnosticKind `json:"kind"`

	// Stage names the pipeline stage that produced the diagnostic
	// (ingest, metrics, correlate, cluster, recommend).
	Stage string `json:"stage"`

	// Row is the 1-based input row index for row-level diagnostics.
	// Zero for diagnostics not tied to a row.
	Row int `json:"row,omitempty"`

	// Raw is the raw row content for row-level diagnostics.
	Raw string `json:"raw,omitempty"`

	// Reason describes what was wrong and how it was handled.
	Reason string `json:"reason"`
}

// String renders the diagnostic for log output.
func (d Diagnostic) String() string {
	if d.Row > 0 {
		return fmt.Sprintf("%s/%s row %d: %s", d.Stage, d.Kind, d.Row, d.Reason)
	}
	return fmt.Sprintf("%s/%s: %s", d.Stage, d.Kind, d.Reason)
}
