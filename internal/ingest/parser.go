// Learnlens - LMS Engagement Analytics and Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/learnlens

// Package ingest reads raw tabular LMS logs into validated, typed events.
//
// The parser never fails on a single bad row: malformed rows are skipped and
// accumulated as diagnostics while processing continues. Only an unreadable
// source, a missing required column, or zero valid rows is fatal
// (SchemaError).
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tomtom215/learnlens/internal/logging"
	"github.com/tomtom215/learnlens/internal/models"
)

// Required input columns. A header missing any of these aborts the run.
const (
	colStudentID = "student_id"
	colEventType = "event_type"
	colEventTime = "event_time"
	colModule    = "module"
	colCourse    = "course"
	colGrade     = "grade"
	colDuration  = "activity_duration"
)

// timestampLayouts are accepted event_time formats, tried in order.
var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// Options controls row validation.
type Options struct {
	// GradeMin and GradeMax bound the valid grade range. A grade outside the
	// range is treated as absent with a diagnostic.
	GradeMin float64
	GradeMax float64

	// Timeframe optionally restricts events to "YYYY" or "YYYY-MM".
	// Events outside the timeframe are filtered, not diagnosed.
	Timeframe string
}

// normalized applies the default grade range when the caller left it zero.
func (o Options) normalized() Options {
	if o.GradeMax <= o.GradeMin {
		o.GradeMin = 0
		o.GradeMax = 100
	}
	return o
}

// Result is the parser output: validated events in chronological order plus
// the skipped-row diagnostics.
type Result struct {
	// Events is the validated event sequence, sorted by timestamp (stable).
	Events []models.Event

	// Diagnostics records every skipped or corrected row.
	Diagnostics []models.Diagnostic

	// RowsRead is the number of data rows read from the source.
	RowsRead int
}

// ParseFile parses the CSV log at path.
func ParseFile(path string, opts Options) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &SchemaError{Msg: fmt.Sprintf("open input: %v", err)}
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			logging.Warn().Err(closeErr).Str("path", path).Msg("Error closing input file")
		}
	}()

	return Parse(f, opts)
}

// Parse reads a CSV log from r and returns validated events plus diagnostics.
// Row indices in diagnostics are 1-based physical row numbers, header
// included (the first data row is row 2).
func Parse(r io.Reader, opts Options) (*Result, error) {
	opts = opts.normalized()

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, &SchemaError{Msg: fmt.Sprintf("read header: %v", err)}
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{colStudentID, colEventType, colEventTime} {
		if _, ok := cols[required]; !ok {
			return nil, &SchemaError{Msg: fmt.Sprintf("missing required column %q", required)}
		}
	}

	yearFilter, monthFilter := parseTimeframe(opts.Timeframe)

	res := &Result{}
	seen := make(map[string]struct{})
	row := 1 // header

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		row++
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				res.addRowDiag(row, "", fmt.Sprintf("unparseable CSV row: %v", parseErr.Err))
				continue
			}
			return nil, &SchemaError{Msg: fmt.Sprintf("read source: %v", err)}
		}
		res.RowsRead++

		raw := strings.Join(record, ",")
		if _, dup := seen[raw]; dup {
			res.addRowDiag(row, raw, "duplicate row dropped")
			continue
		}
		seen[raw] = struct{}{}

		ev, ok := res.parseRow(row, raw, record, cols, opts)
		if !ok {
			continue
		}

		if yearFilter != 0 {
			if ev.Timestamp.Year() != yearFilter {
				continue
			}
			if monthFilter != 0 && ev.Timestamp.Month() != monthFilter {
				continue
			}
		}

		res.Events = append(res.Events, ev)
	}

	if len(res.Events) == 0 {
		return nil, &SchemaError{Msg: "no valid rows in source"}
	}

	sort.SliceStable(res.Events, func(i, j int) bool {
		return res.Events[i].Timestamp.Before(res.Events[j].Timestamp)
	})

	logging.Info().
		Int("rows", res.RowsRead).
		Int("events", len(res.Events)).
		Int("diagnostics", len(res.Diagnostics)).
		Msg("Parse complete")

	return res, nil
}

// parseRow validates one record. Invalid rows return ok=false after
// recording a diagnostic; correctable fields (grade, duration) record a
// diagnostic but keep the row.
func (res *Result) parseRow(row int, raw string, record []string, cols map[string]int, opts Options) (models.Event, bool) {
	studentID := strings.TrimSpace(field(record, cols, colStudentID))
	if studentID == "" {
		res.addRowDiag(row, raw, "empty student_id")
		return models.Event{}, false
	}

	eventType, ok := models.ParseEventType(field(record, cols, colEventType))
	if !ok {
		res.addRowDiag(row, raw, fmt.Sprintf("unrecognized event_type %q", field(record, cols, colEventType)))
		return models.Event{}, false
	}

	ts, ok := parseTimestamp(field(record, cols, colEventTime))
	if !ok {
		res.addRowDiag(row, raw, fmt.Sprintf("unparseable event_time %q", field(record, cols, colEventTime)))
		return models.Event{}, false
	}

	ev := models.Event{
		StudentID: studentID,
		Type:      eventType,
		Timestamp: ts,
		ModuleID:  strings.TrimSpace(field(record, cols, colModule)),
		CourseID:  strings.TrimSpace(field(record, cols, colCourse)),
	}

	if rawGrade := strings.TrimSpace(field(record, cols, colGrade)); rawGrade != "" {
		grade, err := strconv.ParseFloat(rawGrade, 64)
		switch {
		case err != nil || math.IsNaN(grade) || math.IsInf(grade, 0):
			res.addRowDiag(row, raw, fmt.Sprintf("non-numeric grade %q treated as absent", rawGrade))
		case grade < opts.GradeMin || grade > opts.GradeMax:
			res.addRowDiag(row, raw, fmt.Sprintf("grade %v outside [%v, %v] treated as absent",
				grade, opts.GradeMin, opts.GradeMax))
		default:
			ev.Grade = grade
			ev.HasGrade = true
		}
	}

	if rawDur := strings.TrimSpace(field(record, cols, colDuration)); rawDur != "" {
		dur, err := strconv.ParseFloat(rawDur, 64)
		switch {
		case err != nil || math.IsNaN(dur) || math.IsInf(dur, 0):
			res.addRowDiag(row, raw, fmt.Sprintf("non-numeric activity_duration %q treated as zero", rawDur))
		case dur < 0:
			res.addRowDiag(row, raw, fmt.Sprintf("negative activity_duration %v clamped to zero", dur))
		default:
			ev.Duration = dur
		}
	}

	return ev, true
}

func (res *Result) addRowDiag(row int, raw, reason string) {
	res.Diagnostics = append(res.Diagnostics, models.Diagnostic{
		Kind:   models.DiagRowParse,
		Stage:  "ingest",
		Row:    row,
		Raw:    raw,
		Reason: reason,
	})
}

// field returns the named column's value, or empty when the column is absent
// from the header or the record is short.
func field(record []string, cols map[string]int, name string) string {
	idx, ok := cols[name]
	if !ok || idx >= len(record) {
		return ""
	}
	return record[idx]
}

func parseTimestamp(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// parseTimeframe splits a validated "YYYY" or "YYYY-MM" timeframe into its
// parts. Zero values mean no filtering.
func parseTimeframe(tf string) (int, time.Month) {
	if tf == "" {
		return 0, 0
	}
	yearPart, monthPart, hasMonth := strings.Cut(tf, "-")
	year, err := strconv.Atoi(yearPart)
	if err != nil {
		return 0, 0
	}
	if !hasMonth {
		return year, 0
	}
	month, err := strconv.Atoi(monthPart)
	if err != nil || month < 1 || month > 12 {
		return year, 0
	}
	return year, time.Month(month)
}
