// Learnlens - LMS Engagement Analytics and Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/learnlens

package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/tomtom215/learnlens/internal/config"
	"github.com/tomtom215/learnlens/internal/ingest"
	"github.com/tomtom215/learnlens/internal/models"
)

const sampleCSV = `student_id,event_type,event_time,module,course,grade,activity_duration
s001,login,2024-01-15 09:30:00,,CS101,,
s001,assignment_submit,2024-01-15 11:45:00,m01,CS101,85,120
s001,forum_post,2024-01-16 10:00:00,m01,CS101,,300
s001,quiz_attempt,2024-01-17 14:00:00,m02,CS101,90,600
s002,login,2024-01-15 20:00:00,,CS101,,
s002,content_view,2024-01-15 20:10:00,m01,CS101,,900
s002,quiz_attempt,2024-01-18 21:00:00,m02,CS101,55,400
s003,login,2024-01-14 08:00:00,,CS101,,
s003,content_view,2024-01-14 08:05:00,m01,CS101,,1200
s003,assignment_submit,2024-01-19 09:00:00,m01,CS101,72,200
s003,forum_reply,2024-01-20 09:30:00,m02,CS101,,150
not-a-valid-row
`

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Cluster.K = 2
	return cfg
}

func TestRunEndToEnd(t *testing.T) {
	res, err := Run(context.Background(), testConfig(), strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if res.RunID == "" {
		t.Error("RunID is empty")
	}
	if res.GeneratedAt.IsZero() {
		t.Error("GeneratedAt is zero")
	}
	if len(res.Students) != 3 {
		t.Fatalf("got %d students, want 3", len(res.Students))
	}

	ids := make([]string, len(res.Students))
	for i, s := range res.Students {
		ids[i] = s.StudentID
	}
	if !sort.StringsAreSorted(ids) {
		t.Errorf("students not in lexicographic order: %v", ids)
	}

	for _, s := range res.Students {
		if len(s.Recommendations) == 0 {
			t.Errorf("student %s has no recommendations; fallback should guarantee one", s.StudentID)
		}
		if s.Cluster < 0 || s.Cluster >= res.Clusters.K {
			t.Errorf("student %s cluster %d outside [0,%d)", s.StudentID, s.Cluster, res.Clusters.K)
		}
	}

	if res.Cohort.TotalStudents != 3 {
		t.Errorf("TotalStudents = %d, want 3", res.Cohort.TotalStudents)
	}
	if res.Correlation == nil || !res.Correlation.Defined {
		t.Error("expected a defined correlation result with 3 graded students")
	}

	// The malformed trailing row must surface as a diagnostic, not an error.
	found := false
	for _, d := range res.Diagnostics {
		if d.Kind == models.DiagRowParse {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a row-parse diagnostic, got %+v", res.Diagnostics)
	}
}

func TestRunDeterministicAcrossRuns(t *testing.T) {
	first, err := Run(context.Background(), testConfig(), strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	again, err := Run(context.Background(), testConfig(), strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// Everything except the run identity must match between runs.
	if len(first.Students) != len(again.Students) {
		t.Fatal("student counts differ")
	}
	for i := range first.Students {
		a, b := first.Students[i], again.Students[i]
		if a.StudentID != b.StudentID || a.Features != b.Features || a.Cluster != b.Cluster {
			t.Errorf("student %d differs: %+v vs %+v", i, a, b)
		}
		if len(a.Recommendations) != len(b.Recommendations) {
			t.Errorf("student %s recommendation counts differ", a.StudentID)
			continue
		}
		for j := range a.Recommendations {
			if a.Recommendations[j].Text != b.Recommendations[j].Text {
				t.Errorf("student %s recommendation %d differs", a.StudentID, j)
			}
		}
	}
	if first.RunID == again.RunID {
		t.Error("distinct runs share a RunID")
	}
}

func TestRunFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.csv")
	if err := os.WriteFile(path, []byte(sampleCSV), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	res, err := RunFile(context.Background(), testConfig(), path)
	if err != nil {
		t.Fatalf("RunFile() error = %v", err)
	}
	if len(res.Students) != 3 {
		t.Errorf("got %d students, want 3", len(res.Students))
	}
	if res.InputPath != path {
		t.Errorf("InputPath = %q, want %q", res.InputPath, path)
	}
}

func TestRunFileMissing(t *testing.T) {
	_, err := RunFile(context.Background(), testConfig(), filepath.Join(t.TempDir(), "absent.csv"))
	if err == nil {
		t.Fatal("expected error for a missing input file")
	}
}

func TestRunSchemaErrorAborts(t *testing.T) {
	missingColumn := "student_id,event_type,module\ns001,login,m01\n"

	_, err := Run(context.Background(), testConfig(), strings.NewReader(missingColumn))
	if err == nil {
		t.Fatal("expected schema error")
	}
	if !ingest.IsSchemaError(err) {
		t.Errorf("error %v is not a schema error", err)
	}
}

func TestRunTimeframeFilter(t *testing.T) {
	cfg := testConfig()
	cfg.Cluster.K = 0
	cfg.Input.Timeframe = "2025" // nothing matches

	_, err := Run(context.Background(), cfg, strings.NewReader(sampleCSV))
	if err == nil {
		t.Fatal("expected schema error when the timeframe filters out every row")
	}
	if !ingest.IsSchemaError(err) {
		t.Errorf("error %v is not a schema error", err)
	}
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := Run(ctx, testConfig(), strings.NewReader(sampleCSV)); err == nil {
		t.Fatal("expected error from cancelled context")
	}
}
