// Learnlens - LMS Engagement Analytics and Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/learnlens

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/tomtom215/learnlens/internal/ingest"
)

func TestGenerateSampleFileDeterministic(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.csv")
	b := filepath.Join(dir, "b.csv")

	if err := generateSampleFile(a, 10, 42); err != nil {
		t.Fatalf("generateSampleFile() error = %v", err)
	}
	if err := generateSampleFile(b, 10, 42); err != nil {
		t.Fatalf("generateSampleFile() error = %v", err)
	}

	dataA, err := os.ReadFile(a)
	if err != nil {
		t.Fatal(err)
	}
	dataB, err := os.ReadFile(b)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(dataA, dataB) {
		t.Error("same seed produced different files")
	}
}

func TestGeneratedFileParses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.csv")
	if err := generateSampleFile(path, 15, 42); err != nil {
		t.Fatalf("generateSampleFile() error = %v", err)
	}

	res, err := ingest.ParseFile(path, ingest.Options{})
	if err != nil {
		t.Fatalf("ParseFile() error = %v", err)
	}
	if len(res.Events) == 0 {
		t.Fatal("generated file produced no events")
	}

	students := make(map[string]bool)
	for _, ev := range res.Events {
		students[ev.StudentID] = true
	}
	if len(students) == 0 || len(students) > 15 {
		t.Errorf("got %d students, want at most 15", len(students))
	}
}
