// Learnlens - LMS Engagement Analytics and Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/learnlens

// Package main is the entry point for the Learnlens batch analyzer.
//
// Learnlens ingests raw LMS activity logs (CSV), derives per-student
// engagement features and cohort metrics, correlates engagement with grades,
// clusters students into behavioral segments, and emits per-student study
// recommendations.
//
// # Pipeline
//
// One run executes the following stages in order:
//
//  1. Ingest: parse and validate the CSV activity log; row-level defects
//     become diagnostics, schema-level defects abort the run
//  2. Metrics: per-student feature vectors, sessions, cohort summary
//  3. Correlation: Pearson correlation of each feature against grades
//  4. Clustering: seeded k-means over z-scored features
//  5. Recommendations: correlation-gap and behavioral rules per student
//
// Results are exported as JSON and optionally persisted to DuckDB for SQL
// queries across runs.
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins):
//   - Environment variables (LEARNLENS_ prefix, e.g. LEARNLENS_CLUSTER_K=4)
//   - Config file (config.yaml, or the path in LEARNLENS_CONFIG)
//   - Built-in defaults
//
// # Example Usage
//
// Analyze a semester of activity:
//
//	learnlens -input activity.csv -output reports
//
// Restrict to one month and pin the cluster count:
//
//	LEARNLENS_CLUSTER_K=4 learnlens -input activity.csv -timeframe 2024-01
//
// Generate a synthetic dataset for evaluation:
//
//	learnlens -generate 50 -input sample.csv
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	json "github.com/goccy/go-json"

	"github.com/tomtom215/learnlens/internal/config"
	"github.com/tomtom215/learnlens/internal/logging"
	"github.com/tomtom215/learnlens/internal/pipeline"
	"github.com/tomtom215/learnlens/internal/store"
)

func main() {
	var (
		inputPath  = flag.String("input", "", "input CSV activity log")
		configPath = flag.String("config", "", "config file (YAML)")
		outputDir  = flag.String("output", "", "output directory for exported artifacts")
		studentID  = flag.String("student", "", "print one student's results to stdout")
		timeframe  = flag.String("timeframe", "", "restrict the run to YYYY or YYYY-MM")
		generate   = flag.Int("generate", 0, "generate a synthetic dataset with N students instead of analyzing")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	// Command-line flags override file and environment settings.
	if *inputPath != "" {
		cfg.Input.Path = *inputPath
	}
	if *outputDir != "" {
		cfg.Output.Dir = *outputDir
	}
	if *timeframe != "" {
		cfg.Input.Timeframe = *timeframe
	}
	if err := cfg.Validate(); err != nil {
		logging.Fatal().Err(err).Msg("Invalid configuration")
	}

	if cfg.Input.Path == "" {
		logging.Fatal().Msg("No input file: pass -input or set input.path")
	}

	if *generate > 0 {
		if err := generateSampleFile(cfg.Input.Path, *generate, cfg.Cluster.Seed); err != nil {
			logging.Fatal().Err(err).Msg("Failed to generate sample data")
		}
		logging.Info().
			Str("path", cfg.Input.Path).
			Int("students", *generate).
			Msg("Sample data written")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := pipeline.RunFile(ctx, cfg, cfg.Input.Path)
	if err != nil {
		logging.Fatal().Err(err).Msg("Analysis failed")
	}

	if cfg.Output.ExportJSON {
		path, err := exportJSON(cfg.Output.Dir, res)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to export results")
		}
		logging.Info().Str("path", path).Msg("Results exported")
	}

	if cfg.Database.Path != "" {
		if err := persist(ctx, cfg.Database.Path, res); err != nil {
			logging.Fatal().Err(err).Msg("Failed to persist run")
		}
	}

	if *studentID != "" {
		if err := printStudent(res, *studentID); err != nil {
			logging.Fatal().Err(err).Msg("Student lookup failed")
		}
	}
}

// exportJSON writes the full result as analysis_results.json under dir.
func exportJSON(dir string, res *pipeline.Result) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	path := filepath.Join(dir, "analysis_results.json")
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal results: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write results: %w", err)
	}
	return path, nil
}

// persist saves the run to the configured DuckDB database.
func persist(ctx context.Context, path string, res *pipeline.Result) error {
	s, err := store.Open(ctx, path)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Close(); err != nil {
			logging.Err(err).Msg("Error closing database")
		}
	}()
	return s.SaveRun(ctx, res)
}

// printStudent writes one student's result to stdout.
func printStudent(res *pipeline.Result, id string) error {
	for _, st := range res.Students {
		if st.StudentID != id {
			continue
		}
		data, err := json.MarshalIndent(st, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal student: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}
	return fmt.Errorf("student %q not found in results", id)
}
