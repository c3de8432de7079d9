// Learnlens - LMS Engagement Analytics and Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/learnlens

// Package pipeline orchestrates one analysis run: ingest, metrics,
// correlation, clustering, recommendations. Each stage is logged with its
// duration; only schema errors from ingest abort a run, everything else is
// carried as diagnostics on the result.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/learnlens/internal/cluster"
	"github.com/tomtom215/learnlens/internal/config"
	"github.com/tomtom215/learnlens/internal/correlate"
	"github.com/tomtom215/learnlens/internal/ingest"
	"github.com/tomtom215/learnlens/internal/logging"
	"github.com/tomtom215/learnlens/internal/metrics"
	"github.com/tomtom215/learnlens/internal/models"
	"github.com/tomtom215/learnlens/internal/recommend"
)

// StudentResult bundles everything derived for one student.
type StudentResult struct {
	// StudentID identifies the student.
	StudentID string `json:"student_id"`

	// Features is the aggregated feature vector.
	Features models.FeatureVector `json:"features"`

	// Grade is the derived final grade. Only meaningful when HasGrade is true.
	Grade float64 `json:"grade,omitempty"`

	// HasGrade indicates whether the student had any graded events.
	HasGrade bool `json:"has_grade"`

	// Cluster is the behavioral cluster index, or -1 when clustering was
	// undefined for the run.
	Cluster int `json:"cluster"`

	// ClusterSummary describes the assigned cluster.
	ClusterSummary string `json:"cluster_summary,omitempty"`

	// Recommendations are the ranked, capped recommendations.
	Recommendations []recommend.Recommendation `json:"recommendations"`
}

// Result is the complete output of one run.
type Result struct {
	// RunID uniquely identifies the run.
	RunID string `json:"run_id"`

	// GeneratedAt is the run completion time.
	GeneratedAt time.Time `json:"generated_at"`

	// InputPath is the source file, when known.
	InputPath string `json:"input_path,omitempty"`

	// Timeframe is the applied timeframe filter, when any.
	Timeframe string `json:"timeframe,omitempty"`

	// RowsRead is the number of data rows read from the source.
	RowsRead int `json:"rows_read"`

	// Cohort is the cohort-level summary.
	Cohort metrics.CohortSummary `json:"cohort"`

	// Medians holds the cohort median of each feature.
	Medians models.FeatureVector `json:"medians"`

	// Students holds per-student results in deterministic (lexicographic)
	// order.
	Students []StudentResult `json:"students"`

	// Correlation is the feature/grade correlation result.
	Correlation *correlate.Result `json:"correlation"`

	// Clusters is the behavioral clustering result.
	Clusters *cluster.Result `json:"clusters"`

	// Diagnostics aggregates every recovered anomaly across stages.
	Diagnostics []models.Diagnostic `json:"diagnostics,omitempty"`

	// Events is the validated event sequence, kept for persistence.
	// Excluded from the JSON export, which reports derived artifacts only.
	Events []models.Event `json:"-"`
}

// Run executes the full pipeline over the CSV data in r.
// A schema-level defect in the input (missing required columns, zero valid
// rows) returns an error wrapping ingest.SchemaError; row-level anomalies
// surface as diagnostics on the Result instead.
func Run(ctx context.Context, cfg *config.Config, r io.Reader) (*Result, error) {
	runID := uuid.NewString()
	log := logging.With().Str("run_id", runID).Logger()
	started := time.Now()

	parsed, err := ingest.Parse(r, ingest.Options{
		GradeMin:  cfg.Input.GradeMin,
		GradeMax:  cfg.Input.GradeMax,
		Timeframe: cfg.Input.Timeframe,
	})
	if err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}
	log.Info().
		Int("rows_read", parsed.RowsRead).
		Int("events", len(parsed.Events)).
		Int("diagnostics", len(parsed.Diagnostics)).
		Dur("elapsed", time.Since(started)).
		Msg("Ingest complete")

	stage := time.Now()
	engine := metrics.NewEngine(metrics.Config{
		SessionGap:    cfg.Analysis.SessionGap,
		DefaultWindow: cfg.Analysis.DefaultWindow,
		Workers:       cfg.Analysis.Workers,
	})
	snap, err := engine.Aggregate(ctx, parsed.Events)
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	log.Info().
		Int("students", len(snap.Order)).
		Dur("elapsed", time.Since(stage)).
		Msg("Metrics complete")

	profiles := snap.ProfilesInOrder()

	stage = time.Now()
	corr := correlate.Compute(profiles)
	log.Info().
		Bool("defined", corr.Defined).
		Int("sample_size", corr.SampleSize).
		Dur("elapsed", time.Since(stage)).
		Msg("Correlation complete")

	stage = time.Now()
	clusters, err := cluster.Run(ctx, profiles, cluster.Config{
		K:             cfg.Cluster.K,
		MaxAutoK:      cfg.Cluster.MaxAutoK,
		MaxIterations: cfg.Cluster.MaxIterations,
		Seed:          cfg.Cluster.Seed,
	})
	if err != nil {
		return nil, fmt.Errorf("cluster: %w", err)
	}
	log.Info().
		Int("k", clusters.K).
		Bool("defined", clusters.Defined).
		Dur("elapsed", time.Since(stage)).
		Msg("Clustering complete")

	stage = time.Now()
	recommender := recommend.NewEngine(recommend.Config{
		CorrelationThreshold:  cfg.Recommend.CorrelationThreshold,
		MaxPerStudent:         cfg.Recommend.MaxPerStudent,
		SuccessGradeThreshold: cfg.Recommend.SuccessGradeThreshold,
	})

	success := recommender.SuccessPatterns(profiles)

	students := make([]StudentResult, 0, len(profiles))
	totalRecs := 0
	for _, p := range profiles {
		sr := StudentResult{
			StudentID: p.StudentID,
			Features:  p.Features,
			Grade:     p.Grade,
			HasGrade:  p.HasGrade,
			Cluster:   -1,
		}
		if clusters.Defined {
			if c, ok := clusters.Labels[p.StudentID]; ok {
				sr.Cluster = c
				sr.ClusterSummary = clusters.Summaries[c]
			}
		}
		sr.Recommendations = recommender.ForStudent(recommend.Input{
			Profile:        p,
			Medians:        snap.Medians,
			Correlation:    corr,
			Success:        success,
			ClusterSummary: sr.ClusterSummary,
		})
		totalRecs += len(sr.Recommendations)
		students = append(students, sr)
	}
	log.Info().
		Int("recommendations", totalRecs).
		Dur("elapsed", time.Since(stage)).
		Msg("Recommendations complete")

	res := &Result{
		RunID:       runID,
		GeneratedAt: time.Now().UTC(),
		InputPath:   cfg.Input.Path,
		Timeframe:   cfg.Input.Timeframe,
		RowsRead:    parsed.RowsRead,
		Cohort:      snap.Cohort,
		Medians:     snap.Medians,
		Students:    students,
		Correlation: corr,
		Clusters:    clusters,
		Events:      parsed.Events,
	}
	res.Diagnostics = append(res.Diagnostics, parsed.Diagnostics...)
	res.Diagnostics = append(res.Diagnostics, snap.Diagnostics...)
	res.Diagnostics = append(res.Diagnostics, clusters.Diagnostics...)

	log.Info().
		Int("students", len(students)).
		Int("diagnostics", len(res.Diagnostics)).
		Dur("elapsed", time.Since(started)).
		Msg("Run complete")

	return res, nil
}

// RunFile is Run over a file path.
func RunFile(ctx context.Context, cfg *config.Config, path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			logging.Warn().Err(closeErr).Str("path", path).Msg("Error closing input file")
		}
	}()

	cfg.Input.Path = path
	return Run(ctx, cfg, f)
}
