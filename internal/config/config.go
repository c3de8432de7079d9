// Learnlens - LMS Engagement Analytics and Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/learnlens

// Package config defines the Learnlens configuration model and its layered
// loader (Koanf v2): built-in defaults, then an optional YAML config file,
// then LEARNLENS_* environment variables.
package config

import (
	"fmt"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the root configuration for one pipeline run.
type Config struct {
	Logging   LoggingConfig   `koanf:"logging"`
	Input     InputConfig     `koanf:"input"`
	Analysis  AnalysisConfig  `koanf:"analysis"`
	Cluster   ClusterConfig   `koanf:"cluster"`
	Recommend RecommendConfig `koanf:"recommend"`
	Database  DatabaseConfig  `koanf:"database"`
	Output    OutputConfig    `koanf:"output"`
}

// LoggingConfig controls the global logger.
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error, fatal.
	Level string `koanf:"level" validate:"omitempty,oneof=trace debug info warn warning error fatal disabled"`

	// Format is the log output format: json or console.
	Format string `koanf:"format" validate:"omitempty,oneof=json console"`
}

// InputConfig describes the raw log source and row validation bounds.
type InputConfig struct {
	// Path is the input CSV file. May be overridden on the command line.
	Path string `koanf:"path"`

	// Timeframe optionally restricts the run to a year ("2024") or a
	// year-month ("2024-01"). Empty means all data.
	Timeframe string `koanf:"timeframe"`

	// GradeMin and GradeMax bound the valid grade range. Grades outside the
	// range are treated as absent with a diagnostic.
	GradeMin float64 `koanf:"grade_min" validate:"min=0"`
	GradeMax float64 `koanf:"grade_max" validate:"min=0"`
}

// AnalysisConfig controls metric aggregation.
type AnalysisConfig struct {
	// SessionGap is the inactivity threshold that starts a new session.
	SessionGap time.Duration `koanf:"session_gap"`

	// DefaultWindow is the observation window assumed for students whose
	// events span zero time (e.g. a single event).
	DefaultWindow time.Duration `koanf:"default_window"`

	// Workers is the number of parallel aggregation workers.
	// Zero means runtime.NumCPU().
	Workers int `koanf:"workers" validate:"min=0"`
}

// ClusterConfig controls the behavioral clustering stage.
type ClusterConfig struct {
	// K is the number of clusters. Zero selects k via the elbow heuristic.
	K int `koanf:"k" validate:"min=0"`

	// MaxAutoK bounds the candidate range for heuristic k selection.
	MaxAutoK int `koanf:"max_auto_k" validate:"min=2"`

	// MaxIterations bounds the k-means loop.
	MaxIterations int `koanf:"max_iterations" validate:"min=1"`

	// Seed makes centroid initialization deterministic.
	Seed int64 `koanf:"seed"`
}

// RecommendConfig controls recommendation generation.
type RecommendConfig struct {
	// CorrelationThreshold is the minimum positive feature-grade coefficient
	// for a feature to drive a recommendation.
	CorrelationThreshold float64 `koanf:"correlation_threshold" validate:"min=0,max=1"`

	// MaxPerStudent caps the recommendations emitted per student.
	MaxPerStudent int `koanf:"max_per_student" validate:"min=1"`

	// SuccessGradeThreshold is the mean grade below which seek-help advice
	// is emitted.
	SuccessGradeThreshold float64 `koanf:"success_grade_threshold" validate:"min=0"`
}

// DatabaseConfig controls optional DuckDB persistence of run artifacts.
type DatabaseConfig struct {
	// Path is the DuckDB database file. Empty disables persistence
	// (tests use the empty path for an in-memory database).
	Path string `koanf:"path"`
}

// OutputConfig controls where run artifacts are written.
type OutputConfig struct {
	// Dir is the output directory for exported artifacts.
	Dir string `koanf:"dir"`

	// ExportJSON writes analysis_results.json into Dir.
	ExportJSON bool `koanf:"export_json"`
}

// Default returns a Config with all default values applied.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Input: InputConfig{
			GradeMin: 0,
			GradeMax: 100,
		},
		Analysis: AnalysisConfig{
			SessionGap:    30 * time.Minute,
			DefaultWindow: 24 * time.Hour,
			Workers:       0, // 0 = use runtime.NumCPU()
		},
		Cluster: ClusterConfig{
			K:             0, // 0 = elbow heuristic over [2, max_auto_k]
			MaxAutoK:      6,
			MaxIterations: 100,
			Seed:          42,
		},
		Recommend: RecommendConfig{
			CorrelationThreshold:  0.2,
			MaxPerStudent:         5,
			SuccessGradeThreshold: 70,
		},
		Output: OutputConfig{
			Dir:        "reports",
			ExportJSON: true,
		},
	}
}

// timeframePattern accepts "YYYY" or "YYYY-MM".
var timeframePattern = regexp.MustCompile(`^\d{4}(-(0[1-9]|1[0-2]))?$`)

// Validate checks struct tags plus the semantic constraints the tags cannot
// express. Returns the first violation found.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}

	if c.Input.GradeMax <= c.Input.GradeMin {
		return fmt.Errorf("config validation: input.grade_max (%v) must exceed input.grade_min (%v)",
			c.Input.GradeMax, c.Input.GradeMin)
	}
	if c.Input.Timeframe != "" && !timeframePattern.MatchString(c.Input.Timeframe) {
		return fmt.Errorf("config validation: input.timeframe %q must be YYYY or YYYY-MM", c.Input.Timeframe)
	}
	if c.Analysis.SessionGap <= 0 {
		return fmt.Errorf("config validation: analysis.session_gap must be positive, got %v", c.Analysis.SessionGap)
	}
	if c.Analysis.DefaultWindow <= 0 {
		return fmt.Errorf("config validation: analysis.default_window must be positive, got %v", c.Analysis.DefaultWindow)
	}
	if c.Recommend.SuccessGradeThreshold > c.Input.GradeMax {
		return fmt.Errorf("config validation: recommend.success_grade_threshold (%v) exceeds input.grade_max (%v)",
			c.Recommend.SuccessGradeThreshold, c.Input.GradeMax)
	}

	return nil
}
