// Learnlens - LMS Engagement Analytics and Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/learnlens

// Package store persists run artifacts to DuckDB so past runs can be
// compared and queried with SQL. Persistence is optional; the pipeline works
// without it.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/duckdb/duckdb-go/v2" // database/sql driver
	json "github.com/goccy/go-json"

	"github.com/tomtom215/learnlens/internal/logging"
	"github.com/tomtom215/learnlens/internal/models"
	"github.com/tomtom215/learnlens/internal/pipeline"
)

// Store wraps a DuckDB database holding run artifacts.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the DuckDB database at path and ensures the
// schema exists. An empty path opens an in-memory database.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping duckdb: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		run_id         VARCHAR PRIMARY KEY,
		generated_at   TIMESTAMP NOT NULL,
		input_path     VARCHAR,
		timeframe      VARCHAR,
		rows_read      INTEGER NOT NULL,
		total_students INTEGER NOT NULL,
		total_events   INTEGER NOT NULL,
		diagnostics    INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS events (
		run_id            VARCHAR NOT NULL,
		student_id        VARCHAR NOT NULL,
		event_type        VARCHAR NOT NULL,
		event_time        TIMESTAMP NOT NULL,
		module            VARCHAR,
		course            VARCHAR,
		grade             DOUBLE,
		activity_duration DOUBLE NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS student_features (
		run_id                   VARCHAR NOT NULL,
		student_id               VARCHAR NOT NULL,
		total_events             DOUBLE NOT NULL,
		events_per_day           DOUBLE NOT NULL,
		active_days              DOUBLE NOT NULL,
		forum_participation_rate DOUBLE NOT NULL,
		content_interaction_rate DOUBLE NOT NULL,
		assessment_rate          DOUBLE NOT NULL,
		avg_session_duration     DOUBLE NOT NULL,
		avg_session_events       DOUBLE NOT NULL,
		avg_activity_duration    DOUBLE NOT NULL,
		activity_regularity      DOUBLE NOT NULL,
		grade                    DOUBLE,
		has_grade                BOOLEAN NOT NULL,
		cluster                  INTEGER NOT NULL,
		cluster_summary          VARCHAR,
		PRIMARY KEY (run_id, student_id)
	)`,
	`CREATE TABLE IF NOT EXISTS correlations (
		run_id      VARCHAR NOT NULL,
		feature     VARCHAR NOT NULL,
		coefficient DOUBLE,
		sample_size INTEGER NOT NULL,
		defined     BOOLEAN NOT NULL,
		reason      VARCHAR,
		rank        INTEGER NOT NULL,
		PRIMARY KEY (run_id, feature)
	)`,
	`CREATE TABLE IF NOT EXISTS clusters (
		run_id   VARCHAR NOT NULL,
		idx      INTEGER NOT NULL,
		size     INTEGER NOT NULL,
		summary  VARCHAR,
		centroid VARCHAR NOT NULL,
		PRIMARY KEY (run_id, idx)
	)`,
	`CREATE TABLE IF NOT EXISTS recommendations (
		run_id     VARCHAR NOT NULL,
		student_id VARCHAR NOT NULL,
		rank       INTEGER NOT NULL,
		category   VARCHAR NOT NULL,
		text       VARCHAR NOT NULL,
		score      DOUBLE NOT NULL,
		feature    VARCHAR,
		PRIMARY KEY (run_id, student_id, rank)
	)`,
}

func (s *Store) initSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// SaveRun persists a complete run in one transaction.
func (s *Store) SaveRun(ctx context.Context, res *pipeline.Result) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
				logging.Err(rbErr).Str("run_id", res.RunID).Msg("Rollback failed")
			}
		}
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, generated_at, input_path, timeframe, rows_read,
			total_students, total_events, diagnostics)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		res.RunID, res.GeneratedAt, res.InputPath, res.Timeframe, res.RowsRead,
		res.Cohort.TotalStudents, res.Cohort.TotalEvents, len(res.Diagnostics))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	if err = insertEvents(ctx, tx, res.RunID, res.Events); err != nil {
		return err
	}

	for _, st := range res.Students {
		if err = s.insertStudent(ctx, tx, res.RunID, st); err != nil {
			return err
		}
	}

	if res.Correlation != nil {
		for rank, fc := range res.Correlation.Features {
			var coef any
			if fc.Defined {
				coef = fc.Coefficient
			}
			_, err = tx.ExecContext(ctx,
				`INSERT INTO correlations (run_id, feature, coefficient, sample_size,
					defined, reason, rank)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				res.RunID, fc.Feature, coef, fc.SampleSize, fc.Defined, fc.Reason, rank)
			if err != nil {
				return fmt.Errorf("insert correlation %s: %w", fc.Feature, err)
			}
		}
	}

	if res.Clusters != nil && res.Clusters.Defined {
		for idx := 0; idx < res.Clusters.K; idx++ {
			centroid, mErr := json.Marshal(res.Clusters.Centroids[idx])
			if mErr != nil {
				return fmt.Errorf("marshal centroid %d: %w", idx, mErr)
			}
			_, err = tx.ExecContext(ctx,
				`INSERT INTO clusters (run_id, idx, size, summary, centroid)
				 VALUES (?, ?, ?, ?, ?)`,
				res.RunID, idx, res.Clusters.Sizes[idx], res.Clusters.Summaries[idx], string(centroid))
			if err != nil {
				return fmt.Errorf("insert cluster %d: %w", idx, err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	logging.Info().
		Str("run_id", res.RunID).
		Int("students", len(res.Students)).
		Msg("Run persisted")
	return nil
}

func insertEvents(ctx context.Context, tx *sql.Tx, runID string, events []models.Event) error {
	if len(events) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO events (run_id, student_id, event_type, event_time,
			module, course, grade, activity_duration)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare event insert: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		var grade any
		if ev.HasGrade {
			grade = ev.Grade
		}
		if _, err := stmt.ExecContext(ctx, runID, ev.StudentID, string(ev.Type),
			ev.Timestamp, ev.ModuleID, ev.CourseID, grade, ev.Duration); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
	}
	return nil
}

func (s *Store) insertStudent(ctx context.Context, tx *sql.Tx, runID string, st pipeline.StudentResult) error {
	var grade any
	if st.HasGrade {
		grade = st.Grade
	}
	f := st.Features
	_, err := tx.ExecContext(ctx,
		`INSERT INTO student_features (run_id, student_id,
			total_events, events_per_day, active_days,
			forum_participation_rate, content_interaction_rate, assessment_rate,
			avg_session_duration, avg_session_events, avg_activity_duration,
			activity_regularity, grade, has_grade, cluster, cluster_summary)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, st.StudentID,
		f.TotalEvents, f.EventsPerDay, f.ActiveDays,
		f.ForumParticipationRate, f.ContentInteractionRate, f.AssessmentRate,
		f.AvgSessionDuration, f.AvgSessionEvents, f.AvgActivityDuration,
		f.ActivityRegularity, grade, st.HasGrade, st.Cluster, st.ClusterSummary)
	if err != nil {
		return fmt.Errorf("insert student %s: %w", st.StudentID, err)
	}

	for rank, rec := range st.Recommendations {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO recommendations (run_id, student_id, rank, category, text, score, feature)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			runID, st.StudentID, rank, rec.CategoryName, rec.Text, rec.Score, rec.Feature)
		if err != nil {
			return fmt.Errorf("insert recommendation for %s: %w", st.StudentID, err)
		}
	}
	return nil
}

// RunSummary is the persisted header of one run.
type RunSummary struct {
	RunID         string
	GeneratedAt   time.Time
	InputPath     string
	Timeframe     string
	RowsRead      int
	TotalStudents int
	TotalEvents   int
	Diagnostics   int
}

// ListRuns returns persisted run headers, newest first.
func (s *Store) ListRuns(ctx context.Context) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, generated_at, input_path, timeframe, rows_read,
			total_students, total_events, diagnostics
		 FROM runs ORDER BY generated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.RunID, &r.GeneratedAt, &r.InputPath, &r.Timeframe,
			&r.RowsRead, &r.TotalStudents, &r.TotalEvents, &r.Diagnostics); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// StudentRecord is one persisted student row.
type StudentRecord struct {
	StudentID      string
	Features       []float64
	Grade          sql.NullFloat64
	HasGrade       bool
	Cluster        int
	ClusterSummary string
}

// StudentFeatures returns the persisted feature rows of one run in
// lexicographic student order. Features follow the canonical feature order.
func (s *Store) StudentFeatures(ctx context.Context, runID string) ([]StudentRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT student_id,
			total_events, events_per_day, active_days,
			forum_participation_rate, content_interaction_rate, assessment_rate,
			avg_session_duration, avg_session_events, avg_activity_duration,
			activity_regularity, grade, has_grade, cluster, cluster_summary
		 FROM student_features WHERE run_id = ? ORDER BY student_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query student features: %w", err)
	}
	defer rows.Close()

	var out []StudentRecord
	for rows.Next() {
		r := StudentRecord{Features: make([]float64, 10)}
		var summary sql.NullString
		if err := rows.Scan(&r.StudentID,
			&r.Features[0], &r.Features[1], &r.Features[2],
			&r.Features[3], &r.Features[4], &r.Features[5],
			&r.Features[6], &r.Features[7], &r.Features[8],
			&r.Features[9], &r.Grade, &r.HasGrade, &r.Cluster, &summary); err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		r.ClusterSummary = summary.String
		out = append(out, r)
	}
	return out, rows.Err()
}
