// Learnlens - LMS Engagement Analytics and Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/learnlens

// Package metrics aggregates validated events into per-student feature
// vectors and a cohort-level summary.
//
// Aggregation is embarrassingly parallel across students: the event stream is
// partitioned by student_id, worker goroutines each compute a disjoint chunk
// of profiles, and the merged snapshot is immutable once Aggregate returns.
// Parallelism never changes results.
package metrics

import (
	"context"
	"math"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/learnlens/internal/logging"
	"github.com/tomtom215/learnlens/internal/models"
)

// Config contains configuration for metric aggregation.
type Config struct {
	// SessionGap is the inactivity threshold that starts a new session.
	// Default: 30 minutes.
	SessionGap time.Duration

	// DefaultWindow is the observation window assumed when a student's
	// events span zero time (single event). Default: 24 hours.
	DefaultWindow time.Duration

	// Workers is the number of parallel aggregation workers.
	// Zero means runtime.NumCPU().
	Workers int
}

// normalized applies defaults for zero values.
func (c Config) normalized() Config {
	if c.SessionGap <= 0 {
		c.SessionGap = 30 * time.Minute
	}
	if c.DefaultWindow <= 0 {
		c.DefaultWindow = 24 * time.Hour
	}
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	return c
}

// GradeStats summarizes the grade distribution over graded events.
type GradeStats struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Std    float64 `json:"std"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Count  int     `json:"count"`
}

// TimeRange is the span of observed activity.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// CohortSummary is the cohort-level output of the metrics pass.
type CohortSummary struct {
	// TotalStudents is the number of distinct students observed.
	TotalStudents int `json:"total_students"`

	// TotalEvents is the number of valid events aggregated.
	TotalEvents int `json:"total_events"`

	// EventTypeCounts is the event-type histogram.
	EventTypeCounts map[models.EventType]int `json:"event_type_counts"`

	// CategoryCounts is the behavioral-category histogram.
	CategoryCounts map[string]int `json:"category_counts"`

	// TimeRange spans the earliest to latest event.
	TimeRange TimeRange `json:"time_range"`

	// GradeStats summarizes graded events. Nil when no event carried a grade.
	GradeStats *GradeStats `json:"grade_stats,omitempty"`

	// HourlyActivity counts events per hour of day (0-23).
	HourlyActivity [24]int `json:"hourly_activity"`

	// WeekdayActivity counts events per weekday (0=Sunday).
	WeekdayActivity [7]int `json:"weekday_activity"`

	// WeekendRatio is the share of events on Saturday or Sunday.
	WeekendRatio float64 `json:"weekend_ratio"`
}

// Snapshot is the immutable result of one metrics pass.
type Snapshot struct {
	// Profiles maps student_id to the derived profile.
	Profiles map[string]*models.StudentProfile `json:"profiles"`

	// Order lists student IDs in lexicographic order for deterministic
	// iteration.
	Order []string `json:"order"`

	// Cohort is the cohort-level summary.
	Cohort CohortSummary `json:"cohort"`

	// Medians holds the cohort median of each feature.
	Medians models.FeatureVector `json:"medians"`

	// Diagnostics records recovered numeric degeneracies.
	Diagnostics []models.Diagnostic `json:"diagnostics,omitempty"`
}

// ProfilesInOrder returns the profiles in deterministic (lexicographic) order.
func (s *Snapshot) ProfilesInOrder() []*models.StudentProfile {
	out := make([]*models.StudentProfile, 0, len(s.Order))
	for _, id := range s.Order {
		out = append(out, s.Profiles[id])
	}
	return out
}

// Engine computes per-student and cohort descriptive statistics.
type Engine struct {
	cfg Config
}

// NewEngine creates an Engine, applying defaults for zero config values.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg.normalized()}
}

// Aggregate groups events by student and computes one FeatureVector per
// student plus the cohort summary. Events must already be in chronological
// order (the parser guarantees this), so per-student sequences stay
// chronological under stable grouping.
func (e *Engine) Aggregate(ctx context.Context, events []models.Event) (*Snapshot, error) {
	byStudent := make(map[string][]models.Event)
	for _, ev := range events {
		byStudent[ev.StudentID] = append(byStudent[ev.StudentID], ev)
	}

	order := make([]string, 0, len(byStudent))
	for id := range byStudent {
		order = append(order, id)
	}
	sort.Strings(order)

	snap := &Snapshot{
		Profiles: make(map[string]*models.StudentProfile, len(order)),
		Order:    order,
	}

	// Compute profiles in parallel over disjoint chunks of students.
	// Each index is written by exactly one worker.
	profiles := make([]*models.StudentProfile, len(order))
	diagsByStudent := make([][]models.Diagnostic, len(order))

	var wg sync.WaitGroup
	workers := e.cfg.Workers
	chunkSize := (len(order) + workers - 1) / workers

	for w := 0; w < workers; w++ {
		start := w * chunkSize
		end := start + chunkSize
		if end > len(order) {
			end = len(order)
		}
		if start >= end {
			break
		}

		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				if ctx.Err() != nil {
					return
				}
				id := order[i]
				profiles[i], diagsByStudent[i] = e.computeProfile(id, byStudent[id])
			}
		}(start, end)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for i, p := range profiles {
		snap.Profiles[p.StudentID] = p
		snap.Diagnostics = append(snap.Diagnostics, diagsByStudent[i]...)
	}

	snap.Cohort = e.cohortSummary(events, len(order))
	snap.Medians = featureMedians(profiles)

	logging.Info().
		Int("students", len(order)).
		Int("events", len(events)).
		Int("diagnostics", len(snap.Diagnostics)).
		Msg("Aggregation complete")

	return snap, nil
}

// computeProfile derives one student's feature vector from their
// chronological event sequence.
func (e *Engine) computeProfile(id string, events []models.Event) (*models.StudentProfile, []models.Diagnostic) {
	var diags []models.Diagnostic
	n := len(events)

	window := events[n-1].Timestamp.Sub(events[0].Timestamp)
	if window <= 0 {
		window = e.cfg.DefaultWindow
	}
	windowDays := window.Hours() / 24

	activeDays := make(map[string]struct{}, n)
	var categoryCounts [4]int
	var durationSum float64
	var gradeSum float64
	graded := 0

	for _, ev := range events {
		activeDays[ev.Timestamp.Format("2006-01-02")] = struct{}{}
		categoryCounts[ev.Type.Category()]++
		durationSum += ev.Duration
		if ev.HasGrade {
			gradeSum += ev.Grade
			graded++
		}
	}

	avgSessionDuration, avgSessionEvents := e.sessionStats(events)

	regularity, regDiag := regularity(events)
	if regDiag != "" {
		diags = append(diags, models.Diagnostic{
			Kind:   models.DiagNumericDegeneracy,
			Stage:  "metrics",
			Reason: "student " + id + ": " + regDiag,
		})
	}

	fv := models.FeatureVector{
		TotalEvents:            float64(n),
		EventsPerDay:           float64(n) / windowDays,
		ActiveDays:             float64(len(activeDays)),
		ForumParticipationRate: float64(categoryCounts[models.CategorySocial]) / float64(n),
		ContentInteractionRate: float64(categoryCounts[models.CategoryContent]) / float64(n),
		AssessmentRate:         float64(categoryCounts[models.CategoryAssessment]) / float64(n),
		AvgSessionDuration:     avgSessionDuration,
		AvgSessionEvents:       avgSessionEvents,
		AvgActivityDuration:    durationSum / float64(n),
		ActivityRegularity:     regularity,
	}
	fv, sanitizeDiags := sanitizeVector(id, fv)
	diags = append(diags, sanitizeDiags...)

	p := &models.StudentProfile{
		StudentID:    id,
		Events:       events,
		Features:     fv,
		GradedEvents: graded,
	}
	if graded > 0 {
		p.Grade = gradeSum / float64(graded)
		p.HasGrade = true
	}

	return p, diags
}

// sessionStats segments the event sequence into sessions and returns the
// mean session duration (seconds) and mean events per session. A gap
// exceeding the inactivity threshold starts a new session. A single-event
// session lasts that event's activity duration; a multi-event session spans
// first-to-last timestamps plus the final event's duration.
func (e *Engine) sessionStats(events []models.Event) (avgDuration, avgEvents float64) {
	var durations []float64
	var counts []int

	start := 0
	for i := 1; i <= len(events); i++ {
		if i < len(events) && events[i].Timestamp.Sub(events[i-1].Timestamp) <= e.cfg.SessionGap {
			continue
		}
		session := events[start:i]
		if len(session) == 1 {
			durations = append(durations, session[0].Duration)
		} else {
			span := session[len(session)-1].Timestamp.Sub(session[0].Timestamp).Seconds()
			durations = append(durations, span+session[len(session)-1].Duration)
		}
		counts = append(counts, len(session))
		start = i
	}

	avgDuration = mean(durations)
	total := 0
	for _, c := range counts {
		total += c
	}
	avgEvents = float64(total) / float64(len(counts))
	return avgDuration, avgEvents
}

// regularity computes the inverse coefficient of variation of inter-event
// gaps: mean(gaps) / std(gaps). It is defined as 0 when fewer than two gaps
// exist (fewer than three events). A zero-variance gap sequence would divide
// by zero, so it substitutes 0 and reports the degeneracy.
func regularity(events []models.Event) (float64, string) {
	if len(events) < 3 {
		return 0, ""
	}

	gaps := make([]float64, 0, len(events)-1)
	for i := 1; i < len(events); i++ {
		gaps = append(gaps, events[i].Timestamp.Sub(events[i-1].Timestamp).Seconds())
	}

	m := mean(gaps)
	sd := stddev(gaps, m)
	if sd == 0 || m <= 0 {
		return 0, "zero variance in inter-event gaps, regularity substituted with 0"
	}
	return m / sd, ""
}

// sanitizeVector zeroes any non-finite feature value and reports each
// substitution. All downstream arithmetic assumes finite inputs.
func sanitizeVector(id string, fv models.FeatureVector) (models.FeatureVector, []models.Diagnostic) {
	var diags []models.Diagnostic
	vals := fv.Values()
	names := models.FeatureNames()
	dirty := false

	for i, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			diags = append(diags, models.Diagnostic{
				Kind:   models.DiagNumericDegeneracy,
				Stage:  "metrics",
				Reason: "student " + id + ": feature " + names[i] + " was not a non-negative finite number, substituted with 0",
			})
			vals[i] = 0
			dirty = true
		}
	}

	if dirty {
		fv = models.FeatureVectorFromValues(vals)
	}
	return fv, diags
}

// cohortSummary computes the cohort-level descriptive statistics.
func (e *Engine) cohortSummary(events []models.Event, students int) CohortSummary {
	summary := CohortSummary{
		TotalStudents:   students,
		TotalEvents:     len(events),
		EventTypeCounts: make(map[models.EventType]int),
		CategoryCounts:  make(map[string]int),
	}
	if len(events) == 0 {
		return summary
	}

	summary.TimeRange = TimeRange{Start: events[0].Timestamp, End: events[len(events)-1].Timestamp}

	var grades []float64
	weekend := 0
	for _, ev := range events {
		summary.EventTypeCounts[ev.Type]++
		summary.CategoryCounts[ev.Type.Category().String()]++
		summary.HourlyActivity[ev.Timestamp.Hour()]++
		wd := int(ev.Timestamp.Weekday())
		summary.WeekdayActivity[wd]++
		if wd == 0 || wd == 6 {
			weekend++
		}
		if ev.HasGrade {
			grades = append(grades, ev.Grade)
		}
	}
	summary.WeekendRatio = float64(weekend) / float64(len(events))

	if len(grades) > 0 {
		m := mean(grades)
		summary.GradeStats = &GradeStats{
			Mean:   m,
			Median: median(grades),
			Std:    stddev(grades, m),
			Min:    minimum(grades),
			Max:    maximum(grades),
			Count:  len(grades),
		}
	}

	return summary
}

// featureMedians computes the cohort median of each feature.
func featureMedians(profiles []*models.StudentProfile) models.FeatureVector {
	if len(profiles) == 0 {
		return models.FeatureVector{}
	}

	names := models.FeatureNames()
	medians := make([]float64, len(names))
	column := make([]float64, len(profiles))

	for fi := range names {
		for pi, p := range profiles {
			column[pi] = p.Features.Values()[fi]
		}
		medians[fi] = median(column)
	}

	return models.FeatureVectorFromValues(medians)
}
