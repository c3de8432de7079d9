// Learnlens - LMS Engagement Analytics and Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/learnlens

// Package recommend turns per-student analytics into actionable study
// advice. Rules fall into two families: correlation-gap rules, which fire
// when a student lags the cohort median on a feature that correlates with
// grades, and behavioral rules, which inspect raw activity patterns such as
// session pacing, study-hour distribution, and grade trend.
//
// Output is deterministic: recommendations are deduplicated by text, ranked
// by score with lexicographic tie-breaking, and capped per student.
package recommend

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/tomtom215/learnlens/internal/correlate"
	"github.com/tomtom215/learnlens/internal/models"
)

// Category classifies a recommendation by the signal that produced it.
type Category int

const (
	// CategoryEngagement covers correlation-gap advice on activity features.
	CategoryEngagement Category = iota
	// CategoryPerformance covers grade-driven advice.
	CategoryPerformance
	// CategoryHabits covers study-pattern advice (pacing, scheduling).
	CategoryHabits
	// CategoryReinforcement is the positive fallback when nothing else fires.
	CategoryReinforcement
)

// String returns a human-readable name for the category.
func (c Category) String() string {
	switch c {
	case CategoryEngagement:
		return "engagement"
	case CategoryPerformance:
		return "performance"
	case CategoryHabits:
		return "habits"
	case CategoryReinforcement:
		return "reinforcement"
	default:
		return "unknown"
	}
}

// Recommendation is one piece of advice for one student.
type Recommendation struct {
	// StudentID identifies the recipient.
	StudentID string `json:"student_id"`

	// Category classifies the producing rule family.
	Category Category `json:"-"`

	// CategoryName is the serialized category.
	CategoryName string `json:"category"`

	// Text is the advice shown to the student.
	Text string `json:"text"`

	// Score orders recommendations; higher means more urgent.
	Score float64 `json:"score"`

	// Feature names the driving feature for correlation-gap advice.
	Feature string `json:"feature,omitempty"`
}

// Config contains recommendation engine configuration.
type Config struct {
	// CorrelationThreshold is the minimum grade correlation for a feature to
	// drive a gap recommendation. Default: 0.2.
	CorrelationThreshold float64

	// MaxPerStudent caps the recommendations per student. Default: 5.
	MaxPerStudent int

	// SuccessGradeThreshold is the grade below which performance advice
	// fires. Default: 70.
	SuccessGradeThreshold float64
}

// normalized applies defaults for zero values.
func (c Config) normalized() Config {
	if c.CorrelationThreshold <= 0 {
		c.CorrelationThreshold = 0.2
	}
	if c.MaxPerStudent <= 0 {
		c.MaxPerStudent = 5
	}
	if c.SuccessGradeThreshold <= 0 {
		c.SuccessGradeThreshold = 70
	}
	return c
}

// Input bundles everything the engine needs for one student.
type Input struct {
	// Profile is the student's derived profile.
	Profile *models.StudentProfile

	// Medians holds the cohort median of each feature.
	Medians models.FeatureVector

	// Correlation is the cohort-level feature/grade correlation result.
	// May be undefined; gap rules are skipped then.
	Correlation *correlate.Result

	// Success summarizes the successful subgroup's behavior, computed once
	// per run with SuccessPatterns. Nil when the cohort has no successful
	// students; the comparison rule is skipped then.
	Success *SuccessPatterns

	// ClusterSummary describes the student's behavioral cluster, used by the
	// positive-reinforcement fallback. May be empty.
	ClusterSummary string
}

// SuccessPatterns are the average behaviors of students at or above the
// success grade threshold, used to compare everyone else against them.
type SuccessPatterns struct {
	// Students is the size of the successful subgroup.
	Students int `json:"students"`

	// AvgEvents is the subgroup's mean event count per student.
	AvgEvents float64 `json:"avg_events"`

	// AvgSocialEvents is the subgroup's mean count of social-category events
	// per student.
	AvgSocialEvents float64 `json:"avg_social_events"`
}

// minSuccessGrades is the minimum graded events for a student to qualify as
// successful; fewer make the mean grade too noisy to hold up as a pattern.
const minSuccessGrades = 3

// SuccessPatterns summarizes the students whose mean grade meets the success
// threshold with at least minSuccessGrades graded events. Returns nil when
// no student qualifies.
func (e *Engine) SuccessPatterns(profiles []*models.StudentProfile) *SuccessPatterns {
	var n int
	var events, social float64
	for _, p := range profiles {
		if !p.HasGrade || p.Grade < e.cfg.SuccessGradeThreshold || p.GradedEvents < minSuccessGrades {
			continue
		}
		n++
		events += p.Features.TotalEvents
		social += p.Features.ForumParticipationRate * p.Features.TotalEvents
	}
	if n == 0 {
		return nil
	}
	return &SuccessPatterns{
		Students:        n,
		AvgEvents:       events / float64(n),
		AvgSocialEvents: social / float64(n),
	}
}

// Engine produces ranked recommendations.
type Engine struct {
	cfg Config
}

// NewEngine creates an Engine with the given configuration, applying
// defaults for zero values.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg.normalized()}
}

// featureAdvice maps each feature to the advice shown when a student lags
// the cohort median on it.
var featureAdvice = map[string]string{
	models.FeatureTotalEvents:            "Increase your overall engagement with course materials",
	models.FeatureEventsPerDay:           "Log in and interact with the course more frequently",
	models.FeatureActiveDays:             "Spread your study activity across more days",
	models.FeatureForumParticipationRate: "Participate more in course forums and discussions",
	models.FeatureContentInteractionRate: "Spend more time reviewing course content",
	models.FeatureAssessmentRate:         "Attempt more quizzes and practice assessments",
	models.FeatureAvgSessionDuration:     "Plan longer, focused study sessions",
	models.FeatureAvgSessionEvents:       "Work through more material in each study session",
	models.FeatureAvgActivityDuration:    "Spend more time on each learning activity",
	models.FeatureActivityRegularity:     "Build a more consistent study routine",
}

// ForStudent returns the ranked, capped recommendations for one student.
// With no negative signals it returns a single positive-reinforcement entry.
func (e *Engine) ForStudent(in Input) []Recommendation {
	if in.Profile == nil {
		return nil
	}

	var recs []Recommendation
	recs = append(recs, e.correlationGaps(in)...)
	recs = append(recs, e.successfulGap(in)...)
	recs = append(recs, e.performance(in.Profile)...)
	recs = append(recs, e.habits(in.Profile)...)

	recs = dedupe(recs)
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Score != recs[j].Score {
			return recs[i].Score > recs[j].Score
		}
		return recs[i].Text < recs[j].Text
	})
	if len(recs) > e.cfg.MaxPerStudent {
		recs = recs[:e.cfg.MaxPerStudent]
	}

	if len(recs) == 0 {
		recs = append(recs, e.reinforcement(in))
	}
	return recs
}

// correlationGaps fires for each grade-correlated feature on which the
// student sits below the cohort median. The score weighs the correlation
// strength by the relative gap: coefficient * (median-value)/median.
func (e *Engine) correlationGaps(in Input) []Recommendation {
	if in.Correlation == nil || !in.Correlation.Defined {
		return nil
	}

	var recs []Recommendation
	for _, fc := range in.Correlation.Features {
		if !fc.Defined || fc.Coefficient <= e.cfg.CorrelationThreshold {
			continue
		}
		median := in.Medians.Value(fc.Feature)
		if median == 0 {
			continue
		}
		value := in.Profile.Features.Value(fc.Feature)
		if value >= median {
			continue
		}

		text, ok := featureAdvice[fc.Feature]
		if !ok {
			continue
		}
		recs = append(recs, Recommendation{
			StudentID:    in.Profile.StudentID,
			Category:     CategoryEngagement,
			CategoryName: CategoryEngagement.String(),
			Text:         text,
			Score:        fc.Coefficient * (median - value) / median,
			Feature:      fc.Feature,
		})
	}
	return recs
}

// successfulGap compares the student against the successful subgroup's
// averages and fires when the student trails them by a wide margin: below
// successFrequencyRatio of the average event count, or below
// successSocialRatio of the average social-event count.
func (e *Engine) successfulGap(in Input) []Recommendation {
	sp := in.Success
	if sp == nil {
		return nil
	}

	var gaps []string
	if sp.AvgEvents > 0 && in.Profile.Features.TotalEvents < sp.AvgEvents*successFrequencyRatio {
		gaps = append(gaps, "activity frequency")
	}
	social := in.Profile.Features.ForumParticipationRate * in.Profile.Features.TotalEvents
	if sp.AvgSocialEvents > 0 && social < sp.AvgSocialEvents*successSocialRatio {
		gaps = append(gaps, "forum participation")
	}
	if len(gaps) == 0 {
		return nil
	}

	return []Recommendation{{
		StudentID:    in.Profile.StudentID,
		Category:     CategoryEngagement,
		CategoryName: CategoryEngagement.String(),
		Text:         "Increase your " + strings.Join(gaps, " and ") + " to match the patterns of successful students",
		Score:        0.55,
	}}
}

// performance covers grade-level and grade-trend advice.
func (e *Engine) performance(p *models.StudentProfile) []Recommendation {
	var recs []Recommendation

	if p.HasGrade && p.Grade < e.cfg.SuccessGradeThreshold {
		gap := (e.cfg.SuccessGradeThreshold - p.Grade) / e.cfg.SuccessGradeThreshold
		recs = append(recs, Recommendation{
			StudentID:    p.StudentID,
			Category:     CategoryPerformance,
			CategoryName: CategoryPerformance.String(),
			Text: fmt.Sprintf("Your average grade (%.0f) is below the success threshold; consider reaching out to your instructor or a study group",
				p.Grade),
			Score: 0.6 + 0.4*gap,
		})
	}

	if slope, ok := gradeTrend(p.Events); ok && slope < decliningSlope {
		recs = append(recs, Recommendation{
			StudentID:    p.StudentID,
			Category:     CategoryPerformance,
			CategoryName: CategoryPerformance.String(),
			Text:         "Your recent grades are trending downward; review earlier material before moving on",
			Score:        0.7,
		})
	}

	return recs
}

// Behavioral rule thresholds.
const (
	// decliningSlope is the least-squares grade slope (points per graded
	// event) below which the declining-trend rule fires.
	decliningSlope = -0.5

	// longSessionMinutes and shortSessionMinutes bound healthy session
	// pacing.
	longSessionMinutes  = 120.0
	shortSessionMinutes = 5.0

	// weekendHeavy and weekendLight bound the weekend share of activity.
	weekendHeavy = 0.5
	weekendLight = 0.1

	// lowRegularity is the activity-regularity score below which cadence
	// advice fires (only meaningful with enough events for a score).
	lowRegularity = 0.3

	// minTrendGrades is the minimum graded events for trend detection.
	minTrendGrades = 4

	// successFrequencyRatio and successSocialRatio set how far below the
	// successful subgroup's averages a student must fall before the
	// comparison rule fires.
	successFrequencyRatio = 0.7
	successSocialRatio    = 0.5
)

// habits inspects raw activity patterns: session pacing, study hours, and
// weekday/weekend balance.
func (e *Engine) habits(p *models.StudentProfile) []Recommendation {
	var recs []Recommendation
	add := func(text string, score float64) {
		recs = append(recs, Recommendation{
			StudentID:    p.StudentID,
			Category:     CategoryHabits,
			CategoryName: CategoryHabits.String(),
			Text:         text,
			Score:        score,
		})
	}

	minutes := p.Features.AvgSessionDuration / 60 // stored in seconds
	if minutes > longSessionMinutes {
		add("Your study sessions run very long; schedule regular breaks to stay effective", 0.4)
	} else if minutes > 0 && minutes < shortSessionMinutes {
		add("Your study sessions are very short; block out longer, focused study time", 0.4)
	}

	if hour, ok := peakHour(p.Events); ok && isLateNight(hour) {
		add("Most of your activity happens late at night; earlier study hours may improve retention", 0.3)
	}

	// Regularity 0 means the score was undefined (too few events), not
	// irregular study.
	if reg := p.Features.ActivityRegularity; reg > 0 && reg < lowRegularity {
		add("Your study timing is irregular; a steady cadence of shorter sessions beats sporadic bursts", 0.3)
	}

	if ratio, ok := weekendShare(p.Events); ok {
		if ratio > weekendHeavy {
			add("Your work is concentrated on weekends; spreading it across weekdays avoids cramming", 0.3)
		} else if ratio < weekendLight {
			add("You rarely study on weekends; a short weekend review session can reinforce the week's material", 0.25)
		}
	}

	return recs
}

// reinforcement is the positive fallback for students with no negative
// signals.
func (e *Engine) reinforcement(in Input) Recommendation {
	text := "Great work! Your engagement is on track; keep up your current study routine"
	if in.ClusterSummary != "" && in.ClusterSummary != "near cohort average" {
		text = fmt.Sprintf("Great work! Your engagement profile (%s) is on track; keep up your current study routine",
			in.ClusterSummary)
	}
	return Recommendation{
		StudentID:    in.Profile.StudentID,
		Category:     CategoryReinforcement,
		CategoryName: CategoryReinforcement.String(),
		Text:         text,
		Score:        0,
	}
}

// gradeTrend fits a least-squares line to the student's graded events in
// timestamp order and returns its slope in grade points per graded event.
// ok is false with fewer than minTrendGrades graded events.
func gradeTrend(events []models.Event) (slope float64, ok bool) {
	var grades []float64
	for _, ev := range events {
		if ev.HasGrade {
			grades = append(grades, ev.Grade)
		}
	}
	n := len(grades)
	if n < minTrendGrades {
		return 0, false
	}

	// Least squares on (index, grade).
	var sumX, sumY, sumXY, sumXX float64
	for i, g := range grades {
		x := float64(i)
		sumX += x
		sumY += g
		sumXY += x * g
		sumXX += x * x
	}
	denom := float64(n)*sumXX - sumX*sumX
	if denom == 0 {
		return 0, false
	}
	slope = (float64(n)*sumXY - sumX*sumY) / denom
	if math.IsNaN(slope) || math.IsInf(slope, 0) {
		return 0, false
	}
	return slope, true
}

// peakHour returns the hour of day holding the most events. Ties resolve to
// the earliest hour. ok is false with no events.
func peakHour(events []models.Event) (hour int, ok bool) {
	if len(events) == 0 {
		return 0, false
	}
	var counts [24]int
	for _, ev := range events {
		counts[ev.Timestamp.Hour()]++
	}
	best := 0
	for h := 1; h < 24; h++ {
		if counts[h] > counts[best] {
			best = h
		}
	}
	return best, true
}

// isLateNight reports whether the hour falls in the 22:00-04:59 band.
func isLateNight(hour int) bool {
	return hour >= 22 || hour < 5
}

// weekendShare returns the share of events on Saturday or Sunday. ok is
// false when the observation window is a week or shorter, where the split is
// not meaningful.
func weekendShare(events []models.Event) (ratio float64, ok bool) {
	if len(events) == 0 {
		return 0, false
	}
	span := events[len(events)-1].Timestamp.Sub(events[0].Timestamp)
	if span <= 7*24*time.Hour {
		return 0, false
	}
	weekend := 0
	for _, ev := range events {
		wd := ev.Timestamp.Weekday()
		if wd == time.Saturday || wd == time.Sunday {
			weekend++
		}
	}
	return float64(weekend) / float64(len(events)), true
}

// dedupe keeps the highest-scoring recommendation per distinct text.
func dedupe(recs []Recommendation) []Recommendation {
	best := make(map[string]Recommendation, len(recs))
	order := make([]string, 0, len(recs))
	for _, r := range recs {
		prev, seen := best[r.Text]
		if !seen {
			order = append(order, r.Text)
			best[r.Text] = r
			continue
		}
		if r.Score > prev.Score {
			best[r.Text] = r
		}
	}
	out := make([]Recommendation, 0, len(order))
	for _, text := range order {
		out = append(out, best[text])
	}
	return out
}
