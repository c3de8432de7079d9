// Learnlens - LMS Engagement Analytics and Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/learnlens

package recommend

import (
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/learnlens/internal/correlate"
	"github.com/tomtom215/learnlens/internal/models"
)

func definedCorrelation(feature string, coef float64) *correlate.Result {
	return &correlate.Result{
		Defined:    true,
		SampleSize: 10,
		Features: []correlate.FeatureCorrelation{
			{Feature: feature, Coefficient: coef, SampleSize: 10, Defined: true},
		},
	}
}

func baseProfile(id string) *models.StudentProfile {
	return &models.StudentProfile{
		StudentID: id,
		Features: models.FeatureVector{
			TotalEvents:        50,
			AvgSessionDuration: 45 * 60, // healthy pacing
		},
		Grade:        85,
		HasGrade:     true,
		GradedEvents: 2,
	}
}

func TestCorrelationGapRule(t *testing.T) {
	engine := NewEngine(Config{})
	p := baseProfile("s1")
	p.Features.ForumParticipationRate = 0.05

	medians := models.FeatureVector{ForumParticipationRate: 0.2}
	in := Input{
		Profile:     p,
		Medians:     medians,
		Correlation: definedCorrelation(models.FeatureForumParticipationRate, 0.6),
	}

	recs := engine.ForStudent(in)
	var gap *Recommendation
	for i := range recs {
		if recs[i].Feature == models.FeatureForumParticipationRate {
			gap = &recs[i]
		}
	}
	if gap == nil {
		t.Fatalf("expected a forum participation recommendation, got %+v", recs)
	}

	// score = coef * (median-value)/median = 0.6 * 0.15/0.2 = 0.45
	if diff := gap.Score - 0.45; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("Score = %v, want 0.45", gap.Score)
	}
	if gap.CategoryName != "engagement" {
		t.Errorf("CategoryName = %q, want engagement", gap.CategoryName)
	}
}

func TestCorrelationGapSkipsStudentsAboveMedian(t *testing.T) {
	engine := NewEngine(Config{})
	p := baseProfile("s1")
	p.Features.ForumParticipationRate = 0.4

	in := Input{
		Profile:     p,
		Medians:     models.FeatureVector{ForumParticipationRate: 0.2},
		Correlation: definedCorrelation(models.FeatureForumParticipationRate, 0.6),
	}

	for _, r := range engine.ForStudent(in) {
		if r.Feature == models.FeatureForumParticipationRate {
			t.Fatalf("gap rule fired although student exceeds the median: %+v", r)
		}
	}
}

func TestCorrelationGapSkipsZeroMedian(t *testing.T) {
	engine := NewEngine(Config{})
	p := baseProfile("s1")

	in := Input{
		Profile:     p,
		Medians:     models.FeatureVector{}, // all medians zero
		Correlation: definedCorrelation(models.FeatureForumParticipationRate, 0.9),
	}

	for _, r := range engine.ForStudent(in) {
		if r.Category == CategoryEngagement {
			t.Fatalf("gap rule fired on a zero median: %+v", r)
		}
	}
}

func TestCorrelationGapRespectsThreshold(t *testing.T) {
	engine := NewEngine(Config{CorrelationThreshold: 0.5})
	p := baseProfile("s1")
	p.Features.ForumParticipationRate = 0.05

	in := Input{
		Profile:     p,
		Medians:     models.FeatureVector{ForumParticipationRate: 0.2},
		Correlation: definedCorrelation(models.FeatureForumParticipationRate, 0.3),
	}

	for _, r := range engine.ForStudent(in) {
		if r.Category == CategoryEngagement {
			t.Fatalf("gap rule fired below the correlation threshold: %+v", r)
		}
	}
}

func TestLowGradeAdvice(t *testing.T) {
	engine := NewEngine(Config{SuccessGradeThreshold: 70})
	p := baseProfile("s1")
	p.Grade = 55

	recs := engine.ForStudent(Input{Profile: p})
	found := false
	for _, r := range recs {
		if r.Category == CategoryPerformance && strings.Contains(r.Text, "55") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected low-grade advice, got %+v", recs)
	}
}

func TestDecliningGradeTrend(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	p := baseProfile("s1")
	p.Grade = 80 // above threshold, so only the trend rule should fire
	for i, g := range []float64{95, 90, 82, 74, 66} {
		p.Events = append(p.Events, models.Event{
			StudentID: "s1",
			Type:      models.EventQuizAttempt,
			Timestamp: base.Add(time.Duration(i) * 24 * time.Hour),
			Grade:     g,
			HasGrade:  true,
		})
	}

	recs := NewEngine(Config{}).ForStudent(Input{Profile: p})
	found := false
	for _, r := range recs {
		if strings.Contains(r.Text, "trending downward") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected declining-trend advice, got %+v", recs)
	}
}

func TestSessionPacingAdvice(t *testing.T) {
	tests := []struct {
		name    string
		seconds float64
		want    string
	}{
		{"very long sessions", 180 * 60, "schedule regular breaks"},
		{"very short sessions", 2 * 60, "longer, focused study time"},
		{"healthy sessions", 45 * 60, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := baseProfile("s1")
			p.Features.AvgSessionDuration = tt.seconds

			recs := NewEngine(Config{}).ForStudent(Input{Profile: p})
			found := ""
			for _, r := range recs {
				if r.Category == CategoryHabits {
					found = r.Text
				}
			}
			if tt.want == "" {
				if found != "" {
					t.Errorf("unexpected habits advice: %q", found)
				}
				return
			}
			if !strings.Contains(found, tt.want) {
				t.Errorf("habits advice = %q, want substring %q", found, tt.want)
			}
		})
	}
}

func TestLateNightAdvice(t *testing.T) {
	base := time.Date(2026, 3, 2, 23, 30, 0, 0, time.UTC) // Monday night
	p := baseProfile("s1")
	for i := 0; i < 6; i++ {
		p.Events = append(p.Events, models.Event{
			StudentID: "s1",
			Type:      models.EventContentView,
			Timestamp: base.Add(time.Duration(i) * 24 * time.Hour),
		})
	}

	recs := NewEngine(Config{}).ForStudent(Input{Profile: p})
	found := false
	for _, r := range recs {
		if strings.Contains(r.Text, "late at night") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected late-night advice, got %+v", recs)
	}
}

func TestLowRegularityAdvice(t *testing.T) {
	p := baseProfile("s1")
	p.Features.ActivityRegularity = 0.1

	recs := NewEngine(Config{}).ForStudent(Input{Profile: p})
	found := false
	for _, r := range recs {
		if strings.Contains(r.Text, "steady cadence") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected cadence advice, got %+v", recs)
	}

	// Score zero means too few events, not irregular study.
	p.Features.ActivityRegularity = 0
	for _, r := range NewEngine(Config{}).ForStudent(Input{Profile: p}) {
		if strings.Contains(r.Text, "steady cadence") {
			t.Fatal("cadence advice fired on an undefined regularity score")
		}
	}
}

func TestWeekendSkewNeedsLongWindow(t *testing.T) {
	// Saturday-only activity, but within a 2-day window: rule must not fire.
	base := time.Date(2026, 3, 7, 10, 0, 0, 0, time.UTC) // Saturday
	p := baseProfile("s1")
	for i := 0; i < 4; i++ {
		p.Events = append(p.Events, models.Event{
			StudentID: "s1",
			Type:      models.EventContentView,
			Timestamp: base.Add(time.Duration(i) * time.Hour),
		})
	}

	for _, r := range NewEngine(Config{}).ForStudent(Input{Profile: p}) {
		if strings.Contains(r.Text, "weekend") {
			t.Fatalf("weekend rule fired inside a short window: %+v", r)
		}
	}
}

func TestWeekendHeavyAdvice(t *testing.T) {
	// Two weeks of Saturday/Sunday-only work.
	base := time.Date(2026, 3, 7, 10, 0, 0, 0, time.UTC) // Saturday
	p := baseProfile("s1")
	for week := 0; week < 2; week++ {
		for day := 0; day < 2; day++ {
			p.Events = append(p.Events, models.Event{
				StudentID: "s1",
				Type:      models.EventContentView,
				Timestamp: base.Add(time.Duration(week*7+day) * 24 * time.Hour),
			})
		}
	}

	recs := NewEngine(Config{}).ForStudent(Input{Profile: p})
	found := false
	for _, r := range recs {
		if strings.Contains(r.Text, "concentrated on weekends") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected weekend-heavy advice, got %+v", recs)
	}
}

func TestCapAndRanking(t *testing.T) {
	engine := NewEngine(Config{MaxPerStudent: 2})
	p := baseProfile("s1")
	p.Grade = 40 // low grade fires
	p.Features.AvgSessionDuration = 200 * 60
	p.Features.ForumParticipationRate = 0
	p.Features.AssessmentRate = 0

	in := Input{
		Profile: p,
		Medians: models.FeatureVector{ForumParticipationRate: 0.3, AssessmentRate: 0.3},
		Correlation: &correlate.Result{
			Defined:    true,
			SampleSize: 10,
			Features: []correlate.FeatureCorrelation{
				{Feature: models.FeatureForumParticipationRate, Coefficient: 0.5, Defined: true},
				{Feature: models.FeatureAssessmentRate, Coefficient: 0.4, Defined: true},
			},
		},
	}

	recs := engine.ForStudent(in)
	if len(recs) != 2 {
		t.Fatalf("got %d recommendations, want cap of 2", len(recs))
	}
	if recs[0].Score < recs[1].Score {
		t.Errorf("recommendations not ranked by score: %v then %v", recs[0].Score, recs[1].Score)
	}
}

func TestDeterministicOrderOnTies(t *testing.T) {
	engine := NewEngine(Config{})
	p := baseProfile("s1")
	p.Features.ForumParticipationRate = 0
	p.Features.AssessmentRate = 0

	// Equal coefficients and gaps produce equal scores; ties must resolve
	// lexicographically by text.
	in := Input{
		Profile: p,
		Medians: models.FeatureVector{ForumParticipationRate: 0.3, AssessmentRate: 0.3},
		Correlation: &correlate.Result{
			Defined:    true,
			SampleSize: 10,
			Features: []correlate.FeatureCorrelation{
				{Feature: models.FeatureForumParticipationRate, Coefficient: 0.5, Defined: true},
				{Feature: models.FeatureAssessmentRate, Coefficient: 0.5, Defined: true},
			},
		},
	}

	first := engine.ForStudent(in)
	for i := 0; i < 5; i++ {
		again := engine.ForStudent(in)
		if len(again) != len(first) {
			t.Fatalf("run %d: length changed", i)
		}
		for j := range first {
			if first[j].Text != again[j].Text {
				t.Fatalf("run %d: order changed at %d: %q vs %q", i, j, first[j].Text, again[j].Text)
			}
		}
	}
	if len(first) >= 2 && first[0].Score == first[1].Score && first[0].Text > first[1].Text {
		t.Errorf("tied scores not in lexicographic text order: %q before %q", first[0].Text, first[1].Text)
	}
}

func TestPositiveReinforcementFallback(t *testing.T) {
	engine := NewEngine(Config{})
	p := baseProfile("s1") // healthy profile, nothing fires

	recs := engine.ForStudent(Input{Profile: p, ClusterSummary: "high total_events"})
	if len(recs) != 1 {
		t.Fatalf("got %d recommendations, want exactly the fallback", len(recs))
	}
	if recs[0].Category != CategoryReinforcement {
		t.Errorf("Category = %v, want reinforcement", recs[0].Category)
	}
	if !strings.Contains(recs[0].Text, "high total_events") {
		t.Errorf("fallback should reference the cluster summary, got %q", recs[0].Text)
	}
}

func TestDedupeKeepsHighestScore(t *testing.T) {
	recs := dedupe([]Recommendation{
		{Text: "same advice", Score: 0.2},
		{Text: "same advice", Score: 0.8},
		{Text: "other advice", Score: 0.5},
	})
	if len(recs) != 2 {
		t.Fatalf("got %d recommendations, want 2", len(recs))
	}
	for _, r := range recs {
		if r.Text == "same advice" && r.Score != 0.8 {
			t.Errorf("dedupe kept score %v, want 0.8", r.Score)
		}
	}
}

func successfulProfile(id string, events, forumRate float64) *models.StudentProfile {
	p := baseProfile(id)
	p.Features.TotalEvents = events
	p.Features.ForumParticipationRate = forumRate
	p.GradedEvents = 4
	return p
}

func TestSuccessPatterns(t *testing.T) {
	engine := NewEngine(Config{SuccessGradeThreshold: 70})

	fewGrades := successfulProfile("s3", 200, 0.5)
	fewGrades.GradedEvents = 2
	lowGrade := successfulProfile("s4", 200, 0.5)
	lowGrade.Grade = 50

	sp := engine.SuccessPatterns([]*models.StudentProfile{
		successfulProfile("s1", 100, 0.1),
		successfulProfile("s2", 60, 0.2),
		fewGrades,
		lowGrade,
	})
	if sp == nil {
		t.Fatal("expected patterns, got nil")
	}
	if sp.Students != 2 {
		t.Errorf("Students = %d, want 2", sp.Students)
	}
	if sp.AvgEvents != 80 {
		t.Errorf("AvgEvents = %v, want 80", sp.AvgEvents)
	}
	// social counts: 100*0.1 + 60*0.2 = 22 over 2 students
	if sp.AvgSocialEvents != 11 {
		t.Errorf("AvgSocialEvents = %v, want 11", sp.AvgSocialEvents)
	}
}

func TestSuccessPatternsNilWithoutQualifiers(t *testing.T) {
	engine := NewEngine(Config{SuccessGradeThreshold: 70})

	ungraded := baseProfile("s1")
	ungraded.HasGrade = false
	failing := successfulProfile("s2", 80, 0.1)
	failing.Grade = 40

	if sp := engine.SuccessPatterns([]*models.StudentProfile{ungraded, failing}); sp != nil {
		t.Fatalf("expected nil patterns, got %+v", sp)
	}
}

func TestSuccessfulStudentComparison(t *testing.T) {
	engine := NewEngine(Config{})
	p := baseProfile("s1")
	p.Features.TotalEvents = 20 // below 0.7 * 80
	p.Features.ForumParticipationRate = 0.05
	sp := &SuccessPatterns{Students: 2, AvgEvents: 80, AvgSocialEvents: 11}

	recs := engine.ForStudent(Input{Profile: p, Success: sp})
	var match *Recommendation
	for i := range recs {
		if strings.Contains(recs[i].Text, "successful students") {
			match = &recs[i]
		}
	}
	if match == nil {
		t.Fatalf("expected a successful-student comparison, got %+v", recs)
	}
	if !strings.Contains(match.Text, "activity frequency and forum participation") {
		t.Errorf("Text = %q, want both gaps named", match.Text)
	}
	if match.Category != CategoryEngagement {
		t.Errorf("Category = %v, want engagement", match.Category)
	}
}

func TestSuccessfulStudentComparisonSkipsMatchingStudents(t *testing.T) {
	engine := NewEngine(Config{})
	p := baseProfile("s1")
	p.Features.TotalEvents = 80
	p.Features.ForumParticipationRate = 0.15 // 12 social events
	sp := &SuccessPatterns{Students: 2, AvgEvents: 80, AvgSocialEvents: 11}

	for _, r := range engine.ForStudent(Input{Profile: p, Success: sp}) {
		if strings.Contains(r.Text, "successful students") {
			t.Fatalf("comparison fired although student matches the pattern: %+v", r)
		}
	}
}

func TestSuccessfulStudentComparisonSkipsNilPatterns(t *testing.T) {
	engine := NewEngine(Config{})
	p := baseProfile("s1")
	p.Features.TotalEvents = 1

	for _, r := range engine.ForStudent(Input{Profile: p}) {
		if strings.Contains(r.Text, "successful students") {
			t.Fatalf("comparison fired without cohort patterns: %+v", r)
		}
	}
}
