// Learnlens - LMS Engagement Analytics and Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/learnlens

package correlate

import (
	"math"
	"testing"

	"github.com/tomtom215/learnlens/internal/models"
)

func profile(id string, grade float64, fv models.FeatureVector) *models.StudentProfile {
	return &models.StudentProfile{
		StudentID: id,
		Features:  fv,
		Grade:     grade,
		HasGrade:  true,
	}
}

func TestComputePerfectPositiveCorrelation(t *testing.T) {
	// total_events tracks grade exactly; forum rate is anti-correlated.
	profiles := []*models.StudentProfile{
		profile("a", 60, models.FeatureVector{TotalEvents: 10, ForumParticipationRate: 0.9}),
		profile("b", 70, models.FeatureVector{TotalEvents: 20, ForumParticipationRate: 0.6}),
		profile("c", 80, models.FeatureVector{TotalEvents: 30, ForumParticipationRate: 0.3}),
	}

	res := Compute(profiles)
	if !res.Defined {
		t.Fatalf("result undefined: %s", res.Reason)
	}
	if res.SampleSize != 3 {
		t.Errorf("sample size = %d, want 3", res.SampleSize)
	}

	coef, ok := res.Coefficient(models.FeatureTotalEvents)
	if !ok {
		t.Fatal("total_events coefficient undefined")
	}
	if math.Abs(coef-1) > 1e-9 {
		t.Errorf("total_events coefficient = %v, want 1", coef)
	}

	coef, ok = res.Coefficient(models.FeatureForumParticipationRate)
	if !ok {
		t.Fatal("forum_participation_rate coefficient undefined")
	}
	if math.Abs(coef+1) > 1e-9 {
		t.Errorf("forum_participation_rate coefficient = %v, want -1", coef)
	}
}

func TestComputeCoefficientsInRange(t *testing.T) {
	profiles := []*models.StudentProfile{
		profile("a", 55, models.FeatureVector{TotalEvents: 12, EventsPerDay: 1.7, ActiveDays: 4}),
		profile("b", 91, models.FeatureVector{TotalEvents: 48, EventsPerDay: 6.1, ActiveDays: 19}),
		profile("c", 73, models.FeatureVector{TotalEvents: 25, EventsPerDay: 3.2, ActiveDays: 11}),
		profile("d", 67, models.FeatureVector{TotalEvents: 31, EventsPerDay: 2.8, ActiveDays: 9}),
	}

	res := Compute(profiles)
	for _, fc := range res.Features {
		if !fc.Defined {
			continue
		}
		if fc.Coefficient < -1 || fc.Coefficient > 1 {
			t.Errorf("feature %s coefficient %v outside [-1, 1]", fc.Feature, fc.Coefficient)
		}
	}
}

func TestComputeConstantFeatureUndefined(t *testing.T) {
	// AssessmentRate is constant across students: must be reported as
	// undefined, never 0.
	profiles := []*models.StudentProfile{
		profile("a", 60, models.FeatureVector{TotalEvents: 10, AssessmentRate: 0.5}),
		profile("b", 70, models.FeatureVector{TotalEvents: 20, AssessmentRate: 0.5}),
		profile("c", 80, models.FeatureVector{TotalEvents: 15, AssessmentRate: 0.5}),
	}

	res := Compute(profiles)
	if !res.Defined {
		t.Fatal("cohort result should be defined")
	}

	var found *FeatureCorrelation
	for i := range res.Features {
		if res.Features[i].Feature == models.FeatureAssessmentRate {
			found = &res.Features[i]
		}
	}
	if found == nil {
		t.Fatal("assessment_rate missing from result")
	}
	if found.Defined {
		t.Errorf("constant feature reported a defined coefficient %v", found.Coefficient)
	}
	if found.Reason == "" {
		t.Error("undefined coefficient should carry a reason")
	}
	if _, ok := res.Coefficient(models.FeatureAssessmentRate); ok {
		t.Error("Coefficient() should report the constant feature as undefined")
	}
}

func TestComputeInsufficientGradedStudents(t *testing.T) {
	tests := []struct {
		name     string
		profiles []*models.StudentProfile
	}{
		{"no students", nil},
		{"one graded student", []*models.StudentProfile{
			profile("a", 80, models.FeatureVector{TotalEvents: 5}),
		}},
		{"many students but one graded", []*models.StudentProfile{
			profile("a", 80, models.FeatureVector{TotalEvents: 5}),
			{StudentID: "b", Features: models.FeatureVector{TotalEvents: 9}},
			{StudentID: "c", Features: models.FeatureVector{TotalEvents: 2}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Compute(tt.profiles)
			if res.Defined {
				t.Error("result should be undefined")
			}
			if res.Reason == "" {
				t.Error("undefined result should carry a reason")
			}
			if len(res.Features) != 0 {
				t.Errorf("undefined result should carry no features, got %d", len(res.Features))
			}
		})
	}
}

func TestComputeExcludesUngradedStudents(t *testing.T) {
	profiles := []*models.StudentProfile{
		profile("a", 60, models.FeatureVector{TotalEvents: 10}),
		profile("b", 80, models.FeatureVector{TotalEvents: 30}),
		{StudentID: "ungraded", Features: models.FeatureVector{TotalEvents: 999}},
	}

	res := Compute(profiles)
	if res.SampleSize != 2 {
		t.Errorf("sample size = %d, want 2 (ungraded student excluded)", res.SampleSize)
	}
}

func TestRankingDeterministic(t *testing.T) {
	profiles := []*models.StudentProfile{
		profile("a", 60, models.FeatureVector{TotalEvents: 10, EventsPerDay: 1, ActiveDays: 3}),
		profile("b", 70, models.FeatureVector{TotalEvents: 20, EventsPerDay: 2, ActiveDays: 6}),
		profile("c", 80, models.FeatureVector{TotalEvents: 30, EventsPerDay: 3, ActiveDays: 9}),
	}

	// All three moving features correlate perfectly (coefficient 1), so the
	// tie-break is lexicographic by feature name.
	res := Compute(profiles)
	var defined []string
	for _, fc := range res.Features {
		if fc.Defined {
			defined = append(defined, fc.Feature)
		}
	}
	want := []string{
		models.FeatureActiveDays,
		models.FeatureEventsPerDay,
		models.FeatureTotalEvents,
	}
	if len(defined) != len(want) {
		t.Fatalf("got %d defined features %v, want %d", len(defined), defined, len(want))
	}
	for i := range want {
		if defined[i] != want[i] {
			t.Errorf("rank %d = %s, want %s", i, defined[i], want[i])
		}
	}

	// Undefined features sort after defined ones.
	for i := 1; i < len(res.Features); i++ {
		if !res.Features[i-1].Defined && res.Features[i].Defined {
			t.Error("defined feature ranked after undefined feature")
		}
	}
}
