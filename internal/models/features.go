// Learnlens - LMS Engagement Analytics and Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/learnlens

package models

// Feature names in the canonical order shared by every FeatureVector in a run.
// Correlation ranking, clustering distance and recommendation templates all
// key off these names.
const (
	FeatureTotalEvents            = "total_events"
	FeatureEventsPerDay           = "events_per_day"
	FeatureActiveDays             = "active_days"
	FeatureForumParticipationRate = "forum_participation_rate"
	FeatureContentInteractionRate = "content_interaction_rate"
	FeatureAssessmentRate         = "assessment_rate"
	FeatureAvgSessionDuration     = "avg_session_duration"
	FeatureAvgSessionEvents       = "avg_session_events"
	FeatureAvgActivityDuration    = "avg_activity_duration"
	FeatureActivityRegularity     = "activity_regularity"
)

// FeatureNames returns the canonical feature order.
// The order matches FeatureVector.Values.
func FeatureNames() []string {
	return []string{
		FeatureTotalEvents,
		FeatureEventsPerDay,
		FeatureActiveDays,
		FeatureForumParticipationRate,
		FeatureContentInteractionRate,
		FeatureAssessmentRate,
		FeatureAvgSessionDuration,
		FeatureAvgSessionEvents,
		FeatureAvgActivityDuration,
		FeatureActivityRegularity,
	}
}

// FeatureVector is the fixed-order numeric summary of one student's behavior.
// Missing signals are zero, never NaN, so downstream arithmetic stays clean.
type FeatureVector struct {
	// TotalEvents is the number of valid events observed for the student.
	TotalEvents float64 `json:"total_events"`

	// EventsPerDay is TotalEvents normalized by the observation window in days.
	EventsPerDay float64 `json:"events_per_day"`

	// ActiveDays is the number of distinct calendar days with activity.
	ActiveDays float64 `json:"active_days"`

	// ForumParticipationRate is the share of events in the social category.
	ForumParticipationRate float64 `json:"forum_participation_rate"`

	// ContentInteractionRate is the share of events in the content category.
	ContentInteractionRate float64 `json:"content_interaction_rate"`

	// AssessmentRate is the share of events in the assessment category.
	AssessmentRate float64 `json:"assessment_rate"`

	// AvgSessionDuration is the mean session duration in seconds.
	AvgSessionDuration float64 `json:"avg_session_duration"`

	// AvgSessionEvents is the mean number of events per session.
	AvgSessionEvents float64 `json:"avg_session_events"`

	// AvgActivityDuration is the mean per-event activity duration in seconds.
	AvgActivityDuration float64 `json:"avg_activity_duration"`

	// ActivityRegularity is the inverse coefficient of variation of
	// inter-event gaps. Zero when the student has too few events.
	ActivityRegularity float64 `json:"activity_regularity"`
}

// Values returns the vector in canonical feature order.
func (v FeatureVector) Values() []float64 {
	return []float64{
		v.TotalEvents,
		v.EventsPerDay,
		v.ActiveDays,
		v.ForumParticipationRate,
		v.ContentInteractionRate,
		v.AssessmentRate,
		v.AvgSessionDuration,
		v.AvgSessionEvents,
		v.AvgActivityDuration,
		v.ActivityRegularity,
	}
}

// FeatureVectorFromValues builds a vector from values in canonical order.
// Extra values are ignored; missing values stay zero.
func FeatureVectorFromValues(vals []float64) FeatureVector {
	var v FeatureVector
	fields := []*float64{
		&v.TotalEvents,
		&v.EventsPerDay,
		&v.ActiveDays,
		&v.ForumParticipationRate,
		&v.ContentInteractionRate,
		&v.AssessmentRate,
		&v.AvgSessionDuration,
		&v.AvgSessionEvents,
		&v.AvgActivityDuration,
		&v.ActivityRegularity,
	}
	for i, f := range fields {
		if i < len(vals) {
			*f = vals[i]
		}
	}
	return v
}

// Value returns the named feature's value, or zero for an unknown name.
func (v FeatureVector) Value(name string) float64 {
	switch name {
	case FeatureTotalEvents:
		return v.TotalEvents
	case FeatureEventsPerDay:
		return v.EventsPerDay
	case FeatureActiveDays:
		return v.ActiveDays
	case FeatureForumParticipationRate:
		return v.ForumParticipationRate
	case FeatureContentInteractionRate:
		return v.ContentInteractionRate
	case FeatureAssessmentRate:
		return v.AssessmentRate
	case FeatureAvgSessionDuration:
		return v.AvgSessionDuration
	case FeatureAvgSessionEvents:
		return v.AvgSessionEvents
	case FeatureAvgActivityDuration:
		return v.AvgActivityDuration
	case FeatureActivityRegularity:
		return v.ActivityRegularity
	default:
		return 0
	}
}

// StudentProfile is the derived per-student artifact of one run: the
// student's chronological events, aggregated feature vector, and derived
// final grade. Immutable once the metrics pass completes.
type StudentProfile struct {
	// StudentID is the opaque student identifier.
	StudentID string `json:"student_id"`

	// Events is the student's event sequence in chronological order.
	Events []Event `json:"-"`

	// Features is the aggregated feature vector.
	Features FeatureVector `json:"features"`

	// Grade is the derived final grade: the mean of the student's graded
	// events. Only meaningful when HasGrade is true.
	Grade float64 `json:"grade,omitempty"`

	// HasGrade indicates whether the student had any graded events.
	HasGrade bool `json:"has_grade"`

	// GradedEvents is the number of events that carried a grade.
	GradedEvents int `json:"graded_events"`
}
