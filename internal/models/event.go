// Learnlens - LMS Engagement Analytics and Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/learnlens

// Package models contains the shared domain types of the analytics pipeline:
// validated LMS events, per-student feature vectors, and diagnostics.
package models

import (
	"strings"
	"time"
)

// EventType is one LMS activity type from the closed enumerated set.
type EventType string

// The enumerated set of recognized LMS activity types. Rows with any other
// event_type value are rejected at parse time.
const (
	EventLogin            EventType = "login"
	EventLogout           EventType = "logout"
	EventAssignmentSubmit EventType = "assignment_submit"
	EventQuizAttempt      EventType = "quiz_attempt"
	EventExamStart        EventType = "exam_start"
	EventForumPost        EventType = "forum_post"
	EventForumReply       EventType = "forum_reply"
	EventContentView      EventType = "content_view"
	EventDownload         EventType = "download"
)

// EventTypes lists all recognized event types in a stable order.
func EventTypes() []EventType {
	return []EventType{
		EventLogin,
		EventLogout,
		EventAssignmentSubmit,
		EventQuizAttempt,
		EventExamStart,
		EventForumPost,
		EventForumReply,
		EventContentView,
		EventDownload,
	}
}

// ParseEventType matches a raw event_type value against the enumerated set.
// Matching is case-insensitive and ignores surrounding whitespace.
func ParseEventType(raw string) (EventType, bool) {
	t := EventType(strings.ToLower(strings.TrimSpace(raw)))
	switch t {
	case EventLogin, EventLogout, EventAssignmentSubmit, EventQuizAttempt,
		EventExamStart, EventForumPost, EventForumReply, EventContentView,
		EventDownload:
		return t, true
	default:
		return "", false
	}
}

// Category groups event types into broad behavioral categories used by
// feature engineering and recommendations.
type Category int

const (
	// CategoryLogin covers session boundary events (login, logout).
	CategoryLogin Category = iota
	// CategoryContent covers passive content consumption (views, downloads).
	CategoryContent
	// CategoryAssessment covers graded activity (assignments, quizzes, exams).
	CategoryAssessment
	// CategorySocial covers peer interaction (forum posts and replies).
	CategorySocial
)

// String returns a human-readable category name.
func (c Category) String() string {
	switch c {
	case CategoryLogin:
		return "login"
	case CategoryContent:
		return "content"
	case CategoryAssessment:
		return "assessment"
	case CategorySocial:
		return "social"
	default:
		return "unknown"
	}
}

// Category returns the behavioral category of the event type.
func (t EventType) Category() Category {
	switch t {
	case EventLogin, EventLogout:
		return CategoryLogin
	case EventAssignmentSubmit, EventQuizAttempt, EventExamStart:
		return CategoryAssessment
	case EventForumPost, EventForumReply:
		return CategorySocial
	default:
		return CategoryContent
	}
}

// Event is one validated LMS activity log record.
type Event struct {
	// StudentID is the opaque student identifier.
	StudentID string `json:"student_id"`

	// Type is the activity type from the enumerated set.
	Type EventType `json:"event_type"`

	// Timestamp is when the activity occurred.
	Timestamp time.Time `json:"timestamp"`

	// ModuleID identifies the course module, if present.
	ModuleID string `json:"module_id,omitempty"`

	// CourseID identifies the course, if present.
	CourseID string `json:"course_id,omitempty"`

	// Grade is the numeric grade for graded events.
	// Only meaningful when HasGrade is true.
	Grade float64 `json:"grade,omitempty"`

	// HasGrade indicates whether the row carried a valid grade.
	HasGrade bool `json:"has_grade,omitempty"`

	// Duration is the activity duration in seconds, clamped to >= 0.
	Duration float64 `json:"duration,omitempty"`
}
