// Learnlens - LMS Engagement Analytics and Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/learnlens

// Package correlate computes the linear association between each behavioral
// feature and the derived final grade, restricted to students with a defined
// grade.
//
// Degenerate inputs are reported explicitly, never coerced: a zero-variance
// feature yields an undefined coefficient (zero would misleadingly read as
// "no relationship" rather than "no information"), and fewer than two graded
// students makes the whole result undefined.
package correlate

import (
	"math"
	"sort"

	"github.com/tomtom215/learnlens/internal/logging"
	"github.com/tomtom215/learnlens/internal/models"
)

// FeatureCorrelation is one feature's association with grade.
type FeatureCorrelation struct {
	// Feature is the canonical feature name.
	Feature string `json:"feature"`

	// Coefficient is the Pearson coefficient in [-1, 1].
	// Only meaningful when Defined is true.
	Coefficient float64 `json:"coefficient"`

	// SampleSize is the number of graded students used.
	SampleSize int `json:"sample_size"`

	// Defined reports whether the coefficient could be computed.
	Defined bool `json:"defined"`

	// Reason explains an undefined coefficient.
	Reason string `json:"reason,omitempty"`
}

// Result is the cohort-level correlation output, ranked by descending
// absolute coefficient (ties broken by feature name); undefined features
// follow, sorted by name.
type Result struct {
	// Defined is false when fewer than two graded students exist, in which
	// case Features is empty and Reason explains why.
	Defined bool `json:"defined"`

	// Reason explains an undefined result.
	Reason string `json:"reason,omitempty"`

	// SampleSize is the number of students with a defined grade.
	SampleSize int `json:"sample_size"`

	// Features holds the ranked per-feature coefficients.
	Features []FeatureCorrelation `json:"features,omitempty"`
}

// Coefficient returns the named feature's coefficient and whether it is
// defined.
func (r *Result) Coefficient(feature string) (float64, bool) {
	if r == nil || !r.Defined {
		return 0, false
	}
	for _, fc := range r.Features {
		if fc.Feature == feature {
			return fc.Coefficient, fc.Defined
		}
	}
	return 0, false
}

// Compute calculates the Pearson coefficient of every feature against the
// derived final grade over students with a defined grade.
func Compute(profiles []*models.StudentProfile) *Result {
	var graded []*models.StudentProfile
	for _, p := range profiles {
		if p.HasGrade {
			graded = append(graded, p)
		}
	}

	if len(graded) < 2 {
		logging.Warn().Int("graded_students", len(graded)).Msg("Correlation undefined")
		return &Result{
			Defined:    false,
			Reason:     "fewer than 2 students with a defined grade",
			SampleSize: len(graded),
		}
	}

	grades := make([]float64, len(graded))
	for i, p := range graded {
		grades[i] = p.Grade
	}

	res := &Result{Defined: true, SampleSize: len(graded)}
	column := make([]float64, len(graded))

	for fi, name := range models.FeatureNames() {
		for pi, p := range graded {
			column[pi] = p.Features.Values()[fi]
		}

		fc := FeatureCorrelation{Feature: name, SampleSize: len(graded)}
		if coef, ok := pearson(column, grades); ok {
			fc.Coefficient = coef
			fc.Defined = true
		} else {
			fc.Reason = "zero variance in feature or grade"
		}
		res.Features = append(res.Features, fc)
	}

	rank(res.Features)
	return res
}

// pearson returns the Pearson correlation of x and y, clamped to [-1, 1].
// ok is false when either series has zero variance.
func pearson(x, y []float64) (float64, bool) {
	n := float64(len(x))
	var sumX, sumY float64
	for i := range x {
		sumX += x[i]
		sumY += y[i]
	}
	meanX := sumX / n
	meanY := sumY / n

	var num, denX, denY float64
	for i := range x {
		dx := x[i] - meanX
		dy := y[i] - meanY
		num += dx * dy
		denX += dx * dx
		denY += dy * dy
	}

	if denX == 0 || denY == 0 {
		return 0, false
	}

	coef := num / (math.Sqrt(denX) * math.Sqrt(denY))
	// Guard against floating-point drift past the mathematical bounds.
	return math.Max(-1, math.Min(1, coef)), true
}

// rank sorts defined coefficients by descending |coefficient| with
// lexicographic tie-breaks; undefined features follow, sorted by name.
func rank(features []FeatureCorrelation) {
	sort.Slice(features, func(i, j int) bool {
		a, b := features[i], features[j]
		if a.Defined != b.Defined {
			return a.Defined
		}
		if !a.Defined {
			return a.Feature < b.Feature
		}
		absA, absB := math.Abs(a.Coefficient), math.Abs(b.Coefficient)
		if absA != absB {
			return absA > absB
		}
		return a.Feature < b.Feature
	})
}
