// Learnlens - LMS Engagement Analytics and Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/learnlens

package main

import (
	"encoding/csv"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/tomtom215/learnlens/internal/models"
)

// Synthetic dataset parameters.
const (
	genDays           = 30
	genMeanActivities = 40
	genGradeMean      = 75
	genGradeStddev    = 15
	genMaxDuration    = 180
)

var (
	genCourses = []string{"course_101", "course_102", "course_201"}
	genModules = []string{"module_1", "module_2", "module_3", "module_4", "module_5"}
)

type genRow struct {
	studentID string
	eventType models.EventType
	timestamp time.Time
	module    string
	course    string
	grade     string
	duration  string
}

// generateSampleFile writes a synthetic activity log with the given number
// of students. The same seed always produces the same file.
func generateSampleFile(path string, students int, seed int64) (err error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create sample file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	rng := rand.New(rand.NewSource(seed))
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	types := models.EventTypes()

	var rows []genRow
	for i := 0; i < students; i++ {
		studentID := fmt.Sprintf("student_%04d", 1001+i)
		activities := poisson(rng, genMeanActivities)

		for a := 0; a < activities; a++ {
			ts := start.
				AddDate(0, 0, rng.Intn(genDays)).
				Add(time.Duration(8+rng.Intn(12)) * time.Hour).
				Add(time.Duration(rng.Intn(60)) * time.Minute)

			eventType := types[rng.Intn(len(types))]

			row := genRow{
				studentID: studentID,
				eventType: eventType,
				timestamp: ts,
				module:    genModules[rng.Intn(len(genModules))],
				course:    genCourses[rng.Intn(len(genCourses))],
			}

			var duration float64
			switch eventType.Category() {
			case models.CategoryAssessment:
				grade := math.Max(0, math.Min(100, genGradeMean+rng.NormFloat64()*genGradeStddev))
				row.grade = fmt.Sprintf("%.1f", grade)
				duration = rng.ExpFloat64() * 60
			case models.CategorySocial, models.CategoryContent:
				duration = rng.ExpFloat64() * 20
			default:
				duration = rng.ExpFloat64() * 5
			}
			row.duration = fmt.Sprintf("%.1f", math.Min(duration, genMaxDuration))

			rows = append(rows, row)
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].timestamp.Before(rows[j].timestamp)
	})

	w := csv.NewWriter(f)
	if err := w.Write([]string{"student_id", "event_type", "event_time", "module", "course", "grade", "activity_duration"}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range rows {
		record := []string{
			r.studentID,
			string(r.eventType),
			r.timestamp.Format("2006-01-02 15:04:05"),
			r.module,
			r.course,
			r.grade,
			r.duration,
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush sample file: %w", err)
	}
	return nil
}

// poisson draws from a Poisson distribution with the given mean
// (Knuth's method; fine for small lambda).
func poisson(rng *rand.Rand, lambda float64) int {
	limit := math.Exp(-lambda)
	k := 0
	p := 1.0
	for {
		p *= rng.Float64()
		if p <= limit {
			return k
		}
		k++
	}
}
