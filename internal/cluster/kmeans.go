// Learnlens - LMS Engagement Analytics and Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/learnlens

// Package cluster partitions students into behavioral segments with seeded
// k-means over z-scored feature vectors.
//
// Standardization uses cohort mean and standard deviation computed once
// before clustering so features with large numeric ranges cannot dominate
// Euclidean distance. Initialization is k-means++ style driven by an explicit
// seed; identical input, k and seed always produce identical assignments and
// centroids. Each iteration produces an immutable snapshot, retained as a
// convergence trace.
package cluster

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"

	"github.com/tomtom215/learnlens/internal/logging"
	"github.com/tomtom215/learnlens/internal/models"
)

// Config contains clustering configuration.
type Config struct {
	// K is the number of clusters. Zero selects k automatically with the
	// elbow heuristic over [2, MaxAutoK].
	K int

	// MaxAutoK bounds the candidate range for automatic k selection.
	// Default: 6.
	MaxAutoK int

	// MaxIterations bounds the assign/recompute loop. Default: 100.
	MaxIterations int

	// Seed drives centroid initialization. The same seed always reproduces
	// the same clustering.
	Seed int64
}

// normalized applies defaults for zero values.
func (c Config) normalized() Config {
	if c.MaxAutoK < 2 {
		c.MaxAutoK = 6
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = 100
	}
	return c
}

// IterationSnapshot is the immutable state after one k-means iteration.
type IterationSnapshot struct {
	// Assignments maps point index (profile order) to cluster index.
	Assignments []int `json:"assignments"`

	// Centroids are the cluster centers in z-scored feature space.
	Centroids [][]float64 `json:"centroids"`

	// Inertia is the sum of squared distances to assigned centroids.
	Inertia float64 `json:"inertia"`
}

// Result is the clustering output for one run. Labels are stable only within
// a run; they carry no meaning across runs.
type Result struct {
	// Defined is false when the cohort is empty; Reason explains why.
	Defined bool `json:"defined"`

	// Reason explains an undefined result.
	Reason string `json:"reason,omitempty"`

	// K is the number of clusters actually used.
	K int `json:"k"`

	// Adjusted reports that K was reduced because the cohort had fewer
	// students than the configured k.
	Adjusted bool `json:"adjusted"`

	// Labels maps student_id to a cluster index in [0, K).
	Labels map[string]int `json:"labels"`

	// Centroids are the cluster centers in original feature space.
	Centroids []models.FeatureVector `json:"centroids"`

	// Summaries are human-readable per-cluster descriptions derived from the
	// features deviating most from the cohort mean.
	Summaries []string `json:"summaries"`

	// Sizes is the member count per cluster.
	Sizes []int `json:"sizes"`

	// Inertia is the final sum of squared distances in z-space.
	Inertia float64 `json:"inertia"`

	// Iterations is the number of iterations performed.
	Iterations int `json:"iterations"`

	// Converged is false when the iteration bound was hit first.
	Converged bool `json:"converged"`

	// Trace holds the per-iteration snapshots of the final clustering.
	Trace []IterationSnapshot `json:"-"`

	// Diagnostics records adjustments such as a reduced k.
	Diagnostics []models.Diagnostic `json:"diagnostics,omitempty"`
}

// Run clusters the given profiles. The profile order defines the point order
// used for initialization and tie-breaking, so callers must pass a
// deterministic order (metrics.Snapshot.ProfilesInOrder).
func Run(ctx context.Context, profiles []*models.StudentProfile, cfg Config) (*Result, error) {
	cfg = cfg.normalized()
	n := len(profiles)

	if n == 0 {
		return &Result{
			Defined: false,
			Reason:  "no students to cluster",
			Labels:  map[string]int{},
			Diagnostics: []models.Diagnostic{{
				Kind:   models.DiagInsufficientData,
				Stage:  "cluster",
				Reason: "clustering requested with zero students",
			}},
		}, nil
	}

	points := make([][]float64, n)
	for i, p := range profiles {
		points[i] = p.Features.Values()
	}
	zPoints, means, stds := standardize(points)

	res := &Result{Defined: true, Labels: make(map[string]int, n)}

	k := cfg.K
	switch {
	case k == 0:
		var err error
		k, err = selectK(ctx, zPoints, cfg)
		if err != nil {
			return nil, err
		}
	case k > n:
		res.Adjusted = true
		res.Diagnostics = append(res.Diagnostics, models.Diagnostic{
			Kind:   models.DiagInsufficientData,
			Stage:  "cluster",
			Reason: fmt.Sprintf("k reduced from %d to %d: cohort has only %d students", k, n, n),
		})
		k = n
	}
	res.K = k

	run, err := kmeans(ctx, zPoints, k, cfg.Seed, cfg.MaxIterations)
	if err != nil {
		return nil, err
	}

	final := run.Trace[len(run.Trace)-1]
	res.Trace = run.Trace
	res.Inertia = final.Inertia
	res.Iterations = len(run.Trace)
	res.Converged = run.Converged
	res.Sizes = make([]int, k)

	for i, p := range profiles {
		res.Labels[p.StudentID] = final.Assignments[i]
		res.Sizes[final.Assignments[i]]++
	}

	res.Centroids = make([]models.FeatureVector, k)
	res.Summaries = make([]string, k)
	for c := 0; c < k; c++ {
		res.Centroids[c] = destandardize(final.Centroids[c], means, stds)
		res.Summaries[c] = summarize(final.Centroids[c], stds)
	}

	logging.Info().
		Int("k", k).
		Int("students", n).
		Int("iterations", res.Iterations).
		Bool("converged", res.Converged).
		Float64("inertia", res.Inertia).
		Msg("Clustering complete")

	return res, nil
}

// kmeansRun is the outcome of one k-means execution.
type kmeansRun struct {
	Trace     []IterationSnapshot
	Converged bool
}

// kmeans executes seeded k-means++ on z-scored points. Every iteration
// appends an immutable snapshot; the final snapshot is the result.
func kmeans(ctx context.Context, points [][]float64, k int, seed int64, maxIterations int) (*kmeansRun, error) {
	rng := rand.New(rand.NewSource(seed))
	centroids := initCentroids(points, k, rng)

	run := &kmeansRun{}
	prev := make([]int, len(points))
	for i := range prev {
		prev[i] = -1
	}

	for iter := 0; iter < maxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		assignments := make([]int, len(points))
		inertia := 0.0
		for i, p := range points {
			c, d2 := nearest(p, centroids)
			assignments[i] = c
			inertia += d2
		}

		centroids = recompute(points, assignments, centroids, k)

		run.Trace = append(run.Trace, IterationSnapshot{
			Assignments: assignments,
			Centroids:   copyMatrix(centroids),
			Inertia:     inertia,
		})

		if equalInts(assignments, prev) {
			run.Converged = true
			break
		}
		prev = assignments
	}

	return run, nil
}

// initCentroids is a k-means++ style seeding: the first centroid is a random
// point; each subsequent centroid is drawn with probability proportional to
// the squared distance from the nearest already-chosen centroid.
func initCentroids(points [][]float64, k int, rng *rand.Rand) [][]float64 {
	centroids := make([][]float64, 0, k)
	centroids = append(centroids, copyVector(points[rng.Intn(len(points))]))

	for len(centroids) < k {
		weights := make([]float64, len(points))
		var total float64
		for i, p := range points {
			_, d2 := nearest(p, centroids)
			weights[i] = d2
			total += d2
		}

		if total == 0 {
			// All remaining points coincide with existing centroids;
			// fall back to uniform choice.
			centroids = append(centroids, copyVector(points[rng.Intn(len(points))]))
			continue
		}

		target := rng.Float64() * total
		var cum float64
		chosen := len(points) - 1
		for i, w := range weights {
			cum += w
			if cum >= target {
				chosen = i
				break
			}
		}
		centroids = append(centroids, copyVector(points[chosen]))
	}

	return centroids
}

// nearest returns the closest centroid index and the squared distance.
// Ties are broken by the lowest cluster index (strict less-than).
func nearest(point []float64, centroids [][]float64) (int, float64) {
	best := 0
	bestDist := squaredDistance(point, centroids[0])
	for c := 1; c < len(centroids); c++ {
		if d := squaredDistance(point, centroids[c]); d < bestDist {
			best = c
			bestDist = d
		}
	}
	return best, bestDist
}

// recompute returns fresh centroids as the mean of each cluster's members.
// An empty cluster keeps its previous centroid.
func recompute(points [][]float64, assignments []int, previous [][]float64, k int) [][]float64 {
	dims := len(points[0])
	sums := make([][]float64, k)
	counts := make([]int, k)
	for c := range sums {
		sums[c] = make([]float64, dims)
	}

	for i, p := range points {
		c := assignments[i]
		counts[c]++
		for j, v := range p {
			sums[c][j] += v
		}
	}

	centroids := make([][]float64, k)
	for c := 0; c < k; c++ {
		if counts[c] == 0 {
			centroids[c] = copyVector(previous[c])
			continue
		}
		centroids[c] = sums[c]
		for j := range centroids[c] {
			centroids[c][j] /= float64(counts[c])
		}
	}
	return centroids
}

// selectK picks k via the elbow heuristic: run k-means for every candidate in
// [2, min(MaxAutoK, n)] and choose the candidate with the largest relative
// inertia drop from its predecessor (k=1 is the baseline).
func selectK(ctx context.Context, points [][]float64, cfg Config) (int, error) {
	n := len(points)
	if n == 1 {
		return 1, nil
	}

	maxK := cfg.MaxAutoK
	if maxK > n {
		maxK = n
	}

	baseline, err := kmeans(ctx, points, 1, cfg.Seed, cfg.MaxIterations)
	if err != nil {
		return 0, err
	}
	prevInertia := baseline.Trace[len(baseline.Trace)-1].Inertia

	bestK := 2
	bestDrop := -1.0
	for k := 2; k <= maxK; k++ {
		run, err := kmeans(ctx, points, k, cfg.Seed, cfg.MaxIterations)
		if err != nil {
			return 0, err
		}
		inertia := run.Trace[len(run.Trace)-1].Inertia

		drop := 0.0
		if prevInertia > 0 {
			drop = (prevInertia - inertia) / prevInertia
		}
		if drop > bestDrop {
			bestDrop = drop
			bestK = k
		}
		prevInertia = inertia
	}

	return bestK, nil
}

// standardize z-scores each column with the cohort mean and population
// standard deviation. Zero-variance columns map to 0 so they contribute
// nothing to distance.
func standardize(points [][]float64) (z [][]float64, means, stds []float64) {
	n := len(points)
	dims := len(points[0])
	means = make([]float64, dims)
	stds = make([]float64, dims)

	for j := 0; j < dims; j++ {
		var sum float64
		for i := 0; i < n; i++ {
			sum += points[i][j]
		}
		means[j] = sum / float64(n)

		var ss float64
		for i := 0; i < n; i++ {
			d := points[i][j] - means[j]
			ss += d * d
		}
		stds[j] = math.Sqrt(ss / float64(n))
	}

	z = make([][]float64, n)
	for i := 0; i < n; i++ {
		z[i] = make([]float64, dims)
		for j := 0; j < dims; j++ {
			if stds[j] > 0 {
				z[i][j] = (points[i][j] - means[j]) / stds[j]
			}
		}
	}
	return z, means, stds
}

// destandardize maps a z-space centroid back to original feature space.
func destandardize(centroid, means, stds []float64) models.FeatureVector {
	vals := make([]float64, len(centroid))
	for j, v := range centroid {
		vals[j] = v*stds[j] + means[j]
	}
	return models.FeatureVectorFromValues(vals)
}

// summaryDeviationThreshold is the minimum |z| for a feature to appear in a
// cluster summary.
const summaryDeviationThreshold = 0.25

// summarize describes a cluster by its two strongest centroid deviations
// from the cohort mean, e.g. "high forum_participation_rate, low
// assessment_rate". Zero-variance features never qualify.
func summarize(centroid []float64, stds []float64) string {
	type deviation struct {
		name string
		z    float64
	}

	names := models.FeatureNames()
	var devs []deviation
	for j, z := range centroid {
		if stds[j] == 0 || math.Abs(z) < summaryDeviationThreshold {
			continue
		}
		devs = append(devs, deviation{name: names[j], z: z})
	}

	if len(devs) == 0 {
		return "near cohort average"
	}

	sort.Slice(devs, func(i, j int) bool {
		ai, aj := math.Abs(devs[i].z), math.Abs(devs[j].z)
		if ai != aj {
			return ai > aj
		}
		return devs[i].name < devs[j].name
	})
	if len(devs) > 2 {
		devs = devs[:2]
	}

	parts := make([]string, len(devs))
	for i, d := range devs {
		direction := "high"
		if d.z < 0 {
			direction = "low"
		}
		parts[i] = direction + " " + d.name
	}
	return strings.Join(parts, ", ")
}

func squaredDistance(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

func copyVector(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	return out
}

func copyMatrix(m [][]float64) [][]float64 {
	out := make([][]float64, len(m))
	for i, row := range m {
		out[i] = copyVector(row)
	}
	return out
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
