package cluster

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

// Seed fixes the k-means++ initialization so repeated fits on identical
// input produce identical cluster indices. Label mapping depends on this.
const Seed = 42

const maxIterations = 300

// ErrInsufficientData means the requested cluster count exceeds the number
// of distinct feature rows.
var ErrInsufficientData = errors.New("insufficient data for requested cluster count")

// KMeans holds fitted centroids over standardized features. Read-only once
// fitted.
type KMeans struct {
	K         int         `json:"k"`
	Centroids [][]float64 `json:"centroids"`
}

// FitKMeans partitions the standardized rows into k clusters minimizing
// within-cluster sum of squared distances, with k-means++ seeding from the
// fixed Seed. Returns the model and one cluster index per input row.
func FitKMeans(x [][]float64, k int) (*KMeans, []int, error) {
	if k < 2 {
		return nil, nil, fmt.Errorf("cluster count must be at least 2, got %d", k)
	}
	if len(x) == 0 {
		return nil, nil, fmt.Errorf("%w: empty feature matrix", ErrInsufficientData)
	}
	if distinct := countDistinctRows(x); k > distinct {
		return nil, nil, fmt.Errorf("%w: %d clusters requested but only %d distinct rows", ErrInsufficientData, k, distinct)
	}

	rng := rand.New(rand.NewSource(Seed))
	centroids := seedCentroids(x, k, rng)
	assignments := make([]int, len(x))
	for i := range assignments {
		assignments[i] = -1
	}

	for iter := 0; iter < maxIterations; iter++ {
		changed := false
		for i, row := range x {
			c := nearestCentroid(centroids, row)
			if c != assignments[i] {
				assignments[i] = c
				changed = true
			}
		}
		if !changed {
			break
		}
		recomputeCentroids(x, assignments, centroids)
	}

	return &KMeans{K: k, Centroids: centroids}, assignments, nil
}

// Predict returns the index of the nearest fitted centroid. Never refits.
func (m *KMeans) Predict(row []float64) int {
	return nearestCentroid(m.Centroids, row)
}

func nearestCentroid(centroids [][]float64, row []float64) int {
	best, bestDist := 0, math.Inf(1)
	for c, centroid := range centroids {
		if d := floats.Distance(row, centroid, 2); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

// seedCentroids implements k-means++: the first centroid is drawn uniformly,
// each following one proportionally to squared distance from the nearest
// already-chosen centroid.
func seedCentroids(x [][]float64, k int, rng *rand.Rand) [][]float64 {
	centroids := make([][]float64, 0, k)
	centroids = append(centroids, cloneRow(x[rng.Intn(len(x))]))

	d2 := make([]float64, len(x))
	for len(centroids) < k {
		total := 0.0
		for i, row := range x {
			d := floats.Distance(row, centroids[0], 2)
			for _, centroid := range centroids[1:] {
				if dd := floats.Distance(row, centroid, 2); dd < d {
					d = dd
				}
			}
			d2[i] = d * d
			total += d2[i]
		}

		idx := -1
		if total > 0 {
			r := rng.Float64() * total
			cum := 0.0
			for i, w := range d2 {
				cum += w
				if w > 0 && cum >= r {
					idx = i
					break
				}
			}
		}
		if idx < 0 {
			// All remaining mass on duplicates of chosen centroids
			idx = rng.Intn(len(x))
		}
		centroids = append(centroids, cloneRow(x[idx]))
	}
	return centroids
}

func recomputeCentroids(x [][]float64, assignments []int, centroids [][]float64) {
	k := len(centroids)
	dims := len(x[0])
	counts := make([]int, k)
	sums := make([][]float64, k)
	for c := range sums {
		sums[c] = make([]float64, dims)
	}
	for i, row := range x {
		c := assignments[i]
		counts[c]++
		floats.Add(sums[c], row)
	}
	for c := 0; c < k; c++ {
		if counts[c] == 0 {
			// Re-seed an emptied cluster with the point farthest from its
			// current centroid
			centroids[c] = cloneRow(x[farthestPoint(x, assignments, centroids)])
			continue
		}
		floats.Scale(1/float64(counts[c]), sums[c])
		centroids[c] = sums[c]
	}
}

func farthestPoint(x [][]float64, assignments []int, centroids [][]float64) int {
	best, bestDist := 0, -1.0
	for i, row := range x {
		if d := floats.Distance(row, centroids[assignments[i]], 2); d > bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

func countDistinctRows(x [][]float64) int {
	seen := make(map[string]struct{}, len(x))
	for _, row := range x {
		key := make([]byte, 0, len(row)*8)
		for _, v := range row {
			bits := math.Float64bits(v)
			for shift := 0; shift < 64; shift += 8 {
				key = append(key, byte(bits>>shift))
			}
		}
		seen[string(key)] = struct{}{}
	}
	return len(seen)
}

func cloneRow(row []float64) []float64 {
	out := make([]float64, len(row))
	copy(out, row)
	return out
}
