// Package cluster fits the segmentation model: feature standardization,
// deterministic k-means partitioning, monetary-ranked segment labels, and a
// PCA projection for visualization.
package cluster

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// Scaler standardizes features to zero mean and unit variance, column by
// column. Once fitted, the same parameters must be reused for every
// transform in the session: refitting on a different population would make
// the centroids incomparable to previously classified rows.
type Scaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// ErrEmptyMatrix means there is nothing to fit on.
var ErrEmptyMatrix = errors.New("empty feature matrix")

// FitScaler learns per-column mean and standard deviation. A zero-variance
// column gets scale 1 so transforming never divides by zero.
func FitScaler(x [][]float64) (*Scaler, error) {
	if len(x) == 0 || len(x[0]) == 0 {
		return nil, ErrEmptyMatrix
	}
	cols := len(x[0])

	s := &Scaler{
		Mean:  make([]float64, cols),
		Scale: make([]float64, cols),
	}
	column := make([]float64, len(x))
	for j := 0; j < cols; j++ {
		for i, row := range x {
			if len(row) != cols {
				return nil, fmt.Errorf("ragged feature matrix: row %d has %d columns, want %d", i, len(row), cols)
			}
			column[i] = row[j]
		}
		mean := stat.Mean(column, nil)
		variance := 0.0
		for _, v := range column {
			variance += (v - mean) * (v - mean)
		}
		// Population variance, matching the centroid geometry
		scale := math.Sqrt(variance / float64(len(column)))
		if scale == 0 {
			scale = 1
		}
		s.Mean[j] = mean
		s.Scale[j] = scale
	}
	return s, nil
}

// TransformRow standardizes a single feature vector.
func (s *Scaler) TransformRow(row []float64) []float64 {
	out := make([]float64, len(row))
	for j, v := range row {
		out[j] = (v - s.Mean[j]) / s.Scale[j]
	}
	return out
}

// Transform standardizes a matrix using the fitted parameters.
func (s *Scaler) Transform(x [][]float64) [][]float64 {
	out := make([][]float64, len(x))
	for i, row := range x {
		out[i] = s.TransformRow(row)
	}
	return out
}
