package cluster

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// PCA is a fitted linear projection onto the top principal components.
// Pure derived view for visualization; it never influences cluster
// membership or labels.
type PCA struct {
	Dims       int         `json:"dims"`
	Means      []float64   `json:"means"`
	Components [][]float64 `json:"components"` // column-major: Components[j][d]
}

// FitPCA fits the projection on standardized features via SVD and returns
// the model together with the projected coordinates of the input rows.
func FitPCA(x [][]float64, dims int) (*PCA, [][]float64, error) {
	if len(x) == 0 || len(x[0]) == 0 {
		return nil, nil, ErrEmptyMatrix
	}
	rows, cols := len(x), len(x[0])
	if dims < 1 || dims > cols {
		return nil, nil, fmt.Errorf("target dimensions %d outside [1, %d]", dims, cols)
	}

	data := make([]float64, 0, rows*cols)
	means := make([]float64, cols)
	for _, row := range x {
		if len(row) != cols {
			return nil, nil, fmt.Errorf("ragged feature matrix")
		}
		for j, v := range row {
			means[j] += v
		}
		data = append(data, row...)
	}
	for j := range means {
		means[j] /= float64(rows)
	}

	// Center columns; input is standardized already but merged incremental
	// rows can shift the column means slightly.
	m := mat.NewDense(rows, cols, data)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			m.Set(i, j, m.At(i, j)-means[j])
		}
	}

	var svd mat.SVD
	if ok := svd.Factorize(m, mat.SVDThin); !ok {
		return nil, nil, fmt.Errorf("SVD factorization failed")
	}

	var v mat.Dense
	svd.VTo(&v)

	p := &PCA{Dims: dims, Means: means, Components: make([][]float64, cols)}
	for j := 0; j < cols; j++ {
		p.Components[j] = make([]float64, dims)
		for d := 0; d < dims; d++ {
			p.Components[j][d] = v.At(j, d)
		}
	}

	projected := make([][]float64, rows)
	for i := range projected {
		projected[i] = p.ProjectRow(x[i])
	}
	return p, projected, nil
}

// ProjectRow maps one standardized feature vector into component space
// using the fitted basis.
func (p *PCA) ProjectRow(row []float64) []float64 {
	out := make([]float64, p.Dims)
	for d := 0; d < p.Dims; d++ {
		for j, v := range row {
			out[d] += (v - p.Means[j]) * p.Components[j][d]
		}
	}
	return out
}
