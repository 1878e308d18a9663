package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Three well-separated groups in standardized space.
func separatedRows() [][]float64 {
	return [][]float64{
		{-1.0, -1.1, -0.9}, {-1.1, -0.9, -1.0}, {-0.9, -1.0, -1.1},
		{0.0, 0.1, -0.1}, {0.1, -0.1, 0.0}, {-0.1, 0.0, 0.1},
		{1.0, 1.1, 0.9}, {1.1, 0.9, 1.0}, {0.9, 1.0, 1.1},
	}
}

func TestFitKMeansPartitionsSeparatedGroups(t *testing.T) {
	rows := separatedRows()
	model, assignments, err := FitKMeans(rows, 3)
	require.NoError(t, err)
	require.Len(t, assignments, len(rows))
	require.Len(t, model.Centroids, 3)

	// Each group of three input rows lands in one cluster
	for g := 0; g < 3; g++ {
		c := assignments[g*3]
		assert.Equal(t, c, assignments[g*3+1], "group %d split", g)
		assert.Equal(t, c, assignments[g*3+2], "group %d split", g)
	}
	// And the three groups land in three different clusters
	assert.NotEqual(t, assignments[0], assignments[3])
	assert.NotEqual(t, assignments[3], assignments[6])
	assert.NotEqual(t, assignments[0], assignments[6])
}

func TestFitKMeansDeterministic(t *testing.T) {
	rows := separatedRows()

	model1, assignments1, err := FitKMeans(rows, 3)
	require.NoError(t, err)
	model2, assignments2, err := FitKMeans(rows, 3)
	require.NoError(t, err)

	assert.Equal(t, assignments1, assignments2)
	assert.Equal(t, model1.Centroids, model2.Centroids)
}

func TestFitKMeansInsufficientData(t *testing.T) {
	rows := [][]float64{
		{1, 2, 3},
		{1, 2, 3},
		{4, 5, 6},
	}

	// Only 2 distinct rows, so k=3 must fail
	_, _, err := FitKMeans(rows, 3)
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, _, err = FitKMeans(rows, 2)
	assert.NoError(t, err)
}

func TestFitKMeansRejectsSmallK(t *testing.T) {
	_, _, err := FitKMeans(separatedRows(), 1)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrInsufficientData)
}

func TestFitKMeansEmpty(t *testing.T) {
	_, _, err := FitKMeans(nil, 2)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestPredictNearestCentroid(t *testing.T) {
	rows := separatedRows()
	model, assignments, err := FitKMeans(rows, 3)
	require.NoError(t, err)

	// Predicting a fitted row returns its own cluster
	for i, row := range rows {
		assert.Equal(t, assignments[i], model.Predict(row), "row %d", i)
	}

	// A new point near the high group joins it
	assert.Equal(t, assignments[6], model.Predict([]float64{1.05, 1.0, 1.0}))
}

func TestPredictDoesNotMutateModel(t *testing.T) {
	rows := separatedRows()
	model, _, err := FitKMeans(rows, 3)
	require.NoError(t, err)

	before := make([][]float64, len(model.Centroids))
	for i, c := range model.Centroids {
		before[i] = append([]float64(nil), c...)
	}

	model.Predict([]float64{5, 5, 5})
	assert.Equal(t, before, model.Centroids)
}
