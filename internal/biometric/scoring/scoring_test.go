package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosine(t *testing.T) {
	t.Run("identical vectors score 1", func(t *testing.T) {
		score, err := Cosine{}.Score([]float64{0.2, 0.5, 0.9}, []float64{0.2, 0.5, 0.9})
		require.NoError(t, err)
		assert.InDelta(t, 1.0, score, 1e-9)
	})

	t.Run("orthogonal vectors score 0", func(t *testing.T) {
		score, err := Cosine{}.Score([]float64{1, 0}, []float64{0, 1})
		require.NoError(t, err)
		assert.InDelta(t, 0.0, score, 1e-9)
	})

	t.Run("opposite vectors clamp to 0", func(t *testing.T) {
		score, err := Cosine{}.Score([]float64{1, 1}, []float64{-1, -1})
		require.NoError(t, err)
		assert.Equal(t, 0.0, score)
	})

	t.Run("dimension mismatch errors", func(t *testing.T) {
		_, err := Cosine{}.Score([]float64{1, 2}, []float64{1, 2, 3})
		require.Error(t, err)
	})

	t.Run("zero vector errors", func(t *testing.T) {
		_, err := Cosine{}.Score([]float64{0, 0}, []float64{1, 2})
		require.Error(t, err)
	})
}

func TestEuclidean(t *testing.T) {
	t.Run("identical vectors score 1", func(t *testing.T) {
		score, err := Euclidean{}.Score([]float64{3, 4}, []float64{3, 4})
		require.NoError(t, err)
		assert.InDelta(t, 1.0, score, 1e-9)
	})

	t.Run("distant vectors score near 0", func(t *testing.T) {
		score, err := Euclidean{}.Score([]float64{0, 0}, []float64{100, 100})
		require.NoError(t, err)
		assert.Less(t, score, 0.01)
	})

	t.Run("empty vectors error", func(t *testing.T) {
		_, err := Euclidean{}.Score(nil, nil)
		require.Error(t, err)
	})
}
