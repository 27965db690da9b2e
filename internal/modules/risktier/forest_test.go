package risktier

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// axisSplitData builds a three-class problem separable on the first
// feature alone, with noise in the second.
func axisSplitData(n int, rng *rand.Rand) ([][]float64, []int) {
	var X [][]float64
	var y []int
	for c := 0; c < 3; c++ {
		for i := 0; i < n; i++ {
			X = append(X, []float64{float64(c*10) + rng.Float64(), rng.NormFloat64()})
			y = append(y, c)
		}
	}
	return X, y
}

func TestForest_LearnsSeparableClasses(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	X, y := axisSplitData(40, rng)

	f := trainForest(X, y, 50, rng)

	correct := 0
	for i, row := range X {
		if f.predict(row) == y[i] {
			correct++
		}
	}
	// Cleanly separable training data should be fit almost perfectly.
	assert.GreaterOrEqual(t, correct, len(X)*95/100)

	// Points well inside each band classify correctly.
	assert.Equal(t, 0, f.predict([]float64{0.5, 0}))
	assert.Equal(t, 1, f.predict([]float64{10.5, 0}))
	assert.Equal(t, 2, f.predict([]float64{20.5, 0}))
}

func TestForest_SingleClass(t *testing.T) {
	X := [][]float64{{1, 2}, {3, 4}, {5, 6}}
	y := []int{1, 1, 1}

	f := trainForest(X, y, 10, rand.New(rand.NewSource(1)))
	assert.Equal(t, 1, f.predict([]float64{100, -100}))
	assert.Equal(t, 2, f.NumClasses)
}

func TestStratifiedSplit(t *testing.T) {
	// 60 of class 0, 30 of class 1, 10 of class 2
	var y []int
	for i := 0; i < 60; i++ {
		y = append(y, 0)
	}
	for i := 0; i < 30; i++ {
		y = append(y, 1)
	}
	for i := 0; i < 10; i++ {
		y = append(y, 2)
	}

	train, test := stratifiedSplit(y, 3, 0.2, rand.New(rand.NewSource(42)))

	require.Len(t, train, 80)
	require.Len(t, test, 20)

	// No index appears in both sides.
	seen := make(map[int]bool)
	for _, i := range train {
		seen[i] = true
	}
	for _, i := range test {
		assert.False(t, seen[i], "index %d leaked into both splits", i)
	}

	// Each class holds its ratio: 12 of class 0, 6 of class 1, 2 of
	// class 2 in the test side.
	testCounts := make([]int, 3)
	for _, i := range test {
		testCounts[y[i]]++
	}
	assert.Equal(t, []int{12, 6, 2}, testCounts)
}

func TestStratifiedSplit_TinyClassStaysInTrain(t *testing.T) {
	y := []int{0, 0, 0, 0, 0, 0, 0, 0, 1, 2}
	train, test := stratifiedSplit(y, 3, 0.2, rand.New(rand.NewSource(42)))

	// Singleton classes truncate to zero test samples.
	for _, i := range test {
		assert.Equal(t, 0, y[i])
	}
	assert.Len(t, train, 9)
	assert.Len(t, test, 1)
}
