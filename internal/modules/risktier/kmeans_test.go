package risktier

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blobs generates n points around each of the given 2D centers with a
// small deterministic jitter.
func blobs(centers [][]float64, n int, rng *rand.Rand) ([][]float64, []int) {
	var rows [][]float64
	var truth []int
	for c, center := range centers {
		for i := 0; i < n; i++ {
			rows = append(rows, []float64{
				center[0] + rng.NormFloat64()*0.1,
				center[1] + rng.NormFloat64()*0.1,
			})
			truth = append(truth, c)
		}
	}
	return rows, truth
}

func TestKMeans_SeparatesBlobs(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	rows, truth := blobs([][]float64{{0, 0}, {10, 0}, {0, 10}}, 30, rng)

	res := kmeans(rows, 3, 10, rand.New(rand.NewSource(42)))

	// Each true blob maps to exactly one cluster.
	mapping := make(map[int]int)
	for i, label := range res.Labels {
		if got, ok := mapping[truth[i]]; ok {
			assert.Equal(t, got, label, "point %d crossed blobs", i)
		} else {
			mapping[truth[i]] = label
		}
	}
	assert.Len(t, mapping, 3)

	// Tight blobs give a small inertia relative to the separation.
	assert.Less(t, res.Inertia, 10.0)
}

func TestKMeans_DeterministicForSeed(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	rows, _ := blobs([][]float64{{0, 0}, {5, 5}, {-5, 5}}, 20, rng)

	first := kmeans(rows, 3, 10, rand.New(rand.NewSource(42)))
	second := kmeans(rows, 3, 10, rand.New(rand.NewSource(42)))

	require.Equal(t, first.Labels, second.Labels)
	assert.Equal(t, first.Inertia, second.Inertia)
	assert.Equal(t, first.Centroids, second.Centroids)
}

func TestKMeans_DegenerateIdenticalRows(t *testing.T) {
	rows := [][]float64{{1, 1}, {1, 1}, {1, 1}, {1, 1}}
	res := kmeans(rows, 3, 3, rand.New(rand.NewSource(1)))

	require.Len(t, res.Labels, 4)
	assert.Equal(t, 0.0, res.Inertia)
}
