package risktier

import (
	"math"
	"math/rand"
)

// kmeansResult is the best clustering found across restarts.
type kmeansResult struct {
	Centroids [][]float64 `msgpack:"centroids"`
	Labels    []int       `msgpack:"labels"`
	Inertia   float64     `msgpack:"inertia"`
}

// kmeans clusters rows into k groups, keeping the restart with the
// lowest inertia. Deterministic for a given seed. Initialization is
// k-means++.
func kmeans(rows [][]float64, k int, restarts int, rng *rand.Rand) kmeansResult {
	best := kmeansResult{Inertia: math.Inf(1)}
	for r := 0; r < restarts; r++ {
		res := kmeansOnce(rows, k, rng)
		if res.Inertia < best.Inertia {
			best = res
		}
	}
	return best
}

func kmeansOnce(rows [][]float64, k int, rng *rand.Rand) kmeansResult {
	centroids := seedCentroids(rows, k, rng)
	labels := make([]int, len(rows))

	const maxIter = 300
	for iter := 0; iter < maxIter; iter++ {
		changed := false
		for i, row := range rows {
			c := nearestCentroid(row, centroids)
			if c != labels[i] {
				labels[i] = c
				changed = true
			}
		}

		recomputeCentroids(rows, labels, centroids, rng)

		if !changed && iter > 0 {
			break
		}
	}

	inertia := 0.0
	for i, row := range rows {
		inertia += sqDist(row, centroids[labels[i]])
	}
	return kmeansResult{Centroids: centroids, Labels: labels, Inertia: inertia}
}

// seedCentroids picks initial centers with k-means++ weighting.
func seedCentroids(rows [][]float64, k int, rng *rand.Rand) [][]float64 {
	centroids := make([][]float64, 0, k)
	first := rows[rng.Intn(len(rows))]
	centroids = append(centroids, append([]float64(nil), first...))

	dists := make([]float64, len(rows))
	for len(centroids) < k {
		total := 0.0
		for i, row := range rows {
			d := math.Inf(1)
			for _, c := range centroids {
				if s := sqDist(row, c); s < d {
					d = s
				}
			}
			dists[i] = d
			total += d
		}

		if total == 0 {
			// Degenerate data, fall back to uniform choice
			next := rows[rng.Intn(len(rows))]
			centroids = append(centroids, append([]float64(nil), next...))
			continue
		}

		target := rng.Float64() * total
		acc := 0.0
		chosen := len(rows) - 1
		for i, d := range dists {
			acc += d
			if acc >= target {
				chosen = i
				break
			}
		}
		centroids = append(centroids, append([]float64(nil), rows[chosen]...))
	}
	return centroids
}

func nearestCentroid(row []float64, centroids [][]float64) int {
	best := 0
	bestDist := math.Inf(1)
	for c, centroid := range centroids {
		if d := sqDist(row, centroid); d < bestDist {
			best = c
			bestDist = d
		}
	}
	return best
}

// recomputeCentroids moves each centroid to its members' mean. An
// emptied cluster is reseeded from a random row.
func recomputeCentroids(rows [][]float64, labels []int, centroids [][]float64, rng *rand.Rand) {
	dim := len(rows[0])
	counts := make([]int, len(centroids))
	sums := make([][]float64, len(centroids))
	for c := range centroids {
		sums[c] = make([]float64, dim)
	}
	for i, row := range rows {
		counts[labels[i]]++
		for j, v := range row {
			sums[labels[i]][j] += v
		}
	}
	for c := range centroids {
		if counts[c] == 0 {
			copy(centroids[c], rows[rng.Intn(len(rows))])
			continue
		}
		for j := range centroids[c] {
			centroids[c][j] = sums[c][j] / float64(counts[c])
		}
	}
}

func sqDist(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
