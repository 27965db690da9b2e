package risktier

import (
	"math"
	"math/rand"
	"sort"
)

// treeNode is one node of a CART decision tree. Leaf nodes carry the
// majority class, internal nodes a feature/threshold split.
type treeNode struct {
	Leaf      bool      `msgpack:"leaf"`
	Class     int       `msgpack:"class"`
	Feature   int       `msgpack:"feature"`
	Threshold float64   `msgpack:"threshold"`
	Left      *treeNode `msgpack:"left"`
	Right     *treeNode `msgpack:"right"`
}

// forest is a random forest classifier: bootstrap-sampled gini CART
// trees with per-split feature subsampling, majority vote.
type forest struct {
	Trees      []*treeNode `msgpack:"trees"`
	NumClasses int         `msgpack:"num_classes"`
}

const (
	minSamplesSplit = 2
	maxTreeDepth    = 32
)

// trainForest fits nTrees trees on X/y. Deterministic for a given rng.
func trainForest(X [][]float64, y []int, nTrees int, rng *rand.Rand) *forest {
	nClasses := 0
	for _, c := range y {
		if c >= nClasses {
			nClasses = c + 1
		}
	}
	mtry := int(math.Ceil(math.Sqrt(float64(len(X[0])))))

	f := &forest{NumClasses: nClasses, Trees: make([]*treeNode, 0, nTrees)}
	for t := 0; t < nTrees; t++ {
		idx := make([]int, len(X))
		for i := range idx {
			idx[i] = rng.Intn(len(X))
		}
		f.Trees = append(f.Trees, buildTree(X, y, idx, nClasses, mtry, 0, rng))
	}
	return f
}

// predict returns the majority-vote class for one row.
func (f *forest) predict(row []float64) int {
	votes := make([]int, f.NumClasses)
	for _, t := range f.Trees {
		votes[t.classify(row)]++
	}
	best := 0
	for c, v := range votes {
		if v > votes[best] {
			best = c
		}
	}
	return best
}

func (n *treeNode) classify(row []float64) int {
	for !n.Leaf {
		if row[n.Feature] <= n.Threshold {
			n = n.Left
		} else {
			n = n.Right
		}
	}
	return n.Class
}

func buildTree(X [][]float64, y []int, idx []int, nClasses, mtry, depth int, rng *rand.Rand) *treeNode {
	counts := classCounts(y, idx, nClasses)
	if depth >= maxTreeDepth || len(idx) < minSamplesSplit || isPure(counts) {
		return &treeNode{Leaf: true, Class: argmax(counts)}
	}

	feature, threshold, ok := bestSplit(X, y, idx, nClasses, mtry, rng)
	if !ok {
		return &treeNode{Leaf: true, Class: argmax(counts)}
	}

	var left, right []int
	for _, i := range idx {
		if X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return &treeNode{Leaf: true, Class: argmax(counts)}
	}

	return &treeNode{
		Feature:   feature,
		Threshold: threshold,
		Left:      buildTree(X, y, left, nClasses, mtry, depth+1, rng),
		Right:     buildTree(X, y, right, nClasses, mtry, depth+1, rng),
	}
}

// bestSplit scans mtry randomly chosen features for the threshold with
// the lowest weighted gini impurity.
func bestSplit(X [][]float64, y []int, idx []int, nClasses, mtry int, rng *rand.Rand) (int, float64, bool) {
	nFeatures := len(X[0])
	features := rng.Perm(nFeatures)[:mtry]

	bestGini := math.Inf(1)
	bestFeature := -1
	bestThreshold := 0.0

	vals := make([]float64, len(idx))
	for _, f := range features {
		for i, row := range idx {
			vals[i] = X[row][f]
		}
		sorted := append([]float64(nil), vals...)
		sort.Float64s(sorted)

		for i := 1; i < len(sorted); i++ {
			if sorted[i] == sorted[i-1] {
				continue
			}
			threshold := (sorted[i] + sorted[i-1]) / 2

			leftCounts := make([]int, nClasses)
			rightCounts := make([]int, nClasses)
			nLeft := 0
			for _, row := range idx {
				if X[row][f] <= threshold {
					leftCounts[y[row]]++
					nLeft++
				} else {
					rightCounts[y[row]]++
				}
			}
			nRight := len(idx) - nLeft
			if nLeft == 0 || nRight == 0 {
				continue
			}

			g := (float64(nLeft)*gini(leftCounts, nLeft) +
				float64(nRight)*gini(rightCounts, nRight)) / float64(len(idx))
			if g < bestGini {
				bestGini = g
				bestFeature = f
				bestThreshold = threshold
			}
		}
	}

	return bestFeature, bestThreshold, bestFeature >= 0
}

func gini(counts []int, total int) float64 {
	g := 1.0
	for _, c := range counts {
		p := float64(c) / float64(total)
		g -= p * p
	}
	return g
}

func classCounts(y []int, idx []int, nClasses int) []int {
	counts := make([]int, nClasses)
	for _, i := range idx {
		counts[y[i]]++
	}
	return counts
}

func isPure(counts []int) bool {
	nonzero := 0
	for _, c := range counts {
		if c > 0 {
			nonzero++
		}
	}
	return nonzero <= 1
}

func argmax(counts []int) int {
	best := 0
	for c, v := range counts {
		if v > counts[best] {
			best = c
		}
	}
	return best
}
