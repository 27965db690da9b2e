package risktier

import (
	"math/rand"
)

// ClassMetrics holds precision/recall/F1 for one risk tier on the
// held-out split. Diagnostics only, never used for gating.
type ClassMetrics struct {
	Label     string  `json:"label"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

// Evaluation is the classifier's held-out diagnostic report.
type Evaluation struct {
	Accuracy        float64        `json:"accuracy"`
	PerClass        []ClassMetrics `json:"per_class"`
	ConfusionMatrix [][]int        `json:"confusion_matrix"` // rows actual, cols predicted
	TrainSize       int            `json:"train_size"`
	TestSize        int            `json:"test_size"`
}

// stratifiedSplit partitions indices into train/test keeping class
// proportions, testFrac of each class held out.
func stratifiedSplit(y []int, nClasses int, testFrac float64, rng *rand.Rand) (train, test []int) {
	byClass := make([][]int, nClasses)
	for i, c := range y {
		byClass[c] = append(byClass[c], i)
	}

	for _, members := range byClass {
		shuffled := append([]int(nil), members...)
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})

		// int truncation keeps tiny classes fully in the training set
		nTest := int(float64(len(shuffled)) * testFrac)
		test = append(test, shuffled[:nTest]...)
		train = append(train, shuffled[nTest:]...)
	}
	return train, test
}

// evaluate computes per-class precision/recall/F1 and the confusion
// matrix on the held-out indices.
func evaluate(f *forest, X [][]float64, y []int, test []int, labels []string) Evaluation {
	n := f.NumClasses
	confusion := make([][]int, n)
	for i := range confusion {
		confusion[i] = make([]int, n)
	}

	correct := 0
	for _, i := range test {
		pred := f.predict(X[i])
		confusion[y[i]][pred]++
		if pred == y[i] {
			correct++
		}
	}

	ev := Evaluation{
		ConfusionMatrix: confusion,
		TestSize:        len(test),
	}
	if len(test) > 0 {
		ev.Accuracy = float64(correct) / float64(len(test))
	}

	for c := 0; c < n; c++ {
		var tp, fp, fn int
		for other := 0; other < n; other++ {
			if other == c {
				tp = confusion[c][c]
				continue
			}
			fp += confusion[other][c]
			fn += confusion[c][other]
		}

		m := ClassMetrics{Label: labels[c], Support: tp + fn}
		if tp+fp > 0 {
			m.Precision = float64(tp) / float64(tp+fp)
		}
		if tp+fn > 0 {
			m.Recall = float64(tp) / float64(tp+fn)
		}
		if m.Precision+m.Recall > 0 {
			m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
		}
		ev.PerClass = append(ev.PerClass, m)
	}
	return ev
}
