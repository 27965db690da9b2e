// Package risktier assigns Low/Medium/High risk tiers to schemes by
// clustering normalized features and distilling the clustering into a
// classifier for inference.
package risktier

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/pranavkh/fundsage/internal/domain"
	"github.com/pranavkh/fundsage/internal/modules/features"
)

// The tiering feature subset. Order is part of the model artifact
// contract; changing it invalidates persisted models via the content
// hash.
var featureNames = []string{
	"yearly_return_w",
	"monthly_return_w",
	"yearly_std_w",
	"monthly_std_w",
	"max_drawdown_w",
	"sharpe_log",
	"cagr_1y_w",
}

// Standardized-space indices of the volatility features driving the
// cluster label derivation.
const (
	idxYearlySTD   = 2
	idxMonthlySTD  = 3
	idxMaxDrawdown = 4
)

// Scaler holds per-column standardization statistics.
type Scaler struct {
	Means []float64 `msgpack:"means"`
	Stds  []float64 `msgpack:"stds"`
}

func (s *Scaler) transform(rows [][]float64) [][]float64 {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		z := make([]float64, len(row))
		for j, v := range row {
			if s.Stds[j] > 0 {
				z[j] = (v - s.Means[j]) / s.Stds[j]
			}
		}
		out[i] = z
	}
	return out
}

// Model is the full set of fitted tiering artifacts. The winsorization
// cut points ride along so a loaded classifier is always paired with
// the normalization that produced its training data.
type Model struct {
	Scaler     *Scaler             `msgpack:"scaler"`
	Projection *projection         `msgpack:"projection"`
	Centroids  [][]float64         `msgpack:"centroids"`
	LabelMap   []string            `msgpack:"label_map"` // cluster index -> risk label
	Forest     *forest             `msgpack:"forest"`
	CutPoints  *features.CutPoints `msgpack:"cut_points"`
}

// Report carries the build-time tiering diagnostics.
type Report struct {
	Tiered       int            `json:"tiered"`
	Excluded     int            `json:"excluded"` // rows missing subset features
	ClusterSizes map[string]int `json:"cluster_sizes"`
	Inertia      float64        `json:"inertia"`
	Classifier   Evaluation     `json:"classifier"`
}

// Tierer fits risk tiers on a built feature table.
type Tierer struct {
	seed     int64
	restarts int
	trees    int
	log      zerolog.Logger
}

// NewTierer creates a tierer.
func NewTierer(seed int64, restarts, trees int, log zerolog.Logger) *Tierer {
	return &Tierer{
		seed:     seed,
		restarts: restarts,
		trees:    trees,
		log:      log.With().Str("component", "risk_tierer").Logger(),
	}
}

// Fit clusters the records, derives tier labels from centroid
// statistics, trains the classifier, and writes RiskLevel into the
// records in place. Records missing any subset feature are excluded
// from tiering only; they keep an empty tier and full feature rows.
func (t *Tierer) Fit(records []domain.SchemeFeatureRecord, cutPoints *features.CutPoints) (*Model, *Report, error) {
	var rows [][]float64
	var included []int
	for i := range records {
		if vec, ok := featureVector(&records[i]); ok {
			rows = append(rows, vec)
			included = append(included, i)
		}
	}
	if len(rows) < 3 {
		return nil, nil, fmt.Errorf("%w: only %d schemes have complete tiering features", domain.ErrDataQuality, len(rows))
	}

	scaler := fitScaler(rows)
	z := scaler.transform(rows)

	proj, err := fitPCA(z, 2)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fit PCA: %w", err)
	}
	embedded := proj.project(z)

	rng := rand.New(rand.NewSource(t.seed))
	clustering := kmeans(embedded, 3, t.restarts, rng)

	labelMap := deriveLabelMap(z, clustering.Labels)

	// Class index follows tier order Low=0, Medium=1, High=2 so the
	// classifier output is directly ordinal.
	y := make([]int, len(rows))
	for i, c := range clustering.Labels {
		y[i] = tierIndex(labelMap[c])
	}

	train, test := stratifiedSplit(y, 3, 0.2, rng)
	trainX := make([][]float64, len(train))
	trainY := make([]int, len(train))
	for i, idx := range train {
		trainX[i] = rows[idx]
		trainY[i] = y[idx]
	}
	f := trainForest(trainX, trainY, t.trees, rng)
	ev := evaluate(f, rows, y, test, tierOrder)
	ev.TrainSize = len(train)

	for i, recIdx := range included {
		records[recIdx].RiskLevel = domain.RiskLevel(labelMap[clustering.Labels[i]])
	}

	sizes := make(map[string]int, 3)
	for _, c := range clustering.Labels {
		sizes[labelMap[c]]++
	}

	model := &Model{
		Scaler:     scaler,
		Projection: proj,
		Centroids:  clustering.Centroids,
		LabelMap:   labelMap,
		Forest:     f,
		CutPoints:  cutPoints,
	}
	report := &Report{
		Tiered:       len(rows),
		Excluded:     len(records) - len(rows),
		ClusterSizes: sizes,
		Inertia:      clustering.Inertia,
		Classifier:   ev,
	}

	t.log.Info().
		Int("tiered", report.Tiered).
		Int("excluded", report.Excluded).
		Float64("inertia", report.Inertia).
		Float64("accuracy", ev.Accuracy).
		Msg("risk tiers fitted")
	return model, report, nil
}

// Predict classifies one record with the fitted forest. Used for
// schemes arriving after a build, the build itself uses cluster
// membership directly.
func (m *Model) Predict(rec *domain.SchemeFeatureRecord) (domain.RiskLevel, error) {
	vec, ok := featureVector(rec)
	if !ok {
		return "", fmt.Errorf("%w: scheme %d missing tiering features", domain.ErrDataQuality, rec.SchemeID)
	}
	return domain.RiskLevel(tierOrder[m.Forest.predict(vec)]), nil
}

var tierOrder = []string{string(domain.RiskLow), string(domain.RiskMedium), string(domain.RiskHigh)}

func tierIndex(label string) int {
	for i, l := range tierOrder {
		if l == label {
			return i
		}
	}
	return 0
}

// featureVector extracts the tiering subset, false when any member is
// undefined.
func featureVector(rec *domain.SchemeFeatureRecord) ([]float64, bool) {
	if rec.CAGR1YW == nil {
		return nil, false
	}
	return []float64{
		rec.YearlyReturnW,
		rec.MonthlyReturnW,
		rec.YearlySTDW,
		rec.MonthlySTDW,
		rec.MaxDrawdownW,
		rec.SharpeLog,
		*rec.CAGR1YW,
	}, true
}

func fitScaler(rows [][]float64) *Scaler {
	dim := len(rows[0])
	s := &Scaler{Means: make([]float64, dim), Stds: make([]float64, dim)}
	col := make([]float64, len(rows))
	for j := 0; j < dim; j++ {
		for i, row := range rows {
			col[i] = row[j]
		}
		s.Means[j], s.Stds[j] = stat.MeanStdDev(col, nil)
	}
	return s
}

// deriveLabelMap ranks clusters by a composite volatility statistic of
// their members in standardized feature space: mean yearly and monthly
// dispersion plus drawdown magnitude (drawdown is negative, so it
// enters subtracted). The calmest cluster becomes Low, the most
// volatile High. Derived from the data every build, never a static
// index table.
func deriveLabelMap(z [][]float64, labels []int) []string {
	const k = 3
	sums := make([]float64, k)
	counts := make([]int, k)
	for i, c := range labels {
		sums[c] += z[i][idxYearlySTD] + z[i][idxMonthlySTD] - z[i][idxMaxDrawdown]
		counts[c]++
	}

	type ranked struct {
		cluster   int
		composite float64
	}
	rankings := make([]ranked, k)
	for c := 0; c < k; c++ {
		composite := 0.0
		if counts[c] > 0 {
			composite = sums[c] / float64(counts[c])
		}
		rankings[c] = ranked{cluster: c, composite: composite}
	}
	sort.Slice(rankings, func(i, j int) bool { return rankings[i].composite < rankings[j].composite })

	labelMap := make([]string, k)
	for rank, r := range rankings {
		labelMap[r.cluster] = tierOrder[rank]
	}
	return labelMap
}
