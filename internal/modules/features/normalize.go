package features

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/pranavkh/fundsage/internal/domain"
)

// CutPoints holds the winsorization bounds per column, fixed at build
// time and persisted with the model artifacts. Inference reuses them
// verbatim, it never re-estimates.
type CutPoints struct {
	Lower map[string]float64 `msgpack:"lower"`
	Upper map[string]float64 `msgpack:"upper"`
}

// Normalizer winsorizes heavy-tailed columns at symmetric quantiles
// and log-transforms the ratio columns.
type Normalizer struct {
	lowerQ float64
	upperQ float64
}

// NewNormalizer creates a normalizer with the given quantile bounds.
func NewNormalizer(lowerQ, upperQ float64) *Normalizer {
	return &Normalizer{lowerQ: lowerQ, upperQ: upperQ}
}

// winsorColumn accesses one winsorized column: the raw value (nil when
// undefined) and the destination for the clamped value.
type winsorColumn struct {
	name string
	raw  func(*domain.SchemeFeatureRecord) *float64
	setW func(*domain.SchemeFeatureRecord, *float64)
}

var winsorColumns = []winsorColumn{
	{"daily_return",
		func(r *domain.SchemeFeatureRecord) *float64 { return &r.DailyReturn },
		func(r *domain.SchemeFeatureRecord, v *float64) { r.DailyReturnW = *v }},
	{"monthly_return",
		func(r *domain.SchemeFeatureRecord) *float64 { return &r.MonthlyReturn },
		func(r *domain.SchemeFeatureRecord, v *float64) { r.MonthlyReturnW = *v }},
	{"quarterly_return",
		func(r *domain.SchemeFeatureRecord) *float64 { return &r.QuarterlyReturn },
		func(r *domain.SchemeFeatureRecord, v *float64) { r.QuarterlyReturnW = *v }},
	{"yearly_return",
		func(r *domain.SchemeFeatureRecord) *float64 { return &r.YearlyReturn },
		func(r *domain.SchemeFeatureRecord, v *float64) { r.YearlyReturnW = *v }},
	{"monthly_std",
		func(r *domain.SchemeFeatureRecord) *float64 { return &r.MonthlySTD },
		func(r *domain.SchemeFeatureRecord, v *float64) { r.MonthlySTDW = *v }},
	{"quarterly_std",
		func(r *domain.SchemeFeatureRecord) *float64 { return &r.QuarterlySTD },
		func(r *domain.SchemeFeatureRecord, v *float64) { r.QuarterlySTDW = *v }},
	{"yearly_std",
		func(r *domain.SchemeFeatureRecord) *float64 { return &r.YearlySTD },
		func(r *domain.SchemeFeatureRecord, v *float64) { r.YearlySTDW = *v }},
	{"cagr_1y",
		func(r *domain.SchemeFeatureRecord) *float64 { return r.CAGR1Y },
		func(r *domain.SchemeFeatureRecord, v *float64) { r.CAGR1YW = v }},
	{"cagr_2y",
		func(r *domain.SchemeFeatureRecord) *float64 { return r.CAGR2Y },
		func(r *domain.SchemeFeatureRecord, v *float64) { r.CAGR2YW = v }},
	{"max_drawdown",
		func(r *domain.SchemeFeatureRecord) *float64 { return &r.MaxDrawdown },
		func(r *domain.SchemeFeatureRecord, v *float64) { r.MaxDrawdownW = *v }},
	{"rolling_vol_21",
		func(r *domain.SchemeFeatureRecord) *float64 { return &r.RollingVol21 },
		func(r *domain.SchemeFeatureRecord, v *float64) { r.RollingVol21W = *v }},
	{"rolling_vol_62",
		func(r *domain.SchemeFeatureRecord) *float64 { return &r.RollingVol62 },
		func(r *domain.SchemeFeatureRecord, v *float64) { r.RollingVol62W = *v }},
	{"rolling_vol_252",
		func(r *domain.SchemeFeatureRecord) *float64 { return &r.RollingVol252 },
		func(r *domain.SchemeFeatureRecord, v *float64) { r.RollingVol252W = *v }},
}

// Fit computes cut points from the current records. Undefined values
// (nil CAGRs) do not contribute to the quantiles.
func (n *Normalizer) Fit(records []domain.SchemeFeatureRecord) (*CutPoints, error) {
	cp := &CutPoints{
		Lower: make(map[string]float64, len(winsorColumns)),
		Upper: make(map[string]float64, len(winsorColumns)),
	}

	for _, col := range winsorColumns {
		var vals []float64
		for i := range records {
			if v := col.raw(&records[i]); v != nil && isFinite(*v) {
				vals = append(vals, *v)
			}
		}
		if len(vals) == 0 {
			return nil, fmt.Errorf("%w: column %s has no defined values", domain.ErrDataQuality, col.name)
		}
		sort.Float64s(vals)
		cp.Lower[col.name] = stat.Quantile(n.lowerQ, stat.Empirical, vals, nil)
		cp.Upper[col.name] = stat.Quantile(n.upperQ, stat.Empirical, vals, nil)
	}

	return cp, nil
}

// Apply fills the winsorized and log columns from persisted cut
// points. Stateless: the same cut points give the same output at build
// and at inference.
func Apply(records []domain.SchemeFeatureRecord, cp *CutPoints) error {
	for _, col := range winsorColumns {
		lo, okLo := cp.Lower[col.name]
		hi, okHi := cp.Upper[col.name]
		if !okLo || !okHi {
			return fmt.Errorf("%w: cut points missing column %s", domain.ErrModelStaleness, col.name)
		}
		for i := range records {
			raw := col.raw(&records[i])
			if raw == nil {
				col.setW(&records[i], nil)
				continue
			}
			v := clamp(*raw, lo, hi)
			col.setW(&records[i], &v)
		}
	}

	for i := range records {
		records[i].SharpeLog = log1pSafe(records[i].SharpeRatio)
		records[i].SortinoLog = log1pSafe(records[i].SortinoRatio)
	}
	return nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// log1pSafe applies log1p after clamping to the transform's domain.
// Ratios at or below -1 collapse to the domain edge.
func log1pSafe(v float64) float64 {
	const edge = -1 + 1e-9
	if v < edge {
		v = edge
	}
	return math.Log1p(v)
}
