// Package features computes per-scheme time-series features from NAV
// history and normalizes their heavy-tailed distributions.
package features

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/pranavkh/fundsage/internal/domain"
)

// Rolling volatility window sizes (trading days) and the minimum
// number of valid observations each window needs.
var rollingWindows = []struct {
	size     int
	minValid int
}{
	{21, 5},
	{62, 15},
	{252, 50},
}

// cagrTolerance bounds how far the nearest observation may sit from
// the target offset date before the CAGR is considered undefined.
const cagrTolerance = 45 * 24 * time.Hour

// downsideEpsilon replaces a zero downside deviation so Sortino stays
// defined for schemes with no negative daily returns.
const downsideEpsilon = 1e-6

// Exclusion records a scheme dropped during feature building.
type Exclusion struct {
	SchemeID   int64  `json:"scheme_id"`
	SchemeName string `json:"scheme_name"`
	Reason     string `json:"reason"`
}

// Builder computes the raw feature columns of the feature table.
type Builder struct {
	riskFreeRate float64
	log          zerolog.Logger
}

// NewBuilder creates a feature builder.
func NewBuilder(riskFreeRate float64, log zerolog.Logger) *Builder {
	return &Builder{
		riskFreeRate: riskFreeRate,
		log:          log.With().Str("component", "feature_builder").Logger(),
	}
}

// Build computes one feature record per scheme from the cleaned
// history. Observations must be sorted by (scheme, date). Schemes with
// fewer than two observations are excluded and reported, never
// zero-filled. The as-of date for point-in-time metrics is the maximum
// observation date across the whole dataset.
func (b *Builder) Build(obs []domain.NavObservation) ([]domain.SchemeFeatureRecord, []Exclusion, error) {
	if len(obs) == 0 {
		return nil, nil, fmt.Errorf("%w: empty NAV history", domain.ErrDataQuality)
	}

	series := groupByScheme(obs)
	asOf := maxDate(obs)

	records := make([]domain.SchemeFeatureRecord, 0, len(series))
	var excluded []Exclusion
	for _, s := range series {
		if len(s) < 2 {
			excluded = append(excluded, Exclusion{
				SchemeID:   s[0].SchemeID,
				SchemeName: s[0].SchemeName,
				Reason:     "fewer than 2 observations",
			})
			continue
		}
		records = append(records, b.buildScheme(s, asOf))
	}

	fillRollingVolGaps(records)

	b.log.Info().
		Int("schemes", len(records)).
		Int("excluded", len(excluded)).
		Time("as_of", asOf).
		Msg("feature table built")
	return records, excluded, nil
}

// buildScheme computes all raw features for one scheme's sorted series.
func (b *Builder) buildScheme(s []domain.NavObservation, asOf time.Time) domain.SchemeFeatureRecord {
	last := s[len(s)-1]
	rec := domain.SchemeFeatureRecord{
		SchemeID:   last.SchemeID,
		SchemeName: last.SchemeName,
		FundHouse:  last.FundHouse,
		Date:       last.Date,
		NAV:        last.NAV,
	}

	daily := dailyReturns(s)
	rec.DailyReturn = meanOrZero(daily)

	monthly := bucketReturns(s, monthKey)
	quarterly := bucketReturns(s, quarterKey)
	yearly := bucketReturns(s, yearKey)
	rec.MonthlyReturn = meanOrZero(monthly)
	rec.QuarterlyReturn = meanOrZero(quarterly)
	rec.YearlyReturn = meanOrZero(yearly)
	rec.MonthlySTD = stdOrZero(monthly)
	rec.QuarterlySTD = stdOrZero(quarterly)
	rec.YearlySTD = stdOrZero(yearly)

	rec.CAGR1Y = cagr(s, asOf, 1)
	rec.CAGR2Y = cagr(s, asOf, 2)

	rec.SharpeRatio = b.sharpe(rec.CAGR1Y, rec.YearlySTD)
	rec.DownsideSTD = downsideDeviation(daily)
	rec.SortinoRatio = b.sortino(rec.CAGR1Y, rec.DownsideSTD)

	rec.MaxDrawdown = maxDrawdown(s)

	vols := rollingVols(daily)
	rec.RollingVol21 = vols[0]
	rec.RollingVol62 = vols[1]
	rec.RollingVol252 = vols[2]

	return rec
}

// groupByScheme splits sorted observations into per-scheme slices,
// preserving scheme order.
func groupByScheme(obs []domain.NavObservation) [][]domain.NavObservation {
	var out [][]domain.NavObservation
	start := 0
	for i := 1; i <= len(obs); i++ {
		if i == len(obs) || obs[i].SchemeID != obs[start].SchemeID {
			out = append(out, obs[start:i])
			start = i
		}
	}
	return out
}

func maxDate(obs []domain.NavObservation) time.Time {
	var max time.Time
	for _, o := range obs {
		if o.Date.After(max) {
			max = o.Date
		}
	}
	return max
}

// dailyReturns computes the percentage change between consecutive
// observations.
func dailyReturns(s []domain.NavObservation) []float64 {
	out := make([]float64, 0, len(s)-1)
	for i := 1; i < len(s); i++ {
		out = append(out, s[i].NAV/s[i-1].NAV-1)
	}
	return out
}

func monthKey(t time.Time) int   { return t.Year()*100 + int(t.Month()) }
func quarterKey(t time.Time) int { return t.Year()*10 + (int(t.Month())-1)/3 }
func yearKey(t time.Time) int    { return t.Year() }

// bucketReturns computes (last-first)/first per calendar bucket, in
// chronological bucket order. Buckets with a single observation yield
// a zero return.
func bucketReturns(s []domain.NavObservation, key func(time.Time) int) []float64 {
	type bucket struct{ first, last float64 }
	buckets := make(map[int]*bucket)
	var order []int
	for _, o := range s {
		k := key(o.Date)
		if b, ok := buckets[k]; ok {
			b.last = o.NAV
		} else {
			buckets[k] = &bucket{first: o.NAV, last: o.NAV}
			order = append(order, k)
		}
	}
	sort.Ints(order)

	out := make([]float64, 0, len(order))
	for _, k := range order {
		b := buckets[k]
		out = append(out, b.last/b.first-1)
	}
	return out
}

// cagr computes the annualized growth rate between the observation
// nearest to (asOf - years) and the scheme's latest observation,
// annualized over the nominal horizon. Nil when no observation lies
// within tolerance of the offset date.
func cagr(s []domain.NavObservation, asOf time.Time, years int) *float64 {
	target := asOf.AddDate(-years, 0, 0)

	nearest := -1
	var best time.Duration
	for i, o := range s {
		d := o.Date.Sub(target)
		if d < 0 {
			d = -d
		}
		if nearest < 0 || d < best {
			nearest = i
			best = d
		}
	}
	if nearest < 0 || best > cagrTolerance {
		return nil
	}

	base := s[nearest]
	last := s[len(s)-1]
	if base.NAV <= 0 || !last.Date.After(base.Date) {
		return nil
	}

	v := math.Pow(last.NAV/base.NAV, 1/float64(years)) - 1
	if !isFinite(v) {
		return nil
	}
	return &v
}

// sharpe computes (CAGR1Y - riskFree) / yearlySTD, zero when undefined
// or non-finite.
func (b *Builder) sharpe(cagr1y *float64, yearlySTD float64) float64 {
	if cagr1y == nil {
		return 0
	}
	v := (*cagr1y - b.riskFreeRate) / yearlySTD
	if !isFinite(v) {
		return 0
	}
	return v
}

func (b *Builder) sortino(cagr1y *float64, downside float64) float64 {
	if cagr1y == nil {
		return 0
	}
	v := (*cagr1y - b.riskFreeRate) / downside
	if !isFinite(v) {
		return 0
	}
	return v
}

// downsideDeviation is the root mean square of negative daily returns.
// A scheme with no negative returns gets a small epsilon so downstream
// ratios stay defined.
func downsideDeviation(daily []float64) float64 {
	var sum float64
	n := 0
	for _, r := range daily {
		if r < 0 {
			sum += r * r
			n++
		}
	}
	if n == 0 {
		return downsideEpsilon
	}
	return math.Sqrt(sum / float64(n))
}

// maxDrawdown is the largest peak-to-trough decline of the NAV series,
// relative to the running maximum. Always in [-1, 0].
func maxDrawdown(s []domain.NavObservation) float64 {
	peak := s[0].NAV
	worst := 0.0
	for _, o := range s {
		if o.NAV > peak {
			peak = o.NAV
		}
		dd := o.NAV/peak - 1
		if dd < worst {
			worst = dd
		}
	}
	return worst
}

// rollingVols returns the latest valid trailing standard deviation of
// daily returns for each window, NaN when the window never had enough
// valid observations. NaNs are filled dataset-wide afterwards.
func rollingVols(daily []float64) [3]float64 {
	var out [3]float64
	for w, win := range rollingWindows {
		out[w] = math.NaN()
		// Walk backwards: the latest window with enough observations
		// is the forward-filled value.
		for end := len(daily); end >= win.minValid; end-- {
			start := end - win.size
			if start < 0 {
				start = 0
			}
			window := daily[start:end]
			if len(window) < win.minValid {
				break
			}
			out[w] = stat.StdDev(window, nil)
			break
		}
	}
	return out
}

// fillRollingVolGaps replaces NaN rolling volatilities with the global
// column median, the last fallback of the gap-filling chain. Schemes
// with any valid trailing window already hold their forward-filled
// value.
func fillRollingVolGaps(records []domain.SchemeFeatureRecord) {
	cols := []func(*domain.SchemeFeatureRecord) *float64{
		func(r *domain.SchemeFeatureRecord) *float64 { return &r.RollingVol21 },
		func(r *domain.SchemeFeatureRecord) *float64 { return &r.RollingVol62 },
		func(r *domain.SchemeFeatureRecord) *float64 { return &r.RollingVol252 },
	}

	for _, col := range cols {
		var valid []float64
		for i := range records {
			if v := *col(&records[i]); !math.IsNaN(v) {
				valid = append(valid, v)
			}
		}

		fill := 0.0
		if len(valid) > 0 {
			sort.Float64s(valid)
			fill = stat.Quantile(0.5, stat.Empirical, valid, nil)
		}

		for i := range records {
			if math.IsNaN(*col(&records[i])) {
				*col(&records[i]) = fill
			}
		}
	}
}

func meanOrZero(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return stat.Mean(xs, nil)
}

// stdOrZero is the sample standard deviation, zero for fewer than two
// values.
func stdOrZero(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	return stat.StdDev(xs, nil)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
