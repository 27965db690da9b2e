package features

import (
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pranavkh/fundsage/internal/domain"
)

func obsSeries(schemeID int64, name string, start time.Time, navs []float64) []domain.NavObservation {
	out := make([]domain.NavObservation, len(navs))
	for i, nav := range navs {
		out[i] = domain.NavObservation{
			SchemeID:   schemeID,
			SchemeName: name,
			FundHouse:  "Test AMC",
			Date:       start.AddDate(0, 0, i),
			NAV:        nav,
		}
	}
	return out
}

// growthSeries generates a two-year weekday-dense series with constant
// daily growth.
func growthSeries(schemeID int64, name string, growth float64) []domain.NavObservation {
	start := time.Date(2022, 1, 3, 0, 0, 0, 0, time.UTC)
	nav := 10.0
	var out []domain.NavObservation
	for d := 0; d < 730; d++ {
		date := start.AddDate(0, 0, d)
		if date.Weekday() == time.Saturday || date.Weekday() == time.Sunday {
			continue
		}
		out = append(out, domain.NavObservation{
			SchemeID:   schemeID,
			SchemeName: name,
			FundHouse:  "Test AMC",
			Date:       date,
			NAV:        nav,
		})
		nav *= 1 + growth
	}
	return out
}

func TestBuilder_ExcludesShortHistory(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	obs := append(
		obsSeries(100, "Alpha Fund", start, []float64{10, 10.1, 10.2}),
		obsSeries(200, "Single Point Fund", start, []float64{42})...,
	)

	b := NewBuilder(0.065, zerolog.Nop())
	records, excluded, err := b.Build(obs)
	require.NoError(t, err)

	require.Len(t, records, 1)
	assert.Equal(t, int64(100), records[0].SchemeID)
	require.Len(t, excluded, 1)
	assert.Equal(t, int64(200), excluded[0].SchemeID)
	assert.Contains(t, excluded[0].Reason, "fewer than 2")
}

func TestBuilder_EmptyHistoryFails(t *testing.T) {
	b := NewBuilder(0.065, zerolog.Nop())
	_, _, err := b.Build(nil)
	require.ErrorIs(t, err, domain.ErrDataQuality)
}

func TestBuilder_MonotonicGrowth(t *testing.T) {
	b := NewBuilder(0.065, zerolog.Nop())
	records, _, err := b.Build(growthSeries(100, "Steady Fund", 0.001))
	require.NoError(t, err)
	require.Len(t, records, 1)
	rec := records[0]

	// A strictly rising NAV never draws down and never has negative
	// period returns.
	assert.Equal(t, 0.0, rec.MaxDrawdown)
	assert.Greater(t, rec.MonthlyReturn, 0.0)
	assert.Greater(t, rec.YearlyReturn, 0.0)

	// No negative daily returns, downside deviation falls back to the
	// epsilon floor.
	assert.Equal(t, downsideEpsilon, rec.DownsideSTD)

	// Point-in-time growth is defined for a two-year series.
	require.NotNil(t, rec.CAGR1Y)
	require.NotNil(t, rec.CAGR2Y)
	assert.Greater(t, *rec.CAGR1Y, 0.0)
}

func TestBuilder_ConstantNAV(t *testing.T) {
	b := NewBuilder(0.065, zerolog.Nop())
	records, _, err := b.Build(growthSeries(100, "Flat Fund", 0))
	require.NoError(t, err)
	rec := records[0]

	assert.Equal(t, 0.0, rec.DailyReturn)
	assert.Equal(t, 0.0, rec.MonthlyReturn)
	assert.Equal(t, 0.0, rec.YearlySTD)
	assert.Equal(t, 0.0, rec.MaxDrawdown)
	require.NotNil(t, rec.CAGR1Y)
	assert.InDelta(t, 0.0, *rec.CAGR1Y, 1e-12)

	// Yearly dispersion is zero, so Sharpe is non-finite and clamps to 0
	assert.Equal(t, 0.0, rec.SharpeRatio)
}

func TestBuilder_MaxDrawdown(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	// Peak 20, trough 15: drawdown -0.25
	obs := obsSeries(100, "Drawdown Fund", start, []float64{10, 20, 15, 18})

	b := NewBuilder(0.065, zerolog.Nop())
	records, _, err := b.Build(obs)
	require.NoError(t, err)
	assert.InDelta(t, -0.25, records[0].MaxDrawdown, 1e-12)

	// Dip after the peak of 12: (11-12)/12
	obs = obsSeries(100, "Dip Fund", start, []float64{10, 11, 12, 11, 13})
	records, _, err = b.Build(obs)
	require.NoError(t, err)
	assert.InDelta(t, -1.0/12, records[0].MaxDrawdown, 1e-12)

	// Drawdown stays in [-1, 0] for any positive NAV path.
	obs = obsSeries(100, "Crash Fund", start, []float64{100, 1, 0.01, 50})
	records, _, err = b.Build(obs)
	require.NoError(t, err)
	assert.LessOrEqual(t, records[0].MaxDrawdown, 0.0)
	assert.GreaterOrEqual(t, records[0].MaxDrawdown, -1.0)
}

func TestDailyReturns(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := obsSeries(100, "Fund", start, []float64{10, 11, 9.9})

	daily := dailyReturns(s)
	require.Len(t, daily, 2)
	assert.InDelta(t, (11.0-10.0)/10.0, daily[0], 1e-12)
	assert.InDelta(t, (9.9-11.0)/11.0, daily[1], 1e-12)
}

func TestBuilder_CAGRUsesNominalHorizon(t *testing.T) {
	// The base observation may sit up to the tolerance away from the
	// exact offset date, but the growth is still annualized over the
	// nominal one- or two-year horizon, not the realized day span.
	at := func(date time.Time, nav float64) domain.NavObservation {
		return domain.NavObservation{
			SchemeID: 100, SchemeName: "Gapped Fund", FundHouse: "Test AMC",
			Date: date, NAV: nav,
		}
	}
	obs := []domain.NavObservation{
		at(time.Date(2022, 7, 20, 0, 0, 0, 0, time.UTC), 10),   // 22 days past the 2y offset
		at(time.Date(2023, 7, 28, 0, 0, 0, 0, time.UTC), 12),   // 30 days past the 1y offset
		at(time.Date(2024, 6, 28, 0, 0, 0, 0, time.UTC), 14.4), // as-of
	}

	b := NewBuilder(0.065, zerolog.Nop())
	records, _, err := b.Build(obs)
	require.NoError(t, err)
	require.Len(t, records, 1)

	require.NotNil(t, records[0].CAGR1Y)
	assert.InDelta(t, 14.4/12-1, *records[0].CAGR1Y, 1e-12)
	require.NotNil(t, records[0].CAGR2Y)
	assert.InDelta(t, math.Sqrt(14.4/10)-1, *records[0].CAGR2Y, 1e-12)
}

func TestBuilder_CAGRUndefinedForShortHistory(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	obs := obsSeries(100, "Young Fund", start, []float64{10, 10.1, 10.2, 10.3})

	b := NewBuilder(0.065, zerolog.Nop())
	records, _, err := b.Build(obs)
	require.NoError(t, err)

	// Four days of history: nothing near the one-year offset.
	assert.Nil(t, records[0].CAGR1Y)
	assert.Nil(t, records[0].CAGR2Y)
	// Sharpe degrades to zero rather than NaN when CAGR is undefined.
	assert.Equal(t, 0.0, records[0].SharpeRatio)
}

func TestBuilder_AsOfIsDatasetWide(t *testing.T) {
	// The young scheme's CAGR offset is anchored to the dataset-wide
	// max date, not its own last observation.
	long := growthSeries(100, "Old Fund", 0.001)
	youngStart := long[len(long)-1].Date.AddDate(0, 0, -10)
	young := obsSeries(200, "Young Fund", youngStart, []float64{10, 10.1, 10.2})

	b := NewBuilder(0.065, zerolog.Nop())
	records, _, err := b.Build(append(long, young...))
	require.NoError(t, err)
	require.Len(t, records, 2)

	var youngRec *domain.SchemeFeatureRecord
	for i := range records {
		if records[i].SchemeID == 200 {
			youngRec = &records[i]
		}
	}
	require.NotNil(t, youngRec)
	assert.Nil(t, youngRec.CAGR1Y)
}

func TestBuilder_RollingVolGlobalMedianFill(t *testing.T) {
	// One scheme long enough for all windows, one too short for any.
	long := growthSeries(100, "Old Fund", 0.002)
	start := time.Date(2023, 12, 20, 0, 0, 0, 0, time.UTC)
	short := obsSeries(200, "Short Fund", start, []float64{10, 10.1, 10.2})

	b := NewBuilder(0.065, zerolog.Nop())
	records, _, err := b.Build(append(long, short...))
	require.NoError(t, err)

	byID := make(map[int64]domain.SchemeFeatureRecord)
	for _, rec := range records {
		byID[rec.SchemeID] = rec
	}

	// The short scheme has only 2 daily returns, below every minimum,
	// so its rolling vols are filled with the global column median:
	// the long scheme's values.
	assert.False(t, math.IsNaN(byID[200].RollingVol252))
	assert.Equal(t, byID[100].RollingVol252, byID[200].RollingVol252)
	assert.Equal(t, byID[100].RollingVol21, byID[200].RollingVol21)
}

func TestBucketReturns(t *testing.T) {
	start := time.Date(2024, 1, 30, 0, 0, 0, 0, time.UTC)
	// Spans Jan (30th, 31st) and Feb (1st..3rd)
	obs := obsSeries(100, "Bucket Fund", start, []float64{10, 11, 11, 12, 12.1})

	monthly := bucketReturns(obs, monthKey)
	require.Len(t, monthly, 2)
	assert.InDelta(t, 0.1, monthly[0], 1e-12) // Jan: 10 -> 11
	assert.InDelta(t, 0.1, monthly[1], 1e-12) // Feb: 11 -> 12.1
}
