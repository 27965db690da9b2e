package features

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pranavkh/fundsage/internal/domain"
)

func ptr(v float64) *float64 { return &v }

// spreadRecords builds n records whose columns all carry the value of
// their index, giving an easy quantile ladder.
func spreadRecords(n int) []domain.SchemeFeatureRecord {
	records := make([]domain.SchemeFeatureRecord, n)
	for i := range records {
		v := float64(i)
		records[i] = domain.SchemeFeatureRecord{
			SchemeID:        int64(i + 1),
			DailyReturn:     v,
			MonthlyReturn:   v,
			QuarterlyReturn: v,
			YearlyReturn:    v,
			MonthlySTD:      v,
			QuarterlySTD:    v,
			YearlySTD:       v,
			CAGR1Y:          ptr(v),
			CAGR2Y:          ptr(v),
			MaxDrawdown:     -v / 100,
			RollingVol21:    v,
			RollingVol62:    v,
			RollingVol252:   v,
		}
	}
	return records
}

func TestNormalizer_FitAndApplyClampsTails(t *testing.T) {
	records := spreadRecords(100)

	cp, err := NewNormalizer(0.03, 0.97).Fit(records)
	require.NoError(t, err)

	lo := cp.Lower["yearly_return"]
	hi := cp.Upper["yearly_return"]
	assert.Less(t, lo, hi)

	require.NoError(t, Apply(records, cp))
	for _, rec := range records {
		assert.GreaterOrEqual(t, rec.YearlyReturnW, lo)
		assert.LessOrEqual(t, rec.YearlyReturnW, hi)
	}
	// Interior values pass through unchanged.
	assert.Equal(t, 50.0, records[50].YearlyReturnW)
	// Tails are clamped, not dropped.
	assert.Equal(t, hi, records[99].YearlyReturnW)
	assert.Equal(t, lo, records[0].YearlyReturnW)
}

func TestNormalizer_FitSkipsUndefinedCAGRs(t *testing.T) {
	records := spreadRecords(50)
	for i := 0; i < 10; i++ {
		records[i].CAGR1Y = nil
	}

	cp, err := NewNormalizer(0.03, 0.97).Fit(records)
	require.NoError(t, err)

	// The lower cut comes from the defined values only, which start
	// at 10.
	assert.GreaterOrEqual(t, cp.Lower["cagr_1y"], 10.0)
}

func TestNormalizer_FitFailsOnEmptyColumn(t *testing.T) {
	records := spreadRecords(5)
	for i := range records {
		records[i].CAGR2Y = nil
	}

	_, err := NewNormalizer(0.03, 0.97).Fit(records)
	require.ErrorIs(t, err, domain.ErrDataQuality)
}

func TestApply_NilCAGRStaysNil(t *testing.T) {
	records := spreadRecords(20)
	records[3].CAGR1Y = nil

	cp, err := NewNormalizer(0.03, 0.97).Fit(records)
	require.NoError(t, err)
	require.NoError(t, Apply(records, cp))

	assert.Nil(t, records[3].CAGR1YW)
	assert.NotNil(t, records[4].CAGR1YW)
}

func TestApply_ReusesPersistedCutPoints(t *testing.T) {
	cp, err := NewNormalizer(0.03, 0.97).Fit(spreadRecords(100))
	require.NoError(t, err)

	// A later, wilder batch is normalized with the original cut
	// points: Apply never re-estimates.
	fresh := spreadRecords(3)
	fresh[2].YearlyReturn = 1e6
	require.NoError(t, Apply(fresh, cp))
	assert.Equal(t, cp.Upper["yearly_return"], fresh[2].YearlyReturnW)
}

func TestApply_MissingColumnIsStaleModel(t *testing.T) {
	cp, err := NewNormalizer(0.03, 0.97).Fit(spreadRecords(20))
	require.NoError(t, err)
	delete(cp.Lower, "max_drawdown")

	err = Apply(spreadRecords(5), cp)
	require.ErrorIs(t, err, domain.ErrModelStaleness)
}

func TestApply_LogTransformsRatios(t *testing.T) {
	records := spreadRecords(10)
	records[0].SharpeRatio = 1.5
	records[1].SharpeRatio = -0.5
	records[2].SortinoRatio = -3 // below the log1p domain

	cp, err := NewNormalizer(0.03, 0.97).Fit(records)
	require.NoError(t, err)
	require.NoError(t, Apply(records, cp))

	assert.InDelta(t, math.Log1p(1.5), records[0].SharpeLog, 1e-12)
	assert.InDelta(t, math.Log1p(-0.5), records[1].SharpeLog, 1e-12)
	// Values at or below -1 collapse to the domain edge instead of NaN.
	assert.False(t, math.IsNaN(records[2].SortinoLog))
	assert.InDelta(t, math.Log1p(-1+1e-9), records[2].SortinoLog, 1e-6)
}
