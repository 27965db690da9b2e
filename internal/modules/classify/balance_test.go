package classify

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pranavkh/fundsage/internal/domain"
)

func balancedFixture() []domain.SchemeFeatureRecord {
	var records []domain.SchemeFeatureRecord
	for i := 0; i < 40; i++ {
		records = append(records, domain.SchemeFeatureRecord{
			SchemeID:   int64(i + 1),
			SchemeName: fmt.Sprintf("Equity Fund %d", i+1),
			AssetClass: AssetEquity,
			MarketCap:  CapLarge,
		})
	}
	for i := 0; i < 10; i++ {
		records = append(records, domain.SchemeFeatureRecord{
			SchemeID:   int64(100 + i),
			SchemeName: fmt.Sprintf("Debt Fund %d", i+1),
			AssetClass: AssetDebt,
			MarketCap:  CapOther,
		})
	}
	for i := 0; i < 8; i++ {
		records = append(records, domain.SchemeFeatureRecord{
			SchemeID:   int64(200 + i),
			SchemeName: fmt.Sprintf("Hybrid Fund %d", i+1),
			AssetClass: AssetHybrid,
			MarketCap:  CapMulti,
		})
	}
	for i := 0; i < 3; i++ {
		records = append(records, domain.SchemeFeatureRecord{
			SchemeID:   int64(300 + i),
			SchemeName: fmt.Sprintf("Gold Fund %d", i+1),
			AssetClass: AssetGold,
			MarketCap:  CapSmall,
		})
	}
	return records
}

func TestBalancer_TagsMatchRawLabels(t *testing.T) {
	records := balancedFixture()
	NewBalancer(0.85, 1.1, 1.5, 42).Apply(records)

	tagged := 0
	for _, rec := range records {
		if rec.BalancedAssetClass != "" {
			assert.Equal(t, rec.AssetClass, rec.BalancedAssetClass)
			tagged++
		}
		if rec.BalancedMarketCap != "" {
			assert.Equal(t, rec.MarketCap, rec.BalancedMarketCap)
		}
	}
	// Sampling with replacement at these factors always tags a
	// substantial share of each group.
	assert.Greater(t, tagged, len(records)/2)
}

func TestBalancer_Deterministic(t *testing.T) {
	first := balancedFixture()
	second := balancedFixture()

	NewBalancer(0.85, 1.1, 1.5, 42).Apply(first)
	NewBalancer(0.85, 1.1, 1.5, 42).Apply(second)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].BalancedAssetClass, second[i].BalancedAssetClass, "scheme %d", first[i].SchemeID)
		assert.Equal(t, first[i].BalancedMarketCap, second[i].BalancedMarketCap, "scheme %d", first[i].SchemeID)
	}
}

func TestBalancer_DownsamplesDominantGroup(t *testing.T) {
	records := balancedFixture()
	NewBalancer(0.85, 1.1, 1.5, 42).Apply(records)

	// The dominant equity group is sampled below its size, so with
	// replacement some of its members must be left untagged.
	untaggedEquity := 0
	for _, rec := range records {
		if rec.AssetClass == AssetEquity && rec.BalancedAssetClass == "" {
			untaggedEquity++
		}
	}
	assert.Greater(t, untaggedEquity, 0)
}
