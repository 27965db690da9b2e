package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAssetClass(t *testing.T) {
	tests := []struct {
		name   string
		scheme string
		want   string
	}{
		{name: "liquid", scheme: "Alpha Liquid Fund - Direct Plan", want: AssetLiquid},
		{name: "overnight", scheme: "Beta Overnight Fund", want: AssetLiquid},
		{name: "debt", scheme: "Gamma Corporate Bond Fund", want: AssetDebt},
		{name: "gilt", scheme: "Delta Gilt Fund", want: AssetDebt},
		{name: "hybrid", scheme: "Epsilon Balanced Advantage Fund", want: AssetHybrid},
		{name: "arbitrage", scheme: "Zeta Arbitrage Fund", want: AssetHybrid},
		{name: "index", scheme: "Eta Nifty 50 Index Fund", want: AssetIndexETF},
		{name: "gold", scheme: "Theta Gold Savings Fund", want: AssetGold},
		{name: "elss", scheme: "Iota ELSS Tax Saver Fund", want: AssetSpecialized},
		{name: "equity", scheme: "Kappa Flexi Cap Fund", want: AssetEquity},
		{name: "unclassified", scheme: "Lambda Opportunities Scheme", want: AssetOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AssetClass(tt.scheme))
		})
	}
}

func TestAssetClass_RuleOrder(t *testing.T) {
	// A liquid fund that mentions an index must still be Liquid, and a
	// Nifty tracker must not fall through to Equity.
	assert.Equal(t, AssetLiquid, AssetClass("Alpha Liquid Index Fund"))
	assert.Equal(t, AssetIndexETF, AssetClass("Beta Nifty Large Midcap Fund"))
	// Exchange-traded gold trackers classify by vehicle, not holding.
	assert.Equal(t, AssetIndexETF, AssetClass("Theta Gold ETF"))
}

func TestMarketCap(t *testing.T) {
	tests := []struct {
		name   string
		scheme string
		want   string
	}{
		{name: "large", scheme: "Alpha Large Cap Fund", want: CapLarge},
		{name: "bluechip", scheme: "Beta Bluechip Fund", want: CapLarge},
		{name: "mid", scheme: "Gamma Mid Cap Opportunities", want: CapMid},
		{name: "small", scheme: "Delta Small Cap Fund", want: CapSmall},
		{name: "multi", scheme: "Epsilon Multi Cap Fund", want: CapMulti},
		{name: "flexi", scheme: "Zeta Flexi Cap Fund", want: CapMulti},
		{name: "large and mid", scheme: "Eta Large & Mid Cap Fund", want: CapMulti},
		{name: "none", scheme: "Theta Liquid Fund", want: CapOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MarketCap(tt.scheme))
		})
	}
}
