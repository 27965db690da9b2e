// Package classify derives categorical attributes from scheme names
// and produces the balanced label tags used for tiering and peer
// matching.
package classify

import "regexp"

// rule maps a compiled name pattern to a label. Rules are evaluated in
// order, first match wins.
type rule struct {
	pattern *regexp.Regexp
	label   string
}

// Asset class and market cap labels.
const (
	AssetLiquid      = "Liquid"
	AssetDebt        = "Debt"
	AssetHybrid      = "Hybrid"
	AssetIndexETF    = "Index-ETF"
	AssetGold        = "Gold"
	AssetSpecialized = "Specialized"
	AssetEquity      = "Equity"
	AssetOther       = "Other"

	CapLarge = "Large Cap"
	CapMid   = "Mid Cap"
	CapSmall = "Small Cap"
	CapMulti = "Multi Cap"
	CapOther = "Other"
)

// Rule order matters: liquid/overnight funds mention "fund" too, and
// index trackers of equity indices must not fall through to Equity.
var assetClassRules = []rule{
	{regexp.MustCompile(`(?i)\b(liquid|overnight|money market)\b`), AssetLiquid},
	{regexp.MustCompile(`(?i)\b(gilt|debt|bond|income|credit risk|corporate bond|banking & psu|duration|treasury|fmp|fixed maturity)\b`), AssetDebt},
	{regexp.MustCompile(`(?i)\b(hybrid|balanced|advantage|multi asset|equity savings|arbitrage)\b`), AssetHybrid},
	{regexp.MustCompile(`(?i)\b(index|etf|nifty|sensex|exchange traded)\b`), AssetIndexETF},
	{regexp.MustCompile(`(?i)\b(gold|silver|commodit)`), AssetGold},
	{regexp.MustCompile(`(?i)\b(elss|tax saver|retirement|children|solution|pension)\b`), AssetSpecialized},
	{regexp.MustCompile(`(?i)\b(equity|flexi cap|focused|value|contra|dividend yield|sectoral|thematic|large|mid|small|multi)\b`), AssetEquity},
}

var marketCapRules = []rule{
	{regexp.MustCompile(`(?i)\blarge\s*(&|and)\s*mid\b`), CapMulti},
	{regexp.MustCompile(`(?i)\b(multi|flexi)\s*cap\b`), CapMulti},
	{regexp.MustCompile(`(?i)\blarge\s*cap\b`), CapLarge},
	{regexp.MustCompile(`(?i)\bmid\s*cap\b`), CapMid},
	{regexp.MustCompile(`(?i)\bsmall\s*cap\b`), CapSmall},
	{regexp.MustCompile(`(?i)\b(bluechip|blue chip|top 100|top 200)\b`), CapLarge},
}

// AssetClass classifies a scheme name into an asset class label.
func AssetClass(schemeName string) string {
	for _, r := range assetClassRules {
		if r.pattern.MatchString(schemeName) {
			return r.label
		}
	}
	return AssetOther
}

// MarketCap classifies a scheme name into a market cap label.
func MarketCap(schemeName string) string {
	for _, r := range marketCapRules {
		if r.pattern.MatchString(schemeName) {
			return r.label
		}
	}
	return CapOther
}
