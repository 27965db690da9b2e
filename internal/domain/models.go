// Package domain holds the core data model for the fund recommendation
// pipeline. The domain layer is pure: no database, HTTP, or logging
// dependencies.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// RiskLevel is the ordinal risk tier assigned to a scheme by the risk
// tiering step. Tiers are produced once per build cycle and are
// read-only for the serving layer.
type RiskLevel string

const (
	RiskLow    RiskLevel = "Low"
	RiskMedium RiskLevel = "Medium"
	RiskHigh   RiskLevel = "High"
)

// ParseRiskLevel parses a user-supplied risk level, case-insensitively.
func ParseRiskLevel(s string) (RiskLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return RiskLow, nil
	case "medium":
		return RiskMedium, nil
	case "high":
		return RiskHigh, nil
	}
	return "", fmt.Errorf("%w: unrecognized risk level %q", ErrInvalidRequest, s)
}

// NavObservation is a single cleaned (scheme, date, nav) data point.
// Invariants: NAV > 0, at most one observation per scheme per date.
type NavObservation struct {
	SchemeID   int64
	Date       time.Time
	NAV        float64
	FundHouse  string
	SchemeName string
}

// SchemeFeatureRecord is one row of the engineered feature table: the
// per-scheme aggregate of all time-series features as of the latest
// build cycle. Nullable metrics (insufficient history near the target
// offset) are pointers; every non-nil value is finite after
// normalization.
type SchemeFeatureRecord struct {
	SchemeID   int64
	SchemeName string
	FundHouse  string

	// Latest observation. The live-quote merge may override NAV/Date.
	Date time.Time
	NAV  float64

	// Period returns, raw.
	DailyReturn     float64
	MonthlyReturn   float64
	QuarterlyReturn float64
	YearlyReturn    float64

	// Dispersion of period returns across historical buckets.
	MonthlySTD   float64
	QuarterlySTD float64
	YearlySTD    float64

	// Point-in-time growth against the dataset-wide as-of date.
	CAGR1Y *float64
	CAGR2Y *float64

	// Risk-adjusted ratios.
	SharpeRatio  float64
	DownsideSTD  float64
	SortinoRatio float64

	// Peak-to-trough decline, always in [-1, 0].
	MaxDrawdown float64

	// Trailing volatility of daily returns at fixed window sizes.
	RollingVol21  float64
	RollingVol62  float64
	RollingVol252 float64

	// Winsorized / log-normalized variants, populated by the outlier
	// normalizer at build time.
	DailyReturnW     float64
	MonthlyReturnW   float64
	QuarterlyReturnW float64
	YearlyReturnW    float64
	MonthlySTDW      float64
	QuarterlySTDW    float64
	YearlySTDW       float64
	CAGR1YW          *float64
	CAGR2YW          *float64
	MaxDrawdownW     float64
	RollingVol21W    float64
	RollingVol62W    float64
	RollingVol252W   float64
	SharpeLog        float64
	SortinoLog       float64

	// Categorical attributes derived from the scheme name, plus the
	// balanced resampled tags used for tiering and peer matching. A
	// balanced tag may be empty for schemes outside the resampled
	// subset; empty tags never match a filter.
	AssetClass         string
	MarketCap          string
	BalancedAssetClass string
	BalancedMarketCap  string

	RiskLevel RiskLevel
}

// FeatureTable is an immutable snapshot of the built feature table:
// one record per scheme plus an index by scheme id. The serving layer
// swaps snapshots wholesale after each build cycle, so concurrent
// readers never observe a partially-built table.
type FeatureTable struct {
	BuildID string
	AsOf    time.Time // maximum observation date across all schemes
	Records []SchemeFeatureRecord

	index map[int64]int
}

// NewFeatureTable builds a snapshot from records, indexing by scheme id.
func NewFeatureTable(buildID string, asOf time.Time, records []SchemeFeatureRecord) *FeatureTable {
	idx := make(map[int64]int, len(records))
	for i, r := range records {
		idx[r.SchemeID] = i
	}
	return &FeatureTable{
		BuildID: buildID,
		AsOf:    asOf,
		Records: records,
		index:   idx,
	}
}

// Lookup returns the record for a scheme id, if present.
func (t *FeatureTable) Lookup(schemeID int64) (*SchemeFeatureRecord, bool) {
	if t == nil {
		return nil, false
	}
	i, ok := t.index[schemeID]
	if !ok {
		return nil, false
	}
	return &t.Records[i], true
}

// Len returns the number of schemes in the snapshot.
func (t *FeatureTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Records)
}

// NewInvestorRequest is a recommendation request from an investor with
// no current holdings.
type NewInvestorRequest struct {
	Budget     float64 `json:"budget"`
	RiskLevel  string  `json:"risk_level"`
	AssetClass string  `json:"asset_class,omitempty"`
	MarketCap  string  `json:"market_cap,omitempty"`
	TopN       int     `json:"top_n,omitempty"`
}

// FundSummary is one ranked entry of a new-investor recommendation.
type FundSummary struct {
	SchemeID         int64   `json:"scheme_id"`
	SchemeName       string  `json:"scheme_name"`
	FundHouse        string  `json:"fund_house"`
	NAV              float64 `json:"nav"`
	UnitsPurchasable int64   `json:"units_purchasable"`
	RiskLevel        string  `json:"risk_level"`
	Score            float64 `json:"score"`
}

// NewInvestorResult is the outcome of a new-investor request. NoMatch
// is an explicit valid outcome, distinct from a rejected request.
type NewInvestorResult struct {
	Funds   []FundSummary `json:"funds"`
	NoMatch bool          `json:"no_match"`
	Message string        `json:"message,omitempty"`
}

// ExistingInvestorRequest asks whether a current holding should be
// kept or switched into a better peer.
type ExistingInvestorRequest struct {
	SchemeID      int64   `json:"scheme_id"`
	NavAtPurchase float64 `json:"nav_at_purchase"`
	UnitsHeld     float64 `json:"units_held"`
	PurchaseDate  string  `json:"purchase_date"` // YYYY-MM-DD
}

// Verdict is the hold/switch decision for an existing holding.
type Verdict string

const (
	VerdictHold   Verdict = "Hold"
	VerdictSwitch Verdict = "Switch"
)

// RecommendedFund identifies the peer to switch into.
type RecommendedFund struct {
	SchemeID   int64   `json:"scheme_id"`
	SchemeName string  `json:"scheme_name"`
	NAV        float64 `json:"nav"`
	CAGR1Y     float64 `json:"cagr_1y"`
	Sharpe     float64 `json:"sharpe"`
}

// ExistingInvestorResult is the outcome of an existing-investor request.
type ExistingInvestorResult struct {
	SchemeID     int64            `json:"scheme_id"`
	SchemeName   string           `json:"scheme_name"`
	LatestNAV    float64          `json:"latest_nav"`
	CurrentValue float64          `json:"current_value"` // units held x latest NAV
	HoldingYears float64          `json:"holding_years"`
	RealizedCAGR float64          `json:"realized_cagr"`
	Verdict      Verdict          `json:"verdict"`
	Reason       string           `json:"reason"`
	Recommended  *RecommendedFund `json:"recommended,omitempty"`
}
