// Package recommend implements the new-investor and existing-investor
// recommendation flows over the served feature table snapshot.
package recommend

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/pranavkh/fundsage/internal/domain"
	"github.com/pranavkh/fundsage/internal/modules/scoring"
)

// SnapshotSource yields the feature table snapshot currently served.
type SnapshotSource interface {
	Current() *domain.FeatureTable
}

// Engine answers recommendation requests. Read-only over the
// snapshot; safe for concurrent use.
type Engine struct {
	snapshots            SnapshotSource
	scorer               *scoring.Scorer
	improvementThreshold float64
	defaultTopN          int
	log                  zerolog.Logger
}

// NewEngine creates a recommendation engine.
func NewEngine(snapshots SnapshotSource, scorer *scoring.Scorer, improvementThreshold float64, defaultTopN int, log zerolog.Logger) *Engine {
	return &Engine{
		snapshots:            snapshots,
		scorer:               scorer,
		improvementThreshold: improvementThreshold,
		defaultTopN:          defaultTopN,
		log:                  log.With().Str("component", "recommend").Logger(),
	}
}

// NewInvestor recommends funds for an investor with no holdings:
// mandatory risk filter, soft asset class and market cap filters,
// budget affordability, and a risk+budget fallback before declaring an
// explicit no-match.
func (e *Engine) NewInvestor(req domain.NewInvestorRequest) (*domain.NewInvestorResult, error) {
	table := e.snapshots.Current()
	if table == nil {
		return nil, fmt.Errorf("no feature table built yet")
	}

	risk, err := domain.ParseRiskLevel(req.RiskLevel)
	if err != nil {
		return nil, err
	}
	if req.Budget <= 0 || math.IsNaN(req.Budget) || math.IsInf(req.Budget, 0) {
		return nil, fmt.Errorf("%w: budget must be positive", domain.ErrInvalidRequest)
	}

	all := make([]*domain.SchemeFeatureRecord, len(table.Records))
	for i := range table.Records {
		all[i] = &table.Records[i]
	}

	byRisk := filter(all, func(r *domain.SchemeFeatureRecord) bool {
		return r.RiskLevel == risk
	})

	// Soft filters narrow only when they leave something
	candidates := softFilter(byRisk, req.AssetClass, func(r *domain.SchemeFeatureRecord) string {
		return r.BalancedAssetClass
	})
	candidates = softFilter(candidates, req.MarketCap, func(r *domain.SchemeFeatureRecord) string {
		return r.BalancedMarketCap
	})

	affordable := filter(candidates, func(r *domain.SchemeFeatureRecord) bool {
		return r.NAV > 0 && r.NAV <= req.Budget
	})

	if len(affordable) == 0 {
		// Fallback: drop the categorical preferences, keep risk and budget
		affordable = filter(byRisk, func(r *domain.SchemeFeatureRecord) bool {
			return r.NAV > 0 && r.NAV <= req.Budget
		})
	}
	if len(affordable) == 0 {
		return &domain.NewInvestorResult{
			NoMatch: true,
			Message: fmt.Sprintf("no %s-risk fund has a NAV within the budget", risk),
		}, nil
	}

	type scored struct {
		rec   *domain.SchemeFeatureRecord
		score float64
	}
	ranked := make([]scored, len(affordable))
	for i, rec := range affordable {
		ranked[i] = scored{rec: rec, score: e.scorer.Score(rec)}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	topN := req.TopN
	if topN <= 0 {
		topN = e.defaultTopN
	}
	if topN > len(ranked) {
		topN = len(ranked)
	}

	funds := make([]domain.FundSummary, 0, topN)
	for _, s := range ranked[:topN] {
		funds = append(funds, domain.FundSummary{
			SchemeID:         s.rec.SchemeID,
			SchemeName:       s.rec.SchemeName,
			FundHouse:        s.rec.FundHouse,
			NAV:              s.rec.NAV,
			UnitsPurchasable: int64(math.Floor(req.Budget / s.rec.NAV)),
			RiskLevel:        string(s.rec.RiskLevel),
			Score:            s.score,
		})
	}

	return &domain.NewInvestorResult{Funds: funds}, nil
}

// ExistingInvestor evaluates a current holding: compute realized CAGR
// and valuation, then look for a same-profile peer that clears both
// the CAGR improvement threshold and the Sharpe comparison.
func (e *Engine) ExistingInvestor(req domain.ExistingInvestorRequest) (*domain.ExistingInvestorResult, error) {
	table := e.snapshots.Current()
	if table == nil {
		return nil, fmt.Errorf("no feature table built yet")
	}

	current, ok := table.Lookup(req.SchemeID)
	if !ok {
		return nil, fmt.Errorf("%w: unknown scheme %d", domain.ErrInvalidRequest, req.SchemeID)
	}
	if req.NavAtPurchase <= 0 {
		return nil, fmt.Errorf("%w: purchase NAV must be positive", domain.ErrInvalidRequest)
	}
	if req.UnitsHeld < 0 {
		return nil, fmt.Errorf("%w: units held must not be negative", domain.ErrInvalidRequest)
	}

	purchaseDate, err := time.Parse("2006-01-02", req.PurchaseDate)
	if err != nil {
		return nil, fmt.Errorf("%w: unparseable purchase date %q", domain.ErrInvalidRequest, req.PurchaseDate)
	}
	years := table.AsOf.Sub(purchaseDate).Hours() / 24 / 365
	if years <= 0 {
		return nil, fmt.Errorf("%w: purchase date %s is not before the data as-of date", domain.ErrInvalidRequest, req.PurchaseDate)
	}

	realized := math.Pow(current.NAV/req.NavAtPurchase, 1/years) - 1

	result := &domain.ExistingInvestorResult{
		SchemeID:     current.SchemeID,
		SchemeName:   current.SchemeName,
		LatestNAV:    current.NAV,
		CurrentValue: req.UnitsHeld * current.NAV,
		HoldingYears: years,
		RealizedCAGR: realized,
		Verdict:      domain.VerdictHold,
	}

	// The candidate is always the single top-scoring peer; the switch
	// conditions are tested on that peer only, never on the runner-up.
	best := e.topPeer(table, current)
	if best == nil {
		result.Reason = "no similar peer funds found"
		return result, nil
	}
	if best.CAGR1Y == nil ||
		*best.CAGR1Y <= realized+e.improvementThreshold ||
		best.SharpeRatio <= current.SharpeRatio {
		result.Reason = fmt.Sprintf("%s does not outperform the current holding enough to switch", best.SchemeName)
		return result, nil
	}

	result.Verdict = domain.VerdictSwitch
	result.Reason = fmt.Sprintf("%s delivers a higher 1Y CAGR and Sharpe than the current holding", best.SchemeName)
	result.Recommended = &domain.RecommendedFund{
		SchemeID:   best.SchemeID,
		SchemeName: best.SchemeName,
		NAV:        best.NAV,
		CAGR1Y:     *best.CAGR1Y,
		Sharpe:     best.SharpeRatio,
	}
	return result, nil
}

// topPeer returns the highest-scoring peer of the holding. Peers share
// the balanced asset class, balanced market cap, and risk level; an
// empty balanced tag never matches, so untagged holdings simply have
// no peer group.
func (e *Engine) topPeer(table *domain.FeatureTable, current *domain.SchemeFeatureRecord) *domain.SchemeFeatureRecord {
	if current.BalancedAssetClass == "" || current.BalancedMarketCap == "" {
		return nil
	}

	var best *domain.SchemeFeatureRecord
	bestScore := math.Inf(-1)
	for i := range table.Records {
		peer := &table.Records[i]
		if peer.SchemeID == current.SchemeID {
			continue
		}
		if peer.BalancedAssetClass != current.BalancedAssetClass ||
			peer.BalancedMarketCap != current.BalancedMarketCap ||
			peer.RiskLevel != current.RiskLevel {
			continue
		}
		if s := e.scorer.Score(peer); s > bestScore {
			best = peer
			bestScore = s
		}
	}
	return best
}

func filter(records []*domain.SchemeFeatureRecord, keep func(*domain.SchemeFeatureRecord) bool) []*domain.SchemeFeatureRecord {
	var out []*domain.SchemeFeatureRecord
	for _, rec := range records {
		if keep(rec) {
			out = append(out, rec)
		}
	}
	return out
}

// softFilter narrows candidates to those whose label matches want, but
// only when the narrowed set is non-empty. Empty want keeps everything.
func softFilter(candidates []*domain.SchemeFeatureRecord, want string, label func(*domain.SchemeFeatureRecord) string) []*domain.SchemeFeatureRecord {
	want = strings.TrimSpace(want)
	if want == "" {
		return candidates
	}
	var narrowed []*domain.SchemeFeatureRecord
	for _, rec := range candidates {
		l := label(rec)
		if l != "" && strings.EqualFold(l, want) {
			narrowed = append(narrowed, rec)
		}
	}
	if len(narrowed) == 0 {
		return candidates
	}
	return narrowed
}
