// Package scoring ranks schemes with a weighted composite of
// risk-adjusted performance features.
package scoring

import "github.com/pranavkh/fundsage/internal/domain"

// Weights for the composite score. The drawdown weight is applied
// subtractively: drawdown is a penalty.
type Weights struct {
	Sharpe   float64
	CAGR     float64
	Drawdown float64
}

// DefaultWeights is the reference parameterization.
var DefaultWeights = Weights{Sharpe: 0.5, CAGR: 0.3, Drawdown: 0.2}

// Scorer computes composite fund scores.
type Scorer struct {
	weights Weights
}

// New creates a scorer with the given weights.
func New(w Weights) *Scorer {
	return &Scorer{weights: w}
}

// Score computes the composite: raw Sharpe rewarded, winsorized 1Y
// CAGR rewarded, winsorized drawdown penalized. Undefined inputs
// contribute zero rather than sinking the scheme.
func (s *Scorer) Score(rec *domain.SchemeFeatureRecord) float64 {
	cagr := 0.0
	if rec.CAGR1YW != nil {
		cagr = *rec.CAGR1YW
	}
	return s.weights.Sharpe*rec.SharpeRatio +
		s.weights.CAGR*cagr -
		s.weights.Drawdown*rec.MaxDrawdownW
}
