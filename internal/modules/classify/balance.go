package classify

import (
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/pranavkh/fundsage/internal/domain"
)

// Balancer resamples categorical labels so over-represented classes do
// not dominate peer groups. Labels whose group size sits above the
// upper count quantile are downsampled, mid-sized groups are gently
// oversampled, and rare groups are oversampled hardest. Schemes drawn
// into the balanced sample carry their label as a balanced tag;
// schemes left out keep an empty tag, and an empty tag never matches a
// peer filter.
type Balancer struct {
	FactorLarge   float64 // multiplier for groups above the upper quantile
	FactorMid     float64
	FactorSmall   float64
	LowerQuantile float64
	UpperQuantile float64
	Seed          int64
}

// NewBalancer returns a balancer with the reference parameterization.
func NewBalancer(factorLarge, factorMid, factorSmall float64, seed int64) *Balancer {
	return &Balancer{
		FactorLarge:   factorLarge,
		FactorMid:     factorMid,
		FactorSmall:   factorSmall,
		LowerQuantile: 0.25,
		UpperQuantile: 0.75,
		Seed:          seed,
	}
}

// Apply fills the balanced asset class and market cap tags in place.
// The two labels are balanced independently. Deterministic for a given
// seed and input order.
func (b *Balancer) Apply(records []domain.SchemeFeatureRecord) {
	assetSampled := b.sample(records, func(r *domain.SchemeFeatureRecord) string { return r.AssetClass })
	capSampled := b.sample(records, func(r *domain.SchemeFeatureRecord) string { return r.MarketCap })

	for i := range records {
		if assetSampled[records[i].SchemeID] {
			records[i].BalancedAssetClass = records[i].AssetClass
		} else {
			records[i].BalancedAssetClass = ""
		}
		if capSampled[records[i].SchemeID] {
			records[i].BalancedMarketCap = records[i].MarketCap
		} else {
			records[i].BalancedMarketCap = ""
		}
	}
}

// sample draws, per label group, round(count*factor) members with
// replacement and returns the set of scheme ids drawn at least once.
func (b *Balancer) sample(records []domain.SchemeFeatureRecord, label func(*domain.SchemeFeatureRecord) string) map[int64]bool {
	groups := make(map[string][]int64)
	for i := range records {
		l := label(&records[i])
		groups[l] = append(groups[l], records[i].SchemeID)
	}

	counts := make([]float64, 0, len(groups))
	labels := make([]string, 0, len(groups))
	for l, ids := range groups {
		labels = append(labels, l)
		counts = append(counts, float64(len(ids)))
	}
	sort.Strings(labels)

	sorted := append([]float64(nil), counts...)
	sort.Float64s(sorted)
	lower := stat.Quantile(b.LowerQuantile, stat.Empirical, sorted, nil)
	upper := stat.Quantile(b.UpperQuantile, stat.Empirical, sorted, nil)

	rng := rand.New(rand.NewSource(b.Seed))
	sampled := make(map[int64]bool)
	for _, l := range labels {
		ids := groups[l]
		count := float64(len(ids))

		var factor float64
		switch {
		case count > upper:
			factor = b.FactorLarge
		case count < lower:
			factor = b.FactorSmall
		default:
			factor = b.FactorMid
		}

		target := int(math.Round(count * factor))
		for i := 0; i < target; i++ {
			sampled[ids[rng.Intn(len(ids))]] = true
		}
	}
	return sampled
}
