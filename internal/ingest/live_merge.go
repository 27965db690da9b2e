package ingest

import (
	"strings"

	"github.com/rs/zerolog"

	"github.com/pranavkh/fundsage/internal/domain"
)

// MergeStats reports the outcome of a live-quote merge.
type MergeStats struct {
	Quotes    int `json:"quotes"`
	Matched   int `json:"matched"`
	Unmatched int `json:"unmatched"`
	Stale     int `json:"stale"` // quote not newer than the stored observation
}

// MergeLiveQuotes overrides the latest NAV and date of matching
// records in place. Matching is by normalized scheme name (trimmed,
// lowercased, exact); schemes the feed does not cover keep their
// historical latest NAV, and every unmatched quote is an explicit,
// counted outcome.
func MergeLiveQuotes(records []domain.SchemeFeatureRecord, quotes []LiveQuote, log zerolog.Logger) MergeStats {
	mlog := log.With().Str("component", "live_merge").Logger()

	byName := make(map[string]int, len(records))
	for i, rec := range records {
		byName[normalizeSchemeName(rec.SchemeName)] = i
	}

	stats := MergeStats{Quotes: len(quotes)}
	for _, q := range quotes {
		i, ok := byName[normalizeSchemeName(q.SchemeName)]
		if !ok {
			stats.Unmatched++
			mlog.Debug().Str("scheme", q.SchemeName).Msg("live quote has no matching scheme")
			continue
		}
		if !q.Date.After(records[i].Date) {
			stats.Stale++
			continue
		}
		records[i].NAV = q.NAV
		records[i].Date = q.Date
		stats.Matched++
	}

	mlog.Info().
		Int("quotes", stats.Quotes).
		Int("matched", stats.Matched).
		Int("unmatched", stats.Unmatched).
		Int("stale", stats.Stale).
		Msg("live quotes merged")
	return stats
}

func normalizeSchemeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
