package ingest

import (
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pranavkh/fundsage/internal/domain"
)

const navAllSample = `Scheme Code;ISIN Div Payout/ ISIN Growth;ISIN Div Reinvestment;Scheme Name;Net Asset Value;Date

Open Ended Schemes ( Debt Scheme - Banking and PSU Fund )

Alpha Mutual Fund

100;INF001;INF002;Alpha Growth Fund - Direct Plan;12.3456;02-Jan-2024
200;INF003;-;Beta Liquid Fund;1000.0001;02-Jan-2024
300;INF004;-;Broken Fund;N.A.;02-Jan-2024
`

func TestParseNAVAll(t *testing.T) {
	quotes, skipped, err := ParseNAVAll(strings.NewReader(navAllSample))
	require.NoError(t, err)

	require.Len(t, quotes, 2)
	assert.Equal(t, int64(100), quotes[0].SchemeCode)
	assert.Equal(t, "Alpha Growth Fund - Direct Plan", quotes[0].SchemeName)
	assert.InDelta(t, 12.3456, quotes[0].NAV, 1e-9)
	assert.Equal(t, "2024-01-02", quotes[0].Date.Format("2006-01-02"))

	// Header row, two section lines, and the N.A. NAV row
	assert.Equal(t, 4, skipped)
}

func TestMergeLiveQuotes(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }

	records := []domain.SchemeFeatureRecord{
		{SchemeID: 100, SchemeName: "Alpha Growth Fund", NAV: 10.0, Date: day(1)},
		{SchemeID: 200, SchemeName: "Beta Liquid Fund", NAV: 999.0, Date: day(1)},
		{SchemeID: 300, SchemeName: "Gamma Fund", NAV: 50.0, Date: day(1)},
	}
	quotes := []LiveQuote{
		// Name matching is trimmed and case-insensitive
		{SchemeCode: 100, SchemeName: "  alpha growth fund ", NAV: 10.5, Date: day(2)},
		// Not newer than the stored observation
		{SchemeCode: 200, SchemeName: "Beta Liquid Fund", NAV: 1000.0, Date: day(1)},
		// No matching scheme
		{SchemeCode: 900, SchemeName: "Unknown Fund", NAV: 1.0, Date: day(2)},
	}

	stats := MergeLiveQuotes(records, quotes, zerolog.Nop())

	assert.Equal(t, 3, stats.Quotes)
	assert.Equal(t, 1, stats.Matched)
	assert.Equal(t, 1, stats.Unmatched)
	assert.Equal(t, 1, stats.Stale)

	assert.Equal(t, 10.5, records[0].NAV)
	assert.Equal(t, day(2), records[0].Date)
	assert.Equal(t, 999.0, records[1].NAV)
	assert.Equal(t, 50.0, records[2].NAV)
}
