// Package ingest loads and cleans raw NAV data into the history
// database, and merges live quotes over the latest observations.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/pranavkh/fundsage/internal/domain"
)

// Accepted date layouts in the raw feed. AMFI exports use the
// day-month-year form, normalized exports use ISO.
var dateLayouts = []string{
	"02-Jan-2006",
	"2006-01-02",
	"02-01-2006",
}

// CleanStats counts the rows dropped during a load, by reason. The
// counts go into the build report.
type CleanStats struct {
	TotalRows        int `json:"total_rows"`
	BadDate          int `json:"bad_date"`
	BadNAV           int `json:"bad_nav"`
	MissingIdentity  int `json:"missing_identity"`
	DuplicateDropped int `json:"duplicate_dropped"`
	Kept             int `json:"kept"`
}

// Loader reads the raw NAV CSV feed and produces cleaned observations.
type Loader struct {
	log zerolog.Logger
}

// NewLoader creates a feed loader.
func NewLoader(log zerolog.Logger) *Loader {
	return &Loader{log: log.With().Str("component", "ingest").Logger()}
}

// LoadFile reads and cleans a CSV feed from disk.
func (l *Loader) LoadFile(path string) ([]domain.NavObservation, CleanStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, CleanStats{}, fmt.Errorf("failed to open NAV feed: %w", err)
	}
	defer f.Close()
	return l.Load(f)
}

// Load reads a CSV feed with header
// scheme_code,scheme_name,fund_house,date,nav and returns cleaned
// observations sorted by (scheme, date). Rows with unparseable dates,
// non-positive NAVs, or missing identity fields are dropped and
// counted; duplicate (scheme, date) pairs keep the last row seen.
func (l *Loader) Load(r io.Reader) ([]domain.NavObservation, CleanStats, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, CleanStats{}, fmt.Errorf("failed to read feed header: %w", err)
	}
	cols, err := mapColumns(header)
	if err != nil {
		return nil, CleanStats{}, err
	}

	var stats CleanStats
	// last write wins per (scheme, date)
	seen := make(map[string]int)
	var obs []domain.NavObservation

	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, stats, fmt.Errorf("failed to read feed row: %w", err)
		}
		stats.TotalRows++

		row, reason := parseRow(rec, cols)
		switch reason {
		case dropNone:
		case dropBadDate:
			stats.BadDate++
			continue
		case dropBadNAV:
			stats.BadNAV++
			continue
		case dropMissingIdentity:
			stats.MissingIdentity++
			continue
		}

		key := strconv.FormatInt(row.SchemeID, 10) + "|" + row.Date.Format("2006-01-02")
		if i, dup := seen[key]; dup {
			obs[i] = row
			stats.DuplicateDropped++
			continue
		}
		seen[key] = len(obs)
		obs = append(obs, row)
	}

	sort.Slice(obs, func(i, j int) bool {
		if obs[i].SchemeID != obs[j].SchemeID {
			return obs[i].SchemeID < obs[j].SchemeID
		}
		return obs[i].Date.Before(obs[j].Date)
	})

	stats.Kept = len(obs)
	l.log.Info().
		Int("total", stats.TotalRows).
		Int("kept", stats.Kept).
		Int("bad_date", stats.BadDate).
		Int("bad_nav", stats.BadNAV).
		Int("missing_identity", stats.MissingIdentity).
		Int("duplicates", stats.DuplicateDropped).
		Msg("NAV feed cleaned")

	return obs, stats, nil
}

type columnMap struct {
	schemeCode int
	schemeName int
	fundHouse  int
	date       int
	nav        int
}

func mapColumns(header []string) (columnMap, error) {
	cols := columnMap{schemeCode: -1, schemeName: -1, fundHouse: -1, date: -1, nav: -1}
	for i, h := range header {
		switch normalizeHeader(h) {
		case "scheme_code", "scheme_id":
			cols.schemeCode = i
		case "scheme_name":
			cols.schemeName = i
		case "fund_house", "mutual_fund_family", "amc":
			cols.fundHouse = i
		case "date":
			cols.date = i
		case "nav", "net_asset_value":
			cols.nav = i
		}
	}
	if cols.schemeCode < 0 || cols.schemeName < 0 || cols.date < 0 || cols.nav < 0 {
		return cols, fmt.Errorf("%w: feed header missing required columns: %v", domain.ErrDataQuality, header)
	}
	return cols, nil
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.ReplaceAll(h, " ", "_")
}

type dropReason int

const (
	dropNone dropReason = iota
	dropBadDate
	dropBadNAV
	dropMissingIdentity
)

func parseRow(rec []string, cols columnMap) (domain.NavObservation, dropReason) {
	field := func(i int) string {
		if i < 0 || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	schemeCode := field(cols.schemeCode)
	schemeName := field(cols.schemeName)
	if schemeCode == "" || schemeName == "" {
		return domain.NavObservation{}, dropMissingIdentity
	}
	schemeID, err := strconv.ParseInt(schemeCode, 10, 64)
	if err != nil {
		return domain.NavObservation{}, dropMissingIdentity
	}

	date, ok := parseDate(field(cols.date))
	if !ok {
		return domain.NavObservation{}, dropBadDate
	}

	nav, err := strconv.ParseFloat(field(cols.nav), 64)
	if err != nil || nav <= 0 {
		return domain.NavObservation{}, dropBadNAV
	}

	return domain.NavObservation{
		SchemeID:   schemeID,
		SchemeName: schemeName,
		FundHouse:  field(cols.fundHouse),
		Date:       date,
		NAV:        nav,
	}, dropNone
}

func parseDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
