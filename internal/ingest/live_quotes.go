package ingest

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// LiveQuote is one parsed row of the AMFI daily NAV feed.
type LiveQuote struct {
	SchemeCode int64
	SchemeName string
	NAV        float64
	Date       time.Time
}

// LiveQuoteClient fetches the AMFI NAVAll.txt-format daily feed.
type LiveQuoteClient struct {
	url    string
	client *http.Client
	log    zerolog.Logger
}

// NewLiveQuoteClient creates a client for the given feed URL.
func NewLiveQuoteClient(url string, log zerolog.Logger) *LiveQuoteClient {
	return &LiveQuoteClient{
		url:    url,
		client: &http.Client{Timeout: 30 * time.Second},
		log:    log.With().Str("component", "live_quotes").Logger(),
	}
}

// Fetch downloads and parses the feed.
func (c *LiveQuoteClient) Fetch(ctx context.Context) ([]LiveQuote, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build live quote request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch live quotes: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("live quote feed returned status %d", resp.StatusCode)
	}

	quotes, skipped, err := ParseNAVAll(resp.Body)
	if err != nil {
		return nil, err
	}

	c.log.Info().
		Int("quotes", len(quotes)).
		Int("skipped_lines", skipped).
		Msg("live quotes fetched")
	return quotes, nil
}

// ParseNAVAll parses the AMFI NAVAll.txt format: semicolon-separated
// rows of SchemeCode;ISIN1;ISIN2;SchemeName;NAV;Date interleaved with
// section headers and blank lines, which are skipped. Returns the
// parsed quotes and the number of skipped non-data lines.
func ParseNAVAll(r io.Reader) ([]LiveQuote, int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var quotes []LiveQuote
	skipped := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		fields := strings.Split(line, ";")
		if len(fields) != 6 {
			skipped++
			continue
		}

		code, err := strconv.ParseInt(strings.TrimSpace(fields[0]), 10, 64)
		if err != nil {
			// Header row or section title
			skipped++
			continue
		}

		nav, err := strconv.ParseFloat(strings.TrimSpace(fields[4]), 64)
		if err != nil || nav <= 0 {
			skipped++
			continue
		}

		date, ok := parseDate(strings.TrimSpace(fields[5]))
		if !ok {
			skipped++
			continue
		}

		quotes = append(quotes, LiveQuote{
			SchemeCode: code,
			SchemeName: strings.TrimSpace(fields[3]),
			NAV:        nav,
			Date:       date,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, skipped, fmt.Errorf("failed to scan live quote feed: %w", err)
	}

	return quotes, skipped, nil
}
