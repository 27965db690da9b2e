// Package pipeline orchestrates the end-to-end batch build: history
// load, feature building, normalization, tiering, persistence, and
// snapshot publication.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pranavkh/fundsage/internal/config"
	"github.com/pranavkh/fundsage/internal/domain"
	"github.com/pranavkh/fundsage/internal/ingest"
	"github.com/pranavkh/fundsage/internal/modules/classify"
	"github.com/pranavkh/fundsage/internal/modules/features"
	"github.com/pranavkh/fundsage/internal/modules/risktier"
)

// BuildReport is the per-cycle diagnostic document persisted alongside
// the feature table.
type BuildReport struct {
	BuildID    string               `json:"build_id"`
	StartedAt  time.Time            `json:"started_at"`
	FinishedAt time.Time            `json:"finished_at"`
	AsOf       time.Time            `json:"as_of"`
	Schemes    int                  `json:"schemes"`
	Ingest     *ingest.CleanStats   `json:"ingest,omitempty"`
	Excluded   []features.Exclusion `json:"excluded,omitempty"`
	Tiering    *risktier.Report     `json:"tiering"`
	LiveMerge  *ingest.MergeStats   `json:"live_merge,omitempty"`
}

// Exporter ships build outputs offsite after a successful cycle.
type Exporter interface {
	Export(ctx context.Context, buildID string) error
}

// Service runs build cycles. Builds are single-threaded and
// deterministic for a fixed seed; only the final snapshot swap is
// visible to the serving layer.
type Service struct {
	cfg          config.PipelineConfig
	loader       *ingest.Loader
	navRepo      *ingest.NavRepository
	builder      *features.Builder
	normalizer   *features.Normalizer
	balancer     *classify.Balancer
	tierer       *risktier.Tierer
	featureRepo  *features.Repository
	artifactRepo *risktier.ArtifactRepository
	store        *features.Store
	liveQuotes   *ingest.LiveQuoteClient // nil when no live feed configured
	exporter     Exporter                // nil when export is disabled
	log          zerolog.Logger

	lastIngest *ingest.CleanStats
}

// NewService wires a pipeline service.
func NewService(
	cfg config.PipelineConfig,
	loader *ingest.Loader,
	navRepo *ingest.NavRepository,
	featureRepo *features.Repository,
	artifactRepo *risktier.ArtifactRepository,
	store *features.Store,
	liveQuotes *ingest.LiveQuoteClient,
	exporter Exporter,
	log zerolog.Logger,
) *Service {
	return &Service{
		cfg:          cfg,
		loader:       loader,
		navRepo:      navRepo,
		builder:      features.NewBuilder(cfg.RiskFreeRate, log),
		normalizer:   features.NewNormalizer(cfg.WinsorLower, cfg.WinsorUpper),
		balancer:     classify.NewBalancer(cfg.BalanceFactorLarge, cfg.BalanceFactorMid, cfg.BalanceFactorSmall, cfg.Seed),
		tierer:       risktier.NewTierer(cfg.Seed, cfg.KMeansRestarts, cfg.ForestTrees, log),
		featureRepo:  featureRepo,
		artifactRepo: artifactRepo,
		store:        store,
		liveQuotes:   liveQuotes,
		exporter:     exporter,
		log:          log.With().Str("component", "pipeline").Logger(),
	}
}

// Ingest loads and cleans a raw NAV feed file into the history
// database, replacing the previous history.
func (s *Service) Ingest(path string) (*ingest.CleanStats, error) {
	obs, stats, err := s.loader.LoadFile(path)
	if err != nil {
		return nil, err
	}
	if err := s.navRepo.ReplaceAll(obs); err != nil {
		return nil, fmt.Errorf("failed to persist NAV history: %w", err)
	}
	s.lastIngest = &stats
	return &stats, nil
}

// Build runs one full cycle over the stored history and publishes the
// resulting snapshot. Partial failures leave the previous snapshot
// serving.
func (s *Service) Build(ctx context.Context) (*BuildReport, error) {
	started := time.Now().UTC()
	buildID := uuid.NewString()
	blog := s.log.With().Str("build_id", buildID).Logger()
	blog.Info().Msg("build cycle started")

	obs, err := s.navRepo.LoadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to load NAV history: %w", err)
	}

	records, excluded, err := s.builder.Build(obs)
	if err != nil {
		return nil, err
	}

	for i := range records {
		records[i].AssetClass = classify.AssetClass(records[i].SchemeName)
		records[i].MarketCap = classify.MarketCap(records[i].SchemeName)
	}
	s.balancer.Apply(records)

	cutPoints, err := s.normalizer.Fit(records)
	if err != nil {
		return nil, err
	}
	if err := features.Apply(records, cutPoints); err != nil {
		return nil, err
	}

	model, tierReport, err := s.tierer.Fit(records, cutPoints)
	if err != nil {
		return nil, err
	}

	var mergeStats *ingest.MergeStats
	if s.liveQuotes != nil {
		quotes, err := s.liveQuotes.Fetch(ctx)
		if err != nil {
			// The historical latest NAV still serves; the failure is
			// reported, not fatal
			blog.Warn().Err(err).Msg("live quote fetch failed, serving historical NAVs")
		} else {
			stats := ingest.MergeLiveQuotes(records, quotes, blog)
			mergeStats = &stats
		}
	}

	asOf := time.Time{}
	for i := range records {
		if records[i].Date.After(asOf) {
			asOf = records[i].Date
		}
	}
	table := domain.NewFeatureTable(buildID, asOf, records)

	if err := s.featureRepo.SaveTable(table); err != nil {
		return nil, err
	}
	if err := s.artifactRepo.Save(buildID, model); err != nil {
		return nil, err
	}

	report := &BuildReport{
		BuildID:    buildID,
		StartedAt:  started,
		FinishedAt: time.Now().UTC(),
		AsOf:       asOf,
		Schemes:    len(records),
		Ingest:     s.lastIngest,
		Excluded:   excluded,
		Tiering:    tierReport,
		LiveMerge:  mergeStats,
	}
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("failed to encode build report: %w", err)
	}
	if err := s.featureRepo.SaveReport(buildID, reportJSON); err != nil {
		return nil, err
	}

	// Everything persisted, publish to readers
	s.store.Swap(table)

	if s.exporter != nil {
		if err := s.exporter.Export(ctx, buildID); err != nil {
			blog.Warn().Err(err).Msg("artifact export failed")
		}
	}

	blog.Info().
		Int("schemes", len(records)).
		Dur("elapsed", report.FinishedAt.Sub(started)).
		Msg("build cycle finished")
	return report, nil
}

// Restore loads the persisted feature table and model at startup so a
// restarted process serves without rebuilding. A model whose content
// hash no longer matches is fatal.
func (s *Service) Restore() error {
	table, err := s.featureRepo.LoadCurrent()
	if err != nil {
		return err
	}
	if table == nil {
		s.log.Info().Msg("no persisted build to restore")
		return nil
	}

	// Verifies the content hash binding classifier to normalization
	if _, err := s.artifactRepo.Load(table.BuildID); err != nil {
		return fmt.Errorf("failed to restore model for build %s: %w", table.BuildID, err)
	}

	s.store.Swap(table)
	s.log.Info().Str("build_id", table.BuildID).Int("schemes", table.Len()).Msg("snapshot restored")
	return nil
}

// LatestReport returns the most recent persisted build report.
func (s *Service) LatestReport() (*BuildReport, error) {
	raw, err := s.featureRepo.LatestReport()
	if err != nil || raw == nil {
		return nil, err
	}
	var report BuildReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, fmt.Errorf("failed to decode build report: %w", err)
	}
	return &report, nil
}
