// Package main is the entry point for the FundSage mutual fund
// recommendation service. It ingests historical NAV data, runs the
// batch feature and risk tiering pipeline, and serves recommendation
// requests over HTTP.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pranavkh/fundsage/internal/config"
	"github.com/pranavkh/fundsage/internal/database"
	"github.com/pranavkh/fundsage/internal/ingest"
	"github.com/pranavkh/fundsage/internal/modules/features"
	"github.com/pranavkh/fundsage/internal/modules/recommend"
	recommendhandlers "github.com/pranavkh/fundsage/internal/modules/recommend/handlers"
	"github.com/pranavkh/fundsage/internal/modules/risktier"
	"github.com/pranavkh/fundsage/internal/modules/scoring"
	"github.com/pranavkh/fundsage/internal/pipeline"
	"github.com/pranavkh/fundsage/internal/reliability"
	"github.com/pranavkh/fundsage/internal/scheduler"
	"github.com/pranavkh/fundsage/internal/server"
	"github.com/pranavkh/fundsage/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Msg("Starting FundSage")

	// Databases
	historyDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "history.db"),
		Profile: database.ProfileHistory,
		Name:    "history",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open history database")
	}
	defer historyDB.Close()

	featuresDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "features.db"),
		Profile: database.ProfileFeatures,
		Name:    "features",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open features database")
	}
	defer featuresDB.Close()

	for _, db := range []*database.DB{historyDB, featuresDB} {
		if err := db.Migrate(); err != nil {
			log.Fatal().Err(err).Str("database", db.Name()).Msg("Failed to migrate database")
		}
	}

	// Pipeline wiring
	loader := ingest.NewLoader(log)
	navRepo := ingest.NewNavRepository(historyDB.Conn(), log)
	featureRepo := features.NewRepository(featuresDB.Conn(), log)
	artifactRepo := risktier.NewArtifactRepository(featuresDB.Conn(), log)
	store := features.NewStore()

	var liveQuotes *ingest.LiveQuoteClient
	if cfg.LiveQuoteURL != "" {
		liveQuotes = ingest.NewLiveQuoteClient(cfg.LiveQuoteURL, log)
	}

	var exporter pipeline.Exporter
	if cfg.Backup.Enabled() {
		s3Client, err := reliability.NewS3Client(context.Background(), cfg.Backup, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize S3 export client")
		}
		exporter = reliability.NewExportService(
			s3Client, cfg.DataDir, cfg.Backup.Prefix, cfg.Backup.RetainCount,
			[]*database.DB{historyDB, featuresDB}, log)
		log.Info().Str("bucket", cfg.Backup.Bucket).Msg("Artifact export enabled")
	}

	pipe := pipeline.NewService(
		cfg.Pipeline, loader, navRepo, featureRepo, artifactRepo, store,
		liveQuotes, exporter, log)

	// Restore the persisted snapshot so requests can be served before
	// the first rebuild. A stale model artifact is fatal here.
	if err := pipe.Restore(); err != nil {
		log.Fatal().Err(err).Msg("Failed to restore persisted build")
	}

	// First-run ingest + build when nothing is persisted yet
	if store.Current() == nil {
		if _, err := os.Stat(cfg.NAVFeedPath); err == nil {
			if _, err := pipe.Ingest(cfg.NAVFeedPath); err != nil {
				log.Fatal().Err(err).Msg("Failed to ingest NAV feed")
			}
			if _, err := pipe.Build(context.Background()); err != nil {
				log.Fatal().Err(err).Msg("Initial build failed")
			}
		} else {
			log.Warn().Str("path", cfg.NAVFeedPath).Msg("No NAV feed found, serving requires a build trigger after ingest")
		}
	}

	// Serving layer
	scorer := scoring.New(scoring.Weights{
		Sharpe:   cfg.Pipeline.ScoreWeightSharpe,
		CAGR:     cfg.Pipeline.ScoreWeightCAGR,
		Drawdown: cfg.Pipeline.ScoreWeightDrawdown,
	})
	engine := recommend.NewEngine(store, scorer, cfg.Pipeline.ImprovementThreshold, cfg.Pipeline.TopN, log)
	recommendHandler := recommendhandlers.NewHandler(engine, log)

	// Scheduler: periodic rebuilds plus nightly maintenance
	maintenance := reliability.NewMaintenanceJob(map[string]*database.DB{
		"history":  historyDB,
		"features": featuresDB,
	}, cfg.DataDir, log)

	sched := scheduler.New(func(ctx context.Context) error {
		if _, err := os.Stat(cfg.NAVFeedPath); err == nil {
			if _, err := pipe.Ingest(cfg.NAVFeedPath); err != nil {
				return err
			}
		}
		if _, err := pipe.Build(ctx); err != nil {
			return err
		}
		return maintenance.Run(ctx)
	}, log)
	if err := sched.Start(cfg.Pipeline.CronSpec); err != nil {
		log.Fatal().Err(err).Msg("Failed to start scheduler")
	}

	srv := server.New(server.Config{
		Log:        log,
		Port:       cfg.Port,
		DevMode:    cfg.DevMode,
		DataDir:    cfg.DataDir,
		HistoryDB:  historyDB,
		FeaturesDB: featuresDB,
		Pipeline:   pipe,
		Scheduler:  sched,
		Recommend:  recommendHandler,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
