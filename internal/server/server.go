// Package server provides the HTTP server and routing for FundSage.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/pranavkh/fundsage/internal/database"
	recommendhandlers "github.com/pranavkh/fundsage/internal/modules/recommend/handlers"
	"github.com/pranavkh/fundsage/internal/pipeline"
	"github.com/pranavkh/fundsage/internal/scheduler"
)

// Config holds server configuration
type Config struct {
	Log        zerolog.Logger
	Port       int
	DevMode    bool
	DataDir    string
	HistoryDB  *database.DB
	FeaturesDB *database.DB
	Pipeline   *pipeline.Service
	Scheduler  *scheduler.Scheduler
	Recommend  *recommendhandlers.Handler
}

// Server represents the HTTP server
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	systemHandlers *SystemHandlers
	recommend      *recommendhandlers.Handler
	pipeline       *pipeline.Service
	scheduler      *scheduler.Scheduler
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:         chi.NewRouter(),
		log:            cfg.Log.With().Str("component", "server").Logger(),
		systemHandlers: NewSystemHandlers(cfg.Log, cfg.DataDir, cfg.HistoryDB, cfg.FeaturesDB),
		recommend:      cfg.Recommend,
		pipeline:       cfg.Pipeline,
		scheduler:      cfg.Scheduler,
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) setupMiddleware(devMode bool) {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// Timeout
	s.router.Use(middleware.Timeout(60 * time.Second))

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Compress responses
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/recommend", func(r chi.Router) {
			r.Post("/new", s.recommend.HandleNewInvestor)
			r.Post("/existing", s.recommend.HandleExistingInvestor)
		})

		r.Get("/build/report", s.handleBuildReport)
		r.Post("/build/trigger", s.handleTriggerBuild)

		r.Route("/system", func(r chi.Router) {
			r.Get("/health", s.systemHandlers.HandleSystemHealth)
			r.Get("/databases", s.systemHandlers.HandleDatabaseStats)
		})
	})
}

func (s *Server) handleBuildReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.pipeline.LatestReport()
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if report == nil {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "no build has run yet"})
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleTriggerBuild(w http.ResponseWriter, r *http.Request) {
	// The build runs in the background; overlap is handled by the
	// scheduler's single-flight guard.
	go func() {
		if err := s.scheduler.Trigger(context.Background()); err != nil {
			s.log.Error().Err(err).Msg("manual build failed")
		}
	}()
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "build triggered"})
}

// Start begins listening for requests.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
