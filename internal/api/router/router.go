package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/Jeongbyungkyu/korea-investment/internal/api/handlers"
	"github.com/Jeongbyungkyu/korea-investment/internal/api/middleware"
)

// Config holds router configuration
type Config struct {
	HealthHandler     *handlers.HealthHandler
	SessionHandler    *handlers.SessionHandler    // nil when not streaming
	RankingsHandler   *handlers.RankingsHandler
	SecuritiesHandler *handlers.SecuritiesHandler

	AllowedOrigins []string
	AccessLogger   *zerolog.Logger
}

// NewRouter creates a new HTTP router
func NewRouter(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logging(middleware.LoggingConfig{
		AccessLogger: cfg.AccessLogger,
		SkipPaths:    []string{"/health"},
	}))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3099"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	// Health check
	r.Get("/health", cfg.HealthHandler.Health)
	r.Get("/health/ready", cfg.HealthHandler.Ready)

	// API routes
	r.Route("/api", func(r chi.Router) {
		if cfg.SessionHandler != nil {
			r.Get("/session", cfg.SessionHandler.GetSession)
		}

		// Rankings
		if cfg.RankingsHandler != nil {
			r.Get("/rankings/latest", cfg.RankingsHandler.GetLatest)
			r.Get("/rankings/snapshots/{snapshot_id}", cfg.RankingsHandler.GetSnapshot)
			r.Get("/rankings/symbols/{symbol}", cfg.RankingsHandler.GetRank)
		}

		// Securities
		if cfg.SecuritiesHandler != nil {
			r.Get("/securities/{symbol}/indicators", cfg.SecuritiesHandler.GetIndicators)
			r.Get("/securities/{symbol}/score", cfg.SecuritiesHandler.GetScore)
		}
	})

	return r
}
