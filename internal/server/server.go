package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/nats-io/nats.go"

	"trendpulse/internal/config"
	"trendpulse/internal/domain/trend"
	"trendpulse/internal/server/handlers"
	"trendpulse/internal/service/cluster"
)

// Server represents the HTTP server
type Server struct {
	server *http.Server
	router *chi.Mux
}

// NewServer creates a new HTTP server
func NewServer(
	cfg config.ServerConfig,
	eventsTopic string,
	natsConn *nats.Conn,
	engine trend.Engine,
	ingestor trend.Ingestor,
	deduper *cluster.Deduper,
	marker handlers.CorroborateMarker,
	logger *slog.Logger,
) *Server {
	router := chi.NewRouter()

	// Middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// CORS configuration
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CorsOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Create handler dependencies
	trendHandler := handlers.NewTrendHandler(engine)
	ingestHandler := handlers.NewIngestHandler(ingestor, deduper, marker, logger)

	// Routes
	router.Route("/api", func(r chi.Router) {
		// Health check
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("OK"))
		})

		// API version
		r.Route("/v1", func(r chi.Router) {
			// Mention ingestion from source adapters
			r.Post("/mentions", ingestHandler.SubmitMention)

			// Trending feed
			r.Route("/trends", func(r chi.Router) {
				r.Get("/", trendHandler.GetFeed)
				r.Get("/{key}", trendHandler.GetEvent)
			})

			// Scheduler trigger
			r.Post("/scoring/run", trendHandler.RunScoringPass)
		})
	})

	// WebSocket endpoint for live trend activity
	if natsConn != nil {
		router.Get("/ws/trends", handlers.TrendWebSocketHandler(natsConn, eventsTopic, logger))
	}

	// Create HTTP server
	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return &Server{
		server: httpServer,
		router: router,
	}
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
