package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"

	"trendpulse/internal/adapter/storage"
	"trendpulse/internal/config"
	"trendpulse/internal/server"
	"trendpulse/internal/service/baseline"
	"trendpulse/internal/service/cluster"
	engineService "trendpulse/internal/service/engine"
	"trendpulse/internal/service/ingest"
	"trendpulse/internal/service/scoring"
)

func main() {
	// Load .env for local runs; ignore absence in deployed environments
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// Setup context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling for graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Initialize dependencies
	db, err := initDatabase(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	natsConn, err := initNATS(cfg.NATS, logger)
	if err != nil {
		logger.Error("failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer natsConn.Close()

	// Initialize storage adapters
	eventStore := storage.NewEventStore(db)
	baselineStore := storage.NewBaselineStore(db)

	// Initialize the engine's components
	tracker := baseline.NewTracker(baseline.Config{
		Shards:          cfg.Ingest.Shards,
		MinObservations: cfg.Baseline.MinObservations,
	})

	buffer, err := ingest.NewBuffer(tracker, ingest.Config{
		Shards:         cfg.Ingest.Shards,
		DedupCacheSize: cfg.Ingest.DedupCacheSize,
		HistoryWindow:  cfg.Ingest.HistoryWindow,
	}, logger)
	if err != nil {
		logger.Error("failed to create ingest buffer", "error", err)
		os.Exit(1)
	}

	clusterer, err := cluster.NewClusterer(cluster.Config{
		SimilarityThreshold: cfg.Cluster.SimilarityThreshold,
		AmbiguityBand:       cfg.Cluster.AmbiguityBand,
		IndexCacheSize:      cfg.Cluster.IndexCacheSize,
	}, logger)
	if err != nil {
		logger.Error("failed to create clusterer", "error", err)
		os.Exit(1)
	}

	deduper := cluster.NewDeduper(cfg.Cluster.ShingleSize)

	detector := scoring.NewDetector(scoring.DetectorConfig{
		SurgeZScore:   cfg.Scoring.SurgeZScore,
		EmergingFloor: cfg.Scoring.EmergingFloor,
		StdDevEpsilon: cfg.Scoring.StdDevEpsilon,
	})

	composer := scoring.NewComposer(scoring.ComposerConfig{
		ZScoreWeight:       cfg.Rank.ZScoreWeight,
		ConfidenceWeight:   cfg.Rank.ConfidenceWeight,
		LabelQualityWeight: cfg.Rank.LabelQualityWeight,
		DecayHalfLife:      cfg.Rank.DecayHalfLife,
		EvergreenRelStdDev: cfg.Rank.EvergreenRelStdDev,
		BreakingMaxAge:     cfg.Rank.BreakingMaxAge,
	})

	eng := engineService.New(
		buffer,
		tracker,
		clusterer,
		detector,
		composer,
		eventStore,
		baselineStore,
		natsConn,
		cfg.Rank.Tier3Ceiling,
		engineService.Config{
			PassTimeout: cfg.Scoring.PassTimeout,
			DecayWindow: cfg.Scoring.DecayWindow,
			EventsTopic: cfg.Scoring.EventsTopic,
		},
		logger,
	)

	// Seed baselines from persisted aggregates
	if err := eng.RestoreBaselines(ctx); err != nil {
		logger.Warn("baseline restore failed, starting cold", "error", err)
	}

	// Initialize HTTP server
	httpServer := server.NewServer(
		cfg.Server,
		cfg.Scoring.EventsTopic,
		natsConn,
		eng,
		buffer,
		deduper,
		buffer,
		logger,
	)

	// Start HTTP server
	go func() {
		logger.Info("starting HTTP server", "host", cfg.Server.Host, "port", cfg.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	<-shutdown
	logger.Info("shutdown signal received")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// Graceful shutdown
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}

// Initialize database connection
func initDatabase(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	connString := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	poolConfig.MinConns = int32(cfg.MaxIdleConns)
	poolConfig.MaxConnLifetime = cfg.MaxLifetime

	db, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	// Test connection
	if err := db.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return db, nil
}

// Initialize NATS connection
func initNATS(cfg config.NATSConfig, logger *slog.Logger) (*nats.Conn, error) {
	options := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.ConnectTimeout),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	}

	nc, err := nats.Connect(cfg.URL, options...)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to NATS: %w", err)
	}

	return nc, nil
}
