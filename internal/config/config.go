package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Environment string
	Server      ServerConfig
	Database    DatabaseConfig
	NATS        NATSConfig
	Ingest      IngestConfig
	Baseline    BaselineConfig
	Scoring     ScoringConfig
	Cluster     ClusterConfig
	Rank        RankConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	CorsOrigins     []string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Database     string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
	SSLMode      string
}

// NATSConfig holds NATS configuration
type NATSConfig struct {
	URL            string
	MaxReconnects  int
	ReconnectWait  time.Duration
	ConnectTimeout time.Duration
}

// IngestConfig holds mention ingest buffer configuration
type IngestConfig struct {
	Shards         int
	DedupCacheSize int
	HistoryWindow  time.Duration
}

// BaselineConfig holds baseline tracker configuration
type BaselineConfig struct {
	MinObservations int
}

// ScoringConfig holds velocity and spike detection configuration
type ScoringConfig struct {
	SurgeZScore   float64
	EmergingFloor int
	StdDevEpsilon float64
	PassTimeout   time.Duration
	DecayWindow   time.Duration
	EventsTopic   string
}

// ClusterConfig holds phrase clustering configuration
type ClusterConfig struct {
	SimilarityThreshold float64
	AmbiguityBand       float64
	IndexCacheSize      int
	ShingleSize         int
}

// RankConfig holds rank composition configuration
type RankConfig struct {
	ZScoreWeight       float64
	ConfidenceWeight   float64
	LabelQualityWeight float64
	DecayHalfLife      time.Duration
	EvergreenRelStdDev float64
	Tier3Ceiling       float64
	BreakingMaxAge     time.Duration
}

// Load loads configuration from environment variables
func Load() (Config, error) {
	config := Config{
		Environment: getEnv("APP_ENV", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			CorsOrigins:     getEnvAsSlice("SERVER_CORS_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnvAsInt("DB_PORT", 5432),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", "postgres"),
			Database:     getEnv("DB_NAME", "trendpulse"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  getEnvAsDuration("DB_MAX_LIFETIME", 5*time.Minute),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
		},
		NATS: NATSConfig{
			URL:            getEnv("NATS_URL", "nats://localhost:4222"),
			MaxReconnects:  getEnvAsInt("NATS_MAX_RECONNECTS", 10),
			ReconnectWait:  getEnvAsDuration("NATS_RECONNECT_WAIT", 1*time.Second),
			ConnectTimeout: getEnvAsDuration("NATS_CONNECT_TIMEOUT", 2*time.Second),
		},
		Ingest: IngestConfig{
			Shards:         getEnvAsInt("INGEST_SHARDS", 32),
			DedupCacheSize: getEnvAsInt("INGEST_DEDUP_CACHE_SIZE", 65536),
			HistoryWindow:  getEnvAsDuration("INGEST_HISTORY_WINDOW", 24*time.Hour),
		},
		Baseline: BaselineConfig{
			MinObservations: getEnvAsInt("BASELINE_MIN_OBSERVATIONS", 3),
		},
		Scoring: ScoringConfig{
			SurgeZScore:   getEnvAsFloat("SCORING_SURGE_ZSCORE", 3.0),
			EmergingFloor: getEnvAsInt("SCORING_EMERGING_FLOOR", 5),
			StdDevEpsilon: getEnvAsFloat("SCORING_STDDEV_EPSILON", 0.5),
			PassTimeout:   getEnvAsDuration("SCORING_PASS_TIMEOUT", 2*time.Minute),
			DecayWindow:   getEnvAsDuration("SCORING_DECAY_WINDOW", 24*time.Hour),
			EventsTopic:   getEnv("SCORING_EVENTS_TOPIC", "trend"),
		},
		Cluster: ClusterConfig{
			SimilarityThreshold: getEnvAsFloat("CLUSTER_SIMILARITY_THRESHOLD", 0.72),
			AmbiguityBand:       getEnvAsFloat("CLUSTER_AMBIGUITY_BAND", 0.05),
			IndexCacheSize:      getEnvAsInt("CLUSTER_INDEX_CACHE_SIZE", 4096),
			ShingleSize:         getEnvAsInt("CLUSTER_SHINGLE_SIZE", 4),
		},
		Rank: RankConfig{
			ZScoreWeight:       getEnvAsFloat("RANK_ZSCORE_WEIGHT", 0.5),
			ConfidenceWeight:   getEnvAsFloat("RANK_CONFIDENCE_WEIGHT", 0.3),
			LabelQualityWeight: getEnvAsFloat("RANK_LABEL_QUALITY_WEIGHT", 0.2),
			DecayHalfLife:      getEnvAsDuration("RANK_DECAY_HALF_LIFE", 6*time.Hour),
			EvergreenRelStdDev: getEnvAsFloat("RANK_EVERGREEN_REL_STDDEV", 0.25),
			Tier3Ceiling:       getEnvAsFloat("RANK_TIER3_CEILING", 0.4),
			BreakingMaxAge:     getEnvAsDuration("RANK_BREAKING_MAX_AGE", 2*time.Hour),
		},
	}

	return config, validate(config)
}

// validate checks if config is valid
func validate(config Config) error {
	if config.Ingest.Shards <= 0 {
		return fmt.Errorf("ingest shard count must be positive")
	}

	if config.Cluster.SimilarityThreshold <= 0 || config.Cluster.SimilarityThreshold > 1 {
		return fmt.Errorf("cluster similarity threshold must be in (0,1]")
	}

	if config.Rank.Tier3Ceiling <= 0 || config.Rank.Tier3Ceiling >= 1 {
		return fmt.Errorf("tier3 confidence ceiling must be in (0,1)")
	}

	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	return strings.Split(valueStr, ",")
}
