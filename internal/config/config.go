package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Matching holds the scoring thresholds. The margin and duplicate-similarity
// constants are not statistically grounded, so they are kept configurable
// rather than hard-coded.
type Matching struct {
	HighThreshold       int     // Score at or above which a match is auto-assigned
	MediumThreshold     int     // Score at or above which a match is deferred for review
	AmbiguityMargin     int     // Runner-up within this many points makes the best match ambiguous
	DuplicateSimilarity float64 // Normalized-name similarity treated as a cross-day duplicate
}

// Bulk holds the pacing knobs for backlog processing
type Bulk struct {
	BatchSize  int           // Tournaments resolved per wave in apply mode
	BatchDelay time.Duration // Pause between waves so the store is not hammered
	MaxDetails int           // Upper bound on per-item detail rows in responses
}

// Config holds all configuration for the application
type Config struct {
	// Environment
	Environment string // "development" or "production"
	LogLevel    string

	// Storage
	DataDir    string
	SQLitePath string

	// Elasticsearch (optional; instance indexing is skipped when URL is empty)
	ESURL         string
	ESUsername    string
	ESPassword    string
	ESIndexPrefix string

	// Venues the maintenance scheduler audits
	Venues []string

	Matching Matching
	Bulk     Bulk
}

// Load reads the configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		// Only return error if file exists but couldn't be loaded
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}

	dataDir := getEnvWithDefault("DATA_DIR", filepath.Join(wd, "data"))

	cfg := &Config{
		Environment:   getEnvWithDefault("ENVIRONMENT", "development"),
		LogLevel:      getEnvWithDefault("LOG_LEVEL", "info"),
		DataDir:       dataDir,
		SQLitePath:    getEnvWithDefault("SQLITE_PATH", filepath.Join(dataDir, "venuepipe.db")),
		ESURL:         os.Getenv("ELASTICSEARCH_URL"),
		ESUsername:    os.Getenv("ELASTICSEARCH_USERNAME"),
		ESPassword:    os.Getenv("ELASTICSEARCH_PASSWORD"),
		ESIndexPrefix: getEnvWithDefault("ELASTICSEARCH_INDEX_PREFIX", "venuepipe"),
		Venues:        getEnvList("VENUE_IDS"),
		Matching: Matching{
			HighThreshold:       getEnvInt("MATCH_HIGH_THRESHOLD", 75),
			MediumThreshold:     getEnvInt("MATCH_MEDIUM_THRESHOLD", 50),
			AmbiguityMargin:     getEnvInt("MATCH_AMBIGUITY_MARGIN", 10),
			DuplicateSimilarity: getEnvFloat("MATCH_DUPLICATE_SIMILARITY", 0.85),
		},
		Bulk: Bulk{
			BatchSize:  getEnvInt("BULK_BATCH_SIZE", 5),
			BatchDelay: getEnvDuration("BULK_BATCH_DELAY", 500*time.Millisecond),
			MaxDetails: getEnvInt("BULK_MAX_DETAILS", 100),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return cfg, nil
}

// validate checks if the configuration is internally consistent
func (c *Config) validate() error {
	if c.Matching.HighThreshold < c.Matching.MediumThreshold {
		return fmt.Errorf("MATCH_HIGH_THRESHOLD must be >= MATCH_MEDIUM_THRESHOLD")
	}
	if c.Bulk.BatchSize < 1 {
		return fmt.Errorf("BULK_BATCH_SIZE must be at least 1")
	}
	return nil
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// getEnvWithDefault returns environment variable value or default if not set
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated environment variable, dropping blanks
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
