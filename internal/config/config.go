/**
 * Configuration for the alignment worker
 *
 * Service settings come from environment variables (optionally seeded from
 * .env.alignment). Alignment tuning lives in a YAML profile so that a
 * dataset can ship its own curve; environment variables override it.
 */

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/adverant/nexus/alignment-worker/internal/align"
)

// EnvFile is loaded, when present, before reading the environment
const EnvFile = ".env.alignment"

const (
	QueueBackendAsynq = "asynq"
	QueueBackendRedis = "redis"
)

// Config holds worker configuration
type Config struct {
	// Redis configuration
	RedisURL     string
	QueueBackend string
	QueueName    string

	// PostgreSQL configuration
	DatabaseURL string

	// Qdrant label index configuration
	QdrantURL        string
	QdrantCollection string

	// FileProcess API for input artifacts and review reports
	ArtifactAPIURL string

	// Worker configuration
	WorkerConcurrency int
	ProcessingTimeout int // milliseconds

	// Tesseract configuration
	TesseractLanguage string

	LogLevel string

	Align Profile
}

// Profile is the alignment tuning for a dataset
type Profile struct {
	Scorer              string                 `yaml:"scorer"`
	CompletionThreshold int                    `yaml:"completionThreshold"`
	Curate              bool                   `yaml:"curate"`
	PatternWorkers      int                    `yaml:"patternWorkers"`
	FoldCase            bool                   `yaml:"foldCase"`
	Language            string                 `yaml:"language"`
	DropTrailingLines   int                    `yaml:"dropTrailingLines"`
	Acceptance          align.AcceptancePolicy `yaml:"acceptance"`
}

// DefaultProfile returns the production alignment settings
func DefaultProfile() Profile {
	return Profile{
		Scorer:              align.ScorerHamming,
		CompletionThreshold: align.DefaultCompletionThreshold,
		PatternWorkers:      1,
		Language:            "fr",
		DropTrailingLines:   1,
		Acceptance:          align.DefaultAcceptancePolicy(),
	}
}

// LoadProfile reads a YAML profile on top of the defaults. Keys missing
// from the file keep their default value.
func LoadProfile(path string) (Profile, error) {
	p := DefaultProfile()
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("reading alignment profile: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("parsing alignment profile %s: %w", path, err)
	}
	return p, nil
}

// ProducerConfig converts the profile into the engine's configuration
func (p Profile) ProducerConfig(logger align.Logger) (align.ProducerConfig, error) {
	scorer, err := align.ScorerByName(p.Scorer)
	if err != nil {
		return align.ProducerConfig{}, err
	}
	threshold := p.CompletionThreshold
	policy := p.Acceptance
	return align.ProducerConfig{
		Scorer:              scorer,
		Workers:             p.PatternWorkers,
		CompletionThreshold: &threshold,
		Policy:              &policy,
		Curate:              p.Curate,
		Logger:              logger,
	}, nil
}

// Validate checks if the profile is usable
func (p Profile) Validate() error {
	if _, err := align.ScorerByName(p.Scorer); err != nil {
		return err
	}
	if p.PatternWorkers < 1 {
		return fmt.Errorf("patternWorkers must be at least 1, got %d", p.PatternWorkers)
	}
	if p.DropTrailingLines < 0 {
		return fmt.Errorf("dropTrailingLines must not be negative, got %d", p.DropTrailingLines)
	}
	return p.Acceptance.Validate()
}

// LoadConfig loads configuration from .env.alignment, the environment and
// the optional ALIGN_PROFILE file
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading %s: %w", EnvFile, err)
	}

	profile := DefaultProfile()
	if path := os.Getenv("ALIGN_PROFILE"); path != "" {
		p, err := LoadProfile(path)
		if err != nil {
			return nil, err
		}
		profile = p
	}

	cfg := &Config{
		RedisURL:          getEnvOrDefault("REDIS_URL", "redis://nexus-redis:6379"),
		QueueBackend:      strings.ToLower(getEnvOrDefault("QUEUE_BACKEND", QueueBackendAsynq)),
		QueueName:         getEnvOrDefault("QUEUE_NAME", "alignment:jobs"),
		DatabaseURL:       getEnvOrDefault("DATABASE_URL", ""),
		QdrantURL:         getEnvOrDefault("QDRANT_URL", "nexus-qdrant:6334"),
		QdrantCollection:  getEnvOrDefault("QDRANT_COLLECTION", "alignment_labels"),
		ArtifactAPIURL:    getEnvOrDefault("ARTIFACT_API_URL", ""),
		WorkerConcurrency: getEnvAsIntOrDefault("WORKER_CONCURRENCY", runtime.NumCPU()),
		ProcessingTimeout: getEnvAsIntOrDefault("PROCESSING_TIMEOUT", 120000), // 2 minutes
		TesseractLanguage: getEnvOrDefault("TESSERACT_LANGUAGE", "fra"),
		LogLevel:          getEnvOrDefault("LOG_LEVEL", "info"),
		Align:             applyProfileOverrides(profile),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func applyProfileOverrides(p Profile) Profile {
	p.Scorer = getEnvOrDefault("ALIGN_SCORER", p.Scorer)
	p.CompletionThreshold = getEnvAsIntOrDefault("COMPLETION_THRESHOLD", p.CompletionThreshold)
	p.Curate = getEnvAsBoolOrDefault("MONOTONIC_CURATION", p.Curate)
	p.PatternWorkers = getEnvAsIntOrDefault("ALIGN_PATTERN_WORKERS", p.PatternWorkers)
	p.FoldCase = getEnvAsBoolOrDefault("FOLD_CASE", p.FoldCase)
	p.Language = getEnvOrDefault("ALIGN_LANGUAGE", p.Language)
	return p
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.QueueBackend != QueueBackendAsynq && c.QueueBackend != QueueBackendRedis {
		return fmt.Errorf("QUEUE_BACKEND must be %q or %q, got %q", QueueBackendAsynq, QueueBackendRedis, c.QueueBackend)
	}

	if c.WorkerConcurrency < 1 || c.WorkerConcurrency > 100 {
		return fmt.Errorf("WORKER_CONCURRENCY must be between 1 and 100, got %d", c.WorkerConcurrency)
	}

	if c.ProcessingTimeout < 1000 {
		return fmt.Errorf("PROCESSING_TIMEOUT must be at least 1000ms, got %d", c.ProcessingTimeout)
	}

	if err := c.Align.Validate(); err != nil {
		return fmt.Errorf("alignment profile: %w", err)
	}

	return nil
}

// RequireServices checks the settings a queue worker cannot run without
func (c *Config) RequireServices() error {
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	return nil
}

// Timeout returns the per-document processing timeout
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.ProcessingTimeout) * time.Millisecond
}

// getEnvOrDefault gets environment variable or returns default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault gets environment variable as int or returns default
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsBoolOrDefault gets environment variable as bool or returns default
func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}
