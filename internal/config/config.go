package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL         string        `envconfig:"DATABASE_URL" required:"true"`
	DBMinConns          int32         `envconfig:"DB_MIN_CONNS" default:"1"`
	DBMaxConns          int32         `envconfig:"DB_MAX_CONNS" default:"8"`
	DBConnectRetries    int           `envconfig:"DB_CONNECT_RETRIES" default:"5"`
	DBConnectRetryDelay time.Duration `envconfig:"DB_CONNECT_RETRY_DELAY" default:"2s"`
	DBOperationTimeout  time.Duration `envconfig:"DB_OPERATION_TIMEOUT" default:"30s"`

	EmbeddingEndpoint    string        `envconfig:"EMBEDDING_ENDPOINT" default:"http://127.0.0.1:8844/embed"`
	EmbeddingModel       string        `envconfig:"EMBEDDING_MODEL" default:"nomic-embed-text-v1.5"`
	EmbeddingDimensions  int           `envconfig:"EMBEDDING_DIMENSIONS" default:"768"`
	EmbeddingTimeout     time.Duration `envconfig:"EMBEDDING_TIMEOUT" default:"45s"`
	EmbeddingMaxLength   int           `envconfig:"EMBEDDING_MAX_LENGTH" default:"512"`
	EmbeddingQueryPrefix string        `envconfig:"EMBEDDING_QUERY_PREFIX" default:"search_document: "`

	DedupExactThreshold      float64 `envconfig:"DEDUP_EXACT_THRESHOLD" default:"0.90"`
	DedupSoftThreshold       float64 `envconfig:"DEDUP_SOFT_THRESHOLD" default:"0.60"`
	DedupExcludeOrigin       string  `envconfig:"DEDUP_EXCLUDE_ORIGIN" default:"google"`
	DedupRecordExactVariants bool    `envconfig:"DEDUP_RECORD_EXACT_VARIANTS" default:"false"`
	DedupWorkers             int     `envconfig:"DEDUP_WORKERS" default:"1"`
	ScrapeVersion            string  `envconfig:"SCRAPE_VERSION" default:"SNAP-v1"`

	FeedsFile        string        `envconfig:"FEEDS_FILE" default:"feeds.yaml"`
	FeedFetchTimeout time.Duration `envconfig:"FEED_FETCH_TIMEOUT" default:"20s"`
	FeedUserAgent    string        `envconfig:"FEED_USER_AGENT" default:"newsdedup/1.0 (+https://github.com/Aakash091-dark/news-scraper-new)"`
	FeedConcurrency  int           `envconfig:"FEED_CONCURRENCY" default:"4"`
	FeedFullText     bool          `envconfig:"FEED_FULL_TEXT" default:"false"`

	ClassifierRulesFile string `envconfig:"CLASSIFIER_RULES_FILE" default:""`
	// IngestLanguages lists accepted ISO 639-1 codes; empty accepts any.
	IngestLanguages string `envconfig:"INGEST_LANGUAGES" default:"en"`

	HTTPAddr           string `envconfig:"HTTP_ADDR" default:":8080"`
	CORSAllowedOrigins string `envconfig:"CORS_ALLOWED_ORIGINS" default:""`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DBMinConns < 0 {
		return fmt.Errorf("DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) cannot exceed DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.DBConnectRetries < 0 {
		return fmt.Errorf("DB_CONNECT_RETRIES must be >= 0")
	}
	if c.DBOperationTimeout <= 0 {
		return fmt.Errorf("DB_OPERATION_TIMEOUT must be > 0")
	}
	if strings.TrimSpace(c.EmbeddingEndpoint) == "" {
		return fmt.Errorf("EMBEDDING_ENDPOINT is required")
	}
	if c.EmbeddingDimensions < 1 {
		return fmt.Errorf("EMBEDDING_DIMENSIONS must be >= 1")
	}
	if c.EmbeddingTimeout <= 0 {
		return fmt.Errorf("EMBEDDING_TIMEOUT must be > 0")
	}
	if c.DedupExactThreshold <= 0 || c.DedupExactThreshold > 1 {
		return fmt.Errorf("DEDUP_EXACT_THRESHOLD must be in (0, 1]")
	}
	if c.DedupSoftThreshold < 0 || c.DedupSoftThreshold >= c.DedupExactThreshold {
		return fmt.Errorf("DEDUP_SOFT_THRESHOLD (%.4f) must be >= 0 and below DEDUP_EXACT_THRESHOLD (%.4f)", c.DedupSoftThreshold, c.DedupExactThreshold)
	}
	if c.DedupWorkers < 1 {
		return fmt.Errorf("DEDUP_WORKERS must be >= 1")
	}
	if c.FeedConcurrency < 1 {
		return fmt.Errorf("FEED_CONCURRENCY must be >= 1")
	}
	if strings.TrimSpace(c.ScrapeVersion) == "" {
		return fmt.Errorf("SCRAPE_VERSION is required")
	}
	return nil
}

func (c *Config) CORSAllowedOriginsList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.CORSAllowedOrigins)
}

func (c *Config) IngestLanguagesList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.IngestLanguages)
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		value := strings.TrimSpace(part)
		if value == "" {
			continue
		}
		if _, exists := seen[value]; exists {
			continue
		}
		seen[value] = struct{}{}
		values = append(values, value)
	}
	return values
}
