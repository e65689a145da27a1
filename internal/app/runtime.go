package app

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/Aakash091-dark/news-scraper-new/internal/classify"
	"github.com/Aakash091-dark/news-scraper-new/internal/cli"
	"github.com/Aakash091-dark/news-scraper-new/internal/config"
	"github.com/Aakash091-dark/news-scraper-new/internal/db"
	"github.com/Aakash091-dark/news-scraper-new/internal/embedding"
	"github.com/Aakash091-dark/news-scraper-new/internal/logging"
	"github.com/Aakash091-dark/news-scraper-new/internal/pipeline"
	"github.com/Aakash091-dark/news-scraper-new/internal/similarity"
)

// loadRuntime loads the env file, config and logger shared by every command.
// ok is false when the command should exit 1; the reason is already printed.
func loadRuntime(envLoader *cli.EnvLoader) (cfg *config.Config, logger zerolog.Logger, ok bool) {
	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return nil, zerolog.Nop(), false
	}

	logger, err = logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return nil, zerolog.Nop(), false
	}
	return cfg, logger, true
}

func openPool(ctx context.Context, cfg *config.Config, logger zerolog.Logger, command string) (*db.Pool, bool) {
	pool, err := db.NewPool(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Str("command", command).Msg("failed to connect to database")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return nil, false
	}
	return pool, true
}

func newEmbedder(cfg *config.Config) (*embedding.Client, error) {
	if cfg.EmbeddingDimensions != db.VectorDimensions {
		return nil, fmt.Errorf("EMBEDDING_DIMENSIONS=%d does not match the stored vector width %d", cfg.EmbeddingDimensions, db.VectorDimensions)
	}
	return embedding.NewClient(embedding.Options{
		Endpoint:       cfg.EmbeddingEndpoint,
		Model:          cfg.EmbeddingModel,
		Dimensions:     cfg.EmbeddingDimensions,
		MaxLength:      cfg.EmbeddingMaxLength,
		RequestTimeout: cfg.EmbeddingTimeout,
		Prefix:         cfg.EmbeddingQueryPrefix,
	}), nil
}

func pipelineOptions(cfg *config.Config, workers int) pipeline.Options {
	opts := pipeline.DefaultOptions()
	opts.Thresholds = similarity.Thresholds{
		Exact: cfg.DedupExactThreshold,
		Soft:  cfg.DedupSoftThreshold,
	}
	opts.ExcludeOrigin = cfg.DedupExcludeOrigin
	opts.RecordExactVariants = cfg.DedupRecordExactVariants
	opts.Workers = cfg.DedupWorkers
	if workers > 0 {
		opts.Workers = workers
	}
	opts.ScrapeVersion = cfg.ScrapeVersion
	opts.EmbedTimeout = cfg.EmbeddingTimeout
	opts.OperationTimeout = cfg.DBOperationTimeout
	return opts
}

func newPipeline(cfg *config.Config, pool *db.Pool, logger zerolog.Logger, workers int) (*pipeline.Service, error) {
	embedder, err := newEmbedder(cfg)
	if err != nil {
		return nil, err
	}
	return pipeline.NewService(pool, embedder, logger, pipelineOptions(cfg, workers)), nil
}

func newClassifier(cfg *config.Config) (*classify.Classifier, error) {
	if cfg.ClassifierRulesFile == "" {
		return classify.Default(), nil
	}
	rules, err := classify.LoadRules(cfg.ClassifierRulesFile)
	if err != nil {
		return nil, err
	}
	return classify.New(rules)
}
