package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Aakash091-dark/news-scraper-new/internal/classify"
	"github.com/Aakash091-dark/news-scraper-new/internal/cli"
	"github.com/Aakash091-dark/news-scraper-new/internal/config"
	"github.com/Aakash091-dark/news-scraper-new/internal/globaltime"
	"github.com/Aakash091-dark/news-scraper-new/internal/langdetect"
	"github.com/Aakash091-dark/news-scraper-new/internal/pipeline"
)

type batchProcessor interface {
	ProcessBatch(ctx context.Context, articles []pipeline.Article) (pipeline.BatchResult, error)
}

type ingestSummary struct {
	Files        int
	InvalidFiles int
	Invalid      int
	Skipped      int
	OffLanguage  int
	Elapsed      time.Duration
	Batch        pipeline.BatchResult
}

type ingestParams struct {
	Dir       string
	Recursive bool
	Workers   int
	// Languages drops candidates written in other languages; nil keeps all.
	Languages *langdetect.Filter
}

func runIngest(args []string) int {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	dir := fs.String("dir", "data", "Directory containing candidate .json files")
	recursive := fs.Bool("recursive", true, "Recursively scan subdirectories")
	workers := fs.Int("workers", 0, "Parallel dedup workers (defaults to DEDUP_WORKERS)")
	timeout := fs.Duration("timeout", time.Hour, "Overall ingest timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *workers < 0 {
		fmt.Fprintln(os.Stderr, "--workers must be >= 0")
		return 2
	}

	cfg, logger, ok := loadRuntime(envLoader)
	if !ok {
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	return ingestAndReport(ctx, cfg, logger, ingestParams{
		Dir:       *dir,
		Recursive: *recursive,
		Workers:   *workers,
		Languages: langdetect.NewFilter(cfg.IngestLanguagesList()),
	})
}

// ingestAndReport opens the store, runs the pipeline over every candidate
// file and prints the summary line.
func ingestAndReport(ctx context.Context, cfg *config.Config, logger zerolog.Logger, params ingestParams) int {
	classifier, err := newClassifier(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load classifier rules: %v\n", err)
		return 1
	}

	pool, ok := openPool(ctx, cfg, logger, "ingest")
	if !ok {
		return 1
	}
	defer pool.Close()

	service, err := newPipeline(cfg, pool, logger, params.Workers)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build pipeline: %v\n", err)
		return 1
	}

	summary, err := ingestFiles(ctx, service, classifier, logger, params)
	if err != nil {
		logger.Error().Err(err).Msg("ingest failed")
		fmt.Fprintf(os.Stderr, "Ingest failed: %v\n", err)
		return 1
	}

	logger.Info().
		Int("files", summary.Files).
		Int("processed", summary.Batch.Processed).
		Int("new", summary.Batch.New).
		Int("variants", summary.Batch.Variants).
		Int("ignored", summary.Batch.Ignored).
		Int("conflicts", summary.Batch.Conflicts).
		Int("known", summary.Batch.KnownURLs).
		Int("skipped", summary.Skipped).
		Int("off_language", summary.OffLanguage).
		Int("failed", summary.Batch.Failed).
		Dur("elapsed", summary.Elapsed).
		Msg("ingest completed")
	fmt.Printf(
		"ingest processed=%d new=%d variants=%d ignored=%d conflicts=%d known=%d skipped=%d off_language=%d failed=%d\n",
		summary.Batch.Processed,
		summary.Batch.New,
		summary.Batch.Variants,
		summary.Batch.Ignored,
		summary.Batch.Conflicts,
		summary.Batch.KnownURLs,
		summary.Skipped,
		summary.OffLanguage,
		summary.Batch.Failed,
	)
	for _, failure := range summary.Batch.Failures {
		fmt.Fprintf(os.Stderr, "FAILED %s: %v\n", failure.Link, failure.Err)
	}

	if summary.InvalidFiles > 0 || summary.Batch.Failed > 0 {
		return 1
	}
	return 0
}

func ingestFiles(ctx context.Context, processor batchProcessor, classifier *classify.Classifier, logger zerolog.Logger, params ingestParams) (ingestSummary, error) {
	files, err := collectJSONFiles(strings.TrimSpace(params.Dir), params.Recursive)
	if err != nil {
		return ingestSummary{}, err
	}

	started := globaltime.Now()
	summary := ingestSummary{Files: len(files)}
	var articles []pipeline.Article
	for _, path := range files {
		candidates, itemErrors, err := readCandidateFile(path)
		if err != nil {
			summary.InvalidFiles++
			logger.Warn().Err(err).Str("file", path).Msg("candidate file rejected")
			continue
		}
		for _, itemErr := range itemErrors {
			logger.Warn().Err(itemErr.Err).Str("file", path).Int("index", itemErr.Index).Msg("candidate rejected")
		}
		summary.Invalid += len(itemErrors)

		for _, candidate := range candidates {
			if candidate.FullText() == "" {
				summary.Skipped++
				continue
			}
			if code, ok := params.Languages.Allows(candidate.Title + ". " + candidate.Description); !ok {
				summary.OffLanguage++
				logger.Debug().Str("link", candidate.Link).Str("language", code).Msg("candidate language not accepted")
				continue
			}
			article := pipeline.FromCandidate(candidate)
			if len(article.Categories) == 0 && classifier != nil {
				article.Categories = classifier.Classify(article.Title, article.Description)
			}
			articles = append(articles, article)
		}
	}

	if len(articles) == 0 {
		summary.Elapsed = globaltime.Since(started)
		return summary, nil
	}

	batch, err := processor.ProcessBatch(ctx, articles)
	summary.Batch = batch
	summary.Elapsed = globaltime.Since(started)
	if err != nil {
		return summary, fmt.Errorf("process batch: %w", err)
	}
	return summary, nil
}
