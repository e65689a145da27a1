package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Aakash091-dark/news-scraper-new/internal/cli"
	"github.com/Aakash091-dark/news-scraper-new/internal/langdetect"
)

func runProcess(args []string) int {
	fs := flag.NewFlagSet("process", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	feedsFile := fs.String("feeds", "", "Feed list YAML (defaults to FEEDS_FILE)")
	dir := fs.String("dir", "data", "Directory the fetch step writes and the ingest step reads")
	enrich := fs.Bool("enrich", true, "Fetch article pages and extract full text")
	statsFile := fs.String("stats-file", "log/fetch_stats.csv", "CSV file receiving one row per source; empty disables")
	workers := fs.Int("workers", 0, "Parallel dedup workers (defaults to DEDUP_WORKERS)")
	timeout := fs.Duration("timeout", time.Hour, "Overall run timeout")

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

	fetched, err := fetchFeeds(ctx, cfg, logger, fetchParams{
		FeedsFile: *feedsFile,
		OutDir:    *dir,
		Enrich:    *enrich,
		StatsFile: *statsFile,
	})
	if err != nil {
		logger.Error().Err(err).Msg("process fetch step failed")
		fmt.Fprintf(os.Stderr, "Fetch failed: %v\n", err)
		return 1
	}
	fmt.Printf(
		"fetch sources=%d failed=%d candidates=%d duplicates=%d written=%d out=%s\n",
		fetched.Sources,
		fetched.Failed,
		fetched.Candidates,
		fetched.Duplicates,
		fetched.Written,
		strings.TrimSpace(*dir),
	)

	return ingestAndReport(ctx, cfg, logger, ingestParams{
		Dir:       *dir,
		Recursive: false,
		Workers:   *workers,
		Languages: langdetect.NewFilter(cfg.IngestLanguagesList()),
	})
}
