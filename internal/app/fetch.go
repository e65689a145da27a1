package app

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Aakash091-dark/news-scraper-new/internal/cli"
	"github.com/Aakash091-dark/news-scraper-new/internal/config"
	"github.com/Aakash091-dark/news-scraper-new/internal/feeds"
	"github.com/Aakash091-dark/news-scraper-new/internal/globaltime"
	"github.com/Aakash091-dark/news-scraper-new/internal/reader"
	payloadschema "github.com/Aakash091-dark/news-scraper-new/schema"
)

type fetchSummary struct {
	Sources    int
	Failed     int
	Candidates int
	Duplicates int
	Written    int
}

func runFetch(args []string) int {
	fs := flag.NewFlagSet("fetch", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	feedsFile := fs.String("feeds", "", "Feed list YAML (defaults to FEEDS_FILE)")
	outDir := fs.String("out", "data", "Directory receiving one <source-key>.json file per feed")
	enrich := fs.Bool("enrich", false, "Fetch article pages and extract full text (also FEED_FULL_TEXT)")
	statsFile := fs.String("stats-file", "log/fetch_stats.csv", "CSV file receiving one row per source; empty disables")
	timeout := fs.Duration("timeout", 10*time.Minute, "Overall fetch timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	cfg, logger, ok := loadRuntime(envLoader)
	if !ok {
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	summary, err := fetchFeeds(ctx, cfg, logger, fetchParams{
		FeedsFile: *feedsFile,
		OutDir:    *outDir,
		Enrich:    *enrich,
		StatsFile: *statsFile,
	})
	if err != nil {
		logger.Error().Err(err).Msg("fetch failed")
		fmt.Fprintf(os.Stderr, "Fetch failed: %v\n", err)
		return 1
	}

	fmt.Printf(
		"fetch sources=%d failed=%d candidates=%d duplicates=%d written=%d out=%s\n",
		summary.Sources,
		summary.Failed,
		summary.Candidates,
		summary.Duplicates,
		summary.Written,
		strings.TrimSpace(*outDir),
	)
	if summary.Sources > 0 && summary.Failed == summary.Sources {
		return 1
	}
	return 0
}

type fetchParams struct {
	FeedsFile string
	OutDir    string
	Enrich    bool
	StatsFile string
}

// sourceStats is one line of the fetch statistics log.
type sourceStats struct {
	Key        string
	New        int
	Duplicates int
}

func fetchFeeds(ctx context.Context, cfg *config.Config, logger zerolog.Logger, params fetchParams) (fetchSummary, error) {
	path := strings.TrimSpace(params.FeedsFile)
	if path == "" {
		path = cfg.FeedsFile
	}
	sources, err := feeds.LoadSources(path)
	if err != nil {
		return fetchSummary{}, err
	}

	opts := feeds.FetcherOptions{
		Timeout:     cfg.FeedFetchTimeout,
		UserAgent:   cfg.FeedUserAgent,
		Concurrency: cfg.FeedConcurrency,
	}
	if params.Enrich || cfg.FeedFullText {
		opts.Extractor = reader.New(reader.Options{UserAgent: cfg.FeedUserAgent})
	}

	fetcher := feeds.NewFetcher(feeds.NewRegistry(), logger, opts)
	result := fetcher.FetchAll(ctx, sources)

	summary := fetchSummary{
		Sources:    len(result.Sources),
		Failed:     result.Failed,
		Candidates: result.Candidates,
		Duplicates: result.Duplicates,
	}
	var stats []sourceStats
	for _, sr := range result.Sources {
		if sr.Err != nil || len(sr.Candidates) == 0 {
			continue
		}
		added, err := writeSourceFile(params.OutDir, sr.Source.Key, sr.Candidates)
		if err != nil {
			return summary, err
		}
		summary.Written += added
		stats = append(stats, sourceStats{
			Key:        sr.Source.Key,
			New:        added,
			Duplicates: sr.Duplicates + len(sr.Candidates) - added,
		})
		logger.Info().
			Str("source", sr.Source.Key).
			Int("candidates", len(sr.Candidates)).
			Int("added", added).
			Msg("source file updated")
	}

	if path := strings.TrimSpace(params.StatsFile); path != "" && len(stats) > 0 {
		if err := appendFetchStats(path, globaltime.Now(), stats); err != nil {
			logger.Warn().Err(err).Str("file", path).Msg("fetch statistics not recorded")
		}
	}
	return summary, nil
}

var fetchStatsHeader = []string{"timestamp", "source", "new", "duplicates", "total"}

// appendFetchStats appends one row per source to a CSV log, writing the
// header when the file is new.
func appendFetchStats(path string, now time.Time, stats []sourceStats) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create stats directory: %w", err)
	}

	_, statErr := os.Stat(path)
	isNew := errors.Is(statErr, os.ErrNotExist)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open stats file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if isNew {
		if err := w.Write(fetchStatsHeader); err != nil {
			return fmt.Errorf("write stats header: %w", err)
		}
	}
	timestamp := now.Format("2006-01-02 15:04:05")
	for _, s := range stats {
		row := []string{
			timestamp,
			s.Key,
			strconv.Itoa(s.New),
			strconv.Itoa(s.Duplicates),
			strconv.Itoa(s.New + s.Duplicates),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write stats row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush stats file: %w", err)
	}
	return f.Close()
}

// writeSourceFile merges candidates into <dir>/<key>.json. Items whose title
// or link is already in the file are dropped; the file keeps its old items
// first. It returns how many items were appended.
func writeSourceFile(dir, key string, candidates []payloadschema.Candidate) (int, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return 0, fmt.Errorf("output directory is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create output directory %s: %w", dir, err)
	}

	path := filepath.Join(dir, key+".json")
	existing, err := readExistingCandidates(path)
	if err != nil {
		return 0, err
	}

	seenTitles := make(map[string]struct{}, len(existing))
	seenLinks := make(map[string]struct{}, len(existing))
	for _, c := range existing {
		seenTitles[c.Title] = struct{}{}
		seenLinks[c.Link] = struct{}{}
	}

	merged := existing
	added := 0
	for _, c := range candidates {
		if _, ok := seenTitles[c.Title]; ok {
			continue
		}
		if _, ok := seenLinks[c.Link]; ok {
			continue
		}
		seenTitles[c.Title] = struct{}{}
		seenLinks[c.Link] = struct{}{}
		merged = append(merged, c)
		added++
	}
	if added == 0 && len(existing) > 0 {
		return 0, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(merged); err != nil {
		return 0, fmt.Errorf("encode %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(dir, "."+key+"-*.json")
	if err != nil {
		return 0, fmt.Errorf("create temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return 0, fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return 0, fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return 0, fmt.Errorf("replace %s: %w", path, err)
	}
	return added, nil
}

// readExistingCandidates loads a previous output file. A missing file is
// empty; an unreadable one is an error so it is never silently overwritten.
func readExistingCandidates(path string) ([]payloadschema.Candidate, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}

	var existing []payloadschema.Candidate
	if err := json.Unmarshal(raw, &existing); err != nil {
		return nil, fmt.Errorf("decode existing %s: %w", path, err)
	}
	return existing, nil
}
