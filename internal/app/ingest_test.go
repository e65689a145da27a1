package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Aakash091-dark/news-scraper-new/internal/classify"
	"github.com/Aakash091-dark/news-scraper-new/internal/globaltime"
	"github.com/Aakash091-dark/news-scraper-new/internal/langdetect"
	"github.com/Aakash091-dark/news-scraper-new/internal/pipeline"
)

type fakeBatchProcessor struct {
	articles []pipeline.Article
	err      error
}

func (f *fakeBatchProcessor) ProcessBatch(_ context.Context, articles []pipeline.Article) (pipeline.BatchResult, error) {
	f.articles = append(f.articles, articles...)
	if f.err != nil {
		return pipeline.BatchResult{}, f.err
	}
	return pipeline.BatchResult{Processed: len(articles), New: len(articles)}, nil
}

func TestIngestFilesFiltersAndClassifies(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	mustWriteFile(t, filepath.Join(root, "thehindu_sports.json"), `[
		{"title":"India win the cricket series","link":"https://www.thehindu.com/sport/1.ece","full_news":"Full match report."},
		{"title":"No body yet","link":"https://www.thehindu.com/sport/2.ece"},
		{"title":"","link":"https://www.thehindu.com/sport/3.ece","full_news":"x"}
	]`)
	mustWriteFile(t, filepath.Join(root, "ndtv_business.json"), `[
		{"title":"Markets close higher","link":"https://www.ndtv.com/business/1","full_news":"Body.",
		 "categories":[{"category":"Business","subcategory":"Markets"}]}
	]`)
	mustWriteFile(t, filepath.Join(root, "broken.json"), `[`)

	processor := &fakeBatchProcessor{}
	summary, err := ingestFiles(context.Background(), processor, classify.Default(), zerolog.Nop(), ingestParams{
		Dir:       root,
		Recursive: true,
	})
	if err != nil {
		t.Fatalf("ingestFiles failed: %v", err)
	}

	if summary.Files != 3 || summary.InvalidFiles != 1 {
		t.Fatalf("unexpected file counts: %+v", summary)
	}
	if summary.Invalid != 1 || summary.Skipped != 1 {
		t.Fatalf("invalid=%d skipped=%d, want 1 and 1", summary.Invalid, summary.Skipped)
	}
	if len(processor.articles) != 2 || summary.Batch.New != 2 {
		t.Fatalf("expected 2 articles processed, got %d", len(processor.articles))
	}

	// files are read in sorted order: ndtv_business before thehindu_sports
	business := processor.articles[0]
	if len(business.Categories) != 1 || business.Categories[0].Subcategory != "Markets" {
		t.Fatalf("expected payload categories to be kept, got %+v", business.Categories)
	}
	sports := processor.articles[1]
	if len(sports.Categories) == 0 || sports.Categories[0].Category != "Sports" {
		t.Fatalf("expected classifier to assign Sports, got %+v", sports.Categories)
	}
}

func TestIngestFilesSkipsProcessingWhenNothingUsable(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	mustWriteFile(t, filepath.Join(root, "a.json"), `[{"title":"T","link":"https://example.com/a"}]`)

	processor := &fakeBatchProcessor{}
	summary, err := ingestFiles(context.Background(), processor, nil, zerolog.Nop(), ingestParams{Dir: root})
	if err != nil {
		t.Fatalf("ingestFiles failed: %v", err)
	}
	if summary.Skipped != 1 || len(processor.articles) != 0 {
		t.Fatalf("expected one skipped candidate and no processing, got %+v", summary)
	}
}

func TestIngestFilesReportsBatchError(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	mustWriteFile(t, filepath.Join(root, "a.json"), `[{"title":"T","link":"https://example.com/a","full_news":"b"}]`)

	boom := errors.New("pipeline service is not initialized")
	_, err := ingestFiles(context.Background(), &fakeBatchProcessor{err: boom}, nil, zerolog.Nop(), ingestParams{Dir: root})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped batch error, got %v", err)
	}
}

func TestIngestFilesDropsOtherLanguages(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	mustWriteFile(t, filepath.Join(root, "a.json"), `[{
		"title":"The Reserve Bank of India kept the repo rate unchanged on Friday",
		"description":"The monetary policy committee cited easing inflation and steady growth across the economy.",
		"link":"https://example.com/rbi","full_news":"Body."
	}]`)

	processor := &fakeBatchProcessor{}
	summary, err := ingestFiles(context.Background(), processor, nil, zerolog.Nop(), ingestParams{
		Dir:       root,
		Languages: langdetect.NewFilter([]string{"hi"}),
	})
	if err != nil {
		t.Fatalf("ingestFiles failed: %v", err)
	}
	if summary.OffLanguage != 1 || len(processor.articles) != 0 {
		t.Fatalf("expected english candidate to be dropped, got %+v", summary)
	}
}

func TestIngestFilesTimesRunOnProcessClock(t *testing.T) {
	globaltime.SetMockTime(time.Date(2025, 6, 6, 9, 0, 0, 0, time.UTC))
	defer globaltime.ResetTime()

	root := t.TempDir()
	mustWriteFile(t, filepath.Join(root, "a.json"), `[{"title":"T","link":"https://example.com/a","full_news":"b"}]`)

	summary, err := ingestFiles(context.Background(), &fakeBatchProcessor{}, nil, zerolog.Nop(), ingestParams{Dir: root})
	if err != nil {
		t.Fatalf("ingestFiles failed: %v", err)
	}
	if summary.Elapsed != 0 {
		t.Fatalf("elapsed = %v, want 0 under a pinned clock", summary.Elapsed)
	}
}
