package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"

	"github.com/Aakash091-dark/news-scraper-new/internal/db"
	"github.com/Aakash091-dark/news-scraper-new/internal/similarity"
)

// stubEmbedder maps an article title (the first line of the embedding input)
// to a fixed vector.
type stubEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	fail    map[string]error
	calls   atomic.Int32
}

func newStubEmbedder() *stubEmbedder {
	return &stubEmbedder{vectors: map[string][]float32{}, fail: map[string]error{}}
}

func (e *stubEmbedder) set(title string, vector []float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vectors[title] = vector
}

func (e *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.calls.Add(1)
	title, _, _ := strings.Cut(text, "\n\n")

	e.mu.Lock()
	defer e.mu.Unlock()
	if err, ok := e.fail[title]; ok {
		return nil, err
	}
	vector, ok := e.vectors[title]
	if !ok {
		return nil, fmt.Errorf("no stub vector for %q", title)
	}
	return vector, nil
}

func (e *stubEmbedder) Dimensions() int { return db.VectorDimensions }

func (e *stubEmbedder) Model() string { return "stub" }

func openTestPool(t *testing.T) *db.Pool {
	t.Helper()

	dsn := "file:" + filepath.Join(t.TempDir(), "pipeline.db") + "?_busy_timeout=5000&_foreign_keys=1"
	pool, err := db.Open(context.Background(), sqlite.Open(dsn), db.PoolOptions{
		LogLevel: "silent",
		MaxConns: 1,
		Logger:   zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("open test pool: %v", err)
	}
	t.Cleanup(func() { _ = pool.Close() })
	return pool
}

func vec(lead ...float32) []float32 {
	v := make([]float32, db.VectorDimensions)
	copy(v, lead)
	return v
}

func article(title, link string) Article {
	return Article{
		Title:       title,
		Link:        link,
		Description: "Short summary of " + title,
		PubDate:     "12-06-2025",
		FullText:    "Body of " + title,
		Keywords:    []string{"india", "policy"},
		Categories:  []db.Category{{Category: "India", Subcategory: "Politics"}},
	}
}

func countRows(t *testing.T, pool *db.Pool, table string) int64 {
	t.Helper()
	var n int64
	if err := pool.GORM().Table(table).Count(&n).Error; err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func newTestService(t *testing.T, opts Options) (*Service, *db.Pool, *stubEmbedder) {
	t.Helper()
	pool := openTestPool(t)
	embedder := newStubEmbedder()
	return NewService(pool, embedder, zerolog.Nop(), opts), pool, embedder
}

func mustProcess(t *testing.T, svc *Service, a Article) Outcome {
	t.Helper()
	outcome, err := svc.Process(context.Background(), a)
	if err != nil {
		t.Fatalf("process %s: %v", a.Link, err)
	}
	return outcome
}

func TestProcessEmptyCorpusCreatesCanonical(t *testing.T) {
	t.Parallel()

	svc, pool, embedder := newTestService(t, DefaultOptions())
	embedder.set("Parliament passes budget", vec(1))

	outcome := mustProcess(t, svc, article("Parliament passes budget", "https://www.thehindu.com/news/budget.ece?utm_source=rss"))
	if outcome.Decision != DecisionNew {
		t.Fatalf("decision = %s, want new", outcome.Decision)
	}
	if outcome.Link != "https://www.thehindu.com/news/budget.ece" {
		t.Fatalf("link not normalized: %q", outcome.Link)
	}
	if outcome.CanonicalID == "" || outcome.VariantID == "" {
		t.Fatalf("expected canonical and variant ids, got %+v", outcome)
	}

	for table, want := range map[string]int64{
		"canonical_articles": 1,
		"article_variants":   1,
		"article_vectors":    1,
		"article_full_texts": 1,
		"article_keywords":   2,
		"article_categories": 1,
	} {
		if got := countRows(t, pool, table); got != want {
			t.Fatalf("%s rows = %d, want %d", table, got, want)
		}
	}

	var source string
	if err := pool.QueryRow(context.Background(), `SELECT source FROM article_variants WHERE id = ?`, outcome.VariantID).Scan(&source); err != nil {
		t.Fatalf("read variant source: %v", err)
	}
	if source != "thehindu" {
		t.Fatalf("inferred source = %q, want thehindu", source)
	}
}

func TestProcessSoftMatchCreatesVariant(t *testing.T) {
	t.Parallel()

	svc, pool, embedder := newTestService(t, DefaultOptions())
	embedder.set("RBI holds repo rate", vec(1))
	embedder.set("Repo rate unchanged at 6.5%", vec(3, 2, 1, 1, 1))

	first := mustProcess(t, svc, article("RBI holds repo rate", "https://example.com/rbi-1"))
	second := mustProcess(t, svc, article("Repo rate unchanged at 6.5%", "https://example.org/rbi-2"))

	if second.Decision != DecisionVariant {
		t.Fatalf("decision = %s, want variant", second.Decision)
	}
	if second.CanonicalID != first.CanonicalID {
		t.Fatalf("variant attached to %q, want %q", second.CanonicalID, first.CanonicalID)
	}
	if second.Soft == nil || second.Soft.Score != 0.75 {
		t.Fatalf("expected soft score 0.75, got %+v", second.Soft)
	}
	if got := countRows(t, pool, "canonical_articles"); got != 1 {
		t.Fatalf("canonical rows = %d, want 1", got)
	}
	if got := countRows(t, pool, "article_variants"); got != 2 {
		t.Fatalf("variant rows = %d, want 2", got)
	}
	if got := countRows(t, pool, "article_vectors"); got != 1 {
		t.Fatalf("vector rows = %d, want 1", got)
	}
}

func TestProcessExactOnlyMatchIsIgnored(t *testing.T) {
	t.Parallel()

	svc, pool, embedder := newTestService(t, DefaultOptions())
	embedder.set("Chandrayaan lands", vec(1))
	embedder.set("Chandrayaan-3 touches down", vec(9, 3, 3, 1))

	first := mustProcess(t, svc, article("Chandrayaan lands", "https://example.com/moon"))
	second := mustProcess(t, svc, article("Chandrayaan-3 touches down", "https://example.net/moon"))

	if second.Decision != DecisionIgnored {
		t.Fatalf("decision = %s, want ignored", second.Decision)
	}
	if second.CanonicalID != first.CanonicalID {
		t.Fatalf("ignored outcome should name the matched story")
	}
	if got := countRows(t, pool, "article_variants"); got != 1 {
		t.Fatalf("variant rows = %d, want 1", got)
	}
}

func TestProcessRecordsExactVariantsWhenEnabled(t *testing.T) {
	t.Parallel()

	opts := DefaultOptions()
	opts.RecordExactVariants = true
	svc, pool, embedder := newTestService(t, opts)
	embedder.set("Chandrayaan lands", vec(1))
	embedder.set("Chandrayaan-3 touches down", vec(1))

	first := mustProcess(t, svc, article("Chandrayaan lands", "https://example.com/moon"))
	second := mustProcess(t, svc, article("Chandrayaan-3 touches down", "https://example.net/moon"))

	if second.Decision != DecisionVariant || second.CanonicalID != first.CanonicalID {
		t.Fatalf("expected variant of %s, got %+v", first.CanonicalID, second)
	}
	if got := countRows(t, pool, "canonical_articles"); got != 1 {
		t.Fatalf("canonical rows = %d, want 1", got)
	}
}

func TestProcessSoftMatchWinsOverExact(t *testing.T) {
	t.Parallel()

	svc, pool, embedder := newTestService(t, DefaultOptions())
	// cos(a, b) = 0.447, so both are stored as stories. The incoming vector
	// scores 0.949 against a and 0.707 against b.
	embedder.set("Story A", vec(1))
	embedder.set("Story B", vec(1, 2))
	embedder.set("Incoming", vec(3, 1))

	a := mustProcess(t, svc, article("Story A", "https://example.com/a"))
	b := mustProcess(t, svc, article("Story B", "https://example.com/b"))
	if a.Decision != DecisionNew || b.Decision != DecisionNew {
		t.Fatalf("expected two stories, got %s and %s", a.Decision, b.Decision)
	}

	outcome := mustProcess(t, svc, article("Incoming", "https://example.com/c"))
	if outcome.Decision != DecisionVariant {
		t.Fatalf("decision = %s, want variant", outcome.Decision)
	}
	if outcome.ExactID() != a.CanonicalID || outcome.CanonicalID != b.CanonicalID {
		t.Fatalf("expected variant of the soft match %s, got %+v", b.CanonicalID, outcome)
	}
	if got := countRows(t, pool, "article_vectors"); got != 2 {
		t.Fatalf("vector rows = %d, want 2", got)
	}
}

func TestProcessNovelArticleCreatesSecondCanonical(t *testing.T) {
	t.Parallel()

	svc, pool, embedder := newTestService(t, DefaultOptions())
	embedder.set("Monsoon reaches Kerala", vec(1))
	embedder.set("Sensex crosses 80,000", vec(0, 1))

	first := mustProcess(t, svc, article("Monsoon reaches Kerala", "https://example.com/monsoon"))
	second := mustProcess(t, svc, article("Sensex crosses 80,000", "https://example.com/sensex"))

	if second.Decision != DecisionNew || second.CanonicalID == first.CanonicalID {
		t.Fatalf("expected a new story, got %+v", second)
	}
	if got := countRows(t, pool, "canonical_articles"); got != 2 {
		t.Fatalf("canonical rows = %d, want 2", got)
	}
}

func TestProcessKnownURLSkipsEmbedding(t *testing.T) {
	t.Parallel()

	svc, _, embedder := newTestService(t, DefaultOptions())
	embedder.set("Election results", vec(1))

	mustProcess(t, svc, article("Election results", "https://example.com/results"))
	calls := embedder.calls.Load()

	again := mustProcess(t, svc, article("Election results", "https://example.com/results/?fbclid=abc"))
	if again.Decision != DecisionKnownURL {
		t.Fatalf("decision = %s, want known_url", again.Decision)
	}
	if embedder.calls.Load() != calls {
		t.Fatalf("embedder called for a stored url")
	}
}

func TestProcessRescoreKnownURLReportsConflict(t *testing.T) {
	t.Parallel()

	opts := DefaultOptions()
	opts.RescoreKnownURLs = true
	svc, pool, embedder := newTestService(t, opts)
	embedder.set("Election results", vec(1))

	first := mustProcess(t, svc, article("Election results", "https://example.com/results"))
	again := mustProcess(t, svc, article("Election results", "https://example.com/results"))

	if again.Decision != DecisionConflict {
		t.Fatalf("decision = %s, want conflict", again.Decision)
	}
	if again.CanonicalID != first.CanonicalID || again.VariantID != first.VariantID {
		t.Fatalf("conflict should resolve existing ids, got %+v want %+v", again, first)
	}
	if got := countRows(t, pool, "article_variants"); got != 1 {
		t.Fatalf("variant rows = %d, want 1", got)
	}
}

func TestProcessZeroNormEmbeddingFails(t *testing.T) {
	t.Parallel()

	svc, pool, embedder := newTestService(t, DefaultOptions())
	embedder.set("Blank vector", vec())

	_, err := svc.Process(context.Background(), article("Blank vector", "https://example.com/zero"))
	if !errors.Is(err, similarity.ErrZeroNormQuery) {
		t.Fatalf("expected ErrZeroNormQuery, got %v", err)
	}
	if got := countRows(t, pool, "canonical_articles"); got != 0 {
		t.Fatalf("canonical rows = %d, want 0", got)
	}
}

func TestProcessRejectsInvalidArticles(t *testing.T) {
	t.Parallel()

	svc, _, embedder := newTestService(t, DefaultOptions())

	cases := []Article{
		{Title: "  ", Link: "https://example.com/a"},
		{Title: "No link", Link: ""},
		{Title: "Relative", Link: "/news/a"},
		{Title: "FTP", Link: "ftp://example.com/a"},
	}
	for _, tc := range cases {
		if _, err := svc.Process(context.Background(), tc); !errors.Is(err, ErrInvalidArticle) {
			t.Fatalf("expected ErrInvalidArticle for %+v, got %v", tc, err)
		}
	}
	if embedder.calls.Load() != 0 {
		t.Fatalf("embedder should not be called for invalid articles")
	}
}

func TestProcessSkipsMalformedStoredVector(t *testing.T) {
	t.Parallel()

	svc, pool, embedder := newTestService(t, DefaultOptions())
	ctx := context.Background()

	if err := pool.GORM().Exec(
		`INSERT INTO canonical_articles (id, title, url, description, news_source, publish_date, created_at) VALUES (?, ?, ?, '', '', '', CURRENT_TIMESTAMP)`,
		"broken", "Broken row", "https://example.com/broken",
	).Error; err != nil {
		t.Fatalf("seed canonical: %v", err)
	}
	if err := pool.GORM().Exec(
		`INSERT INTO article_vectors (article_id, embedding, metadata, created_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)`,
		"broken", "[1,abc]", "https://example.com/broken",
	).Error; err != nil {
		t.Fatalf("seed malformed vector: %v", err)
	}

	embedder.set("Fresh story", vec(1))
	outcome, err := svc.Process(ctx, article("Fresh story", "https://example.com/fresh"))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if outcome.Decision != DecisionNew {
		t.Fatalf("decision = %s, want new", outcome.Decision)
	}
	if outcome.Skipped != 1 || outcome.Scanned != 0 {
		t.Fatalf("expected one skipped vector and none scanned, got %+v", outcome)
	}
}

func TestProcessExcludesConfiguredOrigin(t *testing.T) {
	t.Parallel()

	svc, pool, embedder := newTestService(t, DefaultOptions())
	embedder.set("Aggregated copy", vec(1))
	embedder.set("Publisher copy", vec(1))

	mustProcess(t, svc, article("Aggregated copy", "https://news.google.com/articles/abc"))
	outcome := mustProcess(t, svc, article("Publisher copy", "https://example.com/story"))

	if outcome.Decision != DecisionNew {
		t.Fatalf("decision = %s, want new (google vectors excluded)", outcome.Decision)
	}
	if got := countRows(t, pool, "canonical_articles"); got != 2 {
		t.Fatalf("canonical rows = %d, want 2", got)
	}
}

func TestProcessBatchCountsAndContinuesPastFailures(t *testing.T) {
	t.Parallel()

	svc, pool, embedder := newTestService(t, DefaultOptions())
	embedder.set("Heatwave grips Delhi", vec(1))
	embedder.set("Delhi records 47C", vec(4, 2, 2, 1))
	embedder.set("Delhi heatwave continues", vec(1))
	embedder.fail["Embedding outage"] = errors.New("connection refused")

	batch := []Article{
		article("Heatwave grips Delhi", "https://example.com/heat-1"),
		{Title: "", Link: "https://example.com/untitled"},
		article("Embedding outage", "https://example.com/outage"),
		article("Delhi records 47C", "https://example.com/heat-2"),
		article("Delhi heatwave continues", "https://example.com/heat-3"),
		article("Heatwave grips Delhi", "https://example.com/heat-1"),
	}

	result, err := svc.ProcessBatch(context.Background(), batch)
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if result.Processed != 6 || result.New != 1 || result.Variants != 1 || result.Ignored != 1 || result.KnownURLs != 1 || result.Failed != 2 {
		t.Fatalf("unexpected batch counts: %+v", result)
	}
	if result.Failures[0].Index != 1 || result.Failures[1].Index != 2 {
		t.Fatalf("unexpected failures: %+v", result.Failures)
	}
	if got := countRows(t, pool, "article_variants"); got != 2 {
		t.Fatalf("variant rows = %d, want 2", got)
	}
}

func TestProcessBatchParallelSameURLWritesOnce(t *testing.T) {
	t.Parallel()

	opts := DefaultOptions()
	opts.Workers = 4
	svc, pool, embedder := newTestService(t, opts)
	embedder.set("Breaking: cabinet reshuffle", vec(1))

	batch := make([]Article, 8)
	for i := range batch {
		batch[i] = article("Breaking: cabinet reshuffle", "https://example.com/reshuffle")
	}

	result, err := svc.ProcessBatch(context.Background(), batch)
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if result.Failed != 0 {
		t.Fatalf("unexpected failures: %+v", result.Failures)
	}
	if result.New != 1 || result.New+result.KnownURLs+result.Conflicts != len(batch) {
		t.Fatalf("expected one writer and the rest no-ops, got %+v", result)
	}
	if got := countRows(t, pool, "canonical_articles"); got != 1 {
		t.Fatalf("canonical rows = %d, want 1", got)
	}
	if got := countRows(t, pool, "article_variants"); got != 1 {
		t.Fatalf("variant rows = %d, want 1", got)
	}
}

func TestNilServiceIsRejected(t *testing.T) {
	t.Parallel()

	var svc *Service
	if _, err := svc.Process(context.Background(), Article{}); err == nil {
		t.Fatalf("expected error from nil service")
	}
	if _, err := svc.ProcessBatch(context.Background(), nil); err == nil {
		t.Fatalf("expected error from nil service")
	}
}
