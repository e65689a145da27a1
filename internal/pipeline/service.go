package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Aakash091-dark/news-scraper-new/internal/db"
	"github.com/Aakash091-dark/news-scraper-new/internal/embedding"
	"github.com/Aakash091-dark/news-scraper-new/internal/globaltime"
	"github.com/Aakash091-dark/news-scraper-new/internal/similarity"
)

const (
	DefaultWorkers          = 1
	DefaultExcludeOrigin    = "google"
	defaultEmbedTimeout     = 45 * time.Second
	defaultOperationTimeout = 30 * time.Second
)

// ErrInvalidArticle marks candidates rejected before any I/O.
var ErrInvalidArticle = errors.New("invalid article")

// Store is the persistence surface the pipeline needs. *db.Pool satisfies it.
type Store interface {
	ValueExists(ctx context.Context, table, column string, value any) (bool, error)
	ListCandidateVectors(ctx context.Context, excludeURL, excludeOrigin string) ([]db.StoredVector, error)
	InsertNewCanonical(ctx context.Context, article db.NewArticle, vector []float32) (db.WriteResult, error)
	InsertDuplicateVariant(ctx context.Context, canonicalID string, article db.NewArticle) (db.WriteResult, error)
}

type Decision string

const (
	DecisionNew      Decision = "new"
	DecisionVariant  Decision = "variant"
	DecisionIgnored  Decision = "ignored"
	DecisionKnownURL Decision = "known_url"
	// DecisionConflict: another writer stored the same URL first.
	DecisionConflict Decision = "conflict"
)

type Options struct {
	Thresholds    similarity.Thresholds
	ExcludeOrigin string
	// RecordExactVariants stores exact-only matches as variants instead of
	// ignoring them.
	RecordExactVariants bool
	// RescoreKnownURLs skips the stored-URL short circuit.
	RescoreKnownURLs bool
	Workers          int
	ScrapeVersion    string
	EmbedTimeout     time.Duration
	OperationTimeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		Thresholds:       similarity.DefaultThresholds(),
		ExcludeOrigin:    DefaultExcludeOrigin,
		Workers:          DefaultWorkers,
		ScrapeVersion:    db.DefaultScrapeVersion,
		EmbedTimeout:     defaultEmbedTimeout,
		OperationTimeout: defaultOperationTimeout,
	}
}

type Service struct {
	store    Store
	embedder embedding.Provider
	opts     Options
	logger   zerolog.Logger
}

// Outcome is the result of processing one article.
type Outcome struct {
	Link        string
	Decision    Decision
	CanonicalID string
	VariantID   string
	Exact       *similarity.Match
	Soft        *similarity.Match
	Scanned     int
	Skipped     int
}

type Failure struct {
	Index int
	Link  string
	Err   error
}

type BatchResult struct {
	Processed int
	New       int
	Variants  int
	Ignored   int
	KnownURLs int
	Conflicts int
	Failed    int
	Failures  []Failure
	Outcomes  []Outcome
}

func NewService(store Store, embedder embedding.Provider, logger zerolog.Logger, opts Options) *Service {
	return &Service{
		store:    store,
		embedder: embedder,
		opts:     normalizeOptions(opts),
		logger:   logger.With().Str("component", "pipeline").Logger(),
	}
}

func normalizeOptions(opts Options) Options {
	defaults := DefaultOptions()
	if opts.Thresholds == (similarity.Thresholds{}) {
		opts.Thresholds = defaults.Thresholds
	}
	opts.ExcludeOrigin = strings.TrimSpace(opts.ExcludeOrigin)
	if opts.Workers <= 0 {
		opts.Workers = defaults.Workers
	}
	if strings.TrimSpace(opts.ScrapeVersion) == "" {
		opts.ScrapeVersion = defaults.ScrapeVersion
	}
	if opts.EmbedTimeout <= 0 {
		opts.EmbedTimeout = defaults.EmbedTimeout
	}
	if opts.OperationTimeout <= 0 {
		opts.OperationTimeout = defaults.OperationTimeout
	}
	return opts
}

// Process scores one article against the stored corpus and records it as a
// new story, a variant of an existing one, or nothing. The embedding is
// computed before any transaction is opened.
func (s *Service) Process(ctx context.Context, article Article) (Outcome, error) {
	if s == nil || s.store == nil || s.embedder == nil {
		return Outcome{}, fmt.Errorf("pipeline service is not initialized")
	}
	if err := s.opts.Thresholds.Validate(); err != nil {
		return Outcome{}, err
	}

	if normalizeText(article.Title) == "" {
		return Outcome{}, fmt.Errorf("%w: title is required", ErrInvalidArticle)
	}
	link, host := normalizeLink(article.Link)
	if link == "" {
		return Outcome{}, fmt.Errorf("%w: link %q is not an absolute http(s) url", ErrInvalidArticle, article.Link)
	}
	if strings.TrimSpace(article.Source) == "" {
		article.Source = inferSource(host)
	}

	outcome := Outcome{Link: link}
	log := s.logger.With().Str("link", link).Logger()

	if !s.opts.RescoreKnownURLs {
		exists, err := s.urlStored(ctx, link)
		if err != nil {
			return Outcome{}, err
		}
		if exists {
			outcome.Decision = DecisionKnownURL
			log.Debug().Msg("url already stored")
			return outcome, nil
		}
	}

	vector, err := s.embed(ctx, article.embeddingInput())
	if err != nil {
		return Outcome{}, err
	}

	candidates, malformed, err := s.loadCandidates(ctx, link, len(vector), log)
	if err != nil {
		return Outcome{}, err
	}

	result, err := similarity.Score(vector, candidates, s.opts.Thresholds)
	if err != nil {
		return Outcome{}, fmt.Errorf("score article: %w", err)
	}
	for _, skipped := range result.Skipped {
		log.Warn().Err(skipped.Err).Str("article_id", skipped.ID).Msg("skipping unusable stored vector")
	}

	outcome.Exact = result.Exact
	outcome.Soft = result.Soft
	outcome.Scanned = result.Scanned
	outcome.Skipped = malformed + len(result.Skipped)

	record := article.toNewArticle(link, s.opts.ScrapeVersion)

	var write db.WriteResult
	switch {
	case result.Soft != nil:
		write, err = s.insertVariant(ctx, result.Soft.ID, record)
		outcome.Decision = DecisionVariant
	case result.Exact != nil && s.opts.RecordExactVariants:
		write, err = s.insertVariant(ctx, result.Exact.ID, record)
		outcome.Decision = DecisionVariant
	case result.Exact != nil:
		outcome.Decision = DecisionIgnored
		outcome.CanonicalID = result.Exact.ID
		log.Debug().
			Str("canonical_id", result.Exact.ID).
			Float64("score", result.Exact.Score).
			Msg("exact duplicate ignored")
		return outcome, nil
	default:
		write, err = s.insertCanonical(ctx, record, vector)
		outcome.Decision = DecisionNew
	}
	if err != nil {
		return Outcome{}, err
	}

	outcome.CanonicalID = write.CanonicalID
	outcome.VariantID = write.VariantID
	if !write.Created {
		outcome.Decision = DecisionConflict
	}

	event := log.Debug().
		Str("decision", string(outcome.Decision)).
		Str("canonical_id", outcome.CanonicalID).
		Str("variant_id", outcome.VariantID).
		Int("scanned", outcome.Scanned)
	if outcome.Soft != nil {
		event = event.Float64("soft_score", outcome.Soft.Score)
	}
	event.Msg("article processed")

	return outcome, nil
}

// ProcessBatch runs Process over articles with up to Options.Workers
// concurrent workers. A failing article is counted and recorded; it never
// stops the rest of the batch.
func (s *Service) ProcessBatch(ctx context.Context, articles []Article) (BatchResult, error) {
	if s == nil || s.store == nil || s.embedder == nil {
		return BatchResult{}, fmt.Errorf("pipeline service is not initialized")
	}

	started := globaltime.Now()
	outcomes := make([]Outcome, len(articles))
	errs := make([]error, len(articles))

	var g errgroup.Group
	g.SetLimit(s.opts.Workers)

	for i := range articles {
		g.Go(func() error {
			outcomes[i], errs[i] = s.Process(ctx, articles[i])
			return nil
		})
	}
	_ = g.Wait()

	result := BatchResult{Outcomes: make([]Outcome, 0, len(articles))}
	for i, outcome := range outcomes {
		result.Processed++
		if err := errs[i]; err != nil {
			result.Failed++
			result.Failures = append(result.Failures, Failure{Index: i, Link: articles[i].Link, Err: err})
			s.logger.Warn().Err(err).Int("index", i).Str("link", articles[i].Link).Msg("article failed")
			continue
		}
		result.Outcomes = append(result.Outcomes, outcome)
		switch outcome.Decision {
		case DecisionNew:
			result.New++
		case DecisionVariant:
			result.Variants++
		case DecisionIgnored:
			result.Ignored++
		case DecisionKnownURL:
			result.KnownURLs++
		case DecisionConflict:
			result.Conflicts++
		}
	}

	s.logger.Info().
		Int("processed", result.Processed).
		Int("new", result.New).
		Int("variants", result.Variants).
		Int("ignored", result.Ignored).
		Int("known_urls", result.KnownURLs).
		Int("conflicts", result.Conflicts).
		Int("failed", result.Failed).
		Int("workers", s.opts.Workers).
		Dur("elapsed", globaltime.Since(started)).
		Msg("batch processed")

	return result, nil
}

func (s *Service) urlStored(ctx context.Context, link string) (bool, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.opts.OperationTimeout)
	defer cancel()

	exists, err := s.store.ValueExists(opCtx, "article_variants", "url", link)
	if err != nil {
		return false, fmt.Errorf("check stored url: %w", err)
	}
	return exists, nil
}

func (s *Service) embed(ctx context.Context, text string) ([]float32, error) {
	embedCtx, cancel := context.WithTimeout(ctx, s.opts.EmbedTimeout)
	defer cancel()

	vector, err := s.embedder.Embed(embedCtx, text)
	if err != nil {
		return nil, fmt.Errorf("embed article: %w", err)
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: no text to embed", ErrInvalidArticle)
	}
	if len(vector) != db.VectorDimensions {
		return nil, fmt.Errorf("embed article: %w: got %d, want %d", similarity.ErrDimensionMismatch, len(vector), db.VectorDimensions)
	}
	if err := similarity.ValidateQuery(vector); err != nil {
		return nil, fmt.Errorf("embed article: %w", err)
	}
	return vector, nil
}

// loadCandidates reads the stored corpus and parses each vector. Rows that do
// not parse are logged and left out.
func (s *Service) loadCandidates(ctx context.Context, link string, dims int, log zerolog.Logger) ([]similarity.Candidate, int, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.opts.OperationTimeout)
	defer cancel()

	rows, err := s.store.ListCandidateVectors(opCtx, link, s.opts.ExcludeOrigin)
	if err != nil {
		return nil, 0, fmt.Errorf("list candidate vectors: %w", err)
	}

	candidates := make([]similarity.Candidate, 0, len(rows))
	malformed := 0
	for _, row := range rows {
		vector, err := similarity.ParseVector(row.Embedding, dims)
		if err != nil {
			malformed++
			log.Warn().Err(err).Str("article_id", row.ArticleID).Msg("skipping malformed stored vector")
			continue
		}
		candidates = append(candidates, similarity.Candidate{ID: row.ArticleID, Vector: vector})
	}
	return candidates, malformed, nil
}

func (s *Service) insertCanonical(ctx context.Context, article db.NewArticle, vector []float32) (db.WriteResult, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.opts.OperationTimeout)
	defer cancel()

	result, err := s.store.InsertNewCanonical(opCtx, article, vector)
	if err != nil {
		return db.WriteResult{}, fmt.Errorf("insert new canonical: %w", err)
	}
	return result, nil
}

func (s *Service) insertVariant(ctx context.Context, canonicalID string, article db.NewArticle) (db.WriteResult, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.opts.OperationTimeout)
	defer cancel()

	result, err := s.store.InsertDuplicateVariant(opCtx, canonicalID, article)
	if err != nil {
		return db.WriteResult{}, fmt.Errorf("insert duplicate variant: %w", err)
	}
	return result, nil
}

// ExactID returns the id of the best exact match, if any.
func (o Outcome) ExactID() string {
	if o.Exact == nil {
		return ""
	}
	return o.Exact.ID
}
