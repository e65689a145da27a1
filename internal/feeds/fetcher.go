package feeds

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	payloadschema "github.com/Aakash091-dark/news-scraper-new/schema"
)

const (
	DefaultFetchTimeout  = 20 * time.Second
	DefaultUserAgent     = "newsdedup-feeds/1.0"
	DefaultConcurrency   = 4
	defaultBodyByteLimit = 8 * 1024 * 1024
)

// TextExtractor fills in article bodies; *reader.Extractor satisfies it.
type TextExtractor interface {
	FullText(ctx context.Context, link string) (string, error)
}

type FetcherOptions struct {
	Timeout     time.Duration
	UserAgent   string
	Concurrency int
	HTTPClient  *http.Client
	// Extractor, when set, fetches full text for every new candidate.
	Extractor TextExtractor
}

type Fetcher struct {
	registry *Registry
	client   *http.Client
	opts     FetcherOptions
	logger   zerolog.Logger
}

// SourceResult holds the candidates one source produced.
type SourceResult struct {
	Source     Source
	Handler    string
	Candidates []payloadschema.Candidate
	Duplicates int
	Err        error
}

type FetchResult struct {
	Sources    []SourceResult
	Candidates int
	Duplicates int
	Failed     int
}

func NewFetcher(registry *Registry, logger zerolog.Logger, opts FetcherOptions) *Fetcher {
	if registry == nil {
		registry = NewRegistry()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultFetchTimeout
	}
	if strings.TrimSpace(opts.UserAgent) == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	return &Fetcher{
		registry: registry,
		client:   client,
		opts:     opts,
		logger:   logger.With().Str("component", "feeds").Logger(),
	}
}

// FetchAll fetches every source. A failing source is recorded in its result
// and never stops the others. Links seen earlier in the run (in source
// order) are dropped as duplicates.
func (f *Fetcher) FetchAll(ctx context.Context, sources []Source) FetchResult {
	results := make([]SourceResult, len(sources))

	var g errgroup.Group
	g.SetLimit(f.opts.Concurrency)
	for i, src := range sources {
		g.Go(func() error {
			results[i] = f.fetchSource(ctx, src)
			return nil
		})
	}
	_ = g.Wait()

	seen := map[string]struct{}{}
	out := FetchResult{Sources: results}
	for i := range results {
		res := &results[i]
		if res.Err != nil {
			out.Failed++
			f.logger.Error().Err(res.Err).Str("source", res.Source.Key).Msg("feed fetch failed")
			continue
		}
		kept := res.Candidates[:0]
		for _, candidate := range res.Candidates {
			if _, dup := seen[candidate.Link]; dup {
				res.Duplicates++
				continue
			}
			seen[candidate.Link] = struct{}{}
			kept = append(kept, candidate)
		}
		res.Candidates = kept
		out.Candidates += len(kept)
		out.Duplicates += res.Duplicates
	}

	if f.opts.Extractor != nil {
		f.enrich(ctx, results)
	}
	return out
}

func (f *Fetcher) fetchSource(ctx context.Context, src Source) SourceResult {
	handler, registered := f.registry.Resolve(src.Handler)
	result := SourceResult{Source: src, Handler: handler.Name()}
	if !registered && strings.TrimSpace(src.Handler) != "" {
		f.logger.Warn().Str("source", src.Key).Str("handler", src.Handler).Msg("unknown feed handler, using fallback")
	}

	body, err := f.download(ctx, src.URL)
	if err != nil {
		result.Err = fmt.Errorf("fetch %s: %w", src.Key, err)
		return result
	}
	doc, err := Parse(body)
	if err != nil {
		result.Err = fmt.Errorf("parse %s: %w", src.Key, err)
		return result
	}
	candidates, err := handler.Handle(ctx, src, doc)
	if err != nil {
		result.Err = fmt.Errorf("handle %s: %w", src.Key, err)
		return result
	}
	result.Candidates = candidates

	f.logger.Debug().
		Str("source", src.Key).
		Str("handler", handler.Name()).
		Int("entries", len(doc.Entries)).
		Int("candidates", len(candidates)).
		Msg("feed fetched")
	return result
}

func (f *Fetcher) download(ctx context.Context, feedURL string) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, text/xml;q=0.8, */*;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, defaultBodyByteLimit))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// enrich fetches full text for candidates that have none. Failures leave the
// candidate as it was.
func (f *Fetcher) enrich(ctx context.Context, results []SourceResult) {
	var g errgroup.Group
	g.SetLimit(f.opts.Concurrency)

	var mu sync.Mutex
	enriched := 0
	for i := range results {
		for j := range results[i].Candidates {
			candidate := &results[i].Candidates[j]
			if candidate.FullText() != "" {
				continue
			}
			g.Go(func() error {
				text, err := f.opts.Extractor.FullText(ctx, candidate.Link)
				if err != nil {
					f.logger.Debug().Err(err).Str("link", candidate.Link).Msg("full text extraction failed")
					return nil
				}
				candidate.FullNews = text
				mu.Lock()
				enriched++
				mu.Unlock()
				return nil
			})
		}
	}
	_ = g.Wait()

	f.logger.Debug().Int("enriched", enriched).Msg("full text enrichment finished")
}
