package feeds

import (
	"context"
	"net/url"
	"strings"
	"sync"

	payloadschema "github.com/Aakash091-dark/news-scraper-new/schema"
)

// Handler turns one fetched feed document into candidates. Sources name
// their handler in feeds.yaml; unknown names fall back to the registry
// default.
type Handler interface {
	Name() string
	Handle(ctx context.Context, src Source, doc *Document) ([]payloadschema.Candidate, error)
}

type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	fallback Handler
}

// NewRegistry returns a registry with the generic RSS handler as fallback
// and the Google News handler registered.
func NewRegistry() *Registry {
	r := &Registry{handlers: map[string]Handler{}, fallback: RSSHandler{}}
	r.Register(RSSHandler{})
	r.Register(GoogleNewsHandler{})
	return r
}

// Register adds or replaces a handler under its name.
func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handlers == nil {
		r.handlers = map[string]Handler{}
	}
	r.handlers[strings.ToLower(h.Name())] = h
}

// Resolve returns the named handler, or the fallback and false when the name
// is not registered.
func (r *Registry) Resolve(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if h, ok := r.handlers[strings.ToLower(strings.TrimSpace(name))]; ok {
		return h, true
	}
	return r.fallback, false
}

// RSSHandler maps feed entries one-to-one onto candidates.
type RSSHandler struct{}

func (RSSHandler) Name() string { return "rss" }

func (RSSHandler) Handle(_ context.Context, src Source, doc *Document) ([]payloadschema.Candidate, error) {
	out := make([]payloadschema.Candidate, 0, len(doc.Entries))
	for _, entry := range doc.Entries {
		candidate, ok := entryCandidate(src, entry)
		if ok {
			out = append(out, candidate)
		}
	}
	return out, nil
}

// GoogleNewsHandler handles news.google.com feeds, whose titles end in
// " - Publisher". The publisher becomes the candidate source.
type GoogleNewsHandler struct{}

func (GoogleNewsHandler) Name() string { return "googlenews" }

func (GoogleNewsHandler) Handle(_ context.Context, src Source, doc *Document) ([]payloadschema.Candidate, error) {
	out := make([]payloadschema.Candidate, 0, len(doc.Entries))
	for _, entry := range doc.Entries {
		candidate, ok := entryCandidate(src, entry)
		if !ok {
			continue
		}
		if idx := strings.LastIndex(candidate.Title, " - "); idx > 0 {
			publisher := strings.TrimSpace(candidate.Title[idx+3:])
			if publisher != "" {
				candidate.Title = strings.TrimSpace(candidate.Title[:idx])
				candidate.Source = publisher
			}
		}
		// The description repeats the title and publisher as links.
		candidate.Description = ""
		out = append(out, candidate)
	}
	return out, nil
}

func entryCandidate(src Source, entry Entry) (payloadschema.Candidate, bool) {
	title := StripHTML(entry.Title)
	link := strings.TrimSpace(entry.Link)
	if title == "" || !absoluteHTTP(link) {
		return payloadschema.Candidate{}, false
	}

	description := StripHTML(entry.Description)
	if description == "" {
		description = StripHTML(entry.Content)
	}

	return payloadschema.Candidate{
		Title:       title,
		Link:        link,
		Description: description,
		Source:      src.SourceName(),
		PubDate:     NormalizePubDate(entry.Published),
	}, true
}

func absoluteHTTP(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
}
