// Package reader extracts the readable body of an article page.
package reader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "codeberg.org/readeck/go-readability/v2"
)

const (
	DefaultFetchTimeout  = 15 * time.Second
	DefaultBodyByteLimit = 2 * 1024 * 1024
	DefaultMaxChars      = 20000

	defaultUserAgent = "newsdedup-reader/1.0"
)

type Options struct {
	Timeout       time.Duration
	BodyByteLimit int64
	// MaxChars caps the extracted text; zero uses DefaultMaxChars, negative
	// disables the cap.
	MaxChars   int
	UserAgent  string
	HTTPClient *http.Client
}

// Extractor fetches article pages and renders their main content as text.
type Extractor struct {
	opts   Options
	client *http.Client
}

func New(opts Options) *Extractor {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultFetchTimeout
	}
	if opts.BodyByteLimit <= 0 {
		opts.BodyByteLimit = DefaultBodyByteLimit
	}
	if opts.MaxChars == 0 {
		opts.MaxChars = DefaultMaxChars
	}
	if strings.TrimSpace(opts.UserAgent) == "" {
		opts.UserAgent = defaultUserAgent
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	return &Extractor{opts: opts, client: client}
}

// FullText retrieves link and extracts its readable text. When readability
// finds no body the page excerpt is used.
func (e *Extractor) FullText(ctx context.Context, link string) (string, error) {
	page := strings.TrimSpace(link)
	if page == "" {
		return "", fmt.Errorf("article link is required")
	}
	pageURL, err := url.Parse(page)
	if err != nil {
		return "", fmt.Errorf("parse page url: %w", err)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, page, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", e.opts.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-IN,en;q=0.8")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch url: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("fetch status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, e.opts.BodyByteLimit))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	var text string
	contentType := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Type")))
	if strings.HasPrefix(contentType, "text/plain") {
		text = CleanText(string(body))
	} else {
		article, err := readability.FromReader(bytes.NewReader(body), pageURL)
		if err != nil {
			return "", fmt.Errorf("readability parse: %w", err)
		}

		var rendered bytes.Buffer
		if err := article.RenderText(&rendered); err != nil {
			return "", fmt.Errorf("render readability text: %w", err)
		}
		text = CleanText(rendered.String())
		if text == "" {
			text = CleanText(article.Excerpt())
		}
	}
	if text == "" {
		return "", fmt.Errorf("reader extracted empty content")
	}

	text, _ = TruncateText(text, e.opts.MaxChars)
	return text, nil
}

// CleanText normalizes line endings and collapses extra in-line whitespace.
func CleanText(raw string) string {
	normalized := strings.ReplaceAll(raw, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")

	lines := strings.Split(normalized, "\n")
	paragraphs := make([]string, 0, len(lines))
	for _, line := range lines {
		clean := strings.Join(strings.Fields(line), " ")
		if clean == "" {
			continue
		}
		paragraphs = append(paragraphs, clean)
	}

	return strings.Join(paragraphs, "\n\n")
}

// TruncateText clips text to maxChars runes, ending with an ellipsis when
// clipped. A non-positive maxChars leaves the text alone.
func TruncateText(raw string, maxChars int) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || maxChars <= 0 {
		return trimmed, false
	}

	runes := []rune(trimmed)
	if len(runes) <= maxChars {
		return trimmed, false
	}
	if maxChars == 1 {
		return "…", true
	}

	clipped := strings.TrimSpace(string(runes[:maxChars-1]))
	if clipped == "" {
		return "…", true
	}
	return clipped + "…", true
}
