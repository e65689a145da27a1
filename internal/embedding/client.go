package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/Aakash091-dark/news-scraper-new/internal/similarity"
)

const (
	DefaultEndpoint       = "http://127.0.0.1:8844/embed"
	DefaultModel          = "nomic-embed-text-v1.5"
	DefaultDimensions     = 768
	DefaultBatchSize      = 32
	DefaultMaxLength      = 512
	DefaultRequestTimeout = 45 * time.Second
	DefaultDocumentPrefix = "search_document: "
)

// Provider turns text into a unit-length embedding. Blank text yields a nil
// vector and a nil error.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	Model() string
}

type Options struct {
	Endpoint       string
	Model          string
	Dimensions     int
	BatchSize      int
	MaxLength      int
	RequestTimeout time.Duration
	// Prefix is prepended to every text; nomic models expect a task prefix.
	Prefix     string
	HTTPClient *http.Client
}

// Client calls an HTTP embedding service. It speaks both the local
// {"texts": [...]} dialect and the OpenAI-style /v1/embeddings dialect.
type Client struct {
	opts   Options
	client *http.Client
}

type embedRequest struct {
	Texts     []string `json:"texts,omitempty"`
	Input     []string `json:"input,omitempty"`
	Model     string   `json:"model,omitempty"`
	MaxLength int      `json:"max_length,omitempty"`
}

type embedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
	ElapsedMS  *float64    `json:"elapsed_ms"`
	Data       []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

func NewClient(options Options) *Client {
	opts := normalizeOptions(options)
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{opts: opts, client: httpClient}
}

func (c *Client) Dimensions() int { return c.opts.Dimensions }

func (c *Client) Model() string { return c.opts.Model }

func (c *Client) Endpoint() string { return c.opts.Endpoint }

// Embed returns the embedding of a single text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds texts in request batches, preserving order. Blank texts
// get a nil vector and are not sent.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if c == nil {
		return nil, fmt.Errorf("embedding client is not initialized")
	}

	out := make([][]float32, len(texts))
	pending := make([]int, 0, len(texts))
	for i, text := range texts {
		if strings.TrimSpace(text) != "" {
			pending = append(pending, i)
		}
	}

	for start := 0; start < len(pending); start += c.opts.BatchSize {
		end := min(start+c.opts.BatchSize, len(pending))
		batch := pending[start:end]

		inputs := make([]string, 0, len(batch))
		for _, idx := range batch {
			inputs = append(inputs, c.opts.Prefix+strings.TrimSpace(texts[idx]))
		}

		vectors, err := c.request(ctx, inputs)
		if err != nil {
			return nil, err
		}
		if len(vectors) != len(batch) {
			return nil, fmt.Errorf("embedding response count mismatch: requested=%d returned=%d", len(batch), len(vectors))
		}

		for i, idx := range batch {
			vector, err := toUnitVector(vectors[i], c.opts.Dimensions)
			if err != nil {
				return nil, fmt.Errorf("embedding %d: %w", idx, err)
			}
			out[idx] = vector
		}
	}

	return out, nil
}

func (c *Client) request(ctx context.Context, texts []string) ([][]float64, error) {
	payload := embedRequest{
		Texts:     texts,
		MaxLength: c.opts.MaxLength,
	}

	parsedEndpoint, err := url.Parse(c.opts.Endpoint)
	if err == nil && strings.HasSuffix(parsedEndpoint.Path, "/v1/embeddings") {
		payload = embedRequest{
			Input: texts,
			Model: c.opts.Model,
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	requestCtx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(requestCtx, http.MethodPost, c.opts.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embedding response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("embedding service status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var parsed embedResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}

	vectors := parsed.Embeddings
	if len(vectors) == 0 && len(parsed.Data) > 0 {
		sort.Slice(parsed.Data, func(i, j int) bool {
			return parsed.Data[i].Index < parsed.Data[j].Index
		})
		vectors = make([][]float64, 0, len(parsed.Data))
		for _, row := range parsed.Data {
			vectors = append(vectors, row.Embedding)
		}
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embedding response missing vectors")
	}

	return vectors, nil
}

func normalizeOptions(opts Options) Options {
	normalized := opts
	if strings.TrimSpace(normalized.Endpoint) == "" {
		normalized.Endpoint = DefaultEndpoint
	}
	normalized.Endpoint = normalizeEndpoint(normalized.Endpoint)
	if strings.TrimSpace(normalized.Model) == "" {
		normalized.Model = DefaultModel
	}
	if normalized.Dimensions <= 0 {
		normalized.Dimensions = DefaultDimensions
	}
	if normalized.BatchSize <= 0 {
		normalized.BatchSize = DefaultBatchSize
	}
	if normalized.MaxLength <= 0 {
		normalized.MaxLength = DefaultMaxLength
	}
	if normalized.RequestTimeout <= 0 {
		normalized.RequestTimeout = DefaultRequestTimeout
	}
	return normalized
}

func normalizeEndpoint(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return DefaultEndpoint
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return trimmed
	}
	if parsed.Path == "" || parsed.Path == "/" {
		parsed.Path = "/embed"
	}
	return parsed.String()
}

func toUnitVector(values []float64, dimensions int) ([]float32, error) {
	if len(values) != dimensions {
		return nil, fmt.Errorf("expected %d dimensions, got %d", dimensions, len(values))
	}

	vector := make([]float32, len(values))
	for i, value := range values {
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return nil, fmt.Errorf("vector has non-finite value at index %d", i)
		}
		vector[i] = float32(value)
	}
	return similarity.Normalize(vector)
}
