package payloadschema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed candidate.schema.json
var candidateSchemaJSON string

// Candidate is one scraped article as produced by the feed collectors.
type Candidate struct {
	Title       string               `json:"title"`
	Link        string               `json:"link"`
	Description string               `json:"description,omitempty"`
	Source      string               `json:"source,omitempty"`
	PubDate     string               `json:"pubDate,omitempty"`
	Keywords    []string             `json:"keywords,omitempty"`
	FullNews    string               `json:"full_news,omitempty"`
	Content     string               `json:"content,omitempty"`
	Categories  []CategoryAssignment `json:"categories,omitempty"`
}

type CategoryAssignment struct {
	Category    string  `json:"category"`
	Subcategory *string `json:"subcategory,omitempty"`
}

// FullText returns full_news, falling back to content.
func (c Candidate) FullText() string {
	if body := strings.TrimSpace(c.FullNews); body != "" {
		return body
	}
	return strings.TrimSpace(c.Content)
}

// ItemError reports a rejected element of a candidate batch.
type ItemError struct {
	Index int
	Err   error
}

func (e ItemError) Error() string {
	return fmt.Sprintf("item %d: %v", e.Index, e.Err)
}

func (e ItemError) Unwrap() error { return e.Err }

var (
	compileOnce       sync.Once
	compiledSchema    *jsonschema.Schema
	compiledSchemaErr error
)

// ValidateCandidatePayload validates a single JSON object.
func ValidateCandidatePayload(payload json.RawMessage) (*Candidate, error) {
	value, err := decodeStrictJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("decode payload JSON: %w", err)
	}
	return validateValue(value)
}

// ValidateCandidateBatch accepts either one object or an array of objects.
// Invalid elements are reported individually; the valid ones are returned.
func ValidateCandidateBatch(payload json.RawMessage) ([]Candidate, []ItemError, error) {
	value, err := decodeStrictJSON(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("decode payload JSON: %w", err)
	}

	items, ok := value.([]any)
	if !ok {
		candidate, err := validateValue(value)
		if err != nil {
			return nil, []ItemError{{Index: 0, Err: err}}, nil
		}
		return []Candidate{*candidate}, nil, nil
	}

	candidates := make([]Candidate, 0, len(items))
	var itemErrors []ItemError
	for i, item := range items {
		candidate, err := validateValue(item)
		if err != nil {
			itemErrors = append(itemErrors, ItemError{Index: i, Err: err})
			continue
		}
		candidates = append(candidates, *candidate)
	}
	return candidates, itemErrors, nil
}

func validateValue(value any) (*Candidate, error) {
	schema, err := loadSchema()
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}

	if err := schema.Validate(value); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	normalized, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("normalize payload JSON: %w", err)
	}

	var candidate Candidate
	if err := json.Unmarshal(normalized, &candidate); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}

	if err := validateSemantics(&candidate); err != nil {
		return nil, err
	}

	return &candidate, nil
}

func loadSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		compiler.AssertFormat = true

		if err := compiler.AddResource("candidate.schema.json", strings.NewReader(candidateSchemaJSON)); err != nil {
			compiledSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}

		schema, err := compiler.Compile("candidate.schema.json")
		if err != nil {
			compiledSchemaErr = fmt.Errorf("compile schema: %w", err)
			return
		}

		compiledSchema = schema
	})

	if compiledSchemaErr != nil {
		return nil, compiledSchemaErr
	}
	if compiledSchema == nil {
		return nil, fmt.Errorf("schema not initialized")
	}
	return compiledSchema, nil
}

func decodeStrictJSON(raw []byte) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("payload is empty")
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("payload contains trailing content")
	}

	return value, nil
}

func validateSemantics(candidate *Candidate) error {
	if candidate == nil {
		return fmt.Errorf("payload is nil")
	}

	if strings.TrimSpace(candidate.Title) == "" {
		return fmt.Errorf("title must not be empty")
	}
	if err := validateArticleURL("link", candidate.Link); err != nil {
		return err
	}

	for i, keyword := range candidate.Keywords {
		if strings.TrimSpace(keyword) == "" {
			return fmt.Errorf("keywords[%d] must not be empty", i)
		}
	}
	for i, category := range candidate.Categories {
		if strings.TrimSpace(category.Category) == "" {
			return fmt.Errorf("categories[%d].category must not be empty", i)
		}
	}

	return nil
}

func validateArticleURL(fieldName, value string) error {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fmt.Errorf("%s must not be empty", fieldName)
	}
	parsed, err := url.ParseRequestURI(trimmed)
	if err != nil {
		return fmt.Errorf("%s is not a valid URI: %w", fieldName, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s must use http or https, got %q", fieldName, parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s must include a host", fieldName)
	}
	return nil
}
