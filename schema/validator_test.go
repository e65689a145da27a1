package payloadschema

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestValidateCandidatePayload_Valid(t *testing.T) {
	payload := json.RawMessage(`{
		"title":"RBI keeps repo rate unchanged",
		"link":"https://www.thehindu.com/business/rbi-policy/article1.ece",
		"description":"The MPC voted 5-1 to hold rates.",
		"source":"The Hindu",
		"pubDate":"06-06-2025",
		"keywords":["rbi","repo rate"],
		"full_news":"The Reserve Bank of India on Friday ...",
		"categories":[{"category":"Business","subcategory":"Economy"},{"category":"India","subcategory":null}],
		"image":"https://www.thehindu.com/img.jpg"
	}`)

	candidate, err := ValidateCandidatePayload(payload)
	if err != nil {
		t.Fatalf("expected payload to be valid, got error: %v", err)
	}

	if candidate.Source != "The Hindu" {
		t.Fatalf("expected source=The Hindu, got %q", candidate.Source)
	}
	if candidate.FullText() != "The Reserve Bank of India on Friday ..." {
		t.Fatalf("unexpected full text %q", candidate.FullText())
	}
	if len(candidate.Categories) != 2 || candidate.Categories[1].Subcategory != nil {
		t.Fatalf("unexpected categories: %+v", candidate.Categories)
	}
}

func TestValidateCandidatePayload_MissingLink(t *testing.T) {
	payload := json.RawMessage(`{"title":"No link here"}`)

	if _, err := ValidateCandidatePayload(payload); err == nil {
		t.Fatalf("expected validation to fail for missing link")
	}
}

func TestValidateCandidatePayload_WhitespaceTitle(t *testing.T) {
	payload := json.RawMessage(`{"title":"   ","link":"https://example.com/a"}`)

	_, err := ValidateCandidatePayload(payload)
	if err == nil {
		t.Fatalf("expected validation to fail for whitespace-only title")
	}
	if !strings.Contains(err.Error(), "title must not be empty") {
		t.Fatalf("expected title semantic error, got: %v", err)
	}
}

func TestValidateCandidatePayload_NonHTTPLink(t *testing.T) {
	payload := json.RawMessage(`{"title":"FTP story","link":"ftp://example.com/story"}`)

	_, err := ValidateCandidatePayload(payload)
	if err == nil || !strings.Contains(err.Error(), "http or https") {
		t.Fatalf("expected scheme error, got %v", err)
	}
}

func TestValidateCandidatePayload_BlankKeyword(t *testing.T) {
	payload := json.RawMessage(`{"title":"Story","link":"https://example.com/a","keywords":["ok"," "]}`)

	if _, err := ValidateCandidatePayload(payload); err == nil {
		t.Fatalf("expected validation to fail for blank keyword")
	}
}

func TestValidateCandidatePayload_ContentFallback(t *testing.T) {
	payload := json.RawMessage(`{"title":"Story","link":"https://example.com/a","content":"body from content"}`)

	candidate, err := ValidateCandidatePayload(payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if candidate.FullText() != "body from content" {
		t.Fatalf("expected content fallback, got %q", candidate.FullText())
	}
}

func TestValidateCandidatePayload_TrailingContent(t *testing.T) {
	payload := json.RawMessage(`{"title":"Story","link":"https://example.com/a"} {}`)

	if _, err := ValidateCandidatePayload(payload); err == nil {
		t.Fatalf("expected trailing content to be rejected")
	}
}

func TestValidateCandidateBatch_MixedValidity(t *testing.T) {
	payload := json.RawMessage(`[
		{"title":"One","link":"https://example.com/1"},
		{"title":"","link":"https://example.com/2"},
		{"title":"Three","link":"https://example.com/3","categories":[{"subcategory":"x"}]},
		{"title":"Four","link":"https://example.com/4"}
	]`)

	candidates, itemErrors, err := ValidateCandidateBatch(payload)
	if err != nil {
		t.Fatalf("unexpected batch error: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("expected 2 valid candidates, got %d", len(candidates))
	}
	if len(itemErrors) != 2 || itemErrors[0].Index != 1 || itemErrors[1].Index != 2 {
		t.Fatalf("unexpected item errors: %v", itemErrors)
	}
}

func TestValidateCandidateBatch_SingleObject(t *testing.T) {
	candidates, itemErrors, err := ValidateCandidateBatch(json.RawMessage(`{"title":"Solo","link":"https://example.com/solo"}`))
	if err != nil || len(itemErrors) != 0 || len(candidates) != 1 {
		t.Fatalf("expected single valid candidate, got %d candidates, %v, %v", len(candidates), itemErrors, err)
	}
}
