package reader

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCleanTextCollapsesWhitespaceAndPreservesParagraphs(t *testing.T) {
	input := "  First   paragraph \n\n Second\tparagraph \r\n\r\nThird line "
	got := CleanText(input)
	want := "First paragraph\n\nSecond paragraph\n\nThird line"
	if got != want {
		t.Fatalf("CleanText mismatch\nwant: %q\ngot:  %q", want, got)
	}
}

func TestTruncateText(t *testing.T) {
	got, truncated := TruncateText("abcdefghijklmnopqrstuvwxyz", 10)
	if !truncated || got != "abcdefghi…" {
		t.Fatalf("unexpected truncation: %q %v", got, truncated)
	}

	full, wasTruncated := TruncateText("short", 10)
	if wasTruncated || full != "short" {
		t.Fatalf("unexpected short text: %q %v", full, wasTruncated)
	}

	unlimited, wasTruncated := TruncateText(" keep all ", -1)
	if wasTruncated || unlimited != "keep all" {
		t.Fatalf("expected no cap, got %q %v", unlimited, wasTruncated)
	}
}

func TestFullTextPlainBody(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("User-Agent"), "newsdedup-reader") {
			t.Errorf("unexpected user agent %q", r.Header.Get("User-Agent"))
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("Line one.\r\n\r\n  Line   two. "))
	}))
	defer server.Close()

	got, err := New(Options{}).FullText(context.Background(), server.URL+"/story")
	if err != nil {
		t.Fatalf("FullText failed: %v", err)
	}
	if got != "Line one.\n\nLine two." {
		t.Fatalf("unexpected text %q", got)
	}
}

func TestFullTextExtractsArticleHTML(t *testing.T) {
	t.Parallel()

	paragraph := strings.Repeat("The Election Commission announced the schedule for the assembly polls on Monday. ", 8)
	page := `<!doctype html><html><head><title>Polls announced</title></head><body>
<nav><a href="/">Home</a> <a href="/india">India</a></nav>
<article><h1>Polls announced</h1><p>` + paragraph + `</p><p>` + paragraph + `</p></article>
<footer>Copyright</footer></body></html>`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(page))
	}))
	defer server.Close()

	got, err := New(Options{}).FullText(context.Background(), server.URL+"/polls")
	if err != nil {
		t.Fatalf("FullText failed: %v", err)
	}
	if !strings.Contains(got, "Election Commission announced the schedule") {
		t.Fatalf("expected article body, got %q", got)
	}
}

func TestFullTextCapsLength(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(strings.Repeat("x", 100)))
	}))
	defer server.Close()

	got, err := New(Options{MaxChars: 10}).FullText(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("FullText failed: %v", err)
	}
	if len([]rune(got)) != 10 {
		t.Fatalf("expected 10 runes, got %d", len([]rune(got)))
	}
}

func TestFullTextRejectsErrorStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	if _, err := New(Options{}).FullText(context.Background(), server.URL); err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("expected status error, got %v", err)
	}
}
