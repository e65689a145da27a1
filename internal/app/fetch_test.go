package app

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	payloadschema "github.com/Aakash091-dark/news-scraper-new/schema"
)

func readOutput(t *testing.T, path string) []payloadschema.Candidate {
	t.Helper()
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	var out []payloadschema.Candidate
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	return out
}

func TestWriteSourceFileCreatesAndMerges(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "data")
	first := []payloadschema.Candidate{
		{Title: "Rates held", Link: "https://example.com/rates"},
		{Title: "Monsoon arrives", Link: "https://example.com/monsoon"},
	}
	added, err := writeSourceFile(dir, "thehindu_business", first)
	if err != nil {
		t.Fatalf("writeSourceFile failed: %v", err)
	}
	if added != 2 {
		t.Fatalf("added = %d, want 2", added)
	}

	second := []payloadschema.Candidate{
		{Title: "Rates held", Link: "https://example.com/rates-2"},
		{Title: "Different title", Link: "https://example.com/monsoon"},
		{Title: "Budget & you", Link: "https://example.com/budget"},
	}
	added, err = writeSourceFile(dir, "thehindu_business", second)
	if err != nil {
		t.Fatalf("writeSourceFile failed: %v", err)
	}
	if added != 1 {
		t.Fatalf("added = %d, want 1", added)
	}

	path := filepath.Join(dir, "thehindu_business.json")
	out := readOutput(t, path)
	if len(out) != 3 {
		t.Fatalf("expected 3 stored items, got %d", len(out))
	}
	if out[0].Title != "Rates held" || out[2].Title != "Budget & you" {
		t.Fatalf("unexpected order: %+v", out)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read raw: %v", err)
	}
	if !strings.Contains(string(raw), "Budget & you") {
		t.Fatalf("expected unescaped ampersand in output")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected temp files to be cleaned up, found %d entries", len(entries))
	}
}

func TestWriteSourceFileRefusesCorruptExisting(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "ndtv_top.json")
	mustWriteFile(t, path, `{not json`)

	_, err := writeSourceFile(dir, "ndtv_top", []payloadschema.Candidate{{Title: "A", Link: "https://example.com/a"}})
	if err == nil {
		t.Fatalf("expected corrupt existing file to be reported")
	}

	raw, readErr := os.ReadFile(path)
	if readErr != nil {
		t.Fatalf("read: %v", readErr)
	}
	if string(raw) != `{not json` {
		t.Fatalf("corrupt file was overwritten")
	}
}

func TestAppendFetchStatsWritesHeaderOnce(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "log", "fetch_stats.csv")
	now := time.Date(2025, 6, 6, 9, 30, 0, 0, time.UTC)

	if err := appendFetchStats(path, now, []sourceStats{{Key: "thehindu_business", New: 3, Duplicates: 2}}); err != nil {
		t.Fatalf("first append failed: %v", err)
	}
	if err := appendFetchStats(path, now, []sourceStats{{Key: "ndtv_top", New: 0, Duplicates: 5}}); err != nil {
		t.Fatalf("second append failed: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read stats: %v", err)
	}
	want := "timestamp,source,new,duplicates,total\n" +
		"2025-06-06 09:30:00,thehindu_business,3,2,5\n" +
		"2025-06-06 09:30:00,ndtv_top,0,5,5\n"
	if string(raw) != want {
		t.Fatalf("unexpected stats file:\n%s", raw)
	}
}
