package classify

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/Aakash091-dark/news-scraper-new/internal/db"
)

func TestClassifyMatchesCategoryAndSubcategory(t *testing.T) {
	t.Parallel()

	got := Default().Classify(
		"Government announces new election dates",
		"The parliament declared that the upcoming elections will be held next month.",
	)
	want := []db.Category{{Category: "Politics", Subcategory: "Elections"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Classify() = %+v, want %+v", got, want)
	}
}

func TestClassifyReturnsEveryMatchingCategoryInRuleOrder(t *testing.T) {
	t.Parallel()

	got := Default().Classify("Sensex falls as government tightens trade policy", "")
	want := []db.Category{
		{Category: "Politics", Subcategory: "Government"},
		{Category: "Business", Subcategory: "Stock Market"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Classify() = %+v, want %+v", got, want)
	}
}

func TestClassifyMatchesWholeWordsOnly(t *testing.T) {
	t.Parallel()

	// "said" contains "ai" but must not trigger Technology.
	got := Default().Classify("Officials said nothing", "")
	want := []db.Category{{Category: FallbackCategory, Subcategory: FallbackSubcategory}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Classify() = %+v, want fallback", got)
	}
}

func TestClassifyIsCaseInsensitive(t *testing.T) {
	t.Parallel()

	got := Default().Classify("New AI model beats benchmarks", "")
	if len(got) != 1 || got[0].Category != "Technology" || got[0].Subcategory != "AI" {
		t.Fatalf("unexpected classification: %+v", got)
	}
}

func TestClassifyCategoryWithoutSubcategory(t *testing.T) {
	t.Parallel()

	got := Default().Classify("Hospital beds run short", "")
	if len(got) != 1 || got[0].Category != "Health" || got[0].Subcategory != "" {
		t.Fatalf("unexpected classification: %+v", got)
	}
}

func TestNewRejectsInvalidRules(t *testing.T) {
	t.Parallel()

	if _, err := New([]Rule{{Category: "", Keywords: []string{"x"}}}); err == nil {
		t.Fatalf("expected error for empty category")
	}
	if _, err := New([]Rule{{Category: "Empty", Keywords: []string{" "}}}); err == nil {
		t.Fatalf("expected error for rule without keywords")
	}
}

func TestLoadRules(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "rules.yaml")
	content := `
- category: Weather
  keywords: [monsoon, rainfall, cyclone]
  subcategories:
    - name: Cyclones
      keywords: [cyclone]
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write rules: %v", err)
	}

	rules, err := LoadRules(path)
	if err != nil {
		t.Fatalf("LoadRules failed: %v", err)
	}
	classifier, err := New(rules)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	got := classifier.Classify("Cyclone Biparjoy nears Gujarat coast", "")
	want := []db.Category{{Category: "Weather", Subcategory: "Cyclones"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Classify() = %+v, want %+v", got, want)
	}
}
