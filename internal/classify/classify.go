// Package classify assigns categories to articles from keyword rules over the
// title and description.
package classify

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Aakash091-dark/news-scraper-new/internal/db"
)

const (
	FallbackCategory    = "General"
	FallbackSubcategory = "Other"
)

type Subcategory struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

type Rule struct {
	Category      string        `yaml:"category"`
	Keywords      []string      `yaml:"keywords"`
	Subcategories []Subcategory `yaml:"subcategories"`
}

// DefaultRules is the built-in rule table. Order matters: categories are
// reported in rule order and the first matching subcategory wins.
var DefaultRules = []Rule{
	{
		Category: "Politics",
		Keywords: []string{"election", "government", "parliament", "senate", "law", "political", "minister", "lok sabha", "rajya sabha"},
		Subcategories: []Subcategory{
			{Name: "Elections", Keywords: []string{"election", "vote", "campaign", "poll"}},
			{Name: "Government", Keywords: []string{"parliament", "policy", "law", "minister", "cabinet"}},
		},
	},
	{
		Category: "Business",
		Keywords: []string{"stock", "market", "economy", "finance", "business", "trade", "investment", "rbi", "sensex", "nifty"},
		Subcategories: []Subcategory{
			{Name: "Stock Market", Keywords: []string{"stock", "share", "index", "sensex", "nifty"}},
			{Name: "Economy", Keywords: []string{"economy", "gdp", "inflation", "repo rate", "rbi"}},
		},
	},
	{
		Category: "Technology",
		Keywords: []string{"technology", "software", "ai", "machine learning", "gadgets", "internet", "startup"},
		Subcategories: []Subcategory{
			{Name: "AI", Keywords: []string{"artificial intelligence", "ai", "machine learning"}},
			{Name: "Gadgets", Keywords: []string{"smartphone", "laptop", "gadgets"}},
		},
	},
	{
		Category: "Sports",
		Keywords: []string{"football", "cricket", "tennis", "basketball", "soccer", "olympics", "sports", "ipl"},
		Subcategories: []Subcategory{
			{Name: "Cricket", Keywords: []string{"cricket", "ipl", "test match", "odi"}},
			{Name: "Football", Keywords: []string{"football", "soccer", "isl"}},
		},
	},
	{
		Category: "Health",
		Keywords: []string{"health", "medicine", "virus", "covid", "doctor", "medical", "vaccine", "hospital"},
	},
	{
		Category: "Entertainment",
		Keywords: []string{"movie", "music", "celebrity", "film", "show", "entertainment", "tv", "bollywood"},
	},
}

type compiledSub struct {
	name    string
	pattern *regexp.Regexp
}

type compiledRule struct {
	category string
	pattern  *regexp.Regexp
	subs     []compiledSub
}

// Classifier matches whole words and phrases, case-insensitively.
type Classifier struct {
	rules []compiledRule
}

func Default() *Classifier {
	c, err := New(DefaultRules)
	if err != nil {
		panic(fmt.Sprintf("compile default classifier rules: %v", err))
	}
	return c
}

func New(rules []Rule) (*Classifier, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for i, rule := range rules {
		category := strings.TrimSpace(rule.Category)
		if category == "" {
			return nil, fmt.Errorf("rule %d: category is required", i)
		}
		pattern, err := keywordPattern(rule.Keywords)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", category, err)
		}

		cr := compiledRule{category: category, pattern: pattern}
		for _, sub := range rule.Subcategories {
			name := strings.TrimSpace(sub.Name)
			if name == "" {
				return nil, fmt.Errorf("rule %q: subcategory name is required", category)
			}
			subPattern, err := keywordPattern(sub.Keywords)
			if err != nil {
				return nil, fmt.Errorf("rule %q subcategory %q: %w", category, name, err)
			}
			cr.subs = append(cr.subs, compiledSub{name: name, pattern: subPattern})
		}
		compiled = append(compiled, cr)
	}
	return &Classifier{rules: compiled}, nil
}

// LoadRules reads a YAML rule table: a list of {category, keywords,
// subcategories: [{name, keywords}]}.
func LoadRules(path string) ([]Rule, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read classifier rules: %w", err)
	}
	var rules []Rule
	if err := yaml.Unmarshal(raw, &rules); err != nil {
		return nil, fmt.Errorf("parse classifier rules %s: %w", path, err)
	}
	if len(rules) == 0 {
		return nil, fmt.Errorf("classifier rules %s: no rules defined", path)
	}
	return rules, nil
}

// Classify returns every matching category in rule order, each with its first
// matching subcategory. Nothing matching yields General/Other.
func (c *Classifier) Classify(title, description string) []db.Category {
	text := strings.ToLower(strings.TrimSpace(title + " " + description))

	var out []db.Category
	if c != nil && text != "" {
		for _, rule := range c.rules {
			if !rule.pattern.MatchString(text) {
				continue
			}
			assignment := db.Category{Category: rule.category}
			for _, sub := range rule.subs {
				if sub.pattern.MatchString(text) {
					assignment.Subcategory = sub.name
					break
				}
			}
			out = append(out, assignment)
		}
	}

	if len(out) == 0 {
		return []db.Category{{Category: FallbackCategory, Subcategory: FallbackSubcategory}}
	}
	return out
}

func keywordPattern(keywords []string) (*regexp.Regexp, error) {
	parts := make([]string, 0, len(keywords))
	for _, keyword := range keywords {
		keyword = strings.ToLower(strings.TrimSpace(keyword))
		if keyword == "" {
			continue
		}
		parts = append(parts, regexp.QuoteMeta(keyword))
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("at least one keyword is required")
	}
	return regexp.Compile(`\b(?:` + strings.Join(parts, "|") + `)\b`)
}
