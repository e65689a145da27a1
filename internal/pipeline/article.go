package pipeline

import (
	"net/url"
	"sort"
	"strings"
	"unicode"

	"github.com/Aakash091-dark/news-scraper-new/internal/db"
	payloadschema "github.com/Aakash091-dark/news-scraper-new/schema"
)

var trackingQueryKeys = map[string]struct{}{
	"fbclid":  {},
	"gclid":   {},
	"mc_cid":  {},
	"mc_eid":  {},
	"ref":     {},
	"ref_src": {},
	"ocid":    {},
	"cmpid":   {},
}

// second-level labels that sit under a country code, e.g. thehindu.co.in
var genericSecondLevel = map[string]struct{}{
	"co":  {},
	"com": {},
	"org": {},
	"net": {},
	"gov": {},
	"ac":  {},
	"edu": {},
	"nic": {},
}

// Article is a scraped candidate on its way through the pipeline.
type Article struct {
	Title       string
	Link        string
	Description string
	Source      string
	PubDate     string
	FullText    string
	Keywords    []string
	Categories  []db.Category
}

// FromCandidate converts a validated payload into a pipeline article.
func FromCandidate(c payloadschema.Candidate) Article {
	categories := make([]db.Category, 0, len(c.Categories))
	for _, assignment := range c.Categories {
		category := db.Category{Category: assignment.Category}
		if assignment.Subcategory != nil {
			category.Subcategory = *assignment.Subcategory
		}
		categories = append(categories, category)
	}

	return Article{
		Title:       c.Title,
		Link:        c.Link,
		Description: c.Description,
		Source:      c.Source,
		PubDate:     c.PubDate,
		FullText:    c.FullText(),
		Keywords:    append([]string(nil), c.Keywords...),
		Categories:  categories,
	}
}

// embeddingInput is the text the story vector is computed from. Title and
// description carry the story; the body is only used when there is no
// description.
func (a Article) embeddingInput() string {
	title := normalizeText(a.Title)
	body := normalizeText(a.Description)
	if body == "" {
		body = normalizeText(a.FullText)
	}
	switch {
	case title == "":
		return body
	case body == "":
		return title
	default:
		return title + "\n\n" + body
	}
}

func (a Article) toNewArticle(link, scrapeVersion string) db.NewArticle {
	return db.NewArticle{
		Title:         normalizeText(a.Title),
		URL:           link,
		Description:   strings.TrimSpace(a.Description),
		Source:        strings.TrimSpace(a.Source),
		PublishDate:   strings.TrimSpace(a.PubDate),
		FullText:      strings.TrimSpace(a.FullText),
		Keywords:      a.Keywords,
		Categories:    a.Categories,
		ScrapeVersion: scrapeVersion,
	}
}

func normalizeText(input string) string {
	input = strings.TrimSpace(input)
	if input == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(input))
	lastSpace := false
	for _, r := range input {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
			continue
		}
		b.WriteRune(r)
		lastSpace = false
	}
	return strings.TrimSpace(b.String())
}

// normalizeLink canonicalizes an article URL so the same story reached
// through different tracking links maps to one row.
func normalizeLink(raw string) (canonical string, host string) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", ""
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", ""
	}
	parsed.Scheme = strings.ToLower(parsed.Scheme)
	if parsed.Scheme != "http" && parsed.Scheme != "https" || parsed.Host == "" {
		return "", ""
	}

	host = strings.ToLower(parsed.Hostname())
	parsed.Host = host
	if port := parsed.Port(); port != "" {
		defaultPort := (parsed.Scheme == "http" && port == "80") || (parsed.Scheme == "https" && port == "443")
		if !defaultPort {
			parsed.Host = host + ":" + port
		}
	}

	parsed.Fragment = ""
	parsed.RawFragment = ""
	parsed.User = nil
	if len(parsed.Path) > 1 {
		parsed.Path = strings.TrimSuffix(parsed.Path, "/")
		parsed.RawPath = ""
	}

	q := parsed.Query()
	for key := range q {
		lower := strings.ToLower(key)
		if strings.HasPrefix(lower, "utm_") {
			q.Del(key)
			continue
		}
		if _, ok := trackingQueryKeys[lower]; ok {
			q.Del(key)
		}
	}
	if len(q) == 0 {
		parsed.RawQuery = ""
	} else {
		for key := range q {
			sort.Strings(q[key])
		}
		// Encode sorts by key.
		parsed.RawQuery = q.Encode()
	}

	return parsed.String(), host
}

// inferSource derives a publisher label from the link host when the feed did
// not name one: www.thehindu.com and thehindu.co.in both give "thehindu".
func inferSource(host string) string {
	host = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(host)), "www.")
	if host == "" {
		return ""
	}

	labels := strings.Split(host, ".")
	switch {
	case len(labels) == 1:
		return labels[0]
	case len(labels) >= 3:
		if _, ok := genericSecondLevel[labels[len(labels)-2]]; ok {
			return labels[len(labels)-3]
		}
	}
	return labels[len(labels)-2]
}
