package feeds

import (
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
)

// PubDateLayout is the dd-mm-yyyy form stored for every candidate.
const PubDateLayout = "02-01-2006"

// StripHTML returns the visible text of an HTML fragment with whitespace
// collapsed. Feed descriptions frequently embed images and links.
func StripHTML(fragment string) string {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return ""
	}
	if !strings.ContainsAny(fragment, "<&") {
		return strings.Join(strings.Fields(fragment), " ")
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.Join(strings.Fields(fragment), " ")
	}
	doc.Find("script, style, noscript").Remove()
	return strings.Join(strings.Fields(doc.Text()), " ")
}

// NormalizePubDate renders a feed timestamp as dd-mm-yyyy in the timestamp's
// own offset; values without one are read as UTC. Unparseable values come
// back empty.
func NormalizePubDate(raw string) string {
	raw = strings.TrimSpace(raw)
	if len(raw) < 6 {
		return ""
	}
	parsed, err := dateparse.ParseIn(raw, time.UTC)
	if err != nil {
		return ""
	}
	return parsed.Format(PubDateLayout)
}
