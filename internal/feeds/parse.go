package feeds

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"
)

// Entry is one item of a parsed RSS or Atom document.
type Entry struct {
	GUID        string
	Title       string
	Link        string
	Description string
	Content     string
	Published   string
}

type Document struct {
	Title   string
	Link    string
	Entries []Entry
}

// Parse detects RSS 2.0 (or RDF) and Atom 1.0 from the root element.
func Parse(data []byte) (*Document, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("feed: empty document")
	}

	switch detectFormat(trimmed) {
	case "rss":
		return parseRSS(trimmed)
	case "atom":
		return parseAtom(trimmed)
	default:
		return nil, fmt.Errorf("feed: unknown format (expected <rss> or <feed>)")
	}
}

func detectFormat(data []byte) string {
	d := xml.NewDecoder(bytes.NewReader(data))
	d.Strict = false
	for {
		tok, err := d.Token()
		if err != nil {
			return ""
		}
		if se, ok := tok.(xml.StartElement); ok {
			switch strings.ToLower(se.Name.Local) {
			case "rss", "rdf":
				return "rss"
			case "feed":
				return "atom"
			default:
				return ""
			}
		}
	}
}

type rssChannel struct {
	Title string    `xml:"title"`
	Link  string    `xml:"link"`
	Items []rssItem `xml:"item"`
}

type rssItem struct {
	GUID        string `xml:"guid"`
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	Content     string `xml:"encoded"`
	PubDate     string `xml:"pubDate"`
	Date        string `xml:"date"`
}

// rssRoot also covers RSS 1.0, where items sit beside the channel.
type rssRoot struct {
	Channel rssChannel `xml:"channel"`
	Items   []rssItem  `xml:"item"`
}

func parseRSS(data []byte) (*Document, error) {
	var root rssRoot
	if err := unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("feed: parse rss: %w", err)
	}

	items := append(root.Channel.Items, root.Items...)
	doc := &Document{
		Title:   strings.TrimSpace(root.Channel.Title),
		Link:    strings.TrimSpace(root.Channel.Link),
		Entries: make([]Entry, 0, len(items)),
	}
	for _, item := range items {
		published := strings.TrimSpace(item.PubDate)
		if published == "" {
			published = strings.TrimSpace(item.Date)
		}
		guid := strings.TrimSpace(item.GUID)
		if guid == "" {
			guid = strings.TrimSpace(item.Link)
		}
		doc.Entries = append(doc.Entries, Entry{
			GUID:        guid,
			Title:       strings.TrimSpace(item.Title),
			Link:        strings.TrimSpace(item.Link),
			Description: strings.TrimSpace(item.Description),
			Content:     strings.TrimSpace(item.Content),
			Published:   published,
		})
	}
	return doc, nil
}

type atomFeed struct {
	Title   string      `xml:"title"`
	Links   []atomLink  `xml:"link"`
	Entries []atomEntry `xml:"entry"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
}

type atomEntry struct {
	ID        string     `xml:"id"`
	Title     string     `xml:"title"`
	Links     []atomLink `xml:"link"`
	Summary   string     `xml:"summary"`
	Content   string     `xml:"content"`
	Published string     `xml:"published"`
	Updated   string     `xml:"updated"`
}

func parseAtom(data []byte) (*Document, error) {
	var root atomFeed
	if err := unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("feed: parse atom: %w", err)
	}

	doc := &Document{
		Title:   strings.TrimSpace(root.Title),
		Link:    atomLinkFor(root.Links, "self"),
		Entries: make([]Entry, 0, len(root.Entries)),
	}
	for _, entry := range root.Entries {
		link := atomLinkFor(entry.Links, "alternate")
		guid := strings.TrimSpace(entry.ID)
		if guid == "" {
			guid = link
		}
		published := strings.TrimSpace(entry.Published)
		if published == "" {
			published = strings.TrimSpace(entry.Updated)
		}
		doc.Entries = append(doc.Entries, Entry{
			GUID:        guid,
			Title:       strings.TrimSpace(entry.Title),
			Link:        link,
			Description: strings.TrimSpace(entry.Summary),
			Content:     strings.TrimSpace(entry.Content),
			Published:   published,
		})
	}
	return doc, nil
}

// atomLinkFor picks the link with the wanted rel; rel-less links count as
// alternate.
func atomLinkFor(links []atomLink, rel string) string {
	fallback := ""
	for _, link := range links {
		href := strings.TrimSpace(link.Href)
		if href == "" {
			continue
		}
		r := strings.TrimSpace(link.Rel)
		if r == rel || (r == "" && rel == "alternate") {
			return href
		}
		if fallback == "" {
			fallback = href
		}
	}
	return fallback
}

func unmarshal(data []byte, v any) error {
	d := xml.NewDecoder(bytes.NewReader(data))
	d.Strict = false
	d.Entity = xml.HTMLEntity
	return d.Decode(v)
}
