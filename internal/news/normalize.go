package news

import (
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/mmcdole/gofeed/atom"
	ext "github.com/mmcdole/gofeed/extensions"
	"github.com/mmcdole/gofeed/rss"

	"github.com/deusflow/stockpulse/internal/markup"
)

// draft is what a schema mapper extracts before the shared cleanup. Description
// still carries markup so the image fallback can look inside it.
type draft struct {
	title       string
	description string
	source      string
	link        string
	image       string
	published   *time.Time
}

type mapper func(RawEntry) draft

var mappers = map[Schema]mapper{
	SchemaFeedItem:     mapRSSItem,
	SchemaFeedEntry:    mapAtomEntry,
	SchemaNewsAPI:      mapNewsAPI,
	SchemaNewsData:     mapNewsData,
	SchemaAlphaVantage: mapAlphaVantage,
}

// Normalize maps a raw entry into the canonical Item. It never fails: missing
// fields become "", NullLink or now. The result depends only on e and now.
func Normalize(e RawEntry, now time.Time) Item {
	var d draft
	if m, ok := mappers[e.Schema]; ok {
		d = m(e)
	}

	if d.source == "" {
		d.source = e.Source
	}

	image := strings.TrimSpace(d.image)
	if image == "" {
		image = markup.FirstImage(d.description)
	}

	link := strings.TrimSpace(d.link)
	if link == "" {
		link = NullLink
	}

	published := now
	if d.published != nil && !d.published.IsZero() {
		published = *d.published
	}

	title := markup.CleanText(d.title)
	description := markup.CleanText(d.description)

	return Item{
		ID:          itemID(e.Source, e.Ordinal),
		Title:       title,
		Description: description,
		Category:    Classify(title, description),
		Source:      markup.CleanText(d.source),
		PublishedAt: published.UTC(),
		ImageURL:    image,
		LinkURL:     link,
	}
}

// NormalizeAll maps a batch, dropping records that have neither title nor description.
func NormalizeAll(entries []RawEntry, now time.Time) []Item {
	items := make([]Item, 0, len(entries))
	for _, e := range entries {
		it := Normalize(e, now)
		if it.Title == "" && it.Description == "" {
			continue
		}
		items = append(items, it)
	}
	return items
}

func itemID(source string, ordinal int) string {
	var b strings.Builder
	for _, r := range strings.ToLower(source) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case b.Len() > 0 && !strings.HasSuffix(b.String(), "-"):
			b.WriteByte('-')
		}
	}
	slug := strings.TrimSuffix(b.String(), "-")
	if slug == "" {
		slug = "item"
	}
	return slug + "-" + strconv.Itoa(ordinal)
}

func mapRSSItem(e RawEntry) draft {
	it := e.RSS
	if it == nil {
		return draft{}
	}

	d := draft{
		title:       it.Title,
		description: it.Description,
		link:        it.Link,
		published:   it.PubDateParsed,
	}
	if d.description == "" {
		d.description = it.Content
	}
	if d.link == "" && len(it.Links) > 0 {
		d.link = it.Links[0]
	}
	if d.link == "" && it.GUID != nil && isHTTP(it.GUID.Value) {
		d.link = it.GUID.Value
	}
	if d.published == nil {
		d.published = parseTime(it.PubDate)
	}
	if d.published == nil && it.DublinCoreExt != nil && len(it.DublinCoreExt.Date) > 0 {
		d.published = parseTime(it.DublinCoreExt.Date[0])
	}
	if it.Source != nil && it.Source.Title != "" {
		d.source = it.Source.Title
	}

	enclosures := it.Enclosures
	if it.Enclosure != nil {
		enclosures = append([]*rss.Enclosure{it.Enclosure}, enclosures...)
	}
	for _, enc := range enclosures {
		if enc != nil && isImage(enc.Type, enc.URL) {
			d.image = enc.URL
			break
		}
	}
	if d.image == "" {
		d.image = mediaImage(it.Extensions)
	}
	return d
}

func mapAtomEntry(e RawEntry) draft {
	en := e.Atom
	if en == nil {
		return draft{}
	}

	d := draft{
		title:       en.Title,
		description: en.Summary,
		published:   en.PublishedParsed,
	}
	if d.description == "" && en.Content != nil {
		d.description = en.Content.Value
	}
	if d.published == nil {
		d.published = en.UpdatedParsed
	}
	if d.published == nil {
		d.published = parseTime(en.Published)
	}
	if d.published == nil {
		d.published = parseTime(en.Updated)
	}
	if en.Source != nil && en.Source.Title != "" {
		d.source = en.Source.Title
	}

	d.link = atomLink(en.Links)
	for _, l := range en.Links {
		if l != nil && l.Rel == "enclosure" && isImage(l.Type, l.Href) {
			d.image = l.Href
			break
		}
	}
	if d.image == "" {
		d.image = mediaImage(en.Extensions)
	}
	return d
}

func atomLink(links []*atom.Link) string {
	var fallback string
	for _, l := range links {
		if l == nil || l.Href == "" {
			continue
		}
		if l.Rel == "" || l.Rel == "alternate" {
			return l.Href
		}
		if fallback == "" && l.Rel != "enclosure" && l.Rel != "self" {
			fallback = l.Href
		}
	}
	return fallback
}

func mapNewsAPI(e RawEntry) draft {
	a := e.NewsAPI
	if a == nil {
		return draft{}
	}
	d := draft{
		title:       a.Title,
		description: a.Description,
		source:      a.Source.Name,
		link:        a.URL,
		image:       a.URLToImage,
		published:   parseTime(a.PublishedAt),
	}
	if d.description == "" {
		d.description = a.Content
	}
	return d
}

func mapNewsData(e RawEntry) draft {
	a := e.NewsData
	if a == nil {
		return draft{}
	}
	d := draft{
		title:       a.Title,
		description: a.Description,
		source:      a.SourceName,
		link:        a.Link,
		image:       a.ImageURL,
		published:   parseTime(a.PubDate),
	}
	if d.source == "" {
		d.source = a.SourceID
	}
	return d
}

func mapAlphaVantage(e RawEntry) draft {
	a := e.AlphaVantage
	if a == nil {
		return draft{}
	}
	return draft{
		title:       a.Title,
		description: a.Summary,
		source:      a.Source,
		link:        a.URL,
		image:       a.BannerImage,
		published:   parseTime(a.TimePublished),
	}
}

// mediaImage looks for Media RSS content or thumbnail elements.
func mediaImage(exts ext.Extensions) string {
	media, ok := exts["media"]
	if !ok {
		return ""
	}
	for _, name := range []string{"content", "thumbnail"} {
		for _, m := range media[name] {
			u := m.Attrs["url"]
			if u == "" {
				continue
			}
			if name == "thumbnail" || isImage(m.Attrs["type"]+m.Attrs["medium"], u) {
				return u
			}
		}
	}
	// media:group wraps content elements in some feeds.
	for _, g := range media["group"] {
		for _, c := range g.Children["content"] {
			if u := c.Attrs["url"]; u != "" && isImage(c.Attrs["type"]+c.Attrs["medium"], u) {
				return u
			}
		}
	}
	return ""
}

var imageExts = []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".avif"}

func isImage(mimeType, u string) bool {
	if u == "" {
		return false
	}
	if strings.Contains(strings.ToLower(mimeType), "image") {
		return true
	}
	path := strings.ToLower(u)
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	for _, suffix := range imageExts {
		if strings.HasSuffix(path, suffix) {
			return true
		}
	}
	return false
}

func isHTTP(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

var timeLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"20060102T150405",
	"20060102T1504",
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"2006-01-02",
}

// parseTime tries the layouts upstreams use. Zone-less layouts are read as UTC.
func parseTime(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
