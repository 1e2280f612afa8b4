// Package markup turns the HTML fragments found in feed descriptions and API
// summaries into plain text and pulls the first embedded image out of them.
package markup

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// maxPasses bounds the strip/decode loop for pathologically nested escaping.
const maxPasses = 8

// CleanText strips tags, decodes HTML entities and collapses whitespace.
// Text produced by entity decoding is cleaned again until nothing changes, so
// CleanText(CleanText(s)) == CleanText(s).
func CleanText(s string) string {
	s = collapse(s)
	for i := 0; i < maxPasses; i++ {
		if !strings.ContainsAny(s, "<&") {
			return s
		}
		next := collapse(textOf(s))
		if next == s {
			return s
		}
		s = next
	}
	return s
}

// FirstImage returns the src of the first usable <img> in an HTML fragment.
func FirstImage(fragment string) string {
	if !strings.Contains(strings.ToLower(fragment), "<img") {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return ""
	}

	var src string
	doc.Find("img").EachWithBreak(func(i int, s *goquery.Selection) bool {
		for _, attr := range []string{"src", "data-src"} {
			v, ok := s.Attr(attr)
			v = strings.TrimSpace(v)
			if ok && usableImage(v) {
				src = v
				return false
			}
		}
		return true
	})
	return src
}

func usableImage(src string) bool {
	if src == "" {
		return false
	}
	lower := strings.ToLower(src)
	return strings.HasPrefix(lower, "http://") ||
		strings.HasPrefix(lower, "https://") ||
		strings.HasPrefix(lower, "//")
}

func textOf(fragment string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return fragment
	}
	doc.Find("script, style").Remove()

	// Block-level breaks would otherwise glue adjacent words together.
	doc.Find("br, p, div, li").Each(func(i int, s *goquery.Selection) {
		s.BeforeHtml(" ")
	})
	return doc.Text()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
