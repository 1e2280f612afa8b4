// Package news holds the canonical news item, the per-schema normalizers that
// map upstream records into it, topic classification and deduplicating merge.
package news

import (
	"strings"
	"time"
)

// Category is the derived topic of an item.
type Category string

const (
	Markets Category = "markets"
	Stocks  Category = "stocks"
	Economy Category = "economy"
	IPO     Category = "ipo"
	Crypto  Category = "crypto"
)

// AllCategories returns all categories in display order.
func AllCategories() []Category {
	return []Category{Markets, Stocks, Economy, IPO, Crypto}
}

// ParseCategory maps user input to a category. "" and "all" mean no filter and
// return ("", true).
func ParseCategory(s string) (Category, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || s == "all" {
		return "", true
	}
	for _, c := range AllCategories() {
		if string(c) == s {
			return c, true
		}
	}
	return "", false
}

// NullLink is the link used when upstream gives none.
const NullLink = "#"

// Item is the canonical news record every source is mapped into.
type Item struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    Category  `json:"category"`
	Source      string    `json:"source"`
	PublishedAt time.Time `json:"publishedAt"`
	ImageURL    string    `json:"imageUrl,omitempty"`
	LinkURL     string    `json:"linkUrl"`
	IsFeatured  bool      `json:"isFeatured"`
}

// MarkFeatured returns a copy of batch with only the first item featured.
func MarkFeatured(batch []Item) []Item {
	out := make([]Item, len(batch))
	copy(out, batch)
	for i := range out {
		out[i].IsFeatured = i == 0
	}
	return out
}
