// Package pagination exposes a growing window over the canonical item list.
package pagination

import (
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/deusflow/stockpulse/internal/news"
)

const (
	DefaultPageSize   = 6
	DefaultRetryAfter = time.Minute
)

// Filter keeps items of category c. The empty category keeps everything.
func Filter(items []news.Item, c news.Category) []news.Item {
	if c == "" {
		return items
	}
	return lo.Filter(items, func(it news.Item, _ int) bool {
		return it.Category == c
	})
}

// VisibleCount is pageSize*pageIndex clamped to [0, total].
func VisibleCount(total, pageSize, pageIndex int) int {
	if total <= 0 || pageSize <= 0 || pageIndex <= 0 {
		return 0
	}
	n := pageSize * pageIndex
	if n > total {
		return total
	}
	return n
}

// Window filters items by category and returns the first pageIndex pages as a
// new slice. The first visible item is the featured one.
func Window(items []news.Item, c news.Category, pageSize, pageIndex int) []news.Item {
	filtered := Filter(items, c)
	n := VisibleCount(len(filtered), pageSize, pageIndex)
	return news.MarkFeatured(filtered[:n])
}

// Cursor tracks how many pages are exposed and whether the last fetch for
// more items came back empty.
type Cursor struct {
	mu          sync.Mutex
	pageIndex   int
	exhaustedAt time.Time
	retryAfter  time.Duration
}

func NewCursor(retryAfter time.Duration) *Cursor {
	if retryAfter <= 0 {
		retryAfter = DefaultRetryAfter
	}
	return &Cursor{pageIndex: 1, retryAfter: retryAfter}
}

func (c *Cursor) PageIndex() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pageIndex
}

// CanGrow reports whether the next page can be served from already fetched items.
func (c *Cursor) CanGrow(filteredLen, pageSize int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return VisibleCount(filteredLen, pageSize, c.pageIndex) < filteredLen
}

// Grow exposes one more page and returns the new page index.
func (c *Cursor) Grow() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pageIndex++
	return c.pageIndex
}

// MarkExhausted records that a fetch for more items found nothing new.
func (c *Cursor) MarkExhausted(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.exhaustedAt = now
}

// Exhausted reports whether load-more is still inside its retry window.
// It returns the time at which fetching may be tried again.
func (c *Cursor) Exhausted(now time.Time) (bool, time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.exhaustedAt.IsZero() {
		return false, time.Time{}
	}
	until := c.exhaustedAt.Add(c.retryAfter)
	if !now.Before(until) {
		c.exhaustedAt = time.Time{}
		return false, time.Time{}
	}
	return true, until
}

// ClearExhausted drops the retry window after new items arrived.
func (c *Cursor) ClearExhausted() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.exhaustedAt = time.Time{}
}

// Reset returns to the first page, used on category change and refresh.
func (c *Cursor) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pageIndex = 1
	c.exhaustedAt = time.Time{}
}
