package news

import (
	"sort"
	"strings"
	"unicode"
)

// DefaultDedupPrefix is the number of key runes compared when no length is configured.
const DefaultDedupPrefix = 50

// DedupKey normalizes a title for near-duplicate detection: lower-cased,
// letters and digits only, truncated to prefixLen runes.
func DedupKey(title string, prefixLen int) string {
	if prefixLen <= 0 {
		prefixLen = DefaultDedupPrefix
	}
	var b strings.Builder
	n := 0
	for _, r := range strings.ToLower(title) {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			continue
		}
		b.WriteRune(r)
		n++
		if n == prefixLen {
			break
		}
	}
	return b.String()
}

// Merge appends the genuinely new items of incoming to existing. An incoming
// item is dropped when its key is already present in existing or earlier in
// the same batch. The result is ordered newest first. added is the number of
// incoming items kept.
func Merge(existing, incoming []Item, prefixLen int) (merged []Item, added int) {
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	merged = make([]Item, 0, len(existing)+len(incoming))

	for _, it := range existing {
		key := DedupKey(it.Title, prefixLen)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		merged = append(merged, it)
	}

	for _, it := range incoming {
		key := DedupKey(it.Title, prefixLen)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		merged = append(merged, it)
		added++
	}

	SortByRecency(merged, prefixLen)
	return merged, added
}

// Dedup removes near-duplicates from a single batch, first occurrence wins.
func Dedup(items []Item, prefixLen int) []Item {
	out, _ := Merge(nil, items, prefixLen)
	return out
}

// SortByRecency orders items by PublishedAt descending. Equal timestamps fall
// back to the dedup key so the order does not depend on arrival order.
func SortByRecency(items []Item, prefixLen int) {
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].PublishedAt.Equal(items[j].PublishedAt) {
			return items[i].PublishedAt.After(items[j].PublishedAt)
		}
		return DedupKey(items[i].Title, prefixLen) < DedupKey(items[j].Title, prefixLen)
	})
}
