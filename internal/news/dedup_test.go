package news

import (
	"testing"
	"time"
)

func at(h int) time.Time {
	return time.Date(2026, 5, 4, h, 0, 0, 0, time.UTC)
}

func TestDedupKey(t *testing.T) {
	tests := []struct {
		title  string
		prefix int
		want   string
	}{
		{"Apple Beats Estimates!", 50, "applebeatsestimates"},
		{"  apple -- beats, estimates ", 50, "applebeatsestimates"},
		{"S&P 500 hits record", 5, "sp500"},
		{"Ünïcode Títle", 4, "ünïc"},
		{"", 50, ""},
	}
	for _, tt := range tests {
		if got := DedupKey(tt.title, tt.prefix); got != tt.want {
			t.Errorf("DedupKey(%q, %d) = %q, want %q", tt.title, tt.prefix, got, tt.want)
		}
	}
}

func TestMergeFiltersDuplicates(t *testing.T) {
	existing := []Item{
		{ID: "a", Title: "Apple beats estimates", PublishedAt: at(10)},
	}
	incoming := []Item{
		{ID: "b", Title: "APPLE BEATS ESTIMATES!!", PublishedAt: at(11)},
		{ID: "c", Title: "Tesla misses", PublishedAt: at(9)},
		{ID: "d", Title: "Tesla misses.", PublishedAt: at(12)},
	}

	merged, added := Merge(existing, incoming, DefaultDedupPrefix)
	if added != 1 {
		t.Fatalf("added = %d, want 1", added)
	}
	if len(merged) != 2 {
		t.Fatalf("len(merged) = %d, want 2", len(merged))
	}
	// Existing wins over incoming, first incoming wins within the batch.
	if merged[0].ID != "a" || merged[1].ID != "c" {
		t.Errorf("unexpected merge result: %+v", merged)
	}

	keys := map[string]bool{}
	for _, it := range merged {
		k := DedupKey(it.Title, DefaultDedupPrefix)
		if keys[k] {
			t.Errorf("duplicate key %q in merged output", k)
		}
		keys[k] = true
	}
}

func TestMergeSortsNewestFirst(t *testing.T) {
	merged, _ := Merge(
		[]Item{{Title: "old", PublishedAt: at(1)}},
		[]Item{{Title: "new", PublishedAt: at(5)}, {Title: "mid", PublishedAt: at(3)}},
		DefaultDedupPrefix,
	)
	want := []string{"new", "mid", "old"}
	for i, w := range want {
		if merged[i].Title != w {
			t.Fatalf("merged[%d] = %q, want %q", i, merged[i].Title, w)
		}
	}
}

func TestSortByRecencyBreaksTiesByDedupKey(t *testing.T) {
	// IDs come from arrival ordinals, so they must not decide the order.
	items := []Item{
		{ID: "wire-1", Title: "Zinc futures slip", PublishedAt: at(4)},
		{ID: "wire-2", Title: "Apple beats estimates", PublishedAt: at(4)},
		{ID: "wire-3", Title: "Market opens", PublishedAt: at(5)},
	}
	SortByRecency(items, DefaultDedupPrefix)
	want := []string{"wire-3", "wire-2", "wire-1"}
	for i, w := range want {
		if items[i].ID != w {
			t.Errorf("items[%d].ID = %q, want %q", i, items[i].ID, w)
		}
	}
}

func TestMergeIsIdempotent(t *testing.T) {
	m, _ := Merge(nil, []Item{
		{Title: "one", PublishedAt: at(1)},
		{Title: "two", PublishedAt: at(2)},
	}, DefaultDedupPrefix)

	again, added := Merge(m, m, DefaultDedupPrefix)
	if added != 0 {
		t.Errorf("added = %d, want 0", added)
	}
	if len(again) != len(m) {
		t.Fatalf("len = %d, want %d", len(again), len(m))
	}
	for i := range m {
		if again[i] != m[i] {
			t.Errorf("item %d changed: %+v vs %+v", i, again[i], m[i])
		}
	}
}

func TestMergeBatchOrderIndependent(t *testing.T) {
	a := Item{ID: "1", Title: "Alpha", PublishedAt: at(4)}
	b := Item{ID: "2", Title: "Beta", PublishedAt: at(4)}
	c := Item{ID: "3", Title: "Gamma", PublishedAt: at(6)}

	left, _ := Merge([]Item{a}, []Item{b, c}, DefaultDedupPrefix)
	right, _ := Merge([]Item{b}, []Item{c, a}, DefaultDedupPrefix)
	if len(left) != len(right) {
		t.Fatalf("lengths differ: %d vs %d", len(left), len(right))
	}
	for i := range left {
		if left[i].ID != right[i].ID {
			t.Errorf("position %d: %s vs %s", i, left[i].ID, right[i].ID)
		}
	}
}

func TestMergeDoesNotModifyInputs(t *testing.T) {
	existing := []Item{{Title: "b", PublishedAt: at(1)}, {Title: "a", PublishedAt: at(2)}}
	Merge(existing, nil, DefaultDedupPrefix)
	if existing[0].Title != "b" {
		t.Error("Merge reordered its input")
	}
}

func TestDedup(t *testing.T) {
	out := Dedup([]Item{
		{ID: "x", Title: "Rates hold", PublishedAt: at(1)},
		{ID: "y", Title: "rates hold", PublishedAt: at(2)},
	}, DefaultDedupPrefix)
	if len(out) != 1 || out[0].ID != "x" {
		t.Errorf("unexpected dedup result: %+v", out)
	}
}
