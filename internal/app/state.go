package app

import (
	"time"

	"github.com/deusflow/stockpulse/internal/news"
	"github.com/deusflow/stockpulse/internal/pagination"
)

// state is the aggregate owned by an Aggregator. It is only touched with
// Aggregator.mu held.
type state struct {
	items       []news.Item
	category    news.Category
	cursor      *pagination.Cursor
	lastRefresh time.Time
	lastCycle   string
}

// Snapshot is a read-only copy of the aggregate for presentation.
type Snapshot struct {
	Items          []news.Item   `json:"-"`
	Visible        []news.Item   `json:"items"`
	Category       news.Category `json:"category"`
	PageIndex      int           `json:"page"`
	PageSize       int           `json:"pageSize"`
	Total          int           `json:"total"`
	FilteredTotal  int           `json:"filteredTotal"`
	HasMore        bool          `json:"hasMore"`
	NoData         bool          `json:"noData"`
	ExhaustedUntil *time.Time    `json:"exhaustedUntil,omitempty"`
	LastRefresh    time.Time     `json:"lastRefresh"`
	Cycle          string        `json:"cycle,omitempty"`
}

func (s *state) snapshot(pageSize int, now time.Time) Snapshot {
	items := make([]news.Item, len(s.items))
	copy(items, s.items)

	page := s.cursor.PageIndex()
	filtered := pagination.Filter(items, s.category)
	snap := Snapshot{
		Items:         items,
		Visible:       pagination.Window(items, s.category, pageSize, page),
		Category:      s.category,
		PageIndex:     page,
		PageSize:      pageSize,
		Total:         len(items),
		FilteredTotal: len(filtered),
		NoData:        len(items) == 0,
		LastRefresh:   s.lastRefresh,
		Cycle:         s.lastCycle,
	}
	exhausted, until := s.cursor.Exhausted(now)
	if exhausted {
		snap.ExhaustedUntil = &until
	}
	snap.HasMore = len(snap.Visible) < len(filtered) || !exhausted
	return snap
}
