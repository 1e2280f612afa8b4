// Package storage keeps the canonical item list across restarts: a JSON
// snapshot file for warm starts and an optional PostgreSQL archive.
package storage

import (
	"context"

	"github.com/deusflow/stockpulse/internal/news"
)

// Store persists the canonical item list.
type Store interface {
	Load(ctx context.Context) ([]news.Item, error)
	Save(ctx context.Context, items []news.Item) error
	Close() error
}
