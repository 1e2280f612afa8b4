package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/deusflow/stockpulse/internal/logger"
	"github.com/deusflow/stockpulse/internal/news"
)

const defaultLoadLimit = 200

// PostgresStore archives every item ever ingested, keyed by dedup key, and
// serves the most recent ones back on Load.
type PostgresStore struct {
	db        *sql.DB
	prefixLen int
	loadLimit int
}

func NewPostgresStore(ctx context.Context, connectionString string, prefixLen int) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	ps := &PostgresStore{db: db, prefixLen: prefixLen, loadLimit: defaultLoadLimit}
	if err := ps.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("PostgreSQL archive connected")
	return ps, nil
}

func (ps *PostgresStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS news_items (
		id SERIAL PRIMARY KEY,
		dedup_key VARCHAR(200) UNIQUE NOT NULL,
		item_id TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		category VARCHAR(20) NOT NULL,
		source VARCHAR(200) NOT NULL DEFAULT '',
		published_at TIMESTAMPTZ NOT NULL,
		image_url TEXT NOT NULL DEFAULT '',
		link_url TEXT NOT NULL,
		first_seen_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		last_seen_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_news_items_published_at ON news_items(published_at);
	CREATE INDEX IF NOT EXISTS idx_news_items_category ON news_items(category);
	`

	if _, err := ps.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Save upserts items by dedup key in one transaction.
func (ps *PostgresStore) Save(ctx context.Context, items []news.Item) error {
	tx, err := ps.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO news_items (dedup_key, item_id, title, description, category, source, published_at, image_url, link_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (dedup_key) DO UPDATE SET last_seen_at = NOW()
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, it := range items {
		key := news.DedupKey(it.Title, ps.prefixLen)
		if key == "" {
			continue
		}
		_, err := stmt.ExecContext(ctx, key, it.ID, it.Title, it.Description, string(it.Category),
			it.Source, it.PublishedAt, it.ImageURL, it.LinkURL)
		if err != nil {
			return fmt.Errorf("failed to archive item %s: %w", it.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit archive: %w", err)
	}
	return nil
}

// Load returns the most recently published archived items, newest first.
func (ps *PostgresStore) Load(ctx context.Context) ([]news.Item, error) {
	rows, err := ps.db.QueryContext(ctx, `
		SELECT item_id, title, description, category, source, published_at, image_url, link_url
		FROM news_items
		ORDER BY published_at DESC
		LIMIT $1
	`, ps.loadLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to query archive: %w", err)
	}
	defer rows.Close()

	var items []news.Item
	for rows.Next() {
		var it news.Item
		var category string
		if err := rows.Scan(&it.ID, &it.Title, &it.Description, &category, &it.Source,
			&it.PublishedAt, &it.ImageURL, &it.LinkURL); err != nil {
			logger.Warn("Error scanning archived item", "error", err)
			continue
		}
		it.Category = news.Category(category)
		it.PublishedAt = it.PublishedAt.UTC()
		items = append(items, it)
	}
	return items, rows.Err()
}

// Cleanup removes items published before olderThan ago.
func (ps *PostgresStore) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	result, err := ps.db.ExecContext(ctx, `DELETE FROM news_items WHERE published_at < $1`, time.Now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows > 0 {
		logger.Info("Cleaned up archived items", "rows", rows)
	}
	return rows, nil
}

// GetStats returns archive counts in total and per category.
func (ps *PostgresStore) GetStats(ctx context.Context) (map[string]int, error) {
	stats := make(map[string]int)

	var total int
	if err := ps.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM news_items`).Scan(&total); err != nil {
		return nil, err
	}
	stats["total_items"] = total

	rows, err := ps.db.QueryContext(ctx, `SELECT category, COUNT(*) FROM news_items GROUP BY category`)
	if err != nil {
		return stats, nil
	}
	defer rows.Close()
	for rows.Next() {
		var category string
		var count int
		if err := rows.Scan(&category, &count); err == nil {
			stats["category_"+category] = count
		}
	}
	return stats, nil
}

func (ps *PostgresStore) Close() error {
	if ps.db != nil {
		return ps.db.Close()
	}
	return nil
}
