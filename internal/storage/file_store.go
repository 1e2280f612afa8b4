package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/deusflow/stockpulse/internal/news"
)

type snapshotFile struct {
	SavedAt time.Time   `json:"saved_at"`
	Items   []news.Item `json:"items"`
}

// FileStore keeps the latest canonical list in a JSON file.
type FileStore struct {
	filePath string
	maxAge   time.Duration
	mu       sync.Mutex
	now      func() time.Time
}

// NewFileStore creates a file store. Items published more than maxAge ago are
// dropped on Load; zero keeps everything.
func NewFileStore(filePath string, maxAge time.Duration) *FileStore {
	return &FileStore{
		filePath: filePath,
		maxAge:   maxAge,
		now:      time.Now,
	}
}

// Load reads the snapshot. A missing or empty file is an empty list.
func (fs *FileStore) Load(ctx context.Context) ([]news.Item, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	data, err := os.ReadFile(fs.filePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var snap snapshotFile
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	if fs.maxAge <= 0 {
		return snap.Items, nil
	}
	cutoff := fs.now().Add(-fs.maxAge)
	items := make([]news.Item, 0, len(snap.Items))
	for _, it := range snap.Items {
		if it.PublishedAt.After(cutoff) {
			items = append(items, it)
		}
	}
	return items, nil
}

// Save replaces the snapshot. The file is written to a temporary sibling and
// renamed so readers never see a partial document.
func (fs *FileStore) Save(ctx context.Context, items []news.Item) error {
	data, err := json.MarshalIndent(snapshotFile{SavedAt: fs.now().UTC(), Items: items}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if dir := filepath.Dir(fs.filePath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create snapshot dir: %w", err)
		}
	}
	tmp := fs.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot file: %w", err)
	}
	if err := os.Rename(tmp, fs.filePath); err != nil {
		return fmt.Errorf("failed to replace snapshot file: %w", err)
	}
	return nil
}

func (fs *FileStore) Close() error { return nil }
