package newsfeed

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

// Item is a single harvested listing entry. URL is the unique key within a
// store.
type Item struct {
	Title    string `json:"title"`
	URL      string `json:"url"`
	Date     string `json:"date"`
	Category string `json:"category"`
	Image    string `json:"image"`
	Preview  string `json:"preview"`
}

// ErrCorruptStore is wrapped by Load when the store file exists but does not
// hold a JSON array of items.
var ErrCorruptStore = errors.New("store file is corrupt")

// Store is an ordered, newest-first list of items kept in a single JSON file.
// The file is always rewritten in full.
type Store struct {
	path string
}

// NewStore creates a store backed by the file at path. The parent directory
// is created if it doesn't exist.
func NewStore(path string) (*Store, error) {
	// 0700: owner-only access
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &Store{
		path: path,
	}, nil
}

// Path returns the location of the store file.
func (s *Store) Path() string {
	return s.path
}

// Load reads every item in the store. A missing file is an empty store. A
// file that cannot be decoded returns an error wrapping ErrCorruptStore; the
// caller decides whether to degrade to an empty store.
func (s *Store) Load() ([]Item, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Item{}, nil
		}
		return nil, fmt.Errorf("failed to read store: %w", err)
	}

	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptStore, err)
	}
	if items == nil {
		items = []Item{}
	}

	return items, nil
}

// Save replaces the store with items. The new contents are written to a
// temporary file and renamed over the old one, so readers never observe a
// partial store.
func (s *Store) Save(items []Item) error {
	if items == nil {
		items = []Item{}
	}

	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal store: %w", err)
	}

	// 0600: owner-only read/write
	if err := renameio.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write store: %w", err)
	}

	return nil
}

// Snapshot is the raw store file as it was at one point in time, including
// whether it existed.
type Snapshot struct {
	data   []byte
	exists bool
}

// Snapshot captures the current file contents byte for byte, whether or not
// they decode.
func (s *Store) Snapshot() (Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Snapshot{}, nil
		}
		return Snapshot{}, fmt.Errorf("failed to read store: %w", err)
	}
	return Snapshot{data: data, exists: true}, nil
}

// Restore puts the store file back to snap. A snapshot of a missing file
// removes the store.
func (s *Store) Restore(snap Snapshot) error {
	if !snap.exists {
		if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove store: %w", err)
		}
		return nil
	}
	if err := renameio.WriteFile(s.path, snap.data, 0o600); err != nil {
		return fmt.Errorf("failed to restore store: %w", err)
	}
	return nil
}

// Latest returns the newest item in the store, or nil if it is empty.
func (s *Store) Latest() (*Item, error) {
	items, err := s.Load()
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil // Empty store (not an error)
	}

	latest := items[0]
	return &latest, nil
}
