// Package ledger persists the watermark: the newest known item plus the
// outcome of the last run. The next incremental run reads it to decide where
// to stop.
package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"
	"github.com/pevans/newsharvest/newsfeed"
)

// Run modes recorded in the watermark.
const (
	ModeIncremental = "incremental"
	ModeFull        = "full"
)

// Watermark identifies the most recent known item and describes the run that
// recorded it.
type Watermark struct {
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	Date      string    `json:"date"`
	Timestamp time.Time `json:"timestamp"`
	Mode      string    `json:"mode"`
	NewItems  int       `json:"new_items"`
}

// timestampLayouts are tried in order when reading a ledger. Timestamps
// without an offset are taken as local time.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// UnmarshalJSON decodes a watermark, accepting ISO 8601 timestamps with or
// without an offset. An unparseable timestamp leaves Timestamp zero; the
// watermark itself stays usable.
func (w *Watermark) UnmarshalJSON(data []byte) error {
	type Alias Watermark
	aux := struct {
		*Alias
		Timestamp json.RawMessage `json:"timestamp"`
	}{Alias: (*Alias)(w)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	w.Timestamp = time.Time{}
	var raw string
	if err := json.Unmarshal(aux.Timestamp, &raw); err != nil || raw == "" {
		return nil
	}
	w.Timestamp = parseTimestamp(raw)
	return nil
}

func parseTimestamp(raw string) time.Time {
	for _, layout := range timestampLayouts {
		if ts, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
			return ts
		}
	}
	return time.Time{}
}

// FromItem builds the watermark for a finished run from the newest item of
// the merged store.
func FromItem(item newsfeed.Item, mode string, newItems int, now time.Time) Watermark {
	return Watermark{
		Title:     item.Title,
		URL:       item.URL,
		Date:      item.Date,
		Timestamp: now,
		Mode:      mode,
		NewItems:  newItems,
	}
}

// CorruptError is returned by Load when the ledger file exists but cannot be
// decoded.
type CorruptError struct {
	Path string
	Err  error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("ledger %s is corrupt: %v", e.Path, e.Err)
}

func (e *CorruptError) Unwrap() error {
	return e.Err
}

// Ledger reads and writes the watermark file. It is the only writer of that
// file.
type Ledger struct {
	path string
}

// New creates a ledger stored at path, creating the parent directory if
// needed.
func New(path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}
	return &Ledger{path: path}, nil
}

// Path returns the location of the ledger file.
func (l *Ledger) Path() string {
	return l.path
}

// Load returns the last saved watermark. It returns nil, nil when no run has
// been recorded yet.
func (l *Ledger) Load() (*Watermark, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // No prior run (not an error)
		}
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}

	var wm Watermark
	if err := json.Unmarshal(data, &wm); err != nil {
		return nil, &CorruptError{Path: l.path, Err: err}
	}
	if wm.URL == "" {
		return nil, &CorruptError{Path: l.path, Err: fmt.Errorf("missing url")}
	}

	return &wm, nil
}

// Save overwrites the ledger with wm. There is no history of earlier
// watermarks.
func (l *Ledger) Save(wm Watermark) error {
	data, err := json.MarshalIndent(wm, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal watermark: %w", err)
	}

	if err := renameio.WriteFile(l.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write ledger: %w", err)
	}

	return nil
}
