package cache

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/courtsight/shotcache/shots"
)

// FileStore implements Store with one JSON file per key under a root
// directory. The on-disk schema is additive: unknown fields are
// ignored on read, missing fields default to their zero value.
type FileStore struct {
	dir string
}

// NewFileStore creates the root directory if needed and returns a
// store rooted there.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("cache: empty root directory")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("cache: create root: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the store's root directory.
func (fs *FileStore) Dir() string { return fs.dir }

// Get implements Store.
func (fs *FileStore) Get(key shots.Key) (*Entry, bool) {
	data, err := os.ReadFile(fs.path(key))
	if err != nil {
		return nil, false
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, false
	}
	return &entry, true
}

// Put implements Store. The entry is written to a temp file and
// renamed into place, so a crash mid-write leaves the previous entry
// (or nothing) visible, never a partial one.
func (fs *FileStore) Put(key shots.Key, entry *Entry) error {
	if entry.RowCount != len(entry.Rows) {
		return fmt.Errorf("%w: header says %d, have %d rows", ErrRowCountMismatch, entry.RowCount, len(entry.Rows))
	}

	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("cache: marshal entry: %w", err)
	}

	path := fs.path(key)
	tmpPath := path + fmt.Sprintf(".tmp.%d", rand.Int())
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("cache: write temp: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("cache: rename: %w", err)
	}
	return nil
}

// Exists implements Store.
func (fs *FileStore) Exists(key shots.Key) bool {
	_, err := os.Stat(fs.path(key))
	return err == nil
}

// AgeOf implements Store.
func (fs *FileStore) AgeOf(key shots.Key, now time.Time) (time.Duration, bool) {
	entry, ok := fs.Get(key)
	if !ok {
		return 0, false
	}
	return entry.Age(now), true
}

// Keys implements Store by scanning the root directory. Temp files
// and anything that doesn't parse are skipped.
func (fs *FileStore) Keys() []shots.Key {
	entries, err := os.ReadDir(fs.dir)
	if err != nil {
		return nil
	}

	var keys []shots.Key
	for _, de := range entries {
		name := de.Name()
		if de.IsDir() || !strings.HasSuffix(name, ".json") || strings.Contains(name, ".tmp.") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(fs.dir, name))
		if err != nil {
			continue
		}
		var header struct {
			Key shots.Key `json:"key"`
		}
		if err := json.Unmarshal(data, &header); err != nil || header.Key.Subject == "" {
			continue
		}
		keys = append(keys, header.Key)
	}
	return keys
}

// path generates the filesystem path for a key's entry file.
func (fs *FileStore) path(key shots.Key) string {
	return filepath.Join(fs.dir, key.Slug()+".json")
}
