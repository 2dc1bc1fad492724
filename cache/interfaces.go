// Package cache provides the file-backed store for fetched shot
// datasets, one entry per fetch key, with atomic whole-entry replace.
package cache

import (
	"errors"
	"time"

	"github.com/courtsight/shotcache/shots"
)

// Entry is a cached dataset plus its metadata header. Entries are
// replaced whole on successful fetch; there is no partial merge.
type Entry struct {
	Key       shots.Key       `json:"key"`
	FetchedAt time.Time       `json:"fetched_at"`
	RowCount  int             `json:"row_count"`
	Source    shots.SourceTag `json:"source"`
	Rows      []shots.Record  `json:"rows"`
}

// Age returns how old the entry is at the given instant.
func (e *Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.FetchedAt)
}

// ErrRowCountMismatch is returned by Put when the metadata header
// disagrees with the row payload.
var ErrRowCountMismatch = errors.New("cache: row count does not match rows")

// Store is the persistence contract. Concurrent writers to the same
// key are serialized by the fetch coordinator; the store only has to
// guarantee that a reader never observes a torn entry.
type Store interface {
	// Get returns the entry for key, or false if nothing is cached.
	Get(key shots.Key) (*Entry, bool)

	// Put replaces the entry for key atomically.
	Put(key shots.Key, entry *Entry) error

	// Exists reports whether an entry is cached for key.
	Exists(key shots.Key) bool

	// AgeOf returns the entry's age at now, or false if absent.
	AgeOf(key shots.Key, now time.Time) (time.Duration, bool)

	// Keys lists every cached key.
	Keys() []shots.Key
}
