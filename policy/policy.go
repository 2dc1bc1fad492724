// Package policy decides how a read for a fetch key should be served,
// given only the cache metadata and the configured freshness windows.
// It is a pure function layer: no clocks, no I/O.
package policy

import (
	"fmt"
	"time"
)

// Mode selects how aggressively the system reaches for the network.
type Mode string

const (
	// ModeLive fetches when needed and refreshes stale data.
	ModeLive Mode = "live"
	// ModeCacheOnly never touches the network; stale data is served
	// best-effort, and a missing entry degrades to the demo dataset.
	ModeCacheOnly Mode = "cache_only"
	// ModeDemoForced always serves the bundled demo dataset.
	ModeDemoForced Mode = "demo_forced"
)

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeLive, ModeCacheOnly, ModeDemoForced:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown mode %q", s)
}

// Decision is the outcome of a freshness check.
type Decision string

const (
	ServeCache             Decision = "serve_cache"
	RefreshThenServe       Decision = "refresh_then_serve"
	ServeStaleRefreshAsync Decision = "serve_stale_refresh_async"
	FetchRequired          Decision = "fetch_required"
	ServeDemo              Decision = "serve_demo"
)

// EntryMeta is the slice of cache metadata the policy needs. A nil
// *EntryMeta means nothing is cached for the key.
type EntryMeta struct {
	FetchedAt time.Time
}

// Decide applies the freshness rules in priority order:
//
//  1. demo-forced mode wins unconditionally
//  2. nothing cached: demo under cache-only, otherwise a blocking fetch
//  3. fresh entry (age <= ttl): serve it
//  4. stale entry under cache-only: serve it, no network
//  5. stale entry under live: block only past the hard threshold,
//     otherwise serve stale and refresh in the background
//
// Blocking is reserved for very stale data so common-case reads stay
// non-blocking and network failures stay isolated from readers.
func Decide(entry *EntryMeta, now time.Time, ttl, hardStale time.Duration, mode Mode) Decision {
	if mode == ModeDemoForced {
		return ServeDemo
	}

	if entry == nil {
		if mode == ModeCacheOnly {
			return ServeDemo
		}
		return FetchRequired
	}

	age := now.Sub(entry.FetchedAt)
	if age <= ttl {
		return ServeCache
	}

	if mode == ModeCacheOnly {
		return ServeCache
	}

	if age > hardStale {
		return RefreshThenServe
	}
	return ServeStaleRefreshAsync
}
