// Package coordinator orchestrates fetches against the upstream
// collaborator: it coalesces concurrent requests for the same key into
// one network call, retries transient failures with exponential
// backoff, and writes successful results into the cache store.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/courtsight/shotcache/cache"
	"github.com/courtsight/shotcache/shots"
)

// Fetcher is the blocking upstream collaborator.
type Fetcher interface {
	FetchShots(ctx context.Context, key shots.Key) ([]shots.Record, error)
}

// Options tune retry and freshness behavior. Zero values fall back to
// the defaults below.
type Options struct {
	TTL            time.Duration
	MaxRetries     int
	BackoffBase    time.Duration
	BackoffCap     time.Duration
	AttemptTimeout time.Duration
}

const (
	defaultTTL            = 24 * time.Hour
	defaultMaxRetries     = 6
	defaultBackoffBase    = time.Second
	defaultBackoffCap     = 30 * time.Second
	defaultAttemptTimeout = 30 * time.Second
)

func (o *Options) fill() {
	if o.TTL <= 0 {
		o.TTL = defaultTTL
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = defaultMaxRetries
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = defaultBackoffBase
	}
	if o.BackoffCap <= 0 {
		o.BackoffCap = defaultBackoffCap
	}
	if o.AttemptTimeout <= 0 {
		o.AttemptTimeout = defaultAttemptTimeout
	}
}

// ErrCacheWrite marks a fetch that succeeded over the network but
// could not be persisted. The returned entry still carries the rows.
var ErrCacheWrite = errors.New("coordinator: cache write failed")

type Coordinator struct {
	store   cache.Store
	fetcher Fetcher
	opts    Options
	log     zerolog.Logger

	sf  singleflight.Group
	now func() time.Time
}

func New(store cache.Store, fetcher Fetcher, opts Options, log zerolog.Logger) *Coordinator {
	opts.fill()
	return &Coordinator{
		store:   store,
		fetcher: fetcher,
		opts:    opts,
		log:     log.With().Str("component", "coordinator").Logger(),
		now:     time.Now,
	}
}

// Refresh brings key up to date. A key already within TTL is a cheap
// no-op, so blunt periodic sweeps stay safe. Unlike the read path, a
// failed refresh is reported as a failure: a refresh that could not
// replace the entry has nothing to fall back on, and its caller needs
// the error to record or retry the job.
func (c *Coordinator) Refresh(ctx context.Context, key shots.Key) error {
	if age, ok := c.store.AgeOf(key, c.now()); ok && age <= c.opts.TTL {
		return nil
	}
	_, err := c.FetchNow(ctx, key)
	return err
}

// FetchNow performs a coalesced fetch for key and replaces the cached
// entry on success. Concurrent callers for the same key attach to the
// in-flight operation and all receive its result; this also totally
// orders writes per key. On retry exhaustion the store is untouched.
//
// If the network fetch succeeds but persisting fails, FetchNow returns
// both the entry and an error wrapping ErrCacheWrite.
func (c *Coordinator) FetchNow(ctx context.Context, key shots.Key) (*cache.Entry, error) {
	v, err, shared := c.sf.Do(key.Slug(), func() (any, error) {
		return c.fetchWithRetry(ctx, key)
	})
	if shared {
		c.log.Debug().Stringer("key", key).Msg("request coalesced onto in-flight fetch")
	}
	entry, _ := v.(*cache.Entry)
	return entry, err
}

func (c *Coordinator) fetchWithRetry(ctx context.Context, key shots.Key) (*cache.Entry, error) {
	var lastErr error

	for attempt := 1; attempt <= c.opts.MaxRetries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, c.opts.AttemptTimeout)
		rows, err := c.fetcher.FetchShots(attemptCtx, key)
		cancel()

		if err == nil {
			return c.persist(key, rows)
		}

		if shots.IsPermanent(err) {
			c.log.Error().Err(err).Stringer("key", key).Msg("permanent fetch error, not retrying")
			return nil, err
		}

		lastErr = err
		c.log.Warn().Err(err).Stringer("key", key).
			Int("attempt", attempt).Int("max", c.opts.MaxRetries).
			Msg("transient fetch error")

		if attempt == c.opts.MaxRetries {
			break
		}
		if err := sleepCtx(ctx, c.backoff(attempt)); err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("fetch %s: retries exhausted: %w", key, lastErr)
}

func (c *Coordinator) persist(key shots.Key, rows []shots.Record) (*cache.Entry, error) {
	entry := &cache.Entry{
		Key:       key,
		FetchedAt: c.now(),
		RowCount:  len(rows),
		Source:    shots.SourceLive,
		Rows:      rows,
	}
	if err := c.store.Put(key, entry); err != nil {
		c.log.Error().Err(err).Stringer("key", key).Msg("cache write failed")
		return entry, fmt.Errorf("%w: %v", ErrCacheWrite, err)
	}
	c.log.Info().Stringer("key", key).Int("rows", len(rows)).Msg("cached fresh entry")
	return entry, nil
}

// backoff returns the exponential delay for the given attempt with a
// half-interval jitter, capped at BackoffCap.
func (c *Coordinator) backoff(attempt int) time.Duration {
	d := c.opts.BackoffBase << (attempt - 1)
	if d > c.opts.BackoffCap || d <= 0 {
		d = c.opts.BackoffCap
	}
	return d/2 + time.Duration(rand.Int63n(int64(d/2)+1))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
