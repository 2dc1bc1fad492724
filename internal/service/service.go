// Package service ties the freshness policy, fetch coordinator,
// scheduler, and demo fallback into the contract consumed by the HTTP
// routes, the worker, and the CLI.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/courtsight/shotcache/cache"
	"github.com/courtsight/shotcache/coordinator"
	"github.com/courtsight/shotcache/demo"
	"github.com/courtsight/shotcache/policy"
	"github.com/courtsight/shotcache/shots"
)

// Enqueuer is the slice of the scheduler the service needs.
type Enqueuer interface {
	Enqueue(key shots.Key) bool
}

// Options carry the policy knobs and the default refresh grid.
type Options struct {
	Mode        policy.Mode
	TTL         time.Duration
	HardStale   time.Duration
	DefaultKeys []shots.Key
}

type Service struct {
	store cache.Store
	coord *coordinator.Coordinator
	sched Enqueuer
	opts  Options
	log   zerolog.Logger
	now   func() time.Time
}

func New(store cache.Store, coord *coordinator.Coordinator, sched Enqueuer, opts Options, log zerolog.Logger) *Service {
	return &Service{
		store: store,
		coord: coord,
		sched: sched,
		opts:  opts,
		log:   log.With().Str("component", "service").Logger(),
		now:   time.Now,
	}
}

// Dataset is what GetData hands to renderers and the scoring stage.
type Dataset struct {
	Rows   []shots.Record
	Source shots.SourceTag
	Age    time.Duration
}

// GetData returns rows for key per the freshness policy. It never
// fails: after all fallback logic the worst case is the bundled demo
// dataset, so consumers always get a valid row sequence.
func (s *Service) GetData(ctx context.Context, key shots.Key) Dataset {
	now := s.now()
	entry, ok := s.store.Get(key)
	var meta *policy.EntryMeta
	if ok {
		meta = &policy.EntryMeta{FetchedAt: entry.FetchedAt}
	}

	decision := policy.Decide(meta, now, s.opts.TTL, s.opts.HardStale, s.opts.Mode)
	s.log.Debug().Stringer("key", key).Str("decision", string(decision)).Msg("freshness decision")

	switch decision {
	case policy.ServeCache:
		return datasetFrom(entry, now)

	case policy.ServeStaleRefreshAsync:
		s.sched.Enqueue(key)
		return datasetFrom(entry, now)

	case policy.RefreshThenServe, policy.FetchRequired:
		fresh, err := s.coord.FetchNow(ctx, key)
		if err == nil || (errors.Is(err, coordinator.ErrCacheWrite) && fresh != nil) {
			return datasetFrom(fresh, now)
		}
		if entry != nil {
			s.log.Warn().Err(err).Stringer("key", key).Msg("refresh failed, serving stale")
			return datasetFrom(entry, now)
		}
		s.log.Warn().Err(err).Stringer("key", key).Msg("no cache and fetch failed, serving demo")
		return demoDataset(key)

	default: // policy.ServeDemo
		return demoDataset(key)
	}
}

// TriggerRefresh enqueues a background refresh for key. It reports
// false when a refresh for the key is already outstanding.
func (s *Service) TriggerRefresh(ctx context.Context, key shots.Key) bool {
	return s.sched.Enqueue(key)
}

// TriggerRefreshAll enqueues the default grid plus everything already
// cached, and returns how many jobs were actually enqueued.
func (s *Service) TriggerRefreshAll(ctx context.Context) int {
	seen := make(map[shots.Key]struct{})
	enqueued := 0
	for _, key := range append(s.store.Keys(), s.opts.DefaultKeys...) {
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if s.sched.Enqueue(key) {
			enqueued++
		}
	}
	s.log.Info().Int("enqueued", enqueued).Msg("bulk refresh triggered")
	return enqueued
}

// Status describes a key's cache state for UI indicators.
type Status struct {
	Key      shots.Key       `json:"key"`
	Present  bool            `json:"present"`
	Fresh    bool            `json:"fresh"`
	Age      time.Duration   `json:"age"`
	RowCount int             `json:"row_count"`
	Source   shots.SourceTag `json:"source,omitempty"`
}

// CacheStatus reports whether key is cached and how old the data is.
func (s *Service) CacheStatus(key shots.Key) Status {
	st := Status{Key: key}
	entry, ok := s.store.Get(key)
	if !ok {
		return st
	}
	st.Present = true
	st.Age = entry.Age(s.now())
	st.Fresh = st.Age <= s.opts.TTL
	st.RowCount = entry.RowCount
	st.Source = entry.Source
	return st
}

// Seed writes the bundled dataset into the cache for key, tagged
// SEEDED, so a fresh deployment has something real to serve.
func (s *Service) Seed(key shots.Key) error {
	rows := demo.Rows(key)
	entry := &cache.Entry{
		Key:       key,
		FetchedAt: s.now(),
		RowCount:  len(rows),
		Source:    shots.SourceSeeded,
		Rows:      rows,
	}
	if err := s.store.Put(key, entry); err != nil {
		return err
	}
	s.log.Info().Stringer("key", key).Int("rows", len(rows)).Msg("seeded cache entry")
	return nil
}

// DefaultKeys exposes the configured refresh grid.
func (s *Service) DefaultKeys() []shots.Key { return s.opts.DefaultKeys }

func datasetFrom(entry *cache.Entry, now time.Time) Dataset {
	return Dataset{Rows: entry.Rows, Source: entry.Source, Age: entry.Age(now)}
}

func demoDataset(key shots.Key) Dataset {
	return Dataset{Rows: demo.Rows(key), Source: shots.SourceDemo}
}
