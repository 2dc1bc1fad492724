// Package scheduler drives background refreshes: periodic ticks over
// the managed key set plus on-demand jobs enqueued when a stale read
// is served. Jobs for distinct keys run concurrently up to a bound;
// repeat triggers for a key with an outstanding job are no-ops.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/courtsight/shotcache/shots"
)

// Refresher is the piece of the fetch coordinator the scheduler needs.
// Refresh must report failure rather than masking it with a stale
// fallback; the error is what marks the job FAILED.
type Refresher interface {
	Refresh(ctx context.Context, key shots.Key) error
}

// Status is a refresh job's position in its lifecycle.
type Status string

const (
	StatusQueued    Status = "QUEUED"
	StatusRunning   Status = "RUNNING"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
)

// JobView is an immutable snapshot of a refresh job.
type JobView struct {
	ID         uuid.UUID
	Key        shots.Key
	Status     Status
	EnqueuedAt time.Time
	StartedAt  time.Time
	FinishedAt time.Time
	LastError  string
}

type job struct {
	id         uuid.UUID
	key        shots.Key
	status     Status
	enqueuedAt time.Time
	startedAt  time.Time
	finishedAt time.Time
	lastError  error
}

// Result is delivered on the results channel when a job reaches a
// terminal state.
type Result struct {
	Job JobView
	Err error
}

// Options configure the scheduler.
type Options struct {
	// Interval between periodic refresh sweeps. Zero disables ticks;
	// on-demand Enqueue still works.
	Interval time.Duration
	// MaxConcurrent bounds the number of jobs running at once.
	MaxConcurrent int64
}

type Scheduler struct {
	refresher Refresher
	opts      Options
	log       zerolog.Logger

	mu          sync.Mutex
	managed     map[shots.Key]struct{}
	outstanding map[shots.Key]*job

	sem     *semaphore.Weighted
	results chan Result
	wg      sync.WaitGroup
	cancel  context.CancelFunc
}

func New(refresher Refresher, opts Options, log zerolog.Logger) *Scheduler {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 4
	}
	return &Scheduler{
		refresher:   refresher,
		opts:        opts,
		log:         log.With().Str("component", "scheduler").Logger(),
		managed:     make(map[shots.Key]struct{}),
		outstanding: make(map[shots.Key]*job),
		sem:         semaphore.NewWeighted(opts.MaxConcurrent),
		results:     make(chan Result, 64),
	}
}

// Manage adds keys to the periodic refresh set.
func (s *Scheduler) Manage(keys ...shots.Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		s.managed[k] = struct{}{}
	}
}

// Managed returns the periodic refresh set.
func (s *Scheduler) Managed() []shots.Key {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]shots.Key, 0, len(s.managed))
	for k := range s.managed {
		keys = append(keys, k)
	}
	return keys
}

// Start launches the tick loop and the result drain. It returns
// immediately; Stop waits for in-flight jobs.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.drainResults(ctx)

	if s.opts.Interval <= 0 {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.opts.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweep()
			}
		}
	}()
}

// Stop cancels the tick loop and waits for every accepted job, queued
// ones included, to run to completion. A refresh already promised must
// land; only future sweeps are cut off.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// sweep enqueues every managed key. Fresh entries make the job a
// cheap no-op inside Refresh, so sweeping is safe to do bluntly.
// A failing key never aborts the sweep or the schedule.
func (s *Scheduler) sweep() {
	keys := s.Managed()
	s.log.Info().Int("keys", len(keys)).Msg("refresh sweep")
	for _, k := range keys {
		s.Enqueue(k)
	}
}

// Enqueue requests a background refresh for key. It reports false if
// a job for the key is already queued or running (deduplicated no-op).
// The job runs detached from the trigger's context: a refresh must
// outlive the request that asked for it.
func (s *Scheduler) Enqueue(key shots.Key) bool {
	s.mu.Lock()
	if _, busy := s.outstanding[key]; busy {
		s.mu.Unlock()
		s.log.Debug().Stringer("key", key).Msg("refresh already outstanding, skipping")
		return false
	}
	j := &job{
		id:         uuid.New(),
		key:        key,
		status:     StatusQueued,
		enqueuedAt: time.Now(),
	}
	s.outstanding[key] = j
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(j)
	return true
}

func (s *Scheduler) run(j *job) {
	defer s.wg.Done()

	// Accepted jobs always execute: Stop drains the backlog instead of
	// dropping it, and a refresh superseded mid-flight still completes
	// and writes its result.
	ctx := context.Background()
	if err := s.sem.Acquire(ctx, 1); err != nil {
		s.finish(j, err)
		return
	}
	defer s.sem.Release(1)

	s.mu.Lock()
	j.status = StatusRunning
	j.startedAt = time.Now()
	s.mu.Unlock()

	s.finish(j, s.refresher.Refresh(ctx, j.key))
}

func (s *Scheduler) finish(j *job, err error) {
	s.mu.Lock()
	j.finishedAt = time.Now()
	j.lastError = err
	if err != nil {
		j.status = StatusFailed
	} else {
		j.status = StatusSucceeded
	}
	view := viewOf(j)
	delete(s.outstanding, j.key)
	s.mu.Unlock()

	select {
	case s.results <- Result{Job: view, Err: err}:
	default:
		// Nobody draining fast enough; the result is log-only anyway.
	}
}

func (s *Scheduler) drainResults(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case res := <-s.results:
			ev := s.log.Info()
			if res.Err != nil {
				ev = s.log.Warn().Err(res.Err)
			}
			ev.Stringer("key", res.Job.Key).
				Str("job", res.Job.ID.String()).
				Str("status", string(res.Job.Status)).
				Dur("took", res.Job.FinishedAt.Sub(res.Job.StartedAt)).
				Msg("refresh job finished")
		}
	}
}

// Jobs snapshots the outstanding (queued or running) jobs.
func (s *Scheduler) Jobs() []JobView {
	s.mu.Lock()
	defer s.mu.Unlock()
	views := make([]JobView, 0, len(s.outstanding))
	for _, j := range s.outstanding {
		views = append(views, viewOf(j))
	}
	return views
}

func viewOf(j *job) JobView {
	v := JobView{
		ID:         j.id,
		Key:        j.key,
		Status:     j.status,
		EnqueuedAt: j.enqueuedAt,
		StartedAt:  j.startedAt,
		FinishedAt: j.finishedAt,
	}
	if j.lastError != nil {
		v.LastError = j.lastError.Error()
	}
	return v
}
