package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/courtsight/shotcache/shots"
)

type fakeRefresher struct {
	mu    sync.Mutex
	calls map[shots.Key]int
	total int32
	err   error
	block chan struct{}
}

func newFakeRefresher() *fakeRefresher {
	return &fakeRefresher{calls: map[shots.Key]int{}}
}

func (f *fakeRefresher) Refresh(ctx context.Context, key shots.Key) error {
	if f.block != nil {
		<-f.block
	}
	atomic.AddInt32(&f.total, 1)
	f.mu.Lock()
	f.calls[key]++
	err := f.err
	f.mu.Unlock()
	return err
}

func (f *fakeRefresher) callsFor(key shots.Key) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

func k(subject string) shots.Key {
	return shots.Key{Subject: subject, Period: "2023-24", PeriodType: shots.RegularSeason}
}

func waitIdle(t *testing.T, s *Scheduler) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(s.Jobs()) == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("scheduler still has outstanding jobs: %v", s.Jobs())
}

func TestEnqueueRunsJob(t *testing.T) {
	ref := newFakeRefresher()
	s := New(ref, Options{MaxConcurrent: 2}, zerolog.Nop())
	s.Start(context.Background())
	defer s.Stop()

	if !s.Enqueue(k("Stephen Curry")) {
		t.Fatal("Enqueue returned false on an idle scheduler")
	}
	waitIdle(t, s)

	if got := ref.callsFor(k("Stephen Curry")); got != 1 {
		t.Errorf("refresher called %d times, want 1", got)
	}
}

func TestEnqueueDeduplicatesPerKey(t *testing.T) {
	ref := newFakeRefresher()
	ref.block = make(chan struct{})
	s := New(ref, Options{MaxConcurrent: 2}, zerolog.Nop())
	s.Start(context.Background())
	defer s.Stop()

	key := k("Stephen Curry")
	if !s.Enqueue(key) {
		t.Fatal("first enqueue should be accepted")
	}
	// Outstanding job for the same key: repeat triggers are no-ops.
	if s.Enqueue(key) {
		t.Error("second enqueue should be deduplicated")
	}
	if s.Enqueue(key) {
		t.Error("third enqueue should be deduplicated")
	}

	close(ref.block)
	waitIdle(t, s)

	if got := ref.callsFor(key); got != 1 {
		t.Errorf("refresher called %d times, want 1", got)
	}

	// Once the job is terminal the key is eligible again.
	if !s.Enqueue(key) {
		t.Error("enqueue after completion should be accepted")
	}
	waitIdle(t, s)
}

func TestDistinctKeysRunIndependently(t *testing.T) {
	ref := newFakeRefresher()
	s := New(ref, Options{MaxConcurrent: 4}, zerolog.Nop())
	s.Start(context.Background())
	defer s.Stop()

	keys := []shots.Key{k("Stephen Curry"), k("LeBron James"), k("Kevin Durant")}
	for _, key := range keys {
		if !s.Enqueue(key) {
			t.Fatalf("enqueue %s rejected", key)
		}
	}
	waitIdle(t, s)

	for _, key := range keys {
		if got := ref.callsFor(key); got != 1 {
			t.Errorf("%s refreshed %d times, want 1", key, got)
		}
	}
}

func TestFailedJobDoesNotStickOrAbort(t *testing.T) {
	ref := newFakeRefresher()
	ref.err = errors.New("upstream down")
	s := New(ref, Options{MaxConcurrent: 2}, zerolog.Nop())
	s.Start(context.Background())
	defer s.Stop()

	key := k("Stephen Curry")
	if !s.Enqueue(key) {
		t.Fatal("enqueue rejected")
	}
	waitIdle(t, s)

	// Failure must leave the key eligible for the next trigger.
	if !s.Enqueue(key) {
		t.Error("key stuck after failed job")
	}
	waitIdle(t, s)

	if got := ref.callsFor(key); got != 2 {
		t.Errorf("refresher called %d times, want 2", got)
	}
}

func TestPeriodicSweepRefreshesManagedKeys(t *testing.T) {
	ref := newFakeRefresher()
	s := New(ref, Options{Interval: 20 * time.Millisecond, MaxConcurrent: 4}, zerolog.Nop())
	s.Manage(k("Stephen Curry"), k("LeBron James"))

	s.Start(context.Background())
	time.Sleep(70 * time.Millisecond)
	s.Stop()

	if got := ref.callsFor(k("Stephen Curry")); got < 1 {
		t.Errorf("managed key never swept")
	}
	if got := ref.callsFor(k("LeBron James")); got < 1 {
		t.Errorf("managed key never swept")
	}
}

func TestJobLifecycleView(t *testing.T) {
	ref := newFakeRefresher()
	ref.block = make(chan struct{})
	s := New(ref, Options{MaxConcurrent: 1}, zerolog.Nop())
	s.Start(context.Background())
	defer s.Stop()

	key := k("Stephen Curry")
	s.Enqueue(key)

	// The single outstanding job must be visible as queued or running.
	deadline := time.Now().Add(time.Second)
	var seen bool
	for time.Now().Before(deadline) {
		jobs := s.Jobs()
		if len(jobs) == 1 {
			j := jobs[0]
			if j.Key != key {
				t.Fatalf("job view has wrong key: %v", j.Key)
			}
			if j.Status == StatusQueued || j.Status == StatusRunning {
				seen = true
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
	}
	if !seen {
		t.Fatal("never observed an outstanding job view")
	}

	close(ref.block)
	waitIdle(t, s)
}

func TestStopDrainsQueuedJobs(t *testing.T) {
	ref := newFakeRefresher()
	s := New(ref, Options{MaxConcurrent: 2}, zerolog.Nop())
	s.Start(context.Background())

	const n = 10
	for i := 0; i < n; i++ {
		if !s.Enqueue(k(fmt.Sprintf("Player %d", i))) {
			t.Fatalf("enqueue %d rejected", i)
		}
	}
	// Most jobs are still waiting on the concurrency semaphore here.
	// Stop must wait them out, not cancel them.
	s.Stop()

	if got := atomic.LoadInt32(&ref.total); got != n {
		t.Errorf("refresher ran %d of %d enqueued jobs after Stop", got, n)
	}
}

func TestJobResultRecordsRefreshFailure(t *testing.T) {
	ref := newFakeRefresher()
	ref.err = errors.New("upstream down")
	s := New(ref, Options{MaxConcurrent: 1}, zerolog.Nop())
	// Not started: read the result directly instead of the drain loop.
	s.Enqueue(k("Stephen Curry"))

	select {
	case res := <-s.results:
		if res.Job.Status != StatusFailed {
			t.Errorf("job status = %s, want %s", res.Job.Status, StatusFailed)
		}
		if res.Job.LastError == "" || res.Err == nil {
			t.Error("failed job must carry its error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no job result delivered")
	}

	ref.mu.Lock()
	ref.err = nil
	ref.mu.Unlock()
	s.Enqueue(k("Stephen Curry"))

	select {
	case res := <-s.results:
		if res.Job.Status != StatusSucceeded || res.Job.LastError != "" {
			t.Errorf("job after recovery = %s (%q), want %s", res.Job.Status, res.Job.LastError, StatusSucceeded)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no job result delivered")
	}
}
