package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/courtsight/shotcache/cache"
	"github.com/courtsight/shotcache/coordinator"
	"github.com/courtsight/shotcache/internal/service"
	"github.com/courtsight/shotcache/policy"
	"github.com/courtsight/shotcache/scheduler"
	"github.com/courtsight/shotcache/shots"
)

type stubFetcher struct {
	rows []shots.Record
}

func (f *stubFetcher) FetchShots(ctx context.Context, key shots.Key) ([]shots.Record, error) {
	return f.rows, nil
}

func newTestServer(t *testing.T) (*Server, cache.Store, *scheduler.Scheduler) {
	t.Helper()
	store, err := cache.NewFileStore(t.TempDir())
	require.NoError(t, err)

	coord := coordinator.New(store, &stubFetcher{rows: []shots.Record{
		{X: 5, Y: 15, Made: true, Distance: 1.5},
	}}, coordinator.Options{TTL: time.Hour, MaxRetries: 1, BackoffBase: time.Millisecond}, zerolog.Nop())

	sched := scheduler.New(coord, scheduler.Options{MaxConcurrent: 2}, zerolog.Nop())
	sched.Start(context.Background())
	t.Cleanup(sched.Stop)

	svc := service.New(store, coord, sched, service.Options{
		Mode:      policy.ModeLive,
		TTL:       time.Hour,
		HardStale: 4 * time.Hour,
		DefaultKeys: []shots.Key{
			{Subject: "Stephen Curry", Period: "2023-24", PeriodType: shots.RegularSeason},
		},
	}, zerolog.Nop())

	return New(ServerOptions{Svc: svc, Sched: sched, Log: zerolog.Nop()}), store, sched
}

func TestHealthz(t *testing.T) {
	s, _, _ := newTestServer(t)
	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, httptest.NewRequest("GET", "/healthz", nil))

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "ok", w.Body.String())
}

func TestGetShots(t *testing.T) {
	s, _, _ := newTestServer(t)
	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, httptest.NewRequest("GET", "/shots?subject=Stephen+Curry&period=2023-24", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var resp shotsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "Stephen Curry", resp.Subject)
	require.Equal(t, string(shots.RegularSeason), resp.PeriodType, "period type defaults to regular season")
	require.Equal(t, shots.SourceLive, resp.Source)
	require.Equal(t, 1, resp.RowCount)
	require.Len(t, resp.Rows, 1)
}

func TestGetShotsMissingParams(t *testing.T) {
	s, _, _ := newTestServer(t)

	for _, target := range []string{"/shots", "/shots?subject=Stephen+Curry", "/shots?period=2023-24"} {
		w := httptest.NewRecorder()
		s.Router.ServeHTTP(w, httptest.NewRequest("GET", target, nil))
		require.Equal(t, http.StatusBadRequest, w.Code, "target %s", target)
	}

	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, httptest.NewRequest("GET", "/shots?subject=X&period=2023-24&period_type=Summer", nil))
	require.Equal(t, http.StatusBadRequest, w.Code, "unknown period type")
}

func TestStatusSingleKey(t *testing.T) {
	s, store, _ := newTestServer(t)

	key := shots.Key{Subject: "Stephen Curry", Period: "2023-24", PeriodType: shots.RegularSeason}
	require.NoError(t, store.Put(key, &cache.Entry{
		Key:       key,
		FetchedAt: time.Now().Add(-30 * time.Minute),
		RowCount:  1,
		Source:    shots.SourceLive,
		Rows:      []shots.Record{{X: 1, Y: 2, Made: true}},
	}))

	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, httptest.NewRequest("GET", "/status?subject=Stephen+Curry&period=2023-24", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var st statusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	require.True(t, st.Present)
	require.True(t, st.Fresh)
	require.Equal(t, 1, st.RowCount)
	require.InDelta(t, (30 * time.Minute).Seconds(), st.AgeSecs, 5)
}

func TestStatusDefaultGrid(t *testing.T) {
	s, _, _ := newTestServer(t)

	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, httptest.NewRequest("GET", "/status", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var list []statusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	require.False(t, list[0].Present)
}

func TestRefreshEndpoint(t *testing.T) {
	s, store, sched := newTestServer(t)

	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, httptest.NewRequest("POST", "/refresh?subject=Stephen+Curry&period=2023-24", nil))
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, true, resp["enqueued"])

	// Wait for the background job, then the entry must exist.
	deadline := time.Now().Add(2 * time.Second)
	key := shots.Key{Subject: "Stephen Curry", Period: "2023-24", PeriodType: shots.RegularSeason}
	for time.Now().Before(deadline) {
		if len(sched.Jobs()) == 0 && store.Exists(key) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.True(t, store.Exists(key), "refresh job should populate the cache")
}

func TestRefreshAll(t *testing.T) {
	s, _, _ := newTestServer(t)

	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, httptest.NewRequest("POST", "/refresh?all=1", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.EqualValues(t, 1, resp["enqueued"])
}

func TestJobsEndpoint(t *testing.T) {
	s, _, _ := newTestServer(t)

	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, httptest.NewRequest("GET", "/jobs", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, "[]", w.Body.String())
}
