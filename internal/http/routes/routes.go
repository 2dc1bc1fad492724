// Package routes exposes the consumer contract over HTTP: dataset
// reads, manual refresh triggers, and cache status for UI indicators.
package routes

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/courtsight/shotcache/internal/service"
	"github.com/courtsight/shotcache/scheduler"
	"github.com/courtsight/shotcache/shots"
)

// JobLister exposes outstanding background refresh jobs.
type JobLister interface {
	Jobs() []scheduler.JobView
}

type Server struct {
	Router *chi.Mux
	Svc    *service.Service
	Sched  JobLister
	Log    zerolog.Logger
}

type ServerOptions struct {
	Svc   *service.Service
	Sched JobLister
	Log   zerolog.Logger
}

func New(opts ServerOptions) *Server {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	s := &Server{Router: r, Svc: opts.Svc, Sched: opts.Sched, Log: opts.Log}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("ok")); err != nil {
			s.Log.Error().Err(err).Msg("write health check response")
		}
	})

	r.Get("/shots", s.handleGetShots)
	r.Get("/status", s.handleStatus)
	r.Get("/jobs", s.handleJobs)
	r.Post("/refresh", s.handleRefresh)

	return s
}

type shotsResponse struct {
	Subject    string          `json:"subject"`
	Period     string          `json:"period"`
	PeriodType string          `json:"period_type"`
	Source     shots.SourceTag `json:"source"`
	AgeSeconds float64         `json:"age_seconds"`
	RowCount   int             `json:"row_count"`
	Rows       []shots.Record  `json:"rows"`
}

func (s *Server) handleGetShots(w http.ResponseWriter, r *http.Request) {
	key, err := keyFromQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ds := s.Svc.GetData(r.Context(), key)
	s.writeJSON(w, http.StatusOK, shotsResponse{
		Subject:    key.Subject,
		Period:     key.Period,
		PeriodType: string(key.PeriodType),
		Source:     ds.Source,
		AgeSeconds: ds.Age.Seconds(),
		RowCount:   len(ds.Rows),
		Rows:       ds.Rows,
	})
}

type statusResponse struct {
	Key      shots.Key       `json:"key"`
	Present  bool            `json:"present"`
	Fresh    bool            `json:"fresh"`
	AgeSecs  float64         `json:"age_seconds"`
	RowCount int             `json:"row_count"`
	Source   shots.SourceTag `json:"source,omitempty"`
}

func toStatusResponse(st service.Status) statusResponse {
	return statusResponse{
		Key:      st.Key,
		Present:  st.Present,
		Fresh:    st.Fresh,
		AgeSecs:  st.Age.Seconds(),
		RowCount: st.RowCount,
		Source:   st.Source,
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("subject") == "" {
		// No key given: report on the default grid.
		keys := s.Svc.DefaultKeys()
		out := make([]statusResponse, 0, len(keys))
		for _, key := range keys {
			out = append(out, toStatusResponse(s.Svc.CacheStatus(key)))
		}
		s.writeJSON(w, http.StatusOK, out)
		return
	}

	key, err := keyFromQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.writeJSON(w, http.StatusOK, toStatusResponse(s.Svc.CacheStatus(key)))
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	jobs := s.Sched.Jobs()
	if jobs == nil {
		jobs = []scheduler.JobView{}
	}
	s.writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("all") == "1" {
		n := s.Svc.TriggerRefreshAll(r.Context())
		s.writeJSON(w, http.StatusOK, map[string]any{"enqueued": n})
		return
	}

	key, err := keyFromQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	enqueued := s.Svc.TriggerRefresh(r.Context(), key)
	s.writeJSON(w, http.StatusAccepted, map[string]any{"key": key, "enqueued": enqueued})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.Log.Error().Err(err).Msg("encode response")
	}
}

func keyFromQuery(r *http.Request) (shots.Key, error) {
	q := r.URL.Query()
	key := shots.Key{
		Subject: q.Get("subject"),
		Period:  q.Get("period"),
	}
	if key.Subject == "" {
		return key, errMissing("subject")
	}
	if key.Period == "" {
		return key, errMissing("period")
	}

	pt := q.Get("period_type")
	if pt == "" {
		key.PeriodType = shots.RegularSeason
		return key, nil
	}
	parsed, err := shots.ParsePeriodType(pt)
	if err != nil {
		return key, err
	}
	key.PeriodType = parsed
	return key, nil
}

type errMissing string

func (e errMissing) Error() string { return "missing query parameter: " + string(e) }
