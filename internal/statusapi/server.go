// Package statusapi serves run status over HTTP: the runs tracked by the
// report store, their status history and the catalog merge events. Remote
// wrappers can also push status updates through it.
package statusapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/me/gridcwl/internal/report"
)

// Server is the status REST API.
type Server struct {
	router chi.Router
	store  report.Store
	logger *slog.Logger
}

// New creates a Server with all routes registered.
func New(store report.Store, logger *slog.Logger) *Server {
	s := &Server{
		router: chi.NewRouter(),
		store:  store,
		logger: logger.With("component", "statusapi"),
	}
	s.routes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Route("/runs", func(r chi.Router) {
			r.Get("/", s.handleListRuns)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetRun)
				r.Get("/status", s.handleListStatus)
				r.Post("/status", s.handlePostStatus)
				r.Get("/merges", s.handleListMerges)
			})
		})
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.store.ListRuns(r.Context())
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	if runs == nil {
		runs = []*report.Run{}
	}
	respondJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, err := s.store.GetRun(r.Context(), id)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	if run == nil {
		respondJSON(w, http.StatusNotFound, map[string]string{"error": "run not found"})
		return
	}
	respondJSON(w, http.StatusOK, run)
}

func (s *Server) handleListStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	updates, err := s.store.ListStatus(r.Context(), id)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	if updates == nil {
		updates = []report.StatusUpdate{}
	}
	respondJSON(w, http.StatusOK, updates)
}

func (s *Server) handlePostStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var u report.StatusUpdate
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid status update: " + err.Error()})
		return
	}
	u.RunID = id
	if u.Status == "" {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "status is required"})
		return
	}
	if u.Timestamp.IsZero() {
		u.Timestamp = time.Now().UTC()
	}
	if u.Source == "" {
		u.Source = "Unknown"
	}

	if err := s.store.RecordStatus(r.Context(), u); err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusCreated, u)
}

func (s *Server) handleListMerges(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	events, err := s.store.ListMerges(r.Context(), id)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	if events == nil {
		events = []report.MergeEvent{}
	}
	respondJSON(w, http.StatusOK, events)
}

func (s *Server) respondError(w http.ResponseWriter, status int, err error) {
	s.logger.Error("request failed", "err", err)
	respondJSON(w, status, map[string]string{"error": err.Error()})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
