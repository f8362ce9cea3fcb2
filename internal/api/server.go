// Package api exposes a read-only HTTP surface over the venue store. It is
// a viewing layer for the crawled dataset; every write path stays in the CLI.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/tastemap/tastemap-cli/internal/store"
)

// Server wires HTTP handlers to the store.
type Server struct {
	router chi.Router
	store  store.Store
}

// NewServer constructs a Server with middleware and routes.
func NewServer(st store.Store) *Server {
	s := &Server{store: st}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	}))

	r.Get("/healthz", s.healthz)
	r.Get("/venues", s.listVenues)
	r.Get("/venues/{id}", s.getVenue)
	r.Get("/venues/{id}/media", s.listVenueMedia)
	r.Get("/venues/{id}/reviews", s.listVenueReviews)
	r.Get("/runs", s.listRuns)

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listVenues(w http.ResponseWriter, r *http.Request) {
	filter := store.VenueFilter{
		Cuisine: r.URL.Query().Get("cuisine"),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	venues, err := s.store.ListVenues(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, venues)
}

func (s *Server) getVenue(w http.ResponseWriter, r *http.Request) {
	venue, err := s.store.GetVenue(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "venue not found"})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, venue)
}

func (s *Server) listVenueMedia(w http.ResponseWriter, r *http.Request) {
	media, err := s.store.ListVenueMedia(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, media)
}

func (s *Server) listVenueReviews(w http.ResponseWriter, r *http.Request) {
	reviews, err := s.store.ListVenueReviews(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reviews)
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	runs, err := s.store.ListRuns(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, err error) {
	zap.L().Error("api: request failed", zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}
