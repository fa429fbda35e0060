// Package api serves the menu and profile over HTTP as JSON.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"little-lemon/internal/app"
	"little-lemon/internal/logger"
	"little-lemon/internal/menu"
	"little-lemon/internal/metrics"
	"little-lemon/internal/profile"

	"github.com/rs/cors"
)

// Server exposes the menu pipeline to HTTP clients.
type Server struct {
	app    *app.App
	dbPath string
	log    *slog.Logger
}

// NewServer creates a new Server.
func NewServer(a *app.App, dbPath string, log *slog.Logger) *Server {
	return &Server{app: a, dbPath: dbPath, log: logger.WithComponent(log, "api")}
}

// menuItemResponse is an item as shown to clients.
type menuItemResponse struct {
	menu.Item
	ShortDescription string `json:"short_description"`
	ImageURL         string `json:"image_url"`
}

type sectionResponse struct {
	Category string             `json:"category"`
	Items    []menuItemResponse `json:"items"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Routes registers the API handlers on mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/menu", s.handleMenu)
	mux.HandleFunc("GET /api/categories", s.handleCategories)
	mux.HandleFunc("GET /api/sections", s.handleSections)
	mux.HandleFunc("GET /api/profile", s.handleGetProfile)
	mux.HandleFunc("PUT /api/profile", s.handlePutProfile)
	mux.HandleFunc("DELETE /api/profile", s.handleDeleteProfile)
	mux.HandleFunc("GET /health", s.handleHealth)
}

// Handler returns the full handler with request logging and CORS.
func (s *Server) Handler(allowedOrigins []string) http.Handler {
	mux := http.NewServeMux()
	s.Routes(mux)

	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(logger.HTTPMiddleware(s.log, mux))
}

// query reads the filter from the URL. Without any "category" parameter the
// result is not restricted by category; "category=" alone selects none.
func (s *Server) query(ctx context.Context, r *http.Request) ([]menu.Item, error) {
	if _, err := s.app.Syncer().EnsureMenuReady(ctx); err != nil {
		return nil, err
	}

	values := r.URL.Query()
	var selected []string
	if raw, ok := values["category"]; ok {
		selected = []string{}
		for _, c := range raw {
			if c != "" {
				selected = append(selected, c)
			}
		}
	}

	return s.app.Syncer().Store().Query(ctx, menu.BuildPredicate(values.Get("q"), selected))
}

func (s *Server) handleMenu(w http.ResponseWriter, r *http.Request) {
	items, err := s.query(r.Context(), r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.toResponse(items))
}

func (s *Server) handleSections(w http.ResponseWriter, r *http.Request) {
	items, err := s.query(r.Context(), r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	sections := []sectionResponse{}
	for _, sec := range menu.Sections(items) {
		sections = append(sections, sectionResponse{Category: sec.Category, Items: s.toResponse(sec.Items)})
	}
	writeJSON(w, http.StatusOK, sections)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.app.Syncer().EnsureMenuReady(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, menu.NewFilterState(categories).States())
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.app.Profiles().Load(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handlePutProfile(w http.ResponseWriter, r *http.Request) {
	var p profile.Profile
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	if err := s.app.Profiles().LogIn(r.Context(), p); err != nil {
		s.writeError(w, err)
		return
	}

	saved, err := s.app.Profiles().Load(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleDeleteProfile(w http.ResponseWriter, r *http.Request) {
	if err := s.app.LogOut(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, metrics.GetSysHealth(s.dbPath))
}

func (s *Server) toResponse(items []menu.Item) []menuItemResponse {
	base := s.app.Config().MenuImageBaseURL
	out := make([]menuItemResponse, 0, len(items))
	for _, it := range items {
		out = append(out, menuItemResponse{
			Item:             it,
			ShortDescription: it.ShortDescription(),
			ImageURL:         it.ImageURL(base),
		})
	}
	return out
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, profile.ErrInvalidProfile):
		status = http.StatusBadRequest
	case errors.Is(err, menu.ErrNetwork), errors.Is(err, menu.ErrParse):
		status = http.StatusBadGateway
	case errors.Is(err, menu.ErrStorageUnavailable), errors.Is(err, menu.ErrStorageRead), errors.Is(err, menu.ErrStorageWrite):
		status = http.StatusServiceUnavailable
	}
	if status >= 500 {
		s.log.Error("Request failed", "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
