package server

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/stankur/devfeed/internal/config"
	"github.com/stankur/devfeed/internal/feed"
	"github.com/stankur/devfeed/internal/pipeline"
	"github.com/stankur/devfeed/internal/store"
)

// Server is the devfeed HTTP API.
type Server struct {
	db      *store.DB
	cfg     config.Config
	orch    *pipeline.Orchestrator
	ranker  *feed.Ranker
	version string
	router  chi.Router
}

// New builds the server and mounts all routes.
func New(db *store.DB, cfg config.Config, orch *pipeline.Orchestrator, ranker *feed.Ranker, version string) *Server {
	s := &Server{
		db:      db,
		cfg:     cfg,
		orch:    orch,
		ranker:  ranker,
		version: version,
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.auth)

	r.Get("/healthz", s.handleHealth)

	r.Route("/users/{login}", func(r chi.Router) {
		r.Post("/login", s.handleLogin)
		r.Post("/start", s.handleStart)
		r.Post("/restart", s.handleRestart)
		r.Post("/restart-from/{kind}", s.handleRestartFrom)
		r.Delete("/", s.handleDelete)
		r.Get("/work-items", s.handleWorkItems)
		r.Get("/feed", s.handleFeed)
	})

	s.router = r
	return s
}

// Handler returns the mounted router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// auth enforces the configured bearer key on everything but the health
// probe. No configured key means an open server, intended for local use.
func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Server.APIKey == "" || r.URL.Path == "/healthz" {
			next.ServeHTTP(w, r)
			return
		}
		header := r.Header.Get("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if header == "" || token == header || token != s.cfg.Server.APIKey {
			writeError(w, http.StatusUnauthorized, "invalid or missing API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[server] encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
