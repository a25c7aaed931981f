// Package server exposes a read-only HTTP view of a running lab session.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/boristopalov/rlab/internal/store"
	"github.com/boristopalov/rlab/pkg/agent"
	"github.com/boristopalov/rlab/pkg/core"
	"github.com/boristopalov/rlab/pkg/messaging"
)

// StatusSource reports session progress; experiment.Session implements it.
type StatusSource interface {
	GetStatus() core.SessionStatus
}

// Server is the lab status API.
type Server struct {
	db       *store.DB
	agent    *agent.Agent
	session  StatusSource
	recorder *messaging.Recorder
	router   chi.Router
	version  string
	started  time.Time
}

// New creates a Server. db and recorder may be nil; their routes then
// report that they are not configured.
func New(db *store.DB, a *agent.Agent, session StatusSource, recorder *messaging.Recorder, version string) *Server {
	s := &Server{
		db:       db,
		agent:    a,
		session:  session,
		recorder: recorder,
		version:  version,
		started:  time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/session", s.handleSession)
		r.Get("/algorithm", s.handleAlgorithm)
		r.Get("/bodies", s.handleBodies)
		r.Get("/events", s.handleEvents)
		r.Get("/checkpoints", s.handleCheckpoints)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := false
	dbPath := ""
	if s.db != nil {
		dbOK = s.db.Ping() == nil
		dbPath = s.db.Path
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
		"db":      dbOK,
		"db_path": dbPath,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
