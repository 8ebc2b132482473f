package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/lazypower/tether/internal/engine"
)

// Server is the tether HTTP API server.
type Server struct {
	engine  *engine.Engine
	router  chi.Router
	log     zerolog.Logger
	version string
	started time.Time
}

// New creates a new Server over the given engine.
func New(eng *engine.Engine, log zerolog.Logger, version string) *Server {
	s := &Server{
		engine:  eng,
		log:     log.With().Str("component", "server").Logger(),
		version: version,
		started: time.Now(),
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

		r.Post("/report", s.handleReport)
		r.Get("/list", s.handleList)
		r.Get("/beacons/{identity}", s.handleBeacon)
		r.Get("/history/{address}", s.handleHistory)
		r.Get("/status", s.handleStatus)

		// Privileged: wipes the registry. Authorization is the deployment's
		// responsibility (reverse proxy, network policy), not the core's.
		r.Post("/reset", s.handleReset)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
	})
}
